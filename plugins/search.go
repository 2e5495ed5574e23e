package plugins

import (
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"

	"blog/core"
)

// pageDocument is what gets indexed per rendered page.
type pageDocument struct {
	Title      string   `json:"title"`
	Body       string   `json:"body"`
	Categories []string `json:"categories"`
	Tags       []string `json:"tags"`
}

type BuiltinSearchPlugin struct {
	mu    sync.RWMutex
	index bleve.Index
	pages map[string]core.SearchResult // file path -> display data
}

var (
	_ core.Plugin             = (*BuiltinSearchPlugin)(nil)
	_ core.SearchProvider     = (*BuiltinSearchPlugin)(nil)
	_ core.FileRemovalHandler = (*BuiltinSearchPlugin)(nil)
)

func NewSearchPlugin(params map[string]string) *BuiltinSearchPlugin {
	mapping := bleve.NewIndexMapping()

	var index bleve.Index
	var err error
	if path, ok := params["index-path"]; ok && path != "" {
		index, err = bleve.Open(path)
		if err != nil {
			index, err = bleve.New(path, mapping)
		}
	} else {
		index, err = bleve.NewMemOnly(mapping)
	}
	if err != nil {
		core.Error("Failed to create search index: %v", err)
		return nil
	}

	return &BuiltinSearchPlugin{
		index: index,
		pages: make(map[string]core.SearchResult),
	}
}

func (p *BuiltinSearchPlugin) Name() string {
	return "builtin/search"
}

func (p *BuiltinSearchPlugin) Priority() int {
	return 1000 // Run last, after the renderers filled in content and routes
}

func (p *BuiltinSearchPlugin) CanProcess(file *core.File) bool {
	if !file.IsContent() {
		return false
	}
	ext := strings.ToLower(filepath.Ext(file.Name))
	return ext == ".txt" || ext == ".md" || ext == ".markdown" || ext == ".html" || ext == ".htm"
}

func (p *BuiltinSearchPlugin) Process(ctx *core.PluginContext) *core.PluginResult {
	file := ctx.File

	// Drafts and failed renders have no content and stay out of the index
	if file.Content == nil || len(file.Routes) == 0 {
		return &core.PluginResult{Success: true}
	}

	doc := pageDocument{
		Title:      file.Metadata.Title,
		Body:       string(file.Content),
		Categories: file.Metadata.Categories,
		Tags:       file.Metadata.Tags,
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.index.Index(file.Path, doc); err != nil {
		return &core.PluginResult{
			Success: false,
			Error:   core.NewPluginError(p.Name(), file.Path, err),
		}
	}

	url := file.Routes[0]
	for _, route := range file.Routes {
		if filepath.Ext(route) == "" {
			url = route
			break
		}
	}
	p.pages[file.Path] = core.SearchResult{
		Url:   url,
		Title: file.Metadata.Title,
	}

	return &core.PluginResult{Success: true}
}

// HandleFileRemoved removes a deleted file from the index.
func (p *BuiltinSearchPlugin) HandleFileRemoved(filePath string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.index.Delete(filePath); err != nil {
		core.Warn("Failed to remove %s from search index: %v", filePath, err)
	}
	delete(p.pages, filePath)
}

// Search implements core.SearchProvider.
func (p *BuiltinSearchPlugin) Search(query string, limit int) ([]core.SearchResult, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	searchRequest := bleve.NewSearchRequest(bleve.NewQueryStringQuery(query))
	searchRequest.Size = limit
	searchRequest.Highlight = bleve.NewHighlight()

	searchResults, err := p.index.Search(searchRequest)
	if err != nil {
		return nil, err
	}

	results := make([]core.SearchResult, 0, len(searchResults.Hits))
	for _, hit := range searchResults.Hits {
		result, known := p.pages[hit.ID]
		if !known {
			continue // indexed before but meanwhile forgotten
		}
		result.Score = hit.Score
		results = append(results, result)
	}

	return results, nil
}
