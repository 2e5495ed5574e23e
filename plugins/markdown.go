package plugins

import (
	"bytes"
	"strings"

	"github.com/adrg/frontmatter"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	highlighting "github.com/yuin/goldmark-highlighting/v2"

	"blog/core"
)

type BuiltinMarkdownPlugin struct {
	markdown goldmark.Markdown
	Context  *core.Context
}

func NewMarkdownPlugin(ctx *core.Context) *BuiltinMarkdownPlugin {
	style := "monokai"
	if params, exists := ctx.Config.Plugins["builtin/markdown"]; exists {
		if s, ok := params["highlight-style"]; ok && s != "" {
			style = s
		}
	}

	markdown := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			highlighting.NewHighlighting(
				highlighting.WithStyle(style),
				highlighting.WithFormatOptions(
					chromahtml.WithLineNumbers(true),
				),
			),
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
	)
	return &BuiltinMarkdownPlugin{markdown: markdown, Context: ctx}
}

func (p *BuiltinMarkdownPlugin) Name() string {
	return "builtin/markdown"
}

func (p *BuiltinMarkdownPlugin) Priority() int {
	return 100
}

func (p *BuiltinMarkdownPlugin) CanProcess(file *core.File) bool {
	// Ignore files in the layout directory
	if strings.HasPrefix(file.Path, "layout/") {
		return false
	}
	return strings.HasSuffix(strings.ToLower(file.Name), ".md") ||
		strings.HasSuffix(strings.ToLower(file.Name), ".markdown")
}

func (p *BuiltinMarkdownPlugin) Process(ctx *core.PluginContext) *core.PluginResult {
	core.Debug("Processing markdown file: %s", ctx.File.Path)

	// Don't attempt to read a file if it is only a redirection
	if ctx.File.Metadata.RedirectUrl != "" {
		return &core.PluginResult{
			Success: false,
			Error:   core.NewPluginError(p.Name(), ctx.File.Path, core.ErrInvalidFrontMatter),
		}
	}

	content := ctx.File.ReadFile(ctx.SiteDirectory)
	if content == nil {
		return &core.PluginResult{
			Success: false,
		}
	}

	// Parse (and strip) the front matter block
	rest, err := frontmatter.Parse(bytes.NewReader(content), &ctx.File.Metadata)
	if err != nil {
		core.Warn("Front matter of %s is malformed: %v", ctx.File.Path, err)
	} else {
		content = rest
	}

	isPost := strings.HasPrefix(ctx.File.Path, p.Context.Config.PostsPrefix())
	if err := ctx.File.Metadata.Validate(isPost); err != nil {
		// A page with broken metadata still renders; the lint command
		// reports it to the author.
		core.Warn("%s: %v", ctx.File.Path, err)
	}

	// Unpublished drafts render nowhere: no routes, no index entry
	if ctx.File.Metadata.Draft && !p.Context.Config.Blog.PublishDrafts {
		core.Debug("Skipping draft: %s", ctx.File.Path)
		return &core.PluginResult{Success: true}
	}

	var html bytes.Buffer
	if err := p.markdown.Convert(content, &html); err != nil {
		return &core.PluginResult{
			Success: false,
			Error:   core.NewPluginError(p.Name(), ctx.File.Path, err),
		}
	}

	var result core.PluginResult
	result.Routes = DeriveRoutes(ctx.File)

	// Build the map with the template variables
	vars := BuildTemplateVars(p.Context, ctx.File, result.Routes)

	// The rendered markdown may itself reference template variables
	body, err := ApplyTemplate(html.Bytes(), ctx.File, vars)
	if err != nil {
		core.Error("%v", err)
		return &core.PluginResult{
			Success: false,
			Error:   core.NewPluginError(p.Name(), ctx.File.Path, err),
		}
	}

	// Wrap the content in its layout unless the page opts out
	if !ctx.File.Metadata.IgnoreLayout {
		wrapped, deps, err := WrapInLayout(ctx, body, vars)
		if err != nil {
			core.Error("%v", err)
			return &core.PluginResult{
				Success: false,
				Error:   core.NewPluginError(p.Name(), ctx.File.Path, err),
			}
		}
		body = wrapped
		result.Dependencies = deps
	}

	// Posts additionally land in the post index
	registerPost(p.Context, ctx.File, result.Routes)

	core.RecordPageRendered()

	result.Success = true
	result.Modified = true
	result.NewContent = body
	result.MimeType = "text/html; charset=utf-8"
	return &result
}
