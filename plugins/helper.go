package plugins

import (
	"fmt"
	"html/template"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"blog/core"
)

// ApplyTemplate treats the page body itself as a template, so content files
// can reference site variables like {{.SiteTitle}}.
func ApplyTemplate(body []byte, file *core.File, vars map[string]any) ([]byte, error) {
	tmpl, err := template.New(file.Path).Parse(string(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse template for %s: %w", file.Path, err)
	}

	var output strings.Builder
	err = tmpl.Execute(&output, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to execute template for %s: %w", file.Path, err)
	}

	return []byte(output.String()), nil
}

// WrapInLayout renders the page content into its layout file. The layout is
// selected by the "layout" front matter key (layout/<name>.html, default
// layout/default.html) and becomes a dependency of the page, so editing the
// layout re-renders every page using it.
func WrapInLayout(ctx *core.PluginContext, rendered []byte, vars map[string]any) ([]byte, []*core.File, error) {
	layoutPath := ctx.File.Metadata.LayoutPath()
	layout := ctx.FileManager.GetFile(layoutPath)
	if layout == nil {
		return nil, nil, fmt.Errorf("%w: %s", core.ErrFileNotFound, layoutPath)
	}

	if layout.Content == nil {
		layout.Content = layout.ReadFile(ctx.SiteDirectory)
	}
	if layout.Content == nil {
		return nil, nil, fmt.Errorf("%w: %s", core.ErrFileNotFound, layoutPath)
	}

	tmpl, err := template.New(layoutPath).Parse(string(layout.Content))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse layout %s: %w", layoutPath, err)
	}

	vars["Content"] = template.HTML(rendered)

	var output strings.Builder
	if err := tmpl.Execute(&output, vars); err != nil {
		return nil, nil, fmt.Errorf("failed to execute layout %s for %s: %w", layoutPath, ctx.File.Path, err)
	}

	return []byte(output.String()), []*core.File{layout}, nil
}

// DeriveRoutes computes the routes a content file claims. A "permalink"
// front matter entry overrides the path-derived routes. Without one, a page
// is reachable under its content path with and without extension, and index
// pages also claim their directory.
func DeriveRoutes(file *core.File) []string {
	if file.Metadata.Permalink != "" && strings.HasPrefix(file.Metadata.Permalink, "/") {
		return []string{file.Metadata.Permalink}
	}

	route := strings.TrimPrefix(file.Path, "content/")
	route = "/" + strings.TrimLeft(route, "/")
	route = path.Clean(route)

	ext := filepath.Ext(route)
	routes := []string{route, strings.TrimSuffix(route, ext)}

	base := filepath.Base(route)
	if base == "index.md" || base == "index.html" || base == "index.markdown" {
		dir := filepath.Dir(route)
		if dir == "." {
			dir = "/"
		}
		routes = append(routes, dir)
	}

	return routes
}

// BuildTemplateVars assembles the variable map shared by page and layout
// templates.
func BuildTemplateVars(ctx *core.Context, file *core.File, routes []string) map[string]any {
	vars := map[string]any{
		"SiteTitle":       ctx.Config.Server.Title,
		"SiteDescription": ctx.Config.Server.Description,
		"SiteAuthor":      ctx.Authors.Primary().FullName,
		"BrandingFavicon": ctx.Config.Branding.Favicon,
		"BrandingCssFile": ctx.Config.Branding.CssFile,
		"PageTitle":       file.Metadata.Title,
		"PageAuthor":      file.Metadata.Author,
		"PageDate":        file.Metadata.Date,
		"PageCategories":  file.Metadata.Categories,
		"PageTags":        file.Metadata.Tags,
		"PageSummary":     file.Metadata.Summary,
		"PageCssFile":     file.Metadata.CssFile,
	}

	// Resolve the short author name against the registry
	if file.Metadata.Author != "" {
		if author := ctx.Authors.Lookup(file.Metadata.Author); author != nil {
			vars["PageAuthor"] = author.FullName
		}
	}

	// Date of last modification is either specified in the front matter or
	// fetched from the file system
	if file.Metadata.Date.IsZero() {
		info, err := os.Stat(filepath.Join(ctx.Config.SiteDirectory, file.Path))
		if err == nil {
			vars["PageDate"] = info.ModTime()
		}
	}

	if file.Parent != nil { // Can be nil when "dump"ing everything to disk
		vars["Directory"] = map[string]any{
			"Title":   file.Parent.Metadata.Title,
			"CssFile": file.Parent.Metadata.CssFile,
		}
	}

	// Mark the navigation item matching the current page as active. The
	// listing and feed handlers read ctx.Navigation at serve time, so flip
	// IsActive on a per-render copy, never on the shared slice.
	nav := ctx.Navigation
	nav.Children = make([]core.NavigationItem, len(ctx.Navigation.Children))
	copy(nav.Children, ctx.Navigation.Children)
	for i, item := range nav.Children {
		lcurl := strings.ToLower(item.Url)
		item.IsActive = slices.Contains(routes, lcurl)
		nav.Children[i] = item
	}
	vars["Navigation"] = nav

	return vars
}

// registerPost adds a rendered post file to the post index and reports
// whether the file lives below the posts directory at all.
func registerPost(ctx *core.Context, file *core.File, routes []string) bool {
	if !strings.HasPrefix(file.Path, ctx.Config.PostsPrefix()) {
		return false
	}

	if len(routes) == 0 {
		return true
	}

	// Canonical link: the explicit permalink, else the extension-less route
	permalink := file.Metadata.Permalink
	if permalink == "" {
		permalink = routes[0]
		for _, route := range routes {
			if filepath.Ext(route) == "" {
				permalink = route
				break
			}
		}
	}

	post := core.Post{
		FilePath:   file.Path,
		Permalink:  permalink,
		Title:      file.Metadata.Title,
		Author:     file.Metadata.Author,
		Summary:    file.Metadata.Summary,
		Date:       file.Metadata.Date,
		Categories: file.Metadata.Categories,
		Tags:       file.Metadata.Tags,
	}

	if err := ctx.Posts.Upsert(post); err != nil {
		core.Warn("Post %s not indexed: %v", file.Path, err)
		return true
	}

	core.SetPostsCount(int64(ctx.Posts.Len()))
	return true
}
