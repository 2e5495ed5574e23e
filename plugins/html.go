package plugins

import (
	"bytes"
	"strings"

	"github.com/adrg/frontmatter"

	"blog/core"
)

type BuiltinHtmlPlugin struct {
	Context *core.Context
}

func (p *BuiltinHtmlPlugin) Name() string {
	return "builtin/html"
}

func (p *BuiltinHtmlPlugin) Priority() int {
	return 100
}

func (p *BuiltinHtmlPlugin) CanProcess(file *core.File) bool {
	// Ignore files in the layout directory
	if strings.HasPrefix(file.Path, "layout/") {
		return false
	}
	return strings.HasSuffix(strings.ToLower(file.Name), ".html") ||
		strings.HasSuffix(strings.ToLower(file.Name), ".htm")
}

func (p *BuiltinHtmlPlugin) Process(ctx *core.PluginContext) *core.PluginResult {
	core.Debug("Processing html file: %s", ctx.File.Path)

	// A raw redirect stub needs no content at all
	if ctx.File.Metadata.RedirectUrl != "" {
		return &core.PluginResult{
			Success: true,
			Routes:  DeriveRoutes(ctx.File),
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
		core.Warn("%s: %v", ctx.File.Path, err)
	}

	if ctx.File.Metadata.Draft && !p.Context.Config.Blog.PublishDrafts {
		core.Debug("Skipping draft: %s", ctx.File.Path)
		return &core.PluginResult{Success: true}
	}

	var result core.PluginResult
	result.Routes = DeriveRoutes(ctx.File)

	// Build the map with the template variables
	vars := BuildTemplateVars(p.Context, ctx.File, result.Routes)

	body, err := ApplyTemplate(content, ctx.File, vars)
	if err != nil {
		core.Error("%v", err)
		return &core.PluginResult{
			Success: false,
			Error:   core.NewPluginError(p.Name(), ctx.File.Path, err),
		}
	}

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

	registerPost(p.Context, ctx.File, result.Routes)

	core.RecordPageRendered()

	result.Success = true
	result.Modified = true
	result.NewContent = body
	result.MimeType = "text/html; charset=utf-8"
	return &result
}
