// Package lint verifies the content-integrity properties of a site: every
// internal link resolves, every referenced asset exists, front matter is
// valid and permalinks are unique, and the rendered output is well-formed
// HTML.
package lint

import (
	"bytes"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/adrg/frontmatter"
	"golang.org/x/net/html"

	"blog/core"
)

// Severity of a finding.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Finding is one reported problem in the site content.
type Finding struct {
	File     string
	Check    string
	Message  string
	Severity Severity
}

func (f Finding) String() string {
	return fmt.Sprintf("%s: [%s] %s: %s", f.Severity, f.Check, f.File, f.Message)
}

// Checker runs all content checks over a fully rendered site.
type Checker struct {
	ctx *core.Context

	// routes every page answers on, collected once per run
	routes map[string]bool
}

func NewChecker(ctx *core.Context) *Checker {
	return &Checker{ctx: ctx}
}

// Run executes all checks and returns the findings, sorted by file.
func (c *Checker) Run() []Finding {
	var findings []Finding

	c.collectRoutes()

	findings = append(findings, c.checkFrontMatter()...)
	findings = append(findings, c.checkPermalinks()...)

	for _, file := range c.ctx.FileManager.GetAllFiles() {
		if !file.IsContent() || !isHtmlOutput(file) || file.Content == nil {
			continue
		}
		findings = append(findings, c.checkLinks(file)...)
		findings = append(findings, c.checkWellFormed(file)...)
	}

	sort.Slice(findings, func(i, j int) bool {
		if findings[i].File != findings[j].File {
			return findings[i].File < findings[j].File
		}
		return findings[i].Check < findings[j].Check
	})
	return findings
}

// HasErrors reports whether any finding has error severity.
func HasErrors(findings []Finding) bool {
	for _, f := range findings {
		if f.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Report writes the findings in a line-per-finding format.
func Report(w io.Writer, findings []Finding) {
	for _, f := range findings {
		fmt.Fprintln(w, f.String())
	}
	errors := 0
	for _, f := range findings {
		if f.Severity == SeverityError {
			errors++
		}
	}
	fmt.Fprintf(w, "%d finding(s), %d error(s)\n", len(findings), errors)
}

// collectRoutes builds the set of urls the site answers on: file routes plus
// the built-in listing, feed and search endpoints.
func (c *Checker) collectRoutes() {
	c.routes = map[string]bool{
		"/posts":      true,
		"/categories": true,
	}

	// /search only answers when the search plugin is configured
	if _, enabled := c.ctx.Config.Plugins["builtin/search"]; enabled {
		c.routes["/search"] = true
	}

	if c.ctx.Config.Blog.FeedEnabled {
		c.routes["/feed.xml"] = true
		c.routes["/atom.xml"] = true
	}

	for _, name := range c.ctx.Posts.CategoryNames() {
		c.routes["/categories/"+name] = true
	}

	for _, file := range c.ctx.FileManager.GetAllFiles() {
		for _, route := range file.Routes {
			c.routes[route] = true
		}
	}
}

// checkFrontMatter re-parses the front matter of every content page and
// validates the required fields.
func (c *Checker) checkFrontMatter() []Finding {
	var findings []Finding

	for _, file := range c.ctx.FileManager.GetAllFiles() {
		if !file.IsContent() || !hasFrontMatter(file.Name) {
			continue
		}

		raw := file.ReadFile(c.ctx.Config.SiteDirectory)
		if raw == nil {
			findings = append(findings, Finding{
				File:     file.Path,
				Check:    "front-matter",
				Message:  "file is not readable",
				Severity: SeverityError,
			})
			continue
		}

		var meta core.PageMetadata
		if _, err := frontmatter.Parse(bytes.NewReader(raw), &meta); err != nil {
			findings = append(findings, Finding{
				File:     file.Path,
				Check:    "front-matter",
				Message:  fmt.Sprintf("malformed front matter: %v", err),
				Severity: SeverityError,
			})
			continue
		}

		isPost := strings.HasPrefix(file.Path, c.ctx.Config.PostsPrefix())
		if err := meta.Validate(isPost); err != nil {
			findings = append(findings, Finding{
				File:     file.Path,
				Check:    "front-matter",
				Message:  err.Error(),
				Severity: SeverityError,
			})
		}
	}

	return findings
}

// checkPermalinks reports routes claimed by more than one file.
func (c *Checker) checkPermalinks() []Finding {
	owners := make(map[string][]string)

	for _, file := range c.ctx.FileManager.GetAllFiles() {
		for _, route := range file.Routes {
			owners[route] = append(owners[route], file.Path)
		}
	}

	var findings []Finding
	for route, files := range owners {
		if len(files) < 2 {
			continue
		}
		sort.Strings(files)
		findings = append(findings, Finding{
			File:     files[1],
			Check:    "permalink",
			Message:  fmt.Sprintf("route %s already claimed by %s", route, files[0]),
			Severity: SeverityError,
		})
	}

	return findings
}

// checkLinks verifies that every internal link and asset reference in the
// rendered page resolves.
func (c *Checker) checkLinks(file *core.File) []Finding {
	var findings []Finding

	for _, ref := range extractRefs(file.Content) {
		target, ok := internalTarget(ref)
		if !ok {
			continue
		}

		if strings.HasPrefix(target, "/assets/") {
			rel := strings.TrimPrefix(target, "/")
			assetPath := filepath.Join(c.ctx.Config.SiteDirectory, rel)
			if _, err := os.Stat(assetPath); err != nil {
				findings = append(findings, Finding{
					File:     file.Path,
					Check:    "asset",
					Message:  fmt.Sprintf("referenced asset %s does not exist", target),
					Severity: SeverityError,
				})
			}
			continue
		}

		if !c.resolves(target) {
			findings = append(findings, Finding{
				File:     file.Path,
				Check:    "link",
				Message:  fmt.Sprintf("internal link %s does not resolve", target),
				Severity: SeverityError,
			})
		}
	}

	return findings
}

// resolves reports whether the site answers on this path. Category routes
// match case-insensitively, like the category handler does.
func (c *Checker) resolves(target string) bool {
	if c.routes[target] {
		return true
	}
	if strings.HasPrefix(target, "/categories/") {
		return c.routes[strings.ToLower(target)]
	}
	return false
}

// voidElements never take a closing tag.
var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"param": true, "source": true, "track": true, "wbr": true,
}

// checkWellFormed tokenizes the rendered page and reports mismatched or
// unclosed tags.
func (c *Checker) checkWellFormed(file *core.File) []Finding {
	var findings []Finding
	var stack []string

	z := html.NewTokenizer(bytes.NewReader(file.Content))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if z.Err() != io.EOF {
				findings = append(findings, Finding{
					File:     file.Path,
					Check:    "html",
					Message:  fmt.Sprintf("tokenizer error: %v", z.Err()),
					Severity: SeverityWarning,
				})
			}
			break
		}

		name, _ := z.TagName()
		tag := string(name)

		switch tt {
		case html.StartTagToken:
			if !voidElements[tag] {
				stack = append(stack, tag)
			}
		case html.EndTagToken:
			if len(stack) == 0 {
				findings = append(findings, Finding{
					File:     file.Path,
					Check:    "html",
					Message:  fmt.Sprintf("closing tag </%s> without opening tag", tag),
					Severity: SeverityWarning,
				})
				continue
			}
			top := stack[len(stack)-1]
			if top != tag {
				findings = append(findings, Finding{
					File:     file.Path,
					Check:    "html",
					Message:  fmt.Sprintf("closing tag </%s> does not match open <%s>", tag, top),
					Severity: SeverityWarning,
				})
				// Recover: pop until the matching tag if it is open at all
				for i := len(stack) - 1; i >= 0; i-- {
					if stack[i] == tag {
						stack = stack[:i]
						break
					}
				}
				continue
			}
			stack = stack[:len(stack)-1]
		}
	}

	for _, tag := range stack {
		findings = append(findings, Finding{
			File:     file.Path,
			Check:    "html",
			Message:  fmt.Sprintf("tag <%s> is never closed", tag),
			Severity: SeverityWarning,
		})
	}

	return findings
}

// extractRefs collects href/src references from the rendered html.
func extractRefs(content []byte) []string {
	var refs []string

	z := html.NewTokenizer(bytes.NewReader(content))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			return refs
		}
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}

		for {
			key, val, more := z.TagAttr()
			switch string(key) {
			case "href", "src":
				refs = append(refs, string(val))
			}
			if !more {
				break
			}
		}
	}
}

// internalTarget normalizes a reference to a site-local path. External
// urls, fragments and mailto links are skipped.
func internalTarget(ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "#") {
		return "", false
	}

	u, err := url.Parse(ref)
	if err != nil {
		return "", false
	}
	if u.Scheme != "" || u.Host != "" {
		return "", false
	}
	if !strings.HasPrefix(u.Path, "/") {
		// Relative links cannot be resolved without a page base; skip them
		return "", false
	}

	return u.Path, true
}

// hasFrontMatter reports whether this file type carries a front matter block.
func hasFrontMatter(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".md", ".markdown", ".html", ".htm":
		return true
	}
	return false
}

// isHtmlOutput reports whether the rendered output of this file is html.
func isHtmlOutput(file *core.File) bool {
	return strings.HasPrefix(file.Metadata.MimeType, "text/html")
}
