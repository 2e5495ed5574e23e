package core

import (
	"fmt"
	"strings"
	"time"
)

// PageMetadata is the front matter block of a content file.
type PageMetadata struct {
	Title        string    `yaml:"title"`
	Author       string    `yaml:"author"`
	Date         time.Time `yaml:"date"`
	Layout       string    `yaml:"layout"`
	Permalink    string    `yaml:"permalink"`
	Categories   []string  `yaml:"categories"`
	Tags         []string  `yaml:"tags"`
	Summary      string    `yaml:"summary"`
	Draft        bool      `yaml:"draft"`
	CssFile      string    `yaml:"css-file"`
	MimeType     string    `yaml:"mime-type"`
	RedirectUrl  string    `yaml:"redirect-url"`
	IgnoreLayout bool      `yaml:"ignore-layout"`
}

type DirectoryMetadata struct {
	Title   string `yaml:"title"`
	CssFile string `yaml:"css-file"`
}

// Validate checks the invariants a page must satisfy before it can claim
// routes. Permalinks are absolute; posts carry a title and a parseable date.
func (m *PageMetadata) Validate(isPost bool) error {
	if m.Permalink != "" && !strings.HasPrefix(m.Permalink, "/") {
		return fmt.Errorf("%w: permalink %q must start with '/'", ErrInvalidPermalink, m.Permalink)
	}

	if isPost {
		if m.Title == "" {
			return fmt.Errorf("%w: post has no title", ErrInvalidFrontMatter)
		}
		if m.Date.IsZero() {
			return fmt.Errorf("%w: post has no date (or the date is not parseable)", ErrInvalidFrontMatter)
		}
	}

	return nil
}

// LayoutPath returns the layout file for this page, relative to the site
// directory. The "layout" front matter key selects layout/<name>.html.
func (m *PageMetadata) LayoutPath() string {
	name := m.Layout
	if name == "" {
		name = "default"
	}
	return "layout/" + name + ".html"
}
