package core

import (
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-yaml"
)

type Navigation struct {
	FilePath string
	Children []NavigationItem `yaml:"main"`
}

type NavigationItem struct {
	Url      string           `yaml:"url"`
	Label    string           `yaml:"label"`
	Children []NavigationItem `yaml:"children,omitempty"`
	IsActive bool             // helper field for templating
}

func ReadNavigationYaml(path string) (Navigation, error) {
	var navigation Navigation
	navigation.FilePath = path

	// Read the file
	data, err := os.ReadFile(path)
	if err != nil {
		return Navigation{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	// Parse the YAML file
	if err := yaml.Unmarshal(data, &navigation); err != nil {
		return Navigation{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	// We need at least one main navigation item
	if len(navigation.Children) == 0 {
		return Navigation{}, fmt.Errorf("no main navigation items found in %s", path)
	}

	// Enforce absolute urls and non-empty labels
	for _, item := range navigation.Children {
		if !strings.HasPrefix(item.Url, "/") {
			return Navigation{}, fmt.Errorf("expected absolute url for navigation item %q", item.Label)
		}
		if item.Label == "" {
			return Navigation{}, fmt.Errorf("navigation item %s has no label", item.Url)
		}
	}

	return navigation, nil
}

// InitializeNavigation loads the navigation tree for the site.
func InitializeNavigation(ctx *Context) (Navigation, error) {
	path := ctx.Config.SiteDirectory + "/config/navigation.yaml"
	return ReadNavigationYaml(path)
}
