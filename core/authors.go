package core

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

type Authors struct {
	FilePath string
	Authors  []Author `yaml:"authors"`
}

type Author struct {
	Name     string `yaml:"name"`
	FullName string `yaml:"fullname"`
	Email    string `yaml:"email"`
	Url      string `yaml:"url"`
}

// Lookup returns the author with the given short name, or nil.
func (a *Authors) Lookup(name string) *Author {
	for i := range a.Authors {
		if a.Authors[i].Name == name {
			return &a.Authors[i]
		}
	}
	return nil
}

// Primary returns the first configured author. The site owner comes first
// in authors.yaml.
func (a *Authors) Primary() Author {
	if len(a.Authors) == 0 {
		return Author{}
	}
	return a.Authors[0]
}

func ReadAuthorsYaml(path string) (Authors, error) {
	var authors Authors
	authors.FilePath = path

	// Read the file
	data, err := os.ReadFile(path)
	if err != nil {
		return Authors{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	// Parse the YAML file
	if err := yaml.Unmarshal(data, &authors); err != nil {
		return Authors{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	// Check if the authors list is empty
	if len(authors.Authors) == 0 {
		return Authors{}, fmt.Errorf("no authors found in %s", path)
	}

	// Return the parsed data
	return authors, nil
}
