package core

import (
	"path/filepath"
)

type Context struct {
	Authors     Authors
	Config      Config
	Navigation  Navigation
	Posts       *PostIndex
	FileManager *FileManager
	FileWatcher *FileWatcher
}

func InitializeContext(ctx *Context) error {
	var err error

	// read site.yaml
	configFilePath := filepath.Join(ctx.Config.SiteDirectory, "config", "site.yaml")
	err = ReadConfigYaml(&ctx.Config, configFilePath)
	if err != nil {
		return err
	}

	// read authors.yaml
	authorsFilePath := filepath.Join(ctx.Config.SiteDirectory, "config", "authors.yaml")
	ctx.Authors, err = ReadAuthorsYaml(authorsFilePath)
	if err != nil {
		return err
	}

	// Build the Navigation structure
	ctx.Navigation, err = InitializeNavigation(ctx)
	if err != nil {
		return err
	}

	// Create the (empty) post index, filled while pages are rendered
	ctx.Posts = NewPostIndex()

	return nil
}
