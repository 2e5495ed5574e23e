package main

import (
	"fmt"
	"log"

	"blog/cmd"
	"blog/core"
	"blog/plugins"
)

func initializeAndRunPlugins(ctx *core.Context) error {
	fm := ctx.FileManager
	pm := fm.GetPluginManager()
	pm.RegisterPlugin(&plugins.BuiltinHtmlPlugin{Context: ctx})
	pm.RegisterPlugin(&plugins.BuiltinTextPlugin{})
	pm.RegisterPlugin(plugins.NewMarkdownPlugin(ctx))

	if params, exists := ctx.Config.Plugins["builtin/search"]; exists {
		pm.RegisterPlugin(plugins.NewSearchPlugin(params))
	}

	core.SetPluginsCount(int64(len(pm.ListPlugins())))

	// Print all plugins including their priority
	fmt.Println("Plugins:")
	for _, plugin := range pm.ListPlugins() {
		fmt.Printf(" - %s\n", plugin)
	}

	// Then invoke all plugins on the files
	fm.ProcessAllFiles()

	return nil
}

func initializeFileManager(ctx *core.Context) error {
	fm := core.NewFileManager(ctx.Config.SiteDirectory)

	// Load the entire "content" directory structure
	err := fm.WalkDirectory("content")
	if err != nil {
		return err
	}

	// ... and the layout directory; pages depend on their layouts
	err = fm.WalkDirectory("layout")
	if err != nil {
		return err
	}

	ctx.FileManager = fm
	return nil
}

func main() {
	var err error
	var ctx core.Context

	// parse command line arguments
	ctx.Config, err = core.ParseCommandLineArguments()
	if err != nil {
		return
	}

	// If requested, print the version and leave
	if ctx.Config.Mode == "version" {
		cmd.Version()
		return
	}

	// Now read all yaml files and the file tree
	err = core.InitializeContext(&ctx)
	if err != nil {
		log.Fatalf("Failed to initialize context: %v", err)
	}

	// Initialize the cached file system
	err = initializeFileManager(&ctx)
	if err != nil {
		log.Fatalf("Failed to initialize lookup index: %v", err)
	}

	// Initialize and run all builtin plugins
	err = initializeAndRunPlugins(&ctx)
	if err != nil {
		log.Fatalf("Failed to initialize plugin manager: %v", err)
	}

	switch ctx.Config.Mode {
	case "check":
		// Render the whole site without serving it, then report every
		// broken link, missing asset and invalid front matter block
		cmd.Check(&ctx)

	case "dump":
		// Dump the rendered site and the file tree to a directory. This
		// is used for testing (the directory can then be compared to a
		// "golden" set of files, and any deviation is a bug)
		cmd.Dump(&ctx, true)

	default:
		cmd.Run(&ctx)
	}
}
