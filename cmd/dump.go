package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v2"

	"blog/core"
)

// Dump writes the processed site to the output directory: rendered content
// per file, and with everything set, a metadata sidecar per file plus the
// serialized context for debugging.
func Dump(ctx *core.Context, everything bool) {
	ctxcopy := *ctx
	outDir := ctxcopy.Config.OutDirectory
	if err := os.Mkdir(outDir, 0755); err != nil {
		core.Fatal("Failed to create directory %s: %v", outDir, err)
	}

	for path, file := range ctxcopy.FileManager.GetAllFiles() {
		dir := filepath.Join(outDir, filepath.Dir(path))
		if err := os.MkdirAll(dir, 0755); err != nil {
			core.Fatal("Failed to mkdir %s: %v", dir, err)
		}

		outPath := filepath.Join(dir, filepath.Base(file.Path))
		if err := os.WriteFile(outPath, file.Content, 0644); err != nil {
			core.Fatal("Failed to create %s: %v", outPath, err)
		}

		if everything {
			if err := writeSidecar(outPath+".yaml", file); err != nil {
				core.Fatal("Failed to create %s: %v", outPath+".yaml", err)
			}
		}
	}

	if everything {
		dumpContext(outDir, &ctxcopy)
	}
}

// writeSidecar stores the resolved front matter next to the dumped content.
func writeSidecar(outPath string, file *core.File) error {
	var b strings.Builder

	fmt.Fprintf(&b, "path: %s\n", file.Path)
	fmt.Fprintf(&b, "routes: [%s]\n", strings.Join(file.Routes, ", "))

	meta, err := yaml.Marshal(&file.Metadata)
	if err != nil {
		return err
	}
	b.Write(meta)

	if file.Parent != nil {
		fmt.Fprintf(&b, "directory-title: %s\n", file.Parent.Metadata.Title)
		fmt.Fprintf(&b, "directory-cssfile: %s\n", file.Parent.Metadata.CssFile)
	}

	return os.WriteFile(outPath, []byte(b.String()), 0644)
}

// dumpContext serializes the site context. The file tree has circular
// references which break the JSON serializer, so those fields are cleared
// on the copy first.
func dumpContext(outDir string, ctxcopy *core.Context) {
	ctxcopy.FileWatcher = nil
	for _, file := range ctxcopy.FileManager.GetAllFiles() {
		file.Parent = nil
		file.Dependencies = nil
		file.Dependents = nil
		file.Content = nil
	}

	contextJson, err := json.MarshalIndent(ctxcopy, "", "  ")
	if err != nil {
		core.Fatal("Failed to marshal context: %v", err)
	}

	outPath := filepath.Join(outDir, "context.json")
	if err := os.WriteFile(outPath, contextJson, 0644); err != nil {
		core.Fatal("Failed to write %s: %v", outPath, err)
	}
}
