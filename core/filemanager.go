package core

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// File is one source file of the site: a page, a post, a layout or an
// asset. Rendered output is cached in Content; the dependency links drive
// cache invalidation, so editing a layout re-renders every page that was
// built with it.
type File struct {
	Name    string
	Path    string   // relative to Config.SiteDirectory
	Routes  []string // routes this file answers on
	Content []byte   // rendered output, nil until a plugin ran
	Parent  *Directory

	// Dependencies: files this file was rendered with (its layout)
	Dependencies map[string]*File

	// Dependents: files rendered with this one (pages using this layout)
	Dependents map[string]*File

	// Parsed front matter
	Metadata PageMetadata
}

// IsContent reports whether the file lives under the content directory and
// can therefore claim routes.
func (f *File) IsContent() bool {
	return strings.HasPrefix(f.Path, "content/")
}

// Directory is one node of the in-memory site tree.
type Directory struct {
	Name    string
	Path    string
	Parent  *Directory // nil for the root
	Subdirs map[string]*Directory
	Files   map[string]*File

	Metadata DirectoryMetadata
}

// FileManager holds the site tree plus a flat path index over it. All pages
// are served from this cache; the disk is only read when a file needs
// (re-)rendering.
type FileManager struct {
	mu            sync.RWMutex
	root          *Directory
	Files         map[string]*File // flat lookup by relative path
	SiteDirectory string
	pluginManager *PluginManager
}

func NewFileManager(siteDirectory string) *FileManager {
	root := &Directory{
		Subdirs: make(map[string]*Directory),
		Files:   make(map[string]*File),
	}

	return &FileManager{
		root:          root,
		Files:         make(map[string]*File),
		pluginManager: NewPluginManager(),
		SiteDirectory: siteDirectory,
	}
}

// NeedsUpdate reports whether the file has to go through the plugins again.
func (f *File) NeedsUpdate() bool {
	return f.Content == nil
}

// ReadFile loads the raw source from disk, or nil if it cannot be read.
func (f *File) ReadFile(siteDirectory string) []byte {
	path := filepath.Join(siteDirectory, f.Path)
	body, err := os.ReadFile(path)
	if err != nil {
		Warn("Failed to read %s: %v", path, err)
		return nil
	}
	return body
}

// AddDependency links this file to one it was rendered with.
func (f *File) AddDependency(other *File) {
	f.Dependencies[other.Path] = other
	other.Dependents[f.Path] = f
}

// MarkForUpdate invalidates this file and everything rendered from it.
func (f *File) MarkForUpdate() {
	visited := make(map[string]bool)
	f.markForUpdateRecursive(visited)
}

// The visited set guards against dependency cycles.
func (f *File) markForUpdateRecursive(visited map[string]bool) {
	if visited[f.Path] {
		return
	}
	visited[f.Path] = true

	f.Content = nil

	for _, dep := range f.Dependents {
		dep.markForUpdateRecursive(visited)
	}
}

func (fm *FileManager) GetPluginManager() *PluginManager {
	return fm.pluginManager
}

// processAndStore runs a file through the plugins and swaps the rendered
// result into the index. Plugin code may be slow (markdown rendering,
// search indexing), so it runs outside the lock on a copy.
func (fm *FileManager) processAndStore(path string, file *File) {
	timer := NewFileProcessingTimer()
	rendered := fm.pluginManager.Process(*file, fm)
	timer.ObserveDuration()
	RecordFileOperation()

	fm.mu.Lock()
	fm.Files[path] = rendered
	fm.mu.Unlock()
}

// ProcessAllFiles renders every file. Called once at startup after the
// site directories have been walked.
func (fm *FileManager) ProcessAllFiles() {
	fm.mu.RLock()
	files := make(map[string]*File, len(fm.Files))
	maps.Copy(files, fm.Files)
	fm.mu.RUnlock()

	for path, file := range files {
		fm.processAndStore(path, file)
	}
}

// ProcessUpdatedFiles re-renders only the files invalidated since the last
// pass, typically after the watcher reported an edit.
func (fm *FileManager) ProcessUpdatedFiles() {
	type upd struct {
		path string
		file *File
	}
	var toUpdate []upd

	fm.mu.RLock()
	for path, file := range fm.Files {
		if file.NeedsUpdate() {
			toUpdate = append(toUpdate, upd{path: path, file: file})
		}
	}
	fm.mu.RUnlock()

	for _, u := range toUpdate {
		fm.processAndStore(u.path, u.file)
	}
}

func (fm *FileManager) GetRoot() *Directory {
	fm.mu.RLock()
	defer fm.mu.RUnlock()
	return fm.root
}

func (fm *FileManager) findDirectoryRecursive(dir *Directory, path []string) *Directory {
	if dir == nil {
		return nil
	}
	if len(path) == 0 || (len(path) == 1 && path[0] == "" || path[0] == ".") {
		return dir
	}

	return fm.findDirectoryRecursive(dir.Subdirs[path[0]], path[1:])
}

// findDirectory resolves a relative path to its tree node, or nil if no
// such directory exists. The caller must hold the lock.
func (fm *FileManager) findDirectory(path string) *Directory {
	if path == "" || path == "." {
		return fm.root
	}

	parts := strings.Split(filepath.Clean(path), string(filepath.Separator))
	return fm.findDirectoryRecursive(fm.root.Subdirs[parts[0]], parts[1:])
}

// createDirectory creates a directory node and all missing parents. The
// caller must hold the lock.
func (fm *FileManager) createDirectory(path string) *Directory {
	if path == "" || path == "." {
		return fm.root
	}

	parts := strings.Split(filepath.Clean(path), string(filepath.Separator))

	current := fm.root
	currentPath := ""

	for _, part := range parts {
		if part == "" || part == "." {
			continue
		}

		if currentPath == "" {
			currentPath = part
		} else {
			currentPath = filepath.Join(currentPath, part)
		}

		subdir, exists := current.Subdirs[part]
		if !exists {
			subdir = &Directory{
				Name:    part,
				Path:    currentPath,
				Parent:  current,
				Subdirs: make(map[string]*Directory),
				Files:   make(map[string]*File),
			}
			current.Subdirs[part] = subdir
		}
		current = subdir
	}

	return current
}

// WalkDirectory reads a directory tree below the site root into the index.
// Hidden files and editor leftovers are skipped, like the watcher skips
// them at runtime.
func (fm *FileManager) WalkDirectory(rootPath string) error {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	absRootPath := filepath.Join(fm.SiteDirectory, rootPath)
	return filepath.Walk(absRootPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if IgnoreFile(info.Name(), info) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		relPath, err := filepath.Rel(fm.SiteDirectory, path)
		if err != nil {
			return err
		}

		if info.IsDir() {
			fm.createDirectory(relPath)
			return nil
		}

		parentDir := fm.createDirectory(filepath.Dir(relPath))

		fileName := filepath.Base(relPath)
		file := &File{
			Name:         fileName,
			Path:         relPath,
			Parent:       parentDir,
			Dependencies: make(map[string]*File),
			Dependents:   make(map[string]*File),
		}

		fm.Files[relPath] = file
		parentDir.Files[fileName] = file
		return nil
	})
}

// RemoveDirectory drops all files and directories below the given path.
func (fm *FileManager) RemoveDirectory(rootPath string) {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	rootPath = filepath.Clean(rootPath)

	for path, file := range fm.Files {
		if !strings.HasPrefix(path, rootPath) {
			continue
		}

		if parentDir := file.Parent; parentDir != nil {
			delete(parentDir.Files, file.Name)
		}

		// Unlink from the dependency graph
		for _, f := range fm.Files {
			delete(f.Dependencies, path)
			delete(f.Dependents, path)
		}

		delete(fm.Files, path)
	}

	if dir := fm.findDirectory(rootPath); dir != nil {
		if parent := dir.Parent; parent != nil {
			delete(parent.Subdirs, dir.Name)
		}
	}
}

// AddFile adds a file to the index, or marks an existing one for
// re-rendering. The parent directory must already exist in the tree.
func (fm *FileManager) AddFile(path string) *File {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	cleanPath := filepath.Clean(path)
	fileName := filepath.Base(cleanPath)
	dirPath := filepath.Dir(cleanPath)

	var parentDir *Directory
	if dirPath == "." || dirPath == "" {
		parentDir = fm.root
	} else {
		parentDir = fm.findDirectory(dirPath)
		if parentDir == nil {
			// This shouldn't happen if WalkDirectory was used properly
			panic(fmt.Sprintf("parent directory %s does not exist for file %s", dirPath, cleanPath))
		}
	}

	file, exists := fm.Files[cleanPath]
	if !exists {
		file = &File{
			Name:         fileName,
			Path:         cleanPath,
			Parent:       parentDir,
			Dependencies: make(map[string]*File),
			Dependents:   make(map[string]*File),
		}
		fm.Files[cleanPath] = file
		parentDir.Files[fileName] = file
	}

	file.MarkForUpdate()
	return file
}

// RemoveFile drops a file from the index and invalidates everything that
// was rendered from it. Removing an unknown file is a no-op.
func (fm *FileManager) RemoveFile(path string) error {
	file := fm.GetFile(path)
	if file == nil {
		return nil
	}

	fm.mu.Lock()
	defer fm.mu.Unlock()

	cleanPath := filepath.Clean(path)
	fileName := filepath.Base(cleanPath)
	dirPath := filepath.Dir(cleanPath)

	var parentDir *Directory
	if dirPath == "." || dirPath == "" {
		parentDir = fm.root
	} else {
		parentDir = fm.findDirectory(dirPath)
		if parentDir == nil {
			return NewFileManagerError("remove", cleanPath,
				fmt.Errorf("%w: %s", ErrDirectoryNotFound, dirPath))
		}
	}

	if _, exists := fm.Files[cleanPath]; exists {
		delete(fm.Files, cleanPath)
		delete(parentDir.Files, fileName)
	}

	// Pages rendered with this file have to render without it now
	file.MarkForUpdate()
	for _, f := range fm.Files {
		delete(f.Dependencies, cleanPath)
		delete(f.Dependents, cleanPath)
	}

	return nil
}

func (fm *FileManager) GetFile(path string) *File {
	fm.mu.RLock()
	defer fm.mu.RUnlock()

	return fm.Files[filepath.Clean(path)]
}

func (fm *FileManager) GetDirectory(path string) *Directory {
	fm.mu.RLock()
	defer fm.mu.RUnlock()

	return fm.findDirectory(path)
}

// GetAllFiles returns a copy of the path index.
func (fm *FileManager) GetAllFiles() map[string]*File {
	fm.mu.RLock()
	defer fm.mu.RUnlock()

	m := make(map[string]*File, len(fm.Files))
	maps.Copy(m, fm.Files)
	return m
}
