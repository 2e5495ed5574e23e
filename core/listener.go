package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileEventHandler reacts to typed watcher events.
type FileEventHandler interface {
	HandleFileCreated(event FileWatchEvent) error
	HandleFileModified(event FileWatchEvent) error
	HandleFileDeleted(event FileWatchEvent) error
	HandleDirectoryCreated(event FileWatchEvent) error
	HandleDirectoryDeleted(event FileWatchEvent) error
}

// FileWatcherListener consumes watcher events and keeps the file tree, the
// post index and the route table in step with the disk. This is what makes
// saving a post show up on the site without a restart.
type FileWatcherListener struct {
	mu      sync.RWMutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	fw      *FileWatcher
	site    *Context // for post index cleanup; may be nil
}

var _ FileEventHandler = (*FileWatcherListener)(nil)

// affectsRoutes reports whether a path can appear in the route table.
// Layouts and assets re-render or re-serve pages but never change routes.
func (fwl *FileWatcherListener) affectsRoutes(path string) bool {
	return strings.HasPrefix(path, "content/")
}

// RegisterFileWatcherListener wires a listener to the file watcher and
// starts it. The site context keeps the post index in sync; it may be nil
// in tests.
func RegisterFileWatcherListener(fw *FileWatcher, site *Context) (*FileWatcherListener, error) {
	fwl := newFileWatcherListener(fw, site)

	if err := fwl.Start(fw); err != nil {
		return nil, fmt.Errorf("failed to start file watcher listener: %w", err)
	}

	return fwl, nil
}

func newFileWatcherListener(fw *FileWatcher, site *Context) *FileWatcherListener {
	ctx, cancel := context.WithCancel(context.Background())

	return &FileWatcherListener{
		ctx:    ctx,
		fw:     fw,
		site:   site,
		cancel: cancel,
	}
}

// Start subscribes to the watcher's event channel.
func (fwl *FileWatcherListener) Start(fw *FileWatcher) error {
	if fw == nil {
		return fmt.Errorf("file watcher cannot be nil")
	}

	fwl.mu.Lock()
	defer fwl.mu.Unlock()

	if fwl.running {
		return fmt.Errorf("listener is already running")
	}
	fwl.running = true

	fwl.wg.Add(1)
	go fwl.processEvents(fw.GetEventChannel())

	Info("Started listening to file watcher events")
	return nil
}

// Stop shuts the listener down and drains its goroutine.
func (fwl *FileWatcherListener) Stop() error {
	fwl.mu.Lock()
	defer fwl.mu.Unlock()

	if !fwl.running {
		return fmt.Errorf("listener is not running")
	}
	fwl.running = false

	fwl.cancel()
	fwl.wg.Wait()

	Info("Stopped listening to file watcher events")
	return nil
}

func (fwl *FileWatcherListener) IsRunning() bool {
	fwl.mu.RLock()
	defer fwl.mu.RUnlock()
	return fwl.running
}

// processEvents dispatches watcher events until the channel closes or the
// listener stops. Handler errors are logged, never fatal: one broken file
// must not stop the site from picking up the next change.
func (fwl *FileWatcherListener) processEvents(eventChan <-chan FileWatchEvent) {
	defer fwl.wg.Done()

	for {
		select {
		case <-fwl.ctx.Done():
			return

		case event, ok := <-eventChan:
			if !ok {
				return
			}

			RecordFileWatcherEvent()

			var err error
			switch event.Type {
			case FileCreated:
				err = fwl.HandleFileCreated(event)
			case FileModified:
				err = fwl.HandleFileModified(event)
			case FileDeleted:
				err = fwl.HandleFileDeleted(event)
			case FileRenamed:
				// The old name is gone; the new name arrives as its own
				// Create event
				err = fwl.HandleFileDeleted(event)
			case DirCreated:
				err = fwl.HandleDirectoryCreated(event)
			case DirDeleted:
				err = fwl.HandleDirectoryDeleted(event)
			}

			if err != nil {
				Error("Error handling %s for %s: %v", event.Type, event.Path, err)
			}
		}
	}
}

// HandleFileModified re-reads an edited file and re-renders everything it
// invalidated. An edited layout marks its dependent pages for re-rendering
// through the dependency graph.
func (fwl *FileWatcherListener) HandleFileModified(event FileWatchEvent) error {
	Debug("File modified: %s", event.Path)

	file := fwl.fw.fm.AddFile(event.Path)
	if file == nil {
		return fmt.Errorf("failed to add modified file to FileManager: %s", event.Path)
	}

	fwl.fw.fm.ProcessUpdatedFiles()
	return nil
}

// HandleFileCreated picks up a new file, renders it and, for content,
// registers its routes. A single file never needs a full router rebuild.
func (fwl *FileWatcherListener) HandleFileCreated(event FileWatchEvent) error {
	Debug("File created: %s", event.Path)

	absolutePath := filepath.Join(fwl.fw.rootPath, event.Path)
	if _, err := os.Stat(absolutePath); os.IsNotExist(err) {
		return fmt.Errorf("file creation event for non-existent file: %s", event.Path)
	} else if err != nil {
		return fmt.Errorf("failed to stat file %s: %v", event.Path, err)
	}

	// The parent directory may be new as well
	dirPath := filepath.Dir(event.Path)
	if dirPath != "." && dirPath != "" {
		if err := fwl.fw.fm.WalkDirectory(dirPath); err != nil {
			Warn("Failed to walk directory %s: %v", dirPath, err)
		}
	}

	file := fwl.fw.fm.AddFile(event.Path)
	if file == nil {
		return fmt.Errorf("failed to add created file to FileManager: %s", event.Path)
	}

	processedFile := fwl.fw.fm.GetPluginManager().Process(*file, fwl.fw.fm)
	if processedFile == nil {
		Warn("Plugin processing returned nil for file: %s", event.Path)
		processedFile = file
	}

	if fwl.affectsRoutes(processedFile.Path) {
		fwl.fw.rm.AddFile(processedFile)
	}

	return nil
}

// HandleFileDeleted forgets a file everywhere: search index, post index,
// file tree and route table, then re-renders the pages that referenced it.
func (fwl *FileWatcherListener) HandleFileDeleted(event FileWatchEvent) error {
	path := event.Path
	Debug("File deleted: %s", path)

	fwl.fw.fm.GetPluginManager().NotifyFileRemoved(path)

	if fwl.site != nil && fwl.site.Posts != nil {
		fwl.site.Posts.Remove(path)
		SetPostsCount(int64(fwl.site.Posts.Len()))
	}

	if err := fwl.fw.fm.RemoveFile(path); err != nil {
		Warn("Failed to remove %s from file manager: %v", path, err)
	}

	if fwl.affectsRoutes(path) {
		if err := fwl.fw.rm.RemoveFile(path); err != nil {
			// The file might never have had routes
			Warn("Failed to remove file from router: %s: %v", path, err)
		}
	}

	fwl.fw.fm.ProcessUpdatedFiles()
	return nil
}

// HandleDirectoryCreated watches and walks a new directory, then rebuilds
// the router if the directory can hold content.
func (fwl *FileWatcherListener) HandleDirectoryCreated(event FileWatchEvent) error {
	Debug("Directory created: %s", event.Path)

	absolutePath := filepath.Join(fwl.fw.rootPath, event.Path)
	if err := fwl.fw.addDirectoryWatch(absolutePath); err != nil {
		return fmt.Errorf("failed to watch new directory %s: %v", absolutePath, err)
	}

	if err := fwl.fw.fm.WalkDirectory(event.Path); err != nil {
		return fmt.Errorf("failed to walk new directory %s: %v", event.Path, err)
	}

	fwl.fw.fm.ProcessUpdatedFiles()

	if fwl.affectsRoutes(event.Path) {
		if err := fwl.fw.rm.RebuildRouter(); err != nil {
			return fmt.Errorf("failed to rebuild router after directory creation %s: %v", event.Path, err)
		}
	}

	return nil
}

// HandleDirectoryDeleted drops a whole subtree: its watch, its posts and
// search entries, its files and its routes.
func (fwl *FileWatcherListener) HandleDirectoryDeleted(event FileWatchEvent) error {
	Debug("Directory deleted: %s", event.Path)

	fwl.fw.removeDirectoryWatch(event.Path)

	prefix := event.Path + "/"
	if fwl.site != nil && fwl.site.Posts != nil {
		for _, post := range fwl.site.Posts.All() {
			if strings.HasPrefix(post.FilePath, prefix) {
				fwl.fw.fm.GetPluginManager().NotifyFileRemoved(post.FilePath)
				fwl.site.Posts.Remove(post.FilePath)
			}
		}
		SetPostsCount(int64(fwl.site.Posts.Len()))
	}

	fwl.fw.fm.RemoveDirectory(event.Path)
	fwl.fw.fm.ProcessUpdatedFiles()

	if fwl.affectsRoutes(event.Path) {
		if err := fwl.fw.rm.RebuildRouter(); err != nil {
			return fmt.Errorf("failed to rebuild router after directory deletion %s: %v", event.Path, err)
		}
	}

	return nil
}
