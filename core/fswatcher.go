package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// RouterInterface is what the watcher needs from the RouterManager: route
// registration follows file lifecycle, nothing more.
type RouterInterface interface {
	AddFile(file *File)
	RemoveFile(filePath string) error
	RebuildRouter() error
}

// FileWatcher observes the site directory so that saving a post or editing
// a layout takes effect without a restart. Raw fsnotify events are
// translated into typed FileWatchEvents and pushed onto a buffered channel
// for the listener.
type FileWatcher struct {
	mu          sync.RWMutex
	rm          RouterInterface
	fm          *FileManager
	watcher     *fsnotify.Watcher
	watchedDirs map[string]bool
	rootPath    string
	running     bool
	ctx         context.Context
	cancel      context.CancelFunc
	eventChan   chan FileWatchEvent
	wg          sync.WaitGroup
}

// FileWatchEventType classifies a filesystem change.
type FileWatchEventType int

const (
	FileCreated FileWatchEventType = iota
	FileModified
	FileDeleted
	FileRenamed
	DirCreated
	DirDeleted
)

var eventTypeNames = [...]string{
	"FileCreated", "FileModified", "FileDeleted",
	"FileRenamed", "DirCreated", "DirDeleted",
}

func (t FileWatchEventType) String() string {
	if t < FileCreated || t > DirDeleted {
		return "Unknown"
	}
	return eventTypeNames[t]
}

// FileWatchEvent is one observed change, with the path relative to the
// site directory.
type FileWatchEvent struct {
	Type    FileWatchEventType
	Path    string
	OldPath string // For rename events
	IsDir   bool
	Time    time.Time
}

func NewFileWatcher(fm *FileManager) (*FileWatcher, error) {
	if fm == nil {
		return nil, fmt.Errorf("file manager cannot be nil")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &FileWatcher{
		fm:          fm,
		watcher:     watcher,
		watchedDirs: make(map[string]bool),
		ctx:         ctx,
		cancel:      cancel,
		eventChan:   make(chan FileWatchEvent, 100),
	}, nil
}

// SetRouter wires the route table that follows file changes.
func (fw *FileWatcher) SetRouter(rm RouterInterface) {
	fw.rm = rm
}

// tempSuffixes are leftovers editors drop next to the file being written.
var tempSuffixes = []string{".bak", ".tmp", "~", ".swp", ".lock"}

// IgnoreFile reports whether a path is not site content: hidden files,
// symlinks and editor temp files never belong to the rendered site.
func IgnoreFile(path string, info os.FileInfo) bool {
	if info == nil {
		return true
	}

	baseName := filepath.Base(path)

	if strings.HasPrefix(baseName, ".") {
		return true
	}

	if info.Mode()&os.ModeSymlink != 0 {
		return true
	}

	for _, suffix := range tempSuffixes {
		if strings.HasSuffix(baseName, suffix) {
			return true
		}
	}

	return false
}

func (fw *FileWatcher) getRelativePath(absPath string) (string, error) {
	if fw.rootPath == "" {
		return "", fmt.Errorf("root path not set")
	}
	return filepath.Rel(fw.rootPath, absPath)
}

// addDirectoryWatch registers a directory tree with fsnotify, which only
// watches single directories. Failures on individual subdirectories are
// logged and skipped so one unreadable directory does not take down the
// whole watch.
func (fw *FileWatcher) addDirectoryWatch(dirPath string) error {
	return filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			Warn("Error walking path %s: %v", path, err)
			return nil
		}

		if !info.IsDir() || IgnoreFile(path, info) {
			return nil
		}

		if err := fw.watcher.Add(path); err != nil {
			Warn("Failed to watch directory %s: %v", path, err)
			return nil
		}

		fw.mu.Lock()
		fw.watchedDirs[path] = true
		fw.mu.Unlock()

		Debug("Watching directory: %s", path)
		return nil
	})
}

// removeDirectoryWatch drops a directory and everything below it.
func (fw *FileWatcher) removeDirectoryWatch(dirPath string) {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	for watchedDir := range fw.watchedDirs {
		if strings.HasPrefix(watchedDir, dirPath) {
			if err := fw.watcher.Remove(watchedDir); err != nil {
				Warn("Failed to remove watcher for %s: %v", watchedDir, err)
			}
			delete(fw.watchedDirs, watchedDir)
			Debug("Stopped watching directory: %s", watchedDir)
		}
	}
}

// Start begins watching the site directory tree.
func (fw *FileWatcher) Start(rootPath string) error {
	if rootPath == "" {
		return fmt.Errorf("root path cannot be empty")
	}

	if info, err := os.Stat(rootPath); err != nil {
		return fmt.Errorf("failed to access root path %s: %w", rootPath, err)
	} else if !info.IsDir() {
		return fmt.Errorf("root path %s is not a directory", rootPath)
	}

	fw.mu.Lock()
	if fw.running {
		fw.mu.Unlock()
		return ErrWatcherRunning
	}
	fw.running = true
	fw.rootPath = rootPath
	fw.mu.Unlock()

	if err := fw.addDirectoryWatch(rootPath); err != nil {
		fw.mu.Lock()
		fw.running = false
		fw.mu.Unlock()
		return fmt.Errorf("failed to add initial directory watches: %w", err)
	}

	fw.wg.Add(1)
	go fw.processWatcherEvents()

	Info("Watching site directory: %s", rootPath)
	return nil
}

// Stop shuts the watcher down and drains its goroutine.
func (fw *FileWatcher) Stop() error {
	fw.mu.Lock()
	if !fw.running {
		fw.mu.Unlock()
		return ErrWatcherNotRunning
	}
	fw.running = false
	fw.mu.Unlock()

	fw.cancel()

	err := fw.watcher.Close()

	fw.wg.Wait()
	close(fw.eventChan)

	Info("File watcher stopped")
	return err
}

func (fw *FileWatcher) processWatcherEvents() {
	defer fw.wg.Done()

	for {
		select {
		case <-fw.ctx.Done():
			return
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}

			switch {
			case event.Op&fsnotify.Write == fsnotify.Write:
				fw.handleFileModified(event.Name)
			case event.Op&fsnotify.Create == fsnotify.Create:
				fw.handleFileCreated(event.Name)
			case event.Op&fsnotify.Remove == fsnotify.Remove:
				fw.handleFileDeleted(event.Name)
			case event.Op&fsnotify.Rename == fsnotify.Rename:
				// A rename leaves the old name dangling; the new name
				// arrives as its own Create event
				fw.handleFileDeleted(event.Name)
			}

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			Error("File watcher error: %v", err)
		}
	}
}

func (fw *FileWatcher) handleFileModified(path string) {
	info, err := os.Stat(path)
	if err != nil {
		// The file may be gone again by the time the event arrives
		Debug("Failed to stat modified file %s: %v", path, err)
		return
	}

	if IgnoreFile(path, info) || info.IsDir() {
		return
	}

	relPath, err := fw.getRelativePath(path)
	if err != nil {
		Warn("Failed to get relative path for %s: %v", path, err)
		return
	}

	fw.sendEvent(FileWatchEvent{
		Type: FileModified,
		Path: relPath,
		Time: time.Now(),
	})
}

func (fw *FileWatcher) handleFileCreated(path string) {
	info, err := os.Stat(path)
	if err != nil {
		Debug("Failed to stat created file %s: %v", path, err)
		return
	}

	if IgnoreFile(path, info) {
		return
	}

	relPath, err := fw.getRelativePath(path)
	if err != nil {
		Warn("Failed to get relative path for %s: %v", path, err)
		return
	}

	eventType := FileCreated
	if info.IsDir() {
		eventType = DirCreated
	}

	fw.sendEvent(FileWatchEvent{
		Type:  eventType,
		Path:  relPath,
		IsDir: info.IsDir(),
		Time:  time.Now(),
	})
}

func (fw *FileWatcher) handleFileDeleted(path string) {
	relPath, err := fw.getRelativePath(path)
	if err != nil {
		Warn("Failed to get relative path for %s: %v", path, err)
		return
	}

	// The path is gone, so a stat cannot tell files from directories
	// anymore. If we were watching it, it was a directory.
	fw.mu.RLock()
	wasDir := fw.watchedDirs[path]
	fw.mu.RUnlock()

	eventType := FileDeleted
	if wasDir {
		eventType = DirDeleted
	}

	fw.sendEvent(FileWatchEvent{
		Type:  eventType,
		Path:  relPath,
		IsDir: wasDir,
		Time:  time.Now(),
	})
}

// sendEvent delivers without blocking; when the buffer is full the event is
// dropped and the page stays stale until the next change.
func (fw *FileWatcher) sendEvent(event FileWatchEvent) {
	select {
	case fw.eventChan <- event:
	case <-fw.ctx.Done():
		return
	default:
		Warn("Event channel full, dropping event for %s", event.Path)
	}
}

func (fw *FileWatcher) IsRunning() bool {
	fw.mu.RLock()
	defer fw.mu.RUnlock()
	return fw.running
}

// GetEventChannel exposes the event stream for subscribers.
func (fw *FileWatcher) GetEventChannel() <-chan FileWatchEvent {
	return fw.eventChan
}

// GetWatchedDirectories returns a copy of the watched directory set.
func (fw *FileWatcher) GetWatchedDirectories() []string {
	fw.mu.RLock()
	defer fw.mu.RUnlock()

	dirs := make([]string, 0, len(fw.watchedDirs))
	for dir := range fw.watchedDirs {
		dirs = append(dirs, dir)
	}
	return dirs
}
