package core

import (
	"errors"
	"fmt"
)

// Sentinel errors, matched with errors.Is at the call sites.
var (
	ErrFileNotFound      = errors.New("file not found")
	ErrDirectoryNotFound = errors.New("directory not found")

	ErrInvalidFrontMatter = errors.New("invalid front matter")
	ErrInvalidPermalink   = errors.New("invalid permalink")
	ErrDuplicatePermalink = errors.New("duplicate permalink")

	ErrRouteNotFound = errors.New("route not found")
	ErrRouteExists   = errors.New("route already exists")

	ErrWatcherRunning    = errors.New("file watcher already running")
	ErrWatcherNotRunning = errors.New("file watcher not running")
)

// FileManagerError annotates a file tree operation with the path it failed on.
type FileManagerError struct {
	Op   string
	Path string
	Err  error
}

func (e *FileManagerError) Error() string {
	return fmt.Sprintf("filemanager %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FileManagerError) Unwrap() error { return e.Err }

func NewFileManagerError(op, path string, err error) *FileManagerError {
	return &FileManagerError{Op: op, Path: path, Err: err}
}

// PluginError records which plugin failed on which file, so a broken post
// shows up in the log with the renderer that rejected it.
type PluginError struct {
	Plugin string
	File   string
	Err    error
}

func (e *PluginError) Error() string {
	return fmt.Sprintf("plugin %s processing file %s: %v", e.Plugin, e.File, e.Err)
}

func (e *PluginError) Unwrap() error { return e.Err }

func NewPluginError(plugin, file string, err error) *PluginError {
	return &PluginError{Plugin: plugin, File: file, Err: err}
}

// RouterError annotates a route table operation with the route it failed on.
type RouterError struct {
	Op    string
	Route string
	Err   error
}

func (e *RouterError) Error() string {
	return fmt.Sprintf("router %s %s: %v", e.Op, e.Route, e.Err)
}

func (e *RouterError) Unwrap() error { return e.Err }

func NewRouterError(op, route string, err error) *RouterError {
	return &RouterError{Op: op, Route: route, Err: err}
}
