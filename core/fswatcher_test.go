package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// createWatchedSite lays out a minimal blog site directory on disk.
func createWatchedSite(t *testing.T) string {
	tempDir := t.TempDir()

	siteFiles := map[string]string{
		"content/index.md": `---
title: "Home"
---
# Welcome
`,
		"content/posts/first-post.md": `---
title: "First Post"
date: 2024-01-15T00:00:00Z
---
Hello world.
`,
		"layout/default.html": "<html><body>{{.Content}}</body></html>",
		"assets/style.css":    "body { font-family: serif; }",
	}

	for path, content := range siteFiles {
		fullPath := filepath.Join(tempDir, path)
		if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
			t.Fatalf("Failed to create directory for %s: %v", path, err)
		}
		if err := os.WriteFile(fullPath, []byte(content), 0644); err != nil {
			t.Fatalf("Failed to create file %s: %v", path, err)
		}
	}

	return tempDir
}

// collectOneEvent forwards the next watcher event, or closes after a timeout.
func collectOneEvent(fw *FileWatcher) chan FileWatchEvent {
	received := make(chan FileWatchEvent, 1)
	go func() {
		select {
		case event := <-fw.GetEventChannel():
			received <- event
		case <-time.After(5 * time.Second):
			close(received)
		}
	}()
	return received
}

func TestNewFileWatcher(t *testing.T) {
	fm := NewFileManager("/test/site")

	fw, err := NewFileWatcher(fm)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if fw == nil {
		t.Fatal("Expected file watcher but got nil")
	}

	if fw.IsRunning() {
		t.Error("File watcher should not be running initially")
	}
	if fw.eventChan == nil {
		t.Error("Event channel should be initialized")
	}
	if fw.watchedDirs == nil {
		t.Error("Watched directories map should be initialized")
	}

	if _, err := NewFileWatcher(nil); err == nil {
		t.Error("Expected error for nil file manager")
	}
}

func TestIgnoreFile(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		mode     os.FileMode
		expected bool
	}{
		{"markdown post", "content/posts/hello.md", 0644, false},
		{"layout file", "layout/default.html", 0644, false},
		{"hidden file", "content/.hidden", 0644, true},
		{"backup file", "content/posts/hello.md.bak", 0644, true},
		{"editor temp file", "content/posts/hello.md.tmp", 0644, true},
		{"vim swap file", "content/posts/.hello.md.swp", 0644, true},
		{"tilde backup", "content/posts/hello.md~", 0644, true},
		{"lock file", "content/index.md.lock", 0644, true},
		{"symlink", "content/link", os.ModeSymlink | 0644, true},
		{"nil info", "content/whatever", 0644, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var info os.FileInfo
			if tt.name != "nil info" {
				info = &mockFileInfo{name: filepath.Base(tt.path), mode: tt.mode}
			}

			result := IgnoreFile(tt.path, info)
			if result != tt.expected {
				t.Errorf("IgnoreFile(%s) = %v, expected %v", tt.path, result, tt.expected)
			}
		})
	}
}

type mockFileInfo struct {
	name string
	mode os.FileMode
}

func (mfi *mockFileInfo) Name() string       { return mfi.name }
func (mfi *mockFileInfo) Size() int64        { return 0 }
func (mfi *mockFileInfo) Mode() os.FileMode  { return mfi.mode }
func (mfi *mockFileInfo) ModTime() time.Time { return time.Now() }
func (mfi *mockFileInfo) IsDir() bool        { return mfi.mode.IsDir() }
func (mfi *mockFileInfo) Sys() any           { return nil }

func TestFileWatcherStartStop(t *testing.T) {
	siteDir := createWatchedSite(t)

	fm := NewFileManager(siteDir)
	fw, err := NewFileWatcher(fm)
	if err != nil {
		t.Fatalf("Failed to create file watcher: %v", err)
	}

	if err := fw.Start(siteDir); err != nil {
		t.Fatalf("Failed to start file watcher: %v", err)
	}
	if !fw.IsRunning() {
		t.Error("File watcher should be running after start")
	}

	// Starting twice is an error
	if err := fw.Start(siteDir); err == nil {
		t.Error("Starting already running watcher should return error")
	}

	// content/, content/posts/, layout/ and assets/ all get watched
	watchedDirs := fw.GetWatchedDirectories()
	if len(watchedDirs) < 4 {
		t.Errorf("Expected the site subtree to be watched, got %v", watchedDirs)
	}

	if err := fw.Stop(); err != nil {
		t.Errorf("Failed to stop file watcher: %v", err)
	}
	if fw.IsRunning() {
		t.Error("File watcher should not be running after stop")
	}

	// Stopping twice is an error too
	if err := fw.Stop(); err == nil {
		t.Error("Stopping already stopped watcher should return error")
	}
}

func TestFileWatcherInvalidStartPaths(t *testing.T) {
	fm := NewFileManager("/test/site")
	fw, err := NewFileWatcher(fm)
	if err != nil {
		t.Fatalf("Failed to create file watcher: %v", err)
	}

	tests := []struct {
		name string
		path string
	}{
		{"empty path", ""},
		{"non-existent path", "/non/existent/site"},
		{"file instead of directory", "/etc/passwd"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := fw.Start(tt.path); err == nil {
				t.Errorf("Starting with %s should return error", tt.name)
				fw.Stop()
			}
		})
	}
}

func TestFileModificationHandling(t *testing.T) {
	siteDir := createWatchedSite(t)

	fm := NewFileManager(siteDir)
	fw, err := NewFileWatcher(fm)
	if err != nil {
		t.Fatalf("Failed to create file watcher: %v", err)
	}

	if err := fw.Start(siteDir); err != nil {
		t.Fatalf("Failed to start file watcher: %v", err)
	}
	defer fw.Stop()

	received := collectOneEvent(fw)

	// Edit the post, as saving it from an editor would
	postPath := filepath.Join(siteDir, "content", "posts", "first-post.md")
	time.Sleep(100 * time.Millisecond)

	updated := `---
title: "First Post"
date: 2024-01-15T00:00:00Z
---
Hello world, revised.
`
	if err := os.WriteFile(postPath, []byte(updated), 0644); err != nil {
		t.Fatalf("Failed to modify post: %v", err)
	}

	select {
	case event, ok := <-received:
		if !ok {
			t.Fatal("Timeout waiting for file modification event")
		}
		if event.Type != FileModified {
			t.Errorf("Expected FileModified event, got %v", event.Type)
		}
		if !strings.HasSuffix(event.Path, filepath.Join("posts", "first-post.md")) {
			t.Errorf("Expected the post path, got %s", event.Path)
		}
		if event.IsDir {
			t.Error("File modification event should not be marked as directory")
		}
	case <-time.After(2 * time.Second):
		t.Error("Timeout waiting for file modification event")
	}
}

func TestFileCreationHandling(t *testing.T) {
	siteDir := createWatchedSite(t)

	fm := NewFileManager(siteDir)
	fw, err := NewFileWatcher(fm)
	if err != nil {
		t.Fatalf("Failed to create file watcher: %v", err)
	}

	if err := fw.Start(siteDir); err != nil {
		t.Fatalf("Failed to start file watcher: %v", err)
	}
	defer fw.Stop()

	received := collectOneEvent(fw)

	// Drop a new post into the posts directory
	newPost := filepath.Join(siteDir, "content", "posts", "second-post.md")
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(newPost, []byte("---\ntitle: \"Second\"\n---\nmore\n"), 0644); err != nil {
		t.Fatalf("Failed to create post: %v", err)
	}

	select {
	case event, ok := <-received:
		if !ok {
			t.Fatal("Timeout waiting for file creation event")
		}
		if event.Type != FileCreated {
			t.Errorf("Expected FileCreated event, got %v", event.Type)
		}
		if !strings.HasSuffix(event.Path, "second-post.md") {
			t.Errorf("Expected the new post path, got %s", event.Path)
		}
	case <-time.After(2 * time.Second):
		t.Error("Timeout waiting for file creation event")
	}
}

func TestDirectoryCreationHandling(t *testing.T) {
	siteDir := createWatchedSite(t)

	fm := NewFileManager(siteDir)
	fw, err := NewFileWatcher(fm)
	if err != nil {
		t.Fatalf("Failed to create file watcher: %v", err)
	}

	if err := fw.Start(siteDir); err != nil {
		t.Fatalf("Failed to start file watcher: %v", err)
	}
	defer fw.Stop()

	initialWatchedCount := len(fw.GetWatchedDirectories())
	received := collectOneEvent(fw)

	// A new category directory under content/
	newDir := filepath.Join(siteDir, "content", "notes")
	time.Sleep(100 * time.Millisecond)

	if err := os.Mkdir(newDir, 0755); err != nil {
		t.Fatalf("Failed to create directory: %v", err)
	}

	select {
	case event, ok := <-received:
		if !ok {
			t.Fatal("Timeout waiting for directory creation event")
		}
		if event.Type != DirCreated {
			t.Errorf("Expected DirCreated event, got %v", event.Type)
		}
		if !strings.HasSuffix(event.Path, "notes") {
			t.Errorf("Expected the new directory path, got %s", event.Path)
		}
		if !event.IsDir {
			t.Error("Directory creation event should be marked as directory")
		}
	case <-time.After(2 * time.Second):
		t.Error("Timeout waiting for directory creation event")
	}

	// The new directory joins the watch set
	time.Sleep(100 * time.Millisecond)
	if len(fw.GetWatchedDirectories()) <= initialWatchedCount {
		t.Error("New directory should be added to watched directories")
	}
}

func TestFileWatchEventType_String(t *testing.T) {
	tests := []struct {
		eventType FileWatchEventType
		expected  string
	}{
		{FileCreated, "FileCreated"},
		{FileModified, "FileModified"},
		{FileDeleted, "FileDeleted"},
		{FileRenamed, "FileRenamed"},
		{DirCreated, "DirCreated"},
		{DirDeleted, "DirDeleted"},
		{FileWatchEventType(999), "Unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if result := tt.eventType.String(); result != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, result)
			}
		})
	}
}

func TestGetRelativePath(t *testing.T) {
	siteDir := createWatchedSite(t)

	fm := NewFileManager(siteDir)
	fw, err := NewFileWatcher(fm)
	if err != nil {
		t.Fatalf("Failed to create file watcher: %v", err)
	}

	// Without Start there is no root to be relative to
	if _, err := fw.getRelativePath("/some/path"); err == nil {
		t.Error("Expected error when root path not set")
	}

	if err := fw.Start(siteDir); err != nil {
		t.Fatalf("Failed to start file watcher: %v", err)
	}
	defer fw.Stop()

	postPath := filepath.Join(siteDir, "content", "posts", "first-post.md")
	relPath, err := fw.getRelativePath(postPath)
	if err != nil {
		t.Errorf("Unexpected error getting relative path: %v", err)
	}

	expected := filepath.Join("content", "posts", "first-post.md")
	if relPath != expected {
		t.Errorf("Expected %s, got %s", expected, relPath)
	}
}

func TestConcurrentOperations(t *testing.T) {
	siteDir := createWatchedSite(t)

	fm := NewFileManager(siteDir)
	fw, err := NewFileWatcher(fm)
	if err != nil {
		t.Fatalf("Failed to create file watcher: %v", err)
	}

	if err := fw.Start(siteDir); err != nil {
		t.Fatalf("Failed to start file watcher: %v", err)
	}
	defer fw.Stop()

	// Hammer the posts directory from several writers at once
	var wg sync.WaitGroup
	numWriters := 10

	for i := 0; i < numWriters; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()

			postPath := filepath.Join(siteDir, "content", "posts",
				fmt.Sprintf("draft-%d.md", id))

			if err := os.WriteFile(postPath, []byte("---\ntitle: draft\n---\n"), 0644); err != nil {
				t.Errorf("Failed to create draft-%d.md: %v", id, err)
				return
			}

			time.Sleep(10 * time.Millisecond)

			if err := os.WriteFile(postPath, []byte("---\ntitle: draft\n---\nbody\n"), 0644); err != nil {
				t.Errorf("Failed to modify draft-%d.md: %v", id, err)
				return
			}

			_ = fw.IsRunning()
			_ = fw.GetWatchedDirectories()
		}(i)
	}

	wg.Wait()

	if !fw.IsRunning() {
		t.Error("File watcher should still be running after concurrent operations")
	}
}

func TestEventChannelHandling(t *testing.T) {
	siteDir := createWatchedSite(t)

	fm := NewFileManager(siteDir)
	fw, err := NewFileWatcher(fm)
	if err != nil {
		t.Fatalf("Failed to create file watcher: %v", err)
	}

	if err := fw.Start(siteDir); err != nil {
		t.Fatalf("Failed to start file watcher: %v", err)
	}
	defer fw.Stop()

	eventChan := fw.GetEventChannel()
	if eventChan == nil {
		t.Fatal("Event channel should not be nil")
	}

	var events []FileWatchEvent
	done := make(chan bool)

	go func() {
		timeout := time.After(3 * time.Second)
		for {
			select {
			case event, ok := <-eventChan:
				if !ok {
					done <- true
					return
				}
				events = append(events, event)
				if len(events) >= 5 {
					done <- true
					return
				}
			case <-timeout:
				done <- true
				return
			}
		}
	}()

	time.Sleep(100 * time.Millisecond)

	// A burst of new posts, as a git pull into the site directory produces
	for i := 0; i < 5; i++ {
		postPath := filepath.Join(siteDir, "content", "posts",
			fmt.Sprintf("imported-%d.md", i))
		if err := os.WriteFile(postPath, []byte("---\ntitle: imported\n---\n"), 0644); err != nil {
			t.Errorf("Failed to create imported-%d.md: %v", i, err)
		}
		time.Sleep(50 * time.Millisecond)
	}

	<-done

	if len(events) == 0 {
		t.Error("Expected to receive events but got none")
	}

	for _, event := range events {
		if event.Time.IsZero() {
			t.Error("Event time should be set")
		}
		if event.Path == "" {
			t.Error("Event path should not be empty")
		}
	}
}

func TestIgnoredFilesProduceNoEvents(t *testing.T) {
	siteDir := createWatchedSite(t)

	// Editor droppings next to real content
	clutter := []string{
		"content/.index.md.swp",
		"content/posts/first-post.md.bak",
		"content/posts/first-post.md.tmp",
		".git/config",
	}
	for _, file := range clutter {
		fullPath := filepath.Join(siteDir, file)
		if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
			t.Fatalf("Failed to create directory for %s: %v", file, err)
		}
		if err := os.WriteFile(fullPath, []byte("noise"), 0644); err != nil {
			t.Fatalf("Failed to create file %s: %v", file, err)
		}
	}

	fm := NewFileManager(siteDir)
	fw, err := NewFileWatcher(fm)
	if err != nil {
		t.Fatalf("Failed to create file watcher: %v", err)
	}

	if err := fw.Start(siteDir); err != nil {
		t.Fatalf("Failed to start file watcher: %v", err)
	}
	defer fw.Stop()

	var events []FileWatchEvent
	done := make(chan bool)

	go func() {
		timeout := time.After(1 * time.Second)
		for {
			select {
			case event := <-fw.GetEventChannel():
				events = append(events, event)
			case <-timeout:
				done <- true
				return
			}
		}
	}()

	time.Sleep(100 * time.Millisecond)

	// Touch the clutter and one real post
	for _, file := range append(clutter, "content/posts/first-post.md") {
		fullPath := filepath.Join(siteDir, file)
		if err := os.WriteFile(fullPath, []byte("modified"), 0644); err != nil {
			t.Logf("Failed to modify %s: %v", file, err)
		}
		time.Sleep(50 * time.Millisecond)
	}

	<-done

	postEvents := 0
	for _, event := range events {
		if strings.Contains(event.Path, "first-post.md") &&
			!strings.Contains(event.Path, ".bak") &&
			!strings.Contains(event.Path, ".tmp") {
			postEvents++
		}
		if strings.Contains(event.Path, ".swp") ||
			strings.Contains(event.Path, ".git") ||
			strings.Contains(event.Path, ".bak") ||
			strings.Contains(event.Path, ".tmp") {
			t.Errorf("Should not receive events for ignored file: %s", event.Path)
		}
	}

	if postEvents == 0 {
		t.Error("Should receive events for real content files")
	}
}
