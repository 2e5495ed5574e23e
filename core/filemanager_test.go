package core

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestNewFileManager(t *testing.T) {
	siteDir := "/var/blog/site"
	fm := NewFileManager(siteDir)

	if fm == nil {
		t.Fatal("NewFileManager returned nil")
	}

	if fm.SiteDirectory != siteDir {
		t.Errorf("Expected SiteDirectory %s, got %s", siteDir, fm.SiteDirectory)
	}

	if fm.Files == nil {
		t.Error("Files map is nil")
	}

	root := fm.GetRoot()
	if root == nil {
		t.Error("Root directory is nil")
	}

	if root.Name != "" {
		t.Errorf("Expected root name to be empty, got %s", root.Name)
	}

	if root.Parent != nil {
		t.Error("Root should have no parent")
	}
}

func TestFileNeedsUpdate(t *testing.T) {
	file := &File{
		Name:         "about.md",
		Path:         "content/about.md",
		Dependencies: make(map[string]*File),
		Dependents:   make(map[string]*File),
	}

	// A page with nil content has not been rendered yet
	if !file.NeedsUpdate() {
		t.Error("File with nil content should need update")
	}

	file.Content = []byte("<h1>About</h1>")
	if file.NeedsUpdate() {
		t.Error("File with content should not need update")
	}
}

func TestFileReadFile(t *testing.T) {
	tempDir := t.TempDir()
	postPath := filepath.Join(tempDir, "hello.md")
	postSource := []byte("---\ntitle: \"Hello\"\n---\n# Hello\n")

	if err := os.WriteFile(postPath, postSource, 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	file := &File{
		Name: "hello.md",
		Path: "hello.md",
	}

	content := file.ReadFile(tempDir)
	if content == nil {
		t.Error("ReadFile returned nil for existing file")
	}

	if string(content) != string(postSource) {
		t.Errorf("Expected content %s, got %s", postSource, content)
	}

	// A file that was deleted from disk
	file.Path = "gone.md"
	content = file.ReadFile(tempDir)
	if content != nil {
		t.Error("ReadFile should return nil for non-existent file")
	}
}

func TestFileAddDependency(t *testing.T) {
	page := &File{
		Name:         "about.md",
		Path:         "content/about.md",
		Dependencies: make(map[string]*File),
		Dependents:   make(map[string]*File),
	}

	layout := &File{
		Name:         "default.html",
		Path:         "layout/default.html",
		Dependencies: make(map[string]*File),
		Dependents:   make(map[string]*File),
	}

	page.AddDependency(layout)

	// The page depends on its layout
	if dep, exists := page.Dependencies[layout.Path]; !exists || dep != layout {
		t.Error("Dependency not added correctly")
	}

	// The layout knows the page as its dependent
	if dep, exists := layout.Dependents[page.Path]; !exists || dep != page {
		t.Error("Dependent not added correctly")
	}
}

func TestFileMarkForUpdate(t *testing.T) {
	// Rendering chain: layout -> page -> listing that embeds the page
	layout := &File{
		Name:         "default.html",
		Path:         "layout/default.html",
		Content:      []byte("<html>{{.Content}}</html>"),
		Dependencies: make(map[string]*File),
		Dependents:   make(map[string]*File),
	}

	page := &File{
		Name:         "first-post.md",
		Path:         "content/posts/first-post.md",
		Content:      []byte("<p>rendered</p>"),
		Dependencies: make(map[string]*File),
		Dependents:   make(map[string]*File),
	}

	listing := &File{
		Name:         "index.md",
		Path:         "content/index.md",
		Content:      []byte("<ul>...</ul>"),
		Dependencies: make(map[string]*File),
		Dependents:   make(map[string]*File),
	}

	page.AddDependency(layout)
	listing.AddDependency(page)

	// Editing the layout invalidates everything rendered through it
	layout.MarkForUpdate()

	if layout.Content != nil {
		t.Error("layout should be marked for update")
	}
	if page.Content != nil {
		t.Error("page should be marked for update (dependent)")
	}
	if listing.Content != nil {
		t.Error("listing should be marked for update (transitive dependent)")
	}
}

func TestFileMarkForUpdateCircularDependency(t *testing.T) {
	// Two pages that include each other
	pageA := &File{
		Name:         "a.md",
		Path:         "content/a.md",
		Content:      []byte("a"),
		Dependencies: make(map[string]*File),
		Dependents:   make(map[string]*File),
	}

	pageB := &File{
		Name:         "b.md",
		Path:         "content/b.md",
		Content:      []byte("b"),
		Dependencies: make(map[string]*File),
		Dependents:   make(map[string]*File),
	}

	pageA.AddDependency(pageB)
	pageB.AddDependency(pageA)

	// Must not recurse forever
	pageA.MarkForUpdate()

	if pageA.Content != nil {
		t.Error("pageA should be marked for update")
	}
	if pageB.Content != nil {
		t.Error("pageB should be marked for update")
	}
}

func TestFileManagerAddFile(t *testing.T) {
	fm := NewFileManager("/var/blog/site")

	file := fm.AddFile("index.md")
	if file == nil {
		t.Fatal("AddFile returned nil")
	}

	if file.Name != "index.md" {
		t.Errorf("Expected name index.md, got %s", file.Name)
	}

	if file.Path != "index.md" {
		t.Errorf("Expected path index.md, got %s", file.Path)
	}

	retrievedFile := fm.GetFile("index.md")
	if retrievedFile != file {
		t.Error("File not properly stored in Files map")
	}

	root := fm.GetRoot()
	if root.Files["index.md"] != file {
		t.Error("File not properly stored in parent directory")
	}
}

func TestFileManagerAddFileInSubdirectory(t *testing.T) {
	fm := NewFileManager("/var/blog/site")

	fm.createDirectory("content/posts")

	file := fm.AddFile("content/posts/first-post.md")
	if file == nil {
		t.Fatal("AddFile returned nil")
	}

	if file.Name != "first-post.md" {
		t.Errorf("Expected name first-post.md, got %s", file.Name)
	}

	if file.Path != "content/posts/first-post.md" {
		t.Errorf("Expected path content/posts/first-post.md, got %s", file.Path)
	}

	posts := fm.GetDirectory("content/posts")
	if posts == nil {
		t.Fatal("Posts directory not found")
	}

	if posts.Files["first-post.md"] != file {
		t.Error("File not properly stored in subdirectory")
	}
}

func TestFileManagerGetFile(t *testing.T) {
	fm := NewFileManager("/var/blog/site")

	if file := fm.GetFile("missing.md"); file != nil {
		t.Error("GetFile should return nil for non-existent file")
	}

	addedFile := fm.AddFile("about.md")
	retrievedFile := fm.GetFile("about.md")

	if retrievedFile != addedFile {
		t.Error("GetFile returned different file instance")
	}
}

func TestFileManagerGetDirectory(t *testing.T) {
	fm := NewFileManager("/var/blog/site")

	root := fm.GetDirectory("")
	if root != fm.GetRoot() {
		t.Error("GetDirectory(\"\") should return root")
	}

	root = fm.GetDirectory(".")
	if root != fm.GetRoot() {
		t.Error("GetDirectory(\".\") should return root")
	}

	if dir := fm.GetDirectory("nonexistent"); dir != nil {
		t.Error("GetDirectory should return nil for non-existent directory")
	}

	created := fm.createDirectory("layout")
	retrieved := fm.GetDirectory("layout")

	if retrieved != created {
		t.Error("GetDirectory returned different directory instance")
	}
}

func TestFileManagerCreateDirectory(t *testing.T) {
	fm := NewFileManager("/var/blog/site")

	dir := fm.createDirectory("content/posts/drafts")
	if dir == nil {
		t.Fatal("createDirectory returned nil")
	}

	if dir.Name != "drafts" {
		t.Errorf("Expected name drafts, got %s", dir.Name)
	}

	if dir.Path != "content/posts/drafts" {
		t.Errorf("Expected path content/posts/drafts, got %s", dir.Path)
	}

	if dir.Parent.Name != "posts" {
		t.Error("Incorrect parent relationship")
	}

	// All intermediate levels come into existence
	content := fm.GetDirectory("content")
	posts := fm.GetDirectory("content/posts")
	drafts := fm.GetDirectory("content/posts/drafts")

	if content == nil || posts == nil || drafts == nil {
		t.Error("Not all directory levels were created")
	}

	if drafts != dir {
		t.Error("Final directory doesn't match returned directory")
	}
}

func TestFileManagerWalkDirectory(t *testing.T) {
	tempDir := t.TempDir()

	postsDir := filepath.Join(tempDir, "content", "posts")
	if err := os.MkdirAll(postsDir, 0755); err != nil {
		t.Fatalf("Failed to create posts directory: %v", err)
	}

	indexSource := "---\ntitle: \"Home\"\n---\n# Welcome\n"
	if err := os.WriteFile(filepath.Join(tempDir, "content", "index.md"),
		[]byte(indexSource), 0644); err != nil {
		t.Fatalf("Failed to create index page: %v", err)
	}

	postSource := "---\ntitle: \"First Post\"\ndate: 2024-01-15T00:00:00Z\n---\nHello.\n"
	if err := os.WriteFile(filepath.Join(postsDir, "first-post.md"),
		[]byte(postSource), 0644); err != nil {
		t.Fatalf("Failed to create post: %v", err)
	}

	// Editor swap files are skipped during the walk
	if err := os.WriteFile(filepath.Join(postsDir, ".first-post.md.swp"),
		[]byte("swap"), 0644); err != nil {
		t.Fatalf("Failed to create swap file: %v", err)
	}

	fm := NewFileManager(tempDir)
	if err := fm.WalkDirectory("."); err != nil {
		t.Fatalf("WalkDirectory failed: %v", err)
	}

	indexFile := fm.GetFile("content/index.md")
	if indexFile == nil {
		t.Error("content/index.md not found")
	}

	postFile := fm.GetFile("content/posts/first-post.md")
	if postFile == nil {
		t.Error("content/posts/first-post.md not found")
	}

	if swapFile := fm.GetFile("content/posts/.first-post.md.swp"); swapFile != nil {
		t.Error("Swap file should be ignored")
	}

	posts := fm.GetDirectory("content/posts")
	if posts == nil {
		t.Error("posts directory not found")
	}

	if posts.Files["first-post.md"] != postFile {
		t.Error("first-post.md not properly linked to posts directory")
	}
}

func TestFileManagerRemoveFile(t *testing.T) {
	fm := NewFileManager("/var/blog/site")

	fm.createDirectory("content/posts")
	fm.AddFile("content/posts/old-post.md")

	if err := fm.RemoveFile("content/posts/old-post.md"); err != nil {
		t.Fatalf("RemoveFile failed: %v", err)
	}

	if fm.GetFile("content/posts/old-post.md") != nil {
		t.Error("File should be gone after RemoveFile")
	}

	posts := fm.GetDirectory("content/posts")
	if _, exists := posts.Files["old-post.md"]; exists {
		t.Error("File should be gone from its parent directory")
	}

	// Removing a file that never existed is not an error
	if err := fm.RemoveFile("content/never-was.md"); err != nil {
		t.Errorf("RemoveFile of unknown file should be a no-op, got %v", err)
	}
}

func TestFileManagerRemoveFileUnknownParent(t *testing.T) {
	fm := NewFileManager("/var/blog/site")

	// A file whose directory was never walked, so the tree has no node
	// for it. RemoveFile must report that instead of panicking.
	fm.Files["orphaned/stray.md"] = &File{
		Name:         "stray.md",
		Path:         "orphaned/stray.md",
		Dependencies: make(map[string]*File),
		Dependents:   make(map[string]*File),
	}

	err := fm.RemoveFile("orphaned/stray.md")
	if err == nil {
		t.Fatal("RemoveFile should return an error for an unknown parent directory")
	}
	if !errors.Is(err, ErrDirectoryNotFound) {
		t.Errorf("Expected ErrDirectoryNotFound, got %v", err)
	}
}

func TestFileManagerConcurrency(t *testing.T) {
	fm := NewFileManager("/var/blog/site")

	const numGoroutines = 10
	const numFiles = 5

	var wg sync.WaitGroup

	// Concurrent page additions
	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < numFiles; j++ {
				fileName := fmt.Sprintf("page_%d_%d.md", id, j)
				file := fm.AddFile(fileName)
				if file == nil {
					t.Errorf("Failed to add file %s", fileName)
				}
			}
		}(i)
	}

	wg.Wait()

	allFiles := fm.GetAllFiles()
	expectedCount := numGoroutines * numFiles
	if len(allFiles) != expectedCount {
		t.Errorf("Expected %d files, got %d", expectedCount, len(allFiles))
	}

	// Concurrent processing
	for rangeIdx := 0; rangeIdx < numGoroutines; rangeIdx++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fm.ProcessAllFiles()
		}()
	}

	wg.Wait()
}

func TestFileManagerRaceCondition(t *testing.T) {
	fm := NewFileManager("/var/blog/site")

	for i := 0; i < 100; i++ {
		fm.AddFile(fmt.Sprintf("page_%d.md", i))
	}

	var wg sync.WaitGroup
	done := make(chan bool)

	// Readers, as the router consults the tree on every request
	for rangeIdx := 0; rangeIdx < 5; rangeIdx++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
					_ = fm.GetAllFiles()
					files := fm.GetAllFiles()
					for _, file := range files {
						_ = file.NeedsUpdate()
					}
					time.Sleep(time.Microsecond)
				}
			}
		}()
	}

	// Writers, as the file watcher feeds in new pages
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				select {
				case <-done:
					return
				default:
					fileName := fmt.Sprintf("incoming_%d_%d.md", id, j)
					fm.AddFile(fileName)
					time.Sleep(time.Microsecond)
				}
			}
		}(i)
	}

	// Processors
	for rangeIdx := 0; rangeIdx < 2; rangeIdx++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
					fm.ProcessUpdatedFiles()
					time.Sleep(time.Millisecond)
				}
			}
		}()
	}

	time.Sleep(100 * time.Millisecond)
	close(done)
	wg.Wait()
}

func TestGetAllFiles(t *testing.T) {
	fm := NewFileManager("/var/blog/site")

	files := fm.GetAllFiles()
	if len(files) != 0 {
		t.Errorf("Expected 0 files initially, got %d", len(files))
	}

	fm.AddFile("index.md")
	fm.AddFile("about.md")

	files = fm.GetAllFiles()
	if len(files) != 2 {
		t.Errorf("Expected 2 files, got %d", len(files))
	}

	// Callers get a copy, not the internal map
	delete(files, "index.md")

	filesAgain := fm.GetAllFiles()
	if len(filesAgain) != 2 {
		t.Error("GetAllFiles should return a copy, not a reference")
	}
}

func BenchmarkFileManagerAddFile(b *testing.B) {
	fm := NewFileManager("/var/blog/site")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		fm.AddFile(fmt.Sprintf("page_%d.md", i))
	}
}

func BenchmarkFileManagerGetFile(b *testing.B) {
	fm := NewFileManager("/var/blog/site")

	for i := 0; i < 1000; i++ {
		fm.AddFile(fmt.Sprintf("page_%d.md", i))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		fm.GetFile(fmt.Sprintf("page_%d.md", i%1000))
	}
}
