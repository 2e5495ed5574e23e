package core

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Post is one published blog post as seen by listings, feeds and search.
type Post struct {
	FilePath   string // FileManager path, e.g. "content/posts/annealing.md"
	Permalink  string
	Title      string
	Author     string
	Summary    string
	Date       time.Time
	Categories []string
	Tags       []string
}

// PostIndex is the registry of published posts. Plugins register a post
// whenever they render a file below the posts directory; listings, category
// pages and feeds read from here.
type PostIndex struct {
	mu         sync.RWMutex
	byPath     map[string]*Post
	permalinks map[string]string // permalink -> file path, uniqueness guard
}

func NewPostIndex() *PostIndex {
	return &PostIndex{
		byPath:     make(map[string]*Post),
		permalinks: make(map[string]string),
	}
}

// Upsert adds or replaces a post. A permalink already claimed by a different
// file is rejected; the first registration wins.
func (pi *PostIndex) Upsert(post Post) error {
	if post.Permalink == "" {
		return fmt.Errorf("%w: post %s has no permalink", ErrInvalidPermalink, post.FilePath)
	}

	pi.mu.Lock()
	defer pi.mu.Unlock()

	if owner, exists := pi.permalinks[post.Permalink]; exists && owner != post.FilePath {
		return fmt.Errorf("%w: %s already claimed by %s", ErrDuplicatePermalink, post.Permalink, owner)
	}

	// A re-rendered file may have changed its permalink; drop the old claim
	if old, exists := pi.byPath[post.FilePath]; exists && old.Permalink != post.Permalink {
		delete(pi.permalinks, old.Permalink)
	}

	p := post
	pi.byPath[post.FilePath] = &p
	pi.permalinks[post.Permalink] = post.FilePath
	return nil
}

// Remove drops the post registered for the given file path.
func (pi *PostIndex) Remove(filePath string) {
	pi.mu.Lock()
	defer pi.mu.Unlock()

	if post, exists := pi.byPath[filePath]; exists {
		delete(pi.permalinks, post.Permalink)
		delete(pi.byPath, filePath)
	}
}

// Get returns the post registered for the given file path, or nil.
func (pi *PostIndex) Get(filePath string) *Post {
	pi.mu.RLock()
	defer pi.mu.RUnlock()

	if post, exists := pi.byPath[filePath]; exists {
		p := *post
		return &p
	}
	return nil
}

// Len returns the number of registered posts.
func (pi *PostIndex) Len() int {
	pi.mu.RLock()
	defer pi.mu.RUnlock()
	return len(pi.byPath)
}

// All returns all posts, newest first. Posts sharing a date sort by title
// so the order is stable.
func (pi *PostIndex) All() []Post {
	pi.mu.RLock()
	posts := make([]Post, 0, len(pi.byPath))
	for _, post := range pi.byPath {
		posts = append(posts, *post)
	}
	pi.mu.RUnlock()

	sort.Slice(posts, func(i, j int) bool {
		if !posts[i].Date.Equal(posts[j].Date) {
			return posts[i].Date.After(posts[j].Date)
		}
		return posts[i].Title < posts[j].Title
	})
	return posts
}

// Page returns one page of posts (1-based) and the total page count.
func (pi *PostIndex) Page(page, perPage int) ([]Post, int) {
	all := pi.All()
	if perPage <= 0 {
		return all, 1
	}

	totalPages := (len(all) + perPage - 1) / perPage
	if totalPages == 0 {
		totalPages = 1
	}
	if page < 1 {
		page = 1
	}

	start := (page - 1) * perPage
	if start >= len(all) {
		return nil, totalPages
	}
	end := start + perPage
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], totalPages
}

// ByCategory returns the posts of one category, newest first. The match is
// case-insensitive.
func (pi *PostIndex) ByCategory(category string) []Post {
	category = strings.ToLower(category)

	var posts []Post
	for _, post := range pi.All() {
		for _, c := range post.Categories {
			if strings.ToLower(c) == category {
				posts = append(posts, post)
				break
			}
		}
	}
	return posts
}

// Categories returns all category names in use, sorted, with post counts.
func (pi *PostIndex) Categories() map[string]int {
	counts := make(map[string]int)

	pi.mu.RLock()
	defer pi.mu.RUnlock()

	for _, post := range pi.byPath {
		for _, c := range post.Categories {
			counts[strings.ToLower(c)]++
		}
	}
	return counts
}

// CategoryNames returns the sorted list of categories in use.
func (pi *PostIndex) CategoryNames() []string {
	counts := pi.Categories()
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
