package core

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// newSiteRouter builds a RouterManager over a small site: a front page, a
// post, a retired permalink that redirects, and a layout that must never be
// routed.
func newSiteRouter(t *testing.T) (*RouterManager, *Context) {
	t.Helper()
	siteDir := t.TempDir()

	require.NoError(t, os.MkdirAll(filepath.Join(siteDir, "assets"), 0755))
	require.NoError(t, os.WriteFile(
		filepath.Join(siteDir, "assets", "style.css"),
		[]byte("article { max-width: 42em; }"), 0644))

	fm := NewFileManager(siteDir)

	pages := []*File{
		{
			Path:     "content/index.md",
			Content:  []byte("<h1>Latest Posts</h1>"),
			Routes:   []string{"/", "/index"},
			Metadata: PageMetadata{MimeType: "text/html"},
		},
		{
			Path:     "content/posts/first-post.md",
			Content:  []byte("<article>First</article>"),
			Routes:   []string{"/posts/first-post"},
			Metadata: PageMetadata{MimeType: "text/html"},
		},
		{
			Path:     "content/moved.md",
			Routes:   []string{"/blog/old-permalink"},
			Metadata: PageMetadata{RedirectUrl: "/posts/first-post"},
		},
		// Layouts live outside content/ and must not be reachable
		{
			Path:     "layout/default.html",
			Content:  []byte("<html>{{.Content}}</html>"),
			Routes:   []string{"/default"},
			Metadata: PageMetadata{MimeType: "text/html"},
		},
	}
	for _, page := range pages {
		fm.Files[page.Path] = page
	}

	config := NewDefaultConfig()
	config.SiteDirectory = siteDir

	ctx := &Context{
		FileManager: fm,
		Config:      config,
		Posts:       NewPostIndex(),
	}

	rm := NewRouterManager()
	require.NoError(t, rm.InitializeRouter(ctx))
	return rm, ctx
}

func get(t *testing.T, handler http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req, err := http.NewRequest("GET", path, nil)
	require.NoError(t, err)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func TestInitializeRouter(t *testing.T) {
	rm, _ := newSiteRouter(t)

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantBody   string
	}{
		{"front page", "/", http.StatusOK, "<h1>Latest Posts</h1>"},
		{"front page alias", "/index", http.StatusOK, "<h1>Latest Posts</h1>"},
		{"post", "/posts/first-post", http.StatusOK, "<article>First</article>"},
		{"unknown page", "/no-such-page", http.StatusNotFound, ""},
		{"layout not routed", "/default", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(t, rm.GetRouter(), tt.path)
			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, w.Body.String())
			}
		})
	}
}

func TestStaticAssetsServed(t *testing.T) {
	rm, _ := newSiteRouter(t)

	w := get(t, rm.GetRouter(), "/assets/style.css")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "max-width")
}

func TestRetiredPermalinkRedirects(t *testing.T) {
	rm, _ := newSiteRouter(t)

	w := get(t, rm.GetRouter(), "/blog/old-permalink")
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/posts/first-post", w.Header().Get("Location"))
}

func TestAddAndRemoveRoute(t *testing.T) {
	rm, ctx := newSiteRouter(t)

	page := &File{
		Path:     "content/notes.md",
		Content:  []byte("<h1>Notes</h1>"),
		Routes:   []string{"/notes"},
		Metadata: PageMetadata{MimeType: "text/html"},
	}
	ctx.FileManager.Files[page.Path] = page
	require.NoError(t, rm.AddRoute("/notes", page.Path))

	w := get(t, rm.GetRouter(), "/notes")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "<h1>Notes</h1>", w.Body.String())

	require.NoError(t, rm.RemoveRoute("/notes"))
	assert.Equal(t, http.StatusNotFound, get(t, rm.GetRouter(), "/notes").Code)
}

func TestEditedPageServesNewContent(t *testing.T) {
	rm, ctx := newSiteRouter(t)

	// The handler reads through the FileManager, so an in-place content
	// swap is visible without a route change
	ctx.FileManager.Files["content/posts/first-post.md"].Content = []byte("<article>Revised</article>")

	w := get(t, rm.GetRouter(), "/posts/first-post")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "<article>Revised</article>", w.Body.String())
}

func TestAddRouteRejectsEmptyPattern(t *testing.T) {
	rm, _ := newSiteRouter(t)
	assert.Error(t, rm.AddRoute("", "content/posts/first-post.md"))
}

func TestDuplicateRouteRejected(t *testing.T) {
	rm, _ := newSiteRouter(t)

	require.NoError(t, rm.AddRoute("/draft", "content/draft-a.md"))
	err := rm.AddRoute("/draft", "content/draft-b.md")
	assert.ErrorIs(t, err, ErrRouteExists)
}

func TestRouteFreedAfterRemoval(t *testing.T) {
	rm, _ := newSiteRouter(t)

	require.NoError(t, rm.AddRoute("/draft", "content/draft-a.md"))
	require.NoError(t, rm.RemoveRoute("/draft"))
	assert.NoError(t, rm.AddRoute("/draft", "content/draft-b.md"))
}

func TestRemoveUnknownRoute(t *testing.T) {
	rm, _ := newSiteRouter(t)
	assert.ErrorIs(t, rm.RemoveRoute("/no-such-route"), ErrRouteNotFound)
}

func TestServeHTTPFollowsRebuilds(t *testing.T) {
	rm, ctx := newSiteRouter(t)

	// The RouterManager itself is the handler the http.Server holds
	var handler http.Handler = rm

	assert.Equal(t, http.StatusOK, get(t, handler, "/posts/first-post").Code)

	// Removing the file rebuilds the engine; the same handler must serve
	// the new route table, not the engine it saw at startup
	require.NoError(t, rm.RemoveFile("content/posts/first-post.md"))
	assert.Equal(t, http.StatusNotFound, get(t, handler, "/posts/first-post").Code)

	// Routes added after a rebuild are reachable through the same handler
	page := &File{
		Path:     "content/posts/second-post.md",
		Content:  []byte("<article>Second</article>"),
		Routes:   []string{"/posts/second-post"},
		Metadata: PageMetadata{MimeType: "text/html"},
	}
	ctx.FileManager.Files[page.Path] = page
	rm.AddFile(page)

	w := get(t, handler, "/posts/second-post")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "<article>Second</article>", w.Body.String())
}

func TestServeHTTPUninitialized(t *testing.T) {
	rm := NewRouterManager()
	assert.Equal(t, http.StatusServiceUnavailable, get(t, rm, "/").Code)
}

func TestOperationalEndpoints(t *testing.T) {
	rm, _ := newSiteRouter(t)

	assert.Equal(t, http.StatusOK, get(t, rm.GetRouter(), "/livez").Code)

	w := get(t, rm.GetRouter(), "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "metrics")
}
