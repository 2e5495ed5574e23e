package core

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
)

// SearchResult is one hit returned by the search provider.
type SearchResult struct {
	Url   string  `json:"url"`
	Title string  `json:"title"`
	Score float64 `json:"score"`
}

// SearchProvider is implemented by the search plugin.
type SearchProvider interface {
	Search(query string, limit int) ([]SearchResult, error)
}

// RouteInfo holds information about a registered route
type RouteInfo struct {
	Pattern  string
	FilePath string
	Method   string
}

// RouterManager manages dynamic route registration and removal
type RouterManager struct {
	mu         sync.RWMutex
	router     *gin.Engine
	routes     map[string]string // pattern -> filePath mapping
	fm         *FileManager
	ctx        *Context
	search     SearchProvider
	middleware []gin.HandlerFunc
}

func NewRouterManager() *RouterManager {
	return &RouterManager{
		routes:     make(map[string]string),
		middleware: make([]gin.HandlerFunc, 0),
	}
}

func (rm *RouterManager) AddMiddleware(middleware ...gin.HandlerFunc) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.middleware = append(rm.middleware, middleware...)
}

// SetSearchProvider wires the search plugin into the /search endpoint.
func (rm *RouterManager) SetSearchProvider(sp SearchProvider) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.search = sp
}

// creates a handler function for a specific file path
func (rm *RouterManager) makeFileHandler(filePath string) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Get FileManager with read lock to ensure it's not nil
		rm.mu.RLock()
		fm := rm.fm
		rm.mu.RUnlock()

		if fm == nil {
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}

		file := fm.GetFile(filePath)
		if file == nil {
			c.AbortWithStatus(http.StatusNotFound)
			return
		}

		// Handle redirects
		if file.Metadata.RedirectUrl != "" {
			c.Redirect(http.StatusFound, file.Metadata.RedirectUrl)
			return
		}

		RecordPageServed()

		// Set appropriate headers
		mimeType := file.Metadata.MimeType
		if mimeType == "" {
			mimeType = "application/octet-stream"
		}

		c.Data(http.StatusOK, mimeType, file.Content)
	}
}

// makeSearchHandler serves /search?q=<query> as a JSON result list.
func (rm *RouterManager) makeSearchHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		rm.mu.RLock()
		sp := rm.search
		rm.mu.RUnlock()

		if sp == nil {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "search is not enabled"})
			return
		}

		query := strings.TrimSpace(c.Query("q"))
		if query == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing query parameter 'q'"})
			return
		}

		limit := 20
		if l, err := strconv.Atoi(c.Query("limit")); err == nil && l > 0 && l <= 100 {
			limit = l
		}

		results, err := sp.Search(query, limit)
		if err != nil {
			Error("Search for %q failed: %v", query, err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "search failed"})
			return
		}

		RecordSearchQuery()
		c.JSON(http.StatusOK, gin.H{"query": query, "results": results})
	}
}

// ensures the route starts with / and has no double slashes
func normalizeRoute(route string) (string, error) {
	if route == "" {
		return "", errors.New("route cannot be empty")
	}

	// Clean the path
	route = filepath.Clean("/" + strings.TrimPrefix(route, "/"))

	// filepath.Clean converts "/" to ".", so fix that
	if route == "." {
		route = "/"
	}

	// Validate the route
	if !strings.HasPrefix(route, "/") {
		return "", fmt.Errorf("route must start with '/': %s", route)
	}

	return route, nil
}

// creates and configures the gin router with all current files
func (rm *RouterManager) InitializeRouter(ctx *Context) error {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.fm = ctx.FileManager
	rm.ctx = ctx

	// Clear existing routes map
	rm.routes = make(map[string]string)

	// Collect routes for files in the content directory
	for _, file := range ctx.FileManager.GetAllFiles() {
		if !file.IsContent() {
			continue
		}
		for _, route := range file.Routes {
			normalized, err := normalizeRoute(route)
			if err != nil {
				continue
			}
			if _, exists := rm.routes[normalized]; exists {
				Warn("Route %s claimed twice, keeping first owner", normalized)
				continue
			}
			rm.routes[normalized] = file.Path
		}
	}

	return rm.buildEngineUnsafe()
}

// buildEngineUnsafe creates a fresh gin engine from the current route table.
// The caller must hold the write lock.
func (rm *RouterManager) buildEngineUnsafe() error {
	router := gin.New()

	// Default middleware
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(SecurityHeadersMiddleware())
	router.Use(GlobalMetrics.MetricsMiddleware())

	// Custom middleware (rate limiting etc.)
	for _, middleware := range rm.middleware {
		router.Use(middleware)
	}

	// One GET route per rendered file
	for pattern, filePath := range rm.routes {
		router.GET(pattern, rm.makeFileHandler(filePath))
	}

	if rm.ctx != nil {
		// Static file serving for assets
		staticDir := filepath.Join(rm.ctx.Config.SiteDirectory, "assets")
		router.Static("/assets", staticDir)

		// Blog listings. A content file may claim one of these routes (an
		// index page in the posts directory); the file wins, gin panics on
		// double registration.
		if _, taken := rm.routes["/posts"]; !taken {
			router.GET("/posts", ArchiveHandler(rm.ctx))
		}
		if _, taken := rm.routes["/categories"]; !taken {
			router.GET("/categories", CategoriesHandler(rm.ctx))
		}
		router.GET("/categories/:category", CategoryHandler(rm.ctx))

		// Feeds
		if rm.ctx.Config.Blog.FeedEnabled {
			if _, taken := rm.routes["/feed.xml"]; !taken {
				router.GET("/feed.xml", RssHandler(rm.ctx))
			}
			if _, taken := rm.routes["/atom.xml"]; !taken {
				router.GET("/atom.xml", AtomHandler(rm.ctx))
			}
		}
	}

	// Search endpoint, active once a provider is wired
	if _, taken := rm.routes["/search"]; !taken {
		router.GET("/search", rm.makeSearchHandler())
	}

	// Operational endpoints
	router.GET("/healthz", GlobalHealthChecker.HealthHandler())
	router.GET("/livez", GlobalHealthChecker.LivenessHandler())
	router.GET("/readyz", GlobalHealthChecker.ReadinessHandler())
	router.GET("/metrics", GlobalMetrics.MetricsHandler())
	router.GET("/metrics/prometheus", GlobalMetrics.PrometheusHandler())

	rm.router = router
	return nil
}

func (rm *RouterManager) AddRoute(pattern, filePath string) error {
	normalizedPattern, err := normalizeRoute(pattern)
	if err != nil {
		return NewRouterError("add", pattern, err)
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	// Check if route already exists
	if _, exists := rm.routes[normalizedPattern]; exists {
		return NewRouterError("add", normalizedPattern, ErrRouteExists)
	}

	// Add route to router
	rm.router.GET(normalizedPattern, rm.makeFileHandler(filePath))
	rm.routes[normalizedPattern] = filePath

	return nil
}

// AddFile registers all routes of a rendered file (thread-safe)
func (rm *RouterManager) AddFile(file *File) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.addFileUnsafe(file)
}

// addFileUnsafe is the internal implementation that assumes the lock is already held
func (rm *RouterManager) addFileUnsafe(file *File) {
	for _, route := range file.Routes {
		normalizedRoute, err := normalizeRoute(route)
		if err != nil {
			continue // Skip invalid routes
		}

		// Skip duplicates
		if _, exists := rm.routes[normalizedRoute]; exists {
			continue
		}

		rm.routes[normalizedRoute] = file.Path
		rm.router.GET(normalizedRoute, rm.makeFileHandler(file.Path))
	}
}

func (rm *RouterManager) RemoveRoute(pattern string) error {
	normalizedPattern, err := normalizeRoute(pattern)
	if err != nil {
		return NewRouterError("remove", pattern, err)
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	// Check if route exists
	if _, exists := rm.routes[normalizedPattern]; !exists {
		return NewRouterError("remove", normalizedPattern, ErrRouteNotFound)
	}

	delete(rm.routes, normalizedPattern)

	// Gin cannot remove routes dynamically, so rebuild the engine from the
	// remaining route table.
	return rm.buildEngineUnsafe()
}

// RemoveFile removes all routes associated with a file
func (rm *RouterManager) RemoveFile(filePath string) error {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	// Find all routes that map to this file
	var routesToRemove []string
	for pattern, fp := range rm.routes {
		if fp == filePath {
			routesToRemove = append(routesToRemove, pattern)
		}
	}

	if len(routesToRemove) == 0 {
		return NewRouterError("remove-file", filePath, ErrRouteNotFound)
	}

	// Remove all found routes
	for _, pattern := range routesToRemove {
		delete(rm.routes, pattern)
	}

	return rm.buildEngineUnsafe()
}

// GetAllRoutes returns a copy of all current routes (thread-safe)
func (rm *RouterManager) GetAllRoutes() map[string]string {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	// Return a copy to prevent external modifications
	routes := make(map[string]string, len(rm.routes))
	for pattern, filePath := range rm.routes {
		routes[pattern] = filePath
	}
	return routes
}

// RebuildRouter recreates the gin engine from the current route table
func (rm *RouterManager) RebuildRouter() error {
	timer := NewRouteRebuildTimer()
	defer timer.ObserveDuration()

	rm.mu.Lock()
	defer rm.mu.Unlock()

	SetRoutesCount(int64(len(rm.routes)))
	return rm.buildEngineUnsafe()
}

func (rm *RouterManager) GetRouteInfo(pattern string) (*RouteInfo, error) {
	normalizedPattern, err := normalizeRoute(pattern)
	if err != nil {
		return nil, NewRouterError("info", pattern, err)
	}

	rm.mu.RLock()
	defer rm.mu.RUnlock()

	filePath, exists := rm.routes[normalizedPattern]
	if !exists {
		return nil, NewRouterError("info", normalizedPattern, ErrRouteNotFound)
	}

	return &RouteInfo{
		Pattern:  normalizedPattern,
		FilePath: filePath,
		Method:   "GET",
	}, nil
}

// GetRouter returns the current router (thread-safe)
func (rm *RouterManager) GetRouter() *gin.Engine {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return rm.router
}

// ServeHTTP delegates to the current engine. The RouterManager itself is the
// handler given to the http.Server: rebuilds swap rm.router, and capturing
// the engine once at startup would pin the server to a stale route table.
func (rm *RouterManager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rm.mu.RLock()
	router := rm.router
	rm.mu.RUnlock()

	if router == nil {
		http.Error(w, "router not initialized", http.StatusServiceUnavailable)
		return
	}
	router.ServeHTTP(w, r)
}

// RouteExists checks if a route pattern exists (thread-safe)
func (rm *RouterManager) RouteExists(pattern string) bool {
	normalizedPattern, err := normalizeRoute(pattern)
	if err != nil {
		return false
	}

	rm.mu.RLock()
	defer rm.mu.RUnlock()
	_, exists := rm.routes[normalizedPattern]
	return exists
}

// GetRouteCount returns the number of registered routes (thread-safe)
func (rm *RouterManager) GetRouteCount() int {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return len(rm.routes)
}
