package core

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthStatus is the reported state of a component or of the site as a whole.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnknown   HealthStatus = "unknown"
)

// CheckFunc examines a single component. A nil error means healthy.
type CheckFunc func(ctx context.Context) error

// CheckResult is the outcome of the most recent run of a check.
type CheckResult struct {
	Name      string       `json:"name"`
	Status    HealthStatus `json:"status"`
	Message   string       `json:"message,omitempty"`
	CheckedAt time.Time    `json:"checked_at"`
	Elapsed   time.Duration `json:"elapsed"`
}

// HealthChecker runs registered component checks and keeps their last results.
type HealthChecker struct {
	mu      sync.RWMutex
	checks  map[string]CheckFunc
	results map[string]CheckResult
}

// NewHealthChecker creates an empty health checker.
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		checks:  make(map[string]CheckFunc),
		results: make(map[string]CheckResult),
	}
}

// RegisterCheck adds or replaces a named check.
func (hc *HealthChecker) RegisterCheck(name string, fn CheckFunc) {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	hc.checks[name] = fn
	hc.results[name] = CheckResult{Name: name, Status: HealthStatusUnknown}
}

// UnregisterCheck removes a named check and its last result.
func (hc *HealthChecker) UnregisterCheck(name string) {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	delete(hc.checks, name)
	delete(hc.results, name)
}

// RunCheck executes one check and records its result.
func (hc *HealthChecker) RunCheck(ctx context.Context, name string) error {
	hc.mu.RLock()
	fn, ok := hc.checks[name]
	hc.mu.RUnlock()

	if !ok {
		return fmt.Errorf("health check %s not found", name)
	}

	start := time.Now()
	err := fn(ctx)

	result := CheckResult{
		Name:      name,
		Status:    HealthStatusHealthy,
		CheckedAt: time.Now(),
		Elapsed:   time.Since(start),
	}
	if err != nil {
		result.Status = HealthStatusUnhealthy
		result.Message = err.Error()
	}

	hc.mu.Lock()
	hc.results[name] = result
	hc.mu.Unlock()

	return err
}

// RunAllChecks executes every registered check and returns the failures by name.
func (hc *HealthChecker) RunAllChecks(ctx context.Context) map[string]error {
	hc.mu.RLock()
	names := make([]string, 0, len(hc.checks))
	for name := range hc.checks {
		names = append(names, name)
	}
	hc.mu.RUnlock()
	sort.Strings(names)

	failures := make(map[string]error)
	for _, name := range names {
		if err := hc.RunCheck(ctx, name); err != nil {
			failures[name] = err
		}
	}
	return failures
}

// GetStatus returns the overall status and a snapshot of the last results.
// Overall is unhealthy if any check failed, degraded if any is degraded,
// unknown if nothing has run yet.
func (hc *HealthChecker) GetStatus() (HealthStatus, map[string]*CheckResult) {
	hc.mu.RLock()
	defer hc.mu.RUnlock()

	snapshot := make(map[string]*CheckResult, len(hc.results))
	overall := HealthStatusUnknown
	sawHealthy := false

	for name, result := range hc.results {
		r := result
		snapshot[name] = &r

		switch result.Status {
		case HealthStatusUnhealthy:
			overall = HealthStatusUnhealthy
		case HealthStatusDegraded:
			if overall != HealthStatusUnhealthy {
				overall = HealthStatusDegraded
			}
		case HealthStatusHealthy:
			sawHealthy = true
		}
	}

	if overall == HealthStatusUnknown && sawHealthy {
		// Healthy only when every result is healthy
		allHealthy := true
		for _, result := range hc.results {
			if result.Status != HealthStatusHealthy {
				allHealthy = false
				break
			}
		}
		if allHealthy {
			overall = HealthStatusHealthy
		}
	}

	return overall, snapshot
}

// HealthHandler runs all checks and reports the site's health as JSON.
func (hc *HealthChecker) HealthHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
		defer cancel()

		failures := hc.RunAllChecks(ctx)
		overall, results := hc.GetStatus()

		body := gin.H{
			"status":    overall,
			"timestamp": time.Now(),
			"checks":    results,
		}
		if len(failures) > 0 {
			messages := make(map[string]string, len(failures))
			for name, err := range failures {
				messages[name] = err.Error()
			}
			body["errors"] = messages
		}

		status := http.StatusOK
		if overall == HealthStatusUnhealthy || overall == HealthStatusUnknown {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, body)
	}
}

// LivenessHandler answers as long as the process is up.
func (hc *HealthChecker) LivenessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "alive",
			"timestamp": time.Now(),
		})
	}
}

// ReadinessHandler reports whether the site is ready to serve content.
func (hc *HealthChecker) ReadinessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		overall, _ := hc.GetStatus()

		if overall == HealthStatusHealthy || overall == HealthStatusDegraded {
			c.JSON(http.StatusOK, gin.H{"status": "ready", "timestamp": time.Now()})
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "timestamp": time.Now()})
	}
}

// StartPeriodicChecks re-runs all checks on the given interval until ctx ends.
func (hc *HealthChecker) StartPeriodicChecks(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	hc.RunAllChecks(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			checkCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			failures := hc.RunAllChecks(checkCtx)
			cancel()

			for name, err := range failures {
				Error("Health check %s failed: %v", name, err)
			}
		}
	}
}

// ContentTreeHealthCheck verifies the file manager can serve its tree.
func ContentTreeHealthCheck(fm *FileManager) CheckFunc {
	return func(ctx context.Context) error {
		switch {
		case fm == nil:
			return fmt.Errorf("file manager is nil")
		case fm.GetRoot() == nil:
			return fmt.Errorf("content tree has no root")
		case fm.GetAllFiles() == nil:
			return fmt.Errorf("content tree is unreadable")
		}
		return nil
	}
}

// WatcherHealthCheck verifies the watcher is running and covering directories.
func WatcherHealthCheck(fw *FileWatcher) CheckFunc {
	return func(ctx context.Context) error {
		if fw == nil {
			return fmt.Errorf("file watcher is nil")
		}
		if !fw.IsRunning() {
			return fmt.Errorf("file watcher is not running")
		}
		if len(fw.GetWatchedDirectories()) == 0 {
			return fmt.Errorf("no directories being watched")
		}
		return nil
	}
}

// RouterHealthCheck verifies the router has an engine and serves routes.
func RouterHealthCheck(rm *RouterManager) CheckFunc {
	return func(ctx context.Context) error {
		if rm == nil {
			return fmt.Errorf("router manager is nil")
		}
		if rm.GetRouter() == nil {
			return fmt.Errorf("router engine not built")
		}
		if rm.GetRouteCount() == 0 {
			return fmt.Errorf("no routes registered")
		}
		return nil
	}
}

// PluginHealthCheck verifies at least one content plugin is registered.
func PluginHealthCheck(pm *PluginManager) CheckFunc {
	return func(ctx context.Context) error {
		if pm == nil {
			return fmt.Errorf("plugin manager is nil")
		}
		if len(pm.Plugins()) == 0 {
			return fmt.Errorf("no plugins registered")
		}
		return nil
	}
}

// PostIndexHealthCheck verifies the post index answers. An empty index is
// fine on a brand-new site.
func PostIndexHealthCheck(pi *PostIndex) CheckFunc {
	return func(ctx context.Context) error {
		if pi == nil {
			return fmt.Errorf("post index is nil")
		}
		_ = pi.Len()
		return nil
	}
}

// GlobalHealthChecker serves /healthz, /livez and /readyz.
var GlobalHealthChecker = NewHealthChecker()

// RegisterDefaultHealthChecks wires the standard per-component checks for a site.
func RegisterDefaultHealthChecks(ctx *Context) {
	if ctx.FileManager != nil {
		GlobalHealthChecker.RegisterCheck("content_tree", ContentTreeHealthCheck(ctx.FileManager))
		GlobalHealthChecker.RegisterCheck("plugins", PluginHealthCheck(ctx.FileManager.GetPluginManager()))
	}
	if ctx.FileWatcher != nil {
		GlobalHealthChecker.RegisterCheck("file_watcher", WatcherHealthCheck(ctx.FileWatcher))
	}
	if ctx.Posts != nil {
		GlobalHealthChecker.RegisterCheck("post_index", PostIndexHealthCheck(ctx.Posts))
	}

	GlobalHealthChecker.RegisterCheck("memory", func(ctx context.Context) error {
		var stats runtime.MemStats
		runtime.ReadMemStats(&stats)
		if stats.Alloc > 1<<30 {
			return fmt.Errorf("high memory usage: %d bytes", stats.Alloc)
		}
		return nil
	})

	GlobalHealthChecker.RegisterCheck("goroutines", func(ctx context.Context) error {
		if count := runtime.NumGoroutine(); count > 1000 {
			return fmt.Errorf("high goroutine count: %d", count)
		}
		return nil
	})
}
