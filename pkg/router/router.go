// Package router serves migration status over HTTP with gin.
package router

import (
	"context"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"github.com/loykin/docmigrate/internal/constants"
	"github.com/loykin/docmigrate/pkg/status"
)

// Provider collects the current status on each request.
type Provider interface {
	Status(ctx context.Context) (status.Info, error)
	Lock(ctx context.Context) (status.LockInfo, error)
}

// Options configures the status router.
// BasePath is the URL prefix for status endpoints; it defaults to "/status".
type Options struct {
	BasePath string
}

// Router exposes GET BasePath, GET BasePath/lock and GET /healthz. It can be
// closed, after which status endpoints return 404 while /healthz keeps
// answering.
type Router struct {
	base     string
	engine   *gin.Engine
	provider Provider
	open     atomic.Bool
}

// New creates a status Router backed by p.
func New(opt Options, p Provider) *Router {
	r := &Router{base: sanitizeBase(opt.BasePath), provider: p}
	r.open.Store(true)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	g := engine.Group(r.base, r.gate)
	g.GET("", r.handleStatus)
	g.GET("/lock", r.handleLock)
	r.engine = engine
	return r
}

// BasePath returns the configured prefix.
func (r *Router) BasePath() string { return r.base }

// Open enables the status endpoints.
func (r *Router) Open() { r.open.Store(true) }

// Close disables the status endpoints.
func (r *Router) Close() { r.open.Store(false) }

// ServeHTTP implements http.Handler.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.engine.ServeHTTP(w, req)
}

func (r *Router) gate(c *gin.Context) {
	if !r.open.Load() {
		c.AbortWithStatus(http.StatusNotFound)
		return
	}
	c.Next()
}

func (r *Router) handleStatus(c *gin.Context) {
	info, err := r.provider.Status(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, info)
}

func (r *Router) handleLock(c *gin.Context) {
	l, err := r.provider.Lock(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, l)
}

func sanitizeBase(p string) string {
	bp := strings.TrimSpace(p)
	if bp == "" {
		bp = constants.DefaultStatusBasePath
	}
	if !strings.HasPrefix(bp, "/") {
		bp = "/" + bp
	}
	if len(bp) > 1 && strings.HasSuffix(bp, "/") {
		bp = strings.TrimSuffix(bp, "/")
	}
	return bp
}
