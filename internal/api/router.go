package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/storygraph/internal/middleware"
)

// RouterDeps holds all dependencies needed by the router.
type RouterDeps struct {
	Log         *logrus.Logger
	Graph       GraphService
	Warmer      Warmer
	Store       Pinger
	CORSOrigins []string
	Version     string
	Backend     string
}

// Router-level limits.
const (
	maxBodySize = 1 << 20 // 1 MB; no endpoint takes a large body
	rateLimit   = 50      // requests per second per IP
	rateBurst   = 100     // token bucket burst size
)

// setupMiddleware configures all middleware on the Gin engine.
func setupMiddleware(ctx context.Context, r *gin.Engine, deps *RouterDeps) {
	r.SetTrustedProxies(nil) //nolint:errcheck // nil always succeeds.
	r.Use(middleware.RequestID())
	r.Use(middleware.AccessLog(deps.Log))
	r.Use(gin.Recovery())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.MaxBodySize(maxBodySize))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     deps.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type"},
		ExposeHeaders:    []string{middleware.RequestIDHeader},
		MaxAge:           1 * time.Hour,
		AllowCredentials: false,
	}))
	r.Use(middleware.NewRateLimiter(ctx, rateLimit, rateBurst).Handler())
	r.Use(middleware.Metrics())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// registerRoutes sets up all API route handlers on the given router group.
func registerRoutes(api *gin.RouterGroup, deps *RouterDeps) {
	health := NewHealthHandler(deps.Store, deps.Log, deps.Version, deps.Backend)
	graph := NewGraphHandler(deps.Graph, deps.Log)
	books := NewBookHandler(deps.Graph, deps.Warmer, deps.Log)

	api.GET("/health", health.Liveness)
	api.GET("/ready", health.Readiness)

	book := api.Group("/books/:bookId")

	// Chapter cache.
	book.GET("/chapters/:chapterIdx", graph.Chapter)
	book.POST("/chapters/:chapterIdx/rebuild", graph.Rebuild)
	book.DELETE("/chapters/:chapterIdx", graph.Invalidate)
	book.GET("/chapters/:chapterIdx/events/:eventIdx", graph.EventState)

	// Whole book.
	book.POST("/warm", books.Warm)
	book.GET("/summary", books.Summary)
	book.GET("/position/:pos", books.Position)
}

// NewRouter creates and configures the Gin engine with all middleware and routes.
func NewRouter(ctx context.Context, deps *RouterDeps) http.Handler {
	r := gin.New()
	setupMiddleware(ctx, r, deps)
	registerRoutes(r.Group("/api/v1"), deps)

	return r
}
