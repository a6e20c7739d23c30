// Package http wires the position ingest, route, and admin APIs onto a
// gin engine, matching the teacher's setupRouter/rate-limit-middleware
// shape generalized to the wayfinding core's endpoints.
package http

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/airwayfind/wayfinding-core/internal/bus"
	"github.com/airwayfind/wayfinding-core/internal/fusion"
	"github.com/airwayfind/wayfinding-core/internal/graph"
	"github.com/airwayfind/wayfinding-core/internal/hazard"
	"github.com/airwayfind/wayfinding-core/internal/routesession"
)

// Deps bundles the components the HTTP transport needs.
type Deps struct {
	Store        *graph.Store
	Fusion       *fusion.Engine
	Sessions     *routesession.Manager
	Hazards      *hazard.Engine
	Bus          *bus.Hub
	Logger       *zap.Logger
	Registry     *prometheus.Registry
	AdminToken   string
	RateLimit    string // e.g. "100/minute"
}

// NewRouter builds the gin engine with all routes registered.
func NewRouter(deps Deps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	limiter, err := parseRateLimit(deps.RateLimit)
	if err != nil {
		deps.Logger.Warn("invalid rate limit spec, using default", zap.Error(err))
		limiter = rate.NewLimiter(rate.Limit(100), 100)
	}
	r.Use(rateLimitMiddleware(limiter, deps.Logger))

	h := &handlers{deps: deps}

	r.GET("/healthz", h.health)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{})))

	v1 := r.Group("/v1")
	v1.POST("/position", h.postPosition)
	v1.POST("/routes", h.postRoute)
	v1.GET("/routes/:userID", h.getRoute)
	v1.DELETE("/routes/:userID", h.deleteRoute)

	admin := v1.Group("/admin")
	admin.Use(bearerAuthMiddleware(deps.AdminToken))
	admin.POST("/zones", h.postHazardZone)
	admin.DELETE("/zones/:zoneID", h.deleteHazardZone)
	admin.GET("/zones", h.listHazardZones)

	return r
}

// parseRateLimit parses strings like "100/minute" or "5/second" into a
// token-bucket limiter, the same convention the teacher's bootstrap
// code uses for its own rate limit configuration.
func parseRateLimit(spec string) (*rate.Limiter, error) {
	parts := strings.SplitN(spec, "/", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("rate limit spec %q must be of the form N/unit", spec)
	}
	n, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return nil, fmt.Errorf("invalid rate limit count %q: %w", parts[0], err)
	}
	var per time.Duration
	switch strings.ToLower(strings.TrimSpace(parts[1])) {
	case "second":
		per = time.Second
	case "minute":
		per = time.Minute
	case "hour":
		per = time.Hour
	default:
		return nil, fmt.Errorf("unknown rate limit unit %q", parts[1])
	}
	return rate.NewLimiter(rate.Every(per/time.Duration(n)), n), nil
}

func rateLimitMiddleware(limiter *rate.Limiter, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.AbortWithStatusJSON(429, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

func bearerAuthMiddleware(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if token == "" || header != "Bearer "+token {
			c.AbortWithStatusJSON(401, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
