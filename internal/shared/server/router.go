package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"consensus-backend/internal/analyses"
	"consensus-backend/internal/services/health"
	"consensus-backend/internal/shared/auth"
	"consensus-backend/internal/shared/config"
	"consensus-backend/internal/shared/metrics"
	"consensus-backend/internal/shared/server/middleware"
	"consensus-backend/internal/shared/server/respond"
)

const (
	rateGroupSubmit = "SUBMIT"
	rateGroupPoll   = "POLL"
)

// RouterDeps lists what the router needs from bootstrap.
type RouterDeps struct {
	Config          config.Config
	AnalysisHandler *analyses.Handler
	// Health runs dependency checks for /health. Nil means always healthy.
	Health *health.Service
	// Signer verifies bearer tokens. Nil accepts only dev X-User-Id identity.
	Signer *auth.Signer
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
	)

	healthRoute := healthHandler(deps.Health)
	r.GET("/health", healthRoute)
	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	api.GET("/health", healthRoute)

	authed := api.Group("", middleware.Auth(deps.Config.Env, deps.Signer))
	registerMeRoutes(authed)
	if deps.AnalysisHandler != nil {
		attachRateLimits(deps.AnalysisHandler, deps.Config)
		deps.AnalysisHandler.RegisterRoutes(authed)
	}

	return r
}

// attachRateLimits fills in the submit and poll limiters the handler does not
// already carry. Both share one limiter keyed by user, group, and job.
func attachRateLimits(h *analyses.Handler, cfg config.Config) {
	limiter := middleware.NewRateLimiter(nil)
	if h.SubmitLimit == nil && cfg.SubmitRatePerMinute > 0 {
		h.SubmitLimit = middleware.RateLimit(middleware.RateLimitConfig{
			Rules: map[string]middleware.RateLimitRule{
				rateGroupSubmit: {Rate: float64(cfg.SubmitRatePerMinute) / 60, Burst: cfg.SubmitRatePerMinute},
			},
			DefaultGroup: rateGroupSubmit,
			Limiter:      limiter,
		})
	}
	if h.PollLimit == nil && cfg.PollInterval > 0 {
		// Clients poll once per interval; allow twice that before throttling.
		perSecond := 2 / cfg.PollInterval.Seconds()
		h.PollLimit = middleware.RateLimit(middleware.RateLimitConfig{
			Rules: map[string]middleware.RateLimitRule{
				rateGroupPoll: {Rate: perSecond, Burst: 2},
			},
			DefaultGroup: rateGroupPoll,
			KeyFor:       func(c *gin.Context) string { return c.Param("id") },
			Limiter:      limiter,
		})
	}
}

func healthHandler(svc *health.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if svc == nil {
			respond.JSON(c, http.StatusOK, gin.H{"ok": true})
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		ok, checks := svc.Status(ctx)
		if !ok {
			respond.Error(c, http.StatusServiceUnavailable, "unavailable", "dependency check failed", checks)
			return
		}
		respond.JSON(c, http.StatusOK, gin.H{"ok": true, "checks": checks})
	}
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
