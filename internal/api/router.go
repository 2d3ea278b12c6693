package api

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"machine-health-backend/config"
	"machine-health-backend/internal/alert"
	"machine-health-backend/internal/mw"
	"machine-health-backend/internal/store"
	"machine-health-backend/internal/telemetry"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(cfg *config.Config, s store.Store, svc *telemetry.Service, alerts *alert.Manager, webpushOptions *webpush.Options) *gin.Engine {
	r := gin.Default()

	handler := NewHandler(s, svc, alerts, webpushOptions)

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.Server.RateLimitPerSec), cfg.Server.RateLimitBurst)

	// Dashboard reads are cached briefly; lifecycle mutations must always
	// see fresh state, so only the fleet/history endpoints go through the
	// cache.
	ttl := time.Duration(cfg.Server.CacheTTLSeconds) * time.Second
	cacheStore := cache.New(ttl, 2*ttl)
	caching := mw.Cache(cacheStore, ttl)

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.GET("/health", handler.GetHealth)

		api.GET("/machines", caching, handler.GetMachines)
		api.GET("/machines/:machine_id/snapshot", handler.GetSnapshot)
		api.GET("/machines/:machine_id/history", caching, handler.GetHistory)
		api.PUT("/machines/:machine_id/override", handler.PutOverride)
		api.DELETE("/machines/:machine_id/override", handler.DeleteOverride)
		api.GET("/overrides", handler.GetOverrides)

		api.GET("/alerts", handler.GetAlerts)
		api.GET("/alerts/statistics", handler.GetAlertStatistics)
		api.GET("/alerts/:alert_id", handler.GetAlert)
		api.POST("/alerts/:alert_id/acknowledge", handler.AcknowledgeAlert)
		api.POST("/alerts/:alert_id/resolve", handler.ResolveAlert)
		api.DELETE("/alerts/:alert_id", handler.DismissAlert)

		api.GET("/logs", handler.GetMaintenanceLogs)
		api.POST("/logs", handler.CreateMaintenanceLog)
		api.DELETE("/logs/:log_id", handler.DeleteMaintenanceLog)

		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	return r
}
