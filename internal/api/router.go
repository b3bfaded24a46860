package api

import (
	"net/http"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"trolley-pm/config"
	"trolley-pm/internal/metrics"
	"trolley-pm/internal/mw"
	"trolley-pm/internal/service"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(cfg config.ServerConfig, engine *service.Engine, webpushOptions *webpush.Options, m *metrics.Registry) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), mw.Observe(m))

	handler := NewHandler(engine, webpushOptions)

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst, m)

	// Every successful write flushes the whole response cache.
	ttl := time.Duration(cfg.CacheTTLSeconds) * time.Second
	cacheStore := cache.New(ttl, 2*ttl)
	caching := mw.Cache(cacheStore, ttl, m)

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(m.Handler()))

	api := r.Group("/api")
	api.Use(rateLimiter, mw.Invalidate(cacheStore))
	{
		reads := api.Group("", caching)
		reads.GET("/trolleys", handler.ListTrolleys)
		reads.GET("/trolleys/:id", handler.GetTrolley)
		reads.GET("/trolleys/:id/lookup", handler.LookupTrolley)
		reads.GET("/trolleys/:id/status", handler.GetStatus)
		reads.GET("/trolleys/:id/next_due", handler.GetNextDue)
		reads.GET("/trolleys/:id/failures/count", handler.GetFailureCount)
		reads.GET("/trolleys/:id/alert", handler.GetAlert)
		reads.GET("/trolleys/:id/risk", handler.GetRisk)
		reads.GET("/trolleys/:id/records", handler.GetRecords)
		reads.GET("/trolleys/:id/cost", handler.GetTrolleyCost)
		reads.GET("/dashboard", handler.GetDashboard)
		reads.GET("/reminders", handler.GetReminders)
		reads.GET("/alerts", handler.GetAlerts)
		reads.GET("/costs", handler.GetCosts)
		reads.GET("/costs/trolleys", handler.GetCostsPerTrolley)
		reads.GET("/history", handler.GetHistory)
		reads.GET("/categories", GetCategories)

		api.POST("/trolleys", handler.RegisterTrolley)
		api.POST("/trolleys/:id/remap", handler.RemapTrolley)
		api.POST("/trolleys/:id/maintenance", handler.LogMaintenance)
		api.POST("/trolleys/:id/failures", handler.ReportFailure)
		api.POST("/trolleys/:id/scrap", handler.ScrapTrolley)
		api.POST("/trolleys/:id/mark_done", handler.MarkDone)

		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	return r
}
