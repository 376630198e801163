package api

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"agency-portal-backend/config"
	"agency-portal-backend/internal/mw"
	"agency-portal-backend/internal/store"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(cfg *config.Config, s store.Store, webpushOptions *webpush.Options, dispatcher Enqueuer) *gin.Engine {
	r := gin.Default()

	cacheTTL := time.Duration(cfg.Server.CacheTTLSeconds) * time.Second
	cacheStore := cache.New(cacheTTL, 2*cacheTTL)
	caching := mw.Cache(cacheStore, cacheTTL)

	handler := NewHandler(s, webpushOptions, dispatcher, cacheStore)

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.Server.RateLimitPerSec), int(cfg.Server.RateLimitPerSec))
	auth := mw.RequireAuth(cfg.Auth.JWTSecret)
	admin := mw.RequireAdmin()

	// The delivery worker registration script must live at a fixed
	// well-known path on the application root.
	r.GET("/sw.js", handler.GetServiceWorkerScript)

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		pushGroup := api.Group("/push")
		{
			pushGroup.GET("/vapid-public-key", handler.GetVAPIDPublicKey)
			pushGroup.POST("/subscribe", auth, handler.Subscribe)
			pushGroup.DELETE("/unsubscribe", auth, handler.Unsubscribe)
		}

		notif := api.Group("/notifications")
		notif.Use(auth)
		{
			notif.GET("", caching, handler.ListNotifications)
			notif.GET("/stats", caching, handler.GetStats)
			// gin's tree cannot hold the static read-all route beside
			// the :id parameter, so both PUT endpoints share one
			// dispatching handler.
			notif.PUT("/*action", handler.PutNotificationAction)
			notif.DELETE("/:id", admin, handler.DeleteNotification)
			notif.POST("", admin, handler.CreateNotification)
			notif.POST("/broadcast", admin, handler.CreateBroadcast)
		}
	}

	return r
}
