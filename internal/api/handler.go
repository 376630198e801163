package api

import (
	"github.com/SherClockHolmes/webpush-go"
	"github.com/patrickmn/go-cache"

	"agency-portal-backend/internal/store"
)

// Enqueuer hands freshly stored notifications to the push dispatcher.
type Enqueuer interface {
	Enqueue(notificationID string)
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store      store.Store
	webpush    *webpush.Options
	dispatcher Enqueuer
	respCache  *cache.Cache
}

// NewHandler creates a new API handler.
func NewHandler(s store.Store, webpushOptions *webpush.Options, dispatcher Enqueuer, respCache *cache.Cache) *Handler {
	return &Handler{
		store:      s,
		webpush:    webpushOptions,
		dispatcher: dispatcher,
		respCache:  respCache,
	}
}
