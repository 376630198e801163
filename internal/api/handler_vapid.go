package api

import (
	_ "embed"
	"net/http"

	"github.com/gin-gonic/gin"
)

//go:embed sw.js
var serviceWorkerScript []byte

// GetVAPIDPublicKey returns the VAPID public key to the client.
func (h *Handler) GetVAPIDPublicKey(c *gin.Context) {
	if h.webpush == nil || h.webpush.VAPIDPublicKey == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "vapid keys are not configured"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"publicKey": h.webpush.VAPIDPublicKey})
}

// GetServiceWorkerScript serves the delivery worker registration script at
// its fixed well-known path.
func (h *Handler) GetServiceWorkerScript(c *gin.Context) {
	c.Data(http.StatusOK, "application/javascript; charset=utf-8", serviceWorkerScript)
}
