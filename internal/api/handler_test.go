package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"agency-portal-backend/config"
	"agency-portal-backend/internal/model"
	"agency-portal-backend/internal/store"
)

const testSecret = "test-secret"

var testDBSeq atomic.Int64

type recordingDispatcher struct {
	enqueued []string
}

func (r *recordingDispatcher) Enqueue(notificationID string) {
	r.enqueued = append(r.enqueued, notificationID)
}

func setupRouter(t *testing.T) (*gin.Engine, store.Store, *recordingDispatcher) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:apitest%d?mode=memory&cache=shared", testDBSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	err = db.AutoMigrate(
		&model.Subscription{},
		&model.Notification{},
		&model.NotificationRecipient{},
		&model.ReadReceipt{},
	)
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Server.RateLimitPerSec = 1000
	cfg.Server.CacheTTLSeconds = 1
	cfg.Auth.JWTSecret = testSecret

	s := store.NewGormStore(db)
	dispatcher := &recordingDispatcher{}
	router := NewRouter(cfg, s, &webpush.Options{VAPIDPublicKey: "test-public-key"}, dispatcher)
	return router, s, dispatcher
}

func token(t *testing.T, subject, role string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":  subject,
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func doJSON(router *gin.Engine, method, path, bearer string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestVAPIDPublicKey(t *testing.T) {
	router, _, _ := setupRouter(t)

	w := doJSON(router, http.MethodGet, "/api/push/vapid-public-key", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"publicKey":"test-public-key"}`, w.Body.String())
}

func TestVAPIDPublicKeyMisconfigured(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewHandler(nil, &webpush.Options{}, nil, nil)
	r := gin.New()
	r.GET("/api/push/vapid-public-key", handler.GetVAPIDPublicKey)

	w := doJSON(r, http.MethodGet, "/api/push/vapid-public-key", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestServiceWorkerScriptIsServed(t *testing.T) {
	router, _, _ := setupRouter(t)

	w := doJSON(router, http.MethodGet, "/sw.js", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "javascript")
	assert.Contains(t, w.Body.String(), "notificationclick")
}

func TestSubscribeRequiresAuth(t *testing.T) {
	router, _, _ := setupRouter(t)

	w := doJSON(router, http.MethodPost, "/api/push/subscribe", "", gin.H{
		"endpoint": "https://push.example.com/e1",
		"keys":     gin.H{"p256dh": "a2V5", "auth": "YXV0aA"},
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSubscribeValidation(t *testing.T) {
	router, _, _ := setupRouter(t)
	user := token(t, "user-a", "client")

	// Missing keys entirely.
	w := doJSON(router, http.MethodPost, "/api/push/subscribe", user, gin.H{"endpoint": "https://push.example.com/e1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Malformed endpoint is rejected with no stored subscription.
	w = doJSON(router, http.MethodPost, "/api/push/subscribe", user, gin.H{
		"endpoint": "not a url",
		"keys":     gin.H{"p256dh": "a2V5", "auth": "YXV0aA"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubscribeUpsertAndUnsubscribe(t *testing.T) {
	router, s, _ := setupRouter(t)
	user := token(t, "user-a", "client")

	body := gin.H{
		"endpoint": "https://push.example.com/e1",
		"keys":     gin.H{"p256dh": "a2V5", "auth": "YXV0aA"},
	}
	w := doJSON(router, http.MethodPost, "/api/push/subscribe", user, body)
	assert.Equal(t, http.StatusCreated, w.Code)

	// Same endpoint again does not duplicate.
	w = doJSON(router, http.MethodPost, "/api/push/subscribe", user, body)
	assert.Equal(t, http.StatusCreated, w.Code)

	subs, err := s.ListActiveSubscriptions(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, subs, 1)

	w = doJSON(router, http.MethodDelete, "/api/push/unsubscribe", user, gin.H{"endpoint": "https://push.example.com/e1"})
	assert.Equal(t, http.StatusNoContent, w.Code)

	// Unsubscribing an unknown endpoint still succeeds.
	w = doJSON(router, http.MethodDelete, "/api/push/unsubscribe", user, gin.H{"endpoint": "https://push.example.com/e1"})
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestAdminGateRejectsBeforeMutation(t *testing.T) {
	router, s, dispatcher := setupRouter(t)
	client := token(t, "user-a", "client")

	body := gin.H{"recipients": []string{"user-b"}, "title": "t", "message": "m"}
	w := doJSON(router, http.MethodPost, "/api/notifications", client, body)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(router, http.MethodPost, "/api/notifications/broadcast", client, gin.H{"title": "t", "message": "m"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Nothing was stored or dispatched.
	views, err := s.ListFor(context.Background(), "user-b", store.ListFilters{})
	require.NoError(t, err)
	assert.Empty(t, views)
	assert.Empty(t, dispatcher.enqueued)
}

func TestTargetedNotificationFlow(t *testing.T) {
	router, _, dispatcher := setupRouter(t)
	admin := token(t, "admin-1", "admin")
	userA := token(t, "user-a", "client")
	userB := token(t, "user-b", "client")

	w := doJSON(router, http.MethodPost, "/api/notifications", admin, gin.H{
		"recipients": []string{"user-a", "user-b"},
		"title":      "Project update",
		"message":    "Phase two approved",
		"type":       "project_update",
		"priority":   "high",
		"actionUrl":  "/projects/9",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)
	assert.Equal(t, []string{created.ID}, dispatcher.enqueued)

	// A sees it unread.
	w = doJSON(router, http.MethodGet, "/api/notifications", userA, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var listA struct {
		Notifications []store.NotificationView `json:"notifications"`
		UnreadCount   int64                    `json:"unreadCount"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listA))
	require.Len(t, listA.Notifications, 1)
	assert.False(t, listA.Notifications[0].IsRead)
	assert.Equal(t, int64(1), listA.UnreadCount)

	// A marks it read; B's view is unaffected.
	w = doJSON(router, http.MethodPut, "/api/notifications/"+created.ID+"/read", userA, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(router, http.MethodGet, "/api/notifications", userA, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listA))
	assert.True(t, listA.Notifications[0].IsRead)
	assert.Equal(t, int64(0), listA.UnreadCount)

	var listB struct {
		Notifications []store.NotificationView `json:"notifications"`
		UnreadCount   int64                    `json:"unreadCount"`
	}
	w = doJSON(router, http.MethodGet, "/api/notifications", userB, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listB))
	require.Len(t, listB.Notifications, 1)
	assert.False(t, listB.Notifications[0].IsRead)
	assert.Equal(t, int64(1), listB.UnreadCount)
}

func TestBroadcastAndStats(t *testing.T) {
	router, _, dispatcher := setupRouter(t)
	admin := token(t, "admin-1", "admin")
	user := token(t, "user-x", "client")

	w := doJSON(router, http.MethodPost, "/api/notifications/broadcast", admin, gin.H{
		"title":    "Maintenance window",
		"message":  "Saturday 02:00",
		"type":     "system",
		"priority": "urgent",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	require.Len(t, dispatcher.enqueued, 1)

	// Any authenticated client is addressed by a broadcast.
	w = doJSON(router, http.MethodGet, "/api/notifications/stats", user, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats store.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, int64(1), stats.Total)
	assert.Equal(t, int64(1), stats.Unread)
	require.Len(t, stats.ByType, 1)
	assert.Equal(t, "system", stats.ByType[0].Key)
}

func TestMarkAllReadAndDelete(t *testing.T) {
	router, _, _ := setupRouter(t)
	admin := token(t, "admin-1", "admin")
	user := token(t, "user-a", "client")

	var ids []string
	for i := 0; i < 3; i++ {
		w := doJSON(router, http.MethodPost, "/api/notifications", admin, gin.H{
			"recipients": []string{"user-a"},
			"title":      fmt.Sprintf("n%d", i),
			"message":    "m",
		})
		require.Equal(t, http.StatusCreated, w.Code)
		var created struct {
			ID string `json:"id"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
		ids = append(ids, created.ID)
	}

	w := doJSON(router, http.MethodPut, "/api/notifications/read-all", user, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(router, http.MethodGet, "/api/notifications", user, nil)
	var list struct {
		UnreadCount int64 `json:"unreadCount"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, int64(0), list.UnreadCount)

	// Deletion is admin-only and hard.
	w = doJSON(router, http.MethodDelete, "/api/notifications/"+ids[0], user, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(router, http.MethodDelete, "/api/notifications/"+ids[0], admin, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(router, http.MethodDelete, "/api/notifications/"+ids[0], admin, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateValidation(t *testing.T) {
	router, _, _ := setupRouter(t)
	admin := token(t, "admin-1", "admin")

	// Targeted with no recipients violates the recipient invariant.
	w := doJSON(router, http.MethodPost, "/api/notifications", admin, gin.H{"title": "t", "message": "m"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Bad expiry format.
	w = doJSON(router, http.MethodPost, "/api/notifications", admin, gin.H{
		"recipients": []string{"user-a"},
		"title":      "t",
		"message":    "m",
		"expiresAt":  "tomorrow",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Unknown type filter on the list endpoint.
	user := token(t, "user-a", "client")
	w = doJSON(router, http.MethodGet, "/api/notifications?type=bogus", user, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
