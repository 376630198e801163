// Package syncclient keeps an in-app notification view consistent with the
// server by polling, and issues read/delete mutations against it. It is
// cooperative: one goroutine drives the tickers, and at most one request
// per resource is ever in flight.
package syncclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"agency-portal-backend/internal/store"
)

const (
	resourceList  = "notifications"
	resourceStats = "stats"
)

// ListResult is the server's answer to a list poll.
type ListResult struct {
	Notifications []store.NotificationView `json:"notifications"`
	UnreadCount   int64                    `json:"unreadCount"`
}

// Config wires a Client to its server and tunes the polling cadence.
type Config struct {
	BaseURL          string
	Token            string
	ListInterval     time.Duration
	StatsInterval    time.Duration
	FailureThreshold int
	HTTPTimeout      time.Duration
}

// Client is the polling sync layer for one logged-in recipient.
type Client struct {
	http          *http.Client
	baseURL       string
	token         string
	listInterval  time.Duration
	statsInterval time.Duration

	// OnList, OnStats and OnFailure are invoked from the polling
	// goroutine. OnFailure only fires once consecutive poll failures
	// reach the configured threshold.
	OnList    func(ListResult)
	OnStats   func(store.Stats)
	OnFailure func(error)

	failureThreshold int

	mu       sync.Mutex
	inflight map[string]bool
	list     ListResult
	stats    store.Stats
	hasList  bool
	failures int

	// fresh tracks per-resource freshness markers; a mutation drops the
	// marker so the next tick refetches even if the interval has not
	// fully elapsed.
	fresh *cache.Cache
}

// New creates a sync client. Intervals and timeout fall back to sane
// defaults when unset.
func New(cfg Config) *Client {
	if cfg.ListInterval <= 0 {
		cfg.ListInterval = 30 * time.Second
	}
	if cfg.StatsInterval <= 0 {
		cfg.StatsInterval = 60 * time.Second
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 10 * time.Second
	}
	return &Client{
		http:             &http.Client{Timeout: cfg.HTTPTimeout},
		baseURL:          cfg.BaseURL,
		token:            cfg.Token,
		listInterval:     cfg.ListInterval,
		statsInterval:    cfg.StatsInterval,
		failureThreshold: cfg.FailureThreshold,
		inflight:         make(map[string]bool),
		fresh:            cache.New(cfg.ListInterval, 2*cfg.ListInterval),
	}
}

// Run polls until ctx is cancelled. Cancelling the context stops both
// tickers; no polling survives the consuming view.
func (c *Client) Run(ctx context.Context) {
	c.PollList(ctx)
	c.PollStats(ctx)

	listTicker := time.NewTicker(c.listInterval)
	statsTicker := time.NewTicker(c.statsInterval)
	defer listTicker.Stop()
	defer statsTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-listTicker.C:
			c.PollList(ctx)
		case <-statsTicker.C:
			c.PollStats(ctx)
		}
	}
}

// PollList fetches the notification list and unread count. A poll that
// would overlap an outstanding one for the same resource is coalesced into
// a no-op, and a still-fresh local copy short-circuits the request.
func (c *Client) PollList(ctx context.Context) {
	if !c.begin(resourceList) {
		return
	}
	defer c.end(resourceList)

	if _, fresh := c.fresh.Get(resourceList); fresh {
		return
	}

	var res ListResult
	if err := c.get(ctx, "/api/notifications", &res); err != nil {
		c.recordFailure(err)
		return
	}
	c.recordSuccess()

	c.mu.Lock()
	c.list = res
	c.hasList = true
	c.mu.Unlock()
	c.fresh.Set(resourceList, struct{}{}, c.listInterval)

	if c.OnList != nil {
		c.OnList(res)
	}
}

// PollStats fetches the aggregate stats on the slower cadence.
func (c *Client) PollStats(ctx context.Context) {
	if !c.begin(resourceStats) {
		return
	}
	defer c.end(resourceStats)

	if _, fresh := c.fresh.Get(resourceStats); fresh {
		return
	}

	var res store.Stats
	if err := c.get(ctx, "/api/notifications/stats", &res); err != nil {
		c.recordFailure(err)
		return
	}
	c.recordSuccess()

	c.mu.Lock()
	c.stats = res
	c.mu.Unlock()
	c.fresh.Set(resourceStats, struct{}{}, c.statsInterval)

	if c.OnStats != nil {
		c.OnStats(res)
	}
}

// MarkRead marks one notification read: the local view updates
// immediately, the server mutation follows, and the cached list is
// invalidated so the next poll reconciles with authoritative state.
func (c *Client) MarkRead(ctx context.Context, notificationID string) error {
	c.mu.Lock()
	for i := range c.list.Notifications {
		n := &c.list.Notifications[i]
		if n.ID == notificationID && !n.IsRead {
			now := time.Now().UTC()
			n.IsRead = true
			n.ReadAt = &now
			if c.list.UnreadCount > 0 {
				c.list.UnreadCount--
			}
		}
	}
	snapshot := c.list
	c.mu.Unlock()
	c.invalidate()

	if c.OnList != nil {
		c.OnList(snapshot)
	}

	return c.do(ctx, http.MethodPut, "/api/notifications/"+notificationID+"/read")
}

// MarkAllRead marks everything read with the same optimistic shape.
func (c *Client) MarkAllRead(ctx context.Context) error {
	c.mu.Lock()
	now := time.Now().UTC()
	for i := range c.list.Notifications {
		n := &c.list.Notifications[i]
		if !n.IsRead {
			n.IsRead = true
			n.ReadAt = &now
		}
	}
	c.list.UnreadCount = 0
	snapshot := c.list
	c.mu.Unlock()
	c.invalidate()

	if c.OnList != nil {
		c.OnList(snapshot)
	}

	return c.do(ctx, http.MethodPut, "/api/notifications/read-all")
}

// Delete removes one notification optimistically, then on the server.
func (c *Client) Delete(ctx context.Context, notificationID string) error {
	c.mu.Lock()
	kept := c.list.Notifications[:0]
	for _, n := range c.list.Notifications {
		if n.ID == notificationID {
			if !n.IsRead && c.list.UnreadCount > 0 {
				c.list.UnreadCount--
			}
			continue
		}
		kept = append(kept, n)
	}
	c.list.Notifications = kept
	snapshot := c.list
	c.mu.Unlock()
	c.invalidate()

	if c.OnList != nil {
		c.OnList(snapshot)
	}

	return c.do(ctx, http.MethodDelete, "/api/notifications/"+notificationID)
}

// Snapshot returns the current local view, if one has been fetched.
func (c *Client) Snapshot() (ListResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.list, c.hasList
}

// begin claims the in-flight slot for a resource; false means an identical
// request is already outstanding and this one coalesces away.
func (c *Client) begin(resource string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inflight[resource] {
		return false
	}
	c.inflight[resource] = true
	return true
}

func (c *Client) end(resource string) {
	c.mu.Lock()
	delete(c.inflight, resource)
	c.mu.Unlock()
}

func (c *Client) invalidate() {
	c.fresh.Delete(resourceList)
	c.fresh.Delete(resourceStats)
}

func (c *Client) recordFailure(err error) {
	c.mu.Lock()
	c.failures++
	n := c.failures
	c.mu.Unlock()

	log.Printf("syncclient: poll failed (%d consecutive): %v", n, err)
	if n >= c.failureThreshold && c.OnFailure != nil {
		c.OnFailure(err)
	}
}

func (c *Client) recordSuccess() {
	c.mu.Lock()
	c.failures = 0
	c.mu.Unlock()
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s returned %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) do(ctx context.Context, method, path string) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s %s returned %d", method, path, resp.StatusCode)
	}
	return nil
}
