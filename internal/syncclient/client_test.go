package syncclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agency-portal-backend/internal/model"
	"agency-portal-backend/internal/store"
)

type fakeServer struct {
	mu        sync.Mutex
	list      ListResult
	stats     store.Stats
	listGets  atomic.Int64
	statsGets atomic.Int64
	mutations []string
	failList  atomic.Bool
	blockList chan struct{}
	server    *httptest.Server
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	f := &fakeServer{}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/notifications":
			if f.blockList != nil {
				<-f.blockList
			}
			f.listGets.Add(1)
			if f.failList.Load() {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			f.mu.Lock()
			defer f.mu.Unlock()
			json.NewEncoder(w).Encode(f.list)
		case r.Method == http.MethodGet && r.URL.Path == "/api/notifications/stats":
			f.statsGets.Add(1)
			f.mu.Lock()
			defer f.mu.Unlock()
			json.NewEncoder(w).Encode(f.stats)
		default:
			f.mu.Lock()
			f.mutations = append(f.mutations, r.Method+" "+r.URL.Path)
			f.mu.Unlock()
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeServer) setList(l ListResult) {
	f.mu.Lock()
	f.list = l
	f.mu.Unlock()
}

func (f *fakeServer) mutationLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.mutations...)
}

func unreadView(id, title string) store.NotificationView {
	return store.NotificationView{
		Notification: model.Notification{
			ID:      id,
			Title:   title,
			Message: "m",
			Type:    model.TypeInfo,
		},
	}
}

func newTestClient(f *fakeServer) *Client {
	return New(Config{
		BaseURL:          f.server.URL,
		Token:            "test-token",
		ListInterval:     50 * time.Millisecond,
		StatsInterval:    80 * time.Millisecond,
		FailureThreshold: 3,
	})
}

func TestPollListDeliversServerState(t *testing.T) {
	f := newFakeServer(t)
	f.setList(ListResult{
		Notifications: []store.NotificationView{unreadView("n1", "first")},
		UnreadCount:   1,
	})

	c := newTestClient(f)
	var got ListResult
	c.OnList = func(l ListResult) { got = l }

	c.PollList(context.Background())

	require.Len(t, got.Notifications, 1)
	assert.Equal(t, "first", got.Notifications[0].Title)
	assert.Equal(t, int64(1), got.UnreadCount)

	snap, ok := c.Snapshot()
	require.True(t, ok)
	assert.Equal(t, int64(1), snap.UnreadCount)
}

func TestOverlappingPollsCoalesce(t *testing.T) {
	f := newFakeServer(t)
	f.blockList = make(chan struct{})
	c := newTestClient(f)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.PollList(context.Background())
	}()

	// Wait for the first poll to claim the in-flight slot.
	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.inflight[resourceList]
	}, time.Second, time.Millisecond)

	// An identical poll while the first is outstanding is a no-op.
	c.PollList(context.Background())

	close(f.blockList)
	wg.Wait()

	assert.Equal(t, int64(1), f.listGets.Load())
}

func TestFreshListShortCircuitsPoll(t *testing.T) {
	f := newFakeServer(t)
	c := newTestClient(f)

	c.PollList(context.Background())
	c.PollList(context.Background())

	assert.Equal(t, int64(1), f.listGets.Load())
}

func TestMarkReadIsOptimisticThenReconciles(t *testing.T) {
	f := newFakeServer(t)
	f.setList(ListResult{
		Notifications: []store.NotificationView{unreadView("n1", "first"), unreadView("n2", "second")},
		UnreadCount:   2,
	})

	c := newTestClient(f)
	var updates []ListResult
	c.OnList = func(l ListResult) { updates = append(updates, l) }

	c.PollList(context.Background())
	require.NoError(t, c.MarkRead(context.Background(), "n1"))

	// The local view reflects the mutation before any further poll.
	snap, ok := c.Snapshot()
	require.True(t, ok)
	assert.Equal(t, int64(1), snap.UnreadCount)
	assert.True(t, snap.Notifications[0].IsRead)
	assert.False(t, snap.Notifications[1].IsRead)
	require.Len(t, updates, 2)

	assert.Equal(t, []string{"PUT /api/notifications/n1/read"}, f.mutationLog())

	// The mutation invalidated the cached list, so the next poll refetches.
	c.PollList(context.Background())
	assert.Equal(t, int64(2), f.listGets.Load())
}

func TestDeleteRemovesLocallyAndCallsServer(t *testing.T) {
	f := newFakeServer(t)
	f.setList(ListResult{
		Notifications: []store.NotificationView{unreadView("n1", "first"), unreadView("n2", "second")},
		UnreadCount:   2,
	})

	c := newTestClient(f)
	c.PollList(context.Background())

	require.NoError(t, c.Delete(context.Background(), "n2"))

	snap, _ := c.Snapshot()
	require.Len(t, snap.Notifications, 1)
	assert.Equal(t, "n1", snap.Notifications[0].ID)
	assert.Equal(t, int64(1), snap.UnreadCount)
	assert.Equal(t, []string{"DELETE /api/notifications/n2"}, f.mutationLog())
}

func TestMarkAllReadClearsUnread(t *testing.T) {
	f := newFakeServer(t)
	f.setList(ListResult{
		Notifications: []store.NotificationView{unreadView("n1", "first"), unreadView("n2", "second")},
		UnreadCount:   2,
	})

	c := newTestClient(f)
	c.PollList(context.Background())

	require.NoError(t, c.MarkAllRead(context.Background()))

	snap, _ := c.Snapshot()
	assert.Equal(t, int64(0), snap.UnreadCount)
	for _, n := range snap.Notifications {
		assert.True(t, n.IsRead)
	}
	assert.Equal(t, []string{"PUT /api/notifications/read-all"}, f.mutationLog())
}

func TestRunStopsWhenContextCancelled(t *testing.T) {
	f := newFakeServer(t)
	c := newTestClient(f)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	// Let at least the initial polls happen, then tear the view down.
	require.Eventually(t, func() bool { return f.listGets.Load() >= 1 }, time.Second, time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancellation")
	}

	// No background polling continues after the loop has exited.
	settled := f.listGets.Load() + f.statsGets.Load()
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, settled, f.listGets.Load()+f.statsGets.Load())
}

func TestFailureCallbackNeedsConsecutiveFailures(t *testing.T) {
	f := newFakeServer(t)
	f.failList.Store(true)

	c := newTestClient(f)
	var failures int
	c.OnFailure = func(error) { failures++ }

	c.PollList(context.Background())
	c.PollList(context.Background())
	assert.Equal(t, 0, failures, "below the threshold no user-facing error fires")

	c.PollList(context.Background())
	assert.Equal(t, 1, failures)

	// A success resets the streak.
	f.failList.Store(false)
	c.PollList(context.Background())
	c.mu.Lock()
	streak := c.failures
	c.mu.Unlock()
	assert.Equal(t, 0, streak)
}
