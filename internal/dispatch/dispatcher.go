package dispatch

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/SherClockHolmes/webpush-go"

	"agency-portal-backend/internal/model"
	"agency-portal-backend/internal/push"
	"agency-portal-backend/internal/store"
)

// Sender defines the interface for sending a web push notification.
type Sender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of Sender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// Result records the terminal outcome of the fan-out to one endpoint.
type Result struct {
	Endpoint string
	Attempts int
	Err      error
	Pruned   bool
}

// Dispatcher fans stored notifications out to their subscribers as
// independent per-endpoint Web Push sends. A pool of workers consumes
// notification IDs from a buffered channel.
type Dispatcher struct {
	size        int
	jobs        chan string
	store       store.Store
	webpush     *webpush.Options
	sender      Sender
	maxAttempts int
	backoff     time.Duration
}

// New creates a dispatcher backed by a worker pool of the given size.
func New(size int, s store.Store, webpushOptions *webpush.Options, maxAttempts int, backoff time.Duration) *Dispatcher {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Dispatcher{
		size:        size,
		jobs:        make(chan string, size),
		store:       s,
		webpush:     webpushOptions,
		sender:      &WebPushSender{},
		maxAttempts: maxAttempts,
		backoff:     backoff,
	}
}

// SetSender replaces the push sender; used by tests.
func (d *Dispatcher) SetSender(s Sender) {
	d.sender = s
}

// Start launches the worker goroutines.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.size; i++ {
		go d.worker(ctx, i)
	}
}

func (d *Dispatcher) worker(ctx context.Context, id int) {
	log.Printf("dispatch worker %d started", id)
	for {
		select {
		case notificationID := <-d.jobs:
			d.Deliver(ctx, notificationID)
		case <-ctx.Done():
			log.Printf("dispatch worker %d shutting down", id)
			return
		}
	}
}

// Enqueue hands a stored notification to the worker pool.
func (d *Dispatcher) Enqueue(notificationID string) {
	d.jobs <- notificationID
}

// Deliver resolves the subscriber set for a notification and fans out one
// independent send per subscription. A failure on one endpoint never
// affects delivery to the others.
func (d *Dispatcher) Deliver(ctx context.Context, notificationID string) []Result {
	n, err := d.store.GetNotification(ctx, notificationID)
	if err != nil {
		log.Printf("dispatch: cannot load notification %s: %v", notificationID, err)
		return nil
	}

	var owners []string
	if !n.Broadcast {
		owners = make([]string, len(n.Recipients))
		for i, r := range n.Recipients {
			owners[i] = r.RecipientID
		}
	}
	subs, err := d.store.ListActiveSubscriptions(ctx, owners)
	if err != nil {
		log.Printf("dispatch: cannot resolve subscribers for %s: %v", notificationID, err)
		return nil
	}
	if len(subs) == 0 {
		return nil
	}

	body, err := json.Marshal(push.BuildPayload(n))
	if err != nil {
		log.Printf("dispatch: cannot encode payload for %s: %v", notificationID, err)
		return nil
	}

	log.Printf("dispatch: sending notification %s to %d subscriptions", notificationID, len(subs))

	results := make([]Result, len(subs))
	var wg sync.WaitGroup
	for i, sub := range subs {
		wg.Add(1)
		go func(i int, sub model.Subscription) {
			defer wg.Done()
			results[i] = d.sendWithRetry(ctx, sub, body)
		}(i, sub)
	}
	wg.Wait()

	for _, r := range results {
		if r.Err != nil {
			log.Printf("dispatch: giving up on %s after %d attempts: %v", r.Endpoint, r.Attempts, r.Err)
		}
	}
	return results
}

// sendWithRetry pushes one payload to one endpoint, retrying transient
// failures with exponential backoff. Permanent failures prune the
// subscription from the registry.
func (d *Dispatcher) sendWithRetry(ctx context.Context, sub model.Subscription, payload []byte) Result {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	res := Result{Endpoint: sub.Endpoint}
	var lastErr error
	for attempt := 0; attempt < d.maxAttempts; attempt++ {
		if attempt > 0 {
			if !d.wait(ctx, d.backoff<<(attempt-1)) {
				res.Err = ctx.Err()
				return res
			}
		}
		res.Attempts++

		resp, err := d.sender.Send(payload, wpSub, d.webpush)
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return res
		case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
			log.Printf("dispatch: subscription %s is gone (%d), pruning", sub.Endpoint, resp.StatusCode)
			if err := d.store.DeleteSubscription(ctx, sub.Endpoint); err != nil {
				log.Printf("dispatch: failed to prune subscription %s: %v", sub.Endpoint, err)
			}
			res.Pruned = true
			return res
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			lastErr = &SendError{Endpoint: sub.Endpoint, StatusCode: resp.StatusCode}
			continue
		default:
			res.Err = &SendError{Endpoint: sub.Endpoint, StatusCode: resp.StatusCode}
			return res
		}
	}
	res.Err = lastErr
	return res
}

// wait sleeps for d or until the context is cancelled.
func (d *Dispatcher) wait(ctx context.Context, delay time.Duration) bool {
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
