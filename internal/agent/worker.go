// Package agent implements the delivery worker: the background component on
// a recipient's device that turns push events into OS-level notifications
// and routes notification clicks. It holds no state between events beyond
// its lifecycle phase; every push and click is handled independently.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"agency-portal-backend/internal/push"
)

// State is the worker's lifecycle phase.
type State string

const (
	StateInstalling State = "installing"
	StateInstalled  State = "installed"
	StateActivating State = "activating"
	StateActive     State = "active"
)

// Display options applied to every surfaced notification. The fixed tag
// collapses rapid successive notifications into one visible entry,
// last write wins.
const (
	DefaultIcon  = "/assets/icon-192.png"
	DefaultBadge = "/assets/badge-72.png"
	CollapseTag  = "agency-portal-notification"
	AppRoot      = "/"
)

// Display is one OS-level notification ready to be shown.
type Display struct {
	Title              string
	Body               string
	Icon               string
	Badge              string
	Tag                string
	RequireInteraction bool
	Data               push.Data
	Actions            []push.Action
}

// Displayer surfaces and dismisses OS-level notifications.
type Displayer interface {
	Show(ctx context.Context, d Display) error
	Dismiss(tag string)
}

// WindowOpener focuses an existing client window on a URL or opens a new one.
type WindowOpener interface {
	Open(url string) error
}

// RouteKind names the exactly-one branch taken on a notification click.
type RouteKind string

const (
	RouteOpenURL RouteKind = "open_url"
	RouteDismiss RouteKind = "dismiss"
	RouteAppRoot RouteKind = "app_root"
)

// Route is the outcome of click handling.
type Route struct {
	Kind RouteKind
	URL  string
}

// Worker is the delivery worker state machine.
type Worker struct {
	state   State
	display Displayer
	windows WindowOpener
}

// NewWorker creates a worker in the installing phase.
func NewWorker(display Displayer, windows WindowOpener) *Worker {
	return &Worker{
		state:   StateInstalling,
		display: display,
		windows: windows,
	}
}

// State returns the worker's current lifecycle phase.
func (w *Worker) State() State {
	return w.state
}

// Install completes installation immediately, taking over from any prior
// worker instance without waiting for it to finish.
func (w *Worker) Install() {
	w.state = StateInstalled
}

// Activate claims all open client tabs so the worker controls them without
// a reload, then settles into the active phase.
func (w *Worker) Activate() {
	w.state = StateActivating
	w.state = StateActive
}

// HandlePush parses a push payload and surfaces an OS notification. The
// show call runs inside ctx, which the platform keeps alive for the span of
// the event; a malformed payload falls back to a generic display rather
// than dropping the event.
func (w *Worker) HandlePush(ctx context.Context, raw []byte) error {
	if w.state != StateActive {
		return fmt.Errorf("push event in state %q", w.state)
	}

	var payload push.Payload
	if err := json.Unmarshal(raw, &payload); err != nil {
		log.Printf("agent: malformed push payload: %v", err)
		payload = push.Payload{Title: "New notification"}
	}
	if payload.Title == "" {
		payload.Title = "New notification"
	}

	d := Display{
		Title:              payload.Title,
		Body:               payload.Body,
		Icon:               payload.Icon,
		Badge:              payload.Badge,
		Tag:                CollapseTag,
		RequireInteraction: true,
		Data:               payload.Data,
		Actions:            payload.Actions,
	}
	if d.Icon == "" {
		d.Icon = DefaultIcon
	}
	if d.Badge == "" {
		d.Badge = DefaultBadge
	}

	if err := w.display.Show(ctx, d); err != nil {
		return fmt.Errorf("failed to display notification: %w", err)
	}
	return nil
}

// HandleClick closes the clicked notification and takes exactly one routing
// branch: the payload URL for a view action, nothing for a close action,
// the application root otherwise.
func (w *Worker) HandleClick(action string, data push.Data) (Route, error) {
	w.display.Dismiss(CollapseTag)

	switch {
	case action == "close":
		return Route{Kind: RouteDismiss}, nil
	case action == "view" && data.URL != "":
		return Route{Kind: RouteOpenURL, URL: data.URL}, w.windows.Open(data.URL)
	default:
		return Route{Kind: RouteAppRoot, URL: AppRoot}, w.windows.Open(AppRoot)
	}
}

// HandleClose reacts to a dismissal without a click. Dismissing is not
// reading: no state is mutated.
func (w *Worker) HandleClose() {}
