// Package push defines the wire payload carried inside an encrypted Web
// Push message, shared between the server-side dispatcher and the
// client-side delivery worker.
package push

import (
	"agency-portal-backend/internal/model"
)

// Action is one button rendered on the OS notification.
type Action struct {
	Action string `json:"action"`
	Title  string `json:"title"`
}

// Data carries click-routing context for the delivery worker.
type Data struct {
	URL string `json:"url,omitempty"`
}

// Payload is the JSON document inside an encrypted push message.
type Payload struct {
	Title   string   `json:"title"`
	Body    string   `json:"body"`
	Icon    string   `json:"icon,omitempty"`
	Badge   string   `json:"badge,omitempty"`
	Data    Data     `json:"data"`
	Actions []Action `json:"actions"`
}

// BuildPayload maps a stored notification onto the wire payload.
func BuildPayload(n *model.Notification) Payload {
	p := Payload{
		Title: n.Title,
		Body:  n.Message,
		Data:  Data{URL: n.ActionURL},
	}
	if n.ActionURL != "" {
		title := n.ActionText
		if title == "" {
			title = "View"
		}
		p.Actions = append(p.Actions, Action{Action: "view", Title: title})
	}
	p.Actions = append(p.Actions, Action{Action: "close", Title: "Dismiss"})
	return p
}
