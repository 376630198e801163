package dispatch

import "fmt"

// SendError reports a push service response that ended a send.
type SendError struct {
	Endpoint   string
	StatusCode int
}

func (e *SendError) Error() string {
	return fmt.Sprintf("push send to %s failed with status %d", e.Endpoint, e.StatusCode)
}
