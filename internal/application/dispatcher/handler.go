package dispatcher

import (
	"context"

	"github.com/garyjia/store-approval/internal/domain/event"
)

// Handler processes engine events. Errors are logged, never fed back to the engine.
type Handler func(ctx context.Context, evt *event.Event) error

// HandlerInfo contains handler metadata for debugging
type HandlerInfo struct {
	Name        string
	EventType   event.Type
	Handler     Handler
	Description string
}
