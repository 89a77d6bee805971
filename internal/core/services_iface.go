package core

import (
	"context"
	"encoding/json"

	"github.com/dkeye/Buster/internal/domain"
)

// Settings is the user options store.
type Settings interface {
	Bool(key string) bool
	String(key string) string
	Int(key string) int
	Set(key string, value any) error
}

type Notifier interface {
	Notify(n domain.Notification)
}

// Shell opens pages outside of any context (options, contribution page).
type Shell interface {
	OpenURL(url string) error
}

// NativeChannel is one live connection to the native helper.
type NativeChannel interface {
	Send(ctx context.Context, msg map[string]any) (json.RawMessage, error)
	Disconnect()
	// Done is closed once the helper side has gone away.
	Done() <-chan struct{}
}

type NativeConnector interface {
	Connect(ctx context.Context, name string) (NativeChannel, error)
}
