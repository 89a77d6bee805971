package core

import (
	"context"

	"github.com/dkeye/Buster/internal/domain"
)

// FrameTree answers parent lookups. Lookups fail with domain.ErrNotFound once
// the context is gone.
type FrameTree interface {
	Frame(ctx context.Context, ref domain.ContextRef) (domain.FrameInfo, error)
	Tabs() []domain.TabID
	Frames(tab domain.TabID) []domain.FrameInfo
}

// FrameAgent runs capability-scoped queries inside one frame.
type FrameAgent interface {
	// ChildRect reports the bounding rect of the child at index within ref's
	// frame list, and ref's own index within its parent.
	ChildRect(ctx context.Context, ref domain.ContextRef, index int) (domain.ChildRect, error)
	WindowMetrics(ctx context.Context, ref domain.ContextRef) (domain.WindowMetrics, error)
	ScriptsAllowed(ctx context.Context, ref domain.ContextRef) (bool, error)
	ResetCaptcha(ctx context.Context, ref domain.ContextRef, challengeURL string) error
	Inject(ctx context.Context, ref domain.ContextRef, asset domain.Asset) error
	Reload(ctx context.Context, tab domain.TabID) error
}
