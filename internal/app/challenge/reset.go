package challenge

import (
	"context"
	"fmt"
	"time"

	"github.com/dkeye/Buster/internal/core"
	"github.com/dkeye/Buster/internal/domain"
	"github.com/rs/zerolog/log"
)

// ResetWindow bounds how long the parent frame waits for the reset command.
const ResetWindow = 10 * time.Second

type Resetter struct {
	Frames   core.FrameTree
	Agent    core.FrameAgent
	Notifier core.Notifier
	Window   time.Duration
}

// Reset asks the frame hosting the challenge widget to reset it. When the page
// blocks scripts the user is notified instead.
func (r *Resetter) Reset(ctx context.Context, sender domain.ContextRef, challengeURL string) error {
	info, err := r.Frames.Frame(ctx, sender)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrFrameUnavailable, err)
	}
	if info.IsTop() {
		return fmt.Errorf("%w: challenge frame has no parent", domain.ErrFrameUnavailable)
	}
	parent := domain.ContextRef{Tab: sender.Tab, Frame: info.Parent}

	allowed, err := r.Agent.ScriptsAllowed(ctx, parent)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrFrameUnavailable, err)
	}
	if !allowed {
		r.Notifier.Notify(domain.Notification{MessageID: "error_scriptsNotAllowed"})
		return nil
	}

	window := r.Window
	if window <= 0 {
		window = ResetWindow
	}
	scoped, release := context.WithTimeout(ctx, window)
	defer release()

	if err := r.Agent.ResetCaptcha(scoped, parent, challengeURL); err != nil {
		return fmt.Errorf("reset challenge: %w", err)
	}
	log.Info().Str("module", "challenge").Int("tab", int(parent.Tab)).Int("frame", int(parent.Frame)).Msg("challenge reset")
	return nil
}
