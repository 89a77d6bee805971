// Package geometry resolves absolute screen positions of nested frames.
package geometry

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/Buster/internal/core"
	"github.com/dkeye/Buster/internal/domain"
	"github.com/rs/zerolog/log"
)

type Resolver struct {
	Frames core.FrameTree
	Agent  core.FrameAgent
}

func NewResolver(frames core.FrameTree, agent core.FrameAgent) *Resolver {
	return &Resolver{Frames: frames, Agent: agent}
}

// FramePos returns the on-screen position of the frame at frameIndex within
// the parent of from. Each ancestor reports the rect of its immediate child,
// scaled by its own pixel ratio and zoom, and the offsets are summed up to the
// top-level document. A top-level from yields {0,0}.
func (r *Resolver) FramePos(ctx context.Context, from domain.ContextRef, frameIndex int) (domain.Point, error) {
	var pos domain.Point
	cur := from
	index := frameIndex
	depth := 0

	for {
		info, err := r.Frames.Frame(ctx, cur)
		if err != nil {
			return domain.Point{}, unavailable(cur, err)
		}
		if info.IsTop() {
			break
		}

		parent := domain.ContextRef{Tab: cur.Tab, Frame: info.Parent}
		rect, err := r.Agent.ChildRect(ctx, parent, index)
		if err != nil {
			return domain.Point{}, unavailable(parent, err)
		}

		scale := scaleOf(rect.DevicePixelRatio, rect.Zoom)
		pos.X += rect.Left * scale
		pos.Y += rect.Top * scale

		index = rect.CurrentIndex
		cur = parent
		depth++
	}

	log.Debug().
		Str("module", "geometry").
		Int("tab", int(from.Tab)).
		Int("frame", int(from.Frame)).
		Int("depth", depth).
		Float64("x", pos.X).
		Float64("y", pos.Y).
		Msg("frame position resolved")
	return pos, nil
}

// OSScale is the tab's device pixel ratio with the browser zoom factored out.
func (r *Resolver) OSScale(ctx context.Context, tab domain.TabID) (float64, error) {
	top := domain.ContextRef{Tab: tab, Frame: domain.TopFrame}
	m, err := r.Agent.WindowMetrics(ctx, top)
	if err != nil {
		return 0, unavailable(top, err)
	}
	dpr := m.DevicePixelRatio
	if dpr <= 0 {
		dpr = 1
	}
	zoom := m.Zoom
	if zoom <= 0 {
		zoom = 1
	}
	return dpr / zoom, nil
}

// scaleOf composes pixel ratio and zoom multiplicatively. Missing values count as 1.
func scaleOf(dpr, zoom float64) float64 {
	if dpr <= 0 {
		dpr = 1
	}
	if zoom <= 0 {
		zoom = 1
	}
	return dpr * zoom
}

func unavailable(ref domain.ContextRef, err error) error {
	if errors.Is(err, domain.ErrFrameUnavailable) {
		return err
	}
	return fmt.Errorf("%w: tab %d frame %d: %w", domain.ErrFrameUnavailable, ref.Tab, ref.Frame, err)
}
