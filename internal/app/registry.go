package app

import (
	"context"
	"sort"
	"sync"

	"github.com/dkeye/Buster/internal/core"
	"github.com/dkeye/Buster/internal/domain"
	"github.com/rs/zerolog/log"
)

type contextEntry struct {
	Info   domain.FrameInfo
	Conn   core.SignalConnection
	Cancel context.CancelFunc
}

// Registry tracks live execution contexts. It is the hub's only view of the
// frame tree.
type Registry struct {
	mu       sync.RWMutex
	contexts map[domain.ContextRef]*contextEntry
}

func NewRegistry() *Registry {
	return &Registry{
		contexts: make(map[domain.ContextRef]*contextEntry),
	}
}

// Bind registers a context. A reconnect from the same frame replaces and
// cancels the previous binding.
func (r *Registry) Bind(info domain.FrameInfo, conn core.SignalConnection, cancel context.CancelFunc) {
	r.mu.Lock()
	old, replaced := r.contexts[info.Ref]
	r.contexts[info.Ref] = &contextEntry{
		Info:   info,
		Conn:   conn,
		Cancel: cancel,
	}
	r.mu.Unlock()

	if replaced && old.Cancel != nil {
		old.Cancel()
	}
	log.Info().
		Str("module", "app.registry").
		Int("tab", int(info.Ref.Tab)).
		Int("frame", int(info.Ref.Frame)).
		Int("parent", int(info.Parent)).
		Bool("replaced", replaced).
		Msg("bound context")
}

// Unbind removes ref only if it is still bound to conn.
func (r *Registry) Unbind(ref domain.ContextRef, conn core.SignalConnection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.contexts[ref]
	if !ok || e.Conn != conn {
		return false
	}
	delete(r.contexts, ref)
	log.Info().Str("module", "app.registry").Int("tab", int(ref.Tab)).Int("frame", int(ref.Frame)).Msg("unbind context")
	return true
}

func (r *Registry) Frame(_ context.Context, ref domain.ContextRef) (domain.FrameInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.contexts[ref]; ok {
		return e.Info, nil
	}
	return domain.FrameInfo{}, domain.ErrNotFound
}

func (r *Registry) Conn(ref domain.ContextRef) (core.SignalConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.contexts[ref]; ok {
		return e.Conn, true
	}
	return nil, false
}

// Tabs lists tabs with at least one live context, in ascending order.
func (r *Registry) Tabs() []domain.TabID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[domain.TabID]struct{})
	out := make([]domain.TabID, 0)
	for ref := range r.contexts {
		if _, ok := seen[ref.Tab]; ok {
			continue
		}
		seen[ref.Tab] = struct{}{}
		out = append(out, ref.Tab)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Frames lists the live frames of a tab ordered by frame id.
func (r *Registry) Frames(tab domain.TabID) []domain.FrameInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.FrameInfo, 0)
	for ref, e := range r.contexts {
		if ref.Tab == tab {
			out = append(out, e.Info)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ref.Frame < out[j].Ref.Frame })
	return out
}

func (r *Registry) Cancel(ref domain.ContextRef) bool {
	r.mu.RLock()
	e, ok := r.contexts[ref]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Int("tab", int(ref.Tab)).Int("frame", int(ref.Frame)).Msg("canceled context")
	return true
}
