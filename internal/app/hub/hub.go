// Package hub routes requests from execution contexts to their handlers.
package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dkeye/Buster/internal/domain"
	"github.com/dkeye/Buster/internal/metrics"
	"github.com/rs/zerolog/log"
)

type HandlerFunc func(ctx context.Context, req domain.Request) (any, error)

// Hub is a flat dispatch table over a fixed set of request kinds. It holds no
// lock while a handler runs, so requests are handled concurrently.
type Hub struct {
	handlers map[domain.Kind]HandlerFunc
	metrics  *metrics.Metrics
}

func New(m *metrics.Metrics) *Hub {
	return &Hub{
		handlers: make(map[domain.Kind]HandlerFunc),
		metrics:  m,
	}
}

// Handle must be called before the hub starts dispatching.
func (h *Hub) Handle(kind domain.Kind, fn HandlerFunc) {
	h.handlers[kind] = fn
}

// Known reports whether kind has a handler.
func (h *Hub) Known(kind domain.Kind) bool {
	_, ok := h.handlers[kind]
	return ok
}

func (h *Hub) Kinds() []domain.Kind {
	out := make([]domain.Kind, 0, len(h.handlers))
	for k := range h.handlers {
		out = append(out, k)
	}
	return out
}

// Dispatch runs the handler for req.Kind and returns its correlated response.
// ok is false for unknown kinds, which get no response at all.
func (h *Hub) Dispatch(ctx context.Context, req domain.Request) (resp domain.Response, ok bool) {
	fn, ok := h.handlers[req.Kind]
	if !ok {
		log.Debug().Str("module", "hub").Str("kind", string(req.Kind)).Msg("unknown request kind dropped")
		return domain.Response{}, false
	}

	start := time.Now()
	result, err := invoke(ctx, fn, req)
	resp = domain.Response{ID: req.ID}
	outcome := "ok"
	if err != nil {
		outcome = "error"
		resp.Error = err.Error()
		log.Warn().
			Err(err).
			Str("module", "hub").
			Str("kind", string(req.Kind)).
			Str("id", req.ID).
			Int("tab", int(req.Sender.Tab)).
			Int("frame", int(req.Sender.Frame)).
			Msg("request failed")
	} else {
		resp.Result = result
	}
	h.metrics.ObserveRequest(string(req.Kind), outcome, time.Since(start).Seconds())
	return resp, true
}

func invoke(ctx context.Context, fn HandlerFunc, req domain.Request) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("module", "hub").Str("kind", string(req.Kind)).Interface("panic", r).Msg("handler panic")
			result, err = nil, fmt.Errorf("handler panic: %v", r)
		}
	}()
	return fn(ctx, req)
}

func decode[T any](req domain.Request) (T, error) {
	var v T
	if len(req.Payload) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(req.Payload, &v); err != nil {
		return v, fmt.Errorf("bad %s payload: %w", req.Kind, err)
	}
	return v, nil
}
