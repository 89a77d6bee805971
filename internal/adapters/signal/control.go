package signal

import (
	"context"

	"github.com/dkeye/Buster/internal/domain"
	"github.com/rs/zerolog/log"
)

func (ctl *ContextWSController) handlePing(conn *WsSignalConn) {
	resp := struct {
		Type string `json:"type"`
	}{
		Type: "pong",
	}
	ctl.sendJSON(conn, resp)
}

type responseEnvelope struct {
	Type   string `json:"type"`
	ID     string `json:"id"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// handleRequest runs each request on its own goroutine so a slow
// transcription never holds up the connection.
func (ctl *ContextWSController) handleRequest(ctx context.Context, conn *WsSignalConn, env envelope) {
	req := domain.Request{
		ID:      env.ID,
		Kind:    domain.Kind(env.Kind),
		Sender:  conn.ref,
		Payload: env.Payload,
	}

	// unknown kinds get no response, not even a rate-limit failure
	if !ctl.Hub.Known(req.Kind) {
		log.Debug().Str("module", "signal").Str("kind", env.Kind).Msg("unknown request kind dropped")
		return
	}

	if !ctl.Limiter.Allow(conn.ref) {
		log.Warn().Str("module", "signal").Str("kind", env.Kind).Int("tab", int(conn.ref.Tab)).Msg("request rate limited")
		ctl.sendJSON(conn, responseEnvelope{Type: "response", ID: req.ID, Error: "rate limited"})
		return
	}

	go func() {
		resp, ok := ctl.Hub.Dispatch(ctx, req)
		if !ok {
			return
		}
		ctl.sendJSON(conn, responseEnvelope{
			Type:   "response",
			ID:     resp.ID,
			Result: resp.Result,
			Error:  resp.Error,
		})
	}()
}

func (ctl *ContextWSController) handleReply(conn *WsSignalConn, env envelope) {
	if !ctl.pending.resolve(conn, env.ID, queryReply{result: env.Result, errMsg: env.Error}) {
		log.Warn().Str("module", "signal").Str("id", env.ID).Msg("reply without pending query")
	}
}

func (ctl *ContextWSController) handleEvent(ctx context.Context, env envelope) {
	if ctl.Events == nil {
		return
	}
	go func() {
		if err := ctl.Events.OnEvent(ctx, env.Name, env.Payload); err != nil {
			log.Error().Err(err).Str("module", "signal").Str("event", env.Name).Msg("event handling failed")
		}
	}()
}
