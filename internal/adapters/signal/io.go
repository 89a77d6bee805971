package signal

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/dkeye/Buster/internal/app"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

type envelope struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Kind    string          `json:"kind,omitempty"`
	Name    string          `json:"name,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
}

func (ctl *ContextWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump ping")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				log.Warn().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

// readPump serves one connection. base outlives the connection so requests in
// flight finish even if the context leaves; their responses are then dropped.
func (ctl *ContextWSController) readPump(base, ctx context.Context, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Int("tab", int(c.ref.Tab)).Int("frame", int(c.ref.Frame)).Msg("readPump closing")
		if c.shim {
			ctl.removeShim(c)
			c.cancel()
		} else if ctl.Registry.Unbind(c.ref, c) {
			ctl.Limiter.Forget(c.ref)
		}
		ctl.pending.failConn(c)
		c.Close()
	}()

	pongWait := ctl.PingPeriod * 10 / 9
	c.conn.SetReadLimit(ctl.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Error().Err(err).Str("module", "signal").Msg("readPump read error")
				}
				return
			}
			_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
			ctl.handleSignal(base, c, data)
		}
	}
}

func (ctl *ContextWSController) handleSignal(ctx context.Context, c *WsSignalConn, data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		return
	}

	switch env.Type {
	case "request":
		ctl.handleRequest(ctx, c, env)
	case "reply":
		ctl.handleReply(c, env)
	case "event":
		if !c.shim {
			log.Warn().Str("module", "signal").Str("event", env.Name).Int("tab", int(c.ref.Tab)).Msg("event from non-shim context dropped")
			return
		}
		ctl.handleEvent(ctx, env)
	case "ping":
		ctl.handlePing(c)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
	}
}

func (ctl *ContextWSController) sendJSON(c *WsSignalConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	err = c.TrySend(b)
	switch {
	case err == nil:
		c.dropped.Store(0)
	case errors.Is(err, ErrBackpressure):
		n := c.dropped.Add(1)
		log.Warn().Str("module", "signal").Int("tab", int(c.ref.Tab)).Int("frame", int(c.ref.Frame)).Int64("dropped", n).Msg("sendJSON backpressure")
		if ctl.Policy != nil && ctl.Policy.OnBackpressure(c.ref, n) == app.CloseContext {
			log.Warn().Str("module", "signal").Int("tab", int(c.ref.Tab)).Int("frame", int(c.ref.Frame)).Msg("closing slow context")
			c.Close()
		}
	default:
		log.Warn().Err(err).Str("module", "signal").Int("tab", int(c.ref.Tab)).Int("frame", int(c.ref.Frame)).Msg("sendJSON dropped")
	}
}
