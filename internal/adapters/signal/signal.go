package signal

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/Buster/internal/app"
	"github.com/dkeye/Buster/internal/app/intercept"
	"github.com/dkeye/Buster/internal/core"
	"github.com/dkeye/Buster/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

// Dispatcher answers requests. ok is false when the request gets no response.
type Dispatcher interface {
	Known(kind domain.Kind) bool
	Dispatch(ctx context.Context, req domain.Request) (domain.Response, bool)
}

// RuleSource reports the interceptor rules currently in force.
type RuleSource interface {
	Rules() []intercept.Rule
}

// EventHandler receives platform events forwarded by the browser shim.
type EventHandler interface {
	OnEvent(ctx context.Context, name string, payload json.RawMessage) error
}

// ContextWSController owns the WebSocket side of every execution context.
// It also acts as the frame agent for the rest of the hub.
type ContextWSController struct {
	Registry *app.Registry
	Hub      Dispatcher
	Events   EventHandler
	Limiter  *RequestRateLimiter
	Policy   app.BackpressurePolicy
	Rules    RuleSource

	// AllowedOrigins, when set, is the exact list of Origin values accepted
	// on connect. Otherwise only same-origin or Origin-less clients pass.
	AllowedOrigins []string
	// Token, when set, must be presented as the token query parameter.
	Token string

	ReadLimit    int64
	PingPeriod   time.Duration
	QueryTimeout time.Duration

	pending *pendingQueries

	shimMu sync.RWMutex
	shims  map[*WsSignalConn]struct{}
}

func NewContextWSController(reg *app.Registry, hub Dispatcher) *ContextWSController {
	return &ContextWSController{
		Registry:     reg,
		Hub:          hub,
		ReadLimit:    32768,
		PingPeriod:   54 * time.Second,
		QueryTimeout: 10 * time.Second,
		Policy:       app.ThresholdPolicy{MaxDropped: 8},
		pending:      newPendingQueries(),
		shims:        make(map[*WsSignalConn]struct{}),
	}
}

type WsSignalConn struct {
	ref  domain.ContextRef
	shim bool
	conn *websocket.Conn
	// cancel is set for shims, which the registry does not own
	cancel context.CancelFunc
	send   chan core.Frame

	dropped atomic.Int64

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

// origins are checked by authorize before the upgrade
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

const RoleShim = "shim"

var shimRef = domain.ContextRef{Tab: -1, Frame: domain.NoFrame}

func (ctl *ContextWSController) originAllowed(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if len(ctl.AllowedOrigins) > 0 {
		return origin != "" && slices.Contains(ctl.AllowedOrigins, origin)
	}
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	return err == nil && strings.EqualFold(u.Host, r.Host)
}

// authorize rejects foreign pages before anything is bound.
func (ctl *ContextWSController) authorize(c *gin.Context) bool {
	if !ctl.originAllowed(c.Request) {
		log.Warn().Str("module", "signal").Str("origin", c.GetHeader("Origin")).Msg("origin rejected")
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "origin not allowed"})
		return false
	}
	if ctl.Token != "" && subtle.ConstantTimeCompare([]byte(c.Query("token")), []byte(ctl.Token)) != 1 {
		log.Warn().Str("module", "signal").Msg("bad token")
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "bad token"})
		return false
	}
	return true
}

// ParseFrameInfo reads the context identity from the connect query string.
func ParseFrameInfo(c *gin.Context) (domain.FrameInfo, error) {
	tab, err := strconv.Atoi(c.Query("tab"))
	if err != nil {
		return domain.FrameInfo{}, errors.New("bad tab")
	}
	frame, err := strconv.Atoi(c.DefaultQuery("frame", "0"))
	if err != nil {
		return domain.FrameInfo{}, errors.New("bad frame")
	}
	parent, err := strconv.Atoi(c.DefaultQuery("parent", "-1"))
	if err != nil {
		return domain.FrameInfo{}, errors.New("bad parent")
	}
	return domain.FrameInfo{
		Ref:    domain.ContextRef{Tab: domain.TabID(tab), Frame: domain.FrameID(frame)},
		Parent: domain.FrameID(parent),
		URL:    c.Query("url"),
	}, nil
}

// HandleContext upgrades the request and binds the context until it leaves.
// ctx bounds the connection and every request it issues.
func (ctl *ContextWSController) HandleContext(ctx context.Context, c *gin.Context) {
	if !ctl.authorize(c) {
		return
	}
	if c.Query("role") == RoleShim {
		ctl.handleShim(ctx, c)
		return
	}

	info, err := ParseFrameInfo(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	log.Info().
		Str("module", "signal").
		Int("tab", int(info.Ref.Tab)).
		Int("frame", int(info.Ref.Frame)).
		Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := &WsSignalConn{
		ref:  info.Ref,
		conn: ws,
		send: make(chan core.Frame, 32),
	}

	connCtx, cancel := context.WithCancel(ctx)
	ctl.Registry.Bind(info, conn, cancel)

	go ctl.writePump(connCtx, conn)
	go ctl.readPump(ctx, connCtx, conn)
}

// handleShim serves the browser shim: it forwards platform events and applies
// the interceptor rules pushed to it. Shims are not part of the frame tree.
func (ctl *ContextWSController) handleShim(ctx context.Context, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	conn := &WsSignalConn{
		ref:  shimRef,
		shim: true,
		conn: ws,
		send: make(chan core.Frame, 32),
	}

	connCtx, cancel := context.WithCancel(ctx)
	conn.cancel = cancel

	ctl.shimMu.Lock()
	ctl.shims[conn] = struct{}{}
	ctl.shimMu.Unlock()
	log.Info().Str("module", "signal").Msg("shim connected")

	if ctl.Rules != nil {
		ctl.sendJSON(conn, interceptorsEvent(ctl.Rules.Rules()))
	}
	go ctl.writePump(connCtx, conn)
	go ctl.readPump(ctx, connCtx, conn)
}

func (ctl *ContextWSController) removeShim(c *WsSignalConn) {
	ctl.shimMu.Lock()
	delete(ctl.shims, c)
	ctl.shimMu.Unlock()
}

type eventEnvelope struct {
	Type    string `json:"type"`
	Name    string `json:"name"`
	Payload any    `json:"payload"`
}

func interceptorsEvent(rules []intercept.Rule) eventEnvelope {
	return eventEnvelope{
		Type:    "event",
		Name:    "interceptors",
		Payload: map[string]any{"active": rules},
	}
}

// PushInterceptors sends the active rule set to every connected shim.
func (ctl *ContextWSController) PushInterceptors(rules []intercept.Rule) {
	ctl.shimMu.RLock()
	targets := make([]*WsSignalConn, 0, len(ctl.shims))
	for c := range ctl.shims {
		targets = append(targets, c)
	}
	ctl.shimMu.RUnlock()

	ev := interceptorsEvent(rules)
	for _, c := range targets {
		ctl.sendJSON(c, ev)
	}
	log.Debug().Str("module", "signal").Int("rules", len(rules)).Int("shims", len(targets)).Msg("pushed interceptors")
}
