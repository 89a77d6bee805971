package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/Buster/internal/app"
	"github.com/dkeye/Buster/internal/app/intercept"
	"github.com/dkeye/Buster/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dispatchFunc func(ctx context.Context, req domain.Request) (domain.Response, bool)

func (f dispatchFunc) Dispatch(ctx context.Context, req domain.Request) (domain.Response, bool) {
	return f(ctx, req)
}

func (f dispatchFunc) Known(kind domain.Kind) bool { return kind == domain.KindGetPlatform }

type eventRecorder struct{ events chan string }

func (e *eventRecorder) OnEvent(_ context.Context, name string, payload json.RawMessage) error {
	e.events <- name + string(payload)
	return nil
}

// echoHub answers "getPlatform" with the sender's ref and ignores the rest.
var echoHub = dispatchFunc(func(_ context.Context, req domain.Request) (domain.Response, bool) {
	if req.Kind != domain.KindGetPlatform {
		return domain.Response{}, false
	}
	return domain.Response{ID: req.ID, Result: req.Sender}, true
})

func newTestServer(t *testing.T, hub Dispatcher) (*ContextWSController, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ctl := NewContextWSController(app.NewRegistry(), hub)
	ctl.QueryTimeout = 2 * time.Second

	r := gin.New()
	r.GET("/api/ws/context", func(c *gin.Context) {
		ctl.HandleContext(context.Background(), c)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return ctl, srv
}

func frameQuery(tab, frame, parent int) url.Values {
	q := url.Values{}
	q.Set("tab", fmt.Sprint(tab))
	q.Set("frame", fmt.Sprint(frame))
	q.Set("parent", fmt.Sprint(parent))
	q.Set("url", "https://www.google.com/recaptcha/api2/bframe")
	return q
}

func dialRaw(t *testing.T, srv *httptest.Server, q url.Values, origin string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws/context?" + q.Encode()
	var h http.Header
	if origin != "" {
		h = http.Header{"Origin": []string{origin}}
	}
	ws, resp, err := websocket.DefaultDialer.Dial(u, h)
	if err == nil {
		t.Cleanup(func() { _ = ws.Close() })
	}
	return ws, resp, err
}

func dial(t *testing.T, ctl *ContextWSController, srv *httptest.Server, tab, frame, parent int) *websocket.Conn {
	t.Helper()
	return dialAs(t, ctl, srv, frameQuery(tab, frame, parent), "")
}

func dialAs(t *testing.T, ctl *ContextWSController, srv *httptest.Server, q url.Values, origin string) *websocket.Conn {
	t.Helper()
	ws, _, err := dialRaw(t, srv, q, origin)
	require.NoError(t, err)

	tab, _ := strconv.Atoi(q.Get("tab"))
	frame, _ := strconv.Atoi(q.Get("frame"))

	ref := domain.ContextRef{Tab: domain.TabID(tab), Frame: domain.FrameID(frame)}
	require.Eventually(t, func() bool {
		_, ok := ctl.Registry.Conn(ref)
		return ok
	}, time.Second, 5*time.Millisecond)
	return ws
}

func readEnvelope(t *testing.T, ws *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var m map[string]any
	require.NoError(t, ws.ReadJSON(&m))
	return m
}

func TestRequestGetsCorrelatedResponse(t *testing.T) {
	ctl, srv := newTestServer(t, echoHub)
	ws := dial(t, ctl, srv, 3, 9, 0)

	require.NoError(t, ws.WriteJSON(map[string]any{"type": "request", "id": "r1", "kind": "getPlatform"}))
	m := readEnvelope(t, ws)
	assert.Equal(t, "response", m["type"])
	assert.Equal(t, "r1", m["id"])
	assert.Equal(t, map[string]any{"tabId": 3.0, "frameId": 9.0}, m["result"])
}

func TestUnknownKindGetsNoResponse(t *testing.T) {
	ctl, srv := newTestServer(t, echoHub)
	ws := dial(t, ctl, srv, 1, 0, -1)

	require.NoError(t, ws.WriteJSON(map[string]any{"type": "request", "id": "r1", "kind": "selfDestruct"}))
	require.NoError(t, ws.WriteJSON(map[string]any{"type": "request", "id": "r2", "kind": "getPlatform"}))
	m := readEnvelope(t, ws)
	assert.Equal(t, "r2", m["id"])
}

func TestPingPong(t *testing.T) {
	ctl, srv := newTestServer(t, echoHub)
	ws := dial(t, ctl, srv, 1, 0, -1)

	require.NoError(t, ws.WriteJSON(map[string]any{"type": "ping"}))
	assert.Equal(t, "pong", readEnvelope(t, ws)["type"])
}

func TestBadConnectParams(t *testing.T) {
	_, srv := newTestServer(t, echoHub)
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws/context?tab=abc"
	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAgentQueryRoundTrip(t *testing.T) {
	ctl, srv := newTestServer(t, echoHub)
	ws := dial(t, ctl, srv, 2, 0, -1)

	go func() {
		var q struct {
			ID    string         `json:"id"`
			Query string         `json:"query"`
			Args  map[string]int `json:"args"`
		}
		if err := ws.ReadJSON(&q); err != nil {
			return
		}
		_ = ws.WriteJSON(map[string]any{
			"type": "reply",
			"id":   q.ID,
			"result": map[string]any{
				"left": 10.0 * float64(q.Args["frameIndex"]), "top": 20, "devicePixelRatio": 2, "zoom": 1, "currentIndex": -1,
			},
		})
	}()

	rect, err := ctl.ChildRect(context.Background(), domain.ContextRef{Tab: 2, Frame: 0}, 3)
	require.NoError(t, err)
	assert.Equal(t, domain.ChildRect{Left: 30, Top: 20, DevicePixelRatio: 2, Zoom: 1, CurrentIndex: -1}, rect)
}

func TestAgentQueryError(t *testing.T) {
	ctl, srv := newTestServer(t, echoHub)
	ws := dial(t, ctl, srv, 2, 0, -1)

	go func() {
		var q struct {
			ID string `json:"id"`
		}
		if err := ws.ReadJSON(&q); err != nil {
			return
		}
		_ = ws.WriteJSON(map[string]any{"type": "reply", "id": q.ID, "error": "no such frame"})
	}()

	err := ctl.Inject(context.Background(), domain.ContextRef{Tab: 2, Frame: 0}, domain.Asset{Kind: "css", File: "/a.css"})
	var qe *QueryError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, QueryInject, qe.Query)
	assert.Equal(t, "no such frame", qe.Message)
}

func TestAgentQueryFailsWhenContextLeaves(t *testing.T) {
	ctl, srv := newTestServer(t, echoHub)
	ws := dial(t, ctl, srv, 2, 0, -1)

	go func() {
		var q map[string]any
		_ = ws.ReadJSON(&q)
		_ = ws.Close()
	}()

	_, err := ctl.ScriptsAllowed(context.Background(), domain.ContextRef{Tab: 2, Frame: 0})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.Eventually(t, func() bool {
		_, ok := ctl.Registry.Conn(domain.ContextRef{Tab: 2, Frame: 0})
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestAgentQueryUnknownContext(t *testing.T) {
	ctl, _ := newTestServer(t, echoHub)
	_, err := ctl.WindowMetrics(context.Background(), domain.ContextRef{Tab: 404, Frame: 0})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func dialShim(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	ws, _, err := dialRaw(t, srv, url.Values{"role": []string{RoleShim}}, "")
	require.NoError(t, err)
	return ws
}

func TestEventsAreForwardedOnlyFromShim(t *testing.T) {
	ctl, srv := newTestServer(t, echoHub)
	rec := &eventRecorder{events: make(chan string, 2)}
	ctl.Events = rec
	frame := dial(t, ctl, srv, 1, 0, -1)
	shim := dialShim(t, srv)

	require.NoError(t, frame.WriteJSON(map[string]any{"type": "event", "name": "actionClicked"}))
	require.NoError(t, shim.WriteJSON(map[string]any{"type": "event", "name": "installed", "payload": map[string]string{"reason": "update"}}))
	select {
	case got := <-rec.events:
		assert.Equal(t, `installed{"reason":"update"}`, got)
	case <-time.After(2 * time.Second):
		t.Fatal("event not forwarded")
	}
	select {
	case got := <-rec.events:
		t.Fatalf("frame event forwarded: %s", got)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestInterceptorRulesReachShim(t *testing.T) {
	ctl, srv := newTestServer(t, echoHub)
	table := intercept.NewTable()
	ctl.Rules = table
	table.Observe(ctl.PushInterceptors)
	mgr := intercept.NewManager(table, nil, intercept.ChallengeLocale())

	shim := dialShim(t, srv)
	initial := readEnvelope(t, shim)
	assert.Equal(t, "interceptors", initial["name"])
	assert.Empty(t, initial["payload"].(map[string]any)["active"])

	mgr.Hold(intercept.KindLocale, true)
	ev := readEnvelope(t, shim)
	require.Equal(t, "event", ev["type"])
	require.Equal(t, "interceptors", ev["name"])
	active := ev["payload"].(map[string]any)["active"].([]any)
	require.Len(t, active, 1)
	rule := active[0].(map[string]any)
	assert.Equal(t, "locale", rule["kind"])
	assert.Equal(t, intercept.ActionSetQuery, rule["action"])
	assert.Equal(t, map[string]any{"hl": "en"}, rule["params"])

	mgr.Hold(intercept.KindLocale, false)
	ev = readEnvelope(t, shim)
	assert.Empty(t, ev["payload"].(map[string]any)["active"])
}

func TestForeignOriginCannotTakeOverContext(t *testing.T) {
	const extension = "chrome-extension://buster"
	ctl, srv := newTestServer(t, echoHub)
	ctl.AllowedOrigins = []string{extension}

	owner := dialAs(t, ctl, srv, frameQuery(1, 0, -1), extension)
	before, ok := ctl.Registry.Conn(domain.ContextRef{Tab: 1, Frame: 0})
	require.True(t, ok)

	for _, origin := range []string{"https://evil.example", ""} {
		_, resp, err := dialRaw(t, srv, frameQuery(1, 0, -1), origin)
		require.Error(t, err, "origin %q", origin)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	}

	after, ok := ctl.Registry.Conn(domain.ContextRef{Tab: 1, Frame: 0})
	require.True(t, ok)
	assert.Same(t, before, after)

	require.NoError(t, owner.WriteJSON(map[string]any{"type": "ping"}))
	assert.Equal(t, "pong", readEnvelope(t, owner)["type"])
}

func TestDefaultOriginCheckIsSameOrigin(t *testing.T) {
	_, srv := newTestServer(t, echoHub)
	_, resp, err := dialRaw(t, srv, frameQuery(1, 0, -1), "https://evil.example")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestTokenRequired(t *testing.T) {
	ctl, srv := newTestServer(t, echoHub)
	ctl.Token = "s3cret"

	_, resp, err := dialRaw(t, srv, frameQuery(1, 0, -1), "")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	q := frameQuery(1, 0, -1)
	q.Set("token", "s3cret")
	dialAs(t, ctl, srv, q, "")
}

func TestRateLimitedUnknownKindGetsNoResponse(t *testing.T) {
	ctl, srv := newTestServer(t, echoHub)
	ctl.Limiter = NewRequestRateLimiter(1, time.Minute)
	ws := dial(t, ctl, srv, 1, 0, -1)

	require.NoError(t, ws.WriteJSON(map[string]any{"type": "request", "id": "a", "kind": "getPlatform"}))
	assert.Equal(t, "a", readEnvelope(t, ws)["id"])

	require.NoError(t, ws.WriteJSON(map[string]any{"type": "request", "id": "b", "kind": "launchMissiles"}))
	require.NoError(t, ws.WriteJSON(map[string]any{"type": "ping"}))
	assert.Equal(t, "pong", readEnvelope(t, ws)["type"], "unknown kind must stay silent even when limited")
}

func TestRateLimitedRequestFails(t *testing.T) {
	ctl, srv := newTestServer(t, echoHub)
	ctl.Limiter = NewRequestRateLimiter(1, time.Minute)
	ws := dial(t, ctl, srv, 1, 0, -1)

	require.NoError(t, ws.WriteJSON(map[string]any{"type": "request", "id": "r1", "kind": "getPlatform"}))
	assert.Equal(t, "r1", readEnvelope(t, ws)["id"])

	require.NoError(t, ws.WriteJSON(map[string]any{"type": "request", "id": "r2", "kind": "getPlatform"}))
	m := readEnvelope(t, ws)
	assert.Equal(t, "r2", m["id"])
	assert.Equal(t, "rate limited", m["error"])
}
