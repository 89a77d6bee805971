package intercept

import (
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// Table is the interception surface: at most one registration per kind.
type Table struct {
	mu   sync.RWMutex
	regs map[Kind]*Interceptor

	obsMu     sync.Mutex
	observers []func([]Rule)
}

// Observe calls fn with the active rules after every change of the
// registration set. Calls are serialized and see changes in order.
func (t *Table) Observe(fn func([]Rule)) {
	t.obsMu.Lock()
	t.observers = append(t.observers, fn)
	t.obsMu.Unlock()
}

// Rules returns the active registrations in kind order.
func (t *Table) Rules() []Rule {
	regs := t.snapshot()
	out := make([]Rule, 0, len(regs))
	for _, i := range regs {
		out = append(out, i.Rule())
	}
	return out
}

func (t *Table) changed() {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	if len(t.observers) == 0 {
		return
	}
	rules := t.Rules()
	for _, fn := range t.observers {
		fn(rules)
	}
}

func NewTable() *Table {
	return &Table{regs: make(map[Kind]*Interceptor)}
}

// Register adds i unless its kind is already present.
func (t *Table) Register(i *Interceptor) bool {
	t.mu.Lock()
	if _, ok := t.regs[i.Kind]; ok {
		t.mu.Unlock()
		return false
	}
	t.regs[i.Kind] = i
	t.mu.Unlock()

	log.Debug().Str("module", "intercept").Str("kind", string(i.Kind)).Msg("registered")
	t.changed()
	return true
}

// Unregister removes the registration of kind, if any.
func (t *Table) Unregister(kind Kind) bool {
	t.mu.Lock()
	if _, ok := t.regs[kind]; !ok {
		t.mu.Unlock()
		return false
	}
	delete(t.regs, kind)
	t.mu.Unlock()

	log.Debug().Str("module", "intercept").Str("kind", string(kind)).Msg("unregistered")
	t.changed()
	return true
}

func (t *Table) Has(kind Kind) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.regs[kind]
	return ok
}

func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.regs)
}

func (t *Table) snapshot() []*Interceptor {
	t.mu.RLock()
	out := make([]*Interceptor, 0, len(t.regs))
	for _, i := range t.regs {
		out = append(out, i)
	}
	t.mu.RUnlock()
	sort.Slice(out, func(a, b int) bool { return out[a].Kind < out[b].Kind })
	return out
}

// Transport wraps next so that every outbound request passes through the
// interceptors registered at the time it is sent.
func (t *Table) Transport(next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return &roundTripper{table: t, next: next}
}

type roundTripper struct {
	table *Table
	next  http.RoundTripper
}

func (rt *roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	regs := rt.table.snapshot()
	if len(regs) == 0 {
		return rt.next.RoundTrip(req)
	}

	out := req.Clone(req.Context())
	for _, i := range regs {
		if !i.Match(out.URL) {
			continue
		}
		if redirect := i.Effect(out); redirect != "" {
			log.Debug().Str("module", "intercept").Str("kind", string(i.Kind)).Str("to", redirect).Msg("redirect")
			if req.Body != nil {
				_ = req.Body.Close()
			}
			return &http.Response{
				Status:     "307 Temporary Redirect",
				StatusCode: http.StatusTemporaryRedirect,
				Proto:      "HTTP/1.1",
				ProtoMajor: 1,
				ProtoMinor: 1,
				Header:     http.Header{"Location": []string{redirect}},
				Body:       io.NopCloser(strings.NewReader("")),
				Request:    req,
			}, nil
		}
	}
	return rt.next.RoundTrip(out)
}
