package intercept

import (
	"sync"

	"github.com/dkeye/Buster/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Manager installs interceptors on a Table by reference count: a kind stays
// registered while at least one operation holds it, so concurrent operations
// never remove an interceptor another one still needs.
type Manager struct {
	table   *Table
	metrics *metrics.Metrics

	mu   sync.Mutex
	defs map[Kind]*Interceptor
	refs map[Kind]int

	holdMu sync.Mutex
	held   map[Kind]func()
}

func NewManager(table *Table, m *metrics.Metrics, defs ...*Interceptor) *Manager {
	mgr := &Manager{
		table:   table,
		metrics: m,
		defs:    make(map[Kind]*Interceptor, len(defs)),
		refs:    make(map[Kind]int),
		held:    make(map[Kind]func()),
	}
	for _, d := range defs {
		mgr.defs[d.Kind] = d
	}
	return mgr
}

// Acquire takes a reference on kind and returns its release. Release is
// idempotent; the registration is removed when the last reference goes.
func (m *Manager) Acquire(kind Kind) (release func()) {
	m.mu.Lock()
	def, ok := m.defs[kind]
	if !ok {
		m.mu.Unlock()
		log.Warn().Str("module", "intercept").Str("kind", string(kind)).Msg("acquire of unknown interceptor")
		return func() {}
	}
	m.refs[kind]++
	n := m.refs[kind]
	if n == 1 {
		m.table.Register(def)
	}
	m.mu.Unlock()
	m.metrics.SetInterceptorRefs(string(kind), n)

	var once sync.Once
	return func() {
		once.Do(func() { m.release(kind) })
	}
}

func (m *Manager) release(kind Kind) {
	m.mu.Lock()
	m.refs[kind]--
	n := m.refs[kind]
	if n <= 0 {
		delete(m.refs, kind)
		n = 0
		m.table.Unregister(kind)
	}
	m.mu.Unlock()
	m.metrics.SetInterceptorRefs(string(kind), n)
}

// Hold keeps one policy-owned reference on kind while on is true. Repeated
// calls with the same value are no-ops.
func (m *Manager) Hold(kind Kind, on bool) {
	m.holdMu.Lock()
	defer m.holdMu.Unlock()
	release, holding := m.held[kind]
	switch {
	case on && !holding:
		m.held[kind] = m.Acquire(kind)
	case !on && holding:
		delete(m.held, kind)
		release()
	}
}

// Refs reports how many holders kind currently has.
func (m *Manager) Refs(kind Kind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refs[kind]
}

func (m *Manager) Active(kind Kind) bool { return m.table.Has(kind) }
