package signal

import (
	"encoding/json"
	"sync"

	"github.com/dkeye/Buster/internal/domain"
)

type queryReply struct {
	result json.RawMessage
	errMsg string
	err    error
}

type pendingQuery struct {
	conn *WsSignalConn
	ch   chan queryReply
}

// pendingQueries correlates agent queries with their replies by id.
type pendingQueries struct {
	mu   sync.Mutex
	byID map[string]pendingQuery
}

func newPendingQueries() *pendingQueries {
	return &pendingQueries{byID: make(map[string]pendingQuery)}
}

func (p *pendingQueries) add(id string, conn *WsSignalConn) <-chan queryReply {
	ch := make(chan queryReply, 1)
	p.mu.Lock()
	p.byID[id] = pendingQuery{conn: conn, ch: ch}
	p.mu.Unlock()
	return ch
}

func (p *pendingQueries) remove(id string) {
	p.mu.Lock()
	delete(p.byID, id)
	p.mu.Unlock()
}

// resolve delivers a reply. Only the connection that was queried may answer.
func (p *pendingQueries) resolve(conn *WsSignalConn, id string, r queryReply) bool {
	p.mu.Lock()
	q, ok := p.byID[id]
	if ok && q.conn == conn {
		delete(p.byID, id)
	}
	p.mu.Unlock()
	if !ok || q.conn != conn {
		return false
	}
	q.ch <- r
	return true
}

// failConn fails every query still waiting on conn.
func (p *pendingQueries) failConn(conn *WsSignalConn) {
	p.mu.Lock()
	var failed []pendingQuery
	for id, q := range p.byID {
		if q.conn == conn {
			failed = append(failed, q)
			delete(p.byID, id)
		}
	}
	p.mu.Unlock()
	for _, q := range failed {
		q.ch <- queryReply{err: domain.ErrNotFound}
	}
}
