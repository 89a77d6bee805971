// Package native owns the optional channel to the desktop helper process.
package native

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"sync"

	"github.com/dkeye/Buster/internal/core"
	"github.com/dkeye/Buster/internal/domain"
	"github.com/rs/zerolog/log"
)

const VersionField = "apiVersion"

// Bridge holds at most one channel. Start replaces and disconnects the previous
// channel; concurrent Starts race and the last one wins.
type Bridge struct {
	connector core.NativeConnector
	name      string
	version   string

	mu sync.Mutex
	ch core.NativeChannel
}

func NewBridge(connector core.NativeConnector, name, version string) *Bridge {
	return &Bridge{connector: connector, name: name, version: version}
}

func (b *Bridge) Start(ctx context.Context) error {
	ch, err := b.connector.Connect(ctx, b.name)
	if err != nil {
		return fmt.Errorf("connect %s: %w", b.name, err)
	}

	b.mu.Lock()
	prev := b.ch
	b.ch = ch
	b.mu.Unlock()

	if prev != nil {
		log.Info().Str("module", "native").Str("name", b.name).Msg("replacing existing channel")
		prev.Disconnect()
	}
	log.Info().Str("module", "native").Str("name", b.name).Msg("channel open")

	go b.watch(ch)
	return nil
}

// watch drops ch once the helper goes away, unless it was already replaced.
func (b *Bridge) watch(ch core.NativeChannel) {
	<-ch.Done()
	b.mu.Lock()
	current := b.ch == ch
	if current {
		b.ch = nil
	}
	b.mu.Unlock()
	if current {
		log.Warn().Str("module", "native").Str("name", b.name).Msg("channel disconnected")
	}
}

func (b *Bridge) Stop() {
	b.mu.Lock()
	ch := b.ch
	b.ch = nil
	b.mu.Unlock()
	if ch == nil {
		return
	}
	ch.Disconnect()
	log.Info().Str("module", "native").Str("name", b.name).Msg("channel stopped")
}

// Send stamps the protocol version on a copy of msg and forwards it.
func (b *Bridge) Send(ctx context.Context, msg map[string]any) (json.RawMessage, error) {
	b.mu.Lock()
	ch := b.ch
	b.mu.Unlock()
	if ch == nil {
		return nil, domain.ErrNoChannel
	}

	out := make(map[string]any, len(msg)+1)
	maps.Copy(out, msg)
	out[VersionField] = b.version

	return ch.Send(ctx, out)
}

func (b *Bridge) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ch != nil
}
