// Package native talks to the desktop helper over the browser native
// messaging framing: a 4-byte little-endian length followed by JSON.
package native

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/dkeye/Buster/internal/core"
	"github.com/dkeye/Buster/internal/domain"
	"github.com/rs/zerolog/log"
)

// MaxMessageSize caps a helper reply, matching what browsers accept.
const MaxMessageSize = 1 << 20

var ErrMessageTooLarge = errors.New("native message too large")

func writeMessage(w io.Writer, msg any) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	var header [4]byte
	binary.LittleEndian.PutUint32(header[:], uint32(len(body)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}

func readMessage(r io.Reader) (json.RawMessage, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(header[:])
	if n > MaxMessageSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, n)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return json.RawMessage(body), nil
}

// ProcessConnector launches the helper executable, passing the host name as
// its only argument.
type ProcessConnector struct {
	Path string
}

func (c *ProcessConnector) Connect(ctx context.Context, name string) (core.NativeChannel, error) {
	cmd := exec.Command(c.Path, name)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start helper: %w", err)
	}
	log.Info().Str("module", "adapters.native").Str("path", c.Path).Int("pid", cmd.Process.Pid).Msg("helper started")

	ch := newChannel(stdin, stdout, func() { _ = cmd.Process.Kill() })
	go func() {
		err := cmd.Wait()
		log.Info().Err(err).Str("module", "adapters.native").Msg("helper exited")
		ch.closeDone()
	}()
	return ch, nil
}

type channel struct {
	mu   sync.Mutex
	w    io.WriteCloser
	r    io.Reader
	kill func()

	done     chan struct{}
	doneOnce sync.Once
	stopOnce sync.Once
}

func newChannel(w io.WriteCloser, r io.Reader, kill func()) *channel {
	return &channel{w: w, r: r, kill: kill, done: make(chan struct{})}
}

type result struct {
	msg json.RawMessage
	err error
}

// Send is one request/reply exchange. Exchanges are serialized; a canceled
// exchange leaves the stream unusable, so the channel is torn down.
func (c *channel) Send(ctx context.Context, msg map[string]any) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.done:
		return nil, domain.ErrChannelClosed
	default:
	}

	res := make(chan result, 1)
	go func() {
		if err := writeMessage(c.w, msg); err != nil {
			res <- result{err: err}
			return
		}
		m, err := readMessage(c.r)
		res <- result{msg: m, err: err}
	}()

	select {
	case <-ctx.Done():
		c.Disconnect()
		return nil, ctx.Err()
	case <-c.done:
		return nil, domain.ErrChannelClosed
	case r := <-res:
		if r.err != nil {
			if errors.Is(r.err, io.EOF) || errors.Is(r.err, io.ErrClosedPipe) {
				return nil, domain.ErrChannelClosed
			}
			return nil, r.err
		}
		return r.msg, nil
	}
}

func (c *channel) Disconnect() {
	c.stopOnce.Do(func() {
		_ = c.w.Close()
		if c.kill != nil {
			c.kill()
		}
	})
}

func (c *channel) Done() <-chan struct{} { return c.done }

func (c *channel) closeDone() {
	c.doneOnce.Do(func() { close(c.done) })
}
