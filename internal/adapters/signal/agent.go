package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dkeye/Buster/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	QueryFrameClientPos = "frameClientPos"
	QueryWindowMetrics  = "windowMetrics"
	QueryScriptsAllowed = "scriptsAllowed"
	QueryResetCaptcha   = "resetCaptcha"
	QueryInject         = "inject"
	QueryReload         = "reload"
)

// QueryError is an error reported by the agent running in a context.
type QueryError struct {
	Query   string
	Message string
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%s: %s", e.Query, e.Message)
}

type queryEnvelope struct {
	Type  string `json:"type"`
	ID    string `json:"id"`
	Query string `json:"query"`
	Args  any    `json:"args,omitempty"`
}

// query asks the agent in ref and decodes its result into out.
func (ctl *ContextWSController) query(ctx context.Context, ref domain.ContextRef, name string, args any, out any) error {
	sc, ok := ctl.Registry.Conn(ref)
	if !ok {
		return domain.ErrNotFound
	}
	conn, ok := sc.(*WsSignalConn)
	if !ok {
		return fmt.Errorf("%s: unsupported connection %T", name, sc)
	}

	if ctl.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ctl.QueryTimeout)
		defer cancel()
	}

	id := uuid.NewString()
	ch := ctl.pending.add(id, conn)
	defer ctl.pending.remove(id)

	b, err := json.Marshal(queryEnvelope{Type: "query", ID: id, Query: name, Args: args})
	if err != nil {
		return err
	}
	if err := conn.TrySend(b); err != nil {
		if errors.Is(err, ErrConnClosed) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("%s: %w", name, err)
	}

	select {
	case <-ctx.Done():
		log.Warn().Str("module", "signal").Str("query", name).Int("tab", int(ref.Tab)).Int("frame", int(ref.Frame)).Msg("query abandoned")
		return ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return r.err
		}
		if r.errMsg != "" {
			return &QueryError{Query: name, Message: r.errMsg}
		}
		if out == nil || len(r.result) == 0 {
			return nil
		}
		if err := json.Unmarshal(r.result, out); err != nil {
			return fmt.Errorf("%s: bad result: %w", name, err)
		}
		return nil
	}
}

func (ctl *ContextWSController) ChildRect(ctx context.Context, parent domain.ContextRef, index int) (domain.ChildRect, error) {
	var rect domain.ChildRect
	err := ctl.query(ctx, parent, QueryFrameClientPos, map[string]int{"frameIndex": index}, &rect)
	return rect, err
}

func (ctl *ContextWSController) WindowMetrics(ctx context.Context, ref domain.ContextRef) (domain.WindowMetrics, error) {
	var m domain.WindowMetrics
	err := ctl.query(ctx, ref, QueryWindowMetrics, nil, &m)
	return m, err
}

func (ctl *ContextWSController) ScriptsAllowed(ctx context.Context, ref domain.ContextRef) (bool, error) {
	var allowed bool
	err := ctl.query(ctx, ref, QueryScriptsAllowed, nil, &allowed)
	return allowed, err
}

func (ctl *ContextWSController) ResetCaptcha(ctx context.Context, ref domain.ContextRef, challengeURL string) error {
	return ctl.query(ctx, ref, QueryResetCaptcha, domain.ResetPayload{ChallengeURL: challengeURL}, nil)
}

func (ctl *ContextWSController) Inject(ctx context.Context, ref domain.ContextRef, asset domain.Asset) error {
	return ctl.query(ctx, ref, QueryInject, asset, nil)
}

// Reload asks the tab's top document to reload itself.
func (ctl *ContextWSController) Reload(ctx context.Context, tab domain.TabID) error {
	return ctl.query(ctx, domain.ContextRef{Tab: tab, Frame: domain.TopFrame}, QueryReload, nil, nil)
}
