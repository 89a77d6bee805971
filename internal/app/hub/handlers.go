package hub

import (
	"context"
	"encoding/json"

	"github.com/dkeye/Buster/internal/core"
	"github.com/dkeye/Buster/internal/domain"
)

type Transcriber interface {
	Transcribe(ctx context.Context, audioURL, lang string) (string, bool, error)
}

type Geometry interface {
	FramePos(ctx context.Context, from domain.ContextRef, frameIndex int) (domain.Point, error)
	OSScale(ctx context.Context, tab domain.TabID) (float64, error)
}

type Resetter interface {
	Reset(ctx context.Context, sender domain.ContextRef, challengeURL string) error
}

type NativeBridge interface {
	Start(ctx context.Context) error
	Stop()
	Send(ctx context.Context, msg map[string]any) (json.RawMessage, error)
}

type Platform interface {
	Platform() domain.PlatformInfo
	Browser() domain.BrowserInfo
	OpenOptions() error
}

type UsageRecorder interface {
	RecordSolved() error
}

type OptionWatcher interface {
	Evaluate()
}

// Services are the collaborators behind the request kinds.
type Services struct {
	Notifier    core.Notifier
	Usage       UsageRecorder
	Transcriber Transcriber
	Resetter    Resetter
	Geometry    Geometry
	Native      NativeBridge
	Platform    Platform
	Options     OptionWatcher
}

// Register installs the handler for every request kind.
func Register(h *Hub, s Services) {
	h.Handle(domain.KindNotification, func(_ context.Context, req domain.Request) (any, error) {
		p, err := decode[domain.NotificationPayload](req)
		if err != nil {
			return nil, err
		}
		s.Notifier.Notify(p.Notification())
		return nil, nil
	})

	h.Handle(domain.KindCaptchaSolved, func(context.Context, domain.Request) (any, error) {
		return nil, s.Usage.RecordSolved()
	})

	h.Handle(domain.KindTranscribeAudio, func(ctx context.Context, req domain.Request) (any, error) {
		p, err := decode[domain.TranscribePayload](req)
		if err != nil {
			return nil, err
		}
		text, ok, err := s.Transcriber.Transcribe(ctx, p.AudioURL, p.Lang)
		if err != nil || !ok {
			return nil, err
		}
		return text, nil
	})

	h.Handle(domain.KindResetCaptcha, func(ctx context.Context, req domain.Request) (any, error) {
		p, err := decode[domain.ResetPayload](req)
		if err != nil {
			return nil, err
		}
		return nil, s.Resetter.Reset(ctx, req.Sender, p.ChallengeURL)
	})

	h.Handle(domain.KindGetFramePos, func(ctx context.Context, req domain.Request) (any, error) {
		p, err := decode[domain.FramePosPayload](req)
		if err != nil {
			return nil, err
		}
		return s.Geometry.FramePos(ctx, req.Sender, p.FrameIndex)
	})

	h.Handle(domain.KindGetOsScale, func(ctx context.Context, req domain.Request) (any, error) {
		return s.Geometry.OSScale(ctx, req.Sender.Tab)
	})

	h.Handle(domain.KindStartClientApp, func(ctx context.Context, _ domain.Request) (any, error) {
		return nil, s.Native.Start(ctx)
	})

	h.Handle(domain.KindStopClientApp, func(context.Context, domain.Request) (any, error) {
		s.Native.Stop()
		return nil, nil
	})

	h.Handle(domain.KindMessageClient, func(ctx context.Context, req domain.Request) (any, error) {
		p, err := decode[domain.ClientMessagePayload](req)
		if err != nil {
			return nil, err
		}
		return s.Native.Send(ctx, p.Message)
	})

	h.Handle(domain.KindOpenOptions, func(context.Context, domain.Request) (any, error) {
		return nil, s.Platform.OpenOptions()
	})

	h.Handle(domain.KindGetPlatform, func(context.Context, domain.Request) (any, error) {
		return s.Platform.Platform(), nil
	})

	h.Handle(domain.KindGetBrowser, func(context.Context, domain.Request) (any, error) {
		return s.Platform.Browser(), nil
	})

	h.Handle(domain.KindOptionChange, func(context.Context, domain.Request) (any, error) {
		s.Options.Evaluate()
		return nil, nil
	})
}
