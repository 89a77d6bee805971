// Package transcribe turns challenge audio into text through a remote speech service.
package transcribe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dkeye/Buster/internal/app/intercept"
	"github.com/dkeye/Buster/internal/core"
	"github.com/dkeye/Buster/internal/domain"
	"github.com/rs/zerolog/log"
)

const (
	DemoFailureTimeout    = 60 * time.Second
	GenericFailureTimeout = 6 * time.Second
)

// rate-limited providers get a longer, more specific failure notice
var demoServices = map[string]bool{
	"witSpeechApiDemo": true,
	"witSpeechApi":     true,
}

type Pipeline struct {
	Client       *http.Client
	Audio        Preparer
	Recognizers  map[string]Recognizer
	Fallback     string
	Settings     core.Settings
	Notifier     core.Notifier
	Interceptors *intercept.Manager
}

// Transcribe fetches, prepares and recognizes the audio at audioURL. On a
// response with no results it notifies the user and returns ok=false with a
// nil error. Transport and service failures are returned.
func (p *Pipeline) Transcribe(ctx context.Context, audioURL, lang string) (transcript string, ok bool, err error) {
	if p.Interceptors != nil {
		release := p.Interceptors.Acquire(intercept.KindOrigin)
		defer release()
	}

	logger := log.With().Str("module", "transcribe").Str("lang", lang).Logger()

	raw, err := p.fetch(ctx, audioURL)
	if err != nil {
		return "", false, err
	}
	wave, err := p.Audio.Prepare(ctx, raw)
	if err != nil {
		return "", false, fmt.Errorf("prepare audio: %w", err)
	}

	service := p.Settings.String("speechService")
	req := RecognizeRequest{
		Audio:              wave,
		Language:           SpeechLanguage(lang),
		DetectAltLanguages: p.Settings.Bool("tryEnglishSpeechModel"),
	}
	text, err := p.recognizer(service).Recognize(ctx, req)
	if err != nil {
		logger.Error().Err(err).Str("service", service).Msg("recognition failed")
		return "", false, err
	}

	if text == "" {
		logger.Info().Str("service", service).Msg("no transcript")
		p.notifyNotSolved(service)
		return "", false, nil
	}
	return text, true, nil
}

func (p *Pipeline) recognizer(service string) Recognizer {
	if r, ok := p.Recognizers[service]; ok {
		return r
	}
	return p.Recognizers[p.Fallback]
}

func (p *Pipeline) notifyNotSolved(service string) {
	if demoServices[service] {
		p.Notifier.Notify(domain.Notification{MessageID: "error_captchaNotSolvedWitai", Timeout: DemoFailureTimeout})
		return
	}
	p.Notifier.Notify(domain.Notification{MessageID: "error_captchaNotSolved", Timeout: GenericFailureTimeout})
}

func (p *Pipeline) fetch(ctx context.Context, audioURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, audioURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrNetwork, err)
	}
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch audio: %w", domain.ErrNetwork, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("%w: fetch audio: status %d", domain.ErrNetwork, resp.StatusCode)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch audio: %w", domain.ErrNetwork, err)
	}
	return raw, nil
}
