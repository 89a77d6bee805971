package transcribe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Buster/internal/app/intercept"
	"github.com/dkeye/Buster/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapSettings map[string]any

func (m mapSettings) Bool(k string) bool     { v, _ := m[k].(bool); return v }
func (m mapSettings) String(k string) string { v, _ := m[k].(string); return v }
func (m mapSettings) Int(k string) int       { v, _ := m[k].(int); return v }
func (m mapSettings) Set(k string, v any) error {
	m[k] = v
	return nil
}

type recordingNotifier struct {
	mu  sync.Mutex
	got []domain.Notification
}

func (n *recordingNotifier) Notify(x domain.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.got = append(n.got, x)
}

type passthrough struct{}

func (passthrough) Prepare(_ context.Context, raw []byte) ([]byte, error) { return raw, nil }

type recognizerFunc func(context.Context, RecognizeRequest) (string, error)

func (f recognizerFunc) Recognize(ctx context.Context, r RecognizeRequest) (string, error) {
	return f(ctx, r)
}

type fixture struct {
	pipeline *Pipeline
	notifier *recordingNotifier
	manager  *intercept.Manager
	audioURL string
}

func newFixture(t *testing.T, settings mapSettings, rec Recognizer) *fixture {
	t.Helper()
	audioSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("audio-bytes"))
	}))
	t.Cleanup(audioSrv.Close)

	n := &recordingNotifier{}
	mgr := intercept.NewManager(intercept.NewTable(), nil, intercept.OriginStripper("o"))
	return &fixture{
		pipeline: &Pipeline{
			Client:       audioSrv.Client(),
			Audio:        passthrough{},
			Recognizers:  map[string]Recognizer{GoogleSpeechService: rec},
			Fallback:     GoogleSpeechService,
			Settings:     settings,
			Notifier:     n,
			Interceptors: mgr,
		},
		notifier: n,
		manager:  mgr,
		audioURL: audioSrv.URL + "/audio.mp3",
	}
}

func TestTranscribeReturnsTranscript(t *testing.T) {
	var f *fixture
	var got RecognizeRequest
	f = newFixture(t, mapSettings{"tryEnglishSpeechModel": true}, recognizerFunc(func(_ context.Context, r RecognizeRequest) (string, error) {
		got = r
		assert.True(t, f.manager.Active(intercept.KindOrigin), "origin stripper active during the call")
		return "seven", nil
	}))

	text, ok, err := f.pipeline.Transcribe(context.Background(), f.audioURL, "fr")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "seven", text)
	assert.Equal(t, "fr-FR", got.Language)
	assert.True(t, got.DetectAltLanguages)
	assert.Equal(t, []byte("audio-bytes"), got.Audio)
	assert.Empty(t, f.notifier.got)
	assert.False(t, f.manager.Active(intercept.KindOrigin))
}

func TestTranscribeNoResultNotifies(t *testing.T) {
	cases := []struct {
		service string
		msgID   string
		timeout time.Duration
	}{
		{"witSpeechApiDemo", "error_captchaNotSolvedWitai", DemoFailureTimeout},
		{"witSpeechApi", "error_captchaNotSolvedWitai", DemoFailureTimeout},
		{"googleSpeechApi", "error_captchaNotSolved", GenericFailureTimeout},
		{"ibmSpeechApi", "error_captchaNotSolved", GenericFailureTimeout},
	}
	for _, tc := range cases {
		t.Run(tc.service, func(t *testing.T) {
			f := newFixture(t, mapSettings{"speechService": tc.service}, recognizerFunc(func(context.Context, RecognizeRequest) (string, error) {
				return "", nil
			}))

			text, ok, err := f.pipeline.Transcribe(context.Background(), f.audioURL, "en")
			require.NoError(t, err)
			assert.False(t, ok)
			assert.Empty(t, text)
			require.Len(t, f.notifier.got, 1)
			assert.Equal(t, tc.msgID, f.notifier.got[0].MessageID)
			assert.Equal(t, tc.timeout, f.notifier.got[0].Timeout)
		})
	}
}

func TestTranscribeServiceErrorPropagates(t *testing.T) {
	f := newFixture(t, mapSettings{}, recognizerFunc(func(context.Context, RecognizeRequest) (string, error) {
		return "", &domain.ServiceError{Status: 403, Body: "forbidden"}
	}))

	_, ok, err := f.pipeline.Transcribe(context.Background(), f.audioURL, "en")
	assert.False(t, ok)
	var se *domain.ServiceError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 403, se.Status)
	assert.Contains(t, err.Error(), "forbidden")
	assert.Empty(t, f.notifier.got)
	assert.False(t, f.manager.Active(intercept.KindOrigin), "released on error")
}

func TestTranscribeFetchFailure(t *testing.T) {
	f := newFixture(t, mapSettings{}, recognizerFunc(func(context.Context, RecognizeRequest) (string, error) {
		t.Fatal("recognizer must not run")
		return "", nil
	}))
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	_, _, err := f.pipeline.Transcribe(context.Background(), srv.URL, "en")
	assert.ErrorIs(t, err, domain.ErrNetwork)
	assert.Equal(t, 0, f.manager.Refs(intercept.KindOrigin))
}

func TestTranscribeConcurrentCallsKeepInterceptor(t *testing.T) {
	gate := make(chan struct{})
	entered := make(chan struct{}, 2)
	f := newFixture(t, mapSettings{}, recognizerFunc(func(ctx context.Context, r RecognizeRequest) (string, error) {
		entered <- struct{}{}
		<-gate
		return "ok", nil
	}))

	slowDone := make(chan error, 1)
	go func() {
		_, _, err := f.pipeline.Transcribe(context.Background(), f.audioURL, "en")
		slowDone <- err
	}()
	<-entered

	fast := *f.pipeline
	fast.Recognizers = map[string]Recognizer{GoogleSpeechService: recognizerFunc(func(context.Context, RecognizeRequest) (string, error) {
		return "", errors.New("boom")
	})}
	_, _, err := fast.Transcribe(context.Background(), f.audioURL, "en")
	require.Error(t, err)

	assert.True(t, f.manager.Active(intercept.KindOrigin), "first call still in flight")
	close(gate)
	require.NoError(t, <-slowDone)
	assert.False(t, f.manager.Active(intercept.KindOrigin))
}
