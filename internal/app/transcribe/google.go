package transcribe

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/dkeye/Buster/internal/domain"
)

const (
	GoogleSpeechService   = "googleSpeechApi"
	DefaultGoogleEndpoint = "https://speech.googleapis.com/v1p1beta1/speech:recognize"
)

// RecognizeRequest is one synchronous recognition call.
type RecognizeRequest struct {
	Audio              []byte
	Language           string
	DetectAltLanguages bool
}

// Recognizer abstracts speech backends. An empty transcript with a nil error
// means the service answered but found nothing.
type Recognizer interface {
	Recognize(ctx context.Context, req RecognizeRequest) (string, error)
}

type GoogleSpeech struct {
	Endpoint string
	Key      func() string
	Client   *http.Client
}

type googleConfig struct {
	Encoding                 string   `json:"encoding"`
	LanguageCode             string   `json:"languageCode"`
	Model                    string   `json:"model"`
	SampleRateHertz          int      `json:"sampleRateHertz"`
	AlternativeLanguageCodes []string `json:"alternativeLanguageCodes,omitempty"`
}

type googleRequest struct {
	Audio struct {
		Content string `json:"content"`
	} `json:"audio"`
	Config googleConfig `json:"config"`
}

type googleResponse struct {
	Results []struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"results"`
}

func buildGoogleRequest(req RecognizeRequest) googleRequest {
	var body googleRequest
	body.Audio.Content = base64.StdEncoding.EncodeToString(req.Audio)
	body.Config = googleConfig{
		Encoding:        "LINEAR16",
		LanguageCode:    req.Language,
		Model:           "video",
		SampleRateHertz: CanonicalSampleRate,
	}
	if !isEnglish(req.Language) && req.DetectAltLanguages {
		body.Config.Model = "default"
		body.Config.AlternativeLanguageCodes = []string{"en-US"}
	}
	return body
}

func (g *GoogleSpeech) Recognize(ctx context.Context, req RecognizeRequest) (string, error) {
	payload, err := json.Marshal(buildGoogleRequest(req))
	if err != nil {
		return "", err
	}

	endpoint := g.Endpoint
	if endpoint == "" {
		endpoint = DefaultGoogleEndpoint
	}
	key := ""
	if g.Key != nil {
		key = g.Key()
	}
	target := endpoint + "?key=" + url.QueryEscape(key)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	client := g.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: recognize: %w", domain.ErrNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read recognize response: %w", domain.ErrNetwork, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &domain.ServiceError{Status: resp.StatusCode, Body: string(body)}
	}

	var out googleResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("decode recognize response: %w", err)
	}
	if len(out.Results) == 0 || len(out.Results[0].Alternatives) == 0 {
		return "", nil
	}
	return strings.TrimSpace(out.Results[0].Alternatives[0].Transcript), nil
}
