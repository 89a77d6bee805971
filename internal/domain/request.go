package domain

import "encoding/json"

type Kind string

const (
	KindNotification    Kind = "notification"
	KindCaptchaSolved   Kind = "captchaSolved"
	KindTranscribeAudio Kind = "transcribeAudio"
	KindResetCaptcha    Kind = "resetCaptcha"
	KindGetFramePos     Kind = "getFramePos"
	KindGetOsScale      Kind = "getOsScale"
	KindStartClientApp  Kind = "startClientApp"
	KindStopClientApp   Kind = "stopClientApp"
	KindMessageClient   Kind = "messageClientApp"
	KindOpenOptions     Kind = "openOptions"
	KindGetPlatform     Kind = "getPlatform"
	KindGetBrowser      Kind = "getBrowser"
	KindOptionChange    Kind = "optionChange"
)

// Request is one message from a context. Payload holds the kind-specific fields.
type Request struct {
	ID      string          `json:"id"`
	Kind    Kind            `json:"kind"`
	Sender  ContextRef      `json:"-"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response correlates to exactly one Request.
type Response struct {
	ID     string `json:"id"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

func (r Response) Failed() bool { return r.Error != "" }

type TranscribePayload struct {
	AudioURL string `json:"audioUrl"`
	Lang     string `json:"lang"`
}

type ResetPayload struct {
	ChallengeURL string `json:"challengeUrl"`
}

type FramePosPayload struct {
	FrameIndex int `json:"frameIndex"`
}

type ClientMessagePayload struct {
	Message map[string]any `json:"message"`
}

type PlatformInfo struct {
	OS        string `json:"os"`
	Arch      string `json:"arch"`
	TargetEnv string `json:"targetEnv"`
	IsWindows bool   `json:"isWindows"`
	IsMacos   bool   `json:"isMacos"`
	IsLinux   bool   `json:"isLinux"`
	IsMobile  bool   `json:"isMobile"`
}

type BrowserInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}
