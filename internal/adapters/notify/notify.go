// Package notify shows hub notifications on the desktop.
package notify

import (
	"github.com/dkeye/Buster/internal/domain"
	"github.com/gen2brain/beeep"
	"github.com/rs/zerolog/log"
)

var catalog = map[string]string{
	"error_scriptsNotAllowed":     "Content scripts are not allowed on this page.",
	"error_captchaNotSolved":      "Captcha could not be solved. Try again after requesting a new challenge.",
	"error_captchaNotSolvedWitai": "Captcha could not be solved. Wit.ai did not return a transcription, try again after requesting a new challenge, or switch to another speech service.",
	"error_internalError":         "Something went wrong. Open the browser console for more details.",
	"error_missingApiKey":         "An API key for the speech service is required. Add it from the extension's options.",
	"error_apiQuotaExceeded":      "API quota exceeded. Try again later, or switch to another speech service.",
}

// Desktop sends notifications through the OS notification center.
type Desktop struct {
	AppName string
	send    func(title, message string, icon any) error
}

func NewDesktop(appName string) *Desktop {
	return &Desktop{AppName: appName, send: beeep.Notify}
}

// Text resolves the message shown for n.
func Text(n domain.Notification) string {
	if n.Message != "" {
		return n.Message
	}
	if msg, ok := catalog[n.MessageID]; ok {
		return msg
	}
	return n.MessageID
}

// Notify never fails the caller. The OS decides how long the notice stays up,
// so Timeout is only logged.
func (d *Desktop) Notify(n domain.Notification) {
	title := n.Title
	if title == "" {
		title = d.AppName
	}
	msg := Text(n)
	if err := d.send(title, msg, ""); err != nil {
		log.Warn().Err(err).Str("module", "notify").Str("message_id", n.MessageID).Msg("desktop notification failed")
		return
	}
	log.Info().
		Str("module", "notify").
		Str("message_id", n.MessageID).
		Str("type", n.Type).
		Dur("timeout", n.Timeout).
		Msg("notification shown")
}
