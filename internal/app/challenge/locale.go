// Package challenge holds the per-challenge helpers behind the hub: the
// locale-forcing policy, challenge reset and solve accounting.
package challenge

import (
	"sync"

	"github.com/dkeye/Buster/internal/app/intercept"
	"github.com/dkeye/Buster/internal/core"
	"github.com/rs/zerolog/log"
)

// LocalePolicy keeps the locale interceptor installed exactly while
// loadEnglishChallenge or simulateUserInput is enabled.
type LocalePolicy struct {
	Settings     core.Settings
	Interceptors *intercept.Manager

	mu sync.Mutex
}

// Evaluate reads the options and installs or removes the interceptor before
// returning. Evaluations are serialized so a stale read never wins.
func (p *LocalePolicy) Evaluate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	on := p.Settings.Bool("loadEnglishChallenge") || p.Settings.Bool("simulateUserInput")
	p.Interceptors.Hold(intercept.KindLocale, on)
	log.Debug().Str("module", "challenge").Bool("force_english", on).Msg("locale policy evaluated")
}
