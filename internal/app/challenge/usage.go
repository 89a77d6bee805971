package challenge

import (
	"sync"

	"github.com/dkeye/Buster/internal/core"
	"github.com/rs/zerolog/log"
)

// Usage counts solved challenges and opens the contribution page at milestones.
type Usage struct {
	Settings      core.Settings
	Shell         core.Shell
	ContributeURL string

	mu sync.Mutex
}

func (u *Usage) RecordSolved() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	count := u.Settings.Int("useCount") + 1
	if err := u.Settings.Set("useCount", count); err != nil {
		return err
	}
	if isMilestone(count) && u.ContributeURL != "" {
		if err := u.Shell.OpenURL(u.ContributeURL); err != nil {
			log.Warn().Err(err).Str("module", "challenge").Msg("open contribution page")
		}
	}
	return nil
}

func isMilestone(count int) bool {
	return count == 30 || count == 100 || (count > 0 && count%300 == 0)
}
