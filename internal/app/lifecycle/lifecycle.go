// Package lifecycle runs the hub's process-wide setup and reacts to platform
// events forwarded by the browser shim.
package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/dkeye/Buster/internal/core"
	"github.com/dkeye/Buster/internal/domain"
	"github.com/rs/zerolog/log"
)

const (
	EventInstalled     = "installed"
	EventActionClicked = "actionClicked"

	setupPagePrefix = "http://127.0.0.1/buster/setup?session="
)

var challengeURLRx = regexp.MustCompile(`^https://(?:www\.)?(?:google\.com|recaptcha\.net)/recaptcha/(?:api2|enterprise)/bframe.*`)

var solverAssets = []domain.Asset{
	{Kind: "css", File: "/src/solve/style.css", RunAt: "document_idle"},
	{Kind: "script", File: "/src/solve/script.js", RunAt: "document_idle"},
}

// targets whose already-open tabs do not receive content scripts on install
var reinjectTargets = []string{"chrome", "edge", "opera"}

type Store interface {
	Ready() bool
	Migrate() error
	Init() error
}

type LocaleEvaluator interface {
	Evaluate()
}

type OptionsOpener interface {
	OpenOptions() error
}

type Controller struct {
	Store     Store
	Locale    LocaleEvaluator
	Frames    core.FrameTree
	Agent     core.FrameAgent
	Options   OptionsOpener
	TargetEnv string
}

// Setup migrates and initializes storage when needed, then applies the
// locale policy. It runs once at process start.
func (c *Controller) Setup(ctx context.Context) error {
	if !c.Store.Ready() {
		if err := c.Store.Migrate(); err != nil {
			return fmt.Errorf("migrate storage: %w", err)
		}
		if err := c.Store.Init(); err != nil {
			return fmt.Errorf("init storage: %w", err)
		}
		log.Info().Str("module", "lifecycle").Msg("storage initialized")
	}
	c.Locale.Evaluate()
	return nil
}

type installedPayload struct {
	Reason string `json:"reason"`
}

// OnEvent handles a platform event. Unknown events are ignored.
func (c *Controller) OnEvent(ctx context.Context, name string, payload json.RawMessage) error {
	switch name {
	case EventInstalled:
		var p installedPayload
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &p); err != nil {
				return fmt.Errorf("bad installed payload: %w", err)
			}
		}
		return c.OnInstalled(ctx, p.Reason)
	case EventActionClicked:
		return c.Options.OpenOptions()
	default:
		log.Debug().Str("module", "lifecycle").Str("event", name).Msg("unknown event")
		return nil
	}
}

// OnInstalled re-injects the solver into open challenge frames and reloads
// helper setup pages after an install or update.
func (c *Controller) OnInstalled(ctx context.Context, reason string) error {
	if !slices.Contains(reinjectTargets, c.TargetEnv) || (reason != "install" && reason != "update") {
		return nil
	}

	var errs []error
	injected := 0
	for _, tab := range c.Frames.Tabs() {
		frames := c.Frames.Frames(tab)
		if len(frames) == 0 || !isWebPage(topURL(frames)) {
			continue
		}
		for _, f := range frames {
			if f.Ref.Frame == domain.TopFrame || !challengeURLRx.MatchString(f.URL) {
				continue
			}
			for _, asset := range solverAssets {
				if err := c.Agent.Inject(ctx, f.Ref, asset); err != nil {
					errs = append(errs, fmt.Errorf("inject %s into tab %d frame %d: %w", asset.File, f.Ref.Tab, f.Ref.Frame, err))
				}
			}
			injected++
		}
	}

	for _, tab := range c.Frames.Tabs() {
		if !strings.HasPrefix(topURL(c.Frames.Frames(tab)), setupPagePrefix) {
			continue
		}
		if err := c.Agent.Reload(ctx, tab); err != nil {
			errs = append(errs, fmt.Errorf("reload tab %d: %w", tab, err))
		}
	}

	log.Info().Str("module", "lifecycle").Str("reason", reason).Int("frames", injected).Int("errors", len(errs)).Msg("reinjected solver")
	return errors.Join(errs...)
}

func topURL(frames []domain.FrameInfo) string {
	for _, f := range frames {
		if f.IsTop() {
			return f.URL
		}
	}
	return ""
}

func isWebPage(u string) bool {
	return strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://")
}
