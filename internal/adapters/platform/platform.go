// Package platform describes the host the hub runs on and opens pages in the
// user's browser.
package platform

import (
	"errors"
	"fmt"
	"os/exec"
	"runtime"

	"github.com/dkeye/Buster/internal/domain"
	"github.com/rs/zerolog/log"
)

type commandRunner func(name string, args ...string) error

func startCommand(name string, args ...string) error {
	return exec.Command(name, args...).Start()
}

type Host struct {
	TargetEnv      string
	OptionsURL     string
	BrowserVersion string

	goos   string
	goarch string
	run    commandRunner
}

func NewHost(targetEnv, optionsURL string) *Host {
	return &Host{
		TargetEnv:  targetEnv,
		OptionsURL: optionsURL,
		goos:       runtime.GOOS,
		goarch:     runtime.GOARCH,
		run:        startCommand,
	}
}

func (h *Host) Platform() domain.PlatformInfo {
	return domain.PlatformInfo{
		OS:        h.goos,
		Arch:      h.goarch,
		TargetEnv: h.TargetEnv,
		IsWindows: h.goos == "windows",
		IsMacos:   h.goos == "darwin",
		IsLinux:   h.goos == "linux",
		IsMobile:  h.goos == "android" || h.goos == "ios",
	}
}

func (h *Host) Browser() domain.BrowserInfo {
	return domain.BrowserInfo{Name: h.TargetEnv, Version: h.BrowserVersion}
}

func openCommandForOS(goos, url string) (string, []string, error) {
	switch goos {
	case "darwin":
		return "open", []string{url}, nil
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", url}, nil
	case "linux", "freebsd", "openbsd", "netbsd":
		return "xdg-open", []string{url}, nil
	default:
		return "", nil, fmt.Errorf("open url: unsupported os %q", goos)
	}
}

func (h *Host) OpenURL(url string) error {
	if url == "" {
		return errors.New("open url: empty url")
	}
	name, args, err := openCommandForOS(h.goos, url)
	if err != nil {
		return err
	}
	if err := h.run(name, args...); err != nil {
		return fmt.Errorf("open url: %w", err)
	}
	log.Info().Str("module", "platform").Str("url", url).Msg("opened page")
	return nil
}

func (h *Host) OpenOptions() error {
	return h.OpenURL(h.OptionsURL)
}
