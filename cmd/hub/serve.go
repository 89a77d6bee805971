package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/Buster/internal/adapters/http"
	nativeproc "github.com/dkeye/Buster/internal/adapters/native"
	"github.com/dkeye/Buster/internal/adapters/notify"
	"github.com/dkeye/Buster/internal/adapters/platform"
	wssignal "github.com/dkeye/Buster/internal/adapters/signal"
	"github.com/dkeye/Buster/internal/adapters/storage"
	"github.com/dkeye/Buster/internal/app"
	"github.com/dkeye/Buster/internal/app/challenge"
	"github.com/dkeye/Buster/internal/app/geometry"
	"github.com/dkeye/Buster/internal/app/hub"
	"github.com/dkeye/Buster/internal/app/intercept"
	"github.com/dkeye/Buster/internal/app/lifecycle"
	"github.com/dkeye/Buster/internal/app/native"
	"github.com/dkeye/Buster/internal/app/transcribe"
	"github.com/dkeye/Buster/internal/config"
	"github.com/dkeye/Buster/internal/metrics"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the hub",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()
		return serve(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func setupLogger(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

func serve(ctx context.Context) error {
	// Initialize zerolog global logger early so config.Load can use it.
	setupLogger("info")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	setupLogger(cfg.LogLevel)

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(promReg)

	store, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return err
	}

	table := intercept.NewTable()
	interceptors := intercept.NewManager(table, m, intercept.ChallengeLocale(), intercept.OriginStripper(cfg.Origin))
	client := &http.Client{
		Transport: table.Transport(http.DefaultTransport),
		Timeout:   60 * time.Second,
	}

	registry := app.NewRegistry()
	h := hub.New(m)
	ctl := wssignal.NewContextWSController(registry, h)
	ctl.ReadLimit = cfg.ReadLimit
	ctl.PingPeriod = cfg.PingPeriod
	ctl.Limiter = wssignal.NewRequestRateLimiter(cfg.RequestRate, time.Second)
	ctl.AllowedOrigins = []string{cfg.Origin}
	ctl.Token = cfg.Token
	ctl.Rules = table
	table.Observe(ctl.PushInterceptors)

	notifier := notify.NewDesktop("Buster")
	host := platform.NewHost(cfg.TargetEnv, cfg.OptionsURL)
	locale := &challenge.LocalePolicy{Settings: store, Interceptors: interceptors}

	google := &transcribe.GoogleSpeech{
		Endpoint: cfg.Speech.Endpoint,
		Client:   client,
		Key: func() string {
			if key := store.String(storage.KeyGoogleSpeechAPIKey); key != "" {
				return key
			}
			return cfg.Speech.APIKey
		},
	}
	pipeline := &transcribe.Pipeline{
		Client:       client,
		Audio:        transcribe.NewWavPreparer(),
		Recognizers:  map[string]transcribe.Recognizer{transcribe.GoogleSpeechService: google},
		Fallback:     transcribe.GoogleSpeechService,
		Settings:     store,
		Notifier:     notifier,
		Interceptors: interceptors,
	}

	bridge := native.NewBridge(&nativeproc.ProcessConnector{Path: cfg.Native.Path}, cfg.Native.Name, cfg.Native.APIVersion)
	defer bridge.Stop()

	hub.Register(h, hub.Services{
		Notifier:    notifier,
		Usage:       &challenge.Usage{Settings: store, Shell: host, ContributeURL: cfg.ContributeURL},
		Transcriber: pipeline,
		Resetter: &challenge.Resetter{
			Frames:   registry,
			Agent:    ctl,
			Notifier: notifier,
			Window:   challenge.ResetWindow,
		},
		Geometry: geometry.NewResolver(registry, ctl),
		Native:   bridge,
		Platform: host,
		Options:  locale,
	})

	lc := &lifecycle.Controller{
		Store:     store,
		Locale:    locale,
		Frames:    registry,
		Agent:     ctl,
		Options:   host,
		TargetEnv: cfg.TargetEnv,
	}
	ctl.Events = lc
	if err := lc.Setup(ctx); err != nil {
		return err
	}

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	srv := &http.Server{
		Addr:    addr,
		Handler: router.SetupRouter(ctx, cfg, ctl, promReg),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("Buster hub started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return store.Watch(gctx, locale.Evaluate)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info().Msg("Server exited gracefully")
	return nil
}
