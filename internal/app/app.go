package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"decoyftp/internal/config"
	"decoyftp/internal/database"
	"decoyftp/internal/honeypot"
	"decoyftp/internal/recorder"
	"decoyftp/internal/vault"
	"decoyftp/internal/vfs"
)

// App is the application layer between the CLI and the honeypot core.
// It constructs all shared dependencies from config once at startup and
// hands out one Backend per accepted connection. The deception surface
// must never fail once App construction succeeds: every error after this
// point is absorbed by the recorder and logged, never shown to a client.
type App struct {
	cfg      *config.Config
	store    *database.SQLiteStore
	vault    honeypot.ArtifactVault
	fs       *vfs.FS
	policy   *honeypot.CredentialPolicy
	recorder *recorder.Recorder
	clock    honeypot.Clock
	ids      honeypot.IDGenerator
	logger   honeypot.Logger
	slogger  *slog.Logger
	logFile  *os.File
}

// New creates a fully wired App from the given config. Startup is
// fail-safe: any broken piece of the telemetry pipeline (schema out of
// date, unreachable vault, bad config) aborts here, before the first
// connection is accepted. The caller must call Close when done.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	slogger, logFile, err := newLogger(cfg.LogDir, parseLogLevel(cfg.LogLevel))
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger}

	store, err := database.NewStoreFromConfig(cfg.Storage)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("opening telemetry store: %w", err)
	}

	if err := store.CheckMigrations(); err != nil {
		store.Close()
		logFile.Close()
		return nil, fmt.Errorf("telemetry schema out of date: %w", err)
	}

	v, err := vault.NewVaultFromConfig(ctx, cfg.Capture)
	if err != nil {
		store.Close()
		logFile.Close()
		return nil, fmt.Errorf("creating capture vault: %w", err)
	}
	if v != nil {
		if err := v.ValidateSetup(); err != nil {
			store.Close()
			logFile.Close()
			return nil, fmt.Errorf("validating capture vault: %w", err)
		}
	}

	rec := recorder.New(store, recorderOptions(cfg.Recorder), logger)

	clock := honeypot.RealClock{}
	policy := honeypot.NewCredentialPolicy(honeypot.PolicyOptions{
		Mode:               honeypot.PolicyMode(cfg.Credentials.Mode),
		AllowedCredentials: cfg.Credentials.Allowed,
		TarpitTries:        cfg.Credentials.TarpitTries,
		RatePerMinute:      cfg.Credentials.RatePerMinute,
	}, clock)

	fs := vfs.New(cfg.VirtualFS.Seed, vfs.Options{
		MaxDepth:   cfg.VirtualFS.MaxDepth,
		MaxEntries: cfg.VirtualFS.MaxEntries,
	})

	slogger.Info("application initialized",
		"storage", store.Path(),
		"capture", cfg.Capture.Enabled,
		"seed", cfg.VirtualFS.Seed,
	)

	return &App{
		cfg:      cfg,
		store:    store,
		vault:    v,
		fs:       fs,
		policy:   policy,
		recorder: rec,
		clock:    clock,
		ids:      honeypot.UUIDGenerator{},
		logger:   logger,
		slogger:  slogger,
		logFile:  logFile,
	}, nil
}

// recorderOptions maps config values onto recorder.Options, filling gaps
// from the defaults.
func recorderOptions(rc config.RecorderConfig) recorder.Options {
	opts := recorder.DefaultOptions
	if rc.QueueCapacity > 0 {
		opts.QueueCapacity = rc.QueueCapacity
	}
	if rc.EnqueueTimeoutMS > 0 {
		opts.EnqueueTimeout = time.Duration(rc.EnqueueTimeoutMS) * time.Millisecond
	}
	if rc.Backpressure != "" {
		opts.Backpressure = recorder.Backpressure(rc.Backpressure)
	}
	if rc.BatchSize > 0 {
		opts.BatchSize = rc.BatchSize
	}
	if rc.FlushIntervalMS > 0 {
		opts.FlushInterval = time.Duration(rc.FlushIntervalMS) * time.Millisecond
	}
	if rc.RetryBaseMS > 0 {
		opts.RetryBase = time.Duration(rc.RetryBaseMS) * time.Millisecond
	}
	if rc.RetryMaxMS > 0 {
		opts.RetryMax = time.Duration(rc.RetryMaxMS) * time.Millisecond
	}
	if rc.GracePeriodS > 0 {
		opts.GracePeriod = time.Duration(rc.GracePeriodS) * time.Second
	}
	return opts
}

// NewBackend creates the per-connection backend for a freshly accepted
// client. Each backend gets its own session and mutation overlay; the
// filesystem, policy and recorder are shared.
func (a *App) NewBackend(remoteAddr string) honeypot.Backend {
	session := honeypot.NewSession(a.ids.New(), remoteAddr, a.clock.Now())
	a.slogger.Info("session opened", "session", session.ID(), "remote", remoteAddr)
	return honeypot.NewInterceptor(session, honeypot.InterceptorDeps{
		FS:           a.fs,
		Policy:       a.policy,
		Recorder:     a.recorder,
		Clock:        a.clock,
		Logger:       a.logger,
		Vault:        a.vault,
		CaptureLimit: a.cfg.Capture.LimitBytes,
	})
}

// Store exposes the telemetry store for the reporting commands.
func (a *App) Store() *database.SQLiteStore { return a.store }

// Vault exposes the capture vault; nil when capture is disabled.
func (a *App) Vault() honeypot.ArtifactVault { return a.vault }

// Config returns the configuration the app was built with.
func (a *App) Config() *config.Config { return a.cfg }

// Logger returns the process-wide structured logger.
func (a *App) Logger() *slog.Logger { return a.slogger }

// DroppedRecords reports how many telemetry records were lost to
// backpressure or storage outage since startup.
func (a *App) DroppedRecords() int64 { return a.recorder.Dropped() }

// Close drains the recorder queue and releases all resources. Telemetry
// still in flight gets drainTimeout to reach the store.
func (a *App) Close() error {
	const drainTimeout = 10 * time.Second

	a.recorder.Close(drainTimeout)
	if dropped := a.recorder.Dropped(); dropped > 0 {
		a.slogger.Warn("telemetry records lost", "dropped", dropped)
	}

	var firstErr error
	if err := a.store.Close(); err != nil {
		firstErr = fmt.Errorf("closing telemetry store: %w", err)
	}

	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}
