// Package daemon provides the background process that keeps the local
// store and the remote service converging.
//
// The daemon:
// 1. Runs a sync cycle immediately on startup
// 2. Repeats the cycle on a fixed interval
// 3. Skips a tick when the previous cycle is still running
// 4. Handles graceful shutdown
package daemon

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"time"

	"go.uber.org/zap"

	"github.com/gomapp/trialfield/internal/store"
	"github.com/gomapp/trialfield/internal/sync"
)

// Config holds configuration for the daemon.
type Config struct {
	// SyncInterval is how often a sync cycle is started.
	SyncInterval time.Duration

	// Logger for daemon activity.
	Logger *zap.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		SyncInterval: 5 * time.Minute,
		Logger:       zap.NewNop(),
	}
}

// Daemon drives periodic sync cycles against the remote service.
type Daemon struct {
	db     *store.DB
	engine sync.Engine
	config *Config

	// running guards against overlapping cycles when a slow remote
	// makes a cycle outlast the interval.
	running gosync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     gosync.WaitGroup
}

// New creates a new Daemon instance. Use Start to begin syncing.
func New(db *store.DB, engine sync.Engine, config *Config) (*Daemon, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if engine == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if config.SyncInterval <= 0 {
		config.SyncInterval = DefaultConfig().SyncInterval
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Daemon{
		db:     db,
		engine: engine,
		config: config,
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Start begins periodic syncing. An initial cycle runs before the
// first tick. This blocks until ctx is cancelled or Stop is called.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Info("starting daemon",
		zap.Duration("sync_interval", d.config.SyncInterval))

	d.SyncNow(ctx)

	d.wg.Add(1)
	go d.syncLoop()

	select {
	case <-ctx.Done():
		d.config.Logger.Info("shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop gracefully shuts down the daemon. A cycle in flight is allowed
// to finish.
func (d *Daemon) Stop() error {
	d.cancel()
	d.wg.Wait()
	d.config.Logger.Info("daemon stopped")
	return nil
}

// SyncNow runs one sync cycle for the active user. The cycle is
// skipped when another one is still in flight or no user is active.
func (d *Daemon) SyncNow(ctx context.Context) {
	if !d.running.TryLock() {
		d.config.Logger.Warn("previous sync cycle still running, skipping")
		return
	}
	defer d.running.Unlock()

	user, err := d.db.ActiveUserContext(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNoActiveUser) {
			d.config.Logger.Info("no active user, skipping sync cycle")
		} else {
			d.config.Logger.Error("failed to resolve active user", zap.Error(err))
		}
		return
	}

	// Records are attributed by username, the identity the remote
	// service keys ownership on.
	report := d.engine.Run(ctx, user.Username)
	if report.Ok() {
		d.config.Logger.Info("sync cycle complete",
			zap.Duration("duration", report.Duration))
	} else {
		d.config.Logger.Warn("sync cycle finished with errors",
			zap.Duration("duration", report.Duration),
			zap.Error(report.Err()))
	}
}

func (d *Daemon) syncLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			d.SyncNow(d.ctx)
		}
	}
}
