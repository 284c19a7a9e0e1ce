package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/mohammad-safakhou/notesync/config"
	"github.com/mohammad-safakhou/notesync/internal/index"
	"github.com/mohammad-safakhou/notesync/internal/journal"
	"github.com/mohammad-safakhou/notesync/internal/lock"
	"github.com/mohammad-safakhou/notesync/internal/logging"
	"github.com/mohammad-safakhou/notesync/internal/mapping"
	"github.com/mohammad-safakhou/notesync/internal/remote"
	"github.com/mohammad-safakhou/notesync/internal/roster"
	"github.com/mohammad-safakhou/notesync/internal/syncer"
	"github.com/mohammad-safakhou/notesync/internal/vault"
	"github.com/mohammad-safakhou/notesync/internal/watermark"
)

// app owns the configuration, logger and every opened resource of one command.
type app struct {
	cfg     *config.Config
	logger  *logrus.Logger
	closers []func() error
}

func newApp(g *globals) (*app, error) {
	cfg, err := config.LoadConfig(g.cfgPath)
	if err != nil {
		return nil, err
	}
	if g.dryRun {
		cfg.Development.DryRun = true
	}
	if g.verbose {
		cfg.Development.VerboseOutput = true
	}
	logger := logging.New(cfg.Logging, cfg.Development.VerboseOutput)
	return &app{cfg: cfg, logger: logger}, nil
}

func (a *app) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// Close releases resources in reverse opening order.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *app) api() (*remote.API, error) {
	tokens := remote.NewFileTokenSource(a.cfg.Paths.Credentials)
	return remote.NewAPIFromConfig(a.cfg, tokens, a.logger)
}

func (a *app) mapping() (*mapping.Cache, error) {
	api, err := a.api()
	if err != nil {
		return nil, err
	}
	return mapping.New(api, mapping.OptionsFromConfig(a.cfg, a.logger)), nil
}

func (a *app) journal(ctx context.Context) (*journal.Journal, error) {
	if a.cfg.Paths.Journal == "" {
		return nil, errors.New("paths.journal is not configured")
	}
	j, err := journal.Open(ctx, a.cfg.Paths.Journal)
	if err != nil {
		return nil, err
	}
	a.onClose(j.Close)
	return j, nil
}

func (a *app) index() (*index.Index, error) {
	if a.cfg.Paths.Index == "" {
		return nil, errors.New("paths.index is not configured")
	}
	idx, err := index.Open(a.cfg.Paths.Index)
	if err != nil {
		return nil, err
	}
	a.onClose(idx.Close)
	return idx, nil
}

// syncer wires a Syncer from configuration. The journal and index are only
// attached when their paths are set.
func (a *app) syncer(ctx context.Context) (*syncer.Syncer, *journal.Journal, error) {
	if err := a.cfg.Paths.EnsureDirectories(); err != nil {
		return nil, nil, err
	}
	api, err := a.api()
	if err != nil {
		return nil, nil, err
	}
	writer, err := vault.NewWriter(vault.OptionsFromConfig(a.cfg, a.logger))
	if err != nil {
		return nil, nil, err
	}
	locker, closeLock, err := lock.New(ctx, a.cfg.Lock, a.cfg.Paths.LockFile, a.logger)
	if err != nil {
		return nil, nil, err
	}
	a.onClose(closeLock)

	deps := syncer.Dependencies{
		Documents: api,
		Mapping:   mapping.New(api, mapping.OptionsFromConfig(a.cfg, a.logger)),
		Rosters:   roster.NewPreferencesFile(a.cfg.Paths.UserPreferences, a.logger),
		Watermark: watermark.NewFileStore(a.cfg.Paths.LastSyncFile, a.cfg.Sync.Lookback(), a.logger),
		Vault:     writer,
		Lock:      locker,
	}
	var j *journal.Journal
	if a.cfg.Paths.Journal != "" {
		if j, err = a.journal(ctx); err != nil {
			return nil, nil, fmt.Errorf("open journal: %w", err)
		}
		deps.Journal = j
	}
	if a.cfg.Paths.Index != "" {
		idx, err := a.index()
		if err != nil {
			return nil, nil, fmt.Errorf("open index: %w", err)
		}
		deps.Index = idx
	}

	s, err := syncer.New(deps, syncer.Options{
		FallbackParticipants: a.cfg.Sync.FallbackParticipants,
		DocumentDelay:        a.cfg.API.RequestDelay,
		Policy:               a.cfg.ErrorHandling.Policy(),
		DryRun:               a.cfg.Development.DryRun,
		Logger:               a.logger,
	})
	if err != nil {
		return nil, nil, err
	}
	return s, j, nil
}
