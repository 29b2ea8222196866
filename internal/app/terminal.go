package app

import (
	"context"
	"os"
	"path/filepath"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/quitanda/pdv/internal/catalog"
	"github.com/quitanda/pdv/internal/client"
	"github.com/quitanda/pdv/internal/domain/session"
	"github.com/quitanda/pdv/internal/queue"
	"github.com/quitanda/pdv/internal/storage/bolt"
	"github.com/quitanda/pdv/internal/terminal"
)

// RunTerminal wires the terminal-side components (local store, offline queue,
// catalog cache, remote client, cashier ledger, engine) and drives the
// operator console until the context is cancelled or input ends.
func RunTerminal(ctx context.Context, lg *zap.Logger, cfg *TerminalConfig) error {
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return errors.Wrap(err, "create data dir")
	}

	store, err := bolt.Open(filepath.Join(cfg.DataDir, "terminal.db"))
	if err != nil {
		return errors.Wrap(err, "open terminal store")
	}
	defer store.Close()

	q, err := queue.New(store.DB(), lg.Named("queue"))
	if err != nil {
		return errors.Wrap(err, "open offline queue")
	}

	remote := client.New(cfg.ServerURL, cfg.RequestTimeout)

	cat, err := catalog.New(remote, store, lg.Named("catalog"))
	if err != nil {
		return errors.Wrap(err, "open catalog cache")
	}

	ledger, err := session.NewLedger(store)
	if err != nil {
		return errors.Wrap(err, "restore cashier session")
	}

	engine := terminal.New(terminal.Config{
		SyncInterval:           cfg.SyncInterval,
		PingInterval:           cfg.PingInterval,
		CatalogRefreshInterval: cfg.CatalogRefreshInterval,
	}, cat, remote, remote, q, ledger, lg.Named("engine"))

	lg.Info("Terminal ready",
		zap.String("server", cfg.ServerURL),
		zap.String("data_dir", cfg.DataDir),
	)

	// The console returning (operator quit, stdin closed) stops the engine
	// loops through context cancellation.
	g, ctx := errgroup.WithContext(ctx)
	ctx, cancel := context.WithCancel(ctx)
	g.Go(func() error { return engine.Run(ctx) })
	g.Go(func() error {
		defer cancel()
		return terminal.NewREPL(engine, os.Stdin, os.Stdout).Run(ctx)
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
