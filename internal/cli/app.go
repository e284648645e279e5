package cli

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/waleedabdullah7/school-fee-manager/internal/backup"
	"github.com/waleedabdullah7/school-fee-manager/internal/config"
	"github.com/waleedabdullah7/school-fee-manager/internal/migrate"
	"github.com/waleedabdullah7/school-fee-manager/internal/records"
	"github.com/waleedabdullah7/school-fee-manager/internal/storage"
)

// app is an opened store plus the services built on it.
type app struct {
	cfg    *config.Config
	kv     *storage.Adapter
	store  *records.Store
	backup *backup.Engine

	// migration is set when startup ran the legacy migration.
	migration *migrate.Report
}

// openApp loads the config, opens the configured engine, migrates the
// legacy store when needed and opens the record store on top.
func openApp(ctx context.Context, opts *RootOptions, cmd *cobra.Command) (*app, error) {
	out := opts.formatter(cmd)

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		_ = out.Error(ErrCodeConfig, err.Error(), nil)
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	setupLogging(cfg, opts.Verbose, cmd.ErrOrStderr())

	kv, err := storage.Open(ctx, cfg.StorageOptions())
	if err != nil {
		return nil, fail(out, "failed to open store", err)
	}
	a := &app{cfg: cfg, kv: kv}

	if cfg.LegacyPath != "" {
		report, err := a.migrateLegacy(ctx, cfg.LegacyPath, false)
		if err != nil {
			a.Close()
			return nil, fail(out, "legacy migration failed", err)
		}
		a.migration = report
	}

	if a.store, err = records.Open(ctx, kv); err != nil {
		a.Close()
		return nil, fail(out, "failed to open record store", err)
	}
	if a.backup, err = backup.New(a.store, backup.WithAppName(cfg.AppName)); err != nil {
		a.Close()
		return nil, fail(out, "failed to initialize backups", err)
	}
	return a, nil
}

// migrateLegacy copies the legacy dump at path into the live store. Unless
// force is set it only runs when the live store is empty. A missing legacy
// file is not an error.
func (a *app) migrateLegacy(ctx context.Context, path string, force bool) (*migrate.Report, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		slog.Debug("no legacy store", "path", path)
		return nil, nil
	}
	legacy, err := storage.OpenMemoryFile(path, 0)
	if err != nil {
		return nil, err
	}
	from := storage.NewAdapter(legacy)
	defer from.Close()

	m := migrate.New(from, a.kv)
	if !force {
		needed, err := m.Needed(ctx)
		if err != nil {
			return nil, err
		}
		if !needed {
			slog.Debug("legacy migration not needed", "path", path)
			return nil, nil
		}
	}
	report := m.Run(ctx)
	return &report, nil
}

func (a *app) Close() {
	if err := a.kv.Close(); err != nil {
		slog.Error("error closing store", "error", err)
	}
}

func setupLogging(cfg *config.Config, verbose bool, w io.Writer) {
	level, err := cfg.Level()
	if err != nil {
		level = slog.LevelInfo
	}
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
}
