package cli

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/eshaffer321/ordersync-backend/internal/infrastructure/config"
	"github.com/eshaffer321/ordersync-backend/internal/infrastructure/logging"
)

// RunSync syncs one account or every connected account once and prints a
// summary to w. It fails when any account failed.
func RunSync(cfg *config.Config, flags SyncFlags, w io.Writer) error {
	loggingCfg := cfg.Observability.Logging
	if flags.Verbose {
		loggingCfg.Level = "debug"
	}
	logger := logging.NewLoggerWithSystem(loggingCfg, "sync")

	app, err := NewApp(cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	PrintHeader(w, flags.AccountID)

	if flags.AccountID > 0 {
		result, err := app.Orchestrator.SyncAccountByID(ctx, flags.AccountID)
		if err != nil {
			return err
		}
		PrintSyncSummary(w, result)
		return nil
	}

	results, err := app.Orchestrator.SyncAll(ctx, nil)
	if err != nil {
		return err
	}
	if failed := PrintAllSummary(w, results); failed > 0 {
		return fmt.Errorf("%d of %d accounts failed", failed, len(results))
	}
	return nil
}
