package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"receivables/internal/api"
	"receivables/internal/logger"
	"receivables/internal/reconciliation"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API and sync on an interval",
	Long: `Start the HTTP API on HTTP_ADDR and run a sync cycle every SYNC_INTERVAL.

Endpoints:
  POST  /sync
  GET   /status
  GET   /invoices/{id}/status
  POST  /invoices/{id}/mark-paid
  POST  /invoices/{id}/reminders
  GET   /matches?status=pending
  PATCH /matches/{id}
  GET   /matches/{id}/candidates`,
	Example: `  # Listen on :8080, sync once a day
  receivables serve

  # Sync every hour, no sync on startup
  SYNC_INTERVAL=1h receivables serve --sync-on-start=false`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "Listen address (default: HTTP_ADDR)")
	serveCmd.Flags().Bool("sync-on-start", true, "Run a sync cycle right after startup")
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("serve")
	addr, _ := cmd.Flags().GetString("addr")
	syncOnStart, _ := cmd.Flags().GetBool("sync-on-start")

	ctx, cancel := signalContext(0, log)
	defer cancel()

	a, err := loadApp(ctx, log, true)
	if err != nil {
		return err
	}
	defer a.close()

	if addr == "" {
		addr = a.cfg.HTTPAddr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           api.NewRouter(a.svc),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	go scheduleSync(ctx, a.svc, a.cfg.SyncInterval, syncOnStart, log)

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down HTTP server")
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info().Msg("HTTP server stopped")
	return nil
}

// scheduleSync runs a cycle every interval until ctx ends. A cycle still
// running from the API makes the tick a no-op.
func scheduleSync(ctx context.Context, svc *reconciliation.Service, interval time.Duration, immediately bool, log zerolog.Logger) {
	if interval <= 0 {
		log.Info().Msg("Scheduled sync disabled")
		return
	}

	run := func() {
		res, err := svc.Sync(ctx)
		switch {
		case errors.Is(err, reconciliation.ErrSyncInProgress):
			log.Info().Msg("Sync already running, skipping scheduled cycle")
		case err != nil:
			log.Error().Err(err).Msg("Scheduled sync failed")
		default:
			log.Info().
				Str("outcome", string(res.Outcome)).
				Int("invoices_synced", res.InvoicesSynced).
				Int("payments_synced", res.PaymentsSynced).
				Msg("Scheduled sync finished")
		}
	}

	if immediately {
		run()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run()
		}
	}
}
