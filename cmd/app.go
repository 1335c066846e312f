package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	documentai "cloud.google.com/go/documentai/apiv1"
	"github.com/rs/zerolog"

	"receivables/internal/config"
	"receivables/internal/matching"
	"receivables/internal/reconciliation"
	"receivables/internal/sheets"
	"receivables/internal/sources"
	"receivables/internal/store"
)

// app bundles everything a command needs; close releases it.
type app struct {
	cfg     *config.Config
	store   *store.Store
	svc     *reconciliation.Service
	sheets  *sheets.Service
	docai   *documentai.DocumentProcessorClient
	log     zerolog.Logger
	sources []sources.Connector
}

// loadApp reads the configuration and opens the database. Commands that
// sync also get the configured source connectors.
func loadApp(ctx context.Context, log zerolog.Logger, withSources bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	st, err := store.Open(ctx, cfg.GetStoreConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	a := &app{cfg: cfg, store: st, log: log}
	if withSources {
		if err := a.buildSources(ctx); err != nil {
			a.close()
			return nil, err
		}
	}

	selector := matching.NewSelector(matching.NewScorer(cfg.GetMatchingConfig()), matching.AcceptanceFloor)
	a.svc = reconciliation.NewService(st, a.sources, cfg.GetSyncConfig(), reconciliation.WithSelector(selector))
	return a, nil
}

func (a *app) buildSources(ctx context.Context) error {
	for _, name := range a.cfg.SyncSources {
		switch name {
		case config.SourceSheets:
			svc, err := a.sheetsService(ctx)
			if err != nil {
				return err
			}
			a.sources = append(a.sources,
				sources.NewSheetsConnector(svc, a.cfg.GoogleSheetInvoices, a.cfg.GoogleSheetPayments))
		case config.SourceDocumentAI:
			client, err := sources.NewDocumentAIClient(ctx, a.cfg.GetDocumentAIConfig())
			if err != nil {
				return fmt.Errorf("failed to create Document AI client: %w", err)
			}
			a.docai = client
			a.sources = append(a.sources, sources.NewDocumentAIConnector(client, a.cfg.GetDocumentAIConfig()))
		case config.SourceJSONFile:
			a.sources = append(a.sources, sources.NewJSONFileConnector(a.cfg.JSONSourceFile))
		}
	}

	names := make([]string, len(a.sources))
	for i, c := range a.sources {
		names[i] = c.Name()
	}
	a.log.Debug().Strs("sources", names).Msg("Sources configured")
	return nil
}

// sheetsService connects to GOOGLE_SHEET_URL once per process.
func (a *app) sheetsService(ctx context.Context) (*sheets.Service, error) {
	if a.sheets != nil {
		return a.sheets, nil
	}
	if a.cfg.GoogleSheetURL == "" {
		return nil, fmt.Errorf("GOOGLE_SHEET_URL environment variable is required")
	}
	svc, err := sheets.NewSheetsService(ctx, a.cfg.GoogleSheetURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets service: %w", err)
	}
	a.sheets = svc
	return svc, nil
}

func (a *app) close() {
	if a.docai != nil {
		if err := a.docai.Close(); err != nil {
			a.log.Warn().Err(err).Msg("Failed to close Document AI client")
		}
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn().Err(err).Msg("Failed to close database")
	}
}

// signalContext is canceled on SIGINT or SIGTERM, or after timeout when
// timeout is positive.
func signalContext(timeout time.Duration, log zerolog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), timeout)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			log.Info().
				Str("signal", sig.String()).
				Msg("Received interrupt signal, canceling")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// writeJSON prints v to stdout, or to outputPath when set.
func writeJSON(v any, outputPath string, log zerolog.Logger) error {
	jsonData, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal output to JSON")
		return fmt.Errorf("failed to create JSON output: %w", err)
	}

	if outputPath != "" {
		if err := os.WriteFile(outputPath, jsonData, 0644); err != nil {
			log.Error().
				Err(err).
				Str("output_file", outputPath).
				Msg("Failed to write output file")
			return fmt.Errorf("failed to write output file: %w", err)
		}
		log.Info().
			Str("output_file", outputPath).
			Int("bytes", len(jsonData)).
			Msg("Output written to file")
		return nil
	}

	if _, err := os.Stdout.Write(append(jsonData, '\n')); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// friendlyError turns service errors into messages for the terminal.
func friendlyError(err error, log zerolog.Logger) error {
	log.Error().Err(err).Msg("Command failed")

	details := reconciliation.ErrorDetails(err)
	errStr := err.Error()

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("operation timed out. Try increasing --timeout or SOURCE_TIMEOUT")
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("operation was canceled")
	case errors.Is(err, reconciliation.ErrSyncInProgress):
		return fmt.Errorf("a sync is already running for this tenant, try again later")
	case errors.Is(err, reconciliation.ErrNotFound):
		return fmt.Errorf("not found: %s", details)
	case errors.Is(err, reconciliation.ErrInvalidTransition):
		return fmt.Errorf("status change not allowed: %s", details)
	case errors.Is(err, reconciliation.ErrInvalidState):
		return fmt.Errorf("action not possible: %s", details)
	case errors.Is(err, reconciliation.ErrInvalidInput):
		return fmt.Errorf("invalid input: %s", details)
	case errors.Is(err, sources.ErrInvalidPDF):
		return fmt.Errorf("invalid or corrupted PDF file. Please check the file integrity")
	case errors.Is(err, sources.ErrDocumentTooLarge):
		return fmt.Errorf("PDF file is too large (maximum 20MB). Try compressing or splitting the file")
	case strings.Contains(errStr, "Unauthenticated") ||
		strings.Contains(errStr, "invalid_grant") ||
		strings.Contains(errStr, "credentials"):
		return fmt.Errorf("Google Cloud authentication failed. Please check your credentials:\n\n" +
			"1. Set GOOGLE_APPLICATION_CREDENTIALS to your service account JSON file path\n" +
			"2. Or set GOOGLE_CREDENTIALS with inline JSON credentials\n\n" +
			"Original error: %v", err)
	case strings.Contains(errStr, "PERMISSION_DENIED"):
		return fmt.Errorf("permission denied. Please ensure your service account can access the spreadsheet and Document AI")
	default:
		return err
	}
}
