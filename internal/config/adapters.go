package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"receivables/internal/matching"
	"receivables/internal/reconciliation"
	"receivables/internal/sources"
	"receivables/internal/store"
)

// GetStoreConfig returns the database settings
func (c *Config) GetStoreConfig() store.Config {
	return store.Config{
		Driver:         c.DBDriver,
		DSN:            c.DatabaseDSN,
		Debug:          c.DBDebug,
		Migrations:     c.Migrations,
		ConnectRetries: 5,
		RetryDelay:     2 * time.Second,
	}
}

// GetSyncConfig returns the orchestrator settings
func (c *Config) GetSyncConfig() reconciliation.Config {
	return reconciliation.Config{
		Tenant:            c.TenantID,
		SourceTimeout:     c.SourceTimeout,
		SourceParallelism: c.SourceParallelism,
		MinScore:          c.MatchMinScore,
		MarkPaidOnConfirm: c.MarkPaidOnConfirm,
	}
}

// GetDocumentAIConfig returns the settings of the PDF inbox source
func (c *Config) GetDocumentAIConfig() sources.DocumentAIConfig {
	return sources.DocumentAIConfig{
		ProjectID:        c.GoogleCloudProject,
		Location:         c.GoogleCloudLocation,
		ProcessorID:      c.DocumentAIProcessorID,
		ProcessorVersion: c.DocumentAIProcessorVersion,
		InboxDir:         c.InvoiceInboxDir,
		Workers:          c.InboxWorkers,
		Timeout:          c.SourceTimeout,
		PaymentTermDays:  c.PaymentTermDays,
	}
}

// GetMatchingConfig returns the scorer weights. Date bands come from
// MATCH_DATE_BANDS when set; validate has already rejected bad values.
func (c *Config) GetMatchingConfig() matching.ScoreConfig {
	cfg := matching.DefaultScoreConfig()
	if bands, err := parseDateBands(c.MatchDateBands); err == nil && len(bands) > 0 {
		cfg.DateBands = bands
	}
	return cfg
}

// parseDateBands reads "days:points" pairs separated by commas.
func parseDateBands(v string) ([]matching.DateBand, error) {
	var bands []matching.DateBand
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		days, points, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("band %q is not days:points", part)
		}
		d, err := strconv.Atoi(strings.TrimSpace(days))
		if err != nil || d < 0 {
			return nil, fmt.Errorf("band %q: invalid days", part)
		}
		p, err := strconv.Atoi(strings.TrimSpace(points))
		if err != nil || p < 0 || p > 100 {
			return nil, fmt.Errorf("band %q: invalid points", part)
		}
		bands = append(bands, matching.DateBand{MaxDays: d, Points: p})
	}
	return bands, nil
}
