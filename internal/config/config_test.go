package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SYNC_SOURCES", "")
	t.Setenv("DB_DRIVER", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "default", cfg.TenantID)
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, []string{SourceJSONFile}, cfg.SyncSources)
	assert.Equal(t, 2*time.Minute, cfg.SourceTimeout)
	assert.Equal(t, 40, cfg.MatchMinScore)
	assert.True(t, cfg.MarkPaidOnConfirm)
	assert.Equal(t, "Debitoren", cfg.GoogleSheetInvoices)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SYNC_SOURCES", "JSONFile, sheets")
	t.Setenv("GOOGLE_SHEET_URL", "https://docs.google.com/spreadsheets/d/abc123/edit")
	t.Setenv("SOURCE_TIMEOUT", "45s")
	t.Setenv("MARK_PAID_ON_CONFIRM", "no")
	t.Setenv("MATCH_MIN_SCORE", "55")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{SourceJSONFile, SourceSheets}, cfg.SyncSources)
	assert.True(t, cfg.HasSource(SourceSheets))
	assert.False(t, cfg.HasSource(SourceDocumentAI))
	assert.Equal(t, 45*time.Second, cfg.SourceTimeout)
	assert.False(t, cfg.MarkPaidOnConfirm)
	assert.Equal(t, 55, cfg.MatchMinScore)
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"unknown driver", map[string]string{"DB_DRIVER": "mysql"}, "DB_DRIVER"},
		{"sheets without url", map[string]string{"SYNC_SOURCES": "sheets", "GOOGLE_SHEET_URL": ""}, "GOOGLE_SHEET_URL"},
		{"documentai without project", map[string]string{"SYNC_SOURCES": "documentai", "GOOGLE_CLOUD_PROJECT": ""}, "GOOGLE_CLOUD_PROJECT"},
		{"unknown source", map[string]string{"SYNC_SOURCES": "ftp"}, "unknown source"},
		{"score out of range", map[string]string{"MATCH_MIN_SCORE": "101"}, "MATCH_MIN_SCORE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseBool(t *testing.T) {
	for _, v := range []string{"1", "true", "TRUE", "yes", " on "} {
		assert.True(t, ParseBool(v), v)
	}
	for _, v := range []string{"", "0", "false", "nope"} {
		assert.False(t, ParseBool(v), v)
	}
}
