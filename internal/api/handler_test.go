package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"receivables/internal/matching"
	"receivables/internal/reconciliation"
	"receivables/pkg/models"
)

type fakeReconciler struct {
	syncErr    error
	syncResult *reconciliation.SyncResult
	lastUpdate reconciliation.MatchUpdate
	lastStatus models.MatchStatus
	paidAt     time.Time
}

func (f *fakeReconciler) Sync(context.Context) (*reconciliation.SyncResult, error) {
	if f.syncErr != nil {
		return f.syncResult, f.syncErr
	}
	return &reconciliation.SyncResult{
		RunID:          "01J00000000000000000000000",
		Outcome:        reconciliation.OutcomeCompletedWithSkips,
		InvoicesSynced: 3,
		PaymentsSynced: 2,
		Skipped:        1,
		Sources:        []reconciliation.SourceReport{{Source: "jsonfile", InvoicesCreated: 3}},
	}, nil
}

func (f *fakeReconciler) Status(context.Context) (*reconciliation.StatusSummary, error) {
	return &reconciliation.StatusSummary{
		Total:         2,
		Open:          1,
		Overdue:       1,
		OpenAmount:    decimal.RequireFromString("100.00"),
		OverdueAmount: decimal.RequireFromString("4200.00"),
	}, nil
}

func (f *fakeReconciler) InvoiceStatus(_ context.Context, id string) (*reconciliation.InvoiceStatusView, error) {
	if id != "inv-1" {
		return nil, &reconciliation.Error{Op: "InvoiceStatus", Err: reconciliation.ErrNotFound, Details: "invoice " + id}
	}
	return &reconciliation.InvoiceStatusView{ID: id, Status: models.StatusOverdue, DaysOverdue: 5}, nil
}

func (f *fakeReconciler) ListMatches(_ context.Context, st models.MatchStatus) ([]models.PaymentMatch, error) {
	f.lastStatus = st
	if st != "" && !st.Valid() {
		return nil, &reconciliation.Error{Op: "ListMatches", Err: reconciliation.ErrInvalidInput}
	}
	return nil, nil
}

func (f *fakeReconciler) UpdateMatch(_ context.Context, upd reconciliation.MatchUpdate) (*models.PaymentMatch, error) {
	f.lastUpdate = upd
	if upd.NewStatus == models.MatchPending {
		return nil, &reconciliation.Error{Op: "UpdateMatch", Err: reconciliation.ErrInvalidTransition, Details: "pending -> pending is not allowed"}
	}
	return &models.PaymentMatch{ID: upd.MatchID, Status: upd.NewStatus, MatchedBy: upd.MatchedBy}, nil
}

func (f *fakeReconciler) ReviewCandidates(_ context.Context, matchID string) ([]matching.Candidate, error) {
	return []matching.Candidate{{
		Invoice:    &models.Invoice{ID: "inv-1", InvoiceNumber: "RE-2024-0012"},
		Score:      100,
		Confidence: matching.ConfidenceHigh,
	}}, nil
}

func (f *fakeReconciler) MarkInvoicePaid(_ context.Context, id string, paidAt time.Time) (*models.Invoice, error) {
	f.paidAt = paidAt
	return &models.Invoice{ID: id, Status: models.StatusPaid}, nil
}

func (f *fakeReconciler) SendReminder(_ context.Context, id string) (*models.Invoice, error) {
	return nil, &reconciliation.Error{Op: "SendReminder", Err: reconciliation.ErrInvalidState, Details: "invoice " + id + " is paid"}
}

func serve(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestSync(t *testing.T) {
	h := NewRouter(&fakeReconciler{})

	rec := serve(t, h, http.MethodPost, "/sync", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "completed_with_skips", body["outcome"])
	assert.Equal(t, float64(3), body["invoicesSynced"])
	assert.Equal(t, float64(2), body["paymentsSynced"])
	assert.Len(t, body["sources"], 1)
}

func TestSync_InProgress(t *testing.T) {
	h := NewRouter(&fakeReconciler{syncErr: &reconciliation.Error{Op: "Sync", Err: reconciliation.ErrSyncInProgress, Details: "tenant default"}})

	rec := serve(t, h, http.MethodPost, "/sync", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "sync_in_progress", body.Error)
	assert.Equal(t, "tenant default", body.Details)
}

func TestSync_InternalError(t *testing.T) {
	h := NewRouter(&fakeReconciler{syncErr: errors.New("database gone")})

	rec := serve(t, h, http.MethodPost, "/sync", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal_error", decodeError(t, rec).Error)
}

func TestSync_AbortedCycleKeepsResult(t *testing.T) {
	h := NewRouter(&fakeReconciler{
		syncErr: errors.New("list invoices: database gone"),
		syncResult: &reconciliation.SyncResult{
			RunID:         "01J00000000000000000000001",
			Outcome:       reconciliation.OutcomeFailed,
			FailedSources: 1,
			Sources:       []reconciliation.SourceReport{{Source: "sheets", Error: "source unavailable: timeout"}},
		},
	})

	rec := serve(t, h, http.MethodPost, "/sync", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var body struct {
		Error  string                     `json:"error"`
		Result *reconciliation.SyncResult `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "internal_error", body.Error)
	require.NotNil(t, body.Result)
	assert.Equal(t, reconciliation.OutcomeFailed, body.Result.Outcome)
	require.Len(t, body.Result.Sources, 1)
	assert.Equal(t, "sheets", body.Result.Sources[0].Source)
}

func TestStatus(t *testing.T) {
	h := NewRouter(&fakeReconciler{})

	rec := serve(t, h, http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(1), body["overdue"])
	assert.Equal(t, "4200", body["overdueAmount"])
}

func TestInvoiceStatus(t *testing.T) {
	h := NewRouter(&fakeReconciler{})

	rec := serve(t, h, http.MethodGet, "/invoices/inv-1/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var view reconciliation.InvoiceStatusView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, models.StatusOverdue, view.Status)
	assert.Equal(t, 5, view.DaysOverdue)

	rec = serve(t, h, http.MethodGet, "/invoices/nope/status", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "not_found", body.Error)
	assert.Equal(t, "invoice nope", body.Details)
}

func TestListMatches(t *testing.T) {
	f := &fakeReconciler{}
	h := NewRouter(f)

	rec := serve(t, h, http.MethodGet, "/matches?status=pending", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.MatchPending, f.lastStatus)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = serve(t, h, http.MethodGet, "/matches?status=weird", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateMatch(t *testing.T) {
	f := &fakeReconciler{}
	h := NewRouter(f)

	rec := serve(t, h, http.MethodPatch, "/matches/m-1",
		`{"newStatus":"matched","chosenInvoiceId":"inv-2","notes":"ok","matchedBy":"anna"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "m-1", f.lastUpdate.MatchID)
	assert.Equal(t, models.MatchMatched, f.lastUpdate.NewStatus)
	require.NotNil(t, f.lastUpdate.ChosenInvoiceID)
	assert.Equal(t, "inv-2", *f.lastUpdate.ChosenInvoiceID)
	require.NotNil(t, f.lastUpdate.Notes)
	assert.Equal(t, "anna", f.lastUpdate.MatchedBy)

	rec = serve(t, h, http.MethodPatch, "/matches/m-1", `{"newStatus":"pending"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_transition", decodeError(t, rec).Error)

	rec = serve(t, h, http.MethodPatch, "/matches/m-1", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(t, h, http.MethodPost, "/matches/m-1", `{}`)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCandidates(t *testing.T) {
	h := NewRouter(&fakeReconciler{})

	rec := serve(t, h, http.MethodGet, "/matches/m-1/candidates", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body, 1)
	assert.Equal(t, float64(100), body[0]["score"])
	assert.Equal(t, "high", body[0]["confidence"])
}

func TestInvoiceActions(t *testing.T) {
	f := &fakeReconciler{}
	h := NewRouter(f)

	rec := serve(t, h, http.MethodPost, "/invoices/inv-1/mark-paid", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, f.paidAt.IsZero())

	rec = serve(t, h, http.MethodPost, "/invoices/inv-1/mark-paid", `{"paidAt":"2024-11-20"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2024-11-20", f.paidAt.Format("2006-01-02"))

	rec = serve(t, h, http.MethodPost, "/invoices/inv-1/mark-paid", `{"paidAt":"20.11.2024"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(t, h, http.MethodPost, "/invoices/inv-1/reminders", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_state", decodeError(t, rec).Error)
}

func TestRequestLogger_KeepsRequestID(t *testing.T) {
	h := NewRouter(&fakeReconciler{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "req-42", rec.Header().Get(RequestIDHeader))
}
