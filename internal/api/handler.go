// Package api exposes the reconciliation service over HTTP/JSON.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"receivables/internal/logger"
	"receivables/internal/matching"
	"receivables/internal/reconciliation"
	"receivables/pkg/models"
)

// Reconciler is the part of reconciliation.Service the handlers use.
type Reconciler interface {
	Sync(ctx context.Context) (*reconciliation.SyncResult, error)
	Status(ctx context.Context) (*reconciliation.StatusSummary, error)
	InvoiceStatus(ctx context.Context, id string) (*reconciliation.InvoiceStatusView, error)
	ListMatches(ctx context.Context, status models.MatchStatus) ([]models.PaymentMatch, error)
	UpdateMatch(ctx context.Context, upd reconciliation.MatchUpdate) (*models.PaymentMatch, error)
	ReviewCandidates(ctx context.Context, matchID string) ([]matching.Candidate, error)
	MarkInvoicePaid(ctx context.Context, id string, paidAt time.Time) (*models.Invoice, error)
	SendReminder(ctx context.Context, id string) (*models.Invoice, error)
}

// Handler serves the HTTP entry points.
type Handler struct {
	svc Reconciler
	log zerolog.Logger
}

// NewHandler creates a handler over svc.
func NewHandler(svc Reconciler) *Handler {
	return &Handler{svc: svc, log: logger.WithComponent("api")}
}

// Register adds all routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.health)
	mux.HandleFunc("POST /sync", h.sync)
	mux.HandleFunc("GET /status", h.status)
	mux.HandleFunc("GET /invoices/{id}/status", h.invoiceStatus)
	mux.HandleFunc("POST /invoices/{id}/mark-paid", h.markPaid)
	mux.HandleFunc("POST /invoices/{id}/reminders", h.remind)
	mux.HandleFunc("GET /matches", h.listMatches)
	mux.HandleFunc("PATCH /matches/{id}", h.updateMatch)
	mux.HandleFunc("GET /matches/{id}/candidates", h.candidates)
}

// NewRouter returns the full handler chain for svc.
func NewRouter(svc Reconciler) http.Handler {
	mux := http.NewServeMux()
	NewHandler(svc).Register(mux)
	return RequestLogger(mux)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	h.failWith(w, r, err, nil)
}

func (h *Handler) failWith(w http.ResponseWriter, r *http.Request, err error, result any) {
	status, code := errorStatus(err)
	log := logger.FromContext(r.Context(), h.log)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Msg("Request failed")
	} else {
		log.Debug().Err(err).Msg("Request rejected")
	}
	JSON(w, status, ErrorResponse{Error: code, Details: reconciliation.ErrorDetails(err), Result: result})
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) sync(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Sync(r.Context())
	if err != nil {
		if res != nil {
			h.failWith(w, r, err, res)
			return
		}
		h.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, res)
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	summary, err := h.svc.Status(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, summary)
}

func (h *Handler) invoiceStatus(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.InvoiceStatus(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, view)
}

type markPaidRequest struct {
	// PaidAt is a date (2006-01-02); empty means today.
	PaidAt string `json:"paidAt"`
}

func (h *Handler) markPaid(w http.ResponseWriter, r *http.Request) {
	var req markPaidRequest
	if !decodeOptional(w, r, &req) {
		return
	}

	var paidAt time.Time
	if req.PaidAt != "" {
		var err error
		if paidAt, err = time.Parse("2006-01-02", req.PaidAt); err != nil {
			JSONError(w, http.StatusBadRequest, "invalid_input", "paidAt must be YYYY-MM-DD")
			return
		}
	}

	inv, err := h.svc.MarkInvoicePaid(r.Context(), r.PathValue("id"), paidAt)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, inv)
}

func (h *Handler) remind(w http.ResponseWriter, r *http.Request) {
	inv, err := h.svc.SendReminder(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, inv)
}

func (h *Handler) listMatches(w http.ResponseWriter, r *http.Request) {
	matches, err := h.svc.ListMatches(r.Context(), models.MatchStatus(r.URL.Query().Get("status")))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if matches == nil {
		matches = []models.PaymentMatch{}
	}
	JSON(w, http.StatusOK, matches)
}

type updateMatchRequest struct {
	NewStatus       models.MatchStatus `json:"newStatus"`
	ChosenInvoiceID *string            `json:"chosenInvoiceId"`
	Notes           *string            `json:"notes"`
	MatchedBy       string             `json:"matchedBy"`
}

func (h *Handler) updateMatch(w http.ResponseWriter, r *http.Request) {
	var req updateMatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		JSONError(w, http.StatusBadRequest, "invalid_input", "request body must be a JSON object")
		return
	}

	m, err := h.svc.UpdateMatch(r.Context(), reconciliation.MatchUpdate{
		MatchID:         r.PathValue("id"),
		NewStatus:       req.NewStatus,
		ChosenInvoiceID: req.ChosenInvoiceID,
		Notes:           req.Notes,
		MatchedBy:       req.MatchedBy,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, m)
}

func (h *Handler) candidates(w http.ResponseWriter, r *http.Request) {
	candidates, err := h.svc.ReviewCandidates(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if candidates == nil {
		candidates = []matching.Candidate{}
	}
	JSON(w, http.StatusOK, candidates)
}

// decodeOptional decodes a JSON body when there is one. It writes the error
// response itself and reports whether the handler may continue.
func decodeOptional(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	JSONError(w, http.StatusBadRequest, "invalid_input", "request body must be a JSON object")
	return false
}
