// Package reconciliation runs sync cycles over all configured sources and
// applies human review decisions on payment matches.
//
// A cycle ingests invoices and payments per source in parallel, re-derives
// the status of every open invoice and suggests matches for payments that
// have none yet. Cycles of one tenant never overlap.
package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"receivables/internal/invoice"
	"receivables/internal/logger"
	"receivables/internal/matching"
	"receivables/internal/sources"
	"receivables/internal/status"
	"receivables/internal/store"
	"receivables/pkg/models"
)

// Config controls a Service.
type Config struct {
	Tenant            string
	SourceTimeout     time.Duration
	SourceParallelism int

	// MinScore is the inclusion threshold of ReviewCandidates.
	MinScore int

	// MarkPaidOnConfirm flips the invoice to paid when a match is confirmed.
	MarkPaidOnConfirm bool
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Tenant:            "default",
		SourceTimeout:     2 * time.Minute,
		SourceParallelism: 4,
		MinScore:          matching.AcceptanceFloor,
		MarkPaidOnConfirm: true,
	}
}

// Service is the reconciliation orchestrator.
type Service struct {
	store    *store.Store
	engine   *invoice.Engine
	sources  []sources.Connector
	selector *matching.Selector
	cfg      Config
	now      func() time.Time
	log      zerolog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the clock used for status derivation and timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithSelector replaces the default match selector.
func WithSelector(sel *matching.Selector) Option {
	return func(s *Service) {
		s.selector = sel
	}
}

// NewService creates an orchestrator over st and connectors.
func NewService(st *store.Store, connectors []sources.Connector, cfg Config, opts ...Option) *Service {
	def := DefaultConfig()
	if cfg.Tenant == "" {
		cfg.Tenant = def.Tenant
	}
	if cfg.SourceTimeout <= 0 {
		cfg.SourceTimeout = def.SourceTimeout
	}
	if cfg.SourceParallelism <= 0 {
		cfg.SourceParallelism = def.SourceParallelism
	}
	if cfg.MinScore <= 0 {
		cfg.MinScore = def.MinScore
	}

	s := &Service{
		store:    st,
		sources:  connectors,
		selector: matching.NewSelector(nil, matching.AcceptanceFloor),
		cfg:      cfg,
		now:      time.Now,
		log:      logger.WithComponent("reconciliation"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.engine = invoice.NewEngine(st, invoice.WithClock(s.now))
	return s
}

// tenantLocks serializes cycles per tenant across every Service in the process.
var tenantLocks sync.Map

func tenantLock(tenant string) *sync.Mutex {
	mu, _ := tenantLocks.LoadOrStore(tenant, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func (s *Service) newID() string {
	return ulid.MustNew(ulid.Timestamp(s.now()), ulid.DefaultEntropy()).String()
}

// Sync runs one full cycle. It fails fast with ErrSyncInProgress when a
// cycle for the same tenant is running. Source failures do not fail the
// cycle; they are reported in the result.
func (s *Service) Sync(ctx context.Context) (*SyncResult, error) {
	const op = "Sync"

	mu := tenantLock(s.cfg.Tenant)
	if !mu.TryLock() {
		return nil, newError(op, ErrSyncInProgress, "tenant "+s.cfg.Tenant)
	}
	defer mu.Unlock()

	result := &SyncResult{
		RunID:     s.newID(),
		StartedAt: s.now(),
	}
	run := &models.SyncRun{
		ID:        result.RunID,
		Tenant:    s.cfg.Tenant,
		StartedAt: result.StartedAt,
		Outcome:   "running",
	}
	if err := s.store.CreateSyncRun(ctx, run); err != nil {
		return nil, newError(op, err, "failed to record sync run")
	}

	log := logger.WithSyncRun(s.log, s.cfg.Tenant, run.ID)
	log.Info().Int("sources", len(s.sources)).Msg("Sync cycle started")

	result.Sources = make([]SourceReport, len(s.sources))
	var g errgroup.Group
	g.SetLimit(s.cfg.SourceParallelism)
	for i, c := range s.sources {
		g.Go(func() error {
			result.Sources[i] = s.syncSource(ctx, c, log)
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range result.Sources {
		result.InvoicesSynced += r.InvoicesCreated + r.InvoicesUpdated
		result.PaymentsSynced += r.PaymentsCreated + r.PaymentsUpdated
		result.Skipped += r.Skipped + r.Failed
		if r.Unavailable() {
			result.FailedSources++
		}
	}

	var cycleErr error
	if ctx.Err() == nil {
		var statusFailed, matchFailed int
		result.StatusesChanged, statusFailed, cycleErr = s.RefreshStatuses(ctx)
		if cycleErr == nil {
			result.MatchesCreated, matchFailed, cycleErr = s.SuggestMatches(ctx)
		}
		result.Skipped += statusFailed + matchFailed
	} else {
		cycleErr = ctx.Err()
	}

	result.FinishedAt = s.now()
	result.Outcome = outcome(result, cycleErr)
	if cycleErr != nil {
		result.Error = cycleErr.Error()
	}

	finished := result.FinishedAt
	run.FinishedAt = &finished
	run.Outcome = string(result.Outcome)
	run.InvoicesSynced = result.InvoicesSynced
	run.PaymentsSynced = result.PaymentsSynced
	run.Skipped = result.Skipped
	run.FailedSources = result.FailedSources
	run.Error = result.Error
	if err := s.store.FinishSyncRun(context.WithoutCancel(ctx), run); err != nil {
		log.Error().Err(err).Msg("Failed to record sync outcome")
	}

	log.Info().
		Str("outcome", string(result.Outcome)).
		Int("invoices_synced", result.InvoicesSynced).
		Int("payments_synced", result.PaymentsSynced).
		Int("skipped", result.Skipped).
		Int("failed_sources", result.FailedSources).
		Int("statuses_changed", result.StatusesChanged).
		Int("matches_created", result.MatchesCreated).
		Dur("duration", result.FinishedAt.Sub(result.StartedAt)).
		Msg("Sync cycle finished")

	if cycleErr != nil {
		return result, newError(op, cycleErr, "cycle aborted")
	}
	return result, nil
}

func outcome(r *SyncResult, cycleErr error) Outcome {
	switch {
	case cycleErr != nil:
		return OutcomeFailed
	case len(r.Sources) > 0 && r.FailedSources == len(r.Sources):
		return OutcomeFailed
	case r.FailedSources > 0 || r.Skipped > 0:
		return OutcomeCompletedWithSkips
	default:
		return OutcomeCompleted
	}
}

// syncSource fetches and stores everything one source holds. Its errors end
// up in the report, never in the cycle.
func (s *Service) syncSource(ctx context.Context, c sources.Connector, runLog zerolog.Logger) SourceReport {
	name := c.Name()
	report := SourceReport{Source: name}
	log := runLog.With().Str("source", name).Logger()
	started := time.Now()
	defer func() { report.Duration = time.Since(started) }()

	sctx, cancel := context.WithTimeout(ctx, s.cfg.SourceTimeout)
	defer cancel()

	raws, err := c.FetchInvoices(sctx)
	if err != nil {
		report.Error = sourceError(err)
		log.Error().Err(err).Msg("Source unavailable, skipping")
		return report
	}

	for _, raw := range raws {
		res, err := s.engine.UpsertRecord(sctx, name, raw)
		switch {
		case errors.Is(err, invoice.ErrMalformedRecord):
			report.Skipped++
			log.Warn().Err(err).Str("native_id", raw.NativeID).Msg("Malformed invoice record skipped")
		case err != nil:
			report.Failed++
			log.Error().Err(err).Str("native_id", raw.NativeID).Msg("Invoice record failed")
		case res.Created:
			report.InvoicesCreated++
		default:
			report.InvoicesUpdated++
		}

		if sctx.Err() != nil {
			report.Error = sourceError(sctx.Err())
			log.Error().Err(sctx.Err()).Msg("Source timed out during invoice upsert")
			return report
		}
	}

	payments, err := c.FetchPayments(sctx, "")
	if err != nil {
		report.Error = sourceError(err)
		log.Error().Err(err).Msg("Payments unavailable, skipping")
		return report
	}

	for _, raw := range payments {
		p, ok := paymentFromRaw(name, raw)
		if !ok {
			report.Skipped++
			log.Warn().Str("native_id", raw.NativeID).Msg("Malformed payment record skipped")
			continue
		}

		created, err := s.upsertPayment(sctx, p)
		switch {
		case err != nil:
			report.Failed++
			log.Error().Err(err).Str("native_id", raw.NativeID).Msg("Payment record failed")
		case created:
			report.PaymentsCreated++
		default:
			report.PaymentsUpdated++
		}

		if sctx.Err() != nil {
			report.Error = sourceError(sctx.Err())
			log.Error().Err(sctx.Err()).Msg("Source timed out during payment upsert")
			return report
		}
	}

	log.Info().
		Int("invoices_created", report.InvoicesCreated).
		Int("invoices_updated", report.InvoicesUpdated).
		Int("payments_created", report.PaymentsCreated).
		Int("payments_updated", report.PaymentsUpdated).
		Int("skipped", report.Skipped).
		Int("failed", report.Failed).
		Msg("Source synced")

	return report
}

func sourceError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Sprintf("%v: timeout", sources.ErrSourceUnavailable)
	}
	return err.Error()
}

func (s *Service) upsertPayment(ctx context.Context, p *models.Payment) (bool, error) {
	var created bool
	err := s.retry(ctx, "upsert payment", func() error {
		var err error
		created, err = s.store.UpsertPayment(ctx, p)
		return err
	})
	return created, err
}

// retry runs fn and repeats it once when the store error is transient.
func (s *Service) retry(ctx context.Context, what string, fn func() error) error {
	err := fn()
	if err == nil || !store.IsTransient(err) || ctx.Err() != nil {
		return err
	}
	s.log.Warn().Err(err).Str("step", what).Msg("Transient store failure, retrying once")
	return fn()
}

// paymentFromRaw rejects payments without id, amount or date.
func paymentFromRaw(source string, raw models.RawPayment) (*models.Payment, bool) {
	if strings.TrimSpace(raw.NativeID) == "" || raw.Amount == nil || raw.Date == nil || raw.Date.IsZero() {
		return nil, false
	}
	return &models.Payment{
		Source:         source,
		SourceNativeID: strings.TrimSpace(raw.NativeID),
		Amount:         raw.Amount.Round(2),
		Currency:       invoice.NormalizeCurrency(raw.Currency),
		PaymentDate:    *raw.Date,
		Reference:      strings.TrimSpace(raw.Reference),
		Account:        strings.TrimSpace(raw.Account),
		CounterParty:   strings.TrimSpace(raw.CounterParty),
	}, true
}

// RefreshStatuses re-derives the status of every invoice that is neither
// paid nor cancelled. It returns how many changed and how many could not be
// written; a failed write is retried once when transient and then skipped
// without stopping the others.
func (s *Service) RefreshStatuses(ctx context.Context) (changed, failed int, err error) {
	const op = "RefreshStatuses"

	invoices, err := s.store.ListInvoices(ctx, store.InvoiceFilter{
		ExcludeStatus: []models.InvoiceStatus{models.StatusPaid, models.StatusCancelled},
	})
	if err != nil {
		return 0, 0, fmt.Errorf("%s: %w", op, err)
	}

	today := s.now()
	for i := range invoices {
		inv := &invoices[i]
		next := status.Resolve(inv.Status, inv.DueDate, today)
		if next == inv.Status {
			continue
		}

		var updated bool
		err := s.retry(ctx, "update status", func() error {
			var err error
			updated, err = s.store.UpdateInvoiceStatus(ctx, inv.ID, next)
			return err
		})
		if err != nil {
			if ctx.Err() != nil {
				return changed, failed, fmt.Errorf("%s: %w", op, ctx.Err())
			}
			failed++
			s.log.Error().Err(err).Str("invoice_id", inv.ID).Msg("Invoice status not updated, skipping")
			continue
		}
		if !updated {
			// paid or cancelled since it was listed
			continue
		}

		s.log.Debug().
			Str("invoice_id", inv.ID).
			Str("from", string(inv.Status)).
			Str("to", string(next)).
			Msg("Invoice status changed")
		changed++
	}

	return changed, failed, nil
}

// SuggestMatches creates a pending match for every incoming payment that has
// none, carrying the best candidate among open and overdue invoices. Payments
// whose match cannot be stored are counted in failed and left for the next
// cycle.
func (s *Service) SuggestMatches(ctx context.Context) (created, failed int, err error) {
	const op = "SuggestMatches"

	payments, err := s.store.ListUnmatchedPayments(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("%s: %w", op, err)
	}
	if len(payments) == 0 {
		return 0, 0, nil
	}

	invoices, err := s.openInvoices(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("%s: %w", op, err)
	}

	for i := range payments {
		p := &payments[i]
		if !p.IsIncoming() {
			continue
		}

		m := &models.PaymentMatch{
			ID:        s.newID(),
			PaymentID: p.ID,
			Status:    models.MatchPending,
		}
		if best, ok := s.selector.BestMatch(p, invoices); ok {
			invoiceID := best.Invoice.ID
			score := best.Score
			m.SuggestedInvoiceID = &invoiceID
			m.ConfidenceScore = &score
		}

		var ok bool
		err := s.retry(ctx, "create match", func() error {
			var err error
			ok, err = s.store.CreateMatch(ctx, m)
			return err
		})
		if err != nil {
			if ctx.Err() != nil {
				return created, failed, fmt.Errorf("%s: %w", op, ctx.Err())
			}
			failed++
			s.log.Error().Err(err).Str("payment_id", p.ID).Msg("Match suggestion not stored, skipping")
			continue
		}
		if ok {
			created++
		}
	}

	s.log.Info().
		Int("payments", len(payments)).
		Int("matches_created", created).
		Int("failed", failed).
		Msg("Match suggestions created")

	return created, failed, nil
}

func (s *Service) openInvoices(ctx context.Context) ([]models.Invoice, error) {
	return s.store.ListInvoices(ctx, store.InvoiceFilter{
		Statuses: []models.InvoiceStatus{models.StatusOpen, models.StatusOverdue},
	})
}
