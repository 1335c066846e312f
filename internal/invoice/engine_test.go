package invoice

import (
	"context"
	"database/sql/driver"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"receivables/internal/store"
	"receivables/pkg/models"
)

// memRepo is an in-memory Repository keyed by natural key.
type memRepo struct {
	mu       sync.Mutex
	invoices map[string]models.Invoice

	findErrs   []error
	createErrs []error
	updateErrs []error
	creates    int
	updates    int

	// afterFind runs once the lookup returned, outside the lock.
	afterFind func()
}

func newMemRepo() *memRepo {
	return &memRepo{invoices: make(map[string]models.Invoice)}
}

func key(source, nativeID string) string { return source + "/" + nativeID }

func pop(errs *[]error) error {
	if len(*errs) == 0 {
		return nil
	}
	err := (*errs)[0]
	*errs = (*errs)[1:]
	return err
}

func (r *memRepo) FindInvoiceByNaturalKey(_ context.Context, source, nativeID string) (*models.Invoice, error) {
	inv, err := r.find(source, nativeID)
	if r.afterFind != nil {
		r.afterFind()
	}
	return inv, err
}

func (r *memRepo) find(source, nativeID string) (*models.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := pop(&r.findErrs); err != nil {
		return nil, err
	}
	inv, ok := r.invoices[key(source, nativeID)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &inv, nil
}

func (r *memRepo) CreateInvoice(_ context.Context, inv *models.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := pop(&r.createErrs); err != nil {
		return err
	}
	k := key(inv.Source, inv.SourceNativeID)
	if _, ok := r.invoices[k]; ok {
		return store.ErrDuplicate
	}
	r.creates++
	r.invoices[k] = *inv
	return nil
}

func (r *memRepo) UpdateInvoiceSourceFields(_ context.Context, inv *models.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := pop(&r.updateErrs); err != nil {
		return err
	}
	k := key(inv.Source, inv.SourceNativeID)
	cur, ok := r.invoices[k]
	if !ok {
		return store.ErrNotFound
	}
	r.updates++
	// mirrors the store: local-only fields survive and a derived status
	// never replaces paid or cancelled
	next := *inv
	next.ReminderLevel = cur.ReminderLevel
	next.LastReminderSent = cur.LastReminderSent
	next.Notes = cur.Notes
	if !inv.Status.IsAuthoritative() {
		next.PaymentDate = cur.PaymentDate
		if cur.Status.IsAuthoritative() {
			next.Status = cur.Status
		}
	}
	r.invoices[k] = next
	return nil
}

func (r *memRepo) markPaid(source, nativeID string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key(source, nativeID)
	inv := r.invoices[k]
	inv.Status = models.StatusPaid
	inv.PaymentDate = &at
	r.invoices[k] = inv
}

func (r *memRepo) get(source, nativeID string) models.Invoice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.invoices[key(source, nativeID)]
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func fixedClock(s string) Option {
	return WithClock(func() time.Time { return day(s) })
}

func sampleFields() Fields {
	return Fields{
		InvoiceNumber: "RE-2024-0042",
		CustomerID:    "K-100",
		CustomerName:  "Muster GmbH",
		GrossAmount:   decimal.RequireFromString("119.00"),
		NetAmount:     decimal.RequireFromString("100.00"),
		TaxAmount:     decimal.RequireFromString("19.00"),
		Currency:      "EUR",
		IssueDate:     day("2024-03-01"),
		DueDate:       day("2024-03-31"),
	}
}

func TestUpsert_CreatesWithDerivedStatus(t *testing.T) {
	repo := newMemRepo()
	e := NewEngine(repo, fixedClock("2024-03-15"))

	res, err := e.Upsert(context.Background(), "sheets", "R1", sampleFields())
	require.NoError(t, err)

	assert.True(t, res.Created)
	assert.NotEmpty(t, res.InvoiceID)
	assert.Equal(t, models.StatusOpen, res.Status)

	stored := repo.get("sheets", "R1")
	assert.Equal(t, 0, stored.ReminderLevel)
	assert.Equal(t, "RE-2024-0042", stored.InvoiceNumber)
}

func TestUpsert_PastDueIsOverdue(t *testing.T) {
	repo := newMemRepo()
	e := NewEngine(repo, fixedClock("2024-04-01"))

	res, err := e.Upsert(context.Background(), "sheets", "R1", sampleFields())
	require.NoError(t, err)
	assert.Equal(t, models.StatusOverdue, res.Status)
}

func TestUpsert_Idempotent(t *testing.T) {
	repo := newMemRepo()
	e := NewEngine(repo, fixedClock("2024-03-15"))
	ctx := context.Background()

	first, err := e.Upsert(ctx, "sheets", "R1", sampleFields())
	require.NoError(t, err)
	second, err := e.Upsert(ctx, "sheets", "R1", sampleFields())
	require.NoError(t, err)

	assert.True(t, first.Created)
	assert.False(t, second.Created)
	assert.Equal(t, first.InvoiceID, second.InvoiceID)
	assert.Len(t, repo.invoices, 1)
	assert.Equal(t, 1, repo.creates)
}

func TestUpsert_SameNativeIDDifferentSource(t *testing.T) {
	repo := newMemRepo()
	e := NewEngine(repo, fixedClock("2024-03-15"))
	ctx := context.Background()

	a, err := e.Upsert(ctx, "sheets", "R1", sampleFields())
	require.NoError(t, err)
	b, err := e.Upsert(ctx, "jsonfile", "R1", sampleFields())
	require.NoError(t, err)

	assert.NotEqual(t, a.InvoiceID, b.InvoiceID)
	assert.Len(t, repo.invoices, 2)
}

func TestUpsert_KeepsLocalFields(t *testing.T) {
	repo := newMemRepo()
	e := NewEngine(repo, fixedClock("2024-04-20"))
	ctx := context.Background()

	_, err := e.Upsert(ctx, "sheets", "R1", sampleFields())
	require.NoError(t, err)

	sent := day("2024-04-15")
	stored := repo.invoices[key("sheets", "R1")]
	stored.ReminderLevel = 2
	stored.LastReminderSent = &sent
	repo.invoices[key("sheets", "R1")] = stored

	changed := sampleFields()
	changed.GrossAmount = decimal.RequireFromString("150.00")
	res, err := e.Upsert(ctx, "sheets", "R1", changed)
	require.NoError(t, err)

	got := repo.get("sheets", "R1")
	assert.False(t, res.Created)
	assert.Equal(t, "150.00", got.GrossAmount.StringFixed(2))
	assert.Equal(t, 2, got.ReminderLevel)
	require.NotNil(t, got.LastReminderSent)
	assert.True(t, got.LastReminderSent.Equal(sent))
	assert.Equal(t, models.StatusOverdue, got.Status)
}

func TestUpsert_AuthoritativeStatus(t *testing.T) {
	repo := newMemRepo()
	e := NewEngine(repo, fixedClock("2024-04-20"))
	ctx := context.Background()

	paidAt := day("2024-04-10")
	paid := sampleFields()
	paid.Status = models.StatusPaid
	paid.PaymentDate = &paidAt

	res, err := e.Upsert(ctx, "sheets", "R1", paid)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaid, res.Status)

	// a later sync without a status does not reopen the invoice
	res, err = e.Upsert(ctx, "sheets", "R1", sampleFields())
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaid, res.Status)

	got := repo.get("sheets", "R1")
	require.NotNil(t, got.PaymentDate)
	assert.True(t, got.PaymentDate.Equal(paidAt))
}

func TestUpsert_KeepsPaidSetDuringSync(t *testing.T) {
	repo := newMemRepo()
	e := NewEngine(repo, fixedClock("2024-04-03"))
	ctx := context.Background()

	_, err := e.Upsert(ctx, "sheets", "R1", sampleFields())
	require.NoError(t, err)

	// a person marks the invoice paid between the lookup and the write
	paidAt := day("2024-04-02")
	repo.afterFind = func() {
		repo.afterFind = nil
		repo.markPaid("sheets", "R1", paidAt)
	}

	changed := sampleFields()
	changed.CustomerName = "Muster AG"
	_, err = e.Upsert(ctx, "sheets", "R1", changed)
	require.NoError(t, err)

	got := repo.get("sheets", "R1")
	assert.Equal(t, "Muster AG", got.CustomerName)
	assert.Equal(t, models.StatusPaid, got.Status)
	require.NotNil(t, got.PaymentDate)
	assert.True(t, got.PaymentDate.Equal(paidAt))
}

func TestUpsert_RequiresNaturalKey(t *testing.T) {
	e := NewEngine(newMemRepo())

	_, err := e.Upsert(context.Background(), "sheets", "", sampleFields())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedRecord)

	var recErr *RecordError
	require.ErrorAs(t, err, &recErr)
	assert.Equal(t, "sheets", recErr.Source)
}

func TestUpsert_RetriesTransientOnce(t *testing.T) {
	repo := newMemRepo()
	repo.createErrs = []error{driver.ErrBadConn}
	e := NewEngine(repo, fixedClock("2024-03-15"))

	res, err := e.Upsert(context.Background(), "sheets", "R1", sampleFields())
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, 1, repo.creates)
}

func TestUpsert_GivesUpAfterSecondTransient(t *testing.T) {
	repo := newMemRepo()
	repo.createErrs = []error{driver.ErrBadConn, driver.ErrBadConn}
	e := NewEngine(repo, fixedClock("2024-03-15"))

	_, err := e.Upsert(context.Background(), "sheets", "R1", sampleFields())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPersistenceFailed)
	assert.ErrorIs(t, err, driver.ErrBadConn)
	assert.Empty(t, repo.invoices)
}

func TestUpsert_PermanentErrorNotRetried(t *testing.T) {
	repo := newMemRepo()
	boom := errors.New("disk full")
	repo.updateErrs = []error{boom}
	e := NewEngine(repo, fixedClock("2024-03-15"))
	ctx := context.Background()

	repo.invoices[key("sheets", "R1")] = models.Invoice{ID: "inv-1", Source: "sheets", SourceNativeID: "R1"}

	_, err := e.Upsert(ctx, "sheets", "R1", sampleFields())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, repo.updates)
}

func TestUpsert_DuplicateOnCreateFallsBackToUpdate(t *testing.T) {
	repo := newMemRepo()
	e := NewEngine(repo, fixedClock("2024-03-15"))

	// another writer inserts the row between lookup and create
	repo.createErrs = []error{store.ErrDuplicate}
	repo.invoices[key("sheets", "R1")] = models.Invoice{ID: "inv-1", Source: "sheets", SourceNativeID: "R1"}
	repo.findErrs = []error{store.ErrNotFound}

	res, err := e.Upsert(context.Background(), "sheets", "R1", sampleFields())
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Equal(t, "inv-1", res.InvoiceID)
	assert.Equal(t, 1, repo.updates)
}

func TestUpsert_ConcurrentSameKey(t *testing.T) {
	repo := newMemRepo()
	e := NewEngine(repo, fixedClock("2024-03-15"))
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make([]string, 16)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := e.Upsert(ctx, "sheets", "R1", sampleFields())
			if err == nil {
				ids[i] = res.InvoiceID
			}
		}(i)
	}
	wg.Wait()

	assert.Len(t, repo.invoices, 1)
	assert.Equal(t, 1, repo.creates)
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestUpsertRecord_RejectsMalformed(t *testing.T) {
	repo := newMemRepo()
	e := NewEngine(repo)

	_, err := e.UpsertRecord(context.Background(), "sheets", models.RawInvoice{NativeID: "R9", InvoiceNumber: "RE-1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedRecord)

	var recErr *RecordError
	require.ErrorAs(t, err, &recErr)
	assert.Equal(t, "R9", recErr.NativeID)
	assert.Empty(t, repo.invoices)
}

func TestUpsertRecord_Valid(t *testing.T) {
	repo := newMemRepo()
	e := NewEngine(repo, fixedClock("2024-03-15"))

	gross := decimal.RequireFromString("119")
	due := day("2024-03-31")
	res, err := e.UpsertRecord(context.Background(), "sheets", models.RawInvoice{
		NativeID:      "R1",
		InvoiceNumber: "RE-1",
		GrossAmount:   &gross,
		DueDate:       &due,
	})
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, "EUR", repo.get("sheets", "R1").Currency)
}
