package sources

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRanges struct {
	values map[string][][]interface{}
	err    error
}

func (f *fakeRanges) ReadRange(_ context.Context, rangeSpec string) ([][]interface{}, error) {
	if f.err != nil {
		return nil, f.err
	}
	sheet := strings.SplitN(rangeSpec, "!", 2)[0]
	return f.values[sheet], nil
}

func invoiceSheet() [][]interface{} {
	return [][]interface{}{
		{"ID", "Rechnungsnr", "Kundennr", "Kunde", "Datum", "Fällig", "Netto", "MwSt", "Brutto", "Währung", "Status", "Zahlungsdatum"},
		{"D-1", "RE-2024-0042", "K-100", "Muster GmbH", "01.03.2024", "31.03.2024", "100,00", "19,00", "119,00", "EUR", "", ""},
		{},
		{"D-2", "RE-2024-0043", "K-101", "Beispiel AG", "02.03.2024", "kaputt", "", "", "1.190,00", "", "bezahlt", "20.03.2024"},
	}
}

func bankSheet() [][]interface{} {
	return [][]interface{}{
		{"Datum", "Transaktionstyp", "Beschreibung", "EREF", "MREF", "CRED", "SVWZ", "Empfänger/Absender", "BIC", "IBAN", "Betrag"},
		{"05.04.2024", "Gutschrift", "", "E2E-1", "", "", "RE-2024-0042", "Muster GmbH", "BIC1", "DE00123", "119,00"},
		{"06.04.2024", "Lastschrift", "Miete", "", "", "", "", "Vermieter", "BIC2", "DE00999", "-800,00"},
		{"05.04.2024", "Gutschrift", "", "E2E-1", "", "", "RE-2024-0042", "Muster GmbH", "BIC1", "DE00123", "119,00"},
		{"short", "row"},
	}
}

func TestSheetsConnector_FetchInvoices(t *testing.T) {
	c := NewSheetsConnector(&fakeRanges{values: map[string][][]interface{}{"Debitoren": invoiceSheet()}}, "Debitoren", "Bank")

	invoices, err := c.FetchInvoices(context.Background())
	require.NoError(t, err)
	require.Len(t, invoices, 2)

	first := invoices[0]
	assert.Equal(t, "D-1", first.NativeID)
	assert.Equal(t, "RE-2024-0042", first.InvoiceNumber)
	assert.Equal(t, "Muster GmbH", first.CustomerName)
	require.NotNil(t, first.GrossAmount)
	assert.Equal(t, "119.00", first.GrossAmount.StringFixed(2))
	require.NotNil(t, first.DueDate)
	assert.Equal(t, "2024-03-31", first.DueDate.Format("2006-01-02"))

	second := invoices[1]
	assert.Nil(t, second.DueDate)
	assert.Nil(t, second.NetAmount)
	assert.Equal(t, "1190.00", second.GrossAmount.StringFixed(2))
	assert.Equal(t, "bezahlt", second.Status)
	require.NotNil(t, second.PaymentDate)
}

func TestSheetsConnector_FetchPayments(t *testing.T) {
	c := NewSheetsConnector(&fakeRanges{values: map[string][][]interface{}{"Bank": bankSheet()}}, "Debitoren", "Bank")
	ctx := context.Background()

	payments, err := c.FetchPayments(ctx, "")
	require.NoError(t, err)
	require.Len(t, payments, 3)

	p := payments[0]
	assert.Equal(t, "119.00", p.Amount.StringFixed(2))
	assert.Equal(t, "RE-2024-0042 E2E-1", p.Reference)
	assert.Equal(t, "DE00123", p.Account)
	assert.Equal(t, "Muster GmbH", p.CounterParty)
	assert.Equal(t, "EUR", p.Currency)

	// identical rows get distinct but stable ids
	assert.NotEqual(t, payments[0].NativeID, payments[2].NativeID)
	again, err := c.FetchPayments(ctx, "")
	require.NoError(t, err)
	for i := range payments {
		assert.Equal(t, payments[i].NativeID, again[i].NativeID)
	}

	filtered, err := c.FetchPayments(ctx, "re-2024-0042")
	require.NoError(t, err)
	assert.Len(t, filtered, 2)
}

func TestSheetsConnector_Unavailable(t *testing.T) {
	c := NewSheetsConnector(&fakeRanges{err: errors.New("403 forbidden")}, "Debitoren", "Bank")

	_, err := c.FetchInvoices(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSourceUnavailable)

	_, err = c.FetchPayments(context.Background(), "")
	assert.ErrorIs(t, err, ErrSourceUnavailable)
}

func TestSheetsConnector_EmptySheet(t *testing.T) {
	c := NewSheetsConnector(&fakeRanges{values: map[string][][]interface{}{}}, "Debitoren", "Bank")

	invoices, err := c.FetchInvoices(context.Background())
	require.NoError(t, err)
	assert.Empty(t, invoices)
}
