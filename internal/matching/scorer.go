// Package matching scores bank payments against open invoices and selects
// candidates for review.
//
// A score is the capped sum of three independent signals:
//   - amount: the payment equals the invoice gross amount within one cent
//   - date: the payment date lies close to the invoice due date
//   - reference: the payment reference names the invoice number
package matching

import (
	"regexp"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"receivables/internal/status"
	"receivables/pkg/models"
)

// DateBand awards Points when the payment is at most MaxDays away from the due date.
type DateBand struct {
	MaxDays int
	Points  int
}

// ScoreConfig holds the weights of the scorer.
type ScoreConfig struct {
	AmountPoints  int
	AmountEpsilon decimal.Decimal

	// DateBands are mutually exclusive; the narrowest band that fits wins.
	DateBands []DateBand

	FullReferencePoints  int
	DigitReferencePoints int
	MinReferenceDigits   int

	MaxScore int
}

// DefaultScoreConfig returns the standard weights: 50 for the amount,
// 30/20/10 for 7/14/30 days, 20 for the full invoice number and 15 for its
// digits.
func DefaultScoreConfig() ScoreConfig {
	return ScoreConfig{
		AmountPoints:  50,
		AmountEpsilon: decimal.New(1, -2),
		DateBands: []DateBand{
			{MaxDays: 7, Points: 30},
			{MaxDays: 14, Points: 20},
			{MaxDays: 30, Points: 10},
		},
		FullReferencePoints:  20,
		DigitReferencePoints: 15,
		MinReferenceDigits:   4,
		MaxScore:             100,
	}
}

// Breakdown is a score split into its signals.
type Breakdown struct {
	Amount    int `json:"amount"`
	Date      int `json:"date"`
	Reference int `json:"reference"`
	Total     int `json:"total"`
	DaysDiff  int `json:"days_diff"`
}

// Scorer computes match scores. It is safe for concurrent use.
type Scorer struct {
	cfg ScoreConfig
}

// NewScorer creates a scorer with the given weights.
func NewScorer(cfg ScoreConfig) *Scorer {
	bands := make([]DateBand, len(cfg.DateBands))
	copy(bands, cfg.DateBands)
	sort.Slice(bands, func(i, j int) bool {
		return bands[i].MaxDays < bands[j].MaxDays
	})
	cfg.DateBands = bands
	if cfg.MaxScore <= 0 {
		cfg.MaxScore = 100
	}
	return &Scorer{cfg: cfg}
}

var defaultScorer = NewScorer(DefaultScoreConfig())

// Score rates how likely payment settles invoice, using the default weights.
func Score(payment *models.Payment, invoice *models.Invoice) int {
	return defaultScorer.Score(payment, invoice)
}

// Score returns a value in [0, MaxScore].
func (s *Scorer) Score(payment *models.Payment, invoice *models.Invoice) int {
	return s.Breakdown(payment, invoice).Total
}

// Breakdown scores the pair and reports each signal separately.
func (s *Scorer) Breakdown(payment *models.Payment, invoice *models.Invoice) Breakdown {
	var b Breakdown

	if payment.Amount.Sub(invoice.GrossAmount).Abs().LessThan(s.cfg.AmountEpsilon) {
		b.Amount = s.cfg.AmountPoints
	}

	b.DaysDiff = status.DaysBetween(invoice.DueDate, payment.PaymentDate)
	if b.DaysDiff < 0 {
		b.DaysDiff = -b.DaysDiff
	}
	for _, band := range s.cfg.DateBands {
		if b.DaysDiff <= band.MaxDays {
			b.Date = band.Points
			break
		}
	}

	b.Reference = s.referencePoints(payment.Reference, invoice.InvoiceNumber)

	b.Total = b.Amount + b.Date + b.Reference
	if b.Total > s.cfg.MaxScore {
		b.Total = s.cfg.MaxScore
	}
	if b.Total < 0 {
		b.Total = 0
	}
	return b
}

var trailingDigits = regexp.MustCompile(`(\d+)\D*$`)

func (s *Scorer) referencePoints(reference, invoiceNumber string) int {
	reference = strings.ToLower(strings.TrimSpace(reference))
	invoiceNumber = strings.ToLower(strings.TrimSpace(invoiceNumber))
	if reference == "" || invoiceNumber == "" {
		return 0
	}

	if strings.Contains(reference, invoiceNumber) {
		return s.cfg.FullReferencePoints
	}

	digits := InvoiceDigits(invoiceNumber)
	if len(digits) >= s.cfg.MinReferenceDigits && strings.Contains(reference, digits) {
		return s.cfg.DigitReferencePoints
	}
	return 0
}

// InvoiceDigits returns the last run of digits in an invoice number, which
// carries the running counter ("RE-2024-0012" yields "0012").
func InvoiceDigits(invoiceNumber string) string {
	m := trailingDigits.FindStringSubmatch(invoiceNumber)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}
