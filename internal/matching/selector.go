package matching

import (
	"sort"

	"receivables/pkg/models"
)

// AcceptanceFloor is the score a candidate must reach to be plausible at all.
const AcceptanceFloor = 40

// ConfidenceLevel buckets a score for triage.
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "high"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceLow    ConfidenceLevel = "low"
)

// Confidence returns high for 95 and above, medium for 70 to 94, low below.
func Confidence(score int) ConfidenceLevel {
	switch {
	case score >= 95:
		return ConfidenceHigh
	case score >= 70:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// Candidate is an invoice scored against a payment.
type Candidate struct {
	Invoice    *models.Invoice `json:"invoice"`
	Score      int             `json:"score"`
	Confidence ConfidenceLevel `json:"confidence"`
	Breakdown  Breakdown       `json:"breakdown"`
}

// Selector picks candidates for a payment.
type Selector struct {
	scorer *Scorer
	floor  int
}

// NewSelector creates a selector. A non-positive floor falls back to AcceptanceFloor.
func NewSelector(scorer *Scorer, floor int) *Selector {
	if scorer == nil {
		scorer = defaultScorer
	}
	if floor <= 0 {
		floor = AcceptanceFloor
	}
	return &Selector{scorer: scorer, floor: floor}
}

var defaultSelector = NewSelector(defaultScorer, AcceptanceFloor)

// BestMatch uses the default scorer and floor.
func BestMatch(payment *models.Payment, invoices []models.Invoice) (Candidate, bool) {
	return defaultSelector.BestMatch(payment, invoices)
}

// PossibleMatches uses the default scorer.
func PossibleMatches(payment *models.Payment, invoices []models.Invoice, minScore int) []Candidate {
	return defaultSelector.PossibleMatches(payment, invoices, minScore)
}

// BestMatch returns the highest scoring invoice, or false when no score
// strictly exceeds the floor. Ties go to the lowest invoice ID.
func (s *Selector) BestMatch(payment *models.Payment, invoices []models.Invoice) (Candidate, bool) {
	var best Candidate
	found := false
	for i := range invoices {
		c := s.candidate(payment, &invoices[i])
		if !found || better(c, best) {
			best = c
			found = true
		}
	}
	if !found || best.Score <= s.floor {
		return Candidate{}, false
	}
	return best, true
}

// PossibleMatches returns every invoice scoring at least minScore, best first.
func (s *Selector) PossibleMatches(payment *models.Payment, invoices []models.Invoice, minScore int) []Candidate {
	var candidates []Candidate
	for i := range invoices {
		c := s.candidate(payment, &invoices[i])
		if c.Score >= minScore {
			candidates = append(candidates, c)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return better(candidates[i], candidates[j])
	})
	return candidates
}

func (s *Selector) candidate(payment *models.Payment, invoice *models.Invoice) Candidate {
	b := s.scorer.Breakdown(payment, invoice)
	return Candidate{
		Invoice:    invoice,
		Score:      b.Total,
		Confidence: Confidence(b.Total),
		Breakdown:  b,
	}
}

func better(a, b Candidate) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.Invoice.ID < b.Invoice.ID
}
