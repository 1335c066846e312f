// Package status derives the lifecycle state of an invoice from its stored
// status and due date.
package status

import (
	"time"

	"receivables/pkg/models"
)

// Resolve returns the lifecycle status of an invoice as of today.
//
// Paid and cancelled are authoritative and returned unchanged. Any other
// status is recomputed: an invoice whose due date lies before today (compared
// as calendar dates, time of day ignored) is overdue, otherwise open.
func Resolve(current models.InvoiceStatus, dueDate, today time.Time) models.InvoiceStatus {
	if current.IsAuthoritative() {
		return current
	}
	if CivilDate(dueDate).Before(CivilDate(today)) {
		return models.StatusOverdue
	}
	return models.StatusOpen
}

// DaysOverdue returns how many calendar days today lies past the due date,
// or 0 when the invoice is not yet due.
func DaysOverdue(dueDate, today time.Time) int {
	days := DaysBetween(dueDate, today)
	if days < 0 {
		return 0
	}
	return days
}

// DaysBetween returns the signed number of calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(CivilDate(b).Sub(CivilDate(a)).Hours() / 24)
}

// CivilDate strips the time of day, keeping the calendar date as seen in t's
// own location.
func CivilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
