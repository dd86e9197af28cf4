package availability

import (
	"time"

	pkgerrors "github.com/angelmondragon/eventrentals-backend/pkg/errors"
)

// Range is a half-open booking window [Start, End). A booking that ends at
// the instant another starts does not overlap it.
type Range struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewRange validates and normalizes a window to UTC.
func NewRange(start, end time.Time) (Range, error) {
	if start.IsZero() || end.IsZero() {
		return Range{}, pkgerrors.New(pkgerrors.CodeValidation, "date_start and date_end are required")
	}
	if end.Before(start) {
		return Range{}, pkgerrors.New(pkgerrors.CodeValidation, "date_end must not be before date_start")
	}
	return Range{Start: start.UTC(), End: end.UTC()}, nil
}

// Overlaps applies the same test the booking queries use: s1 < e2 AND e1 > s2.
func (r Range) Overlaps(other Range) bool {
	return r.Start.Before(other.End) && r.End.After(other.Start)
}

// RentalDays is the number of started 24h periods in the window, minimum one.
func (r Range) RentalDays() int64 {
	d := r.End.Sub(r.Start)
	days := int64(d / (24 * time.Hour))
	if d%(24*time.Hour) != 0 {
		days++
	}
	if days < 1 {
		days = 1
	}
	return days
}
