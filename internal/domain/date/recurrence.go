// Package date holds the date/time helpers shared by the domain and the
// sync protocol: the "no value" conventions (the zero time.Time stands in
// for "never"/"infinite") and recurrence computation.
package date

import "time"

// Recurrence units.
const (
	UnitNone    = ""
	UnitDaily   = "daily"
	UnitWeekly  = "weekly"
	UnitMonthly = "monthly"
	UnitYearly  = "yearly"
)

// Recurrence describes how a completed task reschedules itself.
type Recurrence struct {
	// Unit is one of the Unit constants; UnitNone means no recurrence.
	Unit string
	// Amount is the number of units between occurrences, at least 1.
	Amount int
	// SameWeekday keeps monthly/yearly occurrences on the weekday of the
	// original date instead of the day-of-month.
	SameWeekday bool
	// Max caps the number of occurrences handed out; 0 means no cap.
	Max int
	// Count is how many occurrences were handed out so far.
	Count int
	// StopDateTime ends the recurrence; zero means never.
	StopDateTime time.Time
	// BasedOnCompletion recurs relative to the completion date rather
	// than the planned dates.
	BasedOnCompletion bool
}

// NewRecurrence creates a recurrence with the given unit and amount.
func NewRecurrence(unit string, amount int) *Recurrence {
	if amount < 1 {
		amount = 1
	}
	return &Recurrence{Unit: unit, Amount: amount}
}

// Copy returns an independent copy, nil for nil.
func (r *Recurrence) Copy() *Recurrence {
	if r == nil {
		return nil
	}
	copied := *r
	return &copied
}

// Finished reports whether the recurrence has run out, either because the
// occurrence cap was reached or the stop date passed.
func (r *Recurrence) Finished(now time.Time) bool {
	if r.Max != 0 && r.Count >= r.Max {
		return true
	}
	return !r.StopDateTime.IsZero() && now.After(r.StopDateTime)
}

// Next returns the occurrence following t and increments the handed-out
// count. When the recurrence is finished it clears the unit and returns t
// unchanged.
func (r *Recurrence) Next(t time.Time) time.Time {
	next := r.NextDateTime(t)
	r.Count++
	if r.Finished(time.Now()) {
		r.Unit = UnitNone
	}
	return next
}

// NextDateTime computes the occurrence following t without consuming an
// occurrence. Zero times and finished recurrences pass through unchanged.
func (r *Recurrence) NextDateTime(t time.Time) time.Time {
	if t.IsZero() || r.Unit == UnitNone {
		return t
	}
	for i := 0; i < r.amount(); i++ {
		switch r.Unit {
		case UnitDaily:
			t = t.AddDate(0, 0, 1)
		case UnitWeekly:
			t = t.AddDate(0, 0, 7)
		case UnitMonthly:
			t = r.addMonth(t)
		case UnitYearly:
			t = r.addYear(t)
		}
	}
	return t
}

func (r *Recurrence) amount() int {
	if r.Amount < 1 {
		return 1
	}
	return r.Amount
}

// addMonth moves t one month ahead. Without SameWeekday the day-of-month
// is kept, clamped to the target month's length; with it, the occurrence
// lands on the same weekday in the same week-of-month.
func (r *Recurrence) addMonth(t time.Time) time.Time {
	year, month := t.Year(), t.Month()
	if month == time.December {
		year++
		month = time.January
	} else {
		month++
	}
	if r.SameWeekday {
		weekday := t.Weekday()
		weekOfMonth := (t.Day() - 1) / 7
		if weekOfMonth > 3 {
			weekOfMonth = 3
		}
		day := weekOfMonth*7 + 1
		candidate := time.Date(year, month, day, t.Hour(), t.Minute(), t.Second(), 0, t.Location())
		for candidate.Weekday() != weekday {
			day++
			candidate = time.Date(year, month, day, t.Hour(), t.Minute(), t.Second(), 0, t.Location())
		}
		return candidate
	}
	day := t.Day()
	for day > 0 {
		candidate := time.Date(year, month, day, t.Hour(), t.Minute(), t.Second(), 0, t.Location())
		if candidate.Month() == month {
			return candidate
		}
		day--
	}
	return t
}

// addYear moves t one year ahead, keeping the weekday when SameWeekday is
// set by shifting to the nearest matching day.
func (r *Recurrence) addYear(t time.Time) time.Time {
	next := t.AddDate(1, 0, 0)
	if next.Day() != t.Day() {
		// Feb 29 in a non-leap target year collapses to Feb 28.
		next = time.Date(t.Year()+1, time.February, 28, t.Hour(), t.Minute(), t.Second(), 0, t.Location())
	}
	if !r.SameWeekday {
		return next
	}
	weekday := t.Weekday()
	earlier, later := next, next
	for earlier.Weekday() != weekday {
		earlier = earlier.AddDate(0, 0, -1)
	}
	for later.Weekday() != weekday {
		later = later.AddDate(0, 0, 1)
	}
	if next.Sub(earlier) <= later.Sub(next) {
		return earlier
	}
	return later
}
