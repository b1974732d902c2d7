package date

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 12, 0, 0, 0, time.Local)
}

func TestNextDateTimeDailyWeekly(t *testing.T) {
	daily := NewRecurrence(UnitDaily, 1)
	assert.Equal(t, date(2026, time.March, 2), daily.NextDateTime(date(2026, time.March, 1)))

	every3 := NewRecurrence(UnitDaily, 3)
	assert.Equal(t, date(2026, time.March, 4), every3.NextDateTime(date(2026, time.March, 1)))

	weekly := NewRecurrence(UnitWeekly, 2)
	assert.Equal(t, date(2026, time.March, 15), weekly.NextDateTime(date(2026, time.March, 1)))
}

func TestNextDateTimeMonthlyClampsDay(t *testing.T) {
	monthly := NewRecurrence(UnitMonthly, 1)

	// Jan 31 -> Feb 28 in a non-leap year.
	assert.Equal(t, date(2026, time.February, 28), monthly.NextDateTime(date(2026, time.January, 31)))
	// Mar 15 -> Apr 15, no clamping needed.
	assert.Equal(t, date(2026, time.April, 15), monthly.NextDateTime(date(2026, time.March, 15)))
	// Dec rolls over the year.
	assert.Equal(t, date(2027, time.January, 10), monthly.NextDateTime(date(2026, time.December, 10)))
}

func TestNextDateTimeMonthlySameWeekday(t *testing.T) {
	monthly := NewRecurrence(UnitMonthly, 1)
	monthly.SameWeekday = true

	// 2026-03-10 is the second Tuesday of March; the next occurrence is
	// the second Tuesday of April, the 14th.
	start := date(2026, time.March, 10)
	assert.Equal(t, time.Tuesday, start.Weekday())
	next := monthly.NextDateTime(start)
	assert.Equal(t, date(2026, time.April, 14), next)
	assert.Equal(t, time.Tuesday, next.Weekday())
}

func TestNextDateTimeYearly(t *testing.T) {
	yearly := NewRecurrence(UnitYearly, 1)
	assert.Equal(t, date(2027, time.June, 5), yearly.NextDateTime(date(2026, time.June, 5)))

	// Feb 29 collapses to Feb 28 in a non-leap target year.
	assert.Equal(t, date(2025, time.February, 28), yearly.NextDateTime(date(2024, time.February, 29)))
}

func TestNextDateTimeZeroAndNoneAreUnchanged(t *testing.T) {
	r := NewRecurrence(UnitDaily, 1)
	assert.True(t, r.NextDateTime(time.Time{}).IsZero())

	none := NewRecurrence(UnitNone, 1)
	start := date(2026, time.March, 1)
	assert.Equal(t, start, none.NextDateTime(start))
}

func TestNextConsumesOccurrences(t *testing.T) {
	r := NewRecurrence(UnitDaily, 1)
	r.Max = 2
	start := date(2026, time.March, 1)

	first := r.Next(start)
	assert.Equal(t, date(2026, time.March, 2), first)
	assert.Equal(t, 1, r.Count)
	assert.Equal(t, UnitDaily, r.Unit)

	second := r.Next(first)
	assert.Equal(t, date(2026, time.March, 3), second)
	assert.Equal(t, UnitNone, r.Unit, "cap reached, recurrence spent")
}

func TestFinished(t *testing.T) {
	now := date(2026, time.March, 1)

	capped := NewRecurrence(UnitDaily, 1)
	capped.Max = 3
	capped.Count = 3
	assert.True(t, capped.Finished(now))

	stopped := NewRecurrence(UnitDaily, 1)
	stopped.StopDateTime = date(2026, time.February, 1)
	assert.True(t, stopped.Finished(now))

	open := NewRecurrence(UnitDaily, 1)
	assert.False(t, open.Finished(now))
}

func TestCopyIsIndependent(t *testing.T) {
	var nilRec *Recurrence
	assert.Nil(t, nilRec.Copy())

	r := NewRecurrence(UnitWeekly, 2)
	c := r.Copy()
	c.Amount = 5
	assert.Equal(t, 2, r.Amount)
}
