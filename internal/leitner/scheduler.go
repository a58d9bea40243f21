// Package leitner implements Leitner-box scheduling: due-ness tests and
// box transitions over a configurable interval table. The package is pure;
// time comes from an injected Clock and persistence belongs to callers.
package leitner

import (
	"time"

	"github.com/studylab/leitner/internal/deck"
)

// IntervalTable maps a box (1-based) to the number of calendar days between
// reviews. The table length defines the highest box.
type IntervalTable []int

// FlatIntervals is the default three-box table: box 1 is reviewed
// immediately, box 2 after one day, box 3 after three days.
func FlatIntervals() IntervalTable {
	return IntervalTable{0, 1, 3}
}

// ExponentialIntervals is the five-box 2^(box-1) day table.
func ExponentialIntervals() IntervalTable {
	return IntervalTable{1, 2, 4, 8, 16}
}

// Days returns the review interval for a box. Out-of-range boxes clamp to
// the nearest table entry, so a corrupt box value still schedules sanely.
func (t IntervalTable) Days(box int) int {
	if len(t) == 0 {
		return 0
	}
	if box < 1 {
		return t[0]
	}
	if box > len(t) {
		return t[len(t)-1]
	}
	return t[box-1]
}

// MaxBox is the highest box the table defines.
func (t IntervalTable) MaxBox() int {
	return len(t)
}

// Scheduler applies an interval table at calendar-day granularity in a
// configured location.
type Scheduler struct {
	table IntervalTable
	loc   *time.Location
}

// NewScheduler creates a scheduler. A nil table defaults to FlatIntervals
// and a nil location to UTC.
func NewScheduler(table IntervalTable, loc *time.Location) *Scheduler {
	if table == nil {
		table = FlatIntervals()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{table: table, loc: loc}
}

// MaxBox is the highest box this scheduler promotes into.
func (s *Scheduler) MaxBox() int {
	return s.table.MaxBox()
}

// IsDue reports whether a card should be reviewed. A card that has never
// been reviewed is always due; otherwise the elapsed calendar days since the
// last review must meet the box interval.
func (s *Scheduler) IsDue(card deck.Card, now time.Time) bool {
	if card.LastReviewed.IsZero() {
		return true
	}
	elapsed := daysBetween(card.LastReviewed, now, s.loc)
	return elapsed >= s.table.Days(card.Box)
}

// Promote moves a card up one box, capped at the table's highest box. The
// review timestamp advances even at the cap.
func (s *Scheduler) Promote(card *deck.Card, now time.Time) {
	card.Box = min(s.table.MaxBox(), card.Box+1)
	card.LastReviewed = now
}

// Demote resets a card to box 1 regardless of its current box.
func (s *Scheduler) Demote(card *deck.Card, now time.Time) {
	card.Box = 1
	card.LastReviewed = now
}

// Touch advances the review timestamp without changing the box. Used for a
// "medium" response that neither promotes nor demotes.
func (s *Scheduler) Touch(card *deck.Card, now time.Time) {
	card.LastReviewed = now
}

// daysBetween counts whole calendar days from a to b in loc. Both instants
// are reduced to their civil date first, so DST shifts cannot skew the count.
func daysBetween(a, b time.Time, loc *time.Location) int {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	au := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	bu := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(bu.Sub(au) / (24 * time.Hour))
}
