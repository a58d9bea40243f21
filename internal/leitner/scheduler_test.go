package leitner_test

import (
	"testing"
	"time"

	"github.com/studylab/leitner/internal/deck"
	"github.com/studylab/leitner/internal/leitner"
)

var now = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func TestIsDue_NeverReviewed(t *testing.T) {
	for _, table := range []leitner.IntervalTable{leitner.FlatIntervals(), leitner.ExponentialIntervals()} {
		sched := leitner.NewScheduler(table, time.UTC)
		card := deck.Card{Box: 2}
		if !sched.IsDue(card, now) {
			t.Errorf("IsDue() = false for never-reviewed card with table %v", table)
		}
	}
}

func TestIsDue_FlatTable(t *testing.T) {
	sched := leitner.NewScheduler(leitner.FlatIntervals(), time.UTC)

	tests := []struct {
		name     string
		box      int
		reviewed time.Time
		want     bool
	}{
		{"box1 reviewed now is due now", 1, now, true},
		{"box2 reviewed now not due", 2, now, false},
		{"box2 due after one day", 2, now.AddDate(0, 0, -1), true},
		{"box3 reviewed now not due", 3, now, false},
		{"box3 not due after two days", 3, now.AddDate(0, 0, -2), false},
		{"box3 due after three days", 3, now.AddDate(0, 0, -3), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			card := deck.Card{Box: tt.box, LastReviewed: tt.reviewed}
			if got := sched.IsDue(card, now); got != tt.want {
				t.Errorf("IsDue(box=%d, reviewed=%s) = %v, want %v", tt.box, tt.reviewed, got, tt.want)
			}
		})
	}
}

func TestIsDue_ExponentialTable(t *testing.T) {
	sched := leitner.NewScheduler(leitner.ExponentialIntervals(), time.UTC)

	tests := []struct {
		box      int
		daysAgo  int
		want     bool
	}{
		{1, 0, false},
		{1, 1, true},
		{3, 3, false},
		{3, 4, true},
		{5, 15, false},
		{5, 16, true},
	}
	for _, tt := range tests {
		card := deck.Card{Box: tt.box, LastReviewed: now.AddDate(0, 0, -tt.daysAgo)}
		if got := sched.IsDue(card, now); got != tt.want {
			t.Errorf("IsDue(box=%d, %d days ago) = %v, want %v", tt.box, tt.daysAgo, got, tt.want)
		}
	}
}

func TestIsDue_CalendarDayGranularity(t *testing.T) {
	sched := leitner.NewScheduler(leitner.FlatIntervals(), time.UTC)

	// Reviewed a minute before midnight; one minute later it is a new
	// calendar day and a box-2 card is due even though barely any time
	// passed.
	reviewed := time.Date(2024, 3, 9, 23, 59, 0, 0, time.UTC)
	card := deck.Card{Box: 2, LastReviewed: reviewed}
	at := time.Date(2024, 3, 10, 0, 1, 0, 0, time.UTC)
	if !sched.IsDue(card, at) {
		t.Error("IsDue() = false across a calendar-day boundary, want true")
	}
}

func TestIsDue_ConfiguredTimezone(t *testing.T) {
	loc := time.FixedZone("UTC+10", 10*3600)
	sched := leitner.NewScheduler(leitner.FlatIntervals(), loc)

	// 18:00 UTC on the 9th is already the 10th in UTC+10, so a box-2 card
	// reviewed at 10:00 UTC the same day is due there but not in UTC.
	reviewed := time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC)
	at := time.Date(2024, 3, 9, 18, 0, 0, 0, time.UTC)
	card := deck.Card{Box: 2, LastReviewed: reviewed}

	if !sched.IsDue(card, at) {
		t.Error("IsDue() = false in UTC+10, want true (day rolled over)")
	}
	utcSched := leitner.NewScheduler(leitner.FlatIntervals(), time.UTC)
	if utcSched.IsDue(card, at) {
		t.Error("IsDue() = true in UTC, want false (same calendar day)")
	}
}

func TestPromote(t *testing.T) {
	for _, table := range []leitner.IntervalTable{leitner.FlatIntervals(), leitner.ExponentialIntervals()} {
		sched := leitner.NewScheduler(table, time.UTC)
		for box := 1; box <= table.MaxBox(); box++ {
			card := deck.Card{Box: box}
			sched.Promote(&card, now)
			want := min(table.MaxBox(), box+1)
			if card.Box != want {
				t.Errorf("Promote(box=%d) -> box %d, want %d", box, card.Box, want)
			}
			if !card.LastReviewed.Equal(now) {
				t.Errorf("Promote() did not advance LastReviewed")
			}
		}
	}
}

func TestPromote_AtCeiling(t *testing.T) {
	sched := leitner.NewScheduler(leitner.FlatIntervals(), time.UTC)
	card := deck.Card{Box: 3, LastReviewed: now.AddDate(0, 0, -5)}
	sched.Promote(&card, now)
	if card.Box != 3 {
		t.Errorf("Promote(box=3) -> box %d, want 3", card.Box)
	}
	if !card.LastReviewed.Equal(now) {
		t.Error("Promote() at ceiling must still advance LastReviewed")
	}
}

func TestDemote_AlwaysBoxOne(t *testing.T) {
	sched := leitner.NewScheduler(leitner.ExponentialIntervals(), time.UTC)
	for box := 1; box <= 5; box++ {
		card := deck.Card{Box: box}
		sched.Demote(&card, now)
		if card.Box != 1 {
			t.Errorf("Demote(box=%d) -> box %d, want 1", box, card.Box)
		}
	}
}

func TestTouch_KeepsBox(t *testing.T) {
	sched := leitner.NewScheduler(leitner.FlatIntervals(), time.UTC)
	card := deck.Card{Box: 2, LastReviewed: now.AddDate(0, 0, -7)}
	sched.Touch(&card, now)
	if card.Box != 2 {
		t.Errorf("Touch() changed box to %d, want 2", card.Box)
	}
	if !card.LastReviewed.Equal(now) {
		t.Error("Touch() did not advance LastReviewed")
	}
}

func TestBoxInvariant_AfterAnySequence(t *testing.T) {
	sched := leitner.NewScheduler(leitner.FlatIntervals(), time.UTC)
	card := deck.Card{Box: 1}
	ops := []func(*deck.Card, time.Time){
		sched.Promote, sched.Promote, sched.Promote, sched.Promote,
		sched.Demote, sched.Touch, sched.Promote, sched.Demote,
	}
	for i, op := range ops {
		op(&card, now)
		if card.Box < 1 || card.Box > 3 {
			t.Fatalf("after op %d: box = %d, want 1..3", i, card.Box)
		}
	}
}

func TestIntervalTable_Days_Clamps(t *testing.T) {
	table := leitner.FlatIntervals()
	if got := table.Days(0); got != 0 {
		t.Errorf("Days(0) = %d, want 0", got)
	}
	if got := table.Days(99); got != 3 {
		t.Errorf("Days(99) = %d, want 3", got)
	}
}
