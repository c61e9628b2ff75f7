package cronutil

import (
	"testing"
	"time"
)

func TestNextOccurrenceOnce(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	future := now.Add(time.Hour).Format(time.RFC3339)
	next, err := NextOccurrence(Once, future, now, "UTC")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next == nil {
		t.Fatal("expected a next occurrence for a future once-schedule")
	}

	past := now.Add(-time.Hour).Format(time.RFC3339)
	next, err = NextOccurrence(Once, past, now, "UTC")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next != nil {
		t.Fatalf("expected nil for an exhausted once-schedule, got %v", next)
	}
}

func TestNextOccurrenceOnceBadValue(t *testing.T) {
	_, err := NextOccurrence(Once, "not-a-timestamp", time.Now(), "UTC")
	if err == nil {
		t.Fatal("expected an error for an unparseable once schedule_value")
	}
}

func TestNextOccurrenceInterval(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	next, err := NextOccurrence(Interval, "15m", now, "UTC")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := now.Add(15 * time.Minute)
	if !next.Equal(want) {
		t.Fatalf("expected %v, got %v", want, *next)
	}
}

func TestNextOccurrenceIntervalBadValue(t *testing.T) {
	_, err := NextOccurrence(Interval, "not-a-duration", time.Now(), "UTC")
	if err == nil {
		t.Fatal("expected an error for an unparseable interval schedule_value")
	}
}

func TestNextOccurrenceCron(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	next, err := NextOccurrence(Cron, "0 13 * * *", now, "UTC")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next == nil {
		t.Fatal("expected a next occurrence for a daily cron schedule")
	}
	if next.Hour() != 13 {
		t.Fatalf("expected next run at hour 13, got %d", next.Hour())
	}
}

func TestNextOccurrenceCronBadTimezoneFallsBackToUTC(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	next, err := NextOccurrence(Cron, "0 13 * * *", now, "Not/A_Zone")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next == nil {
		t.Fatal("expected a next occurrence despite the bad timezone")
	}
}

func TestNextOccurrenceUnknownKind(t *testing.T) {
	_, err := NextOccurrence(Kind("bogus"), "", time.Now(), "UTC")
	if err == nil {
		t.Fatal("expected an error for an unknown schedule kind")
	}
}
