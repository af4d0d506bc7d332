package scheduler

import (
	"testing"
	"time"
)

func TestNextDailyRun(t *testing.T) {
	now := time.Date(2026, 3, 10, 8, 30, 0, 0, time.UTC)

	t.Run("later today", func(t *testing.T) {
		next, err := NextDailyRun(now, "22:15")
		if err != nil {
			t.Fatalf("NextDailyRun() error: %v", err)
		}
		want := time.Date(2026, 3, 10, 22, 15, 0, 0, time.UTC)
		if !next.Equal(want) {
			t.Errorf("next = %v, want %v", next, want)
		}
	})

	t.Run("already passed rolls to tomorrow", func(t *testing.T) {
		next, err := NextDailyRun(now, "03:00")
		if err != nil {
			t.Fatalf("NextDailyRun() error: %v", err)
		}
		want := time.Date(2026, 3, 11, 3, 0, 0, 0, time.UTC)
		if !next.Equal(want) {
			t.Errorf("next = %v, want %v", next, want)
		}
	})

	t.Run("exact minute rolls to tomorrow", func(t *testing.T) {
		next, err := NextDailyRun(now, "08:30")
		if err != nil {
			t.Fatalf("NextDailyRun() error: %v", err)
		}
		want := time.Date(2026, 3, 11, 8, 30, 0, 0, time.UTC)
		if !next.Equal(want) {
			t.Errorf("next = %v, want %v", next, want)
		}
	})

	t.Run("invalid format", func(t *testing.T) {
		for _, in := range []string{"25:00", "8am", "", "12:60"} {
			if _, err := NextDailyRun(now, in); err == nil {
				t.Errorf("NextDailyRun(%q) expected error", in)
			}
		}
	})
}
