package cron

import (
	"testing"
	"time"
)

func TestParse_ValidExpressions(t *testing.T) {
	tests := []struct {
		name string
		expr string
	}{
		{"daily descriptor", "@daily"},
		{"weekly descriptor", "@weekly"},
		{"every 6 hours", "@every 6h"},
		{"daily 3:15am", "15 3 * * *"},
		{"every hour", "0 * * * *"},
		{"sundays", "0 4 * * 0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sched, err := Parse(tt.expr, "UTC")
			if err != nil {
				t.Errorf("Parse(%q, UTC) returned error: %v", tt.expr, err)
			}
			if sched == nil {
				t.Errorf("Parse(%q, UTC) returned nil schedule", tt.expr)
			}
		})
	}
}

func TestParse_InvalidExpressions(t *testing.T) {
	tests := []struct {
		name string
		expr string
	}{
		{"four fields", "* * * *"},
		{"six fields", "* * * * * *"},
		{"invalid hour 25", "0 25 * * *"},
		{"unknown descriptor", "@fortnightly"},
		{"bad every", "@every soon"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.expr, "UTC")
			if err == nil {
				t.Errorf("Parse(%q, UTC) should return error for invalid expression", tt.expr)
			}
		})
	}
}

func TestParse_InvalidTimezone(t *testing.T) {
	if _, err := Parse("@daily", "Invalid/Zone"); err == nil {
		t.Error("Parse with invalid timezone should return error")
	}
}

func TestParse_NextCalculation(t *testing.T) {

	sched, err := Parse("15 3 * * *", "UTC")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	after := time.Date(2026, 1, 30, 1, 0, 0, 0, time.UTC)
	want := time.Date(2026, 1, 30, 3, 15, 0, 0, time.UTC)
	if next := sched.Next(after); !next.Equal(want) {
		t.Errorf("Next(%v) = %v, want %v", after, next, want)
	}

	after = time.Date(2026, 1, 30, 4, 0, 0, 0, time.UTC)
	want = time.Date(2026, 1, 31, 3, 15, 0, 0, time.UTC)
	if next := sched.Next(after); !next.Equal(want) {
		t.Errorf("Next(%v) = %v, want %v", after, next, want)
	}
}

func TestParse_DailyInTimezone(t *testing.T) {

	sched, err := Parse("@daily", "Asia/Kolkata")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	// Midnight IST is 18:30 UTC the previous day.
	after := time.Date(2026, 1, 30, 12, 0, 0, 0, time.UTC)
	want := time.Date(2026, 1, 30, 18, 30, 0, 0, time.UTC)
	if next := sched.Next(after); !next.Equal(want) {
		t.Errorf("Next(%v) = %v, want %v", after, next.UTC(), want)
	}
}
