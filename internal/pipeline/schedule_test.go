package pipeline

import (
	"testing"
	"time"
)

func TestScheduleNext(t *testing.T) {
	et, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatal(err)
	}
	base := time.Date(2025, 3, 10, 14, 7, 30, 0, et)

	tests := []struct {
		expr string
		want time.Time
	}{
		{"5 * * * *", time.Date(2025, 3, 10, 15, 5, 0, 0, et)},
		{"*/15 * * * *", time.Date(2025, 3, 10, 14, 15, 0, 0, et)},
		{"0 9-17 * * 1-5", time.Date(2025, 3, 10, 15, 0, 0, 0, et)},
		{"30 2 * * 0", time.Date(2025, 3, 16, 2, 30, 0, 0, et)},
		{"8,9 14 * * *", time.Date(2025, 3, 10, 14, 8, 0, 0, et)},
	}
	for _, tt := range tests {
		s, err := ParseSchedule(tt.expr, et)
		if err != nil {
			t.Fatalf("ParseSchedule(%q): %v", tt.expr, err)
		}
		if got := s.Next(base); !got.Equal(tt.want) {
			t.Errorf("%q.Next = %v, want %v", tt.expr, got, tt.want)
		}
	}
}

func TestParseScheduleRejects(t *testing.T) {
	for _, expr := range []string{"", "* * * *", "60 * * * *", "*/0 * * * *", "5-1 * * * *", "a * * * *"} {
		if _, err := ParseSchedule(expr, nil); err == nil {
			t.Errorf("ParseSchedule(%q) succeeded", expr)
		}
	}
}
