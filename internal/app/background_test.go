package app

import (
	"testing"
	"time"
)

func TestNextDailyRun(t *testing.T) {
	loc := time.UTC
	tests := []struct {
		name string
		now  time.Time
		at   string
		want time.Time
	}{
		{"later today", time.Date(2024, 3, 1, 0, 1, 0, 0, loc), "00:05", time.Date(2024, 3, 1, 0, 5, 0, 0, loc)},
		{"already passed", time.Date(2024, 3, 1, 9, 0, 0, 0, loc), "00:05", time.Date(2024, 3, 2, 0, 5, 0, 0, loc)},
		{"exactly now", time.Date(2024, 3, 1, 6, 30, 0, 0, loc), "06:30", time.Date(2024, 3, 2, 6, 30, 0, 0, loc)},
		{"month end", time.Date(2024, 2, 29, 23, 0, 0, 0, loc), "01:00", time.Date(2024, 3, 1, 1, 0, 0, 0, loc)},
		{"invalid falls back", time.Date(2024, 3, 1, 0, 0, 0, 0, loc), "later", time.Date(2024, 3, 1, 0, 5, 0, 0, loc)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := nextDailyRun(tt.now, tt.at); !got.Equal(tt.want) {
				t.Fatalf("nextDailyRun() = %v, want %v", got, tt.want)
			}
		})
	}
}
