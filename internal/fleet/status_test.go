package fleet

import (
	"testing"
	"time"
)

func TestStatusAt(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		returnAt  time.Time
		want      Status
		wantHours float64
	}{
		{"already returned", now.Add(-2 * time.Hour), StatusReady, 0},
		{"exactly now", now, StatusReady, 0},
		{"ten minutes left", now.Add(10 * time.Minute), StatusCompletingSoon, 10.0 / 60.0},
		{"exactly half hour", now.Add(30 * time.Minute), StatusCompletingSoon, 0.5},
		{"just over half hour", now.Add(31 * time.Minute), StatusActive, 31.0 / 60.0},
		{"a full day", now.Add(24 * time.Hour), StatusActive, 24},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, hours := StatusAt(tt.returnAt.Unix(), now)
			if got != tt.want {
				t.Errorf("status = %s, want %s", got, tt.want)
			}
			if diff := hours - tt.wantHours; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("hours = %v, want %v", hours, tt.wantHours)
			}
		})
	}
}

func TestStatusAt_MonotoneOverTime(t *testing.T) {
	returnAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	order := map[Status]int{StatusActive: 0, StatusCompletingSoon: 1, StatusReady: 2}

	prev := -1
	for offset := -3 * time.Hour; offset <= 3*time.Hour; offset += 7 * time.Minute {
		status, _ := StatusAt(returnAt.Unix(), returnAt.Add(offset))
		if order[status] < prev {
			t.Fatalf("status moved backward to %s at offset %v", status, offset)
		}
		prev = order[status]
	}
}

func TestStatusAt_ClampsHoursAtZero(t *testing.T) {
	now := time.Now()
	_, hours := StatusAt(now.Add(-48*time.Hour).Unix(), now)
	if hours != 0 {
		t.Errorf("hours = %v, want 0 for a long-returned voyage", hours)
	}
}
