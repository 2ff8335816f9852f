package escrow

import (
	"testing"
	"time"
)

func TestInspectionDaysRemaining(t *testing.T) {
	tx := driveTo(t, StatusInspectionPeriod)
	end := *tx.InspectionEndDate

	cases := []struct {
		name string
		now  time.Time
		want int
	}{
		{"window just opened", end.AddDate(0, 0, -tx.Terms.InspectionDays), tx.Terms.InspectionDays},
		{"partial day rounds up", end.Add(-25 * time.Hour), 2},
		{"under a day left", end.Add(-2 * time.Hour), 1},
		{"at the boundary", end, 0},
		{"after the window", end.Add(time.Hour), 0},
	}
	for _, tc := range cases {
		if got := tx.InspectionDaysRemaining(tc.now); got != tc.want {
			t.Errorf("%s: got %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestInspectionDaysRemainingOutsideWindowStatus(t *testing.T) {
	tx := driveTo(t, StatusItemShipped)
	if got := tx.InspectionDaysRemaining(testNow); got != 0 {
		t.Fatalf("days remaining in %s = %d, want 0", tx.Status, got)
	}
}

func TestIsExpired(t *testing.T) {
	tx := newTestTransaction(t)
	if tx.IsExpired(testNow) {
		t.Fatal("fresh transaction reported expired")
	}
	if tx.IsExpired(tx.ExpiryDate) {
		t.Fatal("expiry boundary itself is not past the deadline")
	}
	if !tx.IsExpired(tx.ExpiryDate.Add(time.Second)) {
		t.Fatal("past the deadline should report expired")
	}
}
