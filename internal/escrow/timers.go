package escrow

import (
	"math"
	"time"
)

// InspectionDaysRemaining returns how many whole days of the inspection
// window remain at now, rounding partial days up. It is only meaningful in
// inspection_period and returns 0 in any other status. No background timers
// exist in the core; window enforcement is pull-based.
func (t *Transaction) InspectionDaysRemaining(now time.Time) int {
	if t.Status != StatusInspectionPeriod || t.InspectionEndDate == nil {
		return 0
	}
	remaining := t.InspectionEndDate.Sub(now)
	if remaining <= 0 {
		return 0
	}
	days := int(math.Ceil(remaining.Hours() / 24))
	return days
}

// IsExpired reports whether now is past the transaction's hard deadline.
func (t *Transaction) IsExpired(now time.Time) bool {
	return now.After(t.ExpiryDate)
}

// InspectionElapsed reports whether the inspection window has closed without
// buyer action. The buyer can still be pending either in inspection_period or
// in seller_approved (seller consented first).
func (t *Transaction) InspectionElapsed(now time.Time) bool {
	switch t.Status {
	case StatusInspectionPeriod, StatusSellerApproved:
	default:
		return false
	}
	return t.InspectionEndDate != nil && now.After(*t.InspectionEndDate)
}
