package escrow

import "math"

// FeeRate is the escrow commission applied to the agreed price.
const FeeRate = 0.025

// ComputeTerms derives the escrow fee and total amount from a price. The fee
// is price × 2.5% rounded half-up to two decimals; the total is price + fee.
// Pure and idempotent: it is invoked once at creation (and again only if the
// price changes before payment) — a committed total is never recomputed.
func ComputeTerms(price float64) (escrowFee, totalAmount float64) {
	escrowFee = roundHalfUp2(price * FeeRate)
	totalAmount = price + escrowFee
	return escrowFee, totalAmount
}

// roundHalfUp2 rounds to two decimals with ties going up. For the
// non-negative amounts handled here math.Round's half-away-from-zero
// behaviour is exactly half-up.
func roundHalfUp2(x float64) float64 {
	return math.Round(x*100) / 100
}
