package services

import (
	"context"
	"log"
	"time"
)

// Sweeper periodically applies the timer policies (expiry and inspection
// timeout) in the background while the server runs.
type Sweeper struct {
	escrow   *EscrowService
	interval time.Duration
	batch    int
}

func NewSweeper(escrow *EscrowService, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &Sweeper{
		escrow:   escrow,
		interval: interval,
		batch:    200,
	}
}

// Run sweeps on a fixed interval until the context is cancelled. An
// immediate first sweep catches transactions that went stale while the
// server was down.
func (sw *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	sw.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			sw.sweep(ctx)
		}
	}
}

func (sw *Sweeper) sweep(ctx context.Context) {
	swept, err := sw.escrow.SweepDue(ctx, sw.batch)
	if err != nil {
		log.Printf("sweeper: %v", err)
		return
	}
	if swept > 0 {
		log.Printf("sweeper: settled %d stale transaction(s)", swept)
	}
}
