package source

import (
	"context"
	"time"
)

// Pacer releases one chunk per interval so file input arrives at the rate a
// sound card would deliver it. A nil Pacer never waits.
type Pacer struct {
	ticker *time.Ticker
}

func NewPacer(interval time.Duration) *Pacer {
	if interval <= 0 {
		return nil
	}
	return &Pacer{ticker: time.NewTicker(interval)}
}

func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ticker.C:
		return nil
	}
}

func (p *Pacer) Stop() {
	if p != nil {
		p.ticker.Stop()
	}
}
