package clipboard

import (
	"context"
	"time"

	"pin-clipboard/internal/logging"
)

// DefaultSweepInterval is how often the background sweep runs.
const DefaultSweepInterval = 5 * time.Minute

// SweepResult reports one pass of the sweeper.
type SweepResult struct {
	Removed   int `json:"removed"`
	Remaining int `json:"remaining"`
}

// Sweeper evicts expired items independently of request traffic.
type Sweeper struct {
	store    *Store
	Interval time.Duration
}

// NewSweeper returns a Sweeper over store. A non-positive interval means
// DefaultSweepInterval.
func NewSweeper(store *Store, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{store: store, Interval: interval}
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	logging.Info("sweeper_starting", map[string]interface{}{
		"interval": s.Interval.String(),
	})

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			logging.Info("sweeper_shutting_down", nil)
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Sweeper) runOnce(ctx context.Context) {
	start := time.Now()
	res, err := s.Sweep(ctx)
	if err != nil {
		logging.Error("sweep_failed", nil, err)
		return
	}
	logging.Info("sweep_complete", map[string]interface{}{
		"removed":     res.Removed,
		"remaining":   res.Remaining,
		"duration_ms": time.Since(start).Milliseconds(),
	})
}

// Sweep deletes every item whose expiry has passed. Items that another
// path evicted first count as removed.
func (s *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	items, err := s.store.List(ctx)
	if err != nil {
		return SweepResult{}, err
	}

	now := s.store.now()
	var res SweepResult
	for _, it := range items {
		if !it.Expired(now) {
			res.Remaining++
			continue
		}
		if err := s.store.Delete(ctx, it.ID); err != nil {
			logging.Error("sweep_delete_failed", map[string]interface{}{"id": it.ID}, err)
			res.Remaining++
			continue
		}
		res.Removed++
	}
	return res, nil
}
