package clipboard

import (
	"context"
	"errors"
)

// latestAttempts bounds re-reads of the latest slot when a replacement
// races a read.
const latestAttempts = 3

// Accessor is the read path: expiry check, lazy eviction and access
// counting.
type Accessor struct {
	store *Store
}

// NewAccessor returns an Accessor reading through store.
func NewAccessor(store *Store) *Accessor {
	return &Accessor{store: store}
}

// FetchByPin returns the live item holding pin with its access count
// already incremented. Expired items are evicted and reported as
// ErrNotFound.
func (a *Accessor) FetchByPin(ctx context.Context, pin string) (Item, error) {
	if !ValidPin(pin) {
		return Item{}, invalid("pin", "must be exactly 6 digits")
	}
	it, err := a.store.Get(ctx, pin)
	if err != nil {
		return Item{}, err
	}
	return a.access(ctx, it)
}

// FetchLatest returns the live quick-share item with its access count
// already incremented.
func (a *Accessor) FetchLatest(ctx context.Context) (Item, error) {
	for i := 0; i < latestAttempts; i++ {
		it, err := a.store.GetLatest(ctx)
		if err != nil {
			return Item{}, err
		}
		snap, err := a.access(ctx, it)
		if errors.Is(err, ErrNotFound) && !it.Expired(a.store.now()) {
			// replaced between lookup and increment
			continue
		}
		return snap, err
	}
	return Item{}, ErrNotFound
}

func (a *Accessor) access(ctx context.Context, it Item) (Item, error) {
	if it.Expired(a.store.now()) {
		if err := a.store.Delete(ctx, it.ID); err != nil {
			return Item{}, err
		}
		return Item{}, ErrNotFound
	}
	return a.store.IncrementAccess(ctx, it.ID)
}
