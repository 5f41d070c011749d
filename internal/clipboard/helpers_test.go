package clipboard_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"pin-clipboard/internal/blob"
	"pin-clipboard/internal/clipboard"
	"pin-clipboard/internal/store/memstore"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// flakyBlobs fails every Put after the first okPuts.
type flakyBlobs struct {
	*blob.Memory
	mu     sync.Mutex
	okPuts int
}

func (f *flakyBlobs) Put(ctx context.Context, path string, data []byte, mimeType string) (string, error) {
	f.mu.Lock()
	if f.okPuts <= 0 {
		f.mu.Unlock()
		return "", errors.New("disk full")
	}
	f.okPuts--
	f.mu.Unlock()
	return f.Memory.Put(ctx, path, data, mimeType)
}

type fixture struct {
	svc   *clipboard.Service
	repo  *memstore.Repository
	blobs *blob.Memory
	clock *fakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := memstore.New()
	blobs := blob.NewMemory()
	clock := newClock()
	svc := clipboard.NewService(repo, blobs, time.Minute)
	svc.Store.Now = clock.Now
	return &fixture{svc: svc, repo: repo, blobs: blobs, clock: clock}
}

func intPtr(v int) *int { return &v }

func secureItem(id, pin string, created time.Time, ttl time.Duration) clipboard.Item {
	return clipboard.Item{
		ID:        id,
		Kind:      clipboard.KindText,
		Content:   "secret " + id,
		Pin:       pin,
		CreatedAt: created,
		ExpiresAt: created.Add(ttl),
	}
}
