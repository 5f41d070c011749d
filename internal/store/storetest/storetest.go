// Package storetest holds the behaviour every clipboard.Repository must
// show. Backends call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"pin-clipboard/internal/blob"
	"pin-clipboard/internal/clipboard"
)

// Factory returns an empty repository for one subtest.
type Factory func(t *testing.T) clipboard.Repository

var base = time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC)

// NewItem builds a valid item with the given pin ("" for the latest slot)
// and n attachments.
func NewItem(pin string, n int) clipboard.Item {
	id := uuid.NewString()
	it := clipboard.Item{
		ID:        id,
		Kind:      clipboard.KindText,
		Content:   "content of " + id,
		Pin:       pin,
		CreatedAt: base,
		ExpiresAt: base.Add(5 * time.Minute),
		IsActive:  true,
	}
	if n > 0 {
		it.Kind = clipboard.KindMixed
	}
	for i := 0; i < n; i++ {
		it.Files = append(it.Files, clipboard.Attachment{
			ItemID:       id,
			OriginalName: fmt.Sprintf("file-%d.txt", i),
			StorageRef:   fmt.Sprintf("items/%s/%d-file-%d.txt", id, i, i),
			Size:         int64(10 + i),
			MimeType:     "text/plain",
		})
	}
	return it
}

// Run exercises the repository contract.
func Run(t *testing.T, newRepo Factory) {
	t.Run("InsertAndGet", func(t *testing.T) { testInsertAndGet(t, newRepo(t)) })
	t.Run("InsertDuplicateKey", func(t *testing.T) { testInsertDuplicateKey(t, newRepo(t)) })
	t.Run("ConcurrentInsertSameKey", func(t *testing.T) { testConcurrentInsertSameKey(t, newRepo(t)) })
	t.Run("ReplaceLatest", func(t *testing.T) { testReplaceLatest(t, newRepo(t)) })
	t.Run("DeleteIdempotent", func(t *testing.T) { testDeleteIdempotent(t, newRepo(t)) })
	t.Run("IncrementAccess", func(t *testing.T) { testIncrementAccess(t, newRepo(t)) })
	t.Run("ConcurrentIncrement", func(t *testing.T) { testConcurrentIncrement(t, newRepo(t)) })
	t.Run("List", func(t *testing.T) { testList(t, newRepo(t)) })
	t.Run("SweepRacesLazyEviction", func(t *testing.T) { testSweepRacesLazyEviction(t, newRepo(t)) })
}

func assertSame(t *testing.T, want, got clipboard.Item) {
	t.Helper()
	if got.ID != want.ID || got.Kind != want.Kind || got.Content != want.Content || got.Pin != want.Pin {
		t.Fatalf("item mismatch:\nwant %+v\ngot  %+v", want, got)
	}
	if !got.CreatedAt.Equal(want.CreatedAt) || !got.ExpiresAt.Equal(want.ExpiresAt) {
		t.Fatalf("timestamps mismatch: want %s/%s got %s/%s",
			want.CreatedAt, want.ExpiresAt, got.CreatedAt, got.ExpiresAt)
	}
	if got.AccessCount != want.AccessCount || got.IsActive != want.IsActive {
		t.Fatalf("bookkeeping mismatch: want count=%d active=%v got count=%d active=%v",
			want.AccessCount, want.IsActive, got.AccessCount, got.IsActive)
	}
	if len(got.Files) != len(want.Files) {
		t.Fatalf("expected %d files, got %d", len(want.Files), len(got.Files))
	}
	for i := range want.Files {
		if got.Files[i] != want.Files[i] {
			t.Fatalf("file %d mismatch:\nwant %+v\ngot  %+v", i, want.Files[i], got.Files[i])
		}
	}
}

func testInsertAndGet(t *testing.T, repo clipboard.Repository) {
	ctx := context.Background()
	it := NewItem("012345", 2)

	if err := repo.Insert(ctx, it); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := repo.GetByKey(ctx, "012345")
	if err != nil {
		t.Fatalf("get by key: %v", err)
	}
	assertSame(t, it, got)

	got, err = repo.GetByID(ctx, it.ID)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	assertSame(t, it, got)

	if _, err := repo.GetByKey(ctx, "999999"); !errors.Is(err, clipboard.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown key, got %v", err)
	}
	if _, err := repo.GetByID(ctx, uuid.NewString()); !errors.Is(err, clipboard.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown id, got %v", err)
	}
}

func testInsertDuplicateKey(t *testing.T, repo clipboard.Repository) {
	ctx := context.Background()
	first := NewItem("123456", 0)
	second := NewItem("123456", 1)

	if err := repo.Insert(ctx, first); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := repo.Insert(ctx, second); !errors.Is(err, clipboard.ErrDuplicatePin) {
		t.Fatalf("expected ErrDuplicatePin, got %v", err)
	}

	got, err := repo.GetByKey(ctx, "123456")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != first.ID {
		t.Errorf("duplicate insert replaced the holder: got %s want %s", got.ID, first.ID)
	}
	if _, err := repo.GetByID(ctx, second.ID); !errors.Is(err, clipboard.ErrNotFound) {
		t.Errorf("rejected item must not be stored, got %v", err)
	}
}

func testConcurrentInsertSameKey(t *testing.T, repo clipboard.Repository) {
	ctx := context.Background()
	const writers = 8

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.Insert(ctx, NewItem("555555", 0))
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			if !errors.Is(err, clipboard.ErrDuplicatePin) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded != 1 {
		t.Fatalf("expected exactly one writer to claim the pin, got %d", succeeded)
	}
}

func testReplaceLatest(t *testing.T, repo clipboard.Repository) {
	ctx := context.Background()
	first := NewItem("", 2)
	second := NewItem("", 1)

	prev, err := repo.Replace(ctx, first)
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if prev != nil {
		t.Fatalf("expected empty slot, displaced %+v", prev)
	}

	prev, err = repo.Replace(ctx, second)
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if prev == nil {
		t.Fatal("expected the first item to be displaced")
	}
	assertSame(t, first, *prev)

	got, err := repo.GetByKey(ctx, clipboard.LatestKey)
	if err != nil {
		t.Fatalf("get latest: %v", err)
	}
	assertSame(t, second, got)

	if _, err := repo.GetByID(ctx, first.ID); !errors.Is(err, clipboard.ErrNotFound) {
		t.Errorf("displaced item still readable: %v", err)
	}
}

func testDeleteIdempotent(t *testing.T, repo clipboard.Repository) {
	ctx := context.Background()
	it := NewItem("654321", 2)
	if err := repo.Insert(ctx, it); err != nil {
		t.Fatalf("insert: %v", err)
	}

	removed, err := repo.Delete(ctx, it.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if removed == nil {
		t.Fatal("expected removed item")
	}
	assertSame(t, it, *removed)

	removed, err = repo.Delete(ctx, it.ID)
	if err != nil {
		t.Fatalf("second delete should succeed, got %v", err)
	}
	if removed != nil {
		t.Errorf("second delete should report nothing removed, got %+v", removed)
	}

	if _, err := repo.GetByKey(ctx, "654321"); !errors.Is(err, clipboard.ErrNotFound) {
		t.Errorf("key still resolves after delete: %v", err)
	}
	if err := repo.Insert(ctx, NewItem("654321", 0)); err != nil {
		t.Errorf("pin should be reusable after delete: %v", err)
	}
}

func testIncrementAccess(t *testing.T, repo clipboard.Repository) {
	ctx := context.Background()
	it := NewItem("", 1)
	if _, err := repo.Replace(ctx, it); err != nil {
		t.Fatalf("replace: %v", err)
	}

	for want := int64(1); want <= 2; want++ {
		snap, err := repo.IncrementAccess(ctx, it.ID)
		if err != nil {
			t.Fatalf("increment: %v", err)
		}
		if snap.AccessCount != want {
			t.Fatalf("expected count %d, got %d", want, snap.AccessCount)
		}
		if len(snap.Files) != 1 || snap.Content != it.Content {
			t.Fatalf("snapshot incomplete: %+v", snap)
		}
	}

	if _, err := repo.IncrementAccess(ctx, uuid.NewString()); !errors.Is(err, clipboard.ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing item, got %v", err)
	}
}

func testConcurrentIncrement(t *testing.T, repo clipboard.Repository) {
	ctx := context.Background()
	it := NewItem("246810", 0)
	if err := repo.Insert(ctx, it); err != nil {
		t.Fatalf("insert: %v", err)
	}

	const readers = 25
	var wg sync.WaitGroup
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.IncrementAccess(ctx, it.ID); err != nil {
				t.Errorf("increment: %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := repo.GetByID(ctx, it.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.AccessCount != readers {
		t.Errorf("lost updates: expected %d, got %d", readers, got.AccessCount)
	}
}

func testList(t *testing.T, repo clipboard.Repository) {
	ctx := context.Background()
	want := map[string]bool{}
	for _, pin := range []string{"000001", "000002", ""} {
		it := NewItem(pin, 1)
		var err error
		if pin == "" {
			_, err = repo.Replace(ctx, it)
		} else {
			err = repo.Insert(ctx, it)
		}
		if err != nil {
			t.Fatalf("store %q: %v", pin, err)
		}
		want[it.ID] = true
	}

	items, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != len(want) {
		t.Fatalf("expected %d items, got %d", len(want), len(items))
	}
	for _, it := range items {
		if !want[it.ID] {
			t.Errorf("unexpected item %s", it.ID)
		}
		if len(it.Files) != 1 {
			t.Errorf("item %s listed without its attachment", it.ID)
		}
	}
}

// testSweepRacesLazyEviction runs the sweeper and PIN reads against the
// same expired items at once. Whichever path deletes an item first, the
// other must treat it as already gone.
func testSweepRacesLazyEviction(t *testing.T, repo clipboard.Repository) {
	ctx := context.Background()
	blobs := blob.NewMemory()
	svc := clipboard.NewService(repo, blobs, time.Minute)
	svc.Store.Now = func() time.Time { return base.Add(time.Hour) }

	const n = 8
	pins := make([]string, n)
	for i := range pins {
		pins[i] = fmt.Sprintf("7%05d", i)
		it := NewItem(pins[i], 2)
		for _, f := range it.Files {
			if _, err := blobs.Put(ctx, f.StorageRef, []byte("x"), f.MimeType); err != nil {
				t.Fatal(err)
			}
		}
		if err := repo.Insert(ctx, it); err != nil {
			t.Fatalf("insert %s: %v", pins[i], err)
		}
	}

	var (
		wg       sync.WaitGroup
		sweepRes clipboard.SweepResult
		sweepErr error
	)
	fetchErrs := make([]error, n)

	wg.Add(1)
	go func() {
		defer wg.Done()
		sweepRes, sweepErr = svc.Sweeper.Sweep(ctx)
	}()
	for i, pin := range pins {
		wg.Add(1)
		go func(i int, pin string) {
			defer wg.Done()
			_, fetchErrs[i] = svc.Accessor.FetchByPin(ctx, pin)
		}(i, pin)
	}
	wg.Wait()

	if sweepErr != nil {
		t.Fatalf("sweep: %v", sweepErr)
	}
	if sweepRes.Remaining != 0 {
		t.Errorf("sweep left %d items", sweepRes.Remaining)
	}
	for i, err := range fetchErrs {
		if !errors.Is(err, clipboard.ErrNotFound) {
			t.Errorf("fetch %s: expected ErrNotFound, got %v", pins[i], err)
		}
	}

	items, err := repo.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 0 {
		t.Errorf("%d expired items survived", len(items))
	}
	if blobs.Len() != 0 {
		t.Errorf("%d blobs survived", blobs.Len())
	}
}
