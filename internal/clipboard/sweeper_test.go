package clipboard_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"pin-clipboard/internal/clipboard"
)

func TestSweepRemovesOnlyExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := f.clock.Now()

	for i := 0; i < 3; i++ {
		it := secureItem(fmt.Sprintf("short-%d", i), fmt.Sprintf("10000%d", i), now, time.Minute)
		ref := fmt.Sprintf("items/%s/0-f.txt", it.ID)
		if _, err := f.blobs.Put(ctx, ref, []byte("x"), "text/plain"); err != nil {
			t.Fatal(err)
		}
		it.Files = []clipboard.Attachment{{OriginalName: "f.txt", StorageRef: ref, Size: 1, MimeType: "text/plain"}}
		if _, err := f.svc.Store.CreateSecure(ctx, it); err != nil {
			t.Fatal(err)
		}
	}
	for i := 0; i < 2; i++ {
		if _, err := f.svc.Store.CreateSecure(ctx, secureItem(fmt.Sprintf("long-%d", i), fmt.Sprintf("20000%d", i), now, time.Hour)); err != nil {
			t.Fatal(err)
		}
	}

	f.clock.Advance(2 * time.Minute)
	res, err := f.svc.Sweeper.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if res.Removed != 3 || res.Remaining != 2 {
		t.Fatalf("expected removed=3 remaining=2, got %+v", res)
	}
	if f.blobs.Len() != 0 {
		t.Errorf("sweep left %d blobs", f.blobs.Len())
	}
	for i := 0; i < 2; i++ {
		if _, err := f.svc.Store.GetByID(ctx, fmt.Sprintf("long-%d", i)); err != nil {
			t.Errorf("live item removed: %v", err)
		}
	}

	res, err = f.svc.Sweeper.Sweep(ctx)
	if err != nil || res.Removed != 0 || res.Remaining != 2 {
		t.Errorf("second sweep: %+v %v", res, err)
	}
}

func TestSweeperRunEvictsUntilCancelled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := f.svc.Store.CreateSecure(ctx, secureItem("a", "123123", f.clock.Now(), time.Minute)); err != nil {
		t.Fatal(err)
	}
	f.clock.Advance(time.Hour)

	s := clipboard.NewSweeper(f.svc.Store, 10*time.Millisecond)
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		_, err := f.svc.Store.GetByID(context.Background(), "a")
		if errors.Is(err, clipboard.ErrNotFound) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("sweeper did not evict expired item")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
}

func TestNewSweeperDefaultInterval(t *testing.T) {
	s := clipboard.NewSweeper(nil, 0)
	if s.Interval != clipboard.DefaultSweepInterval {
		t.Errorf("expected %s, got %s", clipboard.DefaultSweepInterval, s.Interval)
	}
}
