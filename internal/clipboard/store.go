package clipboard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pin-clipboard/internal/logging"
)

// Repository is the persistence contract behind Store. Implementations
// must serialize every mutation so that a share key resolves to at most
// one item and access-count increments are never lost.
type Repository interface {
	// Insert stores item under item.ShareKey(). It fails with
	// ErrDuplicatePin when any record already holds that key.
	Insert(ctx context.Context, item Item) error
	// Replace installs item under item.ShareKey(), removing the previous
	// holder and its attachment records in the same step. It returns the
	// displaced item, or nil when the key was free.
	Replace(ctx context.Context, item Item) (*Item, error)
	// GetByKey and GetByID return ErrNotFound for absent items. Expiry is
	// not checked here.
	GetByKey(ctx context.Context, key string) (Item, error)
	GetByID(ctx context.Context, id string) (Item, error)
	// Delete removes the item and its attachment records and returns what
	// was removed. Deleting an absent id returns (nil, nil).
	Delete(ctx context.Context, id string) (*Item, error)
	// IncrementAccess bumps the access count by one and returns the
	// post-increment snapshot, or ErrNotFound.
	IncrementAccess(ctx context.Context, id string) (Item, error)
	// List returns a snapshot of every stored item.
	List(ctx context.Context) ([]Item, error)
}

// BlobStore holds attachment bytes. Delete of a missing ref is not an
// error.
type BlobStore interface {
	Put(ctx context.Context, path string, data []byte, mimeType string) (string, error)
	Get(ctx context.Context, ref string) ([]byte, error)
	Delete(ctx context.Context, ref string) error
}

// Store is the single entry point for item mutation. It enforces the item
// invariants, owns the cascade from items to blobs and resolves the
// "latest" slot.
type Store struct {
	repo  Repository
	blobs BlobStore

	// Now is the store's clock. Tests replace it to move time forward.
	Now func() time.Time
}

// NewStore returns a Store over repo whose attachments live in blobs.
func NewStore(repo Repository, blobs BlobStore) *Store {
	return &Store{repo: repo, blobs: blobs, Now: time.Now}
}

func (s *Store) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func checkItem(item Item) error {
	if item.ID == "" {
		return invalid("id", "must not be empty")
	}
	if !item.Kind.Valid() {
		return invalid("kind", fmt.Sprintf("unknown kind %q", item.Kind))
	}
	if !item.ExpiresAt.After(item.CreatedAt) {
		return invalid("expires_at", "must be after created_at")
	}
	return nil
}

// fresh resets the mutable bookkeeping of a new or replacing item.
func fresh(item Item) Item {
	item = item.Clone()
	item.AccessCount = 0
	item.IsActive = true
	for i := range item.Files {
		item.Files[i].ItemID = item.ID
	}
	return item
}

// CreateSecure stores a PIN-addressed item. The PIN must already be
// allocated; if a live item holds it the call fails with ErrDuplicatePin.
// An expired holder is evicted and the insert retried once.
func (s *Store) CreateSecure(ctx context.Context, item Item) (string, error) {
	if !ValidPin(item.Pin) {
		return "", invalid("pin", "must be exactly 6 digits")
	}
	if err := checkItem(item); err != nil {
		return "", err
	}
	item = fresh(item)

	for attempt := 0; ; attempt++ {
		err := s.repo.Insert(ctx, item)
		if err == nil {
			return item.ID, nil
		}
		if !errors.Is(err, ErrDuplicatePin) || attempt > 0 {
			return "", err
		}

		holder, gerr := s.repo.GetByKey(ctx, item.Pin)
		if errors.Is(gerr, ErrNotFound) {
			continue
		}
		if gerr != nil {
			return "", gerr
		}
		if !holder.Expired(s.now()) {
			return "", ErrDuplicatePin
		}
		if err := s.Delete(ctx, holder.ID); err != nil {
			return "", err
		}
	}
}

// UpsertLatest installs item as the quick-share item, replacing whatever
// held the slot. The previous item's attachment records disappear in the
// same backend step; its blobs are removed right after.
func (s *Store) UpsertLatest(ctx context.Context, item Item) (string, error) {
	if item.Pin != "" {
		return "", invalid("pin", "quick shares carry no pin")
	}
	if err := checkItem(item); err != nil {
		return "", err
	}

	prev, err := s.repo.Replace(ctx, fresh(item))
	if err != nil {
		return "", err
	}
	if prev != nil {
		logging.Debug("latest_replaced", map[string]interface{}{
			"previous_id": prev.ID,
			"id":          item.ID,
			"files":       len(prev.Files),
		})
		releaseBlobs(ctx, s.blobs, prev.Files)
	}
	return item.ID, nil
}

// Get returns the item addressed by pin, expired or not.
func (s *Store) Get(ctx context.Context, pin string) (Item, error) {
	return s.repo.GetByKey(ctx, pin)
}

// GetLatest returns the current quick-share item, expired or not.
func (s *Store) GetLatest(ctx context.Context) (Item, error) {
	return s.repo.GetByKey(ctx, LatestKey)
}

// GetByID returns the item with the given id, expired or not.
func (s *Store) GetByID(ctx context.Context, id string) (Item, error) {
	return s.repo.GetByID(ctx, id)
}

// Delete removes the item and cascades to its attachments and blobs.
// Deleting an item that is already gone succeeds.
func (s *Store) Delete(ctx context.Context, id string) error {
	removed, err := s.repo.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("delete item %s: %w", id, err)
	}
	if removed != nil {
		releaseBlobs(ctx, s.blobs, removed.Files)
	}
	return nil
}

// IncrementAccess atomically bumps the access count and returns the
// post-increment snapshot.
func (s *Store) IncrementAccess(ctx context.Context, id string) (Item, error) {
	return s.repo.IncrementAccess(ctx, id)
}

// List returns every stored item, live or expired.
func (s *Store) List(ctx context.Context) ([]Item, error) {
	return s.repo.List(ctx)
}

// PinInUse reports whether a live item currently holds pin.
func (s *Store) PinInUse(ctx context.Context, pin string) (bool, error) {
	it, err := s.repo.GetByKey(ctx, pin)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !it.Expired(s.now()), nil
}

// Blob returns the bytes of the index-th attachment of a live item.
func (s *Store) Blob(ctx context.Context, itemID string, index int) (Attachment, []byte, error) {
	it, err := s.repo.GetByID(ctx, itemID)
	if err != nil {
		return Attachment{}, nil, err
	}
	if it.Expired(s.now()) || index < 0 || index >= len(it.Files) {
		return Attachment{}, nil, ErrNotFound
	}
	att := it.Files[index]
	data, err := s.blobs.Get(ctx, att.StorageRef)
	if err != nil {
		return Attachment{}, nil, fmt.Errorf("read blob %s: %w", att.StorageRef, err)
	}
	return att, data, nil
}

// releaseBlobs deletes attachment bytes whose records are already gone.
// Failures are logged; the owning record no longer exists either way.
func releaseBlobs(ctx context.Context, blobs BlobStore, files []Attachment) {
	for _, f := range files {
		if err := blobs.Delete(ctx, f.StorageRef); err != nil {
			logging.Warn("blob_delete_failed", map[string]interface{}{
				"item_id": f.ItemID,
				"ref":     f.StorageRef,
				"error":   err.Error(),
			})
		}
	}
}
