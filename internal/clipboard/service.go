package clipboard

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxExpirationMinutes is the longest secure-share lifetime whose
// time.Duration still fits in an int64.
const MaxExpirationMinutes = math.MaxInt64 / int64(time.Minute)

// maxCreateAttempts bounds allocate+create cycles lost to a PIN race.
const maxCreateAttempts = 3

// UploadRequest is one share as submitted by a client.
type UploadRequest struct {
	Kind       Kind
	Content    string
	Files      []File
	SecureMode bool
	// ExpirationMinutes applies to secure shares only; nil means
	// DefaultSecureMinutes.
	ExpirationMinutes *int
}

// UploadResult identifies a committed share.
type UploadResult struct {
	ID        string
	Pin       string
	ExpiresAt time.Time
}

// Service wires the core components together.
type Service struct {
	Store     *Store
	Allocator *Allocator
	Binder    *Binder
	Accessor  *Accessor
	Sweeper   *Sweeper
}

// NewService builds the full component graph over repo and blobs.
func NewService(repo Repository, blobs BlobStore, sweepInterval time.Duration) *Service {
	store := NewStore(repo, blobs)
	return &Service{
		Store:     store,
		Allocator: NewAllocator(store),
		Binder:    NewBinder(blobs),
		Accessor:  NewAccessor(store),
		Sweeper:   NewSweeper(store, sweepInterval),
	}
}

// Validate checks an upload before anything is stored.
func (r UploadRequest) Validate() error {
	if !r.Kind.Valid() {
		return invalid("type", "must be one of text, file, mixed")
	}
	hasText := strings.TrimSpace(r.Content) != ""
	switch r.Kind {
	case KindText:
		if !hasText {
			return invalid("content", "text content required")
		}
	case KindFile:
		if len(r.Files) == 0 {
			return invalid("files", "files required")
		}
	case KindMixed:
		if !hasText && len(r.Files) == 0 {
			return invalid("content", "content or files required")
		}
	}
	if r.SecureMode && r.ExpirationMinutes != nil {
		if *r.ExpirationMinutes <= 0 {
			return invalid("expiration", "must be a positive number of minutes")
		}
		if int64(*r.ExpirationMinutes) > MaxExpirationMinutes {
			return invalid("expiration", "too far in the future")
		}
	}
	return nil
}

// Upload binds the files, then commits the item to the latest slot or
// under a freshly allocated PIN. On any failure after binding the blobs are
// released and nothing is committed.
func (s *Service) Upload(ctx context.Context, req UploadRequest) (UploadResult, error) {
	if err := req.Validate(); err != nil {
		return UploadResult{}, err
	}

	id := uuid.NewString()
	atts, err := s.Binder.Bind(ctx, id, req.Files)
	if err != nil {
		return UploadResult{}, err
	}

	now := s.Store.now().UTC().Truncate(time.Millisecond)
	item := Item{
		ID:        id,
		Kind:      req.Kind,
		Content:   req.Content,
		CreatedAt: now,
		IsActive:  true,
		Files:     atts,
	}

	if !req.SecureMode {
		item.ExpiresAt = now.Add(QuickShareTTL)
		if _, err := s.Store.UpsertLatest(ctx, item); err != nil {
			s.Binder.Release(ctx, atts)
			return UploadResult{}, err
		}
		return UploadResult{ID: id, ExpiresAt: item.ExpiresAt}, nil
	}

	minutes := DefaultSecureMinutes
	if req.ExpirationMinutes != nil {
		minutes = *req.ExpirationMinutes
	}
	item.ExpiresAt = now.Add(time.Duration(minutes) * time.Minute)

	for attempt := 1; ; attempt++ {
		pin, err := s.Allocator.Allocate(ctx)
		if err != nil {
			s.Binder.Release(ctx, atts)
			return UploadResult{}, err
		}
		item.Pin = pin

		_, err = s.Store.CreateSecure(ctx, item)
		if err == nil {
			return UploadResult{ID: id, Pin: pin, ExpiresAt: item.ExpiresAt}, nil
		}
		if !errors.Is(err, ErrDuplicatePin) || attempt >= maxCreateAttempts {
			s.Binder.Release(ctx, atts)
			return UploadResult{}, err
		}
	}
}
