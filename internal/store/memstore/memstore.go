// Package memstore keeps clipboard items in process memory. One mutex
// guards both the id table and the share-key index, so every repository
// operation is a single critical section.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"pin-clipboard/internal/clipboard"
)

type Repository struct {
	mu    sync.Mutex
	items map[string]*clipboard.Item // by id
	keys  map[string]string          // share key -> id
}

var _ clipboard.Repository = (*Repository)(nil)

func New() *Repository {
	return &Repository{
		items: make(map[string]*clipboard.Item),
		keys:  make(map[string]string),
	}
}

func (r *Repository) Insert(ctx context.Context, item clipboard.Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := item.ShareKey()
	if _, held := r.keys[key]; held {
		return clipboard.ErrDuplicatePin
	}
	if _, exists := r.items[item.ID]; exists {
		return fmt.Errorf("item %s already exists", item.ID)
	}
	stored := item.Clone()
	r.items[item.ID] = &stored
	r.keys[key] = item.ID
	return nil
}

func (r *Repository) Replace(ctx context.Context, item clipboard.Item) (*clipboard.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := item.ShareKey()
	var prev *clipboard.Item
	if prevID, held := r.keys[key]; held {
		if p, ok := r.items[prevID]; ok {
			c := p.Clone()
			prev = &c
			delete(r.items, prevID)
		}
	}
	stored := item.Clone()
	r.items[item.ID] = &stored
	r.keys[key] = item.ID
	return prev, nil
}

func (r *Repository) GetByKey(ctx context.Context, key string) (clipboard.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.keys[key]
	if !ok {
		return clipboard.Item{}, clipboard.ErrNotFound
	}
	it, ok := r.items[id]
	if !ok {
		return clipboard.Item{}, clipboard.ErrNotFound
	}
	return it.Clone(), nil
}

func (r *Repository) GetByID(ctx context.Context, id string) (clipboard.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	it, ok := r.items[id]
	if !ok {
		return clipboard.Item{}, clipboard.ErrNotFound
	}
	return it.Clone(), nil
}

func (r *Repository) Delete(ctx context.Context, id string) (*clipboard.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	it, ok := r.items[id]
	if !ok {
		return nil, nil
	}
	delete(r.items, id)
	if key := it.ShareKey(); r.keys[key] == id {
		delete(r.keys, key)
	}
	removed := it.Clone()
	return &removed, nil
}

func (r *Repository) IncrementAccess(ctx context.Context, id string) (clipboard.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	it, ok := r.items[id]
	if !ok {
		return clipboard.Item{}, clipboard.ErrNotFound
	}
	it.AccessCount++
	return it.Clone(), nil
}

// List returns items oldest first.
func (r *Repository) List(ctx context.Context) ([]clipboard.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]clipboard.Item, 0, len(r.items))
	for _, it := range r.items {
		out = append(out, it.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
