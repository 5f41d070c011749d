// Package blob stores attachment bytes. Refs are path-addressed: every
// attachment gets its own object key, so no two attachments alias.
package blob

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get for refs that hold no object.
var ErrNotFound = errors.New("blob not found")

// Store is the blob collaborator used by the clipboard core.
type Store interface {
	Put(ctx context.Context, path string, data []byte, mimeType string) (string, error)
	Get(ctx context.Context, ref string) ([]byte, error)
	Delete(ctx context.Context, ref string) error
}
