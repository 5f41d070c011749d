// Package clipboard implements the ephemeral keyed content store behind
// quick shares and PIN shares: PIN allocation, attachment binding, the
// item store with its singleton "latest" slot, lazy eviction on read and
// the periodic expiration sweep.
package clipboard

import "time"

// Kind describes what an item carries.
type Kind string

const (
	KindText  Kind = "text"
	KindFile  Kind = "file"
	KindMixed Kind = "mixed"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindText, KindFile, KindMixed:
		return true
	}
	return false
}

// LatestKey is the reserved share key of the quick-share slot. PINs are
// six digits, so it can never collide with a secure item's key.
const LatestKey = "latest"

const (
	// QuickShareTTL is the fixed lifetime of a quick share.
	QuickShareTTL = 24 * time.Hour
	// DefaultSecureMinutes applies when a secure upload names no expiration.
	DefaultSecureMinutes = 5
)

// Attachment is a file owned by exactly one item. The bytes live in the
// blob store under StorageRef.
type Attachment struct {
	ItemID       string `json:"item_id"`
	OriginalName string `json:"original_name"`
	StorageRef   string `json:"storage_ref"`
	Size         int64  `json:"size"`
	MimeType     string `json:"mime_type"`
}

// Item is a stored clipboard entry. Values handed out by the store are
// snapshots; mutating them has no effect on stored state.
type Item struct {
	ID          string       `json:"id"`
	Kind        Kind         `json:"kind"`
	Content     string       `json:"content,omitempty"`
	Pin         string       `json:"pin,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	ExpiresAt   time.Time    `json:"expires_at"`
	AccessCount int64        `json:"access_count"`
	IsActive    bool         `json:"is_active"`
	Files       []Attachment `json:"files,omitempty"`
}

// ShareKey returns the key the item is addressed by: its PIN for secure
// shares, LatestKey otherwise.
func (it *Item) ShareKey() string {
	if it.Pin != "" {
		return it.Pin
	}
	return LatestKey
}

// Expired reports whether the item is past its expiry at now.
func (it *Item) Expired(now time.Time) bool {
	return !now.Before(it.ExpiresAt)
}

// Clone returns a deep copy so callers never share the Files slice.
func (it Item) Clone() Item {
	if it.Files != nil {
		files := make([]Attachment, len(it.Files))
		copy(files, it.Files)
		it.Files = files
	}
	return it
}
