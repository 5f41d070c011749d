package clipboard

import (
	"context"
	"fmt"
	"strings"
)

// File is an attachment as submitted by an uploader.
type File struct {
	Name     string
	Data     []byte
	MimeType string
}

// Binder turns uploaded files into attachments backed by blobs.
type Binder struct {
	blobs BlobStore
}

// NewBinder returns a Binder writing to blobs.
func NewBinder(blobs BlobStore) *Binder {
	return &Binder{blobs: blobs}
}

// attachmentPath namespaces blobs by item id; the index keeps two files
// with the same name apart.
func attachmentPath(itemID string, index int, name string) string {
	name = strings.NewReplacer("/", "_", "\\", "_", "\x00", "").Replace(name)
	name = strings.Trim(name, " .")
	if name == "" {
		name = "file"
	}
	return fmt.Sprintf("items/%s/%d-%s", itemID, index, name)
}

// Bind stores every file and returns their attachments in input order.
// If any write fails, the blobs written so far are removed and the error
// wraps ErrAttachmentFailed.
func (b *Binder) Bind(ctx context.Context, itemID string, files []File) ([]Attachment, error) {
	if len(files) == 0 {
		return nil, nil
	}

	out := make([]Attachment, 0, len(files))
	for i, f := range files {
		mimeType := f.MimeType
		if mimeType == "" {
			mimeType = "application/octet-stream"
		}

		ref, err := b.blobs.Put(ctx, attachmentPath(itemID, i, f.Name), f.Data, mimeType)
		if err != nil {
			releaseBlobs(ctx, b.blobs, out)
			return nil, fmt.Errorf("%w: %s: %v", ErrAttachmentFailed, f.Name, err)
		}

		out = append(out, Attachment{
			ItemID:       itemID,
			OriginalName: f.Name,
			StorageRef:   ref,
			Size:         int64(len(f.Data)),
			MimeType:     mimeType,
		})
	}
	return out, nil
}

// Release deletes the blobs behind attachments that were never committed.
func (b *Binder) Release(ctx context.Context, atts []Attachment) {
	releaseBlobs(ctx, b.blobs, atts)
}
