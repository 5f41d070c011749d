package clipboard_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"pin-clipboard/internal/blob"
	"pin-clipboard/internal/clipboard"
)

func TestBindStoresFilesInOrder(t *testing.T) {
	blobs := blob.NewMemory()
	b := clipboard.NewBinder(blobs)

	files := []clipboard.File{
		{Name: "notes.txt", Data: []byte("hello"), MimeType: "text/plain"},
		{Name: "notes.txt", Data: []byte("second copy")},
	}
	atts, err := b.Bind(context.Background(), "item-1", files)
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	if len(atts) != 2 {
		t.Fatalf("expected 2 attachments, got %d", len(atts))
	}
	if atts[0].StorageRef == atts[1].StorageRef {
		t.Fatalf("same-named files share ref %q", atts[0].StorageRef)
	}
	if atts[1].MimeType != "application/octet-stream" {
		t.Errorf("expected default mime type, got %q", atts[1].MimeType)
	}
	for i, a := range atts {
		if a.ItemID != "item-1" || a.OriginalName != files[i].Name || a.Size != int64(len(files[i].Data)) {
			t.Errorf("attachment %d wrong: %+v", i, a)
		}
		data, err := blobs.Get(context.Background(), a.StorageRef)
		if err != nil {
			t.Fatalf("blob %d: %v", i, err)
		}
		if !bytes.Equal(data, files[i].Data) {
			t.Errorf("blob %d holds %q", i, data)
		}
	}
}

func TestBindSanitisesPath(t *testing.T) {
	b := clipboard.NewBinder(blob.NewMemory())
	atts, err := b.Bind(context.Background(), "item-2", []clipboard.File{
		{Name: "../../etc/passwd", Data: []byte("x")},
	})
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	ref := atts[0].StorageRef
	if !strings.HasPrefix(ref, "items/item-2/") || strings.Count(ref, "/") != 2 {
		t.Errorf("ref escapes item namespace: %q", ref)
	}
	if atts[0].OriginalName != "../../etc/passwd" {
		t.Errorf("original name must be kept, got %q", atts[0].OriginalName)
	}
}

func TestBindNoFiles(t *testing.T) {
	atts, err := clipboard.NewBinder(blob.NewMemory()).Bind(context.Background(), "x", nil)
	if err != nil || atts != nil {
		t.Fatalf("expected (nil, nil), got (%v, %v)", atts, err)
	}
}

func TestBindRollsBackOnFailure(t *testing.T) {
	blobs := &flakyBlobs{Memory: blob.NewMemory(), okPuts: 2}
	b := clipboard.NewBinder(blobs)

	_, err := b.Bind(context.Background(), "item-3", []clipboard.File{
		{Name: "a.txt", Data: []byte("a")},
		{Name: "b.txt", Data: []byte("b")},
		{Name: "c.txt", Data: []byte("c")},
	})
	if !errors.Is(err, clipboard.ErrAttachmentFailed) {
		t.Fatalf("expected ErrAttachmentFailed, got %v", err)
	}
	if n := blobs.Len(); n != 0 {
		t.Errorf("expected partial blobs to be removed, %d left", n)
	}
}
