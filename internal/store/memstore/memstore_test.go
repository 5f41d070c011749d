package memstore

import (
	"testing"

	"pin-clipboard/internal/clipboard"
	"pin-clipboard/internal/store/storetest"
)

func TestRepository(t *testing.T) {
	storetest.Run(t, func(t *testing.T) clipboard.Repository {
		return New()
	})
}
