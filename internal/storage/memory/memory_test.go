package memory

import (
	"testing"

	"agent-arena/internal/storage"
	"agent-arena/internal/storage/storagetest"
)

func TestStoreContract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		return New()
	})
}
