package postgres

import (
	"context"
	"os"
	"testing"

	"agent-arena/internal/storage"
	"agent-arena/internal/storage/storagetest"
)

const testURLEnv = "ARENA_TEST_POSTGRES_URL"

func TestOpenRequiresURL(t *testing.T) {
	t.Parallel()

	if _, err := Open(context.Background(), " "); err == nil {
		t.Fatal("expected empty url error")
	}
}

func TestExtractUpMigration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		want    string
	}{
		{name: "up and down", content: "-- +migrate Up\nSELECT 1;\n-- +migrate Down\nSELECT 2;\n", want: "\nSELECT 1;\n"},
		{name: "up only", content: "-- +migrate Up\nSELECT 1;\n", want: "\nSELECT 1;\n"},
		{name: "no markers", content: "SELECT 1;", want: "SELECT 1;"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := extractUpMigration(tc.content); got != tc.want {
				t.Fatalf("up = %q, want %q", got, tc.want)
			}
		})
	}
}

// TestStoreContract runs against a disposable database; every subtest
// truncates the tables first.
func TestStoreContract(t *testing.T) {
	url := os.Getenv(testURLEnv)
	if url == "" {
		t.Skipf("%s not set", testURLEnv)
	}
	ctx := context.Background()
	store, err := Open(ctx, url)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	storagetest.Run(t, func(t *testing.T) storage.Store {
		if _, err := store.pool.Exec(ctx, "TRUNCATE messages, games, users RESTART IDENTITY CASCADE"); err != nil {
			t.Fatalf("truncate: %v", err)
		}
		return nopCloser{store}
	})
}

type nopCloser struct{ *Store }

func (nopCloser) Close() error { return nil }
