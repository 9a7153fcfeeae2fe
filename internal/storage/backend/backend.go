// Package backend selects a storage implementation from DATABASE_URL.
package backend

import (
	"context"
	"fmt"
	"strings"

	"agent-arena/internal/storage"
	"agent-arena/internal/storage/memory"
	"agent-arena/internal/storage/postgres"
	"agent-arena/internal/storage/sqlite"
	"agent-arena/internal/storage/supabase"
)

// Kind names a storage backend.
type Kind string

const (
	KindPostgres Kind = "postgres"
	KindSupabase Kind = "supabase"
	KindSQLite   Kind = "sqlite"
	KindMemory   Kind = "memory"
)

// Detect returns the backend kind for databaseURL and, for SQLite, the file
// path to open.
func Detect(databaseURL string) (Kind, string, error) {
	url := strings.TrimSpace(databaseURL)
	lower := strings.ToLower(url)
	switch {
	case url == "":
		return "", "", fmt.Errorf("DATABASE_URL is required")
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return KindPostgres, url, nil
	case strings.HasPrefix(lower, "https://"), strings.HasPrefix(lower, "http://"):
		return KindSupabase, url, nil
	case strings.HasPrefix(lower, "sqlite://"):
		return KindSQLite, url[len("sqlite://"):], nil
	case strings.HasPrefix(lower, "file:"):
		return KindSQLite, url[len("file:"):], nil
	case lower == "memory://", lower == "memory:":
		return KindMemory, "", nil
	default:
		return "", "", fmt.Errorf("unsupported DATABASE_URL scheme in %q", Redact(url))
	}
}

// Open connects to the backend named by databaseURL. supabaseKey is only
// used for Supabase project URLs.
func Open(ctx context.Context, databaseURL, supabaseKey string) (storage.Store, Kind, error) {
	kind, target, err := Detect(databaseURL)
	if err != nil {
		return nil, "", err
	}
	var store storage.Store
	switch kind {
	case KindPostgres:
		store, err = postgres.Open(ctx, target)
	case KindSupabase:
		if strings.TrimSpace(supabaseKey) == "" {
			return nil, "", fmt.Errorf("SUPABASE_KEY is required for %s", target)
		}
		store, err = supabase.Open(target, supabaseKey)
	case KindSQLite:
		store, err = sqlite.Open(target)
	case KindMemory:
		store = memory.New()
	}
	if err != nil {
		return nil, "", fmt.Errorf("open %s storage: %w", kind, err)
	}
	return store, kind, nil
}

// Redact drops credentials from a URL before it reaches logs or errors.
func Redact(url string) string {
	scheme, rest, ok := strings.Cut(url, "://")
	if !ok {
		return url
	}
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		rest = "***@" + rest[at+1:]
	}
	return scheme + "://" + rest
}
