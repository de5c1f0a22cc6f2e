package testsupport

import (
	"context"
	"testing"

	"streamlapse/internal/config"
	"streamlapse/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewStream creates a queue item for tests using the provided store.
func NewStream(t testing.TB, store *queue.Store, videoID, url, title string) *queue.Item {
	t.Helper()

	item, err := store.NewStream(context.Background(), videoID, url, title,
		"2025-04-18T06:00:00Z", "2025-04-18T12:00:00Z", "2025-04-18T13:00:00Z")
	if err != nil {
		t.Fatalf("store.NewStream: %v", err)
	}
	return item
}
