// Package storagetest provides in-memory stores and fixtures for tests.
package storagetest

import (
	"context"
	"testing"
	"time"

	"distask/internal/storage"
	"distask/pkg/logx"
)

// NewStore creates an in-memory SQLiteStore with all migrations applied.
// It is closed when the test completes.
func NewStore(t testing.TB) *storage.SQLiteStore {
	t.Helper()

	s, err := storage.OpenSQLite(storage.Config{Driver: "sqlite", Path: ":memory:"}, logx.Nop())
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})
	return s
}

// Board creates a board in guild posting to channel and returns its id.
func Board(t testing.TB, s *storage.SQLiteStore, guildID, channelID int64, name string) int64 {
	t.Helper()
	id, err := s.CreateBoard(context.Background(), storage.Board{GuildID: guildID, ChannelID: channelID, Name: name})
	if err != nil {
		t.Fatalf("creating board %q: %v", name, err)
	}
	return id
}

// Task creates an open task due at due (nil for no due date).
func Task(t testing.TB, s *storage.SQLiteStore, boardID int64, title string, due *time.Time, assignees ...int64) int64 {
	t.Helper()
	id, err := s.CreateTask(context.Background(), storage.NewTask{
		BoardID:     boardID,
		Title:       title,
		DueAt:       due,
		AssigneeIDs: assignees,
	})
	if err != nil {
		t.Fatalf("creating task %q: %v", title, err)
	}
	return id
}

// At returns a pointer to tm, for due dates.
func At(tm time.Time) *time.Time { return &tm }

// Ptr returns a pointer to v, for preference overrides.
func Ptr[T any](v T) *T { return &v }
