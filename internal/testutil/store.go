// Package testutil provides helpers shared by package tests.
package testutil

import (
	"testing"

	"github.com/xiaot623/gogo/autoqa/internal/repository"
)

// NewTestSQLiteStore opens an in-memory store closed at test cleanup.
func NewTestSQLiteStore(t *testing.T) *repository.SQLiteStore {
	t.Helper()

	s, err := repository.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create sqlite store: %v", err)
	}

	t.Cleanup(func() {
		_ = s.Close()
	})

	return s
}
