package history

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/kehai/internal/status"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	db, err := Open(filepath.Join(t.TempDir(), "history.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestRecordAndList(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	db.Record(ctx, status.NewStandard(status.MainAway, status.ExtNone, status.OriginSchedule), true)
	db.Record(ctx, status.NewCustom("写Bug", 75, status.OriginOverride), false)

	entries, err := db.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// Newest first.
	assert.Equal(t, status.KindCustom, entries[0].Kind)
	assert.Equal(t, "写Bug", entries[0].Text)
	assert.False(t, entries[0].OK)
	assert.False(t, entries[0].At.IsZero())

	assert.Equal(t, status.KindStandard, entries[1].Kind)
	assert.Equal(t, status.MainAway, entries[1].MainCode)
	assert.True(t, entries[1].OK)
}

func TestListLimit(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	for range 5 {
		db.Record(ctx, status.NewStandard(status.MainOnline, status.ExtNone, status.OriginSchedule), true)
	}

	entries, err := db.List(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	// Out-of-range limits fall back to the default.
	entries, err = db.List(ctx, -1)
	require.NoError(t, err)
	assert.Len(t, entries, 5)
}

func TestListEmpty(t *testing.T) {
	db := openTestDB(t)

	entries, err := db.List(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
