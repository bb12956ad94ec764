package localcache

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitrijs2005/intakekeeper/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/intakekeeper/internal/common"
	"github.com/dmitrijs2005/intakekeeper/internal/document"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := InitDatabase(context.Background(), filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestWriteRead_RoundTrip(t *testing.T) {
	c := Open(openTestDB(t))
	ctx := context.Background()

	in := &Snapshot{
		Key:         "intake-draft",
		Value:       document.Document{"clientName": "Ana", "barriers": []any{"transport"}},
		DraftID:     "d1",
		BaseVersion: 4,
		Pending:     true,
	}
	require.NoError(t, c.Write(ctx, in))

	got, err := c.Read(ctx, "intake-draft")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Empty(t, cmp.Diff(in.Value, got.Value))
	assert.Equal(t, "d1", got.DraftID)
	assert.Equal(t, int64(4), got.BaseVersion)
	assert.True(t, got.Pending)
	assert.False(t, got.UpdatedAt.IsZero())
}

func TestRead_MissingIsNil(t *testing.T) {
	c := Open(openTestDB(t))

	got, err := c.Read(context.Background(), "absent")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestWrite_LastWriterWins(t *testing.T) {
	c := Open(openTestDB(t))
	ctx := context.Background()

	require.NoError(t, c.Write(ctx, &Snapshot{Key: "k", Value: document.Document{"a": 1.0}}))
	require.NoError(t, c.Write(ctx, &Snapshot{Key: "k", Value: document.Document{"b": 2.0}}))

	got, err := c.Read(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, document.Document{"b": 2.0}, got.Value)
}

func TestBackups_AppendListGet(t *testing.T) {
	c := Open(openTestDB(t))
	ctx := context.Background()

	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	first, err := c.AppendBackup(ctx, "f", document.Document{"clientName": "A"})
	require.NoError(t, err)
	now = now.Add(time.Minute)
	second, err := c.AppendBackup(ctx, "f", document.Document{"clientName": "B"})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	list, err := c.ListBackups(ctx, "f")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, "B", list[0].Value.String("clientName"))

	got, err := c.GetBackup(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "A", got.Value.String("clientName"))

	_, err = c.GetBackup(ctx, "nope")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestUnlock_SealsPayloads(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	meta := metadata.NewSQLiteRepository(db)

	c := Open(db)
	require.NoError(t, c.Unlock(ctx, meta, []byte("correct horse")))
	require.NoError(t, c.Write(ctx, &Snapshot{Key: "k", Value: document.Document{"clientName": "Ana"}}))

	var raw []byte
	require.NoError(t, db.QueryRow(`SELECT data FROM snapshots WHERE key = 'k'`).Scan(&raw))
	assert.NotContains(t, string(raw), "Ana")

	// same passphrase in a new session reads it back
	again := Open(db)
	require.NoError(t, again.Unlock(ctx, meta, []byte("correct horse")))
	got, err := again.Read(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "Ana", got.Value.String("clientName"))

	// no key at all cannot decode it
	plain := Open(db)
	_, err = plain.Read(ctx, "k")
	assert.ErrorIs(t, err, ErrLocalDataNotAvailable)
}

func TestUnlock_WrongPassphrase(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	meta := metadata.NewSQLiteRepository(db)

	require.NoError(t, Open(db).Unlock(ctx, meta, []byte("one")))
	assert.ErrorIs(t, Open(db).Unlock(ctx, meta, []byte("two")), ErrWrongPassphrase)
}
