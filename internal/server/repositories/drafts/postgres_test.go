package drafts

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/intakekeeper/internal/common"
	"github.com/dmitrijs2005/intakekeeper/internal/document"
	"github.com/dmitrijs2005/intakekeeper/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresRepository(db), mock
}

var draftColumns = []string{"id", "owner_id", "data", "version", "status", "last_save_id", "updated_by", "created_at", "updated_at"}

func TestCreate_FillsTimestamps(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectQuery(`INSERT INTO intakes .* RETURNING created_at, updated_at`).
		WithArgs("d1", "u1", sqlmock.AnyArg(), int64(1), "draft", "s1", "u1").
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	d := &models.Draft{ID: "d1", OwnerID: "u1", Data: document.Document{"clientName": "Jane"}, Version: 1,
		Status: models.StatusDraft, LastSaveID: "s1", UpdatedBy: "u1"}
	require.NoError(t, repo.Create(context.Background(), d))
	assert.Equal(t, now, d.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_DBError(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectQuery(`INSERT INTO intakes`).WillReturnError(errors.New("duplicate key"))

	err := repo.Create(context.Background(), &models.Draft{ID: "d1"})
	require.Error(t, err)
	assert.Regexp(t, `^db error: duplicate key$`, err.Error())
}

func TestGetForUpdate_LocksRow(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT .* FROM intakes WHERE id = \$1 FOR UPDATE`).
		WithArgs("d1").
		WillReturnRows(sqlmock.NewRows(draftColumns).
			AddRow("d1", "u1", []byte(`{"clientName":"Jane","barriers":["transport"]}`), int64(4), "submitted", "s9", "u2", now, now))

	d, err := repo.GetForUpdate(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, int64(4), d.Version)
	assert.Equal(t, models.StatusSubmitted, d.Status)
	assert.Equal(t, "Jane", d.Data["clientName"])
	assert.Equal(t, []any{"transport"}, d.Data["barriers"])
	assert.Equal(t, "s9", d.LastSaveID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGet_NotFound(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectQuery(`SELECT .* FROM intakes WHERE id = \$1`).WithArgs("nope").WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), "nope")
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestLatestByOwner(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT .* FROM intakes\s+WHERE owner_id = \$1 AND status = 'draft'\s+ORDER BY updated_at DESC\s+LIMIT 1`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows(draftColumns).AddRow("d7", "u1", `{}`, int64(2), "draft", "", "u1", now, now))

	d, err := repo.LatestByOwner(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "d7", d.ID)
	assert.Equal(t, document.Document{}, d.Data)
}

func TestUpdate_Success(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`UPDATE intakes\s+SET data = \$2, version = \$3, .*WHERE id = \$1 AND version = \$6\s+RETURNING updated_at`).
		WithArgs("d1", sqlmock.AnyArg(), int64(3), "s2", "u1", int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(now))

	d := &models.Draft{ID: "d1", Data: document.Document{"a": 1.0}, Version: 3, LastSaveID: "s2", UpdatedBy: "u1"}
	require.NoError(t, repo.Update(context.Background(), d, 2))
	assert.Equal(t, now, d.UpdatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdate_StaleVersionIsConflict(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectQuery(`UPDATE intakes`).
		WithArgs("d1", sqlmock.AnyArg(), int64(2), "", "u1", int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}))

	err := repo.Update(context.Background(), &models.Draft{ID: "d1", Version: 2, UpdatedBy: "u1"}, 1)
	require.ErrorIs(t, err, common.ErrVersionConflict)
}

func TestUpdate_DBError(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectQuery(`UPDATE intakes`).WillReturnError(errors.New("conn reset"))

	err := repo.Update(context.Background(), &models.Draft{ID: "d1"}, 1)
	require.Error(t, err)
	assert.False(t, errors.Is(err, common.ErrVersionConflict))
}

func TestSetStatus(t *testing.T) {
	tests := []struct {
		name     string
		affected int64
		wantErr  error
		wantMsg  string
	}{
		{name: "ok", affected: 1},
		{name: "missing", affected: 0, wantErr: common.ErrorNotFound},
		{name: "too many", affected: 2, wantMsg: "unexpected rows affected: 2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newRepoWithMock(t)
			mock.ExpectExec(`UPDATE intakes SET status = \$2`).
				WithArgs("d1", "archived", "u1").
				WillReturnResult(sqlmock.NewResult(0, tt.affected))

			err := repo.SetStatus(context.Background(), "d1", models.StatusArchived, "u1")
			switch {
			case tt.wantErr != nil:
				require.ErrorIs(t, err, tt.wantErr)
			case tt.wantMsg != "":
				require.EqualError(t, err, tt.wantMsg)
			default:
				require.NoError(t, err)
			}
		})
	}
}

func TestListIDs_Pages(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`SELECT id FROM intakes ORDER BY id LIMIT \$1`).
		WithArgs(2).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("a").AddRow("b"))
	mock.ExpectQuery(`SELECT id FROM intakes WHERE id > \$1 ORDER BY id LIMIT \$2`).
		WithArgs("b", 2).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	first, err := repo.ListIDs(context.Background(), "", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, first)

	next, err := repo.ListIDs(context.Background(), "b", 2)
	require.NoError(t, err)
	assert.Empty(t, next)
	require.NoError(t, mock.ExpectationsWereMet())
}
