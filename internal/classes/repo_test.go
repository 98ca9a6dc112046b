package classes

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sessionRowColumns = []string{"id", "title", "description", "start_time", "duration", "program", "status",
	"meeting_id", "meeting_link", "created_by", "completed_at", "created_at", "updated_at"}

func newMockRepo(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewRepository(db), mock
}

func TestRepositoryGet(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := context.Background()
	id := "0b8f0c55-2d7b-4c55-9a45-1f0f7b7a1e01"
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	_, err := repo.Get(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, ErrNotFound)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM class_sessions WHERE id = $1`)).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(sessionRowColumns).
			AddRow(id, "Go", "", start, 60, "24-session", "ongoing", "room-1", "https://meet.test/room-1", "admin", nil, start, start))

	s, err := repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusOngoing, s.Status)
	require.NotNil(t, s.MeetingLink)
	assert.Equal(t, "https://meet.test/room-1", *s.MeetingLink)
	assert.Nil(t, s.CompletedAt)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM class_sessions WHERE id = $1`)).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(sessionRowColumns))
	_, err = repo.Get(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositorySaveIf(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	s := Session{ID: "0b8f0c55-2d7b-4c55-9a45-1f0f7b7a1e01", Title: "Go", StartTime: now, Duration: 60,
		Program: "24-session", Status: StatusExpired, UpdatedAt: now}

	mock.ExpectExec(regexp.QuoteMeta(`WHERE id = $1 AND status = $12`)).
		WithArgs(s.ID, "Go", "", now, 60, "24-session", "expired", nil, nil, nil, now, "scheduled").
		WillReturnResult(sqlmock.NewResult(0, 1))
	ok, err := repo.SaveIf(ctx, s, StatusScheduled)
	require.NoError(t, err)
	assert.True(t, ok)

	mock.ExpectExec(regexp.QuoteMeta(`AND status = $12`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	ok, err = repo.SaveIf(ctx, s, StatusScheduled)
	require.NoError(t, err)
	assert.False(t, ok)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE class_sessions`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.Save(ctx, s), ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryListBuildsFilter(t *testing.T) {
	repo, mock := newMockRepo(t)
	before := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(
		`WHERE status IN ($1, $2) AND program = $3 AND start_time < $4 ORDER BY start_time ASC`)).
		WithArgs("scheduled", "ongoing", "24-session", before).
		WillReturnRows(sqlmock.NewRows(sessionRowColumns).
			AddRow("a", "Go", "", before.Add(-time.Hour), 60, "24-session", "scheduled", nil, nil, "admin", nil, before, before))

	got, err := repo.List(context.Background(), Filter{
		Statuses:      []Status{StatusScheduled, StatusOngoing},
		Program:       "24-session",
		StartedBefore: before,
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Nil(t, got[0].MeetingID)

	mock.ExpectQuery(`FROM class_sessions ORDER BY start_time ASC`).
		WillReturnRows(sqlmock.NewRows(sessionRowColumns))
	got, err = repo.List(context.Background(), Filter{})
	require.NoError(t, err)
	assert.Empty(t, got)

	assert.NoError(t, mock.ExpectationsWereMet())
}
