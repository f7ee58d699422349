package services

import (
	"context"
	"testing"
	"time"

	contextutils "issuetracker/internal/utils"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanupService_PruneReadNotifications(t *testing.T) {
	db, mock := newMockDB(t)
	service := NewCleanupServiceWithLogger(db, nopLogger())
	service.now = func() time.Time { return testNow }

	mock.ExpectExec(`DELETE FROM notifications WHERE is_read AND created_at < \$1`).
		WithArgs(testNow.Add(-90 * 24 * time.Hour)).
		WillReturnResult(sqlmock.NewResult(0, 12))

	n, err := service.PruneReadNotifications(context.Background(), 90*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)
}

func TestCleanupService_PruneReadNotifications_RejectsZeroRetention(t *testing.T) {
	db, _ := newMockDB(t)
	service := NewCleanupServiceWithLogger(db, nopLogger())

	_, err := service.PruneReadNotifications(context.Background(), 0)
	require.Error(t, err)
	assert.Equal(t, contextutils.ErrorCodeValidationFailed, contextutils.GetErrorCode(err))
}

func TestCleanupService_Stats(t *testing.T) {
	db, mock := newMockDB(t)
	service := NewCleanupServiceWithLogger(db, nopLogger())
	service.now = func() time.Time { return testNow }

	mock.ExpectQuery(`SELECT\s+COUNT\(\*\) FILTER \(WHERE is_read AND created_at < \$1\)`).
		WithArgs(testNow.Add(-time.Hour)).
		WillReturnRows(sqlmock.NewRows([]string{"prunable", "unread"}).AddRow(int64(4), int64(9)))

	stats, err := service.Stats(context.Background(), time.Hour)
	require.NoError(t, err)
	assert.Equal(t, CleanupStats{PrunableNotifications: 4, UnreadNotifications: 9}, stats)
}

func TestCleanupService_Stats_QueryError(t *testing.T) {
	db, mock := newMockDB(t)
	service := NewCleanupServiceWithLogger(db, nopLogger())

	mock.ExpectQuery(`FROM notifications`).WillReturnError(assert.AnError)

	_, err := service.Stats(context.Background(), time.Hour)
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
}
