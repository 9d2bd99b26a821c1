package store

import (
	"context"
	"database/sql/driver"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"care-pulse-backend/internal/model"
)

// A helper function to create a mock database connection.
func newTestDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

func TestGormStore_EscalateOverdue(t *testing.T) {
	now := time.Now().UTC()
	window := 20 * time.Minute

	t.Run("escalates matching rows and marks details in one transaction", func(t *testing.T) {
		gormDB, mock := newTestDB(t)
		store := NewGormStore(gormDB)

		effective := now.Add(-window - time.Minute)

		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(`UPDATE log_entries AS le`)).
			WithArgs(Any{}, Any{}, Any{}).
			WillReturnRows(sqlmock.NewRows([]string{"log_entry_id", "user_id", "effective_at"}).
				AddRow(101, 7, effective).
				AddRow(102, 9, effective))
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE "care_pulse_details" SET`)).
			WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectCommit()

		escalated, err := store.EscalateOverdue(context.Background(), now, window)
		require.NoError(t, err)
		require.Len(t, escalated, 2)
		assert.Equal(t, int64(101), escalated[0].LogEntryID)
		assert.Equal(t, int64(7), escalated[0].UserID)
		assert.Equal(t, int64(102), escalated[1].LogEntryID)
		assert.Equal(t, int64(9), escalated[1].UserID)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no eligible rows means no detail update", func(t *testing.T) {
		gormDB, mock := newTestDB(t)
		store := NewGormStore(gormDB)

		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(`UPDATE log_entries AS le`)).
			WithArgs(Any{}, Any{}, Any{}).
			WillReturnRows(sqlmock.NewRows([]string{"log_entry_id", "user_id", "effective_at"}))
		mock.ExpectCommit()

		escalated, err := store.EscalateOverdue(context.Background(), now, window)
		require.NoError(t, err)
		assert.Empty(t, escalated)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("update failure rolls the cycle back", func(t *testing.T) {
		gormDB, mock := newTestDB(t)
		store := NewGormStore(gormDB)

		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(`UPDATE log_entries AS le`)).
			WithArgs(Any{}, Any{}, Any{}).
			WillReturnError(assert.AnError)
		mock.ExpectRollback()

		_, err := store.EscalateOverdue(context.Background(), now, window)
		assert.Error(t, err)

		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormStore_RecentCarePulseLogs(t *testing.T) {
	gormDB, mock := newTestDB(t)
	store := NewGormStore(gormDB)

	now := time.Now().UTC()

	// The requested limit of 500 must be clamped to 200.
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "log_entries" WHERE user_id = $1 AND log_type = $2 ORDER BY COALESCE(occurred_at, created_at) DESC LIMIT $3`)).
		WithArgs(int64(7), model.LogTypeCarePulse, 200).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "log_type", "created_at"}).
			AddRow(3, 7, model.LogTypeCarePulse, now).
			AddRow(2, 7, model.LogTypeCarePulse, now.Add(-time.Hour)))

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "care_pulse_details" WHERE "care_pulse_details"."log_entry_id" IN ($1,$2)`)).
		WithArgs(int64(3), int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"log_entry_id", "status", "escalation_sent", "silence_count"}).
			AddRow(3, string(model.StatusNormal), false, 0).
			AddRow(2, string(model.StatusEmergency), true, 1))

	entries, err := store.RecentCarePulseLogs(context.Background(), 7, 500)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(3), entries[0].ID)
	require.NotNil(t, entries[1].Detail)
	assert.Equal(t, model.StatusEmergency, entries[1].Detail.Status)
	assert.True(t, entries[1].Detail.EscalationSent)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, 1, ClampLimit(0))
	assert.Equal(t, 1, ClampLimit(-5))
	assert.Equal(t, 50, ClampLimit(50))
	assert.Equal(t, 200, ClampLimit(200))
	assert.Equal(t, 200, ClampLimit(201))
}

// Any is a helper for sqlmock to match any argument.
type Any struct{}

// Match satisfies the sqlmock.Argument interface
func (a Any) Match(v driver.Value) bool {
	return true
}
