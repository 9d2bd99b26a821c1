package notification

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"care-pulse-backend/internal/escalation"
	"care-pulse-backend/internal/model"
)

// mockSender is a mock implementation of the NotificationSender interface.
type mockSender struct {
	SendFunc func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// Send calls the mock SendFunc.
func (m *mockSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return m.SendFunc(payload, sub, options)
}

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

func TestWorkerPool_Dispatch(t *testing.T) {
	db, _ := newTestDB(t)
	wp := NewWorkerPool(1, db, &webpush.Options{})

	// Dispatch a job
	ev := escalation.Event{LogEntryID: 42, UserID: 7}
	wp.Dispatch(ev)

	// Check if the job is in the channel
	select {
	case job := <-wp.jobs:
		assert.Equal(t, ev, job)
	case <-time.After(1 * time.Second):
		t.Fatal("timed out waiting for job to be dispatched")
	}
}

// Dispatch must never block the caller: with no workers draining and the
// queue already full, the extra event is dropped.
func TestWorkerPool_DispatchDropsWhenQueueFull(t *testing.T) {
	db, _ := newTestDB(t)
	wp := NewWorkerPool(1, db, &webpush.Options{})

	wp.Dispatch(escalation.Event{LogEntryID: 1, UserID: 7})

	done := make(chan struct{})
	go func() {
		wp.Dispatch(escalation.Event{LogEntryID: 2, UserID: 7})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("Dispatch blocked on a full queue")
	}

	assert.Len(t, wp.jobs, 1)
	job := <-wp.jobs
	assert.Equal(t, int64(1), job.LogEntryID)
}

func TestWorkerPool_WorkerLogic(t *testing.T) {
	gormDB, mock := newTestDB(t)
	wp := NewWorkerPool(1, gormDB, &webpush.Options{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wp.Start(ctx)

	effectiveAt := time.Date(2026, 8, 28, 9, 30, 0, 0, time.UTC)

	expectSubscriptions := func(userID int64, sub model.PushSubscription) {
		mock.ExpectQuery(`SELECT .* FROM "push_subscriptions".*JOIN .*subscription_user_mapping.*WHERE .*sm\.user_id = \$1`).
			WithArgs(userID).
			WillReturnRows(sqlmock.NewRows([]string{"endpoint", "p256dh", "auth", "created_at"}).
				AddRow(sub.Endpoint, sub.P256DH, sub.Auth, time.Now()))
	}

	// --- Test Case: One subscription found, alert sent with parsed source ---
	t.Run("sends alert for one subscription", func(t *testing.T) {
		var wg sync.WaitGroup
		wg.Add(1)

		ev := escalation.Event{LogEntryID: 501, UserID: 101, EffectiveAt: effectiveAt}
		subscription := model.PushSubscription{
			Endpoint: "https://example.com/push",
			P256DH:   "test_p256dh",
			Auth:     "test_auth",
		}

		// Set up the mock sender
		wp.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				assert.Equal(t, "https://example.com/push", sub.Endpoint)
				assert.Equal(t,
					"Margaret Chen has not responded since an emergency check-in at 09:30 and needs immediate attention. Last check-in came from mobile.",
					string(payload))
				wg.Done()
				return &http.Response{
					StatusCode: http.StatusCreated,
					Body:       io.NopCloser(bytes.NewBufferString("")),
				}, nil
			},
		}

		expectSubscriptions(ev.UserID, subscription)

		mock.ExpectQuery(`SELECT "display_name" FROM "users" WHERE "users"."id" = \$1 ORDER BY "users"."id" LIMIT \$[0-9]+`).
			WithArgs(ev.UserID, 1).
			WillReturnRows(sqlmock.NewRows([]string{"display_name"}).AddRow("Margaret Chen"))

		mock.ExpectQuery(`SELECT "source" FROM "log_entries" WHERE "log_entries"."id" = \$1 ORDER BY "log_entries"."id" LIMIT \$[0-9]+`).
			WithArgs(ev.LogEntryID, 1).
			WillReturnRows(sqlmock.NewRows([]string{"source"}).AddRow("mobile:ios"))

		wp.Dispatch(ev)
		wg.Wait()
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	// --- Test Case: Subscription expired, should be deleted ---
	t.Run("deletes expired subscription", func(t *testing.T) {
		ev := escalation.Event{LogEntryID: 502, UserID: 102, EffectiveAt: effectiveAt}
		subscription := model.PushSubscription{
			Endpoint: "https://example.com/expired",
			P256DH:   "test_p256dh_expired",
			Auth:     "test_auth_expired",
		}

		// Set up the mock sender to return a 410 Gone status
		wp.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				return &http.Response{
					StatusCode: http.StatusGone,
					Body:       io.NopCloser(bytes.NewBufferString("")),
				}, nil
			},
		}

		expectSubscriptions(ev.UserID, subscription)

		mock.ExpectQuery(`SELECT "display_name" FROM "users" WHERE "users"."id" = \$1 ORDER BY "users"."id" LIMIT \$[0-9]+`).
			WithArgs(ev.UserID, 1).
			WillReturnRows(sqlmock.NewRows([]string{"display_name"}).AddRow("User 102"))

		mock.ExpectQuery(`SELECT "source" FROM "log_entries" WHERE "log_entries"."id" = \$1 ORDER BY "log_entries"."id" LIMIT \$[0-9]+`).
			WithArgs(ev.LogEntryID, 1).
			WillReturnError(fmt.Errorf("log entry not found"))

		// Expect the delete operation
		mock.ExpectBegin()
		mock.ExpectExec(`DELETE FROM "push_subscriptions" WHERE "push_subscriptions"."endpoint" = \$1`).
			WithArgs(subscription.Endpoint).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		wp.Dispatch(ev)

		// A short sleep to allow the worker to process the job
		time.Sleep(100 * time.Millisecond)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	// --- Test Case: User lookup fails, fallback to user id label ---
	t.Run("falls back to user id when lookup fails", func(t *testing.T) {
		var wg sync.WaitGroup
		wg.Add(1)

		ev := escalation.Event{LogEntryID: 503, UserID: 103, EffectiveAt: effectiveAt}
		subscription := model.PushSubscription{
			Endpoint: "https://example.com/fallback",
			P256DH:   "test_p256dh_fallback",
			Auth:     "test_auth_fallback",
		}

		wp.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				assert.Equal(t, "https://example.com/fallback", sub.Endpoint)
				assert.Equal(t,
					"user 103 has not responded since an emergency check-in at 09:30 and needs immediate attention.",
					string(payload))
				wg.Done()
				return &http.Response{
					StatusCode: http.StatusCreated,
					Body:       io.NopCloser(bytes.NewBufferString("")),
				}, nil
			},
		}

		expectSubscriptions(ev.UserID, subscription)

		mock.ExpectQuery(`SELECT "display_name" FROM "users" WHERE "users"."id" = \$1 ORDER BY "users"."id" LIMIT \$[0-9]+`).
			WithArgs(ev.UserID, 1).
			WillReturnError(fmt.Errorf("user not found"))

		mock.ExpectQuery(`SELECT "source" FROM "log_entries" WHERE "log_entries"."id" = \$1 ORDER BY "log_entries"."id" LIMIT \$[0-9]+`).
			WithArgs(ev.LogEntryID, 1).
			WillReturnError(fmt.Errorf("log entry not found"))

		wp.Dispatch(ev)
		wg.Wait()
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
