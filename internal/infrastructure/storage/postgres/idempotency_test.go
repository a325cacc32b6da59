package postgres

import (
	"context"
	"net/http"
	"regexp"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backoffice/internal/core/apperror"
)

var idempotencyReturning = []string{
	"inserted", "user_id", "operation", "status", "request_hash",
	"response", "response_status", "response_content_type", "updated_at",
}

const acquireSQL = "INSERT INTO sys_idempotency"

func expectAcquire(mock pgxmock.PgxPoolIface, inserted bool, status IdempotencyStatus, hash string, response []byte, code int, updatedAt time.Time) {
	mock.ExpectQuery(regexp.QuoteMeta(acquireSQL)).
		WithArgs("key-1", "ops-1", "POST /api/v1/sales", IdempotencyStatusPending, "hash-1",
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(mock.NewRows(idempotencyReturning).AddRow(
			inserted, "ops-1", "POST /api/v1/sales", status, hash,
			response, code, "application/json", updatedAt,
		))
}

func acquire(store *IdempotencyStore) (*IdempotencyReplay, error) {
	return store.AcquireKey(context.Background(), "key-1", "ops-1", "POST /api/v1/sales", "hash-1")
}

func TestIdempotencyStore_AcquireNewKey(t *testing.T) {
	mock := newMock(t)
	store := NewIdempotencyStore(mockDB{mock}, 24*time.Hour)

	expectAcquire(mock, true, IdempotencyStatusPending, "hash-1", []byte{}, 0, time.Now().UTC())

	replay, err := acquire(store)
	require.NoError(t, err)
	assert.Nil(t, replay)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotencyStore_ReplaysCompletedResponse(t *testing.T) {
	mock := newMock(t)
	store := NewIdempotencyStore(mockDB{mock}, 24*time.Hour)

	body := []byte(`{"id":"sale-1"}`)
	expectAcquire(mock, false, IdempotencyStatusSuccess, "hash-1", body, http.StatusCreated, time.Now().UTC())

	replay, err := acquire(store)
	require.NoError(t, err)
	require.NotNil(t, replay)
	assert.Equal(t, http.StatusCreated, replay.StatusCode)
	assert.Equal(t, "application/json", replay.ContentType)
	assert.Equal(t, body, replay.Body)
}

func TestIdempotencyStore_RejectsReuseForDifferentBody(t *testing.T) {
	mock := newMock(t)
	store := NewIdempotencyStore(mockDB{mock}, 24*time.Hour)

	expectAcquire(mock, false, IdempotencyStatusSuccess, "other-hash", []byte{}, http.StatusCreated, time.Now().UTC())

	_, err := acquire(store)
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeIdempotency))
	assert.Equal(t, http.StatusConflict, apperror.GetHTTPStatus(err))
}

func TestIdempotencyStore_PendingKey(t *testing.T) {
	t.Run("in flight", func(t *testing.T) {
		mock := newMock(t)
		store := NewIdempotencyStore(mockDB{mock}, 24*time.Hour)
		expectAcquire(mock, false, IdempotencyStatusPending, "hash-1", []byte{}, 0, time.Now().UTC())

		_, err := acquire(store)
		assert.True(t, apperror.IsCode(err, apperror.CodeIdempotency))
	})

	t.Run("stale key is reclaimed", func(t *testing.T) {
		mock := newMock(t)
		store := NewIdempotencyStore(mockDB{mock}, 24*time.Hour)
		expectAcquire(mock, false, IdempotencyStatusPending, "hash-1", []byte{}, 0, time.Now().UTC().Add(-5*time.Minute))
		mock.ExpectExec(regexp.QuoteMeta("UPDATE sys_idempotency SET updated_at = $1")).
			WithArgs(pgxmock.AnyArg(), "key-1", IdempotencyStatusPending, pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		replay, err := acquire(store)
		require.NoError(t, err)
		assert.Nil(t, replay)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("stale key taken by another request", func(t *testing.T) {
		mock := newMock(t)
		store := NewIdempotencyStore(mockDB{mock}, 24*time.Hour)
		expectAcquire(mock, false, IdempotencyStatusPending, "hash-1", []byte{}, 0, time.Now().UTC().Add(-5*time.Minute))
		mock.ExpectExec(regexp.QuoteMeta("UPDATE sys_idempotency SET updated_at = $1")).
			WithArgs(pgxmock.AnyArg(), "key-1", IdempotencyStatusPending, pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		_, err := acquire(store)
		assert.True(t, apperror.IsCode(err, apperror.CodeIdempotency))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestIdempotencyStore_ReplaysFailedResponseWithDefaults(t *testing.T) {
	mock := newMock(t)
	store := NewIdempotencyStore(mockDB{mock}, 24*time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta(acquireSQL)).
		WithArgs("key-1", "ops-1", "POST /api/v1/sales", IdempotencyStatusPending, "hash-1",
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(mock.NewRows(idempotencyReturning).AddRow(
			false, "ops-1", "POST /api/v1/sales", IdempotencyStatusFailed, "hash-1",
			[]byte(`{"code":"INSUFFICIENT_STOCK"}`), 0, "", time.Now().UTC(),
		))

	replay, err := acquire(store)
	require.NoError(t, err)
	require.NotNil(t, replay)
	assert.Equal(t, http.StatusOK, replay.StatusCode)
	assert.Equal(t, "application/json", replay.ContentType)
}

func TestIdempotencyStore_CompleteKey(t *testing.T) {
	mock := newMock(t)
	store := NewIdempotencyStore(mockDB{mock}, 24*time.Hour)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE sys_idempotency SET status = $1, response = $2")).
		WithArgs(IdempotencyStatusSuccess, []byte(`{"id":"sale-1"}`), http.StatusCreated, "application/json", pgxmock.AnyArg(), "key-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := store.CompleteKey(context.Background(), "key-1", http.StatusCreated, "application/json", map[string]string{"id": "sale-1"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotencyStore_FailKey(t *testing.T) {
	t.Run("business rejection is stored", func(t *testing.T) {
		mock := newMock(t)
		store := NewIdempotencyStore(mockDB{mock}, 24*time.Hour)
		mock.ExpectExec(regexp.QuoteMeta("UPDATE sys_idempotency")).
			WithArgs(IdempotencyStatusFailed, pgxmock.AnyArg(), http.StatusUnprocessableEntity, "application/json", pgxmock.AnyArg(), "key-1").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		err := store.FailKey(context.Background(), "key-1", http.StatusUnprocessableEntity, "application/json",
			map[string]any{"code": apperror.CodeInsufficientStock})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("server error releases the key", func(t *testing.T) {
		mock := newMock(t)
		store := NewIdempotencyStore(mockDB{mock}, 24*time.Hour)
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM sys_idempotency WHERE idempotency_key = $1")).
			WithArgs("key-1").
			WillReturnResult(pgxmock.NewResult("DELETE", 1))

		require.NoError(t, store.FailKey(context.Background(), "key-1", http.StatusInternalServerError, "application/json", nil))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestIdempotencyStore_CleanupExpired(t *testing.T) {
	mock := newMock(t)
	store := NewIdempotencyStore(mockDB{mock}, 24*time.Hour)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM sys_idempotency WHERE expires_at < $1")).
		WithArgs(pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("DELETE", 7))

	n, err := store.CleanupExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
}
