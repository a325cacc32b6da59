package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Masterminds/squirrel"

	"backoffice/internal/core/apperror"
)

const idempotencyTable = "sys_idempotency"

// IdempotencyStatus is the state of a guarded request.
type IdempotencyStatus string

const (
	IdempotencyStatusPending IdempotencyStatus = "pending"
	IdempotencyStatusSuccess IdempotencyStatus = "success"
	IdempotencyStatusFailed  IdempotencyStatus = "failed"
)

// IdempotencyReplay is the stored response of a finished request.
type IdempotencyReplay struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// idempotencyKey is one row of sys_idempotency as seen by AcquireKey.
type idempotencyKey struct {
	userID      string
	operation   string
	status      IdempotencyStatus
	requestHash string
	response    []byte
	code        int
	contentType string
	updatedAt   time.Time
}

func (k *idempotencyKey) sameRequest(userID, operation, requestHash string) bool {
	return k.userID == userID && k.operation == operation && k.requestHash == requestHash
}

func (k *idempotencyKey) replay() *IdempotencyReplay {
	r := &IdempotencyReplay{StatusCode: k.code, ContentType: k.contentType, Body: k.response}
	if r.StatusCode == 0 {
		r.StatusCode = http.StatusOK
	}
	if r.ContentType == "" {
		r.ContentType = "application/json"
	}
	return r
}

// staleAfter is how long a pending key may sit before another request may reclaim it.
const staleAfter = time.Minute

// IdempotencyStore keeps the Idempotency-Key ledger that stops a retried
// checkout or refund from being posted twice.
type IdempotencyStore struct {
	db  QuerierProvider
	ttl time.Duration
	now func() time.Time
}

func NewIdempotencyStore(db QuerierProvider, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{db: db, ttl: ttl, now: func() time.Time { return time.Now().UTC() }}
}

// AcquireKey claims key for one request. It returns (nil, nil) when the
// caller owns the key and should run the handler, and the stored response
// when the same request already finished. A key still being processed, or
// reused for a different request, is an IDEMPOTENCY error.
func (s *IdempotencyStore) AcquireKey(ctx context.Context, key, userID, operation, requestHash string) (*IdempotencyReplay, error) {
	now := s.now()
	query, args, err := Builder().
		Insert(idempotencyTable).
		Columns("idempotency_key", "user_id", "operation", "status", "request_hash", "created_at", "updated_at", "expires_at").
		Values(key, userID, operation, IdempotencyStatusPending, requestHash, now, now, now.Add(s.ttl)).
		// xmax = 0 only for a freshly inserted row.
		Suffix(`ON CONFLICT (idempotency_key) DO UPDATE SET
			expires_at = GREATEST(` + idempotencyTable + `.expires_at, EXCLUDED.expires_at)
		RETURNING (xmax = 0), user_id, operation, status, request_hash,
			response, response_status, response_content_type, updated_at`).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build acquire query: %w", err)
	}

	var (
		k        idempotencyKey
		inserted bool
	)
	err = s.db.GetQuerier(ctx).QueryRow(ctx, query, args...).Scan(
		&inserted, &k.userID, &k.operation, &k.status, &k.requestHash,
		&k.response, &k.code, &k.contentType, &k.updatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("acquire idempotency key: %w", err)
	}
	if inserted {
		return nil, nil
	}

	if !k.sameRequest(userID, operation, requestHash) {
		return nil, apperror.NewIdempotencyMismatch(key).
			WithDetail("stored_operation", k.operation).
			WithDetail("request_operation", operation)
	}

	if k.status != IdempotencyStatusPending {
		return k.replay(), nil
	}
	if now.Sub(k.updatedAt) <= staleAfter {
		return nil, apperror.NewIdempotencyConflict(key)
	}
	return nil, s.reclaim(ctx, key, now)
}

// reclaim takes over a pending key left behind by a crashed request. Only
// one of several racing callers wins.
func (s *IdempotencyStore) reclaim(ctx context.Context, key string, now time.Time) error {
	query, args, err := Builder().
		Update(idempotencyTable).
		Set("updated_at", now).
		Where(squirrel.Eq{"idempotency_key": key, "status": IdempotencyStatusPending}).
		Where(squirrel.Lt{"updated_at": now.Add(-staleAfter)}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build reclaim query: %w", err)
	}
	tag, err := s.db.GetQuerier(ctx).Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("reclaim stale key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewIdempotencyConflict(key)
	}
	return nil
}

// CompleteKey stores a successful response for replay.
func (s *IdempotencyStore) CompleteKey(ctx context.Context, key string, statusCode int, contentType string, response any) error {
	body, err := marshalResponse(response)
	if err != nil {
		return err
	}
	return s.finish(ctx, key, IdempotencyStatusSuccess, statusCode, contentType, body)
}

// FailKey records a rejected request. Business failures (4xx) are final and
// replayed like successes; a server error releases the key so the client may
// retry the same request.
func (s *IdempotencyStore) FailKey(ctx context.Context, key string, statusCode int, contentType string, response any) error {
	if statusCode >= http.StatusInternalServerError {
		return s.release(ctx, key)
	}
	body, err := marshalResponse(response)
	if err != nil {
		body, _ = json.Marshal(map[string]string{"error": err.Error()})
	}
	return s.finish(ctx, key, IdempotencyStatusFailed, statusCode, contentType, body)
}

func (s *IdempotencyStore) finish(ctx context.Context, key string, status IdempotencyStatus, statusCode int, contentType string, body []byte) error {
	query, args, err := Builder().
		Update(idempotencyTable).
		Set("status", status).
		Set("response", body).
		Set("response_status", statusCode).
		Set("response_content_type", contentType).
		Set("updated_at", s.now()).
		Where(squirrel.Eq{"idempotency_key": key}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build finish query: %w", err)
	}
	if _, err := s.db.GetQuerier(ctx).Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("store %s response: %w", status, err)
	}
	return nil
}

func (s *IdempotencyStore) release(ctx context.Context, key string) error {
	query, args, err := Builder().
		Delete(idempotencyTable).
		Where(squirrel.Eq{"idempotency_key": key}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build release query: %w", err)
	}
	if _, err := s.db.GetQuerier(ctx).Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}

// CleanupExpired removes keys past their TTL. The worker calls it on a timer.
func (s *IdempotencyStore) CleanupExpired(ctx context.Context) (int64, error) {
	query, args, err := Builder().
		Delete(idempotencyTable).
		Where(squirrel.Lt{"expires_at": s.now()}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build cleanup query: %w", err)
	}
	tag, err := s.db.GetQuerier(ctx).Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("cleanup idempotency keys: %w", err)
	}
	return tag.RowsAffected(), nil
}

func marshalResponse(response any) ([]byte, error) {
	if response == nil {
		return nil, nil
	}
	b, err := json.Marshal(response)
	if err != nil {
		return nil, fmt.Errorf("marshal response: %w", err)
	}
	return b, nil
}
