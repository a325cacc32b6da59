package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backoffice/internal/core/apperror"
	appctx "backoffice/internal/core/context"
	"backoffice/internal/infrastructure/storage/postgres"
)

type fakeStore struct {
	mu      sync.Mutex
	replays map[string]*postgres.IdempotencyReplay
	hashes  map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{replays: map[string]*postgres.IdempotencyReplay{}, hashes: map[string]string{}}
}

func (s *fakeStore) AcquireKey(_ context.Context, key, _, _, requestHash string) (*postgres.IdempotencyReplay, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.hashes[key]; ok {
		if h != requestHash {
			return nil, apperror.NewIdempotencyMismatch(key)
		}
		if r := s.replays[key]; r != nil {
			return r, nil
		}
		return nil, apperror.NewIdempotencyConflict(key)
	}
	s.hashes[key] = requestHash
	return nil, nil
}

func (s *fakeStore) store(key string, statusCode int, contentType string, response any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var body []byte
	if response != nil {
		var err error
		if body, err = json.Marshal(response); err != nil {
			return err
		}
	}
	s.replays[key] = &postgres.IdempotencyReplay{StatusCode: statusCode, ContentType: contentType, Body: body}
	return nil
}

func (s *fakeStore) CompleteKey(_ context.Context, key string, statusCode int, contentType string, response any) error {
	return s.store(key, statusCode, contentType, response)
}

func (s *fakeStore) FailKey(_ context.Context, key string, statusCode int, contentType string, response any) error {
	return s.store(key, statusCode, contentType, response)
}

type staticValidator struct{}

func (staticValidator) ValidateToken(tok string) (*appctx.UserContext, error) {
	if tok != "good" {
		return nil, errors.New("bad token")
	}
	return &appctx.UserContext{UserID: "u-1"}, nil
}

func newEngine(store IdempotencyStore, calls *int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Recovery(), Trace(), ErrorHandler())

	g := r.Group("", Auth(staticValidator{}), Idempotency(store))
	g.POST("/sales", func(c *gin.Context) {
		*calls++
		body := gin.H{"n": *calls}
		CompleteIdempotency(c, http.StatusCreated, "application/json", body)
		c.JSON(http.StatusCreated, body)
	})
	g.POST("/fail", func(c *gin.Context) {
		*calls++
		_ = c.Error(apperror.NewInsufficientStock("unit-1", 3, 1))
		c.Abort()
	})
	g.POST("/panic", func(c *gin.Context) {
		panic("boom")
	})
	return r
}

func send(r *gin.Engine, path, key, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer good")
	if key != "" {
		req.Header.Set(HeaderIdempotencyKey, key)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestIdempotency(t *testing.T) {
	t.Run("replays the first response", func(t *testing.T) {
		calls := 0
		r := newEngine(newFakeStore(), &calls)

		first := send(r, "/sales", "k-1", `{"a":1}`)
		second := send(r, "/sales", "k-1", `{"a":1}`)

		require.Equal(t, http.StatusCreated, first.Code)
		assert.Equal(t, http.StatusCreated, second.Code)
		assert.JSONEq(t, first.Body.String(), second.Body.String())
		assert.Equal(t, 1, calls)
	})

	t.Run("different body under the same key conflicts", func(t *testing.T) {
		calls := 0
		r := newEngine(newFakeStore(), &calls)

		send(r, "/sales", "k-2", `{"a":1}`)
		w := send(r, "/sales", "k-2", `{"a":2}`)

		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, 1, calls)
	})

	t.Run("failed responses are replayed", func(t *testing.T) {
		calls := 0
		r := newEngine(newFakeStore(), &calls)

		first := send(r, "/fail", "k-3", `{}`)
		second := send(r, "/fail", "k-3", `{}`)

		require.Equal(t, http.StatusUnprocessableEntity, first.Code)
		assert.Equal(t, http.StatusUnprocessableEntity, second.Code)
		assert.Contains(t, second.Body.String(), apperror.CodeInsufficientStock)
		assert.Equal(t, 1, calls)
	})

	t.Run("requests without a key are not tracked", func(t *testing.T) {
		calls := 0
		r := newEngine(newFakeStore(), &calls)

		send(r, "/sales", "", `{}`)
		send(r, "/sales", "", `{}`)
		assert.Equal(t, 2, calls)
	})
}

func TestRecoveryRendersInternalError(t *testing.T) {
	calls := 0
	r := newEngine(newFakeStore(), &calls)

	w := send(r, "/panic", "", `{}`)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, apperror.CodeInternal, body["code"])
	assert.NotContains(t, w.Body.String(), "boom")
	assert.NotEmpty(t, w.Header().Get(HeaderRequestID))
}
