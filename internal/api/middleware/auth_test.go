package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runnable/runnable-api/internal/model"
)

type fakeUsers map[string]*model.User

func (f fakeUsers) GetByTokenHash(_ context.Context, hash string) (*model.User, error) {
	if u, ok := f[hash]; ok {
		return u, nil
	}
	return nil, errors.New("not found")
}

func decodeMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["message"]
}

func TestAuth_MissingToken(t *testing.T) {
	// Auth checks the header before any lookup, so nil users is safe here.
	handler := Auth(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/users/me/runnables", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "access token required", decodeMessage(t, rec))
}

func TestAuth_UnknownToken(t *testing.T) {
	handler := Auth(fakeUsers{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	req := httptest.NewRequest("GET", "/users/me/runnables", nil)
	req.Header.Set(TokenHeader, "nope")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid access token", decodeMessage(t, rec))
}

func TestAuth_ValidToken(t *testing.T) {
	user := &model.User{ID: "u1", PermissionLevel: model.PermissionRegistered}
	users := fakeUsers{HashToken("secret"): user}

	var gotUser *model.User
	var gotToken string
	handler := Auth(users)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = GetUser(r.Context())
		gotToken = GetToken(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest("GET", "/users/me/runnables", nil)
	req.Header.Set(TokenHeader, "secret")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Same(t, user, gotUser)
	assert.Equal(t, "secret", gotToken)
}

func TestHashToken(t *testing.T) {
	assert.Len(t, HashToken("test-api-key-12345"), 64) // SHA-256 = 64 hex chars
	assert.Equal(t, HashToken("a"), HashToken("a"))
	assert.NotEqual(t, HashToken("a"), HashToken("b"))
}

func TestGetUser_Empty(t *testing.T) {
	assert.Nil(t, GetUser(context.Background()))
	assert.Empty(t, GetToken(context.Background()))
}

func TestCrash_RecoversAndSignals(t *testing.T) {
	var crashed any
	handler := Crash(zerolog.Nop(), func(rec any) { crashed = rec })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("boom")
		}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal server error", decodeMessage(t, rec))
	assert.Equal(t, "boom", crashed)
}

func TestCrash_PassesThrough(t *testing.T) {
	called := false
	handler := Crash(zerolog.Nop(), func(any) { called = true })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusAccepted)
		}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.False(t, called)
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/runnables/abc", nil))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "GET", entry["method"])
	assert.Equal(t, "/runnables/abc", entry["path"])
	assert.Equal(t, float64(http.StatusTeapot), entry["status"])
}

func TestMetrics_RecordsRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Metrics)
	r.Get("/runnables/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/runnables/abc", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatusWriter_FirstStatusWins(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := &statusWriter{ResponseWriter: rec, status: http.StatusOK}

	sw.WriteHeader(http.StatusCreated)
	sw.WriteHeader(http.StatusInternalServerError)

	assert.Equal(t, http.StatusCreated, sw.status)
}
