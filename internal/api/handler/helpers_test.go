package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	"github.com/go-chi/chi/v5"

	mw "github.com/runnable/runnable-api/internal/api/middleware"
	"github.com/runnable/runnable-api/internal/model"
)

const (
	userID     = "5f0c8a1b2c3d4e5f607182aa"
	strangerID = "5f0c8a1b2c3d4e5f607182bb"
	runnableID = "5f0c8a1b2c3d4e5f60718201"
	imageID    = "5f0c8a1b2c3d4e5f60718202"

	// runnableIDEncoded is runnableID in its URL-safe form.
	runnableIDEncoded = "XwyKGyw9Tl9gcYIB"
)

// newRequest creates a new HTTP request with an optional JSON body.
func newRequest(method, target string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	r := httptest.NewRequest(method, target, &buf)
	r.Header.Set("Content-Type", "application/json")
	return r
}

// newRequestRaw creates a new HTTP request with a raw string body.
func newRequestRaw(method, target, body string) *http.Request {
	r := httptest.NewRequest(method, target, bytes.NewBufferString(body))
	r.Header.Set("Content-Type", "application/json")
	return r
}

// withChiURLParams adds chi URL parameters to the request context.
func withChiURLParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func withChiURLParam(r *http.Request, key, value string) *http.Request {
	return withChiURLParams(r, map[string]string{key: value})
}

// asUser injects an authenticated caller with the given permission level.
func asUser(r *http.Request, id string, level int) *http.Request {
	u := &model.User{ID: id, Username: "user-" + id[len(id)-2:], PermissionLevel: level}
	return r.WithContext(mw.WithUser(r.Context(), u, "token-"+id))
}

// decodeErrorResponse parses the JSON error response body into a map.
func decodeErrorResponse(rec *httptest.ResponseRecorder) map[string]string {
	var body map[string]string
	json.Unmarshal(rec.Body.Bytes(), &body)
	return body
}

func decodeBody(rec *httptest.ResponseRecorder) map[string]any {
	var body map[string]any
	json.Unmarshal(rec.Body.Bytes(), &body)
	return body
}
