package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/runnable/runnable-api/internal/core"
	"github.com/runnable/runnable-api/internal/model"
)

func newCleanupHandler(db *handlerMockDB, build *mockBuild) *Cleanup {
	svc := newTestServices(db, build)
	return NewCleanup(svc.Cleanup, Errors{})
}

func TestCleanupRun_RequiresModerator(t *testing.T) {
	h := newCleanupHandler(&handlerMockDB{}, &mockBuild{})
	rec := httptest.NewRecorder()
	r := asUser(newRequest(http.MethodGet, "/cleanup", nil), userID, model.PermissionAdmin)

	h.Run(rec, r)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, decodeErrorResponse(rec)["message"], "permission denied")
}

func TestCleanupRun_InvalidFirstRun(t *testing.T) {
	h := newCleanupHandler(&handlerMockDB{}, &mockBuild{})
	rec := httptest.NewRecorder()
	r := asUser(newRequest(http.MethodGet, "/cleanup?firstRun=soon", nil), userID, model.PermissionModerator)

	h.Run(rec, r)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCleanupRun_EmptyWhitelist(t *testing.T) {
	db := &handlerMockDB{}
	db.On("Query", mock.Anything, sqlLike("WHERE saved OR created_at"), mock.Anything).Return(emptyRows{}, nil)
	build := &mockBuild{}
	h := newCleanupHandler(db, build)
	rec := httptest.NewRecorder()
	r := asUser(newRequest(http.MethodGet, "/cleanup", nil), userID, model.PermissionModerator)

	h.Run(rec, r)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(rec)
	assert.Equal(t, core.CleanupMessage, body["message"])
	assert.Equal(t, float64(0), body["whitelisted"])
	assert.Equal(t, float64(0), body["pruned"])
	build.AssertNotCalled(t, "Cleanup", mock.Anything, mock.Anything)
}
