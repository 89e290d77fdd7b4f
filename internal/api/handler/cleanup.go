package handler

import (
	"net/http"

	mw "github.com/runnable/runnable-api/internal/api/middleware"
	"github.com/runnable/runnable-api/internal/api/request"
	"github.com/runnable/runnable-api/internal/api/response"
	"github.com/runnable/runnable-api/internal/core"
)

type Cleanup struct {
	svc  *core.CleanupService
	errs Errors
}

func NewCleanup(svc *core.CleanupService, errs Errors) *Cleanup {
	return &Cleanup{svc: svc, errs: errs}
}

type cleanupResponse struct {
	Message string `json:"message"`
	*core.CleanupResult
}

// Run godoc
//
// When no container qualifies for the whitelist, nothing is pruned and the
// build service is not called; the response then reports whitelisted 0.
//
//	@Summary		Reconcile stored containers with the build service
//	@Description	An empty whitelist is a no-op: no containers are deleted.
//	@Tags			Cleanup
//	@Param			firstRun	query		bool	false	"Also purge long-expired unsaved runnables"
//	@Success		200			{object}	cleanupResponse
//	@Failure		403			{object}	response.ErrorBody
//	@Failure		502			{object}	response.ErrorBody
//	@Router			/cleanup [get]
func (h *Cleanup) Run(w http.ResponseWriter, r *http.Request) {
	firstRun, err := request.QueryBool(r, "firstRun")
	if err != nil {
		h.errs.BadRequest(w, err)
		return
	}

	res, err := h.svc.Run(r.Context(), mw.GetUser(r.Context()), firstRun)
	if err != nil {
		h.errs.Write(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, cleanupResponse{Message: core.CleanupMessage, CleanupResult: res})
}
