package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	mw "github.com/runnable/runnable-api/internal/api/middleware"
	"github.com/runnable/runnable-api/internal/api/request"
	"github.com/runnable/runnable-api/internal/api/response"
	"github.com/runnable/runnable-api/internal/core"
)

// Image serves published runnables under /runnables.
type Image struct {
	publish *core.PublishService
	images  *core.ImageService
	errs    Errors
}

func NewImage(publish *core.PublishService, images *core.ImageService, errs Errors) *Image {
	return &Image{publish: publish, images: images, errs: errs}
}

// Publish godoc
//
//	@Summary		Publish a runnable as a new image
//	@Tags			Images
//	@Param			from	query		string	true	"Runnable ID"
//	@Success		201		{object}	model.Image
//	@Failure		403		{object}	response.ErrorBody
//	@Failure		409		{object}	response.ErrorBody
//	@Router			/runnables [post]
func (h *Image) Publish(w http.ResponseWriter, r *http.Request) {
	from, err := request.RequireQuery(r, "from")
	if err != nil {
		h.errs.BadRequest(w, err)
		return
	}
	containerID, err := request.RequireID(from)
	if err != nil {
		h.errs.BadRequest(w, err)
		return
	}

	img, err := h.publish.PublishImage(r.Context(), mw.GetUser(r.Context()), containerID)
	if err != nil {
		h.errs.Write(w, r, err)
		return
	}
	img.Files = nil
	response.WriteJSON(w, http.StatusCreated, img.Encoded())
}

// Get godoc
//
//	@Summary		Get an image
//	@Tags			Images
//	@Param			id	path		string	true	"Image ID"
//	@Success		200	{object}	model.Image
//	@Failure		404	{object}	response.ErrorBody
//	@Router			/runnables/{id} [get]
func (h *Image) Get(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		h.errs.BadRequest(w, err)
		return
	}

	img, err := h.images.GetByID(r.Context(), id)
	if err != nil {
		h.errs.Write(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, img.Encoded())
}

// Republish godoc
//
//	@Summary		Copy a runnable onto an existing image
//	@Tags			Images
//	@Param			id		path		string	true	"Image ID"
//	@Param			from	query		string	true	"Runnable ID"
//	@Success		200		{object}	model.Image
//	@Failure		403		{object}	response.ErrorBody
//	@Router			/runnables/{id} [put]
func (h *Image) Republish(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		h.errs.BadRequest(w, err)
		return
	}
	from, err := request.RequireQuery(r, "from")
	if err != nil {
		h.errs.BadRequest(w, err)
		return
	}
	containerID, err := request.RequireID(from)
	if err != nil {
		h.errs.BadRequest(w, err)
		return
	}

	img, err := h.publish.RepublishImage(r.Context(), mw.GetUser(r.Context()), id, containerID)
	if err != nil {
		h.errs.Write(w, r, err)
		return
	}
	img.Files = nil
	response.WriteJSON(w, http.StatusOK, img.Encoded())
}

// Delete godoc
//
//	@Summary		Delete an image
//	@Tags			Images
//	@Param			id	path		string	true	"Image ID"
//	@Success		200	{object}	response.MessageBody
//	@Failure		403	{object}	response.ErrorBody
//	@Router			/runnables/{id} [delete]
func (h *Image) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		h.errs.BadRequest(w, err)
		return
	}

	if err := h.publish.RemoveImage(r.Context(), mw.GetUser(r.Context()), id); err != nil {
		h.errs.Write(w, r, err)
		return
	}
	response.WriteMessage(w, http.StatusOK, "runnable deleted")
}

// Sync godoc
//
//	@Summary		Make sure the build service has the latest revision
//	@Tags			Images
//	@Param			id	path	string	true	"Image ID"
//	@Success		204
//	@Failure		502	{object}	response.ErrorBody
//	@Router			/runnables/{id}/sync [post]
func (h *Image) Sync(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		h.errs.BadRequest(w, err)
		return
	}

	if err := h.images.Sync(r.Context(), id); err != nil {
		h.errs.Write(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Vote godoc
//
//	@Summary		Vote for an image
//	@Tags			Images
//	@Param			id	path		string	true	"Image ID"
//	@Success		201	{object}	response.MessageBody
//	@Failure		403	{object}	response.ErrorBody
//	@Failure		409	{object}	response.ErrorBody
//	@Router			/runnables/{id}/votes [post]
func (h *Image) Vote(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		h.errs.BadRequest(w, err)
		return
	}

	if err := h.images.Vote(r.Context(), mw.GetUser(r.Context()).ID, id); err != nil {
		h.errs.Write(w, r, err)
		return
	}
	response.WriteMessage(w, http.StatusCreated, "vote recorded")
}

// IncrementStat godoc
//
//	@Summary		Increment a usage counter
//	@Tags			Images
//	@Param			id		path		string	true	"Image ID"
//	@Param			stat	path		string	true	"copies, pastes, cuts, runs or views"
//	@Success		200		{object}	map[string]int
//	@Failure		400		{object}	response.ErrorBody
//	@Router			/runnables/{id}/stats/{stat} [put]
func (h *Image) IncrementStat(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		h.errs.BadRequest(w, err)
		return
	}
	stat := chi.URLParam(r, "stat")

	n, err := h.images.IncrementStat(r.Context(), id, stat)
	if err != nil {
		h.errs.Write(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]int{stat: n})
}
