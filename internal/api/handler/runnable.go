package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	mw "github.com/runnable/runnable-api/internal/api/middleware"
	"github.com/runnable/runnable-api/internal/api/request"
	"github.com/runnable/runnable-api/internal/api/response"
	"github.com/runnable/runnable-api/internal/core"
	"github.com/runnable/runnable-api/internal/model"
)

// Runnable serves the caller's containers under /users/me/runnables.
type Runnable struct {
	publish    *core.PublishService
	containers *core.ContainerService
	errs       Errors
}

func NewRunnable(publish *core.PublishService, containers *core.ContainerService, errs Errors) *Runnable {
	return &Runnable{publish: publish, containers: containers, errs: errs}
}

func encodeContainers(cs []model.Container) []*model.Container {
	out := make([]*model.Container, len(cs))
	for i := range cs {
		out[i] = cs[i].Encoded()
	}
	return out
}

// Fork godoc
//
//	@Summary		Create a runnable from an image or channel
//	@Tags			Runnables
//	@Param			from	query		string	true	"Image ID or channel name"
//	@Param			saved	query		bool	false	"Keep the runnable past cleanup"
//	@Success		201		{object}	model.Container
//	@Failure		404		{object}	response.ErrorBody
//	@Router			/users/me/runnables [post]
func (h *Runnable) Fork(w http.ResponseWriter, r *http.Request) {
	from, err := request.RequireQuery(r, "from")
	if err != nil {
		h.errs.BadRequest(w, err)
		return
	}
	saved, err := request.QueryBool(r, "saved")
	if err != nil {
		h.errs.BadRequest(w, err)
		return
	}

	c, err := h.publish.Fork(r.Context(), mw.GetUser(r.Context()), from, saved)
	if err != nil {
		h.errs.Write(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, c.Encoded())
}

// List godoc
//
//	@Summary		List the caller's runnables
//	@Tags			Runnables
//	@Success		200	{array}	model.Container
//	@Router			/users/me/runnables [get]
func (h *Runnable) List(w http.ResponseWriter, r *http.Request) {
	cs, err := h.containers.ListByOwner(r.Context(), mw.GetUser(r.Context()).ID)
	if err != nil {
		h.errs.Write(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, encodeContainers(cs))
}

// Get godoc
//
//	@Summary		Get one of the caller's runnables
//	@Tags			Runnables
//	@Param			id	path		string	true	"Runnable ID"
//	@Success		200	{object}	model.Container
//	@Failure		403	{object}	response.ErrorBody
//	@Failure		404	{object}	response.ErrorBody
//	@Router			/users/me/runnables/{id} [get]
func (h *Runnable) Get(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		h.errs.BadRequest(w, err)
		return
	}

	c, err := h.publish.GetContainer(r.Context(), mw.GetUser(r.Context()), id)
	if err != nil {
		h.errs.Write(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, c.Encoded())
}

// Update godoc
//
//	@Summary		Update a runnable, or commit it with a commit status
//	@Description	Setting status to "Committing new" publishes a new image; "Committing back" republishes onto the image it came from.
//	@Tags			Runnables
//	@Param			id		path		string					true	"Runnable ID"
//	@Param			body	body		request.UpdateRunnable	true	"Fields to change"
//	@Success		200		{object}	model.Container
//	@Failure		403		{object}	response.ErrorBody
//	@Failure		404		{object}	response.ErrorBody
//	@Failure		409		{object}	response.ErrorBody
//	@Failure		502		{object}	response.ErrorBody
//	@Router			/users/me/runnables/{id} [patch]
func (h *Runnable) Update(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		h.errs.BadRequest(w, err)
		return
	}

	var req request.UpdateRunnable
	if err := request.Decode(r, &req); err != nil {
		h.errs.BadRequest(w, err)
		return
	}

	update := core.ContainerUpdate{
		Name:            req.Name,
		Description:     req.Description,
		SpecificationID: req.Specification,
		Saved:           req.Saved,
		StartCmd:        req.StartCmd,
		BuildCmd:        req.BuildCmd,
		ServiceCmds:     req.ServiceCmds,
		OutputFormat:    req.OutputFormat,
		Status:          req.Status,
	}
	ctx := r.Context()
	c, err := h.publish.UpdateContainer(ctx, mw.GetUser(ctx), mw.GetToken(ctx), id, update)
	if err != nil {
		h.errs.Write(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, c.Encoded())
}

// Delete godoc
//
//	@Summary		Delete a runnable
//	@Tags			Runnables
//	@Param			id	path		string	true	"Runnable ID"
//	@Success		200	{object}	response.MessageBody
//	@Failure		403	{object}	response.ErrorBody
//	@Router			/users/me/runnables/{id} [delete]
func (h *Runnable) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		h.errs.BadRequest(w, err)
		return
	}

	if err := h.publish.RemoveContainer(r.Context(), mw.GetUser(r.Context()), id); err != nil {
		h.errs.Write(w, r, err)
		return
	}
	response.WriteMessage(w, http.StatusOK, "runnable deleted")
}

// Tag godoc
//
//	@Summary		Tag a runnable with a channel
//	@Tags			Runnables
//	@Param			id		path		string				true	"Runnable ID"
//	@Param			body	body		request.TagRunnable	true	"Channel"
//	@Success		201		{object}	model.Container
//	@Failure		409		{object}	response.ErrorBody
//	@Router			/users/me/runnables/{id}/tags [post]
func (h *Runnable) Tag(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		h.errs.BadRequest(w, err)
		return
	}

	var req request.TagRunnable
	if err := request.Decode(r, &req); err != nil {
		h.errs.BadRequest(w, err)
		return
	}

	c, err := h.publish.TagContainer(r.Context(), mw.GetUser(r.Context()), id, req.Name)
	if err != nil {
		h.errs.Write(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, c.Encoded())
}

// Untag godoc
//
//	@Summary		Remove a channel tag from a runnable
//	@Tags			Runnables
//	@Param			id		path	string	true	"Runnable ID"
//	@Param			tagId	path	string	true	"Tag ID"
//	@Success		204
//	@Router			/users/me/runnables/{id}/tags/{tagId} [delete]
func (h *Runnable) Untag(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		h.errs.BadRequest(w, err)
		return
	}
	tagID := chi.URLParam(r, "tagId")

	if err := h.publish.UntagContainer(r.Context(), mw.GetUser(r.Context()), id, tagID); err != nil {
		h.errs.Write(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
