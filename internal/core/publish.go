package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/runnable/runnable-api/internal/harbourmaster"
	"github.com/runnable/runnable-api/internal/metrics"
	"github.com/runnable/runnable-api/internal/model"
	"github.com/runnable/runnable-api/internal/platform"
)

// ContainerUpdate holds the fields a client may change on a container.
// Nil fields are left untouched.
type ContainerUpdate struct {
	Name            *string
	Description     *string
	SpecificationID *string
	Saved           *bool
	StartCmd        *string
	BuildCmd        *string
	ServiceCmds     *string
	OutputFormat    *string
	Status          *string
}

// Apply sets the non-nil fields on c.
func (u ContainerUpdate) Apply(c *model.Container) {
	if u.Name != nil {
		c.Name = *u.Name
	}
	if u.Description != nil {
		c.Description = *u.Description
	}
	if u.SpecificationID != nil {
		c.SpecificationID = u.SpecificationID
	}
	if u.Saved != nil {
		c.Saved = *u.Saved
	}
	if u.StartCmd != nil {
		c.StartCmd = *u.StartCmd
	}
	if u.BuildCmd != nil {
		c.BuildCmd = *u.BuildCmd
	}
	if u.ServiceCmds != nil {
		c.ServiceCmds = *u.ServiceCmds
	}
	if u.OutputFormat != nil {
		c.OutputFormat = *u.OutputFormat
	}
}

// PublishService drives containers through commits into images. The commit
// guard on the container row is its only concurrency control.
type PublishService struct {
	containers *ContainerService
	images     *ImageService
	channels   *ChannelService
	build      BuildService
	logger     zerolog.Logger
}

func NewPublishService(containers *ContainerService, images *ImageService, channels *ChannelService, build BuildService, logger zerolog.Logger) *PublishService {
	return &PublishService{
		containers: containers,
		images:     images,
		channels:   channels,
		build:      build,
		logger:     logger.With().Str("component", "publish").Logger(),
	}
}

func canEdit(actor *model.User, ownerID string) bool {
	return actor != nil && (actor.ID == ownerID || actor.IsModerator())
}

func canRemove(actor *model.User, ownerID string) bool {
	return actor != nil && (actor.ID == ownerID || actor.CanRemoveOthers())
}

// GetContainer returns a container the actor owns, or any container for
// moderators.
func (s *PublishService) GetContainer(ctx context.Context, actor *model.User, id string) (*model.Container, error) {
	c, err := s.containers.GetWithFiles(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canEdit(actor, c.OwnerID) {
		return nil, ErrPermissionDenied
	}
	return c, nil
}

// UpdateContainer applies update to the container and, when a commit status
// is requested, commits it through the build service and materializes the
// resulting image. token is the caller's API token, forwarded on commit.
func (s *PublishService) UpdateContainer(ctx context.Context, actor *model.User, token, id string, update ContainerUpdate) (*model.Container, error) {
	c, err := s.containers.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canEdit(actor, c.OwnerID) {
		return nil, ErrPermissionDenied
	}

	prevName, prevStatus := c.Name, c.Status
	update.Apply(c)

	if update.Status == nil || !model.IsCommitStatus(*update.Status) {
		if update.Status != nil && *update.Status != c.Status {
			return nil, fmt.Errorf("%w: status can only move to a commit state", ErrInvalidInput)
		}
		c.Env = c.DeriveEnv()
		if err := s.containers.Save(ctx, c); err != nil {
			return nil, err
		}
		return c, nil
	}

	return s.commit(ctx, actor, token, c, *update.Status, prevName, prevStatus)
}

// commit claims c for status and sees the commit through. Any failure after
// the claim restores prevName and prevStatus so the row reads as if the
// commit never started.
func (s *PublishService) commit(ctx context.Context, actor *model.User, token string, c *model.Container, status, prevName, prevStatus string) (*model.Container, error) {
	kind := "new"
	var target *model.Image
	if status == model.StatusCommittingBack {
		kind = "back"
		targetID := c.CommitBackTarget()
		if targetID == nil {
			metrics.CommitsTotal.WithLabelValues(kind, "error").Inc()
			return nil, fmt.Errorf("%w: runnable has no published image to commit back to", ErrInvalidInput)
		}
		img, err := s.images.GetByID(ctx, *targetID)
		if err != nil {
			metrics.CommitsTotal.WithLabelValues(kind, "error").Inc()
			return nil, err
		}
		if !canEdit(actor, img.OwnerID) {
			metrics.CommitsTotal.WithLabelValues(kind, "error").Inc()
			return nil, ErrPermissionDenied
		}
		target = img
	}

	claimed, err := s.containers.AtomicUpdateCommitStatusAndName(ctx, c, status, actor)
	if err != nil {
		metrics.CommitsTotal.WithLabelValues(kind, commitOutcome(err)).Inc()
		return nil, err
	}
	c.Status = claimed.Status
	c.CommitError = ""
	c.Tags = claimed.Tags

	// A sent commit is seen through even if the client goes away.
	ctx = context.WithoutCancel(ctx)
	log := s.logger.With().Str("container_id", c.ID).Str("status", status).Logger()
	fail := func(cause error) {
		s.revert(ctx, log, c.ID, status, prevName, prevStatus, cause)
	}

	if err := s.build.CommitContainer(ctx, c.ServicesToken, c.Encoded(), token); err != nil {
		fail(err)
		metrics.CommitsTotal.WithLabelValues(kind, commitOutcome(err)).Inc()
		return nil, fmt.Errorf("commit container %s: %w", c.ID, err)
	}

	c.Env = c.DeriveEnv()
	if err := s.build.UpdateRoute(ctx, c.ServicesToken, c.WebToken); err != nil {
		log.Warn().Err(err).Msg("route update after commit failed")
	}
	if err := s.containers.Save(ctx, c); err != nil {
		fail(err)
		metrics.CommitsTotal.WithLabelValues(kind, "error").Inc()
		return nil, err
	}

	full, err := s.containers.GetWithFiles(ctx, c.ID)
	if err != nil {
		fail(err)
		metrics.CommitsTotal.WithLabelValues(kind, "error").Inc()
		return nil, err
	}

	var img *model.Image
	if target != nil {
		img, err = s.images.UpdateFromContainer(ctx, target, full)
	} else {
		img, err = s.images.CreateFromContainer(ctx, full)
	}
	if err != nil {
		fail(err)
		metrics.CommitsTotal.WithLabelValues(kind, commitOutcome(err)).Inc()
		return nil, err
	}

	if err := s.containers.FinishCommit(ctx, c.ID, img.ID); err != nil {
		fail(err)
		metrics.CommitsTotal.WithLabelValues(kind, "error").Inc()
		return nil, err
	}
	full.Status = model.StatusDraft
	full.CommitError = ""
	full.ChildID = &img.ID

	metrics.CommitsTotal.WithLabelValues(kind, "ok").Inc()
	log.Info().Str("image_id", img.ID).Int("revisions", len(img.Revisions)).Msg("container committed")
	return full, nil
}

// revert records cause on the container and releases the commit claim.
func (s *PublishService) revert(ctx context.Context, log zerolog.Logger, id, claimed, prevName, prevStatus string, cause error) {
	if err := s.containers.RevertCommit(ctx, id, claimed, prevName, prevStatus, cause.Error()); err != nil {
		log.Error().Err(err).AnErr("cause", cause).Msg("could not revert failed commit")
		return
	}
	log.Warn().Err(cause).Msg("commit failed")
}

func commitOutcome(err error) string {
	var se *harbourmaster.StatusError
	switch {
	case errors.Is(err, ErrNameConflict), errors.Is(err, ErrDuplicate):
		return "conflict"
	case errors.Is(err, ErrAlreadyInProgress):
		return "in_progress"
	case errors.Is(err, harbourmaster.ErrUpstreamUnavailable), errors.As(err, &se):
		return "upstream"
	default:
		return "error"
	}
}

// Fork creates a container for actor from an image, or from the default
// image of a channel when from names a channel.
func (s *PublishService) Fork(ctx context.Context, actor *model.User, from string, saved bool) (*model.Container, error) {
	img, err := s.resolveForkSource(ctx, from)
	if err != nil {
		return nil, err
	}
	return s.containers.CreateFromImage(ctx, actor.ID, img, saved)
}

func (s *PublishService) resolveForkSource(ctx context.Context, from string) (*model.Image, error) {
	if id, err := platform.ResolveID(from); err == nil {
		img, err := s.images.GetWithFiles(ctx, id)
		if err == nil || !errors.Is(err, ErrNotFound) {
			return img, err
		}
	}

	ch, err := s.channels.GetByName(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("resolve runnable %q: %w", from, ErrNotFound)
	}
	if ch.BaseImageID != nil {
		return s.images.GetWithFiles(ctx, *ch.BaseImageID)
	}
	return s.images.FirstInChannel(ctx, ch.ID)
}

// RemoveContainer deletes a container and decommissions its live instance.
func (s *PublishService) RemoveContainer(ctx context.Context, actor *model.User, id string) error {
	c, err := s.containers.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !canRemove(actor, c.OwnerID) {
		return ErrPermissionDenied
	}
	if err := s.containers.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.build.DeleteContainer(ctx, c.ServicesToken); err != nil {
		s.logger.Warn().Err(err).Str("container_id", id).Msg("could not decommission live container")
	}
	return nil
}

// TagContainer adds a channel tag to a container the actor may edit.
func (s *PublishService) TagContainer(ctx context.Context, actor *model.User, id, channel string) (*model.Container, error) {
	c, err := s.containers.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canEdit(actor, c.OwnerID) {
		return nil, ErrPermissionDenied
	}
	ch, err := s.resolveChannel(ctx, channel)
	if err != nil {
		return nil, err
	}
	return s.containers.TagWithChannel(ctx, id, ch)
}

func (s *PublishService) resolveChannel(ctx context.Context, ref string) (*model.Channel, error) {
	if id, err := platform.ResolveID(ref); err == nil {
		if ch, err := s.channels.GetByID(ctx, id); err == nil {
			return ch, nil
		}
	}
	return s.channels.GetByName(ctx, ref)
}

func (s *PublishService) UntagContainer(ctx context.Context, actor *model.User, id, tagID string) error {
	c, err := s.containers.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !canEdit(actor, c.OwnerID) {
		return ErrPermissionDenied
	}
	return s.containers.RemoveTag(ctx, id, tagID)
}

// PublishImage publishes a container directly as a new image.
func (s *PublishService) PublishImage(ctx context.Context, actor *model.User, fromContainer string) (*model.Image, error) {
	c, err := s.containers.GetWithFiles(ctx, fromContainer)
	if err != nil {
		return nil, err
	}
	if !canEdit(actor, c.OwnerID) {
		return nil, ErrPermissionDenied
	}
	return s.images.CreateFromContainer(ctx, c)
}

// RepublishImage copies a container onto an existing image. Moderators may
// republish any container; owners only their own.
func (s *PublishService) RepublishImage(ctx context.Context, actor *model.User, imageID, fromContainer string) (*model.Image, error) {
	if actor == nil {
		return nil, ErrPermissionDenied
	}
	img, err := s.images.GetByID(ctx, imageID)
	if err != nil {
		return nil, err
	}
	su := actor.ID != img.OwnerID
	if su && !actor.IsModerator() {
		return nil, ErrPermissionDenied
	}

	c, err := s.containers.GetWithFiles(ctx, fromContainer)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("source container to copy from does not exist: %w", ErrPermissionDenied)
	}
	if err != nil {
		return nil, err
	}
	if !su && c.OwnerID != img.OwnerID {
		return nil, fmt.Errorf("%w: source container owner does not match image owner", ErrInvalidInput)
	}
	return s.images.UpdateFromContainer(ctx, img, c)
}

func (s *PublishService) RemoveImage(ctx context.Context, actor *model.User, id string) error {
	img, err := s.images.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !canRemove(actor, img.OwnerID) {
		return ErrPermissionDenied
	}
	return s.images.Delete(ctx, id)
}
