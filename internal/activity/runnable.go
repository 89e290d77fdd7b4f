package activity

import (
	"context"
	"errors"
	"fmt"

	"go.temporal.io/sdk/temporal"

	"github.com/runnable/runnable-api/internal/core"
	"github.com/runnable/runnable-api/internal/model"
)

// Reconciler runs one cleanup reconciliation. *core.CleanupService
// satisfies this interface.
type Reconciler interface {
	Reconcile(ctx context.Context, firstRun bool) (*core.CleanupResult, error)
}

// ImageSyncer provisions images on the build service. *core.ImageService
// satisfies this interface.
type ImageSyncer interface {
	ListUnsynced(ctx context.Context) ([]string, error)
	Sync(ctx context.Context, id string) error
}

// UserLookup loads a single user. *core.UserService satisfies this interface.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
}

// Runnable contains activities that drive the runnable services on behalf
// of scheduled workflows.
type Runnable struct {
	cleanup Reconciler
	images  ImageSyncer
	users   UserLookup
}

func NewRunnable(cleanup Reconciler, images ImageSyncer, users UserLookup) *Runnable {
	return &Runnable{cleanup: cleanup, images: images, users: users}
}

// ReconcileContainers prunes containers the build service no longer needs
// to keep alive.
func (a *Runnable) ReconcileContainers(ctx context.Context, firstRun bool) (*core.CleanupResult, error) {
	res, err := a.cleanup.Reconcile(ctx, firstRun)
	if err != nil {
		return nil, fmt.Errorf("reconcile containers: %w", err)
	}
	return res, nil
}

// ListUnsyncedImages returns the IDs of images not yet pulled by the build
// service.
func (a *Runnable) ListUnsyncedImages(ctx context.Context) ([]string, error) {
	return a.images.ListUnsynced(ctx)
}

// SyncImage provisions one image. A missing image is not retried.
func (a *Runnable) SyncImage(ctx context.Context, imageID string) error {
	err := a.images.Sync(ctx, imageID)
	if errors.Is(err, core.ErrNotFound) {
		return temporal.NewNonRetryableApplicationError(err.Error(), "NOT_FOUND", err)
	}
	return err
}

// UserContact is the addressable part of a user.
type UserContact struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

// GetUserContact returns the name and email of a user. A missing user is
// not retried.
func (a *Runnable) GetUserContact(ctx context.Context, userID string) (*UserContact, error) {
	u, err := a.users.GetByID(ctx, userID)
	if errors.Is(err, core.ErrNotFound) {
		return nil, temporal.NewNonRetryableApplicationError(err.Error(), "NOT_FOUND", err)
	}
	if err != nil {
		return nil, err
	}
	return &UserContact{Username: u.Username, Email: u.Email}, nil
}
