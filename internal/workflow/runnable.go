package workflow

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/runnable/runnable-api/internal/activity"
	"github.com/runnable/runnable-api/internal/core"
)

// CleanupWorkflow reconciles stored containers with the build service. With
// firstRun set, long-expired unsaved containers are purged first.
func CleanupWorkflow(ctx workflow.Context, firstRun bool) error {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	var res core.CleanupResult
	err := workflow.ExecuteActivity(ctx, "ReconcileContainers", firstRun).Get(ctx, &res)
	if err != nil {
		return err
	}

	logger := workflow.GetLogger(ctx)
	logger.Info("cleanup finished",
		"firstRun", firstRun, "purged", res.Purged, "pruned", res.Pruned, "whitelisted", res.Whitelisted)
	return nil
}

// SyncImagesWorkflow makes sure the build service has pulled every image.
// A failing image does not stop the others.
func SyncImagesWorkflow(ctx workflow.Context) error {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	var ids []string
	if err := workflow.ExecuteActivity(ctx, "ListUnsyncedImages").Get(ctx, &ids); err != nil {
		return err
	}

	logger := workflow.GetLogger(ctx)
	failed := 0
	for _, id := range ids {
		if err := workflow.ExecuteActivity(ctx, "SyncImage", id).Get(ctx, nil); err != nil {
			logger.Warn("image sync failed", "imageID", id, "error", err)
			failed++
		}
	}
	logger.Info("image sync finished", "images", len(ids), "failed", failed)
	return nil
}

// SendDelistEmailWorkflow emails the owner of an image that lost all its
// channel tags.
func SendDelistEmailWorkflow(ctx workflow.Context, notice core.DelistNotice) error {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 5,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	var contact activity.UserContact
	if err := workflow.ExecuteActivity(ctx, "GetUserContact", notice.OwnerID).Get(ctx, &contact); err != nil {
		return err
	}

	logger := workflow.GetLogger(ctx)
	if contact.Email == "" {
		logger.Info("image owner has no email, skipping delist notice", "imageID", notice.ImageID, "ownerID", notice.OwnerID)
		return nil
	}

	return workflow.ExecuteActivity(ctx, "SendDelistEmail", activity.SendDelistEmailParams{
		To:        contact.Email,
		Username:  contact.Username,
		ImageName: notice.ImageName,
	}).Get(ctx, nil)
}
