package core

import (
	"context"
	"fmt"

	temporalclient "go.temporal.io/sdk/client"

	"github.com/runnable/runnable-api/internal/metrics"
	"github.com/runnable/runnable-api/internal/model"
	"github.com/runnable/runnable-api/internal/platform"
)

const taskQueue = "runnable-tasks"

// DelistNotice describes an image that lost all of its channel tags.
type DelistNotice struct {
	ImageID   string `json:"image_id"`
	ImageName string `json:"image_name"`
	OwnerID   string `json:"owner_id"`
	ActorID   string `json:"actor_id"`
}

// DelistNotifier delivers delist notifications to image owners.
type DelistNotifier interface {
	NotifyDelist(ctx context.Context, notice DelistNotice) error
}

// TemporalDelistNotifier hands notifications to the worker through a
// SendDelistEmailWorkflow execution.
type TemporalDelistNotifier struct {
	tc temporalclient.Client
}

func NewTemporalDelistNotifier(tc temporalclient.Client) *TemporalDelistNotifier {
	return &TemporalDelistNotifier{tc: tc}
}

func (n *TemporalDelistNotifier) NotifyDelist(ctx context.Context, notice DelistNotice) error {
	_, err := n.tc.ExecuteWorkflow(ctx, temporalclient.StartWorkflowOptions{
		ID:        fmt.Sprintf("delist-%s-%s", notice.ImageID, platform.NewID()),
		TaskQueue: taskQueue,
	}, "SendDelistEmailWorkflow", notice)
	if err != nil {
		return fmt.Errorf("start SendDelistEmailWorkflow for image %s: %w", notice.ImageID, err)
	}
	return nil
}

// IsDelisted reports whether republishing a container with containerTags
// tags onto an image with imageTags tags removes the image from every channel.
func IsDelisted(containerTags, imageTags int) bool {
	return containerTags == 0 && imageTags > 0
}

// checkDelist compares c with the image it commits back to and dispatches a
// notification when all tags were dropped. Failures are logged only.
func (s *ContainerService) checkDelist(ctx context.Context, c *model.Container, actor *model.User) {
	target := c.CommitBackTarget()
	if target == nil || s.notifier == nil {
		return
	}

	var img model.Image
	err := s.db.QueryRow(ctx, `SELECT id, owner_id, name, tags FROM images WHERE id = $1`, *target).
		Scan(&img.ID, &img.OwnerID, &img.Name, &img.Tags)
	if err != nil {
		s.logger.Warn().Err(err).Str("container_id", c.ID).Str("image_id", *target).Msg("delist check failed")
		return
	}
	if !IsDelisted(len(c.Tags), len(img.Tags)) {
		return
	}

	notice := DelistNotice{ImageID: img.ID, ImageName: img.Name, OwnerID: img.OwnerID}
	if actor != nil {
		notice.ActorID = actor.ID
	}
	ctx = context.WithoutCancel(ctx)
	s.async(func() {
		if err := s.notifier.NotifyDelist(ctx, notice); err != nil {
			metrics.DelistNotificationsTotal.WithLabelValues("failed").Inc()
			s.logger.Error().Err(err).Str("image_id", notice.ImageID).Msg("delist notification failed")
			return
		}
		metrics.DelistNotificationsTotal.WithLabelValues("sent").Inc()
	})
}
