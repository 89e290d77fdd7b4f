package core

import (
	"time"

	"github.com/rs/zerolog"
	temporalclient "go.temporal.io/sdk/client"
)

// Options carries the deployment settings the services need.
type Options struct {
	DockerRegistry   string
	ContainerTimeout time.Duration
	CleanupRetention time.Duration
}

type Services struct {
	Conflicts *NameConflictChecker
	Container *ContainerService
	Image     *ImageService
	Channel   *ChannelService
	User      *UserService
	Publish   *PublishService
	Cleanup   *CleanupService
}

func NewServices(db DB, tc temporalclient.Client, build BuildService, opts Options, logger zerolog.Logger) *Services {
	conflicts := NewNameConflictChecker(db)
	channels := NewChannelService(db)
	users := NewUserService(db)

	var notifier DelistNotifier
	if tc != nil {
		notifier = NewTemporalDelistNotifier(tc)
	}

	containers := NewContainerService(db, build, conflicts, notifier, opts.DockerRegistry, logger)
	images := NewImageService(db, build, conflicts, containers, channels, opts.DockerRegistry, logger)

	return &Services{
		Conflicts: conflicts,
		Container: containers,
		Image:     images,
		Channel:   channels,
		User:      users,
		Publish:   NewPublishService(containers, images, channels, build, logger),
		Cleanup:   NewCleanupService(containers, users, build, opts.ContainerTimeout, opts.CleanupRetention, logger),
	}
}
