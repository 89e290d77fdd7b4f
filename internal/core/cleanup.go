package core

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/runnable/runnable-api/internal/metrics"
	"github.com/runnable/runnable-api/internal/model"
)

// CleanupMessage is returned to moderators after a successful cleanup.
const CleanupMessage = "successfuly sent prune request to harbourmaster and cleaned mongodb"

// CleanupResult summarizes one reconciliation run.
type CleanupResult struct {
	Purged      int64 `json:"purged"`
	Pruned      int64 `json:"pruned"`
	Whitelisted int   `json:"whitelisted"`
}

// CleanupService reconciles stored containers with the build service's
// live set.
type CleanupService struct {
	containers *ContainerService
	users      *UserService
	build      BuildService
	logger     zerolog.Logger

	containerTimeout time.Duration
	retention        time.Duration
	now              func() time.Time
}

func NewCleanupService(containers *ContainerService, users *UserService, build BuildService, containerTimeout, retention time.Duration, logger zerolog.Logger) *CleanupService {
	return &CleanupService{
		containers:       containers,
		users:            users,
		build:            build,
		logger:           logger.With().Str("component", "cleanup").Logger(),
		containerTimeout: containerTimeout,
		retention:        retention,
		now:              time.Now,
	}
}

// Run reconciles on behalf of actor, who must be a moderator.
func (s *CleanupService) Run(ctx context.Context, actor *model.User, firstRun bool) (*CleanupResult, error) {
	if actor == nil || !actor.IsModerator() {
		return nil, fmt.Errorf("cleanup: %w", ErrPermissionDenied)
	}
	return s.Reconcile(ctx, firstRun)
}

// Reconcile purges long-expired unsaved containers when firstRun is set,
// then deletes every container outside the whitelist while telling the
// build service which live containers to keep. The two deletions run
// concurrently and neither is rolled back if the other fails.
func (s *CleanupService) Reconcile(ctx context.Context, firstRun bool) (*CleanupResult, error) {
	res := &CleanupResult{}
	now := s.now()

	if firstRun {
		n, err := s.containers.DeleteExpiredUnsaved(ctx, now.Add(-s.retention))
		if err != nil {
			metrics.CleanupRunsTotal.WithLabelValues("failed").Inc()
			return nil, err
		}
		res.Purged = n
		s.logger.Info().Int64("count", n).Msg("purged expired unsaved containers")
	}

	whitelist, err := s.whitelist(ctx, now)
	if err != nil {
		metrics.CleanupRunsTotal.WithLabelValues("failed").Inc()
		return nil, err
	}
	res.Whitelisted = len(whitelist)

	if len(whitelist) == 0 {
		s.logger.Warn().Msg("cleanup whitelist is empty, skipping prune")
		metrics.CleanupRunsTotal.WithLabelValues("skipped").Inc()
		return res, nil
	}

	ids := make([]string, len(whitelist))
	tokens := make([]string, len(whitelist))
	for i, c := range whitelist {
		ids[i] = c.ID
		tokens[i] = c.ServicesToken
	}

	var g errgroup.Group
	g.Go(func() error {
		n, err := s.containers.DeleteNotIn(ctx, ids)
		if err != nil {
			return err
		}
		res.Pruned = n
		return nil
	})
	g.Go(func() error {
		return s.build.Cleanup(ctx, tokens)
	})
	if err := g.Wait(); err != nil {
		metrics.CleanupRunsTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("cleanup: %w", err)
	}

	metrics.CleanupRunsTotal.WithLabelValues("ok").Inc()
	metrics.CleanupPrunedContainers.Add(float64(res.Pruned))
	s.logger.Info().
		Int64("purged", res.Purged).
		Int64("pruned", res.Pruned).
		Int("whitelisted", res.Whitelisted).
		Msg("cleanup finished")
	return res, nil
}

// whitelist returns the saved or recently created containers whose owner
// is a registered user.
func (s *CleanupService) whitelist(ctx context.Context, now time.Time) ([]model.Container, error) {
	candidates, err := s.containers.ListSavedOrActive(ctx, now.Add(-s.containerTimeout))
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var ownerIDs []string
	for _, c := range candidates {
		if !seen[c.OwnerID] {
			seen[c.OwnerID] = true
			ownerIDs = append(ownerIDs, c.OwnerID)
		}
	}
	owners, err := s.users.GetByIDs(ctx, ownerIDs)
	if err != nil {
		return nil, err
	}

	var keep []model.Container
	for _, c := range candidates {
		if owner, ok := owners[c.OwnerID]; ok && owner.IsRegistered() {
			keep = append(keep, c)
		}
	}
	return keep, nil
}
