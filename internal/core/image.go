package core

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/runnable/runnable-api/internal/metrics"
	"github.com/runnable/runnable-api/internal/model"
	"github.com/runnable/runnable-api/internal/platform"
)

const imageColumns = `id, owner_id, parent_id, name, description, image, dockerfile, file_root, file_root_host,
	cmd, build_cmd, start_cmd, service_cmds, port, output_format, specification_id, tags, revisions,
	votes, views, copies, cuts, runs, pastes, synced, created_at`

func imageFields(img *model.Image) []any {
	return []any{
		&img.ID, &img.OwnerID, &img.ParentID, &img.Name, &img.Description, &img.Image, &img.Dockerfile, &img.FileRoot, &img.FileRootHost,
		&img.Cmd, &img.BuildCmd, &img.StartCmd, &img.ServiceCmds, &img.Port, &img.OutputFormat, &img.SpecificationID, &img.Tags, &img.Revisions,
		&img.Votes, &img.Views, &img.Copies, &img.Cuts, &img.Runs, &img.Pastes, &img.Synced, &img.CreatedAt,
	}
}

func scanImage(row pgx.Row, withFiles bool) (*model.Image, error) {
	var img model.Image
	dest := imageFields(&img)
	if withFiles {
		dest = append(dest, &img.Files)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return &img, nil
}

type ImageService struct {
	db         DB
	build      BuildService
	conflicts  *NameConflictChecker
	containers *ContainerService
	channels   *ChannelService
	registry   string
	logger     zerolog.Logger

	now   func() time.Time
	syncs singleflight.Group
}

func NewImageService(db DB, build BuildService, conflicts *NameConflictChecker, containers *ContainerService, channels *ChannelService, registry string, logger zerolog.Logger) *ImageService {
	return &ImageService{
		db:         db,
		build:      build,
		conflicts:  conflicts,
		containers: containers,
		channels:   channels,
		registry:   registry,
		logger:     logger.With().Str("component", "images").Logger(),
		now:        time.Now,
	}
}

// GetByID loads an image without its file tree.
func (s *ImageService) GetByID(ctx context.Context, id string) (*model.Image, error) {
	img, err := scanImage(s.db.QueryRow(ctx,
		`SELECT `+imageColumns+` FROM images WHERE id = $1`, id), false)
	if err != nil {
		return nil, queryErr(fmt.Sprintf("get image %s", id), err)
	}
	return img, nil
}

func (s *ImageService) GetWithFiles(ctx context.Context, id string) (*model.Image, error) {
	img, err := scanImage(s.db.QueryRow(ctx,
		`SELECT `+imageColumns+`, files FROM images WHERE id = $1`, id), true)
	if err != nil {
		return nil, queryErr(fmt.Sprintf("get image %s", id), err)
	}
	return img, nil
}

// FirstInChannel returns the oldest image tagged with channelID.
func (s *ImageService) FirstInChannel(ctx context.Context, channelID string) (*model.Image, error) {
	probe := jsonArray([]map[string]string{{"channel": channelID}})
	img, err := scanImage(s.db.QueryRow(ctx,
		`SELECT `+imageColumns+`, files FROM images WHERE tags @> $1::jsonb ORDER BY id LIMIT 1`, probe), true)
	if err != nil {
		return nil, queryErr(fmt.Sprintf("first image in channel %s", channelID), err)
	}
	return img, nil
}

func (s *ImageService) ListByOwner(ctx context.Context, ownerID string) ([]model.Image, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+imageColumns+` FROM images WHERE owner_id = $1 ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list images by owner %s: %w", ownerID, err)
	}
	defer rows.Close()

	var images []model.Image
	for rows.Next() {
		img, err := scanImage(rows, false)
		if err != nil {
			return nil, fmt.Errorf("scan image: %w", err)
		}
		images = append(images, *img)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate images: %w", err)
	}
	return images, nil
}

// CreateFromContainer publishes c as a brand-new image. The name must be free.
func (s *ImageService) CreateFromContainer(ctx context.Context, c *model.Container) (*model.Image, error) {
	if err := s.conflicts.Check(ctx, c.Name); err != nil {
		return nil, err
	}

	now := s.now()
	img := &model.Image{
		ID:        platform.NewID(),
		Synced:    true,
		CreatedAt: now,
	}
	img.InheritFromContainer(c, true, now)

	if err := s.insert(ctx, img); err != nil {
		return nil, err
	}
	if err := s.containers.SetChild(ctx, c.ID, img.ID); err != nil {
		return nil, err
	}
	c.ChildID = &img.ID
	return img, nil
}

// UpdateFromContainer republishes c onto img, keeping the image's owner and
// appending one revision.
func (s *ImageService) UpdateFromContainer(ctx context.Context, img *model.Image, c *model.Container) (*model.Image, error) {
	rev := img.InheritFromContainer(c, false, s.now())

	err := s.db.QueryRow(ctx,
		`UPDATE images SET name = $2, description = $3, tags = $4::jsonb, files = $5::jsonb, image = $6,
			dockerfile = $7, file_root = $8, file_root_host = $9, cmd = $10, build_cmd = $11, start_cmd = $12,
			service_cmds = $13, port = $14, output_format = $15, parent_id = $16, specification_id = $17,
			revisions = revisions || $18::jsonb
		 WHERE id = $1
		 RETURNING revisions`,
		img.ID, img.Name, img.Description, jsonArray(img.Tags), jsonArray(img.Files), img.Image,
		img.Dockerfile, img.FileRoot, img.FileRootHost, img.Cmd, img.BuildCmd, img.StartCmd,
		img.ServiceCmds, img.Port, img.OutputFormat, img.ParentID, img.SpecificationID,
		jsonArray([]model.Revision{rev}),
	).Scan(&img.Revisions)
	if err != nil {
		return nil, queryErr(fmt.Sprintf("update image %s from container %s", img.ID, c.ID), err)
	}

	if err := s.containers.SetChild(ctx, c.ID, img.ID); err != nil {
		return nil, err
	}
	c.ChildID = &img.ID
	return img, nil
}

func (s *ImageService) insert(ctx context.Context, img *model.Image) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO images (id, owner_id, parent_id, name, description, image, dockerfile, file_root, file_root_host,
			cmd, build_cmd, start_cmd, service_cmds, port, output_format, specification_id, tags, revisions, files,
			synced, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
			$17::jsonb, $18::jsonb, $19::jsonb, $20, $21)`,
		img.ID, img.OwnerID, img.ParentID, img.Name, img.Description, img.Image, img.Dockerfile, img.FileRoot, img.FileRootHost,
		img.Cmd, img.BuildCmd, img.StartCmd, img.ServiceCmds, img.Port, img.OutputFormat, img.SpecificationID,
		jsonArray(img.Tags), jsonArray(img.Revisions), jsonArray(img.Files), img.Synced, img.CreatedAt,
	)
	if err != nil {
		return queryErr(fmt.Sprintf("insert image %q", img.Name), err)
	}
	return nil
}

// Sync makes sure the build service has pulled the latest revision of the
// image. Already-synced images are left alone and concurrent calls for the
// same image share one provisioning run.
func (s *ImageService) Sync(ctx context.Context, id string) error {
	_, err, _ := s.syncs.Do(id, func() (any, error) {
		return nil, s.sync(context.WithoutCancel(ctx), id)
	})
	return err
}

func (s *ImageService) sync(ctx context.Context, id string) error {
	img, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if img.Synced {
		metrics.ImageSyncsTotal.WithLabelValues("noop").Inc()
		return nil
	}

	tag, err := latestTag(s.registry, img)
	if err != nil {
		return err
	}
	probe := &model.Container{
		FileRoot:      img.FileRoot,
		ServiceCmds:   img.ServiceCmds,
		StartCmd:      img.StartCmd,
		BuildCmd:      img.BuildCmd,
		ServicesToken: platform.NewToken("services-"),
	}
	spec := liveSpec(img.ID, probe.ServicesToken, platform.NewToken("web-"), tag, probe.DeriveEnv(), img.Port, img.Cmd)

	if err := s.build.CreateContainer(ctx, spec); err != nil {
		metrics.ImageSyncsTotal.WithLabelValues("failed").Inc()
		return fmt.Errorf("sync image %s: %w", id, err)
	}
	if err := s.build.DeleteContainer(ctx, probe.ServicesToken); err != nil {
		metrics.ImageSyncsTotal.WithLabelValues("failed").Inc()
		return fmt.Errorf("sync image %s: decommission: %w", id, err)
	}

	if _, err := s.db.Exec(ctx, `UPDATE images SET synced = true WHERE id = $1 AND NOT synced`, id); err != nil {
		return fmt.Errorf("mark image %s synced: %w", id, err)
	}
	metrics.ImageSyncsTotal.WithLabelValues("synced").Inc()
	s.logger.Info().Str("image_id", id).Str("tag", tag).Msg("image synced")
	return nil
}

// ListUnsynced returns the IDs of images the build service has not pulled yet.
func (s *ImageService) ListUnsynced(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT id FROM images WHERE NOT synced ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list unsynced images: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan image id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *ImageService) Delete(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM images WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete image %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete image %s: %w", id, ErrNotFound)
	}
	return nil
}

// Vote records userID's vote for the image. Owners cannot vote for their own
// images and each user votes once.
func (s *ImageService) Vote(ctx context.Context, userID, imageID string) error {
	img, err := s.GetByID(ctx, imageID)
	if err != nil {
		return err
	}
	if img.OwnerID == userID {
		return fmt.Errorf("cannot vote on your own runnable: %w", ErrPermissionDenied)
	}

	_, err = s.db.Exec(ctx,
		`WITH v AS (
			INSERT INTO votes (id, user_id, image_id) VALUES ($1, $2, $3) RETURNING image_id
		)
		UPDATE images SET votes = votes + 1 WHERE id = (SELECT image_id FROM v)`,
		platform.NewID(), userID, imageID)
	if err != nil {
		return queryErr(fmt.Sprintf("vote for image %s", imageID), err)
	}
	return nil
}

// IncrementStat bumps one of the usage counters.
func (s *ImageService) IncrementStat(ctx context.Context, id, stat string) (int, error) {
	if !model.ValidStat(stat) {
		return 0, fmt.Errorf("%w: unknown stat %q", ErrInvalidInput, stat)
	}
	var n int
	err := s.db.QueryRow(ctx,
		fmt.Sprintf(`UPDATE images SET %[1]s = %[1]s + 1 WHERE id = $1 RETURNING %[1]s`, stat), id).Scan(&n)
	if err != nil {
		return 0, queryErr(fmt.Sprintf("increment %s of image %s", stat, id), err)
	}
	return n, nil
}
