package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/runnable/runnable-api/internal/model"
	"github.com/runnable/runnable-api/internal/platform"
)

const containerColumns = `id, owner_id, parent_id, child_id, name, description, status, commit_error,
	image, dockerfile, file_root, file_root_host, cmd, build_cmd, start_cmd, service_cmds, port,
	output_format, specification_id, services_token, web_token, saved, env, tags, created_at, last_write`

func containerFields(c *model.Container) []any {
	return []any{
		&c.ID, &c.OwnerID, &c.ParentID, &c.ChildID, &c.Name, &c.Description, &c.Status, &c.CommitError,
		&c.Image, &c.Dockerfile, &c.FileRoot, &c.FileRootHost, &c.Cmd, &c.BuildCmd, &c.StartCmd, &c.ServiceCmds, &c.Port,
		&c.OutputFormat, &c.SpecificationID, &c.ServicesToken, &c.WebToken, &c.Saved, &c.Env, &c.Tags, &c.CreatedAt, &c.LastWrite,
	}
}

func scanContainer(row pgx.Row, withFiles bool) (*model.Container, error) {
	var c model.Container
	dest := containerFields(&c)
	if withFiles {
		dest = append(dest, &c.Files)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return &c, nil
}

type ContainerService struct {
	db        DB
	build     BuildService
	conflicts *NameConflictChecker
	notifier  DelistNotifier
	registry  string
	logger    zerolog.Logger

	now   func() time.Time
	async func(func())
}

func NewContainerService(db DB, build BuildService, conflicts *NameConflictChecker, notifier DelistNotifier, registry string, logger zerolog.Logger) *ContainerService {
	return &ContainerService{
		db:        db,
		build:     build,
		conflicts: conflicts,
		notifier:  notifier,
		registry:  registry,
		logger:    logger.With().Str("component", "containers").Logger(),
		now:       time.Now,
		async:     func(f func()) { go f() },
	}
}

// GetByID loads a container without its file tree.
func (s *ContainerService) GetByID(ctx context.Context, id string) (*model.Container, error) {
	c, err := scanContainer(s.db.QueryRow(ctx,
		`SELECT `+containerColumns+` FROM containers WHERE id = $1`, id), false)
	if err != nil {
		return nil, queryErr(fmt.Sprintf("get container %s", id), err)
	}
	return c, nil
}

func (s *ContainerService) GetWithFiles(ctx context.Context, id string) (*model.Container, error) {
	c, err := scanContainer(s.db.QueryRow(ctx,
		`SELECT `+containerColumns+`, files FROM containers WHERE id = $1`, id), true)
	if err != nil {
		return nil, queryErr(fmt.Sprintf("get container %s", id), err)
	}
	return c, nil
}

func (s *ContainerService) ListByOwner(ctx context.Context, ownerID string) ([]model.Container, error) {
	return s.list(ctx, "list containers by owner",
		`SELECT `+containerColumns+` FROM containers WHERE owner_id = $1 ORDER BY created_at DESC`, ownerID)
}

// ListSavedOrActive returns containers that are saved or were created at or
// after since.
func (s *ContainerService) ListSavedOrActive(ctx context.Context, since time.Time) ([]model.Container, error) {
	return s.list(ctx, "list saved or active containers",
		`SELECT `+containerColumns+` FROM containers WHERE saved OR created_at >= $1`, since)
}

func (s *ContainerService) list(ctx context.Context, op, query string, args ...any) ([]model.Container, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []model.Container
	for rows.Next() {
		c, err := scanContainer(rows, false)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

// CreateFromImage forks img into a new container owned by ownerID and asks
// the build service to start it.
func (s *ContainerService) CreateFromImage(ctx context.Context, ownerID string, img *model.Image, saved bool) (*model.Container, error) {
	c := &model.Container{
		ID:        platform.NewID(),
		OwnerID:   ownerID,
		Status:    model.StatusDraft,
		Saved:     saved,
		CreatedAt: s.now(),
	}
	c.InheritFromImage(img)

	tag, err := latestTag(s.registry, img)
	if err != nil {
		return nil, err
	}
	spec := liveSpec(c.ID, c.ServicesToken, c.WebToken, tag, c.Env, c.Port, c.Cmd)
	if err := s.build.CreateContainer(ctx, spec); err != nil {
		return nil, fmt.Errorf("create live container for %s: %w", c.ID, err)
	}

	if err := s.insert(ctx, c); err != nil {
		if derr := s.build.DeleteContainer(context.WithoutCancel(ctx), c.ServicesToken); derr != nil {
			s.logger.Warn().Err(derr).Str("services_token", c.ServicesToken).Msg("failed to remove orphaned live container")
		}
		return nil, err
	}
	return c, nil
}

func (s *ContainerService) insert(ctx context.Context, c *model.Container) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO containers (id, owner_id, parent_id, child_id, name, description, status, commit_error,
			image, dockerfile, file_root, file_root_host, cmd, build_cmd, start_cmd, service_cmds, port,
			output_format, specification_id, services_token, web_token, saved, env, tags, files, created_at, last_write)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20,
			$21, $22, $23, $24::jsonb, $25::jsonb, $26, $27)`,
		c.ID, c.OwnerID, c.ParentID, c.ChildID, c.Name, c.Description, c.Status, c.CommitError,
		c.Image, c.Dockerfile, c.FileRoot, c.FileRootHost, c.Cmd, c.BuildCmd, c.StartCmd, c.ServiceCmds, c.Port,
		c.OutputFormat, c.SpecificationID, c.ServicesToken, c.WebToken, c.Saved, stringList(c.Env),
		jsonArray(c.Tags), jsonArray(c.Files), c.CreatedAt, c.LastWrite,
	)
	if err != nil {
		return queryErr(fmt.Sprintf("insert container %s", c.ID), err)
	}
	return nil
}

// Save persists the user-editable fields and the derived environment.
// Status and commit_error are only changed through the commit guard.
func (s *ContainerService) Save(ctx context.Context, c *model.Container) error {
	now := s.now()
	tag, err := s.db.Exec(ctx,
		`UPDATE containers SET name = $2, description = $3, specification_id = $4, saved = $5,
			start_cmd = $6, build_cmd = $7, service_cmds = $8, output_format = $9, env = $10,
			web_token = $11, last_write = $12
		 WHERE id = $1`,
		c.ID, c.Name, c.Description, c.SpecificationID, c.Saved,
		c.StartCmd, c.BuildCmd, c.ServiceCmds, c.OutputFormat, stringList(c.Env),
		c.WebToken, now,
	)
	if err != nil {
		return fmt.Errorf("save container %s: %w", c.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("save container %s: %w", c.ID, ErrNotFound)
	}
	c.LastWrite = &now
	return nil
}

// TryTransition moves the container to status under the commit guard: the
// row must be in one of the expected states or carry a commit error.
// ErrAlreadyInProgress is returned when the guard does not match.
func (s *ContainerService) TryTransition(ctx context.Context, id string, expected []string, name, status string) (*model.Container, error) {
	c, err := scanContainer(s.db.QueryRow(ctx,
		`UPDATE containers SET name = $2, status = $3, commit_error = ''
		 WHERE id = $1 AND (status = ANY($4) OR commit_error <> '')
		 RETURNING `+containerColumns,
		id, name, status, expected,
	), false)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("transition container %s to %q: %w", id, status, ErrAlreadyInProgress)
	}
	if err != nil {
		return nil, queryErr(fmt.Sprintf("transition container %s", id), err)
	}
	return c, nil
}

// AtomicUpdateCommitStatusAndName claims c for a commit. A new image name is
// checked for conflicts first. Republishing triggers delist detection
// against the target image.
func (s *ContainerService) AtomicUpdateCommitStatusAndName(ctx context.Context, c *model.Container, status string, actor *model.User) (*model.Container, error) {
	switch status {
	case model.StatusCommittingNew:
		if err := s.conflicts.Check(ctx, c.Name); err != nil {
			return nil, err
		}
	case model.StatusCommittingBack:
	default:
		return nil, fmt.Errorf("%w: %q is not a commit status", ErrInvalidInput, status)
	}

	updated, err := s.TryTransition(ctx, c.ID, []string{model.StatusDraft}, c.Name, status)
	if err != nil {
		return nil, err
	}

	if status == model.StatusCommittingBack {
		s.checkDelist(ctx, updated, actor)
	}
	return updated, nil
}

// RevertCommit undoes a commit claim: a row still in the claimed status
// gets back the name and status it had before the claim and records reason
// as its commit error. Rows that moved on are left alone.
func (s *ContainerService) RevertCommit(ctx context.Context, id, claimed, name, status, reason string) error {
	if reason == "" {
		reason = "commit failed"
	}
	_, err := s.db.Exec(ctx,
		`UPDATE containers SET name = $3, status = $4, commit_error = $5 WHERE id = $1 AND status = $2`,
		id, claimed, name, status, reason)
	if err != nil {
		return fmt.Errorf("revert commit %s: %w", id, err)
	}
	return nil
}

// FinishCommit returns the container to Draft and records the image it
// published.
func (s *ContainerService) FinishCommit(ctx context.Context, id, childID string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE containers SET status = $2, commit_error = '', child_id = $3 WHERE id = $1`,
		id, model.StatusDraft, childID)
	if err != nil {
		return fmt.Errorf("finish commit %s: %w", id, err)
	}
	return nil
}

func (s *ContainerService) SetChild(ctx context.Context, id, childID string) error {
	if _, err := s.db.Exec(ctx, `UPDATE containers SET child_id = $2 WHERE id = $1`, id, childID); err != nil {
		return fmt.Errorf("set child of container %s: %w", id, err)
	}
	return nil
}

// TagWithChannel appends a tag for ch unless the container already carries one.
func (s *ContainerService) TagWithChannel(ctx context.Context, id string, ch *model.Channel) (*model.Container, error) {
	tag := model.Tag{ID: platform.NewID(), ChannelID: ch.ID}
	probe, _ := json.Marshal([]map[string]string{{"channel": ch.ID}})

	c, err := scanContainer(s.db.QueryRow(ctx,
		`UPDATE containers SET tags = tags || $2::jsonb
		 WHERE id = $1 AND NOT tags @> $3::jsonb
		 RETURNING `+containerColumns,
		id, jsonArray([]model.Tag{tag}), string(probe),
	), false)
	if errors.Is(err, pgx.ErrNoRows) {
		if _, gerr := s.GetByID(ctx, id); gerr != nil {
			return nil, gerr
		}
		return nil, fmt.Errorf("container already tagged with %s: %w", ch.Name, ErrDuplicate)
	}
	if err != nil {
		return nil, queryErr(fmt.Sprintf("tag container %s", id), err)
	}
	return c, nil
}

func (s *ContainerService) RemoveTag(ctx context.Context, id, tagID string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE containers SET tags = COALESCE(
			(SELECT jsonb_agg(t) FROM jsonb_array_elements(tags) t WHERE t->>'id' <> $2), '[]'::jsonb)
		 WHERE id = $1 AND tags @> jsonb_build_array(jsonb_build_object('id', $2::text))`,
		id, tagID)
	if err != nil {
		return fmt.Errorf("remove tag %s from container %s: %w", tagID, id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("remove tag %s from container %s: %w", tagID, id, ErrNotFound)
	}
	return nil
}

func (s *ContainerService) Delete(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM containers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete container %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete container %s: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteExpiredUnsaved removes unsaved containers created at or before cutoff.
func (s *ContainerService) DeleteExpiredUnsaved(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM containers WHERE NOT saved AND created_at <= $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired unsaved containers: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteNotIn removes every container whose ID is not in keep.
func (s *ContainerService) DeleteNotIn(ctx context.Context, keep []string) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM containers WHERE NOT (id = ANY($1))`, stringList(keep))
	if err != nil {
		return 0, fmt.Errorf("delete containers not in whitelist: %w", err)
	}
	return tag.RowsAffected(), nil
}

func jsonArray[T any](v []T) string {
	if len(v) == 0 {
		return "[]"
	}
	// Model list types contain only strings, bools and times.
	b, _ := json.Marshal(v)
	return string(b)
}

func stringList(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
