package core

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/runnable/runnable-api/internal/model"
)

// memStore is an in-memory DB that understands the statements the commit
// lifecycle issues. Each statement runs under one lock, like a single-row
// UPDATE in Postgres.
type memStore struct {
	mu         sync.Mutex
	containers map[string]*model.Container
	images     map[string]*model.Image
}

func newMemStore() *memStore {
	return &memStore{
		containers: make(map[string]*model.Container),
		images:     make(map[string]*model.Image),
	}
}

func (s *memStore) putContainer(c model.Container) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.containers[c.ID] = &c
}

func (s *memStore) putImage(img model.Image) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images[img.ID] = &img
}

func (s *memStore) container(id string) model.Container {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.containers[id]
}

func (s *memStore) image(id string) (model.Image, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	img, ok := s.images[id]
	if !ok {
		return model.Image{}, false
	}
	return *img, true
}

func (s *memStore) imageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.images)
}

func updated(n int) pgconn.CommandTag {
	return pgconn.NewCommandTag(fmt.Sprintf("UPDATE %d", n))
}

func (s *memStore) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case strings.Contains(sql, "UPDATE containers SET name = $2, description = $3"):
		c, ok := s.containers[args[0].(string)]
		if !ok {
			return updated(0), nil
		}
		c.Name = args[1].(string)
		c.Description = args[2].(string)
		c.SpecificationID = args[3].(*string)
		c.Saved = args[4].(bool)
		c.StartCmd = args[5].(string)
		c.BuildCmd = args[6].(string)
		c.ServiceCmds = args[7].(string)
		c.OutputFormat = args[8].(string)
		c.Env = args[9].([]string)
		c.WebToken = args[10].(string)
		return updated(1), nil

	case strings.Contains(sql, "UPDATE containers SET name = $3, status = $4, commit_error = $5"):
		c, ok := s.containers[args[0].(string)]
		if !ok || c.Status != args[1].(string) {
			return updated(0), nil
		}
		c.Name = args[2].(string)
		c.Status = args[3].(string)
		c.CommitError = args[4].(string)
		return updated(1), nil

	case strings.Contains(sql, "UPDATE containers SET status = $2, commit_error = '', child_id = $3"):
		if c, ok := s.containers[args[0].(string)]; ok {
			child := args[2].(string)
			c.Status = args[1].(string)
			c.CommitError = ""
			c.ChildID = &child
			return updated(1), nil
		}
		return updated(0), nil

	case strings.Contains(sql, "UPDATE containers SET child_id = $2"):
		if c, ok := s.containers[args[0].(string)]; ok {
			child := args[1].(string)
			c.ChildID = &child
			return updated(1), nil
		}
		return updated(0), nil

	case strings.Contains(sql, "INSERT INTO images"):
		img := model.Image{
			ID:              args[0].(string),
			OwnerID:         args[1].(string),
			ParentID:        args[2].(*string),
			Name:            args[3].(string),
			Description:     args[4].(string),
			Image:           args[5].(string),
			Dockerfile:      args[6].(string),
			FileRoot:        args[7].(string),
			FileRootHost:    args[8].(string),
			Cmd:             args[9].(string),
			BuildCmd:        args[10].(string),
			StartCmd:        args[11].(string),
			ServiceCmds:     args[12].(string),
			Port:            args[13].(*int),
			OutputFormat:    args[14].(string),
			SpecificationID: args[15].(*string),
			Synced:          args[19].(bool),
		}
		if err := decodeJSON(args[16], &img.Tags); err != nil {
			return pgconn.CommandTag{}, err
		}
		if err := decodeJSON(args[17], &img.Revisions); err != nil {
			return pgconn.CommandTag{}, err
		}
		if err := decodeJSON(args[18], &img.Files); err != nil {
			return pgconn.CommandTag{}, err
		}
		for _, existing := range s.images {
			if existing.Name == img.Name {
				return pgconn.CommandTag{}, &pgconn.PgError{Code: pgUniqueViolation}
			}
		}
		s.images[img.ID] = &img
		return pgconn.NewCommandTag("INSERT 0 1"), nil
	}
	return pgconn.CommandTag{}, fmt.Errorf("memStore: unexpected exec %q", sql)
}

func (s *memStore) Query(_ context.Context, sql string, _ ...any) (pgx.Rows, error) {
	return nil, fmt.Errorf("memStore: unexpected query %q", sql)
}

func (s *memStore) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case strings.Contains(sql, "SELECT id FROM images WHERE name = $1"):
		for _, img := range s.images {
			if img.Name == args[0].(string) {
				id := img.ID
				return &mockRow{scanFunc: copyInto([]any{&id})}
			}
		}
		return errRow(pgx.ErrNoRows)

	case strings.Contains(sql, "SELECT id, owner_id, name, tags FROM images"):
		img, ok := s.images[args[0].(string)]
		if !ok {
			return errRow(pgx.ErrNoRows)
		}
		cp := *img
		return &mockRow{scanFunc: copyInto([]any{&cp.ID, &cp.OwnerID, &cp.Name, &cp.Tags})}

	case strings.Contains(sql, "UPDATE containers SET name = $2, status = $3"):
		c, ok := s.containers[args[0].(string)]
		if !ok || !(slices.Contains(args[3].([]string), c.Status) || c.CommitError != "") {
			return errRow(pgx.ErrNoRows)
		}
		c.Name = args[1].(string)
		c.Status = args[2].(string)
		c.CommitError = ""
		return containerRow(*c, false)

	case strings.HasPrefix(sql, "SELECT") && strings.Contains(sql, "FROM containers WHERE id = $1"):
		c, ok := s.containers[args[0].(string)]
		if !ok {
			return errRow(pgx.ErrNoRows)
		}
		return containerRow(*c, strings.Contains(sql, ", files FROM containers"))

	case strings.HasPrefix(sql, "SELECT") && strings.Contains(sql, "FROM images WHERE id = $1"):
		img, ok := s.images[args[0].(string)]
		if !ok {
			return errRow(pgx.ErrNoRows)
		}
		return imageRow(*img, strings.Contains(sql, ", files FROM images"))

	case strings.Contains(sql, "RETURNING revisions"):
		img, ok := s.images[args[0].(string)]
		if !ok {
			return errRow(pgx.ErrNoRows)
		}
		img.Name = args[1].(string)
		img.Description = args[2].(string)
		var tags []model.Tag
		var files []model.File
		var revs []model.Revision
		if err := decodeJSON(args[3], &tags); err != nil {
			return errRow(err)
		}
		if err := decodeJSON(args[4], &files); err != nil {
			return errRow(err)
		}
		if err := decodeJSON(args[17], &revs); err != nil {
			return errRow(err)
		}
		img.Tags = tags
		img.Files = files
		img.ParentID = args[15].(*string)
		img.Revisions = append(img.Revisions, revs...)
		out := slices.Clone(img.Revisions)
		return &mockRow{scanFunc: copyInto([]any{&out})}
	}
	return errRow(fmt.Errorf("memStore: unexpected query row %q", sql))
}

// failingExec wraps a DB and fails every Exec whose SQL contains match.
type failingExec struct {
	DB
	match string
}

func (f failingExec) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if strings.Contains(sql, f.match) {
		return pgconn.CommandTag{}, fmt.Errorf("connection reset by peer")
	}
	return f.DB.Exec(ctx, sql, args...)
}

func decodeJSON(arg any, v any) error {
	return json.Unmarshal([]byte(arg.(string)), v)
}
