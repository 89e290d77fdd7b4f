package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// NameConflictChecker guards image name uniqueness ahead of a publish.
type NameConflictChecker struct {
	db DB
}

func NewNameConflictChecker(db DB) *NameConflictChecker {
	return &NameConflictChecker{db: db}
}

// Check returns ErrNameConflict when an image named name already exists.
func (c *NameConflictChecker) Check(ctx context.Context, name string) error {
	var id string
	err := c.db.QueryRow(ctx, `SELECT id FROM images WHERE name = $1`, name).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("check image name %q: %w", name, err)
	}
	return ErrNameConflict
}
