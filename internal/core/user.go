package core

import (
	"context"
	"fmt"

	"github.com/runnable/runnable-api/internal/model"
)

const userColumns = `id, username, email, permission_level, created_at`

type UserService struct {
	db DB
}

func NewUserService(db DB) *UserService {
	return &UserService{db: db}
}

func (s *UserService) GetByID(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	err := s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Username, &u.Email, &u.PermissionLevel, &u.CreatedAt)
	if err != nil {
		return nil, queryErr(fmt.Sprintf("get user %s", id), err)
	}
	return &u, nil
}

// GetByTokenHash resolves an API token (sha256, hex) to its user.
// Expired tokens do not match.
func (s *UserService) GetByTokenHash(ctx context.Context, hash string) (*model.User, error) {
	var u model.User
	err := s.db.QueryRow(ctx,
		`SELECT u.id, u.username, u.email, u.permission_level, u.created_at
		 FROM access_tokens t JOIN users u ON u.id = t.user_id
		 WHERE t.token_hash = $1 AND (t.expires_at IS NULL OR t.expires_at > now())`, hash,
	).Scan(&u.ID, &u.Username, &u.Email, &u.PermissionLevel, &u.CreatedAt)
	if err != nil {
		return nil, queryErr("resolve access token", err)
	}
	return &u, nil
}

// GetByIDs returns the users that exist among ids, keyed by ID.
func (s *UserService) GetByIDs(ctx context.Context, ids []string) (map[string]*model.User, error) {
	users := make(map[string]*model.User, len(ids))
	if len(ids) == 0 {
		return users, nil
	}

	rows, err := s.db.Query(ctx, `SELECT `+userColumns+` FROM users WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("get users: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.PermissionLevel, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users[u.ID] = &u
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}
