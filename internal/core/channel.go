package core

import (
	"context"
	"fmt"

	"github.com/runnable/runnable-api/internal/model"
	"github.com/runnable/runnable-api/internal/platform"
)

type ChannelService struct {
	db DB
}

func NewChannelService(db DB) *ChannelService {
	return &ChannelService{db: db}
}

func (s *ChannelService) GetByID(ctx context.Context, id string) (*model.Channel, error) {
	var ch model.Channel
	err := s.db.QueryRow(ctx,
		`SELECT id, name, aliases, base_image_id FROM channels WHERE id = $1`, id,
	).Scan(&ch.ID, &ch.Name, &ch.Aliases, &ch.BaseImageID)
	if err != nil {
		return nil, queryErr(fmt.Sprintf("get channel %s", id), err)
	}
	return &ch, nil
}

// GetByName looks a channel up by its name or one of its aliases,
// case-insensitively.
func (s *ChannelService) GetByName(ctx context.Context, name string) (*model.Channel, error) {
	var ch model.Channel
	err := s.db.QueryRow(ctx,
		`SELECT id, name, aliases, base_image_id FROM channels
		 WHERE lower(name) = lower($1) OR lower($1) = ANY(SELECT lower(a) FROM unnest(aliases) a)
		 LIMIT 1`, name,
	).Scan(&ch.ID, &ch.Name, &ch.Aliases, &ch.BaseImageID)
	if err != nil {
		return nil, queryErr(fmt.Sprintf("get channel %q", name), err)
	}
	return &ch, nil
}

// EnsureByName returns the channel called name, creating it when missing.
func (s *ChannelService) EnsureByName(ctx context.Context, name string) (*model.Channel, error) {
	var ch model.Channel
	err := s.db.QueryRow(ctx,
		`INSERT INTO channels (id, name) VALUES ($1, $2)
		 ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		 RETURNING id, name, aliases, base_image_id`, platform.NewID(), name,
	).Scan(&ch.ID, &ch.Name, &ch.Aliases, &ch.BaseImageID)
	if err != nil {
		return nil, fmt.Errorf("ensure channel %q: %w", name, err)
	}
	return &ch, nil
}
