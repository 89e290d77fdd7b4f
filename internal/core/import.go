package core

import (
	"bytes"
	"context"
	"fmt"

	"github.com/runnable/runnable-api/internal/fixture"
	"github.com/runnable/runnable-api/internal/model"
	"github.com/runnable/runnable-api/internal/platform"
)

// ImportFixture builds a runnable fixture into a new image owned by ownerID.
// The manifest's tags name channels, which are created when missing.
func (s *ImageService) ImportFixture(ctx context.Context, ownerID string, src fixture.Source) (*model.Image, error) {
	bundle, err := fixture.Load(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	if err := s.conflicts.Check(ctx, bundle.Manifest.Name); err != nil {
		return nil, err
	}

	img := &model.Image{
		ID:        platform.NewID(),
		OwnerID:   ownerID,
		CreatedAt: s.now(),
	}
	bundle.Manifest.Apply(img)
	img.Dockerfile = bundle.Dockerfile

	tag, err := imageTag(s.registry, img.ID)
	if err != nil {
		return nil, err
	}
	if err := s.build.BuildImage(ctx, tag, bytes.NewReader(bundle.Context)); err != nil {
		return nil, fmt.Errorf("build fixture %s: %w", src.Name(), err)
	}

	img.Tags = []model.Tag{}
	for _, name := range bundle.Manifest.Tags {
		ch, err := s.channels.EnsureByName(ctx, name)
		if err != nil {
			return nil, err
		}
		if model.HasChannel(img.Tags, ch.ID) {
			continue
		}
		img.Tags = append(img.Tags, model.Tag{ID: platform.NewID(), ChannelID: ch.ID, Name: ch.Name})
	}

	if err := s.insert(ctx, img); err != nil {
		return nil, err
	}
	s.logger.Info().Str("image_id", img.ID).Str("name", img.Name).Str("source", src.Name()).Msg("fixture imported")
	return img, nil
}
