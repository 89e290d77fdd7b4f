package core

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/distribution/reference"

	"github.com/runnable/runnable-api/internal/harbourmaster"
	"github.com/runnable/runnable-api/internal/model"
)

// BuildService is the build service ("harbourmaster") as the services see it.
type BuildService interface {
	CommitContainer(ctx context.Context, servicesToken string, snapshot any, token string) error
	CreateContainer(ctx context.Context, spec harbourmaster.ContainerSpec) error
	DeleteContainer(ctx context.Context, servicesToken string) error
	UpdateRoute(ctx context.Context, servicesToken, webToken string) error
	Cleanup(ctx context.Context, whitelist []string) error
	BuildImage(ctx context.Context, tag string, buildContext io.Reader) error
}

// imageTag returns the registry reference the build service stores an image
// under. Docker references must be lowercase, so the hex form of the ID is
// used rather than the encoded one.
func imageTag(registry, id string) (string, error) {
	tag := registry + "/runnable/" + id
	named, err := reference.ParseNormalizedNamed(tag)
	if err != nil {
		return "", fmt.Errorf("%w: image reference %q: %v", ErrInvalidInput, tag, err)
	}
	return named.String(), nil
}

// latestTag is the registry reference of the most recent revision of img.
func latestTag(registry string, img *model.Image) (string, error) {
	id := img.ID
	if rev := img.LatestRevision(); rev != nil && rev.ID != "" {
		id = rev.ID
	}
	return imageTag(registry, id)
}

func liveSpec(hostname, servicesToken, webToken, image string, env []string, port *int, cmd string) harbourmaster.ContainerSpec {
	spec := harbourmaster.ContainerSpec{
		ServicesToken: servicesToken,
		WebToken:      webToken,
		Env:           env,
		Hostname:      hostname,
		Image:         image,
		PortSpecs:     []string{},
		Cmd:           []string{cmd},
	}
	if port != nil {
		spec.PortSpecs = []string{strconv.Itoa(*port)}
	}
	return spec
}
