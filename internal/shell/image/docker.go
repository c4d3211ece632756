package image

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/distribution/reference"
	dockerimage "github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
)

// imageInspector is the subset of the Docker client the resolver uses.
type imageInspector interface {
	ImageInspectWithRaw(ctx context.Context, imageID string) (dockerimage.InspectResponse, []byte, error)
}

// DockerResolver pins images to the repository digest recorded by the local
// Docker daemon. The image must have been pulled or pushed so the daemon
// knows its digest.
type DockerResolver struct {
	cli    imageInspector
	closer func() error
	logger *slog.Logger
}

// NewDockerResolver creates a DockerResolver.
// If host is empty, it uses the default Docker host from environment.
func NewDockerResolver(host string, logger *slog.Logger) (*DockerResolver, error) {
	var opts []client.Opt
	opts = append(opts, client.FromEnv)
	opts = append(opts, client.WithAPIVersionNegotiation())

	if host != "" {
		opts = append(opts, client.WithHost(host))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: create docker client: %v", ErrLookupFailed, err)
	}

	return &DockerResolver{
		cli:    cli,
		closer: cli.Close,
		logger: logger.With("component", "image", "resolver", ModeDocker),
	}, nil
}

// Close releases the Docker client.
func (r *DockerResolver) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer()
}

// Resolve returns the first repository digest of the image that belongs to
// the same repository as imageSpec.
func (r *DockerResolver) Resolve(ctx context.Context, serviceID, imageSpec string) (string, error) {
	named, err := parseReference(imageSpec)
	if err != nil {
		return "", err
	}
	if _, ok := named.(reference.Digested); ok {
		return named.String(), nil
	}

	inspect, _, err := r.cli.ImageInspectWithRaw(ctx, imageSpec)
	if err != nil {
		if client.IsErrNotFound(err) {
			return "", fmt.Errorf("%w: %s is not present locally", ErrImageNotFound, imageSpec)
		}
		return "", fmt.Errorf("%w: inspect %s: %v", ErrLookupFailed, imageSpec, err)
	}

	for _, repoDigest := range inspect.RepoDigests {
		candidate, err := reference.ParseNormalizedNamed(repoDigest)
		if err != nil {
			continue
		}
		if candidate.Name() == named.Name() {
			r.logger.Debug("image pinned", "service", serviceID, "image", imageSpec, "reference", candidate.String())
			return candidate.String(), nil
		}
	}

	return "", fmt.Errorf("%w: %s has no digest for repository %s", ErrNoDigest, imageSpec, named.Name())
}
