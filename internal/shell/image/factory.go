package image

import (
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
)

// Options configures NewResolver.
type Options struct {
	Mode Mode
	// AWS is used by ModeECR.
	AWS aws.Config
	// DockerHost is used by ModeDocker. Empty means the environment default.
	DockerHost string
}

// NewResolver creates the resolver for opts.Mode. Resolvers holding
// connections implement io.Closer.
func NewResolver(opts Options, logger *slog.Logger) (Resolver, error) {
	switch opts.Mode {
	case "", ModeStatic:
		return NewStaticResolver(logger), nil
	case ModeECR:
		return NewECRResolver(opts.AWS, logger), nil
	case ModeDocker:
		r, err := NewDockerResolver(opts.DockerHost, logger)
		if err != nil {
			return nil, err
		}
		return r, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, opts.Mode)
	}
}
