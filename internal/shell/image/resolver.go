// Package image resolves the image specs of declared services into the image
// references written to the compiled template.
package image

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/distribution/reference"
	"golang.org/x/sync/errgroup"
)

// Resolver turns an image spec into an image reference.
type Resolver interface {
	Resolve(ctx context.Context, serviceID, imageSpec string) (string, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, serviceID, imageSpec string) (string, error)

// Resolve calls f.
func (f ResolverFunc) Resolve(ctx context.Context, serviceID, imageSpec string) (string, error) {
	return f(ctx, serviceID, imageSpec)
}

// =============================================================================
// Modes
// =============================================================================

// Mode selects a Resolver implementation.
type Mode string

const (
	ModeStatic Mode = "static"
	ModeECR    Mode = "ecr"
	ModeDocker Mode = "docker"
)

// ParseMode parses a resolver mode. An empty string selects ModeStatic.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeStatic:
		return ModeStatic, nil
	case ModeECR:
		return ModeECR, nil
	case ModeDocker:
		return ModeDocker, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// =============================================================================
// Static Resolver
// =============================================================================

// StaticResolver validates image specs and returns them unchanged.
type StaticResolver struct {
	logger *slog.Logger
}

// NewStaticResolver creates a StaticResolver.
func NewStaticResolver(logger *slog.Logger) *StaticResolver {
	return &StaticResolver{logger: logger.With("component", "image", "resolver", ModeStatic)}
}

// Resolve returns imageSpec when it parses as an image reference.
func (r *StaticResolver) Resolve(_ context.Context, serviceID, imageSpec string) (string, error) {
	if _, err := parseReference(imageSpec); err != nil {
		return "", err
	}
	r.logger.Debug("image accepted", "service", serviceID, "image", imageSpec)
	return imageSpec, nil
}

func parseReference(imageSpec string) (reference.Named, error) {
	named, err := reference.ParseNormalizedNamed(strings.TrimSpace(imageSpec))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidReference, err)
	}
	return named, nil
}

// =============================================================================
// Concurrent Resolution
// =============================================================================

// ResolveAll resolves every service's image spec with at most limit calls in
// flight; limit <= 0 means unbounded. The first failure cancels the remaining
// calls and is returned as a *ResolveError. On success every service id has a
// reference.
func ResolveAll(ctx context.Context, r Resolver, specs map[string]string, limit int) (map[string]string, error) {
	ids := make([]string, 0, len(specs))
	for id := range specs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}

	var mu sync.Mutex
	resolved := make(map[string]string, len(specs))

	for _, id := range ids {
		spec := specs[id]
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return &ResolveError{ServiceID: id, Image: spec, Err: err}
			}
			ref, err := r.Resolve(ctx, id, spec)
			if err != nil {
				var resolveErr *ResolveError
				if errors.As(err, &resolveErr) {
					return err
				}
				return &ResolveError{ServiceID: id, Image: spec, Err: err}
			}
			mu.Lock()
			resolved[id] = ref
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return resolved, nil
}
