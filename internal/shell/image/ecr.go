package image

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	ecrtypes "github.com/aws/aws-sdk-go-v2/service/ecr/types"
	smithy "github.com/aws/smithy-go"
	"github.com/distribution/reference"
)

// ecrHostPattern matches private ECR registry hosts and captures the
// account id and region.
var ecrHostPattern = regexp.MustCompile(`^(\d{12})\.dkr\.ecr\.([a-z0-9-]+)\.amazonaws\.com$`)

// ecrAPI is the subset of the ECR client the resolver uses.
type ecrAPI interface {
	DescribeImages(ctx context.Context, params *ecr.DescribeImagesInput, optFns ...func(*ecr.Options)) (*ecr.DescribeImagesOutput, error)
}

// ECRResolver pins tagged ECR images to their digest.
type ECRResolver struct {
	clientFor func(region string) ecrAPI
	logger    *slog.Logger
}

// NewECRResolver creates an ECRResolver. Each lookup uses a client for the
// region encoded in the registry host.
func NewECRResolver(cfg aws.Config, logger *slog.Logger) *ECRResolver {
	return &ECRResolver{
		clientFor: func(region string) ecrAPI {
			return ecr.NewFromConfig(cfg, func(o *ecr.Options) {
				o.Region = region
			})
		},
		logger: logger.With("component", "image", "resolver", ModeECR),
	}
}

// Resolve returns repo@digest for a tagged ECR image. Digested references are
// returned unchanged; images hosted anywhere but ECR fail with
// ErrUnsupportedRegistry.
func (r *ECRResolver) Resolve(ctx context.Context, serviceID, imageSpec string) (string, error) {
	named, err := parseReference(imageSpec)
	if err != nil {
		return "", err
	}

	host := reference.Domain(named)
	m := ecrHostPattern.FindStringSubmatch(host)
	if m == nil {
		return "", fmt.Errorf("%w: %s is not an ECR registry", ErrUnsupportedRegistry, host)
	}
	accountID, region := m[1], m[2]

	if digested, ok := named.(reference.Digested); ok {
		r.logger.Debug("image already pinned", "service", serviceID, "digest", digested.Digest().String())
		return named.String(), nil
	}

	tag := reference.TagNameOnly(named).(reference.Tagged).Tag()
	repository := reference.Path(named)

	out, err := r.clientFor(region).DescribeImages(ctx, &ecr.DescribeImagesInput{
		RegistryId:     aws.String(accountID),
		RepositoryName: aws.String(repository),
		ImageIds:       []ecrtypes.ImageIdentifier{{ImageTag: aws.String(tag)}},
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			switch apiErr.ErrorCode() {
			case "ImageNotFoundException", "RepositoryNotFoundException":
				return "", fmt.Errorf("%w: %s:%s: %s", ErrImageNotFound, repository, tag, apiErr.ErrorMessage())
			}
		}
		return "", fmt.Errorf("%w: describe %s:%s: %v", ErrLookupFailed, repository, tag, err)
	}
	if len(out.ImageDetails) == 0 {
		return "", fmt.Errorf("%w: %s:%s", ErrImageNotFound, repository, tag)
	}

	digest := aws.ToString(out.ImageDetails[0].ImageDigest)
	if digest == "" {
		return "", fmt.Errorf("%w: %s:%s", ErrNoDigest, repository, tag)
	}

	pinned := fmt.Sprintf("%s/%s@%s", host, repository, digest)
	r.logger.Debug("image pinned", "service", serviceID, "image", imageSpec, "reference", pinned, "region", region)
	return pinned, nil
}
