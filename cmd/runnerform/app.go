package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"

	"github.com/artpar/runnerform/internal/shell/image"
	"github.com/artpar/runnerform/internal/shell/network"
	"github.com/artpar/runnerform/internal/shell/pipeline"
)

// =============================================================================
// Exit Codes
// =============================================================================

const (
	ExitSuccess         = 0
	ExitConfigError     = 1
	ExitDocumentError   = 2
	ExitResolutionError = 3
	ExitCompileError    = 4
	ExitHTTPServerError = 5
)

// ExitError carries the exit code a failed operation should end the process
// with.
type ExitError struct {
	Op       string
	Err      error
	ExitCode int
}

func (e *ExitError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// exitCodeFor maps a pipeline failure to a process exit code.
func exitCodeFor(err error) int {
	switch pipeline.StageOf(err) {
	case pipeline.StageLoad, pipeline.StageNormalize:
		return ExitDocumentError
	case pipeline.StageVerify, pipeline.StageResolve:
		return ExitResolutionError
	case pipeline.StageCompile, pipeline.StageRender:
		return ExitCompileError
	default:
		return ExitConfigError
	}
}

// =============================================================================
// Wiring
// =============================================================================

// buildPipeline creates the pipeline described by cfg. The returned cleanup
// function releases resolver connections and must always be called.
func buildPipeline(ctx context.Context, cfg *Config, logger *slog.Logger) (*pipeline.Pipeline, func(), error) {
	mode, err := image.ParseMode(cfg.Resolver.Mode)
	if err != nil {
		return nil, nil, &ExitError{Op: "buildPipeline", Err: err, ExitCode: ExitConfigError}
	}

	var awsCfg aws.Config
	if mode == image.ModeECR || cfg.Network.Verify {
		awsCfg, err = loadAWSConfig(ctx, cfg.AWS)
		if err != nil {
			return nil, nil, &ExitError{Op: "loadAWSConfig", Err: err, ExitCode: ExitConfigError}
		}
	}

	resolver, err := image.NewResolver(image.Options{
		Mode:       mode,
		AWS:        awsCfg,
		DockerHost: cfg.Resolver.DockerHost,
	}, logger)
	if err != nil {
		return nil, nil, &ExitError{Op: "NewResolver", Err: err, ExitCode: ExitConfigError}
	}

	var verifier network.Verifier
	if cfg.Network.Verify {
		verifier = network.NewEC2Verifier(awsCfg, logger)
	}

	cleanup := func() {
		if c, ok := resolver.(io.Closer); ok {
			if err := c.Close(); err != nil {
				logger.Warn("failed to close image resolver", "error", err)
			}
		}
	}

	p := pipeline.New(resolver, verifier, pipeline.Options{
		Concurrency: cfg.Resolver.Concurrency,
		Environ:     environMap(os.Environ()),
	}, logger)

	logger.Debug("pipeline ready",
		"resolver", mode,
		"verify_network", cfg.Network.Verify,
		"concurrency", cfg.Resolver.Concurrency,
	)
	return p, cleanup, nil
}

// loadAWSConfig loads the SDK configuration. Static credentials from config
// take precedence over the default chain.
func loadAWSConfig(ctx context.Context, c AWSConfig) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if c.Region != "" {
		opts = append(opts, awsconfig.WithRegion(c.Region))
	}
	if c.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(c.Profile))
	}
	if c.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AccessKeyID, c.SecretAccessKey, c.SessionToken),
		))
	}
	return awsconfig.LoadDefaultConfig(ctx, opts...)
}

// environMap turns KEY=VALUE pairs into a map.
func environMap(environ []string) map[string]string {
	env := make(map[string]string, len(environ))
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			continue
		}
		env[name] = value
	}
	return env
}
