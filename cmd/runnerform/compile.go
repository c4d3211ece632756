package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/artpar/runnerform/internal/core/template"
	"github.com/artpar/runnerform/internal/shell/pipeline"
)

func compileCommand() *cli.Command {
	return &cli.Command{
		Name:         "compile",
		Usage:        "Compile a service document into a CloudFormation fragment",
		OnUsageError: onUsageError,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "file",
				Aliases: []string{"f"},
				Value:   "runnerform.yml",
				Usage:   "Path to the service document",
			},
			&cli.StringFlag{
				Name:  "stage",
				Usage: "Deployment stage (defaults to the document's stage)",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write the result to this file instead of stdout",
			},
			&cli.StringFlag{
				Name:  "format",
				Usage: "Output format (json, yaml)",
			},
			&cli.StringFlag{
				Name:  "merge",
				Usage: "Merge the fragment into this CloudFormation template",
			},
			&cli.BoolFlag{
				Name:  "overwrite",
				Usage: "Let the fragment replace colliding template entries",
			},
			&cli.StringFlag{
				Name:  "resolver",
				Usage: "Image resolver (static, ecr, docker)",
			},
			&cli.BoolFlag{
				Name:  "verify-network",
				Usage: "Check subnets and security groups exist before compiling",
			},
			configFlag(),
		},
		Action: runCompile,
	}
}

// applyCompileFlags overrides cfg with the flags that were given.
func applyCompileFlags(c *cli.Context, cfg *Config) {
	if c.IsSet("stage") {
		cfg.Compile.Stage = c.String("stage")
	}
	if c.IsSet("format") {
		cfg.Compile.Format = c.String("format")
	}
	if c.Bool("overwrite") {
		cfg.Compile.Collision = template.CollisionOverwrite.String()
	}
	if c.IsSet("resolver") {
		cfg.Resolver.Mode = c.String("resolver")
	}
	if c.Bool("verify-network") {
		cfg.Network.Verify = true
	}
}

// runCompile implements "runnerform compile".
func runCompile(c *cli.Context) error {
	if c.NArg() > 0 {
		err := fmt.Errorf("unexpected arguments: %v", c.Args().Slice())
		return onUsageError(c, err, true)
	}

	stderr := c.App.ErrWriter
	cfg, err := LoadConfig(c.String("config"))
	if err != nil {
		fmt.Fprintf(stderr, "configuration error: %v\n", err)
		return &ExitError{Op: "LoadConfig", Err: err, ExitCode: ExitConfigError}
	}
	applyCompileFlags(c, cfg)

	logger := SetupLogger(cfg, stderr)

	format, err := template.ParseFormat(cfg.Compile.Format)
	if err != nil {
		return fail(logger, "ParseFormat", err, ExitConfigError)
	}
	policy, err := template.ParseCollisionPolicy(cfg.Compile.Collision)
	if err != nil {
		return fail(logger, "ParseCollisionPolicy", err, ExitConfigError)
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if cfg.Resolver.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Resolver.Timeout)
		defer cancel()
	}

	p, cleanup, err := buildPipeline(ctx, cfg, logger)
	if err != nil {
		return reportExitError(logger, err)
	}
	defer cleanup()

	var base *template.Template
	if path := c.String("merge"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return fail(logger, "readTemplate", err, ExitCompileError)
		}
		base, err = template.DecodeTemplate(data)
		if err != nil {
			return fail(logger, "DecodeTemplate", err, ExitCompileError)
		}
	}

	file := c.String("file")
	doc, err := p.LoadFile(file)
	if err != nil {
		return fail(logger, "LoadFile", err, exitCodeFor(err))
	}

	result, err := p.Run(ctx, doc, cfg.Compile.Stage)
	if err != nil {
		return fail(logger, "Run", err, exitCodeFor(err))
	}

	// Render before opening the destination; a failed merge must not
	// truncate an existing output file.
	var buf bytes.Buffer
	if err := pipeline.Render(&buf, result.Fragment, pipeline.RenderOptions{
		Format: format,
		Base:   base,
		Policy: policy,
	}); err != nil {
		return fail(logger, "Render", err, exitCodeFor(err))
	}

	output := c.String("output")
	if output == "" {
		if _, err := c.App.Writer.Write(buf.Bytes()); err != nil {
			return fail(logger, "writeOutput", err, ExitCompileError)
		}
		return nil
	}

	if err := os.WriteFile(output, buf.Bytes(), 0o644); err != nil {
		return fail(logger, "writeOutput", err, ExitCompileError)
	}
	logger.Info("output written", "path", output, "stage", result.Stage, "format", format)
	return nil
}

// fail logs err and wraps it with the exit code it should end the process
// with.
func fail(logger *slog.Logger, op string, err error, code int) error {
	logger.Error("operation failed",
		"operation", op,
		"stage", pipeline.StageOf(err),
		"error", err,
	)
	return &ExitError{Op: op, Err: err, ExitCode: code}
}

// reportExitError logs err, keeping the exit code of an *ExitError.
func reportExitError(logger *slog.Logger, err error) error {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		logger.Error("operation failed", "operation", exitErr.Op, "error", exitErr.Err)
		return exitErr
	}
	return fail(logger, "unknown", err, ExitConfigError)
}
