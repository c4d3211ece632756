// Package pipeline runs a document through normalization, network
// verification, image resolution, compilation and rendering.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/artpar/runnerform/internal/core/compiler"
	"github.com/artpar/runnerform/internal/core/compose"
	"github.com/artpar/runnerform/internal/core/manifest"
	"github.com/artpar/runnerform/internal/core/service"
	"github.com/artpar/runnerform/internal/core/template"
	"github.com/artpar/runnerform/internal/shell/image"
	"github.com/artpar/runnerform/internal/shell/network"
)

// =============================================================================
// Stages
// =============================================================================

// Stage names a pipeline step.
type Stage string

const (
	StageLoad      Stage = "load"
	StageNormalize Stage = "normalize"
	StageVerify    Stage = "verify"
	StageResolve   Stage = "resolve"
	StageCompile   Stage = "compile"
	StageRender    Stage = "render"
)

// ErrComposeNotAllowed is returned when a document read without a base
// directory references a compose file.
var ErrComposeNotAllowed = errors.New("compose references are not allowed here")

// StageError reports the step a pipeline run failed in.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// StageOf returns the stage err failed in, or "" when err did not come from
// a pipeline.
func StageOf(err error) Stage {
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr.Stage
	}
	return ""
}

// =============================================================================
// Pipeline
// =============================================================================

// Options configures a Pipeline.
type Options struct {
	// Concurrency bounds in-flight image resolutions; <= 0 is unbounded.
	Concurrency int
	// Environ supplies ${VAR} values for imported compose files.
	Environ map[string]string
}

// Pipeline compiles documents. It is safe for concurrent use when its
// resolver and verifier are.
type Pipeline struct {
	resolver image.Resolver
	verifier network.Verifier
	opts     Options
	logger   *slog.Logger
}

// New creates a Pipeline. A nil verifier skips network verification.
func New(resolver image.Resolver, verifier network.Verifier, opts Options, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		resolver: resolver,
		verifier: verifier,
		opts:     opts,
		logger:   logger.With("component", "pipeline"),
	}
}

// Result is the outcome of a successful run.
type Result struct {
	Stage    string
	Fragment *template.Fragment
	// Images maps each service id to its resolved image reference.
	Images map[string]string
}

// =============================================================================
// Loading
// =============================================================================

// LoadFile reads and parses the document at path. A compose file referenced
// by the document is read relative to the document's directory.
func (p *Pipeline) LoadFile(path string) (*manifest.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &StageError{Stage: StageLoad, Err: fmt.Errorf("read document: %w", err)}
	}
	return p.Load(data, filepath.Dir(path))
}

// Load parses a document. baseDir resolves the document's compose reference;
// an empty baseDir rejects documents that have one.
func (p *Pipeline) Load(data []byte, baseDir string) (*manifest.Document, error) {
	doc, err := manifest.Parse(data)
	if err != nil {
		return nil, &StageError{Stage: StageLoad, Err: err}
	}

	ref := doc.AppRunner.Compose
	if ref == "" {
		return doc, nil
	}
	if baseDir == "" {
		return nil, &StageError{Stage: StageLoad, Err: fmt.Errorf("%w: %s", ErrComposeNotAllowed, ref)}
	}

	path := ref
	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, &StageError{Stage: StageLoad, Err: fmt.Errorf("read compose file: %w", err)}
	}

	for _, name := range compose.ReferencedVariables(string(content)) {
		if _, ok := p.opts.Environ[name]; !ok {
			p.logger.Warn("compose variable is not set", "variable", name, "file", path)
		}
	}

	imported, err := compose.ImportServices(string(content), p.opts.Environ)
	if err != nil {
		return nil, &StageError{Stage: StageLoad, Err: fmt.Errorf("import %s: %w", path, err)}
	}
	doc, err = doc.WithImported(imported)
	if err != nil {
		return nil, &StageError{Stage: StageLoad, Err: err}
	}

	p.logger.Info("compose services imported", "file", path, "count", len(imported))
	return doc, nil
}

// =============================================================================
// Running
// =============================================================================

// Run compiles doc for stage. An empty stage falls back to the document's
// stage and then to manifest.DefaultStage.
func (p *Pipeline) Run(ctx context.Context, doc *manifest.Document, stage string) (*Result, error) {
	stage = doc.ResolveStage(stage)
	logger := p.logger.With("namespace", doc.Service, "stage", stage)

	for id, fields := range doc.IgnoredFields() {
		logger.Warn("ignoring fields with no effect on App Runner services", "service", id, "fields", fields)
	}

	defaults := doc.Defaults()
	configs, err := service.NormalizeAll(defaults, doc.AppRunner.Services)
	if err != nil {
		return nil, &StageError{Stage: StageNormalize, Err: err}
	}

	if p.verifier != nil {
		if err := p.verifier.Verify(ctx, defaults.Network); err != nil {
			return nil, &StageError{Stage: StageVerify, Err: err}
		}
	}

	specs := make(map[string]string, len(configs))
	for id, cfg := range configs {
		specs[id] = cfg.Image
	}
	images, err := image.ResolveAll(ctx, p.resolver, specs, p.opts.Concurrency)
	if err != nil {
		return nil, &StageError{Stage: StageResolve, Err: err}
	}

	fragment, err := compiler.Compile(configs, images, compiler.Settings{
		Namespace: doc.Service,
		Stage:     stage,
		Network:   defaults.Network,
	})
	if err != nil {
		return nil, &StageError{Stage: StageCompile, Err: err}
	}

	logger.Info("fragment compiled",
		"services", len(configs),
		"resources", len(fragment.Resources),
		"outputs", len(fragment.Outputs),
	)
	return &Result{Stage: stage, Fragment: fragment, Images: images}, nil
}

// =============================================================================
// Rendering
// =============================================================================

// RenderOptions controls how a fragment is written.
type RenderOptions struct {
	Format template.Format
	// Base, when set, is merged with the fragment and the merged template is
	// written instead of the bare fragment.
	Base   *template.Template
	Policy template.CollisionPolicy
}

// Render writes fragment to w, merged into opts.Base when one is given.
func Render(w io.Writer, fragment *template.Fragment, opts RenderOptions) error {
	var out any = fragment
	if opts.Base != nil {
		merged, err := template.Merge(opts.Base, fragment, opts.Policy)
		if err != nil {
			return &StageError{Stage: StageRender, Err: err}
		}
		out = merged
	}
	if err := template.Encode(w, out, opts.Format); err != nil {
		return &StageError{Stage: StageRender, Err: err}
	}
	return nil
}
