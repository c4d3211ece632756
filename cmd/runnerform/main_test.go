package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/artpar/runnerform/internal/shell/pipeline"
)

// =============================================================================
// Test Helpers
// =============================================================================

const webDocument = `
service: shop
stage: dev
provider:
  vpc:
    subnetIds: [subnet-a, subnet-b]
    securityGroupIds: [sg-1]
apprunner:
  services:
    web:
      serviceName: web
      image: registry/img:tag
      httpPort: 80
`

type cliResult struct {
	code   int
	stdout string
	stderr string
}

func runCLI(t *testing.T, args ...string) cliResult {
	t.Helper()
	clearEnv(t)
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return cliResult{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

type fragmentJSON struct {
	AWSTemplateFormatVersion string                    `json:"AWSTemplateFormatVersion"`
	Resources                map[string]map[string]any `json:"Resources"`
	Outputs                  map[string]any            `json:"Outputs"`
}

// =============================================================================
// Command Dispatch Tests
// =============================================================================

func TestRun_NoArgs(t *testing.T) {
	res := runCLI(t)
	assert.Equal(t, ExitConfigError, res.code)
	assert.Contains(t, res.stdout, "compile")
	assert.Contains(t, res.stdout, "serve")
}

func TestRun_Version(t *testing.T) {
	res := runCLI(t, "version")
	assert.Equal(t, ExitSuccess, res.code)
	assert.Contains(t, res.stdout, "runnerform dev")
}

func TestRun_VersionFlag(t *testing.T) {
	res := runCLI(t, "--version")
	assert.Equal(t, ExitSuccess, res.code)
	assert.Contains(t, res.stdout, "dev")
}

func TestRun_UnknownCommand(t *testing.T) {
	res := runCLI(t, "deploy")
	assert.Equal(t, ExitConfigError, res.code)
	assert.Contains(t, res.stderr, `unknown command "deploy"`)
}

// =============================================================================
// Compile Command Tests
// =============================================================================

func TestCompile_Stdout(t *testing.T) {
	path := writeFile(t, t.TempDir(), "runnerform.yml", webDocument)

	res := runCLI(t, "compile", "-f", path)
	require.Equal(t, ExitSuccess, res.code, res.stderr)

	var fragment fragmentJSON
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &fragment))
	assert.Len(t, fragment.Resources, 4)
	assert.Contains(t, fragment.Resources, "WebAppRunnerService")
	assert.Contains(t, fragment.Outputs, "WebAppRunnerServiceUrl")
}

func TestCompile_OutputFileYAML(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "runnerform.yml", webDocument)
	out := filepath.Join(dir, "fragment.yaml")

	res := runCLI(t, "compile", "-f", path, "-format", "yaml", "-stage", "prod", "-o", out)
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Empty(t, res.stdout)

	data, err := os.ReadFile(out)
	require.NoError(t, err)

	var fragment map[string]any
	require.NoError(t, yaml.Unmarshal(data, &fragment))
	assert.Contains(t, fragment, "Resources")
	assert.Contains(t, string(data), "shop-prod-vpc-connector-94d7de")
}

func TestCompile_Deterministic(t *testing.T) {
	path := writeFile(t, t.TempDir(), "runnerform.yml", webDocument)

	first := runCLI(t, "compile", "-f", path)
	second := runCLI(t, "compile", "-f", path)
	require.Equal(t, ExitSuccess, first.code)
	assert.Equal(t, first.stdout, second.stdout)
}

func TestCompile_ComposeImport(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "docker-compose.yml", `
services:
  worker:
    image: registry/worker:${WORKER_TAG}
    ports:
      - "9000"
`)
	path := writeFile(t, dir, "runnerform.yml", webDocument+"  compose: docker-compose.yml\n")
	t.Setenv("WORKER_TAG", "7")

	res := runCLI(t, "compile", "-f", path)
	require.Equal(t, ExitSuccess, res.code, res.stderr)

	var fragment fragmentJSON
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &fragment))
	assert.Contains(t, fragment.Resources, "WorkerAppRunnerService")
	assert.Contains(t, res.stdout, "registry/worker:7")
}

func TestCompile_Merge(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "runnerform.yml", webDocument)
	base := writeFile(t, dir, "template.json", `{
  "AWSTemplateFormatVersion": "2010-09-09",
  "Resources": {"Bucket": {"Type": "AWS::S3::Bucket"}}
}`)

	res := runCLI(t, "compile", "-f", path, "-merge", base)
	require.Equal(t, ExitSuccess, res.code, res.stderr)

	var merged fragmentJSON
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &merged))
	assert.Equal(t, "2010-09-09", merged.AWSTemplateFormatVersion)
	assert.Len(t, merged.Resources, 5)
}

func TestCompile_MergeCollision(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "runnerform.yml", webDocument)
	base := writeFile(t, dir, "template.json", `{"Resources": {"WebAppRunnerService": {"Type": "AWS::S3::Bucket"}}}`)
	out := filepath.Join(dir, "out.json")

	res := runCLI(t, "compile", "-f", path, "-merge", base, "-o", out)
	assert.Equal(t, ExitCompileError, res.code)
	assert.Contains(t, res.stderr, "WebAppRunnerService")
	_, err := os.Stat(out)
	assert.True(t, errors.Is(err, os.ErrNotExist))

	res = runCLI(t, "compile", "-f", path, "-merge", base, "-overwrite")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, "AWS::AppRunner::Service")
}

func TestCompile_ExitCodes(t *testing.T) {
	tests := []struct {
		name     string
		document string
		args     []string
		wantCode int
	}{
		{
			name:     "missing document",
			args:     []string{"-f", "/nonexistent/runnerform.yml"},
			wantCode: ExitDocumentError,
		},
		{
			name:     "unknown field",
			document: "service: shop\nbogus: 1\n",
			wantCode: ExitDocumentError,
		},
		{
			name:     "missing service name",
			document: "service: shop\napprunner:\n  services:\n    web:\n      image: img\n",
			wantCode: ExitDocumentError,
		},
		{
			name:     "invalid image reference",
			document: "service: shop\napprunner:\n  services:\n    web:\n      serviceName: web\n      image: 'UPPER CASE'\n",
			wantCode: ExitResolutionError,
		},
		{
			name:     "identifier collision",
			document: "service: shop\napprunner:\n  services:\n    my-app:\n      serviceName: a\n      image: img\n    My--App:\n      serviceName: b\n      image: img\n",
			wantCode: ExitCompileError,
		},
		{
			name:     "unknown resolver",
			document: webDocument,
			args:     []string{"-resolver", "registry"},
			wantCode: ExitConfigError,
		},
		{
			name:     "unknown format",
			document: webDocument,
			args:     []string{"-format", "xml"},
			wantCode: ExitConfigError,
		},
		{
			name:     "unknown flag",
			document: webDocument,
			args:     []string{"-bogus"},
			wantCode: ExitConfigError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := []string{"compile"}
			if tt.document != "" {
				args = append(args, "-f", writeFile(t, t.TempDir(), "runnerform.yml", tt.document))
			}
			args = append(args, tt.args...)

			res := runCLI(t, args...)
			assert.Equal(t, tt.wantCode, res.code, res.stderr)
			assert.Empty(t, res.stdout)
		})
	}
}

// =============================================================================
// Helper Tests
// =============================================================================

func TestExitCodeFor(t *testing.T) {
	tests := []struct {
		stage pipeline.Stage
		want  int
	}{
		{pipeline.StageLoad, ExitDocumentError},
		{pipeline.StageNormalize, ExitDocumentError},
		{pipeline.StageVerify, ExitResolutionError},
		{pipeline.StageResolve, ExitResolutionError},
		{pipeline.StageCompile, ExitCompileError},
		{pipeline.StageRender, ExitCompileError},
	}

	for _, tt := range tests {
		t.Run(string(tt.stage), func(t *testing.T) {
			err := &pipeline.StageError{Stage: tt.stage, Err: errors.New("boom")}
			assert.Equal(t, tt.want, exitCodeFor(err))
		})
	}

	assert.Equal(t, ExitConfigError, exitCodeFor(errors.New("plain")))
}

func TestEnvironMap(t *testing.T) {
	env := environMap([]string{"A=1", "B=x=y", "EMPTY=", "=skipped", "NOEQUALS"})

	assert.Equal(t, map[string]string{"A": "1", "B": "x=y", "EMPTY": ""}, env)
}

func TestExitError(t *testing.T) {
	inner := errors.New("listen failed")
	err := &ExitError{Op: "Start", Err: inner, ExitCode: ExitHTTPServerError}

	assert.Equal(t, "Start: listen failed", err.Error())
	assert.True(t, errors.Is(err, inner))
}
