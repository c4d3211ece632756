package compose

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/artpar/runnerform/internal/core/service"
	"github.com/compose-spec/compose-go/v2/loader"
	"github.com/compose-spec/compose-go/v2/types"
	"gopkg.in/yaml.v3"
)

const (
	// cpuUnitsPerCore converts compose "cpus" into App Runner CPU units.
	cpuUnitsPerCore = 1024
	bytesPerMiB     = 1024 * 1024
)

// =============================================================================
// Import
// =============================================================================

// ImportServices converts the services of a Docker Compose file into raw
// service declarations keyed by compose service name.
//
// Mapping:
//   - image: image (build-only services are rejected)
//   - container_name, else the compose service name: serviceName
//   - first ports entry's target: httpPort
//   - environment: environment, sorted by name
//   - labels: tags, sorted by key
//   - deploy.resources.limits.cpus and .memory: cpu and memory, rounded up
//     to the nearest supported tier
//
// env supplies values for ${VAR} interpolation; unset variables interpolate
// to the empty string.
// This is a pure function - no I/O, no side effects.
func ImportServices(yamlContent string, env map[string]string) (map[string]service.RawService, error) {
	if strings.TrimSpace(yamlContent) == "" {
		return nil, ErrEmptyInput
	}

	project, err := loadComposeSpec(yamlContent, env)
	if err != nil {
		return nil, err
	}

	if err := checkUnsupportedFeatures(project); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(project.Services))
	for name := range project.Services {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(map[string]service.RawService, len(names))
	for _, name := range names {
		raw, err := convertService(name, project.Services[name])
		if err != nil {
			return nil, err
		}
		out[name] = raw
	}
	return out, nil
}

// loadComposeSpec loads a compose spec using compose-go
func loadComposeSpec(yamlContent string, env map[string]string) (*types.Project, error) {
	var dict map[string]interface{}
	if err := yaml.Unmarshal([]byte(yamlContent), &dict); err != nil {
		return nil, NewParseError("", "invalid YAML syntax", ErrInvalidYAML)
	}
	if dict == nil {
		return nil, NewParseError("", "invalid YAML syntax", ErrInvalidYAML)
	}

	project, err := loader.LoadWithContext(context.Background(), types.ConfigDetails{
		ConfigFiles: []types.ConfigFile{
			{
				Content: []byte(yamlContent),
				Config:  dict,
			},
		},
		Environment: types.Mapping(env),
	}, func(opts *loader.Options) {
		opts.SetProjectName("runnerform-import", false)
		opts.SkipValidation = false
		opts.SkipInterpolation = false
		// In-memory content, no paths to resolve or files to extend
		opts.SkipNormalization = true
		opts.SkipExtends = true
	})
	if err != nil {
		return nil, NewParseError("", err.Error(), ErrInvalidYAML)
	}

	return project, nil
}

// checkUnsupportedFeatures rejects compose features App Runner has no
// equivalent for.
func checkUnsupportedFeatures(project *types.Project) error {
	if len(project.Secrets) > 0 {
		return NewParseError("secrets", "secrets are not supported", ErrUnsupportedFeature)
	}
	if len(project.Configs) > 0 {
		return NewParseError("configs", "configs are not supported", ErrUnsupportedFeature)
	}

	for name, svc := range project.Services {
		if svc.Extends != nil && svc.Extends.File != "" {
			return NewParseError("services."+name+".extends", "extends is not supported", ErrUnsupportedFeature)
		}
		if len(svc.Volumes) > 0 {
			return NewParseError("services."+name+".volumes", "volumes are not supported", ErrUnsupportedFeature)
		}
	}

	return nil
}

// =============================================================================
// Conversion
// =============================================================================

func convertService(name string, svc types.ServiceConfig) (service.RawService, error) {
	field := "services." + name

	if svc.Image == "" {
		return service.RawService{}, NewParseError(field, "service must have an image; build-only services cannot be imported", ErrServiceNoImage)
	}

	raw := service.RawService{
		ServiceName: name,
		Image:       svc.Image,
	}
	if svc.ContainerName != "" {
		raw.ServiceName = svc.ContainerName
	}

	if len(svc.Ports) > 0 {
		target := svc.Ports[0].Target
		if target == 0 || target > 65535 {
			return service.RawService{}, NewParseError(field+".ports[0]", fmt.Sprintf("target port %d must be between 1 and 65535", target), ErrServiceInvalidPort)
		}
		raw.HTTPPort = int(target)
	}

	envKeys := make([]string, 0, len(svc.Environment))
	for k, v := range svc.Environment {
		if v != nil {
			envKeys = append(envKeys, k)
		}
	}
	sort.Strings(envKeys)
	for _, k := range envKeys {
		raw.Environment.Set(k, *svc.Environment[k])
	}

	labelKeys := make([]string, 0, len(svc.Labels))
	for k := range svc.Labels {
		labelKeys = append(labelKeys, k)
	}
	sort.Strings(labelKeys)
	for _, k := range labelKeys {
		raw.Tags.Set(k, svc.Labels[k])
	}

	// compose-go's NanoCPUs is misnamed - it's the CPU count as float32
	if svc.Deploy != nil && svc.Deploy.Resources.Limits != nil {
		limits := svc.Deploy.Resources.Limits

		if limits.NanoCPUs != 0 {
			units := math.Ceil(float64(limits.NanoCPUs) * cpuUnitsPerCore)
			cpu, ok := tierFor(units)
			if !ok {
				return service.RawService{}, NewParseError(field+".deploy.resources.limits.cpus",
					fmt.Sprintf("%v cpus is outside the supported range", limits.NanoCPUs), ErrInvalidCPU)
			}
			raw.CPU = cpu
		}

		if limits.MemoryBytes != 0 {
			mib := math.Ceil(float64(limits.MemoryBytes) / bytesPerMiB)
			memory, ok := tierFor(mib)
			if !ok {
				return service.RawService{}, NewParseError(field+".deploy.resources.limits.memory",
					fmt.Sprintf("%d bytes is outside the supported range", int64(limits.MemoryBytes)), ErrInvalidMemory)
			}
			raw.Memory = memory
		}
	}

	return raw, nil
}

// tierFor returns the smallest supported tier that fits v.
func tierFor(v float64) (service.Size, bool) {
	if v <= 0 {
		return 0, false
	}
	for _, tier := range service.Sizes {
		if v <= float64(tier) {
			return tier, true
		}
	}
	return 0, false
}

// =============================================================================
// Variable Extraction
// =============================================================================

// variablePlaceholderRegex matches ${VAR_NAME} or ${VAR_NAME:-default}
var variablePlaceholderRegex = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-[^}]*)?\}`)

// ReferencedVariables extracts environment variable placeholders from raw
// YAML content, before interpolation. Returns unique variable names without
// the ${} wrapper, in order of first appearance.
func ReferencedVariables(yamlContent string) []string {
	seen := make(map[string]bool)
	var vars []string

	matches := variablePlaceholderRegex.FindAllStringSubmatch(yamlContent, -1)
	for _, match := range matches {
		if len(match) >= 2 {
			varName := match[1]
			if !seen[varName] {
				seen[varName] = true
				vars = append(vars, varName)
			}
		}
	}

	return vars
}
