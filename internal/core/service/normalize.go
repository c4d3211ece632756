package service

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
)

// =============================================================================
// Normalization
// =============================================================================

// Normalize merges provider defaults into a raw service and applies field
// defaults.
//
// Merge rules:
//   - Environment and Tags: union, service values win on shared keys
//   - PolicyStatements: provider statements first, then service statements
//   - Network: the service's own network when declared, else the provider's
//
// Normalize fails fast when serviceName or image is missing, when memory or
// cpu is not a supported tier, or when httpPort is out of range. The returned
// Config shares no maps or slices with its inputs.
func Normalize(defaults ProviderDefaults, raw RawService) (Config, error) {
	if strings.TrimSpace(raw.ServiceName) == "" {
		return Config{}, NewConfigError("serviceName", "serviceName is required", ErrMissingServiceName)
	}
	if strings.TrimSpace(raw.Image) == "" {
		return Config{}, NewConfigError("image", "image is required", ErrMissingImage)
	}

	memory, err := sizeOrDefault("memory", raw.Memory, DefaultMemory)
	if err != nil {
		return Config{}, err
	}
	cpu, err := sizeOrDefault("cpu", raw.CPU, DefaultCPU)
	if err != nil {
		return Config{}, err
	}

	port := raw.HTTPPort
	if port == 0 {
		port = DefaultHTTPPort
	}
	if port < 1 || port > 65535 {
		return Config{}, NewConfigError("httpPort", fmt.Sprintf("port %d must be between 1 and 65535", port), ErrInvalidPort)
	}

	network := defaults.Network
	if raw.Network != nil {
		network = *raw.Network
	}

	return Config{
		ServiceName:      raw.ServiceName,
		Image:            raw.Image,
		HTTPPort:         port,
		Memory:           memory,
		CPU:              cpu,
		Environment:      MergeOrdered(defaults.Environment, raw.Environment),
		Tags:             MergeOrdered(defaults.Tags, raw.Tags),
		PolicyStatements: mergeStatements(defaults.PolicyStatements, raw.PolicyStatements),
		Network:          NormalizeNetwork(network),
	}, nil
}

// NormalizeAll normalizes every service. Failures are collected for all
// services, in sorted service id order, and returned joined.
func NormalizeAll(defaults ProviderDefaults, raws map[string]RawService) (map[string]Config, error) {
	ids := make([]string, 0, len(raws))
	for id := range raws {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	configs := make(map[string]Config, len(raws))
	var errs []error
	for _, id := range ids {
		cfg, err := Normalize(defaults, raws[id])
		if err != nil {
			var cfgErr *ConfigError
			if errors.As(err, &cfgErr) {
				scoped := *cfgErr
				scoped.ServiceID = id
				err = &scoped
			}
			errs = append(errs, err)
			continue
		}
		configs[id] = cfg
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return configs, nil
}

// NormalizeNetwork returns n with subnets and security groups sorted and
// de-duplicated.
func NormalizeNetwork(n Network) Network {
	return Network{
		SubnetIDs:        sortedSet(n.SubnetIDs),
		SecurityGroupIDs: sortedSet(n.SecurityGroupIDs),
		AssignPublicIP:   n.AssignPublicIP,
	}
}

func sizeOrDefault(field string, s, def Size) (Size, error) {
	if s == 0 {
		return def, nil
	}
	if !s.Valid() {
		return 0, NewConfigError(field, fmt.Sprintf("%d is not one of %v", s, Sizes), ErrInvalidSize)
	}
	return s, nil
}

func mergeStatements(provider, svc []PolicyStatement) []PolicyStatement {
	out := make([]PolicyStatement, 0, len(provider)+len(svc))
	for _, s := range provider {
		out = append(out, maps.Clone(s))
	}
	for _, s := range svc {
		out = append(out, maps.Clone(s))
	}
	return out
}

func sortedSet(values []string) []string {
	out := slices.Clone(values)
	if out == nil {
		out = []string{}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
