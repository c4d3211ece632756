// Package service normalizes raw per-service declarations into canonical
// service records.
// This is part of the Functional Core - all functions are pure with no I/O.
package service

import "strconv"

// =============================================================================
// Instance Sizes
// =============================================================================

// Size is an App Runner CPU or memory tier. CPU is measured in 1/1024 vCPU
// units and memory in MB, and both share the same tier values.
type Size int

const (
	Size256  Size = 256
	Size512  Size = 512
	Size1024 Size = 1024
	Size2048 Size = 2048
	Size4096 Size = 4096
)

// Sizes lists the valid tiers in ascending order.
var Sizes = []Size{Size256, Size512, Size1024, Size2048, Size4096}

// Valid reports whether s is one of the supported tiers.
func (s Size) Valid() bool {
	for _, v := range Sizes {
		if s == v {
			return true
		}
	}
	return false
}

// String returns the decimal form used in the compiled template.
func (s Size) String() string {
	return strconv.Itoa(int(s))
}

// =============================================================================
// Defaults
// =============================================================================

const (
	// DefaultMemory is applied when a service does not declare memory.
	DefaultMemory = Size512
	// DefaultCPU is applied when a service does not declare cpu.
	DefaultCPU = Size256
	// DefaultHTTPPort is App Runner's default container port.
	DefaultHTTPPort = 8080
)

// =============================================================================
// Input Types
// =============================================================================

// PolicyStatement is one IAM policy statement, kept opaque.
type PolicyStatement map[string]any

// Network holds VPC egress settings. Subnets and security groups are sets.
type Network struct {
	SubnetIDs        []string `yaml:"subnetIds"`
	SecurityGroupIDs []string `yaml:"securityGroupIds"`
	AssignPublicIP   bool     `yaml:"assignPublicIp"`
}

// RawService is a service exactly as declared by the user.
// Zero values mean "not declared".
type RawService struct {
	ServiceName      string            `yaml:"serviceName"`
	Image            string            `yaml:"image"`
	HTTPPort         int               `yaml:"httpPort"`
	Memory           Size              `yaml:"memory"`
	CPU              Size              `yaml:"cpu"`
	Environment      OrderedMap        `yaml:"environment"`
	Tags             OrderedMap        `yaml:"tags"`
	PolicyStatements []PolicyStatement `yaml:"iamRoleStatements"`
	Network          *Network          `yaml:"vpc"`

	// Task-style fields from an alternate service shape. They are accepted so
	// existing documents keep loading but have no effect on the compiled output.
	ExecutionRoleArn any `yaml:"executionRoleArn"`
	TaskRoleArn      any `yaml:"taskRoleArn"`
}

// IgnoredFields returns the names of declared fields that have no effect.
func (r RawService) IgnoredFields() []string {
	var fields []string
	if r.ExecutionRoleArn != nil {
		fields = append(fields, "executionRoleArn")
	}
	if r.TaskRoleArn != nil {
		fields = append(fields, "taskRoleArn")
	}
	return fields
}

// ProviderDefaults holds provider-level settings inherited by every service.
type ProviderDefaults struct {
	Environment      OrderedMap
	Tags             OrderedMap
	PolicyStatements []PolicyStatement
	Network          Network
}

// =============================================================================
// Canonical Record
// =============================================================================

// Config is the canonical, defaulted, merge-resolved record of one service.
// Normalize returns values that share no maps or slices with its inputs.
type Config struct {
	ServiceName      string
	Image            string
	HTTPPort         int
	Memory           Size
	CPU              Size
	Environment      OrderedMap
	Tags             OrderedMap
	PolicyStatements []PolicyStatement
	Network          Network
}
