// Package template models CloudFormation template fragments: resources,
// outputs and attribute references, plus the graph builder that assembles
// them and the merge into a host template.
// This is part of the Functional Core - all functions are pure with no I/O.
package template

import (
	"encoding/json"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// Resources and Outputs
// =============================================================================

// Resource is one entry of a template's Resources section.
type Resource struct {
	Type                string         `json:"Type" yaml:"Type"`
	Properties          any            `json:"Properties,omitempty" yaml:"Properties,omitempty"`
	DependsOn           any            `json:"DependsOn,omitempty" yaml:"DependsOn,omitempty"`
	Condition           string         `json:"Condition,omitempty" yaml:"Condition,omitempty"`
	CreationPolicy      any            `json:"CreationPolicy,omitempty" yaml:"CreationPolicy,omitempty"`
	UpdatePolicy        any            `json:"UpdatePolicy,omitempty" yaml:"UpdatePolicy,omitempty"`
	DeletionPolicy      string         `json:"DeletionPolicy,omitempty" yaml:"DeletionPolicy,omitempty"`
	UpdateReplacePolicy string         `json:"UpdateReplacePolicy,omitempty" yaml:"UpdateReplacePolicy,omitempty"`
	Metadata            map[string]any `json:"Metadata,omitempty" yaml:"Metadata,omitempty"`
}

// Output is one entry of a template's Outputs section.
type Output struct {
	Description string  `json:"Description,omitempty" yaml:"Description,omitempty"`
	Value       any     `json:"Value" yaml:"Value"`
	Export      *Export `json:"Export,omitempty" yaml:"Export,omitempty"`
	Condition   string  `json:"Condition,omitempty" yaml:"Condition,omitempty"`
}

// Export names an output for cross-stack import.
type Export struct {
	Name any `json:"Name" yaml:"Name"`
}

// Fragment is the compiled unit handed to the host template.
type Fragment struct {
	Resources map[string]Resource `json:"Resources" yaml:"Resources"`
	Outputs   map[string]Output   `json:"Outputs" yaml:"Outputs"`
}

// Template is a host CloudFormation template.
type Template struct {
	AWSTemplateFormatVersion string              `json:"AWSTemplateFormatVersion,omitempty" yaml:"AWSTemplateFormatVersion,omitempty"`
	Description              string              `json:"Description,omitempty" yaml:"Description,omitempty"`
	Transform                any                 `json:"Transform,omitempty" yaml:"Transform,omitempty"`
	Metadata                 map[string]any      `json:"Metadata,omitempty" yaml:"Metadata,omitempty"`
	Parameters               map[string]any      `json:"Parameters,omitempty" yaml:"Parameters,omitempty"`
	Rules                    map[string]any      `json:"Rules,omitempty" yaml:"Rules,omitempty"`
	Mappings                 map[string]any      `json:"Mappings,omitempty" yaml:"Mappings,omitempty"`
	Conditions               map[string]any      `json:"Conditions,omitempty" yaml:"Conditions,omitempty"`
	Resources                map[string]Resource `json:"Resources" yaml:"Resources"`
	Outputs                  map[string]Output   `json:"Outputs,omitempty" yaml:"Outputs,omitempty"`
}

// =============================================================================
// Attribute References
// =============================================================================

// GetAtt references an attribute of another resource in the same template.
// It is resolved by CloudFormation at apply time.
type GetAtt struct {
	LogicalID string
	Attribute string
}

type getAttForm struct {
	GetAtt [2]string `json:"Fn::GetAtt" yaml:"Fn::GetAtt,flow"`
}

// MarshalJSON renders {"Fn::GetAtt": [id, attr]}.
func (g GetAtt) MarshalJSON() ([]byte, error) {
	return json.Marshal(getAttForm{GetAtt: [2]string{g.LogicalID, g.Attribute}})
}

// MarshalYAML renders the long-form Fn::GetAtt mapping.
func (g GetAtt) MarshalYAML() (any, error) {
	return getAttForm{GetAtt: [2]string{g.LogicalID, g.Attribute}}, nil
}

var _ yaml.Marshaler = GetAtt{}
