package compiler

import (
	"github.com/artpar/runnerform/internal/core/service"
	"github.com/artpar/runnerform/internal/core/template"
)

// =============================================================================
// Resource Types
// =============================================================================

const (
	TypeIAMRole          = "AWS::IAM::Role"
	TypeAppRunnerService = "AWS::AppRunner::Service"
	TypeVpcConnector     = "AWS::AppRunner::VpcConnector"
)

const (
	buildPrincipal = "build.apprunner.amazonaws.com"
	tasksPrincipal = "tasks.apprunner.amazonaws.com"

	ecrAccessPolicyArn = "arn:aws:iam::aws:policy/service-role/AWSAppRunnerServicePolicyForECRAccess"

	imageRepositoryTypeECR = "ECR"
	egressTypeVPC          = "VPC"
)

// =============================================================================
// IAM Role Properties
// =============================================================================

// RoleProperties are the properties of an AWS::IAM::Role.
type RoleProperties struct {
	AssumeRolePolicyDocument TrustPolicy    `json:"AssumeRolePolicyDocument" yaml:"AssumeRolePolicyDocument"`
	ManagedPolicyArns        []string       `json:"ManagedPolicyArns,omitempty" yaml:"ManagedPolicyArns,omitempty"`
	Policies                 []InlinePolicy `json:"Policies,omitempty" yaml:"Policies,omitempty"`
}

// TrustPolicy is a role's assume-role policy document.
type TrustPolicy struct {
	Version   string           `json:"Version,omitempty" yaml:"Version,omitempty"`
	Statement []TrustStatement `json:"Statement" yaml:"Statement"`
}

// TrustStatement allows a service principal to assume the role.
type TrustStatement struct {
	Effect    string    `json:"Effect" yaml:"Effect"`
	Principal Principal `json:"Principal" yaml:"Principal"`
	Action    string    `json:"Action" yaml:"Action"`
}

// Principal names the trusted AWS service principals.
type Principal struct {
	Service []string `json:"Service" yaml:"Service"`
}

// InlinePolicy is a named policy embedded in a role.
type InlinePolicy struct {
	PolicyName     string         `json:"PolicyName" yaml:"PolicyName"`
	PolicyDocument PolicyDocument `json:"PolicyDocument" yaml:"PolicyDocument"`
}

// PolicyDocument holds user-supplied statements verbatim.
type PolicyDocument struct {
	Statement []service.PolicyStatement `json:"Statement" yaml:"Statement"`
}

// =============================================================================
// VPC Connector Properties
// =============================================================================

// VpcConnectorProperties are the properties of an AWS::AppRunner::VpcConnector.
type VpcConnectorProperties struct {
	SecurityGroups   []string `json:"SecurityGroups" yaml:"SecurityGroups"`
	Subnets          []string `json:"Subnets" yaml:"Subnets"`
	VpcConnectorName string   `json:"VpcConnectorName" yaml:"VpcConnectorName"`
}

// =============================================================================
// App Runner Service Properties
// =============================================================================

// ServiceProperties are the properties of an AWS::AppRunner::Service.
type ServiceProperties struct {
	ServiceName           string                `json:"ServiceName" yaml:"ServiceName"`
	SourceConfiguration   SourceConfiguration   `json:"SourceConfiguration" yaml:"SourceConfiguration"`
	Tags                  []Tag                 `json:"Tags" yaml:"Tags"`
	NetworkConfiguration  NetworkConfiguration  `json:"NetworkConfiguration" yaml:"NetworkConfiguration"`
	InstanceConfiguration InstanceConfiguration `json:"InstanceConfiguration" yaml:"InstanceConfiguration"`
}

// SourceConfiguration describes where App Runner pulls the image from.
type SourceConfiguration struct {
	AuthenticationConfiguration AuthenticationConfiguration `json:"AuthenticationConfiguration" yaml:"AuthenticationConfiguration"`
	AutoDeploymentsEnabled      bool                        `json:"AutoDeploymentsEnabled" yaml:"AutoDeploymentsEnabled"`
	ImageRepository             ImageRepository             `json:"ImageRepository" yaml:"ImageRepository"`
}

// AuthenticationConfiguration points at the image access role.
type AuthenticationConfiguration struct {
	AccessRoleArn template.GetAtt `json:"AccessRoleArn" yaml:"AccessRoleArn"`
}

// ImageRepository identifies the image and how to run it.
type ImageRepository struct {
	ImageIdentifier     string             `json:"ImageIdentifier" yaml:"ImageIdentifier"`
	ImageRepositoryType string             `json:"ImageRepositoryType" yaml:"ImageRepositoryType"`
	ImageConfiguration  ImageConfiguration `json:"ImageConfiguration" yaml:"ImageConfiguration"`
}

// ImageConfiguration holds the container port and environment.
type ImageConfiguration struct {
	Port                        string         `json:"Port" yaml:"Port"`
	RuntimeEnvironmentVariables []KeyValuePair `json:"RuntimeEnvironmentVariables" yaml:"RuntimeEnvironmentVariables"`
}

// KeyValuePair is one runtime environment variable.
type KeyValuePair struct {
	Name  string `json:"Name" yaml:"Name"`
	Value string `json:"Value" yaml:"Value"`
}

// Tag is one resource tag.
type Tag struct {
	Key   string `json:"Key" yaml:"Key"`
	Value string `json:"Value" yaml:"Value"`
}

// NetworkConfiguration routes outbound traffic.
type NetworkConfiguration struct {
	EgressConfiguration EgressConfiguration `json:"EgressConfiguration" yaml:"EgressConfiguration"`
}

// EgressConfiguration sends egress through the shared VPC connector.
type EgressConfiguration struct {
	EgressType      string          `json:"EgressType" yaml:"EgressType"`
	VpcConnectorArn template.GetAtt `json:"VpcConnectorArn" yaml:"VpcConnectorArn"`
}

// InstanceConfiguration sizes the instances and attaches the instance role.
type InstanceConfiguration struct {
	Cpu             string          `json:"Cpu" yaml:"Cpu"`
	Memory          string          `json:"Memory" yaml:"Memory"`
	InstanceRoleArn template.GetAtt `json:"InstanceRoleArn" yaml:"InstanceRoleArn"`
}

// =============================================================================
// Conversions
// =============================================================================

func toEnvironment(m service.OrderedMap) []KeyValuePair {
	out := make([]KeyValuePair, 0, m.Len())
	for _, p := range m.Pairs() {
		out = append(out, KeyValuePair{Name: p.Key, Value: p.Value})
	}
	return out
}

func toTags(m service.OrderedMap) []Tag {
	out := make([]Tag, 0, m.Len())
	for _, p := range m.Pairs() {
		out = append(out, Tag{Key: p.Key, Value: p.Value})
	}
	return out
}
