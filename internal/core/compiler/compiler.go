// Package compiler turns canonical service records into an App Runner
// CloudFormation fragment.
//
// The fragment always holds two shared resources, the image access role and
// the VPC connector, plus an instance role, a service and a URL output per
// declared service. Cross-resource wiring uses Fn::GetAtt references, never
// physical names, since those are assigned at apply time.
//
// Compile is pure: the same services, images and settings produce a
// structurally identical fragment on every call.
package compiler

import (
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/artpar/runnerform/internal/core/naming"
	"github.com/artpar/runnerform/internal/core/service"
	"github.com/artpar/runnerform/internal/core/template"
)

// ErrMissingImageReference is returned when a declared service has no
// resolved image.
var ErrMissingImageReference = errors.New("no resolved image reference")

// Settings carries the document-level inputs of a compilation.
type Settings struct {
	// Namespace is the service namespace prefixed to physical names.
	Namespace string
	// Stage is the deployment stage prefixed to physical names.
	Stage string
	// Network is the provider-level network the shared connector is built from.
	Network service.Network
}

// CompileError reports which service a compilation failure belongs to.
type CompileError struct {
	ServiceID string
	Err       error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("compile service %q: %v", e.ServiceID, e.Err)
}

func (e *CompileError) Unwrap() error {
	return e.Err
}

// Compile builds the fragment for services. images maps every service id to
// its resolved image reference.
func Compile(services map[string]service.Config, images map[string]string, settings Settings) (*template.Fragment, error) {
	g := template.NewGraph()

	if err := addImageAccessRole(g); err != nil {
		return nil, err
	}
	if err := addVpcConnector(g, settings); err != nil {
		return nil, err
	}

	for _, id := range sortedIDs(services) {
		image, ok := images[id]
		if !ok || image == "" {
			return nil, &CompileError{ServiceID: id, Err: ErrMissingImageReference}
		}
		if err := addService(g, id, services[id], image, settings); err != nil {
			return nil, &CompileError{ServiceID: id, Err: err}
		}
	}

	return g.Fragment()
}

// =============================================================================
// Shared Resources
// =============================================================================

func addImageAccessRole(g *template.Graph) error {
	return g.AddResource(naming.ImageAccessRoleID, template.Resource{
		Type: TypeIAMRole,
		Properties: RoleProperties{
			AssumeRolePolicyDocument: TrustPolicy{
				Version:   "2008-10-17",
				Statement: []TrustStatement{assumeRole(buildPrincipal)},
			},
			ManagedPolicyArns: []string{ecrAccessPolicyArn},
		},
	})
}

func addVpcConnector(g *template.Graph, settings Settings) error {
	network := service.NormalizeNetwork(settings.Network)
	return g.AddResource(naming.VpcConnectorID, template.Resource{
		Type: TypeVpcConnector,
		Properties: VpcConnectorProperties{
			SecurityGroups: network.SecurityGroupIDs,
			Subnets:        network.SubnetIDs,
			VpcConnectorName: naming.ConnectorName(
				settings.Namespace, settings.Stage, network.SubnetIDs, network.SecurityGroupIDs,
			),
		},
	})
}

// =============================================================================
// Per-Service Resources
// =============================================================================

func addService(g *template.Graph, id string, cfg service.Config, image string, settings Settings) error {
	roleID := naming.InstanceRoleID(id)
	if err := addInstanceRole(g, roleID, id, cfg, settings); err != nil {
		return err
	}

	serviceID := naming.ServiceResourceID(id)
	err := g.AddResource(serviceID, template.Resource{
		Type: TypeAppRunnerService,
		Properties: ServiceProperties{
			ServiceName: cfg.ServiceName,
			SourceConfiguration: SourceConfiguration{
				AuthenticationConfiguration: AuthenticationConfiguration{
					AccessRoleArn: g.GetAtt(naming.ImageAccessRoleID, "Arn"),
				},
				AutoDeploymentsEnabled: false,
				ImageRepository: ImageRepository{
					ImageIdentifier:     image,
					ImageRepositoryType: imageRepositoryTypeECR,
					ImageConfiguration: ImageConfiguration{
						Port:                        strconv.Itoa(cfg.HTTPPort),
						RuntimeEnvironmentVariables: toEnvironment(cfg.Environment),
					},
				},
			},
			Tags: toTags(cfg.Tags),
			NetworkConfiguration: NetworkConfiguration{
				EgressConfiguration: EgressConfiguration{
					EgressType:      egressTypeVPC,
					VpcConnectorArn: g.GetAtt(naming.VpcConnectorID, "VpcConnectorArn"),
				},
			},
			InstanceConfiguration: InstanceConfiguration{
				Cpu:             cfg.CPU.String(),
				Memory:          cfg.Memory.String(),
				InstanceRoleArn: g.GetAtt(roleID, "Arn"),
			},
		},
	})
	if err != nil {
		return err
	}

	return g.AddOutput(naming.ServiceURLOutputID(id), template.Output{
		Description: fmt.Sprintf("URL of the %s App Runner service", id),
		Value:       g.GetAtt(serviceID, "ServiceUrl"),
	})
}

func addInstanceRole(g *template.Graph, roleID, id string, cfg service.Config, settings Settings) error {
	props := RoleProperties{
		AssumeRolePolicyDocument: TrustPolicy{
			Statement: []TrustStatement{assumeRole(tasksPrincipal)},
		},
	}
	// IAM rejects a policy with an empty statement list.
	if len(cfg.PolicyStatements) > 0 {
		props.Policies = []InlinePolicy{{
			PolicyName:     naming.PolicyName(settings.Namespace, settings.Stage, id),
			PolicyDocument: PolicyDocument{Statement: cfg.PolicyStatements},
		}}
	}
	return g.AddResource(roleID, template.Resource{Type: TypeIAMRole, Properties: props})
}

func assumeRole(principal string) TrustStatement {
	return TrustStatement{
		Effect:    "Allow",
		Principal: Principal{Service: []string{principal}},
		Action:    "sts:AssumeRole",
	}
}

func sortedIDs(services map[string]service.Config) []string {
	ids := make([]string, 0, len(services))
	for id := range services {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
