// Package network checks that the subnets and security groups a VPC
// connector references exist before the template is emitted.
package network

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	smithy "github.com/aws/smithy-go"

	"github.com/artpar/runnerform/internal/core/service"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	ErrSubnetNotFound        = errors.New("subnet not found")
	ErrSecurityGroupNotFound = errors.New("security group not found")
	ErrEmptyNetwork          = errors.New("network has no subnets")
	ErrLookupFailed          = errors.New("network lookup failed")
)

// MissingError names the ids a lookup did not return.
type MissingError struct {
	Kind string // "subnet" or "security group"
	IDs  []string
	Err  error
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, strings.Join(e.IDs, ", "))
}

func (e *MissingError) Unwrap() error {
	return e.Err
}

// =============================================================================
// Verifier
// =============================================================================

// Verifier checks a network before compilation.
type Verifier interface {
	Verify(ctx context.Context, network service.Network) error
}

// ec2API is the subset of the EC2 client the verifier uses.
type ec2API interface {
	DescribeSubnets(ctx context.Context, params *ec2.DescribeSubnetsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSubnetsOutput, error)
	DescribeSecurityGroups(ctx context.Context, params *ec2.DescribeSecurityGroupsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSecurityGroupsOutput, error)
}

// EC2Verifier looks subnets and security groups up with the EC2 API.
type EC2Verifier struct {
	client ec2API
	logger *slog.Logger
}

// NewEC2Verifier creates an EC2Verifier from an AWS config.
func NewEC2Verifier(cfg aws.Config, logger *slog.Logger) *EC2Verifier {
	return &EC2Verifier{
		client: ec2.NewFromConfig(cfg),
		logger: logger.With("component", "network"),
	}
}

// Verify fails when the network has no subnets or when any subnet or
// security group does not exist. Missing ids are reported in sorted order.
func (v *EC2Verifier) Verify(ctx context.Context, network service.Network) error {
	network = service.NormalizeNetwork(network)
	if len(network.SubnetIDs) == 0 {
		return ErrEmptyNetwork
	}

	subnets, err := v.existingSubnets(ctx, network.SubnetIDs)
	if err != nil {
		return err
	}
	if missing := missingIDs(network.SubnetIDs, subnets); len(missing) > 0 {
		return &MissingError{Kind: "subnet", IDs: missing, Err: ErrSubnetNotFound}
	}

	if len(network.SecurityGroupIDs) > 0 {
		groups, err := v.existingSecurityGroups(ctx, network.SecurityGroupIDs)
		if err != nil {
			return err
		}
		if missing := missingIDs(network.SecurityGroupIDs, groups); len(missing) > 0 {
			return &MissingError{Kind: "security group", IDs: missing, Err: ErrSecurityGroupNotFound}
		}
	}

	v.logger.Debug("network verified",
		"subnets", len(network.SubnetIDs),
		"security_groups", len(network.SecurityGroupIDs),
	)
	return nil
}

// existingSubnets filters by id instead of passing SubnetIds, which fails the
// whole call on the first unknown id.
func (v *EC2Verifier) existingSubnets(ctx context.Context, ids []string) (map[string]bool, error) {
	found := make(map[string]bool, len(ids))
	input := &ec2.DescribeSubnetsInput{
		Filters: []ec2types.Filter{{Name: aws.String("subnet-id"), Values: ids}},
	}
	for {
		out, err := v.client.DescribeSubnets(ctx, input)
		if err != nil {
			return nil, lookupError("describe subnets", err)
		}
		for _, s := range out.Subnets {
			found[aws.ToString(s.SubnetId)] = true
		}
		if aws.ToString(out.NextToken) == "" {
			return found, nil
		}
		input.NextToken = out.NextToken
	}
}

func (v *EC2Verifier) existingSecurityGroups(ctx context.Context, ids []string) (map[string]bool, error) {
	found := make(map[string]bool, len(ids))
	input := &ec2.DescribeSecurityGroupsInput{
		Filters: []ec2types.Filter{{Name: aws.String("group-id"), Values: ids}},
	}
	for {
		out, err := v.client.DescribeSecurityGroups(ctx, input)
		if err != nil {
			return nil, lookupError("describe security groups", err)
		}
		for _, g := range out.SecurityGroups {
			found[aws.ToString(g.GroupId)] = true
		}
		if aws.ToString(out.NextToken) == "" {
			return found, nil
		}
		input.NextToken = out.NextToken
	}
}

func lookupError(op string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%w: %s: %s: %s", ErrLookupFailed, op, apiErr.ErrorCode(), apiErr.ErrorMessage())
	}
	return fmt.Errorf("%w: %s: %v", ErrLookupFailed, op, err)
}

func missingIDs(want []string, found map[string]bool) []string {
	var missing []string
	for _, id := range want {
		if !found[id] {
			missing = append(missing, id)
		}
	}
	slices.Sort(missing)
	return missing
}
