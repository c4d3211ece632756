package network

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	smithy "github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/runnerform/internal/core/service"
)

// =============================================================================
// Test Helpers
// =============================================================================

// fakeEC2 serves pages of subnets and security groups. Each call returns the
// next page; NextToken is set while pages remain.
type fakeEC2 struct {
	subnetPages [][]string
	groupPages  [][]string
	err         error

	subnetCalls []*ec2.DescribeSubnetsInput
	groupCalls  []*ec2.DescribeSecurityGroupsInput
}

func (f *fakeEC2) DescribeSubnets(_ context.Context, params *ec2.DescribeSubnetsInput, _ ...func(*ec2.Options)) (*ec2.DescribeSubnetsOutput, error) {
	f.subnetCalls = append(f.subnetCalls, params)
	if f.err != nil {
		return nil, f.err
	}
	page := len(f.subnetCalls) - 1
	out := &ec2.DescribeSubnetsOutput{}
	if page < len(f.subnetPages) {
		for _, id := range f.subnetPages[page] {
			out.Subnets = append(out.Subnets, ec2types.Subnet{SubnetId: aws.String(id)})
		}
	}
	if page+1 < len(f.subnetPages) {
		out.NextToken = aws.String("next")
	}
	return out, nil
}

func (f *fakeEC2) DescribeSecurityGroups(_ context.Context, params *ec2.DescribeSecurityGroupsInput, _ ...func(*ec2.Options)) (*ec2.DescribeSecurityGroupsOutput, error) {
	f.groupCalls = append(f.groupCalls, params)
	if f.err != nil {
		return nil, f.err
	}
	page := len(f.groupCalls) - 1
	out := &ec2.DescribeSecurityGroupsOutput{}
	if page < len(f.groupPages) {
		for _, id := range f.groupPages[page] {
			out.SecurityGroups = append(out.SecurityGroups, ec2types.SecurityGroup{GroupId: aws.String(id)})
		}
	}
	if page+1 < len(f.groupPages) {
		out.NextToken = aws.String("next")
	}
	return out, nil
}

func newTestVerifier(api *fakeEC2) *EC2Verifier {
	return &EC2Verifier{client: api, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func testNetwork() service.Network {
	return service.Network{
		SubnetIDs:        []string{"subnet-b", "subnet-a"},
		SecurityGroupIDs: []string{"sg-1"},
	}
}

// =============================================================================
// Verify Tests
// =============================================================================

func TestEC2Verifier_AllPresent(t *testing.T) {
	api := &fakeEC2{
		subnetPages: [][]string{{"subnet-a", "subnet-b"}},
		groupPages:  [][]string{{"sg-1"}},
	}

	require.NoError(t, newTestVerifier(api).Verify(context.Background(), testNetwork()))

	require.Len(t, api.subnetCalls, 1)
	filter := api.subnetCalls[0].Filters[0]
	assert.Equal(t, "subnet-id", aws.ToString(filter.Name))
	assert.Equal(t, []string{"subnet-a", "subnet-b"}, filter.Values)
	assert.Empty(t, api.subnetCalls[0].SubnetIds)

	require.Len(t, api.groupCalls, 1)
	assert.Equal(t, "group-id", aws.ToString(api.groupCalls[0].Filters[0].Name))
}

func TestEC2Verifier_Paginates(t *testing.T) {
	api := &fakeEC2{
		subnetPages: [][]string{{"subnet-a"}, {"subnet-b"}},
		groupPages:  [][]string{{}, {"sg-1"}},
	}

	require.NoError(t, newTestVerifier(api).Verify(context.Background(), testNetwork()))
	assert.Len(t, api.subnetCalls, 2)
	assert.Equal(t, "next", aws.ToString(api.subnetCalls[1].NextToken))
	assert.Len(t, api.groupCalls, 2)
}

func TestEC2Verifier_MissingSubnet(t *testing.T) {
	api := &fakeEC2{subnetPages: [][]string{{"subnet-a"}}}

	err := newTestVerifier(api).Verify(context.Background(), testNetwork())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSubnetNotFound))

	var missing *MissingError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, []string{"subnet-b"}, missing.IDs)
	assert.Contains(t, err.Error(), "subnet-b")
	assert.Empty(t, api.groupCalls, "security groups are not checked after a subnet failure")
}

func TestEC2Verifier_MissingSecurityGroup(t *testing.T) {
	api := &fakeEC2{
		subnetPages: [][]string{{"subnet-a", "subnet-b"}},
		groupPages:  [][]string{{}},
	}

	err := newTestVerifier(api).Verify(context.Background(), testNetwork())
	assert.True(t, errors.Is(err, ErrSecurityGroupNotFound))
}

func TestEC2Verifier_NoSecurityGroups(t *testing.T) {
	api := &fakeEC2{subnetPages: [][]string{{"subnet-a"}}}

	err := newTestVerifier(api).Verify(context.Background(), service.Network{SubnetIDs: []string{"subnet-a"}})
	require.NoError(t, err)
	assert.Empty(t, api.groupCalls)
}

func TestEC2Verifier_EmptyNetwork(t *testing.T) {
	api := &fakeEC2{}

	err := newTestVerifier(api).Verify(context.Background(), service.Network{})
	assert.True(t, errors.Is(err, ErrEmptyNetwork))
	assert.Empty(t, api.subnetCalls)
}

func TestEC2Verifier_APIError(t *testing.T) {
	api := &fakeEC2{err: &smithy.GenericAPIError{Code: "UnauthorizedOperation", Message: "not allowed"}}

	err := newTestVerifier(api).Verify(context.Background(), testNetwork())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLookupFailed))
	assert.Contains(t, err.Error(), "UnauthorizedOperation")
}
