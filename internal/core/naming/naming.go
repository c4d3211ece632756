package naming

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"unicode"
)

// =============================================================================
// Shared Logical IDs
// =============================================================================

const (
	// ImageAccessRoleID is the role App Runner assumes to pull images from ECR.
	ImageAccessRoleID = "AppRunnerImageAccessRole"

	// VpcConnectorID is the egress connector shared by every service.
	VpcConnectorID = "AppRunnerServiceVpcConnector"
)

const (
	instanceRoleSuffix = "AppRunnerInstanceRole"
	serviceSuffix      = "AppRunnerService"
	serviceURLSuffix   = "AppRunnerServiceUrl"

	// connectorHashLength is the number of hex characters of the network hash
	// kept in the connector name. Changing it renames every existing connector.
	connectorHashLength = 6
)

// =============================================================================
// Identifier Derivation
// =============================================================================

// Identifier converts a service slug into a template-safe identifier.
//
// The transformation rules are:
//   - Hyphens and spaces separate words
//   - The first character of each word is upper-cased, the rest lower-cased
//   - Words are concatenated
//   - Everything outside [0-9A-Za-z] is dropped
//
// This is a pure function with no side effects.
//
// Example:
//
//	Identifier("web")          // returns "Web"
//	Identifier("billing-api")  // returns "BillingApi"
//	Identifier("API_v2")       // returns "Apiv2"
func Identifier(slug string) string {
	var b strings.Builder
	for _, word := range strings.Split(strings.ReplaceAll(slug, "-", " "), " ") {
		if word == "" {
			continue
		}
		first := true
		for _, r := range word {
			if first {
				r = unicode.ToUpper(r)
				first = false
			} else {
				r = unicode.ToLower(r)
			}
			if isAlphanumeric(r) {
				b.WriteRune(r)
			}
		}
	}
	return b.String()
}

func isAlphanumeric(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

// =============================================================================
// Per-Service Names
// =============================================================================

// InstanceRoleID returns the logical id of a service's instance role.
// Pattern: {Identifier}AppRunnerInstanceRole
func InstanceRoleID(serviceID string) string {
	return Identifier(serviceID) + instanceRoleSuffix
}

// ServiceResourceID returns the logical id of a service's App Runner service.
// Pattern: {Identifier}AppRunnerService
func ServiceResourceID(serviceID string) string {
	return Identifier(serviceID) + serviceSuffix
}

// ServiceURLOutputID returns the logical id of the output exposing a
// service's URL.
// Pattern: {Identifier}AppRunnerServiceUrl
func ServiceURLOutputID(serviceID string) string {
	return Identifier(serviceID) + serviceURLSuffix
}

// PolicyName returns the name of a service's inline role policy.
// Pattern: {namespace}-{stage}-{Identifier}-policy
//
// Example:
//
//	PolicyName("shop", "prod", "web") // returns "shop-prod-Web-policy"
func PolicyName(namespace, stage, serviceID string) string {
	return fmt.Sprintf("%s-%s-%s-policy", namespace, stage, Identifier(serviceID))
}

// =============================================================================
// Connector Naming
// =============================================================================

// connectorHashInput is the serialized form hashed into connector names.
// Field order is part of the hash and must not change.
type connectorHashInput struct {
	SubnetIDs        []string `json:"subnetIds"`
	SecurityGroupIDs []string `json:"securityGroupIds"`
}

// ConnectorName returns the physical name of the shared VPC connector.
// Pattern: {namespace}-{stage}-vpc-connector-{hash}
//
// The hash is the first six hex characters of the MD5 of the subnet and
// security group sets. App Runner cannot update a connector's membership in
// place, so the name changes exactly when the membership does. Order and
// duplicates within either list do not affect the hash.
func ConnectorName(namespace, stage string, subnetIDs, securityGroupIDs []string) string {
	return fmt.Sprintf("%s-%s-vpc-connector-%s", namespace, stage, NetworkHash(subnetIDs, securityGroupIDs))
}

// NetworkHash returns the short content hash used by ConnectorName.
func NetworkHash(subnetIDs, securityGroupIDs []string) string {
	payload, _ := json.Marshal(connectorHashInput{
		SubnetIDs:        sortedSet(subnetIDs),
		SecurityGroupIDs: sortedSet(securityGroupIDs),
	})
	sum := md5.Sum(payload)
	return hex.EncodeToString(sum[:])[:connectorHashLength]
}

func sortedSet(values []string) []string {
	out := slices.Clone(values)
	if out == nil {
		out = []string{}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
