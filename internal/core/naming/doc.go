// Package naming derives template-safe logical identifiers and physical
// resource names.
//
// All functions are pure (no I/O, no side effects) and deterministic: the same
// inputs always produce the same names, which is what keeps recompiling an
// unchanged document free of spurious replacements.
//
// # Functions
//
//   - Identifier: service slug to alphanumeric identifier ("my-api" -> "MyApi")
//   - InstanceRoleID, ServiceResourceID, ServiceURLOutputID: per-service logical ids
//   - PolicyName: inline policy name scoped by namespace and stage
//   - ConnectorName: content-addressed VPC connector name
//
// # Usage
//
//	id := naming.ServiceResourceID("web")   // "WebAppRunnerService"
//	name := naming.ConnectorName("shop", "dev", subnets, groups)
//
// Identifier does not detect collisions. Two slugs that differ only in case or
// punctuation ("my-app", "My--App") derive the same identifier; the template
// graph rejects the duplicate when it is inserted.
package naming
