// Package manifest parses the declarative document that lists App Runner
// services and their provider-level defaults.
// This is part of the Functional Core - all functions are pure with no I/O.
package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"maps"
	"regexp"
	"sort"
	"strings"

	"github.com/artpar/runnerform/internal/core/service"
	"gopkg.in/yaml.v3"
)

// DefaultStage is used when neither the document nor the caller names a stage.
const DefaultStage = "dev"

var serviceIDPattern = regexp.MustCompile(`^[a-zA-Z0-9-]+$`)

// =============================================================================
// Document Types
// =============================================================================

// Document is the top-level declarative document.
type Document struct {
	// Service is the service namespace prefixed to every physical name.
	Service   string    `yaml:"service"`
	Stage     string    `yaml:"stage"`
	Provider  Provider  `yaml:"provider"`
	AppRunner AppRunner `yaml:"apprunner"`
}

// Provider holds settings inherited by every service.
type Provider struct {
	Environment       service.OrderedMap        `yaml:"environment"`
	Tags              service.OrderedMap        `yaml:"tags"`
	IAMRoleStatements []service.PolicyStatement `yaml:"iamRoleStatements"`
	IAM               IAM                       `yaml:"iam"`
	VPC               service.Network           `yaml:"vpc"`
}

// IAM is the nested iam.role.statements form of provider statements.
type IAM struct {
	Role IAMRole `yaml:"role"`
}

// IAMRole holds provider statements in the nested form.
type IAMRole struct {
	Statements []service.PolicyStatement `yaml:"statements"`
}

// AppRunner declares the services to compile.
type AppRunner struct {
	Services map[string]service.RawService `yaml:"services"`
	// Compose is an optional path to a Docker Compose file whose services
	// are imported alongside the declared ones. It is resolved by the caller.
	Compose string `yaml:"compose"`
}

// =============================================================================
// Parsing
// =============================================================================

// Parse decodes a YAML or JSON document. Unknown fields are rejected, the
// namespace is required and every service id must match ^[a-zA-Z0-9-]+$.
// A document without services is valid.
func Parse(data []byte) (*Document, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, NewDocumentError("", "document is empty", ErrEmptyDocument)
	}

	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, NewDocumentError("", "document is empty", ErrEmptyDocument)
		}
		return nil, NewDocumentError("", err.Error(), ErrInvalidDocument)
	}

	if strings.TrimSpace(doc.Service) == "" {
		return nil, NewDocumentError("service", "service namespace is required", ErrMissingNamespace)
	}
	for _, id := range sortedIDs(doc.AppRunner.Services) {
		if err := validateServiceID(id); err != nil {
			return nil, err
		}
	}

	return &doc, nil
}

func validateServiceID(id string) error {
	if !serviceIDPattern.MatchString(id) {
		return NewDocumentError(
			"apprunner.services."+id,
			fmt.Sprintf("service id %q must match %s", id, serviceIDPattern),
			ErrInvalidServiceID,
		)
	}
	return nil
}

// =============================================================================
// Accessors
// =============================================================================

// ResolveStage returns override when set, else the document's stage, else
// DefaultStage.
func (d *Document) ResolveStage(override string) string {
	switch {
	case override != "":
		return override
	case d.Stage != "":
		return d.Stage
	default:
		return DefaultStage
	}
}

// Defaults returns the provider defaults inherited by every service.
// Statements from iam.role.statements come before iamRoleStatements.
func (d *Document) Defaults() service.ProviderDefaults {
	statements := make([]service.PolicyStatement, 0, len(d.Provider.IAM.Role.Statements)+len(d.Provider.IAMRoleStatements))
	statements = append(statements, d.Provider.IAM.Role.Statements...)
	statements = append(statements, d.Provider.IAMRoleStatements...)

	return service.ProviderDefaults{
		Environment:      d.Provider.Environment,
		Tags:             d.Provider.Tags,
		PolicyStatements: statements,
		Network:          d.Provider.VPC,
	}
}

// WithImported returns a copy of the document whose services also include
// imported. An id declared in both is an error.
func (d *Document) WithImported(imported map[string]service.RawService) (*Document, error) {
	out := *d
	out.AppRunner.Services = maps.Clone(d.AppRunner.Services)
	if out.AppRunner.Services == nil {
		out.AppRunner.Services = make(map[string]service.RawService, len(imported))
	}

	for _, id := range sortedIDs(imported) {
		if err := validateServiceID(id); err != nil {
			return nil, err
		}
		if _, exists := out.AppRunner.Services[id]; exists {
			return nil, NewDocumentError(
				"apprunner.services."+id,
				"service is declared both in the document and in the compose file",
				ErrDuplicateServiceID,
			)
		}
		out.AppRunner.Services[id] = imported[id]
	}
	return &out, nil
}

// IgnoredFields maps each service id to the declared fields that have no
// effect on the compiled output. Services without such fields are omitted.
func (d *Document) IgnoredFields() map[string][]string {
	ignored := make(map[string][]string)
	for id, raw := range d.AppRunner.Services {
		if fields := raw.IgnoredFields(); len(fields) > 0 {
			ignored[id] = fields
		}
	}
	return ignored
}

func sortedIDs(services map[string]service.RawService) []string {
	ids := make([]string, 0, len(services))
	for id := range services {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
