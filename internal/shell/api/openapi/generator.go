// Package openapi builds the OpenAPI 3.0 document for the compile API by
// reflecting on request and response types.
package openapi

import (
	"encoding/json"
	"net/http"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
)

// =============================================================================
// Generator
// =============================================================================

// Generator produces an OpenAPI 3.0 document from registered operations.
type Generator struct {
	title       string
	version     string
	description string
	servers     []string
	operations  []Operation
	mu          sync.RWMutex
	cachedSpec  *openapi3.T
}

// Operation describes one HTTP endpoint.
type Operation struct {
	Method  string // e.g. http.MethodPost
	Path    string
	ID      string
	Summary string
	Tag     string
	Query   []Parameter
	Body    *Body
	// Responses keyed by status code.
	Responses map[int]Response
	// Secured marks operations behind the API token.
	Secured bool
}

// Parameter is a query string parameter.
type Parameter struct {
	Name        string
	Description string
	Enum        []string
}

// Body describes a request body. A nil Model is documented as a string.
type Body struct {
	Description  string
	ContentTypes []string
	Model        any
}

// Response describes one response. A nil Model has no content.
type Response struct {
	Description string
	Model       any
}

// Option configures the generator.
type Option func(*Generator)

// WithTitle sets the API title.
func WithTitle(title string) Option {
	return func(g *Generator) {
		g.title = title
	}
}

// WithVersion sets the API version.
func WithVersion(version string) Option {
	return func(g *Generator) {
		g.version = version
	}
}

// WithDescription sets the API description.
func WithDescription(description string) Option {
	return func(g *Generator) {
		g.description = description
	}
}

// WithServer adds a server URL.
func WithServer(url string) Option {
	return func(g *Generator) {
		g.servers = append(g.servers, url)
	}
}

// NewGenerator creates a new OpenAPI generator.
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		title:   "API",
		version: "1.0.0",
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

// Register adds an operation to the document.
func (g *Generator) Register(op Operation) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.operations = append(g.operations, op)
	g.cachedSpec = nil
}

// Generate produces the OpenAPI document. The result is cached until the
// next Register call.
func (g *Generator) Generate() *openapi3.T {
	g.mu.RLock()
	if g.cachedSpec != nil {
		spec := g.cachedSpec
		g.mu.RUnlock()
		return spec
	}
	g.mu.RUnlock()

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.cachedSpec != nil {
		return g.cachedSpec
	}

	spec := &openapi3.T{
		OpenAPI: "3.0.3",
		Info: &openapi3.Info{
			Title:       g.title,
			Version:     g.version,
			Description: g.description,
		},
		Servers: make(openapi3.Servers, 0, len(g.servers)),
		Paths:   openapi3.NewPaths(),
		Components: &openapi3.Components{
			Schemas:         make(openapi3.Schemas),
			SecuritySchemes: make(openapi3.SecuritySchemes),
		},
	}

	for _, url := range g.servers {
		spec.Servers = append(spec.Servers, &openapi3.Server{URL: url})
	}

	b := &builder{schemas: spec.Components.Schemas}
	for _, op := range g.operations {
		if op.Secured {
			spec.Components.SecuritySchemes["apiToken"] = &openapi3.SecuritySchemeRef{
				Value: openapi3.NewSecurityScheme().WithType("apiKey").WithIn("header").WithName("X-Runnerform-Token"),
			}
		}
		item := spec.Paths.Value(op.Path)
		if item == nil {
			item = &openapi3.PathItem{}
			spec.Paths.Set(op.Path, item)
		}
		item.SetOperation(op.Method, b.operation(op))
	}

	g.cachedSpec = spec
	return spec
}

// Handler returns an HTTP handler that serves the OpenAPI document.
func (g *Generator) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		spec := g.Generate()

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Access-Control-Allow-Origin", "*")

		if err := json.NewEncoder(w).Encode(spec); err != nil {
			http.Error(w, "Failed to encode OpenAPI spec", http.StatusInternalServerError)
		}
	}
}

// =============================================================================
// Operation Generation
// =============================================================================

type builder struct {
	schemas openapi3.Schemas
}

func (b *builder) operation(op Operation) *openapi3.Operation {
	out := &openapi3.Operation{
		OperationID: op.ID,
		Summary:     op.Summary,
		Responses:   &openapi3.Responses{},
	}
	if op.Tag != "" {
		out.Tags = []string{op.Tag}
	}
	if op.Secured {
		out.Security = &openapi3.SecurityRequirements{openapi3.NewSecurityRequirement().Authenticate("apiToken")}
	}

	for _, p := range op.Query {
		schema := &openapi3.Schema{Type: &openapi3.Types{"string"}}
		for _, v := range p.Enum {
			schema.Enum = append(schema.Enum, v)
		}
		out.Parameters = append(out.Parameters, &openapi3.ParameterRef{
			Value: &openapi3.Parameter{
				Name:        p.Name,
				In:          "query",
				Description: p.Description,
				Schema:      &openapi3.SchemaRef{Value: schema},
			},
		})
	}

	if op.Body != nil {
		schema := &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}}
		if op.Body.Model != nil {
			schema = b.ref(reflect.TypeOf(op.Body.Model))
		}
		content := openapi3.Content{}
		for _, ct := range op.Body.ContentTypes {
			content[ct] = &openapi3.MediaType{Schema: schema}
		}
		out.RequestBody = &openapi3.RequestBodyRef{
			Value: &openapi3.RequestBody{
				Description: op.Body.Description,
				Required:    true,
				Content:     content,
			},
		}
	}

	statuses := make([]int, 0, len(op.Responses))
	for status := range op.Responses {
		statuses = append(statuses, status)
	}
	sort.Ints(statuses)
	for _, status := range statuses {
		resp := op.Responses[status]
		value := openapi3.NewResponse().WithDescription(resp.Description)
		if resp.Model != nil {
			value = value.WithJSONSchemaRef(b.ref(reflect.TypeOf(resp.Model)))
		}
		out.Responses.Set(strconv.Itoa(status), &openapi3.ResponseRef{Value: value})
	}

	return out
}

// =============================================================================
// Schema Generation
// =============================================================================

// ref registers named struct types as components and returns a reference to
// them; other types are inlined.
func (b *builder) ref(t reflect.Type) *openapi3.SchemaRef {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct || t.Name() == "" || t == reflect.TypeOf(time.Time{}) {
		return b.goTypeToSchema(t)
	}
	if _, ok := b.schemas[t.Name()]; !ok {
		// Reserve the name first so self-referencing types terminate.
		b.schemas[t.Name()] = &openapi3.SchemaRef{Value: &openapi3.Schema{}}
		b.schemas[t.Name()] = b.extractSchema(t)
	}
	return &openapi3.SchemaRef{Ref: "#/components/schemas/" + t.Name()}
}

// extractSchema extracts an OpenAPI schema from a Go struct type.
func (b *builder) extractSchema(t reflect.Type) *openapi3.SchemaRef {
	schema := &openapi3.Schema{
		Type:       &openapi3.Types{"object"},
		Properties: make(openapi3.Schemas),
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		jsonTag := field.Tag.Get("json")
		if jsonTag == "-" {
			continue
		}

		name := field.Name
		omitempty := false
		if jsonTag != "" {
			parts := strings.Split(jsonTag, ",")
			if parts[0] != "" {
				name = parts[0]
			}
			for _, opt := range parts[1:] {
				if opt == "omitempty" {
					omitempty = true
				}
			}
		}

		schema.Properties[name] = b.ref(field.Type)
		if !omitempty {
			schema.Required = append(schema.Required, name)
		}
	}

	return &openapi3.SchemaRef{Value: schema}
}

// goTypeToSchema converts a Go type to an inline OpenAPI schema.
func (b *builder) goTypeToSchema(t reflect.Type) *openapi3.SchemaRef {
	switch t.Kind() {
	case reflect.String:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}}

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int32"}}

	case reflect.Int64:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int64"}}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}}}

	case reflect.Float32, reflect.Float64:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"number"}}}

	case reflect.Bool:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"boolean"}}}

	case reflect.Slice, reflect.Array:
		return &openapi3.SchemaRef{
			Value: &openapi3.Schema{
				Type:  &openapi3.Types{"array"},
				Items: b.ref(t.Elem()),
			},
		}

	case reflect.Map:
		return &openapi3.SchemaRef{
			Value: &openapi3.Schema{
				Type:                 &openapi3.Types{"object"},
				AdditionalProperties: openapi3.AdditionalProperties{Schema: b.ref(t.Elem())},
			},
		}

	case reflect.Ptr:
		inner := b.goTypeToSchema(t.Elem())
		if inner.Value != nil {
			inner.Value.Nullable = true
		}
		return inner

	case reflect.Struct:
		if t == reflect.TypeOf(time.Time{}) {
			return &openapi3.SchemaRef{
				Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Format: "date-time"},
			}
		}
		return b.extractSchema(t)

	default:
		// interface values such as resource properties
		return &openapi3.SchemaRef{Value: &openapi3.Schema{}}
	}
}
