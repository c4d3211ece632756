package openapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testResponse struct {
	Status  string            `json:"status"`
	Details map[string]string `json:"details,omitempty"`
	Items   []testItem        `json:"items"`
	Hidden  string            `json:"-"`
}

type testItem struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

func testGenerator() *Generator {
	g := NewGenerator(WithTitle("Test API"), WithServer("http://localhost:8080"))
	g.Register(Operation{
		Method:  http.MethodPost,
		Path:    "/api/v1/compile",
		ID:      "compile",
		Summary: "Compile a document",
		Tag:     "Compile",
		Query:   []Parameter{{Name: "format", Enum: []string{"json", "yaml"}}},
		Body:    &Body{ContentTypes: []string{"application/yaml"}},
		Responses: map[int]Response{
			http.StatusOK:         {Description: "ok", Model: testResponse{}},
			http.StatusBadRequest: {Description: "bad"},
		},
		Secured: true,
	})
	return g
}

func TestGenerator_Generate(t *testing.T) {
	spec := testGenerator().Generate()

	assert.Equal(t, "3.0.3", spec.OpenAPI)
	assert.Equal(t, "Test API", spec.Info.Title)
	require.Len(t, spec.Servers, 1)

	item := spec.Paths.Value("/api/v1/compile")
	require.NotNil(t, item)
	require.NotNil(t, item.Post)
	assert.Equal(t, "compile", item.Post.OperationID)
	assert.Equal(t, []string{"Compile"}, item.Post.Tags)
	require.Len(t, item.Post.Parameters, 1)
	assert.Equal(t, []any{"json", "yaml"}, item.Post.Parameters[0].Value.Schema.Value.Enum)
	assert.Contains(t, item.Post.RequestBody.Value.Content, "application/yaml")

	ok := item.Post.Responses.Value("200")
	require.NotNil(t, ok)
	assert.Equal(t, "#/components/schemas/testResponse", ok.Value.Content.Get("application/json").Schema.Ref)
	assert.NotNil(t, item.Post.Responses.Value("400"))

	assert.Contains(t, spec.Components.SecuritySchemes, "apiToken")
}

func TestGenerator_Schemas(t *testing.T) {
	spec := testGenerator().Generate()

	resp := spec.Components.Schemas["testResponse"]
	require.NotNil(t, resp)
	props := resp.Value.Properties
	assert.Contains(t, props, "status")
	assert.Contains(t, props, "details")
	assert.NotContains(t, props, "Hidden")
	assert.ElementsMatch(t, []string{"status", "items"}, resp.Value.Required)

	assert.Equal(t, "#/components/schemas/testItem", props["items"].Value.Items.Ref)
	item := spec.Components.Schemas["testItem"]
	require.NotNil(t, item)
	assert.Equal(t, "int64", item.Value.Properties["count"].Value.Format)
}

func TestGenerator_Cache(t *testing.T) {
	g := testGenerator()
	first := g.Generate()
	assert.Same(t, first, g.Generate())

	g.Register(Operation{Method: http.MethodGet, Path: "/health", ID: "health"})
	second := g.Generate()
	assert.NotSame(t, first, second)
	assert.NotNil(t, second.Paths.Value("/health"))
}

func TestGenerator_Handler(t *testing.T) {
	rec := httptest.NewRecorder()
	testGenerator().Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/openapi.json", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var doc map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, "3.0.3", doc["openapi"])
	assert.Contains(t, doc["paths"], "/api/v1/compile")
}
