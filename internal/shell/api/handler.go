// Package api provides the HTTP compile API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/artpar/runnerform/internal/core/template"
	"github.com/artpar/runnerform/internal/shell/api/middleware"
	"github.com/artpar/runnerform/internal/shell/api/openapi"
	"github.com/artpar/runnerform/internal/shell/image"
	"github.com/artpar/runnerform/internal/shell/pipeline"
)

// DefaultMaxBodyBytes bounds the document size accepted by the compile
// endpoint.
const DefaultMaxBodyBytes int64 = 1 << 20

// HeaderStage carries the resolved stage of a compile response.
const HeaderStage = "X-Runnerform-Stage"

// =============================================================================
// Handler
// =============================================================================

// Config configures a Handler.
type Config struct {
	// MaxBodyBytes bounds request bodies. Zero selects DefaultMaxBodyBytes.
	MaxBodyBytes int64
	// APIToken, when set, is required on the compile endpoint.
	APIToken string
	// Timeout bounds image resolution and network verification per request.
	// Zero means no deadline beyond the client's.
	Timeout time.Duration
	// Version is reported in the OpenAPI document.
	Version string
	// PublicURL is listed as the server in the OpenAPI document.
	PublicURL string
}

// Handler provides HTTP handlers for the API.
type Handler struct {
	pipeline  *pipeline.Pipeline
	generator *openapi.Generator
	cfg       Config
	logger    *slog.Logger
}

// NewHandler creates a new API handler.
func NewHandler(p *pipeline.Pipeline, cfg Config, l *slog.Logger) *Handler {
	if l == nil {
		l = slog.Default()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}

	opts := []openapi.Option{
		openapi.WithTitle("Runnerform API"),
		openapi.WithDescription("Compiles App Runner service documents into CloudFormation fragments"),
	}
	if cfg.Version != "" {
		opts = append(opts, openapi.WithVersion(cfg.Version))
	}
	if cfg.PublicURL != "" {
		opts = append(opts, openapi.WithServer(cfg.PublicURL))
	}

	h := &Handler{
		pipeline:  p,
		generator: openapi.NewGenerator(opts...),
		cfg:       cfg,
		logger:    l.With("component", "api"),
	}
	h.registerOperations()
	return h
}

// Routes returns the router with all routes configured.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(h.jsonContentType)

	r.Get("/health", h.handleHealth)
	r.Get("/openapi.json", h.generator.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RequireToken(middleware.TokenConfig{Token: h.cfg.APIToken, Logger: h.logger}))
		r.Post("/compile", h.handleCompile)
	})

	return r
}

func (h *Handler) registerOperations() {
	errorResponse := func(description string) openapi.Response {
		return openapi.Response{Description: description, Model: ErrorResponse{}}
	}

	h.generator.Register(openapi.Operation{
		Method:  http.MethodGet,
		Path:    "/health",
		ID:      "getHealth",
		Summary: "Liveness check",
		Tag:     "Health",
		Responses: map[int]openapi.Response{
			http.StatusOK: {Description: "Service is healthy", Model: HealthResponse{}},
		},
	})

	h.generator.Register(openapi.Operation{
		Method:  http.MethodPost,
		Path:    "/api/v1/compile",
		ID:      "compile",
		Summary: "Compile a service document into a CloudFormation fragment",
		Tag:     "Compile",
		Query: []openapi.Parameter{
			{Name: "stage", Description: "Deployment stage; defaults to the document's stage"},
			{Name: "format", Description: "Response format", Enum: []string{"json", "yaml"}},
		},
		Body: &openapi.Body{
			Description:  "Service document in YAML or JSON",
			ContentTypes: []string{"application/yaml", "application/json"},
		},
		Responses: map[int]openapi.Response{
			http.StatusOK:                    {Description: "Compiled fragment", Model: template.Fragment{}},
			http.StatusBadRequest:            errorResponse("Invalid document"),
			http.StatusUnauthorized:          errorResponse("Missing or invalid API token"),
			http.StatusRequestEntityTooLarge: errorResponse("Document too large"),
			http.StatusUnprocessableEntity:   errorResponse("Document could not be compiled"),
			http.StatusBadGateway:            errorResponse("Image or network resolution failed"),
		},
		Secured: h.cfg.APIToken != "",
	})
}

// =============================================================================
// Middleware
// =============================================================================

// jsonContentType sets Content-Type header to application/json.
func (h *Handler) jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// Handlers
// =============================================================================

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy"})
}

func (h *Handler) handleCompile(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.With("request_id", chimiddleware.GetReqID(r.Context()))

	format, err := template.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error(), CodeInvalidRequest)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.cfg.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, http.StatusRequestEntityTooLarge, "document exceeds size limit", CodeBodyTooLarge)
			return
		}
		h.writeError(w, http.StatusBadRequest, "failed to read request body", CodeInvalidRequest)
		return
	}

	doc, err := h.pipeline.Load(body, "")
	if err != nil {
		h.writePipelineError(w, logger, err)
		return
	}

	ctx := r.Context()
	if h.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.cfg.Timeout)
		defer cancel()
	}

	result, err := h.pipeline.Run(ctx, doc, r.URL.Query().Get("stage"))
	if err != nil {
		h.writePipelineError(w, logger, err)
		return
	}

	if format == template.FormatYAML {
		w.Header().Set("Content-Type", "application/yaml")
	}
	w.Header().Set(HeaderStage, result.Stage)
	w.WriteHeader(http.StatusOK)
	if err := pipeline.Render(w, result.Fragment, pipeline.RenderOptions{Format: format}); err != nil {
		logger.Error("failed to write fragment", "error", err)
	}
}

// =============================================================================
// Error Mapping
// =============================================================================

// statusFor maps a pipeline failure to an HTTP status and error code.
func statusFor(err error) (int, string) {
	switch pipeline.StageOf(err) {
	case pipeline.StageLoad, pipeline.StageNormalize:
		return http.StatusBadRequest, CodeInvalidDocument
	case pipeline.StageVerify:
		return http.StatusBadGateway, CodeResolutionFailed
	case pipeline.StageResolve:
		if errors.Is(err, image.ErrInvalidReference) || errors.Is(err, image.ErrUnsupportedRegistry) {
			return http.StatusBadRequest, CodeInvalidDocument
		}
		return http.StatusBadGateway, CodeResolutionFailed
	case pipeline.StageCompile, pipeline.StageRender:
		return http.StatusUnprocessableEntity, CodeCompileFailed
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

func (h *Handler) writePipelineError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status, code := statusFor(err)
	stage := pipeline.StageOf(err)
	if status >= http.StatusInternalServerError {
		logger.Error("compile failed", "stage", stage, "error", err)
	} else {
		logger.Info("compile rejected", "stage", stage, "error", err)
	}
	h.writeJSON(w, status, ErrorResponse{Error: err.Error(), Code: code, Stage: string(stage)})
}

// =============================================================================
// Helpers
// =============================================================================

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message, code string) {
	h.writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
