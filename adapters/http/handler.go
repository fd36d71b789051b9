// Package http exposes the validation engine, schema export and record
// storage over HTTP.
package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/artpar/modelgate/adapters/metrics"
	"github.com/artpar/modelgate/core/export"
	"github.com/artpar/modelgate/core/formatter"
	"github.com/artpar/modelgate/core/registry"
	"github.com/artpar/modelgate/core/schema"
	"github.com/artpar/modelgate/core/storage"
	"github.com/artpar/modelgate/core/validation"
)

const defaultMaxBodyBytes = 1 << 20

// Catalog resolves and enumerates registered schemas.
type Catalog interface {
	registry.Resolver
	Names() []string
}

// Handler serves the schema endpoints.
type Handler struct {
	catalog Catalog
	engine  *validation.Engine
	store   storage.Store
	metrics *metrics.Collector
	logger  zerolog.Logger
	info    export.Info
	maxBody int64
}

// HandlerConfig holds the handler's collaborators. Store and Metrics are
// optional.
type HandlerConfig struct {
	Catalog      Catalog
	Engine       *validation.Engine
	Store        storage.Store
	Metrics      *metrics.Collector
	Logger       zerolog.Logger
	Info         export.Info
	MaxBodyBytes int64
}

// NewHandler creates a new schema handler.
func NewHandler(cfg HandlerConfig) *Handler {
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}
	return &Handler{
		catalog: cfg.Catalog,
		engine:  cfg.Engine,
		store:   cfg.Store,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
		info:    cfg.Info,
		maxBody: maxBody,
	}
}

// Routes mounts the schema endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/openapi.json", h.OpenAPI)

	r.Route("/schemas", func(r chi.Router) {
		r.Get("/", h.ListSchemas)
		r.Route("/{name}", func(r chi.Router) {
			r.Get("/", h.DescribeSchema)
			r.Get("/jsonschema", h.JSONSchema)
			r.Post("/validate", h.Validate)

			if h.store != nil {
				r.Post("/records", h.CreateRecord)
				r.Get("/records", h.ListRecords)
				r.Get("/records/{id}", h.GetRecord)
				r.Delete("/records/{id}", h.DeleteRecord)
			}
		})
	})
}

// ListSchemas returns the registered schema names.
func (h *Handler) ListSchemas(w http.ResponseWriter, r *http.Request) {
	names := h.catalog.Names()
	writeJSON(w, http.StatusOK, map[string]any{
		"schemas": names,
		"count":   len(names),
	})
}

// DescribeSchema returns the structural description of a schema.
func (h *Handler) DescribeSchema(w http.ResponseWriter, r *http.Request) {
	desc, ok := h.describe(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, desc)
}

// JSONSchema returns the JSON Schema document of a schema.
func (h *Handler) JSONSchema(w http.ResponseWriter, r *http.Request) {
	desc, ok := h.describe(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/schema+json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(export.JSONSchema(desc))
}

// OpenAPI returns the OpenAPI document for every registered schema.
func (h *Handler) OpenAPI(w http.ResponseWriter, r *http.Request) {
	doc, err := export.OpenAPIDocument(h.catalog, h.info, h.catalog.Names()...)
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// Validate validates the request body against a schema.
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	inst, ok := h.validate(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, instanceResponse{
		Schema: inst.Schema().Name(),
		Data:   formatter.Ordered(inst),
	})
}

// CreateRecord validates the request body and stores the instance.
func (h *Handler) CreateRecord(w http.ResponseWriter, r *http.Request) {
	inst, ok := h.validate(w, r)
	if !ok {
		return
	}

	rec, err := h.store.Save(r.Context(), inst)
	if errors.Is(err, storage.ErrDuplicate) {
		writeError(w, http.StatusConflict, "duplicate_record", err.Error())
		return
	}
	if err != nil {
		h.internalError(w, r, err)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordsStored.WithLabelValues(rec.Schema).Inc()
	}
	h.logger.Debug().
		Str("schema", rec.Schema).
		Str("id", rec.ID).
		Msg("record stored")

	w.Header().Set("Location", fmt.Sprintf("/schemas/%s/records/%s", rec.Schema, rec.ID))
	writeJSON(w, http.StatusCreated, rec)
}

// ListRecords returns stored records of a schema. Query parameters limit,
// offset and order=desc page the result; any other parameter filters on the
// top-level field of that name.
func (h *Handler) ListRecords(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !h.known(w, name) {
		return
	}

	opts, err := listOptions(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_query", err.Error())
		return
	}

	records, total, err := h.store.List(r.Context(), name, opts)
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	if records == nil {
		records = []storage.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"records": records,
		"total":   total,
		"limit":   opts.Limit,
		"offset":  opts.Offset,
	})
}

// GetRecord returns a stored record.
func (h *Handler) GetRecord(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !h.known(w, name) {
		return
	}

	rec, err := h.store.Get(r.Context(), name, chi.URLParam(r, "id"))
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "record_not_found", err.Error())
		return
	}
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// DeleteRecord removes a stored record.
func (h *Handler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !h.known(w, name) {
		return
	}

	err := h.store.Delete(r.Context(), name, chi.URLParam(r, "id"))
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "record_not_found", err.Error())
		return
	}
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type instanceResponse struct {
	Schema string `json:"schema"`
	Data   any    `json:"data"`
}

func (h *Handler) describe(w http.ResponseWriter, r *http.Request) (*export.Description, bool) {
	desc, err := export.Describe(h.catalog, chi.URLParam(r, "name"))
	if errors.Is(err, registry.ErrUnknownSchema) {
		writeError(w, http.StatusNotFound, "unknown_schema", err.Error())
		return nil, false
	}
	if err != nil {
		h.internalError(w, r, err)
		return nil, false
	}
	return desc, true
}

// validate decodes the body and validates it against the named schema,
// writing the failure response itself.
func (h *Handler) validate(w http.ResponseWriter, r *http.Request) (*validation.Instance, bool) {
	name := chi.URLParam(r, "name")
	if !h.known(w, name) {
		return nil, false
	}

	raw, err := decodeBody(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return nil, false
	}

	inst, err := h.engine.Validate(name, raw)
	if err != nil {
		var verr *schema.ValidationError
		if errors.As(err, &verr) {
			writeJSON(w, http.StatusUnprocessableEntity, verr)
			return nil, false
		}
		h.internalError(w, r, err)
		return nil, false
	}
	return inst, true
}

func (h *Handler) known(w http.ResponseWriter, name string) bool {
	if _, err := h.catalog.Resolve(name); err != nil {
		writeError(w, http.StatusNotFound, "unknown_schema", err.Error())
		return false
	}
	return true
}

func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Error().
		Err(err).
		Str("path", r.URL.Path).
		Str("request_id", middleware.GetReqID(r.Context())).
		Msg("request failed")
	writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
}

// decodeBody reads a single JSON object. Numbers are kept as json.Number so
// integers survive unchanged.
func decodeBody(body io.Reader) (map[string]any, error) {
	dec := json.NewDecoder(body)
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("request body is empty")
		}
		return nil, fmt.Errorf("decode body: %w", err)
	}
	if dec.More() {
		return nil, errors.New("request body must contain a single JSON object")
	}

	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, errors.New("request body must be a JSON object")
	}
	return obj, nil
}

func listOptions(r *http.Request) (storage.ListOptions, error) {
	var opts storage.ListOptions
	for key, values := range r.URL.Query() {
		if len(values) == 0 {
			continue
		}
		v := values[0]
		switch key {
		case "limit":
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return opts, fmt.Errorf("invalid limit %q", v)
			}
			opts.Limit = n
		case "offset":
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return opts, fmt.Errorf("invalid offset %q", v)
			}
			opts.Offset = n
		case "order":
			opts.OrderDesc = strings.EqualFold(v, "desc")
		default:
			if opts.Filters == nil {
				opts.Filters = make(map[string]any)
			}
			opts.Filters[key] = storage.ParseFilterValue(v)
		}
	}
	return opts, nil
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: errorBody{Code: code, Message: message}})
}

// Health returns a simple liveness check.
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// VersionResponse represents the version endpoint response.
type VersionResponse struct {
	Version string `json:"version"`
	Service string `json:"service"`
}

// VersionHandler returns a handler reporting version.
func VersionHandler(version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, VersionResponse{Version: version, Service: "modelgate"})
	}
}

// RouterConfig holds optional configuration for the router.
type RouterConfig struct {
	Metrics        *metrics.Collector
	MetricsHandler http.Handler // Optional; defaults to promhttp.Handler() when Metrics is set
	MetricsPath    string       // Default: /metrics
	Version        string
	Timeout        time.Duration
	EnableSwagger  bool // Serve Swagger UI over /openapi.json at /swagger/
}

// NewRouter creates the main HTTP router.
func NewRouter(h *Handler, logger zerolog.Logger, cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(NewLoggingMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))

	metricsPath := cfg.MetricsPath
	if metricsPath == "" {
		metricsPath = "/metrics"
	}

	if cfg.Metrics != nil {
		r.Use(NewMetricsMiddleware(cfg.Metrics, metricsPath))

		mh := cfg.MetricsHandler
		if mh == nil {
			mh = promhttp.Handler()
		}
		r.Handle(metricsPath, mh)
	}

	r.Get("/health", Health)

	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	r.Get("/version", VersionHandler(version))

	if cfg.EnableSwagger {
		r.Get("/swagger/*", httpSwagger.Handler(
			httpSwagger.URL("/openapi.json"),
		))
	}

	h.Routes(r)
	return r
}

// NewMetricsMiddleware creates middleware that records request metrics.
func NewMetricsMiddleware(m *metrics.Collector, metricsPath string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Skip metrics for internal endpoints
			if r.URL.Path == "/health" || r.URL.Path == metricsPath {
				next.ServeHTTP(w, r)
				return
			}

			m.RequestsInFlight.Inc()
			defer m.RequestsInFlight.Dec()

			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			route := ""
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				route = rctx.RoutePattern()
			}
			route = metrics.NormalizeRoute(route)
			status := statusLabel(ww.Status())

			m.RequestsTotal.WithLabelValues(r.Method, route, status).Inc()
			m.RequestDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
		})
	}
}

// statusLabel returns a string label for the status code.
func statusLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "other"
	}
}

// NewLoggingMiddleware creates middleware that logs HTTP requests.
func NewLoggingMiddleware(logger zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			// Skip logging for health checks and metrics
			if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
				return
			}

			logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("http request")
		})
	}
}
