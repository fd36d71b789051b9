package metrics_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/artpar/modelgate/adapters/metrics"
	"github.com/artpar/modelgate/core/registry"
	"github.com/artpar/modelgate/core/schema"
	"github.com/artpar/modelgate/core/validation"
)

func TestNewWithRegistry(t *testing.T) {
	// Use a new registry to avoid conflicts with other tests
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)

	if m == nil {
		t.Fatal("NewWithRegistry returned nil")
	}
	if m.ValidationsTotal == nil {
		t.Error("ValidationsTotal is nil")
	}
	if m.ValidationDuration == nil {
		t.Error("ValidationDuration is nil")
	}
	if m.FieldErrors == nil {
		t.Error("FieldErrors is nil")
	}
	if m.RequestsTotal == nil {
		t.Error("RequestsTotal is nil")
	}
	if m.RecordsStored == nil {
		t.Error("RecordsStored is nil")
	}
	if m.ConfigReloads == nil {
		t.Error("ConfigReloads is nil")
	}
}

func TestObserveValidation(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)

	m.ObserveValidation("user", time.Millisecond, nil)
	m.ObserveValidation("user", time.Millisecond, []schema.FieldError{
		{Path: []string{"name"}, Kind: schema.MissingField},
		{Path: []string{"age"}, Kind: schema.InvalidFormat},
		{Path: []string{"email"}, Kind: schema.InvalidFormat},
	})

	if got := testutil.ToFloat64(m.ValidationsTotal.WithLabelValues("user", "valid")); got != 1 {
		t.Errorf("valid = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ValidationsTotal.WithLabelValues("user", "invalid")); got != 1 {
		t.Errorf("invalid = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.FieldErrors.WithLabelValues("user", string(schema.InvalidFormat))); got != 2 {
		t.Errorf("invalid_format errors = %v, want 2", got)
	}
	if got := testutil.CollectAndCount(m.ValidationDuration); got != 1 {
		t.Errorf("duration series = %d, want 1", got)
	}
}

func TestObserveValidation_FromEngine(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)

	r := registry.New()
	r.MustRegister(schema.New("user").
		Field("name", schema.String(), schema.Required()).
		MustBuild())
	e := validation.New(r, validation.WithObserver(m))

	if _, err := e.Validate("user", map[string]any{"name": "ada"}); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if _, err := e.Validate("user", map[string]any{}); err == nil {
		t.Fatal("Validate() expected error")
	}

	expected := `
# HELP modelgate_validations_total Total number of top-level validations
# TYPE modelgate_validations_total counter
modelgate_validations_total{result="invalid",schema="user"} 1
modelgate_validations_total{result="valid",schema="user"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "modelgate_validations_total"); err != nil {
		t.Error(err)
	}
}

func TestObserveReload(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)

	m.ObserveReload(nil)
	m.ObserveReload(errors.New("bad yaml"))
	m.ObserveReload(nil)

	if got := testutil.ToFloat64(m.ConfigReloads); got != 2 {
		t.Errorf("reloads = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.ConfigReloadErrors); got != 1 {
		t.Errorf("reload errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ConfigLastReload); got <= 0 {
		t.Errorf("last reload = %v, want a timestamp", got)
	}
}

func TestRequestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)

	m.RequestsTotal.WithLabelValues("POST", "/schemas/{name}/validate", "2xx").Inc()
	m.RequestsTotal.WithLabelValues("POST", "/schemas/{name}/validate", "4xx").Add(5)
	m.RequestsInFlight.Inc()
	m.RequestsInFlight.Dec()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather error: %v", err)
	}

	found := false
	for _, f := range families {
		if f.GetName() == "modelgate_requests_total" {
			found = true
			if len(f.GetMetric()) != 2 {
				t.Errorf("expected 2 metric series, got %d", len(f.GetMetric()))
			}
		}
	}
	if !found {
		t.Error("modelgate_requests_total metric not found")
	}
}

func TestDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics.NewWithRegistry(reg)

	defer func() {
		if recover() == nil {
			t.Error("second registration on the same registry should panic")
		}
	}()
	metrics.NewWithRegistry(reg)
}

func TestNormalizeRoute(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"/schemas/{name}/validate", "/schemas/{name}/validate"},
		{"", "unmatched"},
		{"/metrics/*", "/metrics"},
		{"/" + strings.Repeat("a", 60), "/" + strings.Repeat("a", 49) + "..."},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := metrics.NormalizeRoute(tt.input); got != tt.expected {
				t.Errorf("NormalizeRoute(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}
