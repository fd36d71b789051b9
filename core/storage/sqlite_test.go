package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/artpar/modelgate/core/registry"
	"github.com/artpar/modelgate/core/schema"
	"github.com/artpar/modelgate/core/validation"
)

func createTestEngine(t *testing.T) *validation.Engine {
	t.Helper()
	r := registry.New()
	r.MustRegister(schema.New("product").
		Field("id", schema.UUID()).
		Field("name", schema.String(), schema.Required()).
		Field("price", schema.Int(), schema.Default(int64(0))).
		MustBuild())
	r.MustRegister(schema.New("event").
		Field("at", schema.Datetime(), schema.Required()).
		MustBuild())
	return validation.New(r)
}

// Helper function to create a migrated in-memory store with a fixed clock.
func createTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	tick := 0
	store.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	return store
}

func mustValidate(t *testing.T, e *validation.Engine, name string, raw map[string]any) *validation.Instance {
	t.Helper()
	inst, err := e.Validate(name, raw)
	if err != nil {
		t.Fatalf("Validate(%s) error = %v", name, err)
	}
	return inst
}

func TestSQLiteStore_SaveAndGet(t *testing.T) {
	store := createTestStore(t)
	e := createTestEngine(t)
	ctx := context.Background()

	inst := mustValidate(t, e, "product", map[string]any{"name": "Widget", "price": 100})
	rec, err := store.Save(ctx, inst)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if _, err := uuid.Parse(rec.ID); err != nil {
		t.Errorf("generated id %q is not a UUID: %v", rec.ID, err)
	}
	if rec.Data[IDField] != rec.ID {
		t.Errorf("data id = %v, want %s written back", rec.Data[IDField], rec.ID)
	}
	if rec.Schema != "product" {
		t.Errorf("schema = %s, want product", rec.Schema)
	}

	got, err := store.Get(ctx, "product", rec.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Data["name"] != "Widget" {
		t.Errorf("name = %v, want Widget", got.Data["name"])
	}
	if got.Data["price"] != json.Number("100") {
		t.Errorf("price = %#v, want json.Number(100)", got.Data["price"])
	}
	if !got.CreatedAt.Equal(rec.CreatedAt) {
		t.Errorf("created_at = %v, want %v", got.CreatedAt, rec.CreatedAt)
	}
}

func TestSQLiteStore_ExplicitID(t *testing.T) {
	store := createTestStore(t)
	e := createTestEngine(t)
	ctx := context.Background()

	id := "5b0c9f1e-3a57-4c2e-9d1b-2f0a6c7e8d90"
	inst := mustValidate(t, e, "product", map[string]any{"id": id, "name": "Widget"})

	rec, err := store.Save(ctx, inst)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if rec.ID != id {
		t.Errorf("id = %s, want %s", rec.ID, id)
	}

	_, err = store.Save(ctx, inst)
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("second Save error = %v, want ErrDuplicate", err)
	}
}

func TestSQLiteStore_NoIDField(t *testing.T) {
	store := createTestStore(t)
	e := createTestEngine(t)
	ctx := context.Background()

	inst := mustValidate(t, e, "event", map[string]any{"at": "2024-03-01T10:00:00Z"})
	rec, err := store.Save(ctx, inst)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, ok := rec.Data[IDField]; ok {
		t.Error("id should not be added to a schema without an id field")
	}
	if _, err := store.Get(ctx, "event", rec.ID); err != nil {
		t.Errorf("Get failed: %v", err)
	}
}

func TestSQLiteStore_NotFound(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	_, err := store.Get(ctx, "product", "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get error = %v, want ErrNotFound", err)
	}

	err = store.Delete(ctx, "product", "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete error = %v, want ErrNotFound", err)
	}
}

func TestSQLiteStore_SchemaIsolation(t *testing.T) {
	store := createTestStore(t)
	e := createTestEngine(t)
	ctx := context.Background()

	rec, err := store.Save(ctx, mustValidate(t, e, "product", map[string]any{"name": "Widget"}))
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	_, err = store.Get(ctx, "event", rec.ID)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get under another schema error = %v, want ErrNotFound", err)
	}
}

func TestSQLiteStore_List(t *testing.T) {
	store := createTestStore(t)
	e := createTestEngine(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		price := 10
		if i%2 == 0 {
			price = 20
		}
		raw := map[string]any{"name": fmt.Sprintf("item-%d", i), "price": price}
		if _, err := store.Save(ctx, mustValidate(t, e, "product", raw)); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	records, total, err := store.List(ctx, "product", ListOptions{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if total != 5 || len(records) != 5 {
		t.Fatalf("List = %d records of %d, want 5 of 5", len(records), total)
	}
	if records[0].Data["name"] != "item-0" {
		t.Errorf("first = %v, want item-0", records[0].Data["name"])
	}

	records, total, err = store.List(ctx, "product", ListOptions{Limit: 2, Offset: 1, OrderDesc: true})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if total != 5 {
		t.Errorf("total = %d, want 5", total)
	}
	if len(records) != 2 || records[0].Data["name"] != "item-3" || records[1].Data["name"] != "item-2" {
		t.Errorf("page = %v, want item-3, item-2", names(records))
	}

	records, total, err = store.List(ctx, "product", ListOptions{Filters: map[string]any{"price": 20}})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if total != 3 || len(records) != 3 {
		t.Errorf("filtered = %v (total %d), want 3 records", names(records), total)
	}

	records, total, err = store.List(ctx, "product", ListOptions{Filters: map[string]any{"price": 20, "name": "item-4"}})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if total != 1 || len(records) != 1 || records[0].Data["name"] != "item-4" {
		t.Errorf("filtered = %v (total %d), want item-4", names(records), total)
	}
}

func names(records []Record) []any {
	out := make([]any, len(records))
	for i, r := range records {
		out[i] = r.Data["name"]
	}
	return out
}

func TestSQLiteStore_Delete(t *testing.T) {
	store := createTestStore(t)
	e := createTestEngine(t)
	ctx := context.Background()

	rec, err := store.Save(ctx, mustValidate(t, e, "product", map[string]any{"name": "Widget"}))
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.Delete(ctx, "product", rec.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Get(ctx, "product", rec.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete error = %v, want ErrNotFound", err)
	}
}

func TestLoad(t *testing.T) {
	store := createTestStore(t)
	e := createTestEngine(t)
	ctx := context.Background()

	orig := mustValidate(t, e, "product", map[string]any{"name": "Widget", "price": "42"})
	rec, err := store.Save(ctx, orig)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	inst, err := Load(ctx, store, e, "product", rec.ID)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if v, _ := inst.Get("price"); v != int64(42) {
		t.Errorf("price = %#v, want int64(42)", v)
	}
	v, _ := inst.Get("id")
	if id, ok := v.(uuid.UUID); !ok || id.String() != rec.ID {
		t.Errorf("id = %#v, want uuid %s", v, rec.ID)
	}

	if _, err := Load(ctx, store, e, "product", "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load missing error = %v, want ErrNotFound", err)
	}
}

func TestMigrateIdempotent(t *testing.T) {
	store := createTestStore(t)
	if err := store.Migrate(); err != nil {
		t.Fatalf("second Migrate failed: %v", err)
	}

	var n int
	if err := store.DB().QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&n); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if n != 1 {
		t.Errorf("applied migrations = %d, want 1", n)
	}
}

func TestAssignsID(t *testing.T) {
	tests := []struct {
		name string
		s    *schema.Schema
		want bool
	}{
		{"uuid", schema.New("a").Field("id", schema.UUID()).MustBuild(), true},
		{"string", schema.New("a").Field("id", schema.String()).MustBuild(), true},
		{"int", schema.New("a").Field("id", schema.Int()).MustBuild(), false},
		{"absent", schema.New("a").Field("name", schema.String()).MustBuild(), false},
		{"computed", schema.New("a").Computed("id", schema.String(), func(schema.Values) (any, error) { return "x", nil }).MustBuild(), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := assignsID(tt.s); got != tt.want {
				t.Errorf("assignsID() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseFilterValue(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"42", int64(42)},
		{"-3", int64(-3)},
		{"2.5", 2.5},
		{"true", true},
		{"false", false},
		{"widget", "widget"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := ParseFilterValue(tt.in); got != tt.want {
			t.Errorf("ParseFilterValue(%q) = %#v, want %#v", tt.in, got, tt.want)
		}
	}
}
