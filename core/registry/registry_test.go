package registry

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"github.com/artpar/modelgate/core/schema"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// Helper function to create a simple test schema
func makeTestSchema(name string, extra ...schema.Field) *schema.Schema {
	b := schema.New(name).Field("id", schema.UUID())
	for _, f := range extra {
		b.Add(f)
	}
	return b.MustBuild()
}

func TestNew(t *testing.T) {
	r := New()
	if r == nil {
		t.Fatal("New() returned nil")
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0", r.Len())
	}
}

func TestRegistry_Register(t *testing.T) {
	r := New()
	s := makeTestSchema("user")

	if err := r.Register(s); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	got, err := r.Resolve("user")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got != s {
		t.Error("Resolve() returned a different schema")
	}
}

func TestRegistry_Register_Duplicate(t *testing.T) {
	r := New()
	r.MustRegister(makeTestSchema("user"))

	err := r.Register(makeTestSchema("user"))
	if !errors.Is(err, ErrDuplicateSchema) {
		t.Fatalf("Register() error = %v, want ErrDuplicateSchema", err)
	}
	if !strings.Contains(err.Error(), `"user"`) {
		t.Errorf("Register() error = %q, want schema name", err.Error())
	}
}

func TestRegistry_Register_Nil(t *testing.T) {
	if err := New().Register(nil); err == nil {
		t.Error("Register(nil) should fail")
	}
}

func TestRegistry_MustRegisterPanics(t *testing.T) {
	r := New()
	r.MustRegister(makeTestSchema("a"))

	defer func() {
		if recover() == nil {
			t.Error("MustRegister() did not panic on duplicate")
		}
	}()
	r.MustRegister(makeTestSchema("a"))
}

func TestRegistry_Resolve_Unknown(t *testing.T) {
	_, err := New().Resolve("ghost")
	if !errors.Is(err, ErrUnknownSchema) {
		t.Fatalf("Resolve() error = %v, want ErrUnknownSchema", err)
	}
	if !strings.Contains(err.Error(), "ghost") {
		t.Errorf("Resolve() error = %q, want schema name", err.Error())
	}
}

func TestRegistry_NamesAndList(t *testing.T) {
	r := New()
	if err := r.RegisterAll(makeTestSchema("zeta"), makeTestSchema("alpha"), makeTestSchema("mid")); err != nil {
		t.Fatalf("RegisterAll() error = %v", err)
	}

	want := []string{"alpha", "mid", "zeta"}
	if diff := cmp.Diff(want, r.Names()); diff != "" {
		t.Errorf("Names() mismatch (-want +got):\n%s", diff)
	}

	var listed []string
	for _, s := range r.List() {
		listed = append(listed, s.Name())
	}
	if diff := cmp.Diff(want, listed); diff != "" {
		t.Errorf("List() mismatch (-want +got):\n%s", diff)
	}
}

func TestRegistry_RegisterAll_StopsAtError(t *testing.T) {
	r := New()
	err := r.RegisterAll(makeTestSchema("a"), makeTestSchema("a"), makeTestSchema("b"))
	if !errors.Is(err, ErrDuplicateSchema) {
		t.Fatalf("RegisterAll() error = %v, want ErrDuplicateSchema", err)
	}
	if r.Has("b") {
		t.Error("RegisterAll() continued after error")
	}
}

func TestRegistry_CheckReferences(t *testing.T) {
	r := New()
	r.MustRegister(makeTestSchema("package",
		schema.Field{Name: "delivery", Type: schema.Nested("delivery")},
		schema.Field{Name: "items", Type: schema.Sequence(schema.Nested("item"))},
	))

	err := r.CheckReferences()
	var refErr *ReferenceError
	if !errors.As(err, &refErr) {
		t.Fatalf("CheckReferences() error = %v, want *ReferenceError", err)
	}
	if !errors.Is(err, ErrUnknownSchema) {
		t.Error("CheckReferences() error should match ErrUnknownSchema")
	}
	want := []MissingReference{
		{Schema: "package", Field: "delivery", Target: "delivery"},
		{Schema: "package", Field: "items", Target: "item"},
	}
	if diff := cmp.Diff(want, refErr.Missing); diff != "" {
		t.Errorf("Missing mismatch (-want +got):\n%s", diff)
	}

	r.MustRegister(makeTestSchema("delivery"))
	r.MustRegister(makeTestSchema("item"))
	if err := r.CheckReferences(); err != nil {
		t.Errorf("CheckReferences() error = %v", err)
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := New()
	const n = 50

	var wg sync.WaitGroup
	errs := make(chan error, n*2)
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("s%d", i)
		wg.Add(2)
		go func() {
			defer wg.Done()
			errs <- r.Register(makeTestSchema(name))
		}()
		go func() {
			defer wg.Done()
			r.Names()
			_, _ = r.Resolve(name)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("Register() error = %v", err)
		}
	}
	if r.Len() != n {
		t.Errorf("Len() = %d, want %d", r.Len(), n)
	}
}

func TestRegistry_ConcurrentDuplicate(t *testing.T) {
	r := New()
	const n = 20

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if r.Register(makeTestSchema("same")) == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if succeeded != 1 {
		t.Errorf("%d concurrent registrations succeeded, want 1", succeeded)
	}
}
