package expression

import (
	"strings"
	"sync"
	"testing"

	"github.com/artpar/modelgate/core/schema"
)

func TestCompiler_Eval(t *testing.T) {
	c := NewCompiler()

	tests := []struct {
		name    string
		expr    string
		env     map[string]any
		want    any
		wantErr bool
	}{
		{"arithmetic", `a * b`, map[string]any{"a": 6, "b": 7}, 42, false},
		{"index", `dims[0] + dims[2]`, map[string]any{"dims": []any{1, 2, 3}}, 4, false},
		{"lower function", `lower(text)`, map[string]any{"text": "HELLO"}, "hello", false},
		{"upper function", `upper(text)`, map[string]any{"text": "hello"}, "HELLO", false},
		{"trim function", `trim(text)`, map[string]any{"text": "  hi  "}, "hi", false},
		{"coalesce", `coalesce(a, b, "c")`, map[string]any{"a": nil, "b": ""}, "c", false},
		{"nested map", `delivery.city`, map[string]any{"delivery": map[string]any{"city": "Oslo"}}, "Oslo", false},
		{"syntax error", `a +`, nil, nil, true},
		{"wrong arity", `lower("a", "b")`, nil, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Eval(tt.expr, tt.env)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Eval() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("Eval() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestCompiler_Cache(t *testing.T) {
	c := NewCompiler()

	p1, err := c.Compile(`x + 1`)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	p2, _ := c.Compile(`x + 1`)
	if p1 != p2 {
		t.Error("Compile() did not reuse the cached program")
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}

	c.ClearCache()
	if c.Len() != 0 {
		t.Errorf("Len() after ClearCache() = %d, want 0", c.Len())
	}
}

func TestCompiler_Compute(t *testing.T) {
	c := NewCompiler()

	fn, err := c.Compute(`dimensions[0] * dimensions[1] * dimensions[2]`)
	if err != nil {
		t.Fatalf("Compute() error = %v", err)
	}
	got, err := fn(schema.Values{"dimensions": []any{int64(10), int64(20), int64(30)}})
	if err != nil {
		t.Fatalf("compute error = %v", err)
	}
	switch v := got.(type) {
	case int:
		if v != 6000 {
			t.Errorf("compute = %d, want 6000", v)
		}
	case int64:
		if v != 6000 {
			t.Errorf("compute = %d, want 6000", v)
		}
	default:
		t.Errorf("compute = %#v (%T), want integer 6000", got, got)
	}

	if _, err := c.Compute(`)(`); err == nil {
		t.Error("Compute() with invalid source should fail")
	}
}

func TestCompiler_Check(t *testing.T) {
	c := NewCompiler()

	fn, err := c.Check(`len(value) >= 3`, "too short")
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}

	if got, err := fn("abcd"); err != nil || got != "abcd" {
		t.Errorf("check(abcd) = %v, %v", got, err)
	}
	if _, err := fn("ab"); err == nil || err.Error() != "too short" {
		t.Errorf("check(ab) error = %v, want too short", err)
	}

	noMsg, _ := c.Check(`value > 0`, "")
	if _, err := noMsg(-1); err == nil || !strings.Contains(err.Error(), "value > 0") {
		t.Errorf("check without message error = %v", err)
	}

	notBool, _ := c.Check(`value + 1`, "")
	if _, err := notBool(1); err == nil || !strings.Contains(err.Error(), "want bool") {
		t.Errorf("non-bool check error = %v", err)
	}
}

func TestCompiler_ModelCheck(t *testing.T) {
	c := NewCompiler()

	fn, err := c.ModelCheck(`start <= end`, "end before start")
	if err != nil {
		t.Fatalf("ModelCheck() error = %v", err)
	}
	if err := fn(schema.Values{"start": int64(1), "end": int64(2)}); err != nil {
		t.Errorf("ModelCheck(1, 2) error = %v", err)
	}
	if err := fn(schema.Values{"start": int64(3), "end": int64(2)}); err == nil || err.Error() != "end before start" {
		t.Errorf("ModelCheck(3, 2) error = %v", err)
	}
}

func TestCompiler_Concurrent(t *testing.T) {
	c := NewCompiler()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, err := c.Eval(`n * 2`, map[string]any{"n": i})
			if err != nil {
				t.Errorf("Eval() error = %v", err)
				return
			}
			if got != i*2 {
				t.Errorf("Eval() = %v, want %d", got, i*2)
			}
		}(i)
	}
	wg.Wait()

	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}
