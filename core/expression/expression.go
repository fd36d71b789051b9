// Package expression compiles expr-lang expressions into computed fields,
// field checks and model validators. Compiled programs are cached by source.
package expression

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/artpar/modelgate/core/schema"
)

// Default is the process-wide compiler used by schema definitions.
var Default = NewCompiler()

// Compiler compiles and caches expressions.
type Compiler struct {
	// Compiled program cache
	cache   map[string]*vm.Program
	cacheMu sync.RWMutex

	// Expr options with custom functions
	options []expr.Option
}

// NewCompiler creates a compiler with the helper functions registered.
func NewCompiler() *Compiler {
	return &Compiler{
		cache: make(map[string]*vm.Program),
		options: []expr.Option{
			expr.AllowUndefinedVariables(),
			expr.Function("lower", func(params ...any) (any, error) {
				if len(params) != 1 {
					return nil, fmt.Errorf("lower requires 1 argument")
				}
				return strings.ToLower(toString(params[0])), nil
			}),
			expr.Function("upper", func(params ...any) (any, error) {
				if len(params) != 1 {
					return nil, fmt.Errorf("upper requires 1 argument")
				}
				return strings.ToUpper(toString(params[0])), nil
			}),
			expr.Function("trim", func(params ...any) (any, error) {
				if len(params) != 1 {
					return nil, fmt.Errorf("trim requires 1 argument")
				}
				return strings.TrimSpace(toString(params[0])), nil
			}),
			expr.Function("coalesce", func(params ...any) (any, error) {
				for _, p := range params {
					if p != nil && p != "" {
						return p, nil
					}
				}
				return nil, nil
			}),
		},
	}
}

// Compile returns the cached program for src, compiling it on first use.
func (c *Compiler) Compile(src string) (*vm.Program, error) {
	c.cacheMu.RLock()
	program, ok := c.cache[src]
	c.cacheMu.RUnlock()

	if ok {
		return program, nil
	}

	program, err := expr.Compile(src, c.options...)
	if err != nil {
		return nil, fmt.Errorf("compile expression %q: %w", src, err)
	}

	c.cacheMu.Lock()
	c.cache[src] = program
	c.cacheMu.Unlock()

	return program, nil
}

// Eval evaluates src against env.
func (c *Compiler) Eval(src string, env map[string]any) (any, error) {
	program, err := c.Compile(src)
	if err != nil {
		return nil, err
	}

	result, err := expr.Run(program, env)
	if err != nil {
		return nil, fmt.Errorf("run expression %q: %w", src, err)
	}
	return result, nil
}

// Compute compiles src into a computed-field function. The expression sees
// every validated field by name.
func (c *Compiler) Compute(src string) (schema.ComputeFunc, error) {
	if _, err := c.Compile(src); err != nil {
		return nil, err
	}
	return func(values schema.Values) (any, error) {
		return c.Eval(src, values)
	}, nil
}

// Check compiles src into a field validator. The expression sees the
// coerced value as `value` and must return a bool; message is reported when
// it returns false.
func (c *Compiler) Check(src, message string) (schema.ValidatorFunc, error) {
	if _, err := c.Compile(src); err != nil {
		return nil, err
	}
	return func(v any) (any, error) {
		if err := c.test(src, message, map[string]any{"value": v}); err != nil {
			return nil, err
		}
		return v, nil
	}, nil
}

// ModelCheck compiles src into a model validator over all field values.
func (c *Compiler) ModelCheck(src, message string) (schema.ModelValidatorFunc, error) {
	if _, err := c.Compile(src); err != nil {
		return nil, err
	}
	return func(values schema.Values) error {
		return c.test(src, message, values)
	}, nil
}

func (c *Compiler) test(src, message string, env map[string]any) error {
	result, err := c.Eval(src, env)
	if err != nil {
		return err
	}
	ok, isBool := result.(bool)
	if !isBool {
		return fmt.Errorf("expression %q returned %T, want bool", src, result)
	}
	if ok {
		return nil
	}
	if message == "" {
		message = fmt.Sprintf("check failed: %s", src)
	}
	return errors.New(message)
}

// Len returns the number of cached programs.
func (c *Compiler) Len() int {
	c.cacheMu.RLock()
	defer c.cacheMu.RUnlock()
	return len(c.cache)
}

// ClearCache clears the compiled expression cache.
func (c *Compiler) ClearCache() {
	c.cacheMu.Lock()
	c.cache = make(map[string]*vm.Program)
	c.cacheMu.Unlock()
}

func toString(v any) string {
	if v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case []byte:
		return string(val)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}
