// Package params parses method arguments against declared parameters,
// yielding typed values or a structured error.
//
// Native methods of the object runtime declare their parameters as a list
// of Specs; the dispatcher calls Parse before the method body runs.
package params

import (
	"fmt"
	"strings"

	"github.com/go-viper/mapstructure/v2"
)

// Kind is the expected type of a parameter.
type Kind int

const (
	Any Kind = iota
	String
	Int
	Bool
	Func
)

func (k Kind) String() string {
	switch k {
	case Any:
		return "any"
	case String:
		return "string"
	case Int:
		return "integer"
	case Bool:
		return "boolean"
	case Func:
		return "script"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Spec describes one parameter.
type Spec struct {
	Name     string
	Kind     Kind
	Optional bool
	Default  any
	// Variadic collects every remaining argument into a []any.
	// Only the last spec may be variadic.
	Variadic bool
}

// Script is the value type of Func parameters.
type Script = func() (any, error)

// Error reports a parameter that could not be satisfied.
type Error struct {
	Param string // offending parameter, empty for arity errors
	Index int    // argument index, -1 for arity errors
	Usage string
	Err   error
}

func (e *Error) Error() string {
	if e.Param == "" {
		return fmt.Sprintf("wrong # args: should be %q", e.Usage)
	}
	return fmt.Sprintf("invalid value for parameter %q: %v", e.Param, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Usage renders specs as a Tcl-style usage string.
func Usage(specs []Spec) string {
	parts := make([]string, 0, len(specs))
	for _, s := range specs {
		switch {
		case s.Variadic:
			parts = append(parts, "?"+s.Name+" ...?")
		case s.Optional:
			parts = append(parts, "?"+s.Name+"?")
		default:
			parts = append(parts, s.Name)
		}
	}
	return strings.Join(parts, " ")
}

// Parse matches args against specs. Optional parameters are filled from
// left to right while there are more arguments than required parameters
// left; unfilled optionals take their Default.
func Parse(args []any, specs []Spec) ([]any, error) {
	required := 0
	for _, s := range specs {
		if !s.Optional && !s.Variadic {
			required++
		}
	}
	variadic := len(specs) > 0 && specs[len(specs)-1].Variadic
	if len(args) < required {
		return nil, &Error{Index: -1, Usage: Usage(specs)}
	}

	out := make([]any, 0, len(specs))
	extra := len(args) - required
	ai := 0
	for _, s := range specs {
		switch {
		case s.Variadic:
			rest := make([]any, 0, len(args)-ai)
			for ; ai < len(args); ai++ {
				v, err := convert(args[ai], s.Kind)
				if err != nil {
					return nil, &Error{Param: s.Name, Index: ai, Usage: Usage(specs), Err: err}
				}
				rest = append(rest, v)
			}
			out = append(out, rest)
			continue
		case s.Optional:
			if extra == 0 {
				out = append(out, s.Default)
				continue
			}
			extra--
		}
		v, err := convert(args[ai], s.Kind)
		if err != nil {
			return nil, &Error{Param: s.Name, Index: ai, Usage: Usage(specs), Err: err}
		}
		out = append(out, v)
		ai++
	}
	if ai < len(args) && !variadic {
		return nil, &Error{Index: -1, Usage: Usage(specs)}
	}
	return out, nil
}

func convert(arg any, kind Kind) (any, error) {
	switch kind {
	case Any:
		return arg, nil
	case String:
		if s, ok := arg.(fmt.Stringer); ok {
			return s.String(), nil
		}
		var s string
		err := mapstructure.WeakDecode(arg, &s)
		return s, err
	case Int:
		var n int
		if err := mapstructure.WeakDecode(arg, &n); err != nil {
			return nil, fmt.Errorf("expected integer but got %v", arg)
		}
		return n, nil
	case Bool:
		if s, ok := arg.(string); ok {
			switch strings.ToLower(s) {
			case "yes", "on":
				return true, nil
			case "no", "off":
				return false, nil
			}
		}
		var b bool
		if err := mapstructure.WeakDecode(arg, &b); err != nil {
			return nil, fmt.Errorf("expected boolean but got %v", arg)
		}
		return b, nil
	case Func:
		if fn, ok := arg.(Script); ok {
			return fn, nil
		}
		return nil, fmt.Errorf("expected script but got %T", arg)
	}
	return nil, fmt.Errorf("unknown parameter kind %s", kind)
}

// Decode parses args and stores the values into the struct pointed to by
// out. Fields are matched by their `param` tag, or by name.
func Decode(args []any, specs []Spec, out any) error {
	values, err := Parse(args, specs)
	if err != nil {
		return err
	}
	m := make(map[string]any, len(specs))
	for i, s := range specs {
		m[s.Name] = values[i]
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "param",
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(m)
}
