package vm

import (
	"sort"

	"github.com/chazu/nxrt/host"
	"github.com/chazu/nxrt/params"
)

// MethodFunc implements a method. Scripted methods run in their own
// variable scope; native methods run in a frame that scope lookups see
// through.
type MethodFunc func(c *Call) (any, error)

// GuardFunc decides whether a filter or mixin registration applies to the
// call being dispatched.
type GuardFunc func(c *Call) (bool, error)

// Method is a method defined on a class or on a single object.
type Method struct {
	Name   string
	Fn     MethodFunc
	Native bool
	Params []params.Spec

	cmd   *Command
	owner *Object
	class *Class
}

func newMethod(name string, fn MethodFunc, native bool, owner *Object, class *Class) *Method {
	return &Method{
		Name:   name,
		Fn:     fn,
		Native: native,
		cmd:    NewCommand(qualifiedName(owner, name)),
		owner:  owner,
		class:  class,
	}
}

// WithParams declares the parameters checked before the method runs.
func (m *Method) WithParams(specs ...params.Spec) *Method {
	m.Params = specs
	return m
}

// Cmd returns the method's command handle.
func (m *Method) Cmd() *Command { return m.cmd }

// Class returns the defining class, nil for per-object methods.
func (m *Method) Class() *Class { return m.class }

// Owner returns the defining object (the class object for class methods).
func (m *Method) Owner() *Object { return m.owner }

// Handle returns the fully qualified method name, e.g. "::Stack push".
func (m *Method) Handle() string { return m.cmd.Name() }

func qualifiedName(owner *Object, name string) string {
	if owner == nil {
		return name
	}
	return "::" + owner.Name() + " " + name
}

func sortedMethodNames(methods map[string]*Method) []string {
	names := make([]string, 0, len(methods))
	for n := range methods {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ---------------------------------------------------------------------------
// Call: what a method body sees
// ---------------------------------------------------------------------------

// Call is passed to every method and guard body.
type Call struct {
	Runtime *Runtime
	Self    *Object
	Method  string
	Class   *Class
	Args    []any
	Frame   *host.Frame
}

// Arg returns argument i, or nil.
func (c *Call) Arg(i int) any {
	if i < 0 || i >= len(c.Args) {
		return nil
	}
	return c.Args[i]
}

// Next calls the next method in the precedence with new arguments.
func (c *Call) Next(args ...any) (any, error) { return c.Runtime.Next(args...) }

// NextSame calls the next method with the arguments of this call.
func (c *Call) NextSame() (any, error) { return c.Runtime.NextSame() }

// Send dispatches a method on another object (or on self).
func (c *Call) Send(obj *Object, method string, args ...any) (any, error) {
	return c.Runtime.Dispatch(obj, method, args...)
}

// Current answers a stack introspection query.
func (c *Call) Current(opt CurrentOption) (any, error) { return c.Runtime.Current(opt) }
