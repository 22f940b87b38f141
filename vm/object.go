package vm

import (
	"fmt"
	"sort"
)

// ---------------------------------------------------------------------------
// Object
// ---------------------------------------------------------------------------

type objectState uint8

const (
	stateLive objectState = iota
	stateDestroying
	stateDestroyed
)

func (s objectState) String() string {
	switch s {
	case stateLive:
		return "live"
	case stateDestroying:
		return "destroying"
	case stateDestroyed:
		return "destroyed"
	}
	return "unknown"
}

// Object is an instance in the runtime. Classes are objects too; a class's
// Object has asClass set.
type Object struct {
	rt      *Runtime
	name    string
	class   *Class
	id      *Command
	methods map[string]*Method
	mixins  []*Registration
	filters []*Registration
	vars    map[string]any
	state   objectState
	asClass *Class
}

func newObject(rt *Runtime, name string, class *Class) *Object {
	return &Object{
		rt:      rt,
		name:    name,
		class:   class,
		id:      NewCommand(name),
		methods: make(map[string]*Method),
		vars:    make(map[string]any),
	}
}

// Name returns the object's name.
func (o *Object) Name() string { return o.name }

// Class returns the object's class.
func (o *Object) Class() *Class { return o.class }

// ID returns the identity command of the object.
func (o *Object) ID() *Command { return o.id }

// AsClass returns the class this object represents, or nil.
func (o *Object) AsClass() *Class { return o.asClass }

// Destroyed reports whether the object has been physically destroyed.
func (o *Object) Destroyed() bool { return o.state == stateDestroyed }

// Destroying reports whether destruction has begun but is deferred while
// records of the object are still running.
func (o *Object) Destroying() bool { return o.state == stateDestroying }

func (o *Object) String() string {
	if o == nil {
		return "<nil object>"
	}
	return o.name
}

// ---------------------------------------------------------------------------
// Instance variables
// ---------------------------------------------------------------------------

// Get returns the value of an instance variable.
func (o *Object) Get(name string) (any, bool) {
	v, ok := o.vars[name]
	return v, ok
}

// Set stores an instance variable.
func (o *Object) Set(name string, value any) {
	o.vars[name] = value
}

// VarNames returns the sorted names of the object's instance variables.
func (o *Object) VarNames() []string {
	names := make([]string, 0, len(o.vars))
	for n := range o.vars {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ---------------------------------------------------------------------------
// Per-object methods
// ---------------------------------------------------------------------------

// DefineMethod defines a scripted per-object method.
func (o *Object) DefineMethod(name string, fn MethodFunc) *Method {
	return o.define(newMethod(name, fn, false, o, nil))
}

// DefineNative defines a per-object method implemented in Go.
func (o *Object) DefineNative(name string, fn MethodFunc) *Method {
	return o.define(newMethod(name, fn, true, o, nil))
}

func (o *Object) define(m *Method) *Method {
	if old, ok := o.methods[m.Name]; ok {
		o.rt.retireMethod(old)
	}
	o.methods[m.Name] = m
	return m
}

// DeleteMethod removes a per-object method. Records still running it keep
// going without a command.
func (o *Object) DeleteMethod(name string) bool {
	m, ok := o.methods[name]
	if !ok {
		return false
	}
	delete(o.methods, name)
	o.rt.retireMethod(m)
	return true
}

// Method returns a per-object method.
func (o *Object) Method(name string) *Method { return o.methods[name] }

// MethodNames returns the sorted per-object method names.
func (o *Object) MethodNames() []string {
	return sortedMethodNames(o.methods)
}

// ---------------------------------------------------------------------------
// Per-object mixins and filters
// ---------------------------------------------------------------------------

// AddMixin registers a per-object mixin class.
func (o *Object) AddMixin(c *Class, guard GuardFunc) *Registration {
	r := &Registration{Owner: o, Class: c, Guard: guard}
	o.mixins = append(o.mixins, r)
	return r
}

// RemoveMixin drops a per-object mixin registration.
func (o *Object) RemoveMixin(c *Class) bool {
	var ok bool
	o.mixins, ok = removeRegistration(o.mixins, func(r *Registration) bool { return r.Class == c })
	return ok
}

// AddFilter registers a per-object filter method.
func (o *Object) AddFilter(method string, guard GuardFunc) *Registration {
	r := &Registration{Owner: o, Name: method, Guard: guard}
	o.filters = append(o.filters, r)
	return r
}

// RemoveFilter drops a per-object filter registration.
func (o *Object) RemoveFilter(method string) bool {
	var ok bool
	o.filters, ok = removeRegistration(o.filters, func(r *Registration) bool { return r.Name == method })
	return ok
}

// Mixins returns the per-object mixin registrations.
func (o *Object) Mixins() []*Registration { return o.mixins }

// Filters returns the per-object filter registrations.
func (o *Object) Filters() []*Registration { return o.filters }

// Registration is a mixin or filter registered on an object or class,
// optionally gated by a guard.
type Registration struct {
	Owner *Object
	Class *Class // mixin class
	Name  string // filter method name
	Guard GuardFunc
}

func (r *Registration) String() string {
	if r.Class != nil {
		return fmt.Sprintf("%s mixin %s", r.Owner.Name(), r.Class.Name())
	}
	return fmt.Sprintf("%s filter %s", r.Owner.Name(), r.Name)
}

func removeRegistration(regs []*Registration, match func(*Registration) bool) ([]*Registration, bool) {
	for i, r := range regs {
		if match(r) {
			return append(regs[:i:i], regs[i+1:]...), true
		}
	}
	return regs, false
}
