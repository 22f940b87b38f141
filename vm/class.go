package vm

import "fmt"

// ---------------------------------------------------------------------------
// Class
// ---------------------------------------------------------------------------

// Class is an object that defines methods for its instances. Classes may
// have several superclasses.
type Class struct {
	*Object

	supers      []*Class
	subs        []*Class
	instMethods map[string]*Method
	instMixins  []*Registration
	instFilters []*Registration
	instances   map[*Object]struct{}
}

func newClass(rt *Runtime, name string, meta *Class) *Class {
	c := &Class{
		Object:      newObject(rt, name, meta),
		instMethods: make(map[string]*Method),
		instances:   make(map[*Object]struct{}),
	}
	c.Object.asClass = c
	return c
}

// Supers returns the direct superclasses in declaration order.
func (c *Class) Supers() []*Class { return c.supers }

// Subclasses returns the direct subclasses.
func (c *Class) Subclasses() []*Class { return c.subs }

// Instances returns the number of live instances.
func (c *Class) Instances() int { return len(c.instances) }

// SetSupers replaces the direct superclasses. Hierarchies that would
// contain a cycle are rejected.
func (c *Class) SetSupers(supers ...*Class) error {
	for _, s := range supers {
		if s == c || s.inherits(c) {
			return fmt.Errorf("%s -> %s: %w", c.Name(), s.Name(), ErrCyclicHierarchy)
		}
	}
	for _, old := range c.supers {
		old.removeSub(c)
	}
	c.supers = append([]*Class(nil), supers...)
	for _, s := range c.supers {
		s.subs = append(s.subs, c)
	}
	return nil
}

func (c *Class) removeSub(sub *Class) {
	for i, s := range c.subs {
		if s == sub {
			c.subs = append(c.subs[:i:i], c.subs[i+1:]...)
			return
		}
	}
}

// inherits reports whether other is reachable through c's superclasses.
func (c *Class) inherits(other *Class) bool {
	for _, s := range c.supers {
		if s == other || s.inherits(other) {
			return true
		}
	}
	return false
}

// IsSubclassOf reports whether c is other or inherits from it.
func (c *Class) IsSubclassOf(other *Class) bool {
	return c == other || c.inherits(other)
}

// Precedence returns the class linearization: c first, superclasses in
// declaration order, shared ancestors after every class that inherits
// from them.
func (c *Class) Precedence() []*Class {
	visited := make(map[*Class]bool)
	var post []*Class
	var visit func(*Class)
	visit = func(k *Class) {
		visited[k] = true
		for i := len(k.supers) - 1; i >= 0; i-- {
			if s := k.supers[i]; !visited[s] {
				visit(s)
			}
		}
		post = append(post, k)
	}
	visit(c)

	order := make([]*Class, len(post))
	for i, k := range post {
		order[len(post)-1-i] = k
	}
	return order
}

// ---------------------------------------------------------------------------
// Instance methods
// ---------------------------------------------------------------------------

// DefineMethod defines a scripted instance method.
func (c *Class) DefineMethod(name string, fn MethodFunc) *Method {
	return c.defineInst(newMethod(name, fn, false, c.Object, c))
}

// DefineNative defines an instance method implemented in Go.
func (c *Class) DefineNative(name string, fn MethodFunc) *Method {
	return c.defineInst(newMethod(name, fn, true, c.Object, c))
}

func (c *Class) defineInst(m *Method) *Method {
	if old, ok := c.instMethods[m.Name]; ok {
		c.rt.retireMethod(old)
	}
	c.instMethods[m.Name] = m
	return m
}

// DeleteMethod removes an instance method. Records still running it keep
// going without a command.
func (c *Class) DeleteMethod(name string) bool {
	m, ok := c.instMethods[name]
	if !ok {
		return false
	}
	delete(c.instMethods, name)
	c.rt.retireMethod(m)
	return true
}

// InstMethod returns the instance method defined directly on c.
func (c *Class) InstMethod(name string) *Method { return c.instMethods[name] }

// InstMethodNames returns the sorted instance method names.
func (c *Class) InstMethodNames() []string {
	return sortedMethodNames(c.instMethods)
}

// ---------------------------------------------------------------------------
// Class-level mixins and filters
// ---------------------------------------------------------------------------

// AddInstMixin registers a mixin for every instance of c and its subclasses.
func (c *Class) AddInstMixin(mixin *Class, guard GuardFunc) *Registration {
	r := &Registration{Owner: c.Object, Class: mixin, Guard: guard}
	c.instMixins = append(c.instMixins, r)
	return r
}

// RemoveInstMixin drops a class-level mixin registration.
func (c *Class) RemoveInstMixin(mixin *Class) bool {
	var ok bool
	c.instMixins, ok = removeRegistration(c.instMixins, func(r *Registration) bool { return r.Class == mixin })
	return ok
}

// AddInstFilter registers a filter for every instance of c and its subclasses.
func (c *Class) AddInstFilter(method string, guard GuardFunc) *Registration {
	r := &Registration{Owner: c.Object, Name: method, Guard: guard}
	c.instFilters = append(c.instFilters, r)
	return r
}

// RemoveInstFilter drops a class-level filter registration.
func (c *Class) RemoveInstFilter(method string) bool {
	var ok bool
	c.instFilters, ok = removeRegistration(c.instFilters, func(r *Registration) bool { return r.Name == method })
	return ok
}
