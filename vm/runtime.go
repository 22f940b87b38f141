package vm

import (
	"fmt"
	"sort"

	"github.com/chazu/nxrt/host"
	"github.com/chazu/nxrt/manifest"
)

// Names of the bootstrapped classes.
const (
	RootClassName = "Object"
	MetaClassName = "Class"
)

// ---------------------------------------------------------------------------
// Runtime
// ---------------------------------------------------------------------------

// Runtime is the object system of one host interpreter. It is not safe for
// concurrent use; run one Runtime (and one host.Interp) per goroutine.
type Runtime struct {
	interp  *host.Interp
	stack   *CallStack
	objects map[string]*Object
	root    *Class
	meta    *Class

	observer        Observer
	filters         bool
	mixins          bool
	snapshotOnError bool

	guardDepth  int
	lastSnapErr error
	autoName    int
}

// Option configures a Runtime.
type Option func(*runtimeConfig)

type runtimeConfig struct {
	manifest   *manifest.Manifest
	observer   Observer
	assertions *bool
}

// WithManifest applies an nxrt.toml configuration.
func WithManifest(m *manifest.Manifest) Option {
	return func(c *runtimeConfig) { c.manifest = m }
}

// WithObserver installs an observer of stack events.
func WithObserver(o Observer) Option {
	return func(c *runtimeConfig) { c.observer = o }
}

// WithAssertions overrides whether contract violations panic.
func WithAssertions(on bool) Option {
	return func(c *runtimeConfig) { c.assertions = &on }
}

// New creates a runtime on top of interp and bootstraps the root class
// Object and the metaclass Class.
func New(interp *host.Interp, opts ...Option) *Runtime {
	cfg := runtimeConfig{}
	for _, o := range opts {
		o(&cfg)
	}
	m := cfg.manifest
	if m == nil {
		m = manifest.Default()
	}
	assertions := m.Stack.Assertions
	if cfg.assertions != nil {
		assertions = *cfg.assertions
	}

	interp.SetMaxDepth(m.Stack.MaxDepth)
	rt := &Runtime{
		interp:          interp,
		objects:         make(map[string]*Object),
		observer:        cfg.observer,
		filters:         m.FiltersEnabled(),
		mixins:          m.MixinsEnabled(),
		snapshotOnError: m.Trace.SnapshotOnError,
	}
	rt.stack = NewCallStack(interp,
		WithCapacity(m.Stack.InitialCapacity),
		WithStackAssertions(assertions),
	)
	rt.stack.SetObserver(cfg.observer)
	rt.stack.lastRelease = rt.releaseDestroyed
	rt.bootstrap()
	return rt
}

func (rt *Runtime) bootstrap() {
	rt.root = newClass(rt, RootClassName, nil)
	rt.meta = newClass(rt, MetaClassName, nil)
	rt.root.class = rt.meta
	rt.meta.class = rt.meta
	_ = rt.meta.SetSupers(rt.root)
	rt.objects[rt.root.name] = rt.root.Object
	rt.objects[rt.meta.name] = rt.meta.Object
	rt.meta.instances[rt.root.Object] = struct{}{}
	rt.meta.instances[rt.meta.Object] = struct{}{}
	installRootMethods(rt.root)
	installMetaMethods(rt.meta)
}

// Close finishes every record still on the stack, pops the host frames and
// flushes the observer when it buffers events.
func (rt *Runtime) Close() error {
	rt.stack.PopAll()
	rt.interp.Reset()
	rt.lastSnapErr = nil
	if f, ok := rt.observer.(Flusher); ok {
		if err := f.Flush(); err != nil {
			return fmt.Errorf("flushing observer: %w", err)
		}
	}
	return nil
}

// Interp returns the host interpreter.
func (rt *Runtime) Interp() *host.Interp { return rt.interp }

// Stack returns the activation-record store.
func (rt *Runtime) Stack() *CallStack { return rt.stack }

// Root returns the root class Object.
func (rt *Runtime) Root() *Class { return rt.root }

// Meta returns the metaclass Class.
func (rt *Runtime) Meta() *Class { return rt.meta }

// ---------------------------------------------------------------------------
// Object table
// ---------------------------------------------------------------------------

// NewClass creates a class. Without superclasses it inherits from Object.
func (rt *Runtime) NewClass(name string, supers ...*Class) (*Class, error) {
	if _, exists := rt.objects[name]; exists {
		return nil, fmt.Errorf("%s: %w", name, ErrDuplicateObject)
	}
	if len(supers) == 0 {
		supers = []*Class{rt.root}
	}
	c := newClass(rt, name, rt.meta)
	if err := c.SetSupers(supers...); err != nil {
		return nil, err
	}
	rt.objects[name] = c.Object
	rt.meta.instances[c.Object] = struct{}{}
	return c, nil
}

// NewObject creates an instance of class. It does not run init; use
// Create for that.
func (rt *Runtime) NewObject(name string, class *Class) (*Object, error) {
	if _, exists := rt.objects[name]; exists {
		return nil, fmt.Errorf("%s: %w", name, ErrDuplicateObject)
	}
	if class == nil {
		class = rt.root
	}
	if class.Destroyed() {
		return nil, fmt.Errorf("class %s: %w", class.Name(), ErrObjectDestroyed)
	}
	obj := newObject(rt, name, class)
	rt.objects[name] = obj
	class.instances[obj] = struct{}{}
	return obj, nil
}

// Create makes an instance and dispatches init to it when some class in
// its precedence defines one.
func (rt *Runtime) Create(name string, class *Class, args ...any) (*Object, error) {
	obj, err := rt.NewObject(name, class)
	if err != nil {
		return nil, err
	}
	if _, m, _ := rt.resolveUnguarded(obj, "init", rt.computeOrder(obj)); m != nil {
		if _, err := rt.Dispatch(obj, "init", args...); err != nil {
			return obj, err
		}
	}
	return obj, nil
}

func (rt *Runtime) autoObjectName() string {
	for {
		rt.autoName++
		name := fmt.Sprintf("__#%d", rt.autoName)
		if _, exists := rt.objects[name]; !exists {
			return name
		}
	}
}

// Lookup returns the object registered under name.
func (rt *Runtime) Lookup(name string) (*Object, error) {
	obj, ok := rt.objects[name]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrNoSuchObject)
	}
	return obj, nil
}

// LookupClass returns the class registered under name.
func (rt *Runtime) LookupClass(name string) (*Class, error) {
	obj, err := rt.Lookup(name)
	if err != nil {
		return nil, err
	}
	if obj.asClass == nil {
		return nil, fmt.Errorf("%q is not a class: %w", name, ErrNoSuchObject)
	}
	return obj.asClass, nil
}

// ObjectNames returns the sorted names of all live objects.
func (rt *Runtime) ObjectNames() []string {
	names := make([]string, 0, len(rt.objects))
	for n := range rt.objects {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// retireMethod detaches a method that was deleted or redefined.
func (rt *Runtime) retireMethod(m *Method) {
	rt.stack.ClearCommandReferences(m.cmd)
	m.cmd.Delete()
}

// ---------------------------------------------------------------------------
// Stack queries
// ---------------------------------------------------------------------------

// Self returns the current object or ErrNoCurrentObject.
func (rt *Runtime) Self() (*Object, error) {
	obj, ok := rt.stack.ResolveSelf()
	if !ok {
		return nil, ErrNoCurrentObject
	}
	return obj, nil
}

// ResolveSelf returns the current object.
func (rt *Runtime) ResolveSelf() (*Object, bool) { return rt.stack.ResolveSelf() }

// FindLastInvocation returns the calling record, see CallStack.FindLastInvocation.
func (rt *Runtime) FindLastInvocation(offset int) (*Record, *host.Frame) {
	return rt.stack.FindLastInvocation(offset)
}

// FindActiveFrame returns the nearest active record, see CallStack.FindActiveFrame.
func (rt *Runtime) FindActiveFrame(offset int) (*Record, *host.Frame) {
	return rt.stack.FindActiveFrame(offset)
}

// MarkDestroyed tags the records of obj, see CallStack.MarkDestroyed.
func (rt *Runtime) MarkDestroyed(obj *Object) int { return rt.stack.MarkDestroyed(obj) }

// ClearCommandReferences clears cmd from live records.
func (rt *Runtime) ClearCommandReferences(cmd *Command) int {
	return rt.stack.ClearCommandReferences(cmd)
}

// UseActiveFrames installs the active frames, see CallStack.UseActiveFrames.
func (rt *Runtime) UseActiveFrames() *FrameContext { return rt.stack.UseActiveFrames() }

// WithActiveFrames runs fn with the active frames installed.
func (rt *Runtime) WithActiveFrames(fn func() error) error {
	return rt.stack.WithActiveFrames(fn)
}

// EvalIn runs fn inside an object frame for obj: self resolves to obj
// although no method is running.
func (rt *Runtime) EvalIn(obj *Object, fn func() (any, error)) (any, error) {
	return rt.interp.Invoke(host.Invocation{
		Name:       obj.Name(),
		Flags:      host.FrameObject,
		ClientData: obj,
		Body:       func(*host.Frame) (any, error) { return fn() },
	})
}
