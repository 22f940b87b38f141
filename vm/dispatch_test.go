package vm

import (
	"errors"
	"fmt"
	"testing"

	"github.com/chazu/nxrt/host"
	"github.com/chazu/nxrt/manifest"
	"github.com/chazu/nxrt/params"
)

// ---------------------------------------------------------------------------
// Basic dispatch
// ---------------------------------------------------------------------------

func TestDispatchClassMethod(t *testing.T) {
	rt := newTestRuntime(t)
	c := mustClass(t, rt, "Greeter")
	c.DefineMethod("greet", func(call *Call) (any, error) {
		return fmt.Sprintf("hello %v", call.Arg(0)), nil
	})
	o := mustObject(t, rt, "g", c)

	got, err := rt.Dispatch(o, "greet", "world")
	if err != nil {
		t.Fatal(err)
	}
	if got != "hello world" {
		t.Errorf("got %v", got)
	}
	if rt.Stack().Depth() != 0 || rt.Interp().Depth() != 0 {
		t.Error("dispatch left frames behind")
	}
}

func TestDispatchUnknownMethod(t *testing.T) {
	rt := newTestRuntime(t)
	o := mustObject(t, rt, "o", nil)

	if _, err := rt.Dispatch(o, "nope"); !errors.Is(err, ErrUnknownMethod) {
		t.Errorf("err = %v, want ErrUnknownMethod", err)
	}

	o.DefineMethod("unknown", func(call *Call) (any, error) {
		return fmt.Sprintf("unknown %v %v", call.Arg(0), call.Arg(1)), nil
	})
	got, err := rt.Dispatch(o, "nope", 7)
	if err != nil || got != "unknown nope 7" {
		t.Errorf("got %v, %v", got, err)
	}
}

func TestDispatchNilObject(t *testing.T) {
	rt := newTestRuntime(t)
	if _, err := rt.Dispatch(nil, "m"); !errors.Is(err, ErrNoSuchObject) {
		t.Errorf("err = %v, want ErrNoSuchObject", err)
	}
}

func TestDispatchChecksParams(t *testing.T) {
	rt := newTestRuntime(t)
	o := mustObject(t, rt, "o", nil)
	o.DefineMethod("double", func(call *Call) (any, error) {
		return call.Args[0].(int) * 2, nil
	}).WithParams(params.Spec{Name: "n", Kind: params.Int})

	got, err := rt.Dispatch(o, "double", "21")
	if err != nil || got != 42 {
		t.Errorf("got %v, %v; want 42", got, err)
	}

	_, err = rt.Dispatch(o, "double", "abc")
	var perr *params.Error
	if !errors.As(err, &perr) {
		t.Errorf("err = %v, want *params.Error", err)
	}
	if rt.Stack().Depth() != 0 {
		t.Error("a rejected call must not push a record")
	}
}

func TestRecursionLimit(t *testing.T) {
	m := manifest.Default()
	m.Stack.MaxDepth = 10
	rt := newTestRuntime(t, WithManifest(m))
	o := mustObject(t, rt, "o", nil)
	o.DefineMethod("loop", func(call *Call) (any, error) {
		return call.Send(call.Self, "loop")
	})

	if _, err := rt.Dispatch(o, "loop"); !errors.Is(err, host.ErrRecursionLimit) {
		t.Errorf("err = %v, want ErrRecursionLimit", err)
	}
	if rt.Stack().Depth() != 0 || rt.Interp().Depth() != 0 {
		t.Error("records or frames left after unwinding")
	}
}

func TestPanicFinishesRecords(t *testing.T) {
	rt := newTestRuntime(t)
	o := mustObject(t, rt, "o", nil)
	o.DefineMethod("inner", func(*Call) (any, error) { panic("inner failed") })
	o.DefineMethod("outer", func(call *Call) (any, error) { return call.Send(call.Self, "inner") })

	func() {
		defer func() { recover() }()
		rt.Dispatch(o, "outer")
	}()
	if rt.Stack().Depth() != 0 || rt.Interp().Depth() != 0 {
		t.Errorf("depth = %d/%d after panic", rt.Stack().Depth(), rt.Interp().Depth())
	}
}

// ---------------------------------------------------------------------------
// Precedence and next
// ---------------------------------------------------------------------------

func TestDiamondPrecedence(t *testing.T) {
	rt := newTestRuntime(t)
	a := mustClass(t, rt, "A")
	b := mustClass(t, rt, "B", a)
	c := mustClass(t, rt, "C", a)
	d := mustClass(t, rt, "D", b, c)

	var names []string
	for _, k := range d.Precedence() {
		names = append(names, k.Name())
	}
	want := []string{"D", "B", "C", "A", "Object"}
	if !equalStrings(names, want) {
		t.Errorf("precedence = %v, want %v", names, want)
	}

	var trace []string
	for _, k := range []*Class{a, b, c, d} {
		k.DefineMethod("who", func(call *Call) (any, error) {
			trace = append(trace, k.Name())
			return call.NextSame()
		})
	}
	o := mustObject(t, rt, "o", d)
	if _, err := rt.Dispatch(o, "who"); err != nil {
		t.Fatal(err)
	}
	if want := []string{"D", "B", "C", "A"}; !equalStrings(trace, want) {
		t.Errorf("next chain = %v, want %v", trace, want)
	}
}

func TestCyclicHierarchyRejected(t *testing.T) {
	rt := newTestRuntime(t)
	a := mustClass(t, rt, "A")
	b := mustClass(t, rt, "B", a)
	if err := a.SetSupers(b); !errors.Is(err, ErrCyclicHierarchy) {
		t.Errorf("err = %v, want ErrCyclicHierarchy", err)
	}
	if !b.IsSubclassOf(a) || a.IsSubclassOf(b) {
		t.Error("hierarchy changed by a rejected SetSupers")
	}
}

func TestObjectMethodShadowsClassMethod(t *testing.T) {
	rt := newTestRuntime(t)
	c := mustClass(t, rt, "C")
	c.DefineMethod("m", func(*Call) (any, error) { return "class", nil })
	o := mustObject(t, rt, "o", c)
	o.DefineMethod("m", func(call *Call) (any, error) {
		r, err := call.NextSame()
		return fmt.Sprintf("object+%v", r), err
	})

	got, err := rt.Dispatch(o, "m")
	if err != nil || got != "object+class" {
		t.Errorf("got %v, %v", got, err)
	}
}

func TestNextWithArguments(t *testing.T) {
	rt := newTestRuntime(t)
	c := mustClass(t, rt, "C")
	d := mustClass(t, rt, "D", c)
	c.DefineMethod("m", func(call *Call) (any, error) { return call.Args, nil })
	d.DefineMethod("m", func(call *Call) (any, error) {
		isNext, _ := call.Current(CurrentIsNextCall)
		if isNext != false {
			t.Error("the first invocation is not a next call")
		}
		return call.Next(42)
	})
	o := mustObject(t, rt, "o", d)

	got, err := rt.Dispatch(o, "m", 1)
	if err != nil {
		t.Fatal(err)
	}
	args, _ := got.([]any)
	if len(args) != 1 || args[0] != 42 {
		t.Errorf("args = %v, want [42]", got)
	}
}

func TestNextAtEndOfChain(t *testing.T) {
	rt := newTestRuntime(t)
	o := mustObject(t, rt, "o", nil)
	o.DefineMethod("m", func(call *Call) (any, error) {
		r, err := call.NextSame()
		if r != nil || err != nil {
			return nil, fmt.Errorf("next at end = %v, %v", r, err)
		}
		return "done", nil
	})
	if got, err := rt.Dispatch(o, "m"); err != nil || got != "done" {
		t.Errorf("got %v, %v", got, err)
	}
}

func TestNextOutsideMethod(t *testing.T) {
	rt := newTestRuntime(t)
	if _, err := rt.NextSame(); !errors.Is(err, ErrNoCurrentObject) {
		t.Errorf("err = %v, want ErrNoCurrentObject", err)
	}
}

// ---------------------------------------------------------------------------
// Mixins
// ---------------------------------------------------------------------------

func TestObjectMixin(t *testing.T) {
	rt := newTestRuntime(t)
	c := mustClass(t, rt, "C")
	mix := mustClass(t, rt, "Logging")
	o := mustObject(t, rt, "o", c)

	c.DefineMethod("m", func(call *Call) (any, error) {
		active, _ := call.Current(CurrentActiveMixin)
		if active != (*Class)(nil) {
			t.Errorf("active mixin in class method = %v, want none", active)
		}
		return "class", nil
	})
	mix.DefineMethod("m", func(call *Call) (any, error) {
		active, _ := call.Current(CurrentActiveMixin)
		if active != mix {
			t.Errorf("active mixin = %v, want Logging", active)
		}
		r, err := call.NextSame()
		return fmt.Sprintf("mixin>%v", r), err
	})
	o.AddMixin(mix, nil)

	got, err := rt.Dispatch(o, "m")
	if err != nil || got != "mixin>class" {
		t.Errorf("got %v, %v", got, err)
	}

	o.RemoveMixin(mix)
	if got, _ := rt.Dispatch(o, "m"); got != "class" {
		t.Errorf("after removal got %v", got)
	}
}

func TestMixinGuard(t *testing.T) {
	rt := newTestRuntime(t)
	c := mustClass(t, rt, "C")
	mix := mustClass(t, rt, "M")
	o := mustObject(t, rt, "o", c)

	c.DefineMethod("m", func(*Call) (any, error) { return "class", nil })
	mix.DefineMethod("m", func(call *Call) (any, error) {
		r, err := call.NextSame()
		return fmt.Sprintf("mixin>%v", r), err
	})

	var guardSelf *Object
	var guardCalled any
	o.AddMixin(mix, func(call *Call) (bool, error) {
		guardSelf, _ = call.Runtime.Self()
		guardCalled, _ = call.Current(CurrentCalledMethod)
		on, _ := call.Self.Get("enabled")
		return on == true, nil
	})

	if got, _ := rt.Dispatch(o, "m"); got != "class" {
		t.Errorf("guard off: got %v", got)
	}
	o.Set("enabled", true)
	if got, _ := rt.Dispatch(o, "m"); got != "mixin>class" {
		t.Errorf("guard on: got %v", got)
	}
	if guardSelf != o || guardCalled != "m" {
		t.Errorf("inside guard: self %v, called %v", guardSelf, guardCalled)
	}
}

func TestClassMixinAppliesToSubclasses(t *testing.T) {
	rt := newTestRuntime(t)
	c := mustClass(t, rt, "C")
	d := mustClass(t, rt, "D", c)
	mix := mustClass(t, rt, "M")
	mix.DefineMethod("tag", func(*Call) (any, error) { return "mixed", nil })
	c.AddInstMixin(mix, nil)

	o := mustObject(t, rt, "o", d)
	if got, err := rt.Dispatch(o, "tag"); err != nil || got != "mixed" {
		t.Errorf("got %v, %v", got, err)
	}
}

func TestMixinsDisabledByManifest(t *testing.T) {
	m := manifest.Default()
	off := false
	m.Dispatch.Mixins = &off
	rt := newTestRuntime(t, WithManifest(m))

	mix := mustClass(t, rt, "M")
	mix.DefineMethod("tag", func(*Call) (any, error) { return "mixed", nil })
	o := mustObject(t, rt, "o", nil)
	o.AddMixin(mix, nil)

	if _, err := rt.Dispatch(o, "tag"); !errors.Is(err, ErrUnknownMethod) {
		t.Errorf("err = %v, want ErrUnknownMethod", err)
	}
}

// ---------------------------------------------------------------------------
// Filters
// ---------------------------------------------------------------------------

func TestFilterInterceptsCall(t *testing.T) {
	rt := newTestRuntime(t)
	c := mustClass(t, rt, "C")
	o := mustObject(t, rt, "o", c)

	var trace []string
	c.DefineMethod("m", func(call *Call) (any, error) {
		isNext, _ := call.Current(CurrentIsNextCall)
		if isNext != false {
			t.Error("the intercepted method is not a next call")
		}
		r, _ := rt.FindActiveFrame(0)
		if r == nil || r.MethodName != "m" {
			t.Errorf("active frame = %v, want m", r)
		}
		trace = append(trace, "m")
		return "m", nil
	})
	c.DefineMethod("logf", func(call *Call) (any, error) {
		called, err := call.Current(CurrentCalledMethod)
		if err != nil {
			return nil, err
		}
		trace = append(trace, fmt.Sprintf("before %v", called))
		r, err := call.NextSame()
		trace = append(trace, "after")
		return fmt.Sprintf("f(%v)", r), err
	})
	c.AddInstFilter("logf", nil)

	got, err := rt.Dispatch(o, "m")
	if err != nil || got != "f(m)" {
		t.Errorf("got %v, %v", got, err)
	}
	if want := []string{"before m", "m", "after"}; !equalStrings(trace, want) {
		t.Errorf("trace = %v, want %v", trace, want)
	}

	if got, _ := rt.DispatchNoFilter(o, "m"); got != "m" {
		t.Errorf("DispatchNoFilter got %v", got)
	}
}

func TestFilterNotReappliedWhileActive(t *testing.T) {
	rt := newTestRuntime(t)
	c := mustClass(t, rt, "C")
	o := mustObject(t, rt, "o", c)

	var called []string
	c.DefineMethod("helper", func(*Call) (any, error) { return nil, nil })
	c.DefineMethod("m", func(call *Call) (any, error) {
		return call.Send(call.Self, "helper")
	})
	c.DefineMethod("f", func(call *Call) (any, error) {
		name, _ := call.Current(CurrentCalledMethod)
		called = append(called, name.(string))
		// Sending to self from the filter itself is not filtered again.
		if _, err := call.Send(call.Self, "helper"); err != nil {
			return nil, err
		}
		return call.NextSame()
	})
	c.AddInstFilter("f", nil)

	if _, err := rt.Dispatch(o, "m"); err != nil {
		t.Fatal(err)
	}
	if want := []string{"m", "helper"}; !equalStrings(called, want) {
		t.Errorf("filter ran for %v, want %v", called, want)
	}
}

func TestFilterChainOrder(t *testing.T) {
	rt := newTestRuntime(t)
	c := mustClass(t, rt, "C")
	o := mustObject(t, rt, "o", c)

	var trace []string
	c.DefineMethod("m", func(*Call) (any, error) {
		trace = append(trace, "m")
		return nil, nil
	})
	for _, name := range []string{"f1", "f2"} {
		c.DefineMethod(name, func(call *Call) (any, error) {
			isNext, _ := call.Current(CurrentIsNextCall)
			trace = append(trace, fmt.Sprintf("%s:%v", name, isNext))
			return call.NextSame()
		})
	}
	o.AddFilter("f1", nil)
	c.AddInstFilter("f2", nil)

	if _, err := rt.Dispatch(o, "m"); err != nil {
		t.Fatal(err)
	}
	if want := []string{"f1:false", "f2:true", "m"}; !equalStrings(trace, want) {
		t.Errorf("trace = %v, want %v", trace, want)
	}
}

func TestFilterGuard(t *testing.T) {
	rt := newTestRuntime(t)
	c := mustClass(t, rt, "C")
	o := mustObject(t, rt, "o", c)

	c.DefineMethod("m", func(*Call) (any, error) { return "m", nil })
	c.DefineMethod("skip", func(*Call) (any, error) { return "skip", nil })
	c.DefineMethod("wrap", func(call *Call) (any, error) {
		r, err := call.NextSame()
		return fmt.Sprintf("[%v]", r), err
	})
	c.AddInstFilter("wrap", func(call *Call) (bool, error) {
		return call.Method != "skip", nil
	})

	if got, _ := rt.Dispatch(o, "m"); got != "[m]" {
		t.Errorf("m: got %v", got)
	}
	if got, _ := rt.Dispatch(o, "skip"); got != "skip" {
		t.Errorf("skip: got %v", got)
	}
}

func TestFiltersDisabledByManifest(t *testing.T) {
	m := manifest.Default()
	off := false
	m.Dispatch.Filters = &off
	rt := newTestRuntime(t, WithManifest(m))

	o := mustObject(t, rt, "o", nil)
	o.DefineMethod("m", func(*Call) (any, error) { return "m", nil })
	o.DefineMethod("wrap", func(*Call) (any, error) { return "wrapped", nil })
	o.AddFilter("wrap", nil)

	if got, _ := rt.Dispatch(o, "m"); got != "m" {
		t.Errorf("got %v, want m", got)
	}
}
