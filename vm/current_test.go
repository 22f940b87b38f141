package vm

import (
	"errors"
	"fmt"
	"testing"
)

func TestCurrentInNestedCall(t *testing.T) {
	rt := newTestRuntime(t)
	a := mustClass(t, rt, "A")
	b := mustClass(t, rt, "B")
	caller := mustObject(t, rt, "caller", a)
	callee := mustObject(t, rt, "callee", b)

	got := make(map[CurrentOption]any)
	b.DefineMethod("work", func(call *Call) (any, error) {
		for _, opt := range []CurrentOption{
			CurrentObject, CurrentMethod, CurrentClass, CurrentArgs,
			CurrentCallingObject, CurrentCallingMethod, CurrentCallingClass,
			CurrentCallingLevel, CurrentActiveLevel, CurrentIsNextCall, CurrentNextMethod,
		} {
			v, err := call.Current(opt)
			if err != nil {
				t.Errorf("current %s: %v", opt, err)
			}
			got[opt] = v
		}
		return nil, nil
	})
	a.DefineMethod("run", func(call *Call) (any, error) {
		return call.Send(callee, "work", 1, 2)
	})

	if _, err := rt.Dispatch(caller, "run"); err != nil {
		t.Fatal(err)
	}

	checks := []struct {
		opt  CurrentOption
		want any
	}{
		{CurrentObject, callee},
		{CurrentMethod, "work"},
		{CurrentClass, b},
		{CurrentCallingObject, caller},
		{CurrentCallingMethod, "run"},
		{CurrentCallingClass, a},
		{CurrentCallingLevel, "#1"},
		{CurrentActiveLevel, "#1"},
		{CurrentIsNextCall, false},
		{CurrentNextMethod, ""},
	}
	for _, c := range checks {
		if got[c.opt] != c.want {
			t.Errorf("current %s = %v, want %v", c.opt, got[c.opt], c.want)
		}
	}
	if args := fmt.Sprint(got[CurrentArgs]); args != "[1 2]" {
		t.Errorf("current args = %s", args)
	}
}

func TestCurrentAtTopLevel(t *testing.T) {
	rt := newTestRuntime(t)

	if _, err := rt.Current(CurrentObject); !errors.Is(err, ErrNoCurrentObject) {
		t.Errorf("object: err = %v, want ErrNoCurrentObject", err)
	}
	if _, err := rt.Current(CurrentCallingMethod); !errors.Is(err, ErrNoCurrentObject) {
		t.Errorf("callingmethod: err = %v, want ErrNoCurrentObject", err)
	}
	for _, opt := range []CurrentOption{CurrentCallingLevel, CurrentActiveLevel} {
		v, err := rt.Current(opt)
		if err != nil || v != "1" {
			t.Errorf("%s = %v, %v; want 1", opt, v, err)
		}
	}
}

func TestCurrentCallerAtTopLevel(t *testing.T) {
	rt := newTestRuntime(t)
	o := mustObject(t, rt, "o", nil)
	o.DefineMethod("m", func(call *Call) (any, error) {
		obj, _ := call.Current(CurrentCallingObject)
		if obj != (*Object)(nil) {
			t.Errorf("calling object = %v, want none", obj)
		}
		level, _ := call.Current(CurrentCallingLevel)
		return level, nil
	})
	if got, _ := rt.Dispatch(o, "m"); got != "1" {
		t.Errorf("calling level = %v, want 1", got)
	}
}

func TestCurrentNextMethod(t *testing.T) {
	rt := newTestRuntime(t)
	c := mustClass(t, rt, "C")
	d := mustClass(t, rt, "D", c)
	c.DefineMethod("m", func(*Call) (any, error) { return nil, nil })
	d.DefineMethod("m", func(call *Call) (any, error) { return call.Current(CurrentNextMethod) })
	o := mustObject(t, rt, "o", d)

	if got, err := rt.Dispatch(o, "m"); err != nil || got != "::C m" {
		t.Errorf("nextmethod = %v, %v; want ::C m", got, err)
	}
}

func TestCurrentFilterInfo(t *testing.T) {
	rt := newTestRuntime(t)
	c := mustClass(t, rt, "C")
	o := mustObject(t, rt, "o", c)

	c.DefineMethod("m", func(call *Call) (any, error) {
		// Still inside the suspended filter.
		return call.Current(CurrentCalledMethod)
	})
	var reg, calledClass any
	c.DefineMethod("f", func(call *Call) (any, error) {
		var err error
		if reg, err = call.Current(CurrentFilterReg); err != nil {
			return nil, err
		}
		if calledClass, err = call.Current(CurrentCalledClass); err != nil {
			return nil, err
		}
		return call.NextSame()
	})
	want := c.AddInstFilter("f", nil)

	got, err := rt.Dispatch(o, "m")
	if err != nil {
		t.Fatal(err)
	}
	if got != "m" {
		t.Errorf("calledmethod in intercepted method = %v", got)
	}
	if reg != want {
		t.Errorf("filterreg = %v, want %v", reg, want)
	}
	if calledClass != c {
		t.Errorf("calledclass = %v, want C", calledClass)
	}

	if _, err := rt.DispatchNoFilter(o, "m"); !errors.Is(err, ErrNotInFilter) {
		t.Errorf("outside filter: err = %v, want ErrNotInFilter", err)
	}
}

func TestParseCurrentOption(t *testing.T) {
	opt, err := ParseCurrentOption("callinglevel")
	if err != nil || opt != CurrentCallingLevel {
		t.Errorf("got %v, %v", opt, err)
	}
	if opt.String() != "callinglevel" {
		t.Errorf("String() = %s", opt)
	}
	if _, err := ParseCurrentOption("bogus"); !errors.Is(err, ErrBadOption) {
		t.Errorf("err = %v, want ErrBadOption", err)
	}
}
