package vm

import (
	"fmt"
	"strings"

	"github.com/chazu/nxrt/host"
)

// ---------------------------------------------------------------------------
// current: stack introspection
// ---------------------------------------------------------------------------

// CurrentOption selects what Current reports.
type CurrentOption int

const (
	CurrentObject CurrentOption = iota
	CurrentMethod
	CurrentClass
	CurrentArgs
	CurrentCallingObject
	CurrentCallingMethod
	CurrentCallingClass
	CurrentCallingLevel
	CurrentActiveLevel
	CurrentActiveMixin
	CurrentCalledMethod
	CurrentCalledClass
	CurrentFilterReg
	CurrentIsNextCall
	CurrentNextMethod
)

var currentOptionNames = []string{
	"object", "method", "class", "args",
	"callingobject", "callingmethod", "callingclass", "callinglevel",
	"activelevel", "activemixin", "calledmethod", "calledclass",
	"filterreg", "isnextcall", "nextmethod",
}

func (o CurrentOption) String() string {
	if int(o) < 0 || int(o) >= len(currentOptionNames) {
		return fmt.Sprintf("option(%d)", int(o))
	}
	return currentOptionNames[o]
}

// ParseCurrentOption maps an option name to a CurrentOption.
func ParseCurrentOption(name string) (CurrentOption, error) {
	for i, n := range currentOptionNames {
		if n == name {
			return CurrentOption(i), nil
		}
	}
	return 0, fmt.Errorf("%w %q: must be one of %s", ErrBadOption, name, strings.Join(currentOptionNames, ", "))
}

// Current answers a stack introspection query. Object-valued options
// return *Object (nil when there is none), class options *Class, names
// strings, levels strings of the form "#N" (or "1" outside of methods),
// args []any, filterreg the *Registration and isnextcall a bool.
//
// Every option except callinglevel and activelevel requires a current
// object and fails with ErrNoCurrentObject otherwise.
func (rt *Runtime) Current(opt CurrentOption) (any, error) {
	switch opt {
	case CurrentCallingLevel:
		_, f := rt.stack.FindLastInvocation(1)
		return levelString(f), nil
	case CurrentActiveLevel:
		_, f := rt.stack.FindActiveFrame(1)
		return levelString(f), nil
	}

	self, ok := rt.stack.ResolveSelf()
	if !ok {
		return nil, ErrNoCurrentObject
	}
	if opt == CurrentObject {
		return self, nil
	}

	h, _, ok := rt.stack.TopRecord()
	var r *Record
	if ok {
		r = rt.stack.Record(h)
	}

	switch opt {
	case CurrentMethod:
		if r == nil {
			return "", nil
		}
		return r.MethodName, nil
	case CurrentClass:
		if r == nil {
			return (*Class)(nil), nil
		}
		return r.Class, nil
	case CurrentArgs:
		if r == nil {
			return []any(nil), nil
		}
		return r.Args, nil
	case CurrentIsNextCall:
		return r != nil && r.CallType&CallIsNext != 0, nil

	case CurrentCallingObject, CurrentCallingMethod, CurrentCallingClass:
		caller, _ := rt.stack.FindLastInvocation(1)
		switch {
		case opt == CurrentCallingObject && caller != nil:
			return caller.Self, nil
		case opt == CurrentCallingObject:
			return (*Object)(nil), nil
		case opt == CurrentCallingMethod && caller != nil:
			return caller.MethodName, nil
		case opt == CurrentCallingMethod:
			return "", nil
		case caller != nil:
			return caller.Class, nil
		}
		return (*Class)(nil), nil

	case CurrentActiveMixin:
		mr, _ := rt.stack.FindActiveMixin()
		if mr == nil {
			return (*Class)(nil), nil
		}
		return mr.Class, nil

	case CurrentCalledMethod, CurrentCalledClass, CurrentFilterReg:
		return rt.currentFilterInfo(opt, r)

	case CurrentNextMethod:
		m := rt.NextMethod()
		if m == nil {
			return "", nil
		}
		return m.Handle(), nil
	}
	return nil, fmt.Errorf("%w %s", ErrBadOption, opt)
}

func (rt *Runtime) currentFilterInfo(opt CurrentOption, top *Record) (any, error) {
	// Inside a guard the called method is the one being dispatched.
	if top != nil && top.CallType&CallIsGuard != 0 && opt != CurrentFilterReg {
		if opt == CurrentCalledMethod {
			return top.MethodName, nil
		}
		_, m, s := rt.resolveUnguarded(top.Self, top.MethodName, rt.computeOrder(top.Self))
		if m == nil {
			return (*Class)(nil), nil
		}
		return s.class, nil
	}

	fr, _ := rt.stack.FindActiveFilter()
	if fr == nil {
		return nil, fmt.Errorf("current %s: %w", opt, ErrNotInFilter)
	}
	switch opt {
	case CurrentCalledMethod:
		return fr.chain.name, nil
	case CurrentCalledClass:
		_, m, s := rt.resolveUnguarded(fr.Self, fr.chain.name, rt.computeOrder(fr.Self))
		if m == nil {
			return (*Class)(nil), nil
		}
		return s.class, nil
	}
	return fr.chain.entries[fr.filterPos].reg, nil
}

func levelString(f *host.Frame) string {
	if f == nil {
		return "1"
	}
	return fmt.Sprintf("#%d", f.Level())
}
