package vm

import (
	"errors"
	"fmt"

	"github.com/chazu/nxrt/host"
	"github.com/chazu/nxrt/params"
)

// ---------------------------------------------------------------------------
// Resolution order
// ---------------------------------------------------------------------------

// slot is one place a method can be found in an object's resolution order:
// a mixin class, the object itself, or a class of its precedence.
type slot struct {
	class *Class // nil for the object's own methods
	mixin bool
	reg   *Registration
}

func (s slot) lookup(obj *Object, name string) *Method {
	if s.class == nil {
		return obj.methods[name]
	}
	return s.class.instMethods[name]
}

// computeOrder returns obj's resolution order: per-object mixins, class
// mixins along the precedence, the object itself, then the precedence.
// Mixin classes are expanded to their own precedence; classes already in
// the intrinsic precedence and repeats are dropped.
func (rt *Runtime) computeOrder(obj *Object) []slot {
	prec := obj.class.Precedence()
	intrinsic := make(map[*Class]bool, len(prec))
	for _, c := range prec {
		intrinsic[c] = true
	}

	var order []slot
	if rt.mixins {
		seen := make(map[*Class]bool)
		add := func(reg *Registration) {
			if reg.Class.Destroyed() {
				return
			}
			for _, c := range reg.Class.Precedence() {
				if intrinsic[c] || seen[c] {
					continue
				}
				seen[c] = true
				order = append(order, slot{class: c, mixin: true, reg: reg})
			}
		}
		for _, reg := range obj.mixins {
			add(reg)
		}
		for _, c := range prec {
			for _, reg := range c.instMixins {
				add(reg)
			}
		}
	}

	order = append(order, slot{})
	for _, c := range prec {
		order = append(order, slot{class: c})
	}
	return order
}

// resolve finds name in order starting at index from. Guarded mixin slots
// whose guard fails are skipped. It returns the slot index and method, or
// -1 and nil.
func (rt *Runtime) resolve(obj *Object, name string, order []slot, from int) (int, *Method, slot) {
	for i := from; i < len(order); i++ {
		s := order[i]
		m := s.lookup(obj, name)
		if m == nil {
			continue
		}
		if s.mixin && s.reg.Guard != nil {
			ok, err := rt.evalGuard(obj, s.reg, name, s.class)
			if err != nil {
				log.Warningf("mixin guard %s: %s", s.reg, err)
				continue
			}
			if !ok {
				continue
			}
		}
		return i, m, s
	}
	return -1, nil, slot{}
}

// slotIndex locates the slot a record's method was found in.
func slotIndex(order []slot, class *Class) int {
	for i, s := range order {
		if s.class == class {
			return i
		}
	}
	return -1
}

// ---------------------------------------------------------------------------
// Filters
// ---------------------------------------------------------------------------

// filterChain is the list of filters intercepting one call.
type filterChain struct {
	name    string // intercepted method
	args    []any
	ct      CallType
	entries []filterEntry
}

type filterEntry struct {
	method *Method
	class  *Class
	reg    *Registration
}

// computeFilters collects the filters registered on obj and on the
// classes of its precedence, resolved to methods. A filter method
// registered twice runs once.
func (rt *Runtime) computeFilters(obj *Object, order []slot) []filterEntry {
	regs := append([]*Registration(nil), obj.filters...)
	for _, c := range obj.class.Precedence() {
		regs = append(regs, c.instFilters...)
	}
	if len(regs) == 0 {
		return nil
	}

	var entries []filterEntry
	seen := make(map[*Command]bool)
	for _, reg := range regs {
		_, m, s := rt.resolveUnguarded(obj, reg.Name, order)
		if m == nil {
			log.Warningf("filter %s does not resolve to a method", reg)
			continue
		}
		if seen[m.cmd] {
			continue
		}
		seen[m.cmd] = true
		entries = append(entries, filterEntry{method: m, class: s.class, reg: reg})
	}
	return entries
}

func (rt *Runtime) resolveUnguarded(obj *Object, name string, order []slot) (int, *Method, slot) {
	for i, s := range order {
		if m := s.lookup(obj, name); m != nil {
			return i, m, s
		}
	}
	return -1, nil, slot{}
}

// nextFilter returns the first applicable filter at or after position from.
// Filters already running for obj and filters whose guard fails are skipped.
func (rt *Runtime) nextFilter(obj *Object, chain *filterChain, from int) (int, *filterEntry) {
	for i := from; i < len(chain.entries); i++ {
		fe := &chain.entries[i]
		if rt.stack.filterActiveOnObj(obj, fe.method.cmd) {
			continue
		}
		if fe.reg.Guard != nil {
			ok, err := rt.evalGuard(obj, fe.reg, chain.name, fe.class)
			if err != nil {
				log.Warningf("filter guard %s: %s", fe.reg, err)
				continue
			}
			if !ok {
				continue
			}
		}
		return i, fe
	}
	return -1, nil
}

// ---------------------------------------------------------------------------
// Guards
// ---------------------------------------------------------------------------

// evalGuard runs a registration guard inside a guard-call record so that
// self and the called method resolve inside the guard. No filters apply
// while a guard runs.
func (rt *Runtime) evalGuard(obj *Object, reg *Registration, called string, class *Class) (bool, error) {
	rt.guardDepth++
	defer func() { rt.guardDepth-- }()

	var h Handle
	var ok bool
	_, err := rt.interp.Invoke(host.Invocation{
		Name:  "guard " + reg.String(),
		Flags: host.FrameCMethod,
		Enter: func(f *host.Frame) {
			h = rt.stack.Push(Entry{
				Self:       obj,
				Class:      class,
				MethodName: called,
				FrameType:  FrameGuard,
				CallType:   CallIsGuard,
				Frame:      f,
			})
			f.SetClientData(h)
		},
		Leave: func(_ *host.Frame, err error) { rt.stack.Finish(h, err) },
		Body: func(f *host.Frame) (any, error) {
			var err error
			ok, err = reg.Guard(&Call{Runtime: rt, Self: obj, Method: called, Class: class, Frame: f})
			return nil, err
		},
	})
	return ok, err
}

// ---------------------------------------------------------------------------
// Dispatch
// ---------------------------------------------------------------------------

// Dispatch sends method to obj with args.
func (rt *Runtime) Dispatch(obj *Object, method string, args ...any) (any, error) {
	return rt.dispatch(obj, method, args, 0)
}

// DispatchNoFilter sends method to obj bypassing filters.
func (rt *Runtime) DispatchNoFilter(obj *Object, method string, args ...any) (any, error) {
	return rt.dispatch(obj, method, args, CallNoFilter)
}

func (rt *Runtime) dispatch(obj *Object, name string, args []any, ct CallType) (any, error) {
	if obj == nil {
		return nil, fmt.Errorf("%s: %w", name, ErrNoSuchObject)
	}
	if obj.state == stateDestroyed {
		return nil, fmt.Errorf("%s %s: %w", obj.name, name, ErrObjectDestroyed)
	}
	order := rt.computeOrder(obj)

	if rt.filters && rt.guardDepth == 0 && ct&CallNoFilter == 0 {
		if entries := rt.computeFilters(obj, order); len(entries) > 0 {
			chain := &filterChain{name: name, args: args, ct: ct, entries: entries}
			if pos, fe := rt.nextFilter(obj, chain, 0); fe != nil {
				return rt.invoke(invocation{
					self:      obj,
					method:    fe.method,
					class:     fe.class,
					frameType: FrameActiveFilter,
					callType:  ct,
					args:      args,
					chain:     chain,
					filterPos: pos,
				})
			}
		}
	}
	return rt.dispatchResolved(obj, name, args, ct, order)
}

// dispatchResolved runs the first method in the resolution order, falling
// back to unknown.
func (rt *Runtime) dispatchResolved(obj *Object, name string, args []any, ct CallType, order []slot) (any, error) {
	if order == nil {
		order = rt.computeOrder(obj)
	}
	_, m, s := rt.resolve(obj, name, order, 0)
	if m == nil {
		if _, unknown, us := rt.resolve(obj, "unknown", order, 0); unknown != nil && name != "unknown" {
			return rt.invoke(invocation{
				self:      obj,
				method:    unknown,
				class:     us.class,
				frameType: mixinFrameType(us),
				callType:  ct &^ CallNoFilter,
				args:      append([]any{name}, args...),
			})
		}
		return nil, fmt.Errorf("%s: %w %q", obj.name, ErrUnknownMethod, name)
	}
	return rt.invoke(invocation{
		self:      obj,
		method:    m,
		class:     s.class,
		frameType: mixinFrameType(s),
		callType:  ct &^ CallNoFilter,
		args:      args,
	})
}

func mixinFrameType(s slot) FrameType {
	if s.mixin {
		return FrameActiveMixin
	}
	return FramePlain
}

// ---------------------------------------------------------------------------
// Invocation
// ---------------------------------------------------------------------------

type invocation struct {
	self      *Object
	method    *Method
	class     *Class
	frameType FrameType
	callType  CallType
	args      []any
	chain     *filterChain
	filterPos int
}

// invoke runs a resolved method in a new host frame with its activation
// record. The record is finished on every exit path, panics included.
func (rt *Runtime) invoke(inv invocation) (any, error) {
	m := inv.method
	callArgs := inv.args
	if len(m.Params) > 0 {
		parsed, err := params.Parse(inv.args, m.Params)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", inv.self.name, m.Name, err)
		}
		callArgs = parsed
	}

	flags := host.FrameMethod
	if m.Native {
		flags = host.FrameCMethod
	}

	var h Handle
	return rt.interp.Invoke(host.Invocation{
		Name:  inv.self.name + " " + m.Name,
		Flags: flags,
		Enter: func(f *host.Frame) {
			h = rt.stack.Push(Entry{
				Self:       inv.self,
				Class:      inv.class,
				Cmd:        m.cmd,
				MethodName: m.Name,
				FrameType:  inv.frameType,
				CallType:   inv.callType,
				Frame:      f,
				Args:       inv.args,
				chain:      inv.chain,
				filterPos:  inv.filterPos,
			})
			f.SetClientData(h)
		},
		Leave: func(_ *host.Frame, err error) {
			if err != nil {
				rt.snapshotError(err)
			}
			rt.stack.Finish(h, err)
			if rt.stack.Depth() == 0 {
				rt.lastSnapErr = nil
			}
		},
		Body: func(f *host.Frame) (any, error) {
			return m.Fn(&Call{
				Runtime: rt,
				Self:    inv.self,
				Method:  m.Name,
				Class:   inv.class,
				Args:    callArgs,
				Frame:   f,
			})
		},
	})
}

// snapshotError reports a stack snapshot for the innermost frame an error
// passes through. Outer frames returning the same (or a wrapping) error
// are not reported again until the stack has fully unwound.
func (rt *Runtime) snapshotError(err error) {
	if !rt.snapshotOnError || rt.observer == nil {
		return
	}
	if rt.lastSnapErr != nil && errors.Is(err, rt.lastSnapErr) {
		return
	}
	rt.lastSnapErr = err
	snap := rt.stack.Snapshot()
	snap.Error = err.Error()
	rt.observer.Snapshot(snap)
}
