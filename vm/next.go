package vm

import "fmt"

// ---------------------------------------------------------------------------
// next
// ---------------------------------------------------------------------------

// Next invokes the next method for the current call with args: the next
// applicable filter, the intercepted method at the end of a filter chain,
// or the next method in the resolution order. When nothing is left it
// returns nil without an error.
func (rt *Runtime) Next(args ...any) (any, error) {
	return rt.next(args, true)
}

// NextSame is Next with the arguments of the current call.
func (rt *Runtime) NextSame() (any, error) {
	return rt.next(nil, false)
}

func (rt *Runtime) next(args []any, explicit bool) (any, error) {
	h, _, ok := rt.stack.TopRecord()
	if !ok {
		return nil, fmt.Errorf("next: %w", ErrNoCurrentObject)
	}
	r := rt.stack.Record(h)
	if r.CallType&CallIsGuard != 0 {
		return nil, nil
	}
	if !explicit {
		args = r.Args
	}
	self := r.Self
	if self.state == stateDestroyed {
		return nil, fmt.Errorf("%s next: %w", self.name, ErrObjectDestroyed)
	}

	if r.chain != nil && r.FrameType == FrameActiveFilter {
		chain, pos := r.chain, r.filterPos
		if npos, fe := rt.nextFilter(self, chain, pos+1); fe != nil {
			return rt.invoke(invocation{
				self:      self,
				method:    fe.method,
				class:     fe.class,
				frameType: FrameActiveFilter,
				callType:  CallIsNext,
				args:      args,
				chain:     chain,
				filterPos: npos,
			})
		}
		// End of the chain: the intercepted method is the real invocation.
		var result any
		var err error
		rt.withFrameType(h, FrameInactiveFilter, func() {
			result, err = rt.dispatchResolved(self, chain.name, args, chain.ct, nil)
		})
		return result, err
	}

	name := r.MethodName
	class := r.Class
	wasMixin := r.FrameType == FrameActiveMixin

	order := rt.computeOrder(self)
	pos := slotIndex(order, class)
	if pos < 0 {
		return nil, nil
	}
	_, m, s := rt.resolve(self, name, order, pos+1)
	if m == nil {
		return nil, nil
	}
	inv := invocation{
		self:      self,
		method:    m,
		class:     s.class,
		frameType: mixinFrameType(s),
		callType:  CallIsNext,
		args:      args,
	}
	if wasMixin && !s.mixin {
		var result any
		var err error
		rt.withFrameType(h, FrameInactiveMixin, func() {
			result, err = rt.invoke(inv)
		})
		return result, err
	}
	return rt.invoke(inv)
}

// withFrameType runs fn with the record's frame type temporarily replaced.
func (rt *Runtime) withFrameType(h Handle, t FrameType, fn func()) {
	r := rt.stack.Record(h)
	if r == nil {
		fn()
		return
	}
	saved := r.FrameType
	r.FrameType = t
	defer func() {
		if r := rt.stack.Record(h); r != nil {
			r.FrameType = saved
		}
	}()
	fn()
}

// NextMethod returns the method Next would invoke, or nil.
func (rt *Runtime) NextMethod() *Method {
	h, _, ok := rt.stack.TopRecord()
	if !ok {
		return nil
	}
	r := rt.stack.Record(h)
	if r.CallType&CallIsGuard != 0 {
		return nil
	}
	if r.chain != nil && r.FrameType == FrameActiveFilter {
		for i := r.filterPos + 1; i < len(r.chain.entries); i++ {
			if fe := r.chain.entries[i]; !rt.stack.filterActiveOnObj(r.Self, fe.method.cmd) {
				return fe.method
			}
		}
		_, m, _ := rt.resolveUnguarded(r.Self, r.chain.name, rt.computeOrder(r.Self))
		return m
	}
	order := rt.computeOrder(r.Self)
	pos := slotIndex(order, r.Class)
	if pos < 0 {
		return nil
	}
	for i := pos + 1; i < len(order); i++ {
		if m := order[i].lookup(r.Self, r.MethodName); m != nil {
			return m
		}
	}
	return nil
}
