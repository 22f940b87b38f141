package vm

import "github.com/chazu/nxrt/host"

// ---------------------------------------------------------------------------
// Invocation search
// ---------------------------------------------------------------------------

// FindLastInvocation returns the record that invoked the current method,
// skipping next-calls and inactive filters and mixins. offset skips that
// many further candidates. A candidate qualifies only when its level is
// below the level the search started from, unless the nearest record is a
// guard call, in which case the level test is waived.
//
// A nil result means the caller is the top-level script; that is not an
// error.
func (s *CallStack) FindLastInvocation(offset int) (*Record, *host.Frame) {
	start := s.interp.VarFrame()
	lvl := start.Level()
	guard := false
	first := true

	for f := start; f != nil; f = f.CallerVar() {
		_, r := s.recordOf(f)
		if r == nil {
			continue
		}
		if first {
			guard = r.CallType&CallIsGuard != 0
			first = false
		}
		if r.CallType&CallIsNext != 0 || r.FrameType.Inactive() {
			continue
		}
		if offset > 0 {
			offset--
			continue
		}
		if guard || f.Level() < lvl {
			return r, f
		}
	}
	return nil, nil
}

// FindActiveFrame skips offset frames unconditionally and then returns the
// first record whose frame type is not inactive. Next-calls count as
// active.
func (s *CallStack) FindActiveFrame(offset int) (*Record, *host.Frame) {
	f := s.interp.VarFrame()
	for ; offset > 0 && f != nil; offset-- {
		f = f.CallerVar()
	}
	for ; f != nil; f = f.CallerVar() {
		if _, r := s.recordOf(f); r != nil && !r.FrameType.Inactive() {
			return r, f
		}
	}
	return nil, nil
}

// FindActiveMixin returns the nearest record running an active mixin method.
func (s *CallStack) FindActiveMixin() (*Record, *host.Frame) {
	return s.findFrameType(FrameActiveMixin)
}

// FindActiveFilter returns the nearest record running a filter, active or
// suspended while the intercepted method runs.
func (s *CallStack) FindActiveFilter() (*Record, *host.Frame) {
	for f := s.interp.VarFrame(); f != nil; f = f.CallerVar() {
		if _, r := s.recordOf(f); r != nil && r.chain != nil {
			return r, f
		}
	}
	return nil, nil
}

func (s *CallStack) findFrameType(t FrameType) (*Record, *host.Frame) {
	for f := s.interp.VarFrame(); f != nil; f = f.CallerVar() {
		if _, r := s.recordOf(f); r != nil && r.FrameType == t {
			return r, f
		}
	}
	return nil, nil
}

// filterActiveOnObj reports whether cmd is already running as an active
// filter for obj.
func (s *CallStack) filterActiveOnObj(obj *Object, cmd *Command) bool {
	active := false
	s.EachFromTop(func(_ Handle, r *Record) bool {
		if r.Self == obj && r.preserved == cmd && r.FrameType == FrameActiveFilter {
			active = true
			return false
		}
		return true
	})
	return active
}
