package vm

import "github.com/chazu/nxrt/host"

// ---------------------------------------------------------------------------
// Frame locator / self resolver
// ---------------------------------------------------------------------------

// recordOf maps a host frame to its activation record. Frames that are not
// runtime method frames yield nil. A method frame whose payload no longer
// names a live record bound to that frame breaks the cross-link and is
// reported as a contract violation.
func (s *CallStack) recordOf(f *host.Frame) (Handle, *Record) {
	if f == nil || !f.Is(host.FrameMethod|host.FrameCMethod) {
		return Handle{}, nil
	}
	h, ok := f.ClientData().(Handle)
	if !ok {
		return Handle{}, nil
	}
	r := s.lookup(h)
	if r == nil || r.Frame != f {
		s.violation("locate", "frame %s refers to stale %s", f, h)
		return Handle{}, nil
	}
	return h, r
}

// ResolveSelf returns the object of the nearest enclosing method or object
// frame, walking outward from the active variable scope. It reports false
// when execution is not inside any object.
func (s *CallStack) ResolveSelf() (*Object, bool) {
	for f := s.interp.VarFrame(); f != nil; f = f.CallerVar() {
		if f.Is(host.FrameObject) {
			if obj, ok := f.ClientData().(*Object); ok {
				return obj, true
			}
			continue
		}
		if _, r := s.recordOf(f); r != nil {
			return r.Self, true
		}
	}
	return nil, false
}

// TopRecord returns the nearest enclosing method record and its frame.
// Object frames are skipped: they have a self but no method.
func (s *CallStack) TopRecord() (Handle, *host.Frame, bool) {
	for f := s.interp.VarFrame(); f != nil; f = f.CallerVar() {
		if h, r := s.recordOf(f); r != nil {
			return h, f, true
		}
	}
	return Handle{}, nil, false
}
