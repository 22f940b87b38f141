package vm

import (
	"fmt"
	"testing"

	"github.com/chazu/nxrt/host"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

func newTestRuntime(t *testing.T, opts ...Option) *Runtime {
	t.Helper()
	rt := New(host.New(), append([]Option{WithAssertions(true)}, opts...)...)
	t.Cleanup(func() { rt.Close() })
	return rt
}

func newTestStack(opts ...StackOption) *CallStack {
	return NewCallStack(host.New(), append([]StackOption{WithStackAssertions(true)}, opts...)...)
}

func testObject(name string) *Object {
	return newObject(nil, name, nil)
}

func mustClass(t *testing.T, rt *Runtime, name string, supers ...*Class) *Class {
	t.Helper()
	c, err := rt.NewClass(name, supers...)
	if err != nil {
		t.Fatalf("NewClass(%s): %v", name, err)
	}
	return c
}

func mustObject(t *testing.T, rt *Runtime, name string, class *Class) *Object {
	t.Helper()
	o, err := rt.NewObject(name, class)
	if err != nil {
		t.Fatalf("NewObject(%s): %v", name, err)
	}
	return o
}

// pushMethod enters a method the way dispatch does: a host frame with
// the record handle as payload.
func pushMethod(t *testing.T, s *CallStack, self *Object, method string, flags host.FrameFlags, ft FrameType, ct CallType) (Handle, *host.Frame) {
	t.Helper()
	f, err := s.interp.PushFrame(method, flags, nil)
	if err != nil {
		t.Fatal(err)
	}
	h := s.Push(Entry{Self: self, MethodName: method, FrameType: ft, CallType: ct, Frame: f})
	f.SetClientData(h)
	return h, f
}

func popMethod(s *CallStack, h Handle, f *host.Frame) {
	s.Finish(h, nil)
	s.interp.PopFrame(f)
}

func expectViolation(t *testing.T, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		if _, ok := r.(*ContractViolation); !ok {
			t.Errorf("panic = %v, want *ContractViolation", r)
		}
	}()
	fn()
}

// recordingObserver collects observer callbacks as strings.
type recordingObserver struct {
	events    []string
	snapshots []*Snapshot
}

func (o *recordingObserver) Pushed(r *Record) {
	o.events = append(o.events, "push "+r.MethodName)
}

func (o *recordingObserver) Finished(r *Record, err error) {
	o.events = append(o.events, "finish "+r.MethodName)
}

func (o *recordingObserver) Destroyed(obj *Object, marked int) {
	o.events = append(o.events, fmt.Sprintf("destroy %s %d", obj.Name(), marked))
}

func (o *recordingObserver) Snapshot(s *Snapshot) {
	o.snapshots = append(o.snapshots, s)
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
