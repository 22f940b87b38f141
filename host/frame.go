package host

import "fmt"

// ---------------------------------------------------------------------------
// Frame: native call frame of the host interpreter
// ---------------------------------------------------------------------------

// FrameFlags classify a native frame. The object runtime tags the frames it
// pushes so that walks over the frame chain can tell its frames apart from
// ordinary procedure frames.
type FrameFlags uint8

const (
	// FrameProc marks an ordinary procedure frame.
	FrameProc FrameFlags = 1 << iota
	// FrameMethod marks a frame running a scripted method.
	FrameMethod
	// FrameCMethod marks a frame pushed for a native (Go) method.
	FrameCMethod
	// FrameObject marks an object scope that runs no method.
	FrameObject
)

// FrameRuntime is the set of flags owned by the object runtime.
const FrameRuntime = FrameMethod | FrameCMethod | FrameObject

// String returns a short name for the flag set, used in diagnostics.
func (f FrameFlags) String() string {
	switch {
	case f == 0:
		return "global"
	case f&FrameMethod != 0:
		return "method"
	case f&FrameCMethod != 0:
		return "cmethod"
	case f&FrameObject != 0:
		return "object"
	case f&FrameProc != 0:
		return "proc"
	}
	return fmt.Sprintf("flags(%d)", uint8(f))
}

// Frame is one entry of the host's native frame chain.
//
// Two parent links are kept. Caller is the frame that was executing when
// this one was pushed; CallerVar is the variable scope that was active at
// that moment. They differ while an uplevel is in progress.
type Frame struct {
	id         uint64
	name       string
	flags      FrameFlags
	level      int
	caller     *Frame
	callerVar  *Frame
	clientData any
	vars       map[string]*Var
	tail       func() (any, error)
	popped     bool
}

// ID returns the interpreter-unique frame id.
func (f *Frame) ID() uint64 { return f.id }

// Name returns the name the frame was pushed under.
func (f *Frame) Name() string { return f.name }

// Flags returns the frame classification.
func (f *Frame) Flags() FrameFlags { return f.flags }

// Is reports whether any of the given flags are set on the frame.
func (f *Frame) Is(mask FrameFlags) bool { return f.flags&mask != 0 }

// Level returns the nesting depth of the frame's variable scope.
// The global frame is level 0.
func (f *Frame) Level() int { return f.level }

// Caller returns the native caller, nil for the global frame.
func (f *Frame) Caller() *Frame { return f.caller }

// CallerVar returns the variable scope active when the frame was pushed.
func (f *Frame) CallerVar() *Frame { return f.callerVar }

// ClientData returns the opaque payload attached to the frame.
func (f *Frame) ClientData() any { return f.clientData }

// SetClientData replaces the opaque payload.
func (f *Frame) SetClientData(v any) { f.clientData = v }

// Popped reports whether the frame has been removed from the chain.
func (f *Frame) Popped() bool { return f.popped }

func (f *Frame) String() string {
	if f == nil {
		return "<nil frame>"
	}
	return fmt.Sprintf("#%d %s (%s)", f.level, f.name, f.flags)
}

// ---------------------------------------------------------------------------
// Variables
// ---------------------------------------------------------------------------

// Var is a variable slot. Upvar links make several frames share one slot.
type Var struct {
	value any
	set   bool
}

// Value returns the stored value and whether the variable is set.
func (v *Var) Value() (any, bool) { return v.value, v.set }

func (f *Frame) lookupVar(name string, create bool) *Var {
	if v, ok := f.vars[name]; ok {
		return v
	}
	if !create {
		return nil
	}
	if f.vars == nil {
		f.vars = make(map[string]*Var)
	}
	v := &Var{}
	f.vars[name] = v
	return v
}

// Var returns the value of a variable local to this frame.
func (f *Frame) Var(name string) (any, bool) {
	v := f.lookupVar(name, false)
	if v == nil {
		return nil, false
	}
	return v.Value()
}

// VarNames returns the names of the variables defined in this frame.
func (f *Frame) VarNames() []string {
	names := make([]string, 0, len(f.vars))
	for name, v := range f.vars {
		if v.set {
			names = append(names, name)
		}
	}
	return names
}
