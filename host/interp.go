// Package host models the native call-frame machinery of the scripting
// interpreter that the object runtime is embedded in.
//
// The model follows a Tcl-style interpreter: every procedure call pushes a
// Frame, the interpreter tracks both the executing frame and the active
// variable scope, and uplevel/upvar/tailcall manipulate those pointers
// without going through the object runtime.
package host

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("nxrt.host")

// DefaultMaxDepth is the recursion limit used when none is configured.
const DefaultMaxDepth = 1000

var (
	// ErrRecursionLimit is returned when a push would exceed the depth limit.
	ErrRecursionLimit = errors.New("too many nested evaluations (infinite loop?)")
	// ErrBadLevel is returned for level specifiers that name no frame.
	ErrBadLevel = errors.New("bad level")
	// ErrNoSuchVariable is returned when reading an unset variable.
	ErrNoSuchVariable = errors.New("no such variable")
	// ErrTailCallAtTop is returned when tailcall is used outside a procedure.
	ErrTailCallAtTop = errors.New("tailcall can only be called from a proc or lambda")
)

// Interp holds the native frame chain of one interpreter instance.
// It is not safe for concurrent use; each goroutine runs its own Interp.
type Interp struct {
	global   *Frame
	frame    *Frame // executing frame
	varFrame *Frame // active variable scope
	depth    int
	maxDepth int
	nextID   uint64
}

// Option configures an Interp.
type Option func(*Interp)

// WithMaxDepth sets the recursion limit.
func WithMaxDepth(n int) Option {
	return func(i *Interp) { i.SetMaxDepth(n) }
}

// New creates an interpreter holding only the global frame.
func New(opts ...Option) *Interp {
	i := &Interp{maxDepth: DefaultMaxDepth}
	i.global = &Frame{id: i.allocID(), name: "::"}
	i.frame = i.global
	i.varFrame = i.global
	for _, o := range opts {
		o(i)
	}
	return i
}

func (i *Interp) allocID() uint64 {
	i.nextID++
	return i.nextID
}

// SetMaxDepth changes the recursion limit. Non-positive values restore the default.
func (i *Interp) SetMaxDepth(n int) {
	if n <= 0 {
		n = DefaultMaxDepth
	}
	i.maxDepth = n
}

// MaxDepth returns the recursion limit.
func (i *Interp) MaxDepth() int { return i.maxDepth }

// Global returns the level-0 frame.
func (i *Interp) Global() *Frame { return i.global }

// Frame returns the executing frame (top of the native chain).
func (i *Interp) Frame() *Frame { return i.frame }

// VarFrame returns the active variable scope.
func (i *Interp) VarFrame() *Frame { return i.varFrame }

// SetVarFrame installs f as the active variable scope and returns the
// previous one. Callers must restore the previous frame themselves.
func (i *Interp) SetVarFrame(f *Frame) *Frame {
	prev := i.varFrame
	i.varFrame = f
	return prev
}

// Depth returns the number of frames above the global frame.
func (i *Interp) Depth() int { return i.depth }

// ---------------------------------------------------------------------------
// Frame management
// ---------------------------------------------------------------------------

// PushFrame pushes a new frame on top of the chain. The new frame's level is
// one more than the active variable scope, so frames pushed during an
// uplevel nest below the target scope.
func (i *Interp) PushFrame(name string, flags FrameFlags, clientData any) (*Frame, error) {
	if i.depth >= i.maxDepth {
		return nil, fmt.Errorf("%w: depth %d", ErrRecursionLimit, i.depth)
	}
	f := &Frame{
		id:         i.allocID(),
		name:       name,
		flags:      flags,
		level:      i.varFrame.level + 1,
		caller:     i.frame,
		callerVar:  i.varFrame,
		clientData: clientData,
	}
	i.frame = f
	i.varFrame = f
	i.depth++
	if log.AllowLevel(commonlog.Debug) {
		log.Debugf("push %s", f)
	}
	return f, nil
}

// PopFrame removes f, which must be the executing frame.
func (i *Interp) PopFrame(f *Frame) {
	if f != i.frame || f == i.global {
		panic(fmt.Sprintf("host: pop of %s but executing frame is %s", f, i.frame))
	}
	i.frame = f.caller
	i.varFrame = f.callerVar
	f.popped = true
	i.depth--
	if log.AllowLevel(commonlog.Debug) {
		log.Debugf("pop %s", f)
	}
}

// Reset pops every frame down to the global one. Used on teardown.
func (i *Interp) Reset() {
	for i.frame != i.global {
		i.PopFrame(i.frame)
	}
	i.varFrame = i.global
}

// Invocation describes a scoped frame push performed by Invoke.
type Invocation struct {
	Name       string
	Flags      FrameFlags
	ClientData any

	// Enter runs right after the frame was pushed.
	Enter func(f *Frame)
	// Leave runs before the frame is popped, on every exit path
	// including panics. err is the body's error (nil on panic).
	Leave func(f *Frame, err error)
	// Body is the work done inside the frame.
	Body func(f *Frame) (any, error)
}

// Invoke pushes a frame, runs the invocation inside it, and pops it again
// no matter how the body exits. A tail call scheduled by the body runs
// after the pop, in the caller's scope.
func (i *Interp) Invoke(inv Invocation) (any, error) {
	flags := inv.Flags
	if flags == 0 {
		flags = FrameProc
	}
	f, err := i.PushFrame(inv.Name, flags, inv.ClientData)
	if err != nil {
		return nil, err
	}
	result, err := i.run(f, inv)
	if tail := f.tail; tail != nil {
		f.tail = nil
		if err == nil {
			return tail()
		}
	}
	return result, err
}

func (i *Interp) run(f *Frame, inv Invocation) (result any, err error) {
	defer i.PopFrame(f)
	if inv.Enter != nil {
		inv.Enter(f)
	}
	if inv.Leave != nil {
		defer func() { inv.Leave(f, err) }()
	}
	if inv.Body == nil {
		return nil, nil
	}
	return inv.Body(f)
}

// Call runs body in a plain procedure frame.
func (i *Interp) Call(name string, body func(f *Frame) (any, error)) (any, error) {
	return i.Invoke(Invocation{Name: name, Flags: FrameProc, Body: body})
}

// TailCall schedules fn to run once the executing frame has been popped,
// replacing that frame's result.
func (i *Interp) TailCall(fn func() (any, error)) error {
	if i.frame == i.global || i.frame != i.varFrame {
		return ErrTailCallAtTop
	}
	i.frame.tail = fn
	return nil
}

// ---------------------------------------------------------------------------
// Levels
// ---------------------------------------------------------------------------

// FrameAt resolves a level specifier against the active variable scope.
// "#N" names absolute level N, "N" is relative to the current level and
// the empty string means "1".
func (i *Interp) FrameAt(level string) (*Frame, error) {
	target, err := i.targetLevel(level)
	if err != nil {
		return nil, err
	}
	for f := i.varFrame; f != nil; f = f.callerVar {
		if f.level == target {
			return f, nil
		}
		if f.level < target {
			break
		}
	}
	return nil, fmt.Errorf("%w %q", ErrBadLevel, level)
}

func (i *Interp) targetLevel(level string) (int, error) {
	current := i.varFrame.level
	if level == "" {
		level = "1"
	}
	if strings.HasPrefix(level, "#") {
		n, err := strconv.Atoi(level[1:])
		if err != nil || n < 0 || n > current {
			return 0, fmt.Errorf("%w %q", ErrBadLevel, level)
		}
		return n, nil
	}
	n, err := strconv.Atoi(level)
	if err != nil || n < 0 || n > current {
		return 0, fmt.Errorf("%w %q", ErrBadLevel, level)
	}
	return current - n, nil
}

// Uplevel runs fn with the variable scope switched to the frame named by
// level. The previous scope is restored on every exit path.
func (i *Interp) Uplevel(level string, fn func() (any, error)) (any, error) {
	target, err := i.FrameAt(level)
	if err != nil {
		return nil, err
	}
	saved := i.SetVarFrame(target)
	defer i.SetVarFrame(saved)
	return fn()
}

// ---------------------------------------------------------------------------
// Variables
// ---------------------------------------------------------------------------

// SetVar sets a variable in the active scope.
func (i *Interp) SetVar(name string, value any) {
	v := i.varFrame.lookupVar(name, true)
	v.value = value
	v.set = true
}

// GetVar reads a variable from the active scope.
func (i *Interp) GetVar(name string) (any, error) {
	v := i.varFrame.lookupVar(name, false)
	if v == nil || !v.set {
		return nil, fmt.Errorf("can't read %q: %w", name, ErrNoSuchVariable)
	}
	return v.value, nil
}

// UnsetVar removes a variable from the active scope.
func (i *Interp) UnsetVar(name string) error {
	v := i.varFrame.lookupVar(name, false)
	if v == nil || !v.set {
		return fmt.Errorf("can't unset %q: %w", name, ErrNoSuchVariable)
	}
	v.value = nil
	v.set = false
	return nil
}

// Upvar links local in the active scope to other in the frame named by level.
func (i *Interp) Upvar(level, other, local string) error {
	target, err := i.FrameAt(level)
	if err != nil {
		return err
	}
	if target == i.varFrame && other == local {
		return fmt.Errorf("can't upvar from variable to itself")
	}
	v := target.lookupVar(other, true)
	if i.varFrame.vars == nil {
		i.varFrame.vars = make(map[string]*Var)
	}
	i.varFrame.vars[local] = v
	return nil
}
