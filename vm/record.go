package vm

import (
	"fmt"
	"strings"

	"github.com/chazu/nxrt/host"
)

// ---------------------------------------------------------------------------
// Frame and call types
// ---------------------------------------------------------------------------

// FrameType tags the role an activation plays in dispatch.
type FrameType uint8

const (
	FramePlain          FrameType = 0
	FrameActiveMixin    FrameType = 1
	FrameActiveFilter   FrameType = 2
	FrameInactive       FrameType = 4
	FrameInactiveMixin  FrameType = FrameInactive | FrameActiveMixin
	FrameInactiveFilter FrameType = FrameInactive | FrameActiveFilter
	FrameGuard          FrameType = 0x10
)

// Inactive reports whether the frame is a suspended filter or mixin.
func (t FrameType) Inactive() bool { return t&FrameInactive != 0 }

func (t FrameType) String() string {
	switch t {
	case FramePlain:
		return "plain"
	case FrameActiveMixin:
		return "mixin"
	case FrameActiveFilter:
		return "filter"
	case FrameInactiveMixin:
		return "inactive-mixin"
	case FrameInactiveFilter:
		return "inactive-filter"
	case FrameGuard:
		return "guard"
	}
	return fmt.Sprintf("frametype(%d)", uint8(t))
}

// CallType is the bit set describing how an activation was reached.
type CallType uint8

const (
	CallIsNext CallType = 1 << iota
	CallIsGuard
	CallIsDestroy
	// CallNoFilter bypasses filter interception for one dispatch.
	CallNoFilter
)

func (c CallType) String() string {
	if c == 0 {
		return "-"
	}
	var parts []string
	if c&CallIsNext != 0 {
		parts = append(parts, "next")
	}
	if c&CallIsGuard != 0 {
		parts = append(parts, "guard")
	}
	if c&CallIsDestroy != 0 {
		parts = append(parts, "destroy")
	}
	if c&CallNoFilter != 0 {
		parts = append(parts, "nofilter")
	}
	return strings.Join(parts, "|")
}

// ---------------------------------------------------------------------------
// Handle and Record
// ---------------------------------------------------------------------------

// Handle identifies a record on the call stack. It stays valid while the
// store grows and becomes stale once the record is finished. The zero
// Handle is never valid.
type Handle struct {
	index int
	gen   uint64
}

// Valid reports whether h was ever issued by a store.
func (h Handle) Valid() bool { return h.gen != 0 }

func (h Handle) String() string {
	return fmt.Sprintf("handle(%d/%d)", h.index, h.gen)
}

// Entry holds the values a new activation record is pushed with.
type Entry struct {
	Self       *Object
	Class      *Class
	Cmd        *Command
	MethodName string
	FrameType  FrameType
	CallType   CallType
	Frame      *host.Frame
	Args       []any

	chain     *filterChain
	filterPos int
}

// Record is the activation record of one running method.
//
// Self, Class and Cmd are non-owning. Cmd is cleared when the method is
// deleted while still running; the reference taken when the record was
// pushed is tracked separately and released by Finish.
type Record struct {
	Self         *Object
	Class        *Class
	Cmd          *Command
	MethodName   string
	FrameType    FrameType
	CallType     CallType
	DestroyedCmd *Command
	Frame        *host.Frame
	Args         []any

	preserved *Command
	chain     *filterChain
	filterPos int
	gen       uint64
}

// Level returns the host level of the record's native frame.
func (r *Record) Level() int {
	if r.Frame == nil {
		return 0
	}
	return r.Frame.Level()
}

// IsObjectMethod reports whether the record runs a per-object method.
func (r *Record) IsObjectMethod() bool { return r.Class == nil }

// IsNative reports whether the method is implemented in Go rather than as
// a scripted body with its own variable scope.
func (r *Record) IsNative() bool {
	return r.Frame != nil && r.Frame.Is(host.FrameCMethod)
}

// CalledMethod returns the method a filter intercepted, or the record's
// own method name outside of filters.
func (r *Record) CalledMethod() string {
	if r.chain != nil {
		return r.chain.name
	}
	return r.MethodName
}

func (r *Record) String() string {
	self := "<none>"
	if r.Self != nil {
		self = r.Self.Name()
	}
	owner := ""
	if r.Class != nil {
		owner = r.Class.Name() + " "
	}
	return fmt.Sprintf("#%d %s %s%s [%s %s]", r.Level(), self, owner, r.MethodName, r.FrameType, r.CallType)
}
