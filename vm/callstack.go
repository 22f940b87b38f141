package vm

import (
	"fmt"

	"github.com/chazu/nxrt/host"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("nxrt.vm")

// Default store sizing.
const (
	DefaultStackCapacity = 64
	DefaultMaxRecords    = 1 << 16
)

// ---------------------------------------------------------------------------
// CallStack: array-backed activation record store
// ---------------------------------------------------------------------------

// CallStack holds the activation records of one interpreter, oldest first.
//
// Records live in a growable slice with an explicit top. Every record is
// cross-linked with the host frame it runs in, and that frame carries the
// record's Handle as its payload, so searches can walk the host frame
// chain (honouring uplevel) and map each frame back to its record.
type CallStack struct {
	interp     *host.Interp
	records    []Record
	top        int
	gen        uint64
	maxRecords int
	assertions bool

	observer Observer
	// lastRelease runs when a destroyed object's last record finishes.
	lastRelease func(*Object)
}

// StackOption configures a CallStack.
type StackOption func(*CallStack)

// WithCapacity sets the initial record capacity.
func WithCapacity(n int) StackOption {
	return func(s *CallStack) {
		if n > 0 {
			s.records = make([]Record, n)
		}
	}
}

// WithMaxRecords sets the hard record limit.
func WithMaxRecords(n int) StackOption {
	return func(s *CallStack) {
		if n > 0 {
			s.maxRecords = n
		}
	}
}

// WithStackAssertions makes contract violations panic instead of being logged.
func WithStackAssertions(on bool) StackOption {
	return func(s *CallStack) { s.assertions = on }
}

// NewCallStack creates an empty store bound to interp.
func NewCallStack(interp *host.Interp, opts ...StackOption) *CallStack {
	s := &CallStack{
		interp:     interp,
		records:    make([]Record, DefaultStackCapacity),
		maxRecords: DefaultMaxRecords,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Interp returns the host interpreter the store is bound to.
func (s *CallStack) Interp() *host.Interp { return s.interp }

// SetObserver installs an observer notified of pushes and finishes.
func (s *CallStack) SetObserver(o Observer) { s.observer = o }

// Depth returns the number of live records.
func (s *CallStack) Depth() int { return s.top }

// Capacity returns the number of allocated record slots.
func (s *CallStack) Capacity() int { return len(s.records) }

// Push adds a record on top of the stack and returns its handle. The
// method command is preserved until the record is finished.
func (s *CallStack) Push(e Entry) Handle {
	if s.top >= len(s.records) {
		s.grow()
	}
	s.gen++
	idx := s.top
	s.records[idx] = Record{
		Self:       e.Self,
		Class:      e.Class,
		Cmd:        e.Cmd,
		MethodName: e.MethodName,
		FrameType:  e.FrameType,
		CallType:   e.CallType,
		Frame:      e.Frame,
		Args:       e.Args,
		chain:      e.chain,
		filterPos:  e.filterPos,
		gen:        s.gen,
	}
	if e.Cmd != nil {
		e.Cmd.Preserve()
		s.records[idx].preserved = e.Cmd
	}
	s.top++

	r := &s.records[idx]
	if log.AllowLevel(commonlog.Debug) {
		log.Debugf("push record %s", r)
	}
	if s.observer != nil {
		s.observer.Pushed(r)
	}
	return Handle{index: idx, gen: s.gen}
}

func (s *CallStack) grow() {
	if len(s.records) >= s.maxRecords {
		panic(fmt.Errorf("%w: %d records", ErrStackExhausted, len(s.records)))
	}
	n := len(s.records) * 2
	if n == 0 {
		n = DefaultStackCapacity
	}
	if n > s.maxRecords {
		n = s.maxRecords
	}
	grown := make([]Record, n)
	copy(grown, s.records[:s.top])
	s.records = grown
}

// Finish finalizes the top record. It releases the method command, the
// destroyed-object command taken by MarkDestroyed, and triggers the
// deferred destruction of the record's object when no other record still
// refers to it. Each handle must be finished exactly once, in LIFO order.
func (s *CallStack) Finish(h Handle, err error) {
	r := s.lookup(h)
	if r == nil {
		s.violation("finish", "stale or unknown %s", h)
		return
	}
	if h.index != s.top-1 {
		s.violation("finish", "%s is not the top record (depth %d)", h, s.top)
		return
	}
	if r.Frame != nil && r.Frame.Popped() {
		s.violation("finish", "native frame of %s was already popped", r)
	}

	if log.AllowLevel(commonlog.Debug) {
		log.Debugf("finish record %s", r)
	}
	if s.observer != nil {
		s.observer.Finished(r, err)
	}

	preserved := r.preserved
	destroyed := r.DestroyedCmd
	self := r.Self
	s.records[h.index] = Record{}
	s.top--

	if preserved != nil {
		preserved.Release()
	}
	if destroyed != nil {
		destroyed.Release()
		if !s.references(self) && s.lastRelease != nil {
			s.lastRelease(self)
		}
	}
}

// PopAll finishes every record, newest first. Used on teardown.
func (s *CallStack) PopAll() {
	for s.top > 0 {
		idx := s.top - 1
		s.Finish(Handle{index: idx, gen: s.records[idx].gen}, nil)
	}
}

func (s *CallStack) lookup(h Handle) *Record {
	if !h.Valid() || h.index < 0 || h.index >= s.top {
		return nil
	}
	r := &s.records[h.index]
	if r.gen != h.gen {
		return nil
	}
	return r
}

// Record returns the live record for h, or nil when h is stale. The
// pointer is valid until the next Push.
func (s *CallStack) Record(h Handle) *Record {
	return s.lookup(h)
}

// Top returns the handle of the newest record.
func (s *CallStack) Top() (Handle, bool) {
	if s.top == 0 {
		return Handle{}, false
	}
	idx := s.top - 1
	return Handle{index: idx, gen: s.records[idx].gen}, true
}

// Each calls fn for every live record from oldest to newest until fn
// returns false.
func (s *CallStack) Each(fn func(Handle, *Record) bool) {
	for i := 0; i < s.top; i++ {
		r := &s.records[i]
		if !fn(Handle{index: i, gen: r.gen}, r) {
			return
		}
	}
}

// EachFromTop calls fn for every live record from newest to oldest until
// fn returns false.
func (s *CallStack) EachFromTop(fn func(Handle, *Record) bool) {
	for i := s.top - 1; i >= 0; i-- {
		r := &s.records[i]
		if !fn(Handle{index: i, gen: r.gen}, r) {
			return
		}
	}
}

// references reports whether any live record has obj as self.
func (s *CallStack) references(obj *Object) bool {
	for i := 0; i < s.top; i++ {
		if s.records[i].Self == obj {
			return true
		}
	}
	return false
}

func (s *CallStack) violation(op, format string, args ...any) {
	v := &ContractViolation{Op: op, Msg: fmt.Sprintf(format, args...)}
	if s.assertions {
		panic(v)
	}
	log.Critical(v.Error())
}
