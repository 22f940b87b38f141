package vm

import (
	"fmt"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// ---------------------------------------------------------------------------
// Stack snapshots
// ---------------------------------------------------------------------------

// FrameInfo is the serializable summary of one activation record.
type FrameInfo struct {
	Level     int       `cbor:"1,keyasint"`
	Object    string    `cbor:"2,keyasint,omitempty"`
	Class     string    `cbor:"3,keyasint,omitempty"`
	Method    string    `cbor:"4,keyasint,omitempty"`
	FrameType FrameType `cbor:"5,keyasint,omitempty"`
	CallType  CallType  `cbor:"6,keyasint,omitempty"`
	Native    bool      `cbor:"7,keyasint,omitempty"`
	Cleared   bool      `cbor:"8,keyasint,omitempty"` // method command was deleted
}

func (fi FrameInfo) String() string {
	owner := ""
	if fi.Class != "" {
		owner = fi.Class + " "
	}
	s := fmt.Sprintf("#%d %s %s%s", fi.Level, fi.Object, owner, fi.Method)
	if fi.FrameType != FramePlain {
		s += " [" + fi.FrameType.String() + "]"
	}
	if fi.CallType != 0 {
		s += " (" + fi.CallType.String() + ")"
	}
	if fi.Cleared {
		s += " <deleted>"
	}
	return s
}

// Snapshot is a point-in-time copy of the call stack, newest record first.
type Snapshot struct {
	TakenAt int64       `cbor:"1,keyasint"`
	Depth   int         `cbor:"2,keyasint"`
	Frames  []FrameInfo `cbor:"3,keyasint,omitempty"`
	Error   string      `cbor:"4,keyasint,omitempty"`
}

// Snapshot copies the live records.
func (s *CallStack) Snapshot() *Snapshot {
	snap := &Snapshot{
		TakenAt: time.Now().UnixNano(),
		Depth:   s.top,
		Frames:  make([]FrameInfo, 0, s.top),
	}
	s.EachFromTop(func(_ Handle, r *Record) bool {
		fi := FrameInfo{
			Level:     r.Level(),
			Method:    r.MethodName,
			FrameType: r.FrameType,
			CallType:  r.CallType,
			Native:    r.IsNative(),
			Cleared:   r.Cmd == nil && r.preserved != nil,
		}
		if r.Self != nil {
			fi.Object = r.Self.Name()
		}
		if r.Class != nil {
			fi.Class = r.Class.Name()
		}
		snap.Frames = append(snap.Frames, fi)
		return true
	})
	return snap
}

// Snapshot copies the runtime's call stack.
func (rt *Runtime) Snapshot() *Snapshot { return rt.stack.Snapshot() }

func (s *Snapshot) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "stack depth %d", s.Depth)
	if s.Error != "" {
		fmt.Fprintf(&b, " (error: %s)", s.Error)
	}
	for _, fi := range s.Frames {
		b.WriteString("\n  ")
		b.WriteString(fi.String())
	}
	return b.String()
}

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("vm: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// MarshalSnapshot serializes a Snapshot to CBOR bytes.
func MarshalSnapshot(s *Snapshot) ([]byte, error) {
	return cborEncMode.Marshal(s)
}

// UnmarshalSnapshot deserializes a Snapshot from CBOR bytes.
func UnmarshalSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := cbor.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("vm: unmarshal snapshot: %w", err)
	}
	return &s, nil
}
