package trace

import (
	"fmt"
	"strconv"
	"time"

	"github.com/chazu/nxrt/vm"
)

// Event kinds.
const (
	KindPush    = "push"
	KindFinish  = "finish"
	KindDestroy = "destroy"
)

// flushThreshold is the number of buffered rows that triggers a write.
const flushThreshold = 256

// Event is one recorded stack event.
type Event struct {
	Session   string
	Seq       int
	Kind      string
	Level     int
	Object    string
	Class     string
	Method    string
	FrameType vm.FrameType
	CallType  vm.CallType
	Detail    string
	At        time.Time
}

func (e Event) String() string {
	s := fmt.Sprintf("%5d %-7s #%d %s", e.Seq, e.Kind, e.Level, e.Object)
	if e.Class != "" {
		s += " " + e.Class
	}
	if e.Method != "" {
		s += " " + e.Method
	}
	if e.FrameType != vm.FramePlain {
		s += " [" + e.FrameType.String() + "]"
	}
	if e.CallType != 0 {
		s += " (" + e.CallType.String() + ")"
	}
	if e.Detail != "" {
		s += ": " + e.Detail
	}
	return s
}

type pendingSnapshot struct {
	seq     int
	takenAt int64
	err     string
	data    []byte
}

// Session records the events of one runtime. It implements vm.Observer and
// buffers rows until Flush; it must be used from the runtime's goroutine.
type Session struct {
	store   *Store
	id      string
	label   string
	started time.Time

	seq       int
	events    []Event
	snapshots []pendingSnapshot
	err       error
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Label returns the session label.
func (s *Session) Label() string { return s.label }

// Pushed implements vm.Observer.
func (s *Session) Pushed(r *vm.Record) {
	s.add(recordEvent(KindPush, r, ""))
}

// Finished implements vm.Observer.
func (s *Session) Finished(r *vm.Record, err error) {
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	s.add(recordEvent(KindFinish, r, detail))
}

// Destroyed implements vm.Observer.
func (s *Session) Destroyed(obj *vm.Object, marked int) {
	s.add(Event{Kind: KindDestroy, Object: obj.Name(), Detail: strconv.Itoa(marked)})
}

// Snapshot implements vm.Observer.
func (s *Session) Snapshot(snap *vm.Snapshot) {
	data, err := vm.MarshalSnapshot(snap)
	if err != nil {
		log.Errorf("encoding snapshot: %s", err)
		s.keep(err)
		return
	}
	s.seq++
	s.snapshots = append(s.snapshots, pendingSnapshot{
		seq:     s.seq,
		takenAt: snap.TakenAt,
		err:     snap.Error,
		data:    data,
	})
	s.maybeFlush()
}

func recordEvent(kind string, r *vm.Record, detail string) Event {
	e := Event{
		Kind:      kind,
		Level:     r.Level(),
		Method:    r.MethodName,
		FrameType: r.FrameType,
		CallType:  r.CallType,
		Detail:    detail,
	}
	if r.Self != nil {
		e.Object = r.Self.Name()
	}
	if r.Class != nil {
		e.Class = r.Class.Name()
	}
	return e
}

func (s *Session) add(e Event) {
	s.seq++
	e.Session = s.id
	e.Seq = s.seq
	e.At = time.Now()
	s.events = append(s.events, e)
	s.maybeFlush()
}

func (s *Session) maybeFlush() {
	if len(s.events)+len(s.snapshots) >= flushThreshold {
		if err := s.Flush(); err != nil {
			log.Errorf("flushing trace session %s: %s", s.id, err)
		}
	}
}

func (s *Session) keep(err error) {
	if s.err == nil {
		s.err = err
	}
}

// Err returns the first error the session hit while encoding or writing,
// including failures of automatic flushes.
func (s *Session) Err() error { return s.err }

// Flush writes buffered events and snapshots in one transaction. A failed
// flush keeps the rows buffered for the next attempt.
func (s *Session) Flush() error {
	if len(s.events) == 0 && len(s.snapshots) == 0 {
		return nil
	}
	st := s.store
	st.mu.Lock()
	defer st.mu.Unlock()

	tx, err := st.db.Begin()
	if err != nil {
		s.keep(err)
		return fmt.Errorf("beginning transaction: %w", err)
	}
	for _, e := range s.events {
		if _, err := tx.Exec(`INSERT INTO events
			(session, seq, kind, level, object, class, method, frame_type, call_type, detail, at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			s.id, e.Seq, e.Kind, e.Level, e.Object, e.Class, e.Method,
			int(e.FrameType), int(e.CallType), e.Detail, e.At.UnixNano()); err != nil {
			tx.Rollback()
			s.keep(err)
			return fmt.Errorf("saving event: %w", err)
		}
	}
	for _, p := range s.snapshots {
		if _, err := tx.Exec(`INSERT INTO snapshots (session, seq, taken_at, error, data)
			VALUES (?, ?, ?, ?, ?)`, s.id, p.seq, p.takenAt, p.err, p.data); err != nil {
			tx.Rollback()
			s.keep(err)
			return fmt.Errorf("saving snapshot: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		s.keep(err)
		return fmt.Errorf("committing trace: %w", err)
	}
	s.events = s.events[:0]
	s.snapshots = s.snapshots[:0]
	return nil
}

// Close flushes the session.
func (s *Session) Close() error {
	return s.Flush()
}
