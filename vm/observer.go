package vm

// Observer receives call-stack events. Implementations must not call back
// into the runtime.
type Observer interface {
	// Pushed is called after a record was pushed.
	Pushed(r *Record)
	// Finished is called before a record is cleared.
	Finished(r *Record, err error)
	// Destroyed is called when an object starts destruction, with the
	// number of live records that defer it.
	Destroyed(obj *Object, marked int)
	// Snapshot delivers a stack snapshot taken when a method failed.
	Snapshot(s *Snapshot)
}

// Flusher is implemented by observers that buffer events. Runtime.Close
// flushes them after popping the remaining records.
type Flusher interface {
	Flush() error
}
