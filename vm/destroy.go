package vm

// ---------------------------------------------------------------------------
// Destruction marker
// ---------------------------------------------------------------------------

// MarkDestroyed tags every live record whose self is obj as a destroy call
// and records the object's identity command on it. The command is
// preserved once per record, the first time the record is tagged, and
// released when the record finishes. It returns the number of records
// referring to obj; zero means the object can be destroyed at once.
func (s *CallStack) MarkDestroyed(obj *Object) int {
	count := 0
	for i := 0; i < s.top; i++ {
		r := &s.records[i]
		if r.Self != obj {
			continue
		}
		if r.CallType&CallIsDestroy == 0 {
			obj.id.Preserve()
			r.DestroyedCmd = obj.id
		}
		r.CallType |= CallIsDestroy
		count++
	}
	return count
}

// ClearCommandReferences removes cmd from every live record, so records of
// a deleted method no longer refer to it. Records keep their method name
// for diagnostics. It returns the number of records cleared.
func (s *CallStack) ClearCommandReferences(cmd *Command) int {
	if cmd == nil {
		return 0
	}
	n := 0
	for i := 0; i < s.top; i++ {
		if s.records[i].Cmd == cmd {
			s.records[i].Cmd = nil
			n++
		}
	}
	return n
}
