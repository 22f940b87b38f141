package vm

import "github.com/chazu/nxrt/host"

// ---------------------------------------------------------------------------
// Active-frame synchronizer
// ---------------------------------------------------------------------------

// FrameContext remembers the variable scope replaced by UseActiveFrames.
type FrameContext struct {
	stack    *CallStack
	saved    *host.Frame
	swapped  bool
	restored bool
}

// Swapped reports whether a different frame was installed.
func (c *FrameContext) Swapped() bool { return c.swapped }

// UseActiveFrames installs, as the active variable scope, the frame that
// host-level constructs should treat as "the calling scope": the nearest
// active scripted method or plain host frame, looking through native
// method frames, object frames and suspended filter or mixin frames. The
// returned context must be restored exactly once.
func (s *CallStack) UseActiveFrames() *FrameContext {
	ctx := &FrameContext{stack: s}
	in := s.interp.VarFrame()
	if in.Level() == 0 {
		return ctx
	}
	if _, f := s.FindActiveFrame(0); f == in && in.Is(host.FrameMethod) {
		return ctx
	}

	target := s.activeProcFrame(in)
	if target != nil && target != in {
		ctx.saved = s.interp.SetVarFrame(target)
		ctx.swapped = true
	}
	return ctx
}

// activeProcFrame walks the native caller chain from f to the first frame
// that a script would consider its own scope.
func (s *CallStack) activeProcFrame(f *host.Frame) *host.Frame {
	for ; f != nil; f = f.Caller() {
		switch {
		case f.Is(host.FrameMethod):
			if _, r := s.recordOf(f); r == nil || !r.FrameType.Inactive() {
				return f
			}
		case f.Is(host.FrameCMethod | host.FrameObject):
			continue
		default:
			return f
		}
	}
	return nil
}

// Restore reinstates the variable scope saved by UseActiveFrames.
func (c *FrameContext) Restore() {
	if c.restored {
		c.stack.violation("restore", "frame context restored twice")
		return
	}
	c.restored = true
	if c.swapped {
		c.stack.interp.SetVarFrame(c.saved)
	}
}

// WithActiveFrames runs fn with the active frames installed and restores
// the previous scope on every exit path, including panics.
func (s *CallStack) WithActiveFrames(fn func() error) error {
	ctx := s.UseActiveFrames()
	defer ctx.Restore()
	return fn()
}
