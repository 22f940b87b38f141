package vm

import "fmt"

// ---------------------------------------------------------------------------
// Command: reference-counted handle
// ---------------------------------------------------------------------------

// Command is the handle behind an object identity or a method. Records on
// the call stack refer to commands without owning them; they take a
// reference with Preserve for as long as they need the handle to stay
// valid and drop it with Release.
//
// A new command holds one reference on behalf of its owner. Delete drops
// that reference and marks the command deleted; the command is freed once
// the last reference is gone.
type Command struct {
	name     string
	refCount int
	deleted  bool
	freed    bool
	onFree   func(*Command)
}

// NewCommand creates a command holding its owner's reference.
func NewCommand(name string) *Command {
	return &Command{name: name, refCount: 1}
}

// Name returns the command name.
func (c *Command) Name() string { return c.name }

// RefCount returns the number of outstanding references.
func (c *Command) RefCount() int { return c.refCount }

// Deleted reports whether the owner has deleted the command.
func (c *Command) Deleted() bool { return c.deleted }

// Freed reports whether the last reference has been released.
func (c *Command) Freed() bool { return c.freed }

// Preserve takes an additional reference.
func (c *Command) Preserve() {
	if c.freed {
		panic(fmt.Sprintf("vm: preserve of freed command %s", c.name))
	}
	c.refCount++
}

// Release drops a reference, freeing the command when it was the last one.
func (c *Command) Release() {
	if c.refCount <= 0 {
		panic(fmt.Sprintf("vm: release of command %s with no references", c.name))
	}
	c.refCount--
	if c.refCount == 0 {
		c.freed = true
		if c.onFree != nil {
			c.onFree(c)
		}
	}
}

// Delete drops the owner's reference. Deleting twice is a no-op.
func (c *Command) Delete() {
	if c.deleted {
		return
	}
	c.deleted = true
	c.Release()
}

func (c *Command) String() string {
	if c == nil {
		return "<no command>"
	}
	return c.name
}
