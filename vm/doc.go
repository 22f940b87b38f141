// Package vm implements the nxrt object runtime.
//
// This package contains:
//   - Activation records and the array-backed call stack
//   - Frame location, self resolution and invocation search
//   - The active-frame synchronizer used by uplevel/upvar
//   - Deferred destruction marking and command reference clearing
//   - Objects, classes, mixins, filters, guards and next dispatch
//   - Stack introspection (current) and CBOR stack snapshots
package vm
