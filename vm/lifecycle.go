package vm

import (
	"github.com/tliron/commonlog"
)

// ---------------------------------------------------------------------------
// Object destruction
// ---------------------------------------------------------------------------

// Destroy sends destroy to obj. Classes may intercept destroy and call
// next; the root implementation starts the actual destruction.
func (rt *Runtime) Destroy(obj *Object) error {
	_, err := rt.Dispatch(obj, "destroy")
	return err
}

// DeleteObject starts destroying obj without dispatching. When records of
// obj are still running, physical destruction is deferred until the last
// of them finishes; otherwise it happens now.
func (rt *Runtime) DeleteObject(obj *Object) {
	if obj.state != stateLive {
		return
	}
	if obj == rt.root.Object || obj == rt.meta.Object {
		log.Warningf("refusing to destroy bootstrap class %s", obj.name)
		return
	}
	obj.state = stateDestroying
	n := rt.stack.MarkDestroyed(obj)
	if log.AllowLevel(commonlog.Debug) {
		log.Debugf("destroy %s: %d live records", obj.name, n)
	}
	if rt.observer != nil {
		rt.observer.Destroyed(obj, n)
	}
	if n == 0 {
		rt.physicallyDestroy(obj)
	}
}

// releaseDestroyed runs when the last record of a marked object finishes.
func (rt *Runtime) releaseDestroyed(obj *Object) {
	if obj != nil && obj.state == stateDestroying {
		rt.physicallyDestroy(obj)
	}
}

// physicallyDestroy removes obj from the runtime. Methods defined on it
// are deleted, which clears them from records of other objects still
// running them. Instances and subclasses of a destroyed class fall back
// to the root class.
func (rt *Runtime) physicallyDestroy(obj *Object) {
	if obj == nil || obj.state == stateDestroyed {
		return
	}
	obj.state = stateDestroyed
	if rt.objects[obj.name] == obj {
		delete(rt.objects, obj.name)
	}

	for name, m := range obj.methods {
		delete(obj.methods, name)
		rt.retireMethod(m)
	}
	if c := obj.asClass; c != nil {
		rt.destroyClass(c)
	}
	if obj.class != nil {
		delete(obj.class.instances, obj)
	}
	obj.id.Delete()
}

func (rt *Runtime) destroyClass(c *Class) {
	for name, m := range c.instMethods {
		delete(c.instMethods, name)
		rt.retireMethod(m)
	}
	for inst := range c.instances {
		inst.class = rt.root
		rt.root.instances[inst] = struct{}{}
		if inst.asClass != nil {
			inst.class = rt.meta
			rt.meta.instances[inst] = struct{}{}
		}
	}
	c.instances = make(map[*Object]struct{})

	for _, sub := range append([]*Class(nil), c.subs...) {
		var kept []*Class
		for _, s := range sub.supers {
			if s != c {
				kept = append(kept, s)
			}
		}
		if len(kept) == 0 {
			kept = []*Class{rt.root}
		}
		_ = sub.SetSupers(kept...)
	}
	for _, s := range c.supers {
		s.removeSub(c)
	}
	c.supers = nil
}
