package vm

import (
	"fmt"

	"github.com/chazu/nxrt/params"
)

// ---------------------------------------------------------------------------
// Root class methods
// ---------------------------------------------------------------------------

func installRootMethods(root *Class) {
	root.DefineNative("destroy", func(c *Call) (any, error) {
		c.Runtime.DeleteObject(c.Self)
		return nil, nil
	})

	root.DefineNative("uplevel", primUplevel).WithParams(
		params.Spec{Name: "level", Kind: params.String, Optional: true},
		params.Spec{Name: "body", Kind: params.Func},
	)

	root.DefineNative("upvar", primUpvar)

	root.DefineNative("eval", func(c *Call) (any, error) {
		body := c.Args[0].(params.Script)
		return c.Runtime.EvalIn(c.Self, body)
	}).WithParams(params.Spec{Name: "body", Kind: params.Func})

	root.DefineNative("set", func(c *Call) (any, error) {
		name := c.Args[0].(string)
		if len(c.Args[1].([]any)) == 0 {
			v, ok := c.Self.Get(name)
			if !ok {
				return nil, fmt.Errorf("%s: can't read %q: no such variable", c.Self.Name(), name)
			}
			return v, nil
		}
		v := c.Args[1].([]any)[0]
		c.Self.Set(name, v)
		return v, nil
	}).WithParams(
		params.Spec{Name: "name", Kind: params.String},
		params.Spec{Name: "value", Kind: params.Any, Variadic: true},
	)

	root.DefineNative("class", func(c *Call) (any, error) {
		return c.Self.Class(), nil
	})
}

// primUplevel evaluates body in the scope named by level, counted from the
// method that invoked uplevel. Without a level the calling level is used.
func primUplevel(c *Call) (any, error) {
	level, _ := c.Args[0].(string)
	body := c.Args[1].(params.Script)
	rt := c.Runtime

	var result any
	err := rt.WithActiveFrames(func() error {
		if level == "" {
			level = callingLevel(rt)
		}
		var err error
		result, err = rt.interp.Uplevel(level, body)
		return err
	})
	return result, err
}

var upvarParams = []params.Spec{
	{Name: "level", Kind: params.String, Optional: true},
	{Name: "otherVar", Kind: params.String},
	{Name: "localVar", Kind: params.String},
}

type upvarArgs struct {
	Level    string `param:"level"`
	OtherVar string `param:"otherVar"`
	LocalVar string `param:"localVar"`
}

// primUpvar links localVar in the invoking method's scope to otherVar in
// the scope named by level.
func primUpvar(c *Call) (any, error) {
	var a upvarArgs
	if err := params.Decode(c.Args, upvarParams, &a); err != nil {
		return nil, err
	}
	rt := c.Runtime

	return nil, rt.WithActiveFrames(func() error {
		level := a.Level
		if level == "" {
			level = callingLevel(rt)
		}
		return rt.interp.Upvar(level, a.OtherVar, a.LocalVar)
	})
}

func callingLevel(rt *Runtime) string {
	_, f := rt.stack.FindLastInvocation(1)
	return levelString(f)
}

// ---------------------------------------------------------------------------
// Metaclass methods
// ---------------------------------------------------------------------------

func installMetaMethods(meta *Class) {
	meta.DefineNative("create", func(c *Call) (any, error) {
		class := c.Self.AsClass()
		return c.Runtime.Create(c.Args[0].(string), class, c.Args[1].([]any)...)
	}).WithParams(
		params.Spec{Name: "name", Kind: params.String},
		params.Spec{Name: "args", Kind: params.Any, Variadic: true},
	)

	meta.DefineNative("new", func(c *Call) (any, error) {
		class := c.Self.AsClass()
		return c.Runtime.Create(c.Runtime.autoObjectName(), class, c.Args...)
	})
}
