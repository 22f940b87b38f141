package vm

import (
	"fmt"
	"testing"

	"github.com/chazu/nxrt/host"
	"golang.org/x/sync/errgroup"
)

// Runtimes share no state; each goroutine drives its own interpreter.
func TestIndependentRuntimes(t *testing.T) {
	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			rt := New(host.New(), WithAssertions(true))
			defer rt.Close()

			c, err := rt.NewClass("Counter")
			if err != nil {
				return err
			}
			o, err := rt.NewObject("o", c)
			if err != nil {
				return err
			}
			c.DefineMethod("down", func(call *Call) (any, error) {
				n := call.Args[0].(int)
				if n == 0 {
					return call.Current(CurrentCallingLevel)
				}
				return call.Send(call.Self, "down", n-1)
			})

			got, err := rt.Dispatch(o, "down", i+1)
			if err != nil {
				return err
			}
			if want := fmt.Sprintf("#%d", i+1); got != want {
				return fmt.Errorf("runtime %d: calling level %v, want %s", i, got, want)
			}
			if rt.Stack().Depth() != 0 {
				return fmt.Errorf("runtime %d: %d records left", i, rt.Stack().Depth())
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
}
