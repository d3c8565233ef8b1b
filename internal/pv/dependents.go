package pv

import (
	"context"
	"fmt"
)

// Dependent is invoked after every refresh with the key that refreshed.
//
// ctx carries the refresh; pass it to Cancel when a dependent cancels the
// variable it depends on.
type Dependent func(ctx context.Context, source string) error

type dependent struct {
	id uint64
	fn Dependent
}

// OnRefresh implements Variable. Dependents run in registration order.
func (v *variable) OnRefresh(fn Dependent) (remove func()) {
	if fn == nil {
		return func() {}
	}

	v.depMu.Lock()
	v.nextDep++
	id := v.nextDep
	v.deps = append(v.deps, dependent{id: id, fn: fn})
	v.depMu.Unlock()

	return func() {
		v.depMu.Lock()
		defer v.depMu.Unlock()
		for i, d := range v.deps {
			if d.id == id {
				v.deps = append(v.deps[:i:i], v.deps[i+1:]...)
				return
			}
		}
	}
}

// runDependents calls every dependent; failures are reported, never propagated.
func (v *variable) runDependents(ctx context.Context, source string) {
	v.depMu.Lock()
	deps := v.deps
	v.depMu.Unlock()

	for _, d := range deps {
		if err := callDependent(ctx, d.fn, source); err != nil {
			v.sched.opts.Metrics.RecordDependentError(ctx, source)
			v.sched.report(&RefreshError{Key: v.key, Op: "dependent", Err: err})
		}
	}
}

func callDependent(ctx context.Context, fn Dependent, source string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx, source)
}
