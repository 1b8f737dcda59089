// Package mux fans a single-key operation out over a set of keys (channels)
// and aggregates the per-key results.
package mux

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Mode decides what a failing key does to the rest of the batch.
type Mode int

const (
	// FailFast stops at the first failure. Keys already processed keep
	// whatever state the operation left them in.
	FailFast Mode = iota
	// Partial records the failure and carries on with the remaining keys.
	Partial
)

func (m Mode) String() string {
	if m == Partial {
		return "partial"
	}
	return "fail-fast"
}

// Selection names the keys a batch runs over: every main key, one key, or an
// explicit list in caller order.
type Selection[K comparable] struct {
	all    bool
	single bool
	keys   []K
}

// All selects every main key known to the resolver.
func All[K comparable]() Selection[K] { return Selection[K]{all: true} }

// One selects a single key; results behave as a scalar via Result.Single.
func One[K comparable](k K) Selection[K] { return Selection[K]{single: true, keys: []K{k}} }

// List selects keys in the given order.
func List[K comparable](keys ...K) Selection[K] {
	return Selection[K]{keys: append([]K(nil), keys...)}
}

func (s Selection[K]) IsAll() bool    { return s.all }
func (s Selection[K]) IsSingle() bool { return s.single }

// Resolve expands the selection. all is the main key set used for All.
func (s Selection[K]) Resolve(all []K) []K {
	if s.all {
		return append([]K(nil), all...)
	}
	return append([]K(nil), s.keys...)
}

func (s Selection[K]) String() string {
	if s.all {
		return "all"
	}
	parts := make([]string, len(s.keys))
	for i, k := range s.keys {
		parts[i] = fmt.Sprint(k)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// Result holds the outcome of a batch.
type Result[K comparable, V any] struct {
	Keys   []K
	values map[K]V
	errs   map[K]error
	single bool
}

func newResult[K comparable, V any](keys []K) *Result[K, V] {
	return &Result[K, V]{
		Keys:   keys,
		values: make(map[K]V, len(keys)),
		errs:   make(map[K]error),
	}
}

// Get returns the value or the captured error for k.
func (r *Result[K, V]) Get(k K) (V, error) {
	if err, ok := r.errs[k]; ok {
		var zero V
		return zero, err
	}
	v, ok := r.values[k]
	if !ok {
		var zero V
		return zero, fmt.Errorf("mux: no result for %v", k)
	}
	return v, nil
}

// Map returns the successful values keyed by key.
func (r *Result[K, V]) Map() map[K]V {
	out := make(map[K]V, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}

// Ordered returns the successful values in key order.
func (r *Result[K, V]) Ordered() []V {
	out := make([]V, 0, len(r.values))
	for _, k := range r.Keys {
		if v, ok := r.values[k]; ok {
			out = append(out, v)
		}
	}
	return out
}

// Failed lists the keys whose operation failed, in key order.
func (r *Result[K, V]) Failed() []K {
	var out []K
	for _, k := range r.Keys {
		if _, ok := r.errs[k]; ok {
			out = append(out, k)
		}
	}
	return out
}

// OK reports whether every key succeeded.
func (r *Result[K, V]) OK() bool { return len(r.errs) == 0 }

// Err returns a *PartialFailure describing the failed keys, or nil.
func (r *Result[K, V]) Err() error {
	if len(r.errs) == 0 {
		return nil
	}
	pf := &PartialFailure[K]{Keys: r.Failed(), Errs: make(map[K]error, len(r.errs))}
	for k, err := range r.errs {
		pf.Errs[k] = err
	}
	return pf
}

// Single returns the value of a single-key selection as a scalar.
func (r *Result[K, V]) Single() (V, error) {
	if len(r.Keys) != 1 {
		var zero V
		return zero, fmt.Errorf("mux: Single on a batch of %d keys", len(r.Keys))
	}
	return r.Get(r.Keys[0])
}

// IsSingle reports whether the result came from a One selection.
func (r *Result[K, V]) IsSingle() bool { return r.single }

// PartialFailure reports per-key failures of a partial-mode batch.
type PartialFailure[K comparable] struct {
	Keys []K
	Errs map[K]error
}

func (e *PartialFailure[K]) Error() string {
	parts := make([]string, 0, len(e.Keys))
	for _, k := range e.Keys {
		parts = append(parts, fmt.Sprintf("%v: %v", k, e.Errs[k]))
	}
	sort.Strings(parts)
	return fmt.Sprintf("%d of batch failed: %s", len(e.Keys), strings.Join(parts, "; "))
}

// Unwrap exposes the per-key errors to errors.Is/As.
func (e *PartialFailure[K]) Unwrap() []error {
	out := make([]error, 0, len(e.Keys))
	for _, k := range e.Keys {
		out = append(out, e.Errs[k])
	}
	return out
}

// KeyError attributes a fail-fast error to the key that raised it.
type KeyError[K comparable] struct {
	Key K
	Err error
}

func (e *KeyError[K]) Error() string { return fmt.Sprintf("%v: %v", e.Key, e.Err) }
func (e *KeyError[K]) Unwrap() error { return e.Err }

// Run invokes op once per key in order. In FailFast mode the first error is
// returned wrapped in a *KeyError together with the results gathered so far.
// In Partial mode per-key errors are captured in the Result and the returned
// error is nil unless ctx is done. Context cancellation stops the batch in
// either mode.
func Run[K comparable, V any](ctx context.Context, keys []K, mode Mode, op func(context.Context, K) (V, error)) (*Result[K, V], error) {
	res := newResult[K, V](keys)
	for _, k := range keys {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		v, err := op(ctx, k)
		if err != nil {
			if mode == FailFast || ctx.Err() != nil {
				return res, &KeyError[K]{Key: k, Err: err}
			}
			res.errs[k] = err
			continue
		}
		res.values[k] = v
	}
	return res, nil
}

// RunSelection resolves sel against all and runs op over it.
func RunSelection[K comparable, V any](ctx context.Context, sel Selection[K], all []K, mode Mode, op func(context.Context, K) (V, error)) (*Result[K, V], error) {
	res, err := Run(ctx, sel.Resolve(all), mode, op)
	if res != nil {
		res.single = sel.single
	}
	return res, err
}

// RunWith is Run for set-style operations taking a per-key argument. args is
// resolved against keys before any op is invoked, so a mismatch leaves every
// key untouched.
func RunWith[K comparable, A, V any](ctx context.Context, keys []K, args Args[K, A], mode Mode, op func(context.Context, K, A) (V, error)) (*Result[K, V], error) {
	vals, err := args.Resolve(keys)
	if err != nil {
		return nil, err
	}
	byKey := make(map[K]A, len(keys))
	for i, k := range keys {
		byKey[k] = vals[i]
	}
	return Run(ctx, keys, mode, func(ctx context.Context, k K) (V, error) {
		return op(ctx, k, byKey[k])
	})
}

// RunSelectionWith is RunWith over a Selection.
func RunSelectionWith[K comparable, A, V any](ctx context.Context, sel Selection[K], all []K, args Args[K, A], mode Mode, op func(context.Context, K, A) (V, error)) (*Result[K, V], error) {
	res, err := RunWith(ctx, sel.Resolve(all), args, mode, op)
	if res != nil {
		res.single = sel.single
	}
	return res, err
}
