package mux

import (
	"fmt"

	"github.com/neilo40/scopewave/internal/scpi"
)

type argKind int

const (
	argBroadcast argKind = iota
	argByKey
	argByPosition
)

// Args supplies the per-key argument of a set-style batch: one value for
// every key, a value per key, or values matched to keys by position.
type Args[K comparable, A any] struct {
	kind  argKind
	value A
	byKey map[K]A
	list  []A
}

// Broadcast applies a to every key.
func Broadcast[K comparable, A any](a A) Args[K, A] {
	return Args[K, A]{kind: argBroadcast, value: a}
}

// ByKey looks the argument up per key; every key must be present.
func ByKey[K comparable, A any](m map[K]A) Args[K, A] {
	return Args[K, A]{kind: argByKey, byKey: m}
}

// ByPosition matches values to keys in order; the counts must agree.
func ByPosition[K comparable, A any](values ...A) Args[K, A] {
	return Args[K, A]{kind: argByPosition, list: values}
}

// Resolve returns one argument per key.
func (a Args[K, A]) Resolve(keys []K) ([]A, error) {
	seen := make(map[K]bool, len(keys))
	for _, k := range keys {
		if seen[k] {
			return nil, &scpi.ValidationError{Param: "keys", Value: k, Msg: "listed more than once"}
		}
		seen[k] = true
	}
	out := make([]A, len(keys))
	switch a.kind {
	case argBroadcast:
		for i := range out {
			out[i] = a.value
		}
	case argByKey:
		for i, k := range keys {
			v, ok := a.byKey[k]
			if !ok {
				return nil, &scpi.ValidationError{Param: "arguments", Value: k, Msg: "no value for key"}
			}
			out[i] = v
		}
		if len(a.byKey) != len(keys) {
			return nil, &scpi.ValidationError{Param: "arguments", Value: len(a.byKey),
				Msg: fmt.Sprintf("%d values for %d keys", len(a.byKey), len(keys))}
		}
	case argByPosition:
		if len(a.list) != len(keys) {
			return nil, &scpi.ValidationError{Param: "arguments", Value: len(a.list),
				Msg: fmt.Sprintf("%d values for %d keys", len(a.list), len(keys))}
		}
		copy(out, a.list)
	}
	return out, nil
}
