// Package cmp has equality helpers for tests and comparisons of
// collections which do not have == on their own.
package cmp

type BiPredicator[V any, U any] func(a V, b U) bool

// a == b as BiPredicator
func EqEq[T comparable](a, b T) bool {
	return a == b
}

// *a == *b, where nil equals only nil.
func PEqEq[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func SliceEq[T comparable](a []T, b []T) bool {
	return SliceEqWith(a, b, EqEq[T])
}

func SliceEqWith[T any, U any](a []T, b []U, pred BiPredicator[T, U]) bool {
	if len(a) != len(b) {
		return false
	}
	for nth := range a {
		if !pred(a[nth], b[nth]) {
			return false
		}
	}
	return true
}

// SliceContentEq checks two slices have the same elements, ignoring order.
//
// Duplicates are counted:
//
//	SliceContentEq([]string{"a", "b"}, []string{"b", "a"})           // true
//	SliceContentEq([]string{"a", "b", "b"}, []string{"a", "b", "a"}) // false
func SliceContentEq[T comparable](a, b []T) bool {
	return SliceContentEqWith(a, b, EqEq[T])
}

func SliceContentEqWith[S, T any](a []S, b []T, equiv BiPredicator[S, T]) bool {
	if len(a) != len(b) {
		return false
	}

	rest := make(map[int]*T, len(b))
	for i := range b {
		rest[i] = &b[i]
	}

NEXT_A:
	for _, va := range a {
		for k, vb := range rest {
			if equiv(va, *vb) {
				delete(rest, k)
				continue NEXT_A
			}
		}
		return false
	}
	return len(rest) == 0
}

func MapEq[K comparable, V comparable](a map[K]V, b map[K]V) bool {
	return MapEqWith(a, b, EqEq[V])
}

func MapEqWith[K comparable, V any, U any](a map[K]V, b map[K]U, pred BiPredicator[V, U]) bool {
	if len(a) != len(b) {
		return false
	}
	for k, va := range a {
		vb, ok := b[k]
		if !ok || !pred(va, vb) {
			return false
		}
	}
	return true
}
