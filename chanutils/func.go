package chanutils

// Reducer represents a function that takes an accumulator and the value, then
// returns a new accumulator.
type Reducer[T, V any] func(accum T, value V) T

// Reduce takes a slice of something, and a reducer, and produces a final
// accumulated value.
func Reduce[T any, V any, S []V](s S, f Reducer[T, V]) T {
	var accum T

	for _, x := range s {
		accum = f(accum, x)
	}

	return accum
}

// Map applies f to every element of s and returns the results in order.
func Map[I, O any, S []I](s S, f func(I) O) []O {
	out := make([]O, 0, len(s))
	for _, x := range s {
		out = append(out, f(x))
	}

	return out
}

// Filter returns the elements of s for which pred returns true, preserving
// their order.
func Filter[T any](xs []T, pred func(T) bool) []T {
	var out []T
	for i := range xs {
		if pred(xs[i]) {
			out = append(out, xs[i])
		}
	}

	return out
}

// All returns true if the passed predicate returns true for all items in the
// slice.
func All[T any](xs []T, pred func(T) bool) bool {
	for i := range xs {
		if !pred(xs[i]) {
			return false
		}
	}

	return true
}

// Any returns true if the passed predicate returns true for any item in the
// slice.
func Any[T any](xs []T, pred func(T) bool) bool {
	for i := range xs {
		if pred(xs[i]) {
			return true
		}
	}

	return false
}

// Count returns the number of items in the slice that match the predicate.
func Count[T any](xs []T, pred func(T) bool) int {
	var count int

	for i := range xs {
		if pred(xs[i]) {
			count++
		}
	}

	return count
}
