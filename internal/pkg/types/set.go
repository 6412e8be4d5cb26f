package types

// Set is a hash set of comparable values. It is not safe for concurrent use.
type Set[T comparable] map[T]struct{}

// NewSet returns a Set holding values.
func NewSet[T comparable](values ...T) Set[T] {
	set := make(Set[T], len(values))
	set.Add(values...)
	return set
}

// Add inserts values into the set.
func (s Set[T]) Add(values ...T) {
	for _, v := range values {
		s[v] = struct{}{}
	}
}

// Delete removes values from the set. Absent values are ignored.
func (s Set[T]) Delete(values ...T) {
	for _, v := range values {
		delete(s, v)
	}
}

// Has reports whether value is a member of the set.
func (s Set[T]) Has(value T) bool {
	_, ok := s[value]
	return ok
}
