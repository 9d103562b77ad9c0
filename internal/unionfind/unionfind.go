// Package unionfind implements a disjoint-set structure over comparable
// keys, specialized for identifier grouping: classes grow only by explicit
// union and shrink only by dissolving a whole class back to singletons.
package unionfind

// Set partitions a universe of keys into equivalence classes. Every key
// belongs to exactly one class; an unseen key is implicitly its own
// singleton class. The zero value is not usable; call New.
type Set[T comparable] struct {
	parent  map[T]T
	members map[T]map[T]struct{} // root -> class members, only for joined classes
}

// New creates an empty set in which every key is a singleton.
func New[T comparable]() *Set[T] {
	return &Set[T]{
		parent:  make(map[T]T),
		members: make(map[T]map[T]struct{}),
	}
}

// find returns x's root, compressing paths as it goes. An unseen key is its
// own root.
func (s *Set[T]) find(x T) T {
	p, ok := s.parent[x]
	if !ok || p == x {
		return x
	}
	root := s.find(p)
	s.parent[x] = root
	return root
}

// Union merges the classes of all given keys into one class. The operation
// is order-independent, idempotent, and transitively consistent: joining
// (a,b) then (b,c) produces the same class as joining (a,b,c) at once.
func (s *Set[T]) Union(keys ...T) {
	if len(keys) < 2 {
		return
	}
	base := keys[0]
	for _, key := range keys[1:] {
		s.link(base, key)
	}
}

func (s *Set[T]) link(a, b T) {
	ra, rb := s.find(a), s.find(b)
	if ra == rb {
		return
	}

	// Merge the smaller member set into the larger.
	ma, mb := s.classSet(ra, a), s.classSet(rb, b)
	if len(ma) < len(mb) {
		ra, rb = rb, ra
		ma, mb = mb, ma
	}
	s.parent[rb] = ra
	s.parent[ra] = ra
	for k := range mb {
		ma[k] = struct{}{}
	}
	s.members[ra] = ma
	delete(s.members, rb)
}

// classSet returns the tracked member set of root, creating a singleton set
// when the class was implicit. seed is a known member used to initialize it.
func (s *Set[T]) classSet(root, seed T) map[T]struct{} {
	if m, ok := s.members[root]; ok {
		return m
	}
	m := map[T]struct{}{root: {}}
	if seed != root {
		m[seed] = struct{}{}
	}
	return m
}

// Joined reports whether x belongs to a multi-member class.
func (s *Set[T]) Joined(x T) bool {
	m, ok := s.members[s.find(x)]
	return ok && len(m) > 1
}

// Class returns all members of x's class. A key never joined returns just
// itself.
func (s *Set[T]) Class(x T) []T {
	root := s.find(x)
	m, ok := s.members[root]
	if !ok {
		return []T{x}
	}
	out := make([]T, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// JoinedClasses returns every multi-member class. Order of classes and of
// members within a class is unspecified.
func (s *Set[T]) JoinedClasses() [][]T {
	var out [][]T
	for _, m := range s.members {
		if len(m) < 2 {
			continue
		}
		class := make([]T, 0, len(m))
		for k := range m {
			class = append(class, k)
		}
		out = append(out, class)
	}
	return out
}

// Dissolve resets x's entire class to singletons. Dissolving is total, not a
// partial removal: every member of the class, not just x, becomes its own
// singleton again. Dissolving a singleton is a no-op.
func (s *Set[T]) Dissolve(x T) {
	root := s.find(x)
	m, ok := s.members[root]
	if !ok {
		return
	}
	for k := range m {
		delete(s.parent, k)
	}
	delete(s.members, root)
}
