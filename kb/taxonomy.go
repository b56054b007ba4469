package kb

// Classification places an item in the three-level taxonomy.
type Classification int

const (
	ClassificationIndividual Classification = iota
	ClassificationClass
	ClassificationMetaclass
)

func (c Classification) String() string {
	switch c {
	case ClassificationIndividual:
		return "individual"
	case ClassificationClass:
		return "class"
	case ClassificationMetaclass:
		return "metaclass"
	}
	return "unknown"
}

// IsSubclassOf walks the subclass chain from sub, reflexively. Cycles
// are tolerated via a visited set.
func (s *Store) IsSubclassOf(sub, sup *Item) bool {
	visited := map[string]bool{}
	var walk func(cur *Item) bool
	walk = func(cur *Item) bool {
		if cur.uri == sup.uri {
			return true
		}
		if visited[cur.uri] {
			return false
		}
		visited[cur.uri] = true
		for _, t := range s.Objects(cur, s.V.SubclassOf) {
			if parent, ok := t.(*Item); ok && walk(parent) {
				return true
			}
		}
		return false
	}
	return walk(sub)
}

// IsInstanceOf reports whether itm is a direct or inherited instance
// of cls: one instance-of hop followed by the subclass chain.
func (s *Store) IsInstanceOf(itm *Item, cls *Item) bool {
	for _, t := range s.Objects(itm, s.V.InstanceOf) {
		if parent, ok := t.(*Item); ok && s.IsSubclassOf(parent, cls) {
			return true
		}
	}
	return false
}

// reachesMetaclass walks the taxonomy tree from itm. Subclass edges
// are free, instance-of edges consume budget. The metaclass root is
// counted as reached when the walk lands on it with budget left over.
func (s *Store) reachesMetaclass(itm *Item, budget int, visited map[string]int) bool {
	if itm.uri == s.V.Metaclass.uri {
		return true
	}
	// revisit only with a larger remaining budget
	if prev, ok := visited[itm.uri]; ok && prev >= budget {
		return false
	}
	visited[itm.uri] = budget
	for _, t := range s.Objects(itm, s.V.SubclassOf) {
		if parent, ok := t.(*Item); ok && s.reachesMetaclass(parent, budget, visited) {
			return true
		}
	}
	if budget > 0 {
		for _, t := range s.Objects(itm, s.V.InstanceOf) {
			if parent, ok := t.(*Item); ok && s.reachesMetaclass(parent, budget-1, visited) {
				return true
			}
		}
	}
	return false
}

// Classify determines whether an item is an individual, a class or a
// metaclass: metaclasses reach the metaclass root through subclass
// edges alone, classes need exactly one instance-of hop, everything
// else is an individual.
func (s *Store) Classify(itm *Item) Classification {
	if s.reachesMetaclass(itm, 0, map[string]int{}) {
		return ClassificationMetaclass
	}
	if s.reachesMetaclass(itm, 1, map[string]int{}) {
		return ClassificationClass
	}
	return ClassificationIndividual
}

// AllowsInstantiation reports whether NewInstance may be called on
// the item. Classes and metaclasses qualify, individuals do not;
// instances of a metaclass are classes and therefore qualify.
func (s *Store) AllowsInstantiation(itm *Item) bool {
	return s.Classify(itm) != ClassificationIndividual
}
