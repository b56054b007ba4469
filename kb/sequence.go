package kb

import "sort"

// NewTuple creates an ordered sequence item: an instance of the tuple
// class with a length spelling and one has-element edge per entry,
// each carrying a has-index qualifier.
func (s *Store) NewTuple(elems ...Term) (*Item, error) {
	t, err := s.NewInstance(s.V.TupleClass, "tuple")
	if err != nil {
		return nil, err
	}
	if _, err := s.Set(t, s.V.HasLength, Lit(int64(len(elems)))); err != nil {
		return nil, err
	}
	for i, el := range elems {
		_, err := s.Set(t, s.V.HasElement, el,
			WithQualifiers(Qualifier{Rel: s.V.HasIndex, Obj: Lit(int64(i))}))
		if err != nil {
			return nil, err
		}
	}
	return t, nil
}

func tupleIndex(s *Store, stm *Statement) int64 {
	if t, ok := stm.QualifierValue(s.V.HasIndex); ok {
		if lit, ok := t.(Literal); ok {
			if n, ok := lit.Value.(int64); ok {
				return n
			}
		}
	}
	return 0
}

// TupleElements returns the elements of a tuple ordered by their index
// qualifiers.
func (s *Store) TupleElements(t *Item) []Term {
	stms := s.Statements(t, s.V.HasElement)
	sort.SliceStable(stms, func(i, j int) bool {
		return tupleIndex(s, stms[i]) < tupleIndex(s, stms[j])
	})
	out := make([]Term, 0, len(stms))
	for _, stm := range stms {
		out = append(out, stm.Object)
	}
	return out
}

// TupleLength returns the declared length of a tuple.
func (s *Store) TupleLength(t *Item) (int64, bool) {
	if v, ok := s.One(t, s.V.HasLength); ok {
		if lit, ok := v.(Literal); ok {
			if n, ok := lit.Value.(int64); ok {
				return n, true
			}
		}
	}
	return 0, false
}

// NewEquation creates an equation item with lhs and rhs spellings.
func (s *Store) NewEquation(lhs, rhs Term) (*Item, error) {
	eq, err := s.NewInstance(s.V.EquationClass, "equation")
	if err != nil {
		return nil, err
	}
	if _, err := s.Set(eq, s.V.LHS, lhs); err != nil {
		return nil, err
	}
	if _, err := s.Set(eq, s.V.RHS, rhs); err != nil {
		return nil, err
	}
	return eq, nil
}
