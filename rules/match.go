package rules

import (
	"sort"

	"noetic/kb"
)

// binding assigns a term to each variable index; nil means unbound.
type binding []kb.Term

// inFactGraph reports whether a statement belongs to the graph rules
// match against: live, primary-role, unscoped, no qualifier nesting,
// and not touching scope-bound entities or scope items.
func inFactGraph(s *kb.Store, stm *kb.Statement) bool {
	if stm == nil || stm.IsUnlinked() || stm.Role() != kb.RoleSubject {
		return false
	}
	if stm.ScopeItem() != nil || stm.IsQualifier() {
		return false
	}
	subj, ok := stm.Subject.(kb.Entity)
	if !ok {
		return false
	}
	if s.IsScopeBound(subj) {
		return false
	}
	if itm, ok := subj.(*kb.Item); ok && s.IsInstanceOf(itm, s.V.ScopeClass) {
		return false
	}
	if objEnt, ok := stm.Object.(kb.Entity); ok {
		if s.IsScopeBound(objEnt) {
			return false
		}
		if itm, ok := objEnt.(*kb.Item); ok && s.IsInstanceOf(itm, s.V.ScopeClass) {
			return false
		}
	}
	return true
}

func factStatements(s *kb.Store, rel *kb.Relation) []*kb.Statement {
	var out []*kb.Statement
	for _, stm := range s.RelationStatements(rel) {
		if inFactGraph(s, stm) {
			out = append(out, stm)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		si, sj := out[i], out[j]
		if si.Subject.URI() != sj.Subject.URI() {
			return si.Subject.URI() < sj.Subject.URI()
		}
		return si.URI() < sj.URI()
	})
	return out
}

func sortedRelations(s *kb.Store) []*kb.Relation {
	rels := s.Relations()
	sort.Slice(rels, func(i, j int) bool { return rels[i].URI() < rels[j].URI() })
	return rels
}

// orderEdges reorders pattern edges so that edges with more resolved
// endpoints are matched first, keeping wildcard enumeration narrow.
// The order depends only on the pattern, so matching stays
// deterministic.
func orderEdges(p *Pattern) []Edge {
	remaining := make([]Edge, len(p.Edges))
	copy(remaining, p.Edges)

	bound := make([]bool, len(p.Vars))
	var ordered []Edge
	for len(remaining) > 0 {
		best := -1
		bestScore := -1
		for i, e := range remaining {
			score := 0
			if e.PredVar < 0 {
				score += 4
			} else if bound[e.PredVar] {
				score += 3
			}
			if e.Subject.varIdx < 0 || bound[e.Subject.varIdx] {
				score += 2
			}
			if e.Object.varIdx < 0 || bound[e.Object.varIdx] {
				score++
			}
			if score > bestScore {
				best, bestScore = i, score
			}
		}
		e := remaining[best]
		ordered = append(ordered, e)
		remaining = append(remaining[:best], remaining[best+1:]...)
		for _, idx := range []int{e.Subject.varIdx, e.Object.varIdx, e.PredVar} {
			if idx >= 0 {
				bound[idx] = true
			}
		}
	}
	return ordered
}

type matcher struct {
	store   *kb.Store
	pattern *Pattern
	edges   []Edge
	b       binding
	used    map[string]int // entity URI -> var index, for injectivity
	out     []binding
}

func (e *Engine) matchAll(p *Pattern) ([]binding, error) {
	m := &matcher{
		store:   e.store,
		pattern: p,
		edges:   orderEdges(p),
		b:       make(binding, len(p.Vars)),
		used:    map[string]int{},
	}
	if err := m.extend(0); err != nil {
		return nil, err
	}
	return m.out, nil
}

func (m *matcher) extend(ei int) error {
	if ei == len(m.edges) {
		ok, err := m.conditionsHold()
		if err != nil {
			return err
		}
		if ok {
			final := make(binding, len(m.b))
			copy(final, m.b)
			m.out = append(m.out, final)
		}
		return nil
	}

	edge := m.edges[ei]
	for _, stm := range m.candidates(edge) {
		undo, ok := m.tryBind(edge, stm)
		if !ok {
			continue
		}
		if err := m.extend(ei + 1); err != nil {
			undo()
			return err
		}
		undo()
	}
	return nil
}

func (m *matcher) candidates(edge Edge) []*kb.Statement {
	if edge.PredVar < 0 {
		return factStatements(m.store, edge.Pred)
	}
	if bound, ok := m.b[edge.PredVar].(*kb.Relation); ok {
		return factStatements(m.store, bound)
	}
	var out []*kb.Statement
	for _, rel := range sortedRelations(m.store) {
		out = append(out, factStatements(m.store, rel)...)
	}
	return out
}

// tryBind checks the statement against the edge and binds any free
// variables. The returned closure reverts the new bindings.
func (m *matcher) tryBind(edge Edge, stm *kb.Statement) (func(), bool) {
	var newIdxs []int
	undo := func() {
		for _, idx := range newIdxs {
			if ent, ok := m.b[idx].(kb.Entity); ok {
				delete(m.used, ent.URI())
			}
			m.b[idx] = nil
		}
	}

	bindVar := func(idx int, val kb.Term) bool {
		if m.b[idx] != nil {
			return termMatches(m.b[idx], val)
		}
		if !m.admissible(idx, val) {
			return false
		}
		if ent, ok := val.(kb.Entity); ok {
			if _, taken := m.used[ent.URI()]; taken {
				return false
			}
			m.used[ent.URI()] = idx
		}
		m.b[idx] = val
		newIdxs = append(newIdxs, idx)
		return true
	}

	matchRef := func(r ref, val kb.Term) bool {
		if r.varIdx < 0 {
			return termMatches(r.fixed, val)
		}
		return bindVar(r.varIdx, val)
	}

	if edge.PredVar >= 0 {
		if !bindVar(edge.PredVar, stm.Predicate) {
			undo()
			return nil, false
		}
	}

	subjEnt, ok := stm.Subject.(kb.Entity)
	if !ok {
		undo()
		return nil, false
	}
	if !matchRef(edge.Subject, subjEnt) {
		undo()
		return nil, false
	}
	if !matchRef(edge.Object, stm.Object) {
		undo()
		return nil, false
	}
	return undo, true
}

// admissible checks variable kind and type constraints for a fresh
// binding.
func (m *matcher) admissible(idx int, val kb.Term) bool {
	v := m.pattern.Vars[idx]
	switch v.Kind {
	case VarRelation:
		_, ok := val.(*kb.Relation)
		return ok
	case VarLiteral:
		_, ok := val.(kb.Literal)
		return ok
	default:
		itm, ok := val.(*kb.Item)
		if !ok {
			return false
		}
		if v.Type == nil {
			return true
		}
		return m.store.IsInstanceOf(itm, v.Type)
	}
}

func (m *matcher) conditionsHold() (bool, error) {
	for _, c := range m.pattern.Conditions {
		args := make([]kb.Term, len(c.Args))
		for i, r := range c.Args {
			args[i] = m.resolve(r)
		}
		ok, err := c.Fn(m.store, args...)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (m *matcher) resolve(r ref) kb.Term {
	if r.varIdx >= 0 {
		return m.b[r.varIdx]
	}
	return r.fixed
}

func termMatches(a, b kb.Term) bool {
	switch x := a.(type) {
	case kb.Literal:
		y, ok := b.(kb.Literal)
		if !ok {
			return false
		}
		// an untagged pattern literal matches any language variant of
		// the same value
		if x.Lang == "" || y.Lang == "" {
			return x.Value == y.Value
		}
		return x.Equal(y)
	case kb.Entity:
		y, ok := b.(kb.Entity)
		return ok && x.URI() == y.URI()
	default:
		return false
	}
}
