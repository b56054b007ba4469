package rules

import (
	"github.com/cockroachdb/errors"

	"noetic/kb"
)

// ErrRuleCompilation is returned when a rule's scopes cannot be
// compiled into a matchable pattern.
var ErrRuleCompilation = errors.New("rule compilation failed")

// VarKind classifies rule variables by what they may bind.
type VarKind int

const (
	VarItem VarKind = iota
	VarRelation
	VarLiteral
)

// Variable is one declared rule variable.
type Variable struct {
	Item *kb.Item
	Name string
	Kind VarKind

	// Type constrains item variables to transitive instances of a
	// class; nil means unconstrained.
	Type *kb.Item
}

// ref points either at a variable (by index) or at a fixed term.
type ref struct {
	varIdx int
	fixed  kb.Term
}

func fixedRef(t kb.Term) ref { return ref{varIdx: -1, fixed: t} }

// Edge is one premise or assertion edge. PredVar >= 0 marks a
// wildcard edge whose predicate is a bound relation variable.
type Edge struct {
	Subject ref
	Pred    *kb.Relation
	PredVar int
	Object  ref
}

// Condition is a registered condition function with its argument
// references.
type Condition struct {
	Anchor *kb.Item
	Fn     kb.ConditionFunc
	Args   []ref
}

// ConsequentCall is a registered consequent function call.
type ConsequentCall struct {
	Anchor *kb.Item
	Fn     kb.ConsequentFunc
	Args   []ref
}

// Pattern is the compiled form of a rule.
type Pattern struct {
	Rule *kb.Item

	Vars        []Variable
	Edges       []Edge
	Conditions  []Condition
	AssertEdges []Edge
	Consequents []ConsequentCall

	varIndex  map[string]int
	externals map[string]bool
}

// Compile walks the rule's scopes and builds the pattern.
func (e *Engine) Compile(rule *kb.Item) (*Pattern, error) {
	s := e.store
	v := s.V

	premScope, err := s.ScopeOf(rule, kb.ScopePremises)
	if err != nil {
		return nil, errors.Wrapf(ErrRuleCompilation, "%s has no premises scope", rule.ShortKey())
	}
	assertScope, err := s.ScopeOf(rule, kb.ScopeAssertions)
	if err != nil {
		return nil, errors.Wrapf(ErrRuleCompilation, "%s has no assertions scope", rule.ShortKey())
	}
	settingScope, _ := s.ScopeOf(rule, kb.ScopeSetting)

	p := &Pattern{
		Rule:      rule,
		varIndex:  map[string]int{},
		externals: map[string]bool{},
	}

	scopes := []*kb.Item{}
	if settingScope != nil {
		scopes = append(scopes, settingScope)
	}
	scopes = append(scopes, premScope, assertScope)

	for _, scope := range scopes {
		for _, stm := range s.ScopeStatements(scope) {
			if stm.Predicate.URI() == v.UsesExternal.URI() {
				if ent, ok := stm.Object.(kb.Entity); ok {
					p.externals[ent.URI()] = true
				}
			}
		}
	}

	for _, scope := range scopes {
		if err := p.collectVars(s, scope); err != nil {
			return nil, err
		}
	}

	if err := p.collectPremises(s, premScope); err != nil {
		return nil, err
	}
	if err := p.collectAssertions(s, assertScope); err != nil {
		return nil, err
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Pattern) collectVars(s *kb.Store, scope *kb.Item) error {
	v := s.V
	for _, stm := range s.ScopeStatements(scope) {
		if stm.Predicate.URI() != v.DefiningScope.URI() {
			continue
		}
		item, ok := stm.Subject.(*kb.Item)
		if !ok {
			continue
		}
		// anchor items for condition/consequent functions are not
		// variables
		if _, isCond := s.ConditionFor(item); isCond {
			continue
		}
		if _, isCons := s.ConsequentFor(item); isCons {
			continue
		}
		if _, dup := p.varIndex[item.URI()]; dup {
			continue
		}

		variable := Variable{Item: item, Kind: VarItem}
		if t, ok := s.One(item, v.NameInScope); ok {
			if lit, ok := t.(kb.Literal); ok {
				if name, ok := lit.Value.(string); ok {
					variable.Name = name
				}
			}
		}
		if t, ok := s.One(item, v.PrototypeMode); ok {
			if lit, ok := t.(kb.Literal); ok {
				switch lit.Value {
				case int64(1):
					variable.Kind = VarRelation
				case int64(3):
					variable.Kind = VarLiteral
				}
			}
		}
		if variable.Kind == VarItem {
			if t, ok := s.One(item, v.InstanceOf); ok {
				if cls, ok := t.(*kb.Item); ok {
					switch cls.URI() {
					case v.GeneralItem.URI(), v.GeneralEntity.URI():
						// unconstrained
					default:
						variable.Type = cls
					}
				}
			}
		}

		p.varIndex[item.URI()] = len(p.Vars)
		p.Vars = append(p.Vars, variable)
	}
	return nil
}

func (p *Pattern) refFor(t kb.Term) ref {
	if ent, ok := t.(kb.Entity); ok {
		if idx, ok := p.varIndex[ent.URI()]; ok && !p.externals[ent.URI()] {
			return ref{varIdx: idx}
		}
	}
	return fixedRef(t)
}

func (p *Pattern) subjectRef(n kb.Node) (ref, error) {
	ent, ok := n.(kb.Entity)
	if !ok {
		return ref{}, errors.Wrapf(ErrRuleCompilation, "statement subject in pattern edge")
	}
	return p.refFor(ent), nil
}

func (p *Pattern) proxyVar(stm *kb.Statement, s *kb.Store) (int, error) {
	t, ok := stm.QualifierValue(s.V.ProxyItem)
	if !ok {
		return -1, errors.Wrapf(ErrRuleCompilation, "wildcard edge %s has no proxy variable", stm.Spelling())
	}
	ent, ok := t.(kb.Entity)
	if !ok {
		return -1, errors.Wrapf(ErrRuleCompilation, "wildcard proxy of %s is not an entity", stm.Spelling())
	}
	idx, ok := p.varIndex[ent.URI()]
	if !ok {
		return -1, errors.Wrapf(ErrRuleCompilation, "wildcard proxy %s is not a declared variable", ent.ShortKey())
	}
	if p.Vars[idx].Kind != VarRelation {
		return -1, errors.Wrapf(ErrRuleCompilation, "wildcard proxy %s is not a relation variable", ent.ShortKey())
	}
	return idx, nil
}

func (p *Pattern) collectPremises(s *kb.Store, scope *kb.Item) error {
	v := s.V
	conds := map[string]*Condition{}

	for _, stm := range s.ScopeStatements(scope) {
		switch stm.Predicate.URI() {
		case v.DefiningScope.URI(), v.NameInScope.URI(), v.UsesExternal.URI():
			continue
		case v.InstanceOf.URI():
			// an instance-of edge on a variable is its type
			// constraint, collected from the variable itself
			if ent, ok := stm.Subject.(kb.Entity); ok {
				if _, isVar := p.varIndex[ent.URI()]; isVar {
					continue
				}
			}
		case v.HasArgument.URI():
			anchor, ok := stm.Subject.(*kb.Item)
			if !ok {
				continue
			}
			fn, isCond := s.ConditionFor(anchor)
			if !isCond {
				return errors.Wrapf(ErrRuleCompilation, "anchor %s has no registered condition", anchor.ShortKey())
			}
			ent, ok := stm.Object.(kb.Entity)
			if !ok {
				return errors.Wrapf(ErrRuleCompilation, "condition argument of %s is not an entity", anchor.ShortKey())
			}
			argRef := p.refFor(ent)
			if argRef.varIdx < 0 && !p.externals[ent.URI()] {
				return errors.Wrapf(ErrRuleCompilation, "condition argument %s is not a declared variable", ent.ShortKey())
			}
			c, ok := conds[anchor.URI()]
			if !ok {
				c = &Condition{Anchor: anchor, Fn: fn}
				conds[anchor.URI()] = c
			}
			c.Args = append(c.Args, argRef)
			continue
		case v.WildcardRelation.URI():
			predVar, err := p.proxyVar(stm, s)
			if err != nil {
				return err
			}
			subj, err := p.subjectRef(stm.Subject)
			if err != nil {
				return err
			}
			p.Edges = append(p.Edges, Edge{Subject: subj, PredVar: predVar, Object: p.refFor(stm.Object)})
			continue
		}

		subj, err := p.subjectRef(stm.Subject)
		if err != nil {
			return err
		}
		p.Edges = append(p.Edges, Edge{Subject: subj, Pred: stm.Predicate, PredVar: -1, Object: p.refFor(stm.Object)})
	}

	// conditions in anchor encounter order
	var finalized []Condition
	seen := map[string]bool{}
	for _, stm := range s.ScopeStatements(scope) {
		if stm.Predicate.URI() != s.V.HasArgument.URI() {
			continue
		}
		anchor, ok := stm.Subject.(*kb.Item)
		if !ok || seen[anchor.URI()] {
			continue
		}
		if c, ok := conds[anchor.URI()]; ok {
			seen[anchor.URI()] = true
			finalized = append(finalized, *c)
		}
	}
	p.Conditions = finalized
	return nil
}

func (p *Pattern) collectAssertions(s *kb.Store, scope *kb.Item) error {
	v := s.V
	calls := map[string]*ConsequentCall{}

	for _, stm := range s.ScopeStatements(scope) {
		switch stm.Predicate.URI() {
		case v.DefiningScope.URI(), v.NameInScope.URI(), v.UsesExternal.URI():
			continue
		case v.HasArgument.URI():
			anchor, ok := stm.Subject.(*kb.Item)
			if !ok {
				continue
			}
			fn, isCons := s.ConsequentFor(anchor)
			if !isCons {
				return errors.Wrapf(ErrRuleCompilation, "anchor %s has no registered consequent", anchor.ShortKey())
			}
			c, ok := calls[anchor.URI()]
			if !ok {
				c = &ConsequentCall{Anchor: anchor, Fn: fn}
				calls[anchor.URI()] = c
			}
			c.Args = append(c.Args, p.refFor(stm.Object))
			continue
		case v.WildcardRelation.URI():
			predVar, err := p.proxyVar(stm, s)
			if err != nil {
				return err
			}
			subj, err := p.subjectRef(stm.Subject)
			if err != nil {
				return err
			}
			p.AssertEdges = append(p.AssertEdges, Edge{Subject: subj, PredVar: predVar, Object: p.refFor(stm.Object)})
			continue
		}

		subj, err := p.subjectRef(stm.Subject)
		if err != nil {
			return err
		}
		p.AssertEdges = append(p.AssertEdges, Edge{Subject: subj, Pred: stm.Predicate, PredVar: -1, Object: p.refFor(stm.Object)})
	}

	seen := map[string]bool{}
	for _, stm := range s.ScopeStatements(scope) {
		if stm.Predicate.URI() != s.V.HasArgument.URI() {
			continue
		}
		anchor, ok := stm.Subject.(*kb.Item)
		if !ok || seen[anchor.URI()] {
			continue
		}
		if c, ok := calls[anchor.URI()]; ok {
			seen[anchor.URI()] = true
			p.Consequents = append(p.Consequents, *c)
		}
	}
	return nil
}

// validate checks that every variable used in conditions and
// consequences is bound by at least one premise edge, and that
// literal variables never stand in subject position.
func (p *Pattern) validate() error {
	bound := make([]bool, len(p.Vars))
	for _, e := range p.Edges {
		if e.Subject.varIdx >= 0 {
			if p.Vars[e.Subject.varIdx].Kind == VarLiteral {
				return errors.Wrapf(ErrRuleCompilation, "literal variable %q in subject position", p.Vars[e.Subject.varIdx].Name)
			}
			bound[e.Subject.varIdx] = true
		}
		if e.Object.varIdx >= 0 {
			bound[e.Object.varIdx] = true
		}
		if e.PredVar >= 0 {
			bound[e.PredVar] = true
		}
	}
	check := func(r ref, where string) error {
		if r.varIdx >= 0 && !bound[r.varIdx] {
			return errors.Wrapf(ErrRuleCompilation, "variable %q in %s is never bound by a premise", p.Vars[r.varIdx].Name, where)
		}
		return nil
	}
	for _, c := range p.Conditions {
		for _, a := range c.Args {
			if err := check(a, "condition"); err != nil {
				return err
			}
		}
	}
	for _, e := range p.AssertEdges {
		if err := check(e.Subject, "assertion"); err != nil {
			return err
		}
		if err := check(e.Object, "assertion"); err != nil {
			return err
		}
		if e.PredVar >= 0 && !bound[e.PredVar] {
			return errors.Wrapf(ErrRuleCompilation, "relation variable %q in assertion is never bound", p.Vars[e.PredVar].Name)
		}
	}
	for _, c := range p.Consequents {
		for _, a := range c.Args {
			if err := check(a, "consequent"); err != nil {
				return err
			}
		}
	}
	return nil
}
