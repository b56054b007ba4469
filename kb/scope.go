package kb

import (
	"github.com/cockroachdb/errors"

	"noetic/logging"
)

// ScopeKind distinguishes the three scopes of a semantic rule.
type ScopeKind string

const (
	ScopeSetting    ScopeKind = "setting"
	ScopePremises   ScopeKind = "premises"
	ScopeAssertions ScopeKind = "assertions"
)

func validScopeKind(k ScopeKind) bool {
	switch k {
	case ScopeSetting, ScopePremises, ScopeAssertions:
		return true
	}
	return false
}

// Scope is a builder for the statements belonging to one scope of a
// rule (or theorem-like item). Statements declared through a scope
// are tagged to it and never become part of the fact graph the rule
// engine matches against.
type Scope struct {
	store *Store
	owner *Item
	item  *Item
	kind  ScopeKind
	open  bool
}

// Item returns the reified scope item.
func (sc *Scope) Item() *Item { return sc.item }

// Kind returns the scope kind.
func (sc *Scope) Kind() ScopeKind { return sc.kind }

// OpenScope creates and activates a scope of the given kind on owner.
// Each owner has at most one scope per kind.
func (s *Store) OpenScope(owner *Item, kind ScopeKind) (*Scope, error) {
	if owner == nil {
		return nil, errors.Wrap(ErrInvalidScope, "nil owner")
	}
	if !validScopeKind(kind) {
		return nil, errors.Wrapf(ErrInvalidScope, "unknown kind %q", kind)
	}
	if existing, _ := s.ScopeOf(owner, kind); existing != nil {
		return nil, errors.Wrapf(ErrInvalidScope, "%s already has a %s scope", owner.short, kind)
	}

	item, err := s.NewInstance(s.V.ScopeClass, string(kind)+" scope")
	if err != nil {
		return nil, err
	}
	if _, err := s.Set(item, s.V.ScopeOf, owner); err != nil {
		return nil, err
	}
	if _, err := s.Set(item, s.V.ScopeKind, Lit(string(kind))); err != nil {
		return nil, err
	}

	sc := &Scope{store: s, owner: owner, item: item, kind: kind, open: true}
	s.scopeStack = append(s.scopeStack, sc)
	logging.L(logging.Scope).Debugw("scope opened", "owner", owner.ShortKey(), "kind", kind)
	return sc, nil
}

// ScopeOf finds the scope item of the given kind attached to owner.
func (s *Store) ScopeOf(owner *Item, kind ScopeKind) (*Item, error) {
	for _, dual := range s.InverseStatements(owner, s.V.ScopeOf) {
		scopeItem, ok := dual.Subject.(*Item)
		if !ok {
			continue
		}
		if t, ok := s.One(scopeItem, s.V.ScopeKind); ok {
			if lit, ok := t.(Literal); ok && lit.Value == string(kind) {
				return scopeItem, nil
			}
		}
	}
	return nil, errors.Wrapf(ErrUnknownURI, "no %s scope on %s", kind, owner.URI())
}

// Close deactivates the scope. It must be the innermost open scope.
func (sc *Scope) Close() error {
	s := sc.store
	if !sc.open {
		return errors.Wrap(ErrInvalidScope, "scope already closed")
	}
	if len(s.scopeStack) == 0 || s.scopeStack[len(s.scopeStack)-1] != sc {
		return errors.Wrap(ErrInvalidScope, "scope is not innermost")
	}
	s.scopeStack = s.scopeStack[:len(s.scopeStack)-1]
	sc.open = false
	return nil
}

// forceClose pops the scope regardless of nesting, for teardown
// paths.
func (sc *Scope) forceClose() {
	s := sc.store
	for i := len(s.scopeStack) - 1; i >= 0; i-- {
		if s.scopeStack[i] == sc {
			s.scopeStack = append(s.scopeStack[:i], s.scopeStack[i+1:]...)
			break
		}
	}
	sc.open = false
}

// Scoped opens a scope, runs fn and guarantees the scope stack is
// restored even when fn fails.
func (s *Store) Scoped(owner *Item, kind ScopeKind, fn func(*Scope) error) error {
	sc, err := s.OpenScope(owner, kind)
	if err != nil {
		return err
	}
	defer sc.forceClose()
	return fn(sc)
}

func (sc *Scope) ensureOpen() error {
	if !sc.open {
		return errors.Wrap(ErrInvalidScope, "scope is closed")
	}
	return nil
}

func (sc *Scope) declareVar(v *Item, name string) error {
	s := sc.store
	vars, ok := s.ruleVars[sc.owner.uri]
	if !ok {
		vars = make(map[string]*Item)
		s.ruleVars[sc.owner.uri] = vars
	}
	if _, dup := vars[name]; dup {
		return errors.Wrapf(ErrInvalidScope, "variable %q already declared for %s", name, sc.owner.short)
	}
	if _, err := s.Set(v, s.V.DefiningScope, sc.item, inScope(sc)); err != nil {
		return err
	}
	if _, err := s.Set(v, s.V.NameInScope, Lit(name), inScope(sc)); err != nil {
		return err
	}
	vars[name] = v
	return nil
}

// NewVar declares an item-valued rule variable. proto is the initial
// type constraint; nil means the general item class.
func (sc *Scope) NewVar(name string, proto *Item) (*Item, error) {
	if err := sc.ensureOpen(); err != nil {
		return nil, err
	}
	if proto == nil {
		proto = sc.store.V.GeneralItem
	}
	v, err := sc.store.NewInstance(proto, name)
	if err != nil {
		return nil, err
	}
	if err := sc.declareVar(v, name); err != nil {
		return nil, err
	}
	return v, nil
}

// NewRelVar declares a relation-valued rule variable, usable as the
// proxy of wildcard premise edges.
func (sc *Scope) NewRelVar(name string) (*Item, error) {
	if err := sc.ensureOpen(); err != nil {
		return nil, err
	}
	v, err := sc.store.NewInstance(sc.store.V.GeneralRelation, name)
	if err != nil {
		return nil, err
	}
	if _, err := sc.store.Set(v, sc.store.V.PrototypeMode, Lit(int64(1))); err != nil {
		return nil, err
	}
	if err := sc.declareVar(v, name); err != nil {
		return nil, err
	}
	return v, nil
}

// NewLiteralVar declares a variable standing for a literal value.
func (sc *Scope) NewLiteralVar(name string) (*Item, error) {
	if err := sc.ensureOpen(); err != nil {
		return nil, err
	}
	v, err := sc.store.NewInstance(sc.store.V.VariableLiteral, name)
	if err != nil {
		return nil, err
	}
	if _, err := sc.store.Set(v, sc.store.V.PrototypeMode, Lit(int64(3))); err != nil {
		return nil, err
	}
	if err := sc.declareVar(v, name); err != nil {
		return nil, err
	}
	return v, nil
}

// Var returns a variable declared earlier in any scope of the same
// owner.
func (sc *Scope) Var(name string) (*Item, bool) {
	v, ok := sc.store.ruleVars[sc.owner.uri][name]
	return v, ok
}

// NewStatement declares a scope-tagged statement. In a premises scope
// this is a pattern edge; in an assertions scope, a consequence
// template.
func (sc *Scope) NewStatement(subj Node, pred *Relation, obj Term, opts ...SetOpt) (*Statement, error) {
	if err := sc.ensureOpen(); err != nil {
		return nil, err
	}
	opts = append(opts, inScope(sc))
	return sc.store.Set(subj, pred, obj, opts...)
}

// NewWildcard declares an edge whose predicate is the relation
// variable relVar rather than a fixed relation.
func (sc *Scope) NewWildcard(subj *Item, relVar *Item, obj Term, opts ...SetOpt) (*Statement, error) {
	if err := sc.ensureOpen(); err != nil {
		return nil, err
	}
	opts = append(opts,
		WithQualifiers(Qualifier{Rel: sc.store.V.ProxyItem, Obj: relVar}),
		inScope(sc),
	)
	return sc.store.Set(subj, sc.store.V.WildcardRelation, obj, opts...)
}

// NewCondition registers a condition function over declared
// variables. The function is anchored by a dedicated item carrying
// has-argument edges in declaration order.
func (sc *Scope) NewCondition(fn ConditionFunc, args ...*Item) error {
	if err := sc.ensureOpen(); err != nil {
		return err
	}
	if fn == nil {
		return errors.Wrap(ErrInvalidScope, "nil condition function")
	}
	anchor, err := sc.store.NewInstance(sc.store.V.AnchorItem, "condition")
	if err != nil {
		return err
	}
	if _, err := sc.store.Set(anchor, sc.store.V.DefiningScope, sc.item, inScope(sc)); err != nil {
		return err
	}
	sc.store.conditionFuncs[anchor.uri] = fn
	for _, arg := range args {
		if arg == nil {
			return errors.Wrap(ErrInvalidScope, "nil condition argument")
		}
		if _, err := sc.store.Set(anchor, sc.store.V.HasArgument, arg, inScope(sc)); err != nil {
			return err
		}
	}
	return nil
}

// NewConsequentFunc registers a programmatic consequence over bound
// variables and fixed terms.
func (sc *Scope) NewConsequentFunc(fn ConsequentFunc, args ...Term) error {
	if err := sc.ensureOpen(); err != nil {
		return err
	}
	if fn == nil {
		return errors.Wrap(ErrInvalidScope, "nil consequent function")
	}
	anchor, err := sc.store.NewInstance(sc.store.V.AnchorItem, "consequent")
	if err != nil {
		return err
	}
	if _, err := sc.store.Set(anchor, sc.store.V.DefiningScope, sc.item, inScope(sc)); err != nil {
		return err
	}
	sc.store.consequentFuncs[anchor.uri] = fn
	for _, arg := range args {
		if arg == nil {
			return errors.Wrap(ErrInvalidScope, "nil consequent argument")
		}
		opts := []SetOpt{
			WithQualifiers(Qualifier{Rel: sc.store.V.PrototypeMode, Obj: Lit(int64(4))}),
			inScope(sc),
		}
		if _, err := sc.store.Set(anchor, sc.store.V.HasArgument, arg, opts...); err != nil {
			return err
		}
	}
	return nil
}

// UsesExternal exempts fixed entities from variable treatment inside
// the rule.
func (sc *Scope) UsesExternal(entities ...Entity) error {
	if err := sc.ensureOpen(); err != nil {
		return err
	}
	for _, e := range entities {
		if _, err := sc.store.Set(sc.item, sc.store.V.UsesExternal, e, inScope(sc)); err != nil {
			return err
		}
	}
	return nil
}

// NewEquation declares a scope-tagged equation item.
func (sc *Scope) NewEquation(lhs, rhs Term) (*Item, error) {
	if err := sc.ensureOpen(); err != nil {
		return nil, err
	}
	eq, err := sc.store.NewInstance(sc.store.V.EquationClass, "equation")
	if err != nil {
		return nil, err
	}
	if _, err := sc.store.Set(eq, sc.store.V.LHS, lhs, inScope(sc)); err != nil {
		return nil, err
	}
	if _, err := sc.store.Set(eq, sc.store.V.RHS, rhs, inScope(sc)); err != nil {
		return nil, err
	}
	return eq, nil
}
