package rules

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"noetic/kb"
)

func newTestEngine(t *testing.T) (*Engine, *kb.Store) {
	t.Helper()
	s, err := kb.NewStore(nil)
	require.NoError(t, err)
	base := "noetic:/test/" + uuid.NewString()
	require.NoError(t, s.RegisterNamespace(base, "tst"))
	require.NoError(t, s.PushNamespace(base))
	return New(s), s
}

// buildRule declares setting, premises and assertions through one
// callback per scope.
func buildRule(t *testing.T, s *kb.Store, label string,
	setting, premises, assertions func(sc *kb.Scope) error) *kb.Item {
	t.Helper()
	rule, err := s.NewRule(label)
	require.NoError(t, err)
	if setting != nil {
		require.NoError(t, s.Scoped(rule, kb.ScopeSetting, setting))
	}
	if premises != nil {
		require.NoError(t, s.Scoped(rule, kb.ScopePremises, premises))
	}
	if assertions != nil {
		require.NoError(t, s.Scoped(rule, kb.ScopeAssertions, assertions))
	}
	return rule
}

func TestApplyRequiresActiveNamespace(t *testing.T) {
	e, s := newTestEngine(t)

	rule := buildRule(t, s, "noop rule",
		nil,
		func(sc *kb.Scope) error {
			_, err := sc.NewVar("x", nil)
			return err
		},
		func(sc *kb.Scope) error { return nil },
	)

	require.NoError(t, s.PopNamespace())
	_, err := e.Apply(rule)
	assert.ErrorIs(t, err, kb.ErrEmptyURIStack)
}

func TestCompileErrors(t *testing.T) {
	e, s := newTestEngine(t)

	// no premises scope at all
	bare, err := s.NewRule("bare rule")
	require.NoError(t, err)
	_, err = e.Compile(bare)
	assert.ErrorIs(t, err, ErrRuleCompilation)

	// condition argument that is not a declared variable
	stray, err := s.NewAutoItem("stray")
	require.NoError(t, err)
	link, err := s.NewRelation("R900", kb.WithLabel("links to"))
	require.NoError(t, err)

	rule := buildRule(t, s, "bad condition rule",
		nil,
		func(sc *kb.Scope) error {
			x, err := sc.NewVar("x", nil)
			if err != nil {
				return err
			}
			if _, err := sc.NewStatement(x, link, stray); err != nil {
				return err
			}
			return sc.NewCondition(LabelsDiffer, x, stray)
		},
		func(sc *kb.Scope) error { return nil },
	)
	_, err = e.Compile(rule)
	assert.ErrorIs(t, err, ErrRuleCompilation)
}

func TestSimpleEdgeRule(t *testing.T) {
	e, s := newTestEngine(t)

	ancestor, err := s.NewRelation("R901", kb.WithLabel("is ancestor of"))
	require.NoError(t, err)
	descendant, err := s.NewRelation("R902", kb.WithLabel("is descendant of"))
	require.NoError(t, err)

	a, err := s.NewAutoItem("a")
	require.NoError(t, err)
	b, err := s.NewAutoItem("b")
	require.NoError(t, err)
	c, err := s.NewAutoItem("c")
	require.NoError(t, err)
	_, err = s.Set(a, ancestor, b)
	require.NoError(t, err)
	_, err = s.Set(b, ancestor, c)
	require.NoError(t, err)

	rule := buildRule(t, s, "invert ancestor",
		func(sc *kb.Scope) error {
			if _, err := sc.NewVar("x", nil); err != nil {
				return err
			}
			_, err := sc.NewVar("y", nil)
			return err
		},
		func(sc *kb.Scope) error {
			x, _ := sc.Var("x")
			y, _ := sc.Var("y")
			_, err := sc.NewStatement(x, ancestor, y)
			return err
		},
		func(sc *kb.Scope) error {
			x, _ := sc.Var("x")
			y, _ := sc.Var("y")
			_, err := sc.NewStatement(y, descendant, x)
			return err
		},
	)

	res, err := e.Apply(rule)
	require.NoError(t, err)
	require.Len(t, res.Partial, 1)
	assert.Equal(t, 2, res.Partial[0].Matches)
	assert.Len(t, res.NewStatements, 2)
	assert.Len(t, res.RelMap[descendant.URI()], 2)

	assert.Len(t, s.Statements(b, descendant), 1)
	assert.Len(t, s.Statements(c, descendant), 1)

	// reapplying derives nothing new
	res, err = e.Apply(rule)
	require.NoError(t, err)
	assert.Empty(t, res.NewStatements)
}

func TestTypeConstraintViaOverwrite(t *testing.T) {
	e, s := newTestEngine(t)

	person, err := s.NewItem("I910", kb.WithLabel("person"), kb.IsA(s.V.Metaclass))
	require.NoError(t, err)
	student, err := s.NewItem("I911", kb.WithLabel("student"), kb.SubclassOf(person), kb.IsA(s.V.Metaclass))
	require.NoError(t, err)
	dog, err := s.NewItem("I912", kb.WithLabel("dog"), kb.IsA(s.V.Metaclass))
	require.NoError(t, err)

	livesIn, err := s.NewRelation("R910", kb.WithLabel("lives in"))
	require.NoError(t, err)
	hosts, err := s.NewRelation("R911", kb.WithLabel("hosts"))
	require.NoError(t, err)

	city, err := s.NewAutoItem("the city")
	require.NoError(t, err)
	alice, err := s.NewInstance(student, "alice")
	require.NoError(t, err)
	rex, err := s.NewInstance(dog, "rex")
	require.NoError(t, err)
	_, err = s.Set(alice, livesIn, city)
	require.NoError(t, err)
	_, err = s.Set(rex, livesIn, city)
	require.NoError(t, err)

	rule := buildRule(t, s, "cities host persons",
		func(sc *kb.Scope) error {
			if _, err := sc.NewVar("x", nil); err != nil {
				return err
			}
			_, err := sc.NewVar("c", nil)
			return err
		},
		func(sc *kb.Scope) error {
			x, _ := sc.Var("x")
			c, _ := sc.Var("c")
			// narrow the variable's type from general item to person
			if _, err := sc.NewStatement(x, s.V.InstanceOf, person, kb.Overwrite()); err != nil {
				return err
			}
			_, err := sc.NewStatement(x, livesIn, c)
			return err
		},
		func(sc *kb.Scope) error {
			x, _ := sc.Var("x")
			c, _ := sc.Var("c")
			_, err := sc.NewStatement(c, hosts, x)
			return err
		},
	)

	res, err := e.Apply(rule)
	require.NoError(t, err)
	// alice is a person through the subclass chain, rex is not
	assert.Equal(t, 1, res.Partial[0].Matches)
	stms := s.Statements(city, hosts)
	require.Len(t, stms, 1)
	assert.Equal(t, alice.URI(), stms[0].Object.(kb.Entity).URI())
}

func TestConditionFunc(t *testing.T) {
	e, s := newTestEngine(t)

	hasParent, err := s.NewRelation("R920", kb.WithLabel("has parent"))
	require.NoError(t, err)
	adopted, err := s.NewRelation("R921", kb.WithLabel("is adopted"))
	require.NoError(t, err)
	hasChild, err := s.NewRelation("R922", kb.WithLabel("has child"))
	require.NoError(t, err)

	kid1, err := s.NewAutoItem("kid one")
	require.NoError(t, err)
	kid2, err := s.NewAutoItem("kid two")
	require.NoError(t, err)
	parent, err := s.NewAutoItem("parent")
	require.NoError(t, err)
	_, err = s.Set(kid1, hasParent, parent)
	require.NoError(t, err)
	_, err = s.Set(kid2, hasParent, parent)
	require.NoError(t, err)
	_, err = s.Set(kid2, adopted, kb.Lit(true))
	require.NoError(t, err)

	rule := buildRule(t, s, "children of non-adopted kind",
		func(sc *kb.Scope) error {
			if _, err := sc.NewVar("x", nil); err != nil {
				return err
			}
			_, err := sc.NewVar("p", nil)
			return err
		},
		func(sc *kb.Scope) error {
			x, _ := sc.Var("x")
			p, _ := sc.Var("p")
			if _, err := sc.NewStatement(x, hasParent, p); err != nil {
				return err
			}
			return sc.NewCondition(DoesNotHaveRelation(adopted), x)
		},
		func(sc *kb.Scope) error {
			x, _ := sc.Var("x")
			p, _ := sc.Var("p")
			_, err := sc.NewStatement(p, hasChild, x)
			return err
		},
	)

	res, err := e.Apply(rule)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Partial[0].Matches)
	stms := s.Statements(parent, hasChild)
	require.Len(t, stms, 1)
	assert.Equal(t, kid1.URI(), stms[0].Object.(kb.Entity).URI())
}

func TestSymmetryViaReverseStatements(t *testing.T) {
	e, s := newTestEngine(t)

	borders, err := s.NewRelation("R930", kb.WithLabel("borders"), kb.Symmetric())
	require.NoError(t, err)
	oneway, err := s.NewRelation("R931", kb.WithLabel("flows into"))
	require.NoError(t, err)

	a, err := s.NewAutoItem("a")
	require.NoError(t, err)
	b, err := s.NewAutoItem("b")
	require.NoError(t, err)
	_, err = s.Set(a, borders, b)
	require.NoError(t, err)
	_, err = s.Set(a, oneway, b)
	require.NoError(t, err)

	rule := buildRule(t, s, "close symmetric relations",
		func(sc *kb.Scope) error {
			_, err := sc.NewRelVar("rel1")
			return err
		},
		func(sc *kb.Scope) error {
			rel1, _ := sc.Var("rel1")
			_, err := sc.NewStatement(rel1, s.V.Symmetric, kb.Lit(true))
			return err
		},
		func(sc *kb.Scope) error {
			rel1, _ := sc.Var("rel1")
			return sc.NewConsequentFunc(ReverseStatements, rel1)
		},
	)

	res, err := e.Apply(rule)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Partial[0].Matches)
	assert.Len(t, res.NewStatements, 1)

	assert.Len(t, s.Statements(b, borders), 1)
	assert.Empty(t, s.Statements(b, oneway))

	// idempotent on reapplication
	res, err = e.Apply(rule)
	require.NoError(t, err)
	assert.Empty(t, res.NewStatements)
}

func TestSubpropertyViaCopyStatements(t *testing.T) {
	e, s := newTestEngine(t)

	moves, err := s.NewRelation("R940", kb.WithLabel("moves"))
	require.NoError(t, err)
	runs, err := s.NewRelation("R941", kb.WithLabel("runs"), kb.SubpropertyOf(moves))
	require.NoError(t, err)

	cat, err := s.NewAutoItem("cat")
	require.NoError(t, err)
	fast, err := s.NewAutoItem("fast")
	require.NoError(t, err)
	_, err = s.Set(cat, runs, fast)
	require.NoError(t, err)

	rule := buildRule(t, s, "propagate subproperties",
		func(sc *kb.Scope) error {
			if _, err := sc.NewRelVar("sub"); err != nil {
				return err
			}
			_, err := sc.NewRelVar("sup")
			return err
		},
		func(sc *kb.Scope) error {
			sub, _ := sc.Var("sub")
			sup, _ := sc.Var("sup")
			_, err := sc.NewStatement(sub, s.V.SubpropertyOf, sup)
			return err
		},
		func(sc *kb.Scope) error {
			sub, _ := sc.Var("sub")
			sup, _ := sc.Var("sup")
			return sc.NewConsequentFunc(CopyStatements, sub, sup)
		},
	)

	res, err := e.Apply(rule)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Partial[0].Matches)

	stms := s.Statements(cat, moves)
	require.Len(t, stms, 1)
	assert.Equal(t, fast.URI(), stms[0].Object.(kb.Entity).URI())
}

func TestWildcardRelationVariable(t *testing.T) {
	e, s := newTestEngine(t)

	marker, err := s.NewRelation("R950", kb.WithLabel("is reciprocal activity"))
	require.NoError(t, err)
	greets, err := s.NewRelation("R951", kb.WithLabel("greets"))
	require.NoError(t, err)
	sees, err := s.NewRelation("R952", kb.WithLabel("sees"))
	require.NoError(t, err)
	_, err = s.Set(greets, marker, kb.Lit(true))
	require.NoError(t, err)

	a, err := s.NewAutoItem("a")
	require.NoError(t, err)
	b, err := s.NewAutoItem("b")
	require.NoError(t, err)
	_, err = s.Set(a, greets, b)
	require.NoError(t, err)
	_, err = s.Set(a, sees, b)
	require.NoError(t, err)

	rule := buildRule(t, s, "reciprocate flagged activities",
		func(sc *kb.Scope) error {
			if _, err := sc.NewVar("itm1", nil); err != nil {
				return err
			}
			if _, err := sc.NewVar("itm2", nil); err != nil {
				return err
			}
			_, err := sc.NewRelVar("rel1")
			return err
		},
		func(sc *kb.Scope) error {
			itm1, _ := sc.Var("itm1")
			itm2, _ := sc.Var("itm2")
			rel1, _ := sc.Var("rel1")
			if _, err := sc.NewStatement(rel1, marker, kb.Lit(true)); err != nil {
				return err
			}
			_, err := sc.NewWildcard(itm1, rel1, itm2)
			return err
		},
		func(sc *kb.Scope) error {
			itm1, _ := sc.Var("itm1")
			itm2, _ := sc.Var("itm2")
			rel1, _ := sc.Var("rel1")
			_, err := sc.NewWildcard(itm2, rel1, itm1)
			return err
		},
	)

	res, err := e.Apply(rule)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Partial[0].Matches)

	// greets is flagged and reciprocated, sees is not
	assert.Len(t, s.Statements(b, greets), 1)
	assert.Empty(t, s.Statements(b, sees))
}

func TestLiteralVariable(t *testing.T) {
	e, s := newTestEngine(t)

	hasCode, err := s.NewRelation("R960", kb.WithLabel("has code"))
	require.NoError(t, err)
	coded, err := s.NewRelation("R961", kb.WithLabel("is coded"))
	require.NoError(t, err)

	a, err := s.NewAutoItem("a")
	require.NoError(t, err)
	b, err := s.NewAutoItem("b")
	require.NoError(t, err)
	_, err = s.Set(a, hasCode, kb.Lit("z1"))
	require.NoError(t, err)

	rule := buildRule(t, s, "flag coded items",
		func(sc *kb.Scope) error {
			if _, err := sc.NewVar("x", nil); err != nil {
				return err
			}
			_, err := sc.NewLiteralVar("val")
			return err
		},
		func(sc *kb.Scope) error {
			x, _ := sc.Var("x")
			val, _ := sc.Var("val")
			_, err := sc.NewStatement(x, hasCode, val)
			return err
		},
		func(sc *kb.Scope) error {
			x, _ := sc.Var("x")
			_, err := sc.NewStatement(x, coded, kb.Lit(true))
			return err
		},
	)

	res, err := e.Apply(rule)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Partial[0].Matches)
	assert.Len(t, s.Statements(a, coded), 1)
	assert.Empty(t, s.Statements(b, coded))
}

func TestMergeViaReplaceEntities(t *testing.T) {
	e, s := newTestEngine(t)

	cls, err := s.NewItem("I970", kb.WithLabel("thing"), kb.IsA(s.V.Metaclass))
	require.NoError(t, err)
	knows, err := s.NewRelation("R970", kb.WithLabel("knows"))
	require.NoError(t, err)

	ghost, err := s.NewInstance(cls, "ghost", kb.Placeholder())
	require.NoError(t, err)
	proper, err := s.NewInstance(cls, "proper")
	require.NoError(t, err)
	witness, err := s.NewAutoItem("witness")
	require.NoError(t, err)
	_, err = s.Set(witness, knows, ghost)
	require.NoError(t, err)
	_, err = s.Set(ghost, s.V.SameAs, proper)
	require.NoError(t, err)

	rule := buildRule(t, s, "merge same-as pairs",
		func(sc *kb.Scope) error {
			if _, err := sc.NewVar("x", nil); err != nil {
				return err
			}
			_, err := sc.NewVar("y", nil)
			return err
		},
		func(sc *kb.Scope) error {
			x, _ := sc.Var("x")
			y, _ := sc.Var("y")
			_, err := sc.NewStatement(x, s.V.SameAs, y)
			return err
		},
		func(sc *kb.Scope) error {
			x, _ := sc.Var("x")
			y, _ := sc.Var("y")
			return sc.NewConsequentFunc(ReplaceEntities, x, y)
		},
	)

	res, err := e.Apply(rule)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Partial[0].Matches)
	require.Len(t, res.Replacements, 1)
	assert.Equal(t, ghost.URI(), res.Replacements[0][0].URI())
	require.Len(t, res.UnlinkedEntities, 1)

	assert.True(t, ghost.IsUnlinked())
	stms := s.Statements(witness, knows)
	require.Len(t, stms, 1)
	assert.Equal(t, proper.URI(), stms[0].Object.(kb.Entity).URI())
}

func TestNoSelfMatch(t *testing.T) {
	e, s := newTestEngine(t)

	rare, err := s.NewRelation("R980", kb.WithLabel("rarely used"))
	require.NoError(t, err)

	// the only (x, rare, y) statement in the store is the rule's own
	// premise pattern
	rule := buildRule(t, s, "self match probe",
		func(sc *kb.Scope) error {
			if _, err := sc.NewVar("x", nil); err != nil {
				return err
			}
			_, err := sc.NewVar("y", nil)
			return err
		},
		func(sc *kb.Scope) error {
			x, _ := sc.Var("x")
			y, _ := sc.Var("y")
			_, err := sc.NewStatement(x, rare, y)
			return err
		},
		func(sc *kb.Scope) error {
			x, _ := sc.Var("x")
			y, _ := sc.Var("y")
			_, err := sc.NewStatement(y, rare, x)
			return err
		},
	)

	res, err := e.Apply(rule)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Partial[0].Matches)
	assert.Empty(t, res.NewStatements)
}

func TestTransitiveClosureFixpoint(t *testing.T) {
	e, s := newTestEngine(t)

	precedes, err := s.NewRelation("R990", kb.WithLabel("precedes"))
	require.NoError(t, err)

	items := make([]*kb.Item, 4)
	for i := range items {
		itm, err := s.NewAutoItem(string(rune('a' + i)))
		require.NoError(t, err)
		items[i] = itm
	}
	for i := 0; i < 3; i++ {
		_, err = s.Set(items[i], precedes, items[i+1])
		require.NoError(t, err)
	}

	buildRule(t, s, "transitivity",
		func(sc *kb.Scope) error {
			for _, n := range []string{"x", "y", "z"} {
				if _, err := sc.NewVar(n, nil); err != nil {
					return err
				}
			}
			return nil
		},
		func(sc *kb.Scope) error {
			x, _ := sc.Var("x")
			y, _ := sc.Var("y")
			z, _ := sc.Var("z")
			if _, err := sc.NewStatement(x, precedes, y); err != nil {
				return err
			}
			_, err := sc.NewStatement(y, precedes, z)
			return err
		},
		func(sc *kb.Scope) error {
			x, _ := sc.Var("x")
			z, _ := sc.Var("z")
			_, err := sc.NewStatement(x, precedes, z)
			return err
		},
	)

	res, err := e.ApplyUntilFixpoint()
	require.NoError(t, err)
	// closure over a chain of four adds (a,c), (b,d), (a,d)
	assert.Len(t, res.NewStatements, 3)
	assert.GreaterOrEqual(t, res.Passes, 2)

	// the fixpoint is stable
	res, err = e.ApplyUntilFixpoint()
	require.NoError(t, err)
	assert.Empty(t, res.NewStatements)
	assert.Equal(t, 1, res.Passes)
}

func TestDeterministicMatchOrder(t *testing.T) {
	run := func() []string {
		e, s := newTestEngine(t)
		likes, err := s.NewRelation("R995", kb.WithLabel("likes"))
		require.NoError(t, err)
		liked, err := s.NewRelation("R996", kb.WithLabel("is liked by"))
		require.NoError(t, err)

		names := []string{"mira", "odin", "pax", "quil"}
		people := map[string]*kb.Item{}
		for _, n := range names {
			itm, err := s.NewAutoItem(n)
			require.NoError(t, err)
			people[n] = itm
		}
		for i, n := range names {
			_, err := s.Set(people[n], likes, people[names[(i+1)%len(names)]])
			require.NoError(t, err)
		}

		rule := buildRule(t, s, "invert likes",
			func(sc *kb.Scope) error {
				if _, err := sc.NewVar("x", nil); err != nil {
					return err
				}
				_, err := sc.NewVar("y", nil)
				return err
			},
			func(sc *kb.Scope) error {
				x, _ := sc.Var("x")
				y, _ := sc.Var("y")
				_, err := sc.NewStatement(x, likes, y)
				return err
			},
			func(sc *kb.Scope) error {
				x, _ := sc.Var("x")
				y, _ := sc.Var("y")
				_, err := sc.NewStatement(y, liked, x)
				return err
			},
		)

		res, err := e.Apply(rule)
		require.NoError(t, err)
		out := make([]string, 0, len(res.NewStatements))
		for _, stm := range res.NewStatements {
			out = append(out, stm.Spelling())
		}
		return out
	}

	first := run()
	second := run()
	require.Len(t, first, 4)
	assert.Empty(t, cmp.Diff(first, second))
}

func TestApplyAllRunsRulesInCreationOrder(t *testing.T) {
	e, s := newTestEngine(t)

	step1, err := s.NewRelation("R997", kb.WithLabel("step one"))
	require.NoError(t, err)
	step2, err := s.NewRelation("R998", kb.WithLabel("step two"))
	require.NoError(t, err)
	seed, err := s.NewRelation("R999", kb.WithLabel("seed"))
	require.NoError(t, err)

	a, err := s.NewAutoItem("a")
	require.NoError(t, err)
	b, err := s.NewAutoItem("b")
	require.NoError(t, err)
	_, err = s.Set(a, seed, b)
	require.NoError(t, err)

	mkRule := func(label string, from, to *kb.Relation) *kb.Item {
		return buildRule(t, s, label,
			func(sc *kb.Scope) error {
				if _, err := sc.NewVar("x", nil); err != nil {
					return err
				}
				_, err := sc.NewVar("y", nil)
				return err
			},
			func(sc *kb.Scope) error {
				x, _ := sc.Var("x")
				y, _ := sc.Var("y")
				_, err := sc.NewStatement(x, from, y)
				return err
			},
			func(sc *kb.Scope) error {
				x, _ := sc.Var("x")
				y, _ := sc.Var("y")
				_, err := sc.NewStatement(x, to, y)
				return err
			},
		)
	}
	first := mkRule("seed to one", seed, step1)
	second := mkRule("one to two", step1, step2)
	assert.Equal(t, []*kb.Item{first, second}, s.AllRules())

	// a single ordered pass chains the two rules
	res, err := e.ApplyAll()
	require.NoError(t, err)
	assert.Len(t, res.NewStatements, 2)
	assert.Len(t, s.Statements(a, step2), 1)
}
