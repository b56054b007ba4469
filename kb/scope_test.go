package kb

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAndCloseScope(t *testing.T) {
	s, _ := newTestStore(t)

	rule, err := s.NewRule("test rule")
	require.NoError(t, err)

	sc, err := s.OpenScope(rule, ScopePremises)
	require.NoError(t, err)
	assert.True(t, s.IsInstanceOf(sc.Item(), s.V.ScopeClass))

	found, err := s.ScopeOf(rule, ScopePremises)
	require.NoError(t, err)
	assert.Equal(t, sc.Item().URI(), found.URI())

	_, err = s.ScopeOf(rule, ScopeAssertions)
	assert.ErrorIs(t, err, ErrUnknownURI)

	// one scope per kind
	_, err = s.OpenScope(rule, ScopePremises)
	assert.ErrorIs(t, err, ErrInvalidScope)

	require.NoError(t, sc.Close())
	assert.ErrorIs(t, sc.Close(), ErrInvalidScope)

	// a closed scope rejects declarations
	_, err = sc.NewVar("x", nil)
	assert.ErrorIs(t, err, ErrInvalidScope)
}

func TestScopeNesting(t *testing.T) {
	s, _ := newTestStore(t)

	rule, err := s.NewRule("test rule")
	require.NoError(t, err)

	outer, err := s.OpenScope(rule, ScopeSetting)
	require.NoError(t, err)
	inner, err := s.OpenScope(rule, ScopePremises)
	require.NoError(t, err)

	// outer is not innermost
	assert.ErrorIs(t, outer.Close(), ErrInvalidScope)
	require.NoError(t, inner.Close())
	require.NoError(t, outer.Close())
}

func TestScopedTeardownOnError(t *testing.T) {
	s, _ := newTestStore(t)

	rule, err := s.NewRule("test rule")
	require.NoError(t, err)

	boom := fmt.Errorf("boom")
	err = s.Scoped(rule, ScopePremises, func(sc *Scope) error {
		_, err := sc.NewVar("x", nil)
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	// the scope stack is clean: a fresh scope on another rule works
	rule2, err := s.NewRule("second rule")
	require.NoError(t, err)
	err = s.Scoped(rule2, ScopePremises, func(sc *Scope) error { return nil })
	assert.NoError(t, err)
}

func TestScopeVariables(t *testing.T) {
	s, _ := newTestStore(t)

	rule, err := s.NewRule("test rule")
	require.NoError(t, err)

	err = s.Scoped(rule, ScopeSetting, func(sc *Scope) error {
		x, err := sc.NewVar("x", nil)
		require.NoError(t, err)

		// variables are scope-bound and carry their name
		assert.True(t, s.IsScopeBound(x))
		name, ok := s.One(x, s.V.NameInScope)
		require.True(t, ok)
		assert.Equal(t, Lit("x"), name)

		// duplicate names are rejected
		_, err = sc.NewVar("x", nil)
		assert.ErrorIs(t, err, ErrInvalidScope)

		got, ok := sc.Var("x")
		require.True(t, ok)
		assert.Equal(t, x.URI(), got.URI())

		rel1, err := sc.NewRelVar("rel1")
		require.NoError(t, err)
		assert.True(t, s.IsInstanceOf(rel1, s.V.GeneralRelation))

		lv, err := sc.NewLiteralVar("val")
		require.NoError(t, err)
		assert.True(t, s.IsInstanceOf(lv, s.V.VariableLiteral))
		return nil
	})
	require.NoError(t, err)
}

func TestScopeStatementsAreTagged(t *testing.T) {
	s, _ := newTestStore(t)

	knows, err := s.NewRelation("R730", WithLabel("knows"))
	require.NoError(t, err)
	rule, err := s.NewRule("test rule")
	require.NoError(t, err)

	var premises *Item
	err = s.Scoped(rule, ScopePremises, func(sc *Scope) error {
		premises = sc.Item()
		x, err := sc.NewVar("x", nil)
		require.NoError(t, err)
		y, err := sc.NewVar("y", nil)
		require.NoError(t, err)
		stm, err := sc.NewStatement(x, knows, y)
		require.NoError(t, err)
		assert.Equal(t, premises.URI(), stm.ScopeItem().URI())
		return nil
	})
	require.NoError(t, err)

	stms := s.ScopeStatements(premises)
	assert.NotEmpty(t, stms)
}
