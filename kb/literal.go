package kb

import "fmt"

// Term is anything that can stand in object position of a statement:
// an Entity or a Literal.
type Term interface {
	isTerm()
}

// Node is anything that can stand in subject position: an Entity or,
// for qualifiers, a *Statement.
type Node interface {
	URI() string
}

// Literal is an immutable scalar value, optionally language-tagged.
// Value is one of string, bool, int64 or float64.
type Literal struct {
	Value any
	Lang  string
}

func (Literal) isTerm() {}

// Lit wraps a scalar value as an untagged Literal. Integer and float
// widths are normalized so equality behaves by value.
func Lit(v any) Literal {
	switch x := v.(type) {
	case int:
		return Literal{Value: int64(x)}
	case int32:
		return Literal{Value: int64(x)}
	case int64:
		return Literal{Value: x}
	case float32:
		return Literal{Value: float64(x)}
	case float64:
		return Literal{Value: x}
	case string:
		return Literal{Value: x}
	case bool:
		return Literal{Value: x}
	default:
		panic(fmt.Sprintf("kb: unsupported literal type %T", v))
	}
}

// Text builds a language-tagged string literal.
func Text(s, lang string) Literal {
	return Literal{Value: s, Lang: lang}
}

// Equal reports value-and-language equality.
func (l Literal) Equal(other Literal) bool {
	return l.Value == other.Value && l.Lang == other.Lang
}

func (l Literal) String() string {
	if l.Lang != "" {
		return fmt.Sprintf("%v@%s", l.Value, l.Lang)
	}
	return fmt.Sprintf("%v", l.Value)
}

// Qualifier is a raw annotation attached at statement creation. It is
// reified into a statement whose subject is the annotated statement.
type Qualifier struct {
	Rel *Relation
	Obj Term
}

// termsEqual compares two terms: entities by URI, literals by value.
func termsEqual(a, b Term) bool {
	switch x := a.(type) {
	case Literal:
		y, ok := b.(Literal)
		return ok && x.Equal(y)
	case Entity:
		y, ok := b.(Entity)
		return ok && x.URI() == y.URI()
	default:
		return false
	}
}
