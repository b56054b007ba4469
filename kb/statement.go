package kb

import "fmt"

// Role distinguishes a statement from its dual.
type Role int

const (
	RoleSubject Role = iota
	RoleObject
)

// Statement is a reified (subject, predicate, object) edge. When the
// object is an entity a dual statement with RoleObject is kept in the
// inverse index; the two share their qualifier list. A statement whose
// subject is another statement is a qualifier.
type Statement struct {
	store *Store

	uri     string
	short   string
	baseURI string

	Subject   Node
	Predicate *Relation
	Object    Term

	role       Role
	dual       *Statement
	qualifiers []*Statement
	scope      *Item
	unlinked   bool
}

func (s *Statement) URI() string      { return s.uri }
func (s *Statement) ShortKey() string { return s.short }
func (s *Statement) BaseURI() string  { return s.baseURI }
func (s *Statement) Role() Role       { return s.role }
func (s *Statement) IsUnlinked() bool { return s.unlinked }

// Dual returns the inverse-index twin, nil for literal objects.
func (s *Statement) Dual() *Statement { return s.dual }

// IsQualifier reports whether the subject is itself a statement.
func (s *Statement) IsQualifier() bool {
	_, ok := s.Subject.(*Statement)
	return ok
}

// ScopeItem returns the scope this statement was declared in, nil for
// ordinary facts.
func (s *Statement) ScopeItem() *Item { return s.scope }

// Qualifiers returns the reified annotations of this statement.
func (s *Statement) Qualifiers() []*Statement { return s.qualifiers }

// QualifierValue looks up the object of the first qualifier with the
// given predicate.
func (s *Statement) QualifierValue(rel *Relation) (Term, bool) {
	for _, q := range s.qualifiers {
		if q.unlinked {
			continue
		}
		if q.Predicate.URI() == rel.URI() {
			return q.Object, true
		}
	}
	return nil, false
}

// HasBoolQualifier reports a qualifier with predicate rel and literal
// value true.
func (s *Statement) HasBoolQualifier(rel *Relation) bool {
	if t, ok := s.QualifierValue(rel); ok {
		if lit, ok := t.(Literal); ok {
			if b, ok := lit.Value.(bool); ok {
				return b
			}
		}
	}
	return false
}

// Spelling is a human-readable rendering used in logs and errors.
func (s *Statement) Spelling() string {
	subj := s.Subject.URI()
	if e, ok := s.Subject.(Entity); ok {
		subj = e.ShortKey()
	}
	obj := fmt.Sprintf("%v", s.Object)
	if e, ok := s.Object.(Entity); ok {
		obj = e.ShortKey()
	}
	return fmt.Sprintf("(%s %s %s)", subj, s.Predicate.ShortKey(), obj)
}
