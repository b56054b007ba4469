package kb

// Entity is the common surface of items and relations.
type Entity interface {
	Term
	Node
	ShortKey() string
	BaseURI() string
	Label(lang string) string
	IsUnlinked() bool
}

type entityBase struct {
	store    *Store
	baseURI  string
	short    string
	uri      string
	unlinked bool
}

func (e *entityBase) isTerm() {}

func (e *entityBase) URI() string      { return e.uri }
func (e *entityBase) ShortKey() string { return e.short }
func (e *entityBase) BaseURI() string  { return e.baseURI }
func (e *entityBase) IsUnlinked() bool { return e.unlinked }

// Label returns the entity's label for the given language, falling
// back to the store's default language, or "" when no label is set.
func (e *entityBase) Label(lang string) string {
	if lang == "" {
		lang = e.store.settings.DefaultLanguage
	}
	for _, stm := range e.store.Statements(e, e.store.V.Label) {
		lit, ok := stm.Object.(Literal)
		if !ok {
			continue
		}
		if lit.Lang == lang || lit.Lang == "" {
			if s, ok := lit.Value.(string); ok {
				return s
			}
		}
	}
	return ""
}

// Description returns the entity's description for the given language.
func (e *entityBase) Description(lang string) string {
	if lang == "" {
		lang = e.store.settings.DefaultLanguage
	}
	for _, stm := range e.store.Statements(e, e.store.V.Description) {
		lit, ok := stm.Object.(Literal)
		if !ok {
			continue
		}
		if lit.Lang == lang || lit.Lang == "" {
			if s, ok := lit.Value.(string); ok {
				return s
			}
		}
	}
	return ""
}

func (e *entityBase) boolFlag(rel *Relation) bool {
	for _, stm := range e.store.Statements(e, rel) {
		if lit, ok := stm.Object.(Literal); ok {
			if b, ok := lit.Value.(bool); ok && b {
				return true
			}
		}
	}
	return false
}

// Item is an entity in subject or object position: individuals,
// classes, metaclasses, scopes, rules, tuples.
type Item struct {
	entityBase
}

func (i *Item) String() string { return i.short + "[" + i.Label("") + "]" }

// Relation is an entity usable in predicate position.
type Relation struct {
	entityBase
}

func (r *Relation) String() string { return r.short + "[" + r.Label("") + "]" }

// IsFunctional reports whether the relation admits at most one value
// per subject.
func (r *Relation) IsFunctional() bool { return r.boolFlag(r.store.V.Functional) }

// IsFunctionalForLang reports whether the relation admits at most one
// value per subject and literal language.
func (r *Relation) IsFunctionalForLang() bool { return r.boolFlag(r.store.V.FunctionalForLang) }

// IsSymmetric reports the symmetry flag.
func (r *Relation) IsSymmetric() bool { return r.boolFlag(r.store.V.Symmetric) }

// Inverse returns the registered inverse relation, if any.
func (r *Relation) Inverse() (*Relation, bool) {
	if t, ok := r.store.One(r, r.store.V.InverseOf); ok {
		if inv, ok := t.(*Relation); ok {
			return inv, true
		}
	}
	return nil, false
}

// entitySpec collects creation options before they are applied as
// statements.
type entitySpec struct {
	labels            []Literal
	descriptions      []Literal
	instanceOf        []*Item
	subclassOf        []*Item
	subpropertyOf     []*Relation
	inverseOf         *Relation
	functional        bool
	functionalForLang bool
	symmetric         bool
	placeholder       bool
}

// EntityOpt configures entity creation.
type EntityOpt func(*entitySpec)

// WithLabel attaches a label in the store's default language.
func WithLabel(s string) EntityOpt {
	return func(es *entitySpec) { es.labels = append(es.labels, Literal{Value: s}) }
}

// WithLangLabel attaches a label in an explicit language.
func WithLangLabel(s, lang string) EntityOpt {
	return func(es *entitySpec) { es.labels = append(es.labels, Text(s, lang)) }
}

// WithDescription attaches a description in the default language.
func WithDescription(s string) EntityOpt {
	return func(es *entitySpec) { es.descriptions = append(es.descriptions, Literal{Value: s}) }
}

// IsA declares class membership (instance-of).
func IsA(cls *Item) EntityOpt {
	return func(es *entitySpec) { es.instanceOf = append(es.instanceOf, cls) }
}

// SubclassOf declares a superclass.
func SubclassOf(cls *Item) EntityOpt {
	return func(es *entitySpec) { es.subclassOf = append(es.subclassOf, cls) }
}

// SubpropertyOf declares a more general relation.
func SubpropertyOf(rel *Relation) EntityOpt {
	return func(es *entitySpec) { es.subpropertyOf = append(es.subpropertyOf, rel) }
}

// InverseOf registers the inverse relation.
func InverseOf(rel *Relation) EntityOpt {
	return func(es *entitySpec) { es.inverseOf = rel }
}

// Functional marks a relation as single-valued per subject.
func Functional() EntityOpt {
	return func(es *entitySpec) { es.functional = true }
}

// FunctionalForLang marks a relation as single-valued per subject and
// literal language.
func FunctionalForLang() EntityOpt {
	return func(es *entitySpec) { es.functionalForLang = true }
}

// Symmetric marks a relation as symmetric.
func Symmetric() EntityOpt {
	return func(es *entitySpec) { es.symmetric = true }
}

// Placeholder marks an item as a placeholder to be merged away later.
func Placeholder() EntityOpt {
	return func(es *entitySpec) { es.placeholder = true }
}
