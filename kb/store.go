package kb

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"noetic/config"
	"noetic/logging"
	"noetic/registry"
)

// BuiltinsURI is the base URI of the bootstrap vocabulary.
const BuiltinsURI = "noetic:/builtins"

// BuiltinsPrefix is the registered prefix of the bootstrap vocabulary.
const BuiltinsPrefix = "bi"

// ConditionFunc is a predicate evaluated over bound rule variables.
type ConditionFunc func(s *Store, args ...Term) (bool, error)

// ConsequentFunc applies a programmatic consequence over bound rule
// variables and reports what it changed.
type ConsequentFunc func(s *Store, args ...Term) (*Changes, error)

// Changes records mutations produced by merge-style operations and
// consequent functions.
type Changes struct {
	NewStatements    []*Statement
	Replacements     [][2]Entity
	UnlinkedEntities []Entity
	NewEntities      []Entity
}

// Merge folds other into c.
func (c *Changes) Merge(other *Changes) {
	if other == nil {
		return
	}
	c.NewStatements = append(c.NewStatements, other.NewStatements...)
	c.Replacements = append(c.Replacements, other.Replacements...)
	c.UnlinkedEntities = append(c.UnlinkedEntities, other.UnlinkedEntities...)
	c.NewEntities = append(c.NewEntities, other.NewEntities...)
}

type namespaceRecord struct {
	entities   []string
	statements []*Statement
}

// Store is the in-memory fact base: entities, statements and their
// indexes, the namespace registry and URI stack, scope builders and
// the capability tables for rule condition/consequent functions.
//
// Store is not synchronized. Mutation requires a single writer;
// concurrent reads are safe only while no writer is active.
type Store struct {
	settings    *config.Settings
	reg         *registry.Registry
	builtinsURI string

	// V names the bootstrap vocabulary entities.
	V *Vocab

	items           map[string]*Item
	relations       map[string]*Relation
	statementsByURI map[string]*Statement

	// statements[subjectURI][predicateURI], inverse index by object.
	statements         map[string]map[string][]*Statement
	invStatements      map[string]map[string][]*Statement
	relationStatements map[string][]*Statement
	scopeStatements    map[string][]*Statement

	itemOrder []string

	nsRecords  map[string]*namespaceRecord
	uriStack   []string
	scopeStack []*Scope

	ruleVars map[string]map[string]*Item

	conditionFuncs  map[string]ConditionFunc
	consequentFuncs map[string]ConsequentFunc

	log *zap.SugaredLogger
}

// NewStore builds a store with the bootstrap vocabulary loaded. A nil
// settings argument selects config.Default().
func NewStore(settings *config.Settings) (*Store, error) {
	if settings == nil {
		settings = config.Default()
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	s := &Store{
		settings:           settings,
		reg:                registry.New(),
		builtinsURI:        BuiltinsURI,
		items:              make(map[string]*Item),
		relations:          make(map[string]*Relation),
		statementsByURI:    make(map[string]*Statement),
		statements:         make(map[string]map[string][]*Statement),
		invStatements:      make(map[string]map[string][]*Statement),
		relationStatements: make(map[string][]*Statement),
		scopeStatements:    make(map[string][]*Statement),
		nsRecords:          make(map[string]*namespaceRecord),
		ruleVars:           make(map[string]map[string]*Item),
		conditionFuncs:     make(map[string]ConditionFunc),
		consequentFuncs:    make(map[string]ConsequentFunc),
		log:                logging.L(logging.Store),
	}
	if err := s.RegisterNamespace(s.builtinsURI, BuiltinsPrefix); err != nil {
		return nil, err
	}
	if err := s.bootstrapVocab(); err != nil {
		return nil, err
	}
	return s, nil
}

// Settings returns the store's effective configuration.
func (s *Store) Settings() *config.Settings { return s.settings }

// Registry exposes the namespace registry.
func (s *Store) Registry() *registry.Registry { return s.reg }

// --- namespaces -----------------------------------------------------

// RegisterNamespace adds a namespace with its own key reservoir.
func (s *Store) RegisterNamespace(baseURI, prefix string) error {
	err := s.reg.Register(baseURI, prefix, s.settings.Keys.Min, s.settings.Keys.Max, s.settings.KeySeed)
	if err != nil {
		return err
	}
	s.nsRecords[baseURI] = &namespaceRecord{}
	return nil
}

// PushNamespace makes baseURI the active namespace.
func (s *Store) PushNamespace(baseURI string) error {
	if _, ok := s.nsRecords[baseURI]; !ok {
		return errors.Wrapf(ErrUnknownURI, "namespace %s not registered", baseURI)
	}
	s.uriStack = append(s.uriStack, baseURI)
	return nil
}

// PopNamespace deactivates the top namespace.
func (s *Store) PopNamespace() error {
	if len(s.uriStack) == 0 {
		return errors.Wrap(ErrEmptyURIStack, "pop")
	}
	s.uriStack = s.uriStack[:len(s.uriStack)-1]
	return nil
}

// ActiveNamespace returns the top of the URI stack.
func (s *Store) ActiveNamespace() (string, error) {
	if len(s.uriStack) == 0 {
		return "", ErrEmptyURIStack
	}
	return s.uriStack[len(s.uriStack)-1], nil
}

// InNamespace runs fn with baseURI active and always restores the
// stack afterwards. When fn fails, entities and statements created in
// the namespace during the call are discarded; their reservoir keys
// stay consumed.
func (s *Store) InNamespace(baseURI string, fn func() error) error {
	if err := s.PushNamespace(baseURI); err != nil {
		return err
	}
	rec := s.nsRecords[baseURI]
	entMark, stmMark := len(rec.entities), len(rec.statements)
	err := fn()
	_ = s.PopNamespace()
	if err != nil {
		s.rollbackNamespace(rec, entMark, stmMark)
	}
	return err
}

// rollbackNamespace unlinks everything recorded past the given
// high-water marks, newest entities first.
func (s *Store) rollbackNamespace(rec *namespaceRecord, entMark, stmMark int) {
	for _, stm := range rec.statements[stmMark:] {
		s.UnlinkStatement(stm)
	}
	for i := len(rec.entities) - 1; i >= entMark; i-- {
		if e, err := s.EntityByURI(rec.entities[i]); err == nil {
			s.UnlinkEntity(e)
		}
	}
	rec.statements = rec.statements[:stmMark]
	rec.entities = rec.entities[:entMark]
}

// UnloadNamespace removes every statement and entity created in the
// namespace and frees its reservoir and prefix. Unknown namespaces
// are a no-op.
func (s *Store) UnloadNamespace(baseURI string) {
	rec, ok := s.nsRecords[baseURI]
	if !ok {
		return
	}
	for _, stm := range rec.statements {
		s.UnlinkStatement(stm)
	}
	for i := len(rec.entities) - 1; i >= 0; i-- {
		if e, err := s.EntityByURI(rec.entities[i]); err == nil {
			s.UnlinkEntity(e)
		}
	}
	delete(s.nsRecords, baseURI)
	s.reg.Unregister(baseURI)
	s.log.Debugw("namespace unloaded", "base_uri", baseURI)
}

func (s *Store) popKey(tag string) (string, error) {
	base, err := s.ActiveNamespace()
	if err != nil {
		return "", err
	}
	mgr, ok := s.reg.Manager(base)
	if !ok {
		return "", errors.Wrapf(ErrUnknownURI, "no reservoir for %s", base)
	}
	k, err := mgr.Pop()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%d", tag, k), nil
}

// --- entity creation ------------------------------------------------

func (s *Store) registerEntity(base, short string) (entityBase, error) {
	uri := base + "#" + short
	if _, ok := s.items[uri]; ok {
		return entityBase{}, errors.Wrapf(ErrDuplicateKey, "%s", uri)
	}
	if _, ok := s.relations[uri]; ok {
		return entityBase{}, errors.Wrapf(ErrDuplicateKey, "%s", uri)
	}
	rec := s.nsRecords[base]
	rec.entities = append(rec.entities, uri)
	return entityBase{store: s, baseURI: base, short: short, uri: uri}, nil
}

func (s *Store) newItemShell(short string) (*Item, error) {
	base, err := s.ActiveNamespace()
	if err != nil {
		return nil, err
	}
	eb, err := s.registerEntity(base, short)
	if err != nil {
		return nil, err
	}
	itm := &Item{entityBase: eb}
	s.items[itm.uri] = itm
	s.itemOrder = append(s.itemOrder, itm.uri)
	return itm, nil
}

func (s *Store) newRelationShell(short string) (*Relation, error) {
	base, err := s.ActiveNamespace()
	if err != nil {
		return nil, err
	}
	eb, err := s.registerEntity(base, short)
	if err != nil {
		return nil, err
	}
	rel := &Relation{entityBase: eb}
	s.relations[rel.uri] = rel
	return rel, nil
}

// NewItem creates an item with an explicit short key ("I900") in the
// active namespace.
func (s *Store) NewItem(shortKey string, opts ...EntityOpt) (*Item, error) {
	k, err := parseKey(shortKey)
	if err != nil {
		return nil, err
	}
	if k.Prefix != "" || k.LabelTail != "" || (k.Tag != "I" && k.Tag != "Ia") {
		return nil, errors.Wrapf(ErrInvalidShortKey, "%q is not a plain item key", shortKey)
	}
	itm, err := s.newItemShell(k.Short())
	if err != nil {
		return nil, err
	}
	if err := s.applyOpts(itm, opts); err != nil {
		return nil, err
	}
	return itm, nil
}

// NewRelation creates a relation with an explicit short key ("R900").
func (s *Store) NewRelation(shortKey string, opts ...EntityOpt) (*Relation, error) {
	k, err := parseKey(shortKey)
	if err != nil {
		return nil, err
	}
	if k.Prefix != "" || k.LabelTail != "" || (k.Tag != "R" && k.Tag != "Ra") {
		return nil, errors.Wrapf(ErrInvalidShortKey, "%q is not a plain relation key", shortKey)
	}
	rel, err := s.newRelationShell(k.Short())
	if err != nil {
		return nil, err
	}
	if err := s.applyOpts(rel, opts); err != nil {
		return nil, err
	}
	return rel, nil
}

// NewAutoItem creates an item with a reservoir-assigned key ("Ia…").
func (s *Store) NewAutoItem(label string, opts ...EntityOpt) (*Item, error) {
	short, err := s.popKey("Ia")
	if err != nil {
		return nil, err
	}
	itm, err := s.newItemShell(short)
	if err != nil {
		return nil, err
	}
	if label != "" {
		opts = append([]EntityOpt{WithLabel(label)}, opts...)
	}
	if err := s.applyOpts(itm, opts); err != nil {
		return nil, err
	}
	return itm, nil
}

// NewAutoRelation creates a relation with a reservoir-assigned key
// ("Ra…").
func (s *Store) NewAutoRelation(label string, opts ...EntityOpt) (*Relation, error) {
	short, err := s.popKey("Ra")
	if err != nil {
		return nil, err
	}
	rel, err := s.newRelationShell(short)
	if err != nil {
		return nil, err
	}
	if label != "" {
		opts = append([]EntityOpt{WithLabel(label)}, opts...)
	}
	if err := s.applyOpts(rel, opts); err != nil {
		return nil, err
	}
	return rel, nil
}

// NewInstance creates an individual of cls. The class must allow
// instantiation.
func (s *Store) NewInstance(cls *Item, label string, opts ...EntityOpt) (*Item, error) {
	if !s.AllowsInstantiation(cls) {
		return nil, errors.Newf("kb: %s does not allow instantiation", cls)
	}
	opts = append(opts, IsA(cls))
	return s.NewAutoItem(label, opts...)
}

func (s *Store) applyOpts(e Entity, opts []EntityOpt) error {
	var spec entitySpec
	for _, o := range opts {
		o(&spec)
	}
	for _, l := range spec.labels {
		if l.Lang == "" {
			l.Lang = s.settings.DefaultLanguage
		}
		if _, err := s.Set(e, s.V.Label, l); err != nil {
			return err
		}
	}
	for _, d := range spec.descriptions {
		if d.Lang == "" {
			d.Lang = s.settings.DefaultLanguage
		}
		if _, err := s.Set(e, s.V.Description, d); err != nil {
			return err
		}
	}
	for _, cls := range spec.instanceOf {
		if _, err := s.Set(e, s.V.InstanceOf, cls); err != nil {
			return err
		}
	}
	for _, cls := range spec.subclassOf {
		if _, err := s.Set(e, s.V.SubclassOf, cls); err != nil {
			return err
		}
	}
	for _, rel := range spec.subpropertyOf {
		if _, err := s.Set(e, s.V.SubpropertyOf, rel); err != nil {
			return err
		}
	}
	if spec.inverseOf != nil {
		if _, err := s.Set(e, s.V.InverseOf, spec.inverseOf); err != nil {
			return err
		}
		if _, _, err := s.SetIfNew(spec.inverseOf, s.V.InverseOf, e); err != nil {
			return err
		}
	}
	flags := []struct {
		rel *Relation
		on  bool
	}{
		{s.V.Functional, spec.functional},
		{s.V.FunctionalForLang, spec.functionalForLang},
		{s.V.Symmetric, spec.symmetric},
		{s.V.Placeholder, spec.placeholder},
	}
	for _, f := range flags {
		if !f.on {
			continue
		}
		if _, err := s.Set(e, f.rel, Lit(true)); err != nil {
			return err
		}
	}
	return nil
}

// --- lookup ---------------------------------------------------------

// EntityByURI resolves a full URI to an item or relation.
func (s *Store) EntityByURI(uri string) (Entity, error) {
	if itm, ok := s.items[uri]; ok {
		return itm, nil
	}
	if rel, ok := s.relations[uri]; ok {
		return rel, nil
	}
	return nil, errors.Wrapf(ErrUnknownURI, "%s", uri)
}

// ItemByURI resolves a full URI to an item.
func (s *Store) ItemByURI(uri string) (*Item, error) {
	if itm, ok := s.items[uri]; ok {
		return itm, nil
	}
	return nil, errors.Wrapf(ErrUnknownURI, "%s", uri)
}

// RelationByURI resolves a full URI to a relation.
func (s *Store) RelationByURI(uri string) (*Relation, error) {
	if rel, ok := s.relations[uri]; ok {
		return rel, nil
	}
	return nil, errors.Wrapf(ErrUnknownURI, "%s", uri)
}

// StatementByURI resolves a statement URI.
func (s *Store) StatementByURI(uri string) (*Statement, error) {
	if stm, ok := s.statementsByURI[uri]; ok {
		return stm, nil
	}
	return nil, errors.Wrapf(ErrUnknownURI, "%s", uri)
}

// --- statement creation ---------------------------------------------

type setSpec struct {
	overwrite        bool
	preventDuplicate bool
	qualifiers       []Qualifier
	scope            *Scope
}

// SetOpt configures statement creation.
type SetOpt func(*setSpec)

// Overwrite unlinks an existing functional value before setting the
// new one.
func Overwrite() SetOpt {
	return func(sp *setSpec) { sp.overwrite = true }
}

// PreventDuplicate returns the existing statement instead of creating
// an identical one.
func PreventDuplicate() SetOpt {
	return func(sp *setSpec) { sp.preventDuplicate = true }
}

// WithQualifiers attaches reified annotations.
func WithQualifiers(quals ...Qualifier) SetOpt {
	return func(sp *setSpec) { sp.qualifiers = append(sp.qualifiers, quals...) }
}

func inScope(sc *Scope) SetOpt {
	return func(sp *setSpec) { sp.scope = sc }
}

// Set creates the statement (subj, pred, obj) in the active namespace.
func (s *Store) Set(subj Node, pred *Relation, obj Term, opts ...SetOpt) (*Statement, error) {
	stm, _, err := s.setStatement(subj, pred, obj, opts...)
	return stm, err
}

// SetIfNew creates the statement unless an identical one exists, and
// reports whether a new statement was created.
func (s *Store) SetIfNew(subj Node, pred *Relation, obj Term, opts ...SetOpt) (*Statement, bool, error) {
	opts = append(opts, PreventDuplicate())
	return s.setStatement(subj, pred, obj, opts...)
}

func (s *Store) setStatement(subj Node, pred *Relation, obj Term, opts ...SetOpt) (*Statement, bool, error) {
	if subj == nil || pred == nil || obj == nil {
		return nil, false, errors.New("kb: nil component in statement")
	}
	var sp setSpec
	for _, o := range opts {
		o(&sp)
	}

	if e, ok := subj.(Entity); ok && e.IsUnlinked() {
		return nil, false, errors.Newf("kb: subject %s is unlinked", e.URI())
	}
	if e, ok := obj.(Entity); ok && e.IsUnlinked() {
		return nil, false, errors.Newf("kb: object %s is unlinked", e.URI())
	}

	if sp.preventDuplicate {
		for _, existing := range s.Statements(subj, pred) {
			if termsEqual(existing.Object, obj) {
				return existing, false, nil
			}
		}
	}

	if err := s.checkFunctional(subj, pred, obj, &sp); err != nil {
		return nil, false, err
	}

	base, err := s.ActiveNamespace()
	if err != nil {
		return nil, false, err
	}

	tag := "S"
	if _, ok := subj.(*Statement); ok {
		tag = "Q"
	}
	short, err := s.popKey(tag)
	if err != nil {
		return nil, false, err
	}

	stm := &Statement{
		store:     s,
		uri:       base + "#" + short,
		short:     short,
		baseURI:   base,
		Subject:   subj,
		Predicate: pred,
		Object:    obj,
		role:      RoleSubject,
	}
	if sp.scope != nil {
		stm.scope = sp.scope.item
		s.scopeStatements[sp.scope.item.uri] = append(s.scopeStatements[sp.scope.item.uri], stm)
	}

	s.statementsByURI[stm.uri] = stm
	s.indexSubject(stm)
	s.relationStatements[pred.uri] = append(s.relationStatements[pred.uri], stm)
	s.nsRecords[base].statements = append(s.nsRecords[base].statements, stm)

	if objEnt, ok := obj.(Entity); ok {
		dualShort, err := s.popKey("S")
		if err != nil {
			return nil, false, err
		}
		dual := &Statement{
			store:     s,
			uri:       base + "#" + dualShort,
			short:     dualShort,
			baseURI:   base,
			Subject:   subj,
			Predicate: pred,
			Object:    obj,
			role:      RoleObject,
			scope:     stm.scope,
		}
		stm.dual = dual
		dual.dual = stm
		s.statementsByURI[dual.uri] = dual
		byRel, ok := s.invStatements[objEnt.URI()]
		if !ok {
			byRel = make(map[string][]*Statement)
			s.invStatements[objEnt.URI()] = byRel
		}
		byRel[pred.uri] = append(byRel[pred.uri], dual)
	}

	for _, q := range sp.qualifiers {
		if _, err := s.Set(stm, q.Rel, q.Obj); err != nil {
			return nil, false, err
		}
	}
	if stm.dual != nil {
		stm.dual.qualifiers = stm.qualifiers
	}
	return stm, true, nil
}

func (s *Store) indexSubject(stm *Statement) {
	subjURI := stm.Subject.URI()
	byRel, ok := s.statements[subjURI]
	if !ok {
		byRel = make(map[string][]*Statement)
		s.statements[subjURI] = byRel
	}
	byRel[stm.Predicate.uri] = append(byRel[stm.Predicate.uri], stm)

	if parent, ok := stm.Subject.(*Statement); ok {
		parent.qualifiers = append(parent.qualifiers, stm)
	}
}

func (s *Store) checkFunctional(subj Node, pred *Relation, obj Term, sp *setSpec) error {
	hasAltQualifier := func() bool {
		for _, q := range sp.qualifiers {
			if q.Rel.uri == s.V.AllowsAlternative.uri {
				if lit, ok := q.Obj.(Literal); ok {
					if b, ok := lit.Value.(bool); ok && b {
						return true
					}
				}
			}
		}
		return false
	}

	if pred.IsFunctional() {
		existing := s.Statements(subj, pred)
		if len(existing) == 0 {
			return nil
		}
		if sp.overwrite {
			for _, stm := range existing {
				s.UnlinkStatement(stm)
			}
			return nil
		}
		if hasAltQualifier() {
			return nil
		}
		return errors.Wrapf(ErrFunctionalRelation, "%s on %s (existing %s)",
			pred.short, subj.URI(), existing[0].Spelling())
	}

	if pred.IsFunctionalForLang() {
		lit, ok := obj.(Literal)
		if !ok {
			return errors.Newf("kb: %s requires a literal object, got %T", pred.short, obj)
		}
		lang := lit.Lang
		if lang == "" {
			lang = s.settings.DefaultLanguage
		}
		var sameLang []*Statement
		for _, stm := range s.Statements(subj, pred) {
			if prev, ok := stm.Object.(Literal); ok {
				prevLang := prev.Lang
				if prevLang == "" {
					prevLang = s.settings.DefaultLanguage
				}
				if prevLang == lang {
					sameLang = append(sameLang, stm)
				}
			}
		}
		if len(sameLang) == 0 {
			return nil
		}
		if sp.overwrite {
			for _, stm := range sameLang {
				s.UnlinkStatement(stm)
			}
			return nil
		}
		if hasAltQualifier() {
			return nil
		}
		return errors.Wrapf(ErrFunctionalRelation, "%s@%s on %s", pred.short, lang, subj.URI())
	}
	return nil
}

// --- queries --------------------------------------------------------

// Statements returns the live statements (subj, pred, *).
func (s *Store) Statements(subj Node, pred *Relation) []*Statement {
	var out []*Statement
	for _, stm := range s.statements[subj.URI()][pred.uri] {
		if !stm.unlinked {
			out = append(out, stm)
		}
	}
	return out
}

// AllStatementsOf returns every live statement with the given subject.
func (s *Store) AllStatementsOf(subj Node) []*Statement {
	var out []*Statement
	for _, stms := range s.statements[subj.URI()] {
		for _, stm := range stms {
			if !stm.unlinked {
				out = append(out, stm)
			}
		}
	}
	return out
}

// Objects returns the object terms of (subj, pred, *).
func (s *Store) Objects(subj Node, pred *Relation) []Term {
	stms := s.Statements(subj, pred)
	out := make([]Term, 0, len(stms))
	for _, stm := range stms {
		out = append(out, stm.Object)
	}
	return out
}

// One returns the single object of a functional spelling, or the
// first object otherwise.
func (s *Store) One(subj Node, pred *Relation) (Term, bool) {
	stms := s.Statements(subj, pred)
	if len(stms) == 0 {
		return nil, false
	}
	return stms[0].Object, true
}

// InverseStatements returns the dual statements (*, pred, obj).
func (s *Store) InverseStatements(obj Entity, pred *Relation) []*Statement {
	var out []*Statement
	for _, stm := range s.invStatements[obj.URI()][pred.uri] {
		if !stm.unlinked {
			out = append(out, stm)
		}
	}
	return out
}

// AllInverseStatementsOf returns every live dual with the given
// object.
func (s *Store) AllInverseStatementsOf(obj Entity) []*Statement {
	var out []*Statement
	for _, stms := range s.invStatements[obj.URI()] {
		for _, stm := range stms {
			if !stm.unlinked {
				out = append(out, stm)
			}
		}
	}
	return out
}

// Subjects returns the subject entities of (*, pred, obj).
func (s *Store) Subjects(pred *Relation, obj Term) []Entity {
	var out []Entity
	for _, stm := range s.relationStatements[pred.uri] {
		if stm.unlinked || !termsEqual(stm.Object, obj) {
			continue
		}
		if e, ok := stm.Subject.(Entity); ok {
			out = append(out, e)
		}
	}
	return out
}

// RelationStatements returns every live usage of pred.
func (s *Store) RelationStatements(pred *Relation) []*Statement {
	var out []*Statement
	for _, stm := range s.relationStatements[pred.uri] {
		if !stm.unlinked {
			out = append(out, stm)
		}
	}
	return out
}

// Relations returns every live relation, in no particular order.
func (s *Store) Relations() []*Relation {
	out := make([]*Relation, 0, len(s.relations))
	for _, rel := range s.relations {
		if !rel.unlinked {
			out = append(out, rel)
		}
	}
	return out
}

// --- unlinking ------------------------------------------------------

// UnlinkStatement removes a statement, its dual and its qualifiers
// from all indexes.
func (s *Store) UnlinkStatement(stm *Statement) {
	if stm == nil || stm.unlinked {
		return
	}
	stm.unlinked = true
	delete(s.statementsByURI, stm.uri)
	if stm.role == RoleSubject {
		s.dropFromSubjectIndex(stm)
		s.dropFromSlice(s.relationStatements, stm.Predicate.uri, stm)
	} else if objEnt, ok := stm.Object.(Entity); ok {
		if byRel, ok := s.invStatements[objEnt.URI()]; ok {
			byRel[stm.Predicate.uri] = removeStatement(byRel[stm.Predicate.uri], stm)
		}
	}
	if stm.dual != nil && !stm.dual.unlinked {
		s.UnlinkStatement(stm.dual)
	}
	for _, q := range stm.qualifiers {
		s.UnlinkStatement(q)
	}
}

func (s *Store) dropFromSubjectIndex(stm *Statement) {
	if byRel, ok := s.statements[stm.Subject.URI()]; ok {
		byRel[stm.Predicate.uri] = removeStatement(byRel[stm.Predicate.uri], stm)
	}
}

func (s *Store) dropFromSlice(index map[string][]*Statement, key string, stm *Statement) {
	index[key] = removeStatement(index[key], stm)
}

func removeStatement(stms []*Statement, target *Statement) []*Statement {
	for i, stm := range stms {
		if stm == target {
			return append(stms[:i:i], stms[i+1:]...)
		}
	}
	return stms
}

// UnlinkEntity removes an entity and every statement touching it.
func (s *Store) UnlinkEntity(e Entity) {
	for _, stm := range s.AllStatementsOf(e) {
		s.UnlinkStatement(stm)
	}
	for _, dual := range s.AllInverseStatementsOf(e) {
		s.UnlinkStatement(dual.dual)
	}
	if rel, ok := e.(*Relation); ok {
		for _, stm := range s.RelationStatements(rel) {
			s.UnlinkStatement(stm)
		}
		rel.unlinked = true
		delete(s.relations, rel.uri)
	}
	if itm, ok := e.(*Item); ok {
		itm.unlinked = true
		delete(s.items, itm.uri)
	}
	delete(s.statements, e.URI())
	delete(s.invStatements, e.URI())
	s.log.Debugw("entity unlinked", "uri", e.URI())
}

// predicatesSkippedOnMerge are spellings never carried from a merged
// entity onto its survivor: the survivor keeps its own identity.
func (s *Store) predicateSkippedOnMerge(pred *Relation) bool {
	switch pred.uri {
	case s.V.Label.uri, s.V.Description.uri, s.V.InstanceOf.uri, s.V.Placeholder.uri:
		return true
	}
	return false
}

// liveQualifiers captures a statement's qualifier spellings so they
// can be restated on a rewired statement.
func liveQualifiers(stm *Statement) []Qualifier {
	var out []Qualifier
	for _, q := range stm.qualifiers {
		if q.unlinked {
			continue
		}
		out = append(out, Qualifier{Rel: q.Predicate, Obj: q.Object})
	}
	return out
}

func (s *Store) isPlaceholder(t Term) bool {
	switch e := t.(type) {
	case *Item:
		return e.boolFlag(s.V.Placeholder)
	case *Relation:
		return e.boolFlag(s.V.Placeholder)
	}
	return false
}

// ReplaceAndUnlink rewires every statement of old onto new, carrying
// qualifiers, and unlinks old. Label, description, type and
// placeholder spellings are never carried. Conflicts on a functional
// predicate are resolved through the placeholder flag: a placeholder
// value gives way to a real one, and two real values are an error.
func (s *Store) ReplaceAndUnlink(old, new *Item) (*Changes, error) {
	if old.uri == new.uri {
		return &Changes{}, nil
	}
	ch := &Changes{}

	oldPlaceholder := old.boolFlag(s.V.Placeholder)
	newPlaceholder := new.boolFlag(s.V.Placeholder)

	subjStms := s.AllStatementsOf(old)
	objDuals := s.AllInverseStatementsOf(old)

	for _, stm := range subjStms {
		if stm.IsQualifier() || stm.scope != nil {
			continue
		}
		if s.predicateSkippedOnMerge(stm.Predicate) {
			continue
		}
		var opts []SetOpt
		if quals := liveQualifiers(stm); len(quals) > 0 {
			opts = append(opts, WithQualifiers(quals...))
		}

		if stm.Predicate.IsFunctional() {
			existing := s.Statements(new, stm.Predicate)
			if len(existing) == 1 && !termsEqual(existing[0].Object, stm.Object) {
				// placeholder values give way to real ones
				if s.isPlaceholder(stm.Object) {
					continue
				}
				if !s.isPlaceholder(existing[0].Object) {
					return nil, errors.Wrapf(ErrFunctionalRelation,
						"merge %s into %s: conflicting values %s and %s",
						old.short, new.short, existing[0].Spelling(), stm.Spelling())
				}
				created, err := s.Set(new, stm.Predicate, stm.Object, append(opts, Overwrite())...)
				if err != nil {
					return nil, err
				}
				ch.NewStatements = append(ch.NewStatements, created)
				continue
			}
		}
		created, isNew, err := s.SetIfNew(new, stm.Predicate, stm.Object, opts...)
		if err != nil {
			return nil, err
		}
		if isNew {
			ch.NewStatements = append(ch.NewStatements, created)
		}
	}
	for _, dual := range objDuals {
		primary := dual.dual
		if primary == nil || primary.unlinked || primary.scope != nil {
			continue
		}
		if primary.IsQualifier() {
			// old sits in qualifier-object position: repoint the
			// qualifier at the survivor
			parent, ok := primary.Subject.(*Statement)
			if !ok || parent.unlinked || parent.scope != nil {
				continue
			}
			s.UnlinkStatement(primary)
			if _, _, err := s.SetIfNew(parent, primary.Predicate, new); err != nil {
				return nil, err
			}
			continue
		}
		var opts []SetOpt
		if quals := liveQualifiers(primary); len(quals) > 0 {
			opts = append(opts, WithQualifiers(quals...))
		}
		s.UnlinkStatement(primary)
		created, isNew, err := s.SetIfNew(primary.Subject, primary.Predicate, new, opts...)
		if err != nil {
			return nil, err
		}
		if isNew {
			ch.NewStatements = append(ch.NewStatements, created)
		}
	}

	// the survivor stays a placeholder only if both sides were
	if newPlaceholder && !oldPlaceholder {
		for _, stm := range s.Statements(new, s.V.Placeholder) {
			s.UnlinkStatement(stm)
		}
	}

	s.UnlinkEntity(old)
	ch.Replacements = append(ch.Replacements, [2]Entity{old, new})
	ch.UnlinkedEntities = append(ch.UnlinkedEntities, old)
	s.log.Debugw("entity replaced", "old", old.URI(), "new", new.URI())
	return ch, nil
}

// --- rules support --------------------------------------------------

// NewRule creates an instance of the semantic rule class.
func (s *Store) NewRule(label string, opts ...EntityOpt) (*Item, error) {
	return s.NewInstance(s.V.SemanticRule, label, opts...)
}

// AllRules returns every semantic rule item in creation order.
func (s *Store) AllRules() []*Item {
	var out []*Item
	for _, uri := range s.itemOrder {
		itm, ok := s.items[uri]
		if !ok || itm.unlinked {
			continue
		}
		if s.IsInstanceOf(itm, s.V.SemanticRule) {
			out = append(out, itm)
		}
	}
	return out
}

// ConditionFor looks up the registered condition function of an
// anchor item.
func (s *Store) ConditionFor(anchor *Item) (ConditionFunc, bool) {
	fn, ok := s.conditionFuncs[anchor.uri]
	return fn, ok
}

// ConsequentFor looks up the registered consequent function of an
// anchor item.
func (s *Store) ConsequentFor(anchor *Item) (ConsequentFunc, bool) {
	fn, ok := s.consequentFuncs[anchor.uri]
	return fn, ok
}

// ScopeStatements returns the statements declared inside a scope.
func (s *Store) ScopeStatements(scopeItem *Item) []*Statement {
	var out []*Statement
	for _, stm := range s.scopeStatements[scopeItem.uri] {
		if !stm.unlinked {
			out = append(out, stm)
		}
	}
	return out
}

// IsScopeBound reports whether the entity was declared inside a rule
// scope (carries a defining-scope spelling).
func (s *Store) IsScopeBound(e Entity) bool {
	return len(s.Statements(e, s.V.DefiningScope)) > 0
}
