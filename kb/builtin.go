package kb

// Vocab names the bootstrap vocabulary. Short keys follow the
// established numbering of the knowledge model so that key strings in
// serialized form stay stable.
type Vocab struct {
	Label             *Relation // R1
	Description       *Relation // R2
	SubclassOf        *Relation // R3
	InstanceOf        *Relation // R4
	SubpropertyOf     *Relation // R17
	DefiningScope     *Relation // R20
	ScopeOf           *Relation // R21
	Functional        *Relation // R22
	NameInScope       *Relation // R23
	LHS               *Relation // R26
	RHS               *Relation // R27
	HasArgument       *Relation // R29
	FunctionalForLang *Relation // R32
	ProxyItem         *Relation // R34
	HasLength         *Relation // R38
	HasElement        *Relation // R39
	HasIndex          *Relation // R40
	Symmetric         *Relation // R42
	SameAs            *Relation // R47
	MatchedByRule     *Relation // R54
	UsesExternal      *Relation // R55
	Placeholder       *Relation // R57
	WildcardRelation  *Relation // R58
	PrototypeMode     *Relation // R59
	ScopeKind         *Relation // R64
	AllowsAlternative *Relation // R65
	InverseOf         *Relation // R68

	GeneralItem     *Item // I1
	Metaclass       *Item // I2
	ScopeClass      *Item // I16
	EquationClass   *Item // I23
	TupleClass      *Item // I33
	GeneralRelation *Item // I40
	SemanticRule    *Item // I41
	AnchorItem      *Item // I43
	VariableLiteral *Item // I44
	GeneralEntity   *Item // I45
}

// bootstrapVocab creates the vocabulary entities in two phases:
// shells first so that labels and flags can be expressed as ordinary
// statements, then the spellings themselves.
func (s *Store) bootstrapVocab() error {
	return s.InNamespace(s.builtinsURI, func() error {
		v := &Vocab{}
		s.V = v

		var err error
		rel := func(short string) *Relation {
			if err != nil {
				return nil
			}
			var r *Relation
			r, err = s.newRelationShell(short)
			return r
		}
		itm := func(short string) *Item {
			if err != nil {
				return nil
			}
			var i *Item
			i, err = s.newItemShell(short)
			return i
		}

		v.Label = rel("R1")
		v.Description = rel("R2")
		v.SubclassOf = rel("R3")
		v.InstanceOf = rel("R4")
		v.SubpropertyOf = rel("R17")
		v.DefiningScope = rel("R20")
		v.ScopeOf = rel("R21")
		v.Functional = rel("R22")
		v.NameInScope = rel("R23")
		v.LHS = rel("R26")
		v.RHS = rel("R27")
		v.HasArgument = rel("R29")
		v.FunctionalForLang = rel("R32")
		v.ProxyItem = rel("R34")
		v.HasLength = rel("R38")
		v.HasElement = rel("R39")
		v.HasIndex = rel("R40")
		v.Symmetric = rel("R42")
		v.SameAs = rel("R47")
		v.MatchedByRule = rel("R54")
		v.UsesExternal = rel("R55")
		v.Placeholder = rel("R57")
		v.WildcardRelation = rel("R58")
		v.PrototypeMode = rel("R59")
		v.ScopeKind = rel("R64")
		v.AllowsAlternative = rel("R65")
		v.InverseOf = rel("R68")

		v.GeneralItem = itm("I1")
		v.Metaclass = itm("I2")
		v.ScopeClass = itm("I16")
		v.EquationClass = itm("I23")
		v.TupleClass = itm("I33")
		v.GeneralRelation = itm("I40")
		v.SemanticRule = itm("I41")
		v.AnchorItem = itm("I43")
		v.VariableLiteral = itm("I44")
		v.GeneralEntity = itm("I45")
		if err != nil {
			return err
		}

		labels := []struct {
			e     Entity
			label string
		}{
			{v.Label, "has label"},
			{v.Description, "has description"},
			{v.SubclassOf, "is subclass of"},
			{v.InstanceOf, "is instance of"},
			{v.SubpropertyOf, "is subproperty of"},
			{v.DefiningScope, "has defining scope"},
			{v.ScopeOf, "is scope of"},
			{v.Functional, "is functional"},
			{v.NameInScope, "has name in scope"},
			{v.LHS, "has lhs"},
			{v.RHS, "has rhs"},
			{v.HasArgument, "has argument"},
			{v.FunctionalForLang, "is functional for each language"},
			{v.ProxyItem, "has proxy item"},
			{v.HasLength, "has length"},
			{v.HasElement, "has element"},
			{v.HasIndex, "has index"},
			{v.Symmetric, "is symmetrical"},
			{v.SameAs, "is same as"},
			{v.MatchedByRule, "is matched by rule"},
			{v.UsesExternal, "uses as external entity"},
			{v.Placeholder, "is placeholder"},
			{v.WildcardRelation, "wildcard relation"},
			{v.PrototypeMode, "has prototype graph mode"},
			{v.ScopeKind, "has scope kind"},
			{v.AllowsAlternative, "allows alternative functional value"},
			{v.InverseOf, "is inverse of"},
			{v.GeneralItem, "general item"},
			{v.Metaclass, "metaclass"},
			{v.ScopeClass, "scope"},
			{v.EquationClass, "equation"},
			{v.TupleClass, "tuple"},
			{v.GeneralRelation, "general relation"},
			{v.SemanticRule, "semantic rule"},
			{v.AnchorItem, "anchor item"},
			{v.VariableLiteral, "variable literal"},
			{v.GeneralEntity, "general entity"},
		}
		for _, l := range labels {
			if _, err := s.Set(l.e, v.Label, Text(l.label, s.settings.DefaultLanguage)); err != nil {
				return err
			}
		}

		functional := []*Relation{
			v.SubclassOf, v.InstanceOf, v.DefiningScope, v.ScopeOf,
			v.Functional, v.NameInScope, v.LHS, v.RHS,
			v.FunctionalForLang, v.ProxyItem, v.HasLength, v.HasIndex, v.Symmetric,
			v.Placeholder, v.PrototypeMode, v.ScopeKind, v.InverseOf,
		}
		for _, r := range functional {
			if _, err := s.Set(r, v.Functional, Lit(true)); err != nil {
				return err
			}
		}
		for _, r := range []*Relation{v.Label, v.Description} {
			if _, err := s.Set(r, v.FunctionalForLang, Lit(true)); err != nil {
				return err
			}
		}

		classes := []*Item{
			v.GeneralItem, v.ScopeClass, v.EquationClass, v.TupleClass,
			v.GeneralRelation, v.SemanticRule, v.AnchorItem,
			v.VariableLiteral, v.GeneralEntity,
		}
		for _, c := range classes {
			if _, err := s.Set(c, v.InstanceOf, v.Metaclass); err != nil {
				return err
			}
		}
		if _, err := s.Set(v.GeneralItem, v.SubclassOf, v.GeneralEntity); err != nil {
			return err
		}
		for _, c := range []*Item{v.ScopeClass, v.EquationClass, v.TupleClass, v.SemanticRule, v.AnchorItem} {
			if _, err := s.Set(c, v.SubclassOf, v.GeneralItem); err != nil {
				return err
			}
		}
		return nil
	})
}
