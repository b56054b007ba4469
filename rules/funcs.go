package rules

import (
	"github.com/cockroachdb/errors"

	"noetic/kb"
)

func itemArg(args []kb.Term, i int) (*kb.Item, error) {
	if i >= len(args) {
		return nil, errors.Newf("rules: missing argument %d", i)
	}
	itm, ok := args[i].(*kb.Item)
	if !ok {
		return nil, errors.Newf("rules: argument %d is %T, want item", i, args[i])
	}
	return itm, nil
}

func relationArg(args []kb.Term, i int) (*kb.Relation, error) {
	if i >= len(args) {
		return nil, errors.Newf("rules: missing argument %d", i)
	}
	rel, ok := args[i].(*kb.Relation)
	if !ok {
		return nil, errors.Newf("rules: argument %d is %T, want relation", i, args[i])
	}
	return rel, nil
}

// ReplaceEntities merges the first argument into the second: every
// statement of the first is rewired onto the second, and the first is
// unlinked. Used as the consequence of same-as style rules.
func ReplaceEntities(s *kb.Store, args ...kb.Term) (*kb.Changes, error) {
	old, err := itemArg(args, 0)
	if err != nil {
		return nil, err
	}
	survivor, err := itemArg(args, 1)
	if err != nil {
		return nil, err
	}
	if old.IsUnlinked() || survivor.IsUnlinked() {
		return &kb.Changes{}, nil
	}
	return s.ReplaceAndUnlink(old, survivor)
}

// ReverseStatements closes a symmetric relation: for every fact
// (a, rel, b) lacking its mirror, (b, rel, a) is created.
func ReverseStatements(s *kb.Store, args ...kb.Term) (*kb.Changes, error) {
	rel, err := relationArg(args, 0)
	if err != nil {
		return nil, err
	}
	ch := &kb.Changes{}
	for _, stm := range factStatements(s, rel) {
		objEnt, ok := stm.Object.(kb.Entity)
		if !ok {
			continue
		}
		subjEnt := stm.Subject.(kb.Entity)
		created, isNew, err := s.SetIfNew(objEnt, rel, subjEnt)
		if err != nil {
			return nil, err
		}
		if isNew {
			ch.NewStatements = append(ch.NewStatements, created)
		}
	}
	return ch, nil
}

// CopyStatements propagates a subproperty: every fact using the first
// relation is restated with the second.
func CopyStatements(s *kb.Store, args ...kb.Term) (*kb.Changes, error) {
	sub, err := relationArg(args, 0)
	if err != nil {
		return nil, err
	}
	sup, err := relationArg(args, 1)
	if err != nil {
		return nil, err
	}
	ch := &kb.Changes{}
	for _, stm := range factStatements(s, sub) {
		subjEnt := stm.Subject.(kb.Entity)
		created, isNew, err := s.SetIfNew(subjEnt, sup, stm.Object)
		if err != nil {
			return nil, err
		}
		if isNew {
			ch.NewStatements = append(ch.NewStatements, created)
		}
	}
	return ch, nil
}

// DoesNotHaveRelation builds a condition that holds when the bound
// entity has no statement with the given predicate.
func DoesNotHaveRelation(pred *kb.Relation) kb.ConditionFunc {
	return func(s *kb.Store, args ...kb.Term) (bool, error) {
		ent, ok := args[0].(kb.Entity)
		if !ok {
			return false, errors.Newf("rules: condition argument is %T, want entity", args[0])
		}
		return len(s.Statements(ent, pred)) == 0, nil
	}
}

// LabelsDiffer holds when the two bound entities carry different
// default-language labels.
func LabelsDiffer(s *kb.Store, args ...kb.Term) (bool, error) {
	a, ok := args[0].(kb.Entity)
	if !ok {
		return false, errors.Newf("rules: condition argument is %T, want entity", args[0])
	}
	b, ok := args[1].(kb.Entity)
	if !ok {
		return false, errors.Newf("rules: condition argument is %T, want entity", args[1])
	}
	return a.Label("") != b.Label(""), nil
}
