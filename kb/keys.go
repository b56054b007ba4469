package kb

import (
	"regexp"
	"strings"

	"github.com/cockroachdb/errors"
)

// Short key grammar: optional prefix ("ct__R1234"), a type tag with
// optional auto marker (I, Ia, R, Ra, S, Q), digits, and an optional
// label tail ("I900__some_label") used as a consistency check.
var keyRe = regexp.MustCompile(`^(?:([a-zA-Z][a-zA-Z0-9]*)__)?(Ia?|Ra?|S|Q)([0-9]+)(?:__(.+))?$`)

type parsedKey struct {
	Prefix    string
	Tag       string // "I", "Ia", "R", "Ra", "S", "Q"
	Digits    string
	LabelTail string
}

// Short returns the bare short key without prefix or label tail.
func (k parsedKey) Short() string { return k.Tag + k.Digits }

func parseKey(keyStr string) (parsedKey, error) {
	m := keyRe.FindStringSubmatch(keyStr)
	if m == nil {
		return parsedKey{}, errors.Wrapf(ErrInvalidShortKey, "%q", keyStr)
	}
	return parsedKey{Prefix: m[1], Tag: m[2], Digits: m[3], LabelTail: m[4]}, nil
}

// normalizeLabel maps a label to its key-tail spelling: lowercased,
// spaces and dashes as underscores.
func normalizeLabel(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, "-", "_")
	return s
}

// ResolveKey resolves a key string like "I1000", "ct__R65" or
// "bi__I2__metaclass" against the store. The prefix selects the
// namespace (default: builtins, then the active namespace). A label
// tail must agree with the entity's label in the default language.
func (s *Store) ResolveKey(keyStr string) (Entity, error) {
	k, err := parseKey(keyStr)
	if err != nil {
		return nil, err
	}
	if k.Tag == "S" || k.Tag == "Q" {
		return nil, errors.Wrapf(ErrInvalidShortKey, "%q names a statement, not an entity", keyStr)
	}

	var bases []string
	if k.Prefix != "" {
		base, ok := s.reg.URIForPrefix(k.Prefix)
		if !ok {
			return nil, errors.Wrapf(ErrUnknownPrefix, "%q in key %q", k.Prefix, keyStr)
		}
		bases = []string{base}
	} else {
		bases = []string{s.builtinsURI}
		if top, err := s.ActiveNamespace(); err == nil && top != s.builtinsURI {
			bases = append(bases, top)
		}
	}

	var ent Entity
	for _, base := range bases {
		if e, err := s.EntityByURI(base + "#" + k.Short()); err == nil {
			ent = e
			break
		}
	}
	if ent == nil {
		return nil, errors.Wrapf(ErrUnknownURI, "key %q", keyStr)
	}

	if k.LabelTail != "" {
		want := normalizeLabel(k.LabelTail)
		got := normalizeLabel(ent.Label(""))
		if want != got {
			return nil, errors.Wrapf(ErrLabelMismatch, "key %q carries %q, entity has %q", keyStr, k.LabelTail, ent.Label(""))
		}
	}
	return ent, nil
}
