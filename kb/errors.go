package kb

import "github.com/cockroachdb/errors"

var (
	// ErrEmptyURIStack is returned when an operation that allocates
	// keys runs with no active namespace.
	ErrEmptyURIStack = errors.New("no active namespace")

	// ErrUnknownURI is returned when a URI resolves to nothing.
	ErrUnknownURI = errors.New("unknown URI")

	// ErrFunctionalRelation is returned when a second value would be
	// attached through a functional relation.
	ErrFunctionalRelation = errors.New("functional relation already has a value")

	// ErrUnknownPrefix is returned when a key string names an
	// unregistered prefix.
	ErrUnknownPrefix = errors.New("unknown namespace prefix")

	// ErrLabelMismatch is returned when a key string carries a label
	// tail that disagrees with the resolved entity's label.
	ErrLabelMismatch = errors.New("label does not match entity")

	// ErrInvalidShortKey is returned for malformed short keys.
	ErrInvalidShortKey = errors.New("invalid short key")

	// ErrDuplicateKey is returned when an explicit short key is
	// already taken in the active namespace.
	ErrDuplicateKey = errors.New("short key already in use")

	// ErrInvalidScope flags misuse of scope builders: closed scopes,
	// wrong nesting, duplicate variable names.
	ErrInvalidScope = errors.New("invalid scope operation")
)
