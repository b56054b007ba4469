// Package registry manages the numeric key reservoirs backing entity
// and statement short keys. Each namespace owns one reservoir: a
// deterministically shuffled permutation of a configured integer
// range, consumed from the end. Two reservoirs built from the same
// range and seed hand out identical key sequences.
package registry

import (
	"math/rand"
	"sort"

	"github.com/cockroachdb/errors"

	"noetic/logging"
)

var (
	// ErrDuplicateNamespace is returned when a base URI or prefix is
	// registered twice.
	ErrDuplicateNamespace = errors.New("namespace already registered")

	// ErrExhaustedKeyspace is returned when a reservoir runs dry.
	ErrExhaustedKeyspace = errors.New("key reservoir exhausted")

	// ErrInvalidPrefix is returned for empty or conflicting prefixes.
	ErrInvalidPrefix = errors.New("invalid namespace prefix")
)

// KeyManager hands out the numeric parts of auto-generated short keys
// for one namespace.
type KeyManager struct {
	minVal    int
	maxVal    int
	seed      int64
	reservoir []int
}

// NewKeyManager builds a reservoir over [minVal, maxVal), shuffled
// with the given seed.
func NewKeyManager(minVal, maxVal int, seed int64) *KeyManager {
	n := maxVal - minVal
	if n < 0 {
		n = 0
	}
	keys := make([]int, n)
	for i := range keys {
		keys[i] = minVal + i
	}
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(keys), func(i, j int) {
		keys[i], keys[j] = keys[j], keys[i]
	})
	return &KeyManager{minVal: minVal, maxVal: maxVal, seed: seed, reservoir: keys}
}

// Pop removes and returns the next key.
func (m *KeyManager) Pop() (int, error) {
	if len(m.reservoir) == 0 {
		return 0, errors.Wrapf(ErrExhaustedKeyspace, "range [%d, %d)", m.minVal, m.maxVal)
	}
	k := m.reservoir[len(m.reservoir)-1]
	m.reservoir = m.reservoir[:len(m.reservoir)-1]
	return k, nil
}

// Remaining reports how many keys are left.
func (m *KeyManager) Remaining() int { return len(m.reservoir) }

// Registry maps namespace base URIs to their key reservoirs and
// maintains the one-to-one URI/prefix mapping.
type Registry struct {
	managers    map[string]*KeyManager
	prefixToURI map[string]string
	uriToPrefix map[string]string
}

func New() *Registry {
	return &Registry{
		managers:    make(map[string]*KeyManager),
		prefixToURI: make(map[string]string),
		uriToPrefix: make(map[string]string),
	}
}

// Register adds a namespace with its own reservoir.
func (r *Registry) Register(baseURI, prefix string, minVal, maxVal int, seed int64) error {
	if baseURI == "" {
		return errors.Wrap(ErrDuplicateNamespace, "empty base URI")
	}
	if prefix == "" {
		return errors.Wrapf(ErrInvalidPrefix, "namespace %s", baseURI)
	}
	if _, ok := r.managers[baseURI]; ok {
		return errors.Wrapf(ErrDuplicateNamespace, "base URI %s", baseURI)
	}
	if other, ok := r.prefixToURI[prefix]; ok {
		return errors.Wrapf(ErrInvalidPrefix, "prefix %q already bound to %s", prefix, other)
	}
	r.managers[baseURI] = NewKeyManager(minVal, maxVal, seed)
	r.prefixToURI[prefix] = baseURI
	r.uriToPrefix[baseURI] = prefix
	logging.L(logging.Registry).Debugw("namespace registered",
		"base_uri", baseURI, "prefix", prefix, "keys", maxVal-minVal)
	return nil
}

// Unregister drops a namespace and its reservoir. Unknown URIs are a
// no-op.
func (r *Registry) Unregister(baseURI string) {
	if prefix, ok := r.uriToPrefix[baseURI]; ok {
		delete(r.prefixToURI, prefix)
	}
	delete(r.uriToPrefix, baseURI)
	delete(r.managers, baseURI)
}

// Manager returns the reservoir for a base URI.
func (r *Registry) Manager(baseURI string) (*KeyManager, bool) {
	m, ok := r.managers[baseURI]
	return m, ok
}

// URIForPrefix resolves a registered prefix.
func (r *Registry) URIForPrefix(prefix string) (string, bool) {
	uri, ok := r.prefixToURI[prefix]
	return uri, ok
}

// PrefixForURI resolves a registered base URI.
func (r *Registry) PrefixForURI(baseURI string) (string, bool) {
	prefix, ok := r.uriToPrefix[baseURI]
	return prefix, ok
}

// URIs lists registered base URIs in sorted order.
func (r *Registry) URIs() []string {
	uris := make([]string, 0, len(r.managers))
	for uri := range r.managers {
		uris = append(uris, uri)
	}
	sort.Strings(uris)
	return uris
}
