// Package kb implements the knowledge base: items and relations
// addressed by namespaced short keys, reified statements with
// qualifiers and dual indexing, functional-relation enforcement, a
// three-level taxonomy, and scope builders for declaring rule
// patterns.
//
// Entities live in namespaces. A namespace is registered once with a
// base URI and prefix and owns a deterministic reservoir of numeric
// keys; creation operations draw from the namespace on top of the URI
// stack. The bootstrap vocabulary (labels, taxonomy relations, rule
// plumbing) is loaded into the builtins namespace by NewStore.
package kb
