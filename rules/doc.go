// Package rules implements the forward-chaining rule engine: premise
// patterns are compiled from a rule's scopes, matched deterministically
// against the store's fact graph, and the assertions applied per
// match, optionally to fixpoint.
//
// The fact graph excludes everything declared inside rule scopes, so
// rules never match their own premise patterns or those of other
// rules. Re-deriving an existing statement is a no-op, which makes
// pure-assertion rule sets terminate.
package rules
