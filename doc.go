// Package noetic is a knowledge-representation engine: a typed
// entity/relation/statement store with namespaced keys, reified
// qualifiers and functional-relation enforcement, plus a
// forward-chaining rule engine that matches premise patterns against
// the fact graph and applies consequences to fixpoint.
//
// The library packages:
//
//   - kb: entities, statements, namespaces, taxonomy, scope builders
//   - rules: pattern compilation, matching, consequence application
//   - registry: deterministic per-namespace key reservoirs
//   - config: engine settings
//   - logging: categorized structured logging
//   - metric: Prometheus instrumentation for the rule engine
package noetic
