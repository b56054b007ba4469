package rules

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"noetic/kb"
	"noetic/logging"
	"noetic/metric"
)

// Engine applies semantic rules against a store. Like the store it is
// single-writer: do not apply rules concurrently with other writes.
type Engine struct {
	store       *kb.Store
	metrics     *metric.Engine
	markMatches bool
	log         *zap.SugaredLogger
}

// Option configures an Engine.
type Option func(*Engine)

// WithMetrics attaches Prometheus instrumentation.
func WithMetrics(m *metric.Engine) Option {
	return func(e *Engine) { e.metrics = m }
}

// MarkMatches records an is-matched-by-rule spelling on every entity
// bound by a successful match.
func MarkMatches() Option {
	return func(e *Engine) { e.markMatches = true }
}

// New builds an engine over the store.
func New(store *kb.Store, opts ...Option) *Engine {
	e := &Engine{store: store, log: logging.L(logging.Rules)}
	for _, o := range opts {
		o(e)
	}
	return e
}

// RuleApplication summarizes one rule's application in one pass.
type RuleApplication struct {
	Rule    *kb.Item
	Matches int
	Created int
}

// Result aggregates what rule application changed.
type Result struct {
	ID     string
	Passes int

	NewStatements    []*kb.Statement
	RelMap           map[string][]*kb.Statement
	Replacements     [][2]kb.Entity
	UnlinkedEntities []kb.Entity
	NewEntities      []kb.Entity

	Partial []*RuleApplication
}

func newResult() *Result {
	return &Result{
		ID:     uuid.NewString(),
		RelMap: map[string][]*kb.Statement{},
	}
}

func (r *Result) absorb(other *Result) {
	r.NewStatements = append(r.NewStatements, other.NewStatements...)
	r.Replacements = append(r.Replacements, other.Replacements...)
	r.UnlinkedEntities = append(r.UnlinkedEntities, other.UnlinkedEntities...)
	r.NewEntities = append(r.NewEntities, other.NewEntities...)
	r.Partial = append(r.Partial, other.Partial...)
	for rel, stms := range other.RelMap {
		r.RelMap[rel] = append(r.RelMap[rel], stms...)
	}
}

func (r *Result) changed() bool {
	return len(r.NewStatements) > 0 || len(r.Replacements) > 0 ||
		len(r.UnlinkedEntities) > 0 || len(r.NewEntities) > 0
}

func (r *Result) recordStatement(stm *kb.Statement) {
	r.NewStatements = append(r.NewStatements, stm)
	relURI := stm.Predicate.URI()
	r.RelMap[relURI] = append(r.RelMap[relURI], stm)
}

func (r *Result) recordChanges(ch *kb.Changes) {
	if ch == nil {
		return
	}
	for _, stm := range ch.NewStatements {
		r.recordStatement(stm)
	}
	r.Replacements = append(r.Replacements, ch.Replacements...)
	r.UnlinkedEntities = append(r.UnlinkedEntities, ch.UnlinkedEntities...)
	r.NewEntities = append(r.NewEntities, ch.NewEntities...)
}

// Apply compiles and applies a single rule once. The URI stack must
// be non-empty, since consequences allocate statement keys.
func (e *Engine) Apply(rule *kb.Item) (*Result, error) {
	if _, err := e.store.ActiveNamespace(); err != nil {
		return nil, errors.Wrapf(err, "apply %s", rule.ShortKey())
	}
	start := time.Now()

	p, err := e.Compile(rule)
	if err != nil {
		return nil, err
	}
	bindings, err := e.matchAll(p)
	if err != nil {
		return nil, errors.Wrapf(err, "match %s", rule.ShortKey())
	}

	res := newResult()
	app := &RuleApplication{Rule: rule, Matches: len(bindings)}
	res.Partial = append(res.Partial, app)

	// entities merged away during earlier bindings are followed to
	// their survivors
	replacedBy := map[string]kb.Entity{}

	for _, b := range bindings {
		if err := e.applyBinding(p, b, res, replacedBy); err != nil {
			return nil, errors.Wrapf(err, "consequences of %s", rule.ShortKey())
		}
	}
	app.Created = len(res.NewStatements)

	if e.metrics != nil {
		e.metrics.RuleApplications.WithLabelValues(rule.ShortKey()).Inc()
		e.metrics.StatementsCreated.WithLabelValues(rule.ShortKey()).Add(float64(app.Created))
		e.metrics.ApplyDuration.WithLabelValues(rule.ShortKey()).Observe(time.Since(start).Seconds())
	}
	e.log.Debugw("rule applied",
		"rule", rule.ShortKey(),
		"matches", app.Matches,
		"created", app.Created,
		"duration", time.Since(start),
	)
	return res, nil
}

func (e *Engine) applyBinding(p *Pattern, b binding, res *Result, replacedBy map[string]kb.Entity) error {
	resolve := func(r ref) (kb.Term, bool) {
		var t kb.Term
		if r.varIdx >= 0 {
			t = b[r.varIdx]
		} else {
			t = r.fixed
		}
		for {
			ent, ok := t.(kb.Entity)
			if !ok || !ent.IsUnlinked() {
				return t, t != nil
			}
			next, ok := replacedBy[ent.URI()]
			if !ok {
				return nil, false
			}
			t = next
		}
	}

	for _, edge := range p.AssertEdges {
		subjTerm, ok := resolve(edge.Subject)
		if !ok {
			continue
		}
		subj, ok := subjTerm.(kb.Entity)
		if !ok {
			return errors.Newf("rules: assertion subject is not an entity")
		}
		pred := edge.Pred
		if edge.PredVar >= 0 {
			bound, ok := b[edge.PredVar].(*kb.Relation)
			if !ok {
				continue
			}
			pred = bound
		}
		obj, ok := resolve(edge.Object)
		if !ok {
			continue
		}
		stm, created, err := e.store.SetIfNew(subj, pred, obj)
		if err != nil {
			return err
		}
		if created {
			res.recordStatement(stm)
		}
	}

	for _, call := range p.Consequents {
		args := make([]kb.Term, 0, len(call.Args))
		skip := false
		for _, r := range call.Args {
			t, ok := resolve(r)
			if !ok {
				skip = true
				break
			}
			args = append(args, t)
		}
		if skip {
			continue
		}
		ch, err := call.Fn(e.store, args...)
		if err != nil {
			return err
		}
		if ch != nil {
			for _, rep := range ch.Replacements {
				replacedBy[rep[0].URI()] = rep[1]
			}
			res.recordChanges(ch)
		}
	}

	if e.markMatches {
		for _, t := range b {
			ent, ok := t.(kb.Entity)
			if !ok || ent.IsUnlinked() {
				continue
			}
			stm, created, err := e.store.SetIfNew(ent, e.store.V.MatchedByRule, p.Rule)
			if err != nil {
				return err
			}
			if created {
				res.recordStatement(stm)
			}
		}
	}
	return nil
}

// ApplyAll applies the given rules once each, in order. With no
// arguments every known rule is applied in creation order.
func (e *Engine) ApplyAll(ruleItems ...*kb.Item) (*Result, error) {
	if len(ruleItems) == 0 {
		ruleItems = e.store.AllRules()
	}
	total := newResult()
	for _, rule := range ruleItems {
		res, err := e.Apply(rule)
		if err != nil {
			return nil, err
		}
		total.absorb(res)
	}
	return total, nil
}

// ApplyUntilFixpoint repeats ApplyAll until a pass changes nothing,
// bounded by the configured maximum number of passes.
func (e *Engine) ApplyUntilFixpoint(ruleItems ...*kb.Item) (*Result, error) {
	maxPasses := e.store.Settings().MaxPasses
	total := newResult()
	for pass := 1; ; pass++ {
		if pass > maxPasses {
			return total, errors.Newf("rules: no fixpoint after %d passes", maxPasses)
		}
		res, err := e.ApplyAll(ruleItems...)
		if err != nil {
			return nil, err
		}
		total.Passes = pass
		if e.metrics != nil {
			e.metrics.FixpointPasses.Inc()
		}
		if !res.changed() {
			break
		}
		total.absorb(res)
	}
	e.log.Infow("fixpoint reached", "passes", total.Passes, "created", len(total.NewStatements))
	return total, nil
}
