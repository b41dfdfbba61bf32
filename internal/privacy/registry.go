package privacy

import (
	"regexp"
	"sort"
)

// PatternRule binds a kind to its ordered matchers
type PatternRule struct {
	Kind     Kind
	Matchers []*regexp.Regexp
}

// Registry is the immutable kind to matcher table shared by every detector.
// It is never modified after NewRegistry returns, so concurrent reads need no
// locking.
type Registry struct {
	rules []PatternRule
	order map[Kind]int
}

// NewRegistry builds a registry from the built-in rules followed by any
// custom rules. Custom rules for an existing kind extend that kind; new kinds
// are appended after the built-in ones.
func NewRegistry(custom ...PatternRule) *Registry {
	r := &Registry{order: make(map[Kind]int)}
	for _, rule := range BuiltinRules() {
		r.add(rule)
	}
	for _, rule := range custom {
		r.add(rule)
	}
	return r
}

func (r *Registry) add(rule PatternRule) {
	if len(rule.Matchers) == 0 {
		return
	}
	if i, ok := r.order[rule.Kind]; ok {
		merged := make([]*regexp.Regexp, 0, len(r.rules[i].Matchers)+len(rule.Matchers))
		merged = append(merged, r.rules[i].Matchers...)
		merged = append(merged, rule.Matchers...)
		r.rules[i].Matchers = merged
		return
	}
	r.order[rule.Kind] = len(r.rules)
	r.rules = append(r.rules, PatternRule{
		Kind:     rule.Kind,
		Matchers: append([]*regexp.Regexp(nil), rule.Matchers...),
	})
}

// Rules returns the rules in registry order. The slice is a copy; compiled
// matchers are shared and safe for concurrent use.
func (r *Registry) Rules() []PatternRule {
	out := make([]PatternRule, len(r.rules))
	for i, rule := range r.rules {
		out[i] = PatternRule{
			Kind:     rule.Kind,
			Matchers: append([]*regexp.Regexp(nil), rule.Matchers...),
		}
	}
	return out
}

// Patterns returns a copy of the kind to matchers table
func (r *Registry) Patterns() map[Kind][]*regexp.Regexp {
	out := make(map[Kind][]*regexp.Regexp, len(r.rules))
	for _, rule := range r.rules {
		out[rule.Kind] = append([]*regexp.Regexp(nil), rule.Matchers...)
	}
	return out
}

// Kinds returns every registered kind sorted by name
func (r *Registry) Kinds() []Kind {
	kinds := make([]Kind, 0, len(r.rules))
	for _, rule := range r.rules {
		kinds = append(kinds, rule.Kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Has reports whether kind is registered
func (r *Registry) Has(kind Kind) bool {
	_, ok := r.order[kind]
	return ok
}

// rank is the registry position of kind, used to break overlap ties.
// Kinds outside the registry rank after all registered ones.
func (r *Registry) rank(kind Kind) int {
	if i, ok := r.order[kind]; ok {
		return i
	}
	return len(r.rules)
}
