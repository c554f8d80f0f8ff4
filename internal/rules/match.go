package rules

import "github.com/samber/mo"

// Rule is implemented by both rule kinds.
type Rule interface {
	Matches(summary string) bool
}

// Match evaluates rules in declaration order against summary and returns
// the first one that matches. Later matching rules are ignored; this keeps
// rule selection deterministic when several patterns overlap.
func Match[R Rule](summary string, rules []R) mo.Option[R] {
	for _, r := range rules {
		if r.Matches(summary) {
			return mo.Some(r)
		}
	}
	return mo.None[R]()
}
