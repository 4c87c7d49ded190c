package intent

import "strings"

// Matcher tests normalized text.
type Matcher func(normalized string) bool

// ContainsAny matches text containing any of the keywords.
func ContainsAny(keywords ...string) Matcher {
	return func(s string) bool {
		for _, k := range keywords {
			if strings.Contains(s, k) {
				return true
			}
		}
		return false
	}
}

// Equals matches text equal to any of the words.
func Equals(words ...string) Matcher {
	return func(s string) bool {
		for _, w := range words {
			if s == w {
				return true
			}
		}
		return false
	}
}

// AnyOf matches when any matcher does.
func AnyOf(matchers ...Matcher) Matcher {
	return func(s string) bool {
		for _, m := range matchers {
			if m(s) {
				return true
			}
		}
		return false
	}
}

// Rule maps a match on normalized text to a result. Rules are evaluated in
// order and the first match wins.
type Rule[T any] struct {
	Name   string
	Match  Matcher
	Result T
}

// RuleSet is an ordered rule list with a named default, making it total.
type RuleSet[T any] struct {
	Rules   []Rule[T]
	Default T
}

// Evaluate returns the first matching rule's result for already-normalized
// text, and the rule name ("default" when nothing matched).
func (rs RuleSet[T]) Evaluate(normalized string) (T, string) {
	for _, r := range rs.Rules {
		if r.Match(normalized) {
			return r.Result, r.Name
		}
	}
	return rs.Default, "default"
}
