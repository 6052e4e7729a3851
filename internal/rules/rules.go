package rules

import (
	"fmt"
	"regexp"

	"github.com/scenewatch/scenewatch/internal/config"
)

// Rule is a compiled scene rule. It applies to windows on one display whose
// title contains a match for Pattern.
type Rule struct {
	Display int
	Pattern *regexp.Regexp
	Scene   string
}

// Set is an ordered, immutable collection of compiled rules. Declaration
// order is the only tie-break between rules matching the same title.
type Set struct {
	rules []Rule
}

// Compile builds a Set from the configured rules. Patterns are compiled
// case-insensitively; a malformed pattern is a configuration error.
func Compile(configs []config.RuleConfig) (Set, error) {
	compiled := make([]Rule, 0, len(configs))
	for i, rc := range configs {
		re, err := regexp.Compile("(?i)" + rc.Pattern)
		if err != nil {
			return Set{}, fmt.Errorf("rule %d: invalid pattern %q: %w", i, rc.Pattern, err)
		}
		compiled = append(compiled, Rule{
			Display: rc.Display,
			Pattern: re,
			Scene:   rc.Scene,
		})
	}
	return Set{rules: compiled}, nil
}

// Match returns the scene of the first declared rule whose display equals
// display and whose pattern matches anywhere within title. A miss is a
// normal outcome, reported via ok.
func (s Set) Match(display int, title string) (scene string, ok bool) {
	for _, r := range s.rules {
		if r.Display != display {
			continue
		}
		if r.Pattern.MatchString(title) {
			return r.Scene, true
		}
	}
	return "", false
}

// Rules returns the compiled rules in declaration order.
func (s Set) Rules() []Rule {
	out := make([]Rule, len(s.rules))
	copy(out, s.rules)
	return out
}

// Len returns the number of rules in the set.
func (s Set) Len() int {
	return len(s.rules)
}
