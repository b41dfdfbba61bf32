package privacy

import (
	"fmt"
	"regexp"
)

// Allowlist exempts candidates whose matched text matches any of its
// patterns. Patterns are not anchored: `example` exempts any span containing
// it, so whole-value exemptions need ^ and $. The zero value and nil allow
// nothing.
type Allowlist struct {
	patterns []*regexp.Regexp
}

// CompileAllowlist compiles allowlist expressions. An invalid expression is a
// ConfigurationError.
func CompileAllowlist(patterns []string) (*Allowlist, error) {
	a := &Allowlist{}
	for i, p := range patterns {
		if p == "" {
			continue
		}
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, &ConfigurationError{Field: fmt.Sprintf("allowlist[%d]", i), Reason: "invalid pattern", Err: err}
		}
		a.patterns = append(a.patterns, re)
	}
	return a, nil
}

// Allows reports whether text is exempt from detection
func (a *Allowlist) Allows(text string) bool {
	if a == nil {
		return false
	}
	for _, re := range a.patterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// Len returns the number of compiled patterns
func (a *Allowlist) Len() int {
	if a == nil {
		return 0
	}
	return len(a.patterns)
}
