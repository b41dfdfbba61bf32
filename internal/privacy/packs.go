package privacy

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// PatternPack is the on-disk format for deployment-specific patterns:
//
//	patterns:
//	  - kind: study_subject
//	    pattern: '\bSUBJ-\d{5}\b'
//	  - kind: mrn
//	    pattern: '\bH\d{8}\b'
//	    case_insensitive: true
type PatternPack struct {
	Patterns []PackPattern `yaml:"patterns"`
}

// PackPattern is one custom pattern entry
type PackPattern struct {
	Kind            string `yaml:"kind"`
	Pattern         string `yaml:"pattern"`
	CaseInsensitive bool   `yaml:"case_insensitive"`
}

// ParsePatternPack compiles a YAML pattern pack. Every problem is reported as
// a ConfigurationError naming the offending entry.
func ParsePatternPack(data []byte) ([]PatternRule, error) {
	var pack PatternPack
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return nil, &ConfigurationError{Field: "pattern_pack", Reason: "malformed YAML", Err: err}
	}

	defs := make([]patternDef, 0, len(pack.Patterns))
	for i, p := range pack.Patterns {
		field := fmt.Sprintf("pattern_pack.patterns[%d]", i)
		kind := strings.TrimSpace(p.Kind)
		if kind == "" {
			return nil, NewConfigurationError(field, "kind is required")
		}
		if p.Pattern == "" {
			return nil, NewConfigurationError(field, "pattern is required")
		}

		expr := p.Pattern
		if p.CaseInsensitive {
			expr = "(?i)" + expr
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, &ConfigurationError{Field: field, Reason: "invalid pattern", Err: err}
		}
		if re.MatchString("") {
			return nil, NewConfigurationError(field, "pattern matches the empty string")
		}

		defs = append(defs, patternDef{kind: Kind(strings.ToLower(kind)), pattern: expr})
	}

	return compileDefs(defs), nil
}

// LoadPatternPacks reads and compiles pattern pack files in order
func LoadPatternPacks(paths ...string) ([]PatternRule, error) {
	var rules []PatternRule
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read pattern pack %s: %w", path, err)
		}
		packRules, err := ParsePatternPack(data)
		if err != nil {
			return nil, fmt.Errorf("pattern pack %s: %w", path, err)
		}
		rules = append(rules, packRules...)
	}
	return rules, nil
}
