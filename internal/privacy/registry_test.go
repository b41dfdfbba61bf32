package privacy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScore(t *testing.T) {
	tests := []struct {
		name     string
		features DetectionFeatures
		want     float64
	}{
		{"short alpha pattern", FeaturesOf(KindNames, SourcePattern, "Bob"), 0.5},
		{"ssn pattern", FeaturesOf(KindSSN, SourcePattern, "123-45-6789"), 0.85},
		{"entity person", FeaturesOf(KindNames, SourceEntity, "Jane Doe"), 0.85},
		{"email", FeaturesOf(KindEmail, SourcePattern, "a.b@example.com"), 0.75},
		{"clamped", FeaturesOf(KindPhone, SourceEntity, "5551234567"), 0.99},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Score(tt.features), 1e-9)
		})
	}
}

func TestFeaturesOf(t *testing.T) {
	f := FeaturesOf(KindMRN, SourcePattern, "MRN: 12é")
	assert.Equal(t, 8, f.Length)
	assert.True(t, f.HasDigits)
	assert.True(t, f.HasAlpha)

	f = FeaturesOf(KindPhone, SourcePattern, "(555) 123-4567")
	assert.True(t, f.HasDigits)
	assert.False(t, f.HasAlpha)
}

func TestSensitivityThresholds(t *testing.T) {
	assert.Equal(t, 0.55, SensitivityLow.Threshold())
	assert.Equal(t, 0.65, SensitivityMedium.Threshold())
	assert.Equal(t, 0.75, SensitivityHigh.Threshold())
	assert.Equal(t, 0.55, SensitivityParanoid.Threshold())

	s, err := ParseSensitivity(" HIGH ")
	require.NoError(t, err)
	assert.Equal(t, SensitivityHigh, s)

	s, err = ParseSensitivity("")
	require.NoError(t, err)
	assert.Equal(t, SensitivityMedium, s)

	_, err = ParseSensitivity("extreme")
	assert.True(t, IsConfigurationError(err))
}

func TestRegistryKinds(t *testing.T) {
	r := NewRegistry()
	kinds := r.Kinds()

	for _, k := range []Kind{KindSSN, KindPhone, KindEmail, KindMRN, KindGeographic, KindNHSNumber, KindIBAN} {
		assert.Contains(t, kinds, k)
	}
	for i := 1; i < len(kinds); i++ {
		assert.Less(t, kinds[i-1], kinds[i])
	}
}

func TestRegistryIsNotMutatedThroughAccessors(t *testing.T) {
	r := NewRegistry()
	before := len(r.Patterns()[KindSSN])

	patterns := r.Patterns()
	patterns[KindSSN] = nil
	delete(patterns, KindEmail)
	rules := r.Rules()
	rules[0].Matchers = nil

	assert.Len(t, r.Patterns()[KindSSN], before)
	assert.True(t, r.Has(KindEmail))
	assert.NotEmpty(t, r.Rules()[0].Matchers)
}

func TestCustomRulesExtendRegistry(t *testing.T) {
	custom, err := ParsePatternPack([]byte(`
patterns:
  - kind: study_subject
    pattern: '\bSUBJ-\d{5}\b'
  - kind: MRN
    pattern: '\bh\d{8}\b'
    case_insensitive: true
`))
	require.NoError(t, err)
	require.Len(t, custom, 2)

	r := NewRegistry(custom...)
	assert.True(t, r.Has("study_subject"))
	assert.Len(t, r.Patterns()[KindMRN], len(NewRegistry().Patterns()[KindMRN])+1)

	// new kinds rank after every built-in kind
	assert.Greater(t, r.rank("study_subject"), r.rank(KindPassport))

	d := NewDetector(r, nil, nil)
	result := detect(t, d, "enrolled SUBJ-00417 with chart H12345678", Options{Sensitivity: SensitivityLow})
	assert.Contains(t, result.Kinds(), Kind("study_subject"))
	assert.Contains(t, result.Kinds(), KindMRN)
}

func TestParsePatternPackErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"malformed", "patterns: [kind: x"},
		{"missing kind", "patterns:\n  - pattern: 'abc'\n"},
		{"missing pattern", "patterns:\n  - kind: x\n"},
		{"invalid regex", "patterns:\n  - kind: x\n    pattern: '(abc'\n"},
		{"matches empty", "patterns:\n  - kind: x\n    pattern: 'a*'\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePatternPack([]byte(tt.yaml))
			require.Error(t, err)
			assert.True(t, IsConfigurationError(err))
		})
	}
}

func TestLoadPatternPacks(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pack.yaml")
	require.NoError(t, os.WriteFile(path, []byte("patterns:\n  - kind: badge\n    pattern: '\\bBDG\\d{6}\\b'\n"), 0o600))

	rules, err := LoadPatternPacks(path)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, Kind("badge"), rules[0].Kind)

	_, err = LoadPatternPacks(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestKindForLabel(t *testing.T) {
	tests := []struct {
		label string
		kind  Kind
		ok    bool
	}{
		{"PERSON", KindNames, true},
		{"B-PER", KindNames, true},
		{"i-loc", KindGeographic, true},
		{"Region", KindGeographic, true},
		{"ORGANIZATION", KindOtherUnique, true},
		{"MISC", "", false},
		{"O", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			kind, ok := KindForLabel(tt.label)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.kind, kind)
		})
	}
}
