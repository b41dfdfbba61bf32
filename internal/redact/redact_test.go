package redact

import (
	"context"
	"testing"

	"github.com/raaihank/phi-sentinel/internal/privacy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedactor(t *testing.T, salt string) *Redactor {
	t.Helper()
	fp, err := NewFingerprinter(salt)
	require.NoError(t, err)
	detector := privacy.NewDetector(privacy.NewRegistry(), nil, nil)
	return New(detector, fp, nil)
}

func TestRedactRepeatedValuesGetIncreasingOrdinals(t *testing.T) {
	r := newTestRedactor(t, "unit-test")

	result, err := r.Redact(context.Background(), "Call 555-123-4567. Call 555-123-4567 again.",
		Config{Sensitivity: privacy.SensitivityLow})
	require.NoError(t, err)

	assert.Equal(t, "Call [PHI:PHONE:1]. Call [PHI:PHONE:2] again.", result.RedactedText)
	require.Len(t, result.Mapping, 2)
	first := result.Mapping["[PHI:PHONE:1]"]
	second := result.Mapping["[PHI:PHONE:2]"]
	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Len(t, first[0], FingerprintLength)
	assert.Equal(t, first[0], second[0], "same value must share a fingerprint")

	require.Len(t, result.Spans, 2)
	assert.Equal(t, Span{Start: 5, End: 17, Kind: privacy.KindPhone, Token: "[PHI:PHONE:1]"}, result.Spans[0])
}

func TestRedactIsDeterministic(t *testing.T) {
	r := newTestRedactor(t, "unit-test")
	text := "SSN 123-45-6789 and 987-65-4321, call 555-123-4567, mail jane@example.org"

	first, err := r.Redact(context.Background(), text, Config{Sensitivity: privacy.SensitivityLow})
	require.NoError(t, err)
	second, err := r.Redact(context.Background(), text, Config{Sensitivity: privacy.SensitivityLow})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, "SSN [PHI:SSN:1] and [PHI:SSN:2], call [PHI:PHONE:1], mail [PHI:EMAIL:1]", first.RedactedText)
}

func TestRedactMappingNeverHoldsPlaintext(t *testing.T) {
	r := newTestRedactor(t, "unit-test")
	result, err := r.Redact(context.Background(), "SSN 123-45-6789", Config{TokenPrefix: "X"})
	require.NoError(t, err)

	assert.Equal(t, "SSN [X:SSN:1]", result.RedactedText)
	for token, fps := range result.Mapping {
		assert.Contains(t, token, "X:SSN")
		for _, fp := range fps {
			assert.NotContains(t, fp, "6789")
		}
	}
}

func TestRedactCleanTextIsUnchanged(t *testing.T) {
	r := newTestRedactor(t, "unit-test")
	result, err := r.Redact(context.Background(), "nothing to see here", Config{})
	require.NoError(t, err)

	assert.Equal(t, "nothing to see here", result.RedactedText)
	assert.Empty(t, result.Spans)
	assert.Empty(t, result.Mapping)
}

func TestRedactRejectsBadAllowlist(t *testing.T) {
	r := newTestRedactor(t, "unit-test")
	_, err := r.Redact(context.Background(), "text", Config{Allowlist: []string{"[unclosed"}})
	require.Error(t, err)
	assert.True(t, privacy.IsConfigurationError(err))
}

func TestRenderSkipsSpansBehindCursor(t *testing.T) {
	text := "abcdefghij"
	detections := []privacy.Detection{
		{Kind: "x", Start: 6, End: 8},
		{Kind: "x", Start: 0, End: 4},
		{Kind: "y", Start: 2, End: 5}, // overlaps the first span
		{Kind: "y", Start: 8, End: 10},
	}

	out, spans := Render(text, detections, "P")

	assert.Equal(t, "[P:X:1]ef[P:X:2][P:Y:1]", out)
	require.Len(t, spans, 3)
	assert.Equal(t, 0, spans[0].Start)
	assert.Equal(t, 6, spans[1].Start)
	assert.Equal(t, 8, spans[2].Start)
}

func TestFingerprinter(t *testing.T) {
	a, err := NewFingerprinter("salt-a")
	require.NoError(t, err)
	b, err := NewFingerprinter("salt-b")
	require.NoError(t, err)

	assert.Equal(t, a.Fingerprint("123-45-6789"), a.Fingerprint("123-45-6789"))
	assert.NotEqual(t, a.Fingerprint("123-45-6789"), b.Fingerprint("123-45-6789"))
	assert.NotEqual(t, a.Fingerprint("123-45-6789"), a.Fingerprint("123-45-6780"))
	assert.Regexp(t, `^[0-9a-f]{12}$`, a.Fingerprint("x"))

	r1, err := NewFingerprinter("")
	require.NoError(t, err)
	r2, err := NewFingerprinter("")
	require.NoError(t, err)
	assert.NotEqual(t, r1.Fingerprint("x"), r2.Fingerprint("x"))
}
