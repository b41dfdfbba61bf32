package deid

import (
	"context"
	"testing"

	"github.com/raaihank/phi-sentinel/internal/privacy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDeidentifier() *Deidentifier {
	return New(privacy.NewDetector(privacy.NewRegistry(), nil, nil))
}

func TestValidateCleanText(t *testing.T) {
	d := newDeidentifier()

	report, err := d.Validate(context.Background(),
		"the cohort showed improved outcomes after the revised protocol was adopted",
		KAnonymityConfig{K: 5}, privacy.SensitivityParanoid)
	require.NoError(t, err)

	assert.False(t, report.DirectIdentifiersFound)
	assert.Empty(t, report.DirectIdentifierKinds)
	assert.Equal(t, 5, report.KAnonymityTarget)
	assert.Empty(t, report.Notes)
}

func TestValidateReportsSortedKinds(t *testing.T) {
	d := newDeidentifier()

	report, err := d.Validate(context.Background(),
		"Reach jane.roe@example.org or 555-123-4567, SSN 123-45-6789",
		KAnonymityConfig{K: 2}, privacy.SensitivityMedium)
	require.NoError(t, err)

	assert.True(t, report.DirectIdentifiersFound)
	assert.Equal(t, []privacy.Kind{privacy.KindEmail, privacy.KindPhone, privacy.KindSSN}, report.DirectIdentifierKinds)
	assert.Equal(t, privacy.SensitivityMedium, report.Sensitivity)
}

func TestValidateQuasiIdentifierNote(t *testing.T) {
	d := newDeidentifier()

	report, err := d.Validate(context.Background(), "clean text",
		KAnonymityConfig{K: 3, QuasiIdentifiers: []string{"age", "zip3"}}, privacy.SensitivityLow)
	require.NoError(t, err)

	assert.Equal(t, []string{"age", "zip3"}, report.QuasiIdentifiers)
	require.Len(t, report.Notes, 1)
	assert.Contains(t, report.Notes[0], "free text")
}

func TestValidateRejectsSmallK(t *testing.T) {
	d := newDeidentifier()

	for _, k := range []int{-1, 0, 1} {
		_, err := d.Validate(context.Background(), "text", KAnonymityConfig{K: k}, privacy.SensitivityLow)
		require.Error(t, err)
		assert.True(t, privacy.IsConfigurationError(err))
	}
}
