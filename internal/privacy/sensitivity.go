package privacy

import "strings"

// Sensitivity selects the confidence threshold a candidate must reach
type Sensitivity string

const (
	SensitivityLow      Sensitivity = "low"
	SensitivityMedium   Sensitivity = "medium"
	SensitivityHigh     Sensitivity = "high"
	SensitivityParanoid Sensitivity = "paranoid"
)

// DefaultSensitivity applies when a caller leaves sensitivity empty
const DefaultSensitivity = SensitivityMedium

var thresholds = map[Sensitivity]float64{
	SensitivityLow:      0.55,
	SensitivityMedium:   0.65,
	SensitivityHigh:     0.75,
	SensitivityParanoid: 0.55, // same as low; callers decide any fail-closed policy
}

// ParseSensitivity converts a configuration string into a Sensitivity.
// The empty string yields DefaultSensitivity.
func ParseSensitivity(s string) (Sensitivity, error) {
	if s == "" {
		return DefaultSensitivity, nil
	}
	level := Sensitivity(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := thresholds[level]; !ok {
		return "", NewConfigurationError("sensitivity", "unknown level %q (must be low, medium, high, or paranoid)", s)
	}
	return level, nil
}

// Threshold returns the minimum accepted confidence for the level.
// Unknown levels fall back to the default level's threshold.
func (s Sensitivity) Threshold() float64 {
	if t, ok := thresholds[s]; ok {
		return t
	}
	return thresholds[DefaultSensitivity]
}

// Valid reports whether s is a known level
func (s Sensitivity) Valid() bool {
	_, ok := thresholds[s]
	return ok
}
