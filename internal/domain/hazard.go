package domain

import "fmt"

// HazardType classifies a hazard event.
type HazardType uint8

const (
	Storm HazardType = iota + 1
	Pollution
	Erosion
	IllegalActivity
)

// HazardTypes lists every hazard type in sweep order.
var HazardTypes = []HazardType{Storm, Pollution, Erosion, IllegalActivity}

var hazardNames = map[HazardType]string{
	Storm:           "storm",
	Pollution:       "pollution",
	Erosion:         "erosion",
	IllegalActivity: "illegal_activity",
}

func (h HazardType) String() string {
	if name, ok := hazardNames[h]; ok {
		return name
	}
	return fmt.Sprintf("hazard(%d)", uint8(h))
}

// ParseHazardType maps a wire name such as "illegal_activity" to its type.
func ParseHazardType(s string) (HazardType, bool) {
	for h, name := range hazardNames {
		if name == s {
			return h, true
		}
	}
	return 0, false
}

func (h HazardType) MarshalText() ([]byte, error) {
	if _, ok := hazardNames[h]; !ok {
		return nil, fmt.Errorf("unknown hazard type %d", uint8(h))
	}
	return []byte(h.String()), nil
}

func (h *HazardType) UnmarshalText(text []byte) error {
	parsed, ok := ParseHazardType(string(text))
	if !ok {
		return fmt.Errorf("unknown hazard type %q", text)
	}
	*h = parsed
	return nil
}

// Severity is ordered: SeverityLow < SeverityMedium < SeverityHigh < SeverityCritical.
type Severity uint8

const (
	SeverityLow Severity = iota + 1
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

var severityNames = map[Severity]string{
	SeverityLow:      "low",
	SeverityMedium:   "medium",
	SeverityHigh:     "high",
	SeverityCritical: "critical",
}

func (s Severity) String() string {
	if name, ok := severityNames[s]; ok {
		return name
	}
	return fmt.Sprintf("severity(%d)", uint8(s))
}

// ParseSeverity maps "low", "medium", "high" or "critical" to a Severity.
func ParseSeverity(s string) (Severity, bool) {
	for sev, name := range severityNames {
		if name == s {
			return sev, true
		}
	}
	return 0, false
}

func (s Severity) MarshalText() ([]byte, error) {
	if _, ok := severityNames[s]; !ok {
		return nil, fmt.Errorf("unknown severity %d", uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(text []byte) error {
	parsed, ok := ParseSeverity(string(text))
	if !ok {
		return fmt.Errorf("unknown severity %q", text)
	}
	*s = parsed
	return nil
}

// HazardRule describes how often a hazard type fires and what it looks like.
type HazardRule struct {
	Type        HazardType
	Probability float64
	Severities  []Severity
	Description string
}

var hazardRules = []HazardRule{
	{
		Type:        Storm,
		Probability: 0.10,
		Severities:  []Severity{SeverityMedium, SeverityHigh, SeverityCritical},
		Description: "Severe weather system detected with high winds and dangerous surf conditions",
	},
	{
		Type:        Pollution,
		Probability: 0.15,
		Severities:  []Severity{SeverityLow, SeverityMedium, SeverityHigh},
		Description: "Water quality degradation detected - possible contamination event",
	},
	{
		Type:        Erosion,
		Probability: 0.08,
		Severities:  []Severity{SeverityLow, SeverityMedium, SeverityHigh},
		Description: "Accelerated coastal erosion observed - infrastructure at risk",
	},
	{
		Type:        IllegalActivity,
		Probability: 0.05,
		Severities:  []Severity{SeverityMedium, SeverityHigh},
		Description: "Suspicious vessel activity detected in protected marine area",
	},
}

// HazardRules returns a copy of the hazard catalog in sweep order.
func HazardRules() []HazardRule {
	out := make([]HazardRule, len(hazardRules))
	for i, r := range hazardRules {
		r.Severities = append([]Severity(nil), r.Severities...)
		out[i] = r
	}
	return out
}
