package model

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Confidence is the coarse reliability tier a strategy attaches to a change.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Rank orders tiers: high > medium > low > anything unrecognised.
func (c Confidence) Rank() int {
	switch c {
	case ConfidenceHigh:
		return 3
	case ConfidenceMedium:
		return 2
	case ConfidenceLow:
		return 1
	default:
		return 0
	}
}

// ParseConfidence normalises a tier name. Unknown tiers are an error.
func ParseConfidence(s string) (Confidence, error) {
	c := Confidence(strings.ToLower(strings.TrimSpace(s)))
	if c.Rank() == 0 {
		return "", eris.Errorf("model: unknown confidence tier %q", s)
	}
	return c, nil
}

// StrategyName names one independent sourcing method.
type StrategyName string

const (
	StrategyGeocode   StrategyName = "geocode"
	StrategyWebSearch StrategyName = "web-search"
	StrategyOSMLookup StrategyName = "osm-lookup"
)

// ProposedChange is a candidate value for one field. It is never persisted
// on its own.
type ProposedChange struct {
	Field FieldID `json:"field"`
	// RawField keeps the caller's spelling when Field could not be resolved.
	RawField   string       `json:"raw_field,omitempty"`
	Value      Value        `json:"value"`
	Source     string       `json:"source"`
	Confidence Confidence   `json:"confidence"`
	Strategy   StrategyName `json:"strategy,omitempty"`
}

// FieldName returns the canonical field name, or the raw name for unknown fields.
func (c ProposedChange) FieldName() string {
	if c.Field == FieldUnknown && c.RawField != "" {
		return c.RawField
	}
	return c.Field.String()
}

// StrategyResult is the output of one strategy runner.
type StrategyResult struct {
	Strategy StrategyName     `json:"strategy"`
	Changes  []ProposedChange `json:"changes"`
}

// GapAnalysis is derived from a facility: which strategies to run and which
// fields are missing.
type GapAnalysis struct {
	Strategies    []StrategyName `json:"strategies"`
	MissingFields []FieldID      `json:"missing_fields"`
}

// Empty reports whether there is nothing to enrich.
func (g GapAnalysis) Empty() bool { return len(g.Strategies) == 0 }

// Needs reports whether name is in the strategy set.
func (g GapAnalysis) Needs(name StrategyName) bool {
	for _, s := range g.Strategies {
		if s == name {
			return true
		}
	}
	return false
}
