// Package model defines the facility record and the ephemeral types that
// flow through the enrichment pipeline.
package model

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// EnrichmentStatus tracks the enrichment lifecycle of a facility.
type EnrichmentStatus string

const (
	StatusIdle      EnrichmentStatus = "idle"
	StatusEnriching EnrichmentStatus = "enriching"
	StatusEnriched  EnrichmentStatus = "enriched"
	StatusFailed    EnrichmentStatus = "failed"
)

// Facility is a real-world healthcare facility record. Optional fields are
// nil when unknown.
type Facility struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Locality    string `json:"locality,omitempty"`
	Country     string `json:"country,omitempty"`
	CountryCode string `json:"country_code,omitempty"`

	Lat             *float64 `json:"lat,omitempty"`
	Lng             *float64 `json:"lng,omitempty"`
	Doctors         *int     `json:"doctors,omitempty"`
	Capacity        *int     `json:"capacity,omitempty"`
	Area            *float64 `json:"area,omitempty"`
	YearEstablished *int     `json:"year_established,omitempty"`

	Region       *string `json:"region,omitempty"`
	FacilityType *string `json:"facility_type,omitempty"`
	OperatorType *string `json:"operator_type,omitempty"`
	Description  *string `json:"description,omitempty"`
	Specialties  *string `json:"specialties,omitempty"`
	Procedures   *string `json:"procedures,omitempty"`
	Equipment    *string `json:"equipment,omitempty"`

	EnrichmentStatus EnrichmentStatus `json:"enrichment_status"`
	LastEnrichmentAt *time.Time       `json:"last_enrichment_at,omitempty"`
}

// Value returns the current value of field. ok is false when the field is
// null or blank.
func (f *Facility) Value(field FieldID) (v Value, ok bool) {
	acc, found := fieldTable[field]
	if !found {
		return Value{}, false
	}
	return acc.get(f)
}

// Has reports whether field currently holds a non-empty value.
func (f *Facility) Has(field FieldID) bool {
	_, ok := f.Value(field)
	return ok
}

// HasCoordinates reports whether both halves of the coordinate pair are set.
func (f *Facility) HasCoordinates() bool {
	return f.Lat != nil && f.Lng != nil
}

// Set stores v into field through the fixed typed-setter table.
func (f *Facility) Set(field FieldID, v Value) error {
	acc, found := fieldTable[field]
	if !found {
		return eris.Wrapf(ErrUnknownField, "%s", field)
	}
	if err := acc.set(f, v); err != nil {
		return eris.Wrapf(err, "set %s to %s value", field, v.Kind())
	}
	return nil
}

// Clone returns a deep copy of f.
func (f *Facility) Clone() *Facility {
	c := *f
	c.Lat = clonePtr(f.Lat)
	c.Lng = clonePtr(f.Lng)
	c.Doctors = clonePtr(f.Doctors)
	c.Capacity = clonePtr(f.Capacity)
	c.Area = clonePtr(f.Area)
	c.YearEstablished = clonePtr(f.YearEstablished)
	c.Region = clonePtr(f.Region)
	c.FacilityType = clonePtr(f.FacilityType)
	c.OperatorType = clonePtr(f.OperatorType)
	c.Description = clonePtr(f.Description)
	c.Specialties = clonePtr(f.Specialties)
	c.Procedures = clonePtr(f.Procedures)
	c.Equipment = clonePtr(f.Equipment)
	c.LastEnrichmentAt = clonePtr(f.LastEnrichmentAt)
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// FieldUpdate is one typed assignment in a Patch.
type FieldUpdate struct {
	Field FieldID `json:"field"`
	Value Value   `json:"value"`
}

// Patch is the ordered write set committed by the applier in one update.
type Patch []FieldUpdate

// Fields returns the field ids in the patch, in order.
func (p Patch) Fields() []FieldID {
	out := make([]FieldID, len(p))
	for i, u := range p {
		out[i] = u.Field
	}
	return out
}

// Lookup returns the value assigned to field, if any.
func (p Patch) Lookup(field FieldID) (Value, bool) {
	for _, u := range p {
		if u.Field == field {
			return u.Value, true
		}
	}
	return Value{}, false
}

// ApplyTo sets every update on f. It stops at the first kind mismatch.
func (p Patch) ApplyTo(f *Facility) error {
	for _, u := range p {
		if err := f.Set(u.Field, u.Value); err != nil {
			return err
		}
	}
	return nil
}

var countryCodes = map[string]string{
	"ghana":         "GH",
	"nigeria":       "NG",
	"kenya":         "KE",
	"togo":          "TG",
	"burkina faso":  "BF",
	"cote d'ivoire": "CI",
	"ivory coast":   "CI",
}

// ISOCountry returns the facility's ISO 3166-1 alpha-2 country code, using
// CountryCode when set and otherwise resolving the country name.
func (f *Facility) ISOCountry() string {
	if code := strings.TrimSpace(f.CountryCode); code != "" {
		return strings.ToUpper(code)
	}
	return countryCodes[strings.ToLower(strings.TrimSpace(f.Country))]
}
