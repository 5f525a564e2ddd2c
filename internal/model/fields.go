package model

import (
	"math"
	"strings"

	"github.com/rotisserie/eris"
)

// FieldID identifies one enrichable facility field. The set is closed:
// anything outside it is rejected instead of being silently ignored.
type FieldID int

const (
	// FieldUnknown is the zero FieldID and never maps to a column.
	FieldUnknown FieldID = iota
	FieldLat
	FieldLng
	FieldDoctors
	FieldCapacity
	FieldArea
	FieldYearEstablished
	FieldRegion
	FieldFacilityType
	FieldOperatorType
	FieldDescription
	FieldSpecialties
	FieldProcedures
	FieldEquipment
)

// ErrUnknownField is returned for field names outside the closed set.
var ErrUnknownField = eris.New("model: unknown field")

// ErrKindMismatch is returned when a Value's kind does not fit the field.
var ErrKindMismatch = eris.New("model: value kind does not match field")

var fieldNames = map[FieldID]string{
	FieldLat:             "lat",
	FieldLng:             "lng",
	FieldDoctors:         "doctors",
	FieldCapacity:        "capacity",
	FieldArea:            "area",
	FieldYearEstablished: "year_established",
	FieldRegion:          "region",
	FieldFacilityType:    "facility_type",
	FieldOperatorType:    "operator_type",
	FieldDescription:     "description",
	FieldSpecialties:     "specialties",
	FieldProcedures:      "procedures",
	FieldEquipment:       "equipment",
}

// fieldAliases maps alternate spellings used by callers and upstream
// extractors onto canonical fields.
var fieldAliases = map[string]FieldID{
	"latitude":                FieldLat,
	"longitude":               FieldLng,
	"lon":                     FieldLng,
	"number_doctors":          FieldDoctors,
	"doctor_count":            FieldDoctors,
	"beds":                    FieldCapacity,
	"bed_capacity":            FieldCapacity,
	"floor_area":              FieldArea,
	"founding_year":           FieldYearEstablished,
	"address_state_or_region": FieldRegion,
	"facility_type_id":        FieldFacilityType,
	"operator_type_id":        FieldOperatorType,
}

var fieldsByName = func() map[string]FieldID {
	m := make(map[string]FieldID, len(fieldNames)+len(fieldAliases))
	for id, name := range fieldNames {
		m[name] = id
	}
	for alias, id := range fieldAliases {
		m[alias] = id
	}
	return m
}()

// AllFields lists every enrichable field in declaration order.
func AllFields() []FieldID {
	out := make([]FieldID, 0, len(fieldNames))
	for id := FieldLat; id <= FieldEquipment; id++ {
		out = append(out, id)
	}
	return out
}

// ParseFieldID resolves a canonical field name or alias, case-insensitively.
func ParseFieldID(name string) (FieldID, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	key = strings.ReplaceAll(key, "-", "_")
	if id, ok := fieldsByName[key]; ok {
		return id, nil
	}
	// camelCase callers: numberDoctors, yearEstablished, ...
	if id, ok := fieldsByName[camelToSnake(strings.TrimSpace(name))]; ok {
		return id, nil
	}
	return FieldUnknown, eris.Wrapf(ErrUnknownField, "%q", name)
}

func camelToSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (f FieldID) String() string {
	if name, ok := fieldNames[f]; ok {
		return name
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (f FieldID) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *FieldID) UnmarshalText(text []byte) error {
	id, err := ParseFieldID(string(text))
	if err != nil {
		return err
	}
	*f = id
	return nil
}

// Kind returns the Value kind the field stores.
func (f FieldID) Kind() Kind {
	switch f {
	case FieldLat, FieldLng, FieldDoctors, FieldCapacity, FieldArea, FieldYearEstablished:
		return KindNumber
	case FieldUnknown:
		return 0
	default:
		return KindString
	}
}

// IsCoordinate reports whether f is half of the coordinate pair.
func (f FieldID) IsCoordinate() bool { return f == FieldLat || f == FieldLng }

type fieldAccess struct {
	get func(*Facility) (Value, bool)
	set func(*Facility, Value) error
}

func floatField(p func(*Facility) **float64) fieldAccess {
	return fieldAccess{
		get: func(f *Facility) (Value, bool) {
			v := *p(f)
			if v == nil {
				return Value{}, false
			}
			return NumberValue(*v), true
		},
		set: func(f *Facility, v Value) error {
			n, ok := v.Num()
			if !ok {
				return ErrKindMismatch
			}
			*p(f) = &n
			return nil
		},
	}
}

func intField(p func(*Facility) **int) fieldAccess {
	return fieldAccess{
		get: func(f *Facility) (Value, bool) {
			v := *p(f)
			if v == nil {
				return Value{}, false
			}
			return NumberValue(float64(*v)), true
		},
		set: func(f *Facility, v Value) error {
			n, ok := v.Num()
			if !ok {
				return ErrKindMismatch
			}
			i := int(math.Round(n))
			*p(f) = &i
			return nil
		},
	}
}

func stringField(p func(*Facility) **string) fieldAccess {
	return fieldAccess{
		get: func(f *Facility) (Value, bool) {
			v := *p(f)
			if v == nil || strings.TrimSpace(*v) == "" {
				return Value{}, false
			}
			return StringValue(*v), true
		},
		set: func(f *Facility, v Value) error {
			s, ok := v.Str()
			if !ok {
				return ErrKindMismatch
			}
			*p(f) = &s
			return nil
		},
	}
}

// fieldTable is the fixed mapping from FieldID to typed accessors.
var fieldTable = map[FieldID]fieldAccess{
	FieldLat:             floatField(func(f *Facility) **float64 { return &f.Lat }),
	FieldLng:             floatField(func(f *Facility) **float64 { return &f.Lng }),
	FieldDoctors:         intField(func(f *Facility) **int { return &f.Doctors }),
	FieldCapacity:        intField(func(f *Facility) **int { return &f.Capacity }),
	FieldArea:            floatField(func(f *Facility) **float64 { return &f.Area }),
	FieldYearEstablished: intField(func(f *Facility) **int { return &f.YearEstablished }),
	FieldRegion:          stringField(func(f *Facility) **string { return &f.Region }),
	FieldFacilityType:    stringField(func(f *Facility) **string { return &f.FacilityType }),
	FieldOperatorType:    stringField(func(f *Facility) **string { return &f.OperatorType }),
	FieldDescription:     stringField(func(f *Facility) **string { return &f.Description }),
	FieldSpecialties:     stringField(func(f *Facility) **string { return &f.Specialties }),
	FieldProcedures:      stringField(func(f *Facility) **string { return &f.Procedures }),
	FieldEquipment:       stringField(func(f *Facility) **string { return &f.Equipment }),
}
