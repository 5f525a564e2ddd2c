// Package store persists facility records for the enrichment pipeline.
package store

import (
	"context"
	"math"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/facility-enrich/internal/model"
)

// ErrNotFound is returned when no facility exists for an id.
var ErrNotFound = eris.New("store: facility not found")

// Store is the record-store contract the pipeline depends on. Status columns
// are written only through SetEnrichmentStatus and ClaimEnrichment.
type Store interface {
	GetFacility(ctx context.Context, id int64) (*model.Facility, error)
	// UpdateFields writes every update in patch in a single statement.
	UpdateFields(ctx context.Context, id int64, patch model.Patch) error
	SetEnrichmentStatus(ctx context.Context, id int64, status model.EnrichmentStatus, at time.Time) error
	// ClaimEnrichment moves the record to enriching only if its status is
	// still expected. It reports false when another writer got there first.
	ClaimEnrichment(ctx context.Context, id int64, expected model.EnrichmentStatus, at time.Time) (bool, error)

	Migrate(ctx context.Context) error
	Close() error
}

// columns maps every writable field to its column.
var columns = map[model.FieldID]string{
	model.FieldLat:             "lat",
	model.FieldLng:             "lng",
	model.FieldDoctors:         "doctors",
	model.FieldCapacity:        "capacity",
	model.FieldArea:            "area",
	model.FieldYearEstablished: "year_established",
	model.FieldRegion:          "region",
	model.FieldFacilityType:    "facility_type",
	model.FieldOperatorType:    "operator_type",
	model.FieldDescription:     "description",
	model.FieldSpecialties:     "specialties",
	model.FieldProcedures:      "procedures",
	model.FieldEquipment:       "equipment",
}

// Column returns the column backing field.
func Column(field model.FieldID) (string, error) {
	col, ok := columns[field]
	if !ok {
		return "", eris.Wrapf(model.ErrUnknownField, "store: no column for %s", field)
	}
	return col, nil
}

// facilityColumns is the select list shared by both implementations.
const facilityColumns = `id, name, locality, country, country_code,
	lat, lng, doctors, capacity, area, year_established,
	region, facility_type, operator_type, description, specialties, procedures, equipment,
	enrichment_status, last_enrichment_at`

// integerColumns round numeric values before binding.
var integerColumns = map[model.FieldID]bool{
	model.FieldDoctors:         true,
	model.FieldCapacity:        true,
	model.FieldYearEstablished: true,
}

// setArgs turns a patch into column names and driver values.
func setArgs(patch model.Patch) ([]string, []any, error) {
	if len(patch) == 0 {
		return nil, nil, eris.New("store: empty patch")
	}
	cols := make([]string, 0, len(patch))
	args := make([]any, 0, len(patch))
	for _, u := range patch {
		col, err := Column(u.Field)
		if err != nil {
			return nil, nil, err
		}
		arg, err := bindValue(u.Field, u.Value)
		if err != nil {
			return nil, nil, eris.Wrapf(err, "store: bind %s", col)
		}
		cols = append(cols, col)
		args = append(args, arg)
	}
	return cols, args, nil
}

func bindValue(field model.FieldID, v model.Value) (any, error) {
	if v.Kind() != field.Kind() {
		return nil, model.ErrKindMismatch
	}
	switch v.Kind() {
	case model.KindNumber:
		n, _ := v.Num()
		if integerColumns[field] {
			return int64(math.Round(n)), nil
		}
		return n, nil
	case model.KindBool:
		b, _ := v.Bool()
		return b, nil
	default:
		s, _ := v.Str()
		return s, nil
	}
}

// coordinates returns the lat/lng pair when patch writes both halves.
func coordinates(patch model.Patch) (lat, lng float64, ok bool) {
	latV, hasLat := patch.Lookup(model.FieldLat)
	lngV, hasLng := patch.Lookup(model.FieldLng)
	if !hasLat || !hasLng {
		return 0, 0, false
	}
	lat, okLat := latV.Num()
	lng, okLng := lngV.Num()
	return lat, lng, okLat && okLng
}
