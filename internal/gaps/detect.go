// Package gaps decides which enrichment strategies a facility needs.
package gaps

import (
	"github.com/sells-group/facility-enrich/internal/model"
)

// webSearchFields can all be sourced from a web search + extraction pass.
var webSearchFields = []model.FieldID{
	model.FieldDoctors,
	model.FieldCapacity,
	model.FieldArea,
	model.FieldYearEstablished,
	model.FieldSpecialties,
	model.FieldProcedures,
	model.FieldEquipment,
	model.FieldRegion,
	model.FieldDescription,
}

// osmFields are the fields an OpenStreetMap cross-reference can supply.
var osmFields = []model.FieldID{
	model.FieldSpecialties,
	model.FieldProcedures,
	model.FieldEquipment,
	model.FieldCapacity,
}

// Detect inspects f and returns the strategies to run plus the fields
// considered missing. It performs no I/O.
func Detect(f *model.Facility) model.GapAnalysis {
	var out model.GapAnalysis
	seen := make(map[model.FieldID]bool)
	addMissing := func(id model.FieldID) {
		if !seen[id] {
			seen[id] = true
			out.MissingFields = append(out.MissingFields, id)
		}
	}

	hasCoords := f.HasCoordinates()
	if !hasCoords {
		if f.Lat == nil {
			addMissing(model.FieldLat)
		}
		if f.Lng == nil {
			addMissing(model.FieldLng)
		}
		if !IsPlaceholder(f.Locality) {
			out.Strategies = append(out.Strategies, model.StrategyGeocode)
		}
	}

	if missing := missingOf(f, webSearchFields); len(missing) > 0 {
		for _, id := range missing {
			addMissing(id)
		}
		out.Strategies = append(out.Strategies, model.StrategyWebSearch)
	}

	if hasCoords || hasReferencePoint(f) {
		if missing := missingOf(f, osmFields); len(missing) > 0 {
			for _, id := range missing {
				addMissing(id)
			}
			out.Strategies = append(out.Strategies, model.StrategyOSMLookup)
		}
	}

	return out
}

// SearchCenter returns the point a map lookup should search around: the
// facility's own coordinates when present, otherwise its locality's
// reference point.
func SearchCenter(f *model.Facility) (Point, bool) {
	if f.HasCoordinates() {
		return Point{Lat: *f.Lat, Lng: *f.Lng}, true
	}
	return ReferencePoint(f.Locality, f.ISOCountry())
}

func hasReferencePoint(f *model.Facility) bool {
	_, ok := ReferencePoint(f.Locality, f.ISOCountry())
	return ok
}

func missingOf(f *model.Facility, fields []model.FieldID) []model.FieldID {
	var out []model.FieldID
	for _, id := range fields {
		if !f.Has(id) {
			out = append(out, id)
		}
	}
	return out
}
