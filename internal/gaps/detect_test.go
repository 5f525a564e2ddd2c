package gaps

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/facility-enrich/internal/model"
)

func ptr[T any](v T) *T { return &v }

func fullFacility() *model.Facility {
	return &model.Facility{
		ID:              1,
		Name:            "Komfo Anokye Teaching Hospital",
		Locality:        "Kumasi",
		Country:         "Ghana",
		Lat:             ptr(6.6973),
		Lng:             ptr(-1.6286),
		Doctors:         ptr(320),
		Capacity:        ptr(1200),
		Area:            ptr(45000.0),
		YearEstablished: ptr(1954),
		Region:          ptr("Ashanti"),
		FacilityType:    ptr("hospital"),
		OperatorType:    ptr("public"),
		Description:     ptr("Second largest hospital in Ghana."),
		Specialties:     ptr("cardiology, oncology"),
		Procedures:      ptr("dialysis"),
		Equipment:       ptr("MRI"),
	}
}

func TestDetect_FullyPopulated(t *testing.T) {
	g := Detect(fullFacility())
	assert.True(t, g.Empty())
	assert.Empty(t, g.Strategies)
	assert.Empty(t, g.MissingFields)
}

func TestDetect_MissingCoordinatesWithLocality(t *testing.T) {
	f := fullFacility()
	f.Lat, f.Lng = nil, nil

	g := Detect(f)
	assert.Equal(t, []model.StrategyName{model.StrategyGeocode}, g.Strategies)
	assert.Equal(t, []model.FieldID{model.FieldLat, model.FieldLng}, g.MissingFields)
}

func TestDetect_MissingCoordinatesPlaceholderLocality(t *testing.T) {
	for _, loc := range []string{"", "  ", "Unknown", "N/A", "-"} {
		f := fullFacility()
		f.Lat, f.Lng = nil, nil
		f.Locality = loc

		g := Detect(f)
		assert.False(t, g.Needs(model.StrategyGeocode), "locality %q", loc)
		assert.Contains(t, g.MissingFields, model.FieldLat)
	}
}

func TestDetect_WebSearchFields(t *testing.T) {
	f := fullFacility()
	f.Doctors = nil
	f.Description = ptr("")

	g := Detect(f)
	assert.Equal(t, []model.StrategyName{model.StrategyWebSearch}, g.Strategies)
	assert.Equal(t, []model.FieldID{model.FieldDoctors, model.FieldDescription}, g.MissingFields)
}

func TestDetect_OSMWithCoordinates(t *testing.T) {
	f := fullFacility()
	f.Capacity = nil

	g := Detect(f)
	assert.Equal(t, []model.StrategyName{model.StrategyWebSearch, model.StrategyOSMLookup}, g.Strategies)
	assert.Equal(t, []model.FieldID{model.FieldCapacity}, g.MissingFields)
}

func TestDetect_OSMWithReferencePoint(t *testing.T) {
	f := fullFacility()
	f.Lat, f.Lng = nil, nil
	f.Equipment = nil

	g := Detect(f)
	assert.Equal(t, []model.StrategyName{
		model.StrategyGeocode, model.StrategyWebSearch, model.StrategyOSMLookup,
	}, g.Strategies)
}

func TestDetect_NoOSMWithoutAnyLocation(t *testing.T) {
	f := fullFacility()
	f.Lat, f.Lng = nil, nil
	f.Locality = "Nowhereville"
	f.Specialties = nil

	g := Detect(f)
	assert.True(t, g.Needs(model.StrategyGeocode))
	assert.True(t, g.Needs(model.StrategyWebSearch))
	assert.False(t, g.Needs(model.StrategyOSMLookup))
}

func TestDetect_OSMFieldNotTriggeringWithoutGap(t *testing.T) {
	f := fullFacility()
	f.Region = nil

	g := Detect(f)
	assert.Equal(t, []model.StrategyName{model.StrategyWebSearch}, g.Strategies)
}

func TestDetect_Deterministic(t *testing.T) {
	f := fullFacility()
	f.Lat, f.Lng, f.Capacity, f.Region = nil, nil, nil, nil
	first := Detect(f)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Detect(f))
	}
}

func TestReferencePoint(t *testing.T) {
	p, ok := ReferencePoint(" Kumasi ", "gh")
	assert.True(t, ok)
	assert.InDelta(t, 6.6885, p.Lat, 0.0001)

	p, ok = ReferencePoint("Cape  Coast", "")
	assert.True(t, ok)
	assert.InDelta(t, -1.2466, p.Lng, 0.0001)

	_, ok = ReferencePoint("Kumasi", "KE")
	assert.False(t, ok)

	_, ok = ReferencePoint("unknown", "GH")
	assert.False(t, ok)
}

func TestSearchCenter(t *testing.T) {
	f := fullFacility()
	p, ok := SearchCenter(f)
	assert.True(t, ok)
	assert.InDelta(t, 6.6973, p.Lat, 0.0001)

	f.Lat, f.Lng = nil, nil
	p, ok = SearchCenter(f)
	assert.True(t, ok)
	assert.InDelta(t, 6.6885, p.Lat, 0.0001)
}
