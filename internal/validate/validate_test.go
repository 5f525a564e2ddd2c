package validate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/facility-enrich/internal/model"
)

func ptr[T any](v T) *T { return &v }

func fixedClock() func() time.Time {
	return func() time.Time { return time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC) }
}

func change(field model.FieldID, v model.Value, conf model.Confidence) model.ProposedChange {
	return model.ProposedChange{Field: field, Value: v, Source: "https://example.org/facility", Confidence: conf}
}

func TestCitation(t *testing.T) {
	assert.False(t, Citation("").Valid)
	assert.False(t, Citation("  abc ").Valid)
	assert.Equal(t, "no valid source citation", Citation("x").Reason)
	assert.True(t, Citation("https://x").Valid)
}

func TestRegion(t *testing.T) {
	tests := []struct {
		name      string
		in        string
		country   string
		valid     bool
		canonical string
	}{
		{"exact", "Ashanti", "GH", true, "Ashanti"},
		{"case_insensitive", "greater accra", "gh", true, "Greater Accra"},
		{"substring_of_proposal", "Ashanti Region", "GH", true, "Ashanti"},
		{"longest_substring_wins", "Western North Region", "GH", true, "Western North"},
		{"nested_name_in_proposal", "Bono East Region", "GH", true, "Bono East"},
		{"contained_in_one_region", "accra", "GH", true, "Greater Accra"},
		{"ambiguous_fragment", "North", "GH", false, "North"},
		{"ambiguous_prefix", "Upper", "GH", false, "Upper"},
		{"unknown_region", "Lagos", "GH", false, "Lagos"},
		{"no_list_for_country", "Rift Valley", "KE", true, "Rift Valley"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			canonical, r := Region(tt.in, tt.country)
			assert.Equal(t, tt.valid, r.Valid)
			assert.Equal(t, tt.canonical, canonical)
		})
	}

	_, r := Region("Lagos", "GH")
	assert.Contains(t, r.Reason, "Ashanti")
	assert.Contains(t, r.Reason, "valid regions")

	_, r = Region("North", "GH")
	assert.Contains(t, r.Reason, "North East")

	_, r = Region("Rift Valley", "KE")
	assert.Contains(t, r.Reason, "no known region list")
}

func TestAllowLists(t *testing.T) {
	c, r := FacilityType("  Hospital ")
	assert.True(t, r.Valid)
	assert.Equal(t, "hospital", c)

	_, r = FacilityType("teaching hospital")
	assert.False(t, r.Valid)

	c, r = OperatorType("PRIVATE")
	assert.True(t, r.Valid)
	assert.Equal(t, "private", c)

	_, r = OperatorType("mission")
	assert.False(t, r.Valid)
}

func TestNumericRange(t *testing.T) {
	tests := []struct {
		field model.FieldID
		n     float64
		valid bool
	}{
		{model.FieldDoctors, 0, true},
		{model.FieldDoctors, 5000, true},
		{model.FieldDoctors, 5001, false},
		{model.FieldCapacity, -1, false},
		{model.FieldCapacity, 10000, true},
		{model.FieldArea, 9, false},
		{model.FieldArea, 500000, true},
		{model.FieldYearEstablished, 1799, false},
		{model.FieldYearEstablished, 2027, true},
		{model.FieldYearEstablished, 2028, false},
		{model.FieldLat, 91, false},
		{model.FieldLng, -180, true},
	}
	for _, tt := range tests {
		r := NumericRange(tt.field, tt.n, 2026)
		assert.Equal(t, tt.valid, r.Valid, "%s=%v", tt.field, tt.n)
	}
}

func TestContradiction(t *testing.T) {
	num := func(n float64) *model.Value { v := model.NumberValue(n); return &v }
	str := func(s string) *model.Value { v := model.StringValue(s); return &v }
	bl := func(b bool) *model.Value { v := model.BoolValue(b); return &v }

	tests := []struct {
		name     string
		existing *model.Value
		proposed model.Value
		present  bool
		severity model.Severity
	}{
		{"nil_existing", nil, model.NumberValue(5), false, ""},
		{"empty_string_existing", str(" "), model.StringValue("x"), false, ""},
		{"string_equal_fold", str("Ashanti"), model.StringValue("ASHANTI"), false, ""},
		{"string_differs", str("Ashanti"), model.StringValue("Volta"), true, model.SeverityMedium},
		{"number_within_tolerance", num(40), model.NumberValue(41), false, ""},
		{"number_tolerance_floor_one", num(2), model.NumberValue(3), false, ""},
		{"number_medium", num(40), model.NumberValue(55), true, model.SeverityMedium},
		{"number_medium_boundary", num(40), model.NumberValue(60), true, model.SeverityMedium},
		{"number_high", num(40), model.NumberValue(61), true, model.SeverityHigh},
		{"number_zero_existing", num(0), model.NumberValue(5), true, model.SeverityHigh},
		{"bool_same", bl(true), model.BoolValue(true), false, ""},
		{"bool_differs", bl(true), model.BoolValue(false), true, model.SeverityHigh},
		{"kind_mismatch", num(3), model.StringValue("3"), true, model.SeverityHigh},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Contradiction(tt.existing, tt.proposed)
			assert.Equal(t, tt.present, c.Present)
			assert.Equal(t, tt.severity, c.Severity)
		})
	}
}

func TestCheck_FillsMissingRegion(t *testing.T) {
	v := New(WithClock(fixedClock()))
	f := &model.Facility{ID: 1, Country: "Ghana"}

	got := v.Check(f, model.ProposedChange{
		Field: model.FieldRegion, Value: model.StringValue("Ashanti"),
		Source: "https://x", Confidence: model.ConfidenceHigh,
	})
	assert.Equal(t, model.VerdictAccepted, got.Status)
	assert.Contains(t, got.Reason, "fills missing region")
	assert.Nil(t, got.Existing)
	assert.Equal(t, "https://x", got.Source)
}

func TestCheck_CapacityWithinTolerance(t *testing.T) {
	v := New(WithClock(fixedClock()))
	f := &model.Facility{ID: 1, Capacity: ptr(40)}

	got := v.Check(f, change(model.FieldCapacity, model.NumberValue(41), model.ConfidenceMedium))
	assert.Equal(t, model.VerdictAccepted, got.Status)
	require.NotNil(t, got.Existing)
	assert.Equal(t, "40", got.Existing.String())
}

// 9000 passes the 0–10000 range check, so the contradiction check runs next
// and flags it as a high-severity disagreement with 40.
func TestCheck_CapacityHighContradictionIsFlaggedAfterRange(t *testing.T) {
	v := New(WithClock(fixedClock()))
	f := &model.Facility{ID: 1, Capacity: ptr(40)}

	got := v.Check(f, change(model.FieldCapacity, model.NumberValue(9000), model.ConfidenceHigh))
	assert.Equal(t, model.VerdictFlagged, got.Status)
	assert.Equal(t, model.SeverityHigh, got.Severity)
	assert.Contains(t, got.Reason, "high-severity contradiction")

	// Above the range the range check fires first.
	got = v.Check(f, change(model.FieldCapacity, model.NumberValue(12000), model.ConfidenceHigh))
	assert.Equal(t, model.VerdictRejected, got.Status)
	assert.Contains(t, got.Reason, "outside plausible range")
}

func TestCheck_EmptySourceAlwaysRejected(t *testing.T) {
	v := New(WithClock(fixedClock()))
	f := &model.Facility{ID: 1}

	for _, src := range []string{"", "n/a", "    "} {
		got := v.Check(f, model.ProposedChange{
			Field: model.FieldCapacity, Value: model.NumberValue(120),
			Source: src, Confidence: model.ConfidenceHigh,
		})
		assert.Equal(t, model.VerdictRejected, got.Status, "source %q", src)
		assert.Equal(t, "no valid source citation", got.Reason)
	}
}

func TestCheck_CitationRunsBeforeFieldRule(t *testing.T) {
	v := New(WithClock(fixedClock()))
	got := v.Check(&model.Facility{}, model.ProposedChange{
		Field: model.FieldOperatorType, Value: model.StringValue("mission"),
		Source: "", Confidence: model.ConfidenceHigh,
	})
	assert.Equal(t, "no valid source citation", got.Reason)
}

func TestCheck_FacilityTypeMismatchIsFlagged(t *testing.T) {
	v := New(WithClock(fixedClock()))
	got := v.Check(&model.Facility{}, change(model.FieldFacilityType, model.StringValue("teaching hospital"), model.ConfidenceHigh))
	assert.Equal(t, model.VerdictFlagged, got.Status)
	assert.Contains(t, got.Reason, "manual review")

	got = v.Check(&model.Facility{}, change(model.FieldFacilityType, model.StringValue(" Clinic"), model.ConfidenceHigh))
	assert.Equal(t, model.VerdictAccepted, got.Status)
	assert.Equal(t, "clinic", got.Proposed.String())
}

func TestCheck_OperatorTypeMismatchIsRejected(t *testing.T) {
	v := New(WithClock(fixedClock()))
	got := v.Check(&model.Facility{}, change(model.FieldOperatorType, model.StringValue("faith-based"), model.ConfidenceHigh))
	assert.Equal(t, model.VerdictRejected, got.Status)
}

func TestCheck_RegionUnknownRejected(t *testing.T) {
	v := New(WithClock(fixedClock()))
	f := &model.Facility{CountryCode: "GH"}
	got := v.Check(f, change(model.FieldRegion, model.StringValue("Lagos State"), model.ConfidenceHigh))
	assert.Equal(t, model.VerdictRejected, got.Status)
	assert.Contains(t, got.Reason, "Greater Accra")
}

func TestCheck_RegionWithoutListCarriesAdvisory(t *testing.T) {
	v := New(WithClock(fixedClock()))
	f := &model.Facility{CountryCode: "KE"}
	got := v.Check(f, change(model.FieldRegion, model.StringValue("Nairobi County"), model.ConfidenceMedium))
	assert.Equal(t, model.VerdictAccepted, got.Status)
	assert.Contains(t, got.Reason, "fills missing region")
	assert.Contains(t, got.Reason, "no known region list")
}

func TestCheck_KindMismatchRejected(t *testing.T) {
	v := New(WithClock(fixedClock()))
	got := v.Check(&model.Facility{}, change(model.FieldDoctors, model.StringValue("about twenty"), model.ConfidenceMedium))
	assert.Equal(t, model.VerdictRejected, got.Status)
	assert.Contains(t, got.Reason, "expects a number")
}

func TestCheck_UnknownFieldRejected(t *testing.T) {
	v := New(WithClock(fixedClock()))
	got := v.Check(&model.Facility{}, model.ProposedChange{
		RawField: "helipad", Value: model.BoolValue(true),
		Source: "https://x.org", Confidence: model.ConfidenceHigh,
	})
	assert.Equal(t, model.VerdictRejected, got.Status)
	assert.Equal(t, "helipad", got.Field)
	assert.Contains(t, got.Reason, "unknown field")
}

func TestCheck_LowConfidenceContradictionFlagged(t *testing.T) {
	v := New(WithClock(fixedClock()))
	f := &model.Facility{Specialties: ptr("cardiology")}
	got := v.Check(f, change(model.FieldSpecialties, model.StringValue("oncology"), model.ConfidenceLow))
	assert.Equal(t, model.VerdictFlagged, got.Status)
	assert.Contains(t, got.Reason, "low-confidence")
}

func TestCheck_MediumContradictionAccepted(t *testing.T) {
	v := New(WithClock(fixedClock()))
	f := &model.Facility{Specialties: ptr("cardiology")}
	got := v.Check(f, change(model.FieldSpecialties, model.StringValue("cardiology, oncology"), model.ConfidenceMedium))
	assert.Equal(t, model.VerdictAccepted, got.Status)
	assert.Equal(t, model.SeverityMedium, got.Severity)
	assert.Contains(t, got.Reason, "overwrites existing specialties")
}

func TestCheck_FillOnlyNeverFlaggedForGap(t *testing.T) {
	v := New(WithClock(fixedClock()))
	proposals := []model.ProposedChange{
		change(model.FieldDoctors, model.NumberValue(12), model.ConfidenceLow),
		change(model.FieldCapacity, model.NumberValue(9000), model.ConfidenceLow),
		change(model.FieldDescription, model.StringValue("District hospital"), model.ConfidenceLow),
		change(model.FieldYearEstablished, model.NumberValue(1960), model.ConfidenceMedium),
	}
	for _, p := range proposals {
		got := v.Check(&model.Facility{}, p)
		assert.Equal(t, model.VerdictAccepted, got.Status, "%s", p.Field)
	}
}
