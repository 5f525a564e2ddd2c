package strategy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/facility-enrich/internal/model"
)

func ptr[T any](v T) *T { return &v }

type funcRunner struct {
	name model.StrategyName
	fn   func(ctx context.Context, f *model.Facility) model.StrategyResult
}

func (r funcRunner) Name() model.StrategyName { return r.name }

func (r funcRunner) Run(ctx context.Context, f *model.Facility) model.StrategyResult {
	return r.fn(ctx, f)
}

func TestRunWithTimeout_TagsStrategy(t *testing.T) {
	r := funcRunner{name: model.StrategyGeocode, fn: func(context.Context, *model.Facility) model.StrategyResult {
		return model.StrategyResult{Changes: []model.ProposedChange{
			{Field: model.FieldLat, Value: model.NumberValue(1), Source: "https://geo", Confidence: model.ConfidenceHigh},
		}}
	}}

	res := RunWithTimeout(context.Background(), r, &model.Facility{ID: 1}, time.Second)
	assert.Equal(t, model.StrategyGeocode, res.Strategy)
	require.Len(t, res.Changes, 1)
	assert.Equal(t, model.StrategyGeocode, res.Changes[0].Strategy)
}

func TestRunWithTimeout_Overrun(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	r := funcRunner{name: model.StrategyWebSearch, fn: func(context.Context, *model.Facility) model.StrategyResult {
		<-release
		return model.StrategyResult{Changes: []model.ProposedChange{{Field: model.FieldDoctors}}}
	}}

	start := time.Now()
	res := RunWithTimeout(context.Background(), r, &model.Facility{ID: 1}, 20*time.Millisecond)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, model.StrategyWebSearch, res.Strategy)
	assert.Empty(t, res.Changes)
}

func TestRunWithTimeout_Panic(t *testing.T) {
	r := funcRunner{name: model.StrategyOSMLookup, fn: func(context.Context, *model.Facility) model.StrategyResult {
		panic("boom")
	}}

	res := RunWithTimeout(context.Background(), r, &model.Facility{ID: 1}, time.Second)
	assert.Equal(t, model.StrategyOSMLookup, res.Strategy)
	assert.Empty(t, res.Changes)
}

func TestRunWithTimeout_RunnerSeesCopy(t *testing.T) {
	r := funcRunner{name: model.StrategyGeocode, fn: func(_ context.Context, f *model.Facility) model.StrategyResult {
		*f.Region = "mutated"
		return model.StrategyResult{}
	}}
	f := &model.Facility{ID: 1, Region: ptr("Ashanti")}

	RunWithTimeout(context.Background(), r, f, time.Second)
	assert.Equal(t, "Ashanti", *f.Region)
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in   any
		want float64
		ok   bool
	}{
		{float64(42), 42, true},
		{"1,200", 1200, true},
		{" 3 500 ", 3500, true},
		{"12.5", 12.5, true},
		{"12,345.5", 12345.5, true},
		{"1_000_000", 1000000, true},
		{"1,2,3", 0, false},
		{"12,34", 0, false},
		{"1,200 500", 0, false},
		{"about fifty", 0, false},
		{"", 0, false},
		{nil, 0, false},
		{true, 0, false},
		{"NaN", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseNumber(tt.in)
		assert.Equal(t, tt.ok, ok, "%v", tt.in)
		if tt.ok {
			assert.InDelta(t, tt.want, got, 1e-9, "%v", tt.in)
		}
	}
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "hopital saint-jean", normalizeName("  Hôpital   Saint-Jean "))
	assert.Equal(t, "", normalizeName("   "))
}

func TestDistanceMeters(t *testing.T) {
	assert.InDelta(t, 0, distanceMeters(5.6, -0.18, 5.6, -0.18), 1e-6)
	// One degree of latitude is about 111 km.
	assert.InDelta(t, 111195, distanceMeters(0, 0, 1, 0), 100)
}
