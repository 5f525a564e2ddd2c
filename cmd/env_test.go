package main

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/facility-enrich/internal/config"
	"github.com/sells-group/facility-enrich/internal/metrics"
	"github.com/sells-group/facility-enrich/internal/model"
	"github.com/sells-group/facility-enrich/internal/resilience"
)

func TestBuildRunners_Names(t *testing.T) {
	runners := buildRunners(&config.Config{}, nil, nil)
	require.Len(t, runners, 3)
	assert.Equal(t, model.StrategyGeocode, runners[0].Name())
	assert.Equal(t, model.StrategyWebSearch, runners[1].Name())
	assert.Equal(t, model.StrategyOSMLookup, runners[2].Name())
}

func TestNewBreaker_ReportsState(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	cb := newBreaker("geocode", config.ResilienceConfig{FailureThreshold: 1}, m)

	_, err := resilience.Call(t.Context(), cb, resilience.RetryConfig{MaxAttempts: 1}, func(_ context.Context) (int, error) {
		return 0, resilience.NewTransientError(assert.AnError, 503)
	})
	require.Error(t, err)
	assert.Equal(t, resilience.CircuitOpen, cb.State())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BreakerState.WithLabelValues("geocode")))
}

func TestInitStore_UnknownDriver(t *testing.T) {
	cfg = &config.Config{Store: config.StoreConfig{Driver: "mysql"}}
	t.Cleanup(func() { cfg = nil })

	_, err := initStore(t.Context())
	assert.Error(t, err)
}

func TestInitStore_SQLite(t *testing.T) {
	cfg = &config.Config{Store: config.StoreConfig{Driver: "sqlite", DatabaseURL: t.TempDir() + "/cmd.db"}}
	t.Cleanup(func() { cfg = nil })

	st, err := initStore(t.Context())
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck
	assert.NoError(t, st.Migrate(t.Context()))
}

func TestParseProposals(t *testing.T) {
	changes, err := parseProposals([]byte(`[{"field":"beds","value":"120","source":"https://x.example","confidence":"medium"}]`))
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, model.FieldCapacity, changes[0].Field)

	_, err = parseProposals([]byte(`[]`))
	assert.Error(t, err)
	_, err = parseProposals([]byte(`{`))
	assert.Error(t, err)
}
