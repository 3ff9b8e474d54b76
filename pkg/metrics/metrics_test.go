package metrics_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/greenlens/internal/faults"
	"github.com/xhad/greenlens/internal/models"
	"github.com/xhad/greenlens/pkg/metrics"
)

func metricsServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/companies/acme/metrics", r.URL.Path)
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchSnapshot(t *testing.T) {
	srv := metricsServer(t, http.StatusOK, `{
		"period": "2025",
		"metrics": {
			"scope1_emissions_tco2e": {"name": "scope1_emissions_tco2e", "value": 1200.5, "unit": "tCO2e"},
			"renewable_energy_share_pct": {"name": "renewable_energy_share_pct", "value": 42, "unit": "%"}
		}
	}`)

	p := metrics.NewProvider(metrics.ProviderConfig{BaseURL: srv.URL}, nil)
	snap, err := p.Fetch(context.Background(), "acme")
	require.NoError(t, err)

	assert.Equal(t, "acme", snap.CompanyID)
	assert.False(t, snap.FetchedAt.IsZero())

	scope1, ok := snap.Metric("scope1_emissions_tco2e")
	require.True(t, ok)
	assert.Equal(t, 1200.5, scope1.Value)
	assert.Equal(t, "tCO2e", scope1.Unit)

	_, ok = snap.Metric("water_withdrawal_change_pct")
	assert.False(t, ok)
}

func TestFetchUnknownCompany(t *testing.T) {
	srv := metricsServer(t, http.StatusNotFound, `{"error": "unknown company"}`)

	p := metrics.NewProvider(metrics.ProviderConfig{BaseURL: srv.URL}, nil)
	_, err := p.Fetch(context.Background(), "acme")
	assert.ErrorIs(t, err, faults.ErrNotFound)
}

func TestFetchRateLimited(t *testing.T) {
	srv := metricsServer(t, http.StatusTooManyRequests, "")

	p := metrics.NewProvider(metrics.ProviderConfig{BaseURL: srv.URL}, nil)
	_, err := p.Fetch(context.Background(), "acme")
	assert.ErrorIs(t, err, faults.ErrRateLimited)
	assert.True(t, faults.IsTransient(err))
}

func TestFetchUnreachableProvider(t *testing.T) {
	p := metrics.NewProvider(metrics.ProviderConfig{BaseURL: "http://127.0.0.1:1"}, nil)
	_, err := p.Fetch(context.Background(), "acme")
	assert.ErrorIs(t, err, faults.ErrTimeout)
}

func TestRefreshReplacesSnapshotWhole(t *testing.T) {
	srv := metricsServer(t, http.StatusOK, `{
		"metrics": {"scope1_emissions_tco2e": {"name": "scope1_emissions_tco2e", "value": 900, "unit": "tCO2e"}}
	}`)

	p := metrics.NewProvider(metrics.ProviderConfig{BaseURL: srv.URL}, nil)
	company := models.NewCompany("acme", "Acme Corp")

	stale := &models.MetricSnapshot{
		CompanyID: "acme",
		Metrics: map[string]models.MetricValue{
			"scope1_emissions_tco2e":   {Name: "scope1_emissions_tco2e", Value: 5000, Unit: "tCO2e"},
			"waste_recycled_share_pct": {Name: "waste_recycled_share_pct", Value: 10, Unit: "%"},
		},
	}
	company.ReplaceSnapshot(stale)

	require.NoError(t, metrics.Refresh(context.Background(), p, company))

	snap := company.Snapshot()
	scope1, ok := snap.Metric("scope1_emissions_tco2e")
	require.True(t, ok)
	assert.Equal(t, 900.0, scope1.Value)

	// Whole-snapshot replacement: stale metrics do not linger.
	_, ok = snap.Metric("waste_recycled_share_pct")
	assert.False(t, ok)
}
