package cli

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mchmarny/veracity/pkg/config"
	"github.com/mchmarny/veracity/pkg/data"
	"github.com/mchmarny/veracity/pkg/detect"
	"github.com/mchmarny/veracity/pkg/ensemble"
	"github.com/mchmarny/veracity/pkg/rules"
	"github.com/mchmarny/veracity/pkg/verdict"
)

const cleanInvoiceDoc = `{
	"features": {
		"amount.total": "118.00",
		"amount.subtotal": "100.00",
		"amount.tax_total": "18.00",
		"amount.cgst": "9.00",
		"amount.sgst": "9.00",
		"date.issued": "2026-03-10",
		"date.due": "2026-04-10"
	},
	"profile": {
		"family": "tax_invoice",
		"family_confidence": 0.92,
		"country": "IN",
		"country_confidence": 0.9,
		"language": "en",
		"language_confidence": 0.95
	}
}`

func setupTestRouter(t *testing.T) *httptest.Server {
	t.Helper()

	store, err := data.Open(data.DriverSQLite, path.Join(t.TempDir(), data.DataFileName))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cfg, err := config.ReadOrCreate(t.TempDir())
	require.NoError(t, err)

	governor, err := rules.NewGovernor(rules.DefaultMatrix(), cfg.GetGovernor())
	require.NoError(t, err)

	engine, err := verdict.NewEngine(detect.All(cfg.GetTolerances()), governor, cfg.GetThresholds())
	require.NoError(t, err)

	srv := httptest.NewServer(makeRouter(engine, ensemble.NewArbiter(nil, 0), store))
	t.Cleanup(srv.Close)
	return srv
}

func TestAnalyzeAPIRoundTrip(t *testing.T) {
	srv := setupTestRouter(t)

	resp, err := http.Post(srv.URL+"/analyze", "application/json", strings.NewReader(cleanInvoiceDoc))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out analysisOutput
	require.NoError(t, decodeBody(resp.Body, &out))
	require.NotNil(t, out.Decision)
	require.NotNil(t, out.Verdict)
	assert.Equal(t, verdict.LabelReal, out.Decision.Label)
	assert.Equal(t, ensemble.ActionApprove, out.Decision.Action)
	assert.NotEmpty(t, out.Decision.AnalysisID)

	// The saved decision is listed and retrievable
	var list []*data.Decision
	getJSON(t, srv.URL+"/decisions", &list)
	require.Len(t, list, 1)
	assert.Equal(t, out.Decision.AnalysisID, list[0].ID)

	var d data.Decision
	getJSON(t, srv.URL+"/decisions/"+out.Decision.AnalysisID, &d)
	assert.Equal(t, string(verdict.LabelReal), d.FinalLabel)

	var dist data.LabelDistribution
	getJSON(t, srv.URL+"/summary", &dist)
	assert.Contains(t, dist.Labels, string(verdict.LabelReal))
}

func TestAnalyzeAPIBadRequest(t *testing.T) {
	srv := setupTestRouter(t)

	resp, err := http.Post(srv.URL+"/analyze", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDecisionAPINotFound(t *testing.T) {
	srv := setupTestRouter(t)

	resp, err := http.Get(srv.URL + "/decisions/no-such-id")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthAndMetricsAPI(t *testing.T) {
	srv := setupTestRouter(t)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Seed one observation so the scrape carries the counter
	resp2, err := http.Post(srv.URL+"/analyze", "application/json", strings.NewReader(cleanInvoiceDoc))
	require.NoError(t, err)
	resp2.Body.Close()

	resp3, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp3.Body.Close()
	require.Equal(t, http.StatusOK, resp3.StatusCode)

	b, err := io.ReadAll(resp3.Body)
	require.NoError(t, err)
	assert.Contains(t, string(b), "veracity_analyses_total")
}

func decodeBody(r io.Reader, v any) error {
	return json.NewDecoder(r).Decode(v)
}

func getJSON(t *testing.T, url string, v any) {
	t.Helper()

	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}
