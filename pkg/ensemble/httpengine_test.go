package ensemble

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mchmarny/veracity/pkg/feature"
	"github.com/mchmarny/veracity/pkg/verdict"
)

func TestNewHTTPEngineValidation(t *testing.T) {
	ctx := context.Background()

	_, err := NewHTTPEngine(ctx, "", "http://localhost:9000", "")
	assert.Error(t, err)

	_, err = NewHTTPEngine(ctx, "model_a", "", "")
	assert.Error(t, err)

	e, err := NewHTTPEngine(ctx, "model_a", "http://localhost:9000", "")
	require.NoError(t, err)
	assert.Equal(t, "model_a", e.Name())
}

func TestHTTPEngineCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var doc feature.Document
		if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		assert.Equal(t, "118.00", doc.Features[feature.KeyTotal])
		assert.Equal(t, feature.FamilyTaxInvoice, doc.Profile.Family)

		w.Header().Set("Content-Type", "application/json")
		// Sloppy casing and padding from the remote side is tolerated
		fmt.Fprint(w, `{"label":" FAKE ","score":0.91}`)
	}))
	defer srv.Close()

	e, err := NewHTTPEngine(context.Background(), "model_a", srv.URL, "")
	require.NoError(t, err)

	fs, p := intake()
	ev, err := e.Check(context.Background(), fs, p)
	require.NoError(t, err)

	assert.Equal(t, "model_a", ev.Engine)
	assert.Equal(t, verdict.LabelFake, ev.Label)
	assert.Equal(t, 0.91, ev.Score)
	assert.Greater(t, ev.Elapsed, time.Duration(0))
}

func TestHTTPEngineCheckUnknownLabel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"label":"genuine","score":0.5}`)
	}))
	defer srv.Close()

	e, err := NewHTTPEngine(context.Background(), "model_a", srv.URL, "")
	require.NoError(t, err)

	fs, p := intake()
	_, err = e.Check(context.Background(), fs, p)
	assert.ErrorContains(t, err, "unknown label")
}

func TestHTTPEngineCheckServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	e, err := NewHTTPEngine(context.Background(), "model_a", srv.URL, "")
	require.NoError(t, err)

	fs, p := intake()
	_, err = e.Check(context.Background(), fs, p)
	assert.Error(t, err)
}

func TestHTTPEngineBearerToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-9", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"label":"real","score":0.05}`)
	}))
	defer srv.Close()

	e, err := NewHTTPEngine(context.Background(), "model_a", srv.URL, "tok-9")
	require.NoError(t, err)

	fs, p := intake()
	ev, err := e.Check(context.Background(), fs, p)
	require.NoError(t, err)
	assert.Equal(t, verdict.LabelReal, ev.Label)
}

func TestHTTPEngineHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/healthz" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":"ok"}`)
	}))
	defer srv.Close()

	e, err := NewHTTPEngine(context.Background(), "model_a", srv.URL+"/", "")
	require.NoError(t, err)
	assert.NoError(t, e.Health(context.Background()))

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()

	e, err = NewHTTPEngine(context.Background(), "model_b", down.URL, "")
	require.NoError(t, err)
	assert.Error(t, e.Health(context.Background()))
}
