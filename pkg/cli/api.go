package cli

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/mchmarny/veracity/pkg/data"
	"github.com/mchmarny/veracity/pkg/ensemble"
	"github.com/mchmarny/veracity/pkg/feature"
	"github.com/mchmarny/veracity/pkg/verdict"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func queryParamInt(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil || i < 1 {
		return def
	}
	return i
}

func analyzeAPIHandler(engine *verdict.Engine, arbiter *ensemble.Arbiter, store *data.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fs, profile, err := feature.DecodeDocument(r.Body)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		v, analysisErr := engine.Analyze(r.Context(), fs, profile)
		if analysisErr != nil {
			slog.Error("rule analysis failed, deferring to review", "error", analysisErr)
		}

		res := arbiter.Decide(r.Context(), v, analysisErr, fs, profile)

		if _, err := store.SaveDecision(res, v); err != nil {
			slog.Error("failed to save decision", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to save decision")
			return
		}

		recordDecisionMetrics(res, v)
		writeJSON(w, http.StatusOK, &analysisOutput{Decision: res, Verdict: v})
	}
}

func decisionListAPIHandler(store *data.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := queryParamInt(r, "limit", data.ListLimitDefault)

		list, err := store.ListDecisions(limit)
		if err != nil {
			slog.Error("failed to list decisions", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to list decisions")
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func decisionAPIHandler(store *data.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")

		d, err := store.GetDecision(id)
		if err != nil {
			if errors.Is(err, data.ErrDecisionNotFound) {
				writeError(w, http.StatusNotFound, "decision not found")
				return
			}
			slog.Error("failed to get decision", "id", id, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to get decision")
			return
		}
		writeJSON(w, http.StatusOK, d)
	}
}

func summaryAPIHandler(store *data.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dist, err := store.GetLabelDistribution()
		if err != nil {
			slog.Error("failed to summarize decisions", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to summarize decisions")
			return
		}
		writeJSON(w, http.StatusOK, dist)
	}
}

func healthAPIHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": version})
}
