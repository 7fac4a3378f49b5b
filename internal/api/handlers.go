package api

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"edgestat/domain/core"
	"edgestat/domain/run"
	apperrors "edgestat/internal/errors"
	"edgestat/internal/report"
	"edgestat/ports"
)

const defaultListLimit = 50

type runHandler struct {
	repo    ports.RunRepository
	reports *report.Builder
}

func newRunHandler(repo ports.RunRepository, topEdges int) *runHandler {
	return &runHandler{
		repo:    repo,
		reports: report.NewBuilder(topEdges),
	}
}

// runSummaryDTO is the listing projection. MinFWEP is a pointer so an
// unfinished run serialises as an absent field rather than a NaN that
// encoding/json rejects.
type runSummaryDTO struct {
	ID           string   `json:"id"`
	CreatedAt    string   `json:"created_at"`
	Status       string   `json:"status"`
	Algorithm    string   `json:"algorithm"`
	Permutations int      `json:"permutations"`
	Hypotheses   int      `json:"hypotheses"`
	MinFWEP      *float64 `json:"min_fwe_pvalue,omitempty"`
}

func (h *runHandler) handleList(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	summaries, err := h.repo.ListRuns(r.Context(), filters)
	if err != nil {
		writeError(w, http.StatusInternalServerError, apperrors.Wrap(err, "failed to list runs"))
		return
	}

	dtos := make([]runSummaryDTO, 0, len(summaries))
	for _, s := range summaries {
		dto := runSummaryDTO{
			ID:           s.ID.String(),
			CreatedAt:    s.CreatedAt.String(),
			Status:       string(s.Status),
			Algorithm:    string(s.Algorithm),
			Permutations: s.Permutations,
			Hypotheses:   s.Hypotheses,
		}
		if !math.IsNaN(s.MinFWEP) {
			p := s.MinFWEP
			dto.MinFWEP = &p
		}
		dtos = append(dtos, dto)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *runHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := core.ParseRunID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, apperrors.InvalidInput(err.Error()))
		return
	}

	manifest, err := h.repo.GetManifest(r.Context(), id)
	if err != nil {
		if errors.Is(err, core.ErrRunNotFound) {
			writeError(w, http.StatusNotFound, apperrors.NotFound("run"))
			return
		}
		writeError(w, http.StatusInternalServerError, apperrors.Wrap(err, "failed to load run"))
		return
	}
	writeJSON(w, http.StatusOK, manifest)
}

func (h *runHandler) handleReport(w http.ResponseWriter, r *http.Request) {
	id, err := core.ParseRunID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, apperrors.InvalidInput(err.Error()))
		return
	}

	res, err := h.repo.GetResult(r.Context(), id)
	if err != nil {
		if errors.Is(err, core.ErrRunNotFound) {
			writeError(w, http.StatusNotFound, apperrors.NotFound("run result"))
			return
		}
		writeError(w, http.StatusInternalServerError, apperrors.Wrap(err, "failed to load result"))
		return
	}

	// Stored runs keep hypothesis names but not contrast definitions, so
	// the parametric column stays blank here.
	rep, err := h.reports.Build(res, nil)
	if err != nil {
		writeError(w, http.StatusInternalServerError, apperrors.Wrap(err, "failed to build report"))
		return
	}

	switch r.URL.Query().Get("format") {
	case "json":
		writeJSON(w, http.StatusOK, rep)
	case "md", "markdown":
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write(rep.Markdown())
	default:
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write(report.ToHTML(rep.Markdown()))
	}
}

func parseFilters(r *http.Request) (ports.RunFilters, error) {
	filters := ports.RunFilters{Limit: defaultListLimit}
	q := r.URL.Query()

	if s := q.Get("status"); s != "" {
		status := ports.RunStatus(s)
		switch status {
		case ports.RunPending, ports.RunRunning, ports.RunCompleted, ports.RunFailed:
			filters.Status = &status
		default:
			return filters, apperrors.InvalidInput("unknown status " + strconv.Quote(s))
		}
	}
	if s := q.Get("algorithm"); s != "" {
		alg, err := run.ParseAlgorithm(s)
		if err != nil {
			return filters, apperrors.InvalidInput(err.Error())
		}
		filters.Algorithm = &alg
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			return filters, apperrors.InvalidInput("limit must be a positive integer")
		}
		filters.Limit = n
	}
	if s := q.Get("offset"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return filters, apperrors.InvalidInput("offset must be a non-negative integer")
		}
		filters.Offset = n
	}
	return filters, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{
		"error": err.Error(),
		"code":  apperrors.GetCode(err),
	})
}
