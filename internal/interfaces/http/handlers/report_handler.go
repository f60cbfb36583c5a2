package handlers

import (
	"net/http"

	"github.com/turtacn/KeyIP-Attribution/internal/application/reporting"
	"github.com/turtacn/KeyIP-Attribution/internal/domain/attribution"
	"github.com/turtacn/KeyIP-Attribution/internal/domain/family"
	"github.com/turtacn/KeyIP-Attribution/internal/domain/run"
	"github.com/turtacn/KeyIP-Attribution/internal/infrastructure/monitoring/logging"
)

// ReportHandler exposes the reporting service over HTTP.
type ReportHandler struct {
	service reporting.Service
	logger  logging.Logger
	maxBody int64
}

// NewReportHandler creates a ReportHandler. maxBody <= 0 selects a 4 MiB cap.
func NewReportHandler(service reporting.Service, logger logging.Logger, maxBody int64) *ReportHandler {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &ReportHandler{service: service, logger: logger.Named("http.report"), maxBody: maxBody}
}

// ChartResponse is the JSON answer of an ad-hoc chart.
type ChartResponse struct {
	Chart reporting.ChartDocument `json:"chart"`
	SVG   string                  `json:"svg"`
}

// RunRequest is the body of POST /api/v1/reports. Charts, TopK and
// Summarize override the server defaults when set.
type RunRequest struct {
	Country   string   `json:"country"`
	StartYear int      `json:"start_year"`
	EndYear   int      `json:"end_year"`
	Charts    []string `json:"charts,omitempty"`
	TopK      int      `json:"top_k,omitempty"`
	Summarize *bool    `json:"summarize,omitempty"`
}

// Query is the family query of the request.
func (req RunRequest) Query() family.Query {
	return family.Query{Country: req.Country, StartYear: req.StartYear, EndYear: req.EndYear}
}

// Options maps the overrides to run options.
func (req RunRequest) Options() []reporting.RunOption {
	opts := []reporting.RunOption{reporting.WithCharts(req.Charts...), reporting.WithTopK(req.TopK)}
	if req.Summarize != nil {
		opts = append(opts, reporting.WithSummary(*req.Summarize))
	}
	return opts
}

// RunListResponse is one page of the run ledger.
type RunListResponse struct {
	Runs   []*run.Run `json:"runs"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
}

// Run handles POST /api/v1/reports, e.g.
// {"country":"NO","start_year":2010,"end_year":2020}. The run is synchronous.
func (h *ReportHandler) Run(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := decodeJSON(w, r, h.maxBody, &req); err != nil {
		writeAppError(w, r, err)
		return
	}

	report, err := h.service.Run(r.Context(), req.Query(), req.Options()...)
	if err != nil {
		h.logger.WithContext(r.Context()).Warn("report run rejected or failed",
			logging.String("country", req.Country), logging.Err(err))
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, report)
}

// BuildChart handles POST /api/v1/charts. With ?format=svg the rendering is
// returned as image/svg+xml instead of JSON.
func (h *ReportHandler) BuildChart(w http.ResponseWriter, r *http.Request) {
	var spec attribution.ChartSpec
	if err := decodeJSON(w, r, h.maxBody, &spec); err != nil {
		writeAppError(w, r, err)
		return
	}

	view, err := h.service.BuildChart(r.Context(), spec)
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	if r.URL.Query().Get("format") == "svg" {
		w.Header().Set("Content-Type", "image/svg+xml")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(view.SVG)
		return
	}
	writeJSON(w, http.StatusOK, ChartResponse{Chart: view.Document, SVG: string(view.SVG)})
}

// ListRuns handles GET /api/v1/runs?limit=&offset=.
func (h *ReportHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)
	runs, err := h.service.ListRuns(r.Context(), limit, offset)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if runs == nil {
		runs = []*run.Run{}
	}
	writeJSON(w, http.StatusOK, RunListResponse{Runs: runs, Limit: limit, Offset: offset})
}
