package api

import (
	"net/http"

	"github.com/mailpilot/mailpilot-api/internal/api/shared"
	"github.com/mailpilot/mailpilot-api/internal/service"
)

// ReportHandler handles daily report API requests.
type ReportHandler struct {
	reports *service.ReportService
}

// NewReportHandler creates a new ReportHandler.
func NewReportHandler(reports *service.ReportService) *ReportHandler {
	return &ReportHandler{reports: reports}
}

// Start handles POST /api/reports/daily requests. Fresh generation returns
// 202; an in-flight generation returns 200 with its current record.
func (h *ReportHandler) Start(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	op, started, err := h.reports.Start(r.Context(), userID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	status := http.StatusOK
	if started {
		status = http.StatusAccepted
	}
	shared.RespondWithJSON(w, r, status, operationToResponse(op))
}

// Status handles GET /api/reports/daily/status requests.
func (h *ReportHandler) Status(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	op, err := h.reports.Status(r.Context(), userID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, operationToResponse(op))
}

// Wait handles GET /api/reports/daily/wait requests.
func (h *ReportHandler) Wait(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	op, err := h.reports.Wait(r.Context(), userID, waitTimeout(r))
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	if op != nil {
		shared.RespondWithJSON(w, r, http.StatusOK, operationToResponse(op))
		return
	}

	current, err := h.reports.Status(r.Context(), userID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusAccepted, operationToResponse(current))
}

// Latest handles GET /api/reports/daily requests, returning today's
// generated report.
func (h *ReportHandler) Latest(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	report, err := h.reports.Latest(r.Context(), userID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, ReportResponse{Report: report})
}
