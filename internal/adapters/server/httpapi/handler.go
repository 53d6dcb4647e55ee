// Package httpapi provides the REST HTTP adapter for the server surfaces.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/hylla/weldtrack/internal/adapters/server/common"
	"github.com/hylla/weldtrack/internal/adapters/tabular"
	"github.com/hylla/weldtrack/internal/app"
)

// maxRequestBodyBytes limits decoded JSON payload size for fail-closed request handling.
const maxRequestBodyBytes int64 = 1 << 20

// maxImportBodyBytes limits uploaded import sheets.
const maxImportBodyBytes int64 = 32 << 20

// xlsxContentType is the registered media type of XLSX workbooks.
const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Handler serves the versioned API subrouter mounted under `/api/v1`.
type Handler struct {
	production common.ProductionService
}

// APIError represents one structured API failure response.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}

// ErrorEnvelope wraps one structured API error.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// NewHandler constructs one HTTP API adapter.
func NewHandler(production common.ProductionService) *Handler {
	return &Handler{production: production}
}

// ServeHTTP routes one versioned API request to the matching handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.production == nil {
		writeJSONError(w, http.StatusServiceUnavailable, APIError{
			Code:    "service_unavailable",
			Message: "production service is not configured",
		})
		return
	}

	path := normalizePath(r.URL.Path)
	switch path {
	case "report":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleReport(w, r)
		return
	case "report/summary":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleReportSummary(w, r)
		return
	case "efficiency":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleEfficiency(w, r)
		return
	case "capacity":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w, http.MethodPost)
			return
		}
		h.handleCapacity(w, r)
		return
	case "events":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w, http.MethodPost)
			return
		}
		h.handleRecordEvent(w, r)
		return
	case "submissions":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w, http.MethodPost)
			return
		}
		h.handleSubmitActivity(w, r)
		return
	case "imports":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w, http.MethodPost)
			return
		}
		h.handleImport(w, r)
		return
	}

	if jointID, ok := resolveResourceID(path, "joints/", "/state"); ok {
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleJointState(w, r, jointID)
		return
	}
	if lineID, ok := resolveResourceID(path, "lines/", "/blocked_joints"); ok {
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleBlockedJoints(w, r, lineID)
		return
	}
	writeJSONError(w, http.StatusNotFound, APIError{
		Code:    "not_found",
		Message: "endpoint not found",
	})
}

// handleReport serves GET `/report`; `format=csv` returns the flattened table.
func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	groups, err := h.production.BuildReport(r.Context(), reportRequestFromQuery(r.URL.Query()))
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	if strings.EqualFold(r.URL.Query().Get("format"), "csv") {
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_ = tabular.WriteCSV(w, app.ReportTable(groups))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"groups": groups,
	})
}

// handleReportSummary serves GET `/report/summary`.
func (h *Handler) handleReportSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.production.ReportSummary(r.Context(), reportRequestFromQuery(r.URL.Query()))
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// handleEfficiency serves GET `/efficiency`.
func (h *Handler) handleEfficiency(w http.ResponseWriter, r *http.Request) {
	lines, err := h.production.Efficiency(r.Context(), reportRequestFromQuery(r.URL.Query()))
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"materials": lines,
	})
}

// handleCapacity serves POST `/capacity`.
func (h *Handler) handleCapacity(w http.ResponseWriter, r *http.Request) {
	var req common.CapacityRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	lines, err := h.production.Capacity(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"roles": lines,
	})
}

// handleJointState serves GET `/joints/{id}/state`.
func (h *Handler) handleJointState(w http.ResponseWriter, r *http.Request, jointID string) {
	state, err := h.production.JointState(r.Context(), jointID)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// handleBlockedJoints serves GET `/lines/{id}/blocked_joints`.
func (h *Handler) handleBlockedJoints(w http.ResponseWriter, r *http.Request, lineID string) {
	blocked, err := h.production.BlockedJoints(r.Context(), lineID)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, blocked)
}

// handleRecordEvent serves POST `/events`.
func (h *Handler) handleRecordEvent(w http.ResponseWriter, r *http.Request) {
	var req common.RecordEventRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	result, err := h.production.RecordEvent(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// handleSubmitActivity serves POST `/submissions`.
func (h *Handler) handleSubmitActivity(w http.ResponseWriter, r *http.Request) {
	var req common.SubmitActivityRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	sub, err := h.production.SubmitActivity(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

// handleImport serves POST `/imports` with a CSV or XLSX body.
func (h *Handler) handleImport(w http.ResponseWriter, r *http.Request) {
	format, err := importFormat(r)
	if err != nil {
		writeJSONError(w, http.StatusUnsupportedMediaType, APIError{
			Code:    "unsupported_media_type",
			Message: err.Error(),
			Hint:    "Send text/csv or an xlsx workbook.",
		})
		return
	}
	dryRun := false
	if raw := strings.TrimSpace(r.URL.Query().Get("dry_run")); raw != "" {
		dryRun, err = strconv.ParseBool(raw)
		if err != nil {
			writeErrorFrom(w, fmt.Errorf("dry_run must be a boolean: %w", common.ErrInvalidRequest))
			return
		}
	}

	body := http.MaxBytesReader(w, r.Body, maxImportBodyBytes)
	defer body.Close()
	sheet, err := tabular.Read(body, format)
	if err != nil {
		writeErrorFrom(w, fmt.Errorf("decode import sheet: %w", errors.Join(common.ErrInvalidRequest, err)))
		return
	}
	report, err := h.production.Import(r.Context(), common.ImportRequest{
		Header:  sheet.Header,
		Records: sheet.Records,
		DryRun:  dryRun,
	})
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// importFormat picks the sheet format from `format` or the request media type.
func importFormat(r *http.Request) (tabular.Format, error) {
	if raw := r.URL.Query().Get("format"); raw != "" {
		return tabular.ParseFormat(raw)
	}
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return "", fmt.Errorf("%w: missing content type", tabular.ErrUnsupportedFormat)
	}
	switch mediaType {
	case "text/csv", "application/csv":
		return tabular.FormatCSV, nil
	case xlsxContentType:
		return tabular.FormatXLSX, nil
	default:
		return "", fmt.Errorf("%w: %s", tabular.ErrUnsupportedFormat, mediaType)
	}
}

// reportRequestFromQuery reads report filters. List filters repeat or use commas.
func reportRequestFromQuery(q url.Values) common.ReportRequest {
	return common.ReportRequest{
		From:          q.Get("from"),
		To:            q.Get("to"),
		ActivityTypes: queryList(q, "activity_type"),
		Materials:     queryList(q, "material"),
		LineIDs:       queryList(q, "line_id"),
	}
}

// queryList splits repeated and comma separated query values.
func queryList(q url.Values, key string) []string {
	var out []string
	for _, raw := range q[key] {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// resolveResourceID parses `{prefix}{id}{suffix}` and returns `{id}`.
func resolveResourceID(path, prefix, suffix string) (string, bool) {
	if !strings.HasPrefix(path, prefix) || !strings.HasSuffix(path, suffix) {
		return "", false
	}
	id := strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(path, prefix), suffix))
	if id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

// normalizePath canonicalizes one request path for route matching.
func normalizePath(path string) string {
	path = strings.TrimSpace(path)
	path = strings.Trim(path, "/")
	return path
}

// writeErrorFrom maps adapter errors into structured HTTP responses.
func writeErrorFrom(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		writeJSONError(w, http.StatusInternalServerError, APIError{
			Code:    "internal_error",
			Message: "unknown error",
		})
	case errors.Is(err, common.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, APIError{
			Code:    "not_found",
			Message: err.Error(),
		})
	case errors.Is(err, app.ErrJointBlocked):
		writeJSONError(w, http.StatusConflict, APIError{
			Code:    "joint_blocked",
			Message: err.Error(),
			Hint:    "Record a rework before further coupling or weld work.",
		})
	case errors.Is(err, common.ErrConflict):
		writeJSONError(w, http.StatusConflict, APIError{
			Code:    "conflict",
			Message: err.Error(),
		})
	case errors.Is(err, common.ErrInvalidRequest):
		writeJSONError(w, http.StatusBadRequest, APIError{
			Code:    "invalid_request",
			Message: err.Error(),
		})
	default:
		writeJSONError(w, http.StatusInternalServerError, APIError{
			Code:    "internal_error",
			Message: err.Error(),
		})
	}
}

// writeMethodNotAllowed writes a structured 405 response with `Allow` headers.
func writeMethodNotAllowed(w http.ResponseWriter, methods ...string) {
	if len(methods) > 0 {
		w.Header().Set("Allow", strings.Join(methods, ", "))
	}
	writeJSONError(w, http.StatusMethodNotAllowed, APIError{
		Code:    "method_not_allowed",
		Message: "method not allowed",
	})
}

// writeJSONError writes one structured error envelope.
func writeJSONError(w http.ResponseWriter, statusCode int, apiErr APIError) {
	writeJSON(w, statusCode, ErrorEnvelope{Error: apiErr})
}

// writeJSON writes one JSON response envelope.
func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, fmt.Sprintf(`{"error":{"code":"encode_error","message":"%s"}}`, err.Error()), http.StatusInternalServerError)
	}
}

// decodeJSONBody decodes one required JSON request body with strict shape checks.
func decodeJSONBody(ctx context.Context, w http.ResponseWriter, r *http.Request, out any) error {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	defer reader.Close()

	decoder := json.NewDecoder(reader)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode request body: %w", errors.Join(common.ErrInvalidRequest, err))
	}
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode request body: trailing content: %w", common.ErrInvalidRequest)
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("request canceled: %w", ctx.Err())
	default:
		return nil
	}
}
