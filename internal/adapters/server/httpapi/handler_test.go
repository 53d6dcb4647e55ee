package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/hylla/weldtrack/internal/adapters/server/common"
	"github.com/hylla/weldtrack/internal/app"
	"github.com/hylla/weldtrack/internal/domain"
)

// stubProductionService records requests and returns configured fixtures.
type stubProductionService struct {
	groups     []app.ReportGroup
	summary    common.ReportSummary
	efficiency []app.EfficiencyLine
	capacity   []app.CapacityLine
	state      common.JointState
	blocked    common.BlockedJoints
	event      common.RecordEventResult
	submission common.Submission
	imported   app.ImportReport
	err        error

	lastReport     common.ReportRequest
	lastCapacity   common.CapacityRequest
	lastJointID    string
	lastLineID     string
	lastEvent      common.RecordEventRequest
	lastSubmission common.SubmitActivityRequest
	lastImport     common.ImportRequest
}

func (s *stubProductionService) BuildReport(_ context.Context, req common.ReportRequest) ([]app.ReportGroup, error) {
	s.lastReport = req
	return s.groups, s.err
}

func (s *stubProductionService) ReportSummary(_ context.Context, req common.ReportRequest) (common.ReportSummary, error) {
	s.lastReport = req
	return s.summary, s.err
}

func (s *stubProductionService) Efficiency(_ context.Context, req common.ReportRequest) ([]app.EfficiencyLine, error) {
	s.lastReport = req
	return s.efficiency, s.err
}

func (s *stubProductionService) Capacity(_ context.Context, req common.CapacityRequest) ([]app.CapacityLine, error) {
	s.lastCapacity = req
	return s.capacity, s.err
}

func (s *stubProductionService) JointState(_ context.Context, jointID string) (common.JointState, error) {
	s.lastJointID = jointID
	return s.state, s.err
}

func (s *stubProductionService) BlockedJoints(_ context.Context, lineID string) (common.BlockedJoints, error) {
	s.lastLineID = lineID
	return s.blocked, s.err
}

func (s *stubProductionService) RecordEvent(_ context.Context, req common.RecordEventRequest) (common.RecordEventResult, error) {
	s.lastEvent = req
	return s.event, s.err
}

func (s *stubProductionService) SubmitActivity(_ context.Context, req common.SubmitActivityRequest) (common.Submission, error) {
	s.lastSubmission = req
	return s.submission, s.err
}

func (s *stubProductionService) Import(_ context.Context, req common.ImportRequest) (app.ImportReport, error) {
	s.lastImport = req
	return s.imported, s.err
}

// serve runs one request through a handler over svc.
func serve(svc common.ProductionService, method, target, contentType, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	NewHandler(svc).ServeHTTP(rec, req)
	return rec
}

// decodeJSON decodes one JSON response body into the requested type.
func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	return out
}

// TestHandlerReportFilters verifies repeated and comma separated filters reach the service.
func TestHandlerReportFilters(t *testing.T) {
	svc := &stubProductionService{groups: []app.ReportGroup{{Label: "weld", SubmissionCount: 1}}}
	rec := serve(svc, http.MethodGet, "/report?from=2026-10-01&to=2026-10-31&material=pvc,galvanized&material=stainless_316&line_id=L1&activity_type=weld", "", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	want := common.ReportRequest{
		From:          "2026-10-01",
		To:            "2026-10-31",
		ActivityTypes: []string{"weld"},
		Materials:     []string{"pvc", "galvanized", "stainless_316"},
		LineIDs:       []string{"L1"},
	}
	if diff := cmp.Diff(want, svc.lastReport); diff != "" {
		t.Fatalf("report request mismatch (-want +got):\n%s", diff)
	}
	got := decodeJSON[struct {
		Groups []app.ReportGroup `json:"groups"`
	}](t, rec)
	if len(got.Groups) != 1 || got.Groups[0].Label != "weld" {
		t.Fatalf("unexpected groups %#v", got.Groups)
	}
}

// TestHandlerReportCSV verifies the flattened csv rendering.
func TestHandlerReportCSV(t *testing.T) {
	svc := &stubProductionService{groups: []app.ReportGroup{{
		Label:           "general",
		SubmissionCount: 1,
		Rows:            []app.ReportRow{{SubmissionID: "s1", Kind: domain.KindGeneral}},
	}}}
	rec := serve(svc, http.MethodGet, "/report?format=csv", "", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("content type = %q", ct)
	}
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[0], "Activity,") || !strings.HasPrefix(lines[1], "general,1,") {
		t.Fatalf("unexpected csv body %q", rec.Body.String())
	}
}

// TestHandlerLedgerRoutes verifies resource-id routes.
func TestHandlerLedgerRoutes(t *testing.T) {
	svc := &stubProductionService{
		state:   common.JointState{JointID: "j1", State: "blocked"},
		blocked: common.BlockedJoints{LineID: "L1", JointIDs: []string{"j1"}},
	}

	rec := serve(svc, http.MethodGet, "/joints/j1/state", "", "")
	if rec.Code != http.StatusOK || svc.lastJointID != "j1" {
		t.Fatalf("joint state status = %d id = %q", rec.Code, svc.lastJointID)
	}
	if got := decodeJSON[common.JointState](t, rec); got.State != "blocked" {
		t.Fatalf("unexpected state %#v", got)
	}

	rec = serve(svc, http.MethodGet, "/lines/L1/blocked_joints/", "", "")
	if rec.Code != http.StatusOK || svc.lastLineID != "L1" {
		t.Fatalf("blocked joints status = %d id = %q", rec.Code, svc.lastLineID)
	}

	rec = serve(svc, http.MethodGet, "/joints/a/b/state", "", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("nested id status = %d, want 404", rec.Code)
	}
}

// TestHandlerWrites verifies JSON write endpoints.
func TestHandlerWrites(t *testing.T) {
	svc := &stubProductionService{
		event:      common.RecordEventResult{EventID: "e1"},
		submission: common.Submission{ID: "s1", Kind: "weld"},
		capacity:   []app.CapacityLine{{Role: "welder", Available: 18, Allocated: 20, Balance: -2}},
	}

	rec := serve(svc, http.MethodPost, "/events", "application/json", `{"joint_id":"j1","kind":"weld","submission_id":"s1"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("events status = %d: %s", rec.Code, rec.Body.String())
	}
	if svc.lastEvent != (common.RecordEventRequest{JointID: "j1", Kind: "weld", SubmissionID: "s1"}) {
		t.Fatalf("unexpected event request %#v", svc.lastEvent)
	}

	rec = serve(svc, http.MethodPost, "/submissions", "application/json", `{"kind":"support","date":"2026-10-13","hours":2,"crew":{"fitter":2},"support":{"weight_kg":3.5,"quantity":4}}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("submissions status = %d: %s", rec.Code, rec.Body.String())
	}
	if svc.lastSubmission.Support == nil || svc.lastSubmission.Support.Quantity != 4 {
		t.Fatalf("unexpected submission request %#v", svc.lastSubmission)
	}

	rec = serve(svc, http.MethodPost, "/capacity", "application/json", `{"date":"2026-10-16","roster":{"welder":2}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("capacity status = %d: %s", rec.Code, rec.Body.String())
	}
	got := decodeJSON[struct {
		Roles []app.CapacityLine `json:"roles"`
	}](t, rec)
	if len(got.Roles) != 1 || got.Roles[0].Balance != -2 {
		t.Fatalf("unexpected capacity %#v", got.Roles)
	}
}

// TestHandlerRejectsMalformedBodies verifies strict JSON decoding.
func TestHandlerRejectsMalformedBodies(t *testing.T) {
	svc := &stubProductionService{}
	for _, body := range []string{`{"joint_id":"j1","extra":true}`, `{"joint_id":"j1"}{}`, `not json`} {
		rec := serve(svc, http.MethodPost, "/events", "application/json", body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %q status = %d, want 400", body, rec.Code)
		}
		if env := decodeJSON[ErrorEnvelope](t, rec); env.Error.Code != "invalid_request" {
			t.Fatalf("body %q code = %q", body, env.Error.Code)
		}
	}
}

// TestHandlerImport verifies csv uploads are decoded before reaching the service.
func TestHandlerImport(t *testing.T) {
	svc := &stubProductionService{imported: app.ImportReport{Schema: app.SchemaJoints, Rows: 2, Accepted: 2, DryRun: true}}

	rec := serve(svc, http.MethodPost, "/imports?dry_run=true", "text/csv; charset=utf-8", "Linha;Junta;DN\nL1;J1;2\nL1;J2;1,5\n")
	if rec.Code != http.StatusOK {
		t.Fatalf("imports status = %d: %s", rec.Code, rec.Body.String())
	}
	want := common.ImportRequest{
		Header:  []string{"Linha", "Junta", "DN"},
		Records: [][]string{{"L1", "J1", "2"}, {"L1", "J2", "1,5"}},
		DryRun:  true,
	}
	if diff := cmp.Diff(want, svc.lastImport); diff != "" {
		t.Fatalf("import request mismatch (-want +got):\n%s", diff)
	}

	rec = serve(svc, http.MethodPost, "/imports", "application/pdf", "x")
	if rec.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("pdf status = %d, want 415", rec.Code)
	}
	rec = serve(svc, http.MethodPost, "/imports?dry_run=maybe", "text/csv", "Line,JointNumber,Diameter\n")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad dry_run status = %d, want 400", rec.Code)
	}
}

// TestHandlerErrorMapping verifies transport sentinels map to status codes.
func TestHandlerErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		code int
		name string
	}{
		{err: fmt.Errorf("joint state: %w", errors.Join(common.ErrNotFound, app.ErrUnknownReference)), code: http.StatusNotFound, name: "not_found"},
		{err: fmt.Errorf("submit: %w", errors.Join(common.ErrConflict, app.ErrJointBlocked)), code: http.StatusConflict, name: "joint_blocked"},
		{err: fmt.Errorf("create: %w", errors.Join(common.ErrConflict, app.ErrDuplicateKey)), code: http.StatusConflict, name: "conflict"},
		{err: fmt.Errorf("submit: %w", common.ErrInvalidRequest), code: http.StatusBadRequest, name: "invalid_request"},
		{err: errors.New("disk on fire"), code: http.StatusInternalServerError, name: "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(&stubProductionService{err: tt.err}, http.MethodGet, "/joints/j1/state", "", "")
			if rec.Code != tt.code {
				t.Fatalf("status = %d, want %d", rec.Code, tt.code)
			}
			if env := decodeJSON[ErrorEnvelope](t, rec); env.Error.Code != tt.name {
				t.Fatalf("code = %q, want %q", env.Error.Code, tt.name)
			}
		})
	}
}

// TestHandlerMethodAndRouteErrors verifies 404 and 405 responses.
func TestHandlerMethodAndRouteErrors(t *testing.T) {
	svc := &stubProductionService{}
	rec := serve(svc, http.MethodPost, "/report", "", "")
	if rec.Code != http.StatusMethodNotAllowed || rec.Header().Get("Allow") != http.MethodGet {
		t.Fatalf("status = %d allow = %q", rec.Code, rec.Header().Get("Allow"))
	}
	rec = serve(svc, http.MethodGet, "/nope", "", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	rec = serve(nil, http.MethodGet, "/report", "", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("nil service status = %d, want 503", rec.Code)
	}
}
