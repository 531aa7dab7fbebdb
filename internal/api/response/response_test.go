package response_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/chatking/chatking/internal/api/middleware"
	"github.com/chatking/chatking/internal/api/models"
	"github.com/chatking/chatking/internal/api/response"
)

// requestWithID returns a request that has passed through the RequestID middleware.
func requestWithID(t *testing.T, method, path, body string) *http.Request {
	t.Helper()
	var processed *http.Request
	handler := middleware.RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		processed = r
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(method, path, strings.NewReader(body)))
	return processed
}

func TestJSON_IncludesRequestID(t *testing.T) {
	req := requestWithID(t, http.MethodGet, "/v1/interests", "")
	rec := httptest.NewRecorder()

	response.JSON(rec, req, http.StatusOK, models.InterestsResponse{Interests: []string{"a"}})

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Error("expected X-Request-Id header to be set")
	}
	if got := rec.Header().Get("Content-Type"); got != "application/json" {
		t.Errorf("expected Content-Type application/json, got %q", got)
	}

	var body models.InterestsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if len(body.Interests) != 1 || body.Interests[0] != "a" {
		t.Errorf("unexpected body %+v", body)
	}
}

func TestJSON_WithoutRequestID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/v1/interests", http.NoBody)
	rec := httptest.NewRecorder()

	response.JSON(rec, req, http.StatusAccepted, nil)

	if rec.Code != http.StatusAccepted {
		t.Errorf("expected status 202, got %d", rec.Code)
	}
	if rec.Header().Get("X-Request-Id") != "" {
		t.Error("expected no X-Request-Id header")
	}
	if rec.Body.Len() != 0 {
		t.Errorf("expected empty body, got %q", rec.Body.String())
	}
}

func TestNoContent(t *testing.T) {
	req := requestWithID(t, http.MethodDelete, "/v1/device", "")
	rec := httptest.NewRecorder()

	response.NoContent(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("expected status 204, got %d", rec.Code)
	}
}

func TestErrorHelpers(t *testing.T) {
	tests := []struct {
		name       string
		write      func(http.ResponseWriter, *http.Request)
		wantStatus int
		wantType   string
	}{
		{"bad request", func(w http.ResponseWriter, r *http.Request) { response.BadRequest(w, r, "bad", nil) }, http.StatusBadRequest, models.ProblemTypeValidation},
		{"not found", func(w http.ResponseWriter, r *http.Request) { response.NotFound(w, r, "missing") }, http.StatusNotFound, models.ProblemTypeNotFound},
		{"conflict", func(w http.ResponseWriter, r *http.Request) { response.Conflict(w, r, "taken") }, http.StatusConflict, models.ProblemTypeConflict},
		{"internal", func(w http.ResponseWriter, r *http.Request) { response.InternalError(w, r, "boom") }, http.StatusInternalServerError, models.ProblemTypeInternal},
		{"bad gateway", func(w http.ResponseWriter, r *http.Request) { response.BadGateway(w, r, "vendor") }, http.StatusBadGateway, models.ProblemTypeBadGateway},
		{"unavailable", func(w http.ResponseWriter, r *http.Request) { response.ServiceUnavailable(w, r, "closed") }, http.StatusServiceUnavailable, models.ProblemTypeUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := requestWithID(t, http.MethodGet, "/v1/interests", "")
			rec := httptest.NewRecorder()

			tt.write(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			if got := rec.Header().Get("Content-Type"); got != "application/problem+json" {
				t.Errorf("expected problem content type, got %q", got)
			}

			var problem models.Problem
			if err := json.Unmarshal(rec.Body.Bytes(), &problem); err != nil {
				t.Fatalf("failed to decode problem: %v", err)
			}
			if problem.Type != tt.wantType {
				t.Errorf("expected type %q, got %q", tt.wantType, problem.Type)
			}
			if problem.Instance != "/v1/interests" {
				t.Errorf("expected instance /v1/interests, got %q", problem.Instance)
			}
			if problem.TraceID == "" {
				t.Error("expected trace id")
			}
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"valid", `{"interests":["a","b"]}`, ""},
		{"empty", ``, "request body is empty"},
		{"malformed", `{"interests":`, "invalid JSON body"},
		{"unknown field", `{"interest":"a"}`, "unknown field"},
		{"trailing data", `{"interests":[]} {}`, "unexpected data"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPut, "/v1/interests", strings.NewReader(tt.body))
			var dst models.InterestsRequest

			err := response.DecodeJSON(httptest.NewRecorder(), req, &dst)

			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if len(dst.Interests) != 2 {
					t.Errorf("expected 2 interests, got %v", dst.Interests)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}
