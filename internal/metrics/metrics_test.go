package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRecordRequest(t *testing.T) {
	RecordRequest("GET", "/test", 200, 100*time.Millisecond)
	RecordRequest("POST", "/test", 201, 50*time.Millisecond)
	RecordRequest("GET", "/test", 404, 10*time.Millisecond)
}

func TestRecordEventIngested(t *testing.T) {
	RecordEventIngested("yape", false)
	RecordEventIngested("yape", true)
	RecordEventIngested("plin", false)
}

func TestRecordClassifierOutcome(t *testing.T) {
	RecordClassifierOutcome("accepted")
	RecordClassifierOutcome("no_pattern_matched")
	RecordClassifierOutcome("exclusion_pattern")
}

func TestRecordExtraction(t *testing.T) {
	RecordExtraction("yape", true)
	RecordExtraction("bcp", false)
}

func TestRecordUnknownCurrency(t *testing.T) {
	RecordUnknownCurrency("Bs")
	RecordUnknownCurrency("Bs")
}

func TestRecordPipelineLatency(t *testing.T) {
	RecordPipelineLatency(5 * time.Millisecond)
	RecordPipelineLatency(500 * time.Millisecond)
}

func TestRecordInstanceCreated(t *testing.T) {
	RecordInstanceCreated()
	RecordInstanceCreated()
}

func TestRecordAuditDisagreement(t *testing.T) {
	RecordAuditDisagreement("amount_out_of_range")
	RecordAuditDisagreement("no_pattern_matched")
}

func TestRecordIdempotencyHit(t *testing.T) {
	RecordIdempotencyHit()
	RecordIdempotencyHit()
}

func TestRecordRateLimitRejection(t *testing.T) {
	RecordRateLimitRejection("device:9a1b2c3d")
	RecordRateLimitRejection("device:4e5f6a7b")
}

func TestHandler(t *testing.T) {
	handler := Handler()
	if handler == nil {
		t.Error("Handler should not return nil")
	}

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}

	body := rec.Body.String()
	if len(body) == 0 {
		t.Error("metrics response should not be empty")
	}
}

func TestMiddleware(t *testing.T) {
	innerCalled := false
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		innerCalled = true
		w.WriteHeader(http.StatusCreated)
	})

	handler := Middleware(inner)
	req := httptest.NewRequest("POST", "/test", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if !innerCalled {
		t.Error("inner handler should have been called")
	}

	if rec.Code != http.StatusCreated {
		t.Errorf("expected status 201, got %d", rec.Code)
	}
}

func TestResponseWriter_DefaultStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, status: http.StatusOK}

	rw.Write([]byte("test"))

	if rw.status != http.StatusOK {
		t.Errorf("expected default status 200, got %d", rw.status)
	}
}

func TestResponseWriter_ExplicitStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, status: http.StatusOK}

	rw.WriteHeader(http.StatusNotFound)

	if rw.status != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", rw.status)
	}
}
