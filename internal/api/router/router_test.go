package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clinicflow/scheduling-ai/internal/bookings"
	"github.com/clinicflow/scheduling-ai/internal/extract"
	"github.com/clinicflow/scheduling-ai/internal/http/handlers"
	"github.com/clinicflow/scheduling-ai/internal/patients"
	"github.com/clinicflow/scheduling-ai/internal/session"
	"github.com/clinicflow/scheduling-ai/internal/slots"
	"github.com/clinicflow/scheduling-ai/internal/workflow"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	engine := workflow.NewEngine(workflow.Config{}, workflow.Deps{
		Sessions:  session.NewMemoryStore(),
		Patients:  patients.NewInMemoryRepository(),
		Finder:    slots.NewMemoryCalendar(nil),
		Bookings:  bookings.NewMemoryRepository(),
		Extractor: extract.NewRuleExtractor(),
	})
	return New(&Config{
		SessionsHandler: handlers.NewSessionsHandler(engine, nil),
		BookingsHandler: handlers.NewBookingsHandler(engine, nil),
		MetricsHandler:  promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{}),
	})
}

func TestHealthAndMetricsRoutes(t *testing.T) {
	r := newTestRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/bookings/unknown", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("cancel unknown booking status = %d, want 404", rec.Code)
	}
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	r := newTestRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/sessions", nil))
	if rec.Code != http.StatusCreated {
		t.Fatalf("start status = %d, want 201", rec.Code)
	}
	var reply workflow.Reply
	if err := json.NewDecoder(rec.Body).Decode(&reply); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if reply.SessionID == "" {
		t.Fatal("start reply missing session id")
	}

	body := strings.NewReader(`{"message":"my name is John Doe, born on 01/15/1985, new patient"}`)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/sessions/"+reply.SessionID+"/messages", body))
	if rec.Code != http.StatusOK {
		t.Fatalf("message status = %d, want 200", rec.Code)
	}
	var next workflow.Reply
	if err := json.NewDecoder(rec.Body).Decode(&next); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if next.Stage != session.StagePresentSlots {
		t.Fatalf("stage = %s, want %s", next.Stage, session.StagePresentSlots)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+reply.SessionID, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d, want 200", rec.Code)
	}
	var s session.Session
	if err := json.NewDecoder(rec.Body).Decode(&s); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if s.Patient.Name != "John Doe" {
		t.Fatalf("session patient name = %q, want John Doe", s.Patient.Name)
	}
}
