package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/clinicflow/scheduling-ai/internal/bookings"
)

type stubCanceller struct {
	booking *bookings.Booking
	err     error
	gotID   string
}

func (s *stubCanceller) CancelBooking(_ context.Context, bookingID string) (*bookings.Booking, error) {
	s.gotID = bookingID
	if s.err != nil {
		return nil, s.err
	}
	return s.booking, nil
}

func newBookingsRouter(h *BookingsHandler) http.Handler {
	r := chi.NewRouter()
	r.Delete("/api/v1/bookings/{id}", h.Cancel)
	return r
}

func TestBookingCancel(t *testing.T) {
	stub := &stubCanceller{booking: &bookings.Booking{ID: "bk-1", Status: bookings.StatusCancelled}}
	r := newBookingsRouter(NewBookingsHandler(stub, nil))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/bookings/bk-1", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if stub.gotID != "bk-1" {
		t.Fatalf("cancelled booking id = %q, want bk-1", stub.gotID)
	}
	var b bookings.Booking
	if err := json.NewDecoder(rec.Body).Decode(&b); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b.Status != bookings.StatusCancelled {
		t.Fatalf("booking status = %q, want %q", b.Status, bookings.StatusCancelled)
	}
}

func TestBookingCancelNotFound(t *testing.T) {
	stub := &stubCanceller{err: bookings.ErrBookingNotFound}
	r := newBookingsRouter(NewBookingsHandler(stub, nil))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/bookings/missing", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
