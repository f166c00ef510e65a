package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/clinicflow/scheduling-ai/internal/bookings"
	"github.com/clinicflow/scheduling-ai/internal/workflow"
	"github.com/clinicflow/scheduling-ai/pkg/logging"
)

// BookingCanceller is the slice of the workflow engine booking management
// needs.
type BookingCanceller interface {
	CancelBooking(ctx context.Context, bookingID string) (*bookings.Booking, error)
}

var _ BookingCanceller = (*workflow.Engine)(nil)

// BookingsHandler exposes booking management endpoints.
type BookingsHandler struct {
	engine BookingCanceller
	logger *logging.Logger
}

// NewBookingsHandler creates a bookings handler.
func NewBookingsHandler(engine BookingCanceller, logger *logging.Logger) *BookingsHandler {
	if engine == nil {
		panic("handlers: engine required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &BookingsHandler{engine: engine, logger: logger}
}

// Cancel handles DELETE /api/v1/bookings/{id}. The slot is freed and any
// pending reminders are dropped.
func (h *BookingsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "id")

	b, err := h.engine.CancelBooking(r.Context(), bookingID)
	if err != nil {
		if errors.Is(err, bookings.ErrBookingNotFound) {
			http.Error(w, "Booking not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to cancel booking", "booking_id", bookingID, "error", err)
		http.Error(w, "Failed to cancel booking", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(b); err != nil {
		h.logger.Error("failed to write JSON response", "error", err)
	}
}
