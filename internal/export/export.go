// Package export writes confirmed bookings to the clinic's tabular
// record systems. Export failures never block a booking; the retry
// worker keeps trying until the row lands.
package export

import (
	"context"

	"github.com/clinicflow/scheduling-ai/internal/bookings"
)

// Exporter writes one booking row to a destination.
type Exporter interface {
	Export(ctx context.Context, b bookings.Booking) error
}
