package export

import (
	"context"
	"errors"
	"testing"

	"github.com/clinicflow/scheduling-ai/internal/bookings"
)

type flakyExporter struct {
	failures int
	exported []string
}

func (f *flakyExporter) Export(_ context.Context, b bookings.Booking) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("destination unavailable")
	}
	f.exported = append(f.exported, b.ID)
	return nil
}

func TestRetryWorkerEventuallyExports(t *testing.T) {
	ctx := context.Background()
	repo := bookings.NewMemoryRepository()
	exporter := &flakyExporter{failures: 2}

	b := exportBooking()
	b.ID = ""
	created, _ := repo.CreateForSession(ctx, b)

	w := NewRetryWorker(repo, exporter, nil)

	// Two failing passes leave the booking pending.
	for i := 0; i < 2; i++ {
		n, err := w.ProcessPending(ctx)
		if err != nil {
			t.Fatalf("ProcessPending failed: %v", err)
		}
		if n != 0 {
			t.Fatalf("expected no exports while destination is down, got %d", n)
		}
	}

	// Third pass succeeds and retires the booking.
	n, err := w.ProcessPending(ctx)
	if err != nil {
		t.Fatalf("ProcessPending failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected one export, got %d", n)
	}
	if len(exporter.exported) != 1 || exporter.exported[0] != created.ID {
		t.Fatalf("unexpected exported IDs %v", exporter.exported)
	}

	// Fourth pass finds nothing pending.
	n, _ = w.ProcessPending(ctx)
	if n != 0 {
		t.Fatalf("expected empty queue, got %d", n)
	}
}
