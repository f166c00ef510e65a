package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/clinicflow/scheduling-ai/internal/bookings"
)

var csvHeader = []string{
	"booking_id", "session_id", "patient_id", "patient_name",
	"provider", "starts_at", "duration_minutes", "appointment_type",
	"phone", "email",
}

// CSVExporter appends booking rows to a CSV file on disk. The header is
// written when the file is created. At most one row lands per booking ID,
// even when the queue handler and the retry sweep both drive the same
// booking.
type CSVExporter struct {
	mu   sync.Mutex
	path string
	seen map[string]bool // booking IDs already written
}

// NewCSVExporter creates an exporter writing to the given path.
func NewCSVExporter(path string) *CSVExporter {
	if path == "" {
		panic("export: csv path required")
	}
	return &CSVExporter{path: path}
}

var _ Exporter = (*CSVExporter)(nil)

// Export appends one row. The file is opened per call so partial writes
// from a crashed process do not hold the file hostage. A booking that is
// already in the file is skipped.
func (e *CSVExporter) Export(_ context.Context, b bookings.Booking) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.seen == nil {
		if err := e.loadSeen(); err != nil {
			return err
		}
	}
	if e.seen[b.ID] {
		return nil
	}

	info, statErr := os.Stat(e.path)
	needHeader := statErr != nil || info.Size() == 0

	f, err := os.OpenFile(e.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("export: open csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if needHeader {
		if err := w.Write(csvHeader); err != nil {
			return fmt.Errorf("export: write csv header: %w", err)
		}
	}
	row := []string{
		b.ID,
		b.SessionID,
		b.PatientID,
		b.PatientName,
		b.Provider,
		b.Start.UTC().Format("2006-01-02 15:04"),
		strconv.Itoa(int(b.Duration.Minutes())),
		string(b.Type),
		b.Phone,
		b.Email,
	}
	if err := w.Write(row); err != nil {
		return fmt.Errorf("export: write csv row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("export: flush csv: %w", err)
	}
	e.seen[b.ID] = true
	return nil
}

// loadSeen reads the booking IDs already in the file, so a restarted
// process does not duplicate rows. Caller holds the mutex.
func (e *CSVExporter) loadSeen() error {
	e.seen = make(map[string]bool)
	f, err := os.Open(e.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("export: open csv: %w", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return fmt.Errorf("export: read csv: %w", err)
	}
	for i, row := range rows {
		if i == 0 || len(row) == 0 {
			continue
		}
		e.seen[row[0]] = true
	}
	return nil
}
