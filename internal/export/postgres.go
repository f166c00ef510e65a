package export

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/clinicflow/scheduling-ai/internal/bookings"
)

// PostgresExporter appends booking rows to the booking_exports table.
type PostgresExporter struct {
	db *sql.DB
}

// NewPostgresExporter creates an exporter over an open database handle.
func NewPostgresExporter(db *sql.DB) *PostgresExporter {
	if db == nil {
		panic("export: database handle required")
	}
	return &PostgresExporter{db: db}
}

// OpenPostgresExporter opens a connection with the pq driver.
func OpenPostgresExporter(dsn string) (*PostgresExporter, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("export: open database: %w", err)
	}
	return &PostgresExporter{db: db}, nil
}

var _ Exporter = (*PostgresExporter)(nil)

// Export inserts the booking row. Replaying the same booking is a no-op.
func (e *PostgresExporter) Export(ctx context.Context, b bookings.Booking) error {
	query := `
		INSERT INTO booking_exports (booking_id, session_id, patient_id, patient_name, provider, starts_at, duration_minutes, appointment_type, phone, email)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (booking_id) DO NOTHING
	`
	_, err := e.db.ExecContext(ctx, query,
		b.ID,
		b.SessionID,
		b.PatientID,
		b.PatientName,
		b.Provider,
		b.Start,
		int(b.Duration.Minutes()),
		string(b.Type),
		b.Phone,
		b.Email,
	)
	if err != nil {
		return fmt.Errorf("export: insert booking row: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (e *PostgresExporter) Close() error {
	return e.db.Close()
}
