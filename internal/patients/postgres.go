package patients

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is the subset of pgxpool.Pool used by the repository, so tests can
// substitute pgxmock.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores patient records in the relational database.
type PostgresRepository struct {
	db querier
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("patients: pgx pool required")
	}
	return &PostgresRepository{db: pool}
}

// NewPostgresRepositoryWithQuerier allows injecting mocks for tests.
func NewPostgresRepositoryWithQuerier(q querier) *PostgresRepository {
	return &PostgresRepository{db: q}
}

var _ Repository = (*PostgresRepository)(nil)

// Lookup finds a patient by normalized name and date of birth.
func (r *PostgresRepository) Lookup(ctx context.Context, id Identity) (*Patient, error) {
	query := `
		SELECT id, name, dob, phone, email, last_visit, created_at
		FROM patients
		WHERE identity_key = $1
	`
	row := r.db.QueryRow(ctx, query, identityKey(id.Name, id.DateOfBirth))
	var p Patient
	var lastVisit *time.Time
	if err := row.Scan(&p.ID, &p.Name, &p.DateOfBirth, &p.Phone, &p.Email, &lastVisit, &p.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrPatientNotFound
		}
		return nil, fmt.Errorf("patients: select failed: %w", err)
	}
	if lastVisit != nil {
		p.LastVisit = *lastVisit
	}
	return &p, nil
}

// Create inserts a new patient record. Re-creating an existing identity
// returns the existing row rather than a duplicate.
func (r *PostgresRepository) Create(ctx context.Context, id Identity, email string) (*Patient, error) {
	newID := uuid.New()
	query := `
		INSERT INTO patients (id, identity_key, name, dob, phone, email)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (identity_key) DO UPDATE SET phone = EXCLUDED.phone
		RETURNING id, created_at
	`
	var returnedID string
	var createdAt time.Time
	if err := r.db.QueryRow(ctx, query,
		newID,
		identityKey(id.Name, id.DateOfBirth),
		strings.TrimSpace(id.Name),
		id.DateOfBirth,
		id.Phone,
		email,
	).Scan(&returnedID, &createdAt); err != nil {
		return nil, fmt.Errorf("patients: insert failed: %w", err)
	}

	return &Patient{
		ID:          returnedID,
		Name:        strings.TrimSpace(id.Name),
		DateOfBirth: id.DateOfBirth,
		Phone:       id.Phone,
		Email:       email,
		CreatedAt:   createdAt,
	}, nil
}
