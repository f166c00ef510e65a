package patients

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrPatientNotFound is returned when no record matches the identity fields.
var ErrPatientNotFound = errors.New("patients: patient not found")

// Patient is a stored patient record.
type Patient struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	DateOfBirth string    `json:"dob"` // MM/DD/YYYY
	Phone       string    `json:"phone,omitempty"`
	Email       string    `json:"email,omitempty"`
	LastVisit   time.Time `json:"last_visit,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Identity is the lookup key for a patient: normalized name plus DOB.
// Phone is optional and used only to disambiguate.
type Identity struct {
	Name        string
	DateOfBirth string
	Phone       string
}

// Repository looks up and creates patient records. Implementations must
// tolerate concurrent access from independent sessions.
type Repository interface {
	Lookup(ctx context.Context, id Identity) (*Patient, error)
	Create(ctx context.Context, id Identity, email string) (*Patient, error)
}

// identityKey normalizes name + DOB into a stable lookup key.
func identityKey(name, dob string) string {
	n := strings.Join(strings.Fields(strings.ToLower(name)), " ")
	return n + "|" + strings.TrimSpace(dob)
}
