package validate

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// FieldError reports which field failed validation and why. The message is
// written to be shown to the patient in a clarification prompt.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("validate: %s: %s", e.Field, e.Reason)
}

func fieldErr(field, reason string) error {
	return &FieldError{Field: field, Reason: reason}
}

var (
	nameRE     = regexp.MustCompile(`^[A-Za-z\s\-'.]+$`)
	hasLetterRE = regexp.MustCompile(`[A-Za-z]`)
	emailRE    = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	digitsRE   = regexp.MustCompile(`\D`)
	nanpRE     = regexp.MustCompile(`^[2-9]\d{2}[2-9]\d{6}$`)
	memberIDRE = regexp.MustCompile(`^[A-Za-z0-9\-]{5,20}$`)
	groupRE    = regexp.MustCompile(`^[A-Za-z0-9\-]{2,15}$`)
)

// Name accepts letters, spaces, hyphens, apostrophes and periods, 2-100 chars.
func Name(name string) error {
	name = strings.TrimSpace(name)
	if len(name) < 2 {
		return fieldErr("name", "must be at least 2 characters")
	}
	if len(name) > 100 {
		return fieldErr("name", "must be less than 100 characters")
	}
	if !nameRE.MatchString(name) {
		return fieldErr("name", "may only contain letters, spaces, hyphens, apostrophes, and periods")
	}
	if !hasLetterRE.MatchString(name) {
		return fieldErr("name", "must contain at least one letter")
	}
	return nil
}

var dobFormats = []string{"01/02/2006", "01-02-2006", "2006-01-02", "1/2/2006"}

// DateOfBirth parses common US formats and range-checks the result.
// Returns the parsed date so callers can normalize.
func DateOfBirth(dob string) (time.Time, error) {
	dob = strings.TrimSpace(dob)
	if dob == "" {
		return time.Time{}, fieldErr("dob", "date of birth is required")
	}
	var parsed time.Time
	var ok bool
	for _, layout := range dobFormats {
		if t, err := time.Parse(layout, dob); err == nil {
			parsed, ok = t, true
			break
		}
	}
	if !ok {
		return time.Time{}, fieldErr("dob", "use MM/DD/YYYY, MM-DD-YYYY, or YYYY-MM-DD")
	}
	now := time.Now()
	if parsed.After(now) {
		return time.Time{}, fieldErr("dob", "cannot be in the future")
	}
	if parsed.Year() < 1900 {
		return time.Time{}, fieldErr("dob", "cannot be before 1900")
	}
	if now.Year()-parsed.Year() > 150 {
		return time.Time{}, fieldErr("dob", "age cannot exceed 150 years")
	}
	return parsed, nil
}

// NormalizeDOB formats a validated date to the canonical MM/DD/YYYY form.
func NormalizeDOB(t time.Time) string {
	return t.Format("01/02/2006")
}

// Phone validates US numbers: 10 digits, or 11 with a leading 1.
// Returns the normalized 10-digit form.
func Phone(phone string) (string, error) {
	digits := digitsRE.ReplaceAllString(phone, "")
	switch {
	case len(digits) == 11 && strings.HasPrefix(digits, "1"):
		digits = digits[1:]
	case len(digits) == 10:
	default:
		return "", fieldErr("phone", "must be 10 digits (US) or 11 digits with country code")
	}
	if !nanpRE.MatchString(digits) {
		return "", fieldErr("phone", "is not a valid US phone number")
	}
	return digits, nil
}

// FormatPhone renders a normalized 10-digit number as (AAA) BBB-CCCC.
func FormatPhone(digits string) string {
	if len(digits) != 10 {
		return digits
	}
	return fmt.Sprintf("(%s) %s-%s", digits[:3], digits[3:6], digits[6:])
}

// Email validates format plus RFC 5321 length limits.
func Email(email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return fieldErr("email", "email address is required")
	}
	if len(email) > 320 {
		return fieldErr("email", "is too long")
	}
	if strings.Contains(email, "..") {
		return fieldErr("email", "cannot contain consecutive dots")
	}
	if !emailRE.MatchString(email) {
		return fieldErr("email", "is not a valid email address")
	}
	local := email[:strings.LastIndex(email, "@")]
	if len(local) > 64 {
		return fieldErr("email", "local part is too long")
	}
	return nil
}

// knownCarriers are the carriers the clinic can bill directly. Anything
// else is accepted but flagged for manual verification downstream.
var knownCarriers = []string{
	"aetna", "blue cross", "blue shield", "bcbs", "cigna", "humana",
	"kaiser", "medicare", "medicaid", "united", "unitedhealthcare",
	"anthem", "tricare",
}

// KnownCarriers returns the carriers the clinic can bill directly.
func KnownCarriers() []string {
	out := make([]string, len(knownCarriers))
	copy(out, knownCarriers)
	return out
}

// InsuranceCarrier normalizes a carrier name; empty is invalid.
func InsuranceCarrier(carrier string) (string, error) {
	carrier = strings.TrimSpace(carrier)
	if len(carrier) < 2 {
		return "", fieldErr("insurance_carrier", "carrier name is required")
	}
	lower := strings.ToLower(carrier)
	for _, known := range knownCarriers {
		if strings.Contains(lower, known) {
			return NormalizeName(known), nil
		}
	}
	return carrier, nil
}

// InsuranceMemberID accepts 5-20 alphanumeric characters (hyphens allowed).
func InsuranceMemberID(id string) error {
	if !memberIDRE.MatchString(strings.TrimSpace(id)) {
		return fieldErr("insurance_member_id", "must be 5-20 letters, digits, or hyphens")
	}
	return nil
}

// InsuranceGroupNumber accepts 2-15 alphanumeric characters.
func InsuranceGroupNumber(group string) error {
	if !groupRE.MatchString(strings.TrimSpace(group)) {
		return fieldErr("insurance_group", "must be 2-15 letters, digits, or hyphens")
	}
	return nil
}

// NormalizeName title-cases each part of a name, preserving hyphenated parts.
func NormalizeName(name string) string {
	parts := strings.Fields(strings.TrimSpace(name))
	for i, part := range parts {
		parts[i] = titleWord(part)
	}
	return strings.Join(parts, " ")
}

func titleWord(w string) string {
	if w == "" {
		return w
	}
	if idx := strings.Index(w, "-"); idx > 0 && idx < len(w)-1 {
		return titleWord(w[:idx]) + "-" + titleWord(w[idx+1:])
	}
	return strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
}
