package validate

import (
	"errors"
	"testing"
)

func TestName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		valid bool
	}{
		{"simple", "John Doe", true},
		{"hyphenated", "Mary-Jane O'Brien", true},
		{"with period", "Dr. Smith Jr.", true},
		{"too short", "J", false},
		{"digits", "John2", false},
		{"empty", "  ", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Name(tt.input)
			if tt.valid && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if !tt.valid && err == nil {
				t.Fatalf("expected error for %q", tt.input)
			}
		})
	}
}

func TestDateOfBirth(t *testing.T) {
	valid := []string{"01/01/1980", "1/1/1980", "01-15-1985", "1985-06-20"}
	for _, dob := range valid {
		if _, err := DateOfBirth(dob); err != nil {
			t.Fatalf("expected %q valid, got %v", dob, err)
		}
	}

	invalid := []string{"", "13/45/1980", "01/01/1850", "01/01/2150", "yesterday"}
	for _, dob := range invalid {
		if _, err := DateOfBirth(dob); err == nil {
			t.Fatalf("expected %q invalid", dob)
		}
	}

	parsed, err := DateOfBirth("1985-06-20")
	if err != nil {
		t.Fatalf("parse returned error: %v", err)
	}
	if NormalizeDOB(parsed) != "06/20/1985" {
		t.Fatalf("expected normalized 06/20/1985, got %s", NormalizeDOB(parsed))
	}
}

func TestPhone(t *testing.T) {
	got, err := Phone("(555) 234-5678")
	if err != nil {
		t.Fatalf("expected valid, got %v", err)
	}
	if got != "5552345678" {
		t.Fatalf("expected normalized digits, got %s", got)
	}

	got, err = Phone("1-555-234-5678")
	if err != nil {
		t.Fatalf("expected 11-digit form valid, got %v", err)
	}
	if got != "5552345678" {
		t.Fatalf("expected country code stripped, got %s", got)
	}

	for _, bad := range []string{"12345", "0552345678", "555123456789"} {
		if _, err := Phone(bad); err == nil {
			t.Fatalf("expected %q invalid", bad)
		}
	}

	if FormatPhone("5552345678") != "(555) 234-5678" {
		t.Fatalf("unexpected formatting: %s", FormatPhone("5552345678"))
	}
}

func TestEmail(t *testing.T) {
	if err := Email("john.doe@example.com"); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}
	for _, bad := range []string{"", "not-an-email", "a..b@example.com", "@example.com"} {
		if err := Email(bad); err == nil {
			t.Fatalf("expected %q invalid", bad)
		}
	}
}

func TestFieldErrorCarriesField(t *testing.T) {
	err := Email("nope")
	var fe *FieldError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FieldError, got %T", err)
	}
	if fe.Field != "email" {
		t.Fatalf("expected field email, got %s", fe.Field)
	}
}

func TestInsurance(t *testing.T) {
	carrier, err := InsuranceCarrier("I have Blue Cross Blue Shield")
	if err != nil {
		t.Fatalf("expected valid carrier, got %v", err)
	}
	if carrier != "Blue Cross" {
		t.Fatalf("expected normalized carrier, got %q", carrier)
	}

	if err := InsuranceMemberID("ABC12345"); err != nil {
		t.Fatalf("expected valid member id, got %v", err)
	}
	if err := InsuranceMemberID("123"); err == nil {
		t.Fatal("expected short member id invalid")
	}
	if err := InsuranceGroupNumber("GRP-778"); err != nil {
		t.Fatalf("expected valid group number, got %v", err)
	}
	if err := InsuranceGroupNumber("x"); err == nil {
		t.Fatal("expected short group number invalid")
	}
}

func TestNormalizeName(t *testing.T) {
	if got := NormalizeName("john   doe"); got != "John Doe" {
		t.Fatalf("expected John Doe, got %q", got)
	}
	if got := NormalizeName("mary-jane smith"); got != "Mary-Jane Smith" {
		t.Fatalf("expected Mary-Jane Smith, got %q", got)
	}
}
