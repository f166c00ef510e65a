package extract

import (
	"context"
	"testing"
)

func extractFields(t *testing.T, message string) Result {
	t.Helper()
	res, err := NewRuleExtractor().Extract(context.Background(), message)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	return res
}

func expectField(t *testing.T, res Result, key, want string) {
	t.Helper()
	got, ok := res.Get(key)
	if !ok {
		t.Fatalf("expected field %q, got none (fields: %v)", key, res.Fields)
	}
	if got != want {
		t.Fatalf("field %q: expected %q, got %q", key, want, got)
	}
}

func expectNoField(t *testing.T, res Result, key string) {
	t.Helper()
	if got, ok := res.Get(key); ok {
		t.Fatalf("expected no %q, got %q", key, got)
	}
}

func TestExtractStatedName(t *testing.T) {
	res := extractFields(t, "Hi, my name is john doe and I need an appointment")
	expectField(t, res, FieldName, "John Doe")
}

func TestExtractLeadingNameWithDOB(t *testing.T) {
	res := extractFields(t, "John Doe, 01/15/1985")
	expectField(t, res, FieldName, "John Doe")
	expectField(t, res, FieldDOB, "01/15/1985")
}

func TestExtractRejectsNonNamePhrases(t *testing.T) {
	res := extractFields(t, "I am new here")
	expectNoField(t, res, FieldName)
	expectField(t, res, FieldPatientType, "new")
}

func TestExtractPhoneAndEmail(t *testing.T) {
	res := extractFields(t, "Reach me at (555) 123-4567 or john@example.com")
	expectField(t, res, FieldPhone, "5551234567")
	expectField(t, res, FieldEmail, "john@example.com")
}

func TestExtractPatientType(t *testing.T) {
	res := extractFields(t, "This is my first time visiting")
	expectField(t, res, FieldPatientType, "new")

	res = extractFields(t, "I've visited before, I'm an existing patient")
	expectField(t, res, FieldPatientType, "returning")

	// Returning wins when both phrasings appear.
	res = extractFields(t, "I have new symptoms but I've been there before")
	expectField(t, res, FieldPatientType, "returning")
}

func TestExtractProvider(t *testing.T) {
	res := extractFields(t, "Can I see Dr. johnson please")
	expectField(t, res, FieldProvider, "Dr. Johnson")
}

func TestExtractSlotChoice(t *testing.T) {
	cases := map[string]string{
		"2":                  "2",
		"option 3":           "3",
		"the second one":     "2",
		"I'll take number 1": "1",
		"first slot works":   "1",
	}
	for msg, want := range cases {
		res := extractFields(t, msg)
		expectField(t, res, FieldSlotChoice, want)
	}
}

func TestExtractInsurance(t *testing.T) {
	res := extractFields(t, "I have Blue Cross, member ID ABC12345, group 991")
	expectField(t, res, FieldCarrier, "Blue Cross")
	expectField(t, res, FieldMemberID, "ABC12345")
	expectField(t, res, FieldGroupNumber, "991")
}

func TestExtractSelfPay(t *testing.T) {
	res := extractFields(t, "I don't have insurance, I'll pay out of pocket")
	expectField(t, res, FieldSelfPay, "true")
	expectNoField(t, res, FieldCarrier)
}

func TestExtractConfirmation(t *testing.T) {
	res := extractFields(t, "Yes, that works for me")
	expectField(t, res, FieldConfirm, "yes")

	res = extractFields(t, "No, none of those work")
	expectField(t, res, FieldConfirm, "no")
}

func TestExtractPreferences(t *testing.T) {
	res := extractFields(t, "Mondays or Wednesdays in the morning would be best")
	expectField(t, res, FieldDayPreference, "Monday,Wednesday")
	expectField(t, res, FieldTimePreference, "morning")
}

func TestExtractEmptyMessage(t *testing.T) {
	res := extractFields(t, "   ")
	if len(res.Fields) != 0 {
		t.Fatalf("expected no fields, got %v", res.Fields)
	}
}
