// Package extract pulls structured scheduling fields out of free-text
// patient messages. The rule extractor covers the common phrasings; the
// LLM extractor handles everything else and falls back to rules when the
// model is unavailable.
package extract

import "context"

// Field keys produced by extractors.
const (
	FieldName           = "name"
	FieldDOB            = "dob"
	FieldPhone          = "phone"
	FieldEmail          = "email"
	FieldPatientType    = "patient_type"
	FieldProvider       = "provider"
	FieldSlotChoice     = "slot_choice"
	FieldConfirm        = "confirm"
	FieldCarrier        = "insurance_carrier"
	FieldMemberID       = "insurance_member_id"
	FieldGroupNumber    = "insurance_group"
	FieldSelfPay        = "self_pay"
	FieldDayPreference  = "day_preference"
	FieldTimePreference = "time_preference"
)

// Result holds the fields recognized in one message. Absent keys mean the
// message said nothing about that field.
type Result struct {
	Fields map[string]string
}

// Get returns the value for key and whether it was extracted.
func (r Result) Get(key string) (string, bool) {
	v, ok := r.Fields[key]
	return v, ok
}

func (r *Result) set(key, value string) {
	if r.Fields == nil {
		r.Fields = make(map[string]string)
	}
	r.Fields[key] = value
}

// Extractor recognizes scheduling fields in a patient message.
type Extractor interface {
	Extract(ctx context.Context, message string) (Result, error)
}
