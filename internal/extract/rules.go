package extract

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/clinicflow/scheduling-ai/internal/validate"
)

// ---------- package-level compiled regexes ----------

var (
	newPatientRE       = regexp.MustCompile(`(?i)\bnew patient\b|first time|\bi'm new\b|\bi am new\b|\bnever been\b|\bnew here\b`)
	returningPatientRE = regexp.MustCompile(`(?i)\breturning\b|\bexisting patient\b|\bfollow[- ]?up\b|\bbeen there\b|\bbeen before\b|\bvisited before\b|\bcome here before\b|\bseen before\b`)

	statedNameRE  = regexp.MustCompile(`(?i)(?:my name is|my name's|name is|i am|i'm|this is)\s+([a-z][a-z'.-]*(?:\s+[a-z][a-z'.-]*){1,3})`)
	leadingNameRE = regexp.MustCompile(`^\s*([A-Z][a-zA-Z'.-]*(?:\s+[A-Z][a-zA-Z'.-]*){1,2})\s*,`)

	dobRE     = regexp.MustCompile(`\b(\d{1,2}[/-]\d{1,2}[/-]\d{4}|\d{4}-\d{2}-\d{2})\b`)
	bornOnRE  = regexp.MustCompile(`(?i)born(?:\s+on)?\s+(\d{1,2}[/-]\d{1,2}[/-]\d{4})`)
	phoneRE   = regexp.MustCompile(`(?:\+?1[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`)
	emailRE   = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	doctorRE  = regexp.MustCompile(`(?i)\b(?:dr\.?|doctor)\s+([a-z]+)`)

	optionRE  = regexp.MustCompile(`(?i)\b(?:option|number|slot|#)\s*([1-9])\b`)
	ordinalRE = regexp.MustCompile(`(?i)\b(?:the\s+)?(first|second|third|fourth|fifth)(?:\s+(?:one|slot|option))?\b`)
	bareNumRE = regexp.MustCompile(`^\s*([1-9])\s*\.?\s*$`)

	carrierStatedRE = regexp.MustCompile(`(?i)(?:insurance is|insurance with|carrier is|covered by|insured (?:by|with)|i have)\s+([a-z][a-z ]{1,30}?)(?:\s+insurance)?\s*(?:[,.]|$)`)
	memberIDRE      = regexp.MustCompile(`(?i)member\s*(?:id|number|no\.?)?\s*[:#]?\s*([a-z0-9][a-z0-9-]{4,19})\b`)
	groupRE         = regexp.MustCompile(`(?i)group\s*(?:number|no\.?|#)?\s*[:#]?\s*([a-z0-9][a-z0-9-]{1,14})\b`)
	selfPayRE       = regexp.MustCompile(`(?i)self[- ]?pay|no insurance|without insurance|out of pocket|pay(?:ing)? (?:cash|myself)`)

	yesRE = regexp.MustCompile(`(?i)^\s*(?:yes|yeah|yep|yup|sure|confirm(?:ed)?|correct|sounds good|that works|perfect|ok(?:ay)?|book it)\b`)
	noRE  = regexp.MustCompile(`(?i)^\s*(?:no|nope|nah|none of|neither|cancel|different|something else)\b`)

	weekdayRE   = regexp.MustCompile(`(?i)\b(monday|tuesday|wednesday|thursday|friday)s?\b`)
	morningRE   = regexp.MustCompile(`(?i)\bmornings?\b|\bbefore noon\b`)
	afternoonRE = regexp.MustCompile(`(?i)\bafternoons?\b|\bafter lunch\b`)
)

var ordinals = map[string]int{
	"first": 1, "second": 2, "third": 3, "fourth": 4, "fifth": 5,
}

// RuleExtractor recognizes fields with compiled patterns. It never errors,
// so it doubles as the fallback when the LLM backend is down.
type RuleExtractor struct{}

// NewRuleExtractor creates a rule-based extractor.
func NewRuleExtractor() *RuleExtractor {
	return &RuleExtractor{}
}

var _ Extractor = (*RuleExtractor)(nil)

// Extract scans the message for every recognizable field.
func (e *RuleExtractor) Extract(_ context.Context, message string) (Result, error) {
	var res Result
	msg := strings.TrimSpace(message)
	if msg == "" {
		return res, nil
	}

	e.extractIdentity(msg, &res)
	e.extractPatientType(msg, &res)
	e.extractProvider(msg, &res)
	e.extractSlotChoice(msg, &res)
	e.extractInsurance(msg, &res)
	e.extractConfirmation(msg, &res)
	e.extractPreferences(msg, &res)

	return res, nil
}

func (e *RuleExtractor) extractIdentity(msg string, res *Result) {
	if m := statedNameRE.FindStringSubmatch(msg); m != nil {
		name := validate.NormalizeName(trimNameTail(m[1]))
		if looksLikeName(name) {
			res.set(FieldName, name)
		}
	} else if m := leadingNameRE.FindStringSubmatch(msg); m != nil && looksLikeName(m[1]) {
		res.set(FieldName, validate.NormalizeName(m[1]))
	}

	if m := bornOnRE.FindStringSubmatch(msg); m != nil {
		res.set(FieldDOB, m[1])
	} else if m := dobRE.FindStringSubmatch(msg); m != nil {
		res.set(FieldDOB, m[1])
	}

	if m := phoneRE.FindString(msg); m != "" {
		if normalized, err := validate.Phone(m); err == nil {
			res.set(FieldPhone, normalized)
		}
	}

	if m := emailRE.FindString(msg); m != "" {
		if err := validate.Email(m); err == nil {
			res.set(FieldEmail, m)
		}
	}
}

func (e *RuleExtractor) extractPatientType(msg string, res *Result) {
	// Returning wins when both match: "new symptoms but I've been before".
	switch {
	case returningPatientRE.MatchString(msg):
		res.set(FieldPatientType, "returning")
	case newPatientRE.MatchString(msg):
		res.set(FieldPatientType, "new")
	}
}

func (e *RuleExtractor) extractProvider(msg string, res *Result) {
	if m := doctorRE.FindStringSubmatch(msg); m != nil {
		res.set(FieldProvider, "Dr. "+validate.NormalizeName(m[1]))
	}
}

func (e *RuleExtractor) extractSlotChoice(msg string, res *Result) {
	if m := bareNumRE.FindStringSubmatch(msg); m != nil {
		res.set(FieldSlotChoice, m[1])
		return
	}
	if m := optionRE.FindStringSubmatch(msg); m != nil {
		res.set(FieldSlotChoice, m[1])
		return
	}
	if m := ordinalRE.FindStringSubmatch(msg); m != nil {
		if n, ok := ordinals[strings.ToLower(m[1])]; ok {
			res.set(FieldSlotChoice, strconv.Itoa(n))
		}
	}
}

func (e *RuleExtractor) extractInsurance(msg string, res *Result) {
	if selfPayRE.MatchString(msg) {
		res.set(FieldSelfPay, "true")
		return
	}

	lower := strings.ToLower(msg)
	for _, carrier := range validate.KnownCarriers() {
		if strings.Contains(lower, carrier) {
			res.set(FieldCarrier, validate.NormalizeName(carrier))
			break
		}
	}
	if _, ok := res.Get(FieldCarrier); !ok {
		if m := carrierStatedRE.FindStringSubmatch(msg); m != nil {
			if normalized, err := validate.InsuranceCarrier(m[1]); err == nil {
				res.set(FieldCarrier, normalized)
			}
		}
	}

	if m := memberIDRE.FindStringSubmatch(msg); m != nil {
		if err := validate.InsuranceMemberID(m[1]); err == nil {
			res.set(FieldMemberID, strings.ToUpper(m[1]))
		}
	}
	if m := groupRE.FindStringSubmatch(msg); m != nil {
		if err := validate.InsuranceGroupNumber(m[1]); err == nil {
			res.set(FieldGroupNumber, strings.ToUpper(m[1]))
		}
	}
}

func (e *RuleExtractor) extractConfirmation(msg string, res *Result) {
	switch {
	case yesRE.MatchString(msg):
		res.set(FieldConfirm, "yes")
	case noRE.MatchString(msg):
		res.set(FieldConfirm, "no")
	}
}

func (e *RuleExtractor) extractPreferences(msg string, res *Result) {
	if days := weekdayRE.FindAllString(msg, -1); len(days) > 0 {
		normalized := make([]string, 0, len(days))
		seen := map[string]bool{}
		for _, d := range days {
			d = validate.NormalizeName(strings.TrimSuffix(strings.ToLower(d), "s"))
			if !seen[d] {
				seen[d] = true
				normalized = append(normalized, d)
			}
		}
		res.set(FieldDayPreference, strings.Join(normalized, ","))
	}

	switch {
	case morningRE.MatchString(msg):
		res.set(FieldTimePreference, "morning")
	case afternoonRE.MatchString(msg):
		res.set(FieldTimePreference, "afternoon")
	}
}

// nameCutWords end a name capture; the pattern is greedy and happily runs
// into the rest of the sentence.
var nameCutWords = map[string]bool{
	"and": true, "but": true, "i": true, "my": true, "a": true, "an": true,
	"the": true, "here": true, "need": true, "would": true, "calling": true,
	"at": true, "on": true, "for": true, "born": true, "dob": true,
}

func trimNameTail(captured string) string {
	words := strings.Fields(captured)
	for i, w := range words {
		if nameCutWords[strings.ToLower(w)] {
			words = words[:i]
			break
		}
	}
	return strings.Join(words, " ")
}

// looksLikeName rejects captures that are really other phrases, like
// "i am new here" matching the stated-name pattern.
func looksLikeName(name string) bool {
	words := strings.Fields(name)
	if len(words) < 2 || len(words) > 4 {
		return false
	}
	stop := map[string]bool{
		"new": true, "returning": true, "calling": true, "looking": true,
		"trying": true, "here": true, "not": true, "a": true, "an": true,
	}
	for _, w := range words {
		if stop[strings.ToLower(w)] {
			return false
		}
	}
	return validate.Name(name) == nil
}
