package extract

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/clinicflow/scheduling-ai/pkg/logging"
)

const (
	ChatRoleSystem    = "system"
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
)

// ChatMessage is an internal message representation that can include system prompts.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type TokenUsage struct {
	InputTokens  int32
	OutputTokens int32
	TotalTokens  int32
}

type LLMRequest struct {
	Model       string
	System      []string
	Messages    []ChatMessage
	MaxTokens   int32
	Temperature float32
	TopP        float32
}

type LLMResponse struct {
	Text       string
	Usage      TokenUsage
	StopReason string
}

type LLMClient interface {
	Complete(ctx context.Context, req LLMRequest) (LLMResponse, error)
}

const extractionSystemPrompt = `You extract appointment scheduling fields from patient messages.
Respond with a single JSON object and nothing else. Use only these keys,
and omit any key the message says nothing about:
  name, dob (MM/DD/YYYY), phone (digits only), email,
  patient_type ("new" or "returning"), provider (e.g. "Dr. Johnson"),
  slot_choice (number 1-9), confirm ("yes" or "no"),
  insurance_carrier, insurance_member_id, insurance_group,
  self_pay ("true"), day_preference (comma separated weekdays),
  time_preference ("morning" or "afternoon").`

// LLMExtractor asks a language model for the structured fields and falls
// back to the rule extractor when the model fails or returns garbage.
type LLMExtractor struct {
	client   LLMClient
	fallback *RuleExtractor
	model    string
	logger   *logging.Logger
}

// NewLLMExtractor creates an extractor over the given client.
func NewLLMExtractor(client LLMClient, model string, logger *logging.Logger) *LLMExtractor {
	if client == nil {
		panic("extract: llm client required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &LLMExtractor{
		client:   client,
		fallback: NewRuleExtractor(),
		model:    model,
		logger:   logger,
	}
}

var _ Extractor = (*LLMExtractor)(nil)

// Extract queries the model. Any failure degrades to rules rather than
// surfacing an error, so extraction never blocks the conversation.
func (e *LLMExtractor) Extract(ctx context.Context, message string) (Result, error) {
	req := LLMRequest{
		Model:       e.model,
		System:      []string{extractionSystemPrompt},
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: message}},
		MaxTokens:   512,
		Temperature: 0,
	}

	resp, err := e.client.Complete(ctx, req)
	if err != nil {
		e.logger.Warn("extract: llm failed, using rules", "error", err)
		return e.fallback.Extract(ctx, message)
	}

	fields, err := parseExtractionJSON(resp.Text)
	if err != nil {
		e.logger.Warn("extract: unparseable llm output, using rules", "error", err)
		return e.fallback.Extract(ctx, message)
	}

	return Result{Fields: fields}, nil
}

var allowedFields = map[string]bool{
	FieldName: true, FieldDOB: true, FieldPhone: true, FieldEmail: true,
	FieldPatientType: true, FieldProvider: true, FieldSlotChoice: true,
	FieldConfirm: true, FieldCarrier: true, FieldMemberID: true,
	FieldGroupNumber: true, FieldSelfPay: true,
	FieldDayPreference: true, FieldTimePreference: true,
}

// parseExtractionJSON tolerates markdown fences around the JSON object and
// drops keys outside the known field set.
func parseExtractionJSON(text string) (map[string]string, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var raw map[string]string
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, err
	}

	fields := make(map[string]string, len(raw))
	for k, v := range raw {
		v = strings.TrimSpace(v)
		if allowedFields[k] && v != "" {
			fields[k] = v
		}
	}
	return fields, nil
}
