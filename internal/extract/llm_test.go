package extract

import (
	"context"
	"errors"
	"testing"
)

type stubLLM struct {
	text string
	err  error
}

func (s *stubLLM) Complete(_ context.Context, _ LLMRequest) (LLMResponse, error) {
	if s.err != nil {
		return LLMResponse{}, s.err
	}
	return LLMResponse{Text: s.text}, nil
}

func TestLLMExtractorParsesModelOutput(t *testing.T) {
	client := &stubLLM{text: `{"name": "John Doe", "dob": "01/15/1985", "patient_type": "new"}`}
	e := NewLLMExtractor(client, "test-model", nil)

	res, err := e.Extract(context.Background(), "hi I'm John")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	expectField(t, res, FieldName, "John Doe")
	expectField(t, res, FieldDOB, "01/15/1985")
	expectField(t, res, FieldPatientType, "new")
}

func TestLLMExtractorStripsMarkdownFences(t *testing.T) {
	client := &stubLLM{text: "```json\n{\"confirm\": \"yes\"}\n```"}
	e := NewLLMExtractor(client, "test-model", nil)

	res, err := e.Extract(context.Background(), "yes please")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	expectField(t, res, FieldConfirm, "yes")
}

func TestLLMExtractorDropsUnknownKeys(t *testing.T) {
	client := &stubLLM{text: `{"name": "Jane Roe", "mood": "chipper", "phone": ""}`}
	e := NewLLMExtractor(client, "test-model", nil)

	res, err := e.Extract(context.Background(), "message")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	expectField(t, res, FieldName, "Jane Roe")
	expectNoField(t, res, "mood")
	expectNoField(t, res, FieldPhone)
}

func TestLLMExtractorFallsBackOnError(t *testing.T) {
	client := &stubLLM{err: errors.New("model unavailable")}
	e := NewLLMExtractor(client, "test-model", nil)

	res, err := e.Extract(context.Background(), "my name is john doe")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	expectField(t, res, FieldName, "John Doe")
}

func TestLLMExtractorFallsBackOnGarbage(t *testing.T) {
	client := &stubLLM{text: "I could not process that request."}
	e := NewLLMExtractor(client, "test-model", nil)

	res, err := e.Extract(context.Background(), "option 2")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	expectField(t, res, FieldSlotChoice, "2")
}
