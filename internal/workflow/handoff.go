package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/clinicflow/scheduling-ai/internal/session"
	"github.com/clinicflow/scheduling-ai/pkg/logging"
)

const handoffTTL = 7 * 24 * time.Hour

// HandoffPayload is everything a staff member needs to pick up an
// escalated session without re-asking the patient.
type HandoffPayload struct {
	SessionID      string                `dynamodbav:"sessionId" json:"session_id"`
	FailedStage    session.Stage         `dynamodbav:"failedStage" json:"failed_stage"`
	Reason         string                `dynamodbav:"reason" json:"reason"`
	LastMessage    string                `dynamodbav:"lastMessage,omitempty" json:"last_message,omitempty"`
	Patient        session.Patient       `dynamodbav:"patient" json:"patient"`
	Appointment    session.Appointment   `dynamodbav:"appointment" json:"appointment"`
	RetriesByStage map[session.Stage]int `dynamodbav:"retriesByStage,omitempty" json:"retries_by_stage,omitempty"`
	EscalatedAt    string                `dynamodbav:"escalatedAt" json:"escalated_at"`
	ExpiresAt      int64                 `dynamodbav:"expiresAt,omitempty" json:"-"`
}

// HandoffStore persists escalation payloads for the staff queue.
type HandoffStore interface {
	Put(ctx context.Context, payload *HandoffPayload) error
	Get(ctx context.Context, sessionID string) (*HandoffPayload, error)
}

// ErrHandoffNotFound indicates no escalation exists for the session.
var ErrHandoffNotFound = errors.New("workflow: handoff not found")

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// DynamoHandoffStore persists handoff payloads to DynamoDB.
type DynamoHandoffStore struct {
	client    dynamoAPI
	tableName string
	logger    *logging.Logger
}

// NewDynamoHandoffStore builds a store backed by the provided DynamoDB client.
func NewDynamoHandoffStore(client dynamoAPI, tableName string, logger *logging.Logger) *DynamoHandoffStore {
	if client == nil {
		panic("workflow: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("workflow: table name cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &DynamoHandoffStore{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

var _ HandoffStore = (*DynamoHandoffStore)(nil)

// Put inserts the escalation payload.
func (s *DynamoHandoffStore) Put(ctx context.Context, payload *HandoffPayload) error {
	if payload == nil {
		return errors.New("workflow: payload cannot be nil")
	}
	now := time.Now().UTC()
	if payload.EscalatedAt == "" {
		payload.EscalatedAt = now.Format(time.RFC3339Nano)
	}
	if payload.ExpiresAt == 0 {
		payload.ExpiresAt = now.Add(handoffTTL).Unix()
	}

	item, err := attributevalue.MarshalMap(payload)
	if err != nil {
		return fmt.Errorf("workflow: failed to marshal handoff: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("workflow: failed to persist handoff: %w", err)
	}

	s.logger.Info("workflow: handoff persisted", "session_id", payload.SessionID, "stage", string(payload.FailedStage))
	return nil
}

// Get loads the escalation payload for a session.
func (s *DynamoHandoffStore) Get(ctx context.Context, sessionID string) (*HandoffPayload, error) {
	key, err := attributevalue.MarshalMap(map[string]string{"sessionId": sessionID})
	if err != nil {
		return nil, fmt.Errorf("workflow: failed to marshal handoff key: %w", err)
	}

	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key:       key,
	})
	if err != nil {
		return nil, fmt.Errorf("workflow: failed to load handoff: %w", err)
	}
	if out.Item == nil {
		return nil, ErrHandoffNotFound
	}

	var payload HandoffPayload
	if err := attributevalue.UnmarshalMap(out.Item, &payload); err != nil {
		return nil, fmt.Errorf("workflow: failed to unmarshal handoff: %w", err)
	}
	return &payload, nil
}

// MemoryHandoffStore keeps payloads in memory for development and tests.
type MemoryHandoffStore struct {
	mu       sync.Mutex
	payloads map[string]*HandoffPayload
}

// NewMemoryHandoffStore creates an empty store.
func NewMemoryHandoffStore() *MemoryHandoffStore {
	return &MemoryHandoffStore{payloads: make(map[string]*HandoffPayload)}
}

var _ HandoffStore = (*MemoryHandoffStore)(nil)

func (s *MemoryHandoffStore) Put(_ context.Context, payload *HandoffPayload) error {
	if payload == nil {
		return errors.New("workflow: payload cannot be nil")
	}
	if payload.EscalatedAt == "" {
		payload.EscalatedAt = time.Now().UTC().Format(time.RFC3339Nano)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *payload
	s.payloads[payload.SessionID] = &cp
	return nil
}

func (s *MemoryHandoffStore) Get(_ context.Context, sessionID string) (*HandoffPayload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payloads[sessionID]
	if !ok {
		return nil, ErrHandoffNotFound
	}
	cp := *p
	return &cp, nil
}
