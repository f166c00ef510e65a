package session

import (
	"errors"
	"testing"
)

func TestAdvanceMonotonic(t *testing.T) {
	s := New()
	if s.Stage != StageGreeting {
		t.Fatalf("new session should start at greeting, got %s", s.Stage)
	}

	for _, next := range Order[1:] {
		if err := s.Advance(next); err != nil {
			t.Fatalf("advance to %s returned error: %v", next, err)
		}
	}
	if s.Stage != StageDone {
		t.Fatalf("expected done, got %s", s.Stage)
	}
}

func TestAdvanceRejectsRegression(t *testing.T) {
	s := New()
	if err := s.Advance(StageFindSlots); err != nil {
		t.Fatalf("forward advance returned error: %v", err)
	}
	err := s.Advance(StageCollectIdentity)
	if !errors.Is(err, ErrStageRegression) {
		t.Fatalf("expected regression error, got %v", err)
	}
}

func TestAdvanceSelfLoopAllowed(t *testing.T) {
	s := New()
	if err := s.Advance(s.Stage); err != nil {
		t.Fatalf("self loop should be permitted, got %v", err)
	}
}

func TestConfirmSlotMayReturnToPresent(t *testing.T) {
	s := New()
	if err := s.Advance(StageConfirmSlot); err != nil {
		t.Fatalf("advance returned error: %v", err)
	}
	if err := s.Advance(StagePresentSlots); err != nil {
		t.Fatalf("confirm -> present return should be permitted, got %v", err)
	}
	if s.Stage != StagePresentSlots {
		t.Fatalf("expected present_slots, got %s", s.Stage)
	}
}

func TestEscalationIsAbsorbing(t *testing.T) {
	for _, stage := range Order[:len(Order)-1] {
		s := New()
		if err := s.Advance(stage); err != nil {
			t.Fatalf("advance to %s returned error: %v", stage, err)
		}
		s.Escalate()
		if s.Stage != StageEscalated || !s.Escalated {
			t.Fatalf("expected escalated from %s", stage)
		}
		if err := s.Advance(StageDone); !errors.Is(err, ErrSessionEscalated) {
			t.Fatalf("escalated session must freeze stage, got %v", err)
		}
	}
}

func TestRetriesResetOnTransition(t *testing.T) {
	s := New()
	if err := s.Advance(StageCollectIdentity); err != nil {
		t.Fatalf("advance returned error: %v", err)
	}
	s.RecordFailure()
	s.RecordFailure()
	if got := s.Retries[StageCollectIdentity]; got != 2 {
		t.Fatalf("expected 2 failures recorded, got %d", got)
	}
	if err := s.Advance(StageLookupPatient); err != nil {
		t.Fatalf("advance returned error: %v", err)
	}
	if got := s.Retries[StageCollectIdentity]; got != 0 {
		t.Fatalf("retries should reset on transition, got %d", got)
	}
}

func TestStageIndex(t *testing.T) {
	if StageEscalated.Index() != -1 {
		t.Fatal("escalated should sit outside the order")
	}
	if !StageDone.Terminal() || !StageEscalated.Terminal() {
		t.Fatal("done and escalated are terminal")
	}
	if StageNotify.Terminal() {
		t.Fatal("notify is not terminal")
	}
}
