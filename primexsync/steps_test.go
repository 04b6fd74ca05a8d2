package primexsync

import (
	"context"
	"errors"
	"testing"
)

func TestStepRejectsUnknownSyncType(t *testing.T) {
	e := NewEngine(nil, NewLockManager(), DefaultSettings())
	_, err := e.Step(context.Background(), StepRequest{Step: StepInit, SyncType: "inventory"})
	if !errors.Is(err, ErrUnknownSyncType) {
		t.Fatalf("err = %v, want ErrUnknownSyncType", err)
	}
}

func TestStepRejectsUnknownStep(t *testing.T) {
	e := NewEngine(nil, NewLockManager(), DefaultSettings())
	_, err := e.Step(context.Background(), StepRequest{Step: "resume", SyncType: "catalog"})
	if !errors.Is(err, ErrInvalidStep) {
		t.Fatalf("err = %v, want ErrInvalidStep", err)
	}
}

func TestStepProcessRequiresSession(t *testing.T) {
	e := NewEngine(nil, NewLockManager(), DefaultSettings())
	_, err := e.Step(context.Background(), StepRequest{Step: StepProcess, SyncType: "stock"})
	if !errors.Is(err, ErrInvalidStep) {
		t.Fatalf("err = %v, want ErrInvalidStep for missing session id", err)
	}
}

func TestStepProcessRejectsNegativeOffset(t *testing.T) {
	e := NewEngine(nil, NewLockManager(), DefaultSettings())
	_, err := e.Step(context.Background(), StepRequest{
		Step: StepProcess, SyncType: "stock", SessionId: "s-1", Offset: -1,
	})
	if !errors.Is(err, ErrInvalidStep) {
		t.Fatalf("err = %v, want ErrInvalidStep for negative offset", err)
	}
}

func TestStepCleanupRequiresSession(t *testing.T) {
	e := NewEngine(nil, NewLockManager(), DefaultSettings())
	_, err := e.Step(context.Background(), StepRequest{Step: StepCleanup, SyncType: "code"})
	if !errors.Is(err, ErrInvalidStep) {
		t.Fatalf("err = %v, want ErrInvalidStep for missing session id", err)
	}
}
