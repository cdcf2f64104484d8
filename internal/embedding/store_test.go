package embedding

import (
	"testing"
	"time"
)

func TestStore_RecordFailure_ExhaustsAtMaxAttempts(t *testing.T) {
	s := NewStore()
	now := time.Now()

	for i := 0; i < MaxAttempts-1; i++ {
		_, exhausted := s.RecordFailure("t1", FailureDecodeError, now)
		if exhausted {
			t.Fatalf("attempt %d should not yet be exhausted", i+1)
		}
	}

	_, exhausted := s.RecordFailure("t1", FailureDecodeError, now)
	if !exhausted {
		t.Error("expected track to be exhausted after MaxAttempts failures")
	}
	if s.Retryable("t1") {
		t.Error("expected track to no longer be retryable")
	}
}

func TestStore_ClearFailure_RestoresRetryability(t *testing.T) {
	s := NewStore()
	now := time.Now()
	for i := 0; i < MaxAttempts; i++ {
		s.RecordFailure("t1", FailureModelError, now)
	}
	if s.Retryable("t1") {
		t.Fatal("precondition: track should not be retryable yet")
	}

	s.ClearFailure("t1")
	if !s.Retryable("t1") {
		t.Error("expected track to be retryable again after ClearFailure")
	}
}

func TestStore_Put_ClearsPriorFailure(t *testing.T) {
	s := NewStore()
	s.RecordFailure("t1", FailureDecodeError, time.Now())

	s.Put(Record{TrackID: "t1", Vector: []float32{1, 2}, ModelVersion: "v1"})

	if !s.Retryable("t1") {
		t.Error("a successful Put should clear prior failure history")
	}
	rec, ok := s.Get("t1")
	if !ok || rec.ModelVersion != "v1" {
		t.Error("expected stored record to be retrievable")
	}
}

func TestStore_RoundTripJSON(t *testing.T) {
	s := NewStore()
	s.Put(Record{TrackID: "t1", Vector: []float32{1, 2, 3}, ModelVersion: "v1"})
	s.RecordFailure("t2", FailureFileNotFound, time.Now())

	data, err := s.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}

	restored := NewStore()
	if err := restored.UnmarshalJSON(data); err != nil {
		t.Fatalf("UnmarshalJSON: %v", err)
	}
	if _, ok := restored.Get("t1"); !ok {
		t.Error("expected t1 record to survive round trip")
	}
	if !restored.Retryable("t2") {
		t.Error("expected t2 (only 1 of MaxAttempts failures) to still be retryable after round trip")
	}
}
