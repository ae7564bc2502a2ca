package session

import (
	"context"
	"testing"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	if _, ok, err := s.Get(ctx, KeyTaskID); err != nil || ok {
		t.Fatalf("expected missing key, got ok=%v err=%v", ok, err)
	}

	if err := s.Set(ctx, KeyTaskID, "T1"); err != nil {
		t.Fatalf("failed to set: %v", err)
	}

	value, ok, err := s.Get(ctx, KeyTaskID)
	if err != nil || !ok {
		t.Fatalf("expected present key, got ok=%v err=%v", ok, err)
	}
	if value != "T1" {
		t.Errorf("expected T1, got %q", value)
	}

	if err := s.Remove(ctx, KeyTaskID); err != nil {
		t.Fatalf("failed to remove: %v", err)
	}
	if _, ok, _ := s.Get(ctx, KeyTaskID); ok {
		t.Error("expected key to be gone after remove")
	}
}

func TestNamespacedStoresAreIsolated(t *testing.T) {
	ctx := context.Background()
	base := NewMemory()

	podcast := Namespaced(base, "wf-1:podcast")
	dialogue := Namespaced(base, "wf-1:dialogue")

	if err := podcast.Set(ctx, KeyTaskID, "P1"); err != nil {
		t.Fatalf("failed to set: %v", err)
	}
	if err := dialogue.Set(ctx, KeyTaskID, "D1"); err != nil {
		t.Fatalf("failed to set: %v", err)
	}

	value, ok, _ := podcast.Get(ctx, KeyTaskID)
	if !ok || value != "P1" {
		t.Errorf("expected P1 in podcast namespace, got %q (ok=%v)", value, ok)
	}

	value, ok, _ = dialogue.Get(ctx, KeyTaskID)
	if !ok || value != "D1" {
		t.Errorf("expected D1 in dialogue namespace, got %q (ok=%v)", value, ok)
	}

	if err := podcast.Remove(ctx, KeyTaskID); err != nil {
		t.Fatalf("failed to remove: %v", err)
	}
	if _, ok, _ := dialogue.Get(ctx, KeyTaskID); !ok {
		t.Error("removing from one namespace must not affect the other")
	}
}
