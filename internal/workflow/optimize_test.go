package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/podforge/podforge/internal/models"
)

func seedDialogues(state *State, lines ...string) []models.DialogueItem {
	items := make([]models.DialogueItem, len(lines))
	for i, line := range lines {
		items[i] = models.DialogueItem{Content: line, Speaker: i%2 + 1}
	}
	state.ReplaceDialogues(items)
	return state.Dialogues()
}

func rawRecord(id, content string, speaker int) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"id":%q,"content":%q,"speaker":%d}`, id, content, speaker))
}

func TestOptimizeCustomWithEmptyPromptFailsFast(t *testing.T) {
	state := NewState()
	seedDialogues(state, "line one")

	tf := &fakeTransformer{}
	opt := NewOptimizer(state, tf)

	ids := []string{state.Dialogues()[0].ID}
	_, err := opt.Optimize(context.Background(), ids, models.OptimizeCustom, "")

	if !errors.Is(err, ErrEmptyCustomPrompt) {
		t.Fatalf("expected ErrEmptyCustomPrompt, got %v", err)
	}
	if tf.callCount() != 0 {
		t.Error("remote transform must not be called for an empty custom prompt")
	}
	if len(opt.Preview()) != 0 {
		t.Error("preview map must stay empty")
	}
}

func TestOptimizeDropsMalformedRecords(t *testing.T) {
	state := NewState()
	items := seedDialogues(state, "alpha", "beta")

	tf := &fakeTransformer{response: []json.RawMessage{
		rawRecord(items[0].ID, "ALPHA", 1),
		json.RawMessage(`{"id": 42, "content":"numeric id", "speaker": 1}`),
		json.RawMessage(`{"id":"x","content":"speaker is a string","speaker":"two"}`),
	}}
	opt := NewOptimizer(state, tf)

	preview, err := opt.Optimize(context.Background(), []string{items[0].ID, items[1].ID}, models.OptimizeFixAll, "")
	if err != nil {
		t.Fatalf("optimize failed: %v", err)
	}

	entry := preview[items[0].ID]
	if entry.Optimized == nil || *entry.Optimized != "ALPHA" {
		t.Errorf("expected optimized text for item 0, got %+v", entry)
	}

	// Item the remote omitted stays pending, not an error.
	entry = preview[items[1].ID]
	if entry.Optimized != nil {
		t.Errorf("expected pending entry for omitted item, got %q", *entry.Optimized)
	}
	if entry.Original != "beta" {
		t.Errorf("expected snapshot original, got %q", entry.Original)
	}
}

func TestOptimizeZeroValidRecordsIsTotalFailure(t *testing.T) {
	state := NewState()
	items := seedDialogues(state, "alpha")

	tf := &fakeTransformer{response: []json.RawMessage{
		json.RawMessage(`{"id": 1, "content": 2, "speaker": "x"}`),
	}}
	opt := NewOptimizer(state, tf)

	_, err := opt.Optimize(context.Background(), []string{items[0].ID}, models.OptimizeMakeConcise, "")
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse, got %v", err)
	}
	if len(opt.Preview()) != 0 {
		t.Error("failed optimize must not leave a preview behind")
	}
	if state.Dialogues()[0].Content != "alpha" {
		t.Error("failed optimize must not touch the dialogue")
	}
}

func TestOptimizeSnapshotsOriginalsBeforeRemoteCall(t *testing.T) {
	state := NewState()
	items := seedDialogues(state, "original text")

	tf := &fakeTransformer{response: []json.RawMessage{rawRecord(items[0].ID, "rewritten", 1)}}
	opt := NewOptimizer(state, tf)

	preview, err := opt.Optimize(context.Background(), []string{items[0].ID}, models.OptimizeToneConsistency, "")
	if err != nil {
		t.Fatalf("optimize failed: %v", err)
	}

	// Concurrent user edit after the snapshot must not shift the preview.
	if err := state.UpdateDialogueContent(items[0].ID, "edited meanwhile"); err != nil {
		t.Fatalf("edit failed: %v", err)
	}

	if preview[items[0].ID].Original != "original text" {
		t.Errorf("expected stable snapshot, got %q", preview[items[0].ID].Original)
	}
}

func TestApplyReplacesContentWithFreshIDs(t *testing.T) {
	state := NewState()
	items := seedDialogues(state, "alpha", "beta")

	tf := &fakeTransformer{response: []json.RawMessage{
		rawRecord(items[0].ID, "ALPHA", 1),
	}}
	opt := NewOptimizer(state, tf)

	if _, err := opt.Optimize(context.Background(), []string{items[0].ID, items[1].ID}, models.OptimizeFixAll, ""); err != nil {
		t.Fatalf("optimize failed: %v", err)
	}

	renamed := opt.Apply(nil)

	newID, ok := renamed[items[0].ID]
	if !ok || newID == items[0].ID {
		t.Fatalf("expected a fresh id for the edited item, got %q", newID)
	}

	after := state.Dialogues()
	if after[0].ID != newID || after[0].Content != "ALPHA" {
		t.Errorf("expected applied content under fresh id, got %+v", after[0])
	}

	// Item without an optimized value is untouched: same id, same content.
	if after[1].ID != items[1].ID || after[1].Content != "beta" {
		t.Errorf("expected untouched item unchanged, got %+v", after[1])
	}

	if len(opt.Preview()) != 0 {
		t.Error("apply must close the preview")
	}
}

func TestApplyHonorsUserEditedPreview(t *testing.T) {
	state := NewState()
	items := seedDialogues(state, "alpha")

	tf := &fakeTransformer{response: []json.RawMessage{rawRecord(items[0].ID, "proposal", 1)}}
	opt := NewOptimizer(state, tf)

	if _, err := opt.Optimize(context.Background(), []string{items[0].ID}, models.OptimizeFixAll, ""); err != nil {
		t.Fatalf("optimize failed: %v", err)
	}

	opt.Apply(map[string]string{items[0].ID: "hand-tuned"})

	if got := state.Dialogues()[0].Content; got != "hand-tuned" {
		t.Errorf("expected user-edited text applied, got %q", got)
	}
}

func TestCancelDiscardsPreviewWithoutMutation(t *testing.T) {
	state := NewState()
	items := seedDialogues(state, "alpha")

	tf := &fakeTransformer{response: []json.RawMessage{rawRecord(items[0].ID, "rewritten", 1)}}
	opt := NewOptimizer(state, tf)

	if _, err := opt.Optimize(context.Background(), []string{items[0].ID}, models.OptimizeFixAll, ""); err != nil {
		t.Fatalf("optimize failed: %v", err)
	}

	opt.Cancel()

	if len(opt.Preview()) != 0 {
		t.Error("cancel must discard the preview")
	}
	after := state.Dialogues()[0]
	if after.ID != items[0].ID || after.Content != "alpha" {
		t.Errorf("cancel must not mutate the dialogue, got %+v", after)
	}
}
