package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"

	"github.com/podforge/podforge/internal/models"
	"github.com/podforge/podforge/internal/services"
)

var (
	// ErrEmptyCustomPrompt rejects a custom transform with no prompt before
	// any remote call is made.
	ErrEmptyCustomPrompt = errors.New("custom transform requires a prompt")

	// ErrInvalidInstruction rejects an instruction outside the fixed enum.
	ErrInvalidInstruction = errors.New("unknown transform instruction")

	// ErrNoSelection rejects an optimize call with no resolvable items.
	ErrNoSelection = errors.New("no dialogue items selected")

	// ErrMalformedResponse reports a remote response with zero valid records.
	ErrMalformedResponse = errors.New("transform response contained no valid records")
)

// Optimizer computes AI rewrite previews for a subset of dialogue items and
// applies them only on explicit confirmation.
type Optimizer struct {
	state       *State
	transformer services.DialogueTransformer

	mu      sync.Mutex
	preview map[string]models.PreviewEntry
}

func NewOptimizer(state *State, transformer services.DialogueTransformer) *Optimizer {
	return &Optimizer{
		state:       state,
		transformer: transformer,
	}
}

// Optimize snapshots the selected items, runs the remote rewrite, and
// returns the preview map. Originals are captured before the call so the
// preview stays stable even if the user keeps editing the source items.
// Remote records with a bad shape are dropped; a response with zero valid
// records fails the whole call and leaves no preview behind.
func (o *Optimizer) Optimize(ctx context.Context, selectedIDs []string, instruction models.OptimizeInstruction, customPrompt string) (map[string]models.PreviewEntry, error) {
	if !instruction.Valid() {
		return nil, ErrInvalidInstruction
	}
	if instruction == models.OptimizeCustom && customPrompt == "" {
		return nil, ErrEmptyCustomPrompt
	}

	// Snapshot originals for every selected item that exists.
	selected := make(map[string]bool, len(selectedIDs))
	for _, id := range selectedIDs {
		selected[id] = true
	}

	items := []services.TransformItem{}
	preview := make(map[string]models.PreviewEntry)
	for _, item := range o.state.Dialogues() {
		if !selected[item.ID] {
			continue
		}
		items = append(items, services.TransformItem{
			ID:      item.ID,
			Content: item.Content,
			Speaker: item.Speaker,
		})
		preview[item.ID] = models.PreviewEntry{Original: item.Content}
	}
	if len(items) == 0 {
		return nil, ErrNoSelection
	}

	records, err := o.transformer.OptimizeDialogues(ctx, items, string(instruction), customPrompt)
	if err != nil {
		return nil, err
	}

	valid := 0
	for _, raw := range records {
		record, ok := parseTransformRecord(raw)
		if !ok {
			log.Printf("[Optimize] dropping malformed record: %s", truncateRaw(raw))
			continue
		}
		valid++

		entry, known := preview[record.ID]
		if !known {
			// Remote invented an id; nothing to pair it with.
			log.Printf("[Optimize] dropping record for unknown id %s", record.ID)
			continue
		}
		optimized := record.Content
		entry.Optimized = &optimized
		preview[record.ID] = entry
	}

	if valid == 0 {
		return nil, ErrMalformedResponse
	}

	o.mu.Lock()
	o.preview = preview
	o.mu.Unlock()

	return copyPreview(preview), nil
}

// Preview returns the pending preview map, empty when none is open.
func (o *Optimizer) Preview() map[string]models.PreviewEntry {
	o.mu.Lock()
	defer o.mu.Unlock()
	return copyPreview(o.preview)
}

// Apply commits the preview. edits overrides the proposed text per id (the
// user may have tweaked it); ids without an override use the preview's
// optimized value, and ids with no optimized value are left untouched.
// Every edited item gets a fresh id. Applying closes the preview.
func (o *Optimizer) Apply(edits map[string]string) map[string]string {
	o.mu.Lock()
	replacements := make(map[string]string)
	for id, entry := range o.preview {
		if override, ok := edits[id]; ok && override != "" {
			replacements[id] = override
		} else if entry.Optimized != nil {
			replacements[id] = *entry.Optimized
		}
	}
	o.preview = nil
	o.mu.Unlock()

	if len(replacements) == 0 {
		return map[string]string{}
	}
	return o.state.ApplyDialogueEdits(replacements)
}

// Cancel discards the preview without touching the dialogue.
func (o *Optimizer) Cancel() {
	o.mu.Lock()
	o.preview = nil
	o.mu.Unlock()
}

// transformRecord is the validated shape of one remote rewrite record.
type transformRecord struct {
	ID      string
	Content string
	Speaker int
}

// parseTransformRecord type-checks one raw record: string id, string
// content, numeric speaker. Anything else is malformed.
func parseTransformRecord(raw json.RawMessage) (transformRecord, bool) {
	var probe struct {
		ID      interface{} `json:"id"`
		Content interface{} `json:"content"`
		Speaker interface{} `json:"speaker"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return transformRecord{}, false
	}

	id, okID := probe.ID.(string)
	content, okContent := probe.Content.(string)
	speaker, okSpeaker := probe.Speaker.(float64)
	if !okID || !okContent || !okSpeaker || id == "" {
		return transformRecord{}, false
	}

	return transformRecord{ID: id, Content: content, Speaker: int(speaker)}, true
}

func copyPreview(preview map[string]models.PreviewEntry) map[string]models.PreviewEntry {
	copied := make(map[string]models.PreviewEntry, len(preview))
	for id, entry := range preview {
		copied[id] = entry
	}
	return copied
}

func truncateRaw(raw json.RawMessage) string {
	const maxLen = 200
	s := string(raw)
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	return s
}
