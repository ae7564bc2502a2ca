package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/podforge/podforge/internal/models"
	"github.com/podforge/podforge/internal/services"
	"github.com/podforge/podforge/internal/session"
)

// ---------------------------------------------------------------------------
// Shared fakes
// ---------------------------------------------------------------------------

// fakeReader serves canned page content; URLs not in the map fail.
type fakeReader struct {
	mu      sync.Mutex
	pages   map[string]string
	fetched []string
}

func newFakeReader(pages map[string]string) *fakeReader {
	return &fakeReader{pages: pages}
}

func (f *fakeReader) ReadToMarkdown(_ context.Context, rawURL string) (string, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, rawURL)
	f.mu.Unlock()

	content, ok := f.pages[rawURL]
	if !ok {
		return "", fmt.Errorf("unreachable: %s", rawURL)
	}
	return content, nil
}

func (f *fakeReader) fetchedURLs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.fetched...)
}

// fakeTransformer replays a scripted response and records whether it ran.
type fakeTransformer struct {
	mu       sync.Mutex
	response []json.RawMessage
	err      error
	calls    int
}

func (f *fakeTransformer) OptimizeDialogues(_ context.Context, _ []services.TransformItem, _, _ string) ([]json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.response, f.err
}

func (f *fakeTransformer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeBackend scripts the async backend: submissions hand out task ids,
// Status walks a fixed sequence of responses, Cancel records its calls.
type fakeBackend struct {
	mu             sync.Mutex
	submitCalls    int
	dialogueCalls  int
	nextTaskID     string
	statusSeq      []models.TaskStatusResponse
	statusIdx      int
	cancelled       []string
	streamEvents    []services.StreamEvent
	streamOpens     int
	lastDialogueReq *models.DialogueRequest
}

func newFakeBackend(taskID string) *fakeBackend {
	return &fakeBackend{nextTaskID: taskID}
}

func (f *fakeBackend) SubmitPodcast(_ context.Context, _ *models.PodcastRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitCalls++
	return f.nextTaskID, nil
}

func (f *fakeBackend) SubmitDialogue(_ context.Context, req *models.DialogueRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dialogueCalls++
	f.lastDialogueReq = req
	return f.nextTaskID, nil
}

func (f *fakeBackend) Status(_ context.Context, _ string) (*models.TaskStatusResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.statusSeq) == 0 {
		return &models.TaskStatusResponse{Status: models.TaskStatusProcessing}, nil
	}
	resp := f.statusSeq[f.statusIdx]
	if f.statusIdx < len(f.statusSeq)-1 {
		f.statusIdx++
	}
	return &resp, nil
}

func (f *fakeBackend) Cancel(taskID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, taskID)
}

func (f *fakeBackend) OpenStream(ctx context.Context, _ string) (<-chan services.StreamEvent, error) {
	f.mu.Lock()
	events := append([]services.StreamEvent(nil), f.streamEvents...)
	f.streamOpens++
	f.mu.Unlock()

	ch := make(chan services.StreamEvent)
	go func() {
		defer close(ch)
		for _, ev := range events {
			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func (f *fakeBackend) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submitCalls
}

func (f *fakeBackend) dialogueCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dialogueCalls
}

func (f *fakeBackend) dialogueRequest() *models.DialogueRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastDialogueReq
}

func (f *fakeBackend) cancelledTasks() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cancelled...)
}

// fakeHistory records saved podcasts.
type fakeHistory struct {
	mu    sync.Mutex
	saved []models.HistoryEntry
}

func (f *fakeHistory) Save(_ context.Context, title, mp3 string) (*models.HistoryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry := models.HistoryEntry{ID: int64(len(f.saved) + 1), Title: title, MP3: mp3, CreatedAt: time.Now()}
	f.saved = append(f.saved, entry)
	return &entry, nil
}

func (f *fakeHistory) savedEntries() []models.HistoryEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.HistoryEntry(nil), f.saved...)
}

func TestNewWorkflowAppliesConfiguredDefaults(t *testing.T) {
	wf := New("wf-1", Deps{
		Sessions:         session.NewMemory(),
		Backend:          newFakeBackend("T1"),
		History:          &fakeHistory{},
		DefaultLang:      "zh",
		DefaultModelName: "model-x",
	})

	opts := wf.State.Options()
	if opts.Lang != "zh" || opts.ModelName != "model-x" {
		t.Errorf("expected configured defaults applied, got lang=%q model=%q", opts.Lang, opts.ModelName)
	}

	// Without overrides the built-in defaults stand.
	plain := New("wf-2", Deps{
		Sessions: session.NewMemory(),
		Backend:  newFakeBackend("T2"),
		History:  &fakeHistory{},
	})
	if opts := plain.State.Options(); opts.Lang != DefaultLang || opts.ModelName != "" {
		t.Errorf("expected built-in defaults, got lang=%q model=%q", opts.Lang, opts.ModelName)
	}
}

// waitFor polls a condition until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
