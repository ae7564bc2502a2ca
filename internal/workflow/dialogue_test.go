package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/podforge/podforge/internal/models"
	"github.com/podforge/podforge/internal/notify"
	"github.com/podforge/podforge/internal/session"
)

type dialogueFixture struct {
	state    *State
	gen      *DialogueGenerator
	store    *session.MemoryStore
	notifier *notify.Notifier
	backend  *fakeBackend
}

func newDialogueFixture(backend *fakeBackend) *dialogueFixture {
	state := NewState()
	state.AddResource(models.Resource{Type: models.ResourceTypeText, Content: "article one"})
	state.AddResource(models.Resource{Type: models.ResourceTypeURL, URL: "https://a.test", Content: "article two"})

	store := session.NewMemory()
	notifier := notify.New(16)
	gen := NewDialogueGenerator(state, backend, store, notifier)
	gen.interval = 10 * time.Millisecond

	return &dialogueFixture{state: state, gen: gen, store: store, notifier: notifier, backend: backend}
}

func TestGenerateReplacesDialogueWholesale(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend("D1")
	backend.statusSeq = []models.TaskStatusResponse{
		{Status: models.TaskStatusProcessing, Result: &models.StatusResult{Progress: 30}},
		{Status: models.TaskStatusSuccess, Result: &models.StatusResult{
			Progress: 100,
			Content:  `[{"content":"welcome everyone","speaker":1},{"content":"happy to be here","speaker":2}]`,
		}},
	}
	fx := newDialogueFixture(backend)

	// A stale script from an earlier run must be fully replaced.
	fx.state.ReplaceDialogues([]models.DialogueItem{{Content: "old line", Speaker: 1}})

	if err := fx.gen.Generate(ctx); err != nil {
		t.Fatalf("generate failed: %v", err)
	}

	waitFor(t, "script to land", func() bool { return fx.gen.TaskID() == "" })

	items := fx.state.Dialogues()
	if len(items) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(items))
	}
	if items[0].Content != "welcome everyone" || items[0].Speaker != 1 {
		t.Errorf("unexpected first line: %+v", items[0])
	}
	if items[0].ID == "" || items[1].ID == "" || items[0].ID == items[1].ID {
		t.Error("expected fresh distinct ids on delivered lines")
	}

	if got := len(fx.state.Speakers()); got != 2 {
		t.Errorf("expected speaker slots synced to script, got %d", got)
	}

	if _, ok, _ := fx.store.Get(ctx, session.KeyTaskID); ok {
		t.Error("expected persisted task record cleared on completion")
	}
}

func TestGenerateBuildsRequestFromOptions(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend("D1")
	fx := newDialogueFixture(backend)

	fx.state.UpdateOptions(GenerationOptions{
		SpeakerNums:      3,
		Lang:             "zh",
		ModelName:        "model-x",
		UseSpeakerName:   true,
		SpeakerNames:     []string{"Ada", "Ben", "Cal"},
		GenDialogPrompt:  "keep it light",
		IsLongGenerating: true,
		AudienceChoice:   "beginners",
	})

	if err := fx.gen.Generate(ctx); err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	defer fx.gen.Cancel()

	req := backend.dialogueRequest()
	if req == nil {
		t.Fatal("expected a captured request")
	}
	if len(req.Resources) != 2 || req.Resources[0] != "article one" || req.Resources[1] != "article two" {
		t.Errorf("expected resource contents in order, got %v", req.Resources)
	}
	if req.SpeakerNums != 3 || req.Lang != "zh" || req.ModelName != "model-x" {
		t.Errorf("unexpected options in request: %+v", req)
	}
	if len(req.Names) != 3 || req.Names[0] != "Ada" {
		t.Errorf("expected speaker names carried, got %v", req.Names)
	}
	if req.CustomPrompt != "keep it light" || req.AudienceChoice != "beginners" {
		t.Errorf("expected prompt fields carried, got %+v", req)
	}
	if req.Version != "long" {
		t.Errorf("expected long version flag, got %q", req.Version)
	}
}

func TestGenerateOmitsNamesWhenDisabled(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend("D1")
	fx := newDialogueFixture(backend)

	fx.state.UpdateOptions(GenerationOptions{
		SpeakerNums:  2,
		Lang:         "en",
		SpeakerNames: []string{"Ada", "Ben"},
	})

	if err := fx.gen.Generate(ctx); err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	defer fx.gen.Cancel()

	if req := backend.dialogueRequest(); len(req.Names) != 0 {
		t.Errorf("names must not be sent when the toggle is off, got %v", req.Names)
	}
}

func TestExtractModeFollowsDeliveredSpeakerCount(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend("D1")
	backend.statusSeq = []models.TaskStatusResponse{
		{Status: models.TaskStatusSuccess, Result: &models.StatusResult{
			Progress: 100,
			Content:  `[{"content":"a","speaker":1},{"content":"b","speaker":2},{"content":"c","speaker":3}]`,
		}},
	}
	fx := newDialogueFixture(backend)

	opts := fx.state.Options()
	opts.IsExtract = true
	fx.state.UpdateOptions(opts)

	if err := fx.gen.Generate(ctx); err != nil {
		t.Fatalf("generate failed: %v", err)
	}

	waitFor(t, "script to land", func() bool { return fx.gen.TaskID() == "" })

	if got := fx.state.Options().SpeakerNums; got != 3 {
		t.Errorf("extract mode must follow the script's speaker count, got %d", got)
	}
}

func TestGenerateWithoutResourcesIsRejected(t *testing.T) {
	backend := newFakeBackend("D1")
	state := NewState()
	gen := NewDialogueGenerator(state, backend, session.NewMemory(), notify.New(4))

	if err := gen.Generate(context.Background()); !errors.Is(err, ErrNoResources) {
		t.Fatalf("expected ErrNoResources, got %v", err)
	}
	if backend.dialogueCount() != 0 {
		t.Error("no submission expected without resources")
	}
}

func TestGenerateWhileOutstandingIsRejected(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend("D1")
	fx := newDialogueFixture(backend)

	if err := fx.gen.Generate(ctx); err != nil {
		t.Fatalf("first generate failed: %v", err)
	}
	defer fx.gen.Cancel()

	if err := fx.gen.Generate(ctx); !errors.Is(err, ErrGenerationInProgress) {
		t.Fatalf("expected ErrGenerationInProgress, got %v", err)
	}
	if backend.dialogueCount() != 1 {
		t.Errorf("expected exactly 1 submission, got %d", backend.dialogueCount())
	}
}

func TestScriptJobFailureEmitsNotice(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend("D1")
	backend.statusSeq = []models.TaskStatusResponse{
		{Status: models.TaskStatusFail, Result: &models.StatusResult{Error: &models.StatusError{ErrCode: -10203}}},
	}
	fx := newDialogueFixture(backend)

	if err := fx.gen.Generate(ctx); err != nil {
		t.Fatalf("generate failed: %v", err)
	}

	waitFor(t, "failure to reconcile", func() bool { return fx.gen.TaskID() == "" })

	notices := fx.notifier.Drain()
	if len(notices) != 1 || notices[0].Code != -10203 {
		t.Fatalf("expected one notice with code -10203, got %+v", notices)
	}
	if len(fx.state.Dialogues()) != 0 {
		t.Error("failed job must not touch the script")
	}
}

func TestUnparseableScriptIsGenericFailure(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend("D1")
	backend.statusSeq = []models.TaskStatusResponse{
		{Status: models.TaskStatusSuccess, Result: &models.StatusResult{Progress: 100, Content: "not a script"}},
	}
	fx := newDialogueFixture(backend)

	if err := fx.gen.Generate(ctx); err != nil {
		t.Fatalf("generate failed: %v", err)
	}

	waitFor(t, "failure to reconcile", func() bool { return fx.gen.TaskID() == "" })

	notices := fx.notifier.Drain()
	if len(notices) != 1 || notices[0].Code != notify.CodeGeneric {
		t.Fatalf("expected generic failure notice, got %+v", notices)
	}
}

func TestScriptResumeTracksWithoutResubmitting(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend("D1")
	backend.statusSeq = []models.TaskStatusResponse{
		{Status: models.TaskStatusSuccess, Result: &models.StatusResult{
			Progress: 100,
			Content:  `[{"content":"resumed line","speaker":1}]`,
		}},
	}
	fx := newDialogueFixture(backend)

	_ = fx.store.Set(ctx, session.KeyTaskID, "D1")
	_ = fx.store.Set(ctx, session.KeyGenerating, "true")

	if err := fx.gen.Resume(ctx); err != nil {
		t.Fatalf("resume failed: %v", err)
	}

	waitFor(t, "resumed script to land", func() bool { return len(fx.state.Dialogues()) == 1 })

	if backend.dialogueCount() != 0 {
		t.Errorf("resume must not re-submit, got %d submissions", backend.dialogueCount())
	}
}

func TestScriptCancelClearsLocallyThenNotifiesRemote(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend("D1")
	fx := newDialogueFixture(backend)

	if err := fx.gen.Generate(ctx); err != nil {
		t.Fatalf("generate failed: %v", err)
	}

	fx.gen.Cancel()

	if fx.gen.TaskID() != "" || fx.gen.Generating() {
		t.Error("expected local job cleared immediately on cancel")
	}
	waitFor(t, "remote cancel notification", func() bool {
		tasks := backend.cancelledTasks()
		return len(tasks) == 1 && tasks[0] == "D1"
	})
}
