package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/podforge/podforge/internal/models"
	"github.com/podforge/podforge/internal/notify"
	"github.com/podforge/podforge/internal/services"
	"github.com/podforge/podforge/internal/session"
)

// ErrNoResources rejects script generation before any source material exists.
var ErrNoResources = errors.New("no resources to generate a script from")

// DialogueGenerator runs the asynchronous script-generation job: it submits
// the workflow's resources, polls the shared status endpoint, and replaces
// the dialogue wholesale when the script arrives. It keeps its own session
// namespace so a reload resumes the poll.
type DialogueGenerator struct {
	state    *State
	backend  services.PodcastBackend
	store    session.Store
	notifier *notify.Notifier
	interval time.Duration

	mu         sync.Mutex
	taskID     string
	generating bool
	stop       context.CancelFunc
}

func NewDialogueGenerator(state *State, backend services.PodcastBackend, store session.Store, notifier *notify.Notifier) *DialogueGenerator {
	return &DialogueGenerator{
		state:    state,
		backend:  backend,
		store:    store,
		notifier: notifier,
		interval: PollInterval,
	}
}

func (d *DialogueGenerator) TaskID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.taskID
}

func (d *DialogueGenerator) Generating() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.generating
}

// Generate submits the script job built from the current resources and
// options, then polls in the background until the script lands.
func (d *DialogueGenerator) Generate(ctx context.Context) error {
	resources := d.state.Resources()
	if len(resources) == 0 {
		return ErrNoResources
	}

	opts := d.state.Options()
	req := &models.DialogueRequest{
		Resources:      make([]string, len(resources)),
		SpeakerNums:    opts.SpeakerNums,
		Lang:           opts.Lang,
		ModelName:      opts.ModelName,
		IsExtract:      opts.IsExtract,
		CustomPrompt:   opts.GenDialogPrompt,
		AudienceChoice: opts.AudienceChoice,
	}
	// Resource order carries through to the prompt order.
	for i, res := range resources {
		req.Resources[i] = res.Content
	}
	if opts.UseSpeakerName {
		req.Names = opts.SpeakerNames
	}
	if opts.IsLongGenerating {
		req.Version = "long"
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.taskID != "" {
		return ErrGenerationInProgress
	}

	taskID, err := d.backend.SubmitDialogue(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to submit script generation: %w", err)
	}

	d.taskID = taskID
	d.generating = true
	if err := d.store.Set(ctx, session.KeyTaskID, taskID); err != nil {
		log.Printf("[Dialogue] failed to persist task id: %v", err)
	}
	if err := d.store.Set(ctx, session.KeyGenerating, "true"); err != nil {
		log.Printf("[Dialogue] failed to persist generating flag: %v", err)
	}
	d.startPollLocked(taskID)

	log.Printf("[Dialogue] tracking script task %s", taskID)

	return nil
}

// Resume re-attaches to a persisted script job after a restart without
// re-submitting.
func (d *DialogueGenerator) Resume(ctx context.Context) error {
	taskID, hasTask, err := d.store.Get(ctx, session.KeyTaskID)
	if err != nil {
		return fmt.Errorf("failed to read persisted script task: %w", err)
	}
	generating, _, err := d.store.Get(ctx, session.KeyGenerating)
	if err != nil {
		return fmt.Errorf("failed to read generating flag: %w", err)
	}

	if !hasTask || taskID == "" || generating != "true" {
		if hasTask {
			_ = d.store.Remove(ctx, session.KeyTaskID)
			_ = d.store.Remove(ctx, session.KeyGenerating)
		}
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.taskID != "" {
		return nil
	}

	d.taskID = taskID
	d.generating = true
	d.startPollLocked(taskID)

	log.Printf("[Dialogue] resumed script task %s after reload", taskID)

	return nil
}

// Cancel clears the local job immediately and notifies the backend on a
// detached best-effort call.
func (d *DialogueGenerator) Cancel() {
	d.mu.Lock()
	taskID := d.taskID
	if taskID == "" {
		d.mu.Unlock()
		return
	}
	d.clearLocked()
	d.mu.Unlock()

	go d.backend.Cancel(taskID)
}

func (d *DialogueGenerator) startPollLocked(taskID string) {
	pollCtx, cancel := context.WithCancel(context.Background())
	d.stop = cancel
	go d.poll(pollCtx, taskID)
}

func (d *DialogueGenerator) poll(ctx context.Context, taskID string) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		resp, err := d.backend.Status(ctx, taskID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("[Dialogue] status query for %s failed: %v", taskID, err)
			d.fail(notify.CodeGeneric)
			return
		}

		switch resp.Status {
		case models.TaskStatusFail:
			code := notify.CodeGeneric
			if resp.Result != nil && resp.Result.Error != nil {
				code = resp.Result.Error.ErrCode
			}
			d.fail(code)
			return
		case models.TaskStatusSuccess:
			d.finish(resp.Result)
			return
		}
	}
}

// finish parses the delivered script and swaps it in atomically. In extract
// mode the speaker count follows whatever the script actually used.
func (d *DialogueGenerator) finish(res *models.StatusResult) {
	if res == nil || res.Content == "" {
		d.fail(notify.CodeGeneric)
		return
	}

	var script []models.Utterance
	if err := json.Unmarshal([]byte(res.Content), &script); err != nil || len(script) == 0 {
		log.Printf("[Dialogue] unusable script payload: %v", err)
		d.fail(notify.CodeGeneric)
		return
	}

	items := make([]models.DialogueItem, len(script))
	for i, line := range script {
		speaker := line.Speaker
		if speaker < 1 {
			speaker = 1
		}
		items[i] = models.DialogueItem{Content: line.Content, Speaker: speaker}
	}
	d.state.ReplaceDialogues(items)

	if d.state.Options().IsExtract {
		d.state.setSpeakerNums(d.state.DistinctSpeakerCount())
	}

	d.mu.Lock()
	d.clearLocked()
	d.mu.Unlock()

	log.Printf("[Dialogue] script ready: %d lines, %d distinct speakers", len(items), d.state.DistinctSpeakerCount())
}

func (d *DialogueGenerator) fail(code int) {
	d.mu.Lock()
	if d.taskID == "" {
		d.mu.Unlock()
		return
	}
	d.clearLocked()
	d.mu.Unlock()

	d.notifier.Publish(code)
}

// clearLocked drops the job and its persisted record. Caller holds d.mu.
func (d *DialogueGenerator) clearLocked() {
	d.taskID = ""
	d.generating = false
	if d.stop != nil {
		d.stop()
		d.stop = nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.store.Remove(ctx, session.KeyTaskID); err != nil {
		log.Printf("[Dialogue] failed to clear persisted task id: %v", err)
	}
	if err := d.store.Remove(ctx, session.KeyGenerating); err != nil {
		log.Printf("[Dialogue] failed to clear generating flag: %v", err)
	}
}
