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

// PollInterval is the fixed cadence of status polling. The tick only runs
// while a task id is outstanding and is torn down the moment it clears.
const PollInterval = 3 * time.Second

// ErrGenerationInProgress rejects a submit while a task is outstanding.
// The outstanding task id is left untouched.
var ErrGenerationInProgress = errors.New("a generation task is already in progress")

// ErrNothingToGenerate rejects a submit with no complete script.
var ErrNothingToGenerate = errors.New("no dialogue to synthesize")

// ProgressFrame is one progress update forwarded to the tracker's listener.
// Content and Title are only populated on the final frame.
type ProgressFrame struct {
	Progress    int    `json:"progress"`
	Description string `json:"description,omitempty"`
	Content     string `json:"content,omitempty"`
	Title       string `json:"title,omitempty"`
}

// Reconciler receives transport outcomes. Both transports feed the same
// implementation so fail handling exists exactly once.
type Reconciler interface {
	OnResult(res *models.StatusResult)
	OnFailure(code int)
}

// Transport drives one outstanding task to a terminal outcome. Track blocks
// until the task ends or ctx is cancelled.
type Transport interface {
	Track(ctx context.Context, taskID string, r Reconciler)
}

// HistorySaver persists one finished podcast.
type HistorySaver interface {
	Save(ctx context.Context, title, mp3 string) (*models.HistoryEntry, error)
}

// Tracker owns the audio-generation job lifecycle: submission, transport
// reconciliation, optimistic cancel, and reload resume. At most one task is
// outstanding per workflow instance.
type Tracker struct {
	state     *State
	stepper   *Stepper
	backend   services.PodcastBackend
	transport Transport
	store     session.Store
	history   HistorySaver
	notifier  *notify.Notifier

	mu         sync.Mutex
	taskID     string
	generating bool
	saved      bool
	stopTrack  context.CancelFunc
	onProgress func(ProgressFrame)
}

var _ Reconciler = (*Tracker)(nil)

func NewTracker(state *State, stepper *Stepper, backend services.PodcastBackend, transport Transport, store session.Store, history HistorySaver, notifier *notify.Notifier) *Tracker {
	return &Tracker{
		state:     state,
		stepper:   stepper,
		backend:   backend,
		transport: transport,
		store:     store,
		history:   history,
		notifier:  notifier,
	}
}

// SetProgressListener installs the single progress consumer. Point-to-point:
// installing a new listener replaces the old one.
func (t *Tracker) SetProgressListener(fn func(ProgressFrame)) {
	t.mu.Lock()
	t.onProgress = fn
	t.mu.Unlock()
}

func (t *Tracker) TaskID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.taskID
}

func (t *Tracker) Generating() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.generating
}

// Submit builds the synthesis request from the current state, submits it,
// persists the outstanding task, and starts background tracking. Submitting
// while a task is outstanding fails without touching the task id.
func (t *Tracker) Submit(ctx context.Context) error {
	dialogues := t.state.Dialogues()
	if len(dialogues) == 0 {
		return ErrNothingToGenerate
	}

	opts := t.state.Options()
	req := &models.PodcastRequest{
		Speakers:   t.state.Speakers(),
		Contents:   make([]models.Utterance, len(dialogues)),
		UseBgm:     opts.UseBgm,
		AutoGenBgm: opts.AutoGenBgm,
		BgmPrompt:  opts.BgmPrompt,
		BgmVolume:  opts.BgmVolume,
		UILang:     opts.Lang,
		ModelName:  opts.ModelName,
	}
	for i, item := range dialogues {
		req.Contents[i] = models.Utterance{Content: item.Content, Speaker: item.Speaker}
	}
	if req.UseBgm && req.AutoGenBgm && req.BgmPrompt == "" {
		req.BgmPrompt = DefaultBgmPrompt
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.taskID != "" {
		return ErrGenerationInProgress
	}

	taskID, err := t.backend.SubmitPodcast(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to submit generation: %w", err)
	}

	t.taskID = taskID
	t.generating = true
	t.saved = false
	t.persistTaskLocked(ctx)
	t.startTrackingLocked(taskID)

	log.Printf("[Tracker] tracking task %s", taskID)

	return nil
}

// Resume re-attaches to a persisted outstanding task after a restart,
// without re-submitting. A stale record with no generating flag is cleaned
// up instead.
func (t *Tracker) Resume(ctx context.Context) error {
	taskID, hasTask, err := t.store.Get(ctx, session.KeyTaskID)
	if err != nil {
		return fmt.Errorf("failed to read persisted task: %w", err)
	}
	generating, _, err := t.store.Get(ctx, session.KeyGenerating)
	if err != nil {
		return fmt.Errorf("failed to read generating flag: %w", err)
	}

	if !hasTask || taskID == "" || generating != "true" {
		if hasTask {
			_ = t.store.Remove(ctx, session.KeyTaskID)
			_ = t.store.Remove(ctx, session.KeyGenerating)
		}
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.taskID != "" {
		return nil // already tracking
	}

	t.taskID = taskID
	t.generating = true
	t.saved = false
	t.startTrackingLocked(taskID)

	log.Printf("[Tracker] resumed task %s after reload", taskID)

	return nil
}

// Cancel clears the local task state immediately, then notifies the remote
// side on a detached best-effort call. Local state is authoritative: the
// remote outcome never gates it.
func (t *Tracker) Cancel() {
	t.mu.Lock()
	taskID := t.taskID
	if taskID == "" {
		t.mu.Unlock()
		return
	}
	t.clearTaskLocked()
	t.mu.Unlock()

	log.Printf("[Tracker] cancelled task %s locally", taskID)

	go t.backend.Cancel(taskID)
}

// OnResult reconciles a progress/result frame from either transport. The
// final frame (progress 100) persists the artifact to history exactly once
// and clears the outstanding task.
func (t *Tracker) OnResult(res *models.StatusResult) {
	if res == nil {
		return
	}

	t.mu.Lock()
	listener := t.onProgress
	t.mu.Unlock()

	if listener != nil {
		listener(ProgressFrame{
			Progress:    res.Progress,
			Description: res.Description,
			Content:     res.Content,
			Title:       res.Title,
		})
	}

	if res.Progress < 100 || res.Content == "" {
		return
	}

	t.mu.Lock()
	if t.taskID == "" {
		t.mu.Unlock()
		return // already reconciled or cancelled
	}
	first := !t.saved
	t.saved = true
	t.mu.Unlock()

	if first {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if _, err := t.history.Save(ctx, res.Title, res.Content); err != nil {
			// The artifact is still usable in-session; only the library entry is lost.
			log.Printf("[Tracker] failed to persist history entry: %v", err)
		}
		cancel()
	}

	t.state.SetArtifact(res.Title, res.Content)

	t.mu.Lock()
	t.clearTaskLocked()
	t.mu.Unlock()

	log.Printf("[Tracker] task finished: %q", res.Title)
}

// OnFailure reconciles a terminal failure from either transport: clear the
// task, surface the error code, and force the workflow back to
// audio-settings.
func (t *Tracker) OnFailure(code int) {
	t.mu.Lock()
	if t.taskID == "" {
		t.mu.Unlock()
		return // already reconciled or cancelled
	}
	taskID := t.taskID
	t.clearTaskLocked()
	t.mu.Unlock()

	log.Printf("[Tracker] task %s failed (err_code=%d)", taskID, code)

	t.notifier.Publish(code)
	t.stepper.Force(context.Background(), StageAudioSettings)
}

// startTrackingLocked launches the transport for a task. Caller holds t.mu.
func (t *Tracker) startTrackingLocked(taskID string) {
	trackCtx, cancel := context.WithCancel(context.Background())
	t.stopTrack = cancel
	go t.transport.Track(trackCtx, taskID, t)
}

// clearTaskLocked drops the outstanding task, stops its transport, and
// erases the persisted record. Caller holds t.mu.
func (t *Tracker) clearTaskLocked() {
	t.taskID = ""
	t.generating = false
	if t.stopTrack != nil {
		t.stopTrack()
		t.stopTrack = nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := t.store.Remove(ctx, session.KeyTaskID); err != nil {
		log.Printf("[Tracker] failed to clear persisted task id: %v", err)
	}
	if err := t.store.Remove(ctx, session.KeyGenerating); err != nil {
		log.Printf("[Tracker] failed to clear generating flag: %v", err)
	}
}

func (t *Tracker) persistTaskLocked(ctx context.Context) {
	if err := t.store.Set(ctx, session.KeyTaskID, t.taskID); err != nil {
		log.Printf("[Tracker] failed to persist task id: %v", err)
	}
	if err := t.store.Set(ctx, session.KeyGenerating, "true"); err != nil {
		log.Printf("[Tracker] failed to persist generating flag: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Transports
// ---------------------------------------------------------------------------

// PollTransport tracks a task by querying the status endpoint on the fixed
// interval.
type PollTransport struct {
	backend  services.PodcastBackend
	interval time.Duration
}

var _ Transport = (*PollTransport)(nil)

func NewPollTransport(backend services.PodcastBackend) *PollTransport {
	return &PollTransport{backend: backend, interval: PollInterval}
}

func (p *PollTransport) Track(ctx context.Context, taskID string, r Reconciler) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		resp, err := p.backend.Status(ctx, taskID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			// Transport error: same handling as a job failure, generic code.
			log.Printf("[Poll] status query for %s failed: %v", taskID, err)
			r.OnFailure(notify.CodeGeneric)
			return
		}

		switch resp.Status {
		case models.TaskStatusFail:
			code := notify.CodeGeneric
			if resp.Result != nil && resp.Result.Error != nil {
				code = resp.Result.Error.ErrCode
			}
			r.OnFailure(code)
			return
		case models.TaskStatusSuccess:
			// A terminal success must carry the finished artifact; anything
			// less would leave the task outstanding forever.
			if !usableFinalFrame(resp.Result) {
				log.Printf("[Poll] task %s reported success without a final frame", taskID)
				r.OnFailure(notify.CodeGeneric)
				return
			}
			r.OnResult(resp.Result)
			return
		default:
			r.OnResult(resp.Result)
		}
	}
}

// StreamTransport tracks a task by consuming its server-sent event stream.
// An error frame aborts the stream before any further events are processed.
type StreamTransport struct {
	backend services.PodcastBackend
}

var _ Transport = (*StreamTransport)(nil)

func NewStreamTransport(backend services.PodcastBackend) *StreamTransport {
	return &StreamTransport{backend: backend}
}

func (s *StreamTransport) Track(ctx context.Context, taskID string, r Reconciler) {
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	events, err := s.backend.OpenStream(streamCtx, taskID)
	if err != nil {
		log.Printf("[Stream] open failed for %s: %v", taskID, err)
		r.OnFailure(notify.CodeGeneric)
		return
	}

	for ev := range events {
		if ev.Name == "error" {
			r.OnFailure(streamErrorCode(ev.Data))
			return
		}

		var res models.StatusResult
		if err := json.Unmarshal(ev.Data, &res); err != nil {
			log.Printf("[Stream] dropping unparseable frame for %s: %v", taskID, err)
			continue
		}
		r.OnResult(&res)
		if res.Progress >= 100 {
			if !usableFinalFrame(&res) {
				log.Printf("[Stream] terminal frame for %s carries no artifact", taskID)
				r.OnFailure(notify.CodeGeneric)
			}
			return
		}
	}

	// Stream ended without a terminal frame.
	if ctx.Err() == nil {
		r.OnFailure(notify.CodeGeneric)
	}
}

// usableFinalFrame reports whether a result carries the finished artifact.
func usableFinalFrame(res *models.StatusResult) bool {
	return res != nil && res.Progress >= 100 && res.Content != ""
}

// streamErrorCode extracts the embedded error code from an error frame,
// falling back to the generic sentinel when absent or unparseable.
func streamErrorCode(data []byte) int {
	var frame struct {
		Error *models.StatusError `json:"error"`
	}
	if err := json.Unmarshal(data, &frame); err != nil || frame.Error == nil {
		return notify.CodeGeneric
	}
	return frame.Error.ErrCode
}
