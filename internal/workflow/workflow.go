package workflow

import (
	"context"
	"fmt"

	"github.com/podforge/podforge/internal/notify"
	"github.com/podforge/podforge/internal/services"
	"github.com/podforge/podforge/internal/session"
)

// TransportMode selects how the tracker follows an outstanding task.
type TransportMode string

const (
	TransportPoll   TransportMode = "poll"
	TransportStream TransportMode = "stream"
)

// Deps are the external collaborators a workflow instance is built from.
type Deps struct {
	Sessions    session.Store
	Reader      services.ContentReader
	Transformer services.DialogueTransformer
	Backend     services.PodcastBackend
	History     HistorySaver
	Transport   TransportMode

	// Deployment-level defaults seeded into fresh instances; empty values
	// keep the built-in defaults.
	DefaultLang      string
	DefaultModelName string
}

// Workflow is one orchestration instance: the state container plus the
// components that mutate it, sharing a session namespace keyed by the
// instance id.
type Workflow struct {
	ID        string
	State     *State
	Stepper   *Stepper
	Ingestor  *Ingestor
	Optimizer *Optimizer
	Dialogue  *DialogueGenerator
	Tracker   *Tracker
	Notifier  *notify.Notifier

	sessions session.Store
}

// New builds a fresh workflow instance. The stepper, script generator, and
// tracker each persist through their own namespace under the instance id.
func New(id string, deps Deps) *Workflow {
	state := NewState()
	state.SetOptionDefaults(deps.DefaultLang, deps.DefaultModelName)
	notifier := notify.New(16)

	instance := session.Namespaced(deps.Sessions, id)
	stepper := NewStepper(state, instance)

	var transport Transport
	if deps.Transport == TransportStream {
		transport = NewStreamTransport(deps.Backend)
	} else {
		transport = NewPollTransport(deps.Backend)
	}

	return &Workflow{
		ID:        id,
		State:     state,
		Stepper:   stepper,
		Ingestor:  NewIngestor(state, deps.Reader),
		Optimizer: NewOptimizer(state, deps.Transformer),
		Dialogue:  NewDialogueGenerator(state, deps.Backend, session.Namespaced(instance, "dialogue"), notifier),
		Tracker:   NewTracker(state, stepper, deps.Backend, transport, session.Namespaced(instance, "podcast"), deps.History, notifier),
		Notifier:  notifier,
		sessions:  instance,
	}
}

// Resume restores the persisted stage and re-attaches to any outstanding
// jobs without re-submitting them.
func (w *Workflow) Resume(ctx context.Context) error {
	w.Stepper.Restore(ctx)

	if err := w.Tracker.Resume(ctx); err != nil {
		return fmt.Errorf("failed to resume generation task: %w", err)
	}
	if err := w.Dialogue.Resume(ctx); err != nil {
		return fmt.Errorf("failed to resume script task: %w", err)
	}
	return nil
}

// Shutdown stops any background tracking without cancelling the remote jobs,
// so a later Resume can pick them back up.
func (w *Workflow) Shutdown() {
	w.Tracker.mu.Lock()
	if w.Tracker.stopTrack != nil {
		w.Tracker.stopTrack()
		w.Tracker.stopTrack = nil
	}
	w.Tracker.mu.Unlock()

	w.Dialogue.mu.Lock()
	if w.Dialogue.stop != nil {
		w.Dialogue.stop()
		w.Dialogue.stop = nil
	}
	w.Dialogue.mu.Unlock()
}

// SaveDraft persists the in-progress "new resource" form so it survives
// reloads. File payloads are excluded by the caller.
func (w *Workflow) SaveDraft(ctx context.Context, draft string) error {
	return w.sessions.Set(ctx, session.KeyResourceDraft, draft)
}

// Draft returns the persisted resource draft, if any.
func (w *Workflow) Draft(ctx context.Context) (string, bool, error) {
	return w.sessions.Get(ctx, session.KeyResourceDraft)
}

// ClearDraft removes the persisted resource draft.
func (w *Workflow) ClearDraft(ctx context.Context) error {
	return w.sessions.Remove(ctx, session.KeyResourceDraft)
}
