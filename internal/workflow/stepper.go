package workflow

import (
	"context"
	"log"

	"github.com/podforge/podforge/internal/session"
)

// Stepper is the workflow's only stage mutator. Direct jumps are gated by a
// data-completeness predicate; disallowed jumps are silent no-ops rather than
// errors, matching the navigation affordance this models.
type Stepper struct {
	state *State
	store session.Store
}

func NewStepper(state *State, store session.Store) *Stepper {
	return &Stepper{state: state, store: store}
}

// Current returns the active stage.
func (st *Stepper) Current() Stage {
	return st.state.Stage()
}

// maxReachableIndex derives the furthest stage the data allows:
// resources unlock content-adjustment, a complete script unlocks
// audio-settings, a finished artifact unlocks podcast-generation.
func (st *Stepper) maxReachableIndex() int {
	idx := 0
	if st.state.HasResources() {
		idx = 1
		if st.state.HasDialogue() {
			idx = 2
			if st.state.HasAudio() {
				idx = 3
			}
		}
	}
	return idx
}

// CanAccess reports whether a direct jump to the stage is currently allowed.
func (st *Stepper) CanAccess(stage Stage) bool {
	idx := stage.Index()
	return idx >= 0 && idx <= st.maxReachableIndex()
}

// Next advances one stage unless already at the last one.
func (st *Stepper) Next(ctx context.Context) Stage {
	idx := st.state.Stage().Index()
	if idx < len(stageOrder)-1 {
		st.move(ctx, stageAt(idx+1))
	}
	return st.state.Stage()
}

// Prev retreats one stage. Leaving the terminal stage discards the finished
// artifact reference; confirming that with the user is the caller's job.
func (st *Stepper) Prev(ctx context.Context) Stage {
	current := st.state.Stage()
	idx := current.Index()
	if idx <= 0 {
		return current
	}

	if current == StagePodcastGeneration {
		st.state.ClearArtifact()
	}
	st.move(ctx, stageAt(idx-1))
	return st.state.Stage()
}

// GoTo jumps directly to a stage when the reachability gate allows it.
// A disallowed or unknown target leaves the stage untouched.
func (st *Stepper) GoTo(ctx context.Context, stage Stage) Stage {
	if !st.CanAccess(stage) {
		return st.state.Stage()
	}
	st.move(ctx, stage)
	return stage
}

// Force sets the stage regardless of the gate. Used by failure
// reconciliation, which must drop the workflow back to audio-settings even
// mid-flight.
func (st *Stepper) Force(ctx context.Context, stage Stage) {
	if !stage.Valid() {
		return
	}
	st.move(ctx, stage)
}

func (st *Stepper) move(ctx context.Context, stage Stage) {
	st.state.setStage(stage)
	if err := st.store.Set(ctx, session.KeyStage, string(stage)); err != nil {
		log.Printf("[Stepper] failed to persist stage %s: %v", stage, err)
	}
}

// Restore re-reads the persisted stage after a restart, falling back to the
// initial stage when nothing usable was stored.
func (st *Stepper) Restore(ctx context.Context) Stage {
	value, ok, err := st.store.Get(ctx, session.KeyStage)
	if err != nil {
		log.Printf("[Stepper] failed to read persisted stage: %v", err)
		return st.state.Stage()
	}
	if ok && Stage(value).Valid() {
		st.state.setStage(Stage(value))
	}
	return st.state.Stage()
}
