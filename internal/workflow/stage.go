package workflow

// Stage is one of the four ordered workflow positions.
type Stage string

const (
	StageAssetsSelection   Stage = "assets-selection"
	StageContentAdjustment Stage = "content-adjustment"
	StageAudioSettings     Stage = "audio-settings"
	StagePodcastGeneration Stage = "podcast-generation"
)

// stageOrder is the total order of the workflow. Index positions are what
// the reachability gate compares against.
var stageOrder = []Stage{
	StageAssetsSelection,
	StageContentAdjustment,
	StageAudioSettings,
	StagePodcastGeneration,
}

// Index returns the stage's position in the workflow order, or -1 for an
// unknown stage.
func (s Stage) Index() int {
	for i, stage := range stageOrder {
		if stage == s {
			return i
		}
	}
	return -1
}

// Valid reports whether s is one of the four workflow stages.
func (s Stage) Valid() bool {
	return s.Index() >= 0
}

func stageAt(index int) Stage {
	if index < 0 || index >= len(stageOrder) {
		return StageAssetsSelection
	}
	return stageOrder[index]
}
