package progress

// Stage is one step of the multi-step upload pipeline. Stages only move
// forward; completed and failed are terminal.
type Stage string

const (
	StagePending    Stage = "pending"
	StageUploading  Stage = "uploading"
	StagePersisting Stage = "persisting"
	StageAnalyzing  Stage = "analyzing"
	StageCompleted  Stage = "completed"
	StageFailed     Stage = "failed"
)

var stageRank = map[Stage]int{
	StagePending:    0,
	StageUploading:  1,
	StagePersisting: 2,
	StageAnalyzing:  3,
	StageCompleted:  4,
	StageFailed:     4,
}

// Terminal reports whether the stage ends a unit's pipeline.
func (s Stage) Terminal() bool {
	return s == StageCompleted || s == StageFailed
}

// canAdvance reports whether a transition from → to respects the forward-only
// state machine: no regression, no leaving a terminal stage.
func canAdvance(from, to Stage) bool {
	if from.Terminal() {
		return false
	}
	if to == StageFailed {
		return true
	}
	return stageRank[to] > stageRank[from]
}
