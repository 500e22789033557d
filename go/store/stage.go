package store

import "fmt"

// Stage identifies one of the three deadlines in an assignment's
// lifecycle. Its integer value is stable: trigger payloads encode it as
// assignmentID*3 + int(stage).
type Stage int

const (
	StageInitial Stage = iota
	StagePeerReview
	StageFinal

	// NumStages is the trigger payload modulus.
	NumStages = 3
)

func (s Stage) String() string {
	switch s {
	case StageInitial:
		return "initial"
	case StagePeerReview:
		return "peer_review"
	case StageFinal:
		return "final"
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// ParseStage maps operator spellings of a stage onto its value.
func ParseStage(name string) (Stage, error) {
	switch name {
	case "initial":
		return StageInitial, nil
	case "peer", "peer_review":
		return StagePeerReview, nil
	case "final":
		return StageFinal, nil
	}
	return 0, fmt.Errorf("unknown stage %q", name)
}

// Gradeable component names. Initial and final stages produce one
// component each; the peer-review stage grades review1 and review2.
const (
	ComponentInitial = "initial"
	ComponentFinal   = "final"
	ComponentReview1 = "review1"
	ComponentReview2 = "review2"
)

func (s Stage) deadlineColumn() string {
	switch s {
	case StageInitial:
		return "initial_due"
	case StagePeerReview:
		return "peer_review_due"
	case StageFinal:
		return "final_due"
	}
	panic("invalid stage")
}
