package brainstorm

import "fmt"

// State is a step of the console brainstorming run.
type State string

const (
	StateSessionStart       State = "session_start"
	StatePurposeCapture     State = "purpose_capture"
	StateWarmupGeneration   State = "warmup_generation"
	StateConfirmationGate   State = "confirmation_gate"
	StateAssociationCapture State = "association_capture"
	StateKeywordExtraction  State = "keyword_extraction"
	StateIdeaGeneration     State = "idea_generation"
	StateAnalysis           State = "analysis"
	StateDeletionConfirm    State = "deletion_confirm"
	StateDeletionComplete   State = "deletion_complete"
	StateRetained           State = "retained"
)

// validTransitions defines allowed state transitions. Every state after
// session start may jump to deletion confirm on interrupt.
var validTransitions = map[State][]State{
	StateSessionStart:       {StatePurposeCapture},
	StatePurposeCapture:     {StateWarmupGeneration, StateDeletionConfirm},
	StateWarmupGeneration:   {StateConfirmationGate, StateDeletionConfirm},
	StateConfirmationGate:   {StateAssociationCapture, StateDeletionConfirm},
	StateAssociationCapture: {StateKeywordExtraction, StateDeletionConfirm},
	StateKeywordExtraction:  {StateIdeaGeneration, StateDeletionConfirm},
	StateIdeaGeneration:     {StateAnalysis, StateDeletionConfirm},
	StateAnalysis:           {StateDeletionConfirm},
	StateDeletionConfirm:    {StateDeletionComplete, StateRetained},
}

// Terminal reports whether no transitions leave s.
func (s State) Terminal() bool {
	_, ok := validTransitions[s]
	return !ok
}

// Transition validates and returns nil if from→to is a legal transition.
func Transition(from, to State) error {
	allowed, ok := validTransitions[from]
	if !ok {
		return fmt.Errorf("no transitions from %q", from)
	}
	for _, s := range allowed {
		if s == to {
			return nil
		}
	}
	return fmt.Errorf("invalid transition %q → %q", from, to)
}
