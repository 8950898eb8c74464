package pipeline

import "fmt"

// State is a node in the answer pipeline's finite state machine. The zero
// value is not a valid state; runs begin at stateStart.
type State string

const (
	// stateStart is the implicit entry state before routing.
	stateStart State = "start"

	// StateRouted means the retrieval route has been fixed for this run.
	StateRouted State = "routed"
	// StateRetrieved means a retrieval call completed (possibly empty).
	StateRetrieved State = "retrieved"
	// StateGraded means relevance grading kept at least one document.
	StateGraded State = "graded"
	// StateInsufficientEvidence means grading left no usable evidence.
	StateInsufficientEvidence State = "insufficient_evidence"
	// StateGenerated means a candidate answer exists for the current evidence.
	StateGenerated State = "generated"
	// StateUngrounded means the candidate answer failed the grounding check.
	StateUngrounded State = "ungrounded"
	// StateGrounded means the candidate answer passed the grounding check.
	StateGrounded State = "grounded"
	// StateUnresolved means the answer does not resolve the original question.
	StateUnresolved State = "unresolved"

	// StateDone is terminal: the answer passed both verification checks.
	StateDone State = "done"
	// StateExhausted is terminal: the retry budget ran out and the configured
	// fallback answer is returned. Exhaustion is an answer, never an error.
	StateExhausted State = "exhausted"
)

// IsTerminal reports whether the state ends a run.
func (s State) IsTerminal() bool {
	return s == StateDone || s == StateExhausted
}

// Event is an observed outcome that advances the state machine.
type Event string

const (
	// EventRouteChosen fires once per run when classification completes
	// (including fallback classification).
	EventRouteChosen Event = "route_chosen"
	// EventDocsRetrieved fires when a retrieval call returns.
	EventDocsRetrieved Event = "docs_retrieved"
	// EventDocsGraded fires when grading keeps at least one document.
	EventDocsGraded Event = "docs_graded"
	// EventEvidenceEmpty fires when grading keeps nothing.
	EventEvidenceEmpty Event = "evidence_empty"
	// EventAnswerGenerated fires when generation produces a candidate answer.
	EventAnswerGenerated Event = "answer_generated"
	// EventGrounded and EventUngrounded carry the grounding verdict.
	EventGrounded   Event = "grounded"
	EventUngrounded Event = "ungrounded"
	// EventResolved and EventUnresolved carry the sufficiency verdict.
	EventResolved   Event = "resolved"
	EventUnresolved Event = "unresolved"
	// EventRetrySpent fires when one unit of the shared retry budget is
	// consumed, regardless of which loop-back edge consumed it.
	EventRetrySpent Event = "retry_spent"
	// EventBudgetExhausted fires when a loop-back edge is needed but the
	// retry budget is already spent.
	EventBudgetExhausted Event = "budget_exhausted"
)

// transitions is the complete legal edge set of the machine. The three
// retry_spent edges encode where each loop-back lands: insufficient evidence
// and an unresolved answer both re-enter at retrieval, while an ungrounded
// answer (or a failed generation call) regenerates from the same graded
// evidence. All budget_exhausted edges land in Exhausted.
var transitions = map[State]map[Event]State{
	stateStart: {
		EventRouteChosen: StateRouted,
	},
	StateRouted: {
		EventDocsRetrieved: StateRetrieved,
	},
	StateRetrieved: {
		EventDocsGraded:    StateGraded,
		EventEvidenceEmpty: StateInsufficientEvidence,
	},
	StateInsufficientEvidence: {
		EventRetrySpent:      StateRouted,
		EventBudgetExhausted: StateExhausted,
	},
	StateGraded: {
		EventAnswerGenerated: StateGenerated,
		EventRetrySpent:      StateGraded,
		EventBudgetExhausted: StateExhausted,
	},
	StateGenerated: {
		EventGrounded:   StateGrounded,
		EventUngrounded: StateUngrounded,
	},
	StateUngrounded: {
		EventRetrySpent:      StateGraded,
		EventBudgetExhausted: StateExhausted,
	},
	StateGrounded: {
		EventResolved:   StateDone,
		EventUnresolved: StateUnresolved,
	},
	StateUnresolved: {
		EventRetrySpent:      StateRouted,
		EventBudgetExhausted: StateExhausted,
	},
}

// next returns the state reached by applying event in state. An edge outside
// the transition table is a programming error in the orchestrator, reported
// as an error rather than silently absorbed.
func next(state State, event Event) (State, error) {
	if to, ok := transitions[state][event]; ok {
		return to, nil
	}
	return "", fmt.Errorf("pipeline: no transition from %q on %q", state, event)
}
