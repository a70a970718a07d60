package domain

import "time"

// NegotiationKind tags the variants of the negotiation state machine.
type NegotiationKind int

const (
	// NegotiationInitial means no duration has been proposed yet.
	NegotiationInitial NegotiationKind = iota
	// NegotiationProposed means one party named a duration, awaiting confirmation.
	NegotiationProposed
	// NegotiationNegotiating means at least one counter-proposal has occurred.
	NegotiationNegotiating
	// NegotiationAgreed is the terminal success state.
	NegotiationAgreed
	// NegotiationRejected is the terminal failure state.
	NegotiationRejected
)

func (k NegotiationKind) String() string {
	switch k {
	case NegotiationProposed:
		return "proposed"
	case NegotiationNegotiating:
		return "negotiating"
	case NegotiationAgreed:
		return "agreed"
	case NegotiationRejected:
		return "rejected"
	default:
		return "initial"
	}
}

// NegotiationState is a tagged union: the Duration payload is meaningful
// only for Proposed, Negotiating and Agreed. Proposed and Negotiating both
// carry a duration but remain distinct variants.
type NegotiationState struct {
	Kind     NegotiationKind
	Duration time.Duration
}

// Terminal reports whether the state admits no further transitions.
func (s NegotiationState) Terminal() bool {
	return s.Kind == NegotiationAgreed || s.Kind == NegotiationRejected
}

// InitialState returns the starting state of a negotiation session.
func InitialState() NegotiationState {
	return NegotiationState{Kind: NegotiationInitial}
}
