package domain

import (
	"errors"
	"time"
)

// IntentState represents the lifecycle state of a payment intent.
type IntentState string

const (
	IntentStateCreated          IntentState = "CREATED"
	IntentStateAwaitingCallback IntentState = "AWAITING_CALLBACK"
	IntentStateVerifying        IntentState = "VERIFYING"
	IntentStateConfirmed        IntentState = "CONFIRMED"
	IntentStateFailed           IntentState = "FAILED"
	IntentStateExpired          IntentState = "EXPIRED"
)

// ErrInvalidTransition is returned when a state change is not allowed by the lifecycle.
var ErrInvalidTransition = errors.New("invalid state transition")

// transitions lists the allowed successor states for each state.
var transitions = map[IntentState][]IntentState{
	IntentStateCreated: {
		IntentStateAwaitingCallback,
		IntentStateExpired,
	},
	IntentStateAwaitingCallback: {
		IntentStateVerifying,
		IntentStateFailed,
		IntentStateExpired,
	},
	IntentStateVerifying: {
		IntentStateConfirmed,
		IntentStateFailed,
		IntentStateAwaitingCallback,
		IntentStateExpired,
	},
}

// Valid reports whether s is a known state.
func (s IntentState) Valid() bool {
	switch s {
	case IntentStateCreated, IntentStateAwaitingCallback, IntentStateVerifying,
		IntentStateConfirmed, IntentStateFailed, IntentStateExpired:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions are possible from s.
func (s IntentState) IsTerminal() bool {
	return s.Valid() && len(transitions[s]) == 0
}

// CanTransition reports whether moving from s to next is allowed.
func (s IntentState) CanTransition(next IntentState) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// NonTerminalStates returns every state that can still change.
func NonTerminalStates() []IntentState {
	return []IntentState{
		IntentStateCreated,
		IntentStateAwaitingCallback,
		IntentStateVerifying,
	}
}

// CallbackOutcome is the result the gateway reports on its redirect back to us.
type CallbackOutcome string

const (
	CallbackSuccess CallbackOutcome = "SUCCESS"
	CallbackFailure CallbackOutcome = "FAILURE"
)

// Failure reasons recorded on FAILED intents.
const (
	FailureReasonCallback         = "gateway reported failure"
	FailureReasonAmountMismatch   = "amount mismatch"
	FailureReasonNotConfirmed     = "gateway did not confirm payment"
	FailureReasonAttemptsExceeded = "verification attempts exhausted"
)

// PaymentIntent represents one attempted payment tracked end to end.
type PaymentIntent struct {
	TransactionID        string
	Amount               Amount
	State                IntentState
	ReferenceID          string
	GatewayAmount        Amount // Amount reported on the success callback.
	Metadata             map[string]string
	FailureReason        string
	VerificationAttempts int
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// IsTerminal reports whether the intent can no longer change.
func (p *PaymentIntent) IsTerminal() bool {
	return p.State.IsTerminal()
}

// CallbackReceived reports whether a success callback has been recorded.
func (p *PaymentIntent) CallbackReceived() bool {
	return p.ReferenceID != ""
}

// IntentUpdate holds the fields changed by a conditional state transition.
// Nil pointers leave the stored value untouched.
type IntentUpdate struct {
	State                IntentState
	ReferenceID          *string
	GatewayAmount        *Amount
	FailureReason        *string
	VerificationAttempts *int
	UpdatedAt            time.Time
}

// Apply returns a copy of p with the update applied.
func (p PaymentIntent) Apply(u IntentUpdate) *PaymentIntent {
	p.State = u.State
	if u.ReferenceID != nil {
		p.ReferenceID = *u.ReferenceID
	}
	if u.GatewayAmount != nil {
		p.GatewayAmount = *u.GatewayAmount
	}
	if u.FailureReason != nil {
		p.FailureReason = *u.FailureReason
	}
	if u.VerificationAttempts != nil {
		p.VerificationAttempts = *u.VerificationAttempts
	}
	p.UpdatedAt = u.UpdatedAt
	return &p
}
