package domain

// SessionStatus is the provider-side state of a hosted checkout session.
// Only the provider advances it.
type SessionStatus string

const (
	SessionStatusOpen      SessionStatus = "open"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusExpired   SessionStatus = "expired"
)

func (s SessionStatus) IsTerminal() bool {
	return s == SessionStatusCompleted || s == SessionStatusExpired
}

// String representation (for logging)
func (s SessionStatus) String() string {
	return string(s)
}

var sessionTransitions = map[SessionStatus][]SessionStatus{
	SessionStatusOpen: {SessionStatusCompleted, SessionStatusExpired},
}

// CanTransitionTo reports whether a session may move from s to next.
// Completed and expired are terminal.
func (s SessionStatus) CanTransitionTo(next SessionStatus) bool {
	for _, allowed := range sessionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IntentStatus is the provider-side state of a payment intent.
type IntentStatus string

const (
	IntentStatusRequiresPaymentMethod IntentStatus = "requires_payment_method"
	IntentStatusRequiresConfirmation  IntentStatus = "requires_confirmation"
	IntentStatusProcessing            IntentStatus = "processing"
	IntentStatusSucceeded             IntentStatus = "succeeded"
	IntentStatusCanceled              IntentStatus = "canceled"
	IntentStatusFailed                IntentStatus = "failed"
)

func (s IntentStatus) IsTerminal() bool {
	return s == IntentStatusSucceeded || s == IntentStatusCanceled
}

func (s IntentStatus) String() string {
	return string(s)
}

// PaymentKind tells which provider object a payment reference points at.
type PaymentKind string

const (
	PaymentKindSession PaymentKind = "session"
	PaymentKindIntent  PaymentKind = "intent"
)
