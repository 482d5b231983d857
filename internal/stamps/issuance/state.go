package issuance

import "fmt"

// State is a step of a single collect request.
type State int

const (
	StateReceived State = iota
	StateCredentialChecked
	StateGeoVerified
	StateIdempotencyChecked
	StateTestModeIssued
	StateLedgerIssued
	StateLedgerIssuedStoreFailed
	StateRejected
	// StateFailed ends a request on an infrastructure error before or
	// during the claim. No credential was issued.
	StateFailed
	StateTerminal
)

func (s State) String() string {
	switch s {
	case StateReceived:
		return "received"
	case StateCredentialChecked:
		return "credential_checked"
	case StateGeoVerified:
		return "geo_verified"
	case StateIdempotencyChecked:
		return "idempotency_checked"
	case StateTestModeIssued:
		return "test_mode_issued"
	case StateLedgerIssued:
		return "ledger_issued"
	case StateLedgerIssuedStoreFailed:
		return "ledger_issued_store_failed"
	case StateRejected:
		return "rejected"
	case StateFailed:
		return "failed"
	case StateTerminal:
		return "terminal"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var transitions = map[State][]State{
	StateReceived:                {StateCredentialChecked, StateRejected, StateFailed},
	StateCredentialChecked:       {StateGeoVerified, StateRejected},
	StateGeoVerified:             {StateIdempotencyChecked, StateRejected, StateFailed},
	StateIdempotencyChecked:      {StateTestModeIssued, StateLedgerIssued, StateLedgerIssuedStoreFailed, StateRejected, StateFailed},
	StateTestModeIssued:          {StateTerminal},
	StateLedgerIssued:            {StateTerminal},
	StateLedgerIssuedStoreFailed: {StateTerminal},
}

// CanTransition reports whether to may follow from.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsFinal reports whether no transition leaves s.
func (s State) IsFinal() bool {
	return len(transitions[s]) == 0
}
