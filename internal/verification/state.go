package verification

// State is the position of a session in the verification protocol.
type State int

const (
	StateUnauthenticated State = iota
	StateCaseLoaded
	StateSecurityVerified
	StateCardVerified
	StateResolvedSafe
	StateResolvedFraud
	// StateVerificationFailed is absorbing. Every further operation is a protocol violation.
	StateVerificationFailed
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateCaseLoaded:
		return "case_loaded"
	case StateSecurityVerified:
		return "security_verified"
	case StateCardVerified:
		return "card_verified"
	case StateResolvedSafe:
		return "resolved_safe"
	case StateResolvedFraud:
		return "resolved_fraud"
	case StateVerificationFailed:
		return "verification_failed"
	default:
		return "unknown"
	}
}

// Resolved reports whether a disposition was recorded.
func (s State) Resolved() bool {
	return s == StateResolvedSafe || s == StateResolvedFraud
}

// Done reports whether the session accepts no further operations.
func (s State) Done() bool {
	return s.Resolved() || s == StateVerificationFailed
}
