package call

const (
	TypeAudio = "AUDIO"
	TypeVideo = "VIDEO"
)

// Call lifecycle. RINGING is the only non-terminal state besides ONGOING;
// ENDED, REJECTED and MISSED are terminal.
const (
	StatusRinging  = "RINGING"
	StatusOngoing  = "ONGOING"
	StatusEnded    = "ENDED"
	StatusRejected = "REJECTED"
	StatusMissed   = "MISSED"
)

var transitions = map[string]map[string]bool{
	StatusRinging: {
		StatusOngoing:  true,
		StatusRejected: true,
		StatusMissed:   true,
	},
	StatusOngoing: {
		StatusEnded: true,
	},
}

// CanTransition reports whether the state machine permits from -> to.
func CanTransition(from, to string) bool {
	return transitions[from][to]
}

// IsTerminal reports whether no further transitions are permitted.
func IsTerminal(status string) bool {
	switch status {
	case StatusEnded, StatusRejected, StatusMissed:
		return true
	}
	return false
}

// ValidType reports whether t is a supported call type.
func ValidType(t string) bool {
	return t == TypeAudio || t == TypeVideo
}
