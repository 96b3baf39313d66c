package call

import "testing"

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to string }{
		{StatusRinging, StatusOngoing},
		{StatusRinging, StatusRejected},
		{StatusRinging, StatusMissed},
		{StatusOngoing, StatusEnded},
	}
	for _, tc := range allowed {
		if !CanTransition(tc.from, tc.to) {
			t.Errorf("%s -> %s should be allowed", tc.from, tc.to)
		}
	}

	forbidden := []struct{ from, to string }{
		{StatusRinging, StatusEnded},
		{StatusOngoing, StatusRejected},
		{StatusOngoing, StatusMissed},
		{StatusEnded, StatusOngoing},
		{StatusRejected, StatusOngoing},
		{StatusMissed, StatusOngoing},
		{StatusEnded, StatusEnded},
	}
	for _, tc := range forbidden {
		if CanTransition(tc.from, tc.to) {
			t.Errorf("%s -> %s should be forbidden", tc.from, tc.to)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	for _, status := range []string{StatusEnded, StatusRejected, StatusMissed} {
		if !IsTerminal(status) {
			t.Errorf("%s should be terminal", status)
		}
	}
	for _, status := range []string{StatusRinging, StatusOngoing} {
		if IsTerminal(status) {
			t.Errorf("%s should not be terminal", status)
		}
	}
}

func TestValidType(t *testing.T) {
	if !ValidType(TypeAudio) || !ValidType(TypeVideo) {
		t.Fatal("known types rejected")
	}
	if ValidType("audio") || ValidType("") {
		t.Fatal("unknown types accepted")
	}
}
