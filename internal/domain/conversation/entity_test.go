package conversation

import (
	"testing"

	"github.com/google/uuid"
)

func TestNormalizeParticipants(t *testing.T) {
	u1 := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	u2 := uuid.MustParse("00000000-0000-0000-0000-000000000002")

	got := NormalizeParticipants([]uuid.UUID{u2, u1, u2, uuid.Nil})
	if len(got) != 2 {
		t.Fatalf("got %d ids, want 2", len(got))
	}
	if got[0] != u1 || got[1] != u2 {
		t.Fatalf("not sorted: %v", got)
	}
}

func TestParticipantKeyIsOrderIndependent(t *testing.T) {
	u1 := uuid.New()
	u2 := uuid.New()
	u3 := uuid.New()

	a := ParticipantKeyOf(NormalizeParticipants([]uuid.UUID{u1, u2, u3}))
	b := ParticipantKeyOf(NormalizeParticipants([]uuid.UUID{u3, u1, u2}))
	if a != b {
		t.Fatalf("keys differ: %q vs %q", a, b)
	}

	c := ParticipantKeyOf(NormalizeParticipants([]uuid.UUID{u1, u2}))
	if a == c {
		t.Fatal("different sets produced the same key")
	}
}
