package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"routechat/internal/domain/call"
	routechat_errors "routechat/pkg/errors"

	"github.com/google/uuid"
)

func TestCallLifecycle(t *testing.T) {
	svc, _ := newCallEnv(t, time.Minute)
	ctx := context.Background()

	caller := uuid.New()
	receiver := uuid.New()

	c, err := svc.Initiate(ctx, caller, receiver, call.TypeAudio)
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	if c.Status != call.StatusRinging {
		t.Fatalf("status = %q, want RINGING", c.Status)
	}

	answered, err := svc.Answer(ctx, c.ID, receiver)
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if answered.Status != call.StatusOngoing {
		t.Fatalf("status = %q, want ONGOING", answered.Status)
	}
	if !answered.ConnectedAt.Valid {
		t.Fatal("ConnectedAt not set on answer")
	}

	if err := svc.End(ctx, c.ID, caller); err != nil {
		t.Fatalf("End: %v", err)
	}
	ended, err := svc.GetByID(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if ended.Status != call.StatusEnded {
		t.Fatalf("status = %q, want ENDED", ended.Status)
	}
	if !ended.EndedAt.Valid {
		t.Fatal("EndedAt not set on end")
	}

	// Terminal calls admit no further transitions.
	if err := svc.End(ctx, c.ID, receiver); !errors.Is(err, routechat_errors.ErrInvalidTransition) {
		t.Fatalf("end after end: expected ErrInvalidTransition, got %v", err)
	}
}

func TestCallReject(t *testing.T) {
	svc, _ := newCallEnv(t, time.Minute)
	ctx := context.Background()

	caller := uuid.New()
	receiver := uuid.New()
	c, err := svc.Initiate(ctx, caller, receiver, call.TypeVideo)
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}

	if err := svc.Reject(ctx, c.ID, receiver); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	got, err := svc.GetByID(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != call.StatusRejected {
		t.Fatalf("status = %q, want REJECTED", got.Status)
	}

	// A rejected call cannot be answered afterwards.
	if _, err := svc.Answer(ctx, c.ID, receiver); !errors.Is(err, routechat_errors.ErrInvalidTransition) {
		t.Fatalf("answer after reject: expected ErrInvalidTransition, got %v", err)
	}
}

func TestCallPermissions(t *testing.T) {
	svc, _ := newCallEnv(t, time.Minute)
	ctx := context.Background()

	caller := uuid.New()
	receiver := uuid.New()
	c, err := svc.Initiate(ctx, caller, receiver, call.TypeAudio)
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}

	// Only the receiver answers; not even the caller may.
	if _, err := svc.Answer(ctx, c.ID, caller); !errors.Is(err, routechat_errors.ErrForbidden) {
		t.Fatalf("caller answer: expected ErrForbidden, got %v", err)
	}
	if _, err := svc.Answer(ctx, c.ID, uuid.New()); !errors.Is(err, routechat_errors.ErrForbidden) {
		t.Fatalf("outsider answer: expected ErrForbidden, got %v", err)
	}
	if err := svc.End(ctx, c.ID, uuid.New()); !errors.Is(err, routechat_errors.ErrForbidden) {
		t.Fatalf("outsider end: expected ErrForbidden, got %v", err)
	}
}

func TestCallInitiateValidation(t *testing.T) {
	svc, _ := newCallEnv(t, time.Minute)
	ctx := context.Background()

	u := uuid.New()
	if _, err := svc.Initiate(ctx, u, u, call.TypeAudio); !errors.Is(err, routechat_errors.ErrInvalidInput) {
		t.Fatalf("self-call: expected ErrInvalidInput, got %v", err)
	}
	if _, err := svc.Initiate(ctx, u, uuid.New(), "TELEPATHY"); !errors.Is(err, routechat_errors.ErrInvalidInput) {
		t.Fatalf("bad type: expected ErrInvalidInput, got %v", err)
	}
}

func TestSingleActiveCallPerUser(t *testing.T) {
	svc, _ := newCallEnv(t, time.Minute)
	ctx := context.Background()

	caller := uuid.New()
	receiver := uuid.New()
	c, err := svc.Initiate(ctx, caller, receiver, call.TypeAudio)
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}

	// Neither the busy caller nor the busy receiver can enter a second call.
	if _, err := svc.Initiate(ctx, caller, uuid.New(), call.TypeAudio); !errors.Is(err, routechat_errors.ErrCallInProgress) {
		t.Fatalf("busy caller: expected ErrCallInProgress, got %v", err)
	}
	if _, err := svc.Initiate(ctx, uuid.New(), receiver, call.TypeAudio); !errors.Is(err, routechat_errors.ErrCallInProgress) {
		t.Fatalf("busy receiver: expected ErrCallInProgress, got %v", err)
	}

	// Ending the call frees both parties.
	if _, err := svc.Answer(ctx, c.ID, receiver); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if err := svc.End(ctx, c.ID, caller); err != nil {
		t.Fatalf("End: %v", err)
	}
	if _, err := svc.Initiate(ctx, caller, uuid.New(), call.TypeAudio); err != nil {
		t.Fatalf("initiate after end: %v", err)
	}
}

func TestRingTimeoutMarksMissed(t *testing.T) {
	svc, _ := newCallEnv(t, 50*time.Millisecond)
	ctx := context.Background()

	caller := uuid.New()
	receiver := uuid.New()
	c, err := svc.Initiate(ctx, caller, receiver, call.TypeAudio)
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		got, err := svc.GetByID(ctx, c.ID)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if got.Status == call.StatusMissed {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("call still %q after ring timeout", got.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}

	// The late answer loses to the timeout.
	if _, err := svc.Answer(ctx, c.ID, receiver); !errors.Is(err, routechat_errors.ErrInvalidTransition) {
		t.Fatalf("answer after timeout: expected ErrInvalidTransition, got %v", err)
	}
}

func TestAnswerBeatsRingTimeout(t *testing.T) {
	svc, _ := newCallEnv(t, 200*time.Millisecond)
	ctx := context.Background()

	caller := uuid.New()
	receiver := uuid.New()
	c, err := svc.Initiate(ctx, caller, receiver, call.TypeAudio)
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}

	if _, err := svc.Answer(ctx, c.ID, receiver); err != nil {
		t.Fatalf("Answer: %v", err)
	}

	// Give the timer a chance to fire anyway; the answered state must hold.
	time.Sleep(400 * time.Millisecond)
	got, err := svc.GetByID(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != call.StatusOngoing {
		t.Fatalf("status = %q after answered call outlived ring timer, want ONGOING", got.Status)
	}
}

func TestSetMute(t *testing.T) {
	svc, env := newCallEnv(t, time.Minute)
	ctx := context.Background()

	caller := uuid.New()
	receiver := uuid.New()
	c, err := svc.Initiate(ctx, caller, receiver, call.TypeVideo)
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	if _, err := svc.Answer(ctx, c.ID, receiver); err != nil {
		t.Fatalf("Answer: %v", err)
	}

	if err := svc.SetMute(ctx, c.ID, caller, true, false); err != nil {
		t.Fatalf("SetMute: %v", err)
	}
	if err := svc.SetMute(ctx, c.ID, uuid.New(), true, true); !errors.Is(err, routechat_errors.ErrForbidden) {
		t.Fatalf("outsider mute: expected ErrForbidden, got %v", err)
	}

	var muted bool
	row := env.db.Raw("SELECT muted_audio FROM call_participants WHERE call_id = ? AND user_id = ?", c.ID, caller).Row()
	if err := row.Scan(&muted); err != nil {
		t.Fatalf("scan participant: %v", err)
	}
	if !muted {
		t.Fatal("mute flag not persisted")
	}

	// Muting is not a state transition.
	got, err := svc.GetByID(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != call.StatusOngoing {
		t.Fatalf("status = %q after mute, want ONGOING", got.Status)
	}
}
