package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"routechat/internal/domain/call"
	"routechat/internal/redis"
	"routechat/internal/repository"
	routechat_errors "routechat/pkg/errors"
	"routechat/pkg/events"
	"routechat/pkg/logger"

	"github.com/google/uuid"
)

// CallService is the call signaling engine: one state machine per call
// session. It owns only the logical call state; media negotiation is
// relayed opaquely through the signaling store.
type CallService struct {
	repo      repository.CallRepository
	signaling *redis.SignalingStore
	broker    events.Publisher
	notifier  Notifier
	log       *logger.Logger

	ringTimeout time.Duration

	mu     sync.Mutex
	timers map[uuid.UUID]*time.Timer
}

func NewCallService(repo repository.CallRepository, signaling *redis.SignalingStore, broker events.Publisher, notifier Notifier, log *logger.Logger, ringTimeout time.Duration) *CallService {
	if ringTimeout <= 0 {
		ringTimeout = 30 * time.Second
	}
	return &CallService{
		repo:        repo,
		signaling:   signaling,
		broker:      broker,
		notifier:    notifier,
		log:         log,
		ringTimeout: ringTimeout,
		timers:      make(map[uuid.UUID]*time.Timer),
	}
}

// Initiate creates a call in RINGING, arms the ring timer and notifies the
// receiver out-of-band. Each user coordinates at most one active call at a
// time; a second initiate while either party is busy fails with
// ErrCallInProgress.
func (s *CallService) Initiate(ctx context.Context, callerID, receiverID uuid.UUID, callType string) (call.Call, error) {
	if callerID == uuid.Nil || receiverID == uuid.Nil || callerID == receiverID {
		return call.Call{}, routechat_errors.ErrInvalidInput
	}
	if !call.ValidType(callType) {
		return call.Call{}, routechat_errors.ErrInvalidInput
	}

	for _, userID := range []uuid.UUID{callerID, receiverID} {
		if _, err := s.repo.GetActiveCallForUser(ctx, userID); err == nil {
			return call.Call{}, routechat_errors.ErrCallInProgress
		} else if !errors.Is(err, routechat_errors.ErrNotFound) {
			return call.Call{}, err
		}
	}

	now := time.Now()
	c := call.Call{
		ID:         uuid.New(),
		CallerID:   callerID,
		ReceiverID: receiverID,
		Type:       callType,
		Status:     call.StatusRinging,
		StartedAt:  now,
		CreatedAt:  now,
	}
	if err := s.repo.Create(ctx, &c); err != nil {
		return call.Call{}, err
	}

	if s.signaling != nil {
		state := &redis.CallState{
			CallID:     c.ID.String(),
			CallerID:   callerID.String(),
			ReceiverID: receiverID.String(),
			CallType:   callType,
			Status:     call.StatusRinging,
			StartedAt:  now,
		}
		if err := s.signaling.CreateCallState(ctx, state); err != nil && s.log != nil {
			s.log.Warnf("signaling state create failed for call %s: %v", c.ID, err)
		}
	}

	s.armTimer(c.ID)

	s.publishCallEvent(ctx, events.EventCallRinging, c, receiverID)
	dispatchNotify(s.notifier, s.log, receiverID, "Incoming call", callType, map[string]string{
		"call_id":   c.ID.String(),
		"caller_id": callerID.String(),
	})

	return c, nil
}

// Answer transitions RINGING -> ONGOING. Only the receiver may answer, and
// only while the call is still ringing.
func (s *CallService) Answer(ctx context.Context, callID, answererID uuid.UUID) (call.Call, error) {
	c, err := s.repo.GetByID(ctx, callID)
	if err != nil {
		return call.Call{}, err
	}
	if c.ReceiverID != answererID {
		return call.Call{}, routechat_errors.ErrForbidden
	}

	now := time.Now()
	won, err := s.repo.TransitionStatus(ctx, callID, call.StatusRinging, call.StatusOngoing, now)
	if err != nil {
		return call.Call{}, err
	}
	if !won {
		return call.Call{}, routechat_errors.ErrInvalidTransition
	}

	s.disarmTimer(callID)

	if err := s.repo.MarkJoined(ctx, callID, answererID, now); err != nil && s.log != nil {
		s.log.Warnf("mark joined failed for call %s: %v", callID, err)
	}
	if s.signaling != nil {
		if err := s.signaling.UpdateCallStatus(ctx, callID.String(), call.StatusOngoing); err != nil && s.log != nil {
			s.log.Warnf("signaling status update failed for call %s: %v", callID, err)
		}
	}

	s.publishCallEvent(ctx, events.EventCallAnswered, c, c.CallerID, c.ReceiverID)
	return s.repo.GetByID(ctx, callID)
}

// Reject transitions RINGING -> REJECTED.
func (s *CallService) Reject(ctx context.Context, callID, rejecterID uuid.UUID) error {
	return s.terminate(ctx, callID, rejecterID, call.StatusRinging, call.StatusRejected)
}

// End transitions ONGOING -> ENDED.
func (s *CallService) End(ctx context.Context, callID, enderID uuid.UUID) error {
	return s.terminate(ctx, callID, enderID, call.StatusOngoing, call.StatusEnded)
}

func (s *CallService) terminate(ctx context.Context, callID, actorID uuid.UUID, from, to string) error {
	c, err := s.repo.GetByID(ctx, callID)
	if err != nil {
		return err
	}
	if !c.IsParticipant(actorID) {
		return routechat_errors.ErrForbidden
	}
	if !call.CanTransition(c.Status, to) {
		return routechat_errors.ErrInvalidTransition
	}

	won, err := s.repo.TransitionStatus(ctx, callID, from, to, time.Now())
	if err != nil {
		return err
	}
	if !won {
		return routechat_errors.ErrInvalidTransition
	}

	s.disarmTimer(callID)
	s.clearSignaling(ctx, callID)
	s.publishCallEvent(ctx, events.EventCallEnded, c, c.CallerID, c.ReceiverID)
	return nil
}

// SetMute updates a participant's local mute flags. Not a state-machine
// transition; the call status is untouched.
func (s *CallService) SetMute(ctx context.Context, callID, userID uuid.UUID, audioMuted, videoMuted bool) error {
	c, err := s.repo.GetByID(ctx, callID)
	if err != nil {
		return err
	}
	if !c.IsParticipant(userID) {
		return routechat_errors.ErrForbidden
	}
	return s.repo.SetMute(ctx, callID, userID, audioMuted, videoMuted)
}

func (s *CallService) GetByID(ctx context.Context, callID uuid.UUID) (call.Call, error) {
	return s.repo.GetByID(ctx, callID)
}

func (s *CallService) ListForUser(ctx context.Context, userID uuid.UUID, page, limit int) ([]call.Call, int64, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.repo.ListForUser(ctx, userID, page, limit)
}

// SendOffer relays an SDP offer to the other party.
func (s *CallService) SendOffer(ctx context.Context, callID, fromID uuid.UUID, sdp string) error {
	return s.relay(ctx, callID, fromID, func(toID string) error {
		return s.signaling.SendOffer(ctx, callID.String(), fromID.String(), toID, sdp)
	})
}

// SendAnswer relays an SDP answer to the other party.
func (s *CallService) SendAnswer(ctx context.Context, callID, fromID uuid.UUID, sdp string) error {
	return s.relay(ctx, callID, fromID, func(toID string) error {
		return s.signaling.SendAnswer(ctx, callID.String(), fromID.String(), toID, sdp)
	})
}

// SendICECandidate relays an ICE candidate to the other party.
func (s *CallService) SendICECandidate(ctx context.Context, callID, fromID uuid.UUID, candidate *redis.ICECandidate) error {
	return s.relay(ctx, callID, fromID, func(toID string) error {
		return s.signaling.SendICECandidate(ctx, callID.String(), fromID.String(), toID, candidate)
	})
}

// DrainSignals pops the pending signaling frames addressed to a participant.
func (s *CallService) DrainSignals(ctx context.Context, callID, userID uuid.UUID) ([]redis.SignalingMessage, error) {
	c, err := s.repo.GetByID(ctx, callID)
	if err != nil {
		return nil, err
	}
	if !c.IsParticipant(userID) {
		return nil, routechat_errors.ErrForbidden
	}
	if s.signaling == nil {
		return nil, nil
	}
	return s.signaling.DrainSignals(ctx, callID.String(), userID.String())
}

// Stop disarms all pending ring timers. Used on shutdown.
func (s *CallService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
}

func (s *CallService) relay(ctx context.Context, callID, fromID uuid.UUID, send func(toID string) error) error {
	c, err := s.repo.GetByID(ctx, callID)
	if err != nil {
		return err
	}
	if !c.IsParticipant(fromID) {
		return routechat_errors.ErrForbidden
	}
	if call.IsTerminal(c.Status) {
		return routechat_errors.ErrInvalidTransition
	}
	if s.signaling == nil {
		return nil
	}
	toID := c.ReceiverID
	if fromID == c.ReceiverID {
		toID = c.CallerID
	}
	return send(toID.String())
}

func (s *CallService) armTimer(callID uuid.UUID) {
	timer := time.AfterFunc(s.ringTimeout, func() {
		s.ringTimedOut(callID)
	})
	s.mu.Lock()
	s.timers[callID] = timer
	s.mu.Unlock()
}

func (s *CallService) disarmTimer(callID uuid.UUID) {
	s.mu.Lock()
	if timer, ok := s.timers[callID]; ok {
		timer.Stop()
		delete(s.timers, callID)
	}
	s.mu.Unlock()
}

// ringTimedOut is the only engine-internal transition. The conditional
// RINGING -> MISSED update means the first transition wins: a timer that
// fires just after an answer or reject silently loses and never produces a
// late MISSED.
func (s *CallService) ringTimedOut(callID uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s.mu.Lock()
	delete(s.timers, callID)
	s.mu.Unlock()

	won, err := s.repo.TransitionStatus(ctx, callID, call.StatusRinging, call.StatusMissed, time.Now())
	if err != nil {
		if s.log != nil {
			s.log.Warnf("ring timeout transition failed for call %s: %v", callID, err)
		}
		return
	}
	if !won {
		return
	}

	s.clearSignaling(ctx, callID)
	if c, err := s.repo.GetByID(ctx, callID); err == nil {
		s.publishCallEvent(ctx, events.EventCallEnded, c, c.CallerID, c.ReceiverID)
		dispatchNotify(s.notifier, s.log, c.ReceiverID, "Missed call", c.Type, map[string]string{
			"call_id":   callID.String(),
			"caller_id": c.CallerID.String(),
		})
	}
}

func (s *CallService) clearSignaling(ctx context.Context, callID uuid.UUID) {
	if s.signaling == nil {
		return
	}
	if err := s.signaling.RemoveCallState(ctx, callID.String()); err != nil && s.log != nil {
		s.log.Warnf("signaling state cleanup failed for call %s: %v", callID, err)
	}
}

func (s *CallService) publishCallEvent(ctx context.Context, eventType string, c call.Call, userIDs ...uuid.UUID) {
	if s.broker == nil {
		return
	}
	event := events.Event{
		Type:      eventType,
		Payload:   c.ID.String(),
		Timestamp: time.Now().Unix(),
	}
	for _, userID := range userIDs {
		if err := s.broker.Publish(ctx, events.UserChannel(userID.String()), event); err != nil && s.log != nil {
			s.log.Warnf("publish %s to user %s failed: %v", eventType, userID, err)
		}
	}
}
