package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// SignalingMessage is a WebRTC signaling frame relayed between the two call
// parties. The engine never interprets SDP or candidates; it only moves them.
type SignalingMessage struct {
	Type      string        `json:"type"` // offer, answer, ice_candidate
	CallID    string        `json:"call_id"`
	FromID    string        `json:"from_id"`
	ToID      string        `json:"to_id"`
	SDP       string        `json:"sdp,omitempty"`
	Candidate *ICECandidate `json:"candidate,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// ICECandidate represents a WebRTC ICE candidate
type ICECandidate struct {
	Candidate     string `json:"candidate"`
	SDPMid        string `json:"sdp_mid"`
	SDPMLineIndex int    `json:"sdp_mline_index"`
}

// CallState mirrors the logical call state for fast signaling-path reads.
// The database row stays authoritative.
type CallState struct {
	CallID      string     `json:"call_id"`
	CallerID    string     `json:"caller_id"`
	ReceiverID  string     `json:"receiver_id"`
	CallType    string     `json:"call_type"` // AUDIO, VIDEO
	Status      string     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	ConnectedAt *time.Time `json:"connected_at,omitempty"`
}

// SignalingStore handles WebRTC signaling state in Redis
type SignalingStore struct {
	client *goredis.Client
}

const (
	signalingCallStateKey = "call:state:"
	signalingInboxKey     = "call:signal:"
	signalingTTL          = 5 * time.Minute
)

func NewSignalingStore(client *goredis.Client) *SignalingStore {
	return &SignalingStore{client: client}
}

func (s *SignalingStore) CreateCallState(ctx context.Context, state *CallState) error {
	key := signalingCallStateKey + state.CallID
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, data, signalingTTL).Err()
}

func (s *SignalingStore) GetCallState(ctx context.Context, callID string) (*CallState, error) {
	key := signalingCallStateKey + callID
	data, err := s.client.Get(ctx, key).Result()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var state CallState
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// UpdateCallStatus updates just the status field
func (s *SignalingStore) UpdateCallStatus(ctx context.Context, callID, status string) error {
	state, err := s.GetCallState(ctx, callID)
	if err != nil {
		return err
	}
	if state == nil {
		return fmt.Errorf("call not found: %s", callID)
	}
	state.Status = status
	if status == "ONGOING" {
		now := time.Now()
		state.ConnectedAt = &now
	}
	return s.CreateCallState(ctx, state)
}

func (s *SignalingStore) RemoveCallState(ctx context.Context, callID string) error {
	key := signalingCallStateKey + callID
	return s.client.Del(ctx, key).Err()
}

// SendOffer queues an SDP offer for the other party.
func (s *SignalingStore) SendOffer(ctx context.Context, callID, fromID, toID, sdp string) error {
	msg := SignalingMessage{
		Type:      "offer",
		CallID:    callID,
		FromID:    fromID,
		ToID:      toID,
		SDP:       sdp,
		Timestamp: time.Now(),
	}
	return s.storeSignalingMessage(ctx, msg)
}

// SendAnswer queues an SDP answer for the other party.
func (s *SignalingStore) SendAnswer(ctx context.Context, callID, fromID, toID, sdp string) error {
	msg := SignalingMessage{
		Type:      "answer",
		CallID:    callID,
		FromID:    fromID,
		ToID:      toID,
		SDP:       sdp,
		Timestamp: time.Now(),
	}
	return s.storeSignalingMessage(ctx, msg)
}

// SendICECandidate queues an ICE candidate for the other party (trickle ICE).
func (s *SignalingStore) SendICECandidate(ctx context.Context, callID, fromID, toID string, candidate *ICECandidate) error {
	msg := SignalingMessage{
		Type:      "ice_candidate",
		CallID:    callID,
		FromID:    fromID,
		ToID:      toID,
		Candidate: candidate,
		Timestamp: time.Now(),
	}
	return s.storeSignalingMessage(ctx, msg)
}

// DrainSignals pops all pending signaling frames for a participant.
func (s *SignalingStore) DrainSignals(ctx context.Context, callID, userID string) ([]SignalingMessage, error) {
	key := fmt.Sprintf("%s%s:%s", signalingInboxKey, callID, userID)

	pipe := s.client.TxPipeline()
	items := pipe.LRange(ctx, key, 0, -1)
	pipe.Del(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	var messages []SignalingMessage
	for _, item := range items.Val() {
		var msg SignalingMessage
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func (s *SignalingStore) storeSignalingMessage(ctx context.Context, msg SignalingMessage) error {
	key := fmt.Sprintf("%s%s:%s", signalingInboxKey, msg.CallID, msg.ToID)
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	pipe := s.client.Pipeline()
	pipe.RPush(ctx, key, data)
	pipe.Expire(ctx, key, signalingTTL)
	_, err = pipe.Exec(ctx)
	return err
}
