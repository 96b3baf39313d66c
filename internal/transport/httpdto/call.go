package httpdto

import "github.com/google/uuid"

type InitiateCallRequest struct {
	ReceiverID uuid.UUID `json:"receiver_id" binding:"required"`
	Type       string    `json:"type" binding:"required"`
}

type MuteRequest struct {
	AudioMuted bool `json:"audio_muted"`
	VideoMuted bool `json:"video_muted"`
}

type SDPRequest struct {
	SDP string `json:"sdp" binding:"required"`
}

type ICECandidateRequest struct {
	Candidate     string `json:"candidate" binding:"required"`
	SDPMid        string `json:"sdp_mid"`
	SDPMLineIndex int    `json:"sdp_mline_index"`
}
