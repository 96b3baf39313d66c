package handler

import (
	"net/http"
	"strconv"

	"routechat/internal/middleware"
	"routechat/internal/redis"
	"routechat/internal/services"
	"routechat/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type CallHandler struct {
	calls *services.CallService
}

func NewCallHandler(calls *services.CallService) *CallHandler {
	return &CallHandler{calls: calls}
}

func (h *CallHandler) Initiate(c *gin.Context) {
	callerID, ok := middleware.UserIDFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}

	var req httpdto.InitiateCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}

	callResult, err := h.calls.Initiate(c.Request.Context(), callerID, req.ReceiverID, req.Type)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, httpdto.NewSuccessResponse(callResult))
}

func (h *CallHandler) Answer(c *gin.Context) {
	callID, userID, ok := h.callAndUser(c)
	if !ok {
		return
	}
	callResult, err := h.calls.Answer(c.Request.Context(), callID, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(callResult))
}

func (h *CallHandler) Reject(c *gin.Context) {
	callID, userID, ok := h.callAndUser(c)
	if !ok {
		return
	}
	if err := h.calls.Reject(c.Request.Context(), callID, userID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"rejected": true}))
}

func (h *CallHandler) End(c *gin.Context) {
	callID, userID, ok := h.callAndUser(c)
	if !ok {
		return
	}
	if err := h.calls.End(c.Request.Context(), callID, userID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"ended": true}))
}

func (h *CallHandler) Mute(c *gin.Context) {
	callID, userID, ok := h.callAndUser(c)
	if !ok {
		return
	}
	var req httpdto.MuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}
	if err := h.calls.SetMute(c.Request.Context(), callID, userID, req.AudioMuted, req.VideoMuted); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"muted": true}))
}

func (h *CallHandler) Offer(c *gin.Context) {
	callID, userID, ok := h.callAndUser(c)
	if !ok {
		return
	}
	var req httpdto.SDPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}
	if err := h.calls.SendOffer(c.Request.Context(), callID, userID, req.SDP); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"relayed": true}))
}

func (h *CallHandler) AnswerSDP(c *gin.Context) {
	callID, userID, ok := h.callAndUser(c)
	if !ok {
		return
	}
	var req httpdto.SDPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}
	if err := h.calls.SendAnswer(c.Request.Context(), callID, userID, req.SDP); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"relayed": true}))
}

func (h *CallHandler) ICECandidate(c *gin.Context) {
	callID, userID, ok := h.callAndUser(c)
	if !ok {
		return
	}
	var req httpdto.ICECandidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}
	candidate := &redis.ICECandidate{
		Candidate:     req.Candidate,
		SDPMid:        req.SDPMid,
		SDPMLineIndex: req.SDPMLineIndex,
	}
	if err := h.calls.SendICECandidate(c.Request.Context(), callID, userID, candidate); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"relayed": true}))
}

// DrainSignals pops the signaling frames queued for the caller.
func (h *CallHandler) DrainSignals(c *gin.Context) {
	callID, userID, ok := h.callAndUser(c)
	if !ok {
		return
	}
	signals, err := h.calls.DrainSignals(c.Request.Context(), callID, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(signals))
}

func (h *CallHandler) List(c *gin.Context) {
	userID, ok := middleware.UserIDFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}

	page, _ := strconv.Atoi(c.Query("page"))
	limit, _ := strconv.Atoi(c.Query("limit"))
	items, total, err := h.calls.ListForUser(c.Request.Context(), userID, page, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"calls": items, "total": total}))
}

func (h *CallHandler) callAndUser(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	callID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid call id", "INVALID_REQUEST"))
		return uuid.Nil, uuid.Nil, false
	}
	userID, ok := middleware.UserIDFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return uuid.Nil, uuid.Nil, false
	}
	return callID, userID, true
}
