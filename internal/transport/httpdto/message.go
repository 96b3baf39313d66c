package httpdto

type AdvanceMessageStatusRequest struct {
	Status string `json:"status" binding:"required"`
}
