package handler

import (
	"errors"
	"net/http"

	"routechat/internal/transport/httpdto"
	routechat_errors "routechat/pkg/errors"

	"github.com/gin-gonic/gin"
)

// respondError maps domain errors onto HTTP statuses so handlers never
// branch on error types themselves.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, routechat_errors.ErrNotFound):
		c.JSON(http.StatusNotFound, httpdto.NewErrorResponse("not found", "NOT_FOUND"))
	case errors.Is(err, routechat_errors.ErrForbidden):
		c.JSON(http.StatusForbidden, httpdto.NewErrorResponse("forbidden", "FORBIDDEN"))
	case errors.Is(err, routechat_errors.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
	case errors.Is(err, routechat_errors.ErrInvalidTransition):
		c.JSON(http.StatusConflict, httpdto.NewErrorResponse("invalid transition", "INVALID_TRANSITION"))
	case errors.Is(err, routechat_errors.ErrCallInProgress):
		c.JSON(http.StatusConflict, httpdto.NewErrorResponse("call already in progress", "CALL_IN_PROGRESS"))
	case errors.Is(err, routechat_errors.ErrAlreadyExists):
		c.JSON(http.StatusConflict, httpdto.NewErrorResponse("already exists", "ALREADY_EXISTS"))
	case errors.Is(err, routechat_errors.ErrFileTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, httpdto.NewErrorResponse("file too large", "FILE_TOO_LARGE"))
	case errors.Is(err, routechat_errors.ErrUploadFailed):
		c.JSON(http.StatusBadGateway, httpdto.NewErrorResponse("upload failed", "UPLOAD_FAILED"))
	case errors.Is(err, routechat_errors.ErrEmptyMessage):
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("message is empty", "EMPTY_MESSAGE"))
	case errors.Is(err, routechat_errors.ErrInvalidParticipantSet):
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid participant set", "INVALID_PARTICIPANTS"))
	case errors.Is(err, routechat_errors.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
	default:
		c.JSON(http.StatusInternalServerError, httpdto.NewErrorResponse("internal error", "INTERNAL"))
	}
}
