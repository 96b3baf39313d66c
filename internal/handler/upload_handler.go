package handler

import (
	"net/http"

	"routechat/internal/middleware"
	"routechat/internal/services"
	"routechat/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
)

type UploadHandler struct {
	uploads *services.UploadService
}

func NewUploadHandler(uploads *services.UploadService) *UploadHandler {
	return &UploadHandler{uploads: uploads}
}

// Upload stores a single file and returns its attachment descriptor for a
// later message append.
func (h *UploadHandler) Upload(c *gin.Context) {
	if _, ok := middleware.UserIDFrom(c); !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("file part is required", "INVALID_REQUEST"))
		return
	}
	file, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("unreadable file part", "INVALID_REQUEST"))
		return
	}
	defer file.Close()

	attachment, err := h.uploads.Upload(c.Request.Context(), services.UploadInput{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, httpdto.NewSuccessResponse(attachment))
}
