package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/san-kum/squat-coach-cv/server/models"
	"github.com/san-kum/squat-coach-cv/server/processor"
	"github.com/san-kum/squat-coach-cv/server/web"
	"go.uber.org/zap"
)

const (
	msgNoImage         = "No image received"
	msgProcessingError = "Error processing frame"
	msgBusy            = "Server busy, try again"
)

type UploadHandler struct {
	processor *processor.FrameProcessor
	logger    *zap.Logger
}

func NewUploadHandler(processor *processor.FrameProcessor, logger *zap.Logger) *UploadHandler {
	return &UploadHandler{
		processor: processor,
		logger:    logger,
	}
}

// Index serves the webcam viewer page.
func (h *UploadHandler) Index(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", web.IndexHTML)
}

// UploadFrame accepts {"image": "<data-url>"}, runs it through the pipeline
// and replies with the hand flag and squat feedback.
func (h *UploadHandler) UploadFrame(c *gin.Context) {
	var request models.FrameUploadRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		h.logger.Warn("Invalid upload body", zap.Error(err), zap.String("client_ip", c.ClientIP()))

		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			c.String(http.StatusRequestEntityTooLarge, "Request too large")
			return
		}
		c.String(http.StatusBadRequest, msgNoImage)
		return
	}

	result, err := h.processor.ProcessDataURL(c.Request.Context(), request.Image, c.ClientIP())
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *UploadHandler) writeError(c *gin.Context, err error) {
	status, message := statusForError(err)

	if status >= http.StatusInternalServerError {
		h.logger.Error("Frame upload failed",
			zap.Error(err),
			zap.String("kind", processor.KindOf(err).String()),
			zap.String("client_ip", c.ClientIP()))
	} else {
		h.logger.Warn("Frame upload rejected",
			zap.Error(err),
			zap.String("client_ip", c.ClientIP()))
	}

	c.String(status, message)
}

func statusForError(err error) (int, string) {
	switch processor.KindOf(err) {
	case processor.KindMissingInput:
		return http.StatusBadRequest, msgNoImage
	case processor.KindOverloaded:
		return http.StatusServiceUnavailable, msgBusy
	}

	return http.StatusInternalServerError, msgProcessingError
}
