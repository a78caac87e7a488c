package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/chaos-io/cutout/composite"
	"github.com/chaos-io/cutout/model"
	"github.com/chaos-io/cutout/rembg"
	"github.com/chaos-io/cutout/session"
	"github.com/chaos-io/cutout/util"
	nhttp "github.com/chaos-io/cutout/util/http"
)

var (
	ErrMissingFile      = errors.New("missing image file")
	ErrDownloadFailed   = errors.New("background download failed")
	ErrInvalidPreviewSz = errors.New("invalid preview size")
)

// statusOf maps a domain error to an HTTP status and a user-facing message.
func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return http.StatusNotFound, "Session not found"
	case errors.Is(err, session.ErrNoImage):
		return http.StatusNotFound, "No image uploaded"
	case errors.Is(err, session.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge, session.MsgFileTooLarge
	case errors.Is(err, session.ErrUnsupportedImage):
		return http.StatusUnsupportedMediaType, session.MsgUnsupportedImage
	case errors.Is(err, session.ErrBusy):
		return http.StatusConflict, "Background removal is in progress"
	case errors.Is(err, session.ErrNotReady):
		return http.StatusConflict, "Remove the background first"
	case errors.Is(err, session.ErrStaleResult):
		return http.StatusConflict, "The session was reset during processing"
	case errors.Is(err, session.ErrInvalidTransition):
		return http.StatusConflict, "Operation not allowed right now"
	case errors.Is(err, composite.ErrInvalidColor), errors.Is(err, composite.ErrInvalidMode),
		errors.Is(err, ErrMissingFile), errors.Is(err, ErrInvalidPreviewSz):
		return http.StatusBadRequest, "Invalid request"
	case errors.Is(err, nhttp.ErrUnsupportedScheme), errors.Is(err, nhttp.ErrForbiddenAddress):
		return http.StatusBadRequest, "Background URL is not allowed"
	case errors.Is(err, ErrDownloadFailed):
		return http.StatusBadGateway, "Could not load the background image"
	case errors.Is(err, rembg.ErrConfiguration):
		return http.StatusServiceUnavailable, session.MsgNotConfigured
	case errors.Is(err, rembg.ErrTransport), errors.Is(err, rembg.ErrEmptyResponse),
		errors.Is(err, rembg.ErrNoImageInResponse), errors.Is(err, rembg.ErrInvalidInput):
		return http.StatusBadGateway, session.MsgRemovalFailed
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

func fail(c *gin.Context, err error) {
	status, msg := statusOf(err)
	if status >= http.StatusInternalServerError {
		util.Logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	_ = c.Error(err)
	c.JSON(status, model.ErrorResponse{
		Success: false,
		Message: msg,
		Error:   err.Error(),
	})
}
