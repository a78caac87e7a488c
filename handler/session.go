package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/chaos-io/cutout/composite"
	"github.com/chaos-io/cutout/config"
	"github.com/chaos-io/cutout/model"
	"github.com/chaos-io/cutout/session"
	"github.com/chaos-io/cutout/util"
	nhttp "github.com/chaos-io/cutout/util/http"
)

// multipartOverhead is the room left for boundaries and part headers on top
// of the file size cap.
const multipartOverhead = 64 << 10

type SessionHandler struct {
	cfg    *config.Config
	store  *session.Store
	client nhttp.IClient
}

func NewSessionHandler(cfg *config.Config, store *session.Store, client nhttp.IClient) *SessionHandler {
	return &SessionHandler{
		cfg:    cfg,
		store:  store,
		client: client,
	}
}

// RegisterRoutes mounts the session API on api, normally the /api/v1 group.
func (h *SessionHandler) RegisterRoutes(api gin.IRouter) {
	api.GET("/presets", h.Presets)
	api.POST("/sessions", h.Create)

	s := api.Group("/sessions/:id")
	{
		s.GET("", h.Status)
		s.DELETE("", h.Delete)
		s.POST("/image", h.Upload)
		s.DELETE("/image", h.Discard)
		s.GET("/original", h.Original)
		s.POST("/process", h.Process)
		s.PUT("/background", h.SetBackground)
		s.POST("/background/image", h.UploadBackground)
		s.GET("/preview", h.Preview)
		s.GET("/export", h.Export)
		s.POST("/reset", h.Reset)
	}
}

// Presets 返回预设背景颜色和图片
func (h *SessionHandler) Presets(c *gin.Context) {
	c.JSON(http.StatusOK, model.PresetsResponse{
		Success: true,
		Message: "ok",
		Data: &model.Presets{
			Colors:      composite.PresetColors,
			Backgrounds: composite.PresetBackgrounds,
		},
	})
}

func (h *SessionHandler) Create(c *gin.Context) {
	ctrl := h.store.Create()
	h.respond(c, http.StatusCreated, "session created", ctrl.Snapshot())
}

func (h *SessionHandler) Status(c *gin.Context) {
	ctrl, ok := h.lookup(c)
	if !ok {
		return
	}
	h.respond(c, http.StatusOK, "ok", ctrl.Snapshot())
}

func (h *SessionHandler) Delete(c *gin.Context) {
	if err := h.store.Delete(c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Upload 处理图片上传 (idle -> staged)
func (h *SessionHandler) Upload(c *gin.Context) {
	ctrl, ok := h.lookup(c)
	if !ok {
		return
	}

	name, data, err := h.readFile(c)
	if err != nil {
		fail(c, err)
		return
	}
	if err := ctrl.Upload(name, data); err != nil {
		fail(c, err)
		return
	}
	h.respond(c, http.StatusOK, "image accepted", ctrl.Snapshot())
}

func (h *SessionHandler) Discard(c *gin.Context) {
	ctrl, ok := h.lookup(c)
	if !ok {
		return
	}
	if err := ctrl.Discard(); err != nil {
		fail(c, err)
		return
	}
	h.respond(c, http.StatusOK, "image discarded", ctrl.Snapshot())
}

// Original serves the uploaded file for before/after comparison.
func (h *SessionHandler) Original(c *gin.Context) {
	ctrl, ok := h.lookup(c)
	if !ok {
		return
	}
	img, err := ctrl.Original()
	if err != nil {
		fail(c, err)
		return
	}
	c.Data(http.StatusOK, img.MIMEType, img.Original)
}

// Process submits the staged image. By default it returns 202 at once; with
// wait=true it blocks until removal ends. A client disconnect never cancels
// the removal call.
func (h *SessionHandler) Process(c *gin.Context) {
	ctrl, ok := h.lookup(c)
	if !ok {
		return
	}

	ctx := context.WithoutCancel(c.Request.Context())
	if wait, _ := strconv.ParseBool(c.Query("wait")); wait {
		if err := ctrl.Process(ctx); err != nil {
			fail(c, err)
			return
		}
		h.respond(c, http.StatusOK, "background removed", ctrl.Snapshot())
		return
	}

	if _, err := ctrl.Start(ctx); err != nil {
		fail(c, err)
		return
	}
	h.respond(c, http.StatusAccepted, "processing", ctrl.Snapshot())
}

func (h *SessionHandler) SetBackground(c *gin.Context) {
	ctrl, ok := h.lookup(c)
	if !ok {
		return
	}

	var req model.BackgroundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Success: false,
			Message: "Invalid request",
			Error:   err.Error(),
		})
		return
	}

	s := ctrl.Snapshot()
	if s.Phase != session.PhaseReady {
		fail(c, session.ErrNotReady)
		return
	}

	bg := s.Background
	if req.Mode != "" {
		bg.Mode = composite.Mode(req.Mode)
	}
	if req.Color != "" {
		bg.Color = req.Color
	}
	if req.ImageURL != "" {
		data, err := h.download(c.Request.Context(), req.ImageURL)
		if err != nil {
			fail(c, err)
			return
		}
		bg.Image = data
		if req.Mode == "" {
			bg.Mode = composite.ModeImage
		}
	}

	if err := ctrl.SetBackground(bg); err != nil {
		fail(c, err)
		return
	}
	h.respond(c, http.StatusOK, "background updated", ctrl.Snapshot())
}

// UploadBackground 上传背景图片, switching the background to image mode.
func (h *SessionHandler) UploadBackground(c *gin.Context) {
	ctrl, ok := h.lookup(c)
	if !ok {
		return
	}

	name, data, err := h.readFile(c)
	if err != nil {
		fail(c, err)
		return
	}
	if int64(len(data)) >= h.maxSize() {
		fail(c, fmt.Errorf("%w: %s", session.ErrFileTooLarge, name))
		return
	}
	if _, _, err := util.DecodeImage(data); err != nil {
		fail(c, fmt.Errorf("%w: %w", session.ErrUnsupportedImage, err))
		return
	}

	bg := ctrl.Snapshot().Background
	bg.Mode = composite.ModeImage
	bg.Image = data
	if err := ctrl.SetBackground(bg); err != nil {
		fail(c, err)
		return
	}
	h.respond(c, http.StatusOK, "background updated", ctrl.Snapshot())
}

// Preview 返回合成后的预览图, longest side limited by ?max=.
func (h *SessionHandler) Preview(c *gin.Context) {
	ctrl, ok := h.lookup(c)
	if !ok {
		return
	}

	maxSize := 0
	if v := c.Query("max"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			fail(c, fmt.Errorf("%w: %q", ErrInvalidPreviewSz, v))
			return
		}
		maxSize = n
	}

	data, err := ctrl.Preview(maxSize)
	if err != nil {
		fail(c, err)
		return
	}
	c.Data(http.StatusOK, "image/png", data)
}

// Export 下载合成结果
func (h *SessionHandler) Export(c *gin.Context) {
	ctrl, ok := h.lookup(c)
	if !ok {
		return
	}
	name, data, err := ctrl.Export()
	if err != nil {
		fail(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, "image/png", data)
}

func (h *SessionHandler) Reset(c *gin.Context) {
	ctrl, ok := h.lookup(c)
	if !ok {
		return
	}
	if err := ctrl.Reset(); err != nil {
		fail(c, err)
		return
	}
	h.respond(c, http.StatusOK, "session reset", ctrl.Snapshot())
}

func (h *SessionHandler) lookup(c *gin.Context) (*session.Controller, bool) {
	ctrl, err := h.store.Get(c.Param("id"))
	if err != nil {
		fail(c, err)
		return nil, false
	}
	return ctrl, true
}

func (h *SessionHandler) maxSize() int64 {
	if h.cfg.Upload.MaxSize > 0 {
		return h.cfg.Upload.MaxSize
	}
	return session.MaxFileSize
}

// readFile reads the multipart "image" field. The request body is capped
// before parsing so oversized uploads are refused without being buffered.
func (h *SessionHandler) readFile(c *gin.Context) (string, []byte, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxSize()+multipartOverhead)

	file, err := c.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return "", nil, fmt.Errorf("%w: request over %d bytes", session.ErrFileTooLarge, tooLarge.Limit)
		}
		return "", nil, fmt.Errorf("%w: %w", ErrMissingFile, err)
	}

	f, err := file.Open()
	if err != nil {
		return "", nil, fmt.Errorf("open upload: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	// one byte past the cap is enough to know the file is too large
	data, err := io.ReadAll(io.LimitReader(f, h.maxSize()+1))
	if err != nil {
		return "", nil, fmt.Errorf("read upload: %w", err)
	}

	util.Logger.Debug("file received",
		zap.String("name", file.Filename),
		zap.Int64("size", file.Size))
	return file.Filename, data, nil
}

func (h *SessionHandler) download(ctx context.Context, url string) ([]byte, error) {
	data, err := util.DownloadImage(ctx, h.client, url, h.maxSize(), h.cfg.Background.DownloadTimeout)
	if err != nil {
		util.Logger.Warn("background download failed", zap.String("url", url), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrDownloadFailed, err)
	}
	return data, nil
}

func (h *SessionHandler) respond(c *gin.Context, status int, msg string, s session.Session) {
	c.JSON(status, model.SessionResponse{
		Success: true,
		Message: msg,
		Data:    statusReport(s),
	})
}

func statusReport(s session.Session) *model.SessionStatus {
	out := &model.SessionStatus{
		ID:       s.ID,
		Phase:    string(s.Phase),
		Message:  s.Message,
		Revision: s.Revision,
		Background: model.BackgroundState{
			Mode:     string(s.Background.Mode),
			Color:    s.Background.Color,
			HasImage: len(s.Background.Image) > 0,
		},
	}
	if s.Image == nil {
		return out
	}

	out.Image = &model.ImageInfo{
		ID:        s.Image.ID,
		Name:      s.Image.Name,
		MIMEType:  s.Image.MIMEType,
		Size:      len(s.Image.Original),
		Processed: s.Image.Processed != nil,
	}
	if s.Phase == session.PhaseReady {
		sub := s.Image.Subject
		info := &model.SubjectInfo{
			Width:       sub.Width,
			Height:      sub.Height,
			Transparent: sub.Transparent,
		}
		if !sub.Bounds.Empty() {
			info.BoundingBox = &model.BBox{
				X:      sub.Bounds.Min.X,
				Y:      sub.Bounds.Min.Y,
				Width:  sub.Bounds.Dx(),
				Height: sub.Bounds.Dy(),
			}
		}
		out.Image.Subject = info
	}
	return out
}
