package device

import (
	"errors"
	"strconv"

	"TrackHub/internal/data"
	"TrackHub/pkg/middleware"
	"TrackHub/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handler serves the pull-side queries subscribers use for state that is not
// pushed, battery level in particular.
type Handler struct {
	repo    *Repo
	samples *data.Repo
}

func NewHandler(repo *Repo, samples *data.Repo) *Handler {
	return &Handler{repo: repo, samples: samples}
}

func (h *Handler) List(c *gin.Context) {
	devices, err := h.repo.List()
	if err != nil {
		zap.L().Error("failed to list devices", zap.Error(err))
		response.ReplyError500(c, "Failed to list devices")
		return
	}
	response.ReplySuccessWithData(c, "ok", devices)
}

func (h *Handler) Get(c *gin.Context) {
	d, err := h.repo.FindByIMEI(c.Param("imei"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.ReplyNotFound(c, "Device not found")
			return
		}
		zap.L().Error("failed to get device", zap.Error(err))
		response.ReplyError500(c, "Failed to get device")
		return
	}
	response.ReplySuccessWithData(c, "ok", d)
}

func (h *Handler) Data(c *gin.Context) {
	d, err := h.repo.FindByIMEI(c.Param("imei"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.ReplyNotFound(c, "Device not found")
			return
		}
		zap.L().Error("failed to get device", zap.Error(err))
		response.ReplyError500(c, "Failed to get device")
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	samples, err := h.samples.ListByDevice(d.ID, c.Query("kind"), limit)
	if err != nil {
		zap.L().Error("failed to list data samples", zap.Error(err))
		response.ReplyError500(c, "Failed to list data samples")
		return
	}
	if uid, ok := middleware.UserID(c); ok {
		zap.L().Debug("device data queried",
			zap.Int64("user_id", uid),
			zap.String("imei", d.IMEI),
			zap.Int("samples", len(samples)))
	}
	response.ReplySuccessWithData(c, "ok", samples)
}
