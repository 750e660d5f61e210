package controller

import (
	"io"
	"lsrw_console/internal/service"
	"lsrw_console/internal/util"
	"net/http"

	"github.com/gin-gonic/gin"
)

// RecordingPreviewBase 录音试听地址前缀，与路由保持一致
const RecordingPreviewBase = "/api/teacher/review/recordings"

// RecordingController 语音点评的录音会话
type RecordingController struct {
	Review       *service.ReviewService
	MaxChunkSize int64
}

func NewRecordingController(review *service.ReviewService, maxChunkSize int64) *RecordingController {
	return &RecordingController{Review: review, MaxChunkSize: maxChunkSize}
}

func (c *RecordingController) surface(ctx *gin.Context) (*service.ReviewSurface, bool) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return nil, false
	}
	return c.Review.Surface(user.UserID), true
}

// Start godoc
// @Summary 开始录音
// @Description 麦克风不可用时返回 424，控制台据此隐藏语音点评
// @Tags LSRW录音
// @Produce json
// @Security BearerAuth
// @Param id path int true "提交ID"
// @Success 200 {object} util.Response{data=service.SessionSnapshot}
// @Failure 409 {object} util.Response "已在录音"
// @Failure 424 {object} util.Response "麦克风不可用"
// @Router /api/teacher/review/recordings/{id}/start [post]
func (c *RecordingController) Start(ctx *gin.Context) {
	surface, ok := c.surface(ctx)
	if !ok {
		return
	}
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}
	snap, err := surface.StartRecording(ctx.Request.Context(), id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, snap)
}

// AppendChunk godoc
// @Summary 上传录音分片
// @Tags LSRW录音
// @Accept octet-stream
// @Produce json
// @Security BearerAuth
// @Param id path int true "提交ID"
// @Success 200 {object} util.Response
// @Router /api/teacher/review/recordings/{id}/chunks [post]
func (c *RecordingController) AppendChunk(ctx *gin.Context) {
	surface, ok := c.surface(ctx)
	if !ok {
		return
	}
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}

	body := ctx.Request.Body
	if c.MaxChunkSize > 0 {
		body = http.MaxBytesReader(ctx.Writer, body, c.MaxChunkSize)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		util.Error(ctx, http.StatusRequestEntityTooLarge, err.Error())
		return
	}
	if len(data) == 0 {
		util.BadRequest(ctx, "empty chunk")
		return
	}

	if err := surface.AppendChunk(id, data); err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"submissionId": id, "bytes": len(data)})
}

// Stop godoc
// @Summary 停止录音
// @Tags LSRW录音
// @Produce json
// @Security BearerAuth
// @Param id path int true "提交ID"
// @Success 200 {object} util.Response{data=service.SessionSnapshot}
// @Router /api/teacher/review/recordings/{id}/stop [post]
func (c *RecordingController) Stop(ctx *gin.Context) {
	surface, ok := c.surface(ctx)
	if !ok {
		return
	}
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}
	snap, err := surface.StopRecording(id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, snap)
}

// Session godoc
// @Summary 录音会话状态
// @Tags LSRW录音
// @Produce json
// @Security BearerAuth
// @Param id path int true "提交ID"
// @Success 200 {object} util.Response{data=service.SessionSnapshot}
// @Router /api/teacher/review/recordings/{id} [get]
func (c *RecordingController) Session(ctx *gin.Context) {
	surface, ok := c.surface(ctx)
	if !ok {
		return
	}
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}
	snap, err := surface.Recording(id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, snap)
}

// Discard godoc
// @Summary 丢弃录音
// @Tags LSRW录音
// @Produce json
// @Security BearerAuth
// @Param id path int true "提交ID"
// @Success 200 {object} util.Response
// @Router /api/teacher/review/recordings/{id} [delete]
func (c *RecordingController) Discard(ctx *gin.Context) {
	surface, ok := c.surface(ctx)
	if !ok {
		return
	}
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}
	if err := surface.DiscardRecording(id); err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"submissionId": id})
}

// Preview godoc
// @Summary 试听已录好的片段
// @Tags LSRW录音
// @Produce octet-stream
// @Security BearerAuth
// @Param id path int true "提交ID"
// @Success 200 {file} binary
// @Router /api/teacher/review/recordings/{id}/preview [get]
func (c *RecordingController) Preview(ctx *gin.Context) {
	surface, ok := c.surface(ctx)
	if !ok {
		return
	}
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}
	clip, err := surface.PreviewClip(id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	ctx.Header("Cache-Control", "no-store")
	ctx.Data(http.StatusOK, clip.ContentType, clip.Data)
}
