package controller

import (
	"errors"
	"io"
	"lsrw_console/internal/model"
	"lsrw_console/internal/service"
	"lsrw_console/internal/util"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// ReviewController 教师端 LSRW 点评工作台
type ReviewController struct {
	Review *service.ReviewService
	// 通过 multipart 直接上传的录音大小上限
	MaxClipBytes int64
}

func NewReviewController(review *service.ReviewService, maxClipBytes int64) *ReviewController {
	return &ReviewController{Review: review, MaxClipBytes: maxClipBytes}
}

// ReleaseRequest 发布课程请求
// swagger:model ReleaseRequest
type ReleaseRequest struct {
	Module      model.SkillModule  `json:"module" binding:"required"`
	TutorStatus *model.TutorStatus `json:"tutorStatus"`
}

// FeedbackRequest 教师点评请求，录音走录音会话或 multipart 的 audio 字段
// swagger:model FeedbackRequest
type FeedbackRequest struct {
	RemarksText *string  `json:"remarksText" form:"remarksText"`
	Marks       *float64 `json:"marks" form:"marks"`
}

func (c *ReviewController) surface(ctx *gin.Context) (*service.ReviewSurface, bool) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return nil, false
	}
	return c.Review.Surface(user.UserID), true
}

func parseID(ctx *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(ctx.Param(name), 10, 64)
	if err != nil || id == 0 {
		util.BadRequest(ctx, "invalid "+name)
		return 0, false
	}
	return uint(id), true
}

func parseModule(ctx *gin.Context, raw string) (model.SkillModule, bool) {
	module, ok := model.ParseSkillModule(raw)
	if !ok {
		util.HandleError(ctx, util.ErrInvalidModule)
		return "", false
	}
	return module, true
}

// ListMappings godoc
// @Summary 班级课程列表
// @Tags LSRW点评
// @Produce json
// @Security BearerAuth
// @Param batchId path int true "班级ID"
// @Param module query string true "技能模块 listening/speaking/reading/writing"
// @Success 200 {object} util.Response{data=[]model.LessonMapping}
// @Router /api/teacher/review/batches/{batchId}/mappings [get]
func (c *ReviewController) ListMappings(ctx *gin.Context) {
	batchID, ok := parseID(ctx, "batchId")
	if !ok {
		return
	}
	module, ok := parseModule(ctx, ctx.Query("module"))
	if !ok {
		return
	}
	mappings, err := c.Review.Mappings(ctx.Request.Context(), batchID, module)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, mappings)
}

// TabCounts godoc
// @Summary 各技能标签的课程数量
// @Description 仅用于角标展示，部分模块失败时返回其余模块的数量
// @Tags LSRW点评
// @Produce json
// @Security BearerAuth
// @Param batchId path int true "班级ID"
// @Success 200 {object} util.Response
// @Router /api/teacher/review/batches/{batchId}/counts [get]
func (c *ReviewController) TabCounts(ctx *gin.Context) {
	batchID, ok := parseID(ctx, "batchId")
	if !ok {
		return
	}
	counts, err := c.Review.TabCounts(ctx.Request.Context(), batchID)
	if err != nil && len(counts) == 0 {
		util.HandleError(ctx, err)
		return
	}
	resp := gin.H{"counts": counts}
	if err != nil {
		resp["partial"] = true
	}
	util.Success(ctx, resp)
}

// Release godoc
// @Summary 发布课程给学生
// @Description 写作必须选择 read 或 completed，其余模块直接 completed
// @Tags LSRW点评
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "映射ID"
// @Param request body ReleaseRequest true "发布参数"
// @Success 200 {object} util.Response{data=model.LessonMapping}
// @Failure 409 {object} util.Response "已发布"
// @Failure 422 {object} util.Response "状态不合法"
// @Router /api/teacher/review/mappings/{id}/release [post]
func (c *ReviewController) Release(ctx *gin.Context) {
	surface, ok := c.surface(ctx)
	if !ok {
		return
	}
	mappingID, ok := parseID(ctx, "id")
	if !ok {
		return
	}
	var req ReleaseRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	module, ok := parseModule(ctx, string(req.Module))
	if !ok {
		return
	}

	m, err := surface.Release(ctx.Request.Context(), mappingID, module, req.TutorStatus)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, m)
}

// LoadLesson godoc
// @Summary 加载课程的学生提交
// @Tags LSRW点评
// @Produce json
// @Security BearerAuth
// @Param lessonId path int true "课程ID"
// @Param module query string true "技能模块"
// @Success 200 {object} util.Response{data=service.SurfaceView}
// @Failure 409 {object} util.Response "已切换到其他课程"
// @Router /api/teacher/review/lessons/{lessonId}/submissions [get]
func (c *ReviewController) LoadLesson(ctx *gin.Context) {
	surface, ok := c.surface(ctx)
	if !ok {
		return
	}
	lessonID, ok := parseID(ctx, "lessonId")
	if !ok {
		return
	}
	module, ok := parseModule(ctx, ctx.Query("module"))
	if !ok {
		return
	}
	if _, err := surface.LoadSubmissions(ctx.Request.Context(), lessonID, module); err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, surface.View())
}

// View godoc
// @Summary 当前工作台
// @Tags LSRW点评
// @Produce json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=service.SurfaceView}
// @Router /api/teacher/review/surface [get]
func (c *ReviewController) View(ctx *gin.Context) {
	surface, ok := c.surface(ctx)
	if !ok {
		return
	}
	util.Success(ctx, surface.View())
}

// Refresh godoc
// @Summary 重新加载当前课程
// @Tags LSRW点评
// @Produce json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=service.SurfaceView}
// @Router /api/teacher/review/surface/refresh [post]
func (c *ReviewController) Refresh(ctx *gin.Context) {
	surface, ok := c.surface(ctx)
	if !ok {
		return
	}
	if err := surface.Refresh(ctx.Request.Context()); err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, surface.View())
}

// Toggle godoc
// @Summary 展开/收起提交详情
// @Tags LSRW点评
// @Produce json
// @Security BearerAuth
// @Param id path int true "提交ID"
// @Success 200 {object} util.Response
// @Router /api/teacher/review/submissions/{id}/toggle [post]
func (c *ReviewController) Toggle(ctx *gin.Context) {
	surface, ok := c.surface(ctx)
	if !ok {
		return
	}
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}
	expanded, err := surface.Toggle(id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"submissionId": id, "expanded": expanded})
}

// Verify godoc
// @Summary 核验提交，成绩对学生可见
// @Tags LSRW点评
// @Produce json
// @Security BearerAuth
// @Param id path int true "提交ID"
// @Success 200 {object} util.Response{data=service.SurfaceView}
// @Failure 409 {object} util.Response "已核验"
// @Failure 422 {object} util.Response "该模块没有核验"
// @Router /api/teacher/review/submissions/{id}/verify [post]
func (c *ReviewController) Verify(ctx *gin.Context) {
	surface, ok := c.surface(ctx)
	if !ok {
		return
	}
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}
	if _, err := surface.Verify(ctx.Request.Context(), id); err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, surface.View())
}

// SubmitFeedback godoc
// @Summary 提交教师点评
// @Description 文字、分数、语音至少一项；阅读模块忽略分数
// @Tags LSRW点评
// @Accept json,mpfd
// @Produce json
// @Security BearerAuth
// @Param id path int true "提交ID"
// @Param request body FeedbackRequest false "点评内容"
// @Success 200 {object} util.Response{data=model.Feedback}
// @Failure 422 {object} util.Response "点评为空或分数越界"
// @Router /api/teacher/review/submissions/{id}/feedback [post]
func (c *ReviewController) SubmitFeedback(ctx *gin.Context) {
	surface, ok := c.surface(ctx)
	if !ok {
		return
	}
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}

	var req FeedbackRequest
	var clip *service.Clip
	if strings.HasPrefix(ctx.ContentType(), "multipart/") {
		if err := ctx.ShouldBind(&req); err != nil {
			util.BadRequest(ctx, err.Error())
			return
		}
		var err error
		clip, err = c.readClip(ctx)
		if err != nil {
			util.HandleError(ctx, err)
			return
		}
	} else if ctx.Request.ContentLength != 0 {
		if err := ctx.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			util.BadRequest(ctx, err.Error())
			return
		}
	}

	fb, err := surface.SubmitFeedback(ctx.Request.Context(), id, service.FeedbackRequest{
		RemarksText: req.RemarksText,
		Marks:       req.Marks,
		Clip:        clip,
	})
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, fb)
}

// readClip 读取 multipart 中可选的 audio 文件
func (c *ReviewController) readClip(ctx *gin.Context) (*service.Clip, error) {
	file, header, err := ctx.Request.FormFile("audio")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	if c.MaxClipBytes > 0 && header.Size > c.MaxClipBytes {
		return nil, util.ErrInvalidAudio
	}
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}
	contentType, err := util.DetectAudio(data)
	if err != nil {
		return nil, err
	}
	return &service.Clip{Data: data, ContentType: contentType}, nil
}
