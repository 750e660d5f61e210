package service

import (
	"context"
	"errors"
	"lsrw_console/internal/model"
	"lsrw_console/internal/util"
	"lsrw_console/pkg/logger"
	"lsrw_console/pkg/monitoring"
	"math"
	"strings"

	"go.uber.org/zap"
)

// ClipStore 语音点评片段的持久化
type ClipStore interface {
	SaveClip(ctx context.Context, submissionID uint, clip *Clip) (string, error)
}

// FeedbackRequest 老师提交的点评内容，三项至少有一项
type FeedbackRequest struct {
	RemarksText *string
	Marks       *float64
	// Clip 为空时使用录音会话里已停止的片段
	Clip *Clip
}

type FeedbackService struct {
	Modules    ModuleTable
	Recordings *RecordingRegistry
	Clips      ClipStore
	// 探测录音时长，失败不影响保存
	ProbeDuration func(data []byte, ext string) (float64, error)
}

func NewFeedbackService(modules ModuleTable, recordings *RecordingRegistry, clips ClipStore) *FeedbackService {
	return &FeedbackService{
		Modules:    modules,
		Recordings: recordings,
		Clips:      clips,
		ProbeDuration: func(data []byte, ext string) (float64, error) {
			info, err := util.ProbeAudioBytes(data, ext)
			if err != nil {
				return 0, err
			}
			return info.Duration, nil
		},
	}
}

// Submit 校验并保存点评，成功后销毁该提交的录音会话
// 所有本地校验都在调用协作方之前完成
func (s *FeedbackService) Submit(ctx context.Context, sub *model.Submission, module model.SkillModule, req FeedbackRequest) (*model.Feedback, error) {
	fb, err := s.submit(ctx, sub, module, req)
	monitoring.ObserveAction("feedback", string(module), err)
	return fb, err
}

func (s *FeedbackService) submit(ctx context.Context, sub *model.Submission, module model.SkillModule, req FeedbackRequest) (*model.Feedback, error) {
	ops, err := s.Modules.Lookup(module)
	if err != nil {
		return nil, err
	}

	marks := req.Marks
	if !ops.MarksEditable {
		// 阅读的自动判分为准，忽略老师填写的分数
		marks = nil
	}

	var remarks *string
	if req.RemarksText != nil && strings.TrimSpace(*req.RemarksText) != "" {
		remarks = req.RemarksText
	}

	clip := req.Clip
	if clip.Empty() && s.Recordings != nil {
		clip, err = s.Recordings.TakeClip(sub.ID)
		if err != nil {
			return nil, err
		}
	}

	if remarks == nil && marks == nil && clip.Empty() {
		return nil, util.ErrEmptyFeedback
	}
	if marks != nil {
		if err := checkMarks(*marks, submissionMax(sub)); err != nil {
			return nil, err
		}
	}
	if !sub.HasPrimaryPayload(module) {
		return nil, util.ErrMissingSubmissionMedia
	}

	in := FeedbackInput{
		SubmissionID: sub.ID,
		RemarksText:  remarks,
		Marks:        marks,
	}

	if !clip.Empty() {
		url, duration, err := s.storeClip(ctx, sub.ID, clip)
		if err != nil {
			return nil, err
		}
		in.AudioURL = &url
		in.AudioDurationSeconds = duration
	}

	fb, err := ops.AddFeedback(ctx, in)
	if err != nil {
		return nil, err
	}

	if s.Recordings != nil {
		s.Recordings.Discard(sub.ID)
	}
	logger.Log.Info("feedback saved",
		zap.Uint("submissionId", sub.ID),
		zap.String("module", string(module)),
		zap.Bool("hasAudio", in.AudioURL != nil))
	return fb, nil
}

func (s *FeedbackService) storeClip(ctx context.Context, submissionID uint, clip *Clip) (string, float64, error) {
	contentType, err := util.DetectAudio(clip.Data)
	if err != nil {
		return "", 0, err
	}
	stored := &Clip{Data: clip.Data, ContentType: contentType}
	if clip.ContentType != "" && clip.ContentType != util.MimeOctetStream {
		stored.ContentType = clip.ContentType
	}

	if s.Clips == nil {
		return "", 0, errors.New("no clip storage configured")
	}
	url, err := s.Clips.SaveClip(ctx, submissionID, stored)
	if err != nil {
		return "", 0, err
	}

	var duration float64
	if s.ProbeDuration != nil {
		d, err := s.ProbeDuration(stored.Data, util.AudioExtension(stored.ContentType))
		if err != nil {
			logger.Log.Debug("probe clip duration failed", zap.Uint("submissionId", submissionID), zap.Error(err))
		} else {
			duration = d
		}
	}
	return url, duration, nil
}

// submissionMax 提交记录上的满分，缺失时退回课程配置
func submissionMax(sub *model.Submission) float64 {
	if sub.MaxScore > 0 {
		return sub.MaxScore
	}
	if sub.Lesson != nil {
		return sub.Lesson.MaxScore
	}
	return 0
}

// checkMarks 分数必须在 [0, max]；未配置满分时只检查下限
func checkMarks(marks, max float64) error {
	if math.IsNaN(marks) || math.IsInf(marks, 0) || marks < 0 {
		return util.ErrMarksOutOfRange
	}
	if max > 0 && marks > max {
		return util.ErrMarksOutOfRange
	}
	return nil
}
