package service

import (
	"context"
	"lsrw_console/internal/model"
	"lsrw_console/internal/util"
)

// FeedbackInput 写入提交记录的教师点评
type FeedbackInput struct {
	SubmissionID         uint     `json:"submissionId"`
	RemarksText          *string  `json:"remarksText"`
	Marks                *float64 `json:"marks"`
	AudioURL             *string  `json:"audioUrl"`
	AudioDurationSeconds float64  `json:"audioDurationSeconds,omitempty"`
}

// Backend 内容登记与提交记录协作方
// 本地数据库、远端接口、内存三种实现的行为必须一致
type Backend interface {
	FetchMappings(ctx context.Context, batchID uint, module model.SkillModule) ([]model.LessonMapping, error)
	CountMappings(ctx context.Context, batchID uint, module model.SkillModule) (int64, error)
	ReleaseMapping(ctx context.Context, mappingID uint, module model.SkillModule, status model.TutorStatus) (*model.LessonMapping, error)

	FetchListeningSubmissions(ctx context.Context, lessonID uint) ([]model.Submission, error)
	FetchSpeakingSubmissions(ctx context.Context, lessonID uint) ([]model.Submission, error)
	FetchReadingSubmissions(ctx context.Context, lessonID uint) ([]model.Submission, error)
	FetchWritingSubmissions(ctx context.Context, lessonID uint) ([]model.Submission, error)

	VerifySubmission(ctx context.Context, submissionID uint) (*model.Submission, error)
	VerifyReadingSubmission(ctx context.Context, submissionID uint) (*model.Submission, error)

	SaveFeedback(ctx context.Context, in FeedbackInput) (*model.Feedback, error)
}

// ModuleOps 单个技能模块的操作集合
// Verify 为 nil 表示该模块没有核验环节（口语、写作以点评送达为完成）
type ModuleOps struct {
	Module        model.SkillModule
	Fetch         func(ctx context.Context, lessonID uint) ([]model.Submission, error)
	Verify        func(ctx context.Context, submissionID uint) (*model.Submission, error)
	AddFeedback   func(ctx context.Context, in FeedbackInput) (*model.Feedback, error)
	MarksEditable bool
	AutoGraded    bool
}

type ModuleTable map[model.SkillModule]ModuleOps

func NewModuleTable(b Backend) ModuleTable {
	return ModuleTable{
		model.Listening: {
			Module:        model.Listening,
			Fetch:         b.FetchListeningSubmissions,
			Verify:        b.VerifySubmission,
			AddFeedback:   b.SaveFeedback,
			MarksEditable: true,
			AutoGraded:    true,
		},
		model.Speaking: {
			Module:        model.Speaking,
			Fetch:         b.FetchSpeakingSubmissions,
			AddFeedback:   b.SaveFeedback,
			MarksEditable: true,
		},
		model.Reading: {
			Module: model.Reading,
			Fetch:  b.FetchReadingSubmissions,
			Verify: b.VerifyReadingSubmission,
			// 阅读以自动判分为准，点评只带文字和语音
			AddFeedback: func(ctx context.Context, in FeedbackInput) (*model.Feedback, error) {
				in.Marks = nil
				return b.SaveFeedback(ctx, in)
			},
			AutoGraded: true,
		},
		model.Writing: {
			Module:        model.Writing,
			Fetch:         b.FetchWritingSubmissions,
			AddFeedback:   b.SaveFeedback,
			MarksEditable: true,
		},
	}
}

func (t ModuleTable) Lookup(module model.SkillModule) (ModuleOps, error) {
	ops, ok := t[module]
	if !ok {
		return ModuleOps{}, util.ErrInvalidModule
	}
	return ops, nil
}
