package service

import (
	"context"
	"lsrw_console/internal/model"
	"lsrw_console/internal/repository"
	"lsrw_console/internal/util"
	"time"
)

// LocalBackend 直连 MySQL 的协作方实现
type LocalBackend struct {
	Content     *repository.ContentRepository
	Submissions *repository.SubmissionRepository
}

func NewLocalBackend(content *repository.ContentRepository, submissions *repository.SubmissionRepository) *LocalBackend {
	return &LocalBackend{Content: content, Submissions: submissions}
}

func (b *LocalBackend) FetchMappings(ctx context.Context, batchID uint, module model.SkillModule) ([]model.LessonMapping, error) {
	return b.Content.FindMappings(ctx, batchID, module)
}

func (b *LocalBackend) CountMappings(ctx context.Context, batchID uint, module model.SkillModule) (int64, error) {
	return b.Content.CountMappings(ctx, batchID, module)
}

func (b *LocalBackend) ReleaseMapping(ctx context.Context, mappingID uint, module model.SkillModule, status model.TutorStatus) (*model.LessonMapping, error) {
	return b.Content.UpdateMappingLocked(ctx, mappingID, module, func(m *model.LessonMapping) error {
		return ApplyRelease(m, status, time.Now())
	})
}

func (b *LocalBackend) FetchListeningSubmissions(ctx context.Context, lessonID uint) ([]model.Submission, error) {
	return b.Submissions.FindByLesson(ctx, lessonID, model.Listening)
}

func (b *LocalBackend) FetchSpeakingSubmissions(ctx context.Context, lessonID uint) ([]model.Submission, error) {
	return b.Submissions.FindByLesson(ctx, lessonID, model.Speaking)
}

func (b *LocalBackend) FetchReadingSubmissions(ctx context.Context, lessonID uint) ([]model.Submission, error) {
	return b.Submissions.FindByLesson(ctx, lessonID, model.Reading)
}

func (b *LocalBackend) FetchWritingSubmissions(ctx context.Context, lessonID uint) ([]model.Submission, error) {
	return b.Submissions.FindByLesson(ctx, lessonID, model.Writing)
}

func (b *LocalBackend) VerifySubmission(ctx context.Context, submissionID uint) (*model.Submission, error) {
	return b.Submissions.UpdateLocked(ctx, submissionID, func(s *model.Submission) error {
		if s.Module == model.Reading {
			return util.ErrNotFound
		}
		return ApplyVerify(s, time.Now())
	})
}

func (b *LocalBackend) VerifyReadingSubmission(ctx context.Context, submissionID uint) (*model.Submission, error) {
	return b.Submissions.UpdateLocked(ctx, submissionID, func(s *model.Submission) error {
		if s.Module != model.Reading {
			return util.ErrNotFound
		}
		return ApplyVerify(s, time.Now())
	})
}

func (b *LocalBackend) SaveFeedback(ctx context.Context, in FeedbackInput) (*model.Feedback, error) {
	s, err := b.Submissions.FindByID(ctx, in.SubmissionID)
	if err != nil {
		return nil, err
	}
	fb, err := BuildFeedback(s, s.Lesson, in)
	if err != nil {
		return nil, err
	}
	if err := b.Submissions.UpsertFeedback(ctx, fb); err != nil {
		return nil, err
	}
	return b.Submissions.FindFeedback(ctx, s.ID)
}
