package repository

import (
	"context"
	"lsrw_console/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SubmissionRepository 学生提交记录与教师点评
type SubmissionRepository struct {
	DB *gorm.DB
}

func NewSubmissionRepository(db *gorm.DB) *SubmissionRepository {
	return &SubmissionRepository{DB: db}
}

func (r *SubmissionRepository) Create(ctx context.Context, s *model.Submission) error {
	return r.DB.WithContext(ctx).Create(s).Error
}

func (r *SubmissionRepository) FindByLesson(ctx context.Context, lessonID uint, module model.SkillModule) ([]model.Submission, error) {
	var submissions []model.Submission
	err := r.DB.WithContext(ctx).
		Preload("Lesson").
		Preload("Feedback").
		Where("lesson_id = ? AND module = ?", lessonID, module).
		Order("id ASC").
		Find(&submissions).Error
	return submissions, err
}

func (r *SubmissionRepository) FindByID(ctx context.Context, id uint) (*model.Submission, error) {
	var s model.Submission
	err := r.DB.WithContext(ctx).
		Preload("Lesson").
		Preload("Feedback").
		First(&s, id).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

// UpdateLocked 行锁内修改提交记录的核验状态
func (r *SubmissionRepository) UpdateLocked(ctx context.Context, id uint, apply func(*model.Submission) error) (*model.Submission, error) {
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var s model.Submission
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&s, id).Error
		if err != nil {
			return notFound(err)
		}
		if err := apply(&s); err != nil {
			return err
		}
		return tx.Model(&s).
			Select("verified", "verified_at").
			Updates(&s).Error
	})
	if err != nil {
		return nil, err
	}
	return r.FindByID(ctx, id)
}

// UpsertFeedback 每个提交只有一条点评，重复保存时整体覆盖
func (r *SubmissionRepository) UpsertFeedback(ctx context.Context, fb *model.Feedback) error {
	return r.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "submission_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"remarks_text", "marks", "audio_url", "audio_duration_seconds", "updated_at",
			}),
		}).
		Create(fb).Error
}

func (r *SubmissionRepository) FindFeedback(ctx context.Context, submissionID uint) (*model.Feedback, error) {
	var fb model.Feedback
	if err := r.DB.WithContext(ctx).Where("submission_id = ?", submissionID).First(&fb).Error; err != nil {
		return nil, notFound(err)
	}
	return &fb, nil
}
