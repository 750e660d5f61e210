package repository

import (
	"context"
	"errors"
	"lsrw_console/internal/model"
	"lsrw_console/internal/util"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ContentRepository 课程与班级映射
type ContentRepository struct {
	DB *gorm.DB
}

func NewContentRepository(db *gorm.DB) *ContentRepository {
	return &ContentRepository{DB: db}
}

func (r *ContentRepository) CreateLesson(ctx context.Context, lesson *model.Lesson) error {
	return r.DB.WithContext(ctx).Create(lesson).Error
}

func (r *ContentRepository) CreateMapping(ctx context.Context, mapping *model.LessonMapping) error {
	return r.DB.WithContext(ctx).Create(mapping).Error
}

func (r *ContentRepository) FindMappings(ctx context.Context, batchID uint, module model.SkillModule) ([]model.LessonMapping, error) {
	var mappings []model.LessonMapping
	err := r.DB.WithContext(ctx).
		Preload("Lesson").
		Where("batch_id = ? AND module = ?", batchID, module).
		Order("id ASC").
		Find(&mappings).Error
	return mappings, err
}

func (r *ContentRepository) CountMappings(ctx context.Context, batchID uint, module model.SkillModule) (int64, error) {
	var count int64
	err := r.DB.WithContext(ctx).
		Model(&model.LessonMapping{}).
		Where("batch_id = ? AND module = ?", batchID, module).
		Count(&count).Error
	return count, err
}

// UpdateMappingLocked 行锁内读取并修改映射，保证并发发布只有一个成功
func (r *ContentRepository) UpdateMappingLocked(ctx context.Context, id uint, module model.SkillModule, apply func(*model.LessonMapping) error) (*model.LessonMapping, error) {
	var mapping model.LessonMapping
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND module = ?", id, module).
			First(&mapping).Error
		if err != nil {
			return notFound(err)
		}
		if err := apply(&mapping); err != nil {
			return err
		}
		return tx.Model(&mapping).
			Select("tutor_status", "released_at").
			Updates(&mapping).Error
	})
	if err != nil {
		return nil, err
	}

	if err := r.DB.WithContext(ctx).Preload("Lesson").First(&mapping, mapping.ID).Error; err != nil {
		return nil, err
	}
	return &mapping, nil
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return util.ErrNotFound
	}
	return err
}
