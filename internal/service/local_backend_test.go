package service

import (
	"context"
	"testing"

	"lsrw_console/internal/model"
	"lsrw_console/internal/repository"
	"lsrw_console/internal/util"
	"lsrw_console/pkg/database"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// newLocalBackend 内存 SQLite 上跑同一套仓储，单连接保证所有查询看到同一个库
func newLocalBackend(t *testing.T) *LocalBackend {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return NewLocalBackend(repository.NewContentRepository(db), repository.NewSubmissionRepository(db))
}

func addLocalLesson(t *testing.T, b *LocalBackend, lesson model.Lesson) *model.Lesson {
	t.Helper()
	require.NoError(t, b.Content.CreateLesson(context.Background(), &lesson))
	return &lesson
}

func addLocalSubmission(t *testing.T, b *LocalBackend, s model.Submission) *model.Submission {
	t.Helper()
	require.NoError(t, b.Submissions.Create(context.Background(), &s))
	return &s
}

func TestLocalBackendRelease(t *testing.T) {
	ctx := context.Background()
	b := newLocalBackend(t)

	listening := addLocalLesson(t, b, model.Lesson{Module: model.Listening, Title: "Airport announcements"})
	writing := addLocalLesson(t, b, model.Lesson{Module: model.Writing, Title: "Formal letter", MaxScore: 20})
	lm := &model.LessonMapping{BatchID: 4, Module: model.Listening, LessonID: listening.ID, TutorStatus: model.TutorPending}
	wm := &model.LessonMapping{BatchID: 4, Module: model.Writing, LessonID: writing.ID, TutorStatus: model.TutorPending}
	require.NoError(t, b.Content.CreateMapping(ctx, lm))
	require.NoError(t, b.Content.CreateMapping(ctx, wm))

	mappings, err := b.FetchMappings(ctx, 4, model.Listening)
	require.NoError(t, err)
	require.Len(t, mappings, 1)
	require.NotNil(t, mappings[0].Lesson)
	assert.Equal(t, "Airport announcements", mappings[0].Lesson.Title)

	n, err := b.CountMappings(ctx, 4, model.Writing)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	released, err := b.ReleaseMapping(ctx, lm.ID, model.Listening, model.TutorCompleted)
	require.NoError(t, err)
	assert.Equal(t, model.TutorCompleted, released.TutorStatus)
	require.NotNil(t, released.ReleasedAt)
	require.NotNil(t, released.Lesson)

	_, err = b.ReleaseMapping(ctx, lm.ID, model.Listening, model.TutorCompleted)
	assert.ErrorIs(t, err, util.ErrMappingAlreadyReleased)

	// 写作发布为 read 后同样不能再改
	released, err = b.ReleaseMapping(ctx, wm.ID, model.Writing, model.TutorRead)
	require.NoError(t, err)
	assert.Equal(t, model.TutorRead, released.TutorStatus)
	_, err = b.ReleaseMapping(ctx, wm.ID, model.Writing, model.TutorCompleted)
	assert.ErrorIs(t, err, util.ErrMappingAlreadyReleased)

	mappings, err = b.FetchMappings(ctx, 4, model.Writing)
	require.NoError(t, err)
	assert.Equal(t, model.TutorRead, mappings[0].TutorStatus)

	// 模块不匹配按不存在处理
	_, err = b.ReleaseMapping(ctx, lm.ID, model.Writing, model.TutorCompleted)
	assert.ErrorIs(t, err, util.ErrNotFound)
}

func TestLocalBackendVerify(t *testing.T) {
	ctx := context.Background()
	b := newLocalBackend(t)

	reading := addLocalLesson(t, b, model.Lesson{Module: model.Reading, Title: "Museum leaflet", MaxScore: 5})
	listening := addLocalLesson(t, b, model.Lesson{Module: model.Listening, Title: "Weather report", MaxScore: 5})
	rs := addLocalSubmission(t, b, model.Submission{
		LessonID: reading.ID, Module: model.Reading, StudentName: "Ravi",
		Answers: datatypes.JSON(`{"Q1":"B"}`), Score: util.Float64Ptr(1), MaxScore: 5,
	})
	ls := addLocalSubmission(t, b, model.Submission{
		LessonID: listening.ID, Module: model.Listening, StudentName: "Amina",
		Answers: datatypes.JSON(`{"Q1":"A"}`), Score: util.Float64Ptr(1), MaxScore: 5,
	})

	// 阅读只能走单独的核验接口
	_, err := b.VerifySubmission(ctx, rs.ID)
	assert.ErrorIs(t, err, util.ErrNotFound)
	_, err = b.VerifyReadingSubmission(ctx, ls.ID)
	assert.ErrorIs(t, err, util.ErrNotFound)

	first, err := b.VerifyReadingSubmission(ctx, rs.ID)
	require.NoError(t, err)
	assert.True(t, first.Verified)
	require.NotNil(t, first.VerifiedAt)

	_, err = b.VerifyReadingSubmission(ctx, rs.ID)
	assert.ErrorIs(t, err, util.ErrAlreadyVerified)

	subs, err := b.FetchReadingSubmissions(ctx, reading.ID)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	require.NotNil(t, subs[0].VerifiedAt)
	assert.True(t, first.VerifiedAt.Equal(*subs[0].VerifiedAt))

	verified, err := b.VerifySubmission(ctx, ls.ID)
	require.NoError(t, err)
	assert.True(t, verified.Verified)

	_, err = b.VerifySubmission(ctx, 999)
	assert.ErrorIs(t, err, util.ErrNotFound)
}

func TestLocalBackendFeedbackUpsert(t *testing.T) {
	ctx := context.Background()
	b := newLocalBackend(t)

	lesson := addLocalLesson(t, b, model.Lesson{Module: model.Listening, Title: "Train station", MaxScore: 10})
	s := addLocalSubmission(t, b, model.Submission{
		LessonID: lesson.ID, Module: model.Listening, StudentName: "Lena",
		Answers: datatypes.JSON(`{"Q1":"C"}`), MaxScore: 10,
	})

	fb, err := b.SaveFeedback(ctx, FeedbackInput{
		SubmissionID: s.ID,
		RemarksText:  util.StringPtr("Good job"),
		Marks:        util.Float64Ptr(8),
	})
	require.NoError(t, err)
	require.NotNil(t, fb.RemarksText)
	assert.Equal(t, "Good job", *fb.RemarksText)
	require.NotNil(t, fb.Marks)
	assert.Equal(t, 8.0, *fb.Marks)
	assert.Nil(t, fb.AudioURL)

	subs, err := b.FetchListeningSubmissions(ctx, lesson.ID)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	require.NotNil(t, subs[0].Feedback)
	assert.Equal(t, fb.ID, subs[0].Feedback.ID)

	// 再次保存整体覆盖，没有带分数就清掉
	replaced, err := b.SaveFeedback(ctx, FeedbackInput{
		SubmissionID: s.ID,
		RemarksText:  util.StringPtr("Better"),
	})
	require.NoError(t, err)
	assert.Equal(t, fb.ID, replaced.ID)
	assert.Equal(t, "Better", *replaced.RemarksText)
	assert.Nil(t, replaced.Marks)

	_, err = b.SaveFeedback(ctx, FeedbackInput{SubmissionID: s.ID, Marks: util.Float64Ptr(11)})
	assert.Error(t, err)
	_, err = b.SaveFeedback(ctx, FeedbackInput{SubmissionID: s.ID})
	assert.ErrorIs(t, err, util.ErrEmptyFeedback)
	_, err = b.SaveFeedback(ctx, FeedbackInput{SubmissionID: 999, RemarksText: util.StringPtr("x")})
	assert.ErrorIs(t, err, util.ErrNotFound)
}

func TestLocalBackendReadingFeedbackDropsMarks(t *testing.T) {
	ctx := context.Background()
	b := newLocalBackend(t)

	lesson := addLocalLesson(t, b, model.Lesson{Module: model.Reading, Title: "Museum leaflet", MaxScore: 5})
	s := addLocalSubmission(t, b, model.Submission{
		LessonID: lesson.ID, Module: model.Reading, Answers: datatypes.JSON(`{"Q1":"B"}`), MaxScore: 5,
	})

	fb, err := b.SaveFeedback(ctx, FeedbackInput{
		SubmissionID: s.ID,
		RemarksText:  util.StringPtr("Read paragraph 2 again"),
		Marks:        util.Float64Ptr(4),
	})
	require.NoError(t, err)
	assert.Nil(t, fb.Marks)

	_, err = b.SaveFeedback(ctx, FeedbackInput{SubmissionID: s.ID, Marks: util.Float64Ptr(4)})
	assert.ErrorIs(t, err, util.ErrEmptyFeedback)
}
