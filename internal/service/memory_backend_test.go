package service

import (
	"context"
	"testing"

	"lsrw_console/internal/model"
	"lsrw_console/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBackendMappings(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryBackend()
	l1 := mem.AddLesson(model.Lesson{Module: model.Speaking, Title: "A"})
	l2 := mem.AddLesson(model.Lesson{Module: model.Speaking, Title: "B"})
	m1 := mem.AddMapping(model.LessonMapping{BatchID: 2, Module: model.Speaking, LessonID: l1.ID})
	mem.AddMapping(model.LessonMapping{BatchID: 2, Module: model.Speaking, LessonID: l2.ID})
	mem.AddMapping(model.LessonMapping{BatchID: 3, Module: model.Speaking, LessonID: l2.ID})

	list, err := mem.FetchMappings(ctx, 2, model.Speaking)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, m1.ID, list[0].ID)
	assert.Equal(t, "A", list[0].Lesson.Title)
	assert.Equal(t, model.TutorPending, list[0].TutorStatus)

	// 返回的是副本
	list[0].Lesson.Title = "changed"
	again, _ := mem.FetchMappings(ctx, 2, model.Speaking)
	assert.Equal(t, "A", again[0].Lesson.Title)

	_, err = mem.ReleaseMapping(ctx, m1.ID, model.Writing, model.TutorCompleted)
	assert.ErrorIs(t, err, util.ErrNotFound)
	_, err = mem.ReleaseMapping(ctx, 999, model.Speaking, model.TutorCompleted)
	assert.ErrorIs(t, err, util.ErrNotFound)
}

func TestMemoryBackendVerifyRouting(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryBackend()
	reading := mem.AddSubmission(model.Submission{Module: model.Reading})
	listening := mem.AddSubmission(model.Submission{Module: model.Listening})

	_, err := mem.VerifySubmission(ctx, reading.ID)
	assert.ErrorIs(t, err, util.ErrNotFound)
	_, err = mem.VerifyReadingSubmission(ctx, listening.ID)
	assert.ErrorIs(t, err, util.ErrNotFound)

	s, err := mem.VerifyReadingSubmission(ctx, reading.ID)
	require.NoError(t, err)
	assert.True(t, s.Verified)
}

func TestBuildFeedback(t *testing.T) {
	lesson := &model.Lesson{MaxScore: 5}
	tests := []struct {
		name  string
		sub   model.Submission
		in    FeedbackInput
		err   error
		marks *float64
	}{
		{"empty", model.Submission{Module: model.Speaking}, FeedbackInput{}, util.ErrEmptyFeedback, nil},
		{"reading marks stripped", model.Submission{Module: model.Reading}, FeedbackInput{Marks: util.Float64Ptr(2)}, util.ErrEmptyFeedback, nil},
		{"lesson max applies", model.Submission{Module: model.Writing}, FeedbackInput{Marks: util.Float64Ptr(6)}, util.ErrMarksOutOfRange, nil},
		{"submission max wins", model.Submission{Module: model.Writing, MaxScore: 8}, FeedbackInput{Marks: util.Float64Ptr(6)}, nil, util.Float64Ptr(6)},
		{"audio only", model.Submission{Module: model.Speaking}, FeedbackInput{AudioURL: util.StringPtr("/a.ogg")}, nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb, err := BuildFeedback(&tt.sub, lesson, tt.in)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.marks, fb.Marks)
		})
	}
}
