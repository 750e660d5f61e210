package service

import (
	"context"
	"errors"
	"fmt"
	"lsrw_console/internal/model"
	"lsrw_console/internal/util"
	"lsrw_console/pkg/monitoring"
	"lsrw_console/pkg/tracing"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// InstrumentedBackend 给每次协作方调用加上超时、span 和耗时指标
type InstrumentedBackend struct {
	next    Backend
	timeout atomic.Int64
}

func NewInstrumentedBackend(next Backend, timeout time.Duration) *InstrumentedBackend {
	b := &InstrumentedBackend{next: next}
	b.SetTimeout(timeout)
	return b
}

func (b *InstrumentedBackend) SetTimeout(timeout time.Duration) {
	b.timeout.Store(int64(timeout))
}

func instrument[T any](b *InstrumentedBackend, ctx context.Context, op string, attrs []attribute.KeyValue, fn func(context.Context) (T, error)) (T, error) {
	if timeout := time.Duration(b.timeout.Load()); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	ctx, span := tracing.StartSpan(ctx, "collaborator."+op, attrs...)
	start := time.Now()

	out, err := fn(ctx)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, util.ErrCollaboratorTimeout) {
		err = fmt.Errorf("%w: %s: %v", util.ErrCollaboratorTimeout, op, err)
	}

	monitoring.ObserveCollaborator(op, start, err)
	tracing.EndSpan(span, err)
	return out, err
}

func moduleAttrs(id uint, module model.SkillModule) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int64("lsrw.id", int64(id)),
		attribute.String("lsrw.module", string(module)),
	}
}

func (b *InstrumentedBackend) FetchMappings(ctx context.Context, batchID uint, module model.SkillModule) ([]model.LessonMapping, error) {
	return instrument(b, ctx, "fetch_mappings", moduleAttrs(batchID, module), func(ctx context.Context) ([]model.LessonMapping, error) {
		return b.next.FetchMappings(ctx, batchID, module)
	})
}

func (b *InstrumentedBackend) CountMappings(ctx context.Context, batchID uint, module model.SkillModule) (int64, error) {
	return instrument(b, ctx, "count_mappings", moduleAttrs(batchID, module), func(ctx context.Context) (int64, error) {
		return b.next.CountMappings(ctx, batchID, module)
	})
}

func (b *InstrumentedBackend) ReleaseMapping(ctx context.Context, mappingID uint, module model.SkillModule, status model.TutorStatus) (*model.LessonMapping, error) {
	return instrument(b, ctx, "release_mapping", moduleAttrs(mappingID, module), func(ctx context.Context) (*model.LessonMapping, error) {
		return b.next.ReleaseMapping(ctx, mappingID, module, status)
	})
}

func (b *InstrumentedBackend) FetchListeningSubmissions(ctx context.Context, lessonID uint) ([]model.Submission, error) {
	return instrument(b, ctx, "fetch_submissions", moduleAttrs(lessonID, model.Listening), func(ctx context.Context) ([]model.Submission, error) {
		return b.next.FetchListeningSubmissions(ctx, lessonID)
	})
}

func (b *InstrumentedBackend) FetchSpeakingSubmissions(ctx context.Context, lessonID uint) ([]model.Submission, error) {
	return instrument(b, ctx, "fetch_submissions", moduleAttrs(lessonID, model.Speaking), func(ctx context.Context) ([]model.Submission, error) {
		return b.next.FetchSpeakingSubmissions(ctx, lessonID)
	})
}

func (b *InstrumentedBackend) FetchReadingSubmissions(ctx context.Context, lessonID uint) ([]model.Submission, error) {
	return instrument(b, ctx, "fetch_submissions", moduleAttrs(lessonID, model.Reading), func(ctx context.Context) ([]model.Submission, error) {
		return b.next.FetchReadingSubmissions(ctx, lessonID)
	})
}

func (b *InstrumentedBackend) FetchWritingSubmissions(ctx context.Context, lessonID uint) ([]model.Submission, error) {
	return instrument(b, ctx, "fetch_submissions", moduleAttrs(lessonID, model.Writing), func(ctx context.Context) ([]model.Submission, error) {
		return b.next.FetchWritingSubmissions(ctx, lessonID)
	})
}

func (b *InstrumentedBackend) VerifySubmission(ctx context.Context, submissionID uint) (*model.Submission, error) {
	return instrument(b, ctx, "verify_submission", moduleAttrs(submissionID, model.Listening), func(ctx context.Context) (*model.Submission, error) {
		return b.next.VerifySubmission(ctx, submissionID)
	})
}

func (b *InstrumentedBackend) VerifyReadingSubmission(ctx context.Context, submissionID uint) (*model.Submission, error) {
	return instrument(b, ctx, "verify_reading_submission", moduleAttrs(submissionID, model.Reading), func(ctx context.Context) (*model.Submission, error) {
		return b.next.VerifyReadingSubmission(ctx, submissionID)
	})
}

func (b *InstrumentedBackend) SaveFeedback(ctx context.Context, in FeedbackInput) (*model.Feedback, error) {
	attrs := []attribute.KeyValue{attribute.Int64("lsrw.id", int64(in.SubmissionID))}
	return instrument(b, ctx, "save_feedback", attrs, func(ctx context.Context) (*model.Feedback, error) {
		return b.next.SaveFeedback(ctx, in)
	})
}
