package service

import (
	"context"
	"lsrw_console/internal/model"
	"lsrw_console/internal/util"
	"sort"
	"sync"
	"time"
)

// MemoryBackend 内存协作方，开发演示和测试使用
// 校验规则与本地数据库实现保持一致
type MemoryBackend struct {
	mu          sync.RWMutex
	nextID      uint
	lessons     map[uint]*model.Lesson
	mappings    map[uint]*model.LessonMapping
	submissions map[uint]*model.Submission
	feedbacks   map[uint]*model.Feedback // submissionID -> feedback
	now         func() time.Time
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		lessons:     make(map[uint]*model.Lesson),
		mappings:    make(map[uint]*model.LessonMapping),
		submissions: make(map[uint]*model.Submission),
		feedbacks:   make(map[uint]*model.Feedback),
		now:         time.Now,
	}
}

func (b *MemoryBackend) id() uint {
	b.nextID++
	return b.nextID
}

func (b *MemoryBackend) AddLesson(l model.Lesson) *model.Lesson {
	b.mu.Lock()
	defer b.mu.Unlock()
	if l.ID == 0 {
		l.ID = b.id()
	}
	l.CreatedAt = b.now()
	l.UpdatedAt = l.CreatedAt
	b.lessons[l.ID] = &l
	out := l
	return &out
}

func (b *MemoryBackend) AddMapping(m model.LessonMapping) *model.LessonMapping {
	b.mu.Lock()
	defer b.mu.Unlock()
	if m.ID == 0 {
		m.ID = b.id()
	}
	if m.TutorStatus == "" {
		m.TutorStatus = model.TutorPending
	}
	m.Lesson = nil
	m.CreatedAt = b.now()
	m.UpdatedAt = m.CreatedAt
	b.mappings[m.ID] = &m
	return b.mappingView(&m)
}

func (b *MemoryBackend) AddSubmission(s model.Submission) *model.Submission {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s.ID == 0 {
		s.ID = b.id()
	}
	if s.SubmittedAt.IsZero() {
		s.SubmittedAt = b.now()
	}
	if s.Feedback != nil {
		fb := *s.Feedback
		fb.SubmissionID = s.ID
		if fb.ID == 0 {
			fb.ID = b.id()
		}
		b.feedbacks[s.ID] = &fb
	}
	s.Lesson = nil
	s.Feedback = nil
	b.submissions[s.ID] = &s
	return b.submissionView(&s)
}

// mappingView 返回带课程的副本，调用方修改不影响存储
func (b *MemoryBackend) mappingView(m *model.LessonMapping) *model.LessonMapping {
	out := *m
	if l, ok := b.lessons[m.LessonID]; ok {
		lesson := *l
		out.Lesson = &lesson
	}
	return &out
}

func (b *MemoryBackend) submissionView(s *model.Submission) *model.Submission {
	out := *s
	if l, ok := b.lessons[s.LessonID]; ok {
		lesson := *l
		out.Lesson = &lesson
	}
	if fb, ok := b.feedbacks[s.ID]; ok {
		f := *fb
		out.Feedback = &f
	}
	return &out
}

func (b *MemoryBackend) FetchMappings(ctx context.Context, batchID uint, module model.SkillModule) ([]model.LessonMapping, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := []model.LessonMapping{}
	for _, m := range b.mappings {
		if m.BatchID == batchID && m.Module == module {
			out = append(out, *b.mappingView(m))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (b *MemoryBackend) CountMappings(ctx context.Context, batchID uint, module model.SkillModule) (int64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var n int64
	for _, m := range b.mappings {
		if m.BatchID == batchID && m.Module == module {
			n++
		}
	}
	return n, nil
}

func (b *MemoryBackend) ReleaseMapping(ctx context.Context, mappingID uint, module model.SkillModule, status model.TutorStatus) (*model.LessonMapping, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.mappings[mappingID]
	if !ok || m.Module != module {
		return nil, util.ErrNotFound
	}
	if err := ApplyRelease(m, status, b.now()); err != nil {
		return nil, err
	}
	m.UpdatedAt = b.now()
	return b.mappingView(m), nil
}

func (b *MemoryBackend) fetchSubmissions(lessonID uint, module model.SkillModule) []model.Submission {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := []model.Submission{}
	for _, s := range b.submissions {
		if s.LessonID == lessonID && s.Module == module {
			out = append(out, *b.submissionView(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (b *MemoryBackend) FetchListeningSubmissions(ctx context.Context, lessonID uint) ([]model.Submission, error) {
	return b.fetchSubmissions(lessonID, model.Listening), nil
}

func (b *MemoryBackend) FetchSpeakingSubmissions(ctx context.Context, lessonID uint) ([]model.Submission, error) {
	return b.fetchSubmissions(lessonID, model.Speaking), nil
}

func (b *MemoryBackend) FetchReadingSubmissions(ctx context.Context, lessonID uint) ([]model.Submission, error) {
	return b.fetchSubmissions(lessonID, model.Reading), nil
}

func (b *MemoryBackend) FetchWritingSubmissions(ctx context.Context, lessonID uint) ([]model.Submission, error) {
	return b.fetchSubmissions(lessonID, model.Writing), nil
}

func (b *MemoryBackend) verify(submissionID uint, allowed func(model.SkillModule) bool) (*model.Submission, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.submissions[submissionID]
	if !ok || !allowed(s.Module) {
		return nil, util.ErrNotFound
	}
	if err := ApplyVerify(s, b.now()); err != nil {
		return nil, err
	}
	return b.submissionView(s), nil
}

// VerifySubmission 通用核验接口，阅读走单独的接口
func (b *MemoryBackend) VerifySubmission(ctx context.Context, submissionID uint) (*model.Submission, error) {
	return b.verify(submissionID, func(m model.SkillModule) bool {
		return m != model.Reading
	})
}

func (b *MemoryBackend) VerifyReadingSubmission(ctx context.Context, submissionID uint) (*model.Submission, error) {
	return b.verify(submissionID, func(m model.SkillModule) bool {
		return m == model.Reading
	})
}

func (b *MemoryBackend) SaveFeedback(ctx context.Context, in FeedbackInput) (*model.Feedback, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.submissions[in.SubmissionID]
	if !ok {
		return nil, util.ErrNotFound
	}

	var lesson *model.Lesson
	if l, ok := b.lessons[s.LessonID]; ok {
		lesson = l
	}
	fb, err := BuildFeedback(s, lesson, in)
	if err != nil {
		return nil, err
	}

	now := b.now()
	if existing, ok := b.feedbacks[s.ID]; ok {
		fb.ID = existing.ID
		fb.CreatedAt = existing.CreatedAt
	} else {
		fb.ID = b.id()
		fb.CreatedAt = now
	}
	fb.UpdatedAt = now
	b.feedbacks[s.ID] = fb

	out := *fb
	return &out, nil
}

// BuildFeedback 协作方落库前的校验，点评整体替换旧记录
func BuildFeedback(s *model.Submission, lesson *model.Lesson, in FeedbackInput) (*model.Feedback, error) {
	fb := &model.Feedback{
		SubmissionID:         s.ID,
		RemarksText:          in.RemarksText,
		Marks:                in.Marks,
		AudioURL:             in.AudioURL,
		AudioDurationSeconds: in.AudioDurationSeconds,
	}
	if s.Module == model.Reading {
		fb.Marks = nil
	}
	if fb.IsEmpty() {
		return nil, util.ErrEmptyFeedback
	}
	if fb.Marks != nil {
		max := s.MaxScore
		if max <= 0 && lesson != nil {
			max = lesson.MaxScore
		}
		if err := checkMarks(*fb.Marks, max); err != nil {
			return nil, err
		}
	}
	return fb, nil
}
