package service

import (
	"context"
	"errors"
	"fmt"
	"lsrw_console/internal/model"
	"lsrw_console/internal/util"
	"lsrw_console/pkg/logger"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ReviewService 按老师维护各自的点评工作台
type ReviewService struct {
	Backend    Backend
	Modules    ModuleTable
	Gate       *ReleaseGate
	Feedback   *FeedbackService
	Recordings *RecordingRegistry
	Counter    *TabCounter

	mu       sync.Mutex
	surfaces map[uint]*ReviewSurface
	now      func() time.Time
}

func NewReviewService(backend Backend, modules ModuleTable, gate *ReleaseGate, feedback *FeedbackService, recordings *RecordingRegistry, counter *TabCounter) *ReviewService {
	return &ReviewService{
		Backend:    backend,
		Modules:    modules,
		Gate:       gate,
		Feedback:   feedback,
		Recordings: recordings,
		Counter:    counter,
		surfaces:   make(map[uint]*ReviewSurface),
		now:        time.Now,
	}
}

// Surface 取老师的工作台，不存在时创建
func (s *ReviewService) Surface(reviewerID uint) *ReviewSurface {
	s.mu.Lock()
	defer s.mu.Unlock()
	surface, ok := s.surfaces[reviewerID]
	if !ok {
		surface = &ReviewSurface{
			svc:        s,
			reviewerID: reviewerID,
			expanded:   make(map[uint]bool),
			inFlight:   make(map[string]bool),
		}
		s.surfaces[reviewerID] = surface
	}
	surface.touch(s.now())
	return surface
}

// Mappings 班级下某个模块的课程列表
func (s *ReviewService) Mappings(ctx context.Context, batchID uint, module model.SkillModule) ([]model.LessonMapping, error) {
	if !module.Valid() {
		return nil, util.ErrInvalidModule
	}
	return s.Backend.FetchMappings(ctx, batchID, module)
}

func (s *ReviewService) TabCounts(ctx context.Context, batchID uint) (map[model.SkillModule]int64, error) {
	return s.Counter.Counts(ctx, batchID)
}

// SweepIdle 清理长时间未操作的工作台和遗留的录音会话
func (s *ReviewService) SweepIdle(maxAge time.Duration) {
	now := s.now()
	s.mu.Lock()
	for id, surface := range s.surfaces {
		if now.Sub(surface.lastUsed()) > maxAge {
			delete(s.surfaces, id)
		}
	}
	s.mu.Unlock()

	if n := s.Recordings.DiscardIdle(maxAge); n > 0 {
		logger.Log.Info("discarded idle recordings", zap.Int("count", n))
	}
}

// Run 定期清理，ctx 结束时退出
func (s *ReviewService) Run(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepIdle(maxAge)
		}
	}
}

// ReviewSurface 单个老师正在查看的课程及其提交列表
type ReviewSurface struct {
	svc        *ReviewService
	reviewerID uint

	mu sync.Mutex
	// 每次加载递增，返回时不一致的结果直接丢弃
	generation uint64
	// 最近一次请求的课程，刷新以它为准
	targetLesson uint
	targetModule model.SkillModule

	// 最近一次成功加载的课程和列表
	loaded      bool
	lessonID    uint
	module      model.SkillModule
	submissions []model.Submission

	expanded map[uint]bool
	inFlight map[string]bool
	used     time.Time
}

func (r *ReviewSurface) touch(now time.Time) {
	r.mu.Lock()
	r.used = now
	r.mu.Unlock()
}

func (r *ReviewSurface) lastUsed() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.used
}

// LoadSubmissions 加载课程的提交列表
// 失败时保留上一次成功的列表；期间又切换了课程则返回 ErrStaleResult
// 同一课程的重叠请求以最新一次为准
func (r *ReviewSurface) LoadSubmissions(ctx context.Context, lessonID uint, module model.SkillModule) ([]model.Submission, error) {
	ops, err := r.svc.Modules.Lookup(module)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.generation++
	gen := r.generation
	r.targetLesson = lessonID
	r.targetModule = module
	r.mu.Unlock()

	subs, err := ops.Fetch(ctx, lessonID)

	r.mu.Lock()
	defer r.mu.Unlock()
	if gen != r.generation {
		if r.targetLesson != lessonID || r.targetModule != module {
			logger.Log.Debug("discard stale submissions",
				zap.Uint("reviewerId", r.reviewerID),
				zap.Uint("lessonId", lessonID))
			return nil, util.ErrStaleResult
		}
		// 同一课程有更新的请求，本次结果不落地
		if err != nil {
			return nil, err
		}
		if r.loaded && r.lessonID == lessonID && r.module == module {
			return append([]model.Submission(nil), r.submissions...), nil
		}
		return append([]model.Submission(nil), subs...), nil
	}
	if err != nil {
		logger.Log.Warn("load submissions failed",
			zap.Uint("reviewerId", r.reviewerID),
			zap.Uint("lessonId", lessonID),
			zap.String("module", string(module)),
			zap.Error(err))
		return nil, err
	}

	if !r.loaded || r.lessonID != lessonID || r.module != module {
		r.expanded = make(map[uint]bool)
	}
	r.loaded = true
	r.lessonID = lessonID
	r.module = module
	r.submissions = subs
	return append([]model.Submission(nil), subs...), nil
}

// Refresh 整体重新加载当前课程
func (r *ReviewSurface) Refresh(ctx context.Context) error {
	r.mu.Lock()
	lessonID, module := r.targetLesson, r.targetModule
	r.mu.Unlock()
	if module == "" {
		return util.ErrNoLessonLoaded
	}
	_, err := r.LoadSubmissions(ctx, lessonID, module)
	return err
}

// refreshAfter 操作完成后同步最新状态，刷新失败不影响操作结果
func (r *ReviewSurface) refreshAfter(ctx context.Context, action string) {
	err := r.Refresh(ctx)
	if err != nil && !errors.Is(err, util.ErrNoLessonLoaded) && !errors.Is(err, util.ErrStaleResult) {
		logger.Log.Warn("refresh after action failed",
			zap.String("action", action),
			zap.Uint("reviewerId", r.reviewerID),
			zap.Error(err))
	}
}

// Toggle 展开或收起某个提交的详情
func (r *ReviewSurface) Toggle(submissionID uint) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.find(submissionID); !ok {
		return false, util.ErrNotFound
	}
	r.expanded[submissionID] = !r.expanded[submissionID]
	return r.expanded[submissionID], nil
}

func (r *ReviewSurface) find(submissionID uint) (model.Submission, bool) {
	for _, s := range r.submissions {
		if s.ID == submissionID {
			return s, true
		}
	}
	return model.Submission{}, false
}

// lookup 只能操作当前已加载列表中的提交
func (r *ReviewSurface) lookup(submissionID uint) (model.Submission, model.SkillModule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.loaded {
		return model.Submission{}, "", util.ErrNoLessonLoaded
	}
	s, ok := r.find(submissionID)
	if !ok {
		return model.Submission{}, "", util.ErrNotFound
	}
	return s, r.module, nil
}

// acquire 同一目标上的同类操作未返回前拒绝重复提交
func (r *ReviewSurface) acquire(key string) (func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inFlight[key] {
		return nil, util.ErrActionInFlight
	}
	r.inFlight[key] = true
	return func() {
		r.mu.Lock()
		delete(r.inFlight, key)
		r.mu.Unlock()
	}, nil
}

func (r *ReviewSurface) Verify(ctx context.Context, submissionID uint) (*model.Submission, error) {
	_, module, err := r.lookup(submissionID)
	if err != nil {
		return nil, err
	}
	release, err := r.acquire(fmt.Sprintf("verify:%d", submissionID))
	if err != nil {
		return nil, err
	}
	defer release()

	s, err := r.svc.Gate.Verify(ctx, submissionID, module)
	if err == nil || util.KindOf(err) == util.KindConflict {
		r.refreshAfter(ctx, "verify")
	}
	return s, err
}

func (r *ReviewSurface) SubmitFeedback(ctx context.Context, submissionID uint, req FeedbackRequest) (*model.Feedback, error) {
	sub, module, err := r.lookup(submissionID)
	if err != nil {
		return nil, err
	}
	release, err := r.acquire(fmt.Sprintf("feedback:%d", submissionID))
	if err != nil {
		return nil, err
	}
	defer release()

	fb, err := r.svc.Feedback.Submit(ctx, &sub, module, req)
	if err == nil || util.KindOf(err) == util.KindConflict {
		r.refreshAfter(ctx, "feedback")
	}
	return fb, err
}

// Release 发布课程；角标按课程数统计，发布不影响计数
func (r *ReviewSurface) Release(ctx context.Context, mappingID uint, module model.SkillModule, chosen *model.TutorStatus) (*model.LessonMapping, error) {
	release, err := r.acquire(fmt.Sprintf("release:%d", mappingID))
	if err != nil {
		return nil, err
	}
	defer release()

	m, err := r.svc.Gate.Release(ctx, mappingID, module, chosen)
	if err == nil || util.KindOf(err) == util.KindConflict {
		r.refreshAfter(ctx, "release")
	}
	return m, err
}

func (r *ReviewSurface) StartRecording(ctx context.Context, submissionID uint) (SessionSnapshot, error) {
	if _, _, err := r.lookup(submissionID); err != nil {
		return SessionSnapshot{}, err
	}
	return r.svc.Recordings.Start(ctx, submissionID)
}

func (r *ReviewSurface) AppendChunk(submissionID uint, data []byte) error {
	if _, _, err := r.lookup(submissionID); err != nil {
		return err
	}
	return r.svc.Recordings.AppendChunk(submissionID, data)
}

func (r *ReviewSurface) StopRecording(submissionID uint) (SessionSnapshot, error) {
	if _, _, err := r.lookup(submissionID); err != nil {
		return SessionSnapshot{}, err
	}
	return r.svc.Recordings.Stop(submissionID)
}

func (r *ReviewSurface) DiscardRecording(submissionID uint) error {
	if _, _, err := r.lookup(submissionID); err != nil {
		return err
	}
	r.svc.Recordings.Discard(submissionID)
	return nil
}

func (r *ReviewSurface) Recording(submissionID uint) (SessionSnapshot, error) {
	if _, _, err := r.lookup(submissionID); err != nil {
		return SessionSnapshot{}, err
	}
	snap, ok := r.svc.Recordings.Snapshot(submissionID)
	if !ok {
		return SessionSnapshot{SubmissionID: submissionID}, nil
	}
	return snap, nil
}

func (r *ReviewSurface) PreviewClip(submissionID uint) (*Clip, error) {
	if _, _, err := r.lookup(submissionID); err != nil {
		return nil, err
	}
	clip, ok := r.svc.Recordings.Preview(submissionID)
	if !ok {
		return nil, util.ErrNotFound
	}
	return clip, nil
}

type LessonView struct {
	ID          uint              `json:"id"`
	Module      model.SkillModule `json:"module"`
	Title       string            `json:"title"`
	Instruction string            `json:"instruction"`
	MaxScore    float64           `json:"maxScore"`
	Prompt      string            `json:"prompt,omitempty"`
	Questions   QuestionSet       `json:"questions"`
}

type SubmissionView struct {
	model.Submission
	Expanded            bool             `json:"expanded"`
	Verdicts            []Verdict        `json:"verdicts,omitempty"`
	Summary             *ScoreSummary    `json:"summary,omitempty"`
	ScoreMismatch       bool             `json:"scoreMismatch"`
	CanVerify           bool             `json:"canVerify"`
	CanEnterMarks       bool             `json:"canEnterMarks"`
	StudentVisibleScore *float64         `json:"studentVisibleScore"`
	Recording           *SessionSnapshot `json:"recording,omitempty"`
}

type SurfaceView struct {
	Loaded      bool              `json:"loaded"`
	LessonID    uint              `json:"lessonId"`
	Module      model.SkillModule `json:"module"`
	Lesson      *LessonView       `json:"lesson,omitempty"`
	Submissions []SubmissionView  `json:"submissions"`
}

// View 当前工作台的完整展示数据
func (r *ReviewSurface) View() SurfaceView {
	r.mu.Lock()
	loaded, lessonID, module := r.loaded, r.lessonID, r.module
	subs := append([]model.Submission(nil), r.submissions...)
	expanded := make(map[uint]bool, len(r.expanded))
	for k, v := range r.expanded {
		expanded[k] = v
	}
	r.mu.Unlock()

	view := SurfaceView{Loaded: loaded, LessonID: lessonID, Module: module, Submissions: []SubmissionView{}}
	if !loaded {
		return view
	}
	ops, _ := r.svc.Modules.Lookup(module)

	var questions QuestionSet
	for _, s := range subs {
		if s.Lesson != nil {
			questions = ParseQuestionSet(s.Lesson.QuestionSet)
			view.Lesson = &LessonView{
				ID:          s.Lesson.ID,
				Module:      s.Lesson.Module,
				Title:       s.Lesson.Title,
				Instruction: s.Lesson.Instruction,
				MaxScore:    s.Lesson.MaxScore,
				Prompt:      s.Lesson.Prompt,
				Questions:   questions,
			}
			break
		}
	}

	for i := range subs {
		view.Submissions = append(view.Submissions, r.submissionView(&subs[i], ops, questions, expanded[subs[i].ID]))
	}
	return view
}

func (r *ReviewSurface) submissionView(s *model.Submission, ops ModuleOps, questions QuestionSet, expanded bool) SubmissionView {
	v := SubmissionView{
		Submission:          *s,
		Expanded:            expanded,
		CanVerify:           ops.Verify != nil && !s.Verified,
		CanEnterMarks:       ops.MarksEditable,
		StudentVisibleScore: VisibleScore(s),
	}
	v.Submission.Lesson = nil

	if len(questions) > 0 && len(s.Answers) > 0 {
		v.Verdicts = Evaluate(questions, s.AnswerSheet())
		summary := Summarize(v.Verdicts, submissionMax(s))
		v.Summary = &summary
		// 已存分数与重新判分不一致时只做标记，不覆盖
		if ops.AutoGraded && s.Score != nil && *s.Score != float64(summary.Correct) {
			v.ScoreMismatch = true
		}
	}

	if snap, ok := r.svc.Recordings.Snapshot(s.ID); ok {
		v.Recording = &snap
	}
	return v
}
