package service

import (
	"context"
	"fmt"
	"lsrw_console/internal/util"
	"lsrw_console/pkg/logger"
	"lsrw_console/pkg/monitoring"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Clip 一段录好的语音
type Clip struct {
	Data        []byte
	ContentType string
}

func (c *Clip) Empty() bool {
	return c == nil || len(c.Data) == 0
}

// Track 一次采集的音轨，Stop 后得到完整片段并释放设备
type Track interface {
	Stop() (Clip, error)
}

// ChunkWriter 由客户端推送分片的音轨
type ChunkWriter interface {
	WriteChunk(data []byte) error
}

// Microphone 打开录音设备，拿不到设备时返回 util.ErrMicrophoneUnavailable
type Microphone interface {
	Open(ctx context.Context, submissionID uint) (Track, error)
}

// RecordingSession 单个提交的录音会话，只在进程内存在
type RecordingSession struct {
	SubmissionID uint
	IsRecording  bool
	StartedAt    time.Time
	StoppedAt    time.Time
	Clip         *Clip

	track   Track
	opening bool
}

type SessionSnapshot struct {
	SubmissionID   uint   `json:"submissionId"`
	IsRecording    bool   `json:"isRecording"`
	ElapsedSeconds int    `json:"elapsedSeconds"`
	HasClip        bool   `json:"hasClip"`
	ClipBytes      int    `json:"clipBytes,omitempty"`
	ContentType    string `json:"contentType,omitempty"`
	PreviewURL     string `json:"previewUrl,omitempty"`
}

// RecordingRegistry submissionID -> 录音会话，由点评服务独占
type RecordingRegistry struct {
	mu          sync.Mutex
	sessions    map[uint]*RecordingSession
	mic         Microphone
	previewBase string
	now         func() time.Time
}

func NewRecordingRegistry(mic Microphone, previewBase string) *RecordingRegistry {
	return &RecordingRegistry{
		sessions:    make(map[uint]*RecordingSession),
		mic:         mic,
		previewBase: previewBase,
		now:         time.Now,
	}
}

// Start 开始录音，已有的片段会被丢弃
func (r *RecordingRegistry) Start(ctx context.Context, submissionID uint) (SessionSnapshot, error) {
	r.mu.Lock()
	prev := r.sessions[submissionID]
	if prev != nil && prev.IsRecording {
		r.mu.Unlock()
		return SessionSnapshot{}, util.ErrRecordingAlreadyActive
	}
	// 占位，打开设备期间同一提交的重复请求会被拒绝
	placeholder := &RecordingSession{SubmissionID: submissionID, IsRecording: true, opening: true}
	r.sessions[submissionID] = placeholder
	r.mu.Unlock()

	track, err := r.mic.Open(ctx, submissionID)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		if prev != nil {
			r.sessions[submissionID] = prev
		} else {
			delete(r.sessions, submissionID)
		}
		logger.Log.Warn("open microphone failed", zap.Uint("submissionId", submissionID), zap.Error(err))
		return SessionSnapshot{}, err
	}

	if r.sessions[submissionID] != placeholder {
		// 打开期间会话被丢弃
		go track.Stop()
		return SessionSnapshot{}, util.ErrNoActiveRecording
	}

	placeholder.opening = false
	placeholder.track = track
	placeholder.StartedAt = r.now()
	monitoring.ActiveRecordings.Inc()
	return r.snapshot(placeholder), nil
}

// AppendChunk 追加客户端上传的录音分片
func (r *RecordingRegistry) AppendChunk(submissionID uint, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.sessions[submissionID]
	if s == nil || !s.IsRecording || s.track == nil {
		return util.ErrNoActiveRecording
	}
	w, ok := s.track.(ChunkWriter)
	if !ok {
		return fmt.Errorf("%w: track does not accept uploaded chunks", util.ErrInvalidAudio)
	}
	return w.WriteChunk(data)
}

// Stop 结束录音；没有进行中的会话时什么也不做
func (r *RecordingRegistry) Stop(submissionID uint) (SessionSnapshot, error) {
	r.mu.Lock()
	s := r.sessions[submissionID]
	if s == nil || !s.IsRecording || s.track == nil {
		var snap SessionSnapshot
		if s != nil {
			snap = r.snapshot(s)
		}
		r.mu.Unlock()
		return snap, nil
	}
	track := s.track
	s.track = nil
	r.mu.Unlock()

	clip, err := track.Stop()

	r.mu.Lock()
	defer r.mu.Unlock()
	monitoring.ActiveRecordings.Dec()
	s.IsRecording = false
	s.StoppedAt = r.now()
	if err != nil {
		s.Clip = nil
		return r.snapshot(s), err
	}
	if !clip.Empty() {
		s.Clip = &clip
	} else {
		s.Clip = nil
	}
	return r.snapshot(s), nil
}

func (r *RecordingRegistry) Snapshot(submissionID uint) (SessionSnapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.sessions[submissionID]
	if s == nil {
		return SessionSnapshot{}, false
	}
	return r.snapshot(s), true
}

// Preview 返回已录好的片段，用于试听
func (r *RecordingRegistry) Preview(submissionID uint) (*Clip, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.sessions[submissionID]
	if s == nil || s.Clip.Empty() {
		return nil, false
	}
	return s.Clip, true
}

// TakeClip 提交点评时取出片段，录音未停止时拒绝
func (r *RecordingRegistry) TakeClip(submissionID uint) (*Clip, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.sessions[submissionID]
	if s == nil {
		return nil, nil
	}
	if s.IsRecording {
		return nil, util.ErrRecordingNotStopped
	}
	return s.Clip, nil
}

// Discard 删除会话，进行中的录音直接停止并丢弃
func (r *RecordingRegistry) Discard(submissionID uint) {
	r.mu.Lock()
	s := r.sessions[submissionID]
	delete(r.sessions, submissionID)
	var track Track
	if s != nil && s.track != nil {
		track = s.track
		s.track = nil
		monitoring.ActiveRecordings.Dec()
	}
	r.mu.Unlock()

	if track != nil {
		if _, err := track.Stop(); err != nil {
			logger.Log.Debug("stop discarded track", zap.Uint("submissionId", submissionID), zap.Error(err))
		}
	}
}

// DiscardIdle 清理长时间无人处理的会话（老师离开页面后遗留的）
func (r *RecordingRegistry) DiscardIdle(maxAge time.Duration) int {
	now := r.now()
	var stale []uint

	r.mu.Lock()
	for id, s := range r.sessions {
		last := s.StoppedAt
		if s.IsRecording || last.IsZero() {
			last = s.StartedAt
		}
		if !s.opening && !last.IsZero() && now.Sub(last) > maxAge {
			stale = append(stale, id)
		}
	}
	r.mu.Unlock()

	for _, id := range stale {
		r.Discard(id)
	}
	return len(stale)
}

func (r *RecordingRegistry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.sessions {
		if s.IsRecording {
			n++
		}
	}
	return n
}

func (r *RecordingRegistry) snapshot(s *RecordingSession) SessionSnapshot {
	snap := SessionSnapshot{
		SubmissionID: s.SubmissionID,
		IsRecording:  s.IsRecording,
	}
	switch {
	case s.IsRecording && !s.StartedAt.IsZero():
		snap.ElapsedSeconds = int(r.now().Sub(s.StartedAt) / time.Second)
	case !s.StoppedAt.IsZero() && !s.StartedAt.IsZero():
		snap.ElapsedSeconds = int(s.StoppedAt.Sub(s.StartedAt) / time.Second)
	}
	if !s.Clip.Empty() {
		snap.HasClip = true
		snap.ClipBytes = len(s.Clip.Data)
		snap.ContentType = s.Clip.ContentType
		snap.PreviewURL = fmt.Sprintf("%s/%d/preview", r.previewBase, s.SubmissionID)
	}
	return snap
}
