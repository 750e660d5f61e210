package util

import "errors"

var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrNotFound         = errors.New("record not found")

	// 输入校验
	ErrEmptyFeedback          = errors.New("feedback must carry remarks, marks or audio")
	ErrMarksOutOfRange        = errors.New("marks out of range")
	ErrMissingSubmissionMedia = errors.New("submission has no media for this module")
	ErrInvalidModule          = errors.New("invalid skill module")
	ErrReleaseStatusRequired  = errors.New("writing release requires an explicit status")
	ErrInvalidReleaseStatus   = errors.New("invalid release status for module")
	ErrVerifyNotSupported     = errors.New("module does not support verification")
	ErrInvalidAudio           = errors.New("invalid audio clip")

	// 状态冲突
	ErrMappingAlreadyReleased = errors.New("mapping already released")
	ErrAlreadyVerified        = errors.New("submission already verified")
	ErrRecordingAlreadyActive = errors.New("recording already active for submission")
	ErrRecordingNotStopped    = errors.New("recording still in progress")
	ErrNoActiveRecording      = errors.New("no active recording for submission")
	ErrActionInFlight         = errors.New("action already in progress")
	ErrStaleResult            = errors.New("result discarded, reviewer moved to another lesson")
	ErrNoLessonLoaded         = errors.New("no lesson loaded")

	// 权限
	ErrMicrophoneUnavailable = errors.New("microphone unavailable")

	// 协作方
	ErrCollaborator        = errors.New("collaborator request failed")
	ErrCollaboratorTimeout = errors.New("collaborator request timed out")
)

// ErrorKind 错误分类，决定控制器返回的状态码
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindValidation
	KindConflict
	KindPermission
	KindCollaborator
	KindNotFound
)

var errorKinds = []struct {
	err  error
	kind ErrorKind
}{
	{ErrEmptyFeedback, KindValidation},
	{ErrMarksOutOfRange, KindValidation},
	{ErrMissingSubmissionMedia, KindValidation},
	{ErrInvalidModule, KindValidation},
	{ErrReleaseStatusRequired, KindValidation},
	{ErrInvalidReleaseStatus, KindValidation},
	{ErrVerifyNotSupported, KindValidation},
	{ErrInvalidAudio, KindValidation},
	{ErrMappingAlreadyReleased, KindConflict},
	{ErrAlreadyVerified, KindConflict},
	{ErrRecordingAlreadyActive, KindConflict},
	{ErrRecordingNotStopped, KindConflict},
	{ErrNoActiveRecording, KindConflict},
	{ErrActionInFlight, KindConflict},
	{ErrStaleResult, KindConflict},
	{ErrNoLessonLoaded, KindConflict},
	{ErrMicrophoneUnavailable, KindPermission},
	{ErrPermissionDenied, KindPermission},
	{ErrCollaborator, KindCollaborator},
	{ErrCollaboratorTimeout, KindCollaborator},
	{ErrNotFound, KindNotFound},
}

func KindOf(err error) ErrorKind {
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}
