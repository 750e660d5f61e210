package service

import (
	"context"
	"lsrw_console/internal/model"
	"lsrw_console/internal/util"
	"lsrw_console/pkg/logger"
	"lsrw_console/pkg/monitoring"
	"time"

	"go.uber.org/zap"
)

// IsTerminal completed 对所有模块都是终态，read 只对写作是终态
func IsTerminal(module model.SkillModule, status model.TutorStatus) bool {
	if status == model.TutorCompleted {
		return true
	}
	return module == model.Writing && status == model.TutorRead
}

// ResolveReleaseStatus 发布前的本地校验
// 写作必须由老师明确选择 read 或 completed，其余模块只能直接 completed
func ResolveReleaseStatus(module model.SkillModule, chosen *model.TutorStatus) (model.TutorStatus, error) {
	if !module.Valid() {
		return "", util.ErrInvalidModule
	}
	if module == model.Writing {
		if chosen == nil || *chosen == "" {
			return "", util.ErrReleaseStatusRequired
		}
		if *chosen != model.TutorRead && *chosen != model.TutorCompleted {
			return "", util.ErrInvalidReleaseStatus
		}
		return *chosen, nil
	}
	if chosen != nil && *chosen != "" && *chosen != model.TutorCompleted {
		return "", util.ErrInvalidReleaseStatus
	}
	return model.TutorCompleted, nil
}

// NextTutorStatus 协作方落库时使用的状态转换规则
func NextTutorStatus(current model.TutorStatus, module model.SkillModule, target model.TutorStatus) (model.TutorStatus, error) {
	if IsTerminal(module, current) {
		return current, util.ErrMappingAlreadyReleased
	}
	if target == model.TutorRead && module != model.Writing {
		return current, util.ErrInvalidReleaseStatus
	}
	if target != model.TutorRead && target != model.TutorCompleted {
		return current, util.ErrInvalidReleaseStatus
	}
	return target, nil
}

// ApplyRelease 在映射记录上执行发布
func ApplyRelease(m *model.LessonMapping, target model.TutorStatus, now time.Time) error {
	next, err := NextTutorStatus(m.TutorStatus, m.Module, target)
	if err != nil {
		return err
	}
	m.TutorStatus = next
	m.ReleasedAt = &now
	return nil
}

// ApplyVerify 未核验 -> 已核验，已核验时不改动 verifiedAt
func ApplyVerify(s *model.Submission, now time.Time) error {
	if s.Verified {
		return util.ErrAlreadyVerified
	}
	s.Verified = true
	s.VerifiedAt = &now
	return nil
}

// RequiresVerification 成绩需要老师核验后才对学生可见的模块
func RequiresVerification(module model.SkillModule) bool {
	return module == model.Listening || module == model.Reading
}

// VisibleScore 学生端能看到的分数，未核验前一律隐藏
func VisibleScore(s *model.Submission) *float64 {
	if RequiresVerification(s.Module) && !s.Verified {
		return nil
	}
	return s.Score
}

type ReleaseGate struct {
	Modules ModuleTable
	Backend Backend
}

func NewReleaseGate(backend Backend, modules ModuleTable) *ReleaseGate {
	return &ReleaseGate{Modules: modules, Backend: backend}
}

func (g *ReleaseGate) Release(ctx context.Context, mappingID uint, module model.SkillModule, chosen *model.TutorStatus) (*model.LessonMapping, error) {
	target, err := ResolveReleaseStatus(module, chosen)
	if err != nil {
		monitoring.ObserveAction("release", string(module), err)
		return nil, err
	}

	m, err := g.Backend.ReleaseMapping(ctx, mappingID, module, target)
	monitoring.ObserveAction("release", string(module), err)
	if err != nil {
		return nil, err
	}

	logger.Log.Info("lesson mapping released",
		zap.Uint("mappingId", mappingID),
		zap.String("module", string(module)),
		zap.String("status", string(m.TutorStatus)))
	return m, nil
}

func (g *ReleaseGate) CanVerify(module model.SkillModule) bool {
	ops, err := g.Modules.Lookup(module)
	return err == nil && ops.Verify != nil
}

func (g *ReleaseGate) Verify(ctx context.Context, submissionID uint, module model.SkillModule) (*model.Submission, error) {
	ops, err := g.Modules.Lookup(module)
	if err != nil {
		return nil, err
	}
	if ops.Verify == nil {
		return nil, util.ErrVerifyNotSupported
	}

	s, err := ops.Verify(ctx, submissionID)
	monitoring.ObserveAction("verify", string(module), err)
	if err != nil {
		return nil, err
	}

	logger.Log.Info("submission verified",
		zap.Uint("submissionId", submissionID),
		zap.String("module", string(module)))
	return s, nil
}
