package model

import (
	"encoding/json"
	"strings"
	"time"

	"gorm.io/datatypes"
)

// SkillModule LSRW 四个技能模块
type SkillModule string

const (
	Listening SkillModule = "listening"
	Speaking  SkillModule = "speaking"
	Reading   SkillModule = "reading"
	Writing   SkillModule = "writing"
)

var SkillModules = []SkillModule{Listening, Speaking, Reading, Writing}

func ParseSkillModule(s string) (SkillModule, bool) {
	m := SkillModule(strings.ToLower(strings.TrimSpace(s)))
	return m, m.Valid()
}

func (m SkillModule) Valid() bool {
	switch m {
	case Listening, Speaking, Reading, Writing:
		return true
	}
	return false
}

// TutorStatus 课程分配给班级后的发布状态
type TutorStatus string

const (
	TutorPending   TutorStatus = "pending"
	TutorRead      TutorStatus = "read"
	TutorCompleted TutorStatus = "completed"
)

func (s TutorStatus) Valid() bool {
	switch s {
	case TutorPending, TutorRead, TutorCompleted:
		return true
	}
	return false
}

// swagger:model Lesson
type Lesson struct {
	BaseModel
	Module      SkillModule    `gorm:"size:20;index;not null" json:"module"`
	Title       string         `gorm:"size:255;not null" json:"title"`
	Instruction string         `gorm:"type:text" json:"instruction"`
	MaxScore    float64        `gorm:"default:0" json:"maxScore"`
	Prompt      string         `gorm:"type:text" json:"prompt,omitempty"`      // 口语题目，无题目集
	QuestionSet datatypes.JSON `gorm:"type:json" json:"questionSet,omitempty"` // 原始序列化题目集，解析失败视为无题目
}

func (Lesson) TableName() string {
	return "lsrw_lessons"
}

// swagger:model LessonMapping
type LessonMapping struct {
	BaseModel
	BatchID     uint        `gorm:"index;type:bigint unsigned" json:"batchId"`
	Module      SkillModule `gorm:"size:20;index;not null" json:"module"`
	LessonID    uint        `gorm:"index;type:bigint unsigned" json:"lessonId"`
	Lesson      *Lesson     `gorm:"foreignKey:LessonID" json:"lesson,omitempty"`
	TutorStatus TutorStatus `gorm:"size:20;default:'pending'" json:"tutorStatus"`
	ReleasedAt  *time.Time  `json:"releasedAt,omitempty"`
}

func (LessonMapping) TableName() string {
	return "lsrw_lesson_mappings"
}

// swagger:model Submission
type Submission struct {
	BaseModel
	LessonID    uint           `gorm:"index;type:bigint unsigned" json:"lessonId"`
	Lesson      *Lesson        `gorm:"foreignKey:LessonID" json:"lesson,omitempty"`
	Module      SkillModule    `gorm:"size:20;index;not null" json:"module"`
	StudentID   uint           `gorm:"index;type:bigint unsigned" json:"studentId"`
	StudentName string         `gorm:"size:100" json:"studentName"`
	Answers     datatypes.JSON `gorm:"type:json" json:"answers,omitempty"` // 题号 -> 选项字母
	MediaURL    string         `gorm:"size:512" json:"mediaUrl,omitempty"` // 口语录音
	ImageURL    string         `gorm:"size:512" json:"imageUrl,omitempty"` // 写作扫描件
	Score       *float64       `json:"score"`
	MaxScore    float64        `json:"maxScore"`
	Verified    bool           `gorm:"default:false" json:"verified"`
	VerifiedAt  *time.Time     `json:"verifiedAt,omitempty"`
	SubmittedAt time.Time      `json:"submittedAt"`
	Feedback    *Feedback      `gorm:"foreignKey:SubmissionID" json:"feedback,omitempty"`
}

func (Submission) TableName() string {
	return "lsrw_submissions"
}

// AnswerSheet 解析学生答案，格式错误或非字符串的值直接忽略
func (s *Submission) AnswerSheet() map[string]string {
	sheet := map[string]string{}
	if len(s.Answers) == 0 {
		return sheet
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(s.Answers, &raw); err != nil {
		return sheet
	}
	for k, v := range raw {
		if letter, ok := v.(string); ok {
			sheet[k] = letter
		}
	}
	return sheet
}

// HasPrimaryPayload 判断提交是否带有该模块要求的主要内容
func (s *Submission) HasPrimaryPayload(module SkillModule) bool {
	switch module {
	case Speaking:
		return s.MediaURL != ""
	case Writing:
		// 写作既可能是扫描件，也可能是答题卡
		return s.ImageURL != "" || len(s.AnswerSheet()) > 0
	default:
		return len(s.Answers) > 0
	}
}

// swagger:model Feedback
type Feedback struct {
	BaseModel
	SubmissionID         uint     `gorm:"uniqueIndex;type:bigint unsigned" json:"submissionId"`
	RemarksText          *string  `gorm:"type:text" json:"remarksText"`
	Marks                *float64 `json:"marks"`
	AudioURL             *string  `gorm:"size:512" json:"audioUrl"`
	AudioDurationSeconds float64  `gorm:"default:0" json:"audioDurationSeconds,omitempty"`
}

func (Feedback) TableName() string {
	return "lsrw_feedbacks"
}

// IsEmpty 文字、分数、语音三者都为空
func (f *Feedback) IsEmpty() bool {
	return (f.RemarksText == nil || strings.TrimSpace(*f.RemarksText) == "") &&
		f.Marks == nil &&
		(f.AudioURL == nil || *f.AudioURL == "")
}
