package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Question 题目集中的一道选择题
type Question struct {
	Key           string            `json:"key"`
	Text          string            `json:"question"`
	Options       map[string]string `json:"options"`
	CorrectAnswer string            `json:"correctAnswer"`
}

// QuestionSet 为空表示没有题目或题目数据无法解析
type QuestionSet []Question

type VerdictKind string

const (
	VerdictCorrect     VerdictKind = "correct"
	VerdictIncorrect   VerdictKind = "incorrect"
	VerdictUnanswered  VerdictKind = "unanswered"
	VerdictNoAnswerKey VerdictKind = "no_answer_key" // 归入未作答一类，不计入判分分母
)

type Verdict struct {
	Key           string            `json:"key"`
	Question      string            `json:"question"`
	Options       map[string]string `json:"options,omitempty"`
	StudentAnswer string            `json:"studentAnswer"`
	CorrectAnswer string            `json:"correctAnswer"`
	Kind          VerdictKind       `json:"kind"`
}

type ScoreSummary struct {
	Correct  int     `json:"correct"`
	Graded   int     `json:"graded"` // 有标准答案的题数
	Total    int     `json:"total"`
	MaxScore float64 `json:"maxScore"` // 课程配置的满分，不受无答案题影响
}

// rawQuestion 兼容阅读模块内联题目与外部文档解析出的题目两种写法
type rawQuestion struct {
	Key            json.RawMessage   `json:"key"`
	ID             json.RawMessage   `json:"id"`
	Question       string            `json:"question"`
	OptionA        string            `json:"optionA"`
	OptionB        string            `json:"optionB"`
	OptionC        string            `json:"optionC"`
	OptionD        string            `json:"optionD"`
	Options        map[string]string `json:"options"`
	CorrectAnswer  string            `json:"correct_answer"`
	CorrectAnswer2 string            `json:"correctAnswer"`
}

// ParseQuestionSet 解析序列化题目集，任何格式问题都返回空集，不返回错误
func ParseQuestionSet(raw []byte) QuestionSet {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return QuestionSet{}
	}

	// 题目集有时被二次序列化成字符串
	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return QuestionSet{}
		}
		return ParseQuestionSet([]byte(inner))
	}

	var records []rawQuestion
	switch raw[0] {
	case '[':
		if err := json.Unmarshal(raw, &records); err != nil {
			return QuestionSet{}
		}
	case '{':
		var doc struct {
			Questions []rawQuestion `json:"questions"`
		}
		if err := json.Unmarshal(raw, &doc); err != nil {
			return QuestionSet{}
		}
		records = doc.Questions
	default:
		return QuestionSet{}
	}

	set := make(QuestionSet, 0, len(records))
	for i, r := range records {
		set = append(set, r.normalize(i))
	}
	return set
}

func (r rawQuestion) normalize(index int) Question {
	key := jsonScalar(r.Key)
	if key == "" {
		key = jsonScalar(r.ID)
	}
	if key == "" {
		key = fmt.Sprintf("Q%d", index+1)
	}

	options := map[string]string{}
	for k, v := range r.Options {
		options[normalizeLetter(k)] = v
	}
	for letter, text := range map[string]string{"A": r.OptionA, "B": r.OptionB, "C": r.OptionC, "D": r.OptionD} {
		if text != "" {
			options[letter] = text
		}
	}

	correct := r.CorrectAnswer
	if correct == "" {
		correct = r.CorrectAnswer2
	}

	return Question{
		Key:           key,
		Text:          r.Question,
		Options:       options,
		CorrectAnswer: normalizeLetter(correct),
	}
}

// jsonScalar 把字符串或数字形式的键统一成字符串
func jsonScalar(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func normalizeLetter(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Evaluate 逐题比对学生答案与标准答案
func Evaluate(questions QuestionSet, answers map[string]string) []Verdict {
	verdicts := make([]Verdict, 0, len(questions))
	for _, q := range questions {
		student := normalizeLetter(answers[q.Key])
		correct := normalizeLetter(q.CorrectAnswer)

		kind := VerdictIncorrect
		switch {
		case correct == "":
			kind = VerdictNoAnswerKey
		case student == "":
			kind = VerdictUnanswered
		case student == correct:
			kind = VerdictCorrect
		}

		verdicts = append(verdicts, Verdict{
			Key:           q.Key,
			Question:      q.Text,
			Options:       q.Options,
			StudentAnswer: student,
			CorrectAnswer: correct,
			Kind:          kind,
		})
	}
	return verdicts
}

// Score 得分等于答对题数
func Score(verdicts []Verdict) int {
	n := 0
	for _, v := range verdicts {
		if v.Kind == VerdictCorrect {
			n++
		}
	}
	return n
}

func Summarize(verdicts []Verdict, maxScore float64) ScoreSummary {
	s := ScoreSummary{Total: len(verdicts), MaxScore: maxScore}
	for _, v := range verdicts {
		if v.Kind != VerdictNoAnswerKey {
			s.Graded++
		}
		if v.Kind == VerdictCorrect {
			s.Correct++
		}
	}
	return s
}
