package app

import (
	"lsrw_console/internal/model"
	"lsrw_console/internal/service"
	"lsrw_console/internal/util"
	"time"

	"gorm.io/datatypes"
)

// demoBatchID 内存模式下的演示班级
const demoBatchID = 1

// seedDemo 内存模式的演示数据，每个技能一节课
func seedDemo(mem *service.MemoryBackend) {
	now := time.Now()

	listening := mem.AddLesson(model.Lesson{
		Module:      model.Listening,
		Title:       "Airport announcements",
		Instruction: "Listen and choose the correct answer.",
		MaxScore:    2,
		QuestionSet: datatypes.JSON(`{"questions":[
			{"question":"Which gate?","optionA":"Gate 3","optionB":"Gate 12","optionC":"Gate 21","optionD":"Gate 30","correct_answer":"B"},
			{"question":"Boarding time?","optionA":"9:15","optionB":"9:50","optionC":"10:15","optionD":"10:50","correct_answer":"c"}
		]}`),
	})
	speaking := mem.AddLesson(model.Lesson{
		Module:      model.Speaking,
		Title:       "Describe your hometown",
		Instruction: "Speak for about one minute.",
		MaxScore:    10,
		Prompt:      "Describe your hometown and what you like about it.",
	})
	reading := mem.AddLesson(model.Lesson{
		Module:      model.Reading,
		Title:       "The water cycle",
		Instruction: "Read the passage and answer.",
		MaxScore:    1,
		QuestionSet: datatypes.JSON(`[{"key":"Q1","question":"What drives evaporation?","optionA":"Wind","optionB":"The sun","optionC":"The moon","optionD":"Rocks","correct_answer":"B"}]`),
	})
	writing := mem.AddLesson(model.Lesson{
		Module:      model.Writing,
		Title:       "A letter to a friend",
		Instruction: "Write 120 words and upload a photo of your page.",
		MaxScore:    20,
	})

	for _, l := range []*model.Lesson{listening, speaking, reading, writing} {
		mem.AddMapping(model.LessonMapping{BatchID: demoBatchID, Module: l.Module, LessonID: l.ID})
	}

	mem.AddSubmission(model.Submission{
		LessonID: listening.ID, Module: model.Listening, StudentID: 101, StudentName: "Amina",
		Answers: datatypes.JSON(`{"Q1":"b","Q2":"C"}`), Score: util.Float64Ptr(2), MaxScore: 2, SubmittedAt: now,
	})
	mem.AddSubmission(model.Submission{
		LessonID: listening.ID, Module: model.Listening, StudentID: 102, StudentName: "Ravi",
		Answers: datatypes.JSON(`{"Q1":"A"}`), Score: util.Float64Ptr(0), MaxScore: 2, SubmittedAt: now,
	})
	mem.AddSubmission(model.Submission{
		LessonID: speaking.ID, Module: model.Speaking, StudentID: 101, StudentName: "Amina",
		MediaURL: "/uploads/demo/hometown-101.webm", MaxScore: 10, SubmittedAt: now,
	})
	mem.AddSubmission(model.Submission{
		LessonID: reading.ID, Module: model.Reading, StudentID: 102, StudentName: "Ravi",
		Answers: datatypes.JSON(`{"Q1":"b"}`), Score: util.Float64Ptr(1), MaxScore: 1, SubmittedAt: now,
	})
	mem.AddSubmission(model.Submission{
		LessonID: writing.ID, Module: model.Writing, StudentID: 103, StudentName: "Lena",
		ImageURL: "/uploads/demo/letter-103.jpg", MaxScore: 20, SubmittedAt: now,
	})
}
