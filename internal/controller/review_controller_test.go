package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"lsrw_console/internal/config"
	"lsrw_console/internal/middleware"
	"lsrw_console/internal/model"
	"lsrw_console/internal/service"
	"lsrw_console/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

const testSecret = "test-secret"

var oggClip = append([]byte("OggS\x00\x02"), make([]byte, 32)...)

type testEnv struct {
	router  *gin.Engine
	backend *service.MemoryBackend
	lessons map[model.SkillModule]*model.Lesson
	subs    map[model.SkillModule]*model.Submission
	mapping *model.LessonMapping
}

type clipSink struct{}

func (clipSink) SaveClip(ctx context.Context, submissionID uint, clip *service.Clip) (string, error) {
	return fmt.Sprintf("/uploads/feedback-audio/%d/clip.ogg", submissionID), nil
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mem := service.NewMemoryBackend()
	env := &testEnv{
		backend: mem,
		lessons: map[model.SkillModule]*model.Lesson{},
		subs:    map[model.SkillModule]*model.Submission{},
	}
	for _, module := range model.SkillModules {
		l := mem.AddLesson(model.Lesson{Module: module, Title: string(module), MaxScore: 10})
		env.lessons[module] = l
		m := mem.AddMapping(model.LessonMapping{BatchID: 1, Module: module, LessonID: l.ID})
		if module == model.Writing {
			env.mapping = m
		}
		sub := model.Submission{LessonID: l.ID, Module: module, MaxScore: 10, StudentName: "Ana"}
		switch module {
		case model.Speaking:
			sub.MediaURL = "/uploads/s.webm"
		case model.Writing:
			sub.ImageURL = "/uploads/w.jpg"
		default:
			sub.Answers = datatypes.JSON(`{"Q1":"A"}`)
		}
		env.subs[module] = mem.AddSubmission(sub)
	}

	modules := service.NewModuleTable(mem)
	recordings := service.NewRecordingRegistry(&service.UploadMicrophone{Enabled: true, MaxBytes: 1 << 16}, RecordingPreviewBase)
	review := service.NewReviewService(
		mem,
		modules,
		service.NewReleaseGate(mem, modules),
		service.NewFeedbackService(modules, recordings, clipSink{}),
		recordings,
		service.NewTabCounter(mem, nil, time.Minute),
	)
	review.Feedback.ProbeDuration = nil

	rc := NewReviewController(review, 1<<16)
	rec := NewRecordingController(review, 1<<12)

	cfg := &config.Config{JWT: config.JWTConfig{Secret: testSecret}}
	r := gin.New()
	api := r.Group("/api", middleware.AuthMiddleware(cfg), middleware.RoleMiddleware(model.Teacher, model.Admin))
	api.GET("/teacher/review/batches/:batchId/mappings", rc.ListMappings)
	api.GET("/teacher/review/batches/:batchId/counts", rc.TabCounts)
	api.POST("/teacher/review/mappings/:id/release", rc.Release)
	api.GET("/teacher/review/lessons/:lessonId/submissions", rc.LoadLesson)
	api.GET("/teacher/review/surface", rc.View)
	api.POST("/teacher/review/surface/refresh", rc.Refresh)
	api.POST("/teacher/review/submissions/:id/toggle", rc.Toggle)
	api.POST("/teacher/review/submissions/:id/verify", rc.Verify)
	api.POST("/teacher/review/submissions/:id/feedback", rc.SubmitFeedback)
	api.POST("/teacher/review/recordings/:id/start", rec.Start)
	api.POST("/teacher/review/recordings/:id/chunks", rec.AppendChunk)
	api.POST("/teacher/review/recordings/:id/stop", rec.Stop)
	api.GET("/teacher/review/recordings/:id", rec.Session)
	api.DELETE("/teacher/review/recordings/:id", rec.Discard)
	api.GET("/teacher/review/recordings/:id/preview", rec.Preview)
	env.router = r
	return env
}

func token(t *testing.T, userID uint, role model.UserRole) string {
	t.Helper()
	tok, err := util.GenerateJWT(userID, role, "tester", testSecret, time.Hour)
	require.NoError(t, err)
	return tok
}

func (e *testEnv) do(t *testing.T, method, path, tok string, body []byte, contentType string) (*httptest.ResponseRecorder, util.Response) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	var resp util.Response
	if rec.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

func (e *testEnv) load(t *testing.T, tok string, module model.SkillModule) {
	t.Helper()
	rec, _ := e.do(t, http.MethodGet, fmt.Sprintf("/api/teacher/review/lessons/%d/submissions?module=%s", e.lessons[module].ID, module), tok, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthAndRoles(t *testing.T) {
	env := newTestEnv(t)

	rec, _ := env.do(t, http.MethodGet, "/api/teacher/review/surface", "", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = env.do(t, http.MethodGet, "/api/teacher/review/surface", "garbage", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = env.do(t, http.MethodGet, "/api/teacher/review/surface", token(t, 5, model.Student), nil, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = env.do(t, http.MethodGet, "/api/teacher/review/surface", token(t, 6, model.Admin), nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	// 试听地址通过 query 传令牌
	rec, _ = env.do(t, http.MethodGet, "/api/teacher/review/surface?token="+token(t, 7, model.Teacher), "", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListMappingsAndCounts(t *testing.T) {
	env := newTestEnv(t)
	tok := token(t, 1, model.Teacher)

	rec, resp := env.do(t, http.MethodGet, "/api/teacher/review/batches/1/mappings?module=Writing", tok, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, resp.Data, 1)

	rec, _ = env.do(t, http.MethodGet, "/api/teacher/review/batches/1/mappings?module=music", tok, nil, "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec, _ = env.do(t, http.MethodGet, "/api/teacher/review/batches/abc/mappings?module=writing", tok, nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, resp = env.do(t, http.MethodGet, "/api/teacher/review/batches/1/counts", tok, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, map[string]interface{}{"listening": 1.0, "speaking": 1.0, "reading": 1.0, "writing": 1.0}, data["counts"])
	assert.Nil(t, data["partial"])
}

func TestReleaseWriting(t *testing.T) {
	env := newTestEnv(t)
	tok := token(t, 1, model.Teacher)
	path := fmt.Sprintf("/api/teacher/review/mappings/%d/release", env.mapping.ID)

	rec, _ := env.do(t, http.MethodPost, path, tok, []byte(`{"module":"writing"}`), "application/json")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec, resp := env.do(t, http.MethodPost, path, tok, []byte(`{"module":"writing","tutorStatus":"read"}`), "application/json")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "read", resp.Data.(map[string]interface{})["tutorStatus"])

	rec, _ = env.do(t, http.MethodPost, path, tok, []byte(`{"module":"writing","tutorStatus":"completed"}`), "application/json")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, _ = env.do(t, http.MethodPost, path, tok, []byte(`{}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoadVerifyToggle(t *testing.T) {
	env := newTestEnv(t)
	tok := token(t, 1, model.Teacher)
	sub := env.subs[model.Listening]

	rec, _ := env.do(t, http.MethodPost, fmt.Sprintf("/api/teacher/review/submissions/%d/verify", sub.ID), tok, nil, "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, _ = env.do(t, http.MethodPost, "/api/teacher/review/surface/refresh", tok, nil, "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	env.load(t, tok, model.Listening)

	rec, resp := env.do(t, http.MethodPost, fmt.Sprintf("/api/teacher/review/submissions/%d/toggle", sub.ID), tok, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, resp.Data.(map[string]interface{})["expanded"])

	rec, resp = env.do(t, http.MethodPost, fmt.Sprintf("/api/teacher/review/submissions/%d/verify", sub.ID), tok, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	subs := resp.Data.(map[string]interface{})["submissions"].([]interface{})
	first := subs[0].(map[string]interface{})
	assert.Equal(t, true, first["verified"])
	assert.Equal(t, true, first["expanded"])

	rec, _ = env.do(t, http.MethodPost, fmt.Sprintf("/api/teacher/review/submissions/%d/verify", sub.ID), tok, nil, "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	// 不在当前列表中的提交
	rec, _ = env.do(t, http.MethodPost, fmt.Sprintf("/api/teacher/review/submissions/%d/verify", env.subs[model.Reading].ID), tok, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestVerifyNotSupportedForSpeaking(t *testing.T) {
	env := newTestEnv(t)
	tok := token(t, 1, model.Teacher)
	env.load(t, tok, model.Speaking)

	rec, _ := env.do(t, http.MethodPost, fmt.Sprintf("/api/teacher/review/submissions/%d/verify", env.subs[model.Speaking].ID), tok, nil, "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestSubmitFeedbackJSON(t *testing.T) {
	env := newTestEnv(t)
	tok := token(t, 1, model.Teacher)
	sub := env.subs[model.Writing]
	path := fmt.Sprintf("/api/teacher/review/submissions/%d/feedback", sub.ID)
	env.load(t, tok, model.Writing)

	rec, _ := env.do(t, http.MethodPost, path, tok, nil, "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec, _ = env.do(t, http.MethodPost, path, tok, []byte(`{"marks":11}`), "application/json")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec, resp := env.do(t, http.MethodPost, path, tok, []byte(`{"remarksText":"Good job","marks":8}`), "application/json")
	require.Equal(t, http.StatusOK, rec.Code)
	fb := resp.Data.(map[string]interface{})
	assert.Equal(t, "Good job", fb["remarksText"])
	assert.Equal(t, 8.0, fb["marks"])
	assert.Nil(t, fb["audioUrl"])
}

func TestSubmitFeedbackMultipart(t *testing.T) {
	env := newTestEnv(t)
	tok := token(t, 1, model.Teacher)
	sub := env.subs[model.Speaking]
	env.load(t, tok, model.Speaking)

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	require.NoError(t, w.WriteField("remarksText", "Watch your intonation"))
	part, err := w.CreateFormFile("audio", "clip.ogg")
	require.NoError(t, err)
	_, err = part.Write(oggClip)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	rec, resp := env.do(t, http.MethodPost, fmt.Sprintf("/api/teacher/review/submissions/%d/feedback", sub.ID), tok, body.Bytes(), w.FormDataContentType())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	fb := resp.Data.(map[string]interface{})
	assert.Equal(t, fmt.Sprintf("/uploads/feedback-audio/%d/clip.ogg", sub.ID), fb["audioUrl"])
}

func TestRecordingFlow(t *testing.T) {
	env := newTestEnv(t)
	tok := token(t, 1, model.Teacher)
	sub := env.subs[model.Speaking]
	base := fmt.Sprintf("/api/teacher/review/recordings/%d", sub.ID)
	env.load(t, tok, model.Speaking)

	rec, _ := env.do(t, http.MethodPost, base+"/start", tok, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = env.do(t, http.MethodPost, base+"/start", tok, nil, "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, _ = env.do(t, http.MethodPost, base+"/chunks", tok, nil, "application/octet-stream")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = env.do(t, http.MethodPost, base+"/chunks", tok, make([]byte, 1<<13), "application/octet-stream")
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	rec, _ = env.do(t, http.MethodPost, base+"/chunks", tok, oggClip, "application/octet-stream")
	require.Equal(t, http.StatusOK, rec.Code)

	// 未停止时不能提交
	rec, _ = env.do(t, http.MethodPost, fmt.Sprintf("/api/teacher/review/submissions/%d/feedback", sub.ID), tok, nil, "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, resp := env.do(t, http.MethodPost, base+"/stop", tok, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	snap := resp.Data.(map[string]interface{})
	assert.Equal(t, base+"/preview", snap["previewUrl"])

	rec, _ = env.do(t, http.MethodGet, base+"/preview", tok, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, util.MimeOgg, rec.Header().Get("Content-Type"))
	assert.Equal(t, oggClip, rec.Body.Bytes())

	rec, resp = env.do(t, http.MethodPost, fmt.Sprintf("/api/teacher/review/submissions/%d/feedback", sub.ID), tok, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotNil(t, resp.Data.(map[string]interface{})["audioUrl"])

	rec, resp = env.do(t, http.MethodGet, base, tok, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, resp.Data.(map[string]interface{})["hasClip"])
}

func TestRecordingDiscard(t *testing.T) {
	env := newTestEnv(t)
	tok := token(t, 1, model.Teacher)
	sub := env.subs[model.Writing]
	base := fmt.Sprintf("/api/teacher/review/recordings/%d", sub.ID)
	env.load(t, tok, model.Writing)

	rec, _ := env.do(t, http.MethodPost, base+"/start", tok, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	rec, _ = env.do(t, http.MethodDelete, base, tok, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = env.do(t, http.MethodPost, base+"/chunks", tok, oggClip, "application/octet-stream")
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec, _ = env.do(t, http.MethodGet, base+"/preview", tok, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
