package remote

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"lsrw_console/internal/model"
	"lsrw_console/internal/service"
	"lsrw_console/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeEnvelope(w http.ResponseWriter, status int, message string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	payload, _ := json.Marshal(data)
	json.NewEncoder(w).Encode(envelope{Code: status, Message: message, Data: payload})
}

func TestClientFetchMappings(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/lsrw/batches/4/mappings", r.URL.Path)
		assert.Equal(t, "writing", r.URL.Query().Get("module"))
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		writeEnvelope(w, http.StatusOK, "ok", []model.LessonMapping{
			{BatchID: 4, Module: model.Writing, LessonID: 11, TutorStatus: model.TutorPending},
		})
	}))
	defer srv.Close()

	ctx := util.WithBearer(context.Background(), "tok-1")
	list, err := NewClient(srv.URL+"/").FetchMappings(ctx, 4, model.Writing)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, uint(11), list[0].LessonID)
}

func TestClientEmptyListsAndDefaults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/lsrw/reading/lessons/2/submissions":
			writeEnvelope(w, http.StatusOK, "ok", []map[string]interface{}{{"id": 1, "studentName": "Ana"}})
		case "/lsrw/batches/1/mappings/count":
			writeEnvelope(w, http.StatusOK, "ok", map[string]int{"count": 3})
		default:
			writeEnvelope(w, http.StatusOK, "ok", nil)
		}
	}))
	defer srv.Close()
	c := NewClient(srv.URL)
	ctx := context.Background()

	subs, err := c.FetchReadingSubmissions(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, model.Reading, subs[0].Module)

	empty, err := c.FetchSpeakingSubmissions(ctx, 9)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	n, err := c.CountMappings(ctx, 1, model.Listening)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestClientSaveFeedback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/lsrw/submissions/8/feedback", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		var in service.FeedbackInput
		require.NoError(t, json.Unmarshal(body, &in))
		assert.Equal(t, "Nice", *in.RemarksText)
		writeEnvelope(w, http.StatusOK, "ok", model.Feedback{RemarksText: in.RemarksText, Marks: in.Marks})
	}))
	defer srv.Close()

	fb, err := NewClient(srv.URL).SaveFeedback(context.Background(), service.FeedbackInput{
		SubmissionID: 8,
		RemarksText:  util.StringPtr("Nice"),
		Marks:        util.Float64Ptr(7),
	})
	require.NoError(t, err)
	assert.Equal(t, uint(8), fb.SubmissionID)
	assert.Equal(t, 7.0, *fb.Marks)
}

func TestClientErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		message string
		err     error
	}{
		{"already verified", http.StatusConflict, "submission already verified", util.ErrAlreadyVerified},
		{"already released", http.StatusBadRequest, "mapping already released", util.ErrMappingAlreadyReleased},
		{"not found", http.StatusNotFound, "", util.ErrNotFound},
		{"server error", http.StatusInternalServerError, "boom", util.ErrCollaborator},
		{"unknown conflict", http.StatusConflict, "locked", util.ErrCollaborator},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeEnvelope(w, tt.status, tt.message, nil)
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL).VerifySubmission(context.Background(), 1)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestClientTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewClient(url).ReleaseMapping(context.Background(), 1, model.Listening, model.TutorCompleted)
	assert.ErrorIs(t, err, util.ErrCollaborator)
	assert.Equal(t, util.KindCollaborator, util.KindOf(err))
}

func TestClientBadEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>gateway</html>"))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).VerifyReadingSubmission(context.Background(), 1)
	assert.ErrorIs(t, err, util.ErrCollaborator)
}
