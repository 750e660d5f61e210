package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"lsrw_console/internal/model"
	"lsrw_console/internal/service"
	"lsrw_console/internal/util"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// envelope 远端接口统一返回 {code,message,data}
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Client 远端内容/提交记录服务，令牌从请求上下文透传
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{},
	}
}

// 协作方返回的业务错误按 message 映射回本地错误
var knownErrors = []error{
	util.ErrMappingAlreadyReleased,
	util.ErrAlreadyVerified,
	util.ErrEmptyFeedback,
	util.ErrMarksOutOfRange,
	util.ErrInvalidReleaseStatus,
	util.ErrReleaseStatusRequired,
	util.ErrInvalidModule,
	util.ErrNotFound,
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := util.BearerFrom(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", util.ErrCollaborator, method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %w", util.ErrCollaborator, err)
	}

	var env envelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil && resp.StatusCode < 300 {
			return fmt.Errorf("%w: decode envelope: %v", util.ErrCollaborator, err)
		}
	}

	if resp.StatusCode >= 300 || (env.Code != 0 && env.Code >= 300) {
		return mapError(resp.StatusCode, env.Message)
	}

	if out != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("%w: decode data: %v", util.ErrCollaborator, err)
		}
	}
	return nil
}

func mapError(status int, message string) error {
	for _, known := range knownErrors {
		if message != "" && strings.Contains(message, known.Error()) {
			return known
		}
	}
	switch status {
	case http.StatusNotFound:
		return util.ErrNotFound
	case http.StatusConflict:
		return fmt.Errorf("%w: conflict: %s", util.ErrCollaborator, message)
	}
	if message == "" {
		message = http.StatusText(status)
	}
	return fmt.Errorf("%w: status %d: %s", util.ErrCollaborator, status, message)
}

func (c *Client) FetchMappings(ctx context.Context, batchID uint, module model.SkillModule) ([]model.LessonMapping, error) {
	var out []model.LessonMapping
	path := fmt.Sprintf("/lsrw/batches/%d/mappings?module=%s", batchID, url.QueryEscape(string(module)))
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []model.LessonMapping{}
	}
	return out, nil
}

func (c *Client) CountMappings(ctx context.Context, batchID uint, module model.SkillModule) (int64, error) {
	var out struct {
		Count int64 `json:"count"`
	}
	path := fmt.Sprintf("/lsrw/batches/%d/mappings/count?module=%s", batchID, url.QueryEscape(string(module)))
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

func (c *Client) ReleaseMapping(ctx context.Context, mappingID uint, module model.SkillModule, status model.TutorStatus) (*model.LessonMapping, error) {
	body := map[string]string{"module": string(module), "tutorStatus": string(status)}
	var out model.LessonMapping
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/lsrw/mappings/%d/release", mappingID), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) fetchSubmissions(ctx context.Context, module model.SkillModule, lessonID uint) ([]model.Submission, error) {
	var out []model.Submission
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/lsrw/%s/lessons/%d/submissions", module, lessonID), nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []model.Submission{}
	}
	for i := range out {
		if out[i].Module == "" {
			out[i].Module = module
		}
	}
	return out, nil
}

func (c *Client) FetchListeningSubmissions(ctx context.Context, lessonID uint) ([]model.Submission, error) {
	return c.fetchSubmissions(ctx, model.Listening, lessonID)
}

func (c *Client) FetchSpeakingSubmissions(ctx context.Context, lessonID uint) ([]model.Submission, error) {
	return c.fetchSubmissions(ctx, model.Speaking, lessonID)
}

func (c *Client) FetchReadingSubmissions(ctx context.Context, lessonID uint) ([]model.Submission, error) {
	return c.fetchSubmissions(ctx, model.Reading, lessonID)
}

func (c *Client) FetchWritingSubmissions(ctx context.Context, lessonID uint) ([]model.Submission, error) {
	return c.fetchSubmissions(ctx, model.Writing, lessonID)
}

func (c *Client) verify(ctx context.Context, path string) (*model.Submission, error) {
	var out model.Submission
	if err := c.do(ctx, http.MethodPost, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) VerifySubmission(ctx context.Context, submissionID uint) (*model.Submission, error) {
	return c.verify(ctx, fmt.Sprintf("/lsrw/submissions/%d/verify", submissionID))
}

// VerifyReadingSubmission 阅读模块的核验是单独的接口
func (c *Client) VerifyReadingSubmission(ctx context.Context, submissionID uint) (*model.Submission, error) {
	return c.verify(ctx, fmt.Sprintf("/lsrw/reading/submissions/%d/verify", submissionID))
}

func (c *Client) SaveFeedback(ctx context.Context, in service.FeedbackInput) (*model.Feedback, error) {
	var out model.Feedback
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/lsrw/submissions/%d/feedback", in.SubmissionID), in, &out); err != nil {
		return nil, err
	}
	if out.SubmissionID == 0 {
		out.SubmissionID = in.SubmissionID
	}
	return &out, nil
}

var _ service.Backend = (*Client)(nil)
