// Package quizapi is an HTTP client for the quiz service REST API.
package quizapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/pavelanni/learnquiz/internal/model"
)

// IdempotencyHeader carries the attempt key on quiz submissions.
const IdempotencyHeader = "Idempotency-Key"

// Config holds client settings.
type Config struct {
	BaseURL   string        // e.g. http://localhost:8080/api/v1
	Token     string        // bearer token, may be empty
	Timeout   time.Duration // per-request timeout; 0 means 30s
	RateLimit float64       // requests per second; 0 disables throttling
	Burst     int
}

// Client talks to the quiz service.
type Client struct {
	base    string
	token   string
	http    *http.Client
	limiter *rate.Limiter
}

// New creates a new quiz service client.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	c := &Client{
		base:  strings.TrimRight(cfg.BaseURL, "/"),
		token: cfg.Token,
		http:  &http.Client{Timeout: timeout},
	}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return c
}

// SetToken replaces the bearer token used for subsequent requests.
func (c *Client) SetToken(token string) {
	c.token = token
}

// GetQuiz returns quiz metadata.
func (c *Client) GetQuiz(ctx context.Context, quizID string) (*model.Quiz, error) {
	var q model.Quiz
	if err := c.do(ctx, "get quiz", http.MethodGet, "/quiz/"+url.PathEscape(quizID), nil, nil, &q); err != nil {
		return nil, err
	}
	return &q, nil
}

// GetQuestions returns the questions of a quiz in the order the service sent them.
func (c *Client) GetQuestions(ctx context.Context, quizID string) ([]model.Question, error) {
	var qs []model.Question
	if err := c.do(ctx, "get questions", http.MethodGet, "/quiz/"+url.PathEscape(quizID)+"/questions", nil, nil, &qs); err != nil {
		return nil, err
	}
	return qs, nil
}

// Submit sends an answer set for grading.
func (c *Client) Submit(ctx context.Context, quizID string, sub model.Submission) (*model.Result, error) {
	var hdr http.Header
	if sub.IdempotencyKey != "" {
		hdr = http.Header{IdempotencyHeader: []string{sub.IdempotencyKey}}
	}
	if sub.Answers == nil {
		sub.Answers = []model.Answer{}
	}
	var res model.Result
	if err := c.do(ctx, "submit quiz", http.MethodPost, "/quiz/"+url.PathEscape(quizID)+"/submit", hdr, sub, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ListQuizzes returns quizzes newest first. An empty courseID lists all courses.
func (c *Client) ListQuizzes(ctx context.Context, courseID string, skip, limit int) ([]model.Quiz, error) {
	q := url.Values{}
	if courseID != "" {
		q.Set("course_id", courseID)
	}
	if skip > 0 {
		q.Set("skip", strconv.Itoa(skip))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/quiz"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var quizzes []model.Quiz
	if err := c.do(ctx, "list quizzes", http.MethodGet, path, nil, nil, &quizzes); err != nil {
		return nil, err
	}
	return quizzes, nil
}

// ListHistory returns past results of the current user, newest first.
func (c *Client) ListHistory(ctx context.Context, skip, limit int) ([]model.HistoryEntry, error) {
	q := url.Values{}
	if skip > 0 {
		q.Set("skip", strconv.Itoa(skip))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/quiz/history"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var entries []model.HistoryEntry
	if err := c.do(ctx, "list history", http.MethodGet, path, nil, nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// GetHistory returns one past result with its per-question breakdown.
func (c *Client) GetHistory(ctx context.Context, historyID string) (*model.Result, error) {
	var res model.Result
	if err := c.do(ctx, "get history", http.MethodGet, "/quiz/history/"+url.PathEscape(historyID), nil, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// QuizCreate is the body of a manual quiz creation.
type QuizCreate struct {
	CourseID  *string                `json:"course_id,omitempty"`
	ChapterID *string                `json:"chapter_id,omitempty"`
	Title     string                 `json:"title"`
	Prompt    string                 `json:"prompt"`
	Questions []model.QuestionImport `json:"questions,omitempty"`
}

// CreateQuiz creates a quiz from explicit questions.
func (c *Client) CreateQuiz(ctx context.Context, req QuizCreate) (*model.Quiz, error) {
	var q model.Quiz
	if err := c.do(ctx, "create quiz", http.MethodPost, "/quiz/manual", nil, req, &q); err != nil {
		return nil, err
	}
	return &q, nil
}

// GenerateRequest asks the service to generate a quiz from existing material.
type GenerateRequest struct {
	SourceType   string `json:"source_type"` // "course" or "upload"
	SourceID     string `json:"source_id"`
	Title        string `json:"title"`
	NumQuestions int    `json:"num_questions"`
	Difficulty   string `json:"difficulty,omitempty"`
}

// GenerateResponse is the service reply to a generation request.
type GenerateResponse struct {
	QuizID    string           `json:"quiz_id"`
	Questions []model.Question `json:"questions"`
}

// GenerateQuiz asks the service to generate a quiz.
func (c *Client) GenerateQuiz(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	if req.SourceType != "course" && req.SourceType != "upload" {
		return nil, model.Validation("generate quiz", "source type must be course or upload, got %q", req.SourceType)
	}
	var resp GenerateResponse
	if err := c.do(ctx, "generate quiz", http.MethodPost, "/quiz/generate", nil, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TokenResponse is returned by a successful login.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Login exchanges credentials for a bearer token and starts using it.
func (c *Client) Login(ctx context.Context, username, password string) (*TokenResponse, error) {
	body := map[string]string{"username": username, "password": password}
	var tok TokenResponse
	if err := c.do(ctx, "login", http.MethodPost, "/auth/login", nil, body, &tok); err != nil {
		return nil, err
	}
	c.SetToken(tok.AccessToken)
	return &tok, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, hdr http.Header, body, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return &model.Error{Kind: model.KindNetwork, Op: op, Err: err}
		}
	}

	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &model.Error{Kind: model.KindValidation, Op: op, Err: err}
		}
		rdr = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rdr)
	if err != nil {
		return &model.Error{Kind: model.KindValidation, Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for k, vs := range hdr {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		slog.Debug("quiz service request failed", "op", op, "url", req.URL.String(), "error", err)
		return &model.Error{Kind: model.KindNetwork, Op: op, Err: err}
	}
	defer resp.Body.Close()
	slog.Debug("quiz service request", "op", op, "method", method, "path", path,
		"status", resp.StatusCode, "duration", time.Since(start))

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &model.Error{Kind: model.KindNetwork, Op: op, Status: resp.StatusCode, Err: err}
	}

	if resp.StatusCode/100 != 2 {
		return &model.Error{
			Kind:   kindForStatus(resp.StatusCode),
			Op:     op,
			Status: resp.StatusCode,
			Msg:    detail(data, resp.Status),
		}
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &model.Error{Kind: model.KindServer, Op: op, Status: resp.StatusCode,
			Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func kindForStatus(code int) model.ErrorKind {
	switch code {
	case http.StatusNotFound:
		return model.KindNotFound
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return model.KindValidation
	default:
		return model.KindServer
	}
}

// detail extracts the message of a {"detail": ...} error body.
func detail(data []byte, fallback string) string {
	var body struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(data, &body); err != nil || len(body.Detail) == 0 {
		if s := strings.TrimSpace(string(data)); s != "" && len(s) < 200 {
			return s
		}
		return fallback
	}
	var s string
	if err := json.Unmarshal(body.Detail, &s); err == nil {
		return s
	}
	// Validation errors carry a structured detail.
	return string(body.Detail)
}

// IsUnauthorized reports whether err is a 401 from the service.
func IsUnauthorized(err error) bool {
	var e *model.Error
	return errors.As(err, &e) && e.Status == http.StatusUnauthorized
}
