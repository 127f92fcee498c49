package model

import (
	"context"
	"time"
)

// UserRole represents a user's access level.
type UserRole string

const (
	// UserRoleStudent is a student user role.
	UserRoleStudent UserRole = "student"
	// UserRoleTeacher is a teacher user role.
	UserRoleTeacher UserRole = "teacher"
	// UserRoleAdmin is an admin user role.
	UserRoleAdmin UserRole = "admin"
)

// User represents an account of the quiz service.
type User struct {
	ID           int64
	Username     string
	DisplayName  string
	PasswordHash string
	Role         UserRole
	Active       bool
	CreatedAt    time.Time
}

type userCtxKey struct{}

// ContextWithUser stores a user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}

// Quiz is a named set of multiple-choice questions.
type Quiz struct {
	ID        string    `json:"id"`
	CourseID  *string   `json:"course_id,omitempty"`
	ChapterID *string   `json:"chapter_id,omitempty"`
	Title     string    `json:"title"`
	Prompt    string    `json:"prompt"`
	CreatedAt time.Time `json:"created_at"`
}

// Question is one multiple-choice item with a fixed correct option.
type Question struct {
	ID            string   `json:"id"`
	QuizID        string   `json:"quiz_id"`
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer int      `json:"correct_answer"`
	Explanation   *string  `json:"explanation,omitempty"`
	Order         int      `json:"order"`
}

// ValidOption reports whether idx selects one of the question's options.
func (q Question) ValidOption(idx int) bool {
	return idx >= 0 && idx < len(q.Options)
}

// Answer pairs a question with the selected option index.
type Answer struct {
	QuestionID string `json:"question_id"`
	Answer     int    `json:"answer"`
}

// Submission is the request body for grading an attempt.
type Submission struct {
	Answers []Answer `json:"answers"`
	// IdempotencyKey travels as a header, not in the body.
	IdempotencyKey string `json:"-"`
}

// ResultAnswer is the graded outcome of a single question.
type ResultAnswer struct {
	QuestionID    string  `json:"question_id"`
	Question      string  `json:"question"`
	UserAnswer    *int    `json:"user_answer"`
	CorrectAnswer int     `json:"correct_answer"`
	IsCorrect     bool    `json:"is_correct"`
	Explanation   *string `json:"explanation,omitempty"`
}

// Result is the graded outcome of a submitted answer set.
type Result struct {
	ID             string         `json:"id"`
	QuizID         string         `json:"quiz_id"`
	UserID         string         `json:"user_id"`
	Score          float64        `json:"score"`
	TotalQuestions int            `json:"total_questions"`
	CorrectAnswers int            `json:"correct_answers"`
	Answers        []ResultAnswer `json:"answers"`
	TakenAt        time.Time      `json:"taken_at"`
}

// HistoryEntry is the summary form of a past result.
type HistoryEntry struct {
	ID             string    `json:"id"`
	QuizID         string    `json:"quiz_id"`
	UserID         string    `json:"user_id"`
	Score          float64   `json:"score"`
	TotalQuestions int       `json:"total_questions"`
	CorrectAnswers int       `json:"correct_answers"`
	TakenAt        time.Time `json:"taken_at"`
}

// Summary returns the history form of r.
func (r Result) Summary() HistoryEntry {
	return HistoryEntry{
		ID:             r.ID,
		QuizID:         r.QuizID,
		UserID:         r.UserID,
		Score:          r.Score,
		TotalQuestions: r.TotalQuestions,
		CorrectAnswers: r.CorrectAnswers,
		TakenAt:        r.TakenAt,
	}
}

// QuestionImport is used for loading questions from JSON.
type QuestionImport struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer int      `json:"correct_answer"`
	Explanation   *string  `json:"explanation,omitempty"`
}

// QuizImport is one quiz of a JSON question bank file.
type QuizImport struct {
	ID        string           `json:"id,omitempty"`
	CourseID  *string          `json:"course_id,omitempty"`
	ChapterID *string          `json:"chapter_id,omitempty"`
	Title     string           `json:"title"`
	Prompt    string           `json:"prompt"`
	Questions []QuestionImport `json:"questions"`
}

// ServiceConfig holds runtime parameters of the reference quiz service.
type ServiceConfig struct {
	JWTSecret      string
	TokenTTL       time.Duration
	AllowedOrigins []string
}
