package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/learnquiz/internal/model"
)

// ErrKeyReused is returned by SaveResult when the idempotency key already
// belongs to the user's result for a different quiz.
var ErrKeyReused = errors.New("idempotency key already used for another quiz")

// SaveResult stores a graded attempt for userID. When key is non-empty and a
// result with the same key was already stored for that user and quiz, the
// stored result is returned with duplicate set and nothing is written.
func (s *Store) SaveResult(r model.Result, userID int64, key string) (saved model.Result, duplicate bool, err error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.TakenAt.IsZero() {
		r.TakenAt = time.Now().UTC()
	}
	r.UserID = strconv.FormatInt(userID, 10)

	var keyArg any
	if key != "" {
		keyArg = key
	}

	tx, err := s.db.Begin()
	if err != nil {
		return r, false, err
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`INSERT INTO results (id, quiz_id, user_id, score, total_questions, correct_answers, idempotency_key, taken_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, idempotency_key) DO NOTHING`,
		r.ID, r.QuizID, userID, r.Score, r.TotalQuestions, r.CorrectAnswers, keyArg, r.TakenAt,
	)
	if err != nil {
		return r, false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return r, false, err
	}
	if n == 0 {
		var existingID, existingQuiz string
		err := tx.QueryRow(
			`SELECT id, quiz_id FROM results WHERE user_id = ? AND idempotency_key = ?`, userID, key,
		).Scan(&existingID, &existingQuiz)
		if err != nil {
			return r, false, err
		}
		if existingQuiz != r.QuizID {
			return r, false, fmt.Errorf("save result for quiz %s: %w (result %s, quiz %s)",
				r.QuizID, ErrKeyReused, existingID, existingQuiz)
		}
		if err := tx.Commit(); err != nil {
			return r, false, err
		}
		existing, err := s.GetResult(existingID)
		if err != nil {
			return r, false, err
		}
		if existing == nil {
			return r, false, sql.ErrNoRows
		}
		return *existing, true, nil
	}

	for i, a := range r.Answers {
		_, err := tx.Exec(
			`INSERT INTO result_answers (result_id, position, question_id, question, user_answer, correct_answer, is_correct, explanation)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, i, a.QuestionID, a.Question, a.UserAnswer, a.CorrectAnswer, a.IsCorrect, a.Explanation,
		)
		if err != nil {
			return r, false, err
		}
	}

	return r, false, tx.Commit()
}

// GetResult returns a result with its per-question breakdown, or nil if it does not exist.
func (s *Store) GetResult(id string) (*model.Result, error) {
	var r model.Result
	var userID int64
	err := s.db.QueryRow(
		`SELECT id, quiz_id, user_id, score, total_questions, correct_answers, taken_at
		 FROM results WHERE id = ?`, id,
	).Scan(&r.ID, &r.QuizID, &userID, &r.Score, &r.TotalQuestions, &r.CorrectAnswers, &r.TakenAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.UserID = strconv.FormatInt(userID, 10)

	rows, err := s.db.Query(
		`SELECT question_id, question, user_answer, correct_answer, is_correct, explanation
		 FROM result_answers WHERE result_id = ? ORDER BY position`, id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	r.Answers = []model.ResultAnswer{}
	for rows.Next() {
		var a model.ResultAnswer
		if err := rows.Scan(&a.QuestionID, &a.Question, &a.UserAnswer, &a.CorrectAnswer, &a.IsCorrect, &a.Explanation); err != nil {
			return nil, err
		}
		r.Answers = append(r.Answers, a)
	}
	return &r, rows.Err()
}

// ListResults returns the history of a user, newest first.
func (s *Store) ListResults(userID int64, skip, limit int) ([]model.HistoryEntry, error) {
	rows, err := s.db.Query(
		`SELECT id, quiz_id, user_id, score, total_questions, correct_answers, taken_at
		 FROM results WHERE user_id = ? ORDER BY taken_at DESC, rowid DESC LIMIT ? OFFSET ?`,
		userID, limit, skip,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	entries := []model.HistoryEntry{}
	for rows.Next() {
		var e model.HistoryEntry
		var uid int64
		if err := rows.Scan(&e.ID, &e.QuizID, &uid, &e.Score, &e.TotalQuestions, &e.CorrectAnswers, &e.TakenAt); err != nil {
			return nil, err
		}
		e.UserID = strconv.FormatInt(uid, 10)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ResultCount returns the number of stored results.
func (s *Store) ResultCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM results`).Scan(&count)
	return count, err
}
