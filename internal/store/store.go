package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/learnquiz/internal/model"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Each connection would get its own empty database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS quizzes (
		id TEXT PRIMARY KEY,
		course_id TEXT,
		chapter_id TEXT,
		title TEXT NOT NULL,
		prompt TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS questions (
		id TEXT PRIMARY KEY,
		quiz_id TEXT NOT NULL,
		question TEXT NOT NULL,
		options TEXT NOT NULL,
		correct_answer INTEGER NOT NULL,
		explanation TEXT,
		ord INTEGER NOT NULL,
		FOREIGN KEY (quiz_id) REFERENCES quizzes(id)
	);

	CREATE INDEX IF NOT EXISTS idx_questions_quiz ON questions(quiz_id, ord);

	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'student',
		active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS results (
		id TEXT PRIMARY KEY,
		quiz_id TEXT NOT NULL,
		user_id INTEGER NOT NULL,
		score REAL NOT NULL,
		total_questions INTEGER NOT NULL,
		correct_answers INTEGER NOT NULL,
		idempotency_key TEXT,
		taken_at DATETIME NOT NULL,
		UNIQUE (user_id, idempotency_key),
		FOREIGN KEY (quiz_id) REFERENCES quizzes(id),
		FOREIGN KEY (user_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS result_answers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		result_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		question_id TEXT NOT NULL,
		question TEXT NOT NULL,
		user_answer INTEGER,
		correct_answer INTEGER NOT NULL,
		is_correct BOOLEAN NOT NULL,
		explanation TEXT,
		FOREIGN KEY (result_id) REFERENCES results(id)
	);

	CREATE TABLE IF NOT EXISTS imported_files (
		path TEXT PRIMARY KEY,
		hash TEXT NOT NULL,
		imported_at DATETIME NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// InsertQuiz stores a quiz with its questions. Missing ids and creation time
// are filled in; questions are numbered in the order given, starting at 1,
// unless they carry an explicit order.
func (s *Store) InsertQuiz(q model.Quiz, questions []model.Question) (model.Quiz, error) {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if q.CreatedAt.IsZero() {
		q.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.Begin()
	if err != nil {
		return q, err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO quizzes (id, course_id, chapter_id, title, prompt, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		q.ID, q.CourseID, q.ChapterID, q.Title, q.Prompt, q.CreatedAt,
	)
	if err != nil {
		return q, err
	}

	for i, qq := range questions {
		if qq.ID == "" {
			qq.ID = uuid.NewString()
		}
		if qq.Order == 0 {
			qq.Order = i + 1
		}
		opts, err := json.Marshal(qq.Options)
		if err != nil {
			return q, fmt.Errorf("encode options: %w", err)
		}
		_, err = tx.Exec(
			`INSERT INTO questions (id, quiz_id, question, options, correct_answer, explanation, ord)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			qq.ID, q.ID, qq.Question, string(opts), qq.CorrectAnswer, qq.Explanation, qq.Order,
		)
		if err != nil {
			return q, err
		}
	}

	return q, tx.Commit()
}

// GetQuiz returns a quiz by ID, or nil if it does not exist.
func (s *Store) GetQuiz(id string) (*model.Quiz, error) {
	var q model.Quiz
	err := s.db.QueryRow(
		`SELECT id, course_id, chapter_id, title, prompt, created_at FROM quizzes WHERE id = ?`, id,
	).Scan(&q.ID, &q.CourseID, &q.ChapterID, &q.Title, &q.Prompt, &q.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &q, nil
}

// ListQuizzes returns quizzes newest first. An empty courseID means all courses.
func (s *Store) ListQuizzes(courseID string, skip, limit int) ([]model.Quiz, error) {
	query := `SELECT id, course_id, chapter_id, title, prompt, created_at FROM quizzes WHERE 1=1`
	var args []any
	if courseID != "" {
		query += ` AND course_id = ?`
		args = append(args, courseID)
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`
	args = append(args, limit, skip)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var quizzes []model.Quiz
	for rows.Next() {
		var q model.Quiz
		if err := rows.Scan(&q.ID, &q.CourseID, &q.ChapterID, &q.Title, &q.Prompt, &q.CreatedAt); err != nil {
			return nil, err
		}
		quizzes = append(quizzes, q)
	}
	return quizzes, rows.Err()
}

// GetQuestions returns the questions of a quiz ordered by display order.
func (s *Store) GetQuestions(quizID string) ([]model.Question, error) {
	rows, err := s.db.Query(
		`SELECT id, quiz_id, question, options, correct_answer, explanation, ord
		 FROM questions WHERE quiz_id = ? ORDER BY ord, rowid`, quizID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var questions []model.Question
	for rows.Next() {
		var q model.Question
		var opts string
		if err := rows.Scan(&q.ID, &q.QuizID, &q.Question, &opts, &q.CorrectAnswer, &q.Explanation, &q.Order); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(opts), &q.Options); err != nil {
			return nil, fmt.Errorf("decode options of question %s: %w", q.ID, err)
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// QuizCount returns the number of quizzes in the database.
func (s *Store) QuizCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM quizzes`).Scan(&count)
	return count, err
}
