package store

import (
	"errors"
	"testing"
	"time"

	"github.com/pavelanni/learnquiz/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func insertTestQuiz(t *testing.T, s *Store, title string, n int) model.Quiz {
	t.Helper()
	var qs []model.Question
	for i := 0; i < n; i++ {
		qs = append(qs, model.Question{
			Question:      title + " question",
			Options:       []string{"a", "b", "c", "d"},
			CorrectAnswer: i % 4,
		})
	}
	q, err := s.InsertQuiz(model.Quiz{Title: title, Prompt: "prompt for " + title}, qs)
	if err != nil {
		t.Fatalf("insertTestQuiz: %v", err)
	}
	return q
}

func insertTestUser(t *testing.T, s *Store, username string) int64 {
	t.Helper()
	id, err := s.CreateUser(model.User{Username: username, DisplayName: username, PasswordHash: "x", Active: true})
	if err != nil {
		t.Fatalf("insertTestUser: %v", err)
	}
	return id
}

func TestQuizCRUD(t *testing.T) {
	s := newTestStore(t)

	count, err := s.QuizCount()
	if err != nil {
		t.Fatalf("QuizCount: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 quizzes, got %d", count)
	}

	course := "c1"
	expl := "because"
	q, err := s.InsertQuiz(model.Quiz{Title: "Go", Prompt: "p", CourseID: &course}, []model.Question{
		{Question: "second", Options: []string{"x", "y"}, CorrectAnswer: 1, Order: 2},
		{Question: "first", Options: []string{"x", "y", "z"}, CorrectAnswer: 0, Order: 1, Explanation: &expl},
	})
	if err != nil {
		t.Fatalf("InsertQuiz: %v", err)
	}
	if q.ID == "" || q.CreatedAt.IsZero() {
		t.Errorf("InsertQuiz should fill id and created_at, got %+v", q)
	}

	got, err := s.GetQuiz(q.ID)
	if err != nil {
		t.Fatalf("GetQuiz: %v", err)
	}
	if got == nil || got.Title != "Go" {
		t.Fatalf("GetQuiz() = %+v", got)
	}
	if got.CourseID == nil || *got.CourseID != "c1" || got.ChapterID != nil {
		t.Errorf("optional references = %v / %v", got.CourseID, got.ChapterID)
	}

	missing, err := s.GetQuiz("nope")
	if err != nil {
		t.Fatalf("GetQuiz(missing): %v", err)
	}
	if missing != nil {
		t.Error("expected nil for missing quiz")
	}

	qs, err := s.GetQuestions(q.ID)
	if err != nil {
		t.Fatalf("GetQuestions: %v", err)
	}
	if len(qs) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(qs))
	}
	if qs[0].Question != "first" || len(qs[0].Options) != 3 || qs[0].QuizID != q.ID {
		t.Errorf("questions not ordered by display order: %+v", qs)
	}
	if qs[0].Explanation == nil || *qs[0].Explanation != "because" || qs[1].Explanation != nil {
		t.Error("explanations not round-tripped")
	}
}

func TestInsertQuizDefaultOrder(t *testing.T) {
	s := newTestStore(t)
	q := insertTestQuiz(t, s, "T", 3)
	qs, err := s.GetQuestions(q.ID)
	if err != nil {
		t.Fatalf("GetQuestions: %v", err)
	}
	for i, qq := range qs {
		if qq.Order != i+1 {
			t.Errorf("question %d order = %d, want %d", i, qq.Order, i+1)
		}
	}
}

func TestListQuizzes(t *testing.T) {
	s := newTestStore(t)
	c1, c2 := "c1", "c2"
	for i, c := range []*string{&c1, &c1, &c2} {
		_, err := s.InsertQuiz(model.Quiz{
			Title:     "Q",
			CourseID:  c,
			CreatedAt: time.Date(2024, 1, i+1, 0, 0, 0, 0, time.UTC),
		}, nil)
		if err != nil {
			t.Fatalf("InsertQuiz: %v", err)
		}
	}

	tests := []struct {
		name        string
		course      string
		skip, limit int
		want        int
	}{
		{"all", "", 0, 10, 3},
		{"by course", "c1", 0, 10, 2},
		{"limit", "", 0, 2, 2},
		{"skip", "", 2, 10, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			qs, err := s.ListQuizzes(tt.course, tt.skip, tt.limit)
			if err != nil {
				t.Fatalf("ListQuizzes: %v", err)
			}
			if len(qs) != tt.want {
				t.Errorf("expected %d quizzes, got %d", tt.want, len(qs))
			}
		})
	}

	all, _ := s.ListQuizzes("", 0, 10)
	if *all[0].CourseID != "c2" {
		t.Error("expected newest quiz first")
	}
}

func testResult(quizID string, score float64) model.Result {
	one := 1
	return model.Result{
		QuizID:         quizID,
		Score:          score,
		TotalQuestions: 2,
		CorrectAnswers: 1,
		Answers: []model.ResultAnswer{
			{QuestionID: "a", Question: "Q1", UserAnswer: &one, CorrectAnswer: 1, IsCorrect: true},
			{QuestionID: "b", Question: "Q2", CorrectAnswer: 0},
		},
	}
}

func TestSaveAndGetResult(t *testing.T) {
	s := newTestStore(t)
	q := insertTestQuiz(t, s, "T", 2)
	uid := insertTestUser(t, s, "ann")

	saved, dup, err := s.SaveResult(testResult(q.ID, 50), uid, "")
	if err != nil {
		t.Fatalf("SaveResult: %v", err)
	}
	if dup {
		t.Error("first save should not be a duplicate")
	}
	if saved.ID == "" || saved.TakenAt.IsZero() || saved.UserID != "1" {
		t.Errorf("SaveResult() = %+v", saved)
	}

	got, err := s.GetResult(saved.ID)
	if err != nil {
		t.Fatalf("GetResult: %v", err)
	}
	if got == nil || got.Score != 50 || len(got.Answers) != 2 {
		t.Fatalf("GetResult() = %+v", got)
	}
	if got.Answers[0].UserAnswer == nil || *got.Answers[0].UserAnswer != 1 || !got.Answers[0].IsCorrect {
		t.Errorf("first answer = %+v", got.Answers[0])
	}
	if got.Answers[1].UserAnswer != nil || got.Answers[1].IsCorrect {
		t.Errorf("unanswered answer = %+v", got.Answers[1])
	}

	missing, err := s.GetResult("nope")
	if err != nil || missing != nil {
		t.Errorf("GetResult(missing) = %v, %v", missing, err)
	}
}

func TestSaveResultIdempotency(t *testing.T) {
	s := newTestStore(t)
	q := insertTestQuiz(t, s, "T", 2)
	ann := insertTestUser(t, s, "ann")
	bob := insertTestUser(t, s, "bob")

	first, _, err := s.SaveResult(testResult(q.ID, 50), ann, "key-1")
	if err != nil {
		t.Fatalf("SaveResult: %v", err)
	}
	again, dup, err := s.SaveResult(testResult(q.ID, 100), ann, "key-1")
	if err != nil {
		t.Fatalf("SaveResult retry: %v", err)
	}
	if !dup || again.ID != first.ID || again.Score != 50 {
		t.Errorf("retry should return the stored result, got dup=%v %+v", dup, again)
	}

	// Same key from another user is a different attempt.
	if _, dup, err := s.SaveResult(testResult(q.ID, 0), bob, "key-1"); err != nil || dup {
		t.Errorf("other user's save: dup=%v err=%v", dup, err)
	}
	// Results without keys never collide.
	for i := 0; i < 2; i++ {
		if _, dup, err := s.SaveResult(testResult(q.ID, 0), ann, ""); err != nil || dup {
			t.Errorf("keyless save %d: dup=%v err=%v", i, dup, err)
		}
	}

	count, err := s.ResultCount()
	if err != nil {
		t.Fatalf("ResultCount: %v", err)
	}
	if count != 4 {
		t.Errorf("expected 4 results, got %d", count)
	}
}

func TestSaveResultKeyReusedForOtherQuiz(t *testing.T) {
	s := newTestStore(t)
	qa := insertTestQuiz(t, s, "A", 2)
	qb := insertTestQuiz(t, s, "B", 2)
	ann := insertTestUser(t, s, "ann")

	first, _, err := s.SaveResult(testResult(qa.ID, 50), ann, "k1")
	if err != nil {
		t.Fatalf("SaveResult: %v", err)
	}
	saved, dup, err := s.SaveResult(testResult(qb.ID, 100), ann, "k1")
	if !errors.Is(err, ErrKeyReused) {
		t.Fatalf("SaveResult(quiz B) error = %v, want ErrKeyReused (dup=%v, saved=%+v)", err, dup, saved)
	}
	if dup {
		t.Error("key reuse must not be reported as a duplicate")
	}

	count, err := s.ResultCount()
	if err != nil {
		t.Fatalf("ResultCount: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 result, got %d", count)
	}
	stored, err := s.GetResult(first.ID)
	if err != nil || stored == nil || stored.QuizID != qa.ID || stored.Score != 50 {
		t.Errorf("quiz A result = %+v, %v", stored, err)
	}
}

func TestListResults(t *testing.T) {
	s := newTestStore(t)
	q := insertTestQuiz(t, s, "T", 2)
	ann := insertTestUser(t, s, "ann")
	bob := insertTestUser(t, s, "bob")

	for i, score := range []float64{10, 20, 30} {
		r := testResult(q.ID, score)
		r.TakenAt = time.Date(2024, 1, i+1, 0, 0, 0, 0, time.UTC)
		if _, _, err := s.SaveResult(r, ann, ""); err != nil {
			t.Fatalf("SaveResult: %v", err)
		}
	}
	if _, _, err := s.SaveResult(testResult(q.ID, 99), bob, ""); err != nil {
		t.Fatalf("SaveResult: %v", err)
	}

	entries, err := s.ListResults(ann, 0, 10)
	if err != nil {
		t.Fatalf("ListResults: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].Score != 30 || entries[2].Score != 10 {
		t.Errorf("expected newest first, got %+v", entries)
	}

	page, _ := s.ListResults(ann, 1, 1)
	if len(page) != 1 || page[0].Score != 20 {
		t.Errorf("ListResults(skip=1, limit=1) = %+v", page)
	}

	none, err := s.ListResults(999, 0, 10)
	if err != nil {
		t.Fatalf("ListResults: %v", err)
	}
	if none == nil || len(none) != 0 {
		t.Errorf("expected empty non-nil slice, got %v", none)
	}
}

func TestUsers(t *testing.T) {
	s := newTestStore(t)

	count, _ := s.UserCount()
	if count != 0 {
		t.Fatalf("expected 0 users, got %d", count)
	}

	id := insertTestUser(t, s, "ann")
	u, err := s.GetUserByUsername("ann")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if u == nil || u.ID != id || u.Role != model.UserRoleStudent || !u.Active {
		t.Fatalf("GetUserByUsername() = %+v", u)
	}

	if err := s.SetUserActive(id, false); err != nil {
		t.Fatalf("SetUserActive: %v", err)
	}
	u, _ = s.GetUserByID(id)
	if u.Active {
		t.Error("user should be inactive")
	}

	if _, err := s.CreateUser(model.User{Username: "ann", PasswordHash: "y"}); err == nil {
		t.Error("duplicate username should fail")
	}

	missing, err := s.GetUserByID(42)
	if err != nil || missing != nil {
		t.Errorf("GetUserByID(missing) = %v, %v", missing, err)
	}

	users, err := s.ListUsers()
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(users) != 1 {
		t.Errorf("expected 1 user, got %d", len(users))
	}
}

func TestImportedFileHash(t *testing.T) {
	s := newTestStore(t)

	hash, err := s.GetImportedFileHash("/some/path.json")
	if err != nil {
		t.Fatalf("GetImportedFileHash: %v", err)
	}
	if hash != "" {
		t.Errorf("expected empty hash, got %q", hash)
	}

	if err := s.SetImportedFileHash("/some/path.json", "abc123"); err != nil {
		t.Fatalf("SetImportedFileHash: %v", err)
	}
	hash, _ = s.GetImportedFileHash("/some/path.json")
	if hash != "abc123" {
		t.Errorf("expected 'abc123', got %q", hash)
	}

	if err := s.SetImportedFileHash("/some/path.json", "def456"); err != nil {
		t.Fatalf("SetImportedFileHash update: %v", err)
	}
	hash, _ = s.GetImportedFileHash("/some/path.json")
	if hash != "def456" {
		t.Errorf("expected 'def456', got %q", hash)
	}
}

func TestExportAllResults(t *testing.T) {
	s := newTestStore(t)
	q := insertTestQuiz(t, s, "Physics", 2)
	ann := insertTestUser(t, s, "ann")

	for i := 0; i < 2; i++ {
		r := testResult(q.ID, float64(40+i*10))
		r.TakenAt = time.Date(2024, 1, i+1, 0, 0, 0, 0, time.UTC)
		if _, _, err := s.SaveResult(r, ann, ""); err != nil {
			t.Fatalf("SaveResult: %v", err)
		}
	}

	results, err := s.ExportAllResults()
	if err != nil {
		t.Fatalf("ExportAllResults: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	first := results[0]
	if first.Username != "ann" || first.QuizTitle != "Physics" || first.AttemptNumber != 1 || first.Score != 40 {
		t.Errorf("first export = %+v", first)
	}
	if results[1].AttemptNumber != 2 {
		t.Errorf("second attempt number = %d, want 2", results[1].AttemptNumber)
	}
	if len(first.Answers) != 2 {
		t.Errorf("expected per-question breakdown, got %d answers", len(first.Answers))
	}
}
