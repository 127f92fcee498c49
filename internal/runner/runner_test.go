package runner

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/pavelanni/learnquiz/internal/grading"
	"github.com/pavelanni/learnquiz/internal/model"
	"github.com/pavelanni/learnquiz/internal/session"
)

type fakeService struct {
	quiz      model.Quiz
	questions []model.Question
	failFirst bool
	submits   []model.Submission
}

func (f *fakeService) GetQuiz(_ context.Context, id string) (*model.Quiz, error) {
	if id != f.quiz.ID {
		return nil, &model.Error{Kind: model.KindNotFound, Op: "get quiz", Status: 404}
	}
	q := f.quiz
	return &q, nil
}

func (f *fakeService) GetQuestions(_ context.Context, id string) ([]model.Question, error) {
	if id != f.quiz.ID {
		return nil, &model.Error{Kind: model.KindNotFound, Op: "get questions", Status: 404}
	}
	return f.questions, nil
}

func (f *fakeService) Submit(_ context.Context, quizID string, sub model.Submission) (*model.Result, error) {
	f.submits = append(f.submits, sub)
	if f.failFirst && len(f.submits) == 1 {
		return nil, &model.Error{Kind: model.KindNetwork, Op: "submit quiz", Err: errors.New("connection refused")}
	}
	out := grading.Grade(f.questions, sub.Answers)
	return &model.Result{
		ID:             "r1",
		QuizID:         quizID,
		Score:          out.Score,
		TotalQuestions: out.TotalQuestions,
		CorrectAnswers: out.CorrectAnswers,
		Answers:        out.Answers,
		TakenAt:        time.Now(),
	}, nil
}

func newFake() *fakeService {
	expl := "Go has no while keyword."
	return &fakeService{
		quiz: model.Quiz{ID: "quiz-1", Title: "Go basics", Prompt: "Pick one answer per question."},
		questions: []model.Question{
			{ID: "q1", Question: "Loop keyword?", Options: []string{"while", "for", "loop"}, CorrectAnswer: 1, Explanation: &expl, Order: 1},
			{ID: "q2", Question: "Zero value of int?", Options: []string{"0", "nil"}, CorrectAnswer: 0, Order: 2},
			{ID: "q3", Question: "Map literal?", Options: []string{"{}", "map[K]V{}", "[]", "()"}, CorrectAnswer: 1, Order: 3},
		},
	}
}

func run(t *testing.T, svc *fakeService, input string) (*model.Result, string, *session.Session, error) {
	t.Helper()
	sess := session.New(svc)
	var out bytes.Buffer
	res, err := New(sess, strings.NewReader(input), &out).Run(context.Background(), svc.quiz.ID)
	return res, out.String(), sess, err
}

func TestRunTranscript(t *testing.T) {
	svc := newFake()
	// Answer q1 correctly, q2 wrongly, try to submit early, then finish q3.
	res, out, sess, err := run(t, svc, "2\nn\n2\ns\nn\n2\ns\n")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res == nil || res.CorrectAnswers != 2 || res.TotalQuestions != 3 {
		t.Fatalf("result = %+v", res)
	}
	if sess.Phase() != session.PhaseCompleted {
		t.Errorf("phase = %s", sess.Phase())
	}
	if len(svc.submits) != 1 {
		t.Fatalf("expected 1 submit, got %d", len(svc.submits))
	}

	for _, want := range []string{
		"Go basics\nPick one answer per question.\n",
		"Question 1 of 3 (0 answered)",
		"  [x] 2) for",
		"Answer all questions before submitting (2 of 3 answered).",
		"Score: 66.7% (2 of 3 correct)",
		"2. Zero value of int? [wrong]\n   Your answer: 2) nil\n   Correct answer: 1) 0\n",
		"Go has no while keyword.",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("transcript missing %q\n%s", want, out)
		}
	}
}

func TestRunNavigation(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"goto", "g 3\n", "Question 3 of 3"},
		{"goto clamps", "g 10\n", "Question 3 of 3"},
		{"previous at start", "p\n", "Question 1 of 3"},
		{"next then previous", "n\nn\np\n", "Question 2 of 3"},
		{"bad goto", "g x\n", `Not a number: "x"`},
		{"goto usage", "g\n", "Usage: g <question number>"},
		{"unknown", "hello\n", `Unknown command "hello"`},
		{"help", "?\n", "go to question n"},
		{"option out of range", "7\n", "Choose an option between 1 and 3."},
		{"option zero", "0\n", "Choose an option between 1 and 3."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, out, _, err := run(t, newFake(), tt.input)
			if !errors.Is(err, ErrQuit) {
				t.Fatalf("Run() error = %v, want ErrQuit at end of input", err)
			}
			if !strings.Contains(out, tt.want) {
				t.Errorf("output missing %q\n%s", tt.want, out)
			}
		})
	}
}

func TestRunQuitResetsSession(t *testing.T) {
	svc := newFake()
	res, _, sess, err := run(t, svc, "1\nq\n")
	if !errors.Is(err, ErrQuit) {
		t.Fatalf("Run() error = %v, want ErrQuit", err)
	}
	if res != nil {
		t.Errorf("result = %+v, want nil", res)
	}
	if sess.Phase() != session.PhaseEmpty {
		t.Errorf("phase = %s, want empty", sess.Phase())
	}
	if len(svc.submits) != 0 {
		t.Error("quit should not submit")
	}
}

func TestRunRetriesFailedSubmit(t *testing.T) {
	svc := newFake()
	svc.failFirst = true
	res, out, _, err := run(t, svc, "2\nn\n1\nn\n2\ns\ns\n")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out, "Submission failed") {
		t.Errorf("expected failure notice\n%s", out)
	}
	if res == nil || res.Score != 100 {
		t.Fatalf("result = %+v", res)
	}
	if len(svc.submits) != 2 {
		t.Fatalf("expected 2 submits, got %d", len(svc.submits))
	}
	if svc.submits[0].IdempotencyKey == "" || svc.submits[0].IdempotencyKey != svc.submits[1].IdempotencyKey {
		t.Errorf("retry should reuse the attempt key: %q vs %q",
			svc.submits[0].IdempotencyKey, svc.submits[1].IdempotencyKey)
	}
}

func TestRunUnknownQuiz(t *testing.T) {
	svc := newFake()
	sess := session.New(svc)
	var out bytes.Buffer
	_, err := New(sess, strings.NewReader(""), &out).Run(context.Background(), "missing")
	if !model.IsKind(err, model.KindNotFound) {
		t.Fatalf("Run() error = %v, want not-found", err)
	}
}

func TestPrintResultWithoutQuestions(t *testing.T) {
	two := 2
	res := &model.Result{
		Score:          50,
		TotalQuestions: 2,
		CorrectAnswers: 1,
		Answers: []model.ResultAnswer{
			{QuestionID: "a", Question: "A?", UserAnswer: &two, CorrectAnswer: 2, IsCorrect: true},
			{QuestionID: "b", Question: "B?", CorrectAnswer: 0},
		},
	}
	var out bytes.Buffer
	PrintResult(&out, res, nil)
	got := out.String()
	for _, want := range []string{
		"Score: 50.0% (1 of 2 correct)",
		"1. A? [correct]\n   Your answer: 3\n",
		"2. B? [wrong]\n   Your answer: (none)\n   Correct answer: 1\n",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q\n%s", want, got)
		}
	}
}

func TestPrintHistory(t *testing.T) {
	var out bytes.Buffer
	PrintHistory(&out, nil)
	if !strings.Contains(out.String(), "No quizzes taken yet.") {
		t.Errorf("empty history output = %q", out.String())
	}

	out.Reset()
	PrintHistory(&out, []model.HistoryEntry{{ID: "h1", QuizID: "quiz-1", Score: 75, CorrectAnswers: 3, TotalQuestions: 4}})
	if !strings.Contains(out.String(), "h1") || !strings.Contains(out.String(), "75.0%  (3/4)") {
		t.Errorf("history output = %q", out.String())
	}
}
