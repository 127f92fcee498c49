package grading

import (
	"math"
	"testing"

	"github.com/pavelanni/learnquiz/internal/model"
)

func questions() []model.Question {
	expl := "see chapter 2"
	return []model.Question{
		{ID: "a", Question: "Q1", Options: []string{"w", "x", "y", "z"}, CorrectAnswer: 2},
		{ID: "b", Question: "Q2", Options: []string{"w", "x", "y", "z"}, CorrectAnswer: 1, Explanation: &expl},
		{ID: "c", Question: "Q3", Options: []string{"w", "x", "y", "z"}, CorrectAnswer: 3},
	}
}

func ans(id string, opt int) model.Answer {
	return model.Answer{QuestionID: id, Answer: opt}
}

func TestGrade(t *testing.T) {
	tests := []struct {
		name        string
		answers     []model.Answer
		wantCorrect int
		wantScore   float64
	}{
		{"none answered", nil, 0, 0},
		{"all correct", []model.Answer{ans("a", 2), ans("b", 1), ans("c", 3)}, 3, 100},
		{"two of three", []model.Answer{ans("a", 2), ans("b", 0), ans("c", 3)}, 2, 200.0 / 3},
		{"unknown ids ignored", []model.Answer{ans("zz", 1), ans("a", 2)}, 1, 100.0 / 3},
		{"first duplicate wins", []model.Answer{ans("a", 0), ans("a", 2)}, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Grade(questions(), tt.answers)
			if out.CorrectAnswers != tt.wantCorrect {
				t.Errorf("CorrectAnswers = %d, want %d", out.CorrectAnswers, tt.wantCorrect)
			}
			if math.Abs(out.Score-tt.wantScore) > 1e-9 {
				t.Errorf("Score = %f, want %f", out.Score, tt.wantScore)
			}
			if out.TotalQuestions != 3 || len(out.Answers) != 3 {
				t.Errorf("expected 3 graded questions, got %d/%d", out.TotalQuestions, len(out.Answers))
			}
		})
	}
}

func TestGradeBreakdown(t *testing.T) {
	out := Grade(questions(), []model.Answer{{QuestionID: "b", Answer: 1}})

	if out.Answers[0].UserAnswer != nil || out.Answers[0].IsCorrect {
		t.Errorf("unanswered question graded as %+v", out.Answers[0])
	}
	b := out.Answers[1]
	if b.UserAnswer == nil || *b.UserAnswer != 1 || !b.IsCorrect {
		t.Errorf("answered question graded as %+v", b)
	}
	if b.Explanation == nil || *b.Explanation != "see chapter 2" {
		t.Error("explanation should be carried into the breakdown")
	}
	if b.Question != "Q2" || b.CorrectAnswer != 1 {
		t.Errorf("breakdown fields = %+v", b)
	}
}

func TestGradeEmptyQuiz(t *testing.T) {
	out := Grade(nil, []model.Answer{{QuestionID: "a", Answer: 1}})
	if out.Score != 0 || out.TotalQuestions != 0 {
		t.Errorf("Grade(nil) = %+v", out)
	}
}
