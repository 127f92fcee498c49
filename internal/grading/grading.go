// Package grading scores multiple-choice answer sets.
package grading

import (
	"github.com/pavelanni/learnquiz/internal/model"
)

// Outcome holds the graded totals of one submission.
type Outcome struct {
	Score          float64
	TotalQuestions int
	CorrectAnswers int
	Answers        []model.ResultAnswer
}

// Grade scores answers against questions. Questions are graded in the order
// given; an answer is matched by question id and the first match wins.
// Unanswered questions count as incorrect. Answers for unknown questions are
// ignored.
func Grade(questions []model.Question, answers []model.Answer) Outcome {
	byID := make(map[string]int, len(answers))
	for _, a := range answers {
		if _, seen := byID[a.QuestionID]; !seen {
			byID[a.QuestionID] = a.Answer
		}
	}

	out := Outcome{
		TotalQuestions: len(questions),
		Answers:        make([]model.ResultAnswer, 0, len(questions)),
	}
	for _, q := range questions {
		ra := model.ResultAnswer{
			QuestionID:    q.ID,
			Question:      q.Question,
			CorrectAnswer: q.CorrectAnswer,
			Explanation:   q.Explanation,
		}
		if a, ok := byID[q.ID]; ok {
			ra.UserAnswer = &a
			ra.IsCorrect = a == q.CorrectAnswer
		}
		if ra.IsCorrect {
			out.CorrectAnswers++
		}
		out.Answers = append(out.Answers, ra)
	}

	if out.TotalQuestions > 0 {
		out.Score = float64(out.CorrectAnswers) / float64(out.TotalQuestions) * 100
	}
	return out
}
