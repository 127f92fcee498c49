package model

import "strings"

// Validate checks that the quiz has a title and every question has at least
// two options and a correct answer among them.
func (qi QuizImport) Validate() error {
	if strings.TrimSpace(qi.Title) == "" {
		return Validation("validate quiz", "title is required")
	}
	for i, q := range qi.Questions {
		if strings.TrimSpace(q.Question) == "" {
			return Validation("validate quiz", "question %d: text is required", i+1)
		}
		if len(q.Options) < 2 {
			return Validation("validate quiz", "question %d: need at least 2 options, got %d", i+1, len(q.Options))
		}
		if q.CorrectAnswer < 0 || q.CorrectAnswer >= len(q.Options) {
			return Validation("validate quiz", "question %d: correct_answer %d out of range", i+1, q.CorrectAnswer)
		}
	}
	return nil
}

// Build converts the import into a quiz and its questions, numbered in file order.
func (qi QuizImport) Build() (Quiz, []Question) {
	quiz := Quiz{
		ID:        qi.ID,
		CourseID:  qi.CourseID,
		ChapterID: qi.ChapterID,
		Title:     qi.Title,
		Prompt:    qi.Prompt,
	}
	questions := make([]Question, 0, len(qi.Questions))
	for i, q := range qi.Questions {
		questions = append(questions, Question{
			Question:      q.Question,
			Options:       q.Options,
			CorrectAnswer: q.CorrectAnswer,
			Explanation:   q.Explanation,
			Order:         i + 1,
		})
	}
	return quiz, questions
}
