package model

// ResultsExport is the top-level JSON structure for quiz result export.
type ResultsExport struct {
	ExportID   string          `json:"export_id"`
	Date       string          `json:"date"`
	NumQuizzes int             `json:"num_quizzes"`
	Results    []StudentResult `json:"results"`
}

// StudentResult holds one graded attempt together with its owner.
type StudentResult struct {
	Username      string `json:"username"`
	DisplayName   string `json:"display_name"`
	QuizTitle     string `json:"quiz_title"`
	AttemptNumber int    `json:"attempt_number"`
	Result
}
