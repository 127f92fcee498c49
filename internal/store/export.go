package store

import (
	"fmt"
	"strconv"

	"github.com/pavelanni/learnquiz/internal/model"
)

// ExportAllResults builds export-ready results of every user, oldest first.
func (s *Store) ExportAllResults() ([]model.StudentResult, error) {
	rows, err := s.db.Query(`SELECT id FROM results ORDER BY taken_at, rowid`)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Attempt numbers count per user and quiz.
	attempts := make(map[string]int)
	users := make(map[string]*model.User)
	titles := make(map[string]string)

	var results []model.StudentResult
	for _, id := range ids {
		r, err := s.GetResult(id)
		if err != nil {
			return nil, fmt.Errorf("get result %s: %w", id, err)
		}
		if r == nil {
			continue
		}

		u, ok := users[r.UserID]
		if !ok {
			uid, err := strconv.ParseInt(r.UserID, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("result %s: bad user id %q", id, r.UserID)
			}
			u, err = s.GetUserByID(uid)
			if err != nil {
				return nil, fmt.Errorf("get user %d: %w", uid, err)
			}
			users[r.UserID] = u
		}

		title, ok := titles[r.QuizID]
		if !ok {
			q, err := s.GetQuiz(r.QuizID)
			if err != nil {
				return nil, fmt.Errorf("get quiz %s: %w", r.QuizID, err)
			}
			if q != nil {
				title = q.Title
			}
			titles[r.QuizID] = title
		}

		attempts[r.UserID+"/"+r.QuizID]++

		sr := model.StudentResult{
			QuizTitle:     title,
			AttemptNumber: attempts[r.UserID+"/"+r.QuizID],
			Result:        *r,
		}
		if u != nil {
			sr.Username = u.Username
			sr.DisplayName = u.DisplayName
		}
		results = append(results, sr)
	}

	return results, nil
}
