// Package runner drives a quiz session from a line-oriented terminal.
package runner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pavelanni/learnquiz/internal/model"
	"github.com/pavelanni/learnquiz/internal/session"
)

// ErrQuit is returned by Run when the user leaves before submitting.
var ErrQuit = errors.New("quiz abandoned")

const helpText = `Commands:
  <n>     select option n
  n, p    next / previous question
  g <n>   go to question n
  s       submit answers
  q       quit without submitting
  ?       show this help
`

// Runner reads commands from in and writes the quiz to out.
type Runner struct {
	sess *session.Session
	in   *bufio.Scanner
	out  io.Writer
}

// New creates a runner for sess.
func New(sess *session.Session, in io.Reader, out io.Writer) *Runner {
	return &Runner{sess: sess, in: bufio.NewScanner(in), out: out}
}

// Run starts quizID and processes commands until the answers are submitted
// or the user quits. On quit or end of input the session is reset and
// ErrQuit is returned.
func (r *Runner) Run(ctx context.Context, quizID string) (*model.Result, error) {
	if err := r.sess.Start(ctx, quizID); err != nil {
		return nil, err
	}
	quiz := r.sess.Quiz()
	fmt.Fprintf(r.out, "%s\n", quiz.Title)
	if quiz.Prompt != "" {
		fmt.Fprintf(r.out, "%s\n", quiz.Prompt)
	}
	fmt.Fprint(r.out, "Type ? for help.\n")

	for {
		r.render()
		fmt.Fprint(r.out, "> ")
		if !r.in.Scan() {
			if err := r.in.Err(); err != nil {
				r.sess.Reset()
				return nil, fmt.Errorf("read input: %w", err)
			}
			fmt.Fprintln(r.out)
			r.sess.Reset()
			return nil, ErrQuit
		}

		res, done, err := r.handle(ctx, strings.TrimSpace(r.in.Text()))
		if err != nil {
			return nil, err
		}
		if done {
			return res, nil
		}
	}
}

// handle executes one command line. done is set when the attempt ended.
func (r *Runner) handle(ctx context.Context, line string) (res *model.Result, done bool, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, false, nil
	}

	switch cmd := strings.ToLower(fields[0]); cmd {
	case "n", "next":
		r.sess.Next()
	case "p", "prev", "previous":
		r.sess.Previous()
	case "g", "goto":
		if len(fields) != 2 {
			fmt.Fprint(r.out, "Usage: g <question number>\n")
			break
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil {
			fmt.Fprintf(r.out, "Not a number: %q\n", fields[1])
			break
		}
		r.sess.GoTo(n - 1)
	case "s", "submit":
		return r.submit(ctx)
	case "q", "quit":
		r.sess.Reset()
		return nil, false, ErrQuit
	case "?", "h", "help":
		fmt.Fprint(r.out, helpText)
	default:
		n, err := strconv.Atoi(cmd)
		if err != nil {
			fmt.Fprintf(r.out, "Unknown command %q. Type ? for help.\n", line)
			break
		}
		q, ok := r.sess.CurrentQuestion()
		if !ok {
			break
		}
		if err := r.sess.SetAnswer(q.ID, n-1); err != nil {
			if model.IsKind(err, model.KindValidation) {
				fmt.Fprintf(r.out, "Choose an option between 1 and %d.\n", len(q.Options))
				break
			}
			return nil, false, err
		}
	}
	return nil, false, nil
}

func (r *Runner) submit(ctx context.Context) (*model.Result, bool, error) {
	answered, total := r.sess.Progress()
	if answered < total {
		fmt.Fprintf(r.out, "Answer all questions before submitting (%d of %d answered).\n", answered, total)
		return nil, false, nil
	}

	fmt.Fprint(r.out, "Submitting...\n")
	res, err := r.sess.Submit(ctx)
	if err != nil {
		// The session keeps the answers; the user may retry.
		if errors.Is(err, session.ErrStale) || ctx.Err() != nil {
			return nil, false, err
		}
		fmt.Fprintf(r.out, "Submission failed: %v\nType s to try again.\n", err)
		return nil, false, nil
	}
	PrintResult(r.out, res, r.sess.Questions())
	return res, true, nil
}

// render prints the current question with its options and the recorded selection.
func (r *Runner) render() {
	q, ok := r.sess.CurrentQuestion()
	if !ok {
		return
	}
	answered, total := r.sess.Progress()
	sel, hasSel := r.sess.AnswerFor(q.ID)

	fmt.Fprintf(r.out, "\nQuestion %d of %d (%d answered)\n", r.sess.CurrentIndex()+1, total, answered)
	fmt.Fprintf(r.out, "%s\n", q.Question)
	for i, opt := range q.Options {
		mark := " "
		if hasSel && sel == i {
			mark = "x"
		}
		fmt.Fprintf(r.out, "  [%s] %d) %s\n", mark, i+1, opt)
	}
}

// PrintResult writes a graded result with its per-question breakdown.
// questions supply option texts when available and may be nil.
func PrintResult(w io.Writer, res *model.Result, questions []model.Question) {
	byID := make(map[string]model.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}
	option := func(qid string, idx int) string {
		if q, ok := byID[qid]; ok && q.ValidOption(idx) {
			return fmt.Sprintf("%d) %s", idx+1, q.Options[idx])
		}
		return strconv.Itoa(idx + 1)
	}

	fmt.Fprintf(w, "\nScore: %.1f%% (%d of %d correct)\n", res.Score, res.CorrectAnswers, res.TotalQuestions)
	for i, a := range res.Answers {
		status := "wrong"
		if a.IsCorrect {
			status = "correct"
		}
		fmt.Fprintf(w, "\n%d. %s [%s]\n", i+1, a.Question, status)
		if a.UserAnswer == nil {
			fmt.Fprint(w, "   Your answer: (none)\n")
		} else {
			fmt.Fprintf(w, "   Your answer: %s\n", option(a.QuestionID, *a.UserAnswer))
		}
		if !a.IsCorrect {
			fmt.Fprintf(w, "   Correct answer: %s\n", option(a.QuestionID, a.CorrectAnswer))
		}
		if a.Explanation != nil && *a.Explanation != "" {
			fmt.Fprintf(w, "   %s\n", *a.Explanation)
		}
	}
}

// PrintHistory writes a table of past results.
func PrintHistory(w io.Writer, entries []model.HistoryEntry) {
	if len(entries) == 0 {
		fmt.Fprint(w, "No quizzes taken yet.\n")
		return
	}
	for _, e := range entries {
		fmt.Fprintf(w, "%s  %s  quiz %s  %5.1f%%  (%d/%d)\n",
			e.ID, e.TakenAt.Local().Format("2006-01-02 15:04"), e.QuizID, e.Score, e.CorrectAnswers, e.TotalQuestions)
	}
}
