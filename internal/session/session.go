// Package session implements the client-side state of one quiz attempt:
// loading questions, navigating between them, recording answers and
// submitting the answer set for grading.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/pavelanni/learnquiz/internal/model"
)

// Phase is the lifecycle stage of a Session.
type Phase string

const (
	PhaseEmpty      Phase = "empty"
	PhaseLoading    Phase = "loading"
	PhaseInProgress Phase = "in_progress"
	PhaseSubmitting Phase = "submitting"
	PhaseCompleted  Phase = "completed"
)

var (
	// ErrNotInProgress is returned when an operation needs a loaded, unsubmitted quiz.
	ErrNotInProgress = errors.New("quiz is not in progress")
	// ErrSubmitInProgress is returned when Submit is called while a submission is in flight.
	ErrSubmitInProgress = errors.New("submission already in progress")
	// ErrIncomplete is returned by Submit under WithRequireAllAnswered when questions are unanswered.
	ErrIncomplete = errors.New("not all questions are answered")
	// ErrStale is returned when a response arrives after the session was reset or restarted.
	ErrStale = errors.New("response discarded: session was reset")
)

// Service is the remote quiz service a Session talks to.
type Service interface {
	GetQuiz(ctx context.Context, quizID string) (*model.Quiz, error)
	GetQuestions(ctx context.Context, quizID string) ([]model.Question, error)
	Submit(ctx context.Context, quizID string, sub model.Submission) (*model.Result, error)
}

// Option configures a Session.
type Option func(*Session)

// WithRequireAllAnswered makes Submit reject answer sets that leave questions unanswered.
func WithRequireAllAnswered() Option {
	return func(s *Session) { s.requireAll = true }
}

// WithLogger sets the logger used for phase transitions.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.log = l }
}

// Session holds one quiz attempt. It is safe for use from multiple goroutines;
// network calls run without holding the lock.
type Session struct {
	svc        Service
	requireAll bool
	log        *slog.Logger

	mu         sync.Mutex
	gen        uint64
	phase      Phase
	quiz       *model.Quiz
	questions  []model.Question
	index      int
	answers    map[string]int
	result     *model.Result
	attemptKey string

	// submitFailed is set after a failed Submit until the answer set changes.
	submitFailed bool
}

// New creates an empty session backed by svc.
func New(svc Service, opts ...Option) *Session {
	s := &Session{
		svc:     svc,
		log:     slog.Default(),
		phase:   PhaseEmpty,
		answers: make(map[string]int),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// clear resets every state field. Caller holds mu.
func (s *Session) clear() {
	s.phase = PhaseEmpty
	s.quiz = nil
	s.questions = nil
	s.index = 0
	s.answers = make(map[string]int)
	s.result = nil
	s.attemptKey = ""
	s.submitFailed = false
}

// Start loads the quiz and its questions and begins a new attempt.
// Any previous attempt is discarded. On failure the session is left empty.
func (s *Session) Start(ctx context.Context, quizID string) error {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.clear()
	if quizID == "" {
		s.mu.Unlock()
		return model.Validation("start quiz", "empty quiz id")
	}
	s.phase = PhaseLoading
	s.mu.Unlock()
	s.log.Debug("loading quiz", "quiz_id", quizID)

	var (
		wg      sync.WaitGroup
		quiz    *model.Quiz
		qs      []model.Question
		quizErr error
		qsErr   error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		quiz, quizErr = s.svc.GetQuiz(ctx, quizID)
	}()
	go func() {
		defer wg.Done()
		qs, qsErr = s.svc.GetQuestions(ctx, quizID)
	}()
	wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return ErrStale
	}

	err := errors.Join(quizErr, qsErr)
	if err == nil && quiz == nil {
		err = &model.Error{Kind: model.KindServer, Op: "start quiz", Msg: "empty quiz"}
	}
	if err == nil && len(qs) == 0 {
		err = model.Validation("start quiz", "quiz %s has no questions", quizID)
	}
	if err != nil {
		s.clear()
		s.log.Debug("quiz load failed", "quiz_id", quizID, "error", err)
		return fmt.Errorf("start quiz %s: %w", quizID, err)
	}

	sorted := make([]model.Question, len(qs))
	copy(sorted, qs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })

	s.quiz = quiz
	s.questions = sorted
	s.index = 0
	s.answers = make(map[string]int, len(sorted))
	s.result = nil
	s.attemptKey = uuid.NewString()
	s.phase = PhaseInProgress
	s.log.Debug("quiz started", "quiz_id", quizID, "questions", len(sorted), "attempt", s.attemptKey)
	return nil
}

// navigable reports whether the question index may move. Caller holds mu.
func (s *Session) navigable() bool {
	return len(s.questions) > 0 && (s.phase == PhaseInProgress || s.phase == PhaseCompleted)
}

// Next moves to the following question. It does nothing at the last question.
func (s *Session) Next() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.navigable() {
		s.index = min(s.index+1, len(s.questions)-1)
	}
}

// Previous moves to the preceding question. It does nothing at the first question.
func (s *Session) Previous() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.navigable() {
		s.index = max(s.index-1, 0)
	}
}

// GoTo moves to question i, clamped into the valid range.
func (s *Session) GoTo(i int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.navigable() {
		s.index = max(0, min(i, len(s.questions)-1))
	}
}

// SetAnswer records option as the selection for questionID, replacing any
// earlier selection. It does not move the current index.
func (s *Session) SetAnswer(questionID string, option int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseInProgress {
		return ErrNotInProgress
	}
	q, ok := s.lookup(questionID)
	if !ok {
		return model.Validation("set answer", "unknown question %q", questionID)
	}
	if !q.ValidOption(option) {
		return model.Validation("set answer", "option %d out of range [0, %d] for question %q",
			option, len(q.Options)-1, questionID)
	}
	if prev, ok := s.answers[questionID]; s.submitFailed && (!ok || prev != option) {
		s.attemptKey = uuid.NewString()
		s.submitFailed = false
		s.log.Debug("answers changed after failed submit, new attempt key", "attempt", s.attemptKey)
	}
	s.answers[questionID] = option
	return nil
}

// lookup finds a loaded question by id. Caller holds mu.
func (s *Session) lookup(id string) (model.Question, bool) {
	for _, q := range s.questions {
		if q.ID == id {
			return q, true
		}
	}
	return model.Question{}, false
}

// orderedAnswers lists recorded answers in question order. Caller holds mu.
func (s *Session) orderedAnswers() []model.Answer {
	out := make([]model.Answer, 0, len(s.answers))
	for _, q := range s.questions {
		if a, ok := s.answers[q.ID]; ok {
			out = append(out, model.Answer{QuestionID: q.ID, Answer: a})
		}
	}
	return out
}

// Submit sends the answer set for grading and stores the returned result.
// On failure the session returns to in-progress with its answers unchanged.
// A retry with the same answers reuses the attempt key, so the service can
// recognize a submission it already graded. Changing an answer after a
// failed submit issues a new key.
func (s *Session) Submit(ctx context.Context) (*model.Result, error) {
	s.mu.Lock()
	switch s.phase {
	case PhaseInProgress:
	case PhaseSubmitting:
		s.mu.Unlock()
		return nil, ErrSubmitInProgress
	default:
		s.mu.Unlock()
		return nil, ErrNotInProgress
	}
	if s.requireAll && len(s.answers) < len(s.questions) {
		answered, total := len(s.answers), len(s.questions)
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %d of %d answered", ErrIncomplete, answered, total)
	}
	gen := s.gen
	quizID := s.quiz.ID
	sub := model.Submission{
		Answers:        s.orderedAnswers(),
		IdempotencyKey: s.attemptKey,
	}
	s.phase = PhaseSubmitting
	s.mu.Unlock()
	s.log.Debug("submitting quiz", "quiz_id", quizID, "answers", len(sub.Answers))

	res, err := s.svc.Submit(ctx, quizID, sub)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return nil, ErrStale
	}
	if err != nil {
		s.phase = PhaseInProgress
		s.submitFailed = true
		s.log.Debug("submission failed", "quiz_id", quizID, "error", err)
		return nil, fmt.Errorf("submit quiz %s: %w", quizID, err)
	}
	if res == nil {
		s.phase = PhaseInProgress
		s.submitFailed = true
		return nil, &model.Error{Kind: model.KindServer, Op: "submit quiz", Msg: "empty result"}
	}
	s.result = res
	s.phase = PhaseCompleted
	s.log.Debug("quiz completed", "quiz_id", quizID, "score", res.Score)
	return copyResult(res), nil
}

// Reset discards all state. Responses to calls made before Reset are dropped.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.clear()
}

// Phase returns the current lifecycle stage.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Quiz returns the loaded quiz, or nil.
func (s *Session) Quiz() *model.Quiz {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.quiz == nil {
		return nil
	}
	q := *s.quiz
	return &q
}

// Questions returns the loaded questions in display order.
func (s *Session) Questions() []model.Question {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Question, len(s.questions))
	copy(out, s.questions)
	return out
}

// CurrentIndex returns the index of the active question.
func (s *Session) CurrentIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index
}

// CurrentQuestion returns the active question, or false when none is loaded.
func (s *Session) CurrentQuestion() (model.Question, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.questions) == 0 {
		return model.Question{}, false
	}
	return s.questions[s.index], true
}

// Answers returns a copy of the recorded selections keyed by question id.
func (s *Session) Answers() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.answers))
	for k, v := range s.answers {
		out[k] = v
	}
	return out
}

// AnswerFor returns the recorded selection for questionID.
func (s *Session) AnswerFor(questionID string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.answers[questionID]
	return a, ok
}

// Result returns a copy of the graded result once the session is completed.
func (s *Session) Result() *model.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyResult(s.result)
}

func copyResult(res *model.Result) *model.Result {
	if res == nil {
		return nil
	}
	r := *res
	r.Answers = append([]model.ResultAnswer(nil), res.Answers...)
	return &r
}

// Progress returns the number of answered questions and the total.
func (s *Session) Progress() (answered, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.answers), len(s.questions)
}

// AttemptKey returns the idempotency key of the current attempt.
func (s *Session) AttemptKey() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attemptKey
}
