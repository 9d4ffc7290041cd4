// Package bank owns persistent quiz-portal data: the question bank,
// submitted results, and the proctoring audit trail.
package bank

import (
	"context"
	"errors"

	"github.com/examind/quiz-portal/internal/proctor"
	"github.com/examind/quiz-portal/internal/quiz"
)

var (
	ErrQuestionNotFound = errors.New("question not found")
	ErrResultNotFound   = errors.New("result not found")
)

type ResultListOpts struct {
	UserID string // filter to one student's results
	Limit  int
	Offset int
}

// Store is everything the handlers and the session engine need from
// storage. The SQL store is the real one; the in-memory store backs
// tests and offline demos.
type Store interface {
	PutQuestion(ctx context.Context, q quiz.Question) error
	GetQuestion(ctx context.Context, id string) (quiz.Question, error)
	DeleteQuestion(ctx context.Context, id string) error
	FetchQuestions(ctx context.Context) ([]quiz.Question, error)

	SaveResult(ctx context.Context, res quiz.Result) error
	GetResult(ctx context.Context, id string) (quiz.Result, error)
	ListResults(ctx context.Context, opts ResultListOpts) ([]quiz.Result, error)

	SaveEvent(ctx context.Context, ev proctor.EventRecord) error
	ListEvents(ctx context.Context, sessionID string) ([]proctor.EventRecord, error)
}
