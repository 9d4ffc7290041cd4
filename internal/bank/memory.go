package bank

import (
	"context"
	"sort"
	"sync"

	"github.com/examind/quiz-portal/internal/proctor"
	"github.com/examind/quiz-portal/internal/quiz"
)

type memoryStore struct {
	mu        sync.RWMutex
	questions map[string]quiz.Question
	results   map[string]quiz.Result
	events    map[string][]proctor.EventRecord // sessionID -> ordered events
}

// NewInMemoryStore returns a Store backed by mutex-guarded maps.
func NewInMemoryStore() Store {
	return &memoryStore{
		questions: map[string]quiz.Question{},
		results:   map[string]quiz.Result{},
		events:    map[string][]proctor.EventRecord{},
	}
}

func (m *memoryStore) PutQuestion(_ context.Context, q quiz.Question) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.questions[q.ID] = q
	return nil
}

func (m *memoryStore) GetQuestion(_ context.Context, id string) (quiz.Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.questions[id]
	if !ok {
		return quiz.Question{}, ErrQuestionNotFound
	}
	return q, nil
}

func (m *memoryStore) DeleteQuestion(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.questions[id]; !ok {
		return ErrQuestionNotFound
	}
	delete(m.questions, id)
	return nil
}

func (m *memoryStore) FetchQuestions(_ context.Context) ([]quiz.Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]quiz.Question, 0, len(m.questions))
	for _, q := range m.questions {
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memoryStore) SaveResult(_ context.Context, res quiz.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[res.ID] = res
	return nil
}

func (m *memoryStore) GetResult(_ context.Context, id string) (quiz.Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res, ok := m.results[id]
	if !ok {
		return quiz.Result{}, ErrResultNotFound
	}
	return res, nil
}

func (m *memoryStore) ListResults(_ context.Context, opts ResultListOpts) ([]quiz.Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []quiz.Result{}
	for _, res := range m.results {
		if opts.UserID != "" && res.UserID != opts.UserID {
			continue
		}
		out = append(out, res)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CompletedAt.After(out[j].CompletedAt) })
	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return []quiz.Result{}, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(out) {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (m *memoryStore) SaveEvent(_ context.Context, ev proctor.EventRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[ev.SessionID] = append(m.events[ev.SessionID], ev)
	return nil
}

func (m *memoryStore) ListEvents(_ context.Context, sessionID string) ([]proctor.EventRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]proctor.EventRecord{}, m.events[sessionID]...), nil
}
