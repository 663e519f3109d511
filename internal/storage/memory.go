package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// taskIndex is the in-memory task set shared by the memory and file drivers.
// Callers hold their own lock.
type taskIndex map[string]Task

func (ix taskIndex) due(before time.Time) []Task {
	out := make([]Task, 0)
	for _, t := range ix {
		if t.ExecAt.Before(before) {
			out = append(out, t)
		}
	}
	sortTasks(out)
	return out
}

func (ix taskIndex) all() []Task {
	out := make([]Task, 0, len(ix))
	for _, t := range ix {
		out = append(out, t)
	}
	sortTasks(out)
	return out
}

func (ix taskIndex) markFailed(id, cause string) (Task, bool) {
	t, ok := ix[id]
	if !ok {
		return Task{}, false
	}
	t.Attempts++
	t.LastError = cause
	ix[id] = t
	return t, true
}

func sortTasks(ts []Task) {
	sort.Slice(ts, func(i, j int) bool {
		if !ts[i].ExecAt.Equal(ts[j].ExecAt) {
			return ts[i].ExecAt.Before(ts[j].ExecAt)
		}
		return ts[i].ID < ts[j].ID
	})
}

// newTask stamps a fresh ID and creation time on t.
func newTask(t Task) Task {
	t.ID = uuid.NewString()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	t.Attempts = 0
	t.LastError = ""
	return t
}

type memoryStore struct {
	mu     sync.Mutex
	tasks  taskIndex
	closed bool
}

// NewMemory returns a process-local Store.
func NewMemory() Store {
	return &memoryStore{tasks: taskIndex{}}
}

func (s *memoryStore) Create(ctx context.Context, t Task) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrClosed
	}
	t = newTask(t)
	s.tasks[t.ID] = t
	return t.ID, nil
}

func (s *memoryStore) FindDueBefore(ctx context.Context, before time.Time) ([]Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	return s.tasks.due(before), nil
}

func (s *memoryStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, ok := s.tasks[id]; !ok {
		return ErrNotFound
	}
	delete(s.tasks, id)
	return nil
}

func (s *memoryStore) MarkFailed(ctx context.Context, id string, cause string) (Task, error) {
	if err := ctx.Err(); err != nil {
		return Task{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Task{}, ErrClosed
	}
	t, ok := s.tasks.markFailed(id, cause)
	if !ok {
		return Task{}, ErrNotFound
	}
	return t, nil
}

func (s *memoryStore) List(ctx context.Context) ([]Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	return s.tasks.all(), nil
}

func (s *memoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
