package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("task not found")
	ErrClosed   = errors.New("store closed")
	ErrReadOnly = errors.New("store opened read-only")
	ErrLocked   = errors.New("store is in use by another process")
)

// Config configures storage.
//
// Driver values:
//   - "memory": in-process only, lost on restart
//   - "file": snapshot + journal next to Path
//   - "sqlite": SQLite database file at Path
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
	// ReadOnly opens the file driver without taking its writer lock. Such a
	// handle never writes or compacts, so it is safe next to a running bot.
	ReadOnly bool
}

// TaskState is the lifecycle of a task. Only pending tasks are stored;
// delivered tasks are gone.
type TaskState string

const (
	StatePending   TaskState = "pending"
	StateDelivered TaskState = "delivered"
)

// Task is one scheduled reminder.
//
// ID, ChatID, Message and ExecAt are fixed at creation. Attempts and
// LastError are delivery bookkeeping and never affect when a task is due.
type Task struct {
	ID        string
	ChatID    int64
	Message   string
	ExecAt    time.Time
	CreatedAt time.Time
	Attempts  int
	LastError string
}

// Store is the persistence contract used by the reminder core.
type Store interface {
	// Create persists t and returns the assigned ID. t.ID is ignored.
	Create(ctx context.Context, t Task) (string, error)
	// FindDueBefore returns tasks with ExecAt strictly before the given time,
	// oldest first.
	FindDueBefore(ctx context.Context, before time.Time) ([]Task, error)
	// Delete removes a task. Missing IDs report ErrNotFound.
	Delete(ctx context.Context, id string) error
	// MarkFailed records a failed delivery attempt and returns the updated task.
	MarkFailed(ctx context.Context, id string, cause string) (Task, error)
	// List returns every pending task, oldest ExecAt first.
	List(ctx context.Context) ([]Task, error)
	Close() error
}
