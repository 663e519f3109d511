package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "remindbot/pkg/logx"
)

// compactEvery is the number of journal appends between snapshot rewrites.
const compactEvery = 500

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.tasks.snapshot.json (periodic snapshot)
//   - <prefix>.tasks.journal.jsonl (append-only journal)
//
// On open the snapshot is loaded and the journal replayed over it. A writable
// handle holds an exclusive lock on the journal for its lifetime.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	snapshotPath string
	journal      *os.File // nil when read-only
	tasks        taskIndex
	readOnly     bool
	closed       bool
	writes       int
	pending      int // appends since the last compaction
}

type journalOp string

const (
	opCreate journalOp = "create"
	opDelete journalOp = "delete"
	opFail   journalOp = "fail"
)

type journalRecord struct {
	Op   journalOp `json:"op"`
	Task *fileTask `json:"task,omitempty"`
	ID   string    `json:"id,omitempty"`
	Err  string    `json:"err,omitempty"`
}

// fileTask is the on-disk shape of Task.
type fileTask struct {
	ID        string    `json:"id"`
	ChatID    int64     `json:"chat_id"`
	Message   string    `json:"message"`
	ExecAt    time.Time `json:"exec_at"`
	CreatedAt time.Time `json:"created_at"`
	Attempts  int       `json:"attempts,omitempty"`
	LastError string    `json:"last_error,omitempty"`
}

func toFileTask(t Task) *fileTask {
	return &fileTask{
		ID:        t.ID,
		ChatID:    t.ChatID,
		Message:   t.Message,
		ExecAt:    t.ExecAt,
		CreatedAt: t.CreatedAt,
		Attempts:  t.Attempts,
		LastError: t.LastError,
	}
}

func (f *fileTask) task() Task {
	return Task{
		ID:        f.ID,
		ChatID:    f.ChatID,
		Message:   f.Message,
		ExecAt:    f.ExecAt,
		CreatedAt: f.CreatedAt,
		Attempts:  f.Attempts,
		LastError: f.LastError,
	}
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	prefix := filepath.Join(dir, base)

	snapPath := prefix + ".tasks.snapshot.json"
	journalPath := prefix + ".tasks.journal.jsonl"

	if cfg.ReadOnly {
		tasks, err := loadFileTasks(snapPath, journalPath, log)
		if err != nil {
			return nil, err
		}
		log.Debug("file store opened read-only", logx.String("prefix", prefix), logx.Int("tasks", len(tasks)))
		return &fileStore{log: log, snapshotPath: snapPath, tasks: tasks, readOnly: true}, nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	if err := lockFile(jf); err != nil {
		_ = jf.Close()
		return nil, err
	}

	tasks := taskIndex{}
	if err := loadSnapshot(snapPath, tasks); err != nil && !errors.Is(err, os.ErrNotExist) {
		_ = jf.Close()
		return nil, err
	}
	end, err := replayJournal(jf, tasks, log)
	if err != nil {
		_ = jf.Close()
		return nil, err
	}
	if err := trimTornTail(jf, end, log); err != nil {
		_ = jf.Close()
		return nil, err
	}

	log.Debug("file store opened", logx.String("prefix", prefix), logx.Int("tasks", len(tasks)))
	return &fileStore{
		log:          log,
		snapshotPath: snapPath,
		journal:      jf,
		tasks:        tasks,
	}, nil
}

// loadFileTasks reads the snapshot and journal without opening anything for write.
func loadFileTasks(snapPath, journalPath string, log logx.Logger) (taskIndex, error) {
	tasks := taskIndex{}
	if err := loadSnapshot(snapPath, tasks); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	f, err := os.Open(journalPath)
	if errors.Is(err, os.ErrNotExist) {
		return tasks, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if _, err := replayJournal(f, tasks, log); err != nil {
		return nil, err
	}
	return tasks, nil
}

// trimTornTail cuts the journal back to the end of its last complete record
// so the next append starts on a fresh line.
func trimTornTail(f *os.File, end int64, log logx.Logger) error {
	st, err := f.Stat()
	if err != nil {
		return err
	}
	if st.Size() == end {
		return nil
	}
	log.Warn("truncating torn journal tail", logx.Int64("size", st.Size()), logx.Int64("keep", end))
	if err := f.Truncate(end); err != nil {
		return err
	}
	return f.Sync()
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.journal == nil {
		return nil
	}
	// Leave a fresh snapshot behind so the next open doesn't replay a long journal.
	if s.pending > 0 {
		if err := s.compactLocked(); err != nil {
			s.log.Warn("compact on close failed", logx.Err(err))
		}
	}
	err := s.journal.Close()
	s.journal = nil
	return err
}

func (s *fileStore) Create(ctx context.Context, t Task) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	t = newTask(t)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.appendLocked(journalRecord{Op: opCreate, Task: toFileTask(t)}); err != nil {
		return "", err
	}
	s.tasks[t.ID] = t
	s.maybeCompactLocked()
	return t.ID, nil
}

func (s *fileStore) FindDueBefore(ctx context.Context, before time.Time) ([]Task, error) {
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

func (s *fileStore) Delete(ctx context.Context, id string) error {
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
	if err := s.appendLocked(journalRecord{Op: opDelete, ID: id}); err != nil {
		return err
	}
	delete(s.tasks, id)
	s.maybeCompactLocked()
	return nil
}

func (s *fileStore) MarkFailed(ctx context.Context, id string, cause string) (Task, error) {
	if err := ctx.Err(); err != nil {
		return Task{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Task{}, ErrClosed
	}
	if _, ok := s.tasks[id]; !ok {
		return Task{}, ErrNotFound
	}
	if err := s.appendLocked(journalRecord{Op: opFail, ID: id, Err: cause}); err != nil {
		return Task{}, err
	}
	t, _ := s.tasks.markFailed(id, cause)
	s.maybeCompactLocked()
	return t, nil
}

func (s *fileStore) List(ctx context.Context) ([]Task, error) {
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

// appendLocked writes one journal record and fsyncs it before the in-memory
// index is updated, so an acknowledged write survives a crash.
func (s *fileStore) appendLocked(r journalRecord) error {
	if s.closed {
		return ErrClosed
	}
	if s.readOnly {
		return ErrReadOnly
	}
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	if _, err := s.journal.Write(b); err != nil {
		return err
	}
	if err := s.journal.Sync(); err != nil {
		return err
	}
	s.writes++
	s.pending++
	return nil
}

// maybeCompactLocked must run after the index reflects the last appended record.
func (s *fileStore) maybeCompactLocked() {
	if s.writes == 0 || s.writes%compactEvery != 0 {
		return
	}
	// Records are already durable; a failed compaction only costs replay time.
	if err := s.compactLocked(); err != nil {
		s.log.Debug("task journal compact failed", logx.Err(err))
	}
}

// compactLocked rewrites the snapshot from the index and truncates the journal.
func (s *fileStore) compactLocked() error {
	snap := make([]*fileTask, 0, len(s.tasks))
	for _, t := range s.tasks.all() {
		snap = append(snap, toFileTask(t))
	}

	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(snap); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	if err := s.journal.Truncate(0); err != nil {
		return err
	}
	if _, err := s.journal.Seek(0, io.SeekEnd); err != nil {
		return err
	}
	s.pending = 0
	return nil
}

func loadSnapshot(path string, out taskIndex) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var snap []*fileTask
	if err := json.NewDecoder(f).Decode(&snap); err != nil {
		return err
	}
	for _, ft := range snap {
		if ft == nil || ft.ID == "" {
			continue
		}
		out[ft.ID] = ft.task()
	}
	return nil
}

// replayJournal applies every complete record in r to out and returns the
// byte offset just past the last newline. A trailing fragment without a
// newline is a write torn by a crash and is not applied.
func replayJournal(r io.Reader, out taskIndex, log logx.Logger) (int64, error) {
	br := bufio.NewReaderSize(r, 64*1024)
	var end int64
	line := 0
	for {
		b, err := br.ReadBytes('\n')
		if errors.Is(err, io.EOF) {
			if len(b) > 0 {
				log.Warn("ignoring torn journal tail", logx.Int("line", line+1), logx.Int("bytes", len(b)))
			}
			return end, nil
		}
		if err != nil {
			return end, err
		}
		line++
		end += int64(len(b))

		var rec journalRecord
		if err := json.Unmarshal(b, &rec); err != nil {
			log.Warn("skipping unreadable journal record", logx.Int("line", line), logx.Err(err))
			continue
		}
		switch rec.Op {
		case opCreate:
			if rec.Task != nil && rec.Task.ID != "" {
				out[rec.Task.ID] = rec.Task.task()
			}
		case opDelete:
			delete(out, rec.ID)
		case opFail:
			out.markFailed(rec.ID, rec.Err)
		}
	}
}
