package reminder

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"remindbot/internal/eventbus"
	"remindbot/internal/storage"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

const (
	DefaultSweepInterval = 5 * time.Second
	DefaultSendTimeout   = 10 * time.Second
)

// SweeperConfig is the hot-reloadable part of the delivery loop.
type SweeperConfig struct {
	Interval    time.Duration
	SendTimeout time.Duration
	// MaxAttempts removes a task after that many failed sends. 0 retries forever.
	MaxAttempts int
}

func (c SweeperConfig) withDefaults() SweeperConfig {
	if c.Interval <= 0 {
		c.Interval = DefaultSweepInterval
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = DefaultSendTimeout
	}
	if c.MaxAttempts < 0 {
		c.MaxAttempts = 0
	}
	return c
}

// SweepResult counts the outcome of one sweep.
type SweepResult struct {
	Due       int
	Delivered int
	Failed    int
	Dropped   int
}

// Sweeper periodically delivers due tasks and removes them once the
// platform has accepted the message.
type Sweeper struct {
	store  storage.Store
	sender kit.Sender
	bus    eventbus.Bus
	log    logx.Logger
	opts   options

	mu      sync.Mutex
	cfg     SweeperConfig
	c       *cron.Cron
	entry   cron.EntryID
	runCtx  context.Context
	onSweep func(SweepResult)

	// sweepMu serializes Sweep calls from the timer and from callers.
	sweepMu sync.Mutex
}

func NewSweeper(cfg SweeperConfig, store storage.Store, sender kit.Sender, bus eventbus.Bus, log logx.Logger, opts ...Option) *Sweeper {
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Nop{}
	}
	return &Sweeper{
		cfg:    cfg.withDefaults(),
		store:  store,
		sender: sender,
		bus:    bus,
		log:    log,
		opts:   buildOptions(opts),
	}
}

// OnSweep registers fn to run after every timer-driven sweep.
func (s *Sweeper) OnSweep(fn func(SweepResult)) {
	s.mu.Lock()
	s.onSweep = fn
	s.mu.Unlock()
}

func (s *Sweeper) config() SweeperConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Apply swaps the configuration. A changed interval reschedules the timer.
func (s *Sweeper) Apply(cfg SweeperConfig) {
	cfg = cfg.withDefaults()

	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.cfg
	s.cfg = cfg
	if s.c == nil || old.Interval == cfg.Interval {
		return
	}
	s.c.Remove(s.entry)
	if err := s.scheduleLocked(); err != nil {
		s.log.Error("reschedule failed", logx.Err(err))
		return
	}
	s.log.Info("sweep interval changed", logx.Duration("from", old.Interval), logx.Duration("to", cfg.Interval))
}

// Start arms the periodic sweep. Sweeps run on ctx until Stop.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	s.runCtx = ctx
	s.c = cron.New(
		cron.WithLocation(s.opts.loc),
		cron.WithChain(cron.Recover(cronLogger{s.log}), cron.SkipIfStillRunning(cronLogger{s.log})),
	)
	if err := s.scheduleLocked(); err != nil {
		s.c = nil
		return err
	}
	s.c.Start()
	s.log.Info("sweeper started", logx.Duration("interval", s.cfg.Interval))
	return nil
}

func (s *Sweeper) scheduleLocked() error {
	id, err := s.c.AddFunc(fmt.Sprintf("@every %s", s.cfg.Interval), s.tick)
	if err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	s.entry = id
	return nil
}

// Stop halts the timer and waits for a running sweep, bounded by ctx.
func (s *Sweeper) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		s.log.Warn("sweeper stop timed out", logx.Err(ctx.Err()))
	}
}

func (s *Sweeper) tick() {
	s.mu.Lock()
	ctx := s.runCtx
	hook := s.onSweep
	s.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}

	start := time.Now()
	res, err := s.Sweep(ctx)
	if err != nil {
		s.log.Error("sweep failed", logx.Err(err))
	}
	if res.Due > 0 {
		s.log.Debug("sweep done",
			logx.Int("due", res.Due),
			logx.Int("delivered", res.Delivered),
			logx.Int("failed", res.Failed),
			logx.Int("dropped", res.Dropped),
			logx.Duration("took", time.Since(start)),
		)
	}
	if hook != nil {
		hook(res)
	}
}

// Sweep delivers every task due strictly before now. Per-task failures are
// logged and counted; only a failed query is returned.
func (s *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	s.sweepMu.Lock()
	defer s.sweepMu.Unlock()

	cfg := s.config()
	now := s.opts.now()

	qctx, cancel := context.WithTimeout(ctx, storeOpTimeout)
	due, err := s.store.FindDueBefore(qctx, now)
	cancel()
	if err != nil {
		return SweepResult{}, fmt.Errorf("find due tasks: %w", err)
	}

	res := SweepResult{Due: len(due)}
	for _, t := range due {
		if ctx.Err() != nil {
			break
		}
		s.deliver(ctx, cfg, t, &res)
	}
	return res, nil
}

func (s *Sweeper) deliver(ctx context.Context, cfg SweeperConfig, t storage.Task, res *SweepResult) {
	log := s.log.With(logx.String("task_id", t.ID), logx.Int64("chat_id", t.ChatID))
	defer func() {
		if r := recover(); r != nil {
			res.Failed++
			log.Error("panic while delivering task", logx.Any("panic", r), logx.Stack(string(debug.Stack())))
		}
	}()

	sctx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
	_, sendErr := s.sender.SendText(sctx, kit.ChatTarget{ChatID: t.ChatID}, t.Message, nil)
	cancel()

	if sendErr == nil {
		res.Delivered++
		// The message is out; shutdown must not undo the delete.
		if err := s.remove(context.WithoutCancel(ctx), t.ID); err != nil {
			log.Error("delete after delivery failed, task will be sent again", logx.Err(err))
		} else {
			log.Info("task delivered", logx.Time("exec_at", t.ExecAt))
		}
		s.publish(eventbus.TaskDelivered, t, "")
		return
	}

	res.Failed++
	log.Warn("delivery failed", logx.Int("attempt", t.Attempts+1), logx.Err(sendErr))

	mctx, mcancel := context.WithTimeout(ctx, storeOpTimeout)
	updated, err := s.store.MarkFailed(mctx, t.ID, sendErr.Error())
	mcancel()
	if err != nil {
		log.Error("record failed attempt", logx.Err(err))
		updated = t
		updated.Attempts++
		updated.LastError = sendErr.Error()
	}
	s.publish(eventbus.TaskDeliveryFailed, updated, sendErr.Error())

	if cfg.MaxAttempts <= 0 || updated.Attempts < cfg.MaxAttempts {
		return
	}
	if err := s.remove(ctx, t.ID); err != nil {
		log.Error("drop after max attempts failed", logx.Err(err))
		return
	}
	res.Dropped++
	log.Error("task dropped after max attempts",
		logx.Int("attempts", updated.Attempts),
		logx.Int("max_attempts", cfg.MaxAttempts),
		logx.Time("exec_at", t.ExecAt),
		logx.String("message", t.Message),
		logx.String("last_error", updated.LastError),
	)
	s.publish(eventbus.TaskDropped, updated, updated.LastError)
}

func (s *Sweeper) remove(ctx context.Context, id string) error {
	dctx, cancel := context.WithTimeout(ctx, storeOpTimeout)
	defer cancel()
	err := s.store.Delete(dctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		// Removed concurrently (operator CLI); the outcome is the same.
		return nil
	}
	return err
}

func (s *Sweeper) publish(typ string, t storage.Task, cause string) {
	s.bus.Publish(eventbus.Event{
		Type: typ,
		Data: eventbus.TaskEvent{
			TaskID:   t.ID,
			ChatID:   t.ChatID,
			ExecAt:   t.ExecAt,
			Attempts: t.Attempts,
			Err:      cause,
		},
	})
}

// cronLogger routes robfig/cron's internal logging into logx.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Trace("cron: "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append(kvFields(keysAndValues), logx.Err(err))...)
}

func kvFields(kv []interface{}) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			k = fmt.Sprint(kv[i])
		}
		out = append(out, logx.Any(k, kv[i+1]))
	}
	return out
}
