package reminder

import (
	"context"
	"errors"
	"runtime/debug"
	"time"

	"remindbot/internal/command"
	"remindbot/internal/eventbus"
	"remindbot/internal/storage"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

// User-facing replies.
const (
	ReplyGreeting  = "Hello, World!"
	ReplyPastDate  = "Please provide a date in the future."
	ReplyBadDate   = "Could not understand the date, use DD.MM.YYYY HH:MM."
	replyTimeout   = 10 * time.Second
	storeOpTimeout = 5 * time.Second
)

// Option customizes a Handler or Sweeper.
type Option func(*options)

type options struct {
	now func() time.Time
	loc *time.Location
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLocation sets the zone commands are interpreted in.
func WithLocation(loc *time.Location) Option {
	return func(o *options) {
		if loc != nil {
			o.loc = loc
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now, loc: time.Local}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// Handler turns inbound chat messages into replies or scheduled tasks.
type Handler struct {
	store  storage.Store
	sender kit.Sender
	bus    eventbus.Bus
	log    logx.Logger
	opts   options
}

func NewHandler(store storage.Store, sender kit.Sender, bus eventbus.Bus, log logx.Logger, opts ...Option) *Handler {
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Nop{}
	}
	return &Handler{
		store:  store,
		sender: sender,
		bus:    bus,
		log:    log,
		opts:   buildOptions(opts),
	}
}

// Run consumes updates until ctx is done or the channel is closed.
// Every update is consumed exactly once whatever its outcome.
func (h *Handler) Run(ctx context.Context, updates <-chan kit.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			h.Handle(ctx, u)
		}
	}
}

// Handle processes one update. Failures are logged and never returned.
func (h *Handler) Handle(ctx context.Context, u kit.Update) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("panic while handling update", logx.Any("panic", r), logx.Stack(string(debug.Stack())))
		}
	}()

	m := u.Message
	if m == nil {
		return
	}

	cmd, err := command.Parse(m.Text, h.opts.loc)
	if err != nil {
		if errors.Is(err, command.ErrBadTimestamp) {
			h.log.Info("malformed timestamp", logx.Int64("chat_id", m.ChatID), logx.Err(err))
			h.reply(ctx, m.ChatID, ReplyBadDate)
			return
		}
		h.log.Warn("parse failed", logx.Int64("chat_id", m.ChatID), logx.Err(err))
		return
	}

	switch c := cmd.(type) {
	case command.StartGreeting:
		h.reply(ctx, m.ChatID, ReplyGreeting)
	case command.ScheduleRequest:
		h.schedule(ctx, m.ChatID, c)
	default:
		h.log.Trace("ignored message", logx.Int64("chat_id", m.ChatID))
	}
}

func (h *Handler) schedule(ctx context.Context, chatID int64, req command.ScheduleRequest) {
	now := h.opts.now()
	if req.ExecAt.Before(now) {
		h.log.Info("rejected past date",
			logx.Int64("chat_id", chatID),
			logx.Time("exec_at", req.ExecAt),
		)
		h.reply(ctx, chatID, ReplyPastDate)
		return
	}

	sctx, cancel := context.WithTimeout(ctx, storeOpTimeout)
	defer cancel()
	id, err := h.store.Create(sctx, storage.Task{
		ChatID:    chatID,
		Message:   req.Message,
		ExecAt:    req.ExecAt,
		CreatedAt: now,
	})
	if err != nil {
		h.log.Error("store task failed", logx.Int64("chat_id", chatID), logx.Time("exec_at", req.ExecAt), logx.Err(err))
		return
	}

	h.log.Info("task scheduled",
		logx.String("task_id", id),
		logx.Int64("chat_id", chatID),
		logx.Time("exec_at", req.ExecAt),
	)
	h.bus.Publish(eventbus.Event{
		Type: eventbus.TaskScheduled,
		Time: now,
		Data: eventbus.TaskEvent{TaskID: id, ChatID: chatID, ExecAt: req.ExecAt},
	})
}

func (h *Handler) reply(ctx context.Context, chatID int64, text string) {
	rctx, cancel := context.WithTimeout(ctx, replyTimeout)
	defer cancel()
	if _, err := h.sender.SendText(rctx, kit.ChatTarget{ChatID: chatID}, text, nil); err != nil {
		h.log.Warn("reply failed", logx.Int64("chat_id", chatID), logx.Err(err))
	}
}
