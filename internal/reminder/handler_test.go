package reminder

import (
	"context"
	"testing"
	"time"

	"remindbot/internal/eventbus"
	"remindbot/internal/storage"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

// now is 2026-06-15 10:00 UTC for every handler test.
var handlerNow = time.Date(2026, 6, 15, 10, 0, 0, 0, time.UTC)

func newTestHandler(store storage.Store, sender *fakeSender, bus eventbus.Bus) *Handler {
	return NewHandler(store, sender, bus, logx.Nop(),
		WithClock(func() time.Time { return handlerNow }),
		WithLocation(time.UTC),
	)
}

func TestHandleSchedulesFutureTask(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := storage.NewMemory()
	sender := &fakeSender{}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(4)
	defer unsub()

	h := newTestHandler(store, sender, bus)
	h.Handle(ctx, msgUpdate(42, "01.01.2099 12:00 Buy milk"))

	tasks, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(tasks))
	}
	want := time.Date(2099, 1, 1, 12, 0, 0, 0, time.UTC)
	got := tasks[0]
	if got.ChatID != 42 || got.Message != "Buy milk" || !got.ExecAt.Equal(want) {
		t.Fatalf("unexpected task: %+v", got)
	}
	if n := len(sender.messages()); n != 0 {
		t.Fatalf("schedule should not reply, sent %d", n)
	}

	evs := collect(events)
	if len(evs) != 1 || evs[0].Type != eventbus.TaskScheduled {
		t.Fatalf("expected one task.scheduled event, got %+v", evs)
	}
	if te := evs[0].Data.(eventbus.TaskEvent); te.TaskID != got.ID {
		t.Fatalf("event task id = %q, want %q", te.TaskID, got.ID)
	}
}

func TestHandleReplies(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name  string
		text  string
		reply string
	}{
		{name: "past date", text: "01.01.2000 12:00 Buy milk", reply: ReplyPastDate},
		{name: "one minute ago", text: "15.06.2026 09:59 late", reply: ReplyPastDate},
		{name: "start", text: "/start", reply: ReplyGreeting},
		{name: "malformed date", text: "32.13.2099 25:61 Buy milk", reply: ReplyBadDate},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			store := storage.NewMemory()
			sender := &fakeSender{}
			h := newTestHandler(store, sender, nil)

			h.Handle(ctx, msgUpdate(7, tc.text))

			msgs := sender.messages()
			if len(msgs) != 1 {
				t.Fatalf("expected exactly one reply, got %d", len(msgs))
			}
			if msgs[0].ChatID != 7 || msgs[0].Text != tc.reply {
				t.Fatalf("reply = %+v, want %q to chat 7", msgs[0], tc.reply)
			}
			tasks, _ := store.List(ctx)
			if len(tasks) != 0 {
				t.Fatalf("no task should be stored, got %d", len(tasks))
			}
		})
	}
}

func TestHandleCurrentMinuteIsAccepted(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := storage.NewMemory()
	sender := &fakeSender{}
	h := newTestHandler(store, sender, nil)

	h.Handle(ctx, msgUpdate(1, "15.06.2026 10:00 right now"))

	tasks, _ := store.List(ctx)
	if len(tasks) != 1 {
		t.Fatalf("a timestamp equal to now is not in the past, got %d tasks", len(tasks))
	}
}

func TestHandleIgnoresUnrecognized(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	for _, text := range []string{"", "hello", "/help", "01.01.2099 12:00", "1.1.2099 12:00 short date"} {
		store := storage.NewMemory()
		sender := &fakeSender{}
		h := newTestHandler(store, sender, nil)

		h.Handle(ctx, msgUpdate(1, text))

		if n := len(sender.messages()); n != 0 {
			t.Fatalf("%q: expected no reply, got %d", text, n)
		}
		if tasks, _ := store.List(ctx); len(tasks) != 0 {
			t.Fatalf("%q: expected no task, got %d", text, len(tasks))
		}
	}
}

func TestHandleSurvivesFailures(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("nil message", func(t *testing.T) {
		sender := &fakeSender{}
		h := newTestHandler(storage.NewMemory(), sender, nil)
		h.Handle(ctx, kit.Update{Kind: kit.UpdateMessage})
		if sender.calls != 0 {
			t.Fatalf("expected no sends, got %d", sender.calls)
		}
	})

	t.Run("store error", func(t *testing.T) {
		sender := &fakeSender{}
		h := newTestHandler(brokenStore{}, sender, nil)
		h.Handle(ctx, msgUpdate(1, "01.01.2099 12:00 Buy milk"))
		if n := len(sender.messages()); n != 0 {
			t.Fatalf("store failure must not reply, got %d", n)
		}
	})

	t.Run("reply error", func(t *testing.T) {
		sender := &fakeSender{failing: true}
		h := newTestHandler(storage.NewMemory(), sender, nil)
		h.Handle(ctx, msgUpdate(1, "/start"))
		if sender.calls != 1 {
			t.Fatalf("expected one send attempt, got %d", sender.calls)
		}
	})

	t.Run("panic", func(t *testing.T) {
		sender := &fakeSender{panics: true}
		h := newTestHandler(storage.NewMemory(), sender, nil)
		h.Handle(ctx, msgUpdate(1, "/start"))
	})
}

func TestRunConsumesEveryUpdate(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := storage.NewMemory()
	sender := &fakeSender{}
	h := newTestHandler(store, sender, nil)

	updates := make(chan kit.Update, 8)
	updates <- msgUpdate(1, "/start")
	updates <- kit.Update{Kind: kit.UpdateMessage}
	updates <- msgUpdate(2, "32.13.2099 25:61 broken")
	updates <- msgUpdate(3, "01.01.2099 12:00 Buy milk")
	updates <- msgUpdate(4, "just chatting")
	close(updates)

	done := make(chan struct{})
	go func() {
		h.Run(ctx, updates)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after the channel closed")
	}

	if n := len(sender.messages()); n != 2 {
		t.Fatalf("expected 2 replies, got %d", n)
	}
	tasks, _ := store.List(context.Background())
	if len(tasks) != 1 || tasks[0].ChatID != 3 {
		t.Fatalf("unexpected tasks: %+v", tasks)
	}
}
