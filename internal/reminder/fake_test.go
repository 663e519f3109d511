package reminder

import (
	"context"
	"errors"
	"sync"
	"time"

	"remindbot/internal/eventbus"
	"remindbot/internal/storage"
	kit "remindbot/internal/transport"
)

var errSendRejected = errors.New("telegram: bot was blocked by the user")

type sentMessage struct {
	ChatID int64
	Text   string
}

// fakeSender records every send and fails while failing is set.
type fakeSender struct {
	mu      sync.Mutex
	sent    []sentMessage
	failing bool
	panics  bool
	calls   int
	onSend  func()
}

func (f *fakeSender) SendText(ctx context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.panics {
		panic("boom")
	}
	if f.failing {
		return kit.MessageRef{}, errSendRejected
	}
	f.sent = append(f.sent, sentMessage{ChatID: to.ChatID, Text: text})
	if f.onSend != nil {
		f.onSend()
	}
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func (f *fakeSender) setFailing(v bool) {
	f.mu.Lock()
	f.failing = v
	f.mu.Unlock()
}

func (f *fakeSender) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

// brokenStore fails every call.
type brokenStore struct{ storage.Store }

var errStoreDown = errors.New("disk I/O error")

func (brokenStore) Create(context.Context, storage.Task) (string, error) { return "", errStoreDown }
func (brokenStore) FindDueBefore(context.Context, time.Time) ([]storage.Task, error) {
	return nil, errStoreDown
}

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func collect(ch <-chan eventbus.Event) []eventbus.Event {
	var out []eventbus.Event
	for {
		select {
		case e := <-ch:
			out = append(out, e)
		default:
			return out
		}
	}
}

func msgUpdate(chatID int64, text string) kit.Update {
	return kit.Update{
		Kind:    kit.UpdateMessage,
		Message: &kit.Message{ID: 1, ChatID: chatID, FromID: chatID, Text: text},
	}
}
