package app

import (
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "remindbot/pkg/logx"
)

// sdNotifier reports lifecycle and liveness to systemd. Outside a
// Type=notify unit every call is a no-op.
type sdNotifier struct {
	log      logx.Logger
	watchdog time.Duration

	mu       sync.Mutex
	lastKick time.Time
}

func newSDNotifier(log logx.Logger) *sdNotifier {
	n := &sdNotifier{log: log}
	d, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		log.Warn("systemd watchdog check failed", logx.Err(err))
	}
	n.watchdog = d
	return n
}

func (n *sdNotifier) notify(state string) {
	ok, err := daemon.SdNotify(false, state)
	if err != nil {
		n.log.Warn("systemd notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if ok {
		n.log.Trace("systemd notified", logx.String("state", state))
	}
}

func (n *sdNotifier) Ready()    { n.notify(daemon.SdNotifyReady) }
func (n *sdNotifier) Stopping() { n.notify(daemon.SdNotifyStopping) }

// Kick sends WATCHDOG=1, at most once per half watchdog period.
func (n *sdNotifier) Kick() {
	if n.watchdog <= 0 {
		return
	}
	n.mu.Lock()
	now := time.Now()
	due := now.Sub(n.lastKick) >= n.watchdog/2
	if due {
		n.lastKick = now
	}
	n.mu.Unlock()
	if due {
		n.notify(daemon.SdNotifyWatchdog)
	}
}
