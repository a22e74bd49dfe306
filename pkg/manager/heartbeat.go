package manager

import (
	"context"
	"encoding/json"
	"time"

	"github.com/datawire/dlib/dlog"

	"github.com/signalhub/hub/pkg/clock"
)

// Heartbeat runs the two per-session tasks spec.md §4.5/§4.7 calls for: a
// ping emitter and a pong watcher. Both stop as soon as ctx is canceled,
// which the Session Actor does on teardown.
type Heartbeat struct {
	PingInterval    time.Duration
	PongTimeout     time.Duration
	PongCheckPeriod time.Duration
	Clock           clock.Clock
}

// NewHeartbeat builds a Heartbeat with the given ping interval, pong
// timeout and pong check period, using the real wall clock.
func NewHeartbeat(pingInterval, pongTimeout, pongCheckPeriod time.Duration) *Heartbeat {
	return &Heartbeat{
		PingInterval:    pingInterval,
		PongTimeout:     pongTimeout,
		PongCheckPeriod: pongCheckPeriod,
		Clock:           clock.Wall{},
	}
}

// RunPingEmitter sends a ping frame to s every PingInterval until ctx is
// canceled. The first ping also seeds s's pong deadline if it has never
// been set, giving a freshly registered client one full interval before
// the watcher can time it out.
func (h *Heartbeat) RunPingEmitter(ctx context.Context, s *Session) {
	ticker := time.NewTicker(h.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := h.Clock.Now()
			s.SeedPongIfUnset(now)
			frame := pingFrame{Type: TypePing, Timestamp: now.Unix()}
			body, err := json.Marshal(frame)
			if err != nil {
				dlog.Errorf(ctx, "heartbeat: marshal ping for %s: %v", s.PeerID, err)
				continue
			}
			if err := s.send(body); err != nil {
				dlog.Errorf(ctx, "heartbeat: send ping to %s failed: %v", s.PeerID, err)
			}
		}
	}
}

// RunPongWatcher polls s's last-pong time every PongCheckPeriod and
// invokes onTimeout exactly once if more than PongTimeout has elapsed
// since the last pong (spec.md §4.7, P6, LivenessError in §7). A session
// with an unset last-pong time (no ping sent yet) is never timed out.
func (h *Heartbeat) RunPongWatcher(ctx context.Context, s *Session, onTimeout func()) {
	ticker := time.NewTicker(h.PongCheckPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			last := s.LastPongAt()
			if last.IsZero() {
				continue
			}
			if h.Clock.Now().Sub(last) > h.PongTimeout {
				onTimeout()
				return
			}
		}
	}
}
