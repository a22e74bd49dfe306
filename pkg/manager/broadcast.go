package manager

import (
	"context"
	"encoding/json"

	"github.com/datawire/dlib/dlog"

	"github.com/signalhub/hub/pkg/subnet"
)

// Broadcaster fans a peer event out to the sessions that should see it:
// same org, same subnet, excluding the originating session (spec.md §4.6,
// P4, P5).
type Broadcaster struct {
	registry *Registry
	// Metrics is optional (nil-safe); it records C9's
	// signalhub_broadcast_sent_total / signalhub_broadcast_failed_total.
	Metrics MetricsRecorder
}

func NewBroadcaster(r *Registry) *Broadcaster {
	return &Broadcaster{registry: r}
}

// Broadcast sends msg (already-marshaled JSON) to every session in orgID
// whose VirtualIP shares cidr with exclude's subnet, other than exclude
// itself. A send failure to one recipient is logged and does not stop
// delivery to the rest (spec.md §7, TransientSendError). It returns the
// number of sessions the message was actually sent to.
func (b *Broadcaster) Broadcast(ctx context.Context, orgID int64, cidr string, exclude *Session, msg []byte) int {
	sent, failed := 0, 0
	for _, s := range b.registry.Snapshot(orgID) {
		if s == exclude {
			continue
		}
		if !subnet.SameSubnet(s.VirtualIP, exclude.VirtualIP, cidr) {
			continue
		}
		if err := s.send(msg); err != nil {
			dlog.Errorf(ctx, "broadcast: send to peer %s failed: %v", s.PeerID, err)
			failed++
			continue
		}
		sent++
	}
	if b.Metrics != nil {
		if sent > 0 {
			b.Metrics.BroadcastSent(sent)
		}
		if failed > 0 {
			b.Metrics.BroadcastFailed(failed)
		}
	}
	return sent
}

// broadcastPeerEvent is a convenience wrapper that marshals a peer_online
// or peer_offline frame and broadcasts it.
func (b *Broadcaster) broadcastPeerEvent(ctx context.Context, orgID int64, cidr string, exclude *Session, eventType string) int {
	frame := peerEventFrame{Type: eventType, Peer: exclude.PeerInfo()}
	body, err := json.Marshal(frame)
	if err != nil {
		dlog.Errorf(ctx, "broadcast: marshal %s: %v", eventType, err)
		return 0
	}
	return b.Broadcast(ctx, orgID, cidr, exclude, body)
}
