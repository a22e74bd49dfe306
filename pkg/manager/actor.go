package manager

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/datawire/dlib/dlog"
	"github.com/google/uuid"

	"github.com/signalhub/hub/pkg/clock"
	"github.com/signalhub/hub/pkg/model"
	"github.com/signalhub/hub/pkg/store"
	"github.com/signalhub/hub/pkg/subnet"
)

// MetricsRecorder is the narrow surface the Session Actor and Broadcaster
// push counts through. A nil recorder is valid; every call site checks
// before using it. Kept as an interface here (rather than importing
// pkg/metrics directly) so manager never depends on the Prometheus
// wiring — cmd/signalhub supplies the concrete implementation.
type MetricsRecorder interface {
	BroadcastSent(n int)
	BroadcastFailed(n int)
	HeartbeatTimeout()
}

// Actor runs the Session Actor state machine (spec.md §4.5) for one
// WebSocket connection, from AUTHENTICATED through REGISTERED to CLOSED.
// Token extraction and verification (ACCEPTED -> AUTHENTICATED) happen
// before the Actor is invoked, in pkg/wsserver, which is the only place
// that has access to the raw HTTP upgrade request.
type Actor struct {
	Store     store.Store
	Registry  *Registry
	Broadcast *Broadcaster
	Heartbeat *Heartbeat
	Clock     clock.Clock
	Metrics   MetricsRecorder
}

// Run drives one authenticated connection to completion. userID and email
// are the identity the Auth Adapter (C3) already validated. Run blocks
// until the session tears down (peer closed, network error, or heartbeat
// timeout) and never returns an error: every failure path is translated
// into a wire frame or close code inside Run, per the propagation policy
// in spec.md §7.
func (a *Actor) Run(ctx context.Context, conn Conn, userID int64, email string) {
	ctx = dlog.WithField(ctx, "user_id", userID)

	connID := uuid.NewString()
	session := newSession(connID, userID, email, conn)

	org, ok := a.register(ctx, session, connID)
	if !ok {
		return
	}

	hbCtx, cancelHB := context.WithCancel(ctx)
	defer cancelHB()

	teardown := make(chan struct{})
	go func() {
		a.Heartbeat.RunPongWatcher(hbCtx, session, func() {
			dlog.Infof(ctx, "heartbeat: pong deadline exceeded for peer %s", session.PeerID)
			if a.Metrics != nil {
				a.Metrics.HeartbeatTimeout()
			}
			a.teardown(ctx, session, org)
			_ = conn.Close(1000, "Connection timeout - no pong received")
			close(teardown)
		})
	}()
	go a.Heartbeat.RunPingEmitter(hbCtx, session)

	a.serve(ctx, session, org, teardown)
	cancelHB()
	a.teardown(ctx, session, org)
}

// register implements ACCEPTED's first-frame handling and the
// AUTHENTICATED -> REGISTERED transition (spec.md §4.5 steps 2-3). It
// returns the session's organization and true on success; on any failure
// it has already sent the appropriate error frame or close code and
// returns false, leaving no half-registered Session in the Registry.
func (a *Actor) register(ctx context.Context, session *Session, connID string) (*model.Organization, bool) {
	for {
		raw, err := session.conn.ReadMessage()
		if err != nil {
			return nil, false
		}

		var env inboundEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			a.sendError(ctx, session, "Invalid JSON")
			continue
		}
		if env.Type != TypeRegister {
			a.sendError(ctx, session, "First message must be register")
			continue
		}

		var frame registerFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			a.sendError(ctx, session, "Invalid JSON")
			continue
		}
		if frame.PublicIP == "" || frame.PublicPort <= 0 {
			a.sendError(ctx, session, "Missing required fields: public_ip, public_port")
			continue
		}

		org, err := a.completeRegister(ctx, session, connID, frame)
		if err != nil {
			dlog.Errorf(ctx, "register: %v", err)
			if err == errNoOrgIP {
				a.sendError(ctx, session, "No virtual IP allocated for user in any organization")
				_ = session.conn.Close(1000, "")
			} else {
				a.sendError(ctx, session, "Registration failed")
				_ = session.conn.Close(1000, "")
			}
			return nil, false
		}
		return org, true
	}
}

var errNoOrgIP = fmt.Errorf("no virtual IP allocated for user in any organization")

// completeRegister resolves the user's org+virtual-IP, builds the Session
// record, and performs the snapshot -> add -> broadcast sequence mandated
// by spec.md §5 so that a peer never both appears in existing_peers and
// receives a peer_online for the same session.
func (a *Actor) completeRegister(ctx context.Context, session *Session, connID string, frame registerFrame) (*model.Organization, error) {
	orgs, err := a.Store.ListUserOrgs(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("list user orgs: %w", err)
	}

	var org *model.Organization
	var virtualIP string
	for i := range orgs {
		ip, err := a.Store.GetMapping(ctx, session.UserID, orgs[i].ID)
		if err != nil {
			return nil, fmt.Errorf("get mapping: %w", err)
		}
		if ip != "" {
			org = &orgs[i]
			virtualIP = ip
			break
		}
	}
	if org == nil {
		return nil, errNoOrgIP
	}

	peerID := frame.AgentID
	if peerID == "" {
		short := connID
		if len(short) > 8 {
			short = short[:8]
		}
		peerID = fmt.Sprintf("peer_%d_%s", session.UserID, short)
	}

	session.PeerID = peerID
	session.AgentID = frame.AgentID
	session.OrgID = org.ID
	session.Subnet = org.Subnet
	session.VirtualIP = virtualIP
	session.PublicIP = frame.PublicIP
	session.PublicPort = frame.PublicPort
	session.RelayIP = frame.RelayIP
	session.RelayPort = frame.RelayPort

	// snapshot -> serialize response -> add to registry -> broadcast
	// (spec.md §5): never let a peer both appear in existing_peers and
	// receive its own peer_online.
	existing := a.samePeerSubnetSnapshot(session)

	resp := registerOkFrame{
		Type:          TypeRegisterAgentResp,
		Status:        "registered",
		VirtualIP:     virtualIP,
		ConnectionID:  connID,
		ExistingPeers: existing,
	}
	body, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("marshal register response: %w", err)
	}

	a.Registry.Add(session)
	session.setState(StateRegistered)
	if err := a.Store.RecordConnectionEvent(ctx, model.ConnectionEvent{
		UserID: session.UserID, OrgID: org.ID, PeerID: peerID,
		VirtualIP: virtualIP, Event: "connected", At: a.Clock.Now(),
	}); err != nil {
		dlog.Errorf(ctx, "register: record connection event: %v", err)
	}

	if err := session.send(body); err != nil {
		a.Registry.Remove(session)
		return nil, fmt.Errorf("send register response: %w", err)
	}

	a.Broadcast.broadcastPeerEvent(ctx, org.ID, org.Subnet, session, TypePeerOnline)

	return org, nil
}

// samePeerSubnetSnapshot returns the PeerInfo for every other session
// already registered in self's org whose virtual IP shares self's subnet
// (spec.md §4.5 "same-subnet peer set").
func (a *Actor) samePeerSubnetSnapshot(self *Session) []model.PeerInfo {
	peers := make([]model.PeerInfo, 0)
	for _, s := range a.Registry.Snapshot(self.OrgID) {
		if s == self {
			continue
		}
		if subnet.SameSubnet(s.VirtualIP, self.VirtualIP, self.Subnet) {
			peers = append(peers, s.PeerInfo())
		}
	}
	return peers
}

// serve runs the REGISTERED main loop (spec.md §4.5 step 4): await inbound
// frames, record pongs, ignore everything else, and return as soon as the
// peer closes, a read errors, or the heartbeat watcher signals teardown.
func (a *Actor) serve(ctx context.Context, session *Session, org *model.Organization, teardown <-chan struct{}) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			raw, err := session.conn.ReadMessage()
			if err != nil {
				return
			}
			var env inboundEnvelope
			if err := json.Unmarshal(raw, &env); err != nil {
				continue
			}
			if env.Type == TypePong {
				session.MarkPong(a.Clock.Now())
			}
		}
	}()

	select {
	case <-done:
	case <-teardown:
	}
}

// teardown implements DISCONNECTING -> CLOSED (spec.md §4.5 step 5):
// remove from the registry, then snapshot, then broadcast peer_offline,
// so the departing session never receives its own offline event (P4) and
// double teardown is a no-op (P7).
func (a *Actor) teardown(ctx context.Context, session *Session, org *model.Organization) {
	session.mu.Lock()
	if session.state == StateDisconnecting || session.state == StateClosed {
		session.mu.Unlock()
		return
	}
	session.state = StateDisconnecting
	session.mu.Unlock()
	a.Registry.Remove(session)

	if org != nil && session.VirtualIP != "" {
		a.Broadcast.broadcastPeerEvent(ctx, org.ID, org.Subnet, session, TypePeerOffline)
		if err := a.Store.RecordConnectionEvent(ctx, model.ConnectionEvent{
			UserID: session.UserID, OrgID: org.ID, PeerID: session.PeerID,
			VirtualIP: session.VirtualIP, Event: "disconnected", At: a.Clock.Now(),
		}); err != nil {
			dlog.Errorf(ctx, "teardown: record connection event: %v", err)
		}
	}
	session.setState(StateClosed)
}

func (a *Actor) sendError(ctx context.Context, session *Session, msg string) {
	body, err := json.Marshal(errorFrame{Error: msg})
	if err != nil {
		dlog.Errorf(ctx, "marshal error frame: %v", err)
		return
	}
	if err := session.send(body); err != nil {
		dlog.Errorf(ctx, "send error frame: %v", err)
	}
}
