package manager

import "github.com/signalhub/hub/pkg/model"

// Wire message type discriminators (spec.md §6.1).
const (
	TypeRegister          = "register"
	TypePong              = "pong"
	TypeRegisterAgentResp = "register_agent_response"
	TypePeerOnline        = "peer_online"
	TypePeerOffline       = "peer_offline"
	TypePing              = "ping"
)

// registerFrame is the first frame a client must send.
type registerFrame struct {
	Type       string `json:"type"`
	AgentID    string `json:"agent_id,omitempty"`
	PublicIP   string `json:"public_ip"`
	PublicPort int    `json:"public_port"`
	RelayIP    string `json:"relay_ip,omitempty"`
	RelayPort  int    `json:"relay_port,omitempty"`
}

// inboundEnvelope is used only to sniff "type" before deciding how to
// unmarshal the rest of the frame.
type inboundEnvelope struct {
	Type string `json:"type"`
}

type errorFrame struct {
	Error string `json:"error"`
}

// registerOkFrame is the richer register_agent_response variant; see
// SPEC_FULL.md / spec.md §9 "Back-compat name drift in the source".
type registerOkFrame struct {
	Type          string           `json:"type"`
	Status        string           `json:"status"`
	VirtualIP     string           `json:"virtual_ip"`
	ConnectionID  string           `json:"connection_id"`
	ExistingPeers []model.PeerInfo `json:"existing_peers"`
}

type peerEventFrame struct {
	Type string         `json:"type"`
	Peer model.PeerInfo `json:"peer"`
}

type pingFrame struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}
