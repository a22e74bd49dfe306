// Package wsserver upgrades inbound HTTP requests on /ws/ to WebSocket
// connections, extracts and verifies the bearer token (spec.md §4.3,
// ACCEPTED -> AUTHENTICATED), and hands the connection off to the Session
// Actor. Grounded on the gorilla/websocket Upgrader usage in the teacher's
// integration_test/testdata/echo-server/main.go.
package wsserver

import (
	"context"
	"net/http"
	"time"

	"github.com/datawire/dlib/dlog"
	"github.com/gorilla/websocket"

	"github.com/signalhub/hub/pkg/auth"
	"github.com/signalhub/hub/pkg/manager"
	"github.com/signalhub/hub/pkg/store"
)

func deadlineNow() time.Time {
	return time.Now().Add(5 * time.Second)
}

// CodeNoToken is the WebSocket close code used when no token is present or
// the token fails verification (spec.md §6.1).
const CodeNoToken = 4001

var upgrader = websocket.Upgrader{
	// Origin checking is a browser-only concern; agents here are native
	// processes, so any origin is accepted, matching the teacher's
	// echo-server test fixture.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Handler serves the /ws/ endpoint.
type Handler struct {
	Verifier auth.Verifier
	Store    store.Store
	Actor    *manager.Actor
}

func NewHandler(verifier auth.Verifier, st store.Store, actor *manager.Actor) *Handler {
	return &Handler{Verifier: verifier, Store: st, Actor: actor}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	token := auth.ExtractToken(r)
	if token == "" {
		h.rejectUpgrade(ctx, w, r, "No token provided")
		return
	}

	userID, err := h.Verifier.Verify(token)
	if err != nil {
		h.rejectUpgrade(ctx, w, r, "invalid token")
		return
	}

	user, err := h.Store.FindUserByID(ctx, userID)
	if err != nil || user == nil || !user.IsActive {
		h.rejectUpgrade(ctx, w, r, "invalid token")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		dlog.Errorf(ctx, "wsserver: upgrade failed: %v", err)
		return
	}

	wrapped := &wsConn{conn: conn}
	dlog.Infof(ctx, "wsserver: accepted connection for user %d", user.ID)
	h.Actor.Run(ctx, wrapped, user.ID, user.Email)
}

// rejectUpgrade completes the WebSocket handshake and immediately closes
// with 4001, rather than failing the HTTP upgrade itself — spec.md §6.1
// says authentication happens after accept, specifically so failures can
// return a close frame instead of an HTTP 401.
func (h *Handler) rejectUpgrade(ctx context.Context, w http.ResponseWriter, r *http.Request, reason string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		dlog.Errorf(ctx, "wsserver: upgrade failed during reject: %v", err)
		return
	}
	defer conn.Close()
	msg := websocket.FormatCloseMessage(CodeNoToken, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, deadlineNow())
}

// wsConn adapts *websocket.Conn to manager.Conn.
type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

func (c *wsConn) WriteMessage(data []byte) error {
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close(code int, reason string) error {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, deadlineNow())
	return c.conn.Close()
}
