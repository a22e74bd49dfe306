// Package httpapi implements the HTTP control-plane (C10, SPEC_FULL.md
// §4.10): thin gorilla/mux handlers over the same Persistence Port and
// Virtual-IP Service the Session Actor uses. Grounded on the FastAPI
// routers in original_source/app/api/organizations.py and
// original_source/app/api/virtual_ip.py — including their 404/403/400
// semantics, carried over verbatim.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/signalhub/hub/pkg/auth"
	"github.com/signalhub/hub/pkg/ipam"
	"github.com/signalhub/hub/pkg/store"
	"github.com/signalhub/hub/pkg/subnet"
)

// API wires the control-plane handlers onto a gorilla/mux router.
type API struct {
	Store    store.Store
	IPAM     *ipam.Service
	Verifier auth.Verifier
}

func New(st store.Store, ipamSvc *ipam.Service, verifier auth.Verifier) *API {
	return &API{Store: st, IPAM: ipamSvc, Verifier: verifier}
}

// Router builds the control-plane routes. healthCheck reports whether the
// process has completed startup (SPEC_FULL.md §6.4).
func (a *API) Router(healthCheck func() bool) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", a.handleHealthz(healthCheck)).Methods(http.MethodGet)

	orgs := r.PathPrefix("/organizations").Subrouter()
	orgs.Use(a.authMiddleware)
	orgs.HandleFunc("", a.handleCreateOrg).Methods(http.MethodPost)
	orgs.HandleFunc("", a.handleListOrgs).Methods(http.MethodGet)
	orgs.HandleFunc("/{id}/join", a.handleJoinOrg).Methods(http.MethodPost)
	orgs.HandleFunc("/{id}/members", a.handleListMembers).Methods(http.MethodGet)
	orgs.HandleFunc("/{id}/allocate_ip", a.handleAllocateIP).Methods(http.MethodPost)
	orgs.HandleFunc("/{id}/ips", a.handleListIPs).Methods(http.MethodGet)
	return r
}

type ctxKey int

const userIDKey ctxKey = 0

func contextWithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

func userIDFromContext(ctx context.Context) int64 {
	id, _ := ctx.Value(userIDKey).(int64)
	return id
}

// authMiddleware validates the bearer token the same way the Auth Adapter
// (C3) does for the WebSocket path, translating AuthError to 401 per
// SPEC_FULL.md §7.
func (a *API) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := auth.ExtractToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		userID, err := a.Verifier.Verify(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		user, err := a.Store.FindUserByID(r.Context(), userID)
		if err != nil || user == nil || !user.IsActive {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(contextWithUserID(r.Context(), userID)))
	})
}

type orgCreateRequest struct {
	Name   string `json:"name"`
	Subnet string `json:"subnet"`
}

type orgResponse struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Subnet string `json:"subnet"`
}

func (a *API) handleCreateOrg(w http.ResponseWriter, r *http.Request) {
	var req orgCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if !subnet.ValidSubnet(req.Subnet) {
		writeError(w, http.StatusBadRequest, "Invalid subnet format")
		return
	}
	userID := userIDFromContext(r.Context())
	org, err := a.Store.CreateOrg(r.Context(), req.Name, req.Subnet, userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not create organization")
		return
	}
	writeJSON(w, http.StatusOK, orgResponse{ID: org.ID, Name: org.Name, Subnet: org.Subnet})
}

func (a *API) handleListOrgs(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())
	orgs, err := a.Store.ListUserOrgs(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not list organizations")
		return
	}
	out := make([]orgResponse, 0, len(orgs))
	for _, o := range orgs {
		out = append(out, orgResponse{ID: o.ID, Name: o.Name, Subnet: o.Subnet})
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleJoinOrg(w http.ResponseWriter, r *http.Request) {
	orgID, ok := pathOrgID(w, r)
	if !ok {
		return
	}
	if _, err := a.Store.FindOrgByID(r.Context(), orgID); err != nil {
		writeError(w, http.StatusNotFound, "Organization not found")
		return
	}
	userID := userIDFromContext(r.Context())
	if err := a.Store.AddMember(r.Context(), userID, orgID); err != nil {
		if errors.Is(err, store.ErrAlreadyMember) {
			writeError(w, http.StatusBadRequest, "User is already a member of this organization")
			return
		}
		writeError(w, http.StatusInternalServerError, "could not join organization")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "joined"})
}

type memberResponse struct {
	UserID int64  `json:"user_id"`
	Email  string `json:"email"`
}

func (a *API) handleListMembers(w http.ResponseWriter, r *http.Request) {
	orgID, ok := pathOrgID(w, r)
	if !ok {
		return
	}
	if !a.requireOrgAndMembership(w, r, orgID) {
		return
	}
	members, err := a.Store.ListOrgMembers(r.Context(), orgID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not list members")
		return
	}
	out := make([]memberResponse, 0, len(members))
	for _, m := range members {
		out = append(out, memberResponse{UserID: m.ID, Email: m.Email})
	}
	writeJSON(w, http.StatusOK, out)
}

type allocateIPRequest struct {
	UserID int64 `json:"user_id"`
}

type allocateIPResponse struct {
	UserID    int64  `json:"user_id"`
	OrgID     int64  `json:"org_id"`
	VirtualIP string `json:"virtual_ip"`
}

func (a *API) handleAllocateIP(w http.ResponseWriter, r *http.Request) {
	orgID, ok := pathOrgID(w, r)
	if !ok {
		return
	}
	if !a.requireOrgAndMembership(w, r, orgID) {
		return
	}

	var req allocateIPRequest
	_ = json.NewDecoder(r.Body).Decode(&req) // request body is optional

	currentUser := userIDFromContext(r.Context())
	target := req.UserID
	if target == 0 {
		target = currentUser
	}
	if target != currentUser {
		writeError(w, http.StatusForbidden, "Can only allocate IP for yourself")
		return
	}

	ip, err := a.IPAM.EnsureIP(r.Context(), target, orgID)
	if err != nil {
		if errors.Is(err, ipam.ErrSubnetFull) {
			writeError(w, http.StatusBadRequest, "No available IPs in this organization's subnet")
			return
		}
		writeError(w, http.StatusInternalServerError, "could not allocate IP")
		return
	}
	writeJSON(w, http.StatusOK, allocateIPResponse{UserID: target, OrgID: orgID, VirtualIP: ip})
}

type ipInfoResponse struct {
	UserID    int64  `json:"user_id"`
	VirtualIP string `json:"virtual_ip"`
}

func (a *API) handleListIPs(w http.ResponseWriter, r *http.Request) {
	orgID, ok := pathOrgID(w, r)
	if !ok {
		return
	}
	if !a.requireOrgAndMembership(w, r, orgID) {
		return
	}
	mappings, err := a.Store.ListMappings(r.Context(), orgID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not list IPs")
		return
	}
	out := make([]ipInfoResponse, 0, len(mappings))
	for _, m := range mappings {
		out = append(out, ipInfoResponse{UserID: m.UserID, VirtualIP: m.VirtualIP})
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleHealthz(check func() bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil && !check() {
			writeError(w, http.StatusServiceUnavailable, "starting up")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// requireOrgAndMembership enforces organizations.py / virtual_ip.py's
// shared guard: org must exist (404) and the caller must be a member
// (403). It writes the error response itself and returns false on
// failure.
func (a *API) requireOrgAndMembership(w http.ResponseWriter, r *http.Request, orgID int64) bool {
	if _, err := a.Store.FindOrgByID(r.Context(), orgID); err != nil {
		writeError(w, http.StatusNotFound, "Organization not found")
		return false
	}
	userID := userIDFromContext(r.Context())
	isMember, err := a.Store.IsMember(r.Context(), userID, orgID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not check membership")
		return false
	}
	if !isMember {
		writeError(w, http.StatusForbidden, "User is not a member of this organization")
		return false
	}
	return true
}

func pathOrgID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	idStr := mux.Vars(r)["id"]
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid organization id")
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
