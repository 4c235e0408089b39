package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/mohamedkhairy/chat-relay/internal/presence"
	"github.com/mohamedkhairy/chat-relay/internal/relay"
)

// NewAPIRouter mounts the versioned API under root. A mux subrouter without
// its own MethodNotAllowedHandler answers a wrong method with 404, so a JSON
// 405 is installed here.
func NewAPIRouter(root *mux.Router) *mux.Router {
	v1 := root.PathPrefix("/api/v1").Subrouter()
	v1.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)
	return v1
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
}

// PresenceHandler exposes the presence directory over HTTP
type PresenceHandler struct {
	directory presence.Directory
}

// NewPresenceHandler creates a new presence handler
func NewPresenceHandler(directory presence.Directory) *PresenceHandler {
	return &PresenceHandler{directory: directory}
}

// Register mounts the presence routes on router
func (h *PresenceHandler) Register(router *mux.Router) {
	router.HandleFunc("/users/online", h.ListOnline).Methods("GET", "OPTIONS")
	router.HandleFunc("/users/{userId}/presence", h.GetPresence).Methods("GET", "OPTIONS")
}

// ListOnline handles GET /api/v1/users/online
func (h *PresenceHandler) ListOnline(w http.ResponseWriter, r *http.Request) {
	users := h.directory.AllIdentities()
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"users": users,
		"count": len(users),
	})
}

// PresenceResponse is the body of GET /api/v1/users/{userId}/presence
type PresenceResponse struct {
	UserID       string `json:"user_id"`
	Online       bool   `json:"online"`
	ConnectionID string `json:"connection_id,omitempty"`
}

// GetPresence handles GET /api/v1/users/{userId}/presence
func (h *PresenceHandler) GetPresence(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]
	if err := presence.ValidateIdentity(userID); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	handle, online := h.directory.Lookup(userID)
	respondWithJSON(w, http.StatusOK, PresenceResponse{
		UserID:       userID,
		Online:       online,
		ConnectionID: handle,
	})
}

// HubStatus is what the health endpoints read from the relay hub
type HubStatus interface {
	Running() bool
	GetStats() relay.HubStats
}

// HealthHandler serves liveness, readiness and stats endpoints
type HealthHandler struct {
	hub HubStatus
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(hub HubStatus) *HealthHandler {
	return &HealthHandler{hub: hub}
}

// Register mounts the health routes on router
func (h *HealthHandler) Register(router *mux.Router) {
	router.HandleFunc("/health", h.Health).Methods("GET")
	router.HandleFunc("/live", h.Live).Methods("GET")
	router.HandleFunc("/ready", h.Ready).Methods("GET")
	router.HandleFunc("/stats", h.Stats).Methods("GET")
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// Live handles GET /live
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// Ready handles GET /ready; the relay is ready while its hub runs
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if !h.hub.Running() {
		respondWithJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// Stats handles GET /stats
func (h *HealthHandler) Stats(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, h.hub.GetStats())
}
