package master

import (
	"encoding/json"
	"log"
	"net/http"
)

const maxRequestBody = 1 << 16 // 64 KB

type registerRequest struct {
	Name       string `json:"name"`
	Address    string `json:"address"`
	Players    int    `json:"players"`
	MaxPlayers int    `json:"maxPlayers"`
	TickRate   int    `json:"tickRate"`
	Version    string `json:"version"`
	Region     string `json:"region"`
}

type registerResponse struct {
	ID string `json:"id"`
}

type heartbeatRequest struct {
	ID      string `json:"id"`
	Players int    `json:"players"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewHandler routes the master server's HTTP API.
func NewHandler(reg *Registry) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /servers", ListServers(reg))
	mux.HandleFunc("POST /servers/register", RegisterServer(reg))
	mux.HandleFunc("POST /servers/heartbeat", Heartbeat(reg))
	mux.HandleFunc("GET /health", Health())
	return mux
}

// ListServers returns live servers. The optional version and region query
// parameters keep only matching servers; servers that accept any version
// always match.
func ListServers(reg *Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		version := r.URL.Query().Get("version")
		region := r.URL.Query().Get("region")

		servers := reg.List()
		filtered := servers[:0]
		for _, s := range servers {
			if version != "" && s.Version != "" && s.Version != version {
				continue
			}
			if region != "" && s.Region != region {
				continue
			}
			filtered = append(filtered, s)
		}
		writeJSON(w, http.StatusOK, filtered)
	}
}

func RegisterServer(reg *Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req registerRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Name == "" || req.Address == "" {
			writeJSON(w, http.StatusBadRequest, errorResponse{"name and address required"})
			return
		}
		if req.Players < 0 || req.MaxPlayers < 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{"player counts must not be negative"})
			return
		}

		id := reg.Register(ServerInfo{
			Name:       req.Name,
			Address:    req.Address,
			Players:    req.Players,
			MaxPlayers: req.MaxPlayers,
			TickRate:   req.TickRate,
			Version:    req.Version,
			Region:     req.Region,
		})

		log.Printf("[master] registered server %q at %s (id=%s)", req.Name, req.Address, id)
		writeJSON(w, http.StatusCreated, registerResponse{ID: id})
	}
}

func Heartbeat(reg *Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req heartbeatRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if !reg.Heartbeat(req.ID, req.Players) {
			writeJSON(w, http.StatusNotFound, errorResponse{"unknown server"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func Health() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{"invalid json"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[master] encode error: %v", err)
	}
}
