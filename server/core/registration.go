package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/automoto/fragnet/config"
)

// PlayerCounter reports how many players occupy the server.
type PlayerCounter interface {
	PlayerCount() int
}

var errNotRegistered = errors.New("master does not know this server")

// Registration announces the server to the master server list and keeps the
// entry alive with periodic heartbeats carrying the current player count.
type Registration struct {
	masterURL string
	listing   regRequest
	players   PlayerCounter
	client    *http.Client
	interval  time.Duration

	mu       sync.Mutex
	serverID string

	ctx    context.Context
	cancel context.CancelFunc
}

type regRequest struct {
	Name       string `json:"name"`
	Address    string `json:"address"`
	Players    int    `json:"players"`
	MaxPlayers int    `json:"maxPlayers"`
	TickRate   int    `json:"tickRate"`
	Version    string `json:"version"`
	Region     string `json:"region"`
}

type regResponse struct {
	ID string `json:"id"`
}

type heartbeatRequest struct {
	ID      string `json:"id"`
	Players int    `json:"players"`
}

// NewRegistration announces the server described by cfg to cfg.MasterURL.
func NewRegistration(cfg config.ServerConfig, players PlayerCounter) *Registration {
	address := cfg.Address
	if address == "" {
		address = fmt.Sprintf("localhost:%d", cfg.Port)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Registration{
		masterURL: cfg.MasterURL,
		listing: regRequest{
			Name:       cfg.Name,
			Address:    address,
			MaxPlayers: cfg.MaxPlayers,
			TickRate:   cfg.TickRate,
			Version:    cfg.Version,
			Region:     cfg.Region,
		},
		players:  players,
		client:   &http.Client{Timeout: 5 * time.Second},
		interval: 30 * time.Second,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// ServerID returns the id assigned by the master server, if registered.
func (r *Registration) ServerID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.serverID
}

// Start registers in the background and heartbeats until Stop. A master
// that is down at startup is retried on every heartbeat.
func (r *Registration) Start() {
	go func() {
		if err := r.register(); err != nil {
			log.Printf("[registration] initial registration failed: %v", err)
		}
		r.heartbeatLoop()
	}()
}

func (r *Registration) Stop() { r.cancel() }

func (r *Registration) register() error {
	listing := r.listing
	listing.Players = r.players.PlayerCount()

	var result regResponse
	if err := r.post("/servers/register", listing, http.StatusCreated, &result); err != nil {
		return fmt.Errorf("register: %w", err)
	}

	r.mu.Lock()
	r.serverID = result.ID
	r.mu.Unlock()
	log.Printf("[registration] registered with master (id=%s)", result.ID)
	return nil
}

func (r *Registration) heartbeatLoop() {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			if err := r.sendHeartbeat(); err != nil {
				log.Printf("[registration] heartbeat failed: %v", err)
			}
		}
	}
}

// sendHeartbeat refreshes the listing, registering again when the master
// has expired or never saw it.
func (r *Registration) sendHeartbeat() error {
	id := r.ServerID()
	if id != "" {
		err := r.post("/servers/heartbeat", heartbeatRequest{ID: id, Players: r.players.PlayerCount()}, http.StatusOK, nil)
		if !errors.Is(err, errNotRegistered) {
			return err
		}
		log.Println("[registration] master lost our registration, re-registering")
	}
	return r.register()
}

// post sends payload as JSON and decodes the reply into out when non-nil.
func (r *Registration) post(path string, payload any, want int, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(r.ctx, http.MethodPost, r.masterURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return errNotRegistered
	case resp.StatusCode != want:
		return fmt.Errorf("post %s: unexpected status %d", path, resp.StatusCode)
	case out == nil:
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}
