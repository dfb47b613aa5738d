// Package master is the server browser: game servers register and heartbeat,
// clients list the live ones.
package master

import (
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ServerInfo describes a game server visible to clients.
type ServerInfo struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Address    string `json:"address"`
	Players    int    `json:"players"`
	MaxPlayers int    `json:"maxPlayers"`
	TickRate   int    `json:"tickRate"`
	Version    string `json:"version"`
	Region     string `json:"region"`
}

type serverRecord struct {
	ServerInfo
	LastSeen time.Time
}

// Registry is an in-memory store of active game servers with TTL-based expiry.
type Registry struct {
	mu      sync.RWMutex
	servers map[string]*serverRecord
	ttl     time.Duration
	clock   func() time.Time
	stopCh  chan struct{}
	stop    sync.Once
}

func NewRegistry(ttl time.Duration, clock func() time.Time) *Registry {
	if clock == nil {
		clock = time.Now
	}
	return &Registry{
		servers: make(map[string]*serverRecord),
		ttl:     ttl,
		clock:   clock,
		stopCh:  make(chan struct{}),
	}
}

// Run expires stale servers every interval until Stop is called.
func (r *Registry) Run(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.Expire()
		}
	}
}

func (r *Registry) Stop() {
	r.stop.Do(func() { close(r.stopCh) })
}

func (r *Registry) Register(info ServerInfo) string {
	info.ID = uuid.NewString()

	r.mu.Lock()
	r.servers[info.ID] = &serverRecord{
		ServerInfo: info,
		LastSeen:   r.clock(),
	}
	r.mu.Unlock()

	return info.ID
}

func (r *Registry) Heartbeat(id string, players int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.servers[id]
	if !ok {
		return false
	}
	rec.LastSeen = r.clock()
	rec.Players = players
	return true
}

// List returns live servers, fullest first, then by name.
func (r *Registry) List() []ServerInfo {
	r.mu.RLock()
	result := make([]ServerInfo, 0, len(r.servers))
	for _, rec := range r.servers {
		result = append(result, rec.ServerInfo)
	}
	r.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if result[i].Players != result[j].Players {
			return result[i].Players > result[j].Players
		}
		return result[i].Name < result[j].Name
	})
	return result
}

// Expire drops servers that have not been seen within the TTL.
func (r *Registry) Expire() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock()
	n := 0
	for id, rec := range r.servers {
		if now.Sub(rec.LastSeen) >= r.ttl {
			log.Printf("[master] expired server %q (id=%s, last seen %s ago)",
				rec.Name, id, now.Sub(rec.LastSeen).Round(time.Second))
			delete(r.servers, id)
			n++
		}
	}
	return n
}
