// Package snapshot keeps a bounded history of authoritative world states for
// lag compensation and late-joining clients.
package snapshot

import (
	"errors"
	"sync"

	"github.com/automoto/fragnet/shared/netcomponents"
)

// ErrNotFound is returned when the requested tick is older than the retained
// window or the store is empty. Callers fall back to Latest.
var ErrNotFound = errors.New("snapshot: tick not retained")

// Snapshot is a copy of the canonical state at one tick. Once appended it is
// never modified; readers must treat the maps as read-only.
type Snapshot struct {
	Tick        uint64
	Timestamp   int64 // server Unix ms
	Players     map[netcomponents.PlayerID]netcomponents.NetPlayerData
	Projectiles map[netcomponents.ProjectileID]netcomponents.NetProjectileData
}

// Player returns the copied state of one player.
func (s *Snapshot) Player(id netcomponents.PlayerID) (netcomponents.NetPlayerData, bool) {
	p, ok := s.Players[id]
	return p, ok
}

// Store is a fixed-capacity ring buffer of snapshots ordered by tick. It has a
// single writer (the tick) and any number of concurrent readers.
type Store struct {
	mu    sync.RWMutex
	ring  []*Snapshot
	head  int // index of the oldest entry
	count int
}

func NewStore(capacity int) *Store {
	if capacity < 1 {
		capacity = 1
	}
	return &Store{ring: make([]*Snapshot, capacity)}
}

// Append stores a copy of snap, evicting the oldest entry when full. Ticks
// must be strictly increasing; a snapshot that does not advance the newest
// tick is ignored.
func (s *Store) Append(snap Snapshot) bool {
	stored := clone(snap)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.count > 0 && stored.Tick <= s.at(s.count-1).Tick {
		return false
	}

	if s.count < len(s.ring) {
		s.ring[(s.head+s.count)%len(s.ring)] = stored
		s.count++
		return true
	}

	s.ring[s.head] = stored
	s.head = (s.head + 1) % len(s.ring)
	return true
}

// Get returns the snapshot at tick or the nearest one before it.
func (s *Store) Get(tick uint64) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.count == 0 || tick < s.at(0).Tick {
		return nil, ErrNotFound
	}

	// Binary search for the last entry with Tick <= tick.
	lo, hi := 0, s.count-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if s.at(mid).Tick <= tick {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return s.at(lo), nil
}

// Latest returns the newest snapshot.
func (s *Store) Latest() (*Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.count == 0 {
		return nil, false
	}
	return s.at(s.count - 1), true
}

// Oldest returns the oldest retained snapshot.
func (s *Store) Oldest() (*Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.count == 0 {
		return nil, false
	}
	return s.at(0), true
}

// GetOrLatest is Get with the documented fallback to the newest snapshot.
func (s *Store) GetOrLatest(tick uint64) (*Snapshot, bool) {
	if snap, err := s.Get(tick); err == nil {
		return snap, true
	}
	return s.Latest()
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

func (s *Store) Cap() int { return len(s.ring) }

func (s *Store) at(i int) *Snapshot {
	return s.ring[(s.head+i)%len(s.ring)]
}

func clone(snap Snapshot) *Snapshot {
	out := &Snapshot{
		Tick:        snap.Tick,
		Timestamp:   snap.Timestamp,
		Players:     make(map[netcomponents.PlayerID]netcomponents.NetPlayerData, len(snap.Players)),
		Projectiles: make(map[netcomponents.ProjectileID]netcomponents.NetProjectileData, len(snap.Projectiles)),
	}
	for id, p := range snap.Players {
		out.Players[id] = p
	}
	for id, p := range snap.Projectiles {
		out.Projectiles[id] = p
	}
	return out
}
