package network

import (
	"fmt"
	"strings"
	"sync"

	"github.com/quasilyte/gdata"
)

// TokenStore keeps reconnect tokens per server endpoint so a restarted
// client can reclaim its player.
type TokenStore interface {
	LoadToken(endpoint string) (string, error)
	SaveToken(endpoint, token string) error
}

// MemoryTokenStore keeps tokens for the life of the process.
type MemoryTokenStore struct {
	mu     sync.Mutex
	tokens map[string]string
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{tokens: make(map[string]string)}
}

func (s *MemoryTokenStore) LoadToken(endpoint string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens[endpoint], nil
}

func (s *MemoryTokenStore) SaveToken(endpoint, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[endpoint] = token
	return nil
}

// GdataTokenStore persists tokens in the per-user application data directory.
type GdataTokenStore struct {
	m *gdata.Manager
}

func NewGdataTokenStore(appName string) (*GdataTokenStore, error) {
	m, err := gdata.Open(gdata.Config{AppName: appName})
	if err != nil {
		return nil, fmt.Errorf("open app data: %w", err)
	}
	return &GdataTokenStore{m: m}, nil
}

func (s *GdataTokenStore) LoadToken(endpoint string) (string, error) {
	data, err := s.m.LoadItem(tokenKey(endpoint))
	if err != nil {
		return "", fmt.Errorf("load token: %w", err)
	}
	return string(data), nil
}

func (s *GdataTokenStore) SaveToken(endpoint, token string) error {
	if err := s.m.SaveItem(tokenKey(endpoint), []byte(token)); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	return nil
}

// tokenKey turns an endpoint into a file-safe item key.
func tokenKey(endpoint string) string {
	key := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
			return r
		}
		return '_'
	}, endpoint)
	return "token_" + key
}
