package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// LoadEnv loads variables from the given .env files (".env" when none are
// given) without overriding variables already set. Missing files are ignored.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// ApplyServerEnv overlays FRAGNET_* environment variables onto c.
func ApplyServerEnv(c *ServerConfig) error {
	var p envParser
	p.str("FRAGNET_SERVER_NAME", &c.Name)
	p.str("FRAGNET_VERSION", &c.Version)
	p.unsigned("FRAGNET_PORT", &c.Port)
	p.str("FRAGNET_ADDRESS", &c.Address)
	p.str("FRAGNET_REGION", &c.Region)
	p.str("FRAGNET_MASTER_URL", &c.MasterURL)
	p.integer("FRAGNET_TICK_RATE", &c.TickRate)
	p.integer("FRAGNET_MAX_PLAYERS", &c.MaxPlayers)
	p.boolean("FRAGNET_ANTICHEAT", &c.AntiCheatEnabled)
	p.boolean("FRAGNET_PHYSICS", &c.PhysicsEnabled)
	p.duration("FRAGNET_SNAPSHOT_HISTORY", &c.SnapshotHistory)
	p.duration("FRAGNET_RECONNECT_GRACE", &c.ReconnectGrace)
	p.str("FRAGNET_ARENA_DIR", &c.ArenaDir)
	p.str("FRAGNET_ARENA", &c.ArenaName)
	p.float("FRAGNET_MAX_SPEED", &c.AntiCheat.MaxSpeed)
	p.duration("FRAGNET_MAX_INPUT_GAP", &c.AntiCheat.MaxInputGap)
	p.duration("FRAGNET_RESPAWN_DELAY", &c.Combat.RespawnDelay)
	p.duration("FRAGNET_LAG_COMPENSATION", &c.Combat.LagCompensation)
	return p.err
}

// ApplyClientEnv overlays FRAGNET_* environment variables onto c.
func ApplyClientEnv(c *ClientConfig) error {
	var p envParser
	p.str("FRAGNET_ENDPOINT", &c.Endpoint)
	p.str("FRAGNET_VERSION", &c.Version)
	p.str("FRAGNET_PLAYER_NAME", &c.PlayerName)
	p.integer("FRAGNET_TICK_RATE", &c.TickRate)
	p.float("FRAGNET_MAX_SPEED", &c.MaxSpeed)
	p.duration("FRAGNET_PREDICTION_HORIZON", &c.MaxPredictionHorizon)
	p.duration("FRAGNET_INTERP_DELAY", &c.InterpolationDelay)
	p.integer("FRAGNET_INTERP_BUFFER", &c.InterpolationBufferSize)
	p.integer("FRAGNET_RECONNECT_ATTEMPTS", &c.MaxReconnectAttempts)
	p.duration("FRAGNET_RECONNECT_DELAY", &c.ReconnectBaseDelay)
	p.boolean("FRAGNET_DEBUG", &c.Debug)
	return p.err
}

// envParser records the first parse failure and skips unset variables.
type envParser struct {
	err error
}

func (p *envParser) lookup(key string) (string, bool) {
	if p.err != nil {
		return "", false
	}
	v, ok := os.LookupEnv(key)
	return v, ok && v != ""
}

func (p *envParser) fail(key, v string, err error) {
	p.err = fmt.Errorf("env %s=%q: %w", key, v, err)
}

func (p *envParser) str(key string, dst *string) {
	if v, ok := p.lookup(key); ok {
		*dst = v
	}
}

func (p *envParser) integer(key string, dst *int) {
	if v, ok := p.lookup(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			p.fail(key, v, err)
			return
		}
		*dst = n
	}
}

func (p *envParser) unsigned(key string, dst *uint) {
	if v, ok := p.lookup(key); ok {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			p.fail(key, v, err)
			return
		}
		*dst = uint(n)
	}
}

func (p *envParser) float(key string, dst *float64) {
	if v, ok := p.lookup(key); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			p.fail(key, v, err)
			return
		}
		*dst = f
	}
}

func (p *envParser) boolean(key string, dst *bool) {
	if v, ok := p.lookup(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			p.fail(key, v, err)
			return
		}
		*dst = b
	}
}

func (p *envParser) duration(key string, dst *time.Duration) {
	if v, ok := p.lookup(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			p.fail(key, v, err)
			return
		}
		*dst = d
	}
}
