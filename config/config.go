package config

import (
	"time"

	"github.com/automoto/fragnet/shared/netcomponents"
)

// ServerConfig contains everything the authoritative server needs.
type ServerConfig struct {
	Name      string `json:"name"`
	Version   string `json:"version"` // required client version, empty accepts any
	Port      uint   `json:"port"`
	Address   string `json:"address"` // public address announced to the master server
	Region    string `json:"region"`
	MasterURL string `json:"masterUrl"`

	TickRate   int `json:"tickRate"` // Hz
	MaxPlayers int `json:"maxPlayers"`

	AntiCheatEnabled bool `json:"antiCheatEnabled"`
	PhysicsEnabled   bool `json:"physicsEnabled"`

	// Snapshot history kept for lag compensation and late joiners.
	SnapshotHistory time.Duration `json:"snapshotHistory"`

	// Bounded pending-input FIFO per player; oldest commands drop when full.
	InputQueueSize int `json:"inputQueueSize"`

	// Per-connection inbound limits. Excess messages are dropped.
	InboundRate  float64 `json:"inboundRate"` // messages per second
	InboundBurst int     `json:"inboundBurst"`

	// How long a disconnected player's slot can be reclaimed with its token.
	ReconnectGrace time.Duration `json:"reconnectGrace"`

	ArenaDir  string `json:"arenaDir"` // empty uses the built-in arenas
	ArenaName string `json:"arenaName"`

	Physics   PhysicsConfig   `json:"physics"`
	Combat    CombatConfig    `json:"combat"`
	AntiCheat AntiCheatConfig `json:"antiCheat"`
}

// PhysicsConfig holds world integration constants (metres, seconds).
type PhysicsConfig struct {
	Gravity      float64 `json:"gravity"`
	MaxFallSpeed float64 `json:"maxFallSpeed"`
	Friction     float64 `json:"friction"` // ground deceleration of knockback, m/s per step
	Floor        float64 `json:"floor"`
	BodyRadius   float64 `json:"bodyRadius"`
	BodyHeight   float64 `json:"bodyHeight"`

	// Positions outside these bounds fail the whole-state sanity check.
	BoundsMin float64 `json:"boundsMin"`
	BoundsMax float64 `json:"boundsMax"`
}

// CombatConfig contains hit resolution and lifecycle values
type CombatConfig struct {
	MaxHealth          int                  `json:"maxHealth"`
	HitRadius          float64              `json:"hitRadius"`
	ProjectileLifetime float64              `json:"projectileLifetime"` // seconds
	Knockback          float64              `json:"knockback"`          // m/s per point of damage
	RespawnDelay       time.Duration        `json:"respawnDelay"`
	DefaultWeapon      netcomponents.Weapon `json:"defaultWeapon"`

	// How far behind the present a hitscan shooter sees other players.
	// Should match the clients' interpolation delay.
	LagCompensation time.Duration `json:"lagCompensation"`
}

// AntiCheatConfig bounds what an honest client can do in one command.
type AntiCheatConfig struct {
	MaxSpeed          float64 `json:"maxSpeed"`          // m/s
	PositionTolerance float64 `json:"positionTolerance"` // metres of slack on travel distance
	FireRateTolerance float64 `json:"fireRateTolerance"` // fraction of the nominal fire interval

	// Longest input gap credited as travel time, however far apart the
	// client stamps two commands.
	MaxInputGap time.Duration `json:"maxInputGap"`

	// Security reports logged per second per player, extra reports are counted only.
	ReportsPerSecond float64 `json:"reportsPerSecond"`
}

// ClientConfig contains the client networking options.
type ClientConfig struct {
	Endpoint   string `json:"endpoint"`
	Version    string `json:"version"`
	PlayerName string `json:"playerName"`

	TickRate int     `json:"tickRate"` // local simulation rate, must match the server
	MaxSpeed float64 `json:"maxSpeed"` // must match the server's anti-cheat bound

	MaxPredictionHorizon    time.Duration `json:"maxPredictionHorizon"`
	ReconcileTolerance      float64       `json:"reconcileTolerance"` // metres
	InterpolationDelay      time.Duration `json:"interpolationDelay"`
	InterpolationBufferSize int           `json:"interpolationBufferSize"`

	MaxReconnectAttempts int           `json:"maxReconnectAttempts"`
	ReconnectBaseDelay   time.Duration `json:"reconnectBaseDelay"`
	ConnectTimeout       time.Duration `json:"connectTimeout"`
	PingInterval         time.Duration `json:"pingInterval"`

	UnreliablePerPass   int `json:"unreliablePerPass"`
	UnreliableQueueSize int `json:"unreliableQueueSize"`

	Debug bool `json:"debug"`
}

// DefaultServer returns the built-in server configuration.
func DefaultServer() ServerConfig {
	return ServerConfig{
		Name:   "Fragnet Server",
		Port:   7373,
		Region: "local",

		TickRate:   60,
		MaxPlayers: 16,

		AntiCheatEnabled: true,
		PhysicsEnabled:   true,

		SnapshotHistory: 2 * time.Second,
		InputQueueSize:  32,
		InboundRate:     120,
		InboundBurst:    60,
		ReconnectGrace:  30 * time.Second,

		ArenaName: "warehouse",

		Physics: PhysicsConfig{
			Gravity:      20,
			MaxFallSpeed: 40,
			Friction:     0.5,
			Floor:        0,
			BodyRadius:   0.4,
			BodyHeight:   1.8,
			BoundsMin:    -1000,
			BoundsMax:    1000,
		},

		Combat: CombatConfig{
			MaxHealth:          100,
			HitRadius:          0.5,
			ProjectileLifetime: 2,
			Knockback:          0.05,
			RespawnDelay:       3 * time.Second,
			LagCompensation:    100 * time.Millisecond,
			DefaultWeapon: netcomponents.Weapon{
				Type:           "rifle",
				Damage:         20,
				MuzzleVelocity: 80,
				FireRateRPM:    600,
				MagazineSize:   30,
				ReloadMillis:   1500,
			},
		},

		AntiCheat: AntiCheatConfig{
			MaxSpeed:          10,
			PositionTolerance: 0.5,
			FireRateTolerance: 0.8,
			MaxInputGap:       time.Second,
			ReportsPerSecond:  2,
		},
	}
}

// DefaultClient returns the built-in client configuration.
func DefaultClient() ClientConfig {
	return ClientConfig{
		Endpoint:   "localhost:7373",
		PlayerName: "player",

		TickRate: 60,
		MaxSpeed: 10,

		MaxPredictionHorizon:    200 * time.Millisecond,
		ReconcileTolerance:      0.05,
		InterpolationDelay:      100 * time.Millisecond,
		InterpolationBufferSize: 3,

		MaxReconnectAttempts: 3,
		ReconnectBaseDelay:   2000 * time.Millisecond,
		ConnectTimeout:       5 * time.Second,
		PingInterval:         time.Second,

		UnreliablePerPass:   8,
		UnreliableQueueSize: 64,
	}
}

// SnapshotCapacity returns how many snapshots cover SnapshotHistory.
func (c ServerConfig) SnapshotCapacity() int {
	n := int(c.SnapshotHistory.Seconds() * float64(c.TickRate))
	if n < 1 {
		n = 1
	}
	return n
}

// TickDuration returns the length of one tick.
func (c ServerConfig) TickDuration() time.Duration {
	if c.TickRate <= 0 {
		return time.Second / 60
	}
	return time.Second / time.Duration(c.TickRate)
}
