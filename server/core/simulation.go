package core

import (
	"errors"
	"log"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/automoto/fragnet/config"
	"github.com/automoto/fragnet/server/anticheat"
	"github.com/automoto/fragnet/server/snapshot"
	"github.com/automoto/fragnet/shared/gamemath"
	"github.com/automoto/fragnet/shared/messages"
	"github.com/automoto/fragnet/shared/movement"
	"github.com/automoto/fragnet/shared/netcomponents"
	"github.com/automoto/fragnet/tags"
	"github.com/yohamta/donburi"
	"github.com/yohamta/donburi/filter"
)

var ErrUnknownPlayer = errors.New("core: unknown player")

// playerSlot is the server-only data kept beside a player's component.
type playerSlot struct {
	entity donburi.Entity
	body   *Body
}

type opKind int

const (
	opAdd opKind = iota
	opRemove
	opResetInput
)

// lifecycleOp is a join, leave or reconnect requested by a connection
// goroutine and applied at the start of the next tick.
type lifecycleOp struct {
	kind     opKind
	id       netcomponents.PlayerID
	spawn    gamemath.Vec3
	hasSpawn bool
}

// Simulation owns the canonical game state. Only Tick mutates it.
type Simulation struct {
	mu sync.RWMutex

	cfg         config.ServerConfig
	world       donburi.World
	level       *Level
	geometry    Geometry
	validator   *anticheat.Validator
	reporter    anticheat.Reporter
	store       *snapshot.Store
	broadcaster Broadcaster
	observers   []Observer

	move        movement.Params
	dt          float64
	tickMillis  float64
	players     map[netcomponents.PlayerID]*playerSlot
	order       []netcomponents.PlayerID // ascending, the processing order
	tick        uint64
	events      []messages.Event
	reports     []anticheat.Report
	tasks       scheduler
	spawnCursor int

	// Input queues and lifecycle requests are written by connection
	// goroutines and never take mu.
	queuesMu sync.RWMutex
	queues   map[netcomponents.PlayerID]*InputQueue
	opsMu    sync.Mutex
	ops      []lifecycleOp
}

// Option customises a Simulation.
type Option func(*Simulation)

// WithGeometry replaces the level as the raycast/overlap source.
func WithGeometry(g Geometry) Option {
	return func(s *Simulation) { s.geometry = g }
}

func WithReporter(r anticheat.Reporter) Option {
	return func(s *Simulation) { s.reporter = r }
}

func WithBroadcaster(b Broadcaster) Option {
	return func(s *Simulation) { s.broadcaster = b }
}

func WithObserver(o Observer) Option {
	return func(s *Simulation) { s.observers = append(s.observers, o) }
}

// NewSimulation creates a simulation over level. A nil level is an empty
// open arena.
func NewSimulation(cfg config.ServerConfig, level *Level, opts ...Option) *Simulation {
	if level == nil {
		level = NewLevel(nil)
	}
	step := cfg.TickDuration()

	s := &Simulation{
		cfg:        cfg,
		world:      donburi.NewWorld(),
		level:      level,
		geometry:   level,
		store:      snapshot.NewStore(cfg.SnapshotCapacity()),
		dt:         step.Seconds(),
		tickMillis: float64(step) / float64(time.Millisecond),
		players:    make(map[netcomponents.PlayerID]*playerSlot),
		queues:     make(map[netcomponents.PlayerID]*InputQueue),
	}
	s.move = movement.Params{MaxSpeed: cfg.AntiCheat.MaxSpeed, StepSeconds: s.dt}
	s.validator = anticheat.NewValidator(anticheat.LimitsFrom(cfg.AntiCheat, s.dt))
	s.reporter = anticheat.NewLogReporter(cfg.AntiCheat.ReportsPerSecond)

	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe adds an external observer. Safe to call between ticks.
func (s *Simulation) Subscribe(o Observer) {
	s.mu.Lock()
	s.observers = append(s.observers, o)
	s.mu.Unlock()
}

// AddPlayer registers a player that spawns at the next free spawn point on
// the next tick. Input may be enqueued immediately.
func (s *Simulation) AddPlayer(id netcomponents.PlayerID) {
	s.addPlayer(lifecycleOp{kind: opAdd, id: id})
}

// AddPlayerAt is AddPlayer with an explicit spawn position.
func (s *Simulation) AddPlayerAt(id netcomponents.PlayerID, spawn gamemath.Vec3) {
	s.addPlayer(lifecycleOp{kind: opAdd, id: id, spawn: spawn, hasSpawn: true})
}

func (s *Simulation) addPlayer(op lifecycleOp) {
	s.queuesMu.Lock()
	if _, ok := s.queues[op.id]; !ok {
		s.queues[op.id] = NewInputQueue(s.cfg.InputQueueSize)
	}
	s.queuesMu.Unlock()
	s.pushOp(op)
}

// RemovePlayer drops a player on the next tick. Queued input is discarded.
func (s *Simulation) RemovePlayer(id netcomponents.PlayerID) {
	s.queuesMu.Lock()
	delete(s.queues, id)
	s.queuesMu.Unlock()
	s.pushOp(lifecycleOp{kind: opRemove, id: id})
}

// ResetInput forgets a player's input history so a reconnecting client can
// restart its sequence numbers.
func (s *Simulation) ResetInput(id netcomponents.PlayerID) {
	s.pushOp(lifecycleOp{kind: opResetInput, id: id})
}

func (s *Simulation) pushOp(op lifecycleOp) {
	s.opsMu.Lock()
	s.ops = append(s.ops, op)
	s.opsMu.Unlock()
}

// EnqueueInput queues a command for the player's next tick. It is safe to
// call from any goroutine.
func (s *Simulation) EnqueueInput(id netcomponents.PlayerID, cmd messages.InputCommand) error {
	s.queuesMu.RLock()
	q, ok := s.queues[id]
	s.queuesMu.RUnlock()
	if !ok {
		return ErrUnknownPlayer
	}
	if q.Push(cmd) {
		log.Printf("[sim] input queue full for player %d, dropped oldest", id)
	}
	return nil
}

// PlayerCount returns the number of joined players, including those that
// spawn on the next tick.
func (s *Simulation) PlayerCount() int {
	s.queuesMu.RLock()
	defer s.queuesMu.RUnlock()
	return len(s.queues)
}

// Player returns a copy of a player's current state.
func (s *Simulation) Player(id netcomponents.PlayerID) (netcomponents.NetPlayerData, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p := s.state(id)
	if p == nil {
		return netcomponents.NetPlayerData{}, false
	}
	return *p, true
}

// Projectiles returns copies of every live projectile ordered by id.
func (s *Simulation) Projectiles() []netcomponents.NetProjectileData {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := s.projectileEntries()
	out := make([]netcomponents.NetProjectileData, 0, len(entries))
	for _, e := range entries {
		out = append(out, *netcomponents.NetProjectile.Get(e))
	}
	return out
}

// Snapshot returns the stored state at tick or the nearest one before it.
func (s *Simulation) Snapshot(tick uint64) (*snapshot.Snapshot, error) {
	return s.store.Get(tick)
}

// LatestSnapshot returns the newest stored state, for late joiners.
func (s *Simulation) LatestSnapshot() (*snapshot.Snapshot, bool) {
	return s.store.Latest()
}

// CurrentTick returns the number of the last completed tick.
func (s *Simulation) CurrentTick() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tick
}

// Tick advances the simulation by one fixed step. Ticks must not overlap;
// the game loop is the only caller in production.
func (s *Simulation) Tick(now time.Time) messages.StateUpdate {
	s.mu.Lock()
	s.tick++
	s.events = nil
	s.reports = nil

	s.applyLifecycle()
	s.runTasks()
	if s.cfg.PhysicsEnabled {
		s.stepPhysics()
	}
	s.stepProjectiles()
	s.processInputs(now)
	s.checkSanity(now)

	snap := s.capture(now)
	s.store.Append(snap)
	update := s.buildUpdate(snap)

	reports := s.reports
	broadcaster := s.broadcaster
	observers := s.observers
	s.mu.Unlock()

	for _, r := range reports {
		s.reporter.Report(r)
	}
	if broadcaster != nil {
		broadcaster.Broadcast(update)
	}
	notifyObservers(observers, update)
	return update
}

func (s *Simulation) applyLifecycle() {
	s.opsMu.Lock()
	ops := s.ops
	s.ops = nil
	s.opsMu.Unlock()

	for _, op := range ops {
		switch op.kind {
		case opAdd:
			s.spawnPlayer(op)
		case opRemove:
			s.despawnPlayer(op.id)
		case opResetInput:
			if p := s.state(op.id); p != nil {
				p.LastSequence = 0
				p.LastInputTimestamp = 0
				p.LastShotTimestamp = 0
			}
		}
	}
}

func (s *Simulation) spawnPlayer(op lifecycleOp) {
	if _, exists := s.players[op.id]; exists {
		return
	}

	pos := op.spawn
	if !op.hasSpawn {
		pos = s.level.Spawn(s.spawnCursor)
		s.spawnCursor++
	}

	entity := s.world.Create(tags.Player, netcomponents.NetPlayer)
	p := netcomponents.NetPlayer.Get(s.world.Entry(entity))
	*p = netcomponents.NetPlayerData{
		ID:                op.id,
		Position:          pos,
		Rotation:          gamemath.V(0, 0, 1),
		OnGround:          true,
		Health:            s.cfg.Combat.MaxHealth,
		MaxHealth:         s.cfg.Combat.MaxHealth,
		Ammo:              s.cfg.Combat.DefaultWeapon.MagazineSize,
		Weapon:            s.cfg.Combat.DefaultWeapon,
		Alive:             true,
		LastValidPosition: pos,
	}

	s.players[op.id] = &playerSlot{
		entity: entity,
		body:   s.level.AddBody(pos, s.cfg.Physics.BodyRadius, s.cfg.Physics.BodyHeight),
	}
	i := sort.Search(len(s.order), func(i int) bool { return s.order[i] >= op.id })
	s.order = append(s.order, 0)
	copy(s.order[i+1:], s.order[i:])
	s.order[i] = op.id

	s.emit(messages.Event{Kind: messages.EventSpawn, Target: op.id, Position: pos})
	log.Printf("[sim] player %d spawned at (%.1f, %.1f, %.1f)", op.id, pos.X, pos.Y, pos.Z)
}

func (s *Simulation) despawnPlayer(id netcomponents.PlayerID) {
	slot, ok := s.players[id]
	if !ok {
		return
	}
	var pos gamemath.Vec3
	if p := s.state(id); p != nil {
		pos = p.Position
	}

	s.tasks.cancelAll(id)
	s.level.RemoveBody(slot.body)
	if s.world.Valid(slot.entity) {
		s.world.Remove(slot.entity)
	}
	delete(s.players, id)
	for i, other := range s.order {
		if other == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}

	if f, ok := s.reporter.(interface{ Forget(netcomponents.PlayerID) }); ok {
		f.Forget(id)
	}
	s.emit(messages.Event{Kind: messages.EventDespawn, Target: id, Position: pos})
	log.Printf("[sim] player %d removed", id)
}

func (s *Simulation) runTasks() {
	for _, t := range s.tasks.due(s.tick) {
		p := s.state(t.player)
		if p == nil {
			continue
		}
		switch t.kind {
		case taskRespawn:
			s.respawn(t.player, p)
		case taskReloadDone:
			if p.Alive && p.Reloading {
				p.Reloading = false
				p.Ammo = p.Weapon.MagazineSize
			}
		}
	}
}

func (s *Simulation) respawn(id netcomponents.PlayerID, p *netcomponents.NetPlayerData) {
	if p.Alive {
		return
	}
	pos := s.level.Spawn(s.spawnCursor)
	s.spawnCursor++

	p.Alive = true
	p.Health = p.MaxHealth
	p.Ammo = p.Weapon.MagazineSize
	p.Reloading = false
	p.Position = pos
	p.Velocity = gamemath.Vec3{}
	p.OnGround = true
	p.LastValidPosition = pos
	s.level.Place(s.players[id].body, pos)

	s.emit(messages.Event{Kind: messages.EventRespawn, Target: id, Position: pos})
}

func (s *Simulation) processInputs(now time.Time) {
	for _, id := range s.order {
		s.queuesMu.RLock()
		q := s.queues[id]
		s.queuesMu.RUnlock()
		if q == nil {
			continue
		}

		p := s.state(id)
		cmd, ok := nextCommand(q, p)
		if !ok || !p.Alive {
			continue
		}

		if s.cfg.AntiCheatEnabled {
			if verdict := s.validator.Validate(*p, cmd); !verdict.Accepted {
				p.Suspicion++
				s.report(now, *p, verdict.Reason, verdict.Detail)
				continue
			}
		}
		s.applyInput(id, cmd, now)
	}
}

// nextCommand pops the oldest command that is newer than the last one
// processed. Stale commands are dropped silently.
func nextCommand(q *InputQueue, p *netcomponents.NetPlayerData) (messages.InputCommand, bool) {
	for {
		cmd, ok := q.Pop()
		if !ok {
			return cmd, false
		}
		if cmd.Sequence <= p.LastSequence || cmd.Timestamp < p.LastInputTimestamp {
			continue
		}
		return cmd, true
	}
}

func (s *Simulation) applyInput(id netcomponents.PlayerID, cmd messages.InputCommand, now time.Time) {
	p := s.state(id)
	next := movement.Apply(*p, cmd, s.move)

	delta := next.Position.Sub(p.Position)
	if delta != (gamemath.Vec3{}) {
		next.Position, _, _ = s.level.Move(s.players[id].body, p.Position, delta)
	}

	p.Position = next.Position
	p.Rotation = next.Rotation
	p.LastSequence = next.LastSequence
	p.LastValidPosition = p.Position
	p.LastInputTimestamp = cmd.Timestamp

	if cmd.Fire {
		s.fire(id, cmd, now)
	}
	if cmd.Reload {
		s.startReload(id)
	}
}

func (s *Simulation) report(now time.Time, p netcomponents.NetPlayerData, reason anticheat.Reason, detail string) {
	s.reports = append(s.reports, anticheat.Report{
		PlayerID:  p.ID,
		Reason:    reason,
		Detail:    detail,
		Timestamp: now.UnixMilli(),
		Tick:      s.tick,
		Count:     p.Suspicion,
		State:     p,
	})
}

func (s *Simulation) capture(now time.Time) snapshot.Snapshot {
	snap := snapshot.Snapshot{
		Tick:        s.tick,
		Timestamp:   now.UnixMilli(),
		Players:     make(map[netcomponents.PlayerID]netcomponents.NetPlayerData, len(s.order)),
		Projectiles: make(map[netcomponents.ProjectileID]netcomponents.NetProjectileData),
	}
	for _, id := range s.order {
		snap.Players[id] = *s.state(id)
	}
	for _, e := range s.projectileEntries() {
		pr := netcomponents.NetProjectile.Get(e)
		snap.Projectiles[pr.ID] = *pr
	}
	return snap
}

func (s *Simulation) buildUpdate(snap snapshot.Snapshot) messages.StateUpdate {
	update := stateFromSnapshot(&snap)
	update.Events = s.events
	return update
}

func (s *Simulation) emit(e messages.Event) {
	e.Tick = s.tick
	s.events = append(s.events, e)
}

// state returns the live component of a player. The pointer is only valid
// until the next entity is created or removed.
func (s *Simulation) state(id netcomponents.PlayerID) *netcomponents.NetPlayerData {
	slot, ok := s.players[id]
	if !ok || !s.world.Valid(slot.entity) {
		return nil
	}
	return netcomponents.NetPlayer.Get(s.world.Entry(slot.entity))
}

var projectileQuery = donburi.NewQuery(filter.Contains(tags.Projectile, netcomponents.NetProjectile))

// projectileEntries returns live projectiles ordered by id.
func (s *Simulation) projectileEntries() []*donburi.Entry {
	var out []*donburi.Entry
	projectileQuery.Each(s.world, func(e *donburi.Entry) {
		out = append(out, e)
	})
	sort.Slice(out, func(i, j int) bool {
		return netcomponents.NetProjectile.Get(out[i]).ID < netcomponents.NetProjectile.Get(out[j]).ID
	})
	return out
}

// ticksFor converts a duration to a whole number of ticks, at least one.
func (s *Simulation) ticksFor(d time.Duration) uint64 {
	n := math.Ceil(float64(d) / float64(time.Millisecond) / s.tickMillis)
	if n < 1 {
		return 1
	}
	return uint64(n)
}

// chest is the point shots are fired from and aimed at.
func (s *Simulation) chest(pos gamemath.Vec3) gamemath.Vec3 {
	return pos.Add(gamemath.V(0, s.cfg.Physics.BodyHeight/2, 0))
}
