package core

import (
	"time"

	"github.com/automoto/fragnet/shared/gamemath"
	"github.com/automoto/fragnet/shared/messages"
	"github.com/automoto/fragnet/shared/netcomponents"
	"github.com/automoto/fragnet/tags"
	"github.com/yohamta/donburi"
)

// fire spends one round and launches a projectile or resolves a hitscan
// shot. The weapon state is checked again here because the validator may be
// disabled.
func (s *Simulation) fire(id netcomponents.PlayerID, cmd messages.InputCommand, now time.Time) {
	p := s.state(id)
	if !p.Alive || p.Reloading || p.Ammo <= 0 {
		return
	}
	aim := cmd.Aim.Normalize()
	if aim == (gamemath.Vec3{}) {
		aim = p.Rotation.Normalize()
	}
	if aim == (gamemath.Vec3{}) {
		return
	}

	p.Ammo--
	p.LastShotTimestamp = cmd.Timestamp
	weapon := p.Weapon
	muzzle := s.chest(p.Position)
	empty := p.Ammo == 0

	if weapon.Hitscan {
		s.emit(messages.Event{Kind: messages.EventFire, Source: id, Position: muzzle})
		s.hitscan(id, muzzle, aim, weapon, cmd.Timestamp, now)
	} else {
		pid := s.spawnProjectile(id, muzzle, aim, weapon)
		s.emit(messages.Event{Kind: messages.EventFire, Source: id, Position: muzzle, Projectile: pid})
	}

	if empty {
		s.startReload(id)
	}
}

func (s *Simulation) spawnProjectile(owner netcomponents.PlayerID, at, aim gamemath.Vec3, weapon netcomponents.Weapon) netcomponents.ProjectileID {
	pid := netcomponents.NewProjectileID(s.tick, owner)

	entity := s.world.Create(tags.Projectile, netcomponents.NetProjectile)
	pr := netcomponents.NetProjectile.Get(s.world.Entry(entity))
	*pr = netcomponents.NetProjectileData{
		ID:       pid,
		OwnerID:  owner,
		Position: at,
		Velocity: gamemath.MuzzleVelocity(aim, weapon.MuzzleVelocity),
		Damage:   weapon.Damage,
		Lifetime: s.cfg.Combat.ProjectileLifetime,
	}
	return pid
}

// stepProjectiles advances every projectile by one step. Each one tests the
// segment it sweeps against players (owner excluded) and the level, and the
// nearer contact wins. Spent projectiles are removed after the pass.
func (s *Simulation) stepProjectiles() {
	var spent []donburi.Entity

	for _, e := range s.projectileEntries() {
		pr := netcomponents.NetProjectile.Get(e)
		from := pr.Position
		to := from.Add(pr.Velocity.Scale(s.dt))
		pr.Lifetime -= s.dt

		target, hitT, hitPlayer := s.firstPlayerHit(from, to, pr.OwnerID, nil)
		wallT, hitWall := s.geometry.Raycast(from, to)

		switch {
		case hitPlayer && (!hitWall || hitT <= wallT):
			at := gamemath.Lerp(from, to, hitT)
			s.emit(messages.Event{Kind: messages.EventImpact, Source: pr.OwnerID, Target: target, Position: at, Projectile: pr.ID})
			s.applyDamage(target, pr.OwnerID, pr.Damage, at, pr.Velocity)
			spent = append(spent, e.Entity())

		case hitWall:
			at := gamemath.Lerp(from, to, wallT)
			s.emit(messages.Event{Kind: messages.EventImpact, Source: pr.OwnerID, Position: at, Projectile: pr.ID})
			spent = append(spent, e.Entity())

		case pr.Lifetime <= 0:
			spent = append(spent, e.Entity())

		default:
			pr.Position = to
		}
	}

	for _, entity := range spent {
		if s.world.Valid(entity) {
			s.world.Remove(entity)
		}
	}
}

// firstPlayerHit returns the living player whose hit sphere the segment
// enters first. Equal fractions go to the lower id. positions, when set,
// overrides where each player is tested (lag compensation).
func (s *Simulation) firstPlayerHit(from, to gamemath.Vec3, exclude netcomponents.PlayerID, positions map[netcomponents.PlayerID]gamemath.Vec3) (netcomponents.PlayerID, float64, bool) {
	var (
		best   netcomponents.PlayerID
		bestT  float64
		hasHit bool
	)
	for _, id := range s.order {
		if id == exclude {
			continue
		}
		p := s.state(id)
		if p == nil || !p.Alive {
			continue
		}
		pos := p.Position
		if positions != nil {
			rewound, ok := positions[id]
			if !ok {
				continue
			}
			pos = rewound
		}
		t, ok := gamemath.SegmentSphere(from, to, s.chest(pos), s.cfg.Combat.HitRadius)
		if ok && (!hasHit || t < bestT) {
			best, bestT, hasHit = id, t, true
		}
	}
	return best, bestT, hasHit
}

// hitscan resolves an instant shot against where the shooter saw the other
// players: the stored snapshot from LagCompensation before the shot's network
// time, or the newest one when that tick is no longer retained.
func (s *Simulation) hitscan(shooter netcomponents.PlayerID, from, aim gamemath.Vec3, weapon netcomponents.Weapon, shotMillis int64, now time.Time) {
	to := from.Add(aim.Scale(weapon.Range))

	var positions map[netcomponents.PlayerID]gamemath.Vec3
	if snap, ok := s.store.GetOrLatest(s.perceivedTick(shotMillis, now)); ok {
		positions = make(map[netcomponents.PlayerID]gamemath.Vec3, len(snap.Players))
		for id, p := range snap.Players {
			if p.Alive {
				positions[id] = p.Position
			}
		}
	}

	target, hitT, hitPlayer := s.firstPlayerHit(from, to, shooter, positions)
	wallT, hitWall := s.geometry.Raycast(from, to)

	switch {
	case hitPlayer && (!hitWall || hitT <= wallT):
		at := gamemath.Lerp(from, to, hitT)
		s.emit(messages.Event{Kind: messages.EventImpact, Source: shooter, Target: target, Position: at})
		s.applyDamage(target, shooter, weapon.Damage, at, aim)
	case hitWall:
		s.emit(messages.Event{Kind: messages.EventImpact, Source: shooter, Position: gamemath.Lerp(from, to, wallT)})
	}
}

// perceivedTick maps a shot's network timestamp to the tick the shooter was
// looking at when firing.
func (s *Simulation) perceivedTick(shotMillis int64, now time.Time) uint64 {
	seen := shotMillis - s.cfg.Combat.LagCompensation.Milliseconds()
	behind := float64(now.UnixMilli()-seen) / s.tickMillis
	if behind < 0 {
		behind = 0
	}
	back := uint64(behind + 0.5)
	if back >= s.tick {
		return 0
	}
	return s.tick - back
}

// applyDamage subtracts health from a living target. The death transition
// happens exactly once; hits on dead players are ignored.
func (s *Simulation) applyDamage(targetID, sourceID netcomponents.PlayerID, amount int, at, dir gamemath.Vec3) {
	target := s.state(targetID)
	if target == nil || !target.Alive || amount <= 0 {
		return
	}

	target.Health -= amount
	if target.Health < 0 {
		target.Health = 0
	}
	if s.cfg.PhysicsEnabled {
		push := dir.Horizontal().Normalize().Scale(s.cfg.Combat.Knockback * float64(amount))
		target.Velocity = target.Velocity.Add(push)
	}
	s.emit(messages.Event{
		Kind:     messages.EventDamage,
		Source:   sourceID,
		Target:   targetID,
		Amount:   amount,
		Health:   target.Health,
		Position: at,
	})

	if target.Health > 0 {
		return
	}

	target.Alive = false
	target.Deaths++
	target.Reloading = false
	target.Velocity = gamemath.Vec3{}
	s.tasks.cancel(targetID, taskReloadDone)

	if sourceID != targetID {
		if killer := s.state(sourceID); killer != nil {
			killer.Kills++
		}
	}
	s.emit(messages.Event{Kind: messages.EventKill, Source: sourceID, Target: targetID, Position: at})
	s.tasks.schedule(s.tick+s.ticksFor(s.cfg.Combat.RespawnDelay), taskRespawn, targetID)
}

// startReload begins a reload unless one is running or the magazine is full.
func (s *Simulation) startReload(id netcomponents.PlayerID) {
	p := s.state(id)
	if p == nil || !p.Alive || p.Reloading || p.Ammo >= p.Weapon.MagazineSize {
		return
	}
	p.Reloading = true
	s.tasks.schedule(s.tick+s.ticksFor(time.Duration(p.Weapon.ReloadMillis)*time.Millisecond), taskReloadDone, id)
	s.emit(messages.Event{Kind: messages.EventReload, Target: id, Position: p.Position})
}
