package network

import (
	"github.com/automoto/fragnet/shared/messages"
	"github.com/automoto/fragnet/shared/movement"
	"github.com/automoto/fragnet/shared/netcomponents"
)

// Reconcile compares the server's state for the last input it processed
// (ack) with what was predicted for that input. On a mismatch, or when the
// input is no longer buffered, the server state becomes the base and every
// later input is replayed on top of it; replay is called for each. Inputs up
// to ack are dropped either way. It reports whether the prediction was
// corrected.
func (p *Predictor) Reconcile(auth netcomponents.NetPlayerData, ack uint32, replay func(messages.InputCommand)) bool {
	matched := -1
	for i, r := range p.records {
		if r.Input.Sequence == ack {
			matched = i
			break
		}
	}

	if matched >= 0 && !p.diverged(p.records[matched].Predicted, auth) {
		p.drop(matched + 1)
		p.state = adoptWeapon(p.state, auth)
		return false
	}

	prev := p.state
	p.state = auth
	p.initialized = true

	kept := p.records[:0]
	for _, r := range p.records {
		if r.Input.Sequence <= ack {
			continue
		}
		p.state = movement.Apply(p.state, r.Input, p.params)
		r.Predicted = p.state
		kept = append(kept, r)
		if replay != nil {
			replay(r.Input)
		}
	}
	p.records = kept

	return matched >= 0 || p.diverged(prev, p.state)
}

// diverged reports whether two states differ by more than prediction error.
// Weapon state and score are owned by the server and never predicted, so
// they are not compared.
func (p *Predictor) diverged(predicted, auth netcomponents.NetPlayerData) bool {
	if predicted.Position.Dist(auth.Position) > p.tolerance {
		return true
	}
	return predicted.Health != auth.Health ||
		predicted.Alive != auth.Alive
}

// adoptWeapon copies the server-owned fields of auth onto a predicted state.
func adoptWeapon(predicted, auth netcomponents.NetPlayerData) netcomponents.NetPlayerData {
	predicted.Ammo = auth.Ammo
	predicted.Weapon = auth.Weapon
	predicted.Reloading = auth.Reloading
	predicted.Kills = auth.Kills
	predicted.Deaths = auth.Deaths
	return predicted
}
