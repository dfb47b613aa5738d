package network

import (
	"time"

	"github.com/automoto/fragnet/shared/messages"
	"github.com/automoto/fragnet/shared/movement"
	"github.com/automoto/fragnet/shared/netcomponents"
)

// ReconciliationRecord stores an input alongside the predicted state after
// applying it.
type ReconciliationRecord struct {
	Input     messages.InputCommand
	Predicted netcomponents.NetPlayerData
}

// Predictor owns the locally predicted state of the player and the inputs
// the server has not confirmed yet, oldest first.
type Predictor struct {
	params    movement.Params
	tolerance float64
	horizon   time.Duration

	state       netcomponents.NetPlayerData
	initialized bool
	records     []ReconciliationRecord
}

func NewPredictor(params movement.Params, tolerance float64, horizon time.Duration) *Predictor {
	return &Predictor{params: params, tolerance: tolerance, horizon: horizon}
}

// Reset adopts state as the prediction base and forgets pending inputs.
func (p *Predictor) Reset(state netcomponents.NetPlayerData) {
	p.state = state
	p.initialized = true
	p.records = nil
}

// SetStep changes the simulated step length, for when the server announces
// its tick rate.
func (p *Predictor) SetStep(seconds float64) { p.params.StepSeconds = seconds }

func (p *Predictor) Initialized() bool { return p.initialized }

// State returns the current predicted state.
func (p *Predictor) State() netcomponents.NetPlayerData { return p.state }

// Pending returns the number of unconfirmed inputs.
func (p *Predictor) Pending() int { return len(p.records) }

// Records returns a copy of the unconfirmed inputs.
func (p *Predictor) Records() []ReconciliationRecord {
	out := make([]ReconciliationRecord, len(p.records))
	copy(out, p.records)
	return out
}

// Apply runs cmd against the predicted state immediately and remembers it
// for reconciliation.
func (p *Predictor) Apply(cmd messages.InputCommand) netcomponents.NetPlayerData {
	p.state = movement.Apply(p.state, cmd, p.params)
	p.records = append(p.records, ReconciliationRecord{Input: cmd, Predicted: p.state})
	return p.state
}

// Prune drops records older than the prediction horizon, measured in
// network time (Unix ms).
func (p *Predictor) Prune(networkNow int64) int {
	cutoff := networkNow - p.horizon.Milliseconds()
	n := 0
	for n < len(p.records) && p.records[n].Input.Timestamp < cutoff {
		n++
	}
	p.drop(n)
	return n
}

func (p *Predictor) drop(n int) {
	if n == 0 {
		return
	}
	p.records = append(p.records[:0], p.records[n:]...)
}
