package anticheat

import (
	"log"
	"sync"

	"github.com/automoto/fragnet/shared/netcomponents"
	"golang.org/x/time/rate"
)

// Report is sent to the security collaborator for every rejected input and
// every failed whole-state sanity check.
type Report struct {
	PlayerID  netcomponents.PlayerID
	Reason    Reason
	Detail    string
	Timestamp int64 // server Unix ms
	Tick      uint64
	Count     int                         // player's suspicion counter after this report
	State     netcomponents.NetPlayerData // copy of the player's state for audit
}

// Reporter receives security reports. Implementations must not block the
// simulation for long.
type Reporter interface {
	Report(Report)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(Report)

func (f ReporterFunc) Report(r Report) { f(r) }

// LogReporter logs reports, throttled per player so one misbehaving client
// cannot flood the log. Throttled reports are counted and summarised on the
// next logged line.
type LogReporter struct {
	mu         sync.Mutex
	limit      rate.Limit
	limiters   map[netcomponents.PlayerID]*rate.Limiter
	suppressed map[netcomponents.PlayerID]int
	logf       func(format string, args ...any)
}

func NewLogReporter(perSecond float64) *LogReporter {
	return &LogReporter{
		limit:      rate.Limit(perSecond),
		limiters:   make(map[netcomponents.PlayerID]*rate.Limiter),
		suppressed: make(map[netcomponents.PlayerID]int),
		logf:       log.Printf,
	}
}

func (r *LogReporter) Report(rep Report) {
	r.mu.Lock()
	lim, ok := r.limiters[rep.PlayerID]
	if !ok {
		lim = rate.NewLimiter(r.limit, 1)
		r.limiters[rep.PlayerID] = lim
	}
	if !lim.Allow() {
		r.suppressed[rep.PlayerID]++
		r.mu.Unlock()
		return
	}
	dropped := r.suppressed[rep.PlayerID]
	delete(r.suppressed, rep.PlayerID)
	r.mu.Unlock()

	r.logf("[anticheat] player=%d reason=%s tick=%d count=%d suppressed=%d pos=(%.2f,%.2f,%.2f) hp=%d: %s",
		rep.PlayerID, rep.Reason, rep.Tick, rep.Count, dropped,
		rep.State.Position.X, rep.State.Position.Y, rep.State.Position.Z, rep.State.Health, rep.Detail)
}

// Forget drops throttling state for a player that left.
func (r *LogReporter) Forget(id netcomponents.PlayerID) {
	r.mu.Lock()
	delete(r.limiters, id)
	delete(r.suppressed, id)
	r.mu.Unlock()
}
