package network

import (
	"sort"
	"time"
)

type timerKind int

const (
	timerReconnect timerKind = iota
	timerPing
)

type deadline struct {
	at   time.Time
	kind timerKind
}

// timers are wall-clock deadlines polled by Client.Update. One deadline per
// kind; scheduling a kind again replaces it.
type timers struct {
	pending []deadline
}

func (t *timers) schedule(at time.Time, kind timerKind) {
	t.cancel(kind)
	i := sort.Search(len(t.pending), func(i int) bool { return t.pending[i].at.After(at) })
	t.pending = append(t.pending, deadline{})
	copy(t.pending[i+1:], t.pending[i:])
	t.pending[i] = deadline{at: at, kind: kind}
}

func (t *timers) cancel(kind timerKind) {
	for i, d := range t.pending {
		if d.kind == kind {
			t.pending = append(t.pending[:i], t.pending[i+1:]...)
			return
		}
	}
}

// due removes and returns the kinds whose deadline is at or before now.
func (t *timers) due(now time.Time) []timerKind {
	var out []timerKind
	for len(t.pending) > 0 && !t.pending[0].at.After(now) {
		out = append(out, t.pending[0].kind)
		t.pending = t.pending[1:]
	}
	return out
}

func (t *timers) at(kind timerKind) (time.Time, bool) {
	for _, d := range t.pending {
		if d.kind == kind {
			return d.at, true
		}
	}
	return time.Time{}, false
}

func (t *timers) clear() { t.pending = nil }
