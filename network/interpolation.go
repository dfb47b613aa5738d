package network

import (
	"sort"
	"time"

	"github.com/automoto/fragnet/shared/messages"
	"github.com/automoto/fragnet/shared/netcomponents"
	"github.com/tanema/gween/ease"
)

// InterpolationSnapshot is a buffered server state.
type InterpolationSnapshot struct {
	Update     messages.StateUpdate
	ReceivedAt time.Time
}

// Interpolator renders remote entities a fixed delay behind the server by
// blending the two buffered states around the display time.
type Interpolator struct {
	delay  time.Duration
	size   int
	easing ease.TweenFunc
	buf    []InterpolationSnapshot // ordered by server timestamp
}

func NewInterpolator(delay time.Duration, size int) *Interpolator {
	if size < 2 {
		size = 2
	}
	return &Interpolator{delay: delay, size: size, easing: ease.Linear}
}

// SetEasing replaces the blend curve. Linear is the default.
func (it *Interpolator) SetEasing(fn ease.TweenFunc) {
	if fn != nil {
		it.easing = fn
	}
}

// Push buffers a state update. A tick already buffered is ignored. An update
// sharing a timestamp with a buffered one replaces it only if its tick is
// newer. Updates older than everything in a full buffer are ignored; the
// oldest entry is evicted when the buffer is full.
func (it *Interpolator) Push(update messages.StateUpdate, receivedAt time.Time) {
	for _, s := range it.buf {
		if s.Update.Tick == update.Tick {
			return
		}
	}
	snap := InterpolationSnapshot{Update: update, ReceivedAt: receivedAt}

	i := sort.Search(len(it.buf), func(i int) bool { return it.buf[i].Update.Timestamp >= update.Timestamp })
	if i < len(it.buf) && it.buf[i].Update.Timestamp == update.Timestamp {
		if update.Tick > it.buf[i].Update.Tick {
			it.buf[i] = snap
		}
		return
	}
	if i == 0 && len(it.buf) >= it.size {
		return
	}
	it.buf = append(it.buf, InterpolationSnapshot{})
	copy(it.buf[i+1:], it.buf[i:])
	it.buf[i] = snap

	if over := len(it.buf) - it.size; over > 0 {
		it.buf = append(it.buf[:0], it.buf[over:]...)
	}
}

func (it *Interpolator) Len() int { return len(it.buf) }

func (it *Interpolator) Reset() { it.buf = nil }

// Sample returns the state to display at networkNow (server Unix ms). Before
// the clock is synced the newest update is returned as is. The display time
// is clamped to the buffered range; nothing is extrapolated.
func (it *Interpolator) Sample(networkNow int64, synced bool) (messages.StateUpdate, bool) {
	if len(it.buf) == 0 {
		return messages.StateUpdate{}, false
	}
	newest := it.buf[len(it.buf)-1].Update
	if !synced {
		return newest, true
	}

	target := networkNow - it.delay.Milliseconds()
	if target >= newest.Timestamp {
		return newest, true
	}
	if target <= it.buf[0].Update.Timestamp {
		return it.buf[0].Update, true
	}

	i := sort.Search(len(it.buf), func(i int) bool { return it.buf[i].Update.Timestamp > target })
	from, to := it.buf[i-1].Update, it.buf[i].Update
	span := float32(to.Timestamp - from.Timestamp)
	t := float64(it.easing(float32(target-from.Timestamp), 0, 1, span))
	return blend(from, to, t, target), true
}

// blend interpolates entities present in both updates; entities only in to
// are shown as they are in to, and those only in from are gone.
func blend(from, to messages.StateUpdate, t float64, at int64) messages.StateUpdate {
	out := messages.StateUpdate{
		Tick:        to.Tick,
		Timestamp:   at,
		Players:     make(map[netcomponents.PlayerID]messages.PlayerView, len(to.Players)),
		Projectiles: make(map[netcomponents.ProjectileID]messages.ProjectileView, len(to.Projectiles)),
	}
	for id, b := range to.Players {
		if a, ok := from.Players[id]; ok && a.Alive && b.Alive {
			out.Players[id] = messages.LerpPlayerView(a, b, t)
		} else {
			out.Players[id] = b
		}
	}
	for id, b := range to.Projectiles {
		if a, ok := from.Projectiles[id]; ok {
			out.Projectiles[id] = messages.LerpProjectileView(a, b, t)
		} else {
			out.Projectiles[id] = b
		}
	}
	return out
}
