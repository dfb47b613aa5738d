package network

import "time"

// SyncClock estimates the server clock from ping/pong exchanges. Offsets
// and jitter are smoothed so a single slow reply does not jerk the clock.
type SyncClock struct {
	offset  float64 // server ms minus local ms
	rtt     float64 // ms
	jitter  float64 // ms, RFC 3550 style
	samples int
}

const (
	offsetGain = 0.125
	jitterGain = 1.0 / 16
)

// Observe records a pong. sent is the local time the ping left, server the
// server's clock when it replied, both Unix ms.
func (c *SyncClock) Observe(sent, server int64, now time.Time) {
	local := now.UnixMilli()
	rtt := float64(local - sent)
	if rtt < 0 {
		return
	}
	offset := float64(server) + rtt/2 - float64(local)

	if c.samples == 0 {
		c.offset = offset
		c.rtt = rtt
	} else {
		d := rtt - c.rtt
		if d < 0 {
			d = -d
		}
		c.jitter += (d - c.jitter) * jitterGain
		c.offset += (offset - c.offset) * offsetGain
		c.rtt += (rtt - c.rtt) * offsetGain
	}
	c.samples++
}

// Synced reports whether at least one pong has been observed.
func (c *SyncClock) Synced() bool { return c.samples > 0 }

// Now converts a local time to estimated server time in Unix ms. Before the
// first sample it is the local clock.
func (c *SyncClock) Now(local time.Time) int64 {
	return local.UnixMilli() + int64(c.offset)
}

func (c *SyncClock) RTT() time.Duration {
	return time.Duration(c.rtt * float64(time.Millisecond))
}

func (c *SyncClock) Jitter() time.Duration {
	return time.Duration(c.jitter * float64(time.Millisecond))
}

func (c *SyncClock) Reset() { *c = SyncClock{} }
