package network

import "github.com/automoto/fragnet/shared/messages"

// outQueue holds envelopes waiting for the connection writer. Reliable
// envelopes are never dropped and go out in order. Unreliable ones are
// latest-wins: the queue is bounded and the oldest are discarded first.
type outQueue struct {
	reliable   []messages.Envelope
	unreliable []messages.Envelope
	perPass    int
	limit      int
	dropped    int
}

func newOutQueue(perPass, limit int) *outQueue {
	if perPass < 1 {
		perPass = 1
	}
	if limit < perPass {
		limit = perPass
	}
	return &outQueue{perPass: perPass, limit: limit}
}

func (q *outQueue) push(env messages.Envelope, reliable bool) {
	if reliable {
		q.reliable = append(q.reliable, env)
		return
	}
	if len(q.unreliable) >= q.limit {
		n := len(q.unreliable) - q.limit + 1
		q.unreliable = append(q.unreliable[:0], q.unreliable[n:]...)
		q.dropped += n
	}
	q.unreliable = append(q.unreliable, env)
}

// flush hands envelopes to send until it refuses one: every reliable
// envelope, then at most perPass unreliable ones. Refused envelopes stay
// queued for the next pass.
func (q *outQueue) flush(send func(messages.Envelope) bool) int {
	sent := 0
	for len(q.reliable) > 0 {
		if !send(q.reliable[0]) {
			return sent
		}
		q.reliable[0] = messages.Envelope{}
		q.reliable = q.reliable[1:]
		sent++
	}
	for i := 0; i < q.perPass && len(q.unreliable) > 0; i++ {
		if !send(q.unreliable[0]) {
			return sent
		}
		q.unreliable[0] = messages.Envelope{}
		q.unreliable = q.unreliable[1:]
		sent++
	}
	return sent
}

func (q *outQueue) clear() {
	q.reliable = nil
	q.unreliable = nil
}

func (q *outQueue) len() (reliable, unreliable int) {
	return len(q.reliable), len(q.unreliable)
}
