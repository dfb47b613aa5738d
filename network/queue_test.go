package network

import (
	"testing"

	"github.com/automoto/fragnet/shared/messages"
)

func env(seq uint32) messages.Envelope {
	return messages.Envelope{Type: messages.TypeInput, Sequence: seq}
}

func TestOutQueueDropsOldestUnreliable(t *testing.T) {
	q := newOutQueue(2, 3)
	for i := uint32(1); i <= 5; i++ {
		q.push(env(i), false)
	}
	if q.dropped != 2 {
		t.Fatalf("dropped = %d, want 2", q.dropped)
	}

	var got []uint32
	n := q.flush(func(e messages.Envelope) bool {
		got = append(got, e.Sequence)
		return true
	})
	if n != 2 || got[0] != 3 || got[1] != 4 {
		t.Fatalf("flushed %v, want [3 4]", got)
	}
	if _, u := q.len(); u != 1 {
		t.Fatalf("unreliable left = %d, want 1", u)
	}
}

func TestOutQueueReliableFirstAndKept(t *testing.T) {
	q := newOutQueue(1, 1)
	q.push(env(10), false)
	for i := uint32(1); i <= 3; i++ {
		q.push(env(i), true)
	}

	var got []uint32
	q.flush(func(e messages.Envelope) bool {
		got = append(got, e.Sequence)
		return true
	})
	want := []uint32{1, 2, 3, 10}
	if len(got) != len(want) {
		t.Fatalf("flushed %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("flushed %v, want %v", got, want)
		}
	}
}

func TestOutQueueKeepsRefused(t *testing.T) {
	q := newOutQueue(4, 8)
	q.push(env(1), true)
	q.push(env(2), true)

	calls := 0
	n := q.flush(func(messages.Envelope) bool {
		calls++
		return calls == 1
	})
	if n != 1 {
		t.Fatalf("sent = %d, want 1", n)
	}
	if r, _ := q.len(); r != 1 {
		t.Fatalf("reliable left = %d, want 1", r)
	}
}
