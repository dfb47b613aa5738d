package core

import (
	"sync"

	"github.com/automoto/fragnet/shared/messages"
)

// InputQueue is a bounded FIFO of pending commands for one player. Connection
// goroutines push, the tick pops; when full the oldest command is dropped.
type InputQueue struct {
	mu      sync.Mutex
	buf     []messages.InputCommand
	limit   int
	dropped int
}

func NewInputQueue(limit int) *InputQueue {
	if limit < 1 {
		limit = 1
	}
	return &InputQueue{limit: limit}
}

// Push appends cmd and reports whether an older command had to be dropped.
func (q *InputQueue) Push(cmd messages.InputCommand) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	overflow := len(q.buf) >= q.limit
	if overflow {
		copy(q.buf, q.buf[1:])
		q.buf = q.buf[:len(q.buf)-1]
		q.dropped++
	}
	q.buf = append(q.buf, cmd)
	return overflow
}

// Pop removes and returns the oldest command.
func (q *InputQueue) Pop() (messages.InputCommand, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.buf) == 0 {
		return messages.InputCommand{}, false
	}
	cmd := q.buf[0]
	q.buf[0] = messages.InputCommand{}
	q.buf = q.buf[1:]
	return cmd, true
}

func (q *InputQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf)
}

// Dropped returns how many commands were lost to overflow.
func (q *InputQueue) Dropped() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
