package core

import (
	"sort"

	"github.com/automoto/fragnet/shared/netcomponents"
)

type taskKind int

const (
	taskRespawn taskKind = iota
	taskReloadDone
)

// task is deferred simulation work that runs at the start of its tick.
type task struct {
	due    uint64
	kind   taskKind
	player netcomponents.PlayerID
	seq    uint64 // insertion order, breaks ties between tasks due together
}

// scheduler holds tick-keyed tasks. It is only touched inside Tick.
type scheduler struct {
	tasks []task
	seq   uint64
}

func (s *scheduler) schedule(due uint64, kind taskKind, player netcomponents.PlayerID) {
	s.seq++
	t := task{due: due, kind: kind, player: player, seq: s.seq}
	i := sort.Search(len(s.tasks), func(i int) bool {
		o := s.tasks[i]
		return o.due > t.due || (o.due == t.due && o.seq > t.seq)
	})
	s.tasks = append(s.tasks, task{})
	copy(s.tasks[i+1:], s.tasks[i:])
	s.tasks[i] = t
}

// due removes and returns every task scheduled at or before tick, in order.
func (s *scheduler) due(tick uint64) []task {
	n := sort.Search(len(s.tasks), func(i int) bool { return s.tasks[i].due > tick })
	if n == 0 {
		return nil
	}
	out := make([]task, n)
	copy(out, s.tasks[:n])
	s.tasks = append(s.tasks[:0], s.tasks[n:]...)
	return out
}

// cancel drops pending tasks of one kind for a player.
func (s *scheduler) cancel(player netcomponents.PlayerID, kind taskKind) {
	kept := s.tasks[:0]
	for _, t := range s.tasks {
		if t.player == player && t.kind == kind {
			continue
		}
		kept = append(kept, t)
	}
	s.tasks = kept
}

// cancelAll drops every pending task for a player.
func (s *scheduler) cancelAll(player netcomponents.PlayerID) {
	kept := s.tasks[:0]
	for _, t := range s.tasks {
		if t.player != player {
			kept = append(kept, t)
		}
	}
	s.tasks = kept
}

func (s *scheduler) pending() int { return len(s.tasks) }
