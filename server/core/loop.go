package core

import (
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// GameLoop drives the simulation at a fixed rate on a single goroutine.
type GameLoop struct {
	sim      *Simulation
	tickRate int
	clock    func() time.Time
	running  atomic.Bool
	stopChan chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func NewGameLoop(sim *Simulation, tickRate int, clock func() time.Time) *GameLoop {
	if tickRate <= 0 {
		tickRate = 60
	}
	if clock == nil {
		clock = time.Now
	}
	return &GameLoop{
		sim:      sim,
		tickRate: tickRate,
		clock:    clock,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (g *GameLoop) Run() {
	g.running.Store(true)
	defer close(g.done)
	interval := time.Second / time.Duration(g.tickRate)
	sched := newTickSchedule(g.clock(), interval)

	timer := time.NewTimer(interval)
	defer timer.Stop()

	log.Printf("[loop] started at %d ticks/second", g.tickRate)

	for {
		select {
		case <-g.stopChan:
			log.Println("[loop] stopped")
			return
		case <-timer.C:
			now := g.clock()
			for _, at := range tickTimes(now, sched.advance(now), interval) {
				g.sim.Tick(at)
			}
			if sched.skipped > 0 {
				log.Printf("[loop] fell behind, skipped %d ticks", sched.skipped)
				sched.skipped = 0
			}
			timer.Reset(sched.next.Sub(g.clock()))
		}
	}
}

// Stop ends the loop and waits for the tick in progress to finish.
func (g *GameLoop) Stop() {
	g.stopOnce.Do(func() { close(g.stopChan) })
	if g.running.Load() {
		<-g.done
	}
}

// tickSchedule decides how many ticks are due. A late loop runs at most one
// catch-up tick; anything further behind is dropped and the schedule restarts
// from now.
type tickSchedule struct {
	next     time.Time
	interval time.Duration
	skipped  int
}

func newTickSchedule(start time.Time, interval time.Duration) *tickSchedule {
	return &tickSchedule{next: start.Add(interval), interval: interval}
}

func (s *tickSchedule) advance(now time.Time) int {
	if now.Before(s.next) {
		return 0
	}
	missed := int(now.Sub(s.next) / s.interval)
	switch {
	case missed == 0:
		s.next = s.next.Add(s.interval)
		return 1
	case missed == 1:
		s.next = s.next.Add(2 * s.interval)
		return 2
	default:
		s.skipped += missed - 1
		s.next = now.Add(s.interval)
		return 2
	}
}

// tickTimes spreads n due ticks one interval apart ending at now, so a
// catch-up tick never shares a timestamp with the tick after it.
func tickTimes(now time.Time, n int, interval time.Duration) []time.Time {
	times := make([]time.Time, n)
	for i := range times {
		times[i] = now.Add(-time.Duration(n-1-i) * interval)
	}
	return times
}
