package core

import (
	"log"

	"github.com/automoto/fragnet/shared/messages"
)

// Broadcaster receives every tick's state update, in tick order, before
// observers are notified. The server implements it by sending to all peers.
type Broadcaster interface {
	Broadcast(update messages.StateUpdate)
}

// BroadcasterFunc adapts a function to Broadcaster.
type BroadcasterFunc func(messages.StateUpdate)

func (f BroadcasterFunc) Broadcast(u messages.StateUpdate) { f(u) }

// Observer is an external listener for simulation events (damage, kills,
// state updates) such as a HUD, scoreboard or effects layer. Delivery is best
// effort: a panicking observer is logged and skipped.
type Observer interface {
	OnTick(update messages.StateUpdate)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(messages.StateUpdate)

func (f ObserverFunc) OnTick(u messages.StateUpdate) { f(u) }

func notifyObservers(observers []Observer, update messages.StateUpdate) {
	for _, o := range observers {
		notifyObserver(o, update)
	}
}

func notifyObserver(o Observer, update messages.StateUpdate) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[sim] observer panicked on tick %d: %v", update.Tick, r)
		}
	}()
	o.OnTick(update)
}
