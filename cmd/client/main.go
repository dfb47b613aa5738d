// Command client is a headless bot that joins a server, wanders the arena
// and shoots at the nearest remote player. It exercises the full client
// sync path and is handy for load tests.
package main

import (
	"errors"
	"flag"
	"log"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/automoto/fragnet/config"
	"github.com/automoto/fragnet/network"
	"github.com/automoto/fragnet/shared/gamemath"
	"github.com/automoto/fragnet/shared/messages"
)

type bot struct {
	state  network.GameState
	ticks  int
	frags  int
	deaths int
}

func (b *bot) ApplyGameState(gs network.GameState) {
	b.state = gs
	for _, ev := range gs.Events {
		if ev.Kind != messages.EventKill {
			continue
		}
		switch gs.LocalID {
		case ev.Source:
			b.frags++
			log.Printf("[bot] fragged player %d", ev.Target)
		case ev.Target:
			b.deaths++
			log.Printf("[bot] fragged by player %d", ev.Source)
		}
	}
}

func (b *bot) ApplyInputLocally(messages.InputCommand) {}

// input walks in a slow circle and aims at the closest remote player.
func (b *bot) input() network.InputData {
	b.ticks++
	angle := float64(b.ticks) / 120
	in := network.InputData{
		Movement: gamemath.V(math.Cos(angle), 0, math.Sin(angle)).Scale(6),
	}
	if !b.state.HasLocal || !b.state.Local.Alive {
		return in
	}

	best := math.Inf(1)
	for _, v := range b.state.Remote {
		if !v.Alive {
			continue
		}
		d := v.Position.Sub(b.state.Local.Position)
		if dist := d.Len(); dist < best {
			best = dist
			in.Aim = d
		}
	}
	in.Fire = !math.IsInf(best, 1) && b.ticks%20 == 0
	in.Reload = b.state.Local.Ammo == 0 && !b.state.Local.Reloading
	return in
}

func main() {
	if err := config.LoadEnv(); err != nil {
		log.Fatalf("Failed to load .env: %v", err)
	}
	cfg := config.DefaultClient()
	if err := config.ApplyClientEnv(&cfg); err != nil {
		log.Fatalf("Invalid environment: %v", err)
	}

	flag.StringVar(&cfg.Endpoint, "endpoint", cfg.Endpoint, "Server address")
	flag.StringVar(&cfg.PlayerName, "name", cfg.PlayerName, "Player name")
	flag.StringVar(&cfg.Version, "version", cfg.Version, "Client version sent on join")
	flag.IntVar(&cfg.TickRate, "tickrate", cfg.TickRate, "Frames per second")
	flag.BoolVar(&cfg.Debug, "debug", cfg.Debug, "Log reconciliation details")
	persist := flag.Bool("persist", true, "Keep reconnect tokens across runs")
	flag.Parse()

	var tokens network.TokenStore = network.NewMemoryTokenStore()
	if *persist {
		store, err := network.NewGdataTokenStore("fragnet")
		if err != nil {
			log.Printf("[bot] token persistence disabled: %v", err)
		} else {
			tokens = store
		}
	}

	b := &bot{}
	client := network.NewClient(nil)
	done := make(chan struct{})
	observer := network.ObserverFunc(func(from, to network.State, err error) {
		log.Printf("[bot] %s -> %s", from, to)
		if to == network.StateFailed {
			log.Printf("[bot] giving up: %v", err)
			close(done)
		}
	})
	err := client.Connect(cfg.Endpoint, network.Options{
		Config:   cfg,
		Sink:     b,
		Tokens:   tokens,
		Observer: observer,
	})
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	frame := time.NewTicker(time.Second / time.Duration(cfg.TickRate))
	defer frame.Stop()
	report := time.NewTicker(5 * time.Second)
	defer report.Stop()

	for {
		select {
		case now := <-frame.C:
			client.Update(now)
			if client.IsConnected() {
				if err := client.SendInput(b.input()); err != nil && !errors.Is(err, network.ErrNotConnected) {
					log.Printf("[bot] input: %v", err)
				}
			}
		case <-report.C:
			s := client.NetworkStats()
			log.Printf("[bot] %s ping=%s jitter=%s sent=%d recv=%d dropped=%d corrections=%d pending=%d frags=%d deaths=%d",
				s.State, s.Ping, s.Jitter, s.Sent, s.Received, s.Dropped, s.Corrections, s.PendingInputs, b.frags, b.deaths)
		case <-done:
			os.Exit(1)
		case <-sigChan:
			log.Println("[bot] disconnecting")
			client.Disconnect()
			return
		}
	}
}
