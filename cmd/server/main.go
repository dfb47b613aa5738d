package main

import (
	"flag"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/automoto/fragnet/assets"
	"github.com/automoto/fragnet/config"
	"github.com/automoto/fragnet/server/core"
)

func main() {
	if err := config.LoadEnv(); err != nil {
		log.Fatalf("Failed to load .env: %v", err)
	}
	cfg := config.DefaultServer()
	if err := config.ApplyServerEnv(&cfg); err != nil {
		log.Fatalf("Invalid environment: %v", err)
	}

	flag.UintVar(&cfg.Port, "port", cfg.Port, "Server port")
	flag.IntVar(&cfg.TickRate, "tickrate", cfg.TickRate, "Server tick rate (updates per second)")
	flag.StringVar(&cfg.Name, "name", cfg.Name, "Server display name")
	flag.StringVar(&cfg.Version, "version", cfg.Version, "Required client version (empty = accept any)")
	flag.IntVar(&cfg.MaxPlayers, "maxplayers", cfg.MaxPlayers, "Maximum concurrent players")
	flag.Float64Var(&cfg.AntiCheat.MaxSpeed, "maxspeed", cfg.AntiCheat.MaxSpeed, "Maximum player speed in m/s")
	flag.BoolVar(&cfg.AntiCheatEnabled, "anticheat", cfg.AntiCheatEnabled, "Validate client input")
	flag.StringVar(&cfg.ArenaDir, "arenas", cfg.ArenaDir, "Directory of .tmx arenas (empty = built-in)")
	flag.StringVar(&cfg.ArenaName, "arena", cfg.ArenaName, "Arena to play")
	flag.StringVar(&cfg.MasterURL, "master", cfg.MasterURL, "Master server URL (empty = don't register)")
	flag.StringVar(&cfg.Address, "address", cfg.Address, "Public address announced to the master server")
	flag.Parse()

	var arenas fs.FS = assets.Arenas()
	if cfg.ArenaDir != "" {
		arenas = os.DirFS(cfg.ArenaDir)
	}
	level, err := core.LoadLevel(arenas, cfg.ArenaName)
	if err != nil {
		log.Fatalf("Failed to load arena: %v", err)
	}

	server := core.NewServer(cfg, level, nil)

	var reg *core.Registration
	if cfg.MasterURL != "" {
		reg = core.NewRegistration(cfg, server)
		reg.Start()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("Shutting down server...")
		if reg != nil {
			reg.Stop()
		}
		server.Stop()
		os.Exit(0)
	}()

	log.Printf("Starting Fragnet server %q on port %d (tick rate: %d/s, arena: %s, version: %q)",
		cfg.Name, cfg.Port, cfg.TickRate, cfg.ArenaName, cfg.Version)
	if err := server.Start(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
