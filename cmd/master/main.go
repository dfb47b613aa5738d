package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/automoto/fragnet/master"
)

func main() {
	port := flag.Int("port", 8080, "HTTP listen port")
	ttl := flag.Duration("ttl", 90*time.Second, "Server TTL before expiry")
	sweep := flag.Duration("sweep", 30*time.Second, "Interval between expiry sweeps")
	flag.Parse()

	reg := master.NewRegistry(*ttl, nil)
	go reg.Run(*sweep)
	defer reg.Stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", *port),
		Handler:           master.NewHandler(reg),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdown); err != nil {
			log.Printf("[master] shutdown: %v", err)
		}
	}()

	log.Printf("[master] starting on %s (TTL=%s)", srv.Addr, *ttl)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("[master] fatal: %v", err)
	}
	log.Println("[master] stopped")
}
