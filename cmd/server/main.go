package main

import (
	"context"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"printgate/internal/api"
	"printgate/internal/config"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	host := flag.String("host", "", "override listen host")
	port := flag.Int("port", 0, "override listen port")
	debug := flag.Bool("debug", false, "enable debug logging and gin debug mode")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *debug {
		cfg.Server.Debug = true
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	app, err := api.NewApp(cfg)
	if err != nil {
		log.Fatalf("init: %v", err)
	}
	defer app.Close()

	app.Monitor.Start()
	defer app.Monitor.Stop()

	httpServer := api.NewServer(app)

	ln, err := net.Listen("tcp", httpServer.Addr)
	if err != nil {
		log.Fatalf("cannot bind %s: %v", httpServer.Addr, err)
	}

	log.Printf("printgate listening on %s (printers=%d, auth=%v, archive=%v)",
		httpServer.Addr, len(cfg.Printers), cfg.Auth.Enabled, cfg.Archive.Enabled)

	go func() {
		if err := httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Fatalf("serve: %v", err)
		}
	}()

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	<-ch

	log.Println("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
