//go:build linux

package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/simpleremote/simpleremote/internal/agent/server"
	"github.com/simpleremote/simpleremote/internal/agent/state"
	"github.com/simpleremote/simpleremote/pkg/config"
	"github.com/simpleremote/simpleremote/pkg/logger"
)

func main() {
	configPath := pflag.String("config", "", "Path to agent configuration file")
	pflag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	initializeLogging(cfg)
	mainLogger := logger.WithComponent("main")

	registry := state.NewRegistry()
	srv := server.New(cfg, registry)
	if err := srv.Start(); err != nil {
		mainLogger.Fatal("agent failed to start", "error", err)
	}

	var discovery *server.Discovery
	if cfg.DiscoveryEnabled {
		discovery, err = server.StartDiscovery(cfg.DiscoveryPort, srv.Port())
		if err != nil {
			mainLogger.Fatal("discovery responder failed to start", "error", err)
		}
	}

	mainLogger.Info("agent running",
		"address", cfg.GetServerAddress(),
		"discovery", cfg.DiscoveryEnabled)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	mainLogger.Info("shutting down", "signal", sig)
	if discovery != nil {
		discovery.Stop()
	}
	srv.Stop()
}

func initializeLogging(cfg *config.Config) {
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logger.INFO
	}
	logger.SetLevel(level)
}
