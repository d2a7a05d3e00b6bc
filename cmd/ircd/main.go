// Command ircd is the network services daemon: it links to an IRC
// network as a peer server, replicates global state, and hosts the
// operator control socket. Grounded on cmd/minimega/main.go's flag
// parsing plus minilog setup, generalized from a single-process VM
// manager's startup sequence to this daemon's config-file-driven
// startup.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/GameSurge/srvx-sub002/internal/config"
	"github.com/GameSurge/srvx-sub002/internal/console"

	log "github.com/GameSurge/srvx-sub002/pkg/minilog"
)

var (
	configPath   = flag.String("config", "/etc/ircd/ircd.conf", "path to the daemon configuration file")
	logLevel     = flag.String("level", "info", "log level: debug, info, warn, error, fatal")
	logFile      = flag.String("logfile", "", "log to this file in addition to stderr")
)

func main() {
	flag.Parse()

	level, err := log.LevelInt(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ircd: invalid -level %q: %v\n", *logLevel, err)
		os.Exit(1)
	}
	log.AddLogger("stderr", os.Stderr, level, true)
	log.AddRing("ring", log.NewRing(200), level)
	if *logFile != "" {
		f, err := os.OpenFile(*logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "ircd: open logfile: %v\n", err)
			os.Exit(1)
		}
		log.AddLogger("file", f, level, false)
	}

	loader, err := config.NewLoader(*configPath)
	if err != nil {
		log.Fatal("ircd: %v", err)
	}

	srv, err := NewServer(loader.Current())
	if err != nil {
		log.Fatal("ircd: %v", err)
	}

	linkAddr, _ := loader.Current().Get("server.listen")
	if linkAddr == "" {
		linkAddr = "0.0.0.0:7000"
	}
	if err := srv.Listen(linkAddr); err != nil {
		log.Fatal("ircd: listen %s: %v", linkAddr, err)
	}
	log.Info("ircd: listening for peer links on %s", linkAddr)

	if consoleAddr, ok := loader.Current().Get("console.listen"); ok {
		reg := buildConsoleRegistry(srv)
		auth := buildConsoleAuth(loader.Current())
		if err := srv.ListenConsole(consoleAddr, reg, auth); err != nil {
			log.Fatal("ircd: console listen %s: %v", consoleAddr, err)
		}
		log.Info("ircd: operator console listening on %s", consoleAddr)
	}

	stop := make(chan struct{})
	if err := loader.Watch(stop); err != nil {
		log.Warn("ircd: config watch: %v", err)
	}
	defer close(stop)

	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info("ircd: shutting down")
		cancel()
	}()

	srv.Run(ctx)
}
