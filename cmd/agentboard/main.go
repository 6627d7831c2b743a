// Command agentboard watches Claude Code session logs and serves
// live session state over REST and WebSocket.
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

	"github.com/dsaito/agentboard/internal/bus"
	"github.com/dsaito/agentboard/internal/config"
	"github.com/dsaito/agentboard/internal/discovery"
	"github.com/dsaito/agentboard/internal/server"
	"github.com/dsaito/agentboard/internal/session"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = ""
)

const shutdownTimeout = 5 * time.Second

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "serve":
			runServe(os.Args[2:])
			return
		case "version", "--version", "-v":
			fmt.Printf("agentboard %s (commit %s, built %s)\n",
				version, commit, buildDate)
			return
		case "help", "--help", "-h":
			printUsage()
			return
		}
	}

	runServe(os.Args[1:])
}

func printUsage() {
	fmt.Printf(`agentboard %s - live dashboard backend for Claude Code sessions

Tails the per-session JSONL logs under ~/.claude/projects, derives
each session's state, token usage and cost, and serves them over a
REST API and a WebSocket event stream.

Usage:
  agentboard [flags]          Start the server (default command)
  agentboard serve [flags]    Start the server (explicit)
  agentboard version          Show version information
  agentboard help             Show this help

Server flags:
  -host string          Host to bind to (default "127.0.0.1")
  -port int             Port to listen on (default 3001)
  -projects-dir string  Claude projects directory to watch
  -frontend string      Directory of static frontend assets

Environment variables:
  HOST                  Host to bind to
  PORT                  Port to listen on
  CLAUDE_PROJECTS_DIR   Claude Code projects directory
  FRONTEND_DIR          Static frontend directory
`, version)
}

func runServe(args []string) {
	cfg := mustLoadConfig(args)

	ctx, stop := signal.NotifyContext(
		context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eventBus := bus.New()
	registry := session.NewRegistry(eventBus.Publish)
	registry.Start()

	scanner := discovery.NewScanner(
		cfg.ClaudeProjectsDir, registry.OnFound, registry.OnRemoved)
	scanner.Start()

	srv := server.New(cfg, registry, eventBus)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	log.Printf("agentboard %s watching %s", version, cfg.ClaudeProjectsDir)

	select {
	case <-ctx.Done():
		log.Println("Shutting down...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}

	scanner.Stop()
	registry.Stop()
}

func mustLoadConfig(args []string) config.Config {
	fs := flag.NewFlagSet("agentboard", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(),
			"Usage: agentboard [serve] [flags]\n\nFlags:\n")
		fs.PrintDefaults()
	}
	config.RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		log.Fatalf("parsing flags: %v", err)
	}

	cfg, err := config.Load(fs)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	return cfg
}
