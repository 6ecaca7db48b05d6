package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/misteriosai/agent-memory/internal/cmd/mcp"
	"github.com/misteriosai/agent-memory/internal/cmd/migrate"
	"github.com/misteriosai/agent-memory/internal/cmd/serve"
	"github.com/urfave/cli/v3"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:    "agent-memory",
		Usage:   "Semantic and procedural memory for AI agents",
		Version: version,
		Commands: []*cli.Command{
			serve.Command(),
			mcp.Command(version),
			migrate.Command(),
		},
	}
	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
