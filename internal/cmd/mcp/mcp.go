package mcp

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/mark3labs/mcp-go/server"
	"github.com/misteriosai/agent-memory/internal/cmd/serve"
	"github.com/misteriosai/agent-memory/internal/config"
	"github.com/misteriosai/agent-memory/internal/mcptools"
	"github.com/misteriosai/agent-memory/internal/service"
	"github.com/misteriosai/agent-memory/internal/telemetry"
	"github.com/urfave/cli/v3"

	_ "github.com/misteriosai/agent-memory/internal/plugin/all"
)

// Command returns the mcp sub-command, which serves the memory tools over stdio.
func Command(version string) *cli.Command {
	cfg := config.DefaultConfig()
	var logLevel = "warn"
	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve the memory tools to an MCP client over stdio",
		Flags: append(serve.Flags(&cfg), &cli.StringFlag{
			Name:        "log-level",
			Sources:     cli.EnvVars("AGENT_MEMORY_LOG_LEVEL"),
			Destination: &logLevel,
			Value:       logLevel,
			Usage:       "Log level (debug|info|warn|error); logs go to stderr",
		}),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			telemetry.SetLogLevel(logLevel)
			if err := cfg.ApplyLegacyEnv(); err != nil {
				return err
			}
			return run(config.WithContext(ctx, &cfg), &cfg, version)
		},
	}
}

func run(ctx context.Context, cfg *config.Config, version string) error {
	svc := service.New(cfg)
	if err := svc.Init(ctx); err != nil {
		return fmt.Errorf("memory service: %w", err)
	}
	defer func() {
		if err := svc.Shutdown(context.Background()); err != nil {
			log.Error("Shutdown error", "err", err)
		}
	}()
	svc.MarkReady()

	log.Info("Serving MCP tools on stdio")
	return server.ServeStdio(mcptools.NewServer(svc, version))
}
