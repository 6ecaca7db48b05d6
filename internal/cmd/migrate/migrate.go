package migrate

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/misteriosai/agent-memory/internal/cmd/serve"
	"github.com/misteriosai/agent-memory/internal/config"
	registrymigrate "github.com/misteriosai/agent-memory/internal/registry/migrate"
	"github.com/urfave/cli/v3"

	// Trace and vector plugins register their migrators alongside their loaders.
	_ "github.com/misteriosai/agent-memory/internal/plugin/all"
)

// Command returns the migrate sub-command.
func Command() *cli.Command {
	cfg := config.DefaultConfig()
	return &cli.Command{
		Name:  "migrate",
		Usage: "Create the trace and vector schemas for the configured backends",
		Flags: serve.Flags(&cfg),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := cfg.ApplyLegacyEnv(); err != nil {
				return err
			}
			// Running the command is the request to migrate.
			cfg.DatastoreMigrateAtStart = true
			cfg.VectorMigrateAtStart = true
			return Run(config.WithContext(ctx, &cfg))
		},
	}
}

// Run executes every registered migrator against the config in ctx.
func Run(ctx context.Context) error {
	log.Info("Running migrations...")
	if err := registrymigrate.RunAll(ctx); err != nil {
		return err
	}
	log.Info("All migrations completed successfully")
	return nil
}
