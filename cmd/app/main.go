package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/pinenote/internal"
	pkgconfig "github.com/starford/pinenote/pkg/config"
)

type runner func(ctx context.Context, opts ...internal.Option) error

// loadConfig reads the config file named by --config. A missing file leaves
// the defaults, overridden by PINENOTE_* environment variables.
func loadConfig(cmd *cli.Command) (*internal.Config, string, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	cfg.ApplyEnv()
	read, err := pkgconfig.LoadOptional(configPath, cfg)
	if err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}
	if !read {
		configPath = ""
	}
	return cfg, configPath, nil
}

func action(run runner, name string) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		cfg, configPath, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		opts := []internal.Option{
			internal.WithConfig(cfg),
		}
		if configPath != "" {
			opts = append(opts, internal.WithConfigPath(configPath))
		}

		if err := run(ctx, opts...); err != nil {
			return fmt.Errorf("%s run error: %w", name, err)
		}
		return nil
	}
}

func main() {
	cmd := &cli.Command{
		Name:   "pinenote",
		Usage:  "Personal notes client for a hosted auth and table service",
		Action: action(internal.Run, "app"),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Serve the local HTTP API and event stream (default)",
				Action: action(internal.Run, "app"),
			},
			{
				Name:   "mcp",
				Usage:  "Serve note tools over MCP on stdin/stdout",
				Action: action(internal.RunMCP, "mcp"),
			},
			{
				Name:   "devbackend",
				Usage:  "Run a local emulator of the remote auth and table service",
				Action: action(internal.RunDevBackend, "devbackend"),
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
