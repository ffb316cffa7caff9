// Package cmd wires the agent's command line.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lapdev/wsagent/internal/activity"
	"github.com/lapdev/wsagent/internal/builder"
	"github.com/lapdev/wsagent/internal/conf"
	"github.com/lapdev/wsagent/internal/osuser"
	"github.com/lapdev/wsagent/internal/podman"
	"github.com/lapdev/wsagent/internal/rpc"
	"github.com/spf13/cobra"
)

var (
	configFileFlag string
	debugFlag      bool
	logger         *slog.Logger
)

// Version is injected at build time.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:     "lapdev-ws",
	Short:   "Workspace host agent",
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if debugFlag {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
			ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
				if a.Key == slog.TimeKey {
					if t, ok := a.Value.Any().(time.Time); ok {
						a.Value = slog.TimeValue(t.UTC())
					}
				}
				return a
			},
		}))
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
	SilenceErrors: true,
	SilenceUsage:  true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFileFlag, "config-file", "c", conf.DefaultPath, "the config file path")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "enable debug logging")
	rootCmd.SetVersionTemplate(fmt.Sprintf("lapdev-ws version %s\n", Version))
}

// Execute runs the root command with signal handling. Startup errors exit
// non-zero; a signal-driven shutdown exits clean.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "lapdev-ws: %v\n", err)
		os.Exit(1)
	}
}

// run assembles the agent and serves until the context is cancelled.
func run(ctx context.Context) error {
	cfg, err := conf.Load(configFileFlag)
	if err != nil {
		return err
	}

	users := osuser.NewProvisioner(logger)
	engine := podman.NewClient(users, osuser.SocketPath)
	runner := podman.NewRunner(logger)
	bld := builder.New(engine, runner, logger)

	registry := rpc.NewRegistry()
	agent := &rpc.Agent{
		Version: Version,
		Users:   users,
		Engine:  engine,
		Builder: bld,
		Logger:  logger,
	}
	plane := rpc.NewPlane(agent, registry, logger)

	probe := activity.NewProbe(registry, logger)
	go probe.Run(ctx)

	logger.Info("serving", "bind", cfg.Bind, "ws-port", cfg.WSPort, "inter-ws-port", cfg.InterWSPort)
	return plane.Run(ctx, cfg.Bind, cfg.WSPort, cfg.InterWSPort)
}
