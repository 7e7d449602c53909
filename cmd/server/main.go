package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/subgen/api/internal/config"
	"github.com/subgen/api/internal/logging"
)

func main() {
	// .env is optional; real environment variables take precedence
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "subgen",
		Short:         "Subtitle generation API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP server (default)",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runServe()
			},
		},
		&cobra.Command{
			Use:   "sweep",
			Short: "Delete every file under the storage directory and exit",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runSweep()
			},
		},
	)
	return root
}

// loadConfig reads configuration and sets up the global logger. withRing
// also keeps recent log lines in memory for /system-messages.
func loadConfig(withRing bool) (*config.Config, *logging.Ring, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	var ring *logging.Ring
	if withRing {
		ring = logging.NewRing(cfg.Server.LogBufferSize)
	}
	logging.Configure(logging.Config{
		Level:   cfg.Server.LogLevel,
		Service: "subgen",
		Ring:    ring,
	})
	return cfg, ring, nil
}
