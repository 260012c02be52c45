package cli

import (
	"github.com/gear6io/slate/server"
	"github.com/gear6io/slate/server/config"
	"github.com/gear6io/slate/server/store"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "repladm",
	Short: "Inspect and manage slate replication state",
	Long: `repladm is the operator surface for the slate replication daemon.

It reads the same store and work queue as repld, so every command shows
the live pipeline state: pending ingest records, per-target statuses,
close orders and the keys currently offered to remote workers.

Examples:
  repladm status                 # per-target replication statuses
  repladm work                   # work records awaiting assignment
  repladm orders                 # close order, oldest first
  repladm queue list             # keys on the coordination queue
  repladm seed --table 4 --files 3 --closed`,
	Version: "0.1.0",
}

var configPath string

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DEFAULT_CONFIG_FILE, "path to the daemon configuration file")
}

// loadConfig reads the configuration named by --config, falling back to
// defaults when the file does not exist.
func loadConfig() *config.Config {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return config.LoadDefaultConfig()
	}
	return cfg
}

// openStore opens the configured record store with a quiet logger; CLI
// output goes to stdout, not the daemon log.
func openStore(cfg *config.Config) (store.Store, error) {
	return server.OpenStore(cfg, zerolog.Nop())
}
