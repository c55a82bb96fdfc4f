package commands

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/dyluth/weir/internal/cache"
	"github.com/dyluth/weir/internal/config"
	"github.com/dyluth/weir/internal/relay/redisrelay"
)

var (
	version string
	commit  string
	date    string

	configPath string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "weir",
	Short: "Weir - live entity synchronization over a relay event stream",
	Long: `Weir consumes a continuous, out-of-order, duplicated stream of signed
records from relay infrastructure and maintains a small set of live,
deduplicated entities: projects, conversations, tasks, agent profiles and
ephemeral presence signals.

Results stream immediately and improve monotonically - never wait, always
stream.`,
	Version: version,
	RunE: func(cmd *cobra.Command, args []string) error {
		// If no subcommand is specified, show help
		return cmd.Help()
	},
}

// Execute adds all child commands to the root command and sets flags
// appropriately. Called once by main.main().
func Execute() error {
	// Errors are printed with colors by the printer package
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultFileName, "Path to weir.yml")
}

// openTransport loads the config and builds the Redis transport with its
// configured local cache.
func openTransport() (*config.Config, *redisrelay.Client, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	var localCache cache.Cache = cache.Null{}
	if cfg.Cache.Path != "" {
		sqliteCache, err := cache.OpenSQLite(cfg.Cache.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open record cache: %w", err)
		}
		localCache = sqliteCache
	}

	client, err := redisrelay.NewClient(&redis.Options{
		Addr:     cfg.Relay.Addr,
		Password: cfg.Relay.Password,
		DB:       cfg.Relay.DB,
	}, cfg.Instance, localCache)
	if err != nil {
		return nil, nil, err
	}

	return cfg, client, nil
}
