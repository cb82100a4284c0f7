package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/snap-telemetry/snapharness/internal/config"
	"github.com/snap-telemetry/snapharness/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "snapharness",
	Short: "Black-box test harness for the snap telemetry daemon",
	Long: `snapharness drives a running snap daemon through its CLI and REST API.

For every task definition it finds, it loads the plugins the task needs,
creates the task, waits for it to run, checks the daemon configured the
declared metrics, and then stops and removes it.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "config file (default is ./snapharness.yaml or $HOME/.config/snapharness/snapharness.yaml)")
	flags.String("tasks-dir", "", "directory holding task definitions")
	flags.StringP("task", "t", "", "run only task files matching this name or glob")
	flags.String("log-dir", "", "directory for harness.log (default stderr)")
	flags.String("log-level", "", "log level: debug, info, warn, error")

	bindFlags(flags, map[string]string{
		"config":    "config",
		"tasks-dir": "tasks.dir",
		"task":      "tasks.selector",
		"log-dir":   "logging.dir",
		"log-level": "logging.level",
	})
}

// bindFlags binds each named flag to its config key, so a flag set on the
// command line overrides the config file and environment.
func bindFlags(flags *pflag.FlagSet, keys map[string]string) {
	for name, key := range keys {
		_ = viper.BindPFlag(key, flags.Lookup(name))
	}
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("snapharness")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath(config.ConfigDir())
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("SNAPHARNESS")
	// e.g. SNAPHARNESS_DAEMON_API_URL for daemon.api_url
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}

// loadConfig returns the validated configuration.
func loadConfig() (*config.Config, error) {
	return config.Load()
}

// newLogger opens the run log described by cfg.
func newLogger(cfg *config.Config) (*logging.Logger, error) {
	return logging.NewLogger(cfg.Logging.Dir, logging.ParseLevel(cfg.Logging.Level), cfg.Logging.KeepRuns)
}
