package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/thisdougb/multisync"
	"github.com/thisdougb/multisync/internal/config"
	"github.com/thisdougb/multisync/internal/source"
)

const version = "0.3.0"

var (
	rootCmd = &cobra.Command{
		Use:   "multisyncd",
		Short: "cross-node stat sync",
		Long: fmt.Sprintf(`multisyncd (v%s)

Keeps per-entity numeric stats consistent across server nodes that share one
database. Every flag can also be set as MSS_<FLAG>, e.g. MSS_SERVER_NAME=lobby,
and .env / .env.local files in the working directory are read first.`, version),
		SilenceUsage:      true,
		PersistentPreRunE: processConfig,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of multisyncd",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("multisyncd v%s\n", version)
		},
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.String("server-name", "", "column name owned by this node")
	flags.String("db-driver", "", "mysql, postgres, sqlite3 or memory")
	flags.String("db-dsn", "", "full data source name, overrides the other db flags")
	flags.String("db-host", "", "database host")
	flags.Int("db-port", 0, "database port")
	flags.String("db-name", "", "database name")
	flags.String("db-user", "", "database user")
	flags.String("db-password", "", "database password")
	flags.String("value-source", "", "base URL of the local value source")
	flags.String("log-level", "", "debug, info, warn or error")

	rootCmd.AddCommand(serveCmd, addCmd, removeCmd, listCmd, totalCmd, migrateCmd, versionCmd)
}

// initConfig loads env files and sets up viper to read MSS_ variables.
func initConfig() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix("mss")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// processConfig copies explicitly set flags into the environment, which is
// where the engine reads its configuration from.
func processConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	if err := applyFlags(cmd); err != nil {
		return err
	}

	config.SetLogger(config.NewLogger(config.StringValue("MSS_LOG_LEVEL")))
	return nil
}

// reloadEnvFiles reads the env files again, replacing values loaded at
// startup. Flags given on the command line still win.
func reloadEnvFiles(cmd *cobra.Command) error {
	for _, file := range []string{".env", ".env.local"} {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Overload(file); err != nil {
			return fmt.Errorf("failed to read %s: %w", file, err)
		}
	}
	return applyFlags(cmd)
}

func applyFlags(cmd *cobra.Command) error {
	var err error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if err != nil || !f.Changed {
			return
		}
		key := "MSS_" + strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
		err = os.Setenv(key, viper.GetString(f.Name))
	})
	if err != nil {
		return fmt.Errorf("failed to apply flags: %w", err)
	}
	return nil
}

// openEngine builds an engine from the environment. The value source is
// optional for commands that only touch the store.
func openEngine(ctx context.Context) (*multisync.Engine, error) {
	opts := multisync.Options{Directory: multisync.StaticDirectory{}}
	if base := config.StringValue("MSS_VALUE_SOURCE"); base != "" {
		src := source.NewHTTPSource(base, 0)
		opts.Source = src
		opts.Directory = src
	}
	return multisync.New(ctx, opts)
}
