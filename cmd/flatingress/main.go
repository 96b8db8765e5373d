// cmd/flatingress/main.go
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/David-Botos/flat-ingress/pkg/config"
	"github.com/David-Botos/flat-ingress/pkg/logging"
)

var Version = "dev"

// cli carries what every command needs after setup
type cli struct {
	cfg    *config.Config
	logger *zap.Logger
}

func main() {
	c := &cli{}

	rootCmd := &cobra.Command{
		Use:               "flatingress",
		Short:             "Migrates fixed-width payment records between MongoDB deployments",
		Version:           Version,
		SilenceUsage:      true,
		PersistentPreRunE: c.setup,
	}

	rootCmd.AddCommand(serveCmd(c))
	rootCmd.AddCommand(runCmd(c))
	rootCmd.AddCommand(resetCmd(c))
	rootCmd.AddCommand(statusCmd(c))
	rootCmd.AddCommand(logsCmd(c))
	rootCmd.AddCommand(statsCmd(c))
	rootCmd.AddCommand(purgeLogsCmd(c))

	err := rootCmd.Execute()
	if c.logger != nil {
		_ = c.logger.Sync()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads .env, the configuration and the logger
func (c *cli) setup(cmd *cobra.Command, args []string) error {
	envErr := godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	zap.ReplaceGlobals(logger)

	if envErr != nil {
		logger.Debug("No .env file loaded", zap.Error(envErr))
	}

	c.cfg = cfg
	c.logger = logger
	return nil
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
