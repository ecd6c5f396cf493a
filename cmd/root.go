package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/facegate/internal/config"
	"github.com/kozaktomas/facegate/internal/logging"
)

var closeLog = func() error { return nil }

var rootCmd = &cobra.Command{
	Use:   "facegate",
	Short: "Face-verified door controller",
	Long: `Facegate watches a camera, recognises enrolled faces against samples stored
in MariaDB or PostgreSQL, and opens a remote lock over a Bluetooth or USB
serial link once a face has been confirmed on several consecutive frames.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		closeFn, err := logging.Setup(&config.Load().Log)
		if err != nil {
			return fmt.Errorf("failed to set up logging: %w", err)
		}
		closeLog = closeFn
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = closeLog()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
