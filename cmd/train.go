package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/facegate/internal/config"
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Run one training pass against the sample store",
	Long: `Builds a recognition model from every enrolled sample and prints a summary.
Identities stored under more than one name are reported and split by name.
Nothing is persisted: the controller retrains at startup and on POST /api/v1/train.`,
	RunE: runTrain,
}

func init() {
	rootCmd.AddCommand(trainCmd)

	trainCmd.Flags().String("matcher", "", "Override MATCHER (lbph or nearest)")
}

func runTrain(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if m := mustGetString(cmd, "matcher"); m != "" {
		cfg.Recognition.Matcher = m
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx := context.Background()
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	builder, err := newBuilder(cfg, store)
	if err != nil {
		return err
	}

	model, err := builder.Build(ctx)
	if err != nil {
		return fmt.Errorf("training failed: %w", err)
	}

	fmt.Printf("Model:    %s\n", model.ID)
	fmt.Printf("Matcher:  %s\n", model.Kind())
	fmt.Printf("Classes:  %d\n", model.Classes())
	fmt.Printf("Samples:  %d (skipped %d)\n", model.Loaded, model.Skipped)
	if len(model.Conflicts) > 0 {
		fmt.Printf("\nIdentities split by name: %v\n", model.Conflicts)
	}
	return nil
}
