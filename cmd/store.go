package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/kozaktomas/facegate/internal/config"
	"github.com/kozaktomas/facegate/internal/database"
	"github.com/kozaktomas/facegate/internal/matcher"
	"github.com/kozaktomas/facegate/internal/training"

	// Sample store backends register themselves with the database package.
	_ "github.com/kozaktomas/facegate/internal/database/mariadb"
	_ "github.com/kozaktomas/facegate/internal/database/postgres"
)

// openStore connects to the configured sample store.
func openStore(ctx context.Context, cfg *config.Config) (database.Store, error) {
	fmt.Printf("Connecting to %s sample store...\n", cfg.Database.Driver)
	store, err := database.Open(ctx, &cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open sample store (drivers: %s): %w",
			strings.Join(database.Drivers(), ", "), err)
	}
	return store, nil
}

// newBuilder creates a training builder for the configured matcher.
func newBuilder(cfg *config.Config, store database.SampleReader) (*training.Builder, error) {
	factory, err := matcher.NewFactory(matcher.Kind(cfg.Recognition.Matcher), cfg.Recognition.FaceSize)
	if err != nil {
		return nil, err
	}
	return training.NewBuilder(store, factory), nil
}
