package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/facegate/internal/config"
	"github.com/kozaktomas/facegate/internal/training"
)

var identitiesCmd = &cobra.Command{
	Use:   "identities",
	Short: "List enrolled identities and name conflicts",
	RunE:  runIdentities,
}

func init() {
	rootCmd.AddCommand(identitiesCmd)
}

func runIdentities(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx := context.Background()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	identities, conflicts, err := training.Survey(ctx, store)
	if err != nil {
		return err
	}
	if len(identities) == 0 {
		fmt.Println("No identities enrolled.")
		return nil
	}
	total, err := store.Count(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("%-8s %-24s %8s  %-20s\n", "ID", "NAME", "SAMPLES", "LAST CAPTURED")
	for _, ident := range identities {
		marker := ""
		if conflicts.Contains(ident.UserID) {
			marker = "  (conflict)"
		}
		fmt.Printf("%-8d %-24s %8d  %-20s%s\n",
			ident.UserID, ident.UserName, ident.Samples, ident.LastCaptured.Format("2006-01-02 15:04:05"), marker)
	}

	fmt.Printf("\n%d samples across %d identities\n", total, len(identities))

	if ids := conflicts.IDs(); len(ids) > 0 {
		fmt.Printf("\n%d identities are stored under more than one name and will be split by name: %v\n", len(ids), ids)
	}
	return nil
}
