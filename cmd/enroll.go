package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/facegate/internal/config"
	"github.com/kozaktomas/facegate/internal/enroll"
	"github.com/kozaktomas/facegate/internal/recognition"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll --id ID --name NAME FILE...",
	Short: "Import face images for an identity",
	Long: `Stores each image as a 128x128 colour PNG sample for the given identity.
The largest detected face is cropped when face detection is available,
otherwise the centre of the image is used.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().Int("id", 0, "Identity id (required)")
	enrollCmd.Flags().String("name", "", "Identity display name (required)")
	enrollCmd.Flags().Bool("no-detect", false, "Always use the centre crop")
	_ = enrollCmd.MarkFlagRequired("id")
	_ = enrollCmd.MarkFlagRequired("name")
}

func runEnroll(cmd *cobra.Command, args []string) error {
	userID := mustGetInt(cmd, "id")
	userName := mustGetString(cmd, "name")

	cfg := config.Load()
	ctx := context.Background()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	var detector recognition.Detector
	if !mustGetBool(cmd, "no-detect") {
		detector = loadDetector(&cfg.Camera)
	}
	importer := enroll.NewImporter(store, detector)

	bar := progressbar.NewOptions(len(args),
		progressbar.OptionSetDescription("Importing samples"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("images"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionFullWidth(),
	)

	var imported, detected int
	var failures []error
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err == nil {
			var res enroll.Result
			res, err = importer.Import(ctx, userID, userName, data)
			if err == nil {
				imported++
				if res.Detected {
					detected++
				}
			}
		}
		if err != nil {
			if errors.Is(err, enroll.ErrInvalidIdentity) {
				return err
			}
			failures = append(failures, fmt.Errorf("%s: %w", path, err))
		}
		bar.Add(1)
	}
	fmt.Println()

	fmt.Printf("Imported %d of %d images for %s (id=%d), %d with a detected face\n",
		imported, len(args), userName, userID, detected)
	for _, f := range failures {
		fmt.Printf("  failed: %v\n", f)
	}
	if imported == 0 {
		return errors.New("no images imported")
	}
	return nil
}
