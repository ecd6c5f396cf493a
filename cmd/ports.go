package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/facegate/internal/config"
	"github.com/kozaktomas/facegate/internal/serial"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports in discovery order",
	RunE:  runPorts,
}

func init() {
	rootCmd.AddCommand(portsCmd)
}

func runPorts(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	discovery := serial.NewDiscovery(&cfg.Serial)

	candidates, err := discovery.Candidates()
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		fmt.Println("No serial ports found.")
		return nil
	}

	for _, c := range candidates {
		match := string(c.Match)
		if match == "" {
			match = "-"
		}
		usb := ""
		if c.USB {
			usb = fmt.Sprintf(" usb=%s:%s", c.VID, c.PID)
		}
		fmt.Printf("%-20s %-10s %s%s\n", c.Path, match, c.Product, usb)
	}

	if path, err := discovery.Find(); err == nil {
		fmt.Printf("\nSelected: %s\n", path)
	} else {
		fmt.Printf("\nNo port matches; startup would try %s\n", cfg.Serial.FallbackPort)
	}
	return nil
}
