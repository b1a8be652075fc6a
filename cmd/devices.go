package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List available capture devices",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, backend, err := newDevice()
		if err != nil {
			return err
		}
		defer backend.Close()

		devices, err := backend.ListCaptureDevices()
		if err != nil {
			return fmt.Errorf("failed to enumerate capture devices: %w", err)
		}

		fmt.Printf("🎙️  Capture devices (%s, %d found):\n\n", runtime.GOOS, len(devices))
		for i, d := range devices {
			marker := " "
			if d.IsDefault {
				marker = "*"
			}
			fmt.Printf("  %s %d. %s\n", marker, i+1, d.Name)
			fmt.Printf("       id: %s\n", d.ID)
		}
		if len(devices) == 0 {
			fmt.Println("  No capture devices found.")
		}
		return nil
	},
}
