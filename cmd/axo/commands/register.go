package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"axocore/internal/domain"
)

// registerCmd generates a signed pre-key and a batch of one-time pre-keys,
// publishes a bundle carrying the signed pre-key and the first one-time
// pre-key, and registers the device with the key server.
func registerCmd() *cobra.Command {
	var numOneTimeKeys int
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Publish your pre-key bundle and device to the key server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if username == "" || device == "" {
				return fmt.Errorf("--username and --device required")
			}
			err := appCtx.Register(cmd.Context(), domain.Username(username), domain.DeviceID(device), numOneTimeKeys)
			if err != nil {
				return fmt.Errorf("registering: %w", err)
			}
			fmt.Println("Registered pre-keys and device with key server")
			return nil
		},
	}
	cmd.Flags().IntVar(&numOneTimeKeys, "num-prekeys", 10, "number of one-time pre-keys to generate")
	return cmd
}
