package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"axocore/internal/domain"
)

// adminCmd groups the maintenance operations a device owner runs directly
// against their local store and the key server.
func adminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Maintenance operations",
	}
	cmd.AddCommand(resetStoreCmd(), removeConversationCmd(), rescanDevicesCmd())
	return cmd
}

func resetStoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resetaxodb",
		Short: "Wipe the local encrypted store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := appCtx.ResetStore(); err != nil {
				return fmt.Errorf("resetting store: %w", err)
			}
			fmt.Println("Store reset")
			return nil
		},
	}
}

func removeConversationCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "removeAxoConversation <user>",
		Short: "Delete every locally-held conversation with a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if username == "" {
				return fmt.Errorf("--username required")
			}
			remote := domain.Username(args[0])
			if err := appCtx.RemoveConversation(domain.Username(username), remote); err != nil {
				return fmt.Errorf("removing conversations with %s: %w", remote, err)
			}
			fmt.Printf("Removed conversations with %s\n", remote)
			return nil
		},
	}
}

func rescanDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rescanUserDevices <user>",
		Short: "Refresh the cached device list for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user := domain.Username(args[0])
			devices, err := appCtx.RescanUserDevices(cmd.Context(), user)
			if err != nil {
				return fmt.Errorf("rescanning %s's devices: %w", user, err)
			}
			fmt.Printf("%s has %d device(s):\n", user, len(devices))
			for _, d := range devices {
				fmt.Printf("  %s\n", d)
			}
			return nil
		},
	}
}
