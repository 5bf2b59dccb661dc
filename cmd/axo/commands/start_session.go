package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"axocore/internal/domain"
)

// startSessionCmd performs the X3DH handshake against a peer device's
// pre-key bundle and persists a new session for future messaging.
func startSessionCmd() *cobra.Command {
	var peerDevice string
	cmd := &cobra.Command{
		Use:   "start-session <peer>",
		Short: "Establish a secure session with one of a peer's devices",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			peer := domain.Username(args[0])
			if username == "" {
				return fmt.Errorf("--username required")
			}

			remoteDevice := domain.DeviceID(peerDevice)
			if remoteDevice == "" {
				devices, err := appCtx.Provisioning.ListDevices(cmd.Context(), peer)
				if err != nil {
					return fmt.Errorf("listing %s's devices: %w", peer, err)
				}
				if len(devices) == 0 {
					return fmt.Errorf("%s has no registered devices", peer)
				}
				remoteDevice = devices[0]
			}

			id := domain.ConversationID{
				LocalUser:    domain.Username(username),
				RemoteUser:   peer,
				RemoteDevice: remoteDevice,
			}
			if _, err := appCtx.Establisher.EstablishInitiator(cmd.Context(), id); err != nil {
				return fmt.Errorf("starting session with %s/%s: %w", peer, remoteDevice, err)
			}

			fmt.Printf("Session created with %s (device %s)\n", peer, remoteDevice)
			return nil
		},
	}
	cmd.Flags().StringVar(&peerDevice, "peer-device", "", "peer's device id (default: first registered device)")
	return cmd
}
