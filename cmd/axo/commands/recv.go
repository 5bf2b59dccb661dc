package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"axocore/internal/domain"
)

// printingListener renders inbound messages and notifications to stdout.
type printingListener struct{}

func (printingListener) MessageReceived(msg domain.DecryptedMessage) {
	fmt.Printf("[%s/%s] %s\n", msg.FromUser, msg.FromDevice, string(msg.Plaintext))
}

func (printingListener) NotifyCallback(action domain.NotifyAction, info string, device domain.DeviceID) {
	fmt.Printf("notice: %s %s (device %s)\n", action, info, device)
}

// recvCmd starts the transport sink's inbound listener and blocks until the
// process is interrupted, printing every decrypted message as it arrives.
func recvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recv",
		Short: "Listen for and decrypt inbound messages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			appCtx.StartListening(ctx)

			addrs := appCtx.Sink.Host().Addrs()
			fmt.Printf("Listening as %s on:\n", appCtx.Sink.Host().ID())
			for _, a := range addrs {
				fmt.Printf("  %s/p2p/%s\n", a, appCtx.Sink.Host().ID())
			}

			<-ctx.Done()
			return nil
		},
	}
}
