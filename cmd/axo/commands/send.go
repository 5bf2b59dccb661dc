package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"axocore/internal/domain"
)

// sendCmd encrypts and sends a message to every device of <peer>.
func sendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send <peer> <message>",
		Short: "Encrypt and send a message to a peer's devices",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if username == "" {
				return fmt.Errorf("--username required")
			}
			descriptor := domain.MessageDescriptor{
				Recipient: domain.Username(args[0]),
				Body:      []byte(args[1]),
			}
			ids, err := appCtx.SendMessage(cmd.Context(), descriptor)
			if err != nil {
				return fmt.Errorf("sending message to %q: %w", descriptor.Recipient, err)
			}
			fmt.Printf("Message sent to %d device(s)\n", len(ids))
			return nil
		},
	}
	return cmd
}
