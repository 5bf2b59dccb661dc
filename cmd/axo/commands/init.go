package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"axocore/internal/domain"
)

// initCmd creates a new identity (or loads the existing one) and prints its
// fingerprint for out-of-band verification.
func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create or load your local identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if username == "" {
				return fmt.Errorf("--username required")
			}
			result, err := appCtx.InitIdentity(domain.Username(username))
			if err != nil {
				return fmt.Errorf("initialising identity: %w", err)
			}
			fp, err := appCtx.Fingerprint()
			if err != nil {
				return err
			}
			if result.Created {
				fmt.Println("Identity created.")
			} else {
				fmt.Println("Identity loaded.")
			}
			fmt.Printf("Fingerprint: %s\n", fp)
			return nil
		},
	}
}
