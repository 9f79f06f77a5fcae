package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/olc-dev/olc/internal/codec"
	"github.com/olc-dev/olc/internal/config"
)

func newKeygenCmd() *cobra.Command {
	var save bool

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an encryption key for sessions",
		Long: `Generates a random key for encrypting saved sessions.

Store it in the configuration with --save, or export it as OLC_KEY to keep
it out of the config file. Losing the key makes encrypted sessions
unreadable.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := codec.GenerateKey()
			if err != nil {
				return err
			}
			fmt.Println(key)
			if save {
				if err := config.SetField("encryption_key", key); err != nil {
					return err
				}
				if err := config.SetField("encryption_enabled", "true"); err != nil {
					return err
				}
				fmt.Println("Saved to config and enabled encryption for new saves.")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&save, "save", false, "Store the key in the config file and enable encryption")
	return cmd
}
