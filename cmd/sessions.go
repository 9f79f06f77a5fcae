package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/olc-dev/olc/internal/codec"
	"github.com/olc-dev/olc/internal/config"
	"github.com/olc-dev/olc/internal/session"
)

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage saved sessions",
	}
	cmd.AddCommand(newSessionsListCmd())
	cmd.AddCommand(newSessionsDeleteCmd())
	cmd.AddCommand(newSessionsPruneCmd())
	return cmd
}

func openStore() (*session.Store, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	var masker *codec.Masker
	if cfg.MaskSensitive {
		masker = codec.NewMasker(cfg.MaskPatterns)
	}
	store, err := session.New(cfg.SessionsDir(), session.Options{
		Masker:         masker,
		Encrypt:        cfg.EncryptionEnabled,
		EncryptionKey:  cfg.ResolveEncryptionKey(),
		RetentionCount: cfg.SessionRetentionCount,
		RetentionDays:  cfg.SessionRetentionDays,
	})
	if err != nil {
		return nil, nil, err
	}
	return store, cfg, nil
}

func newSessionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved sessions, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, _, err := openStore()
			if err != nil {
				return err
			}
			metas, err := store.List()
			if err != nil {
				return err
			}
			if len(metas) == 0 {
				fmt.Println("No saved sessions.")
				return nil
			}
			for _, m := range metas {
				title := m.Title
				if title == "" {
					title = "(untitled)"
				}
				flags := ""
				if m.Encrypted {
					flags = " [enc]"
				}
				if len(m.Tags) > 0 {
					flags += " [" + strings.Join(m.Tags, ",") + "]"
				}
				fmt.Printf("%s  %-30s %s · %d msgs · %s%s\n",
					m.ID, title, m.Model, m.MessageCount,
					m.UpdatedAt.Local().Format("2006-01-02 15:04"), flags)
			}
			return nil
		},
	}
}

func newSessionsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete saved sessions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := openStore()
			if err != nil {
				return err
			}
			for _, id := range args {
				if err := store.Delete(id); err != nil {
					return err
				}
				fmt.Printf("Deleted %s\n", id)
			}
			return nil
		},
	}
}

func newSessionsPruneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Apply the retention policy now",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, cfg, err := openStore()
			if err != nil {
				return err
			}
			if cfg.SessionRetentionCount <= 0 && cfg.SessionRetentionDays <= 0 {
				fmt.Println("No retention policy configured.")
				return nil
			}
			removed, err := store.Prune()
			if err != nil {
				return err
			}
			fmt.Printf("Pruned %d sessions\n", removed)
			return nil
		},
	}
}
