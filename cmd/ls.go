package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/illarion/securestore/internal/storage"
	"github.com/spf13/cobra"
)

func newLsCommand(a *app) *cobra.Command {
	var quiet bool
	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List stored ids",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			return a.withSession(false, nil, func(s *session) error {
				ids, err := s.List()
				if err != nil {
					return err
				}

				if quiet {
					for _, id := range ids {
						fmt.Fprintln(out, id)
					}
					return nil
				}

				if len(ids) == 0 {
					fmt.Fprintf(out, "No data in %s\n", s.Root())
					return nil
				}
				fmt.Fprintf(out, "Stored in %s:\n", s.Root())
				for _, id := range ids {
					// encrypted size; plaintext is 28 bytes smaller
					info, err := os.Stat(filepath.Join(s.Root(), id+storage.DataExt))
					if err != nil {
						fmt.Fprintf(out, "  %s (backup only)\n", id)
						continue
					}
					fmt.Fprintf(out, "  %s (%s)\n", id, formatSize(info.Size()))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Print ids only")
	return cmd
}
