package cmd

import (
	"fmt"
	"os"

	"github.com/illarion/securestore/internal/journal"
	"github.com/spf13/cobra"
)

func newCompactCommand(a *app) *cobra.Command {
	var keep int
	cmd := &cobra.Command{
		Use:   "compact",
		Short: "Drop old journal entries and reclaim space",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			return a.withJournal(func(j *journal.Journal) error {
				info, err := os.Stat(j.Path())
				if err != nil {
					return err
				}
				sizeBefore := info.Size()

				if keep > 0 {
					removed, err := j.Prune(keep)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Pruned %d entries\n", removed)
				}

				if err := j.Compact(); err != nil {
					return err
				}

				info, err = os.Stat(j.Path())
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Compacted: %s -> %s\n", formatSize(sizeBefore), formatSize(info.Size()))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&keep, "keep", 1000, "Entries to keep, 0 keeps all")
	return cmd
}
