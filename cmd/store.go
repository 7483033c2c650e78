package cmd

import (
	"fmt"

	"github.com/illarion/securestore/internal/crypto"
	"github.com/spf13/cobra"
)

func newStoreCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "store <id> [file]",
		Short: "Encrypt data and save it under id",
		Long: `Encrypt data and save it under id.

Data is read from file, or from stdin when file is omitted or '-'.
An existing value is replaced and kept as a backup.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			if len(args) == 2 {
				path = args[1]
			}
			data, err := readInput(path, cmd.InOrStdin())
			if err != nil {
				return err
			}
			defer crypto.ClearBytes(data)

			return a.withSession(false, nil, func(s *session) error {
				if err := s.Store(args[0], data); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Stored %s (%s)\n", args[0], formatSize(int64(len(data))))
				return nil
			})
		},
	}
}
