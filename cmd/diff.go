package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDiffCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "diff <id> <file>",
		Short: "Compare stored data with a local file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			local, err := readInput(args[1], cmd.InOrStdin())
			if err != nil {
				return err
			}

			return a.withSession(false, nil, func(s *session) error {
				out, err := s.Diff(args[0], args[1], local)
				if err != nil {
					return err
				}
				if out == "" {
					fmt.Fprintln(cmd.OutOrStdout(), "No differences")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), out)
				return nil
			})
		},
	}
}
