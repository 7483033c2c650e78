package cmd

import (
	"github.com/spf13/cobra"
)

func newExistsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "exists <id>",
		Short: "Exit zero if data is stored under id",
		Long:  "Exit zero if data is stored under id. Nothing is decrypted.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(false, nil, func(s *session) error {
				if !s.Exists(args[0]) {
					return errSilent
				}
				return nil
			})
		},
	}
}
