package cmd

import (
	"github.com/illarion/securestore/internal/crypto"
	"github.com/spf13/cobra"
)

func newRetrieveCommand(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "retrieve <id>",
		Short: "Decrypt and print the data stored under id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(false, nil, func(s *session) error {
				data, err := s.Retrieve(args[0])
				if err != nil {
					return err
				}
				defer crypto.ClearBytes(data)
				return a.writeOutput(output, data, cmd.OutOrStdout())
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to file instead of stdout")
	return cmd
}
