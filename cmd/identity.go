package cmd

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/illarion/securestore/internal/config"
	"github.com/illarion/securestore/internal/crypto"
	"github.com/illarion/securestore/internal/identity"
	"github.com/illarion/securestore/internal/journal"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

func newIdentityCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "identity",
		Short: "Inspect and manage the device identity",
	}
	cmd.AddCommand(
		newIdentityShowCommand(a),
		newKeyringSetCommand(a),
		newKeyringDeleteCommand(a),
		newKeyringProvisionCommand(a),
	)
	return cmd
}

func newIdentityShowCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the configured source and a fingerprint of its identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			var j *journal.Journal
			if a.cfg.Identity.Source == config.SourceJournal {
				if j, err = a.openJournal(); err != nil {
					return err
				}
				defer func() {
					err = multierr.Append(err, closeJournal(j))
				}()
			}

			src, err := a.identitySource(j)
			if err != nil {
				return err
			}
			id, err := src.Identity()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Source:      %s\n", a.cfg.Identity.Source)
			fmt.Fprintf(out, "Fingerprint: %s\n", crypto.Fingerprint(id))
			return nil
		},
	}
}

func (a *app) keyring() *identity.Keyring {
	return identity.NewKeyring(a.cfg.Identity.Service, a.cfg.Identity.User)
}

func newKeyringSetCommand(a *app) *cobra.Command {
	var fromStdin bool
	cmd := &cobra.Command{
		Use:   "keyring-set",
		Short: "Save an identity in the OS keyring",
		Long: `Save an identity in the OS keyring.

The value is prompted for twice without echo, or read from the first line
of stdin with --stdin. Data stored under a previous identity can no longer
be decrypted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var id string
			if fromStdin {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("failed to read identity: %w", err)
				}
				id = strings.TrimSpace(line)
				if id == "" {
					return identity.ErrEmptyIdentity
				}
			} else {
				var err error
				if id, err = identity.NewPrompt("Enter device identity: ").Confirm(); err != nil {
					return err
				}
			}

			k := a.keyring()
			if err := k.Set(id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Identity saved to keyring %s/%s (fingerprint %s)\n",
				k.Service, k.User, crypto.Fingerprint(id))
			return nil
		},
	}
	cmd.Flags().BoolVar(&fromStdin, "stdin", false, "Read the identity from stdin")
	return cmd
}

func newKeyringDeleteCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "keyring-delete",
		Short: "Remove the identity from the OS keyring",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			k := a.keyring()
			if err := k.Delete(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Identity removed from keyring %s/%s\n", k.Service, k.User)
			return nil
		},
	}
}

func newKeyringProvisionCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "keyring-provision",
		Short: "Generate a random identity in the OS keyring unless one exists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			k := a.keyring()
			id, created, err := k.Provision()
			if err != nil {
				return err
			}
			if created {
				fmt.Fprintf(cmd.OutOrStdout(), "Generated identity in keyring %s/%s (fingerprint %s)\n",
					k.Service, k.User, crypto.Fingerprint(id))
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Keyring %s/%s already holds an identity (fingerprint %s)\n",
					k.Service, k.User, crypto.Fingerprint(id))
			}
			return nil
		},
	}
}
