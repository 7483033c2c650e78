package cmd

import (
	"fmt"

	"github.com/illarion/securestore/internal/crypto"
	"github.com/spf13/cobra"
)

func newEncryptCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "encrypt <in> <out>",
		Short: "Encrypt a file with the device key",
		Long: `Encrypt a file with the device key, outside the store.

Use '-' for stdin or stdout. The output is the same envelope the store
writes and can be read back with 'securestore decrypt' on this device.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.transform(cmd, args[0], args[1], func(c *crypto.Cipher, data, key []byte) ([]byte, error) {
				return c.Seal(data, key, nil)
			})
		},
	}
}

func newDecryptCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "decrypt <in> <out>",
		Short: "Decrypt a file written by encrypt",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.transform(cmd, args[0], args[1], func(c *crypto.Cipher, data, key []byte) ([]byte, error) {
				return c.Open(data, key, nil)
			})
		},
	}
}

func (a *app) transform(cmd *cobra.Command, in, out string, fn func(c *crypto.Cipher, data, key []byte) ([]byte, error)) error {
	data, err := readInput(in, cmd.InOrStdin())
	if err != nil {
		return err
	}
	defer crypto.ClearBytes(data)

	key, err := a.deriveKey()
	if err != nil {
		return err
	}
	defer crypto.ClearBytes(key)

	c, err := crypto.NewCipher()
	if err != nil {
		return err
	}
	result, err := fn(c, data, key)
	if err != nil {
		return fmt.Errorf("%s: %w", in, err)
	}
	defer crypto.ClearBytes(result)

	return a.writeOutput(out, result, cmd.OutOrStdout())
}
