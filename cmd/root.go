// Package cmd implements the securestore command line.
package cmd

import (
	"context"

	"github.com/illarion/securestore/internal/config"
	"github.com/illarion/securestore/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// app carries the state shared by every subcommand of one invocation.
type app struct {
	v          *viper.Viper
	configFile string
	cfg        *config.Config
	logger     *zap.Logger
}

// NewRootCommand builds the securestore command tree.
func NewRootCommand() *cobra.Command {
	a := &app{v: config.New(), logger: zap.NewNop()}

	root := &cobra.Command{
		Use:   "securestore",
		Short: "Device-bound encrypted blob storage",
		Long: `securestore keeps small secrets encrypted at rest in a local directory.

The encryption key is derived from a device identity (machine id, keyring
entry, file, or prompt) and never written to disk. Every write is crash-safe
and keeps the previous version as a backup.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = a.logger.Sync()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "Config file (YAML)")
	flags.String("root", "", "Storage directory")
	flags.String("log-level", "", "Log level: debug, info, warn, error, none")
	flags.String("journal", "", "Journal database path")
	flags.String("identity-source", "", "Identity source: machine-id, file, keyring, journal, static, prompt")
	flags.String("identity-path", "", "Identity file for the file source")
	flags.Bool("strict-backup", false, "Fail writes when the previous version cannot be kept as backup")
	flags.Bool("bind-id", false, "Bind ciphertext to its id")

	bindFlags(a.v, flags, map[string]string{
		config.KeyRoot:           "root",
		config.KeyLogLevel:       "log-level",
		config.KeyJournal:        "journal",
		config.KeyIdentitySource: "identity-source",
		config.KeyIdentityPath:   "identity-path",
		config.KeyStrictBackup:   "strict-backup",
		config.KeyBindID:         "bind-id",
	})

	root.AddCommand(
		newStoreCommand(a),
		newRetrieveCommand(a),
		newRmCommand(a),
		newLsCommand(a),
		newExistsCommand(a),
		newDiffCommand(a),
		newWatchCommand(a),
		newEventsCommand(a),
		newCompactCommand(a),
		newEncryptCommand(a),
		newDecryptCommand(a),
		newIdentityCommand(a),
		newStatusCommand(a),
		newCompletionCommand(),
	)
	return root
}

// bindFlags maps config keys to flag names. A flag only overrides the
// environment and config file when it was set on the command line.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		if f := flags.Lookup(name); f != nil {
			_ = v.BindPFlag(key, f)
		}
	}
}

func (a *app) load() error {
	cfg, err := config.Load(a.v, a.configFile)
	if err != nil {
		return err
	}
	logger, err := logging.GetLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	return nil
}

// Execute runs the command line and exits non-zero on failure.
func Execute(ctx context.Context) {
	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		HandleError(err)
	}
}
