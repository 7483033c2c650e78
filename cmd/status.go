package cmd

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"
	"time"

	"github.com/illarion/securestore/internal/fileutil"
	"github.com/illarion/securestore/internal/git"
	"github.com/illarion/securestore/internal/journal"
	"github.com/illarion/securestore/internal/storage"
	"github.com/spf13/cobra"
)

func newStatusCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show configuration, store and journal state",
		Long: `Show configuration, store and journal state.

Nothing is decrypted and the identity is not read.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Root:            %s\n", a.cfg.Root)
			fmt.Fprintf(out, "Identity source: %s\n", a.cfg.Identity.Source)

			data, backups, err := countFiles(fileutil.New(nil, a.logger), a.cfg.Root)
			switch {
			case errors.Is(err, fs.ErrNotExist):
				fmt.Fprintln(out, "Store:           not created yet")
			case err != nil:
				return err
			default:
				fmt.Fprintf(out, "Store:           %d item(s), %d backup(s)\n", data, backups)
			}

			if err := a.journalStatus(out); err != nil {
				return err
			}

			gitStatus, err := git.Check(cmd.Context(), a.cfg.Root)
			if err != nil {
				return err
			}
			fmt.Fprint(out, gitStatus.Format())
			return nil
		},
	}
}

func countFiles(f *fileutil.FS, root string) (data, backups int, err error) {
	names, err := f.ListRegularFiles(root)
	if err != nil {
		return 0, 0, err
	}
	for _, name := range names {
		switch {
		case strings.HasSuffix(name, storage.DataExt):
			data++
		case strings.HasSuffix(name, storage.DataExt+storage.BackupExt):
			backups++
		}
	}
	return data, backups, nil
}

func (a *app) journalStatus(out io.Writer) error {
	if a.cfg.Journal == "" {
		fmt.Fprintln(out, "Journal:         disabled")
		return nil
	}
	err := a.withJournal(func(j *journal.Journal) error {
		n, err := j.Count()
		if err != nil {
			return err
		}
		created, err := j.Created()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Journal:         %s (%d entries, created %s)\n",
			j.Path(), n, created.Local().Format(time.RFC3339))
		return nil
	})
	if errors.Is(err, journal.ErrLocked) {
		fmt.Fprintf(out, "Journal:         %s (in use by another process)\n", a.cfg.Journal)
		return nil
	}
	return err
}
