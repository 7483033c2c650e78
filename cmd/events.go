package cmd

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/illarion/securestore/internal/journal"
	"github.com/spf13/cobra"
)

func newEventsCommand(a *app) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show recent journal entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			return a.withJournal(func(j *journal.Journal) error {
				entries, err := j.Events(limit)
				if err != nil {
					return err
				}

				if asJSON {
					enc := json.NewEncoder(out)
					for _, e := range entries {
						if err := enc.Encode(e); err != nil {
							return err
						}
					}
					return nil
				}

				if len(entries) == 0 {
					fmt.Fprintln(out, "No events recorded")
					return nil
				}
				for _, e := range entries {
					fmt.Fprintf(out, "%6d  %s  %-6s  %s\n",
						e.Seq, e.Time.Local().Format(time.DateTime), e.Kind, describe(e))
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Number of entries to show, 0 for all")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print one JSON object per line")
	return cmd
}

func describe(e journal.Entry) string {
	if e.Kind != journal.KindWatch {
		return e.ID
	}
	name := e.Path
	if e.Name != "" {
		name = strings.TrimSuffix(name, "/") + "/" + e.Name
	}
	return fmt.Sprintf("%s [%s]", name, strings.Join(e.Labels, "|"))
}
