package cmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/illarion/securestore/internal/watcher"
	"github.com/spf13/cobra"
)

var errWatcherUnavailable = errors.New("change notifications are not available on this system")

func newWatchCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print changes under the storage root until interrupted",
		Long: `Print changes under the storage root until interrupted.

Events are also recorded in the journal when one is configured.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			// runs on the watcher goroutine, one event at a time
			show := func(e watcher.WatchedEvent) {
				fmt.Fprintf(out, "%s %-30s %s\n",
					time.Now().Format(time.RFC3339), strings.Join(e.Labels, "|"), e.FullPath())
			}

			return a.withSession(true, show, func(s *session) error {
				if !s.IsWatcherActive() {
					return errWatcherUnavailable
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Watching %s (Ctrl+C to stop)\n", s.Root())

				select {
				case <-cmd.Context().Done():
					return nil
				case <-s.WatcherDone():
					if err := s.WatcherErr(); err != nil {
						return fmt.Errorf("watcher stopped: %w", err)
					}
					return errors.New("watcher stopped")
				}
			})
		},
	}
}
