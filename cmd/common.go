package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/illarion/securestore/internal/config"
	"github.com/illarion/securestore/internal/core"
	"github.com/illarion/securestore/internal/crypto"
	"github.com/illarion/securestore/internal/fileutil"
	"github.com/illarion/securestore/internal/identity"
	"github.com/illarion/securestore/internal/journal"
	"github.com/illarion/securestore/internal/security"
	"github.com/illarion/securestore/internal/storage"
	"github.com/illarion/securestore/internal/watcher"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// errSilent makes the process exit non-zero without printing anything.
var errSilent = errors.New("silent failure")

var errJournalDisabled = errors.New("journal is disabled (set --journal or SECURESTORE_JOURNAL)")

// osExit is replaced in tests.
var osExit = os.Exit

// HandleError prints err with a hint where one helps, then exits.
func HandleError(err error) {
	switch {
	case errors.Is(err, errSilent):
	case errors.Is(err, core.ErrNotInitialized):
		fmt.Fprintf(os.Stderr, "Error: securestore is not open\n")
	case errors.Is(err, storage.ErrDataNotFound):
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		fmt.Fprintf(os.Stderr, "Use 'securestore ls' to see stored ids\n")
	case errors.Is(err, crypto.ErrAuthFailed):
		fmt.Fprintf(os.Stderr, "Error: authentication failed\n")
		fmt.Fprintf(os.Stderr, "The data was sealed with a different identity or has been modified\n")
	case errors.Is(err, storage.ErrInvalidID):
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		fmt.Fprintf(os.Stderr, "Ids may not contain path separators or start with '.'\n")
	case errors.Is(err, identity.ErrNotTerminal):
		fmt.Fprintf(os.Stderr, "Error: the identity prompt needs a terminal\n")
		fmt.Fprintf(os.Stderr, "Choose another source with --identity-source or SECURESTORE_IDENTITY_SOURCE\n")
	case errors.Is(err, identity.ErrUnavailable):
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		fmt.Fprintf(os.Stderr, "Run 'securestore identity show' to check the configured source\n")
	case errors.Is(err, journal.ErrLocked):
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		fmt.Fprintf(os.Stderr, "Stop the running 'securestore watch' or pass --journal \"\"\n")
	default:
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	}
	osExit(1)
}

// identitySource builds the configured identity source. j is required for
// the journal source only.
func (a *app) identitySource(j *journal.Journal) (crypto.IdentitySource, error) {
	id := a.cfg.Identity
	var src crypto.IdentitySource
	switch id.Source {
	case config.SourceMachineID:
		src = identity.MachineID(nil)
	case config.SourceFile:
		src = identity.NewFile(id.Path, nil)
	case config.SourceKeyring:
		src = identity.NewKeyring(id.Service, id.User)
	case config.SourceStatic:
		src = identity.Static(id.Value)
	case config.SourcePrompt:
		src = identity.NewPrompt("")
	case config.SourceJournal:
		if j == nil {
			return nil, fmt.Errorf("%w: identity source %q needs a journal", config.ErrInvalid, id.Source)
		}
		src = j
	default:
		return nil, fmt.Errorf("%w: unknown identity source %q", config.ErrInvalid, id.Source)
	}
	return identity.NewCached(src), nil
}

func (a *app) kdf() *crypto.KDF {
	return crypto.NewKDF(
		crypto.WithSalt([]byte(a.cfg.KDF.Salt)),
		crypto.WithInfo([]byte(a.cfg.KDF.Info)))
}

// openJournal opens the configured journal, or returns nil when journaling
// is disabled.
func (a *app) openJournal() (*journal.Journal, error) {
	if a.cfg.Journal == "" {
		return nil, nil
	}
	if err := fileutil.New(nil, a.logger).MkdirAll(filepath.Dir(a.cfg.Journal)); err != nil {
		return nil, err
	}
	return journal.Open(a.cfg.Journal, journal.Logger(a.logger), journal.Timeout(time.Second))
}

// session is an open Manager plus the journal it records into.
type session struct {
	*core.Manager
	journal *journal.Journal
}

func (s *session) Close() error {
	err := s.Manager.Close()
	if s.journal != nil {
		err = multierr.Append(err, s.journal.Close())
	}
	return err
}

// openSession opens the store. With watch set, changes under the root are
// reported to cb.
func (a *app) openSession(watch bool, cb watcher.EventCallback) (*session, error) {
	j, err := a.openJournal()
	if err != nil {
		return nil, err
	}

	src, err := a.identitySource(j)
	if err != nil {
		return nil, multierr.Append(err, closeJournal(j))
	}

	opts := []core.Option{
		core.WithLogger(a.logger),
		core.WithWatcher(watch || a.cfg.Watch),
		core.WithEventCallback(cb),
		core.WithStoreOptions(
			storage.WithKDF(a.kdf()),
			storage.WithStrictBackup(a.cfg.StrictBackup),
			storage.WithIDBinding(a.cfg.BindID),
		),
	}
	if j != nil {
		opts = append(opts, core.WithJournal(j, 0))
	}

	m, err := core.New(a.cfg.Root, src, opts...)
	if err != nil {
		return nil, multierr.Append(err, closeJournal(j))
	}
	return &session{Manager: m, journal: j}, nil
}

// withSession runs fn against an open session and closes it afterwards.
func (a *app) withSession(watch bool, cb watcher.EventCallback, fn func(s *session) error) (err error) {
	s, err := a.openSession(watch, cb)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, s.Close())
	}()
	return fn(s)
}

// withJournal runs fn against the configured journal.
func (a *app) withJournal(fn func(j *journal.Journal) error) (err error) {
	j, err := a.openJournal()
	if err != nil {
		return err
	}
	if j == nil {
		return errJournalDisabled
	}
	defer func() {
		err = multierr.Append(err, j.Close())
	}()
	return fn(j)
}

// deriveKey derives the master key from the configured identity without
// opening the store.
func (a *app) deriveKey() (key []byte, err error) {
	var j *journal.Journal
	if a.cfg.Identity.Source == config.SourceJournal {
		if j, err = a.openJournal(); err != nil {
			return nil, err
		}
		defer func() {
			err = multierr.Append(err, closeJournal(j))
		}()
	}

	src, err := a.identitySource(j)
	if err != nil {
		return nil, err
	}
	return a.kdf().Derive(src, crypto.KeySize)
}

func closeJournal(j *journal.Journal) error {
	if j == nil {
		return nil
	}
	return j.Close()
}

// readInput reads path, or stdin when path is "" or "-".
func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(stdin)
	}
	return fileutil.New(nil, zap.NewNop()).Read(path)
}

// writeOutput writes data to path atomically, or to stdout when path is ""
// or "-". Writing inside the storage root is refused.
func (a *app) writeOutput(path string, data []byte, stdout io.Writer) error {
	if path == "" || path == "-" {
		_, err := stdout.Write(data)
		return err
	}
	if err := security.EnsureOutside(a.cfg.Root, path); err != nil {
		return err
	}
	return fileutil.New(nil, a.logger).AtomicWrite(path, data)
}

// formatSize formats a file size in human-readable form
func formatSize(size int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case size >= GB:
		return fmt.Sprintf("%.1f GB", float64(size)/GB)
	case size >= MB:
		return fmt.Sprintf("%.1f MB", float64(size)/MB)
	case size >= KB:
		return fmt.Sprintf("%.1f KB", float64(size)/KB)
	default:
		return fmt.Sprintf("%d bytes", size)
	}
}
