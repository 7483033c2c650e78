package storage

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/illarion/securestore/internal/crypto"
	"github.com/illarion/securestore/internal/fileutil"
	"github.com/illarion/securestore/internal/security"
	"go.uber.org/zap"
)

const (
	DataExt   = ".enc"
	BackupExt = ".bak"
	TempExt   = ".tmp"
)

// Store keeps encrypted blobs under a root directory.
type Store struct {
	root   string
	fs     *fileutil.FS
	cipher *crypto.Cipher
	key    []byte
	cfg    config
	logger *zap.Logger
}

// New opens the store at root, creating the directory if needed, and derives
// the master key from src. The key is held in memory only.
func New(root string, src crypto.IdentitySource, opts ...Option) (*Store, error) {
	cfg := config{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.kdf == nil {
		cfg.kdf = crypto.NewKDF()
	}
	logger := cfg.logger.With(zap.String("root", root))

	if root == "" {
		return nil, fmt.Errorf("%w: storage root", fileutil.ErrEmptyPath)
	}

	fs := fileutil.New(cfg.fs, logger)
	if err := fs.MkdirAll(root); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}

	key, err := cfg.kdf.Derive(src, crypto.KeySize)
	if err != nil {
		return nil, fmt.Errorf("failed to derive master key: %w", err)
	}

	cipher := cfg.cipher
	if cipher == nil {
		cipher, err = crypto.NewCipher()
		if err != nil {
			crypto.ClearBytes(key)
			return nil, err
		}
	}

	logger.Info("secure store initialized")
	return &Store{
		root:   filepath.Clean(root),
		fs:     fs,
		cipher: cipher,
		key:    key,
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Root returns the storage directory.
func (s *Store) Root() string {
	return s.root
}

// Close zeroes the master key. Later operations fail with ErrClosed.
func (s *Store) Close() error {
	if s.key != nil {
		crypto.ClearBytes(s.key)
		s.key = nil
	}
	return nil
}

func (s *Store) paths(id string) (main, backup, tmp string, err error) {
	main, err = security.JoinID(s.root, id, DataExt)
	if err != nil {
		return "", "", "", fmt.Errorf("%w: %w", ErrInvalidID, err)
	}
	return main, main + BackupExt, main + TempExt, nil
}

func (s *Store) aad(id string) []byte {
	if s.cfg.bindID {
		return []byte(id)
	}
	return nil
}

func (s *Store) usable() error {
	if s == nil || s.key == nil {
		return ErrClosed
	}
	return nil
}

// Store encrypts plaintext and makes it the current generation of id. The
// previous generation, if any, becomes the backup.
func (s *Store) Store(id string, plaintext []byte) error {
	if err := s.usable(); err != nil {
		return err
	}
	main, backup, tmp, err := s.paths(id)
	if err != nil {
		return err
	}
	log := s.logger.With(zap.String("id", id))

	envelope, err := s.cipher.Seal(plaintext, s.key, s.aad(id))
	if err != nil {
		return fmt.Errorf("failed to encrypt %s: %w", id, err)
	}

	if err := s.fs.AtomicWrite(tmp, envelope); err != nil {
		return fmt.Errorf("failed to write %s: %w", id, err)
	}
	log.Debug("wrote temp envelope", zap.Int("size", len(envelope)))

	if s.fs.Exists(main) {
		if err := s.rotateBackup(main, backup, log); err != nil {
			s.removeTemp(tmp, log)
			return err
		}
	}

	if err := s.fs.Rename(tmp, main); err != nil {
		log.Error("failed to move temp envelope into place", zap.Error(err))
		if !s.fs.Exists(main) && s.fs.Exists(backup) {
			if rerr := s.fs.Rename(backup, main); rerr != nil {
				log.Error("failed to restore backup", zap.Error(rerr))
			} else {
				log.Warn("restored previous generation from backup")
			}
		}
		s.removeTemp(tmp, log)
		return fmt.Errorf("%w: %s: %w", ErrRenameFailed, id, err)
	}

	log.Info("stored data")
	return nil
}

// rotateBackup moves the current main file into the backup slot. Failure
// is fatal only in strict mode.
func (s *Store) rotateBackup(main, backup string, log *zap.Logger) error {
	if err := s.fs.Delete(backup); err != nil {
		log.Warn("failed to delete old backup", zap.Error(err))
	}

	err := s.fs.Rename(main, backup)
	if err == nil {
		log.Debug("rotated main to backup")
		return nil
	}
	if s.cfg.strictBackup {
		log.Error("failed to rotate main to backup", zap.Error(err))
		return fmt.Errorf("%w: backup: %w", ErrRenameFailed, err)
	}
	log.Warn("failed to rotate main to backup, continuing without backup", zap.Error(err))
	return nil
}

func (s *Store) removeTemp(tmp string, log *zap.Logger) {
	if err := s.fs.Delete(tmp); err != nil {
		log.Warn("failed to remove temp envelope", zap.Error(err))
	}
}

// Retrieve returns the plaintext of id. When the main file is missing or
// fails to open, the backup is used and written back as the main file.
func (s *Store) Retrieve(id string) ([]byte, error) {
	if err := s.usable(); err != nil {
		return nil, err
	}
	main, backup, _, err := s.paths(id)
	if err != nil {
		return nil, err
	}
	log := s.logger.With(zap.String("id", id))
	aad := s.aad(id)

	mainData, mainReadErr := s.fs.Read(main)
	var mainOpenErr error
	if mainReadErr == nil {
		plaintext, err := s.cipher.Open(mainData, s.key, aad)
		if err == nil {
			log.Debug("retrieved data from main file")
			return plaintext, nil
		}
		mainOpenErr = err
		log.Warn("failed to open main file, trying backup", zap.Error(err))
	} else {
		log.Debug("main file not readable, trying backup", zap.Error(mainReadErr))
	}

	backupData, err := s.fs.Read(backup)
	if err != nil {
		if mainOpenErr != nil {
			log.Warn("main file corrupt and no backup available",
				zap.NamedError("main", mainOpenErr), zap.NamedError("backup", err))
		}
		return nil, fmt.Errorf("%w: %s", ErrDataNotFound, id)
	}

	plaintext, err := s.cipher.Open(backupData, s.key, aad)
	if err != nil {
		log.Error("failed to open backup file", zap.Error(err))
		return nil, fmt.Errorf("%s: backup: %w", id, err)
	}
	log.Info("retrieved data from backup")

	s.heal(main, backupData, mainReadErr == nil, log)
	return plaintext, nil
}

// heal replaces a bad or missing main file with the backup envelope.
func (s *Store) heal(main string, envelope []byte, mainExisted bool, log *zap.Logger) {
	if mainExisted {
		if err := s.fs.Delete(main); err != nil {
			log.Warn("failed to delete corrupt main file", zap.Error(err))
		}
	}
	if err := s.fs.AtomicWrite(main, envelope); err != nil {
		log.Warn("failed to restore main file from backup", zap.Error(err))
		return
	}
	log.Info("restored main file from backup")
}

// Delete removes every generation of id. Deleting an id that does not exist
// succeeds.
func (s *Store) Delete(id string) error {
	if err := s.usable(); err != nil {
		return err
	}
	main, backup, _, err := s.paths(id)
	if err != nil {
		return err
	}

	var first error
	for _, path := range []string{main, backup} {
		if !s.fs.Exists(path) {
			continue
		}
		if err := s.fs.Delete(path); err != nil && first == nil {
			first = fmt.Errorf("failed to delete %s: %w", id, err)
		}
	}
	if first != nil {
		s.logger.Error("failed to delete data", zap.String("id", id), zap.Error(first))
		return first
	}

	s.logger.Info("deleted data", zap.String("id", id))
	return nil
}

// Exists reports whether any generation of id is present. Nothing is
// decrypted. Invalid ids never exist.
func (s *Store) Exists(id string) bool {
	if s.usable() != nil {
		return false
	}
	main, backup, _, err := s.paths(id)
	if err != nil {
		return false
	}
	return s.fs.Exists(main) || s.fs.Exists(backup)
}

// List returns the sorted ids that have a main file.
func (s *Store) List() ([]string, error) {
	if err := s.usable(); err != nil {
		return nil, err
	}

	names, err := s.fs.ListRegularFiles(s.root)
	if err != nil {
		return nil, fmt.Errorf("failed to list store: %w", err)
	}

	ids := make([]string, 0, len(names))
	for _, name := range names {
		id, ok := strings.CutSuffix(name, DataExt)
		if !ok {
			continue
		}
		if err := security.ValidateID(id); err != nil {
			s.logger.Debug("skipping file with invalid id", zap.String("name", name))
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// IsNotFound reports whether err means the id has no stored data.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrDataNotFound)
}
