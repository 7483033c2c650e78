package git

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Runner executes git with args in dir and returns its stdout.
type Runner func(ctx context.Context, dir string, args ...string) ([]byte, error)

// ExecRunner runs the git binary found in PATH.
func ExecRunner(ctx context.Context, dir string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	return cmd.Output()
}

// Status describes a storage root relative to git.
type Status struct {
	Root     string
	IsRepo   bool
	Ignored  bool     // root is covered by a .gitignore rule
	Tracked  []string // files under root that git tracks
	Unusable bool     // git is not installed
}

// Checker runs the git queries behind Check.
type Checker struct {
	run Runner
}

// NewChecker returns a Checker using run, or ExecRunner when run is nil.
func NewChecker(run Runner) *Checker {
	if run == nil {
		run = ExecRunner
	}
	return &Checker{run: run}
}

// Check inspects root. A root that does not exist yet is reported as
// outside any repository.
func (c *Checker) Check(ctx context.Context, root string) (*Status, error) {
	root = filepath.Clean(root)
	status := &Status{Root: root}

	info, err := os.Stat(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return status, nil
		}
		return nil, fmt.Errorf("failed to stat %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	if _, err := c.run(ctx, root, "rev-parse", "--is-inside-work-tree"); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			status.Unusable = true
		}
		return status, nil
	}
	status.IsRepo = true

	// check-ignore exits 0 only when the path is ignored
	_, err = c.run(ctx, filepath.Dir(root), "check-ignore", "-q", "--", filepath.Base(root))
	status.Ignored = err == nil

	out, err := c.run(ctx, root, "ls-files", "--", ".")
	if err != nil {
		return nil, fmt.Errorf("failed to list tracked files: %w", err)
	}
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if line != "" {
			status.Tracked = append(status.Tracked, line)
		}
	}
	return status, nil
}

// Check inspects root with the git binary.
func Check(ctx context.Context, root string) (*Status, error) {
	return NewChecker(nil).Check(ctx, root)
}

// Format renders status for display. It returns "" when root is not in a
// repository.
func (s *Status) Format() string {
	if s.Unusable {
		return "\nGit:\n   warning: git not found, repository checks skipped\n"
	}
	if !s.IsRepo {
		return ""
	}

	var result strings.Builder
	result.WriteString("\nGit:\n")

	if len(s.Tracked) > 0 {
		result.WriteString(fmt.Sprintf("   error: %d store file(s) tracked by git:\n", len(s.Tracked)))
		for _, file := range s.Tracked {
			result.WriteString(fmt.Sprintf("      - %s (run: git rm --cached %s)\n", file, file))
		}
	} else {
		result.WriteString("   ok: no store files tracked by git\n")
	}

	if s.Ignored {
		result.WriteString("   ok: storage root is in .gitignore\n")
	} else {
		result.WriteString(fmt.Sprintf("   warning: %s not in .gitignore (add it to .gitignore)\n", filepath.Base(s.Root)))
	}
	return result.String()
}
