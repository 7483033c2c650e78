package identity

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/illarion/securestore/internal/crypto"
	"golang.org/x/term"
)

var ErrNotTerminal = errors.New("input is not a terminal")

// Prompt reads the identity from a terminal without echo.
type Prompt struct {
	Label string
	In    *os.File
	Out   io.Writer
}

// NewPrompt creates a Prompt reading from stdin and writing to stderr.
func NewPrompt(label string) *Prompt {
	if label == "" {
		label = "Enter device identity: "
	}
	return &Prompt{Label: label, In: os.Stdin, Out: os.Stderr}
}

func (p *Prompt) Identity() (string, error) {
	raw, err := p.read(p.Label)
	if err != nil {
		return "", err
	}
	defer crypto.ClearBytes(raw)

	if len(raw) == 0 {
		return "", ErrEmptyIdentity
	}
	return string(raw), nil
}

// Confirm reads the value twice and fails unless both entries match.
func (p *Prompt) Confirm() (string, error) {
	first, err := p.read(p.Label)
	if err != nil {
		return "", err
	}
	defer crypto.ClearBytes(first)

	second, err := p.read("Confirm: ")
	if err != nil {
		return "", err
	}
	defer crypto.ClearBytes(second)

	if !crypto.ConstantTimeCompare(first, second) {
		return "", fmt.Errorf("entries do not match")
	}
	if len(first) == 0 {
		return "", ErrEmptyIdentity
	}
	return string(first), nil
}

func (p *Prompt) read(label string) ([]byte, error) {
	if p.In == nil {
		return nil, ErrNotTerminal
	}
	fd := int(p.In.Fd())
	if !term.IsTerminal(fd) {
		return nil, fmt.Errorf("%w: %s", ErrNotTerminal, p.In.Name())
	}

	out := p.Out
	if out == nil {
		out = io.Discard
	}
	fmt.Fprint(out, label)
	value, err := term.ReadPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		return nil, fmt.Errorf("failed to read identity: %w", err)
	}
	return value, nil
}
