//go:build linux

package cmd

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/illarion/securestore/internal/config"
	"github.com/stretchr/testify/require"
)

func TestWatchStopsOnCancel(t *testing.T) {
	e := newEnv(t)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(""))
	cmd.SetArgs([]string{"watch",
		"--root", e.root,
		"--journal", e.journal,
		"--identity-source", config.SourceStatic,
		"--log-level", "none"})

	require.NoError(t, cmd.ExecuteContext(ctx))
}
