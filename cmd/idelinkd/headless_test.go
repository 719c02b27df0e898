package main

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/rexliu/idelink/pkg/config"
)

func TestExpandPlaceholders(t *testing.T) {
	got := expand([]string{"code", "--goto", "{file}:{line}:{column}"}, "/tmp/x.txt", 5, 2)
	require.Equal(t, []string{"code", "--goto", "/tmp/x.txt:5:2"}, got)
}

func TestLauncherOpenFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "x.txt")
	require.NoError(t, os.WriteFile(file, []byte("hello\n"), 0o600))
	l := &launcher{logger: zerolog.Nop()}
	ctx := context.Background()

	require.NoError(t, l.OpenFile(ctx, file))
	require.NoError(t, l.NavigateTo(ctx, 5, 2))
	require.False(t, l.BringToFront(ctx, 0))

	err := l.OpenFile(ctx, filepath.Join(t.TempDir(), "missing.txt"))
	require.ErrorContains(t, err, "file not found")
	require.Error(t, l.OpenFile(ctx, t.TempDir()))
}

func TestLauncherRunsCommands(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "x.txt")
	marker := filepath.Join(dir, "marker")
	require.NoError(t, os.WriteFile(file, nil, 0o600))

	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	l := &launcher{
		cfg: config.LaunchConfig{
			GotoCommand: []string{sh, "-c", "echo {line}:{column} > " + marker},
		},
		logger: zerolog.Nop(),
	}
	ctx := context.Background()
	require.NoError(t, l.OpenFile(ctx, file))
	require.NoError(t, l.NavigateTo(ctx, 7, 3))
	data, err := os.ReadFile(marker)
	require.NoError(t, err)
	require.Equal(t, "7:3\n", string(data))

	l.cfg.OpenCommand = []string{filepath.Join(dir, "does-not-exist")}
	require.Error(t, l.OpenFile(ctx, file))
}

func TestResolveWorkspacePrefersFlag(t *testing.T) {
	dir := t.TempDir()
	got, err := resolveWorkspace(dir, "/configured")
	require.NoError(t, err)
	require.Equal(t, dir, got)
}
