package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/rexliu/idelink/pkg/config"
)

// headlessEditor reports the daemon's configured identity. It has no window.
type headlessEditor struct {
	identity  string
	version   string
	workspace string
	solution  string
}

func (e *headlessEditor) Workspace(context.Context) (string, string) {
	return e.workspace, e.solution
}

func (e *headlessEditor) Identity() string    { return e.identity }
func (e *headlessEditor) Version() string     { return e.version }
func (e *headlessEditor) WindowHandle() int64 { return 0 }

// launcher opens files by running the configured launch commands. Without commands it only checks
// that the file exists.
type launcher struct {
	cfg    config.LaunchConfig
	logger zerolog.Logger

	mu      sync.Mutex
	current string
}

func (l *launcher) OpenFile(ctx context.Context, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("file not found: %s", path)
		}
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	l.mu.Lock()
	l.current = path
	l.mu.Unlock()
	return l.exec(ctx, l.cfg.OpenCommand, path, 1, 1)
}

func (l *launcher) NavigateTo(ctx context.Context, line, column int) error {
	l.mu.Lock()
	path := l.current
	l.mu.Unlock()
	if path == "" {
		return fmt.Errorf("no open file")
	}
	return l.exec(ctx, l.cfg.GotoCommand, path, line, column)
}

func (l *launcher) BringToFront(ctx context.Context, _ int64) bool {
	if len(l.cfg.FocusCommand) == 0 {
		return false
	}
	l.mu.Lock()
	path := l.current
	l.mu.Unlock()
	return l.exec(ctx, l.cfg.FocusCommand, path, 1, 1) == nil
}

func (l *launcher) exec(ctx context.Context, command []string, path string, line, column int) error {
	if len(command) == 0 {
		return nil
	}
	args := expand(command, path, line, column)
	out, err := exec.CommandContext(ctx, args[0], args[1:]...).CombinedOutput()
	if err != nil {
		l.logger.Debug().Strs("command", args).Bytes("output", out).Msg("launch command failed")
		return fmt.Errorf("run %s: %w", args[0], err)
	}
	return nil
}

func expand(command []string, path string, line, column int) []string {
	r := strings.NewReplacer(
		"{file}", path,
		"{line}", strconv.Itoa(line),
		"{column}", strconv.Itoa(column),
	)
	out := make([]string, len(command))
	for i, arg := range command {
		out[i] = r.Replace(arg)
	}
	return out
}
