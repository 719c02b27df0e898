package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rexliu/idelink/pkg/config"
)

func TestConfigureWritesConsoleAndFile(t *testing.T) {
	dir := t.TempDir()
	var console bytes.Buffer
	logger, closer, err := configure(&console, "idelinkd", dir, config.LoggingConfig{
		Level:    "debug",
		FilePath: "logs/idelinkd.log",
	})
	require.NoError(t, err)
	logger.Debug().Int("port", 52342).Msg("listening")
	require.NoError(t, closer.Close())

	require.Contains(t, console.String(), "listening")
	data, err := os.ReadFile(filepath.Join(dir, "logs", "idelinkd.log"))
	require.NoError(t, err)
	require.Contains(t, string(data), `"port":52342`)
	require.Contains(t, string(data), `"component":"idelinkd"`)
}

func TestConfigureFiltersByLevel(t *testing.T) {
	var console bytes.Buffer
	logger, _, err := configure(&console, "idelink", "", config.LoggingConfig{Level: "warn"})
	require.NoError(t, err)
	logger.Info().Msg("quiet")
	logger.Warn().Msg("loud")
	require.False(t, strings.Contains(console.String(), "quiet"))
	require.Contains(t, console.String(), "loud")
}

func TestConfigureRejectsUnknownLevel(t *testing.T) {
	_, _, err := configure(&bytes.Buffer{}, "idelink", "", config.LoggingConfig{Level: "loud"})
	require.Error(t, err)
}

func TestRollingFileRotates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	r, err := newRollingFile(path, 1)
	require.NoError(t, err)
	defer r.Close()

	chunk := bytes.Repeat([]byte("x"), 600*1024)
	_, err = r.Write(chunk)
	require.NoError(t, err)
	_, err = r.Write(chunk)
	require.NoError(t, err)

	_, err = os.Stat(path + ".1")
	require.NoError(t, err)
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, int64(len(chunk)), info.Size())
}
