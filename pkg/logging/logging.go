package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/rexliu/idelink/pkg/config"
)

// New returns a console logger on stderr tagged with the component name.
func New(component string) zerolog.Logger {
	return newLogger(consoleWriter(os.Stderr), component)
}

func consoleWriter(w io.Writer) io.Writer {
	return zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
}

func newLogger(w io.Writer, component string) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Str("component", component).Logger()
}

// Configure builds the component logger from config. When a file path is set, records are also
// written as JSON to a size-rolled file resolved against profileDir. The returned Closer releases
// that file.
func Configure(component, profileDir string, cfg config.LoggingConfig) (zerolog.Logger, io.Closer, error) {
	return configure(os.Stderr, component, profileDir, cfg)
}

func configure(console io.Writer, component, profileDir string, cfg config.LoggingConfig) (zerolog.Logger, io.Closer, error) {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
		if err != nil {
			return zerolog.Nop(), nopCloser{}, err
		}
		level = parsed
	}
	out := consoleWriter(console)
	var closer io.Closer = nopCloser{}
	if cfg.FilePath != "" {
		path := config.ResolvePath(profileDir, cfg.FilePath)
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return zerolog.Nop(), nopCloser{}, err
		}
		file, err := newRollingFile(path, cfg.FileMaxSize)
		if err != nil {
			return zerolog.Nop(), nopCloser{}, err
		}
		out = zerolog.MultiLevelWriter(out, file)
		closer = file
	}
	return newLogger(out, component).Level(level), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

type rollingFile struct {
	path string
	max  int
	file *os.File
}

func newRollingFile(path string, maxMB int) (*rollingFile, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, err
	}
	return &rollingFile{path: path, max: maxMB, file: f}, nil
}

func (r *rollingFile) Write(p []byte) (int, error) {
	if r.max > 0 {
		if info, err := r.file.Stat(); err == nil && info.Size()+int64(len(p)) > int64(r.max)*1024*1024 {
			r.file.Close()
			os.Rename(r.path, r.path+".1")
			newFile, err := os.OpenFile(r.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
			if err != nil {
				return 0, err
			}
			r.file = newFile
		}
	}
	return r.file.Write(p)
}

func (r *rollingFile) Close() error {
	return r.file.Close()
}
