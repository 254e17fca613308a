// Package logging wires github.com/sirupsen/logrus into the daemon's
// context via dlog, with file rotation for background runs. Adapted from
// the teacher's pkg/client/logging/initcontext.go and rotatingfile.go: the
// "rotate once at startup if non-empty, keep N backups" strategy, rewritten
// directly against the standard library rather than pulling in a separate
// rotation dependency the teacher itself doesn't use for anything else.
package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/datawire/dlib/dlog"
	"github.com/sirupsen/logrus"
)

// Config controls where and how the daemon logs.
type Config struct {
	Name       string // base name for the rotating log file, e.g. "veild"
	Dir        string // directory to hold the rotating log file
	Level      string // logrus level name
	ToTerminal bool   // write plain text to stdout instead of a file
	MaxFiles   int    // rotated backups to retain; 0 means use the default
}

// Init configures logrus, attaches it to ctx via dlog, and returns the new
// context.
func Init(ctx context.Context, cfg Config) (context.Context, error) {
	logger := logrus.StandardLogger()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.0000",
	})

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	var out io.Writer = os.Stdout
	if !cfg.ToTerminal {
		rf, err := openRotating(cfg)
		if err != nil {
			return ctx, err
		}
		out = rf
	}
	logger.SetOutput(out)

	return dlog.WithLogger(ctx, dlog.WrapLogrus(logger)), nil
}

const defaultMaxFiles = 5

// openRotating opens the log file at dir/name.log, first rotating any
// existing non-empty file aside (RotateOnce semantics from the teacher's
// rotatingfile.go), then pruning backups beyond maxFiles.
func openRotating(cfg Config) (*os.File, error) {
	if err := os.MkdirAll(cfg.Dir, 0o700); err != nil {
		return nil, fmt.Errorf("logging: mkdir %s: %w", cfg.Dir, err)
	}
	path := filepath.Join(cfg.Dir, cfg.Name+".log")

	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		backup := fmt.Sprintf("%s.%s", path, info.ModTime().Format("20060102T150405"))
		if err := os.Rename(path, backup); err != nil {
			return nil, fmt.Errorf("logging: rotate %s: %w", path, err)
		}
	}

	maxFiles := cfg.MaxFiles
	if maxFiles <= 0 {
		maxFiles = defaultMaxFiles
	}
	pruneBackups(cfg.Dir, cfg.Name, maxFiles)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("logging: open %s: %w", path, err)
	}
	return f, nil
}

func pruneBackups(dir, name string, maxFiles int) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	prefix := name + ".log."
	var backups []string
	for _, e := range entries {
		if !e.IsDir() && len(e.Name()) > len(prefix) && e.Name()[:len(prefix)] == prefix {
			backups = append(backups, e.Name())
		}
	}
	sort.Strings(backups)
	for len(backups) > maxFiles {
		_ = os.Remove(filepath.Join(dir, backups[0]))
		backups = backups[1:]
	}
}
