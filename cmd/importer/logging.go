package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"tsmximport/internal/config"
)

// newRunLogger returns a logger writing to stderr and to
// <LOG_DIR>/importacao_<timestamp>.log. The returned close func flushes the file.
func newRunLogger(cfg *config.Config, stderr io.Writer, now time.Time, runID string) (*logrus.Entry, string, func() error, error) {
	dir := cfg.Log.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, "", nil, fmt.Errorf("create log dir: %w", err)
	}
	path := filepath.Join(dir, "importacao_"+now.Format("20060102_150405")+".log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, "", nil, fmt.Errorf("open log file: %w", err)
	}

	l := logrus.New()
	l.SetOutput(io.MultiWriter(stderr, f))
	l.SetLevel(cfg.LogrusLevel())
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, DisableColors: true})

	entry := l.WithFields(logrus.Fields{"run_id": runID, "job": cfg.Import.Job})
	return entry, path, f.Close, nil
}
