package adapter

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// FileKind is the adapter dispatch decision for one discovered file.
type FileKind int

const (
	KindUnknown FileKind = iota
	KindJSON
	KindSQLite
	KindLog
)

// Classify maps a file path to the adapter that should parse it.
func Classify(path string) FileKind {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return KindJSON
	case ".sqlite", ".db", ".vscdb":
		return KindSQLite
	case ".log":
		return KindLog
	default:
		return KindUnknown
	}
}

// Discover walks the given history directories recursively and returns every
// parseable file modified at or after since, newest first. Unreadable
// entries are skipped, never fatal.
func Discover(dirs []string, since time.Time, logger *slog.Logger) []string {
	type found struct {
		path  string
		mtime time.Time
	}
	var files []found

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		info, err := os.Stat(dir)
		if err != nil {
			logger.Debug("history dir not available", "dir", dir, "error", err)
			continue
		}
		if !info.IsDir() {
			if Classify(dir) != KindUnknown {
				files = append(files, found{path: dir, mtime: info.ModTime()})
			}
			continue
		}
		err = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return nil // skip unreadable entries
			}
			if info.IsDir() || Classify(path) == KindUnknown {
				return nil
			}
			if !since.IsZero() && info.ModTime().Before(since) {
				return nil
			}
			files = append(files, found{path: path, mtime: info.ModTime()})
			return nil
		})
		if err != nil {
			logger.Warn("error walking history dir", "dir", dir, "error", err)
		}
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].mtime.After(files[j].mtime)
	})

	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.path
	}
	return out
}

// ParseFile dispatches one file to the adapter matching its extension.
func ParseFile(ctx context.Context, path string, logger *slog.Logger) []RawConversation {
	switch Classify(path) {
	case KindSQLite:
		return ParseSQLite(ctx, path, logger)
	case KindJSON:
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("cannot read history file", "path", path, "error", err)
			return nil
		}
		return ParseJSON(data, path, logger)
	case KindLog:
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("cannot read history file", "path", path, "error", err)
			return nil
		}
		return ParseLog(data, path, logger)
	default:
		return nil
	}
}
