// Package ingest discovers raw history files, parses them through the
// source adapters, and writes canonical conversations to the store.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/anderson/internal/adapter"
	"github.com/MikeSquared-Agency/anderson/internal/model"
	"github.com/MikeSquared-Agency/anderson/internal/normalize"
	"github.com/MikeSquared-Agency/anderson/internal/store"
)

// SourceDir binds a history directory to the source its files belong to.
type SourceDir struct {
	Dir    string
	Source model.Source
}

// Result summarizes one ingest run.
type Result struct {
	Files         int
	Conversations int
	Inserted      int
	Skipped       int
}

func (r Result) String() string {
	return fmt.Sprintf("files=%d conversations=%d inserted=%d skipped=%d",
		r.Files, r.Conversations, r.Inserted, r.Skipped)
}

// Ingester sweeps the configured history directories into the store.
type Ingester struct {
	store          *store.Store
	dirs           []SourceDir
	maxHistoryDays int
	state          *State
	logger         *slog.Logger
}

func New(s *store.Store, dirs []SourceDir, maxHistoryDays int, state *State, logger *slog.Logger) *Ingester {
	return &Ingester{
		store:          s,
		dirs:           dirs,
		maxHistoryDays: maxHistoryDays,
		state:          state,
		logger:         logger,
	}
}

// Run performs a full sweep: every parseable file under every configured
// directory, modified within the history window and changed since the last
// run. One bad file never aborts the sweep.
func (i *Ingester) Run(ctx context.Context) (Result, error) {
	var res Result
	since := time.Now().AddDate(0, 0, -i.maxHistoryDays)

	for _, sd := range i.dirs {
		if sd.Dir == "" {
			continue
		}
		for _, path := range adapter.Discover([]string{sd.Dir}, since, i.logger) {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			fileRes, err := i.ingestFile(ctx, path, sd.Source)
			if err != nil {
				i.logger.Warn("ingest file failed", "path", path, "error", err)
				continue
			}
			res.Files++
			res.Conversations += fileRes.Conversations
			res.Inserted += fileRes.Inserted
			res.Skipped += fileRes.Skipped
		}
	}

	if err := i.state.Save(); err != nil {
		i.logger.Warn("cannot save ingest state", "error", err)
	}
	i.logger.Info("ingest run done",
		"files", res.Files, "conversations", res.Conversations,
		"inserted", res.Inserted, "skipped", res.Skipped)
	return res, nil
}

// IngestPath ingests one file, as triggered by the watcher or an external
// ingest event. The owning source is inferred from the configured
// directories.
func (i *Ingester) IngestPath(ctx context.Context, path string) (Result, error) {
	res, err := i.ingestFile(ctx, path, i.sourceFor(path))
	if err != nil {
		return res, err
	}
	if err := i.state.Save(); err != nil {
		i.logger.Warn("cannot save ingest state", "error", err)
	}
	return res, nil
}

func (i *Ingester) ingestFile(ctx context.Context, path string, source model.Source) (Result, error) {
	var res Result

	info, err := os.Stat(path)
	if err != nil {
		return res, fmt.Errorf("stat: %w", err)
	}
	if i.state.Seen(path, info) {
		i.logger.Debug("file unchanged, skipping", "path", path)
		return res, nil
	}

	raws := adapter.ParseFile(ctx, path, i.logger)
	convs := normalize.Batch(raws, source)
	res.Files = 1
	res.Conversations = len(convs)

	for _, conv := range convs {
		_, inserted, err := i.store.UpsertConversation(ctx, conv)
		if err != nil {
			return res, fmt.Errorf("upsert conversation %s: %w", conv.SourceID, err)
		}
		if inserted {
			res.Inserted++
		} else {
			res.Skipped++
		}
	}

	i.state.Mark(path, info)
	i.logger.Info("ingested file", "path", path, "source", source,
		"conversations", res.Conversations, "inserted", res.Inserted)
	return res, nil
}

func (i *Ingester) sourceFor(path string) model.Source {
	for _, sd := range i.dirs {
		if sd.Dir != "" && strings.HasPrefix(path, sd.Dir) {
			return sd.Source
		}
	}
	return model.SourceCursor
}
