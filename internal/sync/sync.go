// Package sync imports cards from configured sources: local files,
// directories of card files and git repositories.
package sync

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/conorfennell/brainquiz/internal/domain"
	"github.com/conorfennell/brainquiz/internal/gitsource"
	"github.com/conorfennell/brainquiz/internal/parser"
	"github.com/conorfennell/brainquiz/internal/scheduler"
)

// Importer merges parsed cards into the collection.
type Importer interface {
	Import(ctx context.Context, cards []domain.Card) (scheduler.ImportResult, error)
}

// Report summarises a sync run.
type Report struct {
	Sources int
	Files   int
	Added   int
	Skipped int
	Errors  []error
}

// Options tune a sync run.
type Options struct {
	// ReposDir is where git sources are checked out.
	ReposDir string
	// Progress receives git progress output; nil discards it.
	Progress io.Writer
}

// Run imports every source in turn. A failing source is logged and recorded
// in the report, and the run moves on. Cards are never deleted: a card that
// disappears from its source stays in the collection with its progress.
func Run(ctx context.Context, imp Importer, sources []string, opts Options) (Report, error) {
	var report Report
	if len(sources) == 0 {
		slog.Info("No sources configured. Add one under sync.sources")
		return report, nil
	}

	if opts.ReposDir == "" {
		opts.ReposDir = "repos"
	}

	slog.Info("Starting sync process for all sources...", "sources", len(sources))
	for _, source := range sources {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Sources++

		path := source
		if gitsource.IsURL(source) {
			localPath, err := gitsource.LocalPath(opts.ReposDir, source)
			if err != nil {
				report.fail(source, fmt.Errorf("failed to determine local path: %w", err))
				continue
			}
			if err := os.MkdirAll(filepath.Dir(localPath), os.ModePerm); err != nil {
				report.fail(source, fmt.Errorf("failed to create repos directory: %w", err))
				continue
			}
			if err := gitsource.Sync(ctx, source, localPath, opts.Progress); err != nil {
				report.fail(source, err)
				continue
			}
			path = localPath
		}

		if err := importPath(ctx, imp, path, &report); err != nil {
			report.fail(source, err)
		}
	}

	slog.Info("Sync process complete.",
		"sources", report.Sources,
		"files", report.Files,
		"added", report.Added,
		"skipped", report.Skipped,
		"errors", len(report.Errors),
	)
	return report, nil
}

func (r *Report) fail(source string, err error) {
	slog.Error("Error syncing source", "source", source, "error", err)
	r.Errors = append(r.Errors, fmt.Errorf("%s: %w", source, err))
}

func importPath(ctx context.Context, imp Importer, root string, report *Report) error {
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("failed to stat source: %w", err)
	}
	if !info.IsDir() {
		return importFile(ctx, imp, root, report)
	}

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !parser.Supported(path) {
			return nil
		}
		if err := importFile(ctx, imp, path, report); err != nil {
			// One bad file does not stop the rest of the directory.
			slog.Warn("Skipping card file", "path", path, "error", err)
			report.Errors = append(report.Errors, fmt.Errorf("%s: %w", path, err))
		}
		return nil
	})
}

func importFile(ctx context.Context, imp Importer, path string, report *Report) error {
	cards, err := parser.ParseFile(path)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	res, err := imp.Import(ctx, cards)
	if err != nil {
		return err
	}
	report.Files++
	report.Added += res.Added
	report.Skipped += res.Skipped
	slog.Debug("Imported card file", "path", path, "added", res.Added, "skipped", res.Skipped)
	return nil
}
