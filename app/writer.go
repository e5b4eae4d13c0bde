// Output side of a run: PGN files (with size-based splitting so book
// importers aren't handed one giant file) and the end-to-end file pipeline.

package app

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidypy/Tidypy-Chess-Rep-Builder/app/config"
)

// PGNWriter appends rendered games to basePath, rolling over to
// "<stem>_1.pgn", "<stem>_2.pgn", ... once a file passes the split size.
type PGNWriter struct {
	basePath   string
	splitBytes int64
	fileIndex  int
	written    int
}

func NewPGNWriter(basePath string, splitSizeMB int) *PGNWriter {
	if splitSizeMB < 1 {
		splitSizeMB = 10
	}
	return &PGNWriter{basePath: basePath, splitBytes: int64(splitSizeMB) * 1024 * 1024}
}

func (w *PGNWriter) currentPath() string {
	if w.fileIndex == 0 {
		return w.basePath
	}
	ext := filepath.Ext(w.basePath)
	stem := strings.TrimSuffix(w.basePath, ext)
	return fmt.Sprintf("%s_%d%s", stem, w.fileIndex, ext)
}

func (w *PGNWriter) checkSplit() {
	if info, err := os.Stat(w.currentPath()); err == nil && info.Size() >= w.splitBytes {
		w.fileIndex++
	}
}

// WriteGame appends one game to the current output file.
func (w *PGNWriter) WriteGame(g *Game) (string, error) {
	w.checkSplit()
	path := w.currentPath()
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create output dir: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.WriteString(g.Render() + "\n"); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	w.written++
	return path, nil
}

func (w *PGNWriter) GamesWritten() int { return w.written }

// ReadGamesFile parses every game in a PGN file.
func ReadGamesFile(path string) ([]*Game, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input pgn: %w", err)
	}
	defer f.Close()
	games, err := ParseGames(f)
	if err != nil {
		return nil, err
	}
	if len(games) == 0 {
		return nil, fmt.Errorf("no games found in %s", path)
	}
	return games, nil
}

// DefaultOutputPath derives "<input>_analyzed.pgn" next to the input.
func DefaultOutputPath(inputPath string) string {
	ext := filepath.Ext(inputPath)
	return strings.TrimSuffix(inputPath, ext) + "_analyzed" + ext
}

// RunFiles is the whole pipeline: read the input PGN, analyze the batch,
// write the annotated games and, when enabled, the opening book. Games are
// written in input order; a game that failed mid-analysis is still written
// with whatever was grafted before the failure.
func RunFiles(ctx context.Context, cfg *config.Config, progress ProgressFunc) (BatchResult, error) {
	games, err := ReadGamesFile(cfg.Output.InputPGN)
	if err != nil {
		return BatchResult{}, err
	}

	res, err := RunBatch(ctx, cfg, games, progress)
	if err != nil {
		return res, err
	}

	outPath := cfg.Output.OutputPGN
	if outPath == "" {
		outPath = DefaultOutputPath(cfg.Output.InputPGN)
	}
	writer := NewPGNWriter(outPath, cfg.Output.SplitSizeMB)
	for _, g := range games {
		if _, err := writer.WriteGame(g); err != nil {
			return res, err
		}
	}
	log.Printf("Wrote %d games to %s", writer.GamesWritten(), outPath)

	if cfg.Output.BookEnabled && cfg.Output.BookBin != "" {
		book := NewBookWriter()
		for _, e := range res.Entries {
			book.AddEntry(e.Hash, e.MoveUCI, e.Rank)
		}
		n, err := book.Write(cfg.Output.BookBin)
		if err != nil {
			return res, fmt.Errorf("book: %w", err)
		}
		log.Printf("Wrote %d book entries to %s", n, cfg.Output.BookBin)
	}

	return res, nil
}
