package app

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPGNWriterRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.pgn")
	w := NewPGNWriter(path, 10)

	g, err := ParseGame(samplePGN)
	if err != nil {
		t.Fatalf("ParseGame: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := w.WriteGame(g); err != nil {
			t.Fatalf("WriteGame: %v", err)
		}
	}
	if w.GamesWritten() != 3 {
		t.Fatalf("GamesWritten = %d", w.GamesWritten())
	}

	games, err := ReadGamesFile(path)
	if err != nil {
		t.Fatalf("ReadGamesFile: %v", err)
	}
	if len(games) != 3 {
		t.Fatalf("read back %d games, want 3", len(games))
	}
	sameTree(t, g.Root, games[1].Root, "root")
}

func TestPGNWriterSplits(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "big.pgn")

	w := NewPGNWriter(path, 1)
	w.splitBytes = 200 // shrink the threshold so the test stays small

	g, err := ParseGame(samplePGN)
	if err != nil {
		t.Fatalf("ParseGame: %v", err)
	}
	var last string
	for i := 0; i < 4; i++ {
		last, err = w.WriteGame(g)
		if err != nil {
			t.Fatalf("WriteGame: %v", err)
		}
	}

	if last == path {
		t.Fatal("writer never rolled over")
	}
	if filepath.Ext(last) != ".pgn" {
		t.Fatalf("rollover path %q lost the extension", last)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("first split file missing: %v", err)
	}
}

func TestReadGamesFileErrors(t *testing.T) {
	if _, err := ReadGamesFile(filepath.Join(t.TempDir(), "missing.pgn")); err == nil {
		t.Fatal("missing file should error")
	}

	empty := filepath.Join(t.TempDir(), "empty.pgn")
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadGamesFile(empty); err == nil {
		t.Fatal("empty file should error")
	}
}

func TestDefaultOutputPath(t *testing.T) {
	if got := DefaultOutputPath("games/lichess.pgn"); got != "games/lichess_analyzed.pgn" {
		t.Fatalf("DefaultOutputPath = %q", got)
	}
}
