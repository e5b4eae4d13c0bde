package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/notnil/chess"

	"github.com/tidypy/Tidypy-Chess-Rep-Builder/app/config"
	"github.com/tidypy/Tidypy-Chess-Rep-Builder/app/models"
)

// firstLegalUCI gives the fake engine something legal to recommend.
func firstLegalUCI(t *testing.T, fen string) string {
	t.Helper()
	opt, err := chess.FEN(fen)
	if err != nil {
		t.Fatalf("bad fen from session: %q: %v", fen, err)
	}
	pos := chess.NewGame(opt).Position()
	moves := pos.ValidMoves()
	if len(moves) == 0 {
		t.Fatalf("no legal moves in %q", fen)
	}
	return chess.UCINotation{}.Encode(pos, moves[0])
}

func analysisConfig() *config.Config {
	return &config.Config{
		Engine:   config.EngineConfig{Depth: 12, Candidates: 1},
		Interval: config.IntervalConfig{SkipFirst: 0, Increment: 2, MaxPly: 48, Perspective: "both"},
		Graft:    config.GraftConfig{Tolerance: 150, Extension: 4},
	}
}

func TestAnalyzeOneGame(t *testing.T) {
	var lastFEN string
	f := newFakeEngine(t, func(f *fakeEngine, cmd string) {
		if respondHandshake(f, cmd) {
			return
		}
		switch {
		case strings.HasPrefix(cmd, "position fen "):
			lastFEN = strings.TrimPrefix(cmd, "position fen ")
		case strings.HasPrefix(cmd, "go"):
			move := firstLegalUCI(t, lastFEN)
			f.reply(
				fmt.Sprintf("info depth 12 multipv 1 score cp 30 pv %s", move),
				"bestmove "+move,
			)
		}
	})
	if err := f.eng.handshake(); err != nil {
		t.Fatalf("handshake: %v", err)
	}

	g, err := ParseGame("1. e4 e5 2. Nf3 Nc6 3. Bb5 a6 *")
	if err != nil {
		t.Fatalf("ParseGame: %v", err)
	}
	cache := NewTranspositionCache()

	positions, entries, err := AnalyzeOneGame(context.Background(), analysisConfig(), f.eng, cache, g)
	if err != nil {
		t.Fatalf("AnalyzeOneGame: %v", err)
	}
	if positions != 3 {
		t.Fatalf("analyzed %d positions, want plies 2, 4, 6", positions)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	for i, wantPly := range []int{2, 4, 6} {
		if entries[i].Ply != wantPly {
			t.Fatalf("entry %d ply = %d, want %d", i, entries[i].Ply, wantPly)
		}
		if entries[i].Rank != 1 || entries[i].MoveUCI == "" {
			t.Fatalf("entry %d incomplete: %+v", i, entries[i])
		}
	}

	if g.Tag("Annotator") != "FakeFish 1.0" {
		t.Fatalf("Annotator = %q", g.Tag("Annotator"))
	}
	// Grafted heads carry the engine comment.
	e4 := g.Root.Children[0]
	if e4.Children[0].Comment != "+0.30/12" {
		t.Fatalf("ply 2 graft comment = %q", e4.Children[0].Comment)
	}
	if cache.Len() != 3 {
		t.Fatalf("cache holds %d positions, want 3", cache.Len())
	}
}

func TestAnalyzePositionUsesCache(t *testing.T) {
	var lastFEN string
	f := newFakeEngine(t, func(f *fakeEngine, cmd string) {
		if respondHandshake(f, cmd) {
			return
		}
		switch {
		case strings.HasPrefix(cmd, "position fen "):
			lastFEN = strings.TrimPrefix(cmd, "position fen ")
		case strings.HasPrefix(cmd, "go"):
			move := firstLegalUCI(t, lastFEN)
			f.reply(
				fmt.Sprintf("info depth 10 multipv 1 score cp 15 pv %s", move),
				"bestmove "+move,
			)
		}
	})
	if err := f.eng.handshake(); err != nil {
		t.Fatalf("handshake: %v", err)
	}

	cache := NewTranspositionCache()
	fen := "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1"
	hash, err := HashFEN(fen)
	if err != nil {
		t.Fatalf("HashFEN: %v", err)
	}
	budget := models.SearchBudget{Depth: 10}

	first, err := analyzePosition(context.Background(), f.eng, cache, fen, hash, budget)
	if err != nil {
		t.Fatalf("first analyzePosition: %v", err)
	}
	second, err := analyzePosition(context.Background(), f.eng, cache, fen, hash, budget)
	if err != nil {
		t.Fatalf("second analyzePosition: %v", err)
	}
	if first[0].PV[0] != second[0].PV[0] {
		t.Fatal("cache hit returned different lines")
	}

	goCount := 0
	for _, cmd := range f.commands() {
		if strings.HasPrefix(cmd, "go") {
			goCount++
		}
	}
	if goCount != 1 {
		t.Fatalf("engine searched %d times, want 1 (second call is a cache hit)", goCount)
	}

	hits, misses := cache.Stats()
	if hits != 1 || misses != 1 {
		t.Fatalf("cache stats = %d/%d, want 1 hit 1 miss", hits, misses)
	}
}

func TestAnalyzeOneGameDiscardsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var lastFEN string
	f := newFakeEngine(t, func(f *fakeEngine, cmd string) {
		if respondHandshake(f, cmd) {
			return
		}
		switch {
		case strings.HasPrefix(cmd, "position fen "):
			lastFEN = strings.TrimPrefix(cmd, "position fen ")
		case strings.HasPrefix(cmd, "go"):
			move := firstLegalUCI(t, lastFEN)
			f.reply(fmt.Sprintf("info depth 4 multipv 1 score cp 20 pv %s", move))
			cancel()
		case cmd == "stop":
			f.reply("bestmove " + firstLegalUCI(t, lastFEN))
		}
	})
	if err := f.eng.handshake(); err != nil {
		t.Fatalf("handshake: %v", err)
	}

	g, err := ParseGame("1. e4 e5 2. Nf3 Nc6 3. Bb5 a6 *")
	if err != nil {
		t.Fatalf("ParseGame: %v", err)
	}
	cache := NewTranspositionCache()

	positions, entries, err := AnalyzeOneGame(ctx, analysisConfig(), f.eng, cache, g)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if positions != 0 || len(entries) != 0 {
		t.Fatalf("stopped walk grafted anyway: positions=%d entries=%v", positions, entries)
	}
	if cache.Len() != 0 {
		t.Fatal("partial lines were cached")
	}

	// The tree keeps only the played continuation, unannotated.
	afterE4 := g.Root.Children[0]
	if len(afterE4.Children) != 1 || afterE4.Children[0].SAN != "e5" || afterE4.Children[0].Comment != "" {
		t.Fatalf("tree mutated by stopped run: %+v", afterE4.Children)
	}
}

func TestRunBatchSpawnFailure(t *testing.T) {
	cfg := analysisConfig()
	cfg.Engine.Path = "/nonexistent/engine"

	g, err := ParseGame("1. e4 e5 *")
	if err != nil {
		t.Fatalf("ParseGame: %v", err)
	}
	res, err := RunBatch(context.Background(), cfg, []*Game{g}, nil)
	if !errors.Is(err, ErrSpawn) {
		t.Fatalf("err = %v, want ErrSpawn", err)
	}
	if res.Failed != 1 || len(res.Games) != 0 || res.Positions != 0 {
		t.Fatalf("unreachable engine reported success: %+v", res)
	}
}

func TestRunBatchEmpty(t *testing.T) {
	res, err := RunBatch(context.Background(), analysisConfig(), nil, nil)
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	if res.Positions != 0 || len(res.Games) != 0 {
		t.Fatalf("empty batch produced output: %+v", res)
	}
}
