// Drives the biopsy loop: walk each game's mainline, analyze the positions
// the interval walker selected, and graft the engine's candidate lines back
// onto the tree. Games are distributed across workers; each worker owns one
// engine session and one transposition cache.

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tidypy/Tidypy-Chess-Rep-Builder/app/config"
	"github.com/tidypy/Tidypy-Chess-Rep-Builder/app/models"
)

func BudgetFromConfig(ec config.EngineConfig) models.SearchBudget {
	return models.SearchBudget{Depth: ec.Depth, MoveTimeMS: ec.MoveTimeMS}
}

// perPlyTimeout bounds one analysis wait. Depth-limited searches have no
// hard wall clock, so give them a generous ceiling before we send stop.
func perPlyTimeout(b models.SearchBudget) time.Duration {
	if b.MoveTimeMS > 0 {
		return time.Duration(b.MoveTimeMS)*time.Millisecond*3 + 2*time.Second
	}
	return 2 * time.Minute
}

// AnalyzeOneGame runs the interval plan over a single game, mutating its
// tree in place. Returns the number of positions analyzed and the grafted
// repertoire entries.
func AnalyzeOneGame(ctx context.Context, cfg *config.Config, eng *UCIEngine, cache *TranspositionCache, g *Game) (int, []models.RepertoireEntry, error) {
	plan := PlanFromConfig(cfg.Interval)
	budget := BudgetFromConfig(cfg.Engine)
	settings := GraftSettings{Tolerance: cfg.Graft.Tolerance, Extension: cfg.Graft.Extension}

	// Target plies are absolute, so FEN-tag games starting mid-line keep
	// correct side-to-move parity for the perspective filter.
	targets := map[int]bool{}
	for _, ply := range plan.TargetPlies(g.Root.Ply + g.MainlineLength()) {
		targets[ply] = true
	}

	positions := 0
	var entries []models.RepertoireEntry

	node := g.Root
	hash, err := HashFEN(node.Pos.String())
	if err != nil {
		return 0, nil, err
	}
	for len(node.Children) > 0 {
		// A stopped run aborts the walk; nothing partial is ever grafted.
		if err := ctx.Err(); err != nil {
			return positions, entries, err
		}

		// Capture the played continuation before any graft reorders it.
		next := node.Children[0]
		ply := next.Ply

		if targets[ply] {
			lines, err := analyzePosition(ctx, eng, cache, node.Pos.String(), hash, budget)
			if err != nil {
				return positions, entries, fmt.Errorf("ply %d: %w", ply, err)
			}
			if len(lines) > 0 {
				logCandidates(ply, lines)
				grafted, err := Graft(node, lines, nil, settings)
				if err != nil {
					return positions, entries, fmt.Errorf("ply %d: %w", ply, err)
				}
				entries = append(entries, grafted...)
				positions++
			}
		}

		hash, err = UpdateHash(hash, node.Pos.String(), next.Pos.String())
		if err != nil {
			return positions, entries, err
		}
		node = next
	}

	if positions > 0 && eng.Name() != "" {
		g.SetTag("Annotator", eng.Name())
	}
	return positions, entries, nil
}

// analyzePosition consults the transposition cache first; hits bypass the
// engine entirely so positions sharing a hash get identical analysis. The
// caller supplies the hash, maintained incrementally along its walk.
func analyzePosition(ctx context.Context, eng *UCIEngine, cache *TranspositionCache, fen string, hash uint64, budget models.SearchBudget) ([]models.CandidateLine, error) {
	if lines, ok := cache.Lookup(hash, budget); ok {
		return lines, nil
	}

	plyCtx, cancel := context.WithTimeout(ctx, perPlyTimeout(budget))
	lines, err := eng.AnalyzeTerminal(plyCtx, fen, budget)
	cancel()
	if err != nil {
		return nil, err
	}
	cache.Store(hash, budget, lines)
	return lines, nil
}

func logCandidates(ply int, lines []models.CandidateLine) {
	for i, l := range lines {
		prefix := "->"
		if i > 0 {
			prefix = fmt.Sprintf(" %d)", i+1)
		}
		pv := strings.Join(l.PV, " ")
		if len(pv) > 60 {
			pv = pv[:60] + "..."
		}
		log.Printf("  %s %s %s [%s] d%d | %s", FormatPly(ply), prefix, l.PV[0], l.Score.Display(), l.Depth, pv)
	}
}

// BatchResult is what a full run produces besides the mutated games.
type BatchResult struct {
	Games     []models.GameMeta
	Entries   []models.RepertoireEntry
	Positions int
	Failed    int
}

// ProgressFunc is called after each completed game for job reporting.
type ProgressFunc func(done, total, positions int)

type gameResult struct {
	index     int
	positions int
	entries   []models.RepertoireEntry
	err       error
}

// RunBatch analyzes games in place using a pool of engine workers. Plies
// within a game stay in walker order; games are distributed round-robin.
// A fatal engine error aborts that worker but never corrupts games already
// grafted; their output is preserved.
func RunBatch(ctx context.Context, cfg *config.Config, games []*Game, progress ProgressFunc) (BatchResult, error) {
	start := time.Now()
	res := BatchResult{}
	if len(games) == 0 {
		return res, nil
	}

	numWorkers := GetWorkerCount()
	if numWorkers > len(games) {
		numWorkers = len(games)
	}
	engineOpts := DivideEngineOptions(cfg.Engine.Options, numWorkers)
	log.Printf("Analyzing %d games with %d workers", len(games), numWorkers)

	jobs := make(chan int, len(games))
	results := make(chan gameResult, len(games))
	var wg sync.WaitGroup

	var spawnMu sync.Mutex
	var spawnErr error

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()

			eng, err := NewUCIEngine(cfg.Engine.Path, engineOpts)
			if err != nil {
				log.Printf("worker %d: failed to start engine: %v", id, err)
				spawnMu.Lock()
				if spawnErr == nil {
					spawnErr = err
				}
				spawnMu.Unlock()
				return
			}
			defer eng.Close()
			if err := eng.SetCandidates(cfg.Engine.Candidates); err != nil {
				log.Printf("worker %d: %v", id, err)
			}

			// One cache per worker: it is the only state shared across ply
			// analyses within that session, so no locking is needed.
			cache := NewTranspositionCache()

			for idx := range jobs {
				if err := ctx.Err(); err != nil {
					results <- gameResult{index: idx, err: err}
					continue
				}
				g := games[idx]
				if err := eng.NewGame(); err != nil {
					log.Printf("worker %d: engine lost: %v", id, err)
					results <- gameResult{index: idx, err: err}
					return
				}
				log.Printf("worker %d: game %d: %s vs %s", id, idx+1, g.Tag("White"), g.Tag("Black"))
				positions, entries, err := AnalyzeOneGame(ctx, cfg, eng, cache, g)
				results <- gameResult{index: idx, positions: positions, entries: entries, err: err}
				if isFatalEngineErr(err) {
					log.Printf("worker %d: aborting: %v", id, err)
					return
				}
			}

			hits, misses := cache.Stats()
			log.Printf("worker %d: cache %d hits / %d misses", id, hits, misses)
		}(i)
	}

	go func() {
		defer close(jobs)
		for i := range games {
			jobs <- i
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	collected := make([]gameResult, 0, len(games))
	for r := range results {
		collected = append(collected, r)
		res.Positions += r.positions
		if progress != nil {
			progress(len(collected), len(games), res.Positions)
		}
	}
	sort.Slice(collected, func(i, j int) bool { return collected[i].index < collected[j].index })

	// Games no worker ever picked up (every worker dead) are failures too.
	if missing := len(games) - len(collected); missing > 0 {
		res.Failed += missing
		log.Printf("%d games were never analyzed: all workers gone", missing)
	}
	if len(collected) == 0 {
		if spawnErr == nil {
			spawnErr = ErrSpawn
		}
		return res, fmt.Errorf("no engine workers available: %w", spawnErr)
	}

	for _, r := range collected {
		if r.err != nil {
			res.Failed++
			log.Printf("game %d failed: %v", r.index+1, r.err)
			continue
		}
		meta := games[r.index].Meta(r.index)
		meta.Positions = r.positions
		res.Games = append(res.Games, meta)
		for i := range r.entries {
			r.entries[i].GameIndex = r.index
		}
		res.Entries = append(res.Entries, r.entries...)
	}

	log.Printf("Batch complete: games=%d failed=%d positions=%d took=%s",
		len(res.Games), res.Failed, res.Positions, time.Since(start))
	return res, nil
}

func isFatalEngineErr(err error) bool {
	return errors.Is(err, ErrEngineCrashed) ||
		errors.Is(err, ErrIllegalInstruction) ||
		errors.Is(err, ErrHandshakeTimeout) ||
		errors.Is(err, ErrSpawn)
}
