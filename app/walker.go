// Interval walker: turns the configured plan into the ordered set of plies
// worth a biopsy, filtered to the repertoire perspective.

package app

import (
	"fmt"

	"github.com/tidypy/Tidypy-Chess-Rep-Builder/app/config"
	"github.com/tidypy/Tidypy-Chess-Rep-Builder/app/models"
)

// IntervalPlan selects which plies of a game get analyzed.
type IntervalPlan struct {
	SkipFirst   int // plies skipped before the first target
	Increment   int // plies between targets, > 0
	MaxPly      int // last eligible ply, 0 = no cap
	Perspective models.Perspective
}

func PlanFromConfig(ic config.IntervalConfig) IntervalPlan {
	return IntervalPlan{
		SkipFirst:   ic.SkipFirst,
		Increment:   ic.Increment,
		MaxPly:      ic.MaxPly,
		Perspective: models.Perspective(ic.Perspective),
	}
}

// TargetPlies returns the ordered, deduplicated plies to analyze for a game
// of gamePlies half-moves: {skipFirst + k*increment : k >= 0} clamped to
// [1, min(maxPly, gamePlies)], then filtered by perspective.
func (p IntervalPlan) TargetPlies(gamePlies int) []int {
	if p.Increment <= 0 {
		return nil
	}
	limit := gamePlies
	if p.MaxPly > 0 && p.MaxPly < limit {
		limit = p.MaxPly
	}

	var targets []int
	for ply := p.SkipFirst; ply <= limit; ply += p.Increment {
		if ply < 1 {
			continue
		}
		if !p.wantsMover(PlyMover(ply)) {
			continue
		}
		targets = append(targets, ply)
	}
	return targets
}

func (p IntervalPlan) wantsMover(side models.Perspective) bool {
	switch p.Perspective {
	case models.PerspectiveWhite, models.PerspectiveBlack:
		return side == p.Perspective
	default:
		return true
	}
}

// PlyMover returns who moves at a given ply: odd plies are White's.
func PlyMover(ply int) models.Perspective {
	if ply%2 == 1 {
		return models.PerspectiveWhite
	}
	return models.PerspectiveBlack
}

// MoveToPly converts a full-move number and side into an absolute ply:
// move 1 White = ply 1, move 1 Black = ply 2, move 7 Black = ply 14.
func MoveToPly(moveNumber int, side models.Perspective) int {
	ply := (moveNumber-1)*2 + 1
	if side == models.PerspectiveBlack {
		ply++
	}
	return ply
}

// PlyToMove is the inverse of MoveToPly.
func PlyToMove(ply int) (moveNumber int, side models.Perspective) {
	return (ply + 1) / 2, PlyMover(ply)
}

// FormatPly renders a ply as PGN-style move notation: "7." or "7...".
func FormatPly(ply int) string {
	num, side := PlyToMove(ply)
	if side == models.PerspectiveWhite {
		return fmt.Sprintf("%d.", num)
	}
	return fmt.Sprintf("%d...", num)
}
