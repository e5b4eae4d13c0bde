// Grafting engine candidate lines onto the move tree. The top-ranked line
// becomes the mainline at the target node; lower ranks become sibling
// branches, flagged when their evaluation falls outside the tolerance of
// the top line. The originally played move is kept as a branch so the game
// context survives. Grafting the same candidates twice yields the same tree.

package app

import (
	"fmt"

	"github.com/notnil/chess"

	"github.com/tidypy/Tidypy-Chess-Rep-Builder/app/models"
)

// NAG $2 is the standard "poor move" annotation; importers show it as "?".
const nagBlunder = 2

// Graft rewrites node's continuations from candidates. Candidates must be
// rank-ordered, best first. playedEval, when known, annotates the preserved
// original continuation; nil means it was not separately evaluated.
// Returns one RepertoireEntry per grafted candidate.
func Graft(node *Node, candidates []models.CandidateLine, playedEval *models.UCIScore, cfg GraftSettings) ([]models.RepertoireEntry, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	var played *Node
	if len(node.Children) > 0 {
		played = node.Children[0]
	}

	top := candidates[0]
	var entries []models.RepertoireEntry
	var ordered []*Node

	for i, cand := range candidates {
		if len(cand.PV) == 0 {
			continue
		}
		head, err := graftLine(node, cand, cfg.Extension)
		if err != nil {
			return nil, fmt.Errorf("candidate %d: %w", cand.Rank, err)
		}

		blunder := i > 0 && outsideTolerance(top.Score, cand.Score, cfg.Tolerance)
		annotate(head, cand, blunder)
		ordered = appendNode(ordered, head)

		entries = append(entries, models.RepertoireEntry{
			PositionFEN: NormalizeFEN(node.Pos.String()),
			Hash:        mustHash(node.Pos.String()),
			Ply:         node.Ply + 1,
			MoveUCI:     head.MoveUCI(),
			MoveSAN:     head.SAN,
			Rank:        i + 1,
			CP:          cand.Score.CP,
			Mate:        cand.Score.Mate,
			Depth:       cand.Depth,
			Blunder:     blunder,
		})
	}
	if len(ordered) == 0 {
		return nil, nil
	}

	// Preserve the played move and any prior branches after the candidates,
	// in their original order.
	if played != nil {
		ordered = appendNode(ordered, played)
		if playedEval != nil && outsideTolerance(top.Score, *playedEval, cfg.Tolerance) && !played.HasNAG(nagBlunder) {
			played.NAGs = append(played.NAGs, nagBlunder)
		}
	}
	for _, c := range node.Children {
		ordered = appendNode(ordered, c)
	}
	node.Children = ordered

	return entries, nil
}

// GraftSettings carries the user-tunable overwrite policy knobs.
type GraftSettings struct {
	Tolerance int // centipawn delta before a sibling is a flagged blunder
	Extension int // max PV plies grafted per candidate
}

// graftLine walks the candidate's PV down from node, reusing existing nodes
// where the moves already exist, up to the extension cap. Returns the head
// node of the line. PV moves that are illegal in the running position end
// the walk; an illegal first move is an error.
func graftLine(node *Node, cand models.CandidateLine, extension int) (*Node, error) {
	cur := node
	var head *Node
	for i, uci := range cand.PV {
		if i >= extension {
			break
		}
		move, err := chess.UCINotation{}.Decode(cur.Pos, uci)
		if err != nil {
			if i == 0 {
				return nil, fmt.Errorf("illegal pv move %q: %w", uci, err)
			}
			break
		}
		cur = cur.AddChild(move)
		if i == 0 {
			head = cur
		}
	}
	if head == nil {
		return nil, fmt.Errorf("empty pv")
	}
	return head, nil
}

// annotate overwrites the head node's engine comment so regrafting under the
// same settings reproduces the same text.
func annotate(head *Node, cand models.CandidateLine, blunder bool) {
	head.Comment = fmt.Sprintf("%s/%d", cand.Score.Display(), cand.Depth)
	if blunder && !head.HasNAG(nagBlunder) {
		head.NAGs = append(head.NAGs, nagBlunder)
	}
}

// outsideTolerance compares terminal evaluations, not search rank: rank and
// evaluation can disagree under multipv. Mate lines are never flagged.
func outsideTolerance(top, cand models.UCIScore, tolerance int) bool {
	if cand.Mate != nil {
		return false
	}
	if top.CP == nil || cand.CP == nil {
		return false
	}
	delta := *top.CP - *cand.CP
	if delta < 0 {
		delta = -delta
	}
	return delta > tolerance
}

func appendNode(list []*Node, n *Node) []*Node {
	for _, x := range list {
		if x == n {
			return list
		}
	}
	return append(list, n)
}

func mustHash(fen string) uint64 {
	h, err := HashFEN(fen)
	if err != nil {
		return 0
	}
	return h
}
