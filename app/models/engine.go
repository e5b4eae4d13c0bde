package models

import "fmt"

type UCIScore struct {
	// Exactly one of these will be set:
	CP   *int   `json:"cp,omitempty"`   // centipawns, positive means advantage for side to move
	Mate *int   `json:"mate,omitempty"` // in N, sign indicates who is mating (+ means side to move mates)
	Best string `json:"bestmove,omitempty"`
}

func (s UCIScore) IsMate() bool {
	return s.Mate != nil
}

// Display renders the score the way engines log it: "+0.45" or "M3".
func (s UCIScore) Display() string {
	if s.Mate != nil {
		return fmt.Sprintf("M%d", *s.Mate)
	}
	if s.CP != nil {
		return fmt.Sprintf("%+.2f", float64(*s.CP)/100)
	}
	return "?"
}

// SearchBudget drives how long the engine searches one position.
// Both limits may be set; the engine stops at whichever comes first.
type SearchBudget struct {
	Depth      int `json:"depth"`        // 0 = no depth limit
	MoveTimeMS int `json:"move_time_ms"` // 0 = no time limit
}

// Covers reports whether analysis done under b satisfies a request for req.
// A shallower or shorter stored result never satisfies a stricter request.
func (b SearchBudget) Covers(req SearchBudget) bool {
	return b.Depth >= req.Depth && b.MoveTimeMS >= req.MoveTimeMS
}

// AnalysisUpdate is one streamed engine info line, keyed by candidate rank.
// Updates for one analysis arrive in non-decreasing depth order; the last
// update per rank before the best move is authoritative.
type AnalysisUpdate struct {
	Rank  int      `json:"rank"` // 1-based multipv slot
	Depth int      `json:"depth"`
	Score UCIScore `json:"score"`
	PV    []string `json:"pv"` // UCI moves
}

// CandidateLine is the terminal result for one multipv slot.
type CandidateLine struct {
	Rank  int      `json:"rank"`
	Depth int      `json:"depth"`
	Score UCIScore `json:"score"`
	PV    []string `json:"pv"` // UCI moves, first is the candidate move
}

// EngineOption is one declared UCI option, exposed read-only to callers.
// Type is one of "check", "spin", "combo", "string", "button".
type EngineOption struct {
	Name    string   `json:"name"`
	Type    string   `json:"type"`
	Default string   `json:"default,omitempty"`
	Min     int      `json:"min,omitempty"`
	Max     int      `json:"max,omitempty"`
	Vars    []string `json:"vars,omitempty"` // combo choices
}

// EngineInfo is the capability export for the GUI: engine identity plus the
// declared option list, never interpreted beyond validation.
type EngineInfo struct {
	Name    string                  `json:"name"`
	Path    string                  `json:"path"`
	Options map[string]EngineOption `json:"options"`
}
