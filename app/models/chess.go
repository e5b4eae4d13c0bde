package models

// Perspective selects which side's moves are analysis targets.
type Perspective string

const (
	PerspectiveWhite Perspective = "white"
	PerspectiveBlack Perspective = "black"
	PerspectiveBoth  Perspective = "both"
)

// GameMeta is the trimmed per-game summary we log and return to callers.
type GameMeta struct {
	Index     int    `json:"index"`
	Event     string `json:"event"`
	White     string `json:"white"`
	Black     string `json:"black"`
	Result    string `json:"result"`
	Plies     int    `json:"plies"`
	Positions int    `json:"positions_analyzed"`
}

// RepertoireEntry is one grafted candidate at one analyzed position,
// what we persist to Postgres and feed the book writer.
type RepertoireEntry struct {
	PositionFEN string `json:"position_fen"` // normalized, structural fields only
	Hash        uint64 `json:"hash"`
	Ply         int    `json:"ply"`
	MoveUCI     string `json:"move_uci"`
	MoveSAN     string `json:"move_san"`
	Rank        int    `json:"rank"` // 1 = mainline
	CP          *int   `json:"cp,omitempty"`
	Mate        *int   `json:"mate,omitempty"`
	Depth       int    `json:"depth"`
	Blunder     bool   `json:"blunder"` // outside tolerance of the top line
	GameIndex   int    `json:"game_index"`
}
