package models

// JobStatus summarizes a batch analysis job.
type JobStatus struct {
	ID             string `json:"id"`
	Status         string `json:"status"` // queued, running, stopping, stopped, done, failed
	CompletedGames int    `json:"completed_games"`
	TotalGames     int    `json:"total_games"`
	Positions      int    `json:"positions_analyzed"`
	Error          string `json:"error,omitempty"`
}

// JobRequest starts a batch: where the games live and any budget overrides.
type JobRequest struct {
	InputPGN    string `json:"input_pgn"`
	OutputPGN   string `json:"output_pgn,omitempty"`
	Depth       int    `json:"depth,omitempty"`
	MoveTimeMS  int    `json:"move_time_ms,omitempty"`
	Candidates  int    `json:"candidates,omitempty"`
	Perspective string `json:"perspective,omitempty"`
}
