package app

import (
	"os"
	"regexp"
	"runtime"
	"strconv"
	"strings"
)

var (
	reComments = regexp.MustCompile(`\{[^}]*\}`) // {...} comments (incl. [%clk ...])
	reNAG      = regexp.MustCompile(`\$\d+`)     // $1, $2, etc.
	reSpaces   = regexp.MustCompile(`\s+`)
)

// StripAnnotations removes comments and NAGs from raw movetext and collapses
// whitespace. Useful for chess.com exports whose clock comments we don't
// want to carry into the repertoire output.
func StripAnnotations(pgn string) string {
	pgn = reComments.ReplaceAllString(pgn, "")
	pgn = reNAG.ReplaceAllString(pgn, "")
	pgn = reSpaces.ReplaceAllString(strings.TrimSpace(pgn), " ")
	return pgn
}

func GetWorkerCount() int {
	//default number of workers = number of cpus. Otherwise can be overwritten with WORKERS env var
	n := runtime.NumCPU()
	if v := os.Getenv("WORKERS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			n = parsed
		}
	}
	return n
}

// NormalizeFEN strips move counters and keeps only the structural position:
// <pieces> <side> <castling> <en-passant>
func NormalizeFEN(fen string) string {
	parts := strings.Split(fen, " ")
	if len(parts) < 4 {
		// malformed FEN, return original
		return fen
	}

	pieces := parts[0]
	side := parts[1]
	castling := parts[2]
	ep := parts[3]

	if castling == "" {
		castling = "-"
	}
	if ep == "" {
		ep = "-"
	}

	return pieces + " " + side + " " + castling + " " + ep
}

// DivideEngineOptions splits Hash and Threads among workers so concurrent
// sessions don't oversubscribe the machine. Other options pass through.
func DivideEngineOptions(opts map[string]string, workers int) map[string]string {
	if workers < 1 {
		workers = 1
	}
	out := make(map[string]string, len(opts))
	for k, v := range opts {
		out[k] = v
	}
	if h, err := strconv.Atoi(out["Hash"]); err == nil {
		hash := h / workers
		if hash < 64 {
			hash = 64
		}
		out["Hash"] = strconv.Itoa(hash)
	}
	if t, err := strconv.Atoi(out["Threads"]); err == nil {
		threads := t / workers
		if threads < 1 {
			threads = 1
		}
		out["Threads"] = strconv.Itoa(threads)
	}
	return out
}
