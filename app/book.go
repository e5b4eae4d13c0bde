// Polyglot-format opening book writer. Entries are 16 bytes, big-endian:
// uint64 position key, uint16 encoded move, uint16 weight, uint32 learn.
// Weights follow candidate rank; duplicate (key, move) pairs merge by
// summing weights. Keys come from this run's position hash.

package app

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// weightForRank maps candidate rank (1 = best) to a book weight.
func weightForRank(rank int) uint16 {
	switch rank {
	case 1:
		return 100
	case 2:
		return 50
	default:
		return 25
	}
}

const maxBookWeight = 65535

type bookEntry struct {
	key    uint64
	move   uint16
	weight int
}

type BookWriter struct {
	entries []bookEntry
}

func NewBookWriter() *BookWriter {
	return &BookWriter{}
}

// AddEntry records one position/move pair. moveUCI is the move from the
// position hashed by key; unparsable moves are skipped.
func (w *BookWriter) AddEntry(key uint64, moveUCI string, rank int) {
	enc, err := encodePolyglotMove(moveUCI)
	if err != nil {
		return
	}
	w.entries = append(w.entries, bookEntry{key: key, move: enc, weight: int(weightForRank(rank))})
}

func (w *BookWriter) Len() int { return len(w.entries) }

// encodePolyglotMove packs a UCI move into the Polyglot bit layout:
// bits 0-2 to-file, 3-5 to-rank, 6-8 from-file, 9-11 from-rank,
// 12-14 promotion (0=none, 1=n, 2=b, 3=r, 4=q).
func encodePolyglotMove(uci string) (uint16, error) {
	if len(uci) < 4 {
		return 0, fmt.Errorf("bad uci move %q", uci)
	}
	fromFile := int(uci[0] - 'a')
	fromRank := int(uci[1] - '1')
	toFile := int(uci[2] - 'a')
	toRank := int(uci[3] - '1')
	for _, v := range []int{fromFile, fromRank, toFile, toRank} {
		if v < 0 || v > 7 {
			return 0, fmt.Errorf("bad uci move %q", uci)
		}
	}

	promotion := 0
	if len(uci) >= 5 {
		switch uci[4] {
		case 'n':
			promotion = 1
		case 'b':
			promotion = 2
		case 'r':
			promotion = 3
		case 'q':
			promotion = 4
		default:
			return 0, fmt.Errorf("bad promotion in %q", uci)
		}
	}

	enc := toFile | toRank<<3 | fromFile<<6 | fromRank<<9 | promotion<<12
	return uint16(enc), nil
}

// Write merges duplicates, sorts by key, and writes the .bin file.
// Returns the number of entries written.
func (w *BookWriter) Write(path string) (int, error) {
	if len(w.entries) == 0 {
		return 0, nil
	}

	type pairKey struct {
		key  uint64
		move uint16
	}
	merged := map[pairKey]int{}
	for _, e := range w.entries {
		k := pairKey{e.key, e.move}
		sum := merged[k] + e.weight
		if sum > maxBookWeight {
			sum = maxBookWeight
		}
		merged[k] = sum
	}

	out := make([]bookEntry, 0, len(merged))
	for k, weight := range merged {
		out = append(out, bookEntry{key: k.key, move: k.move, weight: weight})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].key != out[j].key {
			return out[i].key < out[j].key
		}
		return out[i].move < out[j].move
	})

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	buf := make([]byte, 16)
	for _, e := range out {
		binary.BigEndian.PutUint64(buf[0:8], e.key)
		binary.BigEndian.PutUint16(buf[8:10], e.move)
		binary.BigEndian.PutUint16(buf[10:12], uint16(e.weight))
		binary.BigEndian.PutUint32(buf[12:16], 0) // learn
		if _, err := f.Write(buf); err != nil {
			return 0, err
		}
	}
	return len(out), nil
}

// Clear drops accumulated entries so the writer can be reused.
func (w *BookWriter) Clear() {
	w.entries = w.entries[:0]
}
