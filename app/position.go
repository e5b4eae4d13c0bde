// Zobrist hashing over the structural fields of a FEN: piece placement,
// side to move, castling rights, en passant file. Two positions reached by
// different move orders hash identically, which is what lets the
// transposition cache dedupe repeated analysis.

package app

import (
	"fmt"
	"strings"
)

var (
	zobristPiece      [12][64]uint64
	zobristCastling   [4]uint64 // K, Q, k, q
	zobristEnPassant  [8]uint64 // one per file
	zobristSideToMove uint64
)

// 'P'..'k' piece letters in FEN order of our key table.
const pieceLetters = "PNBRQKpnbrqk"

func init() {
	rng := newPRNG(0x7A6B1A2D4C3E5F01)
	for p := 0; p < 12; p++ {
		for sq := 0; sq < 64; sq++ {
			zobristPiece[p][sq] = rng.next()
		}
	}
	for i := range zobristCastling {
		zobristCastling[i] = rng.next()
	}
	for i := range zobristEnPassant {
		zobristEnPassant[i] = rng.next()
	}
	zobristSideToMove = rng.next()
}

// Reproducible keys; xorshift64* with a fixed seed.
type prng struct{ state uint64 }

func newPRNG(seed uint64) *prng { return &prng{state: seed} }

func (p *prng) next() uint64 {
	p.state ^= p.state >> 12
	p.state ^= p.state << 25
	p.state ^= p.state >> 27
	return p.state * 0x2545F4914F6CDD1D
}

// posState is the structural part of a position: everything the hash covers.
type posState struct {
	pieces   [64]int8 // key-table index, -1 empty; sq = rank*8+file, rank 0 = rank 1
	side     byte     // 'w' or 'b'
	castling [4]bool  // K, Q, k, q
	epFile   int      // -1 when no en passant square
}

// parseFEN reads the first four FEN fields; move counters are ignored on
// purpose so positions differing only in clocks hash the same.
func parseFEN(fen string) (posState, error) {
	var st posState
	for i := range st.pieces {
		st.pieces[i] = -1
	}
	st.epFile = -1

	parts := strings.Fields(fen)
	if len(parts) < 4 {
		return st, fmt.Errorf("malformed FEN %q", fen)
	}

	ranks := strings.Split(parts[0], "/")
	if len(ranks) != 8 {
		return st, fmt.Errorf("malformed FEN board %q", parts[0])
	}
	for r, rankStr := range ranks {
		rank := 7 - r // FEN lists rank 8 first
		file := 0
		for _, ch := range rankStr {
			switch {
			case ch >= '1' && ch <= '8':
				file += int(ch - '0')
			default:
				idx := strings.IndexRune(pieceLetters, ch)
				if idx < 0 || file > 7 {
					return st, fmt.Errorf("bad FEN rank %q", rankStr)
				}
				st.pieces[rank*8+file] = int8(idx)
				file++
			}
		}
		if file != 8 {
			return st, fmt.Errorf("bad FEN rank %q", rankStr)
		}
	}

	switch parts[1] {
	case "w", "b":
		st.side = parts[1][0]
	default:
		return st, fmt.Errorf("bad FEN side %q", parts[1])
	}

	if parts[2] != "-" {
		for _, ch := range parts[2] {
			switch ch {
			case 'K':
				st.castling[0] = true
			case 'Q':
				st.castling[1] = true
			case 'k':
				st.castling[2] = true
			case 'q':
				st.castling[3] = true
			}
		}
	}

	if parts[3] != "-" {
		f := parts[3][0]
		if f < 'a' || f > 'h' {
			return st, fmt.Errorf("bad FEN en passant %q", parts[3])
		}
		st.epFile = int(f - 'a')
	}

	return st, nil
}

func (st posState) hash() uint64 {
	var h uint64
	for sq, p := range st.pieces {
		if p >= 0 {
			h ^= zobristPiece[p][sq]
		}
	}
	if st.side == 'b' {
		h ^= zobristSideToMove
	}
	for i, on := range st.castling {
		if on {
			h ^= zobristCastling[i]
		}
	}
	if st.epFile >= 0 {
		h ^= zobristEnPassant[st.epFile]
	}
	return h
}

// HashFEN computes the position hash from scratch.
func HashFEN(fen string) (uint64, error) {
	st, err := parseFEN(fen)
	if err != nil {
		return 0, err
	}
	return st.hash(), nil
}

// UpdateHash advances a hash across one move by XORing out the contributions
// that vanished (vacated squares, lost rights) and XORing in the new ones.
// Equivalent to HashFEN(after) but touches only what changed.
func UpdateHash(h uint64, beforeFEN, afterFEN string) (uint64, error) {
	before, err := parseFEN(beforeFEN)
	if err != nil {
		return 0, err
	}
	after, err := parseFEN(afterFEN)
	if err != nil {
		return 0, err
	}

	for sq := 0; sq < 64; sq++ {
		if before.pieces[sq] == after.pieces[sq] {
			continue
		}
		if p := before.pieces[sq]; p >= 0 {
			h ^= zobristPiece[p][sq]
		}
		if p := after.pieces[sq]; p >= 0 {
			h ^= zobristPiece[p][sq]
		}
	}
	if before.side != after.side {
		h ^= zobristSideToMove
	}
	for i := range before.castling {
		if before.castling[i] != after.castling[i] {
			h ^= zobristCastling[i]
		}
	}
	if before.epFile != after.epFile {
		if before.epFile >= 0 {
			h ^= zobristEnPassant[before.epFile]
		}
		if after.epFile >= 0 {
			h ^= zobristEnPassant[after.epFile]
		}
	}
	return h, nil
}
