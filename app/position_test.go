package app

import "testing"

func TestHashFENTranspositionProperty(t *testing.T) {
	// 1. e4 e5 2. Nf3 Nc6 and 1. Nf3 Nc6 2. e4 e5 reach the same position.
	viaKings := "r1bqkbnr/pppp1ppp/2n5/4p3/4P3/5N2/PPPP1PPP/RNBQKB1R w KQkq - 2 3"
	viaReti := "r1bqkbnr/pppp1ppp/2n5/4p3/4P3/5N2/PPPP1PPP/RNBQKB1R w KQkq - 4 3"

	h1, err := HashFEN(viaKings)
	if err != nil {
		t.Fatalf("HashFEN error: %v", err)
	}
	h2, err := HashFEN(viaReti)
	if err != nil {
		t.Fatalf("HashFEN error: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("transposition hashes differ: %x vs %x", h1, h2)
	}
}

func TestHashFENDistinguishesState(t *testing.T) {
	base := "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"
	cases := []struct {
		name string
		fen  string
	}{
		{"side to move", "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR b KQkq - 0 1"},
		{"castling rights", "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w Qkq - 0 1"},
		{"piece placement", "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR w KQkq - 0 1"},
	}

	h0, err := HashFEN(base)
	if err != nil {
		t.Fatalf("HashFEN(base) error: %v", err)
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h, err := HashFEN(tc.fen)
			if err != nil {
				t.Fatalf("HashFEN error: %v", err)
			}
			if h == h0 {
				t.Fatalf("hash should differ from base for %s", tc.name)
			}
		})
	}
}

func TestHashFENIgnoresMoveCounters(t *testing.T) {
	a := "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"
	b := "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 12 34"
	ha, _ := HashFEN(a)
	hb, _ := HashFEN(b)
	if ha != hb {
		t.Fatalf("clock fields should not affect the hash")
	}
}

func TestUpdateHashMatchesFullRecompute(t *testing.T) {
	// Walk 1. e4 c5 2. Nf3, checking the incremental hash at every step.
	fens := []string{
		"rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1",
		"rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1",
		"rnbqkbnr/pp1ppppp/8/2p5/4P3/8/PPPP1PPP/RNBQKBNR w KQkq c6 0 2",
		"rnbqkbnr/pp1ppppp/8/2p5/4P3/5N2/PPPP1PPP/RNBQKB1R b KQkq - 1 2",
	}

	h, err := HashFEN(fens[0])
	if err != nil {
		t.Fatalf("HashFEN error: %v", err)
	}
	for i := 1; i < len(fens); i++ {
		h, err = UpdateHash(h, fens[i-1], fens[i])
		if err != nil {
			t.Fatalf("UpdateHash step %d error: %v", i, err)
		}
		want, err := HashFEN(fens[i])
		if err != nil {
			t.Fatalf("HashFEN step %d error: %v", i, err)
		}
		if h != want {
			t.Fatalf("incremental hash diverged at step %d: %x vs %x", i, h, want)
		}
	}
}

func TestHashFENMalformed(t *testing.T) {
	for _, fen := range []string{"", "too short", "rnbqkbnr/pppppppp w KQkq -"} {
		if _, err := HashFEN(fen); err == nil {
			t.Fatalf("HashFEN(%q) should error", fen)
		}
	}
}
