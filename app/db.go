package app

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/lib/pq"

	"github.com/tidypy/Tidypy-Chess-Rep-Builder/app/config"
	"github.com/tidypy/Tidypy-Chess-Rep-Builder/app/models"
)

var db *sql.DB

// MustInitDB initializes the global db and logs fatally on error. When no
// Postgres URL is configured the repertoire is simply not persisted.
func MustInitDB() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if cfg.DB.URL == "" {
		log.Println("No POSTGRES_URL set; repertoire persistence disabled")
		return
	}

	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%s",
		cfg.DB.Username,
		cfg.DB.Password,
		cfg.DB.URL,
		cfg.DB.Port,
	)

	d, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("sql.Open: %v", err)
	}
	if err := d.Ping(); err != nil {
		log.Fatalf("db.Ping: %v", err)
	}

	log.Println("Connected to Postgres")
	db = d
}

// SaveRepertoire bulk-loads grafted lines through a temp staging table, then
// upserts into repertoire_lines keyed by (position, move).
func SaveRepertoire(ctx context.Context, runID string, entries []models.RepertoireEntry) error {
	if db == nil {
		// Allow runs without a backing DB.
		return nil
	}
	if len(entries) == 0 {
		return nil
	}

	tx, err := db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		CREATE TEMP TABLE tmp_repertoire (
			run_id        TEXT,
			position_fen  TEXT,
			position_hash BIGINT,
			ply           INT,
			move_uci      TEXT,
			move_san      TEXT,
			rank          INT,
			cp            INT,
			mate          INT,
			depth         INT,
			blunder       BOOLEAN,
			game_index    INT
		) ON COMMIT DROP;
	`)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn(
		"tmp_repertoire",
		"run_id",
		"position_fen",
		"position_hash",
		"ply",
		"move_uci",
		"move_san",
		"rank",
		"cp",
		"mate",
		"depth",
		"blunder",
		"game_index",
	))
	if err != nil {
		return err
	}

	for _, e := range entries {
		var cp, mate interface{}
		if e.CP != nil {
			cp = *e.CP
		}
		if e.Mate != nil {
			mate = *e.Mate
		}
		if _, err := stmt.Exec(
			runID,
			e.PositionFEN,
			int64(e.Hash), // BIGINT is signed; reinterpreted on read
			e.Ply,
			e.MoveUCI,
			e.MoveSAN,
			e.Rank,
			cp,
			mate,
			e.Depth,
			e.Blunder,
			e.GameIndex,
		); err != nil {
			return err
		}
	}
	if _, err := stmt.Exec(); err != nil {
		return err
	}
	if err := stmt.Close(); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO repertoire_lines (
			run_id, position_fen, position_hash, ply, move_uci, move_san,
			rank, cp, mate, depth, blunder, game_index
		)
		SELECT run_id, position_fen, position_hash, ply, move_uci, move_san,
			rank, cp, mate, depth, blunder, game_index
		FROM tmp_repertoire
		ON CONFLICT (position_hash, move_uci) DO UPDATE SET
			run_id  = EXCLUDED.run_id,
			rank    = EXCLUDED.rank,
			cp      = EXCLUDED.cp,
			mate    = EXCLUDED.mate,
			depth   = EXCLUDED.depth,
			blunder = EXCLUDED.blunder
		WHERE repertoire_lines.depth <= EXCLUDED.depth;
	`)
	if err != nil {
		return err
	}

	return tx.Commit()
}
