package storage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id   TEXT PRIMARY KEY,
	elo  REAL NOT NULL DEFAULT 1500
);
CREATE TABLE IF NOT EXISTS matchmaking_players (
	id          TEXT PRIMARY KEY,
	elo         REAL NOT NULL,
	elo_range   REAL NOT NULL,
	start_time  TIMESTAMPTZ NOT NULL,
	board_setup TEXT NOT NULL
);`

// Postgres wraps the SQL store holding users and the matchmaking queue.
type Postgres struct {
	db *sqlx.DB
}

// OpenPostgres connects and pings.
func OpenPostgres(url string) (*Postgres, error) {
	db, err := sqlx.Connect("postgres", url)
	if err != nil {
		return nil, err
	}
	return &Postgres{db: db}, nil
}

// Close releases the connection pool.
func (p *Postgres) Close() error {
	return p.db.Close()
}

// EnsureSchema creates the tables when missing.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, schema)
	return err
}

// UserExists reports whether the id belongs to a known user.
func (p *Postgres) UserExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := p.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, id)
	return exists, err
}

// CreateUser inserts a user at the starting rating. Existing users are left
// untouched.
func (p *Postgres) CreateUser(ctx context.Context, id string) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO users (id, elo) VALUES ($1, 1500) ON CONFLICT DO NOTHING`, id)
	return err
}

// UserElo returns a user's rating.
func (p *Postgres) UserElo(ctx context.Context, id string) (float64, error) {
	var elo float64
	err := p.db.GetContext(ctx, &elo, `SELECT elo FROM users WHERE id = $1`, id)
	return elo, err
}

// QueueEntry is one row of the matchmaking queue. BoardSetup holds the
// serialized layout so the partner that completes the match can start the
// game without another round trip.
type QueueEntry struct {
	ID         string  `db:"id"`
	Elo        float64 `db:"elo"`
	EloRange   float64 `db:"elo_range"`
	BoardSetup string  `db:"board_setup"`
}

// Matchmake pairs the caller with the longest-waiting player whose rating
// window overlaps both ways. On a match both rows are deleted and the
// partner is returned; otherwise the caller is (re)enqueued and nil is
// returned. The whole exchange runs in one transaction, and the candidate
// row is locked with SKIP LOCKED so two callers cannot claim the same
// partner.
func (p *Postgres) Matchmake(ctx context.Context, self QueueEntry) (*QueueEntry, error) {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var partner QueueEntry
	err = tx.GetContext(ctx, &partner, `
		SELECT id, elo, elo_range, board_setup FROM matchmaking_players
		WHERE elo BETWEEN $1 AND $2
		  AND $3 BETWEEN elo - elo_range AND elo + elo_range
		  AND id != $4
		ORDER BY start_time ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED`,
		self.Elo-self.EloRange, self.Elo+self.EloRange, self.Elo, self.ID)
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM matchmaking_players WHERE id = $1`, self.ID); err != nil {
			return nil, err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO matchmaking_players (id, elo, elo_range, start_time, board_setup)
			 VALUES ($1, $2, $3, now(), $4)`,
			self.ID, self.Elo, self.EloRange, self.BoardSetup); err != nil {
			return nil, err
		}
		return nil, tx.Commit()
	}
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM matchmaking_players WHERE id = $1 OR id = $2`,
		partner.ID, self.ID); err != nil {
		return nil, err
	}
	return &partner, tx.Commit()
}

// UpdateEloRange widens the caller's queue row. It reports false when no row
// was updated, meaning a partner has matched with the caller in the
// meantime and the expansion must not re-enqueue them.
func (p *Postgres) UpdateEloRange(ctx context.Context, id string, eloRange float64) (bool, error) {
	res, err := p.db.ExecContext(ctx,
		`UPDATE matchmaking_players SET elo_range = $1 WHERE id = $2`, eloRange, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// LeaveQueue removes the caller's queue row, if any.
func (p *Postgres) LeaveQueue(ctx context.Context, id string) error {
	_, err := p.db.ExecContext(ctx,
		`DELETE FROM matchmaking_players WHERE id = $1`, id)
	return err
}
