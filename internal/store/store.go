// Package store implements the persistent store (PS) of spec.md §4.2: a
// single-writer SQLite-backed relational store with four tables (bindings,
// votes, vote_changes, pools).
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// ErrNotFound is returned by read methods when no row matches.
var ErrNotFound = errors.New("store: not found")

// ErrStaleBlock is returned by UpsertVote when the submitted block_number is
// not newer than the stored one (spec.md §4.2).
var ErrStaleBlock = errors.New("store: stale block")

// ErrAlreadyExists is returned by UpsertBinding when an identical binding is
// already present (spec.md §4.6, surfaced by the caller as AlreadyExists).
var ErrAlreadyExists = errors.New("store: binding already exists")

// Store wraps a *sql.DB implementing the four relations of spec.md §3.
// Writes are serialized through writeMu in addition to SQLite's own file
// locking, because the mattn/go-sqlite3 driver returns SQLITE_BUSY under
// concurrent writers even in WAL mode if two goroutines race past a
// table-level check; spec.md §5 treats PS as single-writer regardless.
type Store struct {
	db      *sql.DB
	log     *logrus.Logger
	writeMu sync.Mutex
}

// Open creates (if needed) and opens the SQLite database at path, applies
// the schema, and returns a ready Store.
func Open(path string, log *logrus.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	if log == nil {
		log = logrus.New()
	}
	return &Store{db: db, log: log}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

func marshalPools(p []PoolWeight) (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalPools(raw string) ([]PoolWeight, error) {
	var p []PoolWeight
	if raw == "" {
		return p, nil
	}
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, err
	}
	return p, nil
}

func poolsEqual(a, b []PoolWeight) bool {
	aj, _ := marshalPools(a)
	bj, _ := marshalPools(b)
	return aj == bj
}

// GetVote returns the current vote for voter, or ErrNotFound.
func (s *Store) GetVote(ctx context.Context, voter string) (*Vote, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT voter, pools, signature, message, block_number, total_weight, updated_at
		 FROM votes WHERE voter = ?`, voter)
	var v Vote
	var poolsRaw string
	if err := row.Scan(&v.Voter, &poolsRaw, &v.Signature, &v.Message, &v.BlockNumber, &v.TotalWeight, &v.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get vote: %w", err)
	}
	pools, err := unmarshalPools(poolsRaw)
	if err != nil {
		return nil, fmt.Errorf("decode pools: %w", err)
	}
	v.Pools = pools
	return &v, nil
}

// ListVotes returns every current vote, ordered by voter for determinism.
func (s *Store) ListVotes(ctx context.Context) ([]Vote, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT voter, pools, signature, message, block_number, total_weight, updated_at
		 FROM votes ORDER BY voter`)
	if err != nil {
		return nil, fmt.Errorf("list votes: %w", err)
	}
	defer rows.Close()

	var out []Vote
	for rows.Next() {
		var v Vote
		var poolsRaw string
		if err := rows.Scan(&v.Voter, &poolsRaw, &v.Signature, &v.Message, &v.BlockNumber, &v.TotalWeight, &v.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan vote: %w", err)
		}
		pools, err := unmarshalPools(poolsRaw)
		if err != nil {
			return nil, fmt.Errorf("decode pools: %w", err)
		}
		v.Pools = pools
		out = append(out, v)
	}
	return out, rows.Err()
}

// UpsertVote inserts or updates the current vote for voter, per spec.md
// §4.2. It rejects with ErrStaleBlock if a row already exists whose stored
// block_number is greater than or equal to the submitted one. isNew
// reports whether this was the voter's first vote; UpsertVote itself logs
// NEW-VOTE for a first vote and OVERWRITE for a replaced one.
func (s *Store) UpsertVote(ctx context.Context, voter string, pools []PoolWeight, sig, msg string, blockNumber int64, totalWeight int) (isNew bool, err error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	poolsRaw, err := marshalPools(pools)
	if err != nil {
		return false, fmt.Errorf("encode pools: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var existingBlock int64
	var existingPoolsRaw string
	err = tx.QueryRowContext(ctx, `SELECT block_number, pools FROM votes WHERE voter = ?`, voter).
		Scan(&existingBlock, &existingPoolsRaw)

	now := time.Now().Unix()
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO votes(voter, pools, signature, message, block_number, total_weight, updated_at)
			 VALUES (?,?,?,?,?,?,?)`, voter, poolsRaw, sig, msg, blockNumber, totalWeight, now); err != nil {
			return false, fmt.Errorf("insert vote: %w", err)
		}
		s.log.WithFields(logrus.Fields{"voter": voter, "block": blockNumber}).Info("NEW-VOTE")
		isNew = true
	case err != nil:
		return false, fmt.Errorf("lookup vote: %w", err)
	default:
		if existingBlock >= blockNumber {
			return false, ErrStaleBlock
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE votes SET pools=?, signature=?, message=?, block_number=?, total_weight=?, updated_at=?
			 WHERE voter=?`, poolsRaw, sig, msg, blockNumber, totalWeight, now, voter); err != nil {
			return false, fmt.Errorf("update vote: %w", err)
		}
		s.log.WithFields(logrus.Fields{"voter": voter, "old_pools": existingPoolsRaw, "new_pools": poolsRaw}).Info("OVERWRITE")
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit vote: %w", err)
	}
	return isNew, nil
}

// LatestVoteChange returns the vote-change row with the greatest
// change_timestamp for voter, or ErrNotFound if none exists.
func (s *Store) LatestVoteChange(ctx context.Context, voter string) (*VoteChange, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, voter, old_pools, new_pools, change_timestamp, cooldown_until, change_count
		 FROM vote_changes WHERE voter = ? ORDER BY change_timestamp DESC LIMIT 1`, voter)
	return scanVoteChange(row)
}

func scanVoteChange(row *sql.Row) (*VoteChange, error) {
	var vc VoteChange
	var oldRaw, newRaw string
	if err := row.Scan(&vc.ID, &vc.Voter, &oldRaw, &newRaw, &vc.ChangeTimestamp, &vc.CooldownUntil, &vc.ChangeCount); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get vote change: %w", err)
	}
	old, err := unmarshalPools(oldRaw)
	if err != nil {
		return nil, fmt.Errorf("decode old_pools: %w", err)
	}
	nw, err := unmarshalPools(newRaw)
	if err != nil {
		return nil, fmt.Errorf("decode new_pools: %w", err)
	}
	vc.OldPools, vc.NewPools = old, nw
	return &vc, nil
}

// RecordVoteChange appends a vote-change row, per spec.md §4.4. changeCount
// is supplied by the caller (internal/cooldown computes it) rather than
// recomputed here, keeping this method a pure append.
func (s *Store) RecordVoteChange(ctx context.Context, voter string, oldPools, newPools []PoolWeight, changeCount int, cooldownUntil time.Time) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	oldRaw, err := marshalPools(oldPools)
	if err != nil {
		return fmt.Errorf("encode old_pools: %w", err)
	}
	newRaw, err := marshalPools(newPools)
	if err != nil {
		return fmt.Errorf("encode new_pools: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO vote_changes(voter, old_pools, new_pools, change_timestamp, cooldown_until, change_count)
		 VALUES (?,?,?,?,?,?)`, voter, oldRaw, newRaw, time.Now().Unix(), cooldownUntil.Unix(), changeCount)
	if err != nil {
		return fmt.Errorf("insert vote change: %w", err)
	}
	return nil
}

// CleanupExpiredCooldowns deletes vote-change rows whose cooldown_until has
// already passed, per spec.md §4.4, and returns the number of rows removed.
func (s *Store) CleanupExpiredCooldowns(ctx context.Context) (int64, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM vote_changes WHERE cooldown_until < ?`, time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("cleanup cooldowns: %w", err)
	}
	return res.RowsAffected()
}

// VoteHistory returns every vote-change row for voter, most recent first.
func (s *Store) VoteHistory(ctx context.Context, voter string) ([]VoteChange, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, voter, old_pools, new_pools, change_timestamp, cooldown_until, change_count
		 FROM vote_changes WHERE voter = ? ORDER BY change_timestamp DESC`, voter)
	if err != nil {
		return nil, fmt.Errorf("vote history: %w", err)
	}
	defer rows.Close()

	var out []VoteChange
	for rows.Next() {
		var vc VoteChange
		var oldRaw, newRaw string
		if err := rows.Scan(&vc.ID, &vc.Voter, &oldRaw, &newRaw, &vc.ChangeTimestamp, &vc.CooldownUntil, &vc.ChangeCount); err != nil {
			return nil, fmt.Errorf("scan vote change: %w", err)
		}
		old, err := unmarshalPools(oldRaw)
		if err != nil {
			return nil, err
		}
		nw, err := unmarshalPools(newRaw)
		if err != nil {
			return nil, err
		}
		vc.OldPools, vc.NewPools = old, nw
		out = append(out, vc)
	}
	return out, rows.Err()
}

// UpsertBinding creates or updates the identity binding for voter<->external,
// per spec.md §4.6. If an identical binding already exists, ErrAlreadyExists
// is returned and the caller should surface this as a successful no-op.
func (s *Store) UpsertBinding(ctx context.Context, voter, external string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	existing, err := s.getBindingByVoterLocked(ctx, voter)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	if err == nil && existing.External == external {
		return ErrAlreadyExists
	}

	now := time.Now().Unix()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO bindings(voter, external, updated_at) VALUES (?,?,?)
		 ON CONFLICT(voter) DO UPDATE SET external=excluded.external, updated_at=excluded.updated_at`,
		voter, external, now)
	if err != nil {
		return fmt.Errorf("upsert binding: %w", err)
	}
	return nil
}

func (s *Store) getBindingByVoterLocked(ctx context.Context, voter string) (*Binding, error) {
	row := s.db.QueryRowContext(ctx, `SELECT voter, external, updated_at FROM bindings WHERE voter = ?`, voter)
	var b Binding
	if err := row.Scan(&b.Voter, &b.External, &b.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get binding: %w", err)
	}
	return &b, nil
}

// GetBindingByVoter returns the binding for voter, or ErrNotFound.
func (s *Store) GetBindingByVoter(ctx context.Context, voter string) (*Binding, error) {
	return s.getBindingByVoterLocked(ctx, voter)
}

// GetBindingByExternal returns the binding for external, or ErrNotFound.
func (s *Store) GetBindingByExternal(ctx context.Context, external string) (*Binding, error) {
	row := s.db.QueryRowContext(ctx, `SELECT voter, external, updated_at FROM bindings WHERE external = ?`, external)
	var b Binding
	if err := row.Scan(&b.Voter, &b.External, &b.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get binding: %w", err)
	}
	return &b, nil
}

// ListBindings returns every binding, ordered by voter.
func (s *Store) ListBindings(ctx context.Context) ([]Binding, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT voter, external, updated_at FROM bindings ORDER BY voter`)
	if err != nil {
		return nil, fmt.Errorf("list bindings: %w", err)
	}
	defer rows.Close()
	var out []Binding
	for rows.Next() {
		var b Binding
		if err := rows.Scan(&b.Voter, &b.External, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan binding: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// UpsertPool lazily inserts or refreshes cached pool metadata, per spec.md
// §4.5 step 7.
func (s *Store) UpsertPool(ctx context.Context, p Pool) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	now := time.Now().Unix()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pools(address, token0, token1, fee, liquidity, symbol0, symbol1, updated_at)
		 VALUES (?,?,?,?,?,?,?,?)
		 ON CONFLICT(address) DO UPDATE SET
		   token0=excluded.token0, token1=excluded.token1, fee=excluded.fee,
		   liquidity=excluded.liquidity, symbol0=excluded.symbol0, symbol1=excluded.symbol1,
		   updated_at=excluded.updated_at`,
		p.Address, p.Token0, p.Token1, p.Fee, p.Liquidity, p.Symbol0, p.Symbol1, now)
	if err != nil {
		return fmt.Errorf("upsert pool: %w", err)
	}
	return nil
}

// GetPool returns cached metadata for address, or ErrNotFound.
func (s *Store) GetPool(ctx context.Context, address string) (*Pool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT address, token0, token1, fee, liquidity, symbol0, symbol1, updated_at
		 FROM pools WHERE address = ?`, address)
	var p Pool
	if err := row.Scan(&p.Address, &p.Token0, &p.Token1, &p.Fee, &p.Liquidity, &p.Symbol0, &p.Symbol1, &p.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get pool: %w", err)
	}
	return &p, nil
}

// ListPools returns every cached pool.
func (s *Store) ListPools(ctx context.Context) ([]Pool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT address, token0, token1, fee, liquidity, symbol0, symbol1, updated_at FROM pools ORDER BY address`)
	if err != nil {
		return nil, fmt.Errorf("list pools: %w", err)
	}
	defer rows.Close()
	var out []Pool
	for rows.Next() {
		var p Pool
		if err := rows.Scan(&p.Address, &p.Token0, &p.Token1, &p.Fee, &p.Liquidity, &p.Symbol0, &p.Symbol1, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan pool: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// HasPoolsChanged reports whether newPools differs from the voter's
// currently stored pools (spec.md §4.5 step 10's has_change computation).
// A voter with no current vote is reported as changed.
func (s *Store) HasPoolsChanged(ctx context.Context, voter string, newPools []PoolWeight) (bool, *Vote, error) {
	current, err := s.GetVote(ctx, voter)
	if errors.Is(err, ErrNotFound) {
		return true, nil, nil
	}
	if err != nil {
		return false, nil, err
	}
	return !poolsEqual(current.Pools, newPools), current, nil
}
