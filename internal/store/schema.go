package store

// schema is applied once at startup by Open with a single Exec (no explicit
// transaction); every statement is IF NOT EXISTS. It is kept
// as an embedded string rather than a separate migration tool, matching the
// teacher's preference for self-contained startup sequences.
const schema = `
CREATE TABLE IF NOT EXISTS bindings (
	voter       TEXT NOT NULL,
	external    TEXT NOT NULL,
	updated_at  INTEGER NOT NULL,
	UNIQUE(voter),
	UNIQUE(external)
);

CREATE TABLE IF NOT EXISTS votes (
	voter         TEXT NOT NULL UNIQUE,
	pools         TEXT NOT NULL,
	signature     TEXT NOT NULL,
	message       TEXT NOT NULL,
	block_number  INTEGER NOT NULL,
	total_weight  INTEGER NOT NULL,
	updated_at    INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS vote_changes (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	voter             TEXT NOT NULL,
	old_pools         TEXT NOT NULL,
	new_pools         TEXT NOT NULL,
	change_timestamp  INTEGER NOT NULL,
	cooldown_until    INTEGER NOT NULL,
	change_count      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_vote_changes_voter_ts
	ON vote_changes(voter, change_timestamp DESC);

CREATE TABLE IF NOT EXISTS pools (
	address     TEXT NOT NULL UNIQUE,
	token0      TEXT NOT NULL,
	token1      TEXT NOT NULL,
	fee         INTEGER NOT NULL,
	liquidity   TEXT NOT NULL DEFAULT '0',
	symbol0     TEXT NOT NULL DEFAULT '',
	symbol1     TEXT NOT NULL DEFAULT '',
	updated_at  INTEGER NOT NULL
);
`
