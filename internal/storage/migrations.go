package storage

// schema contains the DDL shared by the sqlite and postgres drivers.
// Each statement uses IF NOT EXISTS for idempotency.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS social_accounts (
		id               TEXT PRIMARY KEY,
		owner_id         BIGINT NOT NULL,
		platform         TEXT NOT NULL,
		page_id          TEXT,
		access_token     TEXT NOT NULL,
		refresh_token    TEXT,
		token_expires_at BIGINT,
		created_at       BIGINT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS scheduled_posts (
		id                TEXT PRIMARY KEY,
		owner_id          BIGINT NOT NULL,
		social_account_id TEXT NOT NULL REFERENCES social_accounts(id) ON DELETE CASCADE,
		platform          TEXT NOT NULL,
		content           TEXT NOT NULL,
		media_url         TEXT,
		scheduled_at      BIGINT NOT NULL,
		status            TEXT NOT NULL DEFAULT 'scheduled',
		error_message     TEXT,
		created_at        BIGINT NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_posts_due ON scheduled_posts(status, scheduled_at)`,
	`CREATE INDEX IF NOT EXISTS idx_posts_owner ON scheduled_posts(owner_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_posts_account ON scheduled_posts(social_account_id, status)`,
	`CREATE INDEX IF NOT EXISTS idx_accounts_owner ON social_accounts(owner_id)`,
}
