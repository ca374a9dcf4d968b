package store

import (
	"context"
	"fmt"

	"github.com/smartcart/discovery/internal/errors"
)

// migrations run in order on startup. Each statement is idempotent so a
// partially applied run can be retried.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id             BIGSERIAL PRIMARY KEY,
		sku            TEXT UNIQUE,
		title          TEXT NOT NULL,
		description    TEXT NOT NULL DEFAULT '',
		category       TEXT NOT NULL DEFAULT '',
		subcategory    TEXT,
		brand          TEXT,
		features       JSONB NOT NULL DEFAULT '[]',
		price          DOUBLE PRECISION NOT NULL,
		original_price DOUBLE PRECISION,
		currency       TEXT NOT NULL DEFAULT 'USD',
		rating         DOUBLE PRECISION,
		review_count   INTEGER NOT NULL DEFAULT 0,
		availability   TEXT NOT NULL DEFAULT 'in_stock',
		stock_quantity INTEGER NOT NULL DEFAULT 0,
		image_url      TEXT,
		featured       BOOLEAN NOT NULL DEFAULT FALSE,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_products_category ON products (LOWER(category))`,
	`CREATE INDEX IF NOT EXISTS idx_products_featured ON products (featured) WHERE featured`,
	`CREATE INDEX IF NOT EXISTS idx_products_created_at ON products (created_at DESC)`,

	`CREATE TABLE IF NOT EXISTS embeddings (
		product_id  BIGINT PRIMARY KEY,
		vector      JSONB NOT NULL,
		source_text TEXT NOT NULL DEFAULT '',
		model       TEXT NOT NULL DEFAULT '',
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS sessions (
		id             TEXT PRIMARY KEY,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		last_active_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		expires_at     TIMESTAMPTZ NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS interactions (
		id         BIGSERIAL PRIMARY KEY,
		session_id TEXT NOT NULL,
		product_id BIGINT NOT NULL,
		kind       TEXT NOT NULL,
		query      TEXT,
		position   INTEGER,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_interactions_session ON interactions (session_id, created_at DESC, id DESC)`,

	`CREATE TABLE IF NOT EXISTS ranking_weights (
		id         BIGSERIAL PRIMARY KEY,
		name       TEXT NOT NULL,
		alpha      DOUBLE PRECISION NOT NULL,
		beta       DOUBLE PRECISION NOT NULL,
		gamma      DOUBLE PRECISION NOT NULL,
		delta      DOUBLE PRECISION NOT NULL,
		epsilon    DOUBLE PRECISION NOT NULL,
		active     BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_ranking_weights_active ON ranking_weights (active) WHERE active`,

	`CREATE TABLE IF NOT EXISTS search_logs (
		id               BIGSERIAL PRIMARY KEY,
		session_id       TEXT NOT NULL,
		query            TEXT NOT NULL,
		query_embedding  JSONB,
		result_count     INTEGER NOT NULL DEFAULT 0,
		response_time_ms BIGINT NOT NULL DEFAULT 0,
		filters          JSONB NOT NULL DEFAULT '{}',
		created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_search_logs_session ON search_logs (session_id, created_at DESC)`,

	`CREATE TABLE IF NOT EXISTS search_result_explanations (
		id             BIGSERIAL PRIMARY KEY,
		search_log_id  BIGINT NOT NULL REFERENCES search_logs (id) ON DELETE CASCADE,
		product_id     BIGINT NOT NULL,
		position       INTEGER NOT NULL,
		final_score    DOUBLE PRECISION NOT NULL,
		semantic_score DOUBLE PRECISION NOT NULL,
		rating_score   DOUBLE PRECISION NOT NULL,
		price_score    DOUBLE PRECISION NOT NULL,
		stock_score    DOUBLE PRECISION NOT NULL,
		recency_score  DOUBLE PRECISION NOT NULL,
		matched_terms  JSONB NOT NULL DEFAULT '[]',
		explanation    TEXT NOT NULL DEFAULT '',
		was_clicked    BOOLEAN NOT NULL DEFAULT FALSE,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_explanations_log ON search_result_explanations (search_log_id, position)`,

	`CREATE TABLE IF NOT EXISTS evaluation_metrics (
		id            BIGSERIAL PRIMARY KEY,
		search_log_id BIGINT,
		kind          TEXT NOT NULL,
		value         DOUBLE PRECISION NOT NULL,
		query_count   INTEGER,
		note          TEXT,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS catalog_upload_jobs (
		id            TEXT PRIMARY KEY,
		filename      TEXT NOT NULL,
		status        TEXT NOT NULL,
		total         INTEGER NOT NULL DEFAULT 0,
		processed     INTEGER NOT NULL DEFAULT 0,
		embedded      INTEGER NOT NULL DEFAULT 0,
		error_message TEXT,
		started_at    TIMESTAMPTZ NOT NULL,
		completed_at  TIMESTAMPTZ
	)`,
}

// legacyRenames backfills column names left behind by earlier schema
// revisions that used camelCase. Each rename is guarded so a fresh database
// skips them silently.
var legacyRenames = []struct{ table, from, to string }{
	{"products", "reviewCount", "review_count"},
	{"products", "stockQuantity", "stock_quantity"},
	{"products", "imageUrl", "image_url"},
	{"search_logs", "responseTimeMs", "response_time_ms"},
	{"search_logs", "resultCount", "result_count"},
}

// Migrate applies the schema. Failure is fatal to startup; the process exits
// with the migration exit code rather than serving against a broken schema.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	for i, stmt := range migrations {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return errors.New(errors.ErrCodeMigrationFailed,
				fmt.Sprintf("migration %d failed", i+1), err)
		}
	}

	for _, ren := range legacyRenames {
		stmt := fmt.Sprintf(`DO $$ BEGIN
			IF EXISTS (SELECT 1 FROM information_schema.columns
				WHERE table_name = '%s' AND column_name = '%s') THEN
				ALTER TABLE %s RENAME COLUMN "%s" TO %s;
			END IF;
		END $$`, ren.table, ren.from, ren.table, ren.from, ren.to)
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return errors.New(errors.ErrCodeMigrationFailed,
				fmt.Sprintf("legacy column rename %s.%s failed", ren.table, ren.from), err)
		}
	}
	return nil
}
