package store

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"math"
	"net"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/smartcart/discovery/internal/catalog"
	"github.com/smartcart/discovery/internal/errors"
)

// PostgresRepository implements Repository on Postgres via sqlx.
type PostgresRepository struct {
	db *sqlx.DB
}

// Verify interface implementation at compile time.
var _ Repository = (*PostgresRepository)(nil)

// PostgresConfig tunes the connection pool.
type PostgresConfig struct {
	MaxConnections  int
	IdleConnections int
	MaxLifetime     time.Duration
}

// NewPostgresRepository opens a connection pool to the given DATABASE_URL and
// verifies connectivity.
func NewPostgresRepository(ctx context.Context, databaseURL string, cfg PostgresConfig) (*PostgresRepository, error) {
	if cfg.MaxConnections == 0 {
		cfg.MaxConnections = 25
	}
	if cfg.IdleConnections == 0 {
		cfg.IdleConnections = 5
	}
	if cfg.MaxLifetime == 0 {
		cfg.MaxLifetime = 5 * time.Minute
	}

	db, err := sqlx.Open("postgres", databaseURL)
	if err != nil {
		return nil, errors.New(errors.ErrCodeRepoUnavailable, "failed to open database", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.IdleConnections)
	db.SetConnMaxLifetime(cfg.MaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, errors.New(errors.ErrCodeRepoUnavailable, "database unreachable", err)
	}

	return &PostgresRepository{db: db}, nil
}

// NewPostgresRepositoryFromDB wraps an existing connection. Used by tests.
func NewPostgresRepositoryFromDB(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: sqlx.NewDb(db, "postgres")}
}

// wrapDBError maps a driver error onto a typed repository error.
func wrapDBError(op string, err error) error {
	if err == nil {
		return nil
	}
	if stderrors.Is(err, sql.ErrNoRows) {
		return err // callers translate to their entity's NotFound
	}

	var pqErr *pq.Error
	if stderrors.As(err, &pqErr) {
		// 23505 unique_violation
		if pqErr.Code == "23505" {
			return errors.New(errors.ErrCodeDuplicateSKU,
				fmt.Sprintf("%s: %s", op, pqErr.Detail), err)
		}
	}

	var netErr net.Error
	if stderrors.As(err, &netErr) || stderrors.Is(err, sql.ErrConnDone) {
		return errors.New(errors.ErrCodeRepoUnavailable, op+": database unreachable", err)
	}

	return errors.New(errors.ErrCodeRepoUnavailable, op+": "+err.Error(), err)
}

// productColumns is the select list shared by all product queries.
const productColumns = `id, sku, title, description, category, subcategory, brand,
	features, price, original_price, currency, rating, review_count,
	availability, stock_quantity, image_url, featured, created_at, updated_at`

// productRow mirrors the products table for sqlx scanning.
type productRow struct {
	ID            int64           `db:"id"`
	SKU           sql.NullString  `db:"sku"`
	Title         string          `db:"title"`
	Description   string          `db:"description"`
	Category      string          `db:"category"`
	Subcategory   sql.NullString  `db:"subcategory"`
	Brand         sql.NullString  `db:"brand"`
	Features      []byte          `db:"features"`
	Price         float64         `db:"price"`
	OriginalPrice sql.NullFloat64 `db:"original_price"`
	Currency      string          `db:"currency"`
	Rating        sql.NullFloat64 `db:"rating"`
	ReviewCount   int             `db:"review_count"`
	Availability  string          `db:"availability"`
	StockQuantity int             `db:"stock_quantity"`
	ImageURL      sql.NullString  `db:"image_url"`
	Featured      bool            `db:"featured"`
	CreatedAt     time.Time       `db:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at"`
}

func (r *productRow) toProduct() (*catalog.Product, error) {
	p := &catalog.Product{
		ID:            r.ID,
		SKU:           r.SKU.String,
		Title:         r.Title,
		Description:   r.Description,
		Category:      r.Category,
		Subcategory:   r.Subcategory.String,
		Brand:         r.Brand.String,
		Price:         r.Price,
		Currency:      r.Currency,
		ReviewCount:   r.ReviewCount,
		Availability:  catalog.Availability(r.Availability),
		StockQuantity: r.StockQuantity,
		ImageURL:      r.ImageURL.String,
		Featured:      r.Featured,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
	if r.OriginalPrice.Valid {
		v := r.OriginalPrice.Float64
		p.OriginalPrice = &v
	}
	if r.Rating.Valid {
		v := r.Rating.Float64
		p.Rating = &v
	}
	if len(r.Features) > 0 {
		if err := json.Unmarshal(r.Features, &p.Features); err != nil {
			return nil, errors.Internal("corrupt features list", err).
				WithDetail("product_id", fmt.Sprintf("%d", r.ID))
		}
	}
	return p, nil
}

func rowsToProducts(rows []productRow) ([]catalog.Product, error) {
	out := make([]catalog.Product, 0, len(rows))
	for i := range rows {
		p, err := rows[i].toProduct()
		if err != nil {
			// A single corrupt row is skipped, not fatal to the query.
			slog.Warn("skipping corrupt product row", "product_id", rows[i].ID, "error", err)
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}

// CreateProduct inserts a product and fills in its assigned id.
func (r *PostgresRepository) CreateProduct(ctx context.Context, p *catalog.Product) error {
	if err := p.Validate(); err != nil {
		return err
	}
	features, err := json.Marshal(p.Features)
	if err != nil {
		return errors.Internal("marshal features", err)
	}

	row := r.db.QueryRowxContext(ctx, `
		INSERT INTO products (sku, title, description, category, subcategory, brand,
			features, price, original_price, currency, rating, review_count,
			availability, stock_quantity, image_url, featured, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,NOW(),NOW())
		RETURNING id, created_at, updated_at`,
		nullString(p.SKU), p.Title, p.Description, p.Category,
		nullString(p.Subcategory), nullString(p.Brand), features, p.Price,
		p.OriginalPrice, defaultCurrency(p.Currency), p.Rating, p.ReviewCount,
		string(availabilityOrDefault(p.Availability)), p.StockQuantity,
		nullString(p.ImageURL), p.Featured)

	if err := row.Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return wrapDBError("create product", err)
	}
	return nil
}

// UpdateProduct rewrites a product row by id.
func (r *PostgresRepository) UpdateProduct(ctx context.Context, p *catalog.Product) error {
	if err := p.Validate(); err != nil {
		return err
	}
	features, err := json.Marshal(p.Features)
	if err != nil {
		return errors.Internal("marshal features", err)
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE products SET sku=$2, title=$3, description=$4, category=$5,
			subcategory=$6, brand=$7, features=$8, price=$9, original_price=$10,
			currency=$11, rating=$12, review_count=$13, availability=$14,
			stock_quantity=$15, image_url=$16, featured=$17, updated_at=NOW()
		WHERE id=$1`,
		p.ID, nullString(p.SKU), p.Title, p.Description, p.Category,
		nullString(p.Subcategory), nullString(p.Brand), features, p.Price,
		p.OriginalPrice, defaultCurrency(p.Currency), p.Rating, p.ReviewCount,
		string(availabilityOrDefault(p.Availability)), p.StockQuantity,
		nullString(p.ImageURL), p.Featured)
	if err != nil {
		return wrapDBError("update product", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NotFound(errors.ErrCodeProductNotFound, "product", p.ID)
	}

	// A vector embedded from different descriptive text is stale; drop it so
	// the next embedding pass recreates it.
	_, err = r.db.ExecContext(ctx,
		`DELETE FROM embeddings WHERE product_id=$1 AND source_text <> $2`,
		p.ID, catalog.TruncateText(p.SearchText()))
	if err != nil {
		return wrapDBError("invalidate stale embedding", err)
	}
	return nil
}

// DeleteProduct removes a product. Its embedding and explanations are weak
// references and go with it.
func (r *PostgresRepository) DeleteProduct(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM products WHERE id=$1`, id)
	if err != nil {
		return wrapDBError("delete product", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NotFound(errors.ErrCodeProductNotFound, "product", id)
	}
	_, _ = r.db.ExecContext(ctx, `DELETE FROM embeddings WHERE product_id=$1`, id)
	return nil
}

// GetProduct fetches one product by id.
func (r *PostgresRepository) GetProduct(ctx context.Context, id int64) (*catalog.Product, error) {
	var row productRow
	err := r.db.GetContext(ctx, &row,
		`SELECT `+productColumns+` FROM products WHERE id=$1`, id)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NotFound(errors.ErrCodeProductNotFound, "product", id)
	}
	if err != nil {
		return nil, wrapDBError("get product", err)
	}
	return row.toProduct()
}

// RecentProducts returns the newest products, the bounded candidate set for
// ranking.
func (r *PostgresRepository) RecentProducts(ctx context.Context, limit int) ([]catalog.Product, error) {
	var rows []productRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT `+productColumns+` FROM products ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, wrapDBError("recent products", err)
	}
	return rowsToProducts(rows)
}

// FeaturedProducts returns featured products ordered by rating descending,
// the cold-start and trending source.
func (r *PostgresRepository) FeaturedProducts(ctx context.Context, limit int) ([]catalog.Product, error) {
	var rows []productRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT `+productColumns+` FROM products WHERE featured
		 ORDER BY rating DESC NULLS LAST, id ASC LIMIT $1`, limit)
	if err != nil {
		return nil, wrapDBError("featured products", err)
	}
	return rowsToProducts(rows)
}

// ProductsByCategory returns products in a category, excluding none.
func (r *PostgresRepository) ProductsByCategory(ctx context.Context, category string, limit int) ([]catalog.Product, error) {
	var rows []productRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT `+productColumns+` FROM products WHERE LOWER(category)=LOWER($1)
		 ORDER BY rating DESC NULLS LAST, id ASC LIMIT $2`, category, limit)
	if err != nil {
		return nil, wrapDBError("products by category", err)
	}
	return rowsToProducts(rows)
}

// KeywordSearch returns products whose title, description, or category
// contain the query as a substring. This backs the search fallback path.
func (r *PostgresRepository) KeywordSearch(ctx context.Context, query string, limit int) ([]catalog.Product, error) {
	pattern := "%" + query + "%"
	var rows []productRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT `+productColumns+` FROM products
		 WHERE title ILIKE $1 OR description ILIKE $1 OR category ILIKE $1
		 ORDER BY rating DESC NULLS LAST, id ASC LIMIT $2`, pattern, limit)
	if err != nil {
		return nil, wrapDBError("keyword search", err)
	}
	return rowsToProducts(rows)
}

// ProductsMissingEmbedding returns products without a stored vector, used by
// batch embedding jobs.
func (r *PostgresRepository) ProductsMissingEmbedding(ctx context.Context, limit int) ([]catalog.Product, error) {
	var rows []productRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT `+productColumns+` FROM products p
		 WHERE NOT EXISTS (SELECT 1 FROM embeddings e WHERE e.product_id = p.id)
		 ORDER BY p.id ASC LIMIT $1`, limit)
	if err != nil {
		return nil, wrapDBError("products missing embedding", err)
	}
	return rowsToProducts(rows)
}

// UpsertEmbedding stores a product vector, keyed uniquely by product id.
// The vector is persisted as a JSON array of floats.
func (r *PostgresRepository) UpsertEmbedding(ctx context.Context, e *catalog.Embedding) error {
	vector, err := json.Marshal(e.Vector)
	if err != nil {
		return errors.Internal("marshal embedding vector", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO embeddings (product_id, vector, source_text, model, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (product_id) DO UPDATE
		SET vector=EXCLUDED.vector, source_text=EXCLUDED.source_text,
		    model=EXCLUDED.model, updated_at=NOW()`,
		e.ProductID, vector, catalog.TruncateText(e.SourceText), e.Model)
	if err != nil {
		return wrapDBError("upsert embedding", err)
	}
	return nil
}

type embeddingRow struct {
	ProductID  int64     `db:"product_id"`
	Vector     []byte    `db:"vector"`
	SourceText string    `db:"source_text"`
	Model      string    `db:"model"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

func (r *embeddingRow) toEmbedding() (*catalog.Embedding, error) {
	e := &catalog.Embedding{
		ProductID:  r.ProductID,
		SourceText: r.SourceText,
		Model:      r.Model,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
	if err := json.Unmarshal(r.Vector, &e.Vector); err != nil {
		return nil, errors.Internal("corrupt embedding vector", err).
			WithDetail("product_id", fmt.Sprintf("%d", r.ProductID))
	}
	return e, nil
}

// GetEmbedding fetches a product's stored vector.
func (r *PostgresRepository) DeleteEmbedding(ctx context.Context, productID int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM embeddings WHERE product_id=$1`, productID)
	if err != nil {
		return wrapDBError("delete embedding", err)
	}
	return nil
}

func (r *PostgresRepository) GetEmbedding(ctx context.Context, productID int64) (*catalog.Embedding, error) {
	var row embeddingRow
	err := r.db.GetContext(ctx, &row,
		`SELECT product_id, vector, source_text, model, created_at, updated_at
		 FROM embeddings WHERE product_id=$1`, productID)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NotFound(errors.ErrCodeProductNotFound, "embedding for product", productID)
	}
	if err != nil {
		return nil, wrapDBError("get embedding", err)
	}
	return row.toEmbedding()
}

// AllEmbeddings streams every stored embedding, used to build the vector
// index at startup.
func (r *PostgresRepository) AllEmbeddings(ctx context.Context) ([]catalog.Embedding, error) {
	var rows []embeddingRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT product_id, vector, source_text, model, created_at, updated_at
		 FROM embeddings ORDER BY product_id ASC`)
	if err != nil {
		return nil, wrapDBError("all embeddings", err)
	}

	out := make([]catalog.Embedding, 0, len(rows))
	for i := range rows {
		e, err := rows[i].toEmbedding()
		if err != nil {
			slog.Warn("skipping corrupt embedding row", "product_id", rows[i].ProductID, "error", err)
			continue
		}
		out = append(out, *e)
	}
	return out, nil
}

// TouchSession creates the session row on first contact with the default
// 30-day expiry, or bumps last_active_at on an existing one.
func (r *PostgresRepository) TouchSession(ctx context.Context, id string, now time.Time) (*catalog.Session, error) {
	var s catalog.Session
	err := r.db.GetContext(ctx, &s, `
		INSERT INTO sessions (id, created_at, last_active_at, expires_at)
		VALUES ($1, $2, $2, $3)
		ON CONFLICT (id) DO UPDATE SET last_active_at=$2
		RETURNING id, created_at, last_active_at, expires_at`,
		id, now, now.Add(catalog.SessionTTL))
	if err != nil {
		return nil, wrapDBError("touch session", err)
	}
	return &s, nil
}

// GetSession fetches a session row without touching it.
func (r *PostgresRepository) GetSession(ctx context.Context, id string) (*catalog.Session, error) {
	var s catalog.Session
	err := r.db.GetContext(ctx, &s,
		`SELECT id, created_at, last_active_at, expires_at FROM sessions WHERE id=$1`, id)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.New(errors.ErrCodeRecordNotFound,
			fmt.Sprintf("session %s not found", id), nil)
	}
	if err != nil {
		return nil, wrapDBError("get session", err)
	}
	return &s, nil
}

// AddInteraction appends one interaction event. The referenced product must
// exist; order is by server timestamp with insertion order breaking ties.
func (r *PostgresRepository) AddInteraction(ctx context.Context, i *catalog.Interaction) error {
	if err := i.Validate(); err != nil {
		return err
	}

	row := r.db.QueryRowxContext(ctx, `
		INSERT INTO interactions (session_id, product_id, kind, query, position, created_at)
		SELECT $1, $2, $3, $4, $5, NOW()
		WHERE EXISTS (SELECT 1 FROM products WHERE id=$2)
		RETURNING id, created_at`,
		i.SessionID, i.ProductID, string(i.Kind), nullString(i.Query), i.Position)

	if err := row.Scan(&i.ID, &i.CreatedAt); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return errors.NotFound(errors.ErrCodeProductNotFound, "product", i.ProductID)
		}
		return wrapDBError("add interaction", err)
	}
	return nil
}

type interactionRow struct {
	ID        int64          `db:"id"`
	SessionID string         `db:"session_id"`
	ProductID int64          `db:"product_id"`
	Kind      string         `db:"kind"`
	Query     sql.NullString `db:"query"`
	Position  sql.NullInt64  `db:"position"`
	CreatedAt time.Time      `db:"created_at"`
}

// RecentInteractions returns a session's events most-recent-first, ties
// broken by insertion order (id descending).
func (r *PostgresRepository) RecentInteractions(ctx context.Context, sessionID string, limit int) ([]catalog.Interaction, error) {
	var rows []interactionRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT id, session_id, product_id, kind, query, position, created_at
		 FROM interactions WHERE session_id=$1
		 ORDER BY created_at DESC, id DESC LIMIT $2`, sessionID, limit)
	if err != nil {
		return nil, wrapDBError("recent interactions", err)
	}

	out := make([]catalog.Interaction, len(rows))
	for i, row := range rows {
		out[i] = catalog.Interaction{
			ID:        row.ID,
			SessionID: row.SessionID,
			ProductID: row.ProductID,
			Kind:      catalog.InteractionKind(row.Kind),
			Query:     row.Query.String,
			Position:  int(row.Position.Int64),
			CreatedAt: row.CreatedAt,
		}
	}
	return out, nil
}

// ActiveWeights returns the single active weight row, materializing the
// default when none is active. One insert, then return; no recursion.
func (r *PostgresRepository) ActiveWeights(ctx context.Context) (*catalog.RankingWeights, error) {
	var w catalog.RankingWeights
	err := r.db.GetContext(ctx, &w,
		`SELECT id, name, alpha, beta, gamma, delta, epsilon, active, created_at, updated_at
		 FROM ranking_weights WHERE active ORDER BY id ASC LIMIT 1`)
	if err == nil {
		return &w, nil
	}
	if !stderrors.Is(err, sql.ErrNoRows) {
		return nil, wrapDBError("active weights", err)
	}

	def := catalog.DefaultWeights()
	err = r.db.GetContext(ctx, &def, `
		INSERT INTO ranking_weights (name, alpha, beta, gamma, delta, epsilon, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE, NOW(), NOW())
		RETURNING id, name, alpha, beta, gamma, delta, epsilon, active, created_at, updated_at`,
		def.Name, def.Alpha, def.Beta, def.Gamma, def.Delta, def.Epsilon)
	if err != nil {
		return nil, wrapDBError("materialize default weights", err)
	}
	return &def, nil
}

// UpdateWeights upserts a weight row and, when it is active, deactivates all
// others in the same transaction so exactly one row stays active. Operators
// are warned when weights do not sum to 1.
func (r *PostgresRepository) UpdateWeights(ctx context.Context, w *catalog.RankingWeights) error {
	if err := w.Validate(); err != nil {
		return err
	}
	if sum := w.Sum(); sum < 0.999 || sum > 1.001 {
		slog.Warn("ranking weights do not sum to 1; scores remain comparable within a query only",
			"sum", sum, "name", w.Name)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return wrapDBError("update weights", err)
	}
	defer func() { _ = tx.Rollback() }()

	if w.Active {
		if _, err := tx.ExecContext(ctx, `UPDATE ranking_weights SET active=FALSE WHERE active`); err != nil {
			return wrapDBError("deactivate weights", err)
		}
	}

	if w.ID == 0 {
		row := tx.QueryRowxContext(ctx, `
			INSERT INTO ranking_weights (name, alpha, beta, gamma, delta, epsilon, active, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,NOW(),NOW())
			RETURNING id, created_at, updated_at`,
			w.Name, w.Alpha, w.Beta, w.Gamma, w.Delta, w.Epsilon, w.Active)
		if err := row.Scan(&w.ID, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return wrapDBError("insert weights", err)
		}
	} else {
		res, err := tx.ExecContext(ctx, `
			UPDATE ranking_weights SET name=$2, alpha=$3, beta=$4, gamma=$5,
				delta=$6, epsilon=$7, active=$8, updated_at=NOW()
			WHERE id=$1`,
			w.ID, w.Name, w.Alpha, w.Beta, w.Gamma, w.Delta, w.Epsilon, w.Active)
		if err != nil {
			return wrapDBError("update weights", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return errors.NotFound(errors.ErrCodeRecordNotFound, "weights", w.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return wrapDBError("commit weights", err)
	}
	return nil
}

// SaveSearchLog persists a search log and its per-result explanations in one
// transaction, filling in the log id and explanation ids.
func (r *PostgresRepository) SaveSearchLog(ctx context.Context, log *catalog.SearchLog, explanations []catalog.SearchResultExplanation) error {
	embedding, err := json.Marshal(log.QueryEmbedding)
	if err != nil {
		return errors.Internal("marshal query embedding", err)
	}
	filters, err := json.Marshal(log.Filters)
	if err != nil {
		return errors.Internal("marshal filters", err)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return wrapDBError("save search log", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowxContext(ctx, `
		INSERT INTO search_logs (session_id, query, query_embedding, result_count,
			response_time_ms, filters, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,NOW())
		RETURNING id, created_at`,
		log.SessionID, log.Query, embedding, log.ResultCount, log.ResponseTimeMs, filters)
	if err := row.Scan(&log.ID, &log.CreatedAt); err != nil {
		return wrapDBError("insert search log", err)
	}

	for i := range explanations {
		e := &explanations[i]
		e.SearchLogID = log.ID
		terms, err := json.Marshal(e.MatchedTerms)
		if err != nil {
			return errors.Internal("marshal matched terms", err)
		}
		row := tx.QueryRowxContext(ctx, `
			INSERT INTO search_result_explanations (search_log_id, product_id, position,
				final_score, semantic_score, rating_score, price_score, stock_score,
				recency_score, matched_terms, explanation, was_clicked, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,FALSE,NOW())
			RETURNING id`,
			e.SearchLogID, e.ProductID, e.Position,
			round6(e.FinalScore), round6(e.SemanticScore), round6(e.RatingScore),
			round6(e.PriceScore), round6(e.StockScore), round6(e.RecencyScore),
			terms, e.Explanation)
		if err := row.Scan(&e.ID); err != nil {
			return wrapDBError("insert explanation", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return wrapDBError("commit search log", err)
	}
	return nil
}

type searchLogRow struct {
	ID             int64     `db:"id"`
	SessionID      string    `db:"session_id"`
	Query          string    `db:"query"`
	QueryEmbedding []byte    `db:"query_embedding"`
	ResultCount    int       `db:"result_count"`
	ResponseTimeMs int64     `db:"response_time_ms"`
	Filters        []byte    `db:"filters"`
	CreatedAt      time.Time `db:"created_at"`
}

func (r *searchLogRow) toSearchLog() (*catalog.SearchLog, error) {
	log := &catalog.SearchLog{
		ID:             r.ID,
		SessionID:      r.SessionID,
		Query:          r.Query,
		ResultCount:    r.ResultCount,
		ResponseTimeMs: r.ResponseTimeMs,
		CreatedAt:      r.CreatedAt,
	}
	if len(r.QueryEmbedding) > 0 {
		if err := json.Unmarshal(r.QueryEmbedding, &log.QueryEmbedding); err != nil {
			return nil, errors.Internal("corrupt query embedding", err)
		}
	}
	if len(r.Filters) > 0 {
		if err := json.Unmarshal(r.Filters, &log.Filters); err != nil {
			return nil, errors.Internal("corrupt filter bag", err)
		}
	}
	return log, nil
}

// GetSearchLog fetches one search log by id.
func (r *PostgresRepository) GetSearchLog(ctx context.Context, id int64) (*catalog.SearchLog, error) {
	var row searchLogRow
	err := r.db.GetContext(ctx, &row,
		`SELECT id, session_id, query, query_embedding, result_count, response_time_ms, filters, created_at
		 FROM search_logs WHERE id=$1`, id)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NotFound(errors.ErrCodeSearchLogMissing, "search log", id)
	}
	if err != nil {
		return nil, wrapDBError("get search log", err)
	}
	return row.toSearchLog()
}

// LatestSearchLog returns the most recent log for a session and query, used
// to attribute result clicks back to the search that produced them.
func (r *PostgresRepository) LatestSearchLog(ctx context.Context, sessionID, query string) (*catalog.SearchLog, error) {
	var row searchLogRow
	err := r.db.GetContext(ctx, &row,
		`SELECT id, session_id, query, query_embedding, result_count, response_time_ms, filters, created_at
		 FROM search_logs WHERE session_id=$1 AND query=$2
		 ORDER BY created_at DESC, id DESC LIMIT 1`, sessionID, query)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.New(errors.ErrCodeSearchLogMissing,
			fmt.Sprintf("no search log for session %s", sessionID), nil)
	}
	if err != nil {
		return nil, wrapDBError("latest search log", err)
	}
	return row.toSearchLog()
}

// ListSearchLogs returns recent search logs, newest first.
func (r *PostgresRepository) ListSearchLogs(ctx context.Context, limit int) ([]catalog.SearchLog, error) {
	var rows []searchLogRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT id, session_id, query, query_embedding, result_count, response_time_ms, filters, created_at
		 FROM search_logs ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, wrapDBError("list search logs", err)
	}

	out := make([]catalog.SearchLog, 0, len(rows))
	for i := range rows {
		log, err := rows[i].toSearchLog()
		if err != nil {
			slog.Warn("skipping corrupt search log", "search_log_id", rows[i].ID, "error", err)
			continue
		}
		out = append(out, *log)
	}
	return out, nil
}

type explanationRow struct {
	ID            int64     `db:"id"`
	SearchLogID   int64     `db:"search_log_id"`
	ProductID     int64     `db:"product_id"`
	Position      int       `db:"position"`
	FinalScore    float64   `db:"final_score"`
	SemanticScore float64   `db:"semantic_score"`
	RatingScore   float64   `db:"rating_score"`
	PriceScore    float64   `db:"price_score"`
	StockScore    float64   `db:"stock_score"`
	RecencyScore  float64   `db:"recency_score"`
	MatchedTerms  []byte    `db:"matched_terms"`
	Explanation   string    `db:"explanation"`
	WasClicked    bool      `db:"was_clicked"`
	CreatedAt     time.Time `db:"created_at"`
}

// ExplanationsForLog returns the persisted score decompositions for a search
// log in result order.
func (r *PostgresRepository) ExplanationsForLog(ctx context.Context, searchLogID int64) ([]catalog.SearchResultExplanation, error) {
	var rows []explanationRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT id, search_log_id, product_id, position, final_score, semantic_score,
			rating_score, price_score, stock_score, recency_score, matched_terms,
			explanation, was_clicked, created_at
		 FROM search_result_explanations WHERE search_log_id=$1
		 ORDER BY position ASC`, searchLogID)
	if err != nil {
		return nil, wrapDBError("explanations for log", err)
	}

	out := make([]catalog.SearchResultExplanation, len(rows))
	for i, row := range rows {
		out[i] = catalog.SearchResultExplanation{
			ID:            row.ID,
			SearchLogID:   row.SearchLogID,
			ProductID:     row.ProductID,
			Position:      row.Position,
			FinalScore:    row.FinalScore,
			SemanticScore: row.SemanticScore,
			RatingScore:   row.RatingScore,
			PriceScore:    row.PriceScore,
			StockScore:    row.StockScore,
			RecencyScore:  row.RecencyScore,
			Explanation:   row.Explanation,
			WasClicked:    row.WasClicked,
			CreatedAt:     row.CreatedAt,
		}
		if len(row.MatchedTerms) > 0 {
			if err := json.Unmarshal(row.MatchedTerms, &out[i].MatchedTerms); err != nil {
				return nil, errors.Internal("corrupt matched terms", err)
			}
		}
	}
	return out, nil
}

// MarkExplanationClicked sets the was-clicked flag post-hoc, driven by
// search_click interactions from the session tracker.
func (r *PostgresRepository) MarkExplanationClicked(ctx context.Context, searchLogID, productID int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE search_result_explanations SET was_clicked=TRUE
		 WHERE search_log_id=$1 AND product_id=$2`, searchLogID, productID)
	if err != nil {
		return wrapDBError("mark explanation clicked", err)
	}
	return nil
}

// SaveMetric persists an evaluation metric row.
func (r *PostgresRepository) SaveMetric(ctx context.Context, m *catalog.EvaluationMetric) error {
	row := r.db.QueryRowxContext(ctx, `
		INSERT INTO evaluation_metrics (search_log_id, kind, value, query_count, note, created_at)
		VALUES ($1,$2,$3,$4,$5,NOW())
		RETURNING id, created_at`,
		m.SearchLogID, string(m.Kind), m.Value, m.QueryCount, m.Note)
	if err := row.Scan(&m.ID, &m.CreatedAt); err != nil {
		return wrapDBError("save metric", err)
	}
	return nil
}

type metricRow struct {
	ID          int64         `db:"id"`
	SearchLogID sql.NullInt64 `db:"search_log_id"`
	Kind        string        `db:"kind"`
	Value       float64       `db:"value"`
	QueryCount  sql.NullInt64 `db:"query_count"`
	Note        sql.NullString `db:"note"`
	CreatedAt   time.Time     `db:"created_at"`
}

// ListMetrics returns recent evaluation metrics, newest first.
func (r *PostgresRepository) ListMetrics(ctx context.Context, limit int) ([]catalog.EvaluationMetric, error) {
	var rows []metricRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT id, search_log_id, kind, value, query_count, note, created_at
		 FROM evaluation_metrics ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, wrapDBError("list metrics", err)
	}

	out := make([]catalog.EvaluationMetric, len(rows))
	for i, row := range rows {
		out[i] = catalog.EvaluationMetric{
			ID:        row.ID,
			Kind:      catalog.MetricKind(row.Kind),
			Value:     row.Value,
			Note:      row.Note.String,
			CreatedAt: row.CreatedAt,
		}
		if row.SearchLogID.Valid {
			v := row.SearchLogID.Int64
			out[i].SearchLogID = &v
		}
		if row.QueryCount.Valid {
			out[i].QueryCount = int(row.QueryCount.Int64)
		}
	}
	return out, nil
}

// CreateUploadJob inserts a catalog upload job row.
func (r *PostgresRepository) CreateUploadJob(ctx context.Context, j *catalog.CatalogUploadJob) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO catalog_upload_jobs (id, filename, status, total, processed, embedded,
			error_message, started_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		j.ID, j.Filename, string(j.Status), j.Total, j.Processed, j.Embedded,
		nullString(j.ErrorMsg), j.StartedAt)
	if err != nil {
		return wrapDBError("create upload job", err)
	}
	return nil
}

// UpdateUploadJob rewrites a job's status and counters.
func (r *PostgresRepository) UpdateUploadJob(ctx context.Context, j *catalog.CatalogUploadJob) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE catalog_upload_jobs SET status=$2, total=$3, processed=$4, embedded=$5,
			error_message=$6, completed_at=$7
		WHERE id=$1`,
		j.ID, string(j.Status), j.Total, j.Processed, j.Embedded,
		nullString(j.ErrorMsg), j.CompletedAt)
	if err != nil {
		return wrapDBError("update upload job", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.New(errors.ErrCodeRecordNotFound,
			fmt.Sprintf("upload job %s not found", j.ID), nil)
	}
	return nil
}

type uploadJobRow struct {
	ID          string         `db:"id"`
	Filename    string         `db:"filename"`
	Status      string         `db:"status"`
	Total       int            `db:"total"`
	Processed   int            `db:"processed"`
	Embedded    int            `db:"embedded"`
	ErrorMsg    sql.NullString `db:"error_message"`
	StartedAt   time.Time      `db:"started_at"`
	CompletedAt sql.NullTime   `db:"completed_at"`
}

// GetUploadJob fetches a job by id.
func (r *PostgresRepository) GetUploadJob(ctx context.Context, id string) (*catalog.CatalogUploadJob, error) {
	var row uploadJobRow
	err := r.db.GetContext(ctx, &row,
		`SELECT id, filename, status, total, processed, embedded, error_message, started_at, completed_at
		 FROM catalog_upload_jobs WHERE id=$1`, id)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.New(errors.ErrCodeRecordNotFound,
			fmt.Sprintf("upload job %s not found", id), nil)
	}
	if err != nil {
		return nil, wrapDBError("get upload job", err)
	}

	j := &catalog.CatalogUploadJob{
		ID:        row.ID,
		Filename:  row.Filename,
		Status:    catalog.JobStatus(row.Status),
		Total:     row.Total,
		Processed: row.Processed,
		Embedded:  row.Embedded,
		ErrorMsg:  row.ErrorMsg.String,
		StartedAt: row.StartedAt,
	}
	if row.CompletedAt.Valid {
		v := row.CompletedAt.Time
		j.CompletedAt = &v
	}
	return j, nil
}

// Ping verifies connectivity.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return errors.New(errors.ErrCodeRepoUnavailable, "database unreachable", err)
	}
	return nil
}

// Close releases the connection pool.
func (r *PostgresRepository) Close() error {
	return r.db.Close()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func defaultCurrency(c string) string {
	if c == "" {
		return "USD"
	}
	return c
}

func availabilityOrDefault(a catalog.Availability) catalog.Availability {
	if a == "" {
		return catalog.AvailabilityInStock
	}
	return a
}

// round6 rounds scores to six decimal places for persisted explanations.
func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
