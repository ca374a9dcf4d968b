// Package catalog defines the data model for the discovery engine: products,
// embeddings, sessions, interactions, ranking weights, search logs, result
// explanations, evaluation metrics, and catalog upload jobs.
package catalog

import (
	"time"
)

// Availability is the inventory state of a product.
type Availability string

const (
	AvailabilityInStock    Availability = "in_stock"
	AvailabilityLowStock   Availability = "low_stock"
	AvailabilityOutOfStock Availability = "out_of_stock"
)

// Valid reports whether a is a known availability value.
func (a Availability) Valid() bool {
	switch a {
	case AvailabilityInStock, AvailabilityLowStock, AvailabilityOutOfStock:
		return true
	}
	return false
}

// Product is a catalog item. Rating is nullable; OriginalPrice is present only
// when the product is discounted.
type Product struct {
	ID            int64        `db:"id" json:"id"`
	SKU           string       `db:"sku" json:"sku,omitempty"`
	Title         string       `db:"title" json:"title"`
	Description   string       `db:"description" json:"description"`
	Category      string       `db:"category" json:"category"`
	Subcategory   string       `db:"subcategory" json:"subcategory,omitempty"`
	Brand         string       `db:"brand" json:"brand,omitempty"`
	Features      StringList   `db:"features" json:"features,omitempty"`
	Price         float64      `db:"price" json:"price"`
	OriginalPrice *float64     `db:"original_price" json:"original_price,omitempty"`
	Currency      string       `db:"currency" json:"currency"`
	Rating        *float64     `db:"rating" json:"rating,omitempty"`
	ReviewCount   int          `db:"review_count" json:"review_count"`
	Availability  Availability `db:"availability" json:"availability"`
	StockQuantity int          `db:"stock_quantity" json:"stock_quantity"`
	ImageURL      string       `db:"image_url" json:"image_url,omitempty"`
	Featured      bool         `db:"featured" json:"featured"`
	CreatedAt     time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time    `db:"updated_at" json:"updated_at"`
}

// SearchText is the descriptive text used for matching and fallback
// embedding: title, description, and category joined by spaces.
func (p *Product) SearchText() string {
	return p.Title + " " + p.Description + " " + p.Category
}

// Embedding is the stored vector for a product, one per product id.
// Vector is L2-normalized to unit length.
type Embedding struct {
	ProductID  int64     `db:"product_id" json:"product_id"`
	Vector     []float32 `db:"-" json:"vector"`
	SourceText string    `db:"source_text" json:"source_text"`
	Model      string    `db:"model" json:"model"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// Session is an anonymous identity tying interactions together. The id itself
// is issued by the transport; the core only tracks lifecycle.
type Session struct {
	ID           string    `db:"id" json:"id"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	LastActiveAt time.Time `db:"last_active_at" json:"last_active_at"`
	ExpiresAt    time.Time `db:"expires_at" json:"expires_at"`
}

// Expired reports whether the session has passed its expiry at the given time.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// SessionTTL is the default session lifetime from issuance.
const SessionTTL = 30 * 24 * time.Hour

// InteractionKind is the closed set of user interaction event types.
type InteractionKind string

const (
	InteractionView        InteractionKind = "view"
	InteractionClick       InteractionKind = "click"
	InteractionSearchClick InteractionKind = "search_click"
	InteractionAddToCart   InteractionKind = "add_to_cart"
	InteractionPurchase    InteractionKind = "purchase"
)

// Valid reports whether k is a known interaction kind.
func (k InteractionKind) Valid() bool {
	switch k {
	case InteractionView, InteractionClick, InteractionSearchClick,
		InteractionAddToCart, InteractionPurchase:
		return true
	}
	return false
}

// Interaction is an append-only user event against a product.
type Interaction struct {
	ID        int64           `db:"id" json:"id"`
	SessionID string          `db:"session_id" json:"session_id"`
	ProductID int64           `db:"product_id" json:"product_id"`
	Kind      InteractionKind `db:"kind" json:"kind"`
	Query     string          `db:"query" json:"query,omitempty"`
	Position  int             `db:"position" json:"position,omitempty"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// RankingWeights are the five coefficients of the linear re-ranker.
// Exactly one row is active at a time.
type RankingWeights struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Alpha     float64   `db:"alpha" json:"alpha"`         // semantic
	Beta      float64   `db:"beta" json:"beta"`           // rating
	Gamma     float64   `db:"gamma" json:"gamma"`         // price
	Delta     float64   `db:"delta" json:"delta"`         // stock
	Epsilon   float64   `db:"epsilon" json:"epsilon"`     // recency
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// DefaultWeights returns the materialized default weight row used when no
// active row exists.
func DefaultWeights() RankingWeights {
	return RankingWeights{
		Name:    "default",
		Alpha:   0.50,
		Beta:    0.20,
		Gamma:   0.15,
		Delta:   0.10,
		Epsilon: 0.05,
		Active:  true,
	}
}

// Sum returns the total of all five weights. Weights are not required to sum
// to 1; operators are warned when they do not.
func (w RankingWeights) Sum() float64 {
	return w.Alpha + w.Beta + w.Gamma + w.Delta + w.Epsilon
}

// Formula is the public, versioned ranking formula string surfaced to the
// admin UI. It must match the ranker implementation.
const Formula = "score = α·min(1, max(0, cos(vq,vp)) + 0.5·|matched|/|queryTerms|) + β·rating/5 + γ·priceNorm + δ·stockNorm + ε·recencyNorm"

// SearchLog records one executed query.
type SearchLog struct {
	ID             int64      `db:"id" json:"id"`
	SessionID      string     `db:"session_id" json:"session_id"`
	Query          string     `db:"query" json:"query"`
	QueryEmbedding []float32  `db:"-" json:"query_embedding"`
	ResultCount    int        `db:"result_count" json:"result_count"`
	ResponseTimeMs int64      `db:"response_time_ms" json:"response_time_ms"`
	Filters        FilterBag  `db:"-" json:"filters"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

// FilterBag is the serialized filter set applied to a search.
type FilterBag struct {
	Category    string   `json:"category,omitempty"`
	MinPrice    *float64 `json:"min_price,omitempty"`
	MaxPrice    *float64 `json:"max_price,omitempty"`
	InStockOnly bool     `json:"in_stock_only,omitempty"`
	// MinScore overrides the default score threshold. Zero means the default.
	MinScore float64 `json:"min_score,omitempty"`
}

// SearchResultExplanation is the audited score decomposition persisted per
// (search log, product) at a result position. Scores carry six decimal places.
type SearchResultExplanation struct {
	ID            int64      `db:"id" json:"id"`
	SearchLogID   int64      `db:"search_log_id" json:"search_log_id"`
	ProductID     int64      `db:"product_id" json:"product_id"`
	Position      int        `db:"position" json:"position"`
	FinalScore    float64    `db:"final_score" json:"final_score"`
	SemanticScore float64    `db:"semantic_score" json:"semantic_score"`
	RatingScore   float64    `db:"rating_score" json:"rating_score"`
	PriceScore    float64    `db:"price_score" json:"price_score"`
	StockScore    float64    `db:"stock_score" json:"stock_score"`
	RecencyScore  float64    `db:"recency_score" json:"recency_score"`
	MatchedTerms  StringList `db:"-" json:"matched_terms"`
	Explanation   string     `db:"explanation" json:"explanation"`
	WasClicked    bool       `db:"was_clicked" json:"was_clicked"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
}

// MetricKind identifies an evaluation metric row.
type MetricKind string

const (
	MetricNDCG10      MetricKind = "ndcg@10"
	MetricRecall10    MetricKind = "recall@10"
	MetricPrecision10 MetricKind = "precision@10"
	MetricMRR         MetricKind = "mrr"
	MetricCustom      MetricKind = "custom"
)

// EvaluationMetric is a persisted IR metric, either per-query (correlated to
// its search log via Note) or aggregate.
type EvaluationMetric struct {
	ID          int64      `db:"id" json:"id"`
	SearchLogID *int64     `db:"search_log_id" json:"search_log_id,omitempty"`
	Kind        MetricKind `db:"kind" json:"kind"`
	Value       float64    `db:"value" json:"value"`
	QueryCount  int        `db:"query_count" json:"query_count,omitempty"`
	Note        string     `db:"note" json:"note,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

// JobStatus is the state of a catalog upload job. Transitions are monotonic;
// the only re-entry is failed -> processing via a fresh job.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobEmbedding  JobStatus = "embedding"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// CatalogUploadJob tracks a batch import for observability. The core treats it
// as a progress sink for batch embedding.
type CatalogUploadJob struct {
	ID          string     `db:"id" json:"id"`
	Filename    string     `db:"filename" json:"filename"`
	Status      JobStatus  `db:"status" json:"status"`
	Total       int        `db:"total" json:"total"`
	Processed   int        `db:"processed" json:"processed"`
	Embedded    int        `db:"embedded" json:"embedded"`
	ErrorMsg    string     `db:"error_message" json:"error_message,omitempty"`
	StartedAt   time.Time  `db:"started_at" json:"started_at"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}

// StringList is a JSON-encoded list of strings, used for product features and
// matched terms (the only list formats the core commits to).
type StringList []string
