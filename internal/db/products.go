package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Harvey-AU/catalog-backoffice/internal/apperr"
	"github.com/Harvey-AU/catalog-backoffice/internal/curation"
	"github.com/Harvey-AU/catalog-backoffice/internal/filter"
	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

const productColumns = `id, name, description, brand, category, price, currency, source, source_url,
	status, confidence_score, curated_data, images, created_at, updated_at`

const (
	resolvedBrandExpr    = `COALESCE(NULLIF(TRIM(curated_data->>'brand_name'), ''), brand)`
	resolvedCategoryExpr = `COALESCE(NULLIF(TRIM(curated_data->>'category_name'), ''), category)`
)

var sortColumns = map[string]string{
	"name":             "name",
	"brand":            resolvedBrandExpr,
	"source":           "source",
	"price":            "price",
	"status":           "status",
	"confidence_score": "confidence_score",
	"created_at":       "created_at",
	"updated_at":       "updated_at",
}

// ProductPage is one page of a product listing
type ProductPage struct {
	Products []curation.Product
	Total    int
}

// SourceStats counts products per status for one scrape source
type SourceStats struct {
	Source string         `json:"source"`
	Counts map[string]int `json:"counts"`
	Total  int            `json:"total"`
}

func scanProduct(row rowScanner) (curation.Product, error) {
	var p curation.Product
	var status string
	var confidence sql.NullInt64
	var curated []byte

	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Brand, &p.Category, &p.Price, &p.Currency,
		&p.Source, &p.SourceURL, &status, &confidence, &curated, pq.Array(&p.Images),
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return p, err
	}

	p.Status = curation.Status(status)
	if confidence.Valid {
		score := int(confidence.Int64)
		p.ConfidenceScore = &score
	}
	if len(curated) > 0 && string(curated) != "null" {
		var data curation.CuratedData
		if err := json.Unmarshal(curated, &data); err != nil {
			return p, fmt.Errorf("failed to decode curated_data for %s: %w", p.ID, err)
		}
		p.CuratedData = &data
	}
	return p, nil
}

func collectProducts(rows *sql.Rows) ([]curation.Product, error) {
	var products []curation.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate products: %w", err)
	}
	return products, nil
}

// productFilter renders the criteria's filters as a WHERE clause
func productFilter(c filter.Criteria) (string, []any) {
	var clauses []string
	var args []any
	add := func(clause string, arg any) {
		args = append(args, arg)
		clauses = append(clauses, strings.ReplaceAll(clause, "?", fmt.Sprintf("$%d", len(args))))
	}

	if c.Search != "" {
		add(`(name ILIKE ? OR description ILIKE ? OR `+resolvedBrandExpr+` ILIKE ?)`, likePattern(c.Search))
	}
	if c.Source != "" {
		add(`source = ?`, c.Source)
	}
	if c.Brand != "" {
		add(resolvedBrandExpr+` ILIKE ?`, likePattern(c.Brand))
	}
	if c.Category != "" {
		add(resolvedCategoryExpr+` ILIKE ?`, likePattern(c.Category))
	}
	if c.Status != "" {
		add(`status = ?`, c.Status)
	}
	if c.DateFrom != nil {
		add(`created_at >= ?`, *c.DateFrom)
	}
	if c.DateTo != nil {
		// date_to is inclusive of the whole day
		add(`created_at < ?`, c.DateTo.AddDate(0, 0, 1))
	}
	if c.MinPrice != nil {
		add(`price >= ?`, c.MinPrice.String())
	}
	if c.MaxPrice != nil {
		add(`price <= ?`, c.MaxPrice.String())
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func productOrder(c filter.Criteria) string {
	column, ok := sortColumns[c.SortBy]
	if !ok {
		column = "created_at"
	}
	dir := "DESC"
	if c.SortDir == "asc" || (c.SortDir == "" && c.SortBy != "" && c.SortBy != "created_at" && c.SortBy != "updated_at") {
		dir = "ASC"
	}
	return fmt.Sprintf(" ORDER BY %s %s NULLS LAST, id ASC", column, dir)
}

func likePattern(term string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.TrimSpace(term)) + "%"
}

// validUUIDs drops ids that cannot be product keys, so a malformed id is
// reported as missing rather than failing the whole query.
func validUUIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := uuid.Parse(id); err == nil {
			out = append(out, id)
		}
	}
	return out
}

// ListProducts returns one page of products matching the criteria
func (db *DB) ListProducts(ctx context.Context, c filter.Criteria) (*ProductPage, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	where, args := productFilter(c)

	var total int
	if err := db.client.QueryRowContext(ctx, `SELECT COUNT(*) FROM scraped_products`+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count products: %w", err)
	}

	query := `SELECT ` + productColumns + ` FROM scraped_products` + where + productOrder(c) +
		fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	rows, err := db.client.QueryContext(ctx, query, append(args, c.PageSize, c.Offset())...)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	products, err := collectProducts(rows)
	if err != nil {
		return nil, err
	}
	if products == nil {
		products = []curation.Product{}
	}
	return &ProductPage{Products: products, Total: total}, nil
}

// GetProducts loads the products with the given ids. Unknown ids are omitted.
func (db *DB) GetProducts(ctx context.Context, ids []string) ([]curation.Product, error) {
	valid := validUUIDs(ids)
	if len(valid) == 0 {
		return []curation.Product{}, nil
	}

	rows, err := db.client.QueryContext(ctx,
		`SELECT `+productColumns+` FROM scraped_products WHERE id = ANY($1)`, pq.Array(valid))
	if err != nil {
		return nil, fmt.Errorf("failed to get products: %w", err)
	}
	defer rows.Close()

	return collectProducts(rows)
}

// writeProductState persists status, curated data and confidence. When
// requireStatus is set the row is only updated if it is still in that status.
func writeProductState(ctx context.Context, tx *sql.Tx, p *curation.Product, requireStatus curation.Status) (int64, error) {
	var curated any
	if p.CuratedData != nil {
		encoded, err := json.Marshal(p.CuratedData)
		if err != nil {
			return 0, fmt.Errorf("failed to encode curated_data for %s: %w", p.ID, err)
		}
		curated = encoded
	}

	query := `
		UPDATE scraped_products
		SET status = $2, curated_data = $3, confidence_score = $4
		WHERE id = $1`
	args := []any{p.ID, string(p.Status), curated, p.ConfidenceScore}
	if requireStatus != "" {
		query += ` AND status = $5`
		args = append(args, string(requireStatus))
	}

	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to update product %s: %w", p.ID, err)
	}
	return result.RowsAffected()
}

func insertGlobalProduct(ctx context.Context, tx *sql.Tx, g curation.GlobalProduct) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO global_catalog_products
			(id, scraped_product_id, name, description, brand, category, price, currency, images, published_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (scraped_product_id) DO NOTHING
	`, g.ID, g.ScrapedProductID, g.Name, g.Description, g.Brand, g.Category, g.Price.String(), g.Currency,
		pq.Array(g.Images), g.PublishedAt)
	if err != nil {
		return fmt.Errorf("failed to publish product %s: %w", g.ScrapedProductID, err)
	}
	return nil
}

// SaveTransitions persists already-transitioned products in one transaction.
// Each row is only written while it still has the status the transition
// started from, so a product another instance moved meanwhile is counted as
// unsaved. Approved products are copied into the global catalog alongside.
func (db *DB) SaveTransitions(ctx context.Context, action curation.Action, transitions []curation.Transition) (*curation.BatchReceipt, error) {
	span := sentry.StartSpan(ctx, "db.save_transitions")
	defer span.Finish()
	span.SetTag("action", string(action))
	span.SetData("products", len(transitions))

	saved := 0
	err := db.queue.Execute(ctx, func(tx *sql.Tx) error {
		publishedAt := time.Now().UTC()
		for i := range transitions {
			p := &transitions[i].Product
			n, err := writeProductState(ctx, tx, p, transitions[i].From)
			if err != nil {
				return err
			}
			if n == 0 {
				log.Debug().
					Str("product_id", p.ID).
					Str("expected_status", string(transitions[i].From)).
					Msg("Product changed since it was loaded, transition not saved")
				continue
			}
			saved++
			if action == curation.ActionApprove {
				if err := insertGlobalProduct(ctx, tx, p.ToGlobal(uuid.NewString(), publishedAt)); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		span.SetTag("error", "true")
		span.SetData("error.message", err.Error())
		return nil, err
	}

	return &curation.BatchReceipt{Saved: saved}, nil
}

// DeleteProducts removes products that have not been published
func (db *DB) DeleteProducts(ctx context.Context, ids []string) (int, error) {
	valid := validUUIDs(ids)
	if len(valid) == 0 {
		return 0, nil
	}

	result, err := db.client.ExecContext(ctx, `
		DELETE FROM scraped_products
		WHERE id = ANY($1) AND status IN ('pending', 'curated', 'rejected')
	`, pq.Array(valid))
	if err != nil {
		return 0, fmt.Errorf("failed to delete products: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted products: %w", err)
	}
	return int(n), nil
}

// DispatchToAI moves pending products to processing and queues a curation
// job for the ones that moved, atomically.
func (db *DB) DispatchToAI(ctx context.Context, products []curation.Product, notes *string) (*curation.DispatchReceipt, error) {
	span := sentry.StartSpan(ctx, "db.dispatch_to_ai")
	defer span.Finish()

	ids := validUUIDs(productIDs(products))
	jobID := uuid.NewString()
	span.SetTag("job_id", jobID)

	var moved []string
	err := db.queue.Execute(ctx, func(tx *sql.Tx) error {
		moved = nil
		rows, err := tx.QueryContext(ctx, `
			UPDATE scraped_products
			SET status = 'processing'
			WHERE id = ANY($1) AND status = 'pending'
			RETURNING id
		`, pq.Array(ids))
		if err != nil {
			return fmt.Errorf("failed to mark products processing: %w", err)
		}

		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan dispatched product: %w", err)
			}
			moved = append(moved, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("failed to iterate dispatched products: %w", err)
		}
		if len(moved) == 0 {
			return fmt.Errorf("no pending products to dispatch: %w", apperr.ErrIllegalTransition)
		}

		return enqueueJob(ctx, tx, jobID, moved, notes)
	})
	if err != nil {
		span.SetTag("error", "true")
		span.SetData("error.message", err.Error())
		return nil, err
	}

	log.Info().
		Str("job_id", jobID).
		Int("requested", len(ids)).
		Int("products", len(moved)).
		Msg("Queued AI curation job")
	return &curation.DispatchReceipt{JobID: jobID, ProductIDs: moved}, nil
}

// SourceStats counts products by status for every source
func (db *DB) SourceStats(ctx context.Context) ([]SourceStats, error) {
	rows, err := db.client.QueryContext(ctx, `
		SELECT source, status, COUNT(*)
		FROM scraped_products
		GROUP BY source, status
		ORDER BY source ASC, status ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query source stats: %w", err)
	}
	defer rows.Close()

	stats := []SourceStats{}
	for rows.Next() {
		var source, status string
		var count int
		if err := rows.Scan(&source, &status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan source stats: %w", err)
		}
		if len(stats) == 0 || stats[len(stats)-1].Source != source {
			stats = append(stats, SourceStats{Source: source, Counts: make(map[string]int, len(curation.Statuses))})
		}
		last := &stats[len(stats)-1]
		last.Counts[status] = count
		last.Total += count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate source stats: %w", err)
	}
	return stats, nil
}

func productIDs(products []curation.Product) []string {
	ids := make([]string, len(products))
	for i, p := range products {
		ids[i] = p.ID
	}
	return ids
}

var _ curation.Store = (*DB)(nil)
