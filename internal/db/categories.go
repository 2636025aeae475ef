package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/Harvey-AU/catalog-backoffice/internal/apperr"
	"github.com/Harvey-AU/catalog-backoffice/internal/taxonomy"
	"github.com/rs/zerolog/log"
)

const categoryColumns = `id, name, slug, description, parent_id, level, is_active, sort_order, created_at, updated_at`

// CategoryListParams filters the flat category listing
type CategoryListParams struct {
	Search   string
	IsActive *bool
	Page     int
	PageSize int
}

// CategoryPage is one page of the flat category listing
type CategoryPage struct {
	Categories []taxonomy.Category
	Total      int
}

// CategoryInput is the writable part of a category
type CategoryInput struct {
	Name        string
	Slug        *string
	Description *string
	ParentID    *int64
	IsActive    bool
	SortOrder   int
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func scanCategory(row rowScanner) (taxonomy.Category, error) {
	var c taxonomy.Category
	var slug, description sql.NullString
	var parentID sql.NullInt64

	err := row.Scan(&c.ID, &c.Name, &slug, &description, &parentID, &c.Level, &c.IsActive, &c.SortOrder,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return c, err
	}
	if slug.Valid {
		c.Slug = &slug.String
	}
	if description.Valid {
		c.Description = &description.String
	}
	if parentID.Valid {
		c.ParentID = &parentID.Int64
	}
	return c, nil
}

func queryCategories(ctx context.Context, q querier, query string, args ...any) ([]taxonomy.Category, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	categories := []taxonomy.Category{}
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate categories: %w", err)
	}
	return categories, nil
}

// ListCategories returns one page of categories in display order
func (db *DB) ListCategories(ctx context.Context, params CategoryListParams) (*CategoryPage, error) {
	var clauses []string
	var args []any
	if s := strings.TrimSpace(params.Search); s != "" {
		args = append(args, likePattern(s))
		clauses = append(clauses, fmt.Sprintf("(name ILIKE $%d OR slug ILIKE $%[1]d)", len(args)))
	}
	if params.IsActive != nil {
		args = append(args, *params.IsActive)
		clauses = append(clauses, fmt.Sprintf("is_active = $%d", len(args)))
	}
	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}

	var total int
	if err := db.client.QueryRowContext(ctx, `SELECT COUNT(*) FROM categories`+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count categories: %w", err)
	}

	page := max(params.Page, 1)
	size := params.PageSize
	if size <= 0 {
		size = 20
	}
	query := `SELECT ` + categoryColumns + ` FROM categories` + where +
		fmt.Sprintf(" ORDER BY level ASC, sort_order ASC, LOWER(name) ASC, id ASC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	categories, err := queryCategories(ctx, db.client, query, append(args, size, (page-1)*size)...)
	if err != nil {
		return nil, err
	}

	return &CategoryPage{Categories: categories, Total: total}, nil
}

// AllCategories returns every category, the input for the tree builder
func (db *DB) AllCategories(ctx context.Context) ([]taxonomy.Category, error) {
	return queryCategories(ctx, db.client, `SELECT `+categoryColumns+` FROM categories ORDER BY id ASC`)
}

// GetCategory returns a single category
func (db *DB) GetCategory(ctx context.Context, id int64) (*taxonomy.Category, error) {
	row := db.client.QueryRowContext(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id = $1`, id)
	c, err := scanCategory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("category %d: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get category: %w", err)
	}
	return &c, nil
}

// parentLevel returns the level for a child of parentID, inside tx
func parentLevel(ctx context.Context, tx *sql.Tx, parentID *int64) (int, error) {
	if parentID == nil {
		return 0, nil
	}
	var parent taxonomy.Category
	err := tx.QueryRowContext(ctx, `SELECT id, level FROM categories WHERE id = $1`, *parentID).Scan(&parent.ID, &parent.Level)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, apperr.Validation("parent_id", fmt.Sprintf("parent category %d does not exist", *parentID))
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load parent category: %w", err)
	}
	return taxonomy.LevelFor(&parent), nil
}

// CreateCategory inserts a category. Its level is derived from the parent.
func (db *DB) CreateCategory(ctx context.Context, in CategoryInput) (*taxonomy.Category, error) {
	var created taxonomy.Category
	err := db.queue.Execute(ctx, func(tx *sql.Tx) error {
		level, err := parentLevel(ctx, tx, in.ParentID)
		if err != nil {
			return err
		}

		row := tx.QueryRowContext(ctx, `
			INSERT INTO categories (name, slug, description, parent_id, level, is_active, sort_order)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING `+categoryColumns,
			strings.TrimSpace(in.Name), in.Slug, in.Description, in.ParentID, level, in.IsActive, in.SortOrder)
		created, err = scanCategory(row)
		if err != nil {
			return fmt.Errorf("failed to insert category: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().Int64("category_id", created.ID).Int("level", created.Level).Msg("Category created")
	return &created, nil
}

// UpdateCategory rewrites a category. Moving it re-derives the level of the
// category and every descendant.
func (db *DB) UpdateCategory(ctx context.Context, id int64, in CategoryInput) (*taxonomy.Category, error) {
	var updated taxonomy.Category
	err := db.queue.Execute(ctx, func(tx *sql.Tx) error {
		all, err := queryCategories(ctx, tx, `SELECT `+categoryColumns+` FROM categories ORDER BY id ASC FOR UPDATE`)
		if err != nil {
			return err
		}
		if !containsCategory(all, id) {
			return fmt.Errorf("category %d: %w", id, apperr.ErrNotFound)
		}
		if err := taxonomy.ValidateParent(all, id, in.ParentID); err != nil {
			return err
		}

		level, err := parentLevel(ctx, tx, in.ParentID)
		if err != nil {
			return err
		}

		row := tx.QueryRowContext(ctx, `
			UPDATE categories
			SET name = $2, slug = $3, description = $4, parent_id = $5, level = $6, is_active = $7, sort_order = $8
			WHERE id = $1
			RETURNING `+categoryColumns,
			id, strings.TrimSpace(in.Name), in.Slug, in.Description, in.ParentID, level, in.IsActive, in.SortOrder)
		if updated, err = scanCategory(row); err != nil {
			return fmt.Errorf("failed to update category: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			WITH RECURSIVE subtree AS (
				SELECT id, level FROM categories WHERE id = $1
				UNION ALL
				SELECT c.id, s.level + 1 FROM categories c JOIN subtree s ON c.parent_id = s.id
			)
			UPDATE categories c
			SET level = s.level
			FROM subtree s
			WHERE c.id = s.id AND c.level <> s.level
		`, id)
		if err != nil {
			return fmt.Errorf("failed to re-level descendants: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &updated, nil
}

// DeleteCategory removes a leaf category. Categories with children are refused.
func (db *DB) DeleteCategory(ctx context.Context, id int64) error {
	return db.queue.Execute(ctx, func(tx *sql.Tx) error {
		var hasChildren bool
		err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM categories WHERE parent_id = $1)`, id).Scan(&hasChildren)
		if err != nil {
			return fmt.Errorf("failed to check child categories: %w", err)
		}
		if hasChildren {
			return fmt.Errorf("category %d: %w", id, taxonomy.ErrHasChildren)
		}

		result, err := tx.ExecContext(ctx, `DELETE FROM categories WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("failed to delete category: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return fmt.Errorf("category %d: %w", id, apperr.ErrNotFound)
		}
		return nil
	})
}

func containsCategory(categories []taxonomy.Category, id int64) bool {
	for _, c := range categories {
		if c.ID == id {
			return true
		}
	}
	return false
}
