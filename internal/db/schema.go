package db

import (
	"database/sql"
	"fmt"
)

// setupSchema creates the catalog tables in PostgreSQL
func setupSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS categories (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			slug TEXT,
			description TEXT,
			parent_id BIGINT REFERENCES categories(id) ON DELETE RESTRICT,
			level INTEGER NOT NULL DEFAULT 0,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			sort_order INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CHECK (parent_id IS NULL OR parent_id <> id),
			CHECK (level >= 0)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create categories table: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS scraped_products (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			brand TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL DEFAULT '',
			price NUMERIC(12, 2) NOT NULL DEFAULT 0,
			currency TEXT NOT NULL DEFAULT 'USD',
			source TEXT NOT NULL,
			source_url TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'pending'
				CHECK (status IN ('pending', 'processing', 'curated', 'rejected', 'published')),
			confidence_score INTEGER CHECK (confidence_score BETWEEN 0 AND 100),
			curated_data JSONB,
			images TEXT[] NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create scraped_products table: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS curation_jobs (
			id UUID PRIMARY KEY,
			status TEXT NOT NULL DEFAULT 'queued'
				CHECK (status IN ('queued', 'running', 'completed', 'failed')),
			error_message TEXT,
			affected_product_ids UUID[] NOT NULL,
			curation_notes TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			started_at TIMESTAMPTZ,
			completed_at TIMESTAMPTZ
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create curation_jobs table: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS global_catalog_products (
			id UUID PRIMARY KEY,
			scraped_product_id UUID NOT NULL UNIQUE REFERENCES scraped_products(id) ON DELETE RESTRICT,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			brand TEXT NOT NULL,
			category TEXT NOT NULL,
			price NUMERIC(12, 2) NOT NULL,
			currency TEXT NOT NULL,
			images TEXT[] NOT NULL DEFAULT '{}',
			published_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create global_catalog_products table: %w", err)
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_categories_parent ON categories(parent_id)`,
		`CREATE INDEX IF NOT EXISTS idx_scraped_products_status ON scraped_products(status)`,
		`CREATE INDEX IF NOT EXISTS idx_scraped_products_source_status ON scraped_products(source, status)`,
		`CREATE INDEX IF NOT EXISTS idx_scraped_products_created ON scraped_products(created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_curation_jobs_queued ON curation_jobs(created_at) WHERE status = 'queued'`,
		`CREATE INDEX IF NOT EXISTS idx_curation_jobs_running ON curation_jobs(started_at) WHERE status = 'running'`,
	}
	for _, stmt := range indexes {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return setupTimestampTriggers(db)
}

// setupTimestampTriggers keeps updated_at current on the mutable tables
func setupTimestampTriggers(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE OR REPLACE FUNCTION touch_updated_at()
		RETURNS TRIGGER AS $$
		BEGIN
		  NEW.updated_at = NOW();
		  RETURN NEW;
		END;
		$$ LANGUAGE plpgsql;
	`)
	if err != nil {
		return fmt.Errorf("failed to create touch_updated_at function: %w", err)
	}

	for _, table := range []string{"categories", "scraped_products"} {
		_, err = db.Exec(fmt.Sprintf(`
			DROP TRIGGER IF EXISTS trigger_touch_%[1]s ON %[1]s;
			CREATE TRIGGER trigger_touch_%[1]s
			  BEFORE UPDATE ON %[1]s
			  FOR EACH ROW
			  EXECUTE FUNCTION touch_updated_at();
		`, table))
		if err != nil {
			return fmt.Errorf("failed to create updated_at trigger on %s: %w", table, err)
		}
	}

	return nil
}
