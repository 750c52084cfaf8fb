package library

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresClient implements Client over the lib_items and lib_combos tables.
type PostgresClient struct {
	db *sql.DB
}

// NewPostgresClient creates a PostgreSQL-backed library client.
func NewPostgresClient(db *sql.DB) *PostgresClient {
	return &PostgresClient{db: db}
}

func (c *PostgresClient) GetLibraryItems(ctx context.Context, collection Collection) ([]Item, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, description, parent_id, deleted
		FROM lib_items
		WHERE collection = $1
		ORDER BY id ASC
	`, string(collection))
	if err != nil {
		return nil, fmt.Errorf("failed to list library items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.Description, &it.ParentID, &it.Deleted); err != nil {
			return nil, fmt.Errorf("failed to scan library item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating library items: %w", err)
	}
	return items, nil
}

func (c *PostgresClient) GetColorCombo(ctx context.Context, comboCode string) ([]Combo, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT code_1, code_2, deleted
		FROM lib_combos
		WHERE combo_code = $1
		ORDER BY code_1 ASC, code_2 ASC
	`, comboCode)
	if err != nil {
		return nil, fmt.Errorf("failed to list library combos: %w", err)
	}
	defer rows.Close()

	var combos []Combo
	for rows.Next() {
		var cb Combo
		if err := rows.Scan(&cb.Code1, &cb.Code2, &cb.Deleted); err != nil {
			return nil, fmt.Errorf("failed to scan library combo: %w", err)
		}
		combos = append(combos, cb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating library combos: %w", err)
	}
	return combos, nil
}

// UpsertItem writes a library item, used to seed the library.
func (c *PostgresClient) UpsertItem(ctx context.Context, collection Collection, it Item) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO lib_items (collection, id, description, parent_id, deleted)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (collection, id) DO UPDATE
		SET description = EXCLUDED.description, parent_id = EXCLUDED.parent_id, deleted = EXCLUDED.deleted
	`, string(collection), it.ID, it.Description, it.ParentID, it.Deleted)
	if err != nil {
		return fmt.Errorf("failed to upsert library item: %w", err)
	}
	return nil
}

// UpsertCombo writes a combo pairing.
func (c *PostgresClient) UpsertCombo(ctx context.Context, comboCode string, cb Combo) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO lib_combos (combo_code, code_1, code_2, deleted)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (combo_code, code_1, code_2) DO UPDATE SET deleted = EXCLUDED.deleted
	`, comboCode, cb.Code1, cb.Code2, cb.Deleted)
	if err != nil {
		return fmt.Errorf("failed to upsert library combo: %w", err)
	}
	return nil
}
