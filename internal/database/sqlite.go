package database

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed sqlite_schema.sql
var sqliteSchema string

// SQLiteStore keeps meal history in a local SQLite file. Intended for
// development and single-node deployments.
type SQLiteStore struct {
	sqlMealStore
}

func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// a single writer avoids SQLITE_BUSY under concurrent inserts
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode = WAL", "PRAGMA busy_timeout = 5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{sqlMealStore{
		db: db,
		queries: mealQueries{
			insert: `
				INSERT INTO meal_history (id, user_id, food_identification, total_calories, image_url, nutrition_data, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?)
				RETURNING id`,
			list: `
				SELECT ` + mealColumns + `
				FROM meal_history
				WHERE user_id = ?
				ORDER BY created_at DESC
				LIMIT ?`,
			get: `
				SELECT ` + mealColumns + `
				FROM meal_history
				WHERE id = ? AND user_id = ?`,
		},
		encodeTime: func(t time.Time) any { return t.UTC().Format(sqliteTimeLayout) },
	}}, nil
}
