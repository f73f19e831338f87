package sqlstore

import (
	"context"
	"fmt"
	"log/slog"
)

var migrations = []func(p *SqlStore, ctx context.Context) error{
	(*SqlStore).v1Schema,
	(*SqlStore).v2Schema,
}

func (p *SqlStore) prepareDb(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (version INTEGER PRIMARY KEY)`, schemaVersionTable),
	); err != nil {
		return err
	}
	var version int
	err := p.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COALESCE(MAX(version), 0) FROM %s`, schemaVersionTable),
	).Scan(&version)
	if err != nil {
		return err
	}
	if version > len(migrations) {
		return fmt.Errorf("%w: %d", ErrInvalidSchemaVersion, version)
	}
	for i := version; i < len(migrations); i++ {
		slog.Info("storage", "sql", fmt.Sprintf("upgrading to v%d", i+1), "driver", p.driver)
		if err := migrations[i](p, ctx); err != nil {
			return fmt.Errorf("schema v%d: %w", i+1, err)
		}
		if _, err := p.db.ExecContext(ctx,
			fmt.Sprintf(`INSERT INTO %s(version) VALUES(%d)`, schemaVersionTable, i+1),
		); err != nil {
			return err
		}
	}
	return nil
}

func (p *SqlStore) v1Schema(ctx context.Context) error {
	queries := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			provider TEXT NOT NULL,
			display_name TEXT NOT NULL DEFAULT '',
			family_name TEXT NOT NULL DEFAULT '',
			given_name TEXT NOT NULL DEFAULT '',
			middle_name TEXT NOT NULL DEFAULT '',
			emails TEXT NOT NULL DEFAULT '[]',
			photos TEXT NOT NULL DEFAULT '[]',
			created_at BIGINT NOT NULL
		)`, profilesTable),
	}
	for _, q := range queries {
		if _, err := p.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (p *SqlStore) v2Schema(ctx context.Context) error {
	q := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			time TEXT NOT NULL,
			event_type TEXT NOT NULL,
			metadata TEXT DEFAULT '{}'
	)`, eventsTable)
	_, err := p.db.ExecContext(ctx, q)
	return err
}
