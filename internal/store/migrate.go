package store

import (
	"context"
	"database/sql"
	"fmt"
)

// A migration is one idempotent, ordered schema step. Steps are forward
// only and never destructive: tables are created IF NOT EXISTS and columns
// are checked before being added, so re-running the list is always safe.
type migration struct {
	id  string
	run func(ctx context.Context, db *sql.DB, d Dialect) error
}

var migrations = []migration{
	{"create-records", createRecords},
	{"create-meal-log", createMealLog},
	{"create-demand-log", createDemandLog},
	{"add-missing-record-columns", addMissingRecordColumns},
	{"backfill-legacy-entry-time", backfillLegacyEntryTime},
}

// Migrate applies the full migration list in order.
func Migrate(ctx context.Context, db *sql.DB, d Dialect) error {
	for _, m := range migrations {
		if err := m.run(ctx, db, d); err != nil {
			return fmt.Errorf("migration %s: %w", m.id, err)
		}
	}
	return nil
}

func serialPK(d Dialect) string {
	if d == DialectPostgres {
		return "BIGSERIAL PRIMARY KEY"
	}
	return "INTEGER PRIMARY KEY AUTOINCREMENT"
}

func createRecords(ctx context.Context, db *sql.DB, d Dialect) error {
	_, err := db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS records (
			id %s,
			patient_name TEXT, demands TEXT, reference_prof TEXT,
			date TEXT,
			enter_sys TEXT, enter_inf TEXT,
			left_sys TEXT, left_inf TEXT,
			observations TEXT, encaminhamento TEXT,
			desjejum INTEGER DEFAULT 0, lunch INTEGER DEFAULT 0,
			snack INTEGER DEFAULT 0, dinner INTEGER DEFAULT 0,
			start_time TEXT, end_time TEXT,
			archived_ai INTEGER DEFAULT 0
		)`, serialPK(d)))
	return err
}

func createMealLog(ctx context.Context, db *sql.DB, d Dialect) error {
	_, err := db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS meal_log (
			log_id %s,
			record_id INTEGER, ts TEXT,
			old_b INTEGER, old_l INTEGER, old_s INTEGER, old_d INTEGER,
			new_b INTEGER, new_l INTEGER, new_s INTEGER, new_d INTEGER
		)`, serialPK(d)))
	return err
}

func createDemandLog(ctx context.Context, db *sql.DB, d Dialect) error {
	_, err := db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS demand_log (
			log_id %s,
			record_id INTEGER,
			ts TEXT,
			old_demands TEXT,
			new_demands TEXT
		)`, serialPK(d)))
	return err
}

// addMissingRecordColumns upgrades databases created by older versions that
// lack the dual timestamp columns, the breakfast flag or the archive flag.
func addMissingRecordColumns(ctx context.Context, db *sql.DB, d Dialect) error {
	existing, err := columnNames(ctx, db, d, "records")
	if err != nil {
		return err
	}
	wanted := []struct{ name, ddl string }{
		{"enter_sys", "TEXT"},
		{"enter_inf", "TEXT"},
		{"left_sys", "TEXT"},
		{"left_inf", "TEXT"},
		{"desjejum", "INTEGER DEFAULT 0"},
		{"archived_ai", "INTEGER DEFAULT 0"},
	}
	for _, col := range wanted {
		if existing[col.name] {
			continue
		}
		if _, err := db.ExecContext(ctx,
			fmt.Sprintf("ALTER TABLE records ADD COLUMN %s %s", col.name, col.ddl)); err != nil {
			return fmt.Errorf("add column %s: %w", col.name, err)
		}
	}
	return nil
}

// backfillLegacyEntryTime copies the retired single "time" column into
// enter_sys for rows the old version wrote, when both columns exist.
func backfillLegacyEntryTime(ctx context.Context, db *sql.DB, d Dialect) error {
	existing, err := columnNames(ctx, db, d, "records")
	if err != nil {
		return err
	}
	if !existing["time"] || !existing["enter_sys"] {
		return nil
	}
	_, err = db.ExecContext(ctx, `
		UPDATE records SET enter_sys = time
		 WHERE enter_sys IS NULL OR enter_sys = ''`)
	return err
}

func columnNames(ctx context.Context, db *sql.DB, d Dialect, table string) (map[string]bool, error) {
	var rows *sql.Rows
	var err error
	switch d {
	case DialectPostgres:
		rows, err = db.QueryContext(ctx,
			`SELECT column_name FROM information_schema.columns WHERE table_name = $1`, table)
	default:
		rows, err = db.QueryContext(ctx,
			fmt.Sprintf("SELECT name FROM pragma_table_info('%s')", table))
	}
	if err != nil {
		return nil, fmt.Errorf("list columns of %s: %w", table, err)
	}
	defer rows.Close()

	cols := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		cols[name] = true
	}
	return cols, rows.Err()
}
