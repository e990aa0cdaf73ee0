package analysis

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// querySQL runs a plan's SELECT against a fresh in-memory database seeded
// with the current dataset (table "data") and every uploaded tabular file
// (one table per file, named after the filename stem). The database lives
// only for this execution.
func (e *execution) querySQL(query string) ([]map[string]any, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	defer db.Close()

	if e.data != nil {
		records, err := toRecords(e.data)
		if err == nil && len(records) > 0 {
			if err := loadTable(db, "data", records); err != nil {
				return nil, err
			}
		}
	}
	for name, ref := range e.files {
		raw, err := e.store.Read(ref)
		if err != nil {
			return nil, err
		}
		records, err := parseFileRecords(name, raw)
		if err != nil || len(records) == 0 {
			continue // non-tabular uploads are simply not queryable
		}
		if err := loadTable(db, tableName(name), records); err != nil {
			return nil, err
		}
	}

	rows, err := db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		rec := make(map[string]any, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				rec[col] = string(b)
			} else {
				rec[col] = values[i]
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

var identPattern = regexp.MustCompile(`[^a-zA-Z0-9_]+`)

func tableName(filename string) string {
	stem := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	name := identPattern.ReplaceAllString(stem, "_")
	if name == "" || (name[0] >= '0' && name[0] <= '9') {
		name = "t_" + name
	}
	return name
}

// loadTable creates a table from the union of record fields and inserts
// every record. Column types are inferred from the first non-nil value.
func loadTable(db *sql.DB, name string, records []map[string]any) error {
	var cols []string
	seen := make(map[string]bool)
	for _, rec := range records {
		for k := range rec {
			if !seen[k] {
				seen[k] = true
				cols = append(cols, k)
			}
		}
	}
	if len(cols) == 0 {
		return nil
	}

	defs := make([]string, len(cols))
	for i, col := range cols {
		defs[i] = fmt.Sprintf("%q %s", col, columnType(records, col))
	}
	create := fmt.Sprintf("CREATE TABLE %q (%s)", name, strings.Join(defs, ", "))
	if _, err := db.Exec(create); err != nil {
		return fmt.Errorf("create table %s: %w", name, err)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(cols)), ",")
	quoted := make([]string, len(cols))
	for i, col := range cols {
		quoted[i] = fmt.Sprintf("%q", col)
	}
	insert := fmt.Sprintf("INSERT INTO %q (%s) VALUES (%s)", name, strings.Join(quoted, ", "), placeholders)
	stmt, err := db.Prepare(insert)
	if err != nil {
		return fmt.Errorf("prepare insert into %s: %w", name, err)
	}
	defer stmt.Close()

	for _, rec := range records {
		args := make([]any, len(cols))
		for i, col := range cols {
			args[i] = sqlValue(rec[col])
		}
		if _, err := stmt.Exec(args...); err != nil {
			return fmt.Errorf("insert into %s: %w", name, err)
		}
	}
	return nil
}

func columnType(records []map[string]any, col string) string {
	for _, rec := range records {
		switch rec[col].(type) {
		case nil:
			continue
		case int, int64:
			return "INTEGER"
		case float32, float64:
			return "REAL"
		case bool:
			return "INTEGER"
		default:
			return "TEXT"
		}
	}
	return "TEXT"
}

func sqlValue(v any) any {
	switch val := v.(type) {
	case nil, int, int64, float64, string, bool, []byte:
		return v
	case float32:
		return float64(val)
	default:
		return fmt.Sprintf("%v", v)
	}
}
