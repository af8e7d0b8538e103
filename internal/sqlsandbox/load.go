package sqlsandbox

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// columnKind is the narrow set of SQLite storage classes this loader
// infers; anything that doesn't parse as an integer or a float is stored
// as TEXT, sqlite's dynamically-typed catch-all.
type columnKind int

const (
	kindText columnKind = iota
	kindInteger
	kindReal
)

func (k columnKind) sqlType() string {
	switch k {
	case kindInteger:
		return "INTEGER"
	case kindReal:
		return "REAL"
	default:
		return "TEXT"
	}
}

// loadDir registers every .csv and .json file directly under dataDir as a
// table, per spec §4.15. Subdirectories are not walked; the sandbox's data
// directory is a flat table registry, not a filesystem browser.
func (s *Sandbox) loadDir(dataDir string) error {
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		return fmt.Errorf("sqlsandbox: reading data dir %q: %w", dataDir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dataDir, entry.Name())
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".csv":
			if err := s.loadCSV(path, entry.Name()); err != nil {
				return err
			}
		case ".json":
			if err := s.loadJSON(path, entry.Name()); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Sandbox) loadCSV(path, filename string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("sqlsandbox: opening %q: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return fmt.Errorf("sqlsandbox: reading header of %q: %w", path, err)
	}
	records, err := r.ReadAll()
	if err != nil {
		return fmt.Errorf("sqlsandbox: reading %q: %w", path, err)
	}

	kinds := make([]columnKind, len(header))
	for i := range header {
		column := make([]string, len(records))
		for r, rec := range records {
			if i < len(rec) {
				column[r] = rec[i]
			}
		}
		kinds[i] = inferColumnKind(column)
	}

	rows := make([][]any, len(records))
	for r, rec := range records {
		row := make([]any, len(header))
		for i := range header {
			var raw string
			if i < len(rec) {
				raw = rec[i]
			}
			row[i] = coerce(raw, kinds[i])
		}
		rows[r] = row
	}

	return s.registerTable(filename, header, kinds, rows)
}

func (s *Sandbox) loadJSON(path, filename string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("sqlsandbox: opening %q: %w", path, err)
	}

	var records []map[string]any
	if err := json.Unmarshal(raw, &records); err != nil {
		return fmt.Errorf("sqlsandbox: parsing %q: %w", path, err)
	}
	if len(records) == 0 {
		return nil
	}

	// Column order follows first appearance across every record, not just
	// the first one, since JSON objects don't guarantee a uniform key set.
	var header []string
	seen := map[string]bool{}
	for _, rec := range records {
		for key := range rec {
			if !seen[key] {
				seen[key] = true
				header = append(header, key)
			}
		}
	}

	kinds := make([]columnKind, len(header))
	for i, key := range header {
		column := make([]string, len(records))
		for r, rec := range records {
			column[r] = fmt.Sprint(rec[key])
		}
		kinds[i] = inferColumnKind(column)
	}

	rows := make([][]any, len(records))
	for r, rec := range records {
		row := make([]any, len(header))
		for i, key := range header {
			v, ok := rec[key]
			if !ok || v == nil {
				row[i] = nil
				continue
			}
			row[i] = coerceJSONValue(v, kinds[i])
		}
		rows[r] = row
	}

	return s.registerTable(filename, header, kinds, rows)
}

func (s *Sandbox) registerTable(filename string, header []string, kinds []columnKind, rows [][]any) error {
	table := tableNameFromFilename(filename)
	if table == "" {
		return fmt.Errorf("sqlsandbox: %q does not yield a usable table name", filename)
	}

	cols := make([]string, len(header))
	for i, name := range header {
		cols[i] = fmt.Sprintf("%q %s", columnNameFromHeader(name, i), kinds[i].sqlType())
	}
	createStmt := fmt.Sprintf("CREATE TABLE %q (%s)", table, strings.Join(cols, ", "))
	if _, err := s.db.Exec(createStmt); err != nil {
		return fmt.Errorf("sqlsandbox: creating table %q: %w", table, err)
	}

	if len(rows) > 0 {
		placeholders := make([]string, len(header))
		for i := range placeholders {
			placeholders[i] = "?"
		}
		insertStmt := fmt.Sprintf("INSERT INTO %q VALUES (%s)", table, strings.Join(placeholders, ", "))
		for _, row := range rows {
			if _, err := s.db.Exec(insertStmt, row...); err != nil {
				return fmt.Errorf("sqlsandbox: loading rows into %q: %w", table, err)
			}
		}
	}

	s.tables = append(s.tables, table)
	return nil
}

// columnNameFromHeader falls back to a positional name for a blank CSV
// header cell; a JSON key is never blank since it comes from a map key.
func columnNameFromHeader(name string, position int) string {
	if strings.TrimSpace(name) != "" {
		return name
	}
	return fmt.Sprintf("column_%d", position)
}

func inferColumnKind(values []string) columnKind {
	kind := kindInteger
	sawValue := false
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			continue
		}
		sawValue = true
		if _, err := strconv.ParseInt(v, 10, 64); err == nil {
			continue
		}
		if _, err := strconv.ParseFloat(v, 64); err == nil {
			if kind == kindInteger {
				kind = kindReal
			}
			continue
		}
		return kindText
	}
	if !sawValue {
		return kindText
	}
	return kind
}

func coerce(raw string, kind columnKind) any {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	switch kind {
	case kindInteger:
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return n
		}
	case kindReal:
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return f
		}
	}
	return raw
}

func coerceJSONValue(v any, kind columnKind) any {
	switch t := v.(type) {
	case float64:
		if kind == kindInteger {
			return int64(t)
		}
		return t
	case string:
		return coerce(t, kind)
	case bool:
		if t {
			return int64(1)
		}
		return int64(0)
	default:
		return fmt.Sprint(t)
	}
}
