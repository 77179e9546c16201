package searchindex

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// fts5 indexes into SQLite FTS5 virtual tables keyed by rowid and ranks
// with bm25.
type fts5 struct{}

func (fts5) keyColumn() string { return "rowid" }

func (fts5) schema(s indexSpec) []string {
	return []string{fmt.Sprintf(
		"CREATE VIRTUAL TABLE IF NOT EXISTS %s USING fts5(%s, tokenize='porter unicode61')",
		s.table, strings.Join(s.columns, ", "),
	)}
}

func (fts5) upsert(tx *gorm.DB, s indexSpec, id uint, values []string) error {
	if err := tx.Exec("DELETE FROM "+s.table+" WHERE rowid = ?", id).Error; err != nil {
		return err
	}
	args := make([]any, 0, len(values)+1)
	args = append(args, id)
	for _, v := range values {
		args = append(args, v)
	}
	q := fmt.Sprintf("INSERT INTO %s(rowid, %s) VALUES (?%s)",
		s.table, strings.Join(s.columns, ", "), strings.Repeat(", ?", len(values)))
	return tx.Exec(q, args...).Error
}

func (fts5) remove(tx *gorm.DB, s indexSpec, id uint) error {
	return tx.Exec("DELETE FROM "+s.table+" WHERE rowid = ?", id).Error
}

func (fts5) clear(tx *gorm.DB, s indexSpec) error {
	return tx.Exec("DELETE FROM " + s.table).Error
}

// matchExpr quotes each word and joins them with OR so any word matches.
func matchExpr(words []string) string {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = `"` + w + `"`
	}
	return strings.Join(quoted, " OR ")
}

func (fts5) search(db *gorm.DB, s indexSpec, words []string, opts SearchOpts) ([]Hit, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %[1]s.rowid AS id, -bm25(%[1]s) AS score FROM %[1]s JOIN %[2]s s ON s.id = %[1]s.rowid WHERE %[1]s MATCH ?",
		s.table, s.source)
	args := []any{matchExpr(words)}
	for _, f := range opts.Filters {
		fmt.Fprintf(&b, " AND s.%s %s ?", f.Column, f.Op)
		args = append(args, f.Value)
	}
	fmt.Fprintf(&b, " ORDER BY bm25(%s), %s.rowid LIMIT ?", s.table, s.table)
	args = append(args, opts.Limit)

	var hits []Hit
	if err := db.Raw(b.String(), args...).Scan(&hits).Error; err != nil {
		return nil, err
	}
	return hits, nil
}
