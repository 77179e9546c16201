package searchindex

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// fulltext indexes into plain InnoDB tables carrying a FULLTEXT key, for
// MySQL and Dolt backends. Ranking uses natural-language MATCH relevance.
type fulltext struct{}

func (fulltext) keyColumn() string { return "id" }

func (fulltext) schema(s indexSpec) []string {
	cols := make([]string, len(s.columns))
	for i, c := range s.columns {
		cols[i] = c + " MEDIUMTEXT"
	}
	return []string{fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (id BIGINT UNSIGNED NOT NULL PRIMARY KEY, %s, FULLTEXT KEY ft_%s (%s)) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4",
		s.table, strings.Join(cols, ", "), s.table, strings.Join(s.columns, ", "),
	)}
}

func (fulltext) upsert(tx *gorm.DB, s indexSpec, id uint, values []string) error {
	args := make([]any, 0, len(values)+1)
	args = append(args, id)
	for _, v := range values {
		args = append(args, v)
	}
	q := fmt.Sprintf("REPLACE INTO %s (id, %s) VALUES (?%s)",
		s.table, strings.Join(s.columns, ", "), strings.Repeat(", ?", len(values)))
	return tx.Exec(q, args...).Error
}

func (fulltext) remove(tx *gorm.DB, s indexSpec, id uint) error {
	return tx.Exec("DELETE FROM "+s.table+" WHERE id = ?", id).Error
}

func (fulltext) clear(tx *gorm.DB, s indexSpec) error {
	return tx.Exec("DELETE FROM " + s.table).Error
}

func matchClause(s indexSpec) string {
	cols := make([]string, len(s.columns))
	for i, c := range s.columns {
		cols[i] = s.table + "." + c
	}
	return fmt.Sprintf("MATCH(%s) AGAINST (? IN NATURAL LANGUAGE MODE)", strings.Join(cols, ", "))
}

func (fulltext) search(db *gorm.DB, s indexSpec, words []string, opts SearchOpts) ([]Hit, error) {
	m := matchClause(s)
	text := strings.Join(words, " ")

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %[1]s.id AS id, %[3]s AS score FROM %[1]s JOIN %[2]s s ON s.id = %[1]s.id WHERE %[3]s",
		s.table, s.source, m)
	args := []any{text, text}
	for _, f := range opts.Filters {
		fmt.Fprintf(&b, " AND s.%s %s ?", f.Column, f.Op)
		args = append(args, f.Value)
	}
	fmt.Fprintf(&b, " ORDER BY score DESC, %s.id LIMIT ?", s.table)
	args = append(args, opts.Limit)

	var hits []Hit
	if err := db.Raw(b.String(), args...).Scan(&hits).Error; err != nil {
		return nil, err
	}
	return hits, nil
}
