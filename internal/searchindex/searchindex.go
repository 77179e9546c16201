// Package searchindex keeps the full-text index tables in step with the
// entity tables they mirror. Every write takes the caller's transaction so
// an index row commits or rolls back together with its source row.
package searchindex

import (
	"fmt"
	"regexp"
	"strings"

	"gorm.io/gorm"
)

// Entity names an indexed relation.
type Entity string

const (
	Videos      Entity = "videos"
	Transcripts Entity = "transcripts"
	Knowledge   Entity = "knowledge"
)

// Entities lists every indexed relation.
var Entities = []Entity{Videos, Transcripts, Knowledge}

// Fields maps indexed column names to the text to index.
type Fields map[string]string

// Hit is one search result: the primary key of the source row and its
// relevance score, higher is better.
type Hit struct {
	ID    uint
	Score float64
}

// Filter restricts search results on a column of the source relation.
type Filter struct {
	Column string
	Op     string
	Value  any
}

// SearchOpts controls a search.
type SearchOpts struct {
	Limit   int
	Filters []Filter
}

type indexSpec struct {
	table   string
	source  string
	columns []string
	filters []string
}

var specs = map[Entity]indexSpec{
	Videos: {
		table:   "video_fts",
		source:  "videos",
		columns: []string{"title", "description"},
		filters: []string{"channel_id", "ingestion_status"},
	},
	Transcripts: {
		table:   "transcript_fts",
		source:  "transcripts",
		columns: []string{"full_text"},
		filters: []string{"video_id", "language_code"},
	},
	Knowledge: {
		table:   "knowledge_fts",
		source:  "knowledge_entries",
		columns: []string{"title", "content", "source_quote"},
		filters: []string{"entry_type", "video_id", "confidence", "chunk_index"},
	},
}

func lookup(e Entity) (indexSpec, error) {
	s, ok := specs[e]
	if !ok {
		return indexSpec{}, fmt.Errorf("searchindex: unknown entity %q", e)
	}
	return s, nil
}

// values orders f by the index columns. Columns absent from f index as
// empty text; unknown columns are rejected.
func (s indexSpec) values(f Fields) ([]string, error) {
	for k := range f {
		if !contains(s.columns, k) {
			return nil, fmt.Errorf("searchindex: %s has no indexed column %q", s.table, k)
		}
	}
	out := make([]string, len(s.columns))
	for i, c := range s.columns {
		out[i] = f[c]
	}
	return out, nil
}

func (s indexSpec) checkFilters(filters []Filter) error {
	for _, f := range filters {
		if !contains(s.filters, f.Column) {
			return fmt.Errorf("searchindex: cannot filter %s on %q", s.source, f.Column)
		}
		switch f.Op {
		case "=", ">=", "<=", ">", "<":
		default:
			return fmt.Errorf("searchindex: unsupported filter operator %q", f.Op)
		}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// engine is the dialect-specific part of index maintenance.
type engine interface {
	schema(s indexSpec) []string
	upsert(tx *gorm.DB, s indexSpec, id uint, values []string) error
	remove(tx *gorm.DB, s indexSpec, id uint) error
	search(db *gorm.DB, s indexSpec, words []string, opts SearchOpts) ([]Hit, error)
	clear(tx *gorm.DB, s indexSpec) error
	keyColumn() string
}

func engineFor(db *gorm.DB) (engine, error) {
	switch name := db.Dialector.Name(); name {
	case "sqlite":
		return fts5{}, nil
	case "mysql":
		return fulltext{}, nil
	default:
		return nil, fmt.Errorf("searchindex: unsupported dialect %q", name)
	}
}

// EnsureSchema creates the index tables if they do not exist.
func EnsureSchema(db *gorm.DB) error {
	eng, err := engineFor(db)
	if err != nil {
		return err
	}
	for _, e := range Entities {
		for _, stmt := range eng.schema(specs[e]) {
			if err := db.Exec(stmt).Error; err != nil {
				return fmt.Errorf("searchindex: create %s: %w", specs[e].table, err)
			}
		}
	}
	return nil
}

// Upsert replaces the index row for (entity, id) with fields. The previous
// text is discarded entirely.
func Upsert(tx *gorm.DB, e Entity, id uint, f Fields) error {
	s, err := lookup(e)
	if err != nil {
		return err
	}
	vals, err := s.values(f)
	if err != nil {
		return err
	}
	eng, err := engineFor(tx)
	if err != nil {
		return err
	}
	if err := eng.upsert(tx, s, id, vals); err != nil {
		return fmt.Errorf("searchindex: upsert %s %d: %w", e, id, err)
	}
	return nil
}

// Remove deletes the index row for (entity, id). Removing a missing row is
// not an error.
func Remove(tx *gorm.DB, e Entity, id uint) error {
	s, err := lookup(e)
	if err != nil {
		return err
	}
	eng, err := engineFor(tx)
	if err != nil {
		return err
	}
	if err := eng.remove(tx, s, id); err != nil {
		return fmt.Errorf("searchindex: remove %s %d: %w", e, id, err)
	}
	return nil
}

// Search returns source ids matching query, best first. Index rows whose
// source row no longer exists are never returned.
func Search(db *gorm.DB, e Entity, query string, opts SearchOpts) ([]Hit, error) {
	s, err := lookup(e)
	if err != nil {
		return nil, err
	}
	if err := s.checkFilters(opts.Filters); err != nil {
		return nil, err
	}
	words := QueryWords(query)
	if len(words) == 0 {
		return nil, nil
	}
	if opts.Limit <= 0 {
		opts.Limit = 20
	}
	eng, err := engineFor(db)
	if err != nil {
		return nil, err
	}
	hits, err := eng.search(db, s, words, opts)
	if err != nil {
		return nil, fmt.Errorf("searchindex: search %s: %w", e, err)
	}
	return hits, nil
}

var nonWord = regexp.MustCompile(`[^\p{L}\p{N}_]+`)

// QueryWords reduces free text to the word tokens used for matching.
// Punctuation and query-syntax characters are dropped.
func QueryWords(query string) []string {
	var words []string
	for _, w := range strings.Fields(query) {
		if c := nonWord.ReplaceAllString(w, ""); c != "" {
			words = append(words, c)
		}
	}
	return words
}

// Rebuild discards the index for e and rebuilds it from the source rows.
// It returns the number of rows indexed.
func Rebuild(tx *gorm.DB, e Entity) (int, error) {
	s, err := lookup(e)
	if err != nil {
		return 0, err
	}
	eng, err := engineFor(tx)
	if err != nil {
		return 0, err
	}
	if err := eng.clear(tx, s); err != nil {
		return 0, fmt.Errorf("searchindex: clear %s: %w", e, err)
	}

	cols := make([]string, len(s.columns))
	for i, c := range s.columns {
		cols[i] = "COALESCE(" + c + ", '')"
	}
	q := fmt.Sprintf("SELECT id, %s FROM %s ORDER BY id", strings.Join(cols, ", "), s.source)
	rows, err := tx.Raw(q).Rows()
	if err != nil {
		return 0, fmt.Errorf("searchindex: read %s: %w", s.source, err)
	}
	type pending struct {
		id   uint
		vals []string
	}
	var docs []pending
	for rows.Next() {
		var id uint
		vals := make([]string, len(s.columns))
		dest := []any{&id}
		for i := range vals {
			dest = append(dest, &vals[i])
		}
		if err := rows.Scan(dest...); err != nil {
			rows.Close()
			return 0, fmt.Errorf("searchindex: scan %s: %w", s.source, err)
		}
		docs = append(docs, pending{id, vals})
	}
	if err := rows.Close(); err != nil {
		return 0, err
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, d := range docs {
		if err := eng.upsert(tx, s, d.id, d.vals); err != nil {
			return 0, fmt.Errorf("searchindex: rebuild %s %d: %w", e, d.id, err)
		}
	}
	return len(docs), nil
}

// Drift counts disagreements between an index and its source relation.
type Drift struct {
	Missing  int64 // source rows with no index row
	Orphaned int64 // index rows with no source row
	Stale    int64 // index rows whose text differs from the source
}

// Clean reports whether the index matches its source exactly.
func (d Drift) Clean() bool { return d.Missing == 0 && d.Orphaned == 0 && d.Stale == 0 }

// Check compares the index for e against its source relation.
func Check(db *gorm.DB, e Entity) (Drift, error) {
	s, err := lookup(e)
	if err != nil {
		return Drift{}, err
	}
	eng, err := engineFor(db)
	if err != nil {
		return Drift{}, err
	}
	key := s.table + "." + eng.keyColumn()

	var d Drift
	q := fmt.Sprintf("SELECT COUNT(*) FROM %s s LEFT JOIN %s ON %s = s.id WHERE %s IS NULL", s.source, s.table, key, key)
	if err := db.Raw(q).Scan(&d.Missing).Error; err != nil {
		return d, fmt.Errorf("searchindex: check %s: %w", e, err)
	}
	q = fmt.Sprintf("SELECT COUNT(*) FROM %s LEFT JOIN %s s ON s.id = %s WHERE s.id IS NULL", s.table, s.source, key)
	if err := db.Raw(q).Scan(&d.Orphaned).Error; err != nil {
		return d, fmt.Errorf("searchindex: check %s: %w", e, err)
	}
	diffs := make([]string, len(s.columns))
	for i, c := range s.columns {
		diffs[i] = fmt.Sprintf("COALESCE(s.%s, '') <> COALESCE(%s.%s, '')", c, s.table, c)
	}
	q = fmt.Sprintf("SELECT COUNT(*) FROM %s JOIN %s s ON s.id = %s WHERE %s", s.table, s.source, key, strings.Join(diffs, " OR "))
	if err := db.Raw(q).Scan(&d.Stale).Error; err != nil {
		return d, fmt.Errorf("searchindex: check %s: %w", e, err)
	}
	return d, nil
}

// Get returns the indexed text for (entity, id), or ok=false when no row exists.
func Get(db *gorm.DB, e Entity, id uint) (Fields, bool, error) {
	s, err := lookup(e)
	if err != nil {
		return nil, false, err
	}
	eng, err := engineFor(db)
	if err != nil {
		return nil, false, err
	}
	q := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?", strings.Join(s.columns, ", "), s.table, eng.keyColumn())
	rows, err := db.Raw(q, id).Rows()
	if err != nil {
		return nil, false, fmt.Errorf("searchindex: get %s %d: %w", e, id, err)
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, false, rows.Err()
	}
	vals := make([]string, len(s.columns))
	dest := make([]any, len(vals))
	for i := range vals {
		dest[i] = &vals[i]
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, false, err
	}
	f := make(Fields, len(vals))
	for i, c := range s.columns {
		f[c] = vals[i]
	}
	return f, true, nil
}
