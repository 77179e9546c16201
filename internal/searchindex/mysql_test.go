package searchindex

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFulltextSchema(t *testing.T) {
	stmts := fulltext{}.schema(specs[Knowledge])
	if assert.Len(t, stmts, 1) {
		ddl := stmts[0]
		assert.True(t, strings.HasPrefix(ddl, "CREATE TABLE IF NOT EXISTS knowledge_fts ("))
		assert.Contains(t, ddl, "id BIGINT UNSIGNED NOT NULL PRIMARY KEY")
		assert.Contains(t, ddl, "FULLTEXT KEY ft_knowledge_fts (title, content, source_quote)")
	}
}

func TestMatchClause(t *testing.T) {
	got := matchClause(specs[Videos])
	assert.Equal(t, "MATCH(video_fts.title, video_fts.description) AGAINST (? IN NATURAL LANGUAGE MODE)", got)
}

func TestFTS5Schema(t *testing.T) {
	stmts := fts5{}.schema(specs[Transcripts])
	assert.Equal(t, []string{"CREATE VIRTUAL TABLE IF NOT EXISTS transcript_fts USING fts5(full_text, tokenize='porter unicode61')"}, stmts)
}

func TestMatchExpr(t *testing.T) {
	assert.Equal(t, `"elk" OR "bugle"`, matchExpr([]string{"elk", "bugle"}))
}

func TestIndexSpecValues(t *testing.T) {
	vals, err := specs[Knowledge].values(Fields{"content": "body"})
	assert.NoError(t, err)
	assert.Equal(t, []string{"", "body", ""}, vals)
}
