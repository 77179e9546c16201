package proclog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/zulandar/lectern/internal/db"
	"github.com/zulandar/lectern/internal/models"
)

func record(t *testing.T, gdb *gorm.DB, e Entry) {
	t.Helper()
	_, err := Record(gdb, e)
	require.NoError(t, err)
}

func TestRecord_AppendsRows(t *testing.T) {
	gdb := db.OpenTest(t)

	record(t, gdb, Entry{VideoID: 1, RunID: "r1", Step: models.StepFetchTranscript, Status: models.LogStarted})
	record(t, gdb, Entry{VideoID: 1, RunID: "r1", Step: models.StepFetchTranscript, Status: models.LogFailed, Error: "timeout"})
	record(t, gdb, Entry{VideoID: 2, RunID: "r2", Step: models.StepFetchTranscript, Status: models.LogStarted})

	rows, err := ForVideo(gdb, 1)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, models.LogStarted, rows[0].Status)
	assert.Equal(t, "timeout", rows[1].ErrorMessage)
	assert.Less(t, rows[0].ID, rows[1].ID)
}

func TestFailureCount_SinceLastCompletion(t *testing.T) {
	gdb := db.OpenTest(t)
	step := models.StepFetchTranscript

	n, err := FailureCount(gdb, 1, step, nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	record(t, gdb, Entry{VideoID: 1, Step: step, Status: models.LogFailed})
	record(t, gdb, Entry{VideoID: 1, Step: step, Status: models.LogFailed})
	n, err = FailureCount(gdb, 1, step, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	record(t, gdb, Entry{VideoID: 1, Step: step, Status: models.LogCompleted})
	record(t, gdb, Entry{VideoID: 1, Step: step, Status: models.LogFailed})
	n, err = FailureCount(gdb, 1, step, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "only failures after the completion count")

	n, err = FailureCount(gdb, 2, step, nil)
	require.NoError(t, err)
	assert.Zero(t, n, "other videos are independent")
}

func TestFailureCount_PerChunk(t *testing.T) {
	gdb := db.OpenTest(t)
	step := models.StepAnalyzeChunk

	record(t, gdb, Entry{VideoID: 1, Step: step, ChunkIndex: Chunk(0), Status: models.LogFailed})
	record(t, gdb, Entry{VideoID: 1, Step: step, ChunkIndex: Chunk(0), Status: models.LogCompleted})
	record(t, gdb, Entry{VideoID: 1, Step: step, ChunkIndex: Chunk(1), Status: models.LogFailed})
	record(t, gdb, Entry{VideoID: 1, Step: step, ChunkIndex: Chunk(1), Status: models.LogFailed})

	n, err := FailureCount(gdb, 1, step, Chunk(0))
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = FailureCount(gdb, 1, step, Chunk(1))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = FailureCount(gdb, 1, step, nil)
	require.NoError(t, err)
	assert.Zero(t, n, "nil chunk only matches rows without a chunk")
}

func TestReset_ClearsCountsAndCompletedChunks(t *testing.T) {
	gdb := db.OpenTest(t)

	record(t, gdb, Entry{VideoID: 1, Step: models.StepFetchTranscript, Status: models.LogFailed})
	record(t, gdb, Entry{VideoID: 1, Step: models.StepAnalyzeChunk, ChunkIndex: Chunk(0), Status: models.LogCompleted})
	record(t, gdb, Entry{VideoID: 1, Step: models.StepAnalyzeChunk, ChunkIndex: Chunk(1), Status: models.LogCompleted})

	done, err := CompletedChunks(gdb, 1)
	require.NoError(t, err)
	assert.Equal(t, map[int]bool{0: true, 1: true}, done)

	record(t, gdb, Entry{VideoID: 1, Step: models.StepReingest, Status: models.LogCompleted})

	n, err := FailureCount(gdb, 1, models.StepFetchTranscript, nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	done, err = CompletedChunks(gdb, 1)
	require.NoError(t, err)
	assert.Empty(t, done)

	rows, err := ForVideo(gdb, 1)
	require.NoError(t, err)
	assert.Len(t, rows, 4, "reset never deletes history")
}

func TestLastFailure(t *testing.T) {
	gdb := db.OpenTest(t)

	f, err := LastFailure(gdb, 1)
	require.NoError(t, err)
	assert.Nil(t, f)

	record(t, gdb, Entry{VideoID: 1, Step: models.StepFetchTranscript, Status: models.LogFailed, Error: "first"})
	record(t, gdb, Entry{VideoID: 1, Step: models.StepAnalyzeChunk, ChunkIndex: Chunk(3), Status: models.LogFailed, Error: "second"})

	f, err = LastFailure(gdb, 1)
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, "second", f.ErrorMessage)
	require.NotNil(t, f.ChunkIndex)
	assert.Equal(t, 3, *f.ChunkIndex)
}

func TestTokenUsage(t *testing.T) {
	gdb := db.OpenTest(t)
	tokens := func(n int) *int { return &n }

	record(t, gdb, Entry{VideoID: 1, Step: models.StepAnalyzeChunk, ChunkIndex: Chunk(0), Status: models.LogCompleted, TokensUsed: tokens(1200)})
	record(t, gdb, Entry{VideoID: 1, Step: models.StepAnalyzeChunk, ChunkIndex: Chunk(1), Status: models.LogCompleted, TokensUsed: tokens(800)})
	record(t, gdb, Entry{VideoID: 1, Step: models.StepAnalyzeChunk, ChunkIndex: Chunk(2), Status: models.LogFailed, TokensUsed: tokens(999)})
	record(t, gdb, Entry{VideoID: 2, Step: models.StepAnalyzeChunk, ChunkIndex: Chunk(0), Status: models.LogCompleted, TokensUsed: tokens(50)})

	s, err := TokenUsage(gdb, 1)
	require.NoError(t, err)
	assert.Equal(t, TokenSummary{TotalTokens: 2000, Calls: 2}, s)

	total, err := TotalTokens(gdb)
	require.NoError(t, err)
	assert.Equal(t, int64(2050), total)

	m, err := VideoTokenMap(gdb, []uint{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, int64(2000), m[1].TotalTokens)
	assert.Equal(t, int64(50), m[2].TotalTokens)
	_, ok := m[3]
	assert.False(t, ok)

	empty, err := VideoTokenMap(gdb, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestRecent(t *testing.T) {
	gdb := db.OpenTest(t)
	for i := range 5 {
		record(t, gdb, Entry{VideoID: uint(i + 1), Step: models.StepFetchTranscript, Status: models.LogStarted})
	}
	rows, err := Recent(gdb, 3)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, uint(5), rows[0].VideoID)
}
