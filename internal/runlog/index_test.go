package runlog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexSearch(t *testing.T) {
	idx, err := OpenIndex("")
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	ctx := context.Background()
	at := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, idx.Record(ctx, NewEntry("r1", "vector databases", "Pgvector and Qdrant dominate retrieval workloads.", "{}", at)))
	require.NoError(t, idx.Record(ctx, NewEntry("r2", "robot learning", "Diffusion policies improve manipulation.", "{}", at)))

	n, err := idx.Count()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), n)

	hits, err := idx.Search(ctx, "qdrant", 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "r1", hits[0].RunID)
	assert.Equal(t, "vector databases", hits[0].UserRequest)

	hits, err = idx.Search(ctx, "   ", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestIndexOnDiskReopens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.bleve")
	idx, err := OpenIndex(path)
	require.NoError(t, err)
	require.NoError(t, idx.Record(context.Background(), NewEntry("r1", "graph databases", "Neo4j", "{}", time.Now())))
	require.NoError(t, idx.Close())

	idx, err = OpenIndex(path)
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	hits, err := idx.Search(context.Background(), "neo4j", 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "r1", hits[0].RunID)
}
