package knowledge

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cnclabs/kgscore/pkg/kge"
)

const sample = `# toy graph
Barack_Obama born_in Hawaii 1.0
Hawaii part_of USA

Barack_Obama president_of USA 0.5
`

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLoad(t *testing.T) {
	kg := NewKnowledgeGraph(quietLogger())
	require.NoError(t, kg.Load(strings.NewReader(sample)))

	assert.Equal(t, int64(3), kg.NumTriples)
	assert.Equal(t, int64(3), kg.NumEntities)
	assert.Equal(t, int64(3), kg.NumRelations)
	assert.Equal(t, 0.5, kg.Triples[2].Weight)
	assert.Equal(t, 1.0, kg.Triples[1].Weight)

	assert.Equal(t, []kge.HRT{{0, 0, 1}, {1, 1, 2}, {0, 2, 2}}, kg.MappedTriples())
}

func TestLookups(t *testing.T) {
	kg := NewKnowledgeGraph(quietLogger())
	require.NoError(t, kg.Load(strings.NewReader(sample)))

	id, err := kg.EntityID("USA")
	require.NoError(t, err)
	assert.Equal(t, "USA", kg.GetEntityName(id))

	rel, err := kg.RelationID("part_of")
	require.NoError(t, err)
	assert.Equal(t, "part_of", kg.GetRelationName(rel))

	_, err = kg.EntityID("Mars")
	assert.True(t, errors.Is(err, ErrUnknownLabel))
	_, err = kg.RelationID("orbits")
	assert.True(t, errors.Is(err, ErrUnknownLabel))

	assert.Equal(t, "", kg.GetEntityName(99))
	assert.Equal(t, "", kg.GetRelationName(-1))
}

func TestContains(t *testing.T) {
	kg := NewKnowledgeGraph(quietLogger())
	require.NoError(t, kg.Load(strings.NewReader(sample)))

	assert.True(t, kg.Contains(0, 0, 1))
	assert.False(t, kg.Contains(1, 0, 0))
}

func TestLoadMalformed(t *testing.T) {
	tests := map[string]string{
		"too few fields": "a b\n",
		"bad weight":     "a b c heavy\n",
	}
	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			kg := NewKnowledgeGraph(quietLogger())
			err := kg.Load(strings.NewReader(input))
			assert.True(t, errors.Is(err, ErrMalformedLine))
		})
	}
}

func TestLoadTriplesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kg.txt")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	kg := NewKnowledgeGraph(quietLogger())
	require.NoError(t, kg.LoadTriples(path))
	assert.Equal(t, int64(3), kg.NumTriples)

	err := kg.LoadTriples(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestMapTriples(t *testing.T) {
	kg := NewKnowledgeGraph(quietLogger())
	require.NoError(t, kg.Load(strings.NewReader(sample)))

	got, err := kg.MapTriples(strings.NewReader("# held out\nHawaii born_in USA\n\nUSA part_of Hawaii 0.3\n"))
	require.NoError(t, err)
	assert.Equal(t, []kge.HRT{{1, 0, 2}, {2, 1, 1}}, got)
	assert.Equal(t, int64(3), kg.NumEntities)
	assert.Equal(t, int64(3), kg.NumTriples)

	_, err = kg.MapTriples(strings.NewReader("Hawaii born_in Mars\n"))
	assert.True(t, errors.Is(err, ErrUnknownLabel))
	assert.Contains(t, err.Error(), "line 1")

	_, err = kg.MapTriples(strings.NewReader("Hawaii born_in\n"))
	assert.True(t, errors.Is(err, ErrMalformedLine))
}
