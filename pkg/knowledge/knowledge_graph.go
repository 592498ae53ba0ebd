package knowledge

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/cnclabs/kgscore/pkg/kge"
)

var (
	// ErrUnknownLabel is returned when a label has no id
	ErrUnknownLabel = errors.New("knowledge: unknown label")

	// ErrMalformedLine is returned for lines with fewer than three fields
	ErrMalformedLine = errors.New("knowledge: malformed line")
)

// Triple represents a knowledge graph triple (head, relation, tail)
type Triple struct {
	Head     int64
	Relation int64
	Tail     int64
	Weight   float64
}

// HRT returns the id record used by the scorers
func (t Triple) HRT() kge.HRT {
	return kge.HRT{t.Head, t.Relation, t.Tail}
}

// KnowledgeGraph represents a knowledge graph with entities and relations
type KnowledgeGraph struct {
	// Entity and relation mappings
	EntityHash   map[string]int64
	RelationHash map[string]int64
	EntityKeys   []string
	RelationKeys []string

	// Triples
	Triples []Triple

	// Statistics
	NumEntities  int64
	NumRelations int64
	NumTriples   int64

	known  map[kge.HRT]struct{}
	logger *slog.Logger
}

// NewKnowledgeGraph creates a new knowledge graph instance
func NewKnowledgeGraph(logger *slog.Logger) *KnowledgeGraph {
	if logger == nil {
		logger = slog.Default()
	}
	return &KnowledgeGraph{
		EntityHash:   make(map[string]int64),
		RelationHash: make(map[string]int64),
		EntityKeys:   make([]string, 0),
		RelationKeys: make([]string, 0),
		Triples:      make([]Triple, 0),
		known:        make(map[kge.HRT]struct{}),
		logger:       logger,
	}
}

// LoadTriples loads knowledge graph triples from a file
// Format: head relation tail [weight]
// Example: "Barack_Obama born_in Hawaii 1.0"
func (kg *KnowledgeGraph) LoadTriples(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("failed to open file %s: %w", filename, err)
	}
	defer file.Close()

	kg.logger.Info("loading knowledge graph", "file", filename)
	return kg.Load(file)
}

// Load reads triples from r. Blank lines and lines starting with '#' are skipped.
func (kg *KnowledgeGraph) Load(r io.Reader) error {
	added := int64(0)
	err := scanTriples(r, func(_ int, head, relation, tail string, weight float64) error {
		kg.AddTriple(head, relation, tail, weight)
		added++
		if added%10000 == 0 {
			kg.logger.Debug("loading", "triples", added)
		}
		return nil
	})
	if err != nil {
		return err
	}

	kg.logger.Info("knowledge graph loaded",
		"entities", kg.NumEntities,
		"relations", kg.NumRelations,
		"triples", kg.NumTriples,
	)
	return nil
}

// MapTriples reads triples from r through the existing label maps without
// registering new labels, e.g. for a held-out test split
func (kg *KnowledgeGraph) MapTriples(r io.Reader) ([]kge.HRT, error) {
	var out []kge.HRT
	err := scanTriples(r, func(lineNo int, head, relation, tail string, _ float64) error {
		h, err := kg.EntityID(head)
		if err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
		rel, err := kg.RelationID(relation)
		if err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
		t, err := kg.EntityID(tail)
		if err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
		out = append(out, kge.HRT{h, rel, t})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func scanTriples(r io.Reader, fn func(lineNo int, head, relation, tail string, weight float64) error) error {
	scanner := bufio.NewScanner(r)
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.Fields(line)
		if len(parts) < 3 {
			return fmt.Errorf("%w: line %d has %d fields", ErrMalformedLine, lineNo, len(parts))
		}

		weight := 1.0
		if len(parts) >= 4 {
			w, err := strconv.ParseFloat(parts[3], 64)
			if err != nil {
				return fmt.Errorf("%w: line %d weight %q", ErrMalformedLine, lineNo, parts[3])
			}
			weight = w
		}

		if err := fn(lineNo, parts[0], parts[1], parts[2], weight); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading triples: %w", err)
	}
	return nil
}

// AddTriple registers labels as needed and appends the triple
func (kg *KnowledgeGraph) AddTriple(head, relation, tail string, weight float64) Triple {
	t := Triple{
		Head:     kg.getOrCreateEntity(head),
		Relation: kg.getOrCreateRelation(relation),
		Tail:     kg.getOrCreateEntity(tail),
		Weight:   weight,
	}
	kg.Triples = append(kg.Triples, t)
	kg.known[t.HRT()] = struct{}{}

	kg.NumTriples = int64(len(kg.Triples))
	kg.NumEntities = int64(len(kg.EntityKeys))
	kg.NumRelations = int64(len(kg.RelationKeys))
	return t
}

// getOrCreateEntity gets or creates an entity ID
func (kg *KnowledgeGraph) getOrCreateEntity(name string) int64 {
	if id, exists := kg.EntityHash[name]; exists {
		return id
	}

	id := int64(len(kg.EntityKeys))
	kg.EntityHash[name] = id
	kg.EntityKeys = append(kg.EntityKeys, name)
	return id
}

// getOrCreateRelation gets or creates a relation ID
func (kg *KnowledgeGraph) getOrCreateRelation(name string) int64 {
	if id, exists := kg.RelationHash[name]; exists {
		return id
	}

	id := int64(len(kg.RelationKeys))
	kg.RelationHash[name] = id
	kg.RelationKeys = append(kg.RelationKeys, name)
	return id
}

// EntityID resolves an entity label
func (kg *KnowledgeGraph) EntityID(label string) (int64, error) {
	id, ok := kg.EntityHash[label]
	if !ok {
		return 0, fmt.Errorf("%w: entity %q", ErrUnknownLabel, label)
	}
	return id, nil
}

// RelationID resolves a relation label
func (kg *KnowledgeGraph) RelationID(label string) (int64, error) {
	id, ok := kg.RelationHash[label]
	if !ok {
		return 0, fmt.Errorf("%w: relation %q", ErrUnknownLabel, label)
	}
	return id, nil
}

// GetEntityName returns the name of an entity by ID
func (kg *KnowledgeGraph) GetEntityName(id int64) string {
	if id < 0 || id >= int64(len(kg.EntityKeys)) {
		return ""
	}
	return kg.EntityKeys[id]
}

// GetRelationName returns the name of a relation by ID
func (kg *KnowledgeGraph) GetRelationName(id int64) string {
	if id < 0 || id >= int64(len(kg.RelationKeys)) {
		return ""
	}
	return kg.RelationKeys[id]
}

// Contains reports whether (head, relation, tail) was loaded
func (kg *KnowledgeGraph) Contains(head, relation, tail int64) bool {
	_, ok := kg.known[kge.HRT{head, relation, tail}]
	return ok
}

// MappedTriples returns every triple as an id record, in load order
func (kg *KnowledgeGraph) MappedTriples() []kge.HRT {
	out := make([]kge.HRT, len(kg.Triples))
	for i, t := range kg.Triples {
		out[i] = t.HRT()
	}
	return out
}
