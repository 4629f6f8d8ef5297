package fsgraph

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/specialistvlad/graphjob/internal/graphbuffer"
	"github.com/specialistvlad/graphjob/internal/graphobject"
)

var jsonAPI = sonic.ConfigStd

type entityChunk struct {
	Entities []*graphobject.Entity `json:"entities"`
}

type relationshipChunk struct {
	Relationships []*graphobject.Relationship `json:"relationships"`
}

// writeChunk writes body as graph/<step>/<collection>/<id>.json, links it
// from index/<collection>/<type>/<id>.json and returns the chunk path.
func (s *Store) writeChunk(collection string, p graphbuffer.Partition, body any) (string, error) {
	if err := checkSegment(p.StepID); err != nil {
		return "", err
	}
	if err := checkSegment(p.Type); err != nil {
		return "", err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generating chunk id: %w", err)
	}
	name := id.String() + ".json"

	data, err := jsonAPI.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encoding chunk: %w", err)
	}

	chunkDir := filepath.Join(s.root, "graph", p.StepID, collection)
	if err := os.MkdirAll(chunkDir, 0o755); err != nil {
		return "", err
	}
	chunkPath := filepath.Join(chunkDir, name)
	if err := os.WriteFile(chunkPath, data, 0o644); err != nil {
		return "", fmt.Errorf("writing chunk %s: %w", chunkPath, err)
	}

	indexDir := filepath.Join(s.root, "index", collection, p.Type)
	if err := os.MkdirAll(indexDir, 0o755); err != nil {
		return "", err
	}
	target, err := filepath.Rel(indexDir, chunkPath)
	if err != nil {
		return "", err
	}
	if err := os.Symlink(target, filepath.Join(indexDir, name)); err != nil {
		return "", fmt.Errorf("indexing chunk %s: %w", chunkPath, err)
	}
	return chunkPath, nil
}

func readEntityChunk(path string) ([]*graphobject.Entity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading chunk %s: %w", path, err)
	}
	var chunk entityChunk
	if err := jsonAPI.Unmarshal(data, &chunk); err != nil {
		return nil, fmt.Errorf("decoding chunk %s: %w", path, err)
	}
	return chunk.Entities, nil
}

func readRelationshipChunk(path string) ([]*graphobject.Relationship, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading chunk %s: %w", path, err)
	}
	var chunk relationshipChunk
	if err := jsonAPI.Unmarshal(data, &chunk); err != nil {
		return nil, fmt.Errorf("decoding chunk %s: %w", path, err)
	}
	return chunk.Relationships, nil
}

// checkSegment rejects values that cannot be used as a single path element.
func checkSegment(s string) error {
	if s == "" || s == "." || s == ".." || strings.ContainsAny(s, `/\`) {
		return fmt.Errorf("%q cannot be used as a path segment", s)
	}
	return nil
}
