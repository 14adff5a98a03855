package jobserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/masa-finance/timeline-worker/api/types"
	"github.com/masa-finance/timeline-worker/internal/timeline"
)

// ArtifactStore keeps the result buffer of completed runs. The reference
// returned by Save is what a job records as its ArtifactRef.
type ArtifactStore interface {
	Save(ctx context.Context, artifact types.Artifact) (string, error)
	Load(ctx context.Context, ref string) (types.Artifact, error)
}

// FileArtifactStore writes each artifact as a JSON file named after its reference.
type FileArtifactStore struct {
	dir string
}

func NewFileArtifactStore(dataDir string) (*FileArtifactStore, error) {
	dir := filepath.Join(dataDir, "artifacts")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating artifact directory: %w", err)
	}
	return &FileArtifactStore{dir: dir}, nil
}

func (s *FileArtifactStore) Save(_ context.Context, artifact types.Artifact) (string, error) {
	ref := uuid.New().String()
	data, err := json.Marshal(artifact)
	if err != nil {
		return "", fmt.Errorf("encoding artifact: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ref+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("creating artifact file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("writing artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("writing artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path(ref)); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("writing artifact: %w", err)
	}
	return ref, nil
}

func (s *FileArtifactStore) Load(_ context.Context, ref string) (types.Artifact, error) {
	// Only references this store generated are valid file names.
	if _, err := uuid.Parse(ref); err != nil {
		return types.Artifact{}, ErrArtifactNotFound
	}
	data, err := os.ReadFile(s.path(ref))
	if errors.Is(err, os.ErrNotExist) {
		return types.Artifact{}, ErrArtifactNotFound
	}
	if err != nil {
		return types.Artifact{}, fmt.Errorf("reading artifact %s: %w", ref, err)
	}

	var artifact types.Artifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return types.Artifact{}, fmt.Errorf("decoding artifact %s: %w", ref, err)
	}
	return normalizeArtifact(artifact), nil
}

func (s *FileArtifactStore) path(ref string) string {
	return filepath.Join(s.dir, ref+".json")
}

type artifactDocument struct {
	ID             string `bson:"_id"`
	types.Artifact `bson:",inline"`
}

// MongoArtifactStore keeps one document per artifact.
type MongoArtifactStore struct {
	artifacts *mongo.Collection
}

func NewMongoArtifactStore(db *MongoDB) *MongoArtifactStore {
	coll := db.Collection(artifactsCollection)
	createIndex(coll, bson.D{{Key: "target", Value: 1}})
	return &MongoArtifactStore{artifacts: coll}
}

func (s *MongoArtifactStore) Save(ctx context.Context, artifact types.Artifact) (string, error) {
	ref := uuid.New().String()
	if _, err := s.artifacts.InsertOne(ctx, artifactDocument{ID: ref, Artifact: artifact}); err != nil {
		return "", fmt.Errorf("inserting artifact: %w", err)
	}
	return ref, nil
}

func (s *MongoArtifactStore) Load(ctx context.Context, ref string) (types.Artifact, error) {
	var doc artifactDocument
	err := s.artifacts.FindOne(ctx, bson.M{"_id": ref}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return types.Artifact{}, ErrArtifactNotFound
	}
	if err != nil {
		return types.Artifact{}, fmt.Errorf("loading artifact %s: %w", ref, err)
	}
	return normalizeArtifact(doc.Artifact), nil
}

// normalizeArtifact restores the parsed timestamps, which are not stored.
func normalizeArtifact(a types.Artifact) types.Artifact {
	for i := range a.Records {
		a.Records[i] = timeline.Normalize(a.Records[i])
	}
	return a
}
