package jobserver

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/masa-finance/timeline-worker/api/types"
)

// MongoJobStore persists jobs in a MongoDB collection, one document per job.
// Status changes are conditional updates, so an illegal transition never
// reaches the document even under concurrent writers.
type MongoJobStore struct {
	jobs *mongo.Collection
}

func NewMongoJobStore(db *MongoDB) *MongoJobStore {
	coll := db.Collection(jobsCollection)
	createIndex(coll, bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: 1}})
	return &MongoJobStore{jobs: coll}
}

func (s *MongoJobStore) Create(ctx context.Context, target string, filter types.FilterConfig) (string, error) {
	job := newJob(target, filter)
	if _, err := s.jobs.InsertOne(ctx, job); err != nil {
		return "", fmt.Errorf("inserting job: %w", err)
	}
	return job.ID, nil
}

func (s *MongoJobStore) MarkRunning(ctx context.Context, id string) error {
	return s.transition(ctx, id, types.JobRunning, bson.M{"started_at": now()})
}

func (s *MongoJobStore) UpdateStats(ctx context.Context, id string, stats types.Stats) error {
	res, err := s.jobs.UpdateOne(ctx,
		bson.M{"_id": id, "status": types.JobRunning},
		bson.M{"$set": bson.M{"stats": stats}},
	)
	if err != nil {
		return fmt.Errorf("updating stats of job %s: %w", id, err)
	}
	if res.MatchedCount > 0 {
		return nil
	}
	job, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	return errNotRunning(id, job.Status)
}

func (s *MongoJobStore) MarkCompleted(ctx context.Context, id string, stats types.Stats, artifactRef string) error {
	return s.transition(ctx, id, types.JobCompleted, bson.M{
		"stats":        stats,
		"artifact_ref": artifactRef,
		"completed_at": now(),
	})
}

func (s *MongoJobStore) MarkFailed(ctx context.Context, id string, errorMessage string) error {
	return s.transition(ctx, id, types.JobFailed, bson.M{
		"error_message": errorMessage,
		"completed_at":  now(),
	})
}

func (s *MongoJobStore) Get(ctx context.Context, id string) (types.Job, error) {
	var job types.Job
	err := s.jobs.FindOne(ctx, bson.M{"_id": id}).Decode(&job)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return types.Job{}, ErrJobNotFound
	}
	if err != nil {
		return types.Job{}, fmt.Errorf("loading job %s: %w", id, err)
	}
	return job, nil
}

func (s *MongoJobStore) transition(ctx context.Context, id string, to types.JobStatus, set bson.M) error {
	set["status"] = to
	res, err := s.jobs.UpdateOne(ctx,
		bson.M{"_id": id, "status": bson.M{"$in": allowedFrom[to]}},
		bson.M{"$set": set},
	)
	if err != nil {
		return fmt.Errorf("updating job %s: %w", id, err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	job, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := checkTransition(id, job.Status, to); err != nil {
		return err
	}
	return fmt.Errorf("%w: job %s changed status concurrently", ErrInvalidTransition, id)
}
