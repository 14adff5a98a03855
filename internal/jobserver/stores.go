package jobserver

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/masa-finance/timeline-worker/internal/config"
)

// Stores bundles the job and artifact backends selected by configuration.
type Stores struct {
	Jobs      JobStore
	Artifacts ArtifactStore
	closers   []func() error
}

// NewStoresFromConfig opens the configured backends. A single Mongo
// connection is shared when both use it.
func NewStoresFromConfig(ctx context.Context, cfg config.StoreConfig) (*Stores, error) {
	s := &Stores{}

	var mongoDB *MongoDB
	if cfg.JobStore == config.StoreMongo || cfg.ArtifactStore == config.StoreMongo {
		db, err := ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		mongoDB = db
		s.closers = append(s.closers, db.Close)
	}

	switch cfg.JobStore {
	case config.StoreMemory, "":
		mem := NewMemoryJobStore(cfg.MaxSize, cfg.MaxAge)
		s.Jobs = mem
		s.closers = append(s.closers, mem.Close)
	case config.StoreMongo:
		s.Jobs = NewMongoJobStore(mongoDB)
	default:
		s.Close()
		return nil, fmt.Errorf("%w: JOB_STORE=%q", ErrUnknownBackend, cfg.JobStore)
	}

	switch cfg.ArtifactStore {
	case config.StoreFile, "":
		files, err := NewFileArtifactStore(cfg.DataDir)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.Artifacts = files
	case config.StoreMongo:
		s.Artifacts = NewMongoArtifactStore(mongoDB)
	default:
		s.Close()
		return nil, fmt.Errorf("%w: ARTIFACT_STORE=%q", ErrUnknownBackend, cfg.ArtifactStore)
	}

	logrus.Infof("Using %s job store and %s artifact store", orDefault(cfg.JobStore, config.StoreMemory), orDefault(cfg.ArtifactStore, config.StoreFile))
	return s, nil
}

func (s *Stores) Close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c())
	}
	s.closers = nil
	return errors.Join(errs...)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
