package jobserver_test

import (
	"context"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/masa-finance/timeline-worker/api/types"
	"github.com/masa-finance/timeline-worker/internal/config"
	. "github.com/masa-finance/timeline-worker/internal/jobserver"
)

var _ = Describe("FileArtifactStore", func() {
	var (
		ctx     context.Context
		dataDir string
		store   *FileArtifactStore
	)

	BeforeEach(func() {
		ctx = context.Background()
		dataDir = GinkgoT().TempDir()
		var err error
		store, err = NewFileArtifactStore(dataDir)
		Expect(err).NotTo(HaveOccurred())
	})

	It("stores an artifact under a fresh reference", func() {
		artifact := types.Artifact{
			Target: "alice",
			Records: []types.Record{
				{Content: "hello", LikeCount: 3, RawTimestamp: "2024-05-01T10:00:00Z"},
			},
			Stats:     types.Stats{TotalAccepted: 1, PagesFetched: 1},
			CreatedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		}

		ref, err := store.Save(ctx, artifact)
		Expect(err).NotTo(HaveOccurred())
		Expect(filepath.Join(dataDir, "artifacts", ref+".json")).To(BeARegularFile())

		loaded, err := store.Load(ctx, ref)
		Expect(err).NotTo(HaveOccurred())
		Expect(loaded.Target).To(Equal("alice"))
		Expect(loaded.Stats).To(Equal(artifact.Stats))
		Expect(loaded.Records).To(HaveLen(1))
		Expect(loaded.Records[0].Content).To(Equal("hello"))
		Expect(loaded.Records[0].Timestamp).To(Equal(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)))
	})

	It("does not leave temporary files behind", func() {
		_, err := store.Save(ctx, types.Artifact{Target: "alice"})
		Expect(err).NotTo(HaveOccurred())

		entries, err := os.ReadDir(filepath.Join(dataDir, "artifacts"))
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(HaveLen(1))
		Expect(entries[0].Name()).To(HaveSuffix(".json"))
	})

	It("reports unknown and malformed references as not found", func() {
		_, err := store.Load(ctx, "3f2504e0-4f89-11d3-9a0c-0305e82c3301")
		Expect(err).To(MatchError(ErrArtifactNotFound))
		_, err = store.Load(ctx, "../../etc/passwd")
		Expect(err).To(MatchError(ErrArtifactNotFound))
	})
})

var _ = Describe("NewStoresFromConfig", func() {
	It("opens the in-memory job store and file artifact store", func() {
		stores, err := NewStoresFromConfig(context.Background(), config.StoreConfig{
			JobStore:      config.StoreMemory,
			ArtifactStore: config.StoreFile,
			DataDir:       GinkgoT().TempDir(),
		})
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(stores.Close)

		Expect(stores.Jobs).To(BeAssignableToTypeOf(&MemoryJobStore{}))
		Expect(stores.Artifacts).To(BeAssignableToTypeOf(&FileArtifactStore{}))
	})

	It("rejects unknown backends", func() {
		_, err := NewStoresFromConfig(context.Background(), config.StoreConfig{JobStore: "postgres"})
		Expect(err).To(MatchError(ErrUnknownBackend))
	})
})
