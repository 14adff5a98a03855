package jobserver_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/masa-finance/timeline-worker/api/types"
	"github.com/masa-finance/timeline-worker/internal/config"
	"github.com/masa-finance/timeline-worker/internal/jobs/stats"
	. "github.com/masa-finance/timeline-worker/internal/jobserver"
	"github.com/masa-finance/timeline-worker/internal/upstream"
)

var errStoreDown = errors.New("store unavailable")

// startFailingStore is a job store whose MarkRunning always fails.
type startFailingStore struct {
	JobStore
}

func (s startFailingStore) MarkRunning(context.Context, string) error {
	return errStoreDown
}

var _ = Describe("Jobserver", func() {
	var (
		ctx       context.Context
		cancel    context.CancelFunc
		server    *httptest.Server
		calls     atomic.Int32
		handler   http.HandlerFunc
		stores    *Stores
		collector *stats.StatsCollector
		jc        config.JobConfiguration
	)

	BeforeEach(func() {
		ctx, cancel = context.WithCancel(context.Background())
		DeferCleanup(cancel)

		calls.Store(0)
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			handler(w, r)
		}))
		DeferCleanup(server.Close)

		memory := NewMemoryJobStore(100, time.Hour)
		DeferCleanup(memory.Close)
		files, err := NewFileArtifactStore(GinkgoT().TempDir())
		Expect(err).NotTo(HaveOccurred())
		stores = &Stores{Jobs: memory, Artifacts: files}

		collector = stats.StartCollector(128)
		jc = config.JobConfiguration{
			"max_jobs":            2,
			"job_queue_size":      4,
			"stats_flush_every":   1,
			"upstream_api_key":    "default-key",
			"pause_poll_interval": time.Millisecond,
		}
	})

	newServer := func() *JobServer {
		paginator := upstream.NewPaginator(
			upstream.BaseURL(server.URL),
			upstream.Retries(3),
			upstream.RetryBackoff(time.Millisecond),
			upstream.Timeout(time.Second),
		)
		return NewJobServer(jc, stores, paginator, collector)
	}

	waitForTerminal := func(js *JobServer, id string) types.Job {
		var job types.Job
		Eventually(func() bool {
			var err error
			job, err = js.GetJob(ctx, id)
			Expect(err).NotTo(HaveOccurred())
			return job.Status.IsTerminal()
		}, "5s").Should(BeTrue())
		return job
	}

	It("runs jobs to completion and keeps their results", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("cursor") == "" {
				w.Write([]byte(`{"records":[{"content":"first","likes":10,"timestamp":"2024-05-01T10:00:00Z"},{"content":"second","likes":1,"timestamp":"2024-05-01T11:00:00Z"}],"next_cursor":"c1"}`))
				return
			}
			w.Write([]byte(`{"records":[{"content":"third","likes":20,"timestamp":"2024-05-01T12:00:00Z"}],"next_cursor":""}`))
		}
		js := newServer()

		id, err := js.Submit(ctx, types.JobRequest{Target: "@alice", Filter: types.FilterConfig{MinLikes: 5}})
		Expect(err).NotTo(HaveOccurred())
		Expect(id).NotTo(BeEmpty())

		job, err := js.GetJob(ctx, id)
		Expect(err).NotTo(HaveOccurred())
		Expect(job.Status).To(Equal(types.JobPending))
		Expect(job.Target).To(Equal("alice"))

		go js.Run(ctx)

		job = waitForTerminal(js, id)
		Expect(job.Status).To(Equal(types.JobCompleted))
		Expect(job.Stats).To(Equal(types.Stats{TotalAccepted: 2, TotalSuppressed: 1, Filtered: 1, PagesFetched: 2}))
		Expect(job.ArtifactRef).NotTo(BeEmpty())

		artifact, err := js.GetArtifact(ctx, id)
		Expect(err).NotTo(HaveOccurred())
		Expect(artifact.Target).To(Equal("alice"))
		Expect(artifact.Records).To(HaveLen(2))
		Expect(artifact.Records[0].Content).To(Equal("first"))
		Expect(artifact.Records[1].Content).To(Equal("third"))

		Eventually(func() uint {
			return collector.Get(stats.OriginBackground, stats.RunsCompleted)
		}).Should(Equal(uint(1)))
	})

	It("completes a job when the upstream recovers within the retry budget", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			if calls.Load() <= 2 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			w.Write([]byte(`{"records":[{"content":"only","timestamp":"2024-05-01T10:00:00Z"}],"next_cursor":""}`))
		}
		js := newServer()
		go js.Run(ctx)

		id, err := js.Submit(ctx, types.JobRequest{Target: "alice"})
		Expect(err).NotTo(HaveOccurred())

		job := waitForTerminal(js, id)
		Expect(job.Status).To(Equal(types.JobCompleted))
		Expect(job.Stats.TotalAccepted).To(Equal(1))
		Expect(calls.Load()).To(Equal(int32(3)))
	})

	It("fails a job when every attempt fails", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		js := newServer()
		go js.Run(ctx)

		id, err := js.Submit(ctx, types.JobRequest{Target: "alice"})
		Expect(err).NotTo(HaveOccurred())

		job := waitForTerminal(js, id)
		Expect(job.Status).To(Equal(types.JobFailed))
		Expect(job.ErrorMessage).To(ContainSubstring("503"))
		Expect(calls.Load()).To(Equal(int32(3)))

		_, err = js.GetArtifact(ctx, id)
		Expect(err).To(MatchError(ErrJobNotCompleted))
	})

	It("uses the configured credential when the request has none", func() {
		auth := make(chan string, 2)
		handler = func(w http.ResponseWriter, r *http.Request) {
			auth <- r.Header.Get("Authorization")
			w.Write([]byte(`{"records":[],"next_cursor":""}`))
		}
		js := newServer()
		go js.Run(ctx)

		_, err := js.Submit(ctx, types.JobRequest{Target: "alice"})
		Expect(err).NotTo(HaveOccurred())
		Eventually(auth).Should(Receive(Equal("Bearer default-key")))

		_, err = js.Submit(ctx, types.JobRequest{Target: "bob", Credential: "own-key"})
		Expect(err).NotTo(HaveOccurred())
		Eventually(auth).Should(Receive(Equal("Bearer own-key")))
	})

	It("marks a job failed when the queue cannot take it", func() {
		jc["job_queue_size"] = 1
		js := newServer()

		first, err := js.Submit(ctx, types.JobRequest{Target: "alice"})
		Expect(err).NotTo(HaveOccurred())
		second, err := js.Submit(ctx, types.JobRequest{Target: "bob"})
		Expect(err).To(MatchError(ErrQueueFull))
		Expect(second).NotTo(BeEmpty())

		job, err := js.GetJob(ctx, second)
		Expect(err).NotTo(HaveOccurred())
		Expect(job.Status).To(Equal(types.JobFailed))
		Expect(job.StartedAt).To(BeNil())
		Expect(job.ErrorMessage).To(ContainSubstring("queue is full"))

		job, _ = js.GetJob(ctx, first)
		Expect(job.Status).To(Equal(types.JobPending))
		Expect(js.GetQueueStats().Rejected).To(Equal(int64(1)))
	})

	It("validates requests before creating a job", func() {
		js := newServer()

		_, err := js.Submit(ctx, types.JobRequest{Target: " @ "})
		Expect(err).To(MatchError(ErrEmptyTarget))

		_, err = js.Submit(ctx, types.JobRequest{Target: "alice", Filter: types.FilterConfig{MinLikes: -1}})
		Expect(err).To(MatchError(types.ErrNegativeThreshold))

		Expect(stores.Jobs.(*MemoryJobStore).Len()).To(BeZero())
	})

	It("fails jobs that were still queued at shutdown", func() {
		jc["max_jobs"] = 1
		block := make(chan struct{})
		handler = func(w http.ResponseWriter, r *http.Request) {
			<-block
			w.Write([]byte(`{"records":[],"next_cursor":""}`))
		}
		DeferCleanup(func() { close(block) })
		js := newServer()

		running, err := js.Submit(ctx, types.JobRequest{Target: "alice"})
		Expect(err).NotTo(HaveOccurred())
		queued, err := js.Submit(ctx, types.JobRequest{Target: "bob"})
		Expect(err).NotTo(HaveOccurred())

		done := make(chan struct{})
		go func() {
			js.Run(ctx)
			close(done)
		}()
		Eventually(calls.Load).Should(Equal(int32(1)))

		cancel()
		Eventually(done, "5s").Should(BeClosed())

		for _, id := range []string{running, queued} {
			job, err := js.GetJob(context.Background(), id)
			Expect(err).NotTo(HaveOccurred())
			Expect(job.Status).To(Equal(types.JobFailed))
		}
	})

	It("fails a job the store refuses to start instead of leaving it pending", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"records":[],"next_cursor":""}`))
		}
		stores.Jobs = startFailingStore{JobStore: stores.Jobs}
		js := newServer()
		go js.Run(ctx)

		id, err := js.Submit(ctx, types.JobRequest{Target: "alice"})
		Expect(err).NotTo(HaveOccurred())

		job := waitForTerminal(js, id)
		Expect(job.Status).To(Equal(types.JobFailed))
		Expect(job.ErrorMessage).To(ContainSubstring("store unavailable"))
		Expect(calls.Load()).To(BeZero())
	})
})
