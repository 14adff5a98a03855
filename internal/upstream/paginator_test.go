package upstream_test

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	. "github.com/masa-finance/timeline-worker/internal/upstream"
)

var _ = Describe("Paginator", func() {
	var (
		server  *httptest.Server
		calls   atomic.Int32
		handler http.HandlerFunc
	)

	BeforeEach(func() {
		calls.Store(0)
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			handler(w, r)
		}))
	})

	AfterEach(func() {
		server.Close()
	})

	newPaginator := func(retries int) *Paginator {
		return NewPaginator(
			BaseURL(server.URL),
			Retries(retries),
			RetryBackoff(time.Millisecond),
			Timeout(time.Second),
		)
	}

	It("sends the target, cursor and bearer credential", func() {
		var got *http.Request
		handler = func(w http.ResponseWriter, r *http.Request) {
			got = r
			w.Write([]byte(`{"records":[],"next_cursor":""}`))
		}

		_, err := newPaginator(1).FetchPage(context.Background(), "nasa", "secret", "abc")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.URL.Path).To(Equal("/timeline"))
		Expect(got.URL.Query().Get("user")).To(Equal("nasa"))
		Expect(got.URL.Query().Get("cursor")).To(Equal("abc"))
		Expect(got.Header.Get("Authorization")).To(Equal("Bearer secret"))
	})

	It("decodes loosely typed records", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{
				"records": [
					{"content": "first", "likes": 3, "retweets": "7", "comments": null, "timestamp": "2024-05-01T10:00:00Z"},
					{"likes": -2, "timestamp": 1714557600},
					{"content": "odd", "timestamp": "sometime"}
				],
				"next_cursor": "next-1"
			}`))
		}

		page, err := newPaginator(1).FetchPage(context.Background(), "nasa", "", "")
		Expect(err).NotTo(HaveOccurred())
		Expect(page.NextCursor).To(Equal("next-1"))
		Expect(page.Records).To(HaveLen(3))

		Expect(page.Records[0].Content).To(Equal("first"))
		Expect(page.Records[0].LikeCount).To(Equal(3))
		Expect(page.Records[0].RetweetCount).To(Equal(7))
		Expect(page.Records[0].CommentCount).To(BeZero())
		Expect(page.Records[0].Timestamp.IsZero()).To(BeFalse())

		Expect(page.Records[1].Content).To(BeEmpty())
		Expect(page.Records[1].LikeCount).To(BeZero())
		Expect(page.Records[1].RawTimestamp).To(Equal("1714557600"))
		Expect(page.Records[1].Timestamp.IsZero()).To(BeFalse())

		Expect(page.Records[2].RawTimestamp).To(Equal("sometime"))
		Expect(page.Records[2].Timestamp.IsZero()).To(BeTrue())
	})

	It("keeps a record whose content is not a string", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"records":[
				{"content": 42, "likes": 1},
				{"content": {"text": "nested"}, "likes": 2},
				{"content": null, "likes": 3}
			]}`))
		}

		page, err := newPaginator(1).FetchPage(context.Background(), "nasa", "", "")
		Expect(err).NotTo(HaveOccurred())
		Expect(page.Records).To(HaveLen(3))
		Expect(page.Records[0].Content).To(Equal("42"))
		Expect(page.Records[1].Content).To(Equal(`{"text": "nested"}`))
		Expect(page.Records[1].LikeCount).To(Equal(2))
		Expect(page.Records[2].Content).To(BeEmpty())
	})

	It("saturates counts too large to represent", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"records":[
				{"likes": 1e300, "retweets": "1e400", "comments": "Infinity"},
				{"likes": "NaN", "retweets": "-Inf", "comments": 9.9}
			]}`))
		}

		page, err := newPaginator(1).FetchPage(context.Background(), "nasa", "", "")
		Expect(err).NotTo(HaveOccurred())
		Expect(page.Records).To(HaveLen(2))
		Expect(page.Records[0].LikeCount).To(Equal(math.MaxInt))
		Expect(page.Records[0].RetweetCount).To(Equal(math.MaxInt))
		Expect(page.Records[0].CommentCount).To(Equal(math.MaxInt))
		Expect(page.Records[1].LikeCount).To(BeZero())
		Expect(page.Records[1].RetweetCount).To(BeZero())
		Expect(page.Records[1].CommentCount).To(Equal(9))
	})

	It("recovers when a fetch fails twice then succeeds", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			if calls.Load() <= 2 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			w.Write([]byte(`{"records":[{"content":"ok"}],"next_cursor":""}`))
		}

		var retries atomic.Int32
		p := NewPaginator(
			BaseURL(server.URL),
			Retries(3),
			RetryBackoff(time.Millisecond),
			OnRetry(func(error, time.Duration) { retries.Add(1) }),
		)
		page, err := p.FetchPage(context.Background(), "nasa", "", "")
		Expect(err).NotTo(HaveOccurred())
		Expect(page.Records).To(HaveLen(1))
		Expect(calls.Load()).To(Equal(int32(3)))
		Expect(retries.Load()).To(Equal(int32(2)))
	})

	It("gives up after the configured number of attempts", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("down"))
		}

		_, err := newPaginator(3).FetchPage(context.Background(), "nasa", "", "")
		Expect(err).To(MatchError(ErrRetriesExhausted))
		Expect(err.Error()).To(ContainSubstring("503"))
		Expect(calls.Load()).To(Equal(int32(3)))
	})

	It("makes a single attempt when retries is one", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}

		_, err := newPaginator(1).FetchPage(context.Background(), "nasa", "", "")
		Expect(errors.Is(err, ErrRetriesExhausted)).To(BeTrue())
		Expect(calls.Load()).To(Equal(int32(1)))
	})

	It("treats a malformed body as a failed attempt", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{not json`))
		}

		_, err := newPaginator(2).FetchPage(context.Background(), "nasa", "", "")
		Expect(err).To(MatchError(ErrRetriesExhausted))
		Expect(calls.Load()).To(Equal(int32(2)))
	})
	It("spaces requests to the configured rate", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"records":[],"next_cursor":""}`))
		}
		p := NewPaginator(BaseURL(server.URL), Retries(1), RateLimit(20))

		start := time.Now()
		for i := 0; i < 3; i++ {
			_, err := p.FetchPage(context.Background(), "nasa", "", "")
			Expect(err).NotTo(HaveOccurred())
		}
		Expect(time.Since(start)).To(BeNumerically(">=", 90*time.Millisecond))
	})

	It("stops retrying when the context is cancelled", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}
		ctx, cancel := context.WithCancel(context.Background())
		p := NewPaginator(BaseURL(server.URL), Retries(50), RetryBackoff(50*time.Millisecond))

		go func() {
			defer GinkgoRecover()
			Eventually(calls.Load).Should(BeNumerically(">=", 1))
			cancel()
		}()

		_, err := p.FetchPage(ctx, "nasa", "", "")
		Expect(err).To(MatchError(context.Canceled))
		Expect(calls.Load()).To(BeNumerically("<", 50))
	})
})
