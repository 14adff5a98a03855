package jobserver

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("JobQueue", func() {
	var q *JobQueue

	BeforeEach(func() {
		q = NewJobQueue(2)
	})

	AfterEach(func() {
		q.Close()
	})

	It("hands out jobs in submission order", func() {
		Expect(q.Enqueue(queuedJob{ID: "a"})).To(Succeed())
		Expect(q.Enqueue(queuedJob{ID: "b"})).To(Succeed())

		Expect((<-q.Jobs()).ID).To(Equal("a"))
		Expect((<-q.Jobs()).ID).To(Equal("b"))
	})

	It("rejects jobs when full", func() {
		Expect(q.Enqueue(queuedJob{ID: "a"})).To(Succeed())
		Expect(q.Enqueue(queuedJob{ID: "b"})).To(Succeed())
		Expect(q.Enqueue(queuedJob{ID: "c"})).To(MatchError(ErrQueueFull))

		s := q.GetStats()
		Expect(s.Depth).To(Equal(2))
		Expect(s.Capacity).To(Equal(2))
		Expect(s.Enqueued).To(Equal(int64(2)))
		Expect(s.Rejected).To(Equal(int64(1)))
	})

	It("rejects jobs once closed and lets buffered jobs drain", func() {
		Expect(q.Enqueue(queuedJob{ID: "a"})).To(Succeed())
		q.Close()
		q.Close()

		Expect(q.Enqueue(queuedJob{ID: "b"})).To(MatchError(ErrQueueClosed))
		j, ok := <-q.Jobs()
		Expect(ok).To(BeTrue())
		Expect(j.ID).To(Equal("a"))
		_, ok = <-q.Jobs()
		Expect(ok).To(BeFalse())
	})
})
