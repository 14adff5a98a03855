package timeline_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/masa-finance/timeline-worker/api/types"
	. "github.com/masa-finance/timeline-worker/internal/timeline"
)

var _ = Describe("DedupIndex", func() {
	var index *DedupIndex

	BeforeEach(func() {
		index = NewDedupIndex()
	})

	It("remembers marked keys", func() {
		r := types.Record{Content: "hello", RawTimestamp: "2024-01-01"}
		Expect(index.Seen(AcquiredKey(r))).To(BeFalse())
		index.Mark(AcquiredKey(r))
		Expect(index.Seen(AcquiredKey(r))).To(BeTrue())
	})

	It("keys on content and the raw timestamp only", func() {
		a := types.Record{Content: "hello", RawTimestamp: "not a date", LikeCount: 1}
		b := types.Record{Content: "hello", RawTimestamp: "not a date", LikeCount: 99}
		c := types.Record{Content: "hello", RawTimestamp: "another"}
		index.Mark(AcquiredKey(a))
		Expect(index.Seen(AcquiredKey(b))).To(BeTrue())
		Expect(index.Seen(AcquiredKey(c))).To(BeFalse())
	})

	It("keeps acquisition and delivery scopes apart", func() {
		r := types.Record{Content: "hello"}
		index.Mark(AcquiredKey(r))
		Expect(index.Seen(DeliveredKey(r))).To(BeFalse())
		index.Mark(DeliveredKey(r))
		Expect(index.Len()).To(Equal(2))
	})
})
