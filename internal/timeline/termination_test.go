package timeline_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/masa-finance/timeline-worker/api/types"
	. "github.com/masa-finance/timeline-worker/internal/timeline"
)

var _ = Describe("Loop termination", func() {
	Describe("CursorState", func() {
		It("counts only back-to-back identical non-empty cursors", func() {
			var s CursorState
			s.Advance("a")
			Expect(s.SameCursorStreak).To(Equal(0))
			s.Advance("a")
			Expect(s.SameCursorStreak).To(Equal(1))
			s.Advance("a")
			Expect(s.SameCursorStreak).To(Equal(2))
			s.Advance("b")
			Expect(s.SameCursorStreak).To(Equal(0))
			Expect(s.LastCursor).To(Equal("a"))
			s.Advance("")
			Expect(s.SameCursorStreak).To(Equal(0))
			Expect(s.Exhausted()).To(BeTrue())
		})
	})

	It("stops on an empty cursor", func() {
		reason, stop := ShouldStop(CursorState{}, types.Stats{}, Limits{})
		Expect(stop).To(BeTrue())
		Expect(reason).To(Equal(StopExhausted))
	})

	It("stops once the record ceiling is reached", func() {
		state := CursorState{Cursor: "c"}
		_, stop := ShouldStop(state, types.Stats{TotalAccepted: 4}, Limits{MaxRecords: 5})
		Expect(stop).To(BeFalse())
		reason, stop := ShouldStop(state, types.Stats{TotalAccepted: 5}, Limits{MaxRecords: 5})
		Expect(stop).To(BeTrue())
		Expect(reason).To(Equal(StopMaxRecords))
		Expect(ReachedRecordLimit(types.Stats{TotalAccepted: 100}, 0)).To(BeFalse())
	})

	It("stops at the page ceiling", func() {
		state := CursorState{Cursor: "c"}
		reason, stop := ShouldStop(state, types.Stats{PagesFetched: 3}, Limits{MaxPages: 3})
		Expect(stop).To(BeTrue())
		Expect(reason).To(Equal(StopMaxPages))
		_, stop = ShouldStop(state, types.Stats{PagesFetched: 300}, Limits{})
		Expect(stop).To(BeFalse())
	})

	It("stops after exactly MaxSameCursor identical-cursor pages", func() {
		for maxSame := 1; maxSame <= 5; maxSame++ {
			limits := Limits{MaxSameCursor: maxSame}
			var s CursorState
			pages := 0
			for {
				pages++
				s.Advance("stuck")
				if _, stop := ShouldStop(s, types.Stats{PagesFetched: pages}, limits); stop {
					break
				}
				Expect(pages).To(BeNumerically("<", 100))
			}
			// the first page introduces the cursor, each later one repeats it
			Expect(pages - 1).To(Equal(maxSame))
		}
	})
})
