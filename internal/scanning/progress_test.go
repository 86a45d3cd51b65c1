package scanning

import (
	"bytes"
	"log/slog"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ProgressTracker", func() {
	var (
		out     *bytes.Buffer
		tracker *ProgressTracker
	)

	BeforeEach(func() {
		out = &bytes.Buffer{}
	})

	When("writing to a terminal", func() {
		BeforeEach(func() {
			tracker = NewProgressTracker(out, true)
			tracker.interval = 0
		})

		It("should draw every label on one line", func() {
			tracker.Update("reference", 1, 4)
			tracker.Update("query", 2, 2)
			Expect(out.String()).To(HaveSuffix("\rProgress: query: 2/2  reference: 1/4"))
		})

		It("should ignore stale updates", func() {
			tracker.Update("reference", 3, 4)
			tracker.Update("reference", 2, 4)
			Expect(out.String()).To(HaveSuffix("reference: 3/4"))
		})

		It("should end the line on finish", func() {
			tracker.Update("reference", 4, 4)
			tracker.Finish()
			Expect(out.String()).To(HaveSuffix("\n"))
		})
	})

	When("not writing to a terminal", func() {
		var logs *bytes.Buffer

		BeforeEach(func() {
			tracker = NewProgressTracker(out, false)
			logs = &bytes.Buffer{}
			previous := slog.Default()
			slog.SetDefault(slog.New(slog.NewTextHandler(logs, nil)))
			DeferCleanup(func() { slog.SetDefault(previous) })
		})

		It("should log at every tenth and leave the writer untouched", func() {
			for i := 1; i <= 20; i++ {
				tracker.Update("query", i, 20)
			}
			tracker.Finish()
			Expect(strings.Count(logs.String(), "Scan progress")).To(Equal(10))
			Expect(out.Len()).To(BeZero())
		})
	})
})
