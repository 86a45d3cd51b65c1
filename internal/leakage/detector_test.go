package leakage_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/afero"

	"github.com/zombor/leakscan/internal/fingerprint"
	"github.com/zombor/leakscan/internal/leakage"
	"github.com/zombor/leakscan/internal/scanning"
)

// mockScanner returns canned results per label
type mockScanner struct {
	mu      sync.Mutex
	results map[string]*scanning.Result
	errs    map[string]error
	calls   []string
}

func (m *mockScanner) Scan(ctx context.Context, label, root string) (*scanning.Result, error) {
	m.mu.Lock()
	m.calls = append(m.calls, label+":"+root)
	m.mu.Unlock()
	if err := m.errs[label]; err != nil {
		return nil, err
	}
	return m.results[label], nil
}

type fixedID struct{ id string }

func (f *fixedID) Generate() string { return f.id }

// steppingClock advances by one second on every call
type steppingClock struct {
	now time.Time
}

func (c *steppingClock) Now() time.Time {
	t := c.now
	c.now = c.now.Add(time.Second)
	return t
}

func noisePNG(seed int64) []byte {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewGray(image.Rect(0, 0, 64, 64))
	for by := 0; by < 8; by++ {
		for bx := 0; bx < 8; bx++ {
			c := color.Gray{Y: uint8(rng.Intn(256))}
			for y := by * 8; y < by*8+8; y++ {
				for x := bx * 8; x < bx*8+8; x++ {
					img.SetGray(x, y, c)
				}
			}
		}
	}
	var buf bytes.Buffer
	Expect(png.Encode(&buf, img)).To(Succeed())
	return buf.Bytes()
}

var _ = Describe("Detector", func() {
	var (
		scanner  *mockScanner
		detector *leakage.Detector
		req      leakage.Request
		result   *leakage.Result
		err      error
		start    time.Time
	)

	BeforeEach(func() {
		start = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

		reference := scanning.NewIndex(fingerprint.KindPerception)
		reference.Add(0x00ff, "train/a.jpg")
		reference.Add(0x00ff, "train/a_copy.jpg")
		reference.Add(0xf0f0, "train/b.jpg")

		query := scanning.NewIndex(fingerprint.KindPerception)
		query.Add(0xf0f1, "valid/b_near.jpg")
		query.Add(0x00ff, "valid/a.jpg")

		scanner = &mockScanner{
			results: map[string]*scanning.Result{
				leakage.LabelReference: {
					Root:       "train",
					Index:      reference,
					Candidates: 4,
					Skipped:    []scanning.Skipped{{Path: "train/broken.jpg", Err: errors.New("decoding image: bad data")}},
				},
				leakage.LabelQuery: {
					Root:       "valid",
					Index:      query,
					Candidates: 2,
					CacheHits:  1,
				},
			},
			errs: map[string]error{},
		}
		detector = leakage.NewDetectorWithDeps(scanner, &fixedID{id: "run-1"}, &steppingClock{now: start})
		req = leakage.Request{ReferenceDir: "train", QueryDir: "valid", Threshold: 5}
	})

	JustBeforeEach(func() {
		result, err = detector.Run(context.Background(), req)
	})

	When("the sets share near-duplicates", func() {
		It("should report every pair in comparison order", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Leaks).To(Equal([]leakage.Leak{
				{Query: "valid/b_near.jpg", Reference: "train/b.jpg", Distance: 1},
				{Query: "valid/a.jpg", Reference: "train/a.jpg", Distance: 0},
				{Query: "valid/a.jpg", Reference: "train/a_copy.jpg", Distance: 0},
			}))
		})

		It("should fill in the run metadata", func() {
			Expect(result.RunID).To(Equal("run-1"))
			Expect(result.StartedAt).To(Equal(start))
			Expect(result.Duration).To(Equal(time.Second))
			Expect(result.Kind).To(Equal(fingerprint.KindPerception))
			Expect(result.Strategy).To(Equal(leakage.StrategyExhaustive))
			Expect(result.Threshold).To(Equal(5))
		})

		It("should summarise both scans", func() {
			Expect(result.Reference).To(Equal(leakage.ScanSummary{
				Label:         leakage.LabelReference,
				Root:          "train",
				Candidates:    4,
				Fingerprinted: 3,
				Distinct:      2,
				Skipped:       []leakage.SkippedFile{{Path: "train/broken.jpg", Error: "decoding image: bad data"}},
			}))
			Expect(result.Query.Fingerprinted).To(Equal(2))
			Expect(result.Query.CacheHits).To(Equal(1))
			Expect(result.Query.Skipped).To(BeEmpty())
		})
	})

	When("sorting is requested", func() {
		BeforeEach(func() {
			req.Sort = true
		})

		It("should order leaks by distance", func() {
			Expect(result.Leaks[0].Distance).To(Equal(0))
			Expect(result.Leaks[2]).To(Equal(leakage.Leak{Query: "valid/b_near.jpg", Reference: "train/b.jpg", Distance: 1}))
		})
	})

	When("the BK-tree strategy is selected", func() {
		var exhaustive []leakage.Leak

		BeforeEach(func() {
			r, err := detector.Run(context.Background(), req)
			Expect(err).NotTo(HaveOccurred())
			exhaustive = r.Leaks
			req.Strategy = leakage.StrategyBKTree
		})

		It("should produce the same leaks", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Strategy).To(Equal(leakage.StrategyBKTree))
			Expect(result.Leaks).To(Equal(exhaustive))
		})
	})

	When("scanning sequentially", func() {
		BeforeEach(func() {
			req.Sequential = true
		})

		It("should scan the reference set first", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(scanner.calls).To(Equal([]string{"reference:train", "query:valid"}))
			Expect(result.Leaks).To(HaveLen(3))
		})
	})

	When("the threshold is zero", func() {
		BeforeEach(func() {
			req.Threshold = 0
		})

		It("should report exact matches only", func() {
			Expect(result.Leaks).To(HaveLen(2))
			for _, l := range result.Leaks {
				Expect(l.Distance).To(BeZero())
			}
		})
	})

	When("the threshold is negative", func() {
		BeforeEach(func() {
			req.Threshold = -1
		})

		It("returns the error without scanning", func() {
			Expect(errors.Is(err, leakage.ErrNegativeThreshold)).To(BeTrue())
			Expect(result).To(BeNil())
			Expect(scanner.calls).To(BeEmpty())
		})
	})

	When("the strategy is unknown", func() {
		BeforeEach(func() {
			req.Strategy = "quadtree"
		})

		It("returns the error", func() {
			Expect(err).To(MatchError(ContainSubstring("unknown strategy")))
		})
	})

	When("the reference scan fails", func() {
		BeforeEach(func() {
			scanner.errs[leakage.LabelReference] = scanning.ErrRootUnreadable
		})

		It("returns the wrapped error and no result", func() {
			Expect(err).To(MatchError(ContainSubstring("scanning reference set")))
			Expect(errors.Is(err, scanning.ErrRootUnreadable)).To(BeTrue())
			Expect(result).To(BeNil())
		})
	})

	When("the query scan fails", func() {
		BeforeEach(func() {
			scanner.errs[leakage.LabelQuery] = context.Canceled
		})

		It("returns the wrapped error", func() {
			Expect(err).To(MatchError(ContainSubstring("scanning query set")))
			Expect(errors.Is(err, context.Canceled)).To(BeTrue())
		})
	})

	When("the indices hold different hash kinds", func() {
		BeforeEach(func() {
			scanner.results[leakage.LabelQuery].Index = scanning.NewIndex(fingerprint.KindDifference)
		})

		It("returns the error", func() {
			Expect(errors.Is(err, leakage.ErrKindMismatch)).To(BeTrue())
		})
	})
})

var _ = Describe("Detector with a real scanner", func() {
	var (
		fs     afero.Fs
		req    leakage.Request
		result *leakage.Result
		err    error
	)

	BeforeEach(func() {
		fs = afero.NewMemMapFs()
		Expect(fs.MkdirAll("/data/train", 0o755)).To(Succeed())
		Expect(fs.MkdirAll("/data/valid", 0o755)).To(Succeed())
		req = leakage.Request{ReferenceDir: "/data/train", QueryDir: "/data/valid", Threshold: 5}
	})

	JustBeforeEach(func() {
		hasher, herr := fingerprint.NewHasher(fingerprint.KindPerception)
		Expect(herr).NotTo(HaveOccurred())
		scanner := scanning.NewScanner(fs, hasher, scanning.Options{Workers: 2})
		result, err = leakage.NewDetector(scanner).Run(context.Background(), req)
	})

	When("a query image is a byte copy of a reference image", func() {
		BeforeEach(func() {
			Expect(afero.WriteFile(fs, "/data/train/A.png", noisePNG(1), 0o644)).To(Succeed())
			Expect(afero.WriteFile(fs, "/data/train/B.png", noisePNG(2), 0o644)).To(Succeed())
			Expect(afero.WriteFile(fs, "/data/valid/A.png", noisePNG(1), 0o644)).To(Succeed())
		})

		It("should report it at distance zero", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Leaks).To(ContainElement(leakage.Leak{
				Query:     "/data/valid/A.png",
				Reference: "/data/train/A.png",
				Distance:  0,
			}))
			Expect(result.Reference.Fingerprinted).To(Equal(2))
			Expect(result.Query.Fingerprinted).To(Equal(1))
			Expect(result.RunID).NotTo(BeEmpty())
		})
	})

	When("the images are unrelated", func() {
		BeforeEach(func() {
			Expect(afero.WriteFile(fs, "/data/train/x.png", noisePNG(10), 0o644)).To(Succeed())
			Expect(afero.WriteFile(fs, "/data/valid/y.png", noisePNG(20), 0o644)).To(Succeed())
		})

		It("should report no leaks", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Leaks).To(BeEmpty())
		})
	})

	When("the query set contains a corrupt file", func() {
		BeforeEach(func() {
			Expect(afero.WriteFile(fs, "/data/train/x.png", noisePNG(10), 0o644)).To(Succeed())
			Expect(afero.WriteFile(fs, "/data/valid/good.png", noisePNG(30), 0o644)).To(Succeed())
			Expect(afero.WriteFile(fs, "/data/valid/bad.jpg", []byte("not an image"), 0o644)).To(Succeed())
		})

		It("should skip it and carry on", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Query.Fingerprinted).To(Equal(1))
			Expect(result.Query.Skipped).To(HaveLen(1))
			Expect(result.Query.Skipped[0].Path).To(Equal("/data/valid/bad.jpg"))
		})
	})

	When("the reference directory does not exist", func() {
		BeforeEach(func() {
			req.ReferenceDir = "/data/missing"
		})

		It("returns a fatal error", func() {
			Expect(errors.Is(err, scanning.ErrRootUnreadable)).To(BeTrue())
			Expect(result).To(BeNil())
		})
	})
})
