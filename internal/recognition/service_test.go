package recognition_test

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/attendance"
	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/directory"
	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/gallery"
	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/matcher"
	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/models"
	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/observability"
	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/recognition"
	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/storage/mock"
	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/vision"
	visionmock "github.com/GlobalTechSoftwareSolution/light-pkgs/internal/vision/mock"
)

type capturePublisher struct {
	mu     sync.Mutex
	events []models.RecognitionEvent
	err    error
}

func (p *capturePublisher) PublishRecognition(_ context.Context, e models.RecognitionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

type captureSnapshots struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (s *captureSnapshots) PutObject(_ context.Context, key string, _ []byte, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.keys = append(s.keys, key)
	return nil
}

var _ = Describe("Service", func() {
	var (
		ctx       context.Context
		store     *mock.MockStore
		embedder  *visionmock.MockEmbedder
		publisher *capturePublisher
		snapshots *captureSnapshots
		svc       *recognition.Service
		now       time.Time
	)

	const abhishek = "abhishek@example.com"

	BeforeEach(func() {
		ctx = context.Background()
		now = time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)

		store = mock.NewMockStore()
		store.AddIdentity(models.Identity{Email: abhishek, Role: models.RoleEmployee, DisplayName: "Abhishek Kumar"})

		embedder = visionmock.NewMockEmbedder()
		embedder.AddFace([]byte("abhishek-1"), []float32{0, 0.1})
		embedder.AddFace([]byte("abhishek-2"), []float32{0.1, 0})
		embedder.AddFace([]byte("stranger"), []float32{5, 5})
		embedder.AddFace([]byte("ghost"), []float32{10, 0})
		embedder.AddInvalid([]byte("garbage"))

		g := gallery.New("test", []models.GalleryEntry{
			{Name: "abhi", Embedding: []float32{0, 0}},
			{Name: "casper", Embedding: []float32{10, 0}},
		})

		publisher = &capturePublisher{}
		snapshots = &captureSnapshots{}
		svc = recognition.NewService(
			embedder,
			matcher.New(g, matcher.DefaultThreshold),
			directory.NewResolver(store),
			attendance.NewLedger(store, store, time.UTC),
			recognition.WithPublisher(publisher),
			recognition.WithSnapshots(snapshots),
			recognition.WithClock(func() time.Time { return now }),
		)
	})

	It("checks in, then checks out, then changes nothing", func() {
		first, err := svc.Recognize(ctx, []byte("abhishek-1"))
		Expect(err).ToNot(HaveOccurred())
		Expect(first.Outcome).To(Equal(models.OutcomeMatched))
		Expect(first.Label).To(Equal("abhi"))
		Expect(*first.Email()).To(Equal(abhishek))
		Expect(first.Mark.Transition).To(Equal(models.TransitionCheckedIn))
		Expect(matcher.FormatConfidence(first.Match.Confidence)).To(Equal("90.00%"))

		now = now.Add(8 * time.Hour)
		second, err := svc.Recognize(ctx, []byte("abhishek-2"))
		Expect(err).ToNot(HaveOccurred())
		Expect(second.Mark.Transition).To(Equal(models.TransitionCheckedOut))

		now = now.Add(time.Hour)
		third, err := svc.Recognize(ctx, []byte("abhishek-1"))
		Expect(err).ToNot(HaveOccurred())
		Expect(third.Mark.Transition).To(Equal(models.TransitionNone))
		Expect(*third.Mark.Record.CheckOut).To(BeTemporally("==", now.Add(-time.Hour)))

		Expect(store.AttendanceCount()).To(Equal(1))
		Expect(snapshots.keys).To(HaveLen(2))
		Expect(snapshots.keys[0]).To(HavePrefix("attendance/2026-10-19/" + abhishek + "/checked_in_"))
		Expect(snapshots.keys[1]).To(HavePrefix("attendance/2026-10-19/" + abhishek + "/checked_out_"))
	})

	It("never touches the ledger when no face is found", func() {
		res, err := svc.Recognize(ctx, []byte("empty wall"))
		Expect(err).ToNot(HaveOccurred())
		Expect(res.Outcome).To(Equal(models.OutcomeNoFace))
		Expect(res.Label).To(Equal(matcher.LabelNoFace))
		Expect(res.Email()).To(BeNil())
		Expect(res.Mark).To(BeNil())
		Expect(store.AttendanceCount()).To(BeZero())
	})

	It("reports strangers as Unknown", func() {
		res, err := svc.Recognize(ctx, []byte("stranger"))
		Expect(err).ToNot(HaveOccurred())
		Expect(res.Outcome).To(Equal(models.OutcomeUnknown))
		Expect(res.Label).To(Equal(matcher.LabelUnknown))
		Expect(res.Email()).To(BeNil())
		Expect(store.AttendanceCount()).To(BeZero())
		Expect(snapshots.keys).To(BeEmpty())
	})

	It("keeps the gallery name when no account matches it", func() {
		res, err := svc.Recognize(ctx, []byte("ghost"))
		Expect(err).ToNot(HaveOccurred())
		Expect(res.Outcome).To(Equal(models.OutcomeUnresolved))
		Expect(res.Label).To(Equal("casper"))
		Expect(res.Email()).To(BeNil())
		Expect(store.AttendanceCount()).To(BeZero())
	})

	It("does not mark an account missing from the role tables", func() {
		store.SkipRoleTableRows = true
		res, err := svc.Recognize(ctx, []byte("abhishek-1"))
		Expect(err).ToNot(HaveOccurred())
		Expect(res.Outcome).To(Equal(models.OutcomeNotMarked))
		Expect(*res.Email()).To(Equal(abhishek))
		Expect(res.Mark).To(BeNil())
		Expect(store.AttendanceCount()).To(BeZero())
	})

	It("surfaces invalid images", func() {
		_, err := svc.Recognize(ctx, []byte("garbage"))
		Expect(err).To(MatchError(vision.ErrInvalidImage))
		Expect(publisher.events).To(BeEmpty())
	})

	It("fails the request on storage errors", func() {
		store.CreateOrGetError = errors.New("connection reset")
		_, err := svc.Recognize(ctx, []byte("abhishek-1"))
		Expect(err).To(MatchError(ContainSubstring("connection reset")))
		Expect(publisher.events).To(BeEmpty())
	})

	DescribeTable("counts every failed recognition",
		func(img string, inject func()) {
			before := testutil.ToFloat64(observability.Recognitions.WithLabelValues("error"))
			inject()

			_, err := svc.Recognize(ctx, []byte(img))
			Expect(err).To(HaveOccurred())
			Expect(testutil.ToFloat64(observability.Recognitions.WithLabelValues("error"))).To(Equal(before + 1))
			Expect(publisher.events).To(BeEmpty())
		},
		Entry("undecodable image", "garbage", func() {}),
		Entry("embedder failure", "abhishek-1", func() { embedder.EmbedError = errors.New("onnx session crashed") }),
		Entry("role table failure", "abhishek-1", func() { store.ListRoleError = errors.New("relation does not exist") }),
		Entry("ledger failure", "abhishek-1", func() { store.CreateOrGetError = errors.New("connection reset") }),
	)

	It("publishes one audit event per attempt", func() {
		for _, img := range []string{"abhishek-1", "stranger", "nothing"} {
			_, err := svc.Recognize(ctx, []byte(img))
			Expect(err).ToNot(HaveOccurred())
		}
		Expect(publisher.events).To(HaveLen(3))

		matched := publisher.events[0]
		Expect(matched.Outcome).To(Equal(models.OutcomeMatched))
		Expect(*matched.Email).To(Equal(abhishek))
		Expect(*matched.Confidence).To(BeNumerically("~", 90.0, 1e-9))
		Expect(matched.Transition).To(Equal(models.TransitionCheckedIn))
		Expect(matched.SnapshotKey).ToNot(BeEmpty())
		Expect(matched.CheckIn).ToNot(BeNil())

		unknown := publisher.events[1]
		Expect(unknown.Outcome).To(Equal(models.OutcomeUnknown))
		Expect(unknown.Confidence).To(BeNil())
		Expect(unknown.Distance).ToNot(BeNil())

		Expect(publisher.events[2].Outcome).To(Equal(models.OutcomeNoFace))
		Expect(publisher.events[2].Distance).To(BeNil())
	})

	It("records attendance even when side effects fail", func() {
		publisher.err = errors.New("nats down")
		snapshots.err = errors.New("bucket gone")

		res, err := svc.Recognize(ctx, []byte("abhishek-1"))
		Expect(err).ToNot(HaveOccurred())
		Expect(res.Mark.Transition).To(Equal(models.TransitionCheckedIn))
		Expect(res.Event.SnapshotKey).To(BeEmpty())
	})

	It("marks one check-in under concurrent requests", func() {
		var wg sync.WaitGroup
		for i := 0; i < 12; i++ {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				_, err := svc.Recognize(ctx, []byte("abhishek-1"))
				Expect(err).ToNot(HaveOccurred())
			}()
		}
		wg.Wait()

		Expect(store.AttendanceCount()).To(Equal(1))
		var in, out int
		for _, e := range publisher.events {
			switch e.Transition {
			case models.TransitionCheckedIn:
				in++
			case models.TransitionCheckedOut:
				out++
			}
		}
		Expect(in).To(Equal(1))
		Expect(out).To(Equal(1))
	})

	Describe("RecognizeBase64", func() {
		It("accepts a data URL", func() {
			res, err := svc.RecognizeBase64(ctx, "data:image/jpeg;base64,"+b64("abhishek-1"))
			Expect(err).ToNot(HaveOccurred())
			Expect(res.Outcome).To(Equal(models.OutcomeMatched))
		})

		It("rejects malformed base64", func() {
			_, err := svc.RecognizeBase64(ctx, "data:image/jpeg;base64,@@@")
			Expect(err).To(MatchError(recognition.ErrInvalidPayload))
			Expect(embedder.Calls()).To(BeZero())
		})
	})
})

func b64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}
