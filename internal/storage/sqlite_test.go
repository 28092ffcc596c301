package storage_test

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/attendance"
	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/directory"
	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/models"
	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/storage"
)

func ptr[T any](v T) *T { return &v }

var _ = Describe("SQLiteStore", func() {
	var (
		ctx   context.Context
		store *storage.SQLiteStore
		day   time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		store, err = storage.NewSQLiteStore("file:" + uuid.NewString() + "?mode=memory&cache=shared")
		Expect(err).ToNot(HaveOccurred())
		Expect(store.Migrate(ctx)).To(Succeed())
		DeferCleanup(store.Close)

		day = time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	})

	Describe("accounts", func() {
		BeforeEach(func() {
			for _, id := range []models.Identity{
				{Email: "zara@example.com", Role: models.RoleEmployee, DisplayName: "Zara Abbas"},
				{Email: "abhishek@example.com", Role: models.RoleEmployee, DisplayName: "Abhishek Kumar"},
				{Email: "priya@example.com", Role: models.RoleHR, DisplayName: "Priya Nair"},
			} {
				Expect(store.UpsertIdentity(ctx, id)).To(Succeed())
			}
		})

		It("lists a role table ordered by email", func() {
			ids, err := store.ListRole(ctx, models.RoleEmployee)
			Expect(err).ToNot(HaveOccurred())
			Expect(ids).To(HaveLen(2))
			Expect(ids[0].Email).To(Equal("abhishek@example.com"))
			Expect(ids[0].DisplayName).To(Equal("Abhishek Kumar"))
			Expect(ids[1].Email).To(Equal("zara@example.com"))
		})

		It("finds active users and their role tables", func() {
			id, err := store.FindByEmail(ctx, "priya@example.com")
			Expect(err).ToNot(HaveOccurred())
			Expect(id).ToNot(BeNil())
			Expect(id.Role).To(Equal(models.RoleHR))

			ok, err := store.ExistsInAnyRoleTable(ctx, "priya@example.com")
			Expect(err).ToNot(HaveOccurred())
			Expect(ok).To(BeTrue())

			missing, err := store.FindByEmail(ctx, "ghost@example.com")
			Expect(err).ToNot(HaveOccurred())
			Expect(missing).To(BeNil())
		})

		It("updates the display name on a second upsert", func() {
			Expect(store.UpsertIdentity(ctx, models.Identity{
				Email: "priya@example.com", Role: models.RoleHR, DisplayName: "Priya N",
			})).To(Succeed())

			ids, err := store.ListRole(ctx, models.RoleHR)
			Expect(err).ToNot(HaveOccurred())
			Expect(ids).To(ConsistOf(HaveField("DisplayName", "Priya N")))
		})

		It("backs the identity resolver", func() {
			r := directory.NewResolver(store)
			id, err := r.Resolve(ctx, "abhi")
			Expect(err).ToNot(HaveOccurred())
			Expect(id).ToNot(BeNil())
			Expect(id.Email).To(Equal("abhishek@example.com"))
		})

		It("rejects unknown roles", func() {
			_, err := store.ListRole(ctx, models.Role("intern"))
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("attendance", func() {
		const email = "abhishek@example.com"

		It("creates one record per email and day", func() {
			in := day.Add(9 * time.Hour)
			first, created, err := store.CreateOrGetAttendance(ctx, &models.AttendanceRecord{
				Email: email, Role: models.RoleEmployee, Date: day, CheckIn: &in,
			})
			Expect(err).ToNot(HaveOccurred())
			Expect(created).To(BeTrue())
			Expect(*first.CheckIn).To(BeTemporally("==", in))

			later := day.Add(10 * time.Hour)
			second, created, err := store.CreateOrGetAttendance(ctx, &models.AttendanceRecord{
				Email: email, Date: day, CheckIn: &later,
			})
			Expect(err).ToNot(HaveOccurred())
			Expect(created).To(BeFalse())
			Expect(second.ID).To(Equal(first.ID))
			Expect(*second.CheckIn).To(BeTemporally("==", in))
		})

		It("sets the check-out only once", func() {
			in := day.Add(9 * time.Hour)
			rec, _, err := store.CreateOrGetAttendance(ctx, &models.AttendanceRecord{Email: email, Date: day, CheckIn: &in})
			Expect(err).ToNot(HaveOccurred())

			ok, err := store.SetCheckOut(ctx, rec.ID, day.Add(17*time.Hour))
			Expect(err).ToNot(HaveOccurred())
			Expect(ok).To(BeTrue())

			ok, err = store.SetCheckOut(ctx, rec.ID, day.Add(18*time.Hour))
			Expect(err).ToNot(HaveOccurred())
			Expect(ok).To(BeFalse())

			got, err := store.GetAttendance(ctx, email, day)
			Expect(err).ToNot(HaveOccurred())
			Expect(*got.CheckOut).To(BeTemporally("==", day.Add(17*time.Hour)))
			Expect(got.State()).To(Equal(models.StateCheckedOut))
		})

		It("lists a day by check-in time", func() {
			for i, e := range []string{"late@example.com", "early@example.com"} {
				in := day.Add(time.Duration(10-i) * time.Hour)
				_, _, err := store.CreateOrGetAttendance(ctx, &models.AttendanceRecord{Email: e, Date: day, CheckIn: &in})
				Expect(err).ToNot(HaveOccurred())
			}
			in := day.Add(33 * time.Hour)
			_, _, err := store.CreateOrGetAttendance(ctx, &models.AttendanceRecord{Email: "tomorrow@example.com", Date: day.AddDate(0, 0, 1), CheckIn: &in})
			Expect(err).ToNot(HaveOccurred())

			recs, err := store.ListAttendanceByDate(ctx, day)
			Expect(err).ToNot(HaveOccurred())
			Expect(recs).To(HaveLen(2))
			Expect(recs[0].Email).To(Equal("early@example.com"))
			Expect(recs[1].Email).To(Equal("late@example.com"))
		})

		It("serialises concurrent marks through the ledger", func() {
			Expect(store.UpsertIdentity(ctx, models.Identity{Email: email, Role: models.RoleEmployee, DisplayName: "Abhishek Kumar"})).To(Succeed())
			ledger := attendance.NewLedger(store, store, time.UTC)

			var (
				wg          sync.WaitGroup
				mu          sync.Mutex
				transitions = map[models.Transition]int{}
			)
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func(i int) {
					defer GinkgoRecover()
					defer wg.Done()
					m, err := ledger.Record(ctx, email, day.Add(9*time.Hour+time.Duration(i)*time.Minute))
					Expect(err).ToNot(HaveOccurred())
					mu.Lock()
					transitions[m.Transition]++
					mu.Unlock()
				}(i)
			}
			wg.Wait()

			Expect(transitions).To(Equal(map[models.Transition]int{
				models.TransitionCheckedIn:  1,
				models.TransitionCheckedOut: 1,
				models.TransitionNone:       6,
			}))
			recs, err := store.ListAttendanceByDate(ctx, day)
			Expect(err).ToNot(HaveOccurred())
			Expect(recs).To(HaveLen(1))
		})
	})

	Describe("recognition events", func() {
		BeforeEach(func() {
			base := day.Add(9 * time.Hour)
			events := []models.RecognitionEvent{
				{Outcome: models.OutcomeMatched, Label: "abhishek", Email: ptr("Abhishek@example.com"), Distance: ptr(0.2), Confidence: ptr(80.0), Transition: models.TransitionCheckedIn, Date: day, OccurredAt: base},
				{Outcome: models.OutcomeUnknown, Label: "Unknown", Transition: models.TransitionNone, Date: day, OccurredAt: base.Add(time.Minute)},
				{Outcome: models.OutcomeNoFace, Label: "No face detected", Transition: models.TransitionNone, Date: day.AddDate(0, 0, 1), OccurredAt: base.Add(24 * time.Hour)},
			}
			for i := range events {
				Expect(store.CreateRecognitionEvent(ctx, &events[i])).To(Succeed())
			}
		})

		It("pages newest first with a total", func() {
			got, total, err := store.QueryRecognitionEvents(ctx, models.RecognitionEventQuery{Limit: 2})
			Expect(err).ToNot(HaveOccurred())
			Expect(total).To(Equal(3))
			Expect(got).To(HaveLen(2))
			Expect(got[0].Outcome).To(Equal(models.OutcomeNoFace))
			Expect(got[1].Outcome).To(Equal(models.OutcomeUnknown))
		})

		It("filters by date, outcome and email", func() {
			got, total, err := store.QueryRecognitionEvents(ctx, models.RecognitionEventQuery{Date: &day})
			Expect(err).ToNot(HaveOccurred())
			Expect(total).To(Equal(2))
			Expect(got).To(HaveLen(2))

			got, _, err = store.QueryRecognitionEvents(ctx, models.RecognitionEventQuery{Email: "abhishek@example.com"})
			Expect(err).ToNot(HaveOccurred())
			Expect(got).To(HaveLen(1))
			Expect(*got[0].Confidence).To(Equal(80.0))
			Expect(got[0].Transition).To(Equal(models.TransitionCheckedIn))

			_, total, err = store.QueryRecognitionEvents(ctx, models.RecognitionEventQuery{Outcome: models.OutcomeNotMarked})
			Expect(err).ToNot(HaveOccurred())
			Expect(total).To(BeZero())
		})
	})
})
