package attendance_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/attendance"
	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/models"
	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/storage/mock"
)

// racingStore loses every check-out race to another writer.
type racingStore struct {
	*mock.MockStore
}

func (s racingStore) SetCheckOut(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	if _, err := s.MockStore.SetCheckOut(ctx, id, at.Add(-time.Minute)); err != nil {
		return false, err
	}
	return false, nil
}

var _ = Describe("Ledger", func() {
	var (
		ctx    context.Context
		store  *mock.MockStore
		ledger *attendance.Ledger
		loc    *time.Location
		day    time.Time
	)

	const email = "abhishek@example.com"

	BeforeEach(func() {
		ctx = context.Background()
		store = mock.NewMockStore()
		store.AddIdentity(models.Identity{Email: email, Role: models.RoleEmployee, DisplayName: "Abhishek Kumar"})
		loc = time.UTC
		ledger = attendance.NewLedger(store, store, loc)
		day = time.Date(2026, 10, 19, 9, 0, 0, 0, loc)
	})

	Describe("Record", func() {
		It("checks in, checks out, then leaves the record alone", func() {
			first, err := ledger.Record(ctx, email, day)
			Expect(err).ToNot(HaveOccurred())
			Expect(first.Transition).To(Equal(models.TransitionCheckedIn))
			Expect(first.Record.CheckIn).ToNot(BeNil())
			Expect(*first.Record.CheckIn).To(BeTemporally("==", day))
			Expect(first.Record.CheckOut).To(BeNil())
			Expect(first.Record.Role).To(Equal(models.RoleEmployee))

			second, err := ledger.Record(ctx, email, day.Add(8*time.Hour))
			Expect(err).ToNot(HaveOccurred())
			Expect(second.Transition).To(Equal(models.TransitionCheckedOut))
			Expect(*second.Record.CheckIn).To(BeTemporally("==", day))
			Expect(*second.Record.CheckOut).To(BeTemporally("==", day.Add(8*time.Hour)))

			third, err := ledger.Record(ctx, email, day.Add(9*time.Hour))
			Expect(err).ToNot(HaveOccurred())
			Expect(third.Transition).To(Equal(models.TransitionNone))
			Expect(*third.Record.CheckOut).To(BeTemporally("==", day.Add(8*time.Hour)))

			Expect(store.AttendanceCount()).To(Equal(1))
		})

		It("starts a new record on the next day", func() {
			_, err := ledger.Record(ctx, email, day)
			Expect(err).ToNot(HaveOccurred())

			next, err := ledger.Record(ctx, email, day.Add(24*time.Hour))
			Expect(err).ToNot(HaveOccurred())
			Expect(next.Transition).To(Equal(models.TransitionCheckedIn))
			Expect(store.AttendanceCount()).To(Equal(2))
		})

		It("computes the date in the configured zone", func() {
			ist := time.FixedZone("IST", 5*3600+1800)
			ledger = attendance.NewLedger(store, store, ist)

			mark, err := ledger.Record(ctx, email, time.Date(2026, 10, 19, 20, 0, 0, 0, time.UTC))
			Expect(err).ToNot(HaveOccurred())
			Expect(mark.Record.Date.Format(models.DateLayout)).To(Equal("2026-10-20"))
		})

		It("refuses an unknown email without writing", func() {
			_, err := ledger.Record(ctx, "ghost@example.com", day)
			Expect(errors.Is(err, attendance.ErrUnknownIdentity)).To(BeTrue())
			Expect(store.AttendanceCount()).To(BeZero())
		})

		It("refuses an account missing from every role table", func() {
			store.SkipRoleTableRows = true
			_, err := ledger.Record(ctx, email, day)
			Expect(errors.Is(err, attendance.ErrUnknownIdentity)).To(BeTrue())
			Expect(store.AttendanceCount()).To(BeZero())
		})

		It("surfaces storage failures", func() {
			store.CreateOrGetError = errors.New("connection reset")
			_, err := ledger.Record(ctx, email, day)
			Expect(err).To(HaveOccurred())
			Expect(errors.Is(err, attendance.ErrUnknownIdentity)).To(BeFalse())
		})

		It("reports the stored check-out when another writer wins", func() {
			ledger = attendance.NewLedger(racingStore{store}, store, loc)

			_, err := ledger.Record(ctx, email, day)
			Expect(err).ToNot(HaveOccurred())

			mark, err := ledger.Record(ctx, email, day.Add(time.Hour))
			Expect(err).ToNot(HaveOccurred())
			Expect(mark.Transition).To(Equal(models.TransitionNone))
			Expect(*mark.Record.CheckOut).To(BeTemporally("==", day.Add(time.Hour-time.Minute)))
		})

		It("keeps one record per day under concurrent recognitions", func() {
			const workers = 16
			var (
				wg          sync.WaitGroup
				mu          sync.Mutex
				transitions = map[models.Transition]int{}
			)
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					defer GinkgoRecover()
					mark, err := ledger.Record(ctx, email, day.Add(time.Duration(i)*time.Second))
					Expect(err).ToNot(HaveOccurred())
					mu.Lock()
					transitions[mark.Transition]++
					mu.Unlock()
				}(i)
			}
			wg.Wait()

			Expect(store.AttendanceCount()).To(Equal(1))
			Expect(transitions[models.TransitionCheckedIn]).To(Equal(1))
			Expect(transitions[models.TransitionCheckedOut]).To(Equal(1))
			Expect(transitions[models.TransitionNone]).To(Equal(workers - 2))

			rec, err := store.GetAttendance(ctx, email, models.DateOf(day, loc))
			Expect(err).ToNot(HaveOccurred())
			Expect(rec.CheckIn).ToNot(BeNil())
			Expect(rec.CheckOut).ToNot(BeNil())
		})
	})

	Describe("Today", func() {
		It("lists only the current day", func() {
			_, err := ledger.Record(ctx, email, day.Add(-24*time.Hour))
			Expect(err).ToNot(HaveOccurred())
			_, err = ledger.Record(ctx, email, day)
			Expect(err).ToNot(HaveOccurred())

			recs, err := ledger.Today(ctx, day.Add(time.Hour))
			Expect(err).ToNot(HaveOccurred())
			Expect(recs).To(HaveLen(1))
			Expect(recs[0].Date.Format(models.DateLayout)).To(Equal("2026-10-19"))
		})
	})
})
