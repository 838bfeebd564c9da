package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	reserrors "campsite/internal/reservations/errors"
	"campsite/internal/reservations/events"
	"campsite/internal/reservations/validator"
	"campsite/pkg/config"
	mongotx "campsite/pkg/db/mongo"
	"campsite/pkg/logger"
	"campsite/pkg/model"
)

// In-memory repository with transaction snapshot/rollback semantics.
type fakeReservationRepository struct {
	mu           sync.Mutex
	reservations map[string]*model.Reservation
	nextID       int

	saveErr error
	findErr error
}

func newFakeRepository() *fakeReservationRepository {
	return &fakeReservationRepository{
		reservations: make(map[string]*model.Reservation),
	}
}

func (f *fakeReservationRepository) Save(ctx context.Context, reservation *model.Reservation) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.saveErr != nil {
		return "", f.saveErr
	}

	f.nextID++
	id := fmt.Sprintf("%024x", f.nextID)
	stored := *reservation
	stored.ID = id
	stored.CreatedAt = time.Now()
	f.reservations[id] = &stored
	return id, nil
}

func (f *fakeReservationRepository) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.reservations[id]; !ok {
		return reserrors.ErrNotFound
	}
	delete(f.reservations, id)
	return nil
}

func (f *fakeReservationRepository) FindByID(ctx context.Context, id string) (*model.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.findErr != nil {
		return nil, f.findErr
	}
	reservation, ok := f.reservations[id]
	if !ok {
		return nil, reserrors.ErrNotFound
	}
	copied := *reservation
	return &copied, nil
}

func (f *fakeReservationRepository) FindByIDAndEmail(ctx context.Context, id string, email string) (*model.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.findErr != nil {
		return nil, f.findErr
	}
	reservation, ok := f.reservations[id]
	if !ok || reservation.Email != email {
		return nil, reserrors.ErrNotFound
	}
	copied := *reservation
	return &copied, nil
}

func (f *fakeReservationRepository) FindOverlapping(ctx context.Context, startFrom, endTo model.Date) ([]*model.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.findErr != nil {
		return nil, f.findErr
	}

	var result []*model.Reservation
	for _, reservation := range f.reservations {
		if !reservation.StartFrom.After(endTo) && !reservation.EndTo.Before(startFrom) {
			copied := *reservation
			result = append(result, &copied)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].StartFrom.Before(result[j].StartFrom)
	})
	return result, nil
}

func (f *fakeReservationRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	f.mu.Lock()
	snapshot := make(map[string]*model.Reservation, len(f.reservations))
	for id, reservation := range f.reservations {
		copied := *reservation
		snapshot[id] = &copied
	}
	f.mu.Unlock()

	if err := fn(ctx); err != nil {
		f.mu.Lock()
		f.reservations = snapshot
		f.mu.Unlock()
		return err
	}
	return nil
}

func (f *fakeReservationRepository) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reservations)
}

func (f *fakeReservationRepository) all() []*model.Reservation {
	f.mu.Lock()
	defer f.mu.Unlock()

	var result []*model.Reservation
	for _, reservation := range f.reservations {
		copied := *reservation
		result = append(result, &copied)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].StartFrom.Before(result[j].StartFrom)
	})
	return result
}

var testToday = model.NewDate(2026, time.June, 1)

func june(day int) model.Date {
	return model.NewDate(2026, time.June, day)
}

func newTestService(repo *fakeReservationRepository) *reservationService {
	log := logger.New(logger.Config{
		Level:   "error",
		Format:  logger.JSON,
		Service: "test",
	})
	cfg := &config.Config{
		Log:                log,
		ReserveLockTimeout: 5 * time.Second,
	}

	svc := NewReservationService(
		repo,
		validator.NewDateRangeValidator(log),
		events.NewNopPublisher(),
		cfg,
	).(*reservationService)
	svc.today = func() model.Date { return testToday }
	return svc
}

func TestReserve_Success(t *testing.T) {
	repo := newFakeRepository()
	svc := newTestService(repo)

	id, err := svc.Reserve(context.Background(), "John Smith", "john@example.com", june(10), june(12))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id == "" {
		t.Fatal("expected a non-empty reservation id")
	}
	if repo.count() != 1 {
		t.Errorf("expected 1 stored reservation, got %d", repo.count())
	}
}

func TestReserve_OverlapRejected(t *testing.T) {
	repo := newFakeRepository()
	svc := newTestService(repo)

	if _, err := svc.Reserve(context.Background(), "John Smith", "john@example.com", june(10), june(12)); err != nil {
		t.Fatalf("setup reservation failed: %v", err)
	}

	_, err := svc.Reserve(context.Background(), "Jane Doe", "jane@example.com", june(12), june(14))
	rejection, ok := reserrors.AsNotAvailable(err)
	if !ok {
		t.Fatalf("expected a business rejection, got %v", err)
	}

	want := "The given dates are unavailable:There are reservations already in this date range"
	if rejection.Error() != want {
		t.Errorf("expected message %q, got %q", want, rejection.Error())
	}
	if repo.count() != 1 {
		t.Errorf("expected the store unchanged with 1 reservation, got %d", repo.count())
	}
}

func TestReserve_SpanTooLongRejected(t *testing.T) {
	repo := newFakeRepository()
	svc := newTestService(repo)

	_, err := svc.Reserve(context.Background(), "John Smith", "john@example.com", june(10), june(13))
	rejection, ok := reserrors.AsNotAvailable(err)
	if !ok {
		t.Fatalf("expected a business rejection, got %v", err)
	}

	want := "The given dates are unavailable:User could only reserve for maximum 3 days"
	if rejection.Error() != want {
		t.Errorf("expected message %q, got %q", want, rejection.Error())
	}
	if repo.count() != 0 {
		t.Errorf("expected no stored reservations, got %d", repo.count())
	}
}

func TestReserve_InvalidInputIsFatal(t *testing.T) {
	repo := newFakeRepository()
	svc := newTestService(repo)

	// Rules 1-4 are caller errors, not business rejections.
	_, err := svc.Reserve(context.Background(), "John Smith", "john@example.com", june(12), june(10))
	if err == nil {
		t.Fatal("expected an error for a reversed range")
	}
	if _, ok := reserrors.AsNotAvailable(err); ok {
		t.Errorf("reversed range must not be a business rejection: %v", err)
	}
}

func TestReserve_LockTimeout(t *testing.T) {
	repo := newFakeRepository()
	svc := newTestService(repo)
	svc.cfg.ReserveLockTimeout = 20 * time.Millisecond

	// Occupy the write slot so the reservation attempt has to wait.
	if err := svc.writeSlot.Acquire(context.Background(), 1); err != nil {
		t.Fatalf("failed to occupy write slot: %v", err)
	}
	defer svc.writeSlot.Release(1)

	_, err := svc.Reserve(context.Background(), "John Smith", "john@example.com", june(10), june(12))
	rejection, ok := reserrors.AsNotAvailable(err)
	if !ok {
		t.Fatalf("expected a business rejection, got %v", err)
	}
	if rejection.Reason != reserrors.ReasonTimeout {
		t.Errorf("expected timeout reason, got %q", rejection.Reason)
	}
	if repo.count() != 0 {
		t.Errorf("expected no stored reservations, got %d", repo.count())
	}
}

// stallingPublisher blocks its first ReservationCreated call until resumed,
// simulating a slow synchronous broker.
type stallingPublisher struct {
	once    sync.Once
	entered chan struct{}
	resume  chan struct{}
}

func newStallingPublisher() *stallingPublisher {
	return &stallingPublisher{
		entered: make(chan struct{}),
		resume:  make(chan struct{}),
	}
}

func (p *stallingPublisher) ReservationCreated(ctx context.Context, _ *model.Reservation) {
	stall := false
	p.once.Do(func() { stall = true })
	if stall {
		close(p.entered)
		<-p.resume
	}
}

func (p *stallingPublisher) ReservationUpdated(context.Context, *model.Reservation, string) {}

func (p *stallingPublisher) ReservationCancelled(context.Context, *model.Reservation) {}

func TestReserve_SlowEventPublishDoesNotHoldWriteSlot(t *testing.T) {
	repo := newFakeRepository()
	svc := newTestService(repo)
	svc.cfg.ReserveLockTimeout = 100 * time.Millisecond

	pub := newStallingPublisher()
	svc.events = pub

	first := make(chan error, 1)
	go func() {
		_, err := svc.Reserve(context.Background(), "John Smith", "john@example.com", june(10), june(11))
		first <- err
	}()

	// The first reservation has committed and is stuck in the publisher.
	// A disjoint request must still get the write slot within the timeout.
	<-pub.entered
	if _, err := svc.Reserve(context.Background(), "Jane Doe", "jane@example.com", june(20), june(21)); err != nil {
		t.Fatalf("disjoint reservation blocked by event publishing: %v", err)
	}

	close(pub.resume)
	if err := <-first; err != nil {
		t.Fatalf("first reservation failed: %v", err)
	}
	if repo.count() != 2 {
		t.Errorf("expected 2 stored reservations, got %d", repo.count())
	}
}

func TestReserve_StoreFailureBecomesSystemRejection(t *testing.T) {
	repo := newFakeRepository()
	repo.saveErr = fmt.Errorf("connection reset")
	svc := newTestService(repo)

	_, err := svc.Reserve(context.Background(), "John Smith", "john@example.com", june(10), june(12))
	rejection, ok := reserrors.AsNotAvailable(err)
	if !ok {
		t.Fatalf("expected a business rejection, got %v", err)
	}
	if rejection.Reason != reserrors.ReasonSystem {
		t.Errorf("expected system reason, got %q", rejection.Reason)
	}
}

func TestUpdate_Success(t *testing.T) {
	repo := newFakeRepository()
	svc := newTestService(repo)

	oldID, err := svc.Reserve(context.Background(), "John Smith", "john@example.com", june(10), june(12))
	if err != nil {
		t.Fatalf("setup reservation failed: %v", err)
	}

	newID, err := svc.Update(context.Background(), oldID, "john@example.com", june(15), june(17))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if newID == oldID {
		t.Error("expected the replacement to get a fresh id")
	}

	if _, err := repo.FindByID(context.Background(), oldID); err == nil {
		t.Error("expected the original reservation to be gone")
	}
	updated, err := repo.FindByID(context.Background(), newID)
	if err != nil {
		t.Fatalf("replacement not found: %v", err)
	}
	if !updated.StartFrom.Equal(june(15)) || !updated.EndTo.Equal(june(17)) {
		t.Errorf("expected range [%s, %s], got [%s, %s]", june(15), june(17), updated.StartFrom, updated.EndTo)
	}
	if updated.Username != "John Smith" || updated.Email != "john@example.com" {
		t.Errorf("identity fields not carried over: %+v", updated)
	}
}

func TestUpdate_ConflictRollsBack(t *testing.T) {
	repo := newFakeRepository()
	svc := newTestService(repo)

	mineID, err := svc.Reserve(context.Background(), "John Smith", "john@example.com", june(10), june(12))
	if err != nil {
		t.Fatalf("setup reservation failed: %v", err)
	}
	if _, err := svc.Reserve(context.Background(), "Jane Doe", "jane@example.com", june(15), june(16)); err != nil {
		t.Fatalf("setup reservation failed: %v", err)
	}

	_, err = svc.Update(context.Background(), mineID, "john@example.com", june(14), june(16))
	rejection, ok := reserrors.AsNotAvailable(err)
	if !ok {
		t.Fatalf("expected a business rejection, got %v", err)
	}
	if rejection.Reason != reserrors.ReasonOverlap {
		t.Errorf("expected overlap reason, got %q", rejection.Reason)
	}

	// Rejection must leave the original reservation exactly as it was.
	original, err := repo.FindByID(context.Background(), mineID)
	if err != nil {
		t.Fatalf("original reservation lost after rejected update: %v", err)
	}
	if !original.StartFrom.Equal(june(10)) || !original.EndTo.Equal(june(12)) {
		t.Errorf("original range changed: [%s, %s]", original.StartFrom, original.EndTo)
	}
	if repo.count() != 2 {
		t.Errorf("expected 2 reservations after rollback, got %d", repo.count())
	}
}

func TestUpdate_CanKeepOwnDates(t *testing.T) {
	repo := newFakeRepository()
	svc := newTestService(repo)

	oldID, err := svc.Reserve(context.Background(), "John Smith", "john@example.com", june(10), june(12))
	if err != nil {
		t.Fatalf("setup reservation failed: %v", err)
	}

	// Shifting by one day overlaps only the caller's own reservation,
	// which the transaction deletes before re-checking.
	newID, err := svc.Update(context.Background(), oldID, "john@example.com", june(11), june(13))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.count() != 1 {
		t.Errorf("expected 1 reservation, got %d", repo.count())
	}
	if _, err := repo.FindByID(context.Background(), newID); err != nil {
		t.Errorf("replacement not found: %v", err)
	}
}

func TestUpdate_UnknownIDRejected(t *testing.T) {
	repo := newFakeRepository()
	svc := newTestService(repo)

	_, err := svc.Update(context.Background(), "000000000000000000000000", "john@example.com", june(10), june(12))
	rejection, ok := reserrors.AsNotAvailable(err)
	if !ok {
		t.Fatalf("expected a business rejection, got %v", err)
	}
	if rejection.Reason != reserrors.ReasonNotFound {
		t.Errorf("expected not-found reason, got %q", rejection.Reason)
	}
}

func TestUpdate_ForeignReservationRejected(t *testing.T) {
	repo := newFakeRepository()
	svc := newTestService(repo)

	id, err := svc.Reserve(context.Background(), "John Smith", "john@example.com", june(10), june(12))
	if err != nil {
		t.Fatalf("setup reservation failed: %v", err)
	}

	_, err = svc.Update(context.Background(), id, "jane@example.com", june(15), june(17))
	rejection, ok := reserrors.AsNotAvailable(err)
	if !ok {
		t.Fatalf("expected a business rejection, got %v", err)
	}
	if rejection.Reason != reserrors.ReasonNotFound {
		t.Errorf("expected not-found reason, got %q", rejection.Reason)
	}
}

func TestCancel_Idempotent(t *testing.T) {
	repo := newFakeRepository()
	svc := newTestService(repo)

	id, err := svc.Reserve(context.Background(), "John Smith", "john@example.com", june(10), june(12))
	if err != nil {
		t.Fatalf("setup reservation failed: %v", err)
	}

	if err := svc.Cancel(context.Background(), id, "john@example.com"); err != nil {
		t.Fatalf("first cancel failed: %v", err)
	}
	if repo.count() != 0 {
		t.Errorf("expected empty store, got %d reservations", repo.count())
	}

	// Cancelling again, or cancelling garbage, is a silent no-op.
	if err := svc.Cancel(context.Background(), id, "john@example.com"); err != nil {
		t.Errorf("second cancel should succeed: %v", err)
	}
	if err := svc.Cancel(context.Background(), "not-a-real-id", "john@example.com"); err != nil {
		t.Errorf("cancel of unknown id should succeed: %v", err)
	}
}

func TestCancel_ForeignEmailIsNoOp(t *testing.T) {
	repo := newFakeRepository()
	svc := newTestService(repo)

	id, err := svc.Reserve(context.Background(), "John Smith", "john@example.com", june(10), june(12))
	if err != nil {
		t.Fatalf("setup reservation failed: %v", err)
	}

	if err := svc.Cancel(context.Background(), id, "jane@example.com"); err != nil {
		t.Fatalf("cancel with wrong email should not error: %v", err)
	}
	if repo.count() != 1 {
		t.Errorf("foreign cancel must not delete the reservation, got %d left", repo.count())
	}
}

func TestSearch_ReturnsFreeRanges(t *testing.T) {
	repo := newFakeRepository()
	svc := newTestService(repo)

	if _, err := svc.Reserve(context.Background(), "John Smith", "john@example.com", june(10), june(10)); err != nil {
		t.Fatalf("setup reservation failed: %v", err)
	}
	if _, err := svc.Reserve(context.Background(), "Jane Doe", "jane@example.com", june(20), june(22)); err != nil {
		t.Fatalf("setup reservation failed: %v", err)
	}

	freeRanges, err := svc.Search(context.Background(), june(2), june(30))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := []model.DateRange{
		{StartFrom: june(2), EndTo: june(9)},
		{StartFrom: june(11), EndTo: june(19)},
		{StartFrom: june(23), EndTo: june(30)},
	}
	if len(freeRanges) != len(expected) {
		t.Fatalf("expected %d free ranges, got %d: %v", len(expected), len(freeRanges), freeRanges)
	}
	for i, want := range expected {
		if !freeRanges[i].StartFrom.Equal(want.StartFrom) || !freeRanges[i].EndTo.Equal(want.EndTo) {
			t.Errorf("range %d: expected [%s, %s], got [%s, %s]",
				i, want.StartFrom, want.EndTo, freeRanges[i].StartFrom, freeRanges[i].EndTo)
		}
	}
}

func TestSearch_ReversedWindowIsInvalid(t *testing.T) {
	repo := newFakeRepository()
	svc := newTestService(repo)

	if _, err := svc.Search(context.Background(), june(20), june(10)); err == nil {
		t.Fatal("expected an error for a reversed window")
	}
}

func TestReserve_ConcurrentRequestsNeverOverlap(t *testing.T) {
	repo := newFakeRepository()
	svc := newTestService(repo)

	const workers = 40

	var wg sync.WaitGroup
	var mu sync.Mutex
	var committed, rejected int

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()

			// Ranges collide heavily: every third worker shares a start day.
			start := june(2 + (n%10)*3)
			end := start.AddDays(2)
			email := fmt.Sprintf("guest%d@example.com", n)

			_, err := svc.Reserve(context.Background(), "Guest", email, start, end)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				committed++
				return
			}
			if _, ok := reserrors.AsNotAvailable(err); !ok {
				t.Errorf("worker %d: unexpected error type: %v", n, err)
				return
			}
			rejected++
		}(i)
	}
	wg.Wait()

	if committed+rejected != workers {
		t.Errorf("expected %d outcomes, got %d committed and %d rejected", workers, committed, rejected)
	}
	if committed != repo.count() {
		t.Errorf("committed count %d disagrees with store size %d", committed, repo.count())
	}

	stored := repo.all()
	for i := 1; i < len(stored); i++ {
		if !stored[i-1].EndTo.Before(stored[i].StartFrom) {
			t.Errorf("stored reservations overlap: [%s, %s] and [%s, %s]",
				stored[i-1].StartFrom, stored[i-1].EndTo, stored[i].StartFrom, stored[i].EndTo)
		}
	}
}

func TestGetByID(t *testing.T) {
	repo := newFakeRepository()
	svc := newTestService(repo)

	id, err := svc.Reserve(context.Background(), "John Smith", "john@example.com", june(10), june(12))
	if err != nil {
		t.Fatalf("setup reservation failed: %v", err)
	}

	reservation, err := svc.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reservation.ID != id {
		t.Errorf("expected id %s, got %s", id, reservation.ID)
	}

	if _, err := svc.GetByID(context.Background(), "000000000000000000000000"); err == nil {
		t.Error("expected an error for an unknown id")
	}
	if _, err := svc.GetByID(context.Background(), ""); err == nil {
		t.Error("expected an error for an empty id")
	}
}
