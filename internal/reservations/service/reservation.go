package service

import (
	"context"
	"errors"

	"golang.org/x/sync/semaphore"

	"campsite/internal/reservations/availability"
	reserrors "campsite/internal/reservations/errors"
	"campsite/internal/reservations/events"
	"campsite/internal/reservations/repository"
	"campsite/internal/reservations/validator"
	"campsite/pkg/config"
	apperrors "campsite/pkg/errors"
	"campsite/pkg/model"
	"campsite/pkg/sanitizer"
)

// ReservationService coordinates the campsite's single calendar. Search is
// lock-free; Reserve and Update serialize through one shared exclusion so
// the check-then-write sequence is atomic and no two committed reservations
// can ever overlap.
type ReservationService interface {
	Search(ctx context.Context, startFrom, endTo model.Date) ([]model.DateRange, error)
	Reserve(ctx context.Context, userName, email string, startFrom, endTo model.Date) (string, error)
	Update(ctx context.Context, id, email string, startFrom, endTo model.Date) (string, error)
	Cancel(ctx context.Context, id, email string) error
	GetByID(ctx context.Context, id string) (*model.Reservation, error)
}

type reservationService struct {
	repo      repository.ReservationRepository
	validator *validator.DateRangeValidator
	events    events.Publisher
	cfg       *config.Config

	// Global create/update exclusion. The whole calendar is one shared
	// resource, so a single exclusion domain is both sufficient and free
	// of lock-ordering hazards between create and update.
	writeSlot *semaphore.Weighted

	today func() model.Date
}

func NewReservationService(
	repo repository.ReservationRepository,
	rangeValidator *validator.DateRangeValidator,
	publisher events.Publisher,
	cfg *config.Config,
) ReservationService {
	return &reservationService{
		repo:      repo,
		validator: rangeValidator,
		events:    publisher,
		cfg:       cfg,
		writeSlot: semaphore.NewWeighted(1),
		today:     model.Today,
	}
}

func (s *reservationService) Search(ctx context.Context, startFrom, endTo model.Date) ([]model.DateRange, error) {
	if startFrom.IsZero() || endTo.IsZero() {
		return nil, apperrors.InvalidInput("Both startFrom and endTo are required")
	}
	if startFrom.After(endTo) {
		return nil, apperrors.InvalidInput("Start date should before or equal the end date")
	}

	reservations, err := s.repo.FindOverlapping(ctx, startFrom, endTo)
	if err != nil {
		s.cfg.Log.Error("Failed to search reservations", "error", err)
		return nil, apperrors.Internal("Failed to search reservations", err)
	}

	window := model.DateRange{StartFrom: startFrom, EndTo: endTo}
	return availability.FreeRanges(window, reservations), nil
}

func (s *reservationService) Reserve(ctx context.Context, userName, email string, startFrom, endTo model.Date) (string, error) {
	candidate := &model.Reservation{
		Username:  sanitizer.NormalizeName(userName),
		Email:     sanitizer.NormalizeEmail(email),
		StartFrom: startFrom,
		EndTo:     endTo,
	}

	if err := s.validator.ValidateRequest(candidate); err != nil {
		return "", err
	}
	reservable, err := s.validator.IsReservable(startFrom, endTo, s.today())
	if err != nil {
		return "", err
	}
	if !reservable {
		return "", reserrors.NotAvailable(reserrors.ReasonMaxDays)
	}

	id, err := s.commitReserve(ctx, candidate)
	if err != nil {
		return "", err
	}

	// The write slot is free again: publishing may block on the broker and
	// must not stall concurrent writers.
	s.events.ReservationCreated(ctx, candidate)
	s.cfg.Log.Info("Reservation created",
		"id", id,
		"start_from", startFrom.String(),
		"end_to", endTo.String(),
	)
	return id, nil
}

// commitReserve holds the write slot only for the check-then-insert
// transaction. Overlap is re-checked under the exclusion because a competing
// writer may have committed between validation and acquisition.
func (s *reservationService) commitReserve(ctx context.Context, candidate *model.Reservation) (string, error) {
	release, err := s.acquireWriteSlot(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	var id string
	err = s.repo.ExecuteTransaction(ctx, func(txCtx context.Context) error {
		overlapping, err := s.repo.FindOverlapping(txCtx, candidate.StartFrom, candidate.EndTo)
		if err != nil {
			return apperrors.Internal("Failed to check existing reservations", err)
		}
		if len(overlapping) > 0 {
			return reserrors.NotAvailable(reserrors.ReasonOverlap)
		}

		id, err = s.repo.Save(txCtx, candidate)
		if err != nil {
			return apperrors.Internal("Failed to save reservation", err)
		}
		return nil
	})
	if err != nil {
		return "", s.rejectOrSystemError(err)
	}
	return id, nil
}

func (s *reservationService) Update(ctx context.Context, id, email string, startFrom, endTo model.Date) (string, error) {
	reservable, err := s.validator.IsReservable(startFrom, endTo, s.today())
	if err != nil {
		return "", err
	}
	if !reservable {
		return "", reserrors.NotAvailable(reserrors.ReasonMaxDays)
	}

	// Owner check happens here: an id belonging to someone else is
	// indistinguishable from a missing one.
	existing, err := s.repo.FindByIDAndEmail(ctx, id, sanitizer.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, reserrors.ErrNotFound) || errors.Is(err, reserrors.ErrInvalidID) {
			return "", reserrors.NotAvailable(reserrors.ReasonNotFound)
		}
		return "", s.rejectOrSystemError(err)
	}

	replacement := &model.Reservation{
		Username:  existing.Username,
		Email:     existing.Email,
		StartFrom: startFrom,
		EndTo:     endTo,
	}

	newID, err := s.commitReplace(ctx, existing.ID, replacement)
	if err != nil {
		return "", err
	}

	s.events.ReservationUpdated(ctx, replacement, existing.ID)
	s.cfg.Log.Info("Reservation updated",
		"id", newID,
		"previous_id", existing.ID,
		"start_from", startFrom.String(),
		"end_to", endTo.String(),
	)
	return newID, nil
}

// commitReplace performs the atomic replace under the write slot: delete,
// re-check, insert in one transaction. On any rejection the transaction
// aborts and the original reservation stays exactly as it was.
func (s *reservationService) commitReplace(ctx context.Context, previousID string, replacement *model.Reservation) (string, error) {
	release, err := s.acquireWriteSlot(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	var newID string
	err = s.repo.ExecuteTransaction(ctx, func(txCtx context.Context) error {
		if err := s.repo.Delete(txCtx, previousID); err != nil {
			return apperrors.Internal("Failed to replace reservation", err)
		}

		overlapping, err := s.repo.FindOverlapping(txCtx, replacement.StartFrom, replacement.EndTo)
		if err != nil {
			return apperrors.Internal("Failed to check existing reservations", err)
		}
		if len(overlapping) > 0 {
			return reserrors.NotAvailable(reserrors.ReasonOverlap)
		}

		newID, err = s.repo.Save(txCtx, replacement)
		if err != nil {
			return apperrors.Internal("Failed to save reservation", err)
		}
		return nil
	})
	if err != nil {
		return "", s.rejectOrSystemError(err)
	}
	return newID, nil
}

// Cancel deletes the caller's reservation. A missing id, a foreign id, or a
// malformed id are all silent no-ops: cancel is idempotent.
func (s *reservationService) Cancel(ctx context.Context, id, email string) error {
	existing, err := s.repo.FindByIDAndEmail(ctx, id, sanitizer.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, reserrors.ErrNotFound) || errors.Is(err, reserrors.ErrInvalidID) {
			s.cfg.Log.Debug("Cancel for unknown reservation ignored", "id", id)
			return nil
		}
		return apperrors.Internal("Failed to resolve reservation", err)
	}

	if err := s.repo.Delete(ctx, existing.ID); err != nil {
		if errors.Is(err, reserrors.ErrNotFound) {
			return nil
		}
		return apperrors.Internal("Failed to delete reservation", err)
	}

	s.events.ReservationCancelled(ctx, existing)
	s.cfg.Log.Info("Reservation cancelled", "id", existing.ID)
	return nil
}

func (s *reservationService) GetByID(ctx context.Context, id string) (*model.Reservation, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Reservation ID cannot be empty")
	}

	reservation, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, reserrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Reservation", id)
		}
		if errors.Is(err, reserrors.ErrInvalidID) {
			return nil, apperrors.InvalidInput("Invalid reservation ID format")
		}
		return nil, apperrors.Internal("Failed to retrieve reservation", err)
	}

	return reservation, nil
}

// acquireWriteSlot takes the shared create/update exclusion with a bounded
// wait. Exceeding the wait is a clean business rejection with no lock state
// left behind.
func (s *reservationService) acquireWriteSlot(ctx context.Context) (func(), error) {
	waitCtx, cancel := context.WithTimeout(ctx, s.cfg.ReserveLockTimeout)
	defer cancel()

	if err := s.writeSlot.Acquire(waitCtx, 1); err != nil {
		s.cfg.Log.Warn("Timed out waiting for reservation write slot", "timeout", s.cfg.ReserveLockTimeout)
		return nil, reserrors.NotAvailable(reserrors.ReasonTimeout)
	}

	return func() { s.writeSlot.Release(1) }, nil
}

// rejectOrSystemError passes business rejections through and downgrades
// store failures inside the critical section to a recoverable rejection so
// internal detail never leaks to the caller.
func (s *reservationService) rejectOrSystemError(err error) error {
	if na, ok := reserrors.AsNotAvailable(err); ok {
		return na
	}
	s.cfg.Log.Error("Reservation write failed", "error", err)
	return reserrors.NotAvailable(reserrors.ReasonSystem)
}
