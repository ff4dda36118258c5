// Package service holds the loan lifecycle engine.  Handlers stay thin:
// every rule about who may borrow, when a loan is due, what a late return
// costs and who may see which loans lives here, against small store
// interfaces so the engine can be exercised without a database.
package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"school-library/internal/model"
	"school-library/internal/repository"
)

// Service-level sentinel errors.  Handlers map these to HTTP statuses;
// conflict-class errors (no copies, duplicate active loan, already
// returned) pass through from the repository package unchanged.
var (
	ErrNotPermitted     = errors.New("not permitted")
	ErrBookNotFound     = errors.New("book not found")
	ErrBorrowerNotFound = errors.New("borrower not found")
	ErrBorrowerInactive = errors.New("borrower is not active")
	ErrLoanNotFound     = errors.New("loan not found")
)

// BookStore is the slice of the book repository the engine needs.
type BookStore interface {
	GetByID(ctx context.Context, id uint64) (model.Book, error)
}

// UserStore resolves borrowers.
type UserStore interface {
	GetByID(ctx context.Context, id uint64) (model.User, error)
}

// LoanStore persists loans.  Create and Return must be atomic with the
// book availability counter: Create fails with repository.ErrNoCopies when
// no copy is free and repository.ErrActiveLoanExists when the pair already
// has an outstanding loan; Return fails with repository.ErrAlreadyReturned
// on a second return and leaves state untouched.
type LoanStore interface {
	Create(ctx context.Context, bookID, userID uint64, borrowedAt, dueAt time.Time) (model.Loan, error)
	Return(ctx context.Context, loanID uint64, returnedAt time.Time, finePerDayCents int64) (model.Loan, error)
	GetByID(ctx context.Context, id uint64) (model.Loan, error)
	List(ctx context.Context, f repository.LoanFilter) ([]model.Loan, error)
}

// EventSink receives domain events after a state change has committed.
// Implementations must not fail the calling request; the queue publisher
// logs and swallows broker errors.
type EventSink interface {
	LoanCreated(ctx context.Context, loan model.Loan, book model.Book, borrower model.User)
	LoanReturned(ctx context.Context, loan model.Loan, book model.Book, borrower model.User)
}

// LoanService is the lifecycle engine.  The acting principal is passed
// into every operation explicitly; there is no ambient current-session
// state anywhere in the server.
type LoanService struct {
	books  BookStore
	users  UserStore
	loans  LoanStore
	events EventSink

	loanPeriod      time.Duration
	finePerDayCents int64

	now func() time.Time // overridable in tests
}

// NewLoanService wires the engine.  events may be nil when no broker is
// configured.
func NewLoanService(books BookStore, users UserStore, loans LoanStore, events EventSink, loanPeriodDays int, finePerDayCents int64) *LoanService {
	return &LoanService{
		books:           books,
		users:           users,
		loans:           loans,
		events:          events,
		loanPeriod:      time.Duration(loanPeriodDays) * 24 * time.Hour,
		finePerDayCents: finePerDayCents,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// FinePerDayCents exposes the configured rate for read-time fine
// projection in responses.
func (s *LoanService) FinePerDayCents() int64 { return s.finePerDayCents }

// Now returns the engine's current time.
func (s *LoanService) Now() time.Time { return s.now() }

// CreateLoan registers a borrow of bookID for borrowerID on behalf of
// actor.  Only librarian-level staff may register loans.  The borrower
// must exist and be active and the book must have a free copy; the
// decrement-and-insert runs atomically in the store.
func (s *LoanService) CreateLoan(ctx context.Context, actor model.User, bookID, borrowerID uint64) (model.Loan, error) {
	if !model.Satisfies(actor.Role, model.RoleLibrarian) {
		return model.Loan{}, ErrNotPermitted
	}
	book, err := s.books.GetByID(ctx, bookID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Loan{}, ErrBookNotFound
		}
		return model.Loan{}, err
	}
	borrower, err := s.users.GetByID(ctx, borrowerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Loan{}, ErrBorrowerNotFound
		}
		return model.Loan{}, err
	}
	if !borrower.IsActive {
		return model.Loan{}, ErrBorrowerInactive
	}

	now := s.now()
	loan, err := s.loans.Create(ctx, bookID, borrowerID, now, now.Add(s.loanPeriod))
	if err != nil {
		return model.Loan{}, err
	}
	if s.events != nil {
		s.events.LoanCreated(ctx, loan, book, borrower)
	}
	return loan, nil
}

// ReturnLoan closes a loan on behalf of actor.  Only librarian-level staff
// may process returns.  Returning an overdue loan succeeds and yields a
// positive fine; whole late days are charged, rounded up.
func (s *LoanService) ReturnLoan(ctx context.Context, actor model.User, loanID uint64) (model.Loan, error) {
	if !model.Satisfies(actor.Role, model.RoleLibrarian) {
		return model.Loan{}, ErrNotPermitted
	}
	loan, err := s.loans.Return(ctx, loanID, s.now(), s.finePerDayCents)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Loan{}, ErrLoanNotFound
		}
		return model.Loan{}, err
	}
	if s.events != nil {
		book, berr := s.books.GetByID(ctx, loan.BookID)
		borrower, uerr := s.users.GetByID(ctx, loan.UserID)
		if berr == nil && uerr == nil {
			s.events.LoanReturned(ctx, loan, book, borrower)
		}
	}
	return loan, nil
}

// ListLoans returns loans visible to actor.  Teacher-level staff see all
// loans and may filter freely; everyone else is restricted to their own
// loans no matter what filter they ask for.  The ownership clamp happens
// here, server-side, not in any UI.
func (s *LoanService) ListLoans(ctx context.Context, actor model.User, f repository.LoanFilter) ([]model.Loan, error) {
	if !model.Satisfies(actor.Role, model.RoleTeacher) {
		uid := actor.ID
		f.UserID = &uid
	}
	f.Now = s.now()
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 50
	}
	if f.Skip < 0 {
		f.Skip = 0
	}
	return s.loans.List(ctx, f)
}

// MyLoans returns the actor's own loans.
func (s *LoanService) MyLoans(ctx context.Context, actor model.User, status string, skip, limit int) ([]model.Loan, error) {
	uid := actor.ID
	return s.loans.List(ctx, repository.LoanFilter{
		UserID: &uid,
		Status: status,
		Now:    s.now(),
		Skip:   max(skip, 0),
		Limit:  clampLimit(limit),
	})
}

// GetLoan returns a single loan.  Non-staff principals asking for a loan
// that is not theirs get ErrLoanNotFound rather than a forbidden error, so
// the response does not reveal whether the loan exists.
func (s *LoanService) GetLoan(ctx context.Context, actor model.User, loanID uint64) (model.Loan, error) {
	loan, err := s.loans.GetByID(ctx, loanID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Loan{}, ErrLoanNotFound
		}
		return model.Loan{}, err
	}
	if !model.Satisfies(actor.Role, model.RoleTeacher) && loan.UserID != actor.ID {
		return model.Loan{}, ErrLoanNotFound
	}
	return loan, nil
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 100 {
		return 50
	}
	return limit
}
