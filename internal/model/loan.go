package model

import "time"

// Loan status values reported to clients.  Only the returned state is
// stored; "overdue" is derived from the due date at read time so the
// reported status can never drift from wall-clock time.
const (
	LoanStatusBorrowed = "borrowed"
	LoanStatusOverdue  = "overdue"
	LoanStatusReturned = "returned"
)

// Loan records one borrowing transaction in the `loans` table.  A loan is
// created when a staff member registers a borrow and is mutated exactly
// once, by the return operation.  Returned loans are kept forever as
// history, which is why books and users with any referencing loan cannot
// be deleted.
//
// Fields:
//  ID         – primary key identifier.
//  BookID     – borrowed book.
//  UserID     – borrowing principal.
//  BorrowedAt – when the loan was registered.
//  DueAt      – BorrowedAt plus the configured loan period.
//  ReturnedAt – when the book came back (nil while outstanding).
//  FineCents  – fine computed at return time; zero while outstanding.
type Loan struct {
	ID         uint64     // loans.id
	BookID     uint64     // loans.book_id
	UserID     uint64     // loans.user_id
	BorrowedAt time.Time  // loans.borrowed_at
	DueAt      time.Time  // loans.due_at
	ReturnedAt *time.Time // loans.returned_at (nullable)
	FineCents  int64      // loans.fine_cents
}

// Status derives the loan state at the given instant.
func (l Loan) Status(now time.Time) string {
	if l.ReturnedAt != nil {
		return LoanStatusReturned
	}
	if now.After(l.DueAt) {
		return LoanStatusOverdue
	}
	return LoanStatusBorrowed
}

// AccruedFineCents reports the loan's fine at the given instant.  For a
// returned loan this is the stored fine; for an outstanding loan the fine
// is projected from how late it currently is, without being persisted.
func (l Loan) AccruedFineCents(now time.Time, perDayCents int64) int64 {
	if l.ReturnedAt != nil {
		return l.FineCents
	}
	return FineCents(l.DueAt, now, perDayCents)
}

// LateDays reports how many whole days past `due` the instant `at` is.
// Any partial day counts as a full one; on time or early is zero.
func LateDays(due, at time.Time) int64 {
	late := at.Sub(due)
	if late <= 0 {
		return 0
	}
	days := int64(late / (24 * time.Hour))
	if late%(24*time.Hour) != 0 {
		days++
	}
	return days
}

// FineCents computes the fine for a loan due at `due` and returned at
// `returned`: every late day, rounded up, is charged at perDayCents.
func FineCents(due, returned time.Time, perDayCents int64) int64 {
	return LateDays(due, returned) * perDayCents
}
