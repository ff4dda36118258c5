package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"school-library/internal/model"
)

// LoanRepo persists borrowing transactions.  The two state-changing
// operations, Create and Return, each run as a single transaction that
// pairs the loan row change with the book's availability counter, so a
// request abandoned mid-flight can never leave partial state.
type LoanRepo struct{ DB *sql.DB }

func NewLoanRepo(db *sql.DB) *LoanRepo { return &LoanRepo{DB: db} }

// LoanFilter narrows List results.  A nil UserID means all users; Status
// is one of the model.LoanStatus values or empty for all.  Overdue and
// borrowed are derived from due_at against Now, never read from a stored
// status column.
type LoanFilter struct {
	UserID *uint64
	BookID *uint64
	Status string
	Now    time.Time
	Skip   int
	Limit  int
}

const loanColumns = "id,book_id,user_id,borrowed_at,due_at,returned_at,fine_cents"

func scanLoan(row interface{ Scan(...any) error }) (model.Loan, error) {
	var l model.Loan
	var returned sql.NullTime
	err := row.Scan(&l.ID, &l.BookID, &l.UserID, &l.BorrowedAt, &l.DueAt, &returned, &l.FineCents)
	if err != nil {
		return model.Loan{}, err
	}
	if returned.Valid {
		t := returned.Time
		l.ReturnedAt = &t
	}
	return l, nil
}

// Create registers a borrow.  Within one transaction it decrements the
// book's availability with a guarded update (zero rows affected means the
// last copy was taken concurrently or never existed) and inserts the loan
// row.  A duplicate outstanding loan for the same (book, user) pair trips
// the uq_loans_active unique key and surfaces as ErrActiveLoanExists; the
// rollback then restores the decremented copy.
func (r *LoanRepo) Create(ctx context.Context, bookID, userID uint64, borrowedAt, dueAt time.Time) (model.Loan, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return model.Loan{}, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx,
		"UPDATE books SET available_copies = available_copies - 1 WHERE id=? AND available_copies > 0",
		bookID)
	if err != nil {
		return model.Loan{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return model.Loan{}, err
	}
	if affected == 0 {
		return model.Loan{}, ErrNoCopies
	}

	ins, err := tx.ExecContext(ctx,
		"INSERT INTO loans (book_id, user_id, borrowed_at, due_at) VALUES (?,?,?,?)",
		bookID, userID, borrowedAt, dueAt)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "1062") {
			return model.Loan{}, ErrActiveLoanExists
		}
		return model.Loan{}, err
	}
	id, err := ins.LastInsertId()
	if err != nil {
		return model.Loan{}, err
	}
	loan, err := scanLoan(tx.QueryRowContext(ctx,
		"SELECT "+loanColumns+" FROM loans WHERE id=?", id))
	if err != nil {
		return model.Loan{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.Loan{}, err
	}
	committed = true
	return loan, nil
}

// Return closes a loan.  The loan row is locked for the duration of the
// transaction; the fine is computed from the due date at the moment of
// return and the book's availability is incremented with a cap at
// total_copies.  The cap should never engage while decrements and
// increments stay paired, but it keeps the invariant even if a row was
// touched out of band.
func (r *LoanRepo) Return(ctx context.Context, loanID uint64, returnedAt time.Time, finePerDayCents int64) (model.Loan, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return model.Loan{}, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	loan, err := scanLoan(tx.QueryRowContext(ctx,
		"SELECT "+loanColumns+" FROM loans WHERE id=? FOR UPDATE", loanID))
	if err != nil {
		return model.Loan{}, err
	}
	if loan.ReturnedAt != nil {
		return model.Loan{}, ErrAlreadyReturned
	}

	fine := model.FineCents(loan.DueAt, returnedAt, finePerDayCents)
	if _, err := tx.ExecContext(ctx,
		"UPDATE loans SET returned_at=?, fine_cents=? WHERE id=?",
		returnedAt, fine, loanID); err != nil {
		return model.Loan{}, err
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE books SET available_copies = LEAST(available_copies + 1, total_copies) WHERE id=?",
		loan.BookID); err != nil {
		return model.Loan{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.Loan{}, err
	}
	committed = true
	ret := returnedAt
	loan.ReturnedAt = &ret
	loan.FineCents = fine
	return loan, nil
}

// GetByID fetches a loan by id.
func (r *LoanRepo) GetByID(ctx context.Context, id uint64) (model.Loan, error) {
	return scanLoan(r.DB.QueryRowContext(ctx,
		"SELECT "+loanColumns+" FROM loans WHERE id=? LIMIT 1", id))
}

// List returns loans newest first, narrowed by the filter.
func (r *LoanRepo) List(ctx context.Context, f LoanFilter) ([]model.Loan, error) {
	q := "SELECT " + loanColumns + " FROM loans"
	conds := make([]string, 0, 3)
	args := make([]any, 0, 5)
	if f.UserID != nil {
		conds = append(conds, "user_id=?")
		args = append(args, *f.UserID)
	}
	if f.BookID != nil {
		conds = append(conds, "book_id=?")
		args = append(args, *f.BookID)
	}
	switch f.Status {
	case model.LoanStatusReturned:
		conds = append(conds, "returned_at IS NOT NULL")
	case model.LoanStatusOverdue:
		conds = append(conds, "returned_at IS NULL AND due_at < ?")
		args = append(args, f.Now)
	case model.LoanStatusBorrowed:
		conds = append(conds, "returned_at IS NULL AND due_at >= ?")
		args = append(args, f.Now)
	}
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY borrowed_at DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, f.Limit, f.Skip)

	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	loans := make([]model.Loan, 0)
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		loans = append(loans, l)
	}
	return loans, rows.Err()
}

// Counts returns the number of outstanding and overdue loans at `now`.
func (r *LoanRepo) Counts(ctx context.Context, now time.Time) (active int, overdue int, err error) {
	err = r.DB.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(due_at < ?),0) FROM loans WHERE returned_at IS NULL",
		now).Scan(&active, &overdue)
	return
}

// OverdueDues returns the due dates of all outstanding overdue loans so
// callers can project the fines accrued so far.
func (r *LoanRepo) OverdueDues(ctx context.Context, now time.Time) ([]time.Time, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT due_at FROM loans WHERE returned_at IS NULL AND due_at < ?", now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var dues []time.Time
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		dues = append(dues, t)
	}
	return dues, rows.Err()
}
