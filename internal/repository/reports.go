package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"school-library/internal/model"
)

// Report projections join loans with their book and borrower so the
// handlers never fan out per-row queries.  Like List, loan status is
// always derived from due_at against the caller's clock.

// LoanReportFilter narrows the loans report.  From/To bound borrowed_at;
// Status is one of the model.LoanStatus values or empty; UserRole limits
// rows to borrowers of that role.
type LoanReportFilter struct {
	From     *time.Time
	To       *time.Time
	Status   string
	UserRole string
	Now      time.Time
}

// LoanReportRow is one loan joined with its book and borrower.
type LoanReportRow struct {
	Loan        model.Loan
	BookTitle   string
	BookAuthors []string
	UserName    string
	UserRole    string
	UserClass   *string
}

// BookReportRow is one catalog entry with its lifetime loan figures.
type BookReportRow struct {
	Book        model.Book
	TotalLoans  int
	ActiveLoans int
}

// UserReportRow is one account with its borrowing history rolled up.
type UserReportRow struct {
	User           model.User
	TotalLoans     int
	ActiveLoans    int
	OverdueLoans   int
	FineCentsTotal int64
	LastLoanAt     *time.Time
}

// PopularBook is a book ranked by how often it was borrowed in a window.
type PopularBook struct {
	BookID    uint64
	Title     string
	Authors   []string
	LoanCount int
}

// LoanActivity is a recent loan with just enough context for a feed.
type LoanActivity struct {
	LoanID     uint64
	BookTitle  string
	UserName   string
	BorrowedAt time.Time
	DueAt      time.Time
	ReturnedAt *time.Time
}

// MonthlyLoanStats counts loans opened and closed per calendar month.
type MonthlyLoanStats struct {
	Month         string // YYYY-MM
	TotalLoans    int
	ReturnedLoans int
}

// Report returns loans joined with book and borrower, newest first.
func (r *LoanRepo) Report(ctx context.Context, f LoanReportFilter) ([]LoanReportRow, error) {
	q := `SELECT l.id,l.book_id,l.user_id,l.borrowed_at,l.due_at,l.returned_at,l.fine_cents,
		b.title,b.authors,u.full_name,u.role,u.class_name
		FROM loans l JOIN books b ON b.id=l.book_id JOIN users u ON u.id=l.user_id`
	conds := make([]string, 0, 4)
	args := make([]any, 0, 4)
	if f.From != nil {
		conds = append(conds, "l.borrowed_at >= ?")
		args = append(args, *f.From)
	}
	if f.To != nil {
		conds = append(conds, "l.borrowed_at <= ?")
		args = append(args, *f.To)
	}
	switch f.Status {
	case model.LoanStatusReturned:
		conds = append(conds, "l.returned_at IS NOT NULL")
	case model.LoanStatusOverdue:
		conds = append(conds, "l.returned_at IS NULL AND l.due_at < ?")
		args = append(args, f.Now)
	case model.LoanStatusBorrowed:
		conds = append(conds, "l.returned_at IS NULL AND l.due_at >= ?")
		args = append(args, f.Now)
	}
	if f.UserRole != "" {
		conds = append(conds, "u.role=?")
		args = append(args, f.UserRole)
	}
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY l.borrowed_at DESC, l.id DESC"

	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]LoanReportRow, 0)
	for rows.Next() {
		var row LoanReportRow
		var returned sql.NullTime
		var authorsJSON []byte
		var class sql.NullString
		err := rows.Scan(&row.Loan.ID, &row.Loan.BookID, &row.Loan.UserID,
			&row.Loan.BorrowedAt, &row.Loan.DueAt, &returned, &row.Loan.FineCents,
			&row.BookTitle, &authorsJSON, &row.UserName, &row.UserRole, &class)
		if err != nil {
			return nil, err
		}
		if returned.Valid {
			t := returned.Time
			row.Loan.ReturnedAt = &t
		}
		if err := json.Unmarshal(authorsJSON, &row.BookAuthors); err != nil {
			return nil, err
		}
		if class.Valid {
			s := class.String
			row.UserClass = &s
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// PopularBooks ranks books by loans opened since `since`, most borrowed
// first, ties broken by id for a stable order.
func (r *LoanRepo) PopularBooks(ctx context.Context, since time.Time, limit int) ([]PopularBook, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT b.id,b.title,b.authors,COUNT(*) AS loan_count
		FROM loans l JOIN books b ON b.id=l.book_id
		WHERE l.borrowed_at >= ?
		GROUP BY b.id,b.title,b.authors
		ORDER BY loan_count DESC, b.id LIMIT ?`, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]PopularBook, 0, limit)
	for rows.Next() {
		var p PopularBook
		var authorsJSON []byte
		if err := rows.Scan(&p.BookID, &p.Title, &authorsJSON, &p.LoanCount); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(authorsJSON, &p.Authors); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// RecentActivity returns the newest loans with book title and borrower
// name attached.
func (r *LoanRepo) RecentActivity(ctx context.Context, limit int) ([]LoanActivity, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT l.id,b.title,u.full_name,l.borrowed_at,l.due_at,l.returned_at
		FROM loans l JOIN books b ON b.id=l.book_id JOIN users u ON u.id=l.user_id
		ORDER BY l.borrowed_at DESC, l.id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]LoanActivity, 0, limit)
	for rows.Next() {
		var a LoanActivity
		var returned sql.NullTime
		err := rows.Scan(&a.LoanID, &a.BookTitle, &a.UserName, &a.BorrowedAt, &a.DueAt, &returned)
		if err != nil {
			return nil, err
		}
		if returned.Valid {
			t := returned.Time
			a.ReturnedAt = &t
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// MonthlyStats buckets loans opened since `since` by calendar month,
// oldest month first.
func (r *LoanRepo) MonthlyStats(ctx context.Context, since time.Time) ([]MonthlyLoanStats, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT DATE_FORMAT(borrowed_at,'%Y-%m') AS month,
		COUNT(*), COALESCE(SUM(returned_at IS NOT NULL),0)
		FROM loans WHERE borrowed_at >= ?
		GROUP BY month ORDER BY month`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]MonthlyLoanStats, 0)
	for rows.Next() {
		var m MonthlyLoanStats
		if err := rows.Scan(&m.Month, &m.TotalLoans, &m.ReturnedLoans); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Report returns every book with its loan figures, most borrowed first.
// availability is "available", "unavailable" or empty for all.
func (r *BookRepo) Report(ctx context.Context, availability string) ([]BookReportRow, error) {
	q := `SELECT b.id,b.title,b.authors,b.isbn,b.publisher,b.year,b.total_copies,b.available_copies,
		b.created_at,b.updated_at,
		COUNT(l.id), COALESCE(SUM(l.returned_at IS NULL),0)
		FROM books b LEFT JOIN loans l ON l.book_id=b.id`
	switch availability {
	case "available":
		q += " WHERE b.available_copies > 0"
	case "unavailable":
		q += " WHERE b.available_copies = 0"
	}
	q += " GROUP BY b.id ORDER BY COUNT(l.id) DESC, b.title"

	rows, err := r.DB.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]BookReportRow, 0)
	for rows.Next() {
		var row BookReportRow
		var authorsJSON []byte
		var year sql.NullInt64
		err := rows.Scan(&row.Book.ID, &row.Book.Title, &authorsJSON, &row.Book.ISBN,
			&row.Book.Publisher, &year, &row.Book.TotalCopies, &row.Book.AvailableCopies,
			&row.Book.CreatedAt, &row.Book.UpdatedAt, &row.TotalLoans, &row.ActiveLoans)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(authorsJSON, &row.Book.Authors); err != nil {
			return nil, err
		}
		if year.Valid {
			y := int(year.Int64)
			row.Book.Year = &y
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Report returns every account with its borrowing history rolled up,
// heaviest borrowers first.  Overdue counts are taken against `now`.
func (r *UserRepo) Report(ctx context.Context, role, className string, now time.Time) ([]UserReportRow, error) {
	q := `SELECT u.id,u.username,u.email,u.full_name,u.role,u.class_name,u.password_hash,u.is_active,
		u.created_at,u.updated_at,
		COUNT(l.id),
		COALESCE(SUM(l.returned_at IS NULL),0),
		COALESCE(SUM(l.returned_at IS NULL AND l.due_at < ?),0),
		COALESCE(SUM(l.fine_cents),0),
		MAX(l.borrowed_at)
		FROM users u LEFT JOIN loans l ON l.user_id=u.id`
	args := []any{now}
	conds := make([]string, 0, 2)
	if role != "" {
		conds = append(conds, "u.role=?")
		args = append(args, role)
	}
	if className != "" {
		conds = append(conds, "u.class_name=?")
		args = append(args, className)
	}
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " GROUP BY u.id ORDER BY COUNT(l.id) DESC, u.username"

	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]UserReportRow, 0)
	for rows.Next() {
		var row UserReportRow
		var class sql.NullString
		var last sql.NullTime
		err := rows.Scan(&row.User.ID, &row.User.Username, &row.User.Email, &row.User.FullName,
			&row.User.Role, &class, &row.User.PasswordHash, &row.User.IsActive,
			&row.User.CreatedAt, &row.User.UpdatedAt,
			&row.TotalLoans, &row.ActiveLoans, &row.OverdueLoans, &row.FineCentsTotal, &last)
		if err != nil {
			return nil, err
		}
		if class.Valid {
			s := class.String
			row.User.ClassName = &s
		}
		if last.Valid {
			t := last.Time
			row.LastLoanAt = &t
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
