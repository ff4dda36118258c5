package repository

import (
	"context"
	"database/sql"
	"encoding/json"

	"school-library/internal/model"
)

// BookRepo provides CRUD operations for catalog entries.  The
// available_copies column is never written unconditionally: the loan store
// adjusts it with guarded updates and Update() recomputes it inside a
// transaction, so 0 <= available <= total holds under concurrency.
type BookRepo struct{ DB *sql.DB }

func NewBookRepo(db *sql.DB) *BookRepo { return &BookRepo{DB: db} }

const bookColumns = "id,title,authors,isbn,publisher,year,total_copies,available_copies,created_at,updated_at"

func scanBook(row interface{ Scan(...any) error }) (model.Book, error) {
	var b model.Book
	var authorsJSON []byte
	var year sql.NullInt64
	err := row.Scan(&b.ID, &b.Title, &authorsJSON, &b.ISBN, &b.Publisher,
		&year, &b.TotalCopies, &b.AvailableCopies, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return model.Book{}, err
	}
	if err := json.Unmarshal(authorsJSON, &b.Authors); err != nil {
		return model.Book{}, err
	}
	if year.Valid {
		y := int(year.Int64)
		b.Year = &y
	}
	return b, nil
}

// Create inserts a book with available_copies = total_copies and returns
// its ID.
func (r *BookRepo) Create(ctx context.Context, b model.Book) (uint64, error) {
	authorsJSON, err := json.Marshal(b.Authors)
	if err != nil {
		return 0, err
	}
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO books (title, authors, isbn, publisher, year, total_copies, available_copies) VALUES (?,?,?,?,?,?,?)",
		b.Title, authorsJSON, b.ISBN, b.Publisher, b.Year, b.TotalCopies, b.TotalCopies)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByID fetches a book by id.
func (r *BookRepo) GetByID(ctx context.Context, id uint64) (model.Book, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+bookColumns+" FROM books WHERE id=? LIMIT 1", id)
	return scanBook(row)
}

// List returns books ordered by title.  search matches title, authors and
// isbn with a LIKE; availableOnly restricts to books with at least one
// free copy.
func (r *BookRepo) List(ctx context.Context, search string, availableOnly bool, skip, limit int) ([]model.Book, error) {
	q := "SELECT " + bookColumns + " FROM books"
	args := make([]any, 0, 6)
	where := ""
	if search != "" {
		where = " WHERE (title LIKE ? OR authors LIKE ? OR isbn LIKE ?)"
		like := "%" + search + "%"
		args = append(args, like, like, like)
	}
	if availableOnly {
		if where == "" {
			where = " WHERE available_copies > 0"
		} else {
			where += " AND available_copies > 0"
		}
	}
	q += where + " ORDER BY title LIMIT ? OFFSET ?"
	args = append(args, limit, skip)
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	books := make([]model.Book, 0)
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		books = append(books, b)
	}
	return books, rows.Err()
}

// Update rewrites a book's descriptive fields and total_copies.  Changing
// the total shifts available_copies by the same delta so copies currently
// on loan stay accounted for; the result is clamped to [0, new total].
// The read-adjust-write runs in one transaction with the row locked.
func (r *BookRepo) Update(ctx context.Context, b model.Book) (model.Book, error) {
	authorsJSON, err := json.Marshal(b.Authors)
	if err != nil {
		return model.Book{}, err
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return model.Book{}, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var oldTotal, oldAvailable int
	err = tx.QueryRowContext(ctx,
		"SELECT total_copies, available_copies FROM books WHERE id=? FOR UPDATE", b.ID).
		Scan(&oldTotal, &oldAvailable)
	if err != nil {
		return model.Book{}, err
	}
	available := oldAvailable + (b.TotalCopies - oldTotal)
	if available < 0 {
		available = 0
	}
	if available > b.TotalCopies {
		available = b.TotalCopies
	}
	_, err = tx.ExecContext(ctx,
		"UPDATE books SET title=?, authors=?, isbn=?, publisher=?, year=?, total_copies=?, available_copies=? WHERE id=?",
		b.Title, authorsJSON, b.ISBN, b.Publisher, b.Year, b.TotalCopies, available, b.ID)
	if err != nil {
		return model.Book{}, err
	}
	row := tx.QueryRowContext(ctx, "SELECT "+bookColumns+" FROM books WHERE id=?", b.ID)
	updated, err := scanBook(row)
	if err != nil {
		return model.Book{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.Book{}, err
	}
	committed = true
	return updated, nil
}

// Delete removes a book.  Any referencing loan, returned or not, blocks
// the delete with ErrHasLoans.
func (r *BookRepo) Delete(ctx context.Context, id uint64) error {
	var n int
	if err := r.DB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM loans WHERE book_id=?", id).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return ErrHasLoans
	}
	res, err := r.DB.ExecContext(ctx, "DELETE FROM books WHERE id=?", id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Stats aggregates catalog totals for the dashboard report.
func (r *BookRepo) Stats(ctx context.Context) (books int, copies int, available int, err error) {
	err = r.DB.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(total_copies),0), COALESCE(SUM(available_copies),0) FROM books").
		Scan(&books, &copies, &available)
	return
}
