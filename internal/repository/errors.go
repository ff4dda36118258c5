// Package repository defines the SQL stores and the sentinel errors shared
// across them.  The sentinels let handlers and the loan service translate
// storage-level failures into precise HTTP outcomes (409 for conflicts,
// 404 for missing rows via sql.ErrNoRows) without string matching.
package repository

import "errors"

// ErrUsernameExists is returned when creating a user whose username or
// email collides with an existing account.
var ErrUsernameExists = errors.New("username or email already exists")

// ErrNoCopies is returned by the loan store when a borrow is attempted
// against a book with no available copies.  It is produced by the
// conditional decrement itself, so two concurrent borrows of the last
// copy resolve to exactly one success.
var ErrNoCopies = errors.New("no copies available")

// ErrActiveLoanExists is returned when the borrower already has an
// outstanding loan for the same book.  Enforced by the unique
// (book_id, user_id, active) key, not by a read-then-insert.
var ErrActiveLoanExists = errors.New("active loan already exists")

// ErrAlreadyReturned is returned when the return operation targets a loan
// that has already been returned.  The second return leaves all state
// untouched.
var ErrAlreadyReturned = errors.New("loan already returned")

// ErrHasLoans is returned when deleting a book or user that any loan still
// references.  Loan history is append-only, so such deletes are rejected
// outright.
var ErrHasLoans = errors.New("loans reference this record")
