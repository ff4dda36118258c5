package model

import "time"

// Book is a catalog entry in the `books` table.  AvailableCopies is the
// live availability counter the loan engine decrements and increments; the
// database enforces 0 <= available_copies <= total_copies at all times.
//
// Fields:
//  ID              – primary key identifier.
//  Title           – book title.
//  Authors         – ordered author list, stored as a JSON array.
//  ISBN            – identifier, may be empty.
//  Publisher       – publisher name, may be empty.
//  Year            – publication year (nullable).
//  TotalCopies     – number of physical copies owned.
//  AvailableCopies – copies not currently on loan.
//  CreatedAt       – creation timestamp.
//  UpdatedAt       – last update timestamp.
type Book struct {
	ID              uint64    // books.id
	Title           string    // books.title
	Authors         []string  // books.authors (JSON array)
	ISBN            string    // books.isbn
	Publisher       string    // books.publisher
	Year            *int      // books.year (nullable)
	TotalCopies     int       // books.total_copies
	AvailableCopies int       // books.available_copies
	CreatedAt       time.Time // books.created_at
	UpdatedAt       time.Time // books.updated_at
}
