// Package queue defines message payloads exchanged over the message broker.
package queue

// LoanEventQueue is the durable queue all loan lifecycle events go to.
const LoanEventQueue = "loan.events"

// LoanEvent is published when a loan is created or returned.  It carries
// enough denormalized information for downstream consumers to log or
// notify without querying the primary database.  Kind is "created" or
// "returned"; ReturnedAt and FineCents are only meaningful for the latter.
type LoanEvent struct {
	Kind       string `json:"kind"`
	LoanID     uint64 `json:"loan_id"`
	BookID     uint64 `json:"book_id"`
	BookTitle  string `json:"book_title"`
	UserID     uint64 `json:"user_id"`
	Username   string `json:"username"`
	BorrowedAt string `json:"borrowed_at"`
	DueAt      string `json:"due_at"`
	ReturnedAt string `json:"returned_at,omitempty"`
	FineCents  int64  `json:"fine_cents,omitempty"`
}
