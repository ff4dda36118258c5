package model

import "time"

// User represents a library principal as stored in the `users` table.
// Principals are created by an administrator (or bulk import) and carry
// exactly one of the four roles.  The json tags are omitted because these
// structs are used by the repository layer; handlers define separate
// response types with appropriate JSON shapes.
//
// Fields:
//  ID           – primary key identifier of the user.
//  Username     – unique login name (case-sensitive, exact match on login).
//  Email        – unique email address.
//  FullName     – display name.
//  Role         – one of student, teacher, librarian, admin.
//  ClassName    – optional class/affiliation for students (nullable).
//  PasswordHash – bcrypt hashed password.
//  IsActive     – whether the account may log in or borrow.
//  CreatedAt    – timestamp of creation.
//  UpdatedAt    – timestamp of last update.
type User struct {
	ID           uint64    // users.id
	Username     string    // users.username
	Email        string    // users.email
	FullName     string    // users.full_name
	Role         string    // users.role
	ClassName    *string   // users.class_name (nullable)
	PasswordHash string    // users.password_hash
	IsActive     bool      // users.is_active
	CreatedAt    time.Time // users.created_at
	UpdatedAt    time.Time // users.updated_at
}
