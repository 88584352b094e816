package entity

import "time"

// User is an account row in the `users` table. ID is whatever the client
// signs up with (phone number, login); it doubles as the token subject.
type User struct {
	ID           string    `db:"id"`
	PasswordHash string    `db:"password_hash"`
	CreatedAt    time.Time `db:"created_at"`
}
