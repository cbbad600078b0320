package entity

import "time"

type User struct {
	ID                 int64     `json:"id"`
	Username           string    `json:"username"`
	Email              string    `json:"email"`
	Password           string    `json:"-"`
	Inactive           bool      `json:"-"`
	ActivationToken    *string   `json:"-"`
	PasswordResetToken *string   `json:"-"`
	Image              *string   `json:"image"`
	CreatedAt          time.Time `json:"-"`
	UpdatedAt          time.Time `json:"-"`
}

// Persisted reports whether the user has been assigned an id by the store.
func (u User) Persisted() bool {
	return u.ID > 0
}

// Summary is the public projection returned by listing, lookup and update.
type Summary struct {
	ID       int64   `json:"id"`
	Username string  `json:"username"`
	Email    string  `json:"email"`
	Image    *string `json:"image"`
}

func (u User) Summary() Summary {
	return Summary{ID: u.ID, Username: u.Username, Email: u.Email, Image: u.Image}
}
